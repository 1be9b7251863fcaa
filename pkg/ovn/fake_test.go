package ovn

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/ovndb"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/types"
)

// ============================================================================
// Topology store
// ============================================================================

// nbState is an in-memory NB database. Switch and router rows reference
// their ports by name instead of UUID.
type nbState struct {
	switches map[string]*ovndb.LogicalSwitch
	ports    map[string]*ovndb.LogicalSwitchPort
	acls     map[string][]*ovndb.ACL
	routers  map[string]*ovndb.LogicalRouter
	rports   map[string]*ovndb.LogicalRouterPort
}

func newNBState() *nbState {
	return &nbState{
		switches: make(map[string]*ovndb.LogicalSwitch),
		ports:    make(map[string]*ovndb.LogicalSwitchPort),
		acls:     make(map[string][]*ovndb.ACL),
		routers:  make(map[string]*ovndb.LogicalRouter),
		rports:   make(map[string]*ovndb.LogicalRouterPort),
	}
}

func (s *nbState) clone() *nbState {
	c := newNBState()
	for k, v := range s.switches {
		ls := *v
		ls.Ports = append([]string(nil), v.Ports...)
		ls.ExternalIDs = copyStrings(v.ExternalIDs)
		c.switches[k] = &ls
	}
	for k, v := range s.ports {
		lsp := *v
		lsp.Options = copyStrings(v.Options)
		c.ports[k] = &lsp
	}
	for k, v := range s.acls {
		c.acls[k] = append([]*ovndb.ACL(nil), v...)
	}
	for k, v := range s.routers {
		lr := *v
		lr.Ports = append([]string(nil), v.Ports...)
		lr.ExternalIDs = copyStrings(v.ExternalIDs)
		c.routers[k] = &lr
	}
	for k, v := range s.rports {
		lrp := *v
		c.rports[k] = &lrp
	}
	return c
}

func copyStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// fakeTopology implements TopologyStore over nbState. Each Commit applies
// its commands to a copy and swaps it in only when all of them succeed.
type fakeTopology struct {
	mu    sync.Mutex
	state *nbState

	// failOps makes the named transactions fail at commit
	failOps map[string]error
	commits map[string]int
}

func newFakeTopology() *fakeTopology {
	return &fakeTopology{
		state:   newNBState(),
		failOps: make(map[string]error),
		commits: make(map[string]int),
	}
}

func (f *fakeTopology) GetLogicalSwitch(ctx context.Context, name string) (*ovndb.LogicalSwitch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ls, ok := f.state.switches[name]
	if !ok {
		return nil, ovndb.NewObjectNotFoundError(ovndb.LogicalSwitchTable, name)
	}
	c := *ls
	return &c, nil
}

func (f *fakeTopology) NewTransaction(operation string) ovndb.Transaction {
	return &fakeTxn{topology: f, operation: operation}
}

func (f *fakeTopology) failOn(operation string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOps[operation] = err
}

func (f *fakeTopology) commitCount(operation string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits[operation]
}

func (f *fakeTopology) hasSwitch(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.state.switches[name]
	return ok
}

func (f *fakeTopology) switchPorts(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ls, ok := f.state.switches[name]
	if !ok {
		return nil
	}
	out := append([]string(nil), ls.Ports...)
	sort.Strings(out)
	return out
}

func (f *fakeTopology) port(name string) *ovndb.LogicalSwitchPort {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.ports[name]
}

func (f *fakeTopology) router(name string) *ovndb.LogicalRouter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.routers[name]
}

func (f *fakeTopology) routerPort(name string) *ovndb.LogicalRouterPort {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.rports[name]
}

// portACLs returns the ACLs on a switch owned by a port
func (f *fakeTopology) portACLs(switchName, portID string) []*ovndb.ACL {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*ovndb.ACL
	for _, acl := range f.state.acls[switchName] {
		if acl.ExternalIDs[types.ExternalIDLogicalPort] == portID {
			out = append(out, acl)
		}
	}
	return out
}

func (f *fakeTopology) switchACLCount(switchName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.state.acls[switchName])
}

type fakeCommand func(st *nbState) error

type fakeTxn struct {
	topology  *fakeTopology
	operation string
	commands  []fakeCommand
}

func (t *fakeTxn) add(cmd fakeCommand) {
	t.commands = append(t.commands, cmd)
}

func (t *fakeTxn) Len() int {
	return len(t.commands)
}

func (t *fakeTxn) Commit(ctx context.Context) error {
	f := t.topology
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failOps[t.operation]; ok {
		return ovndb.NewTransactionError(t.operation, err, "")
	}
	if len(t.commands) == 0 {
		return nil
	}
	st := f.state.clone()
	for _, cmd := range t.commands {
		if err := cmd(st); err != nil {
			return ovndb.NewTransactionError(t.operation, err, "")
		}
	}
	f.state = st
	f.commits[t.operation]++
	return nil
}

func (t *fakeTxn) CreateLogicalSwitch(name string, externalIDs map[string]string) {
	t.add(func(st *nbState) error {
		if _, ok := st.switches[name]; ok {
			return fmt.Errorf("logical switch %s already exists", name)
		}
		st.switches[name] = &ovndb.LogicalSwitch{UUID: "uuid-" + name, Name: name, ExternalIDs: copyStrings(externalIDs)}
		return nil
	})
}

func (t *fakeTxn) DeleteLogicalSwitch(name string, ifExists bool) {
	t.add(func(st *nbState) error {
		ls, ok := st.switches[name]
		if !ok {
			if ifExists {
				return nil
			}
			return ovndb.NewObjectNotFoundError(ovndb.LogicalSwitchTable, name)
		}
		for _, p := range ls.Ports {
			delete(st.ports, p)
		}
		delete(st.acls, name)
		delete(st.switches, name)
		return nil
	})
}

func (t *fakeTxn) SetLogicalSwitchExternalIDs(name string, externalIDs map[string]string) {
	t.add(func(st *nbState) error {
		ls, ok := st.switches[name]
		if !ok {
			return ovndb.NewObjectNotFoundError(ovndb.LogicalSwitchTable, name)
		}
		if ls.ExternalIDs == nil {
			ls.ExternalIDs = map[string]string{}
		}
		for k, v := range externalIDs {
			ls.ExternalIDs[k] = v
		}
		return nil
	})
}

func (t *fakeTxn) CreateLogicalSwitchPort(switchName string, lsp *ovndb.LogicalSwitchPort) {
	t.add(func(st *nbState) error {
		ls, ok := st.switches[switchName]
		if !ok {
			return ovndb.NewObjectNotFoundError(ovndb.LogicalSwitchTable, switchName)
		}
		if _, ok := st.ports[lsp.Name]; ok {
			return fmt.Errorf("logical switch port %s already exists", lsp.Name)
		}
		row := *lsp
		row.Options = copyStrings(lsp.Options)
		st.ports[lsp.Name] = &row
		ls.Ports = append(ls.Ports, lsp.Name)
		return nil
	})
}

func (t *fakeTxn) UpdateLogicalSwitchPort(lsp *ovndb.LogicalSwitchPort) {
	t.add(func(st *nbState) error {
		if _, ok := st.ports[lsp.Name]; !ok {
			return ovndb.NewObjectNotFoundError(ovndb.LogicalSwitchPortTable, lsp.Name)
		}
		row := *lsp
		row.Options = copyStrings(lsp.Options)
		st.ports[lsp.Name] = &row
		return nil
	})
}

func (t *fakeTxn) DeleteLogicalSwitchPort(switchName, portName string) {
	t.add(func(st *nbState) error {
		if _, ok := st.ports[portName]; !ok {
			return nil
		}
		ls, ok := st.switches[switchName]
		if !ok {
			return ovndb.NewObjectNotFoundError(ovndb.LogicalSwitchTable, switchName)
		}
		ls.Ports = removeString(ls.Ports, portName)
		delete(st.ports, portName)
		return nil
	})
}

func (t *fakeTxn) SetLogicalSwitchPortRouterPort(portName, routerPortName string) {
	t.add(func(st *nbState) error {
		lsp, ok := st.ports[portName]
		if !ok {
			return ovndb.NewObjectNotFoundError(ovndb.LogicalSwitchPortTable, portName)
		}
		lsp.Type = ovndb.PortTypeRouter
		if lsp.Options == nil {
			lsp.Options = map[string]string{}
		}
		lsp.Options[ovndb.OptionRouterPort] = routerPortName
		return nil
	})
}

func (t *fakeTxn) AddACL(switchName string, acl *ovndb.ACL) {
	t.add(func(st *nbState) error {
		if _, ok := st.switches[switchName]; !ok {
			return ovndb.NewObjectNotFoundError(ovndb.LogicalSwitchTable, switchName)
		}
		row := *acl
		st.acls[switchName] = append(st.acls[switchName], &row)
		return nil
	})
}

func (t *fakeTxn) DeletePortACLs(switchName, portName string) {
	t.add(func(st *nbState) error {
		if _, ok := st.switches[switchName]; !ok {
			return ovndb.NewObjectNotFoundError(ovndb.LogicalSwitchTable, switchName)
		}
		var kept []*ovndb.ACL
		for _, acl := range st.acls[switchName] {
			if acl.ExternalIDs[types.ExternalIDLogicalPort] != portName {
				kept = append(kept, acl)
			}
		}
		st.acls[switchName] = kept
		return nil
	})
}

func (t *fakeTxn) CreateLogicalRouter(name string, externalIDs map[string]string) {
	t.add(func(st *nbState) error {
		if _, ok := st.routers[name]; ok {
			return fmt.Errorf("logical router %s already exists", name)
		}
		st.routers[name] = &ovndb.LogicalRouter{UUID: "uuid-" + name, Name: name, ExternalIDs: copyStrings(externalIDs)}
		return nil
	})
}

func (t *fakeTxn) SetLogicalRouterExternalIDs(name string, externalIDs map[string]string) {
	t.add(func(st *nbState) error {
		lr, ok := st.routers[name]
		if !ok {
			return ovndb.NewObjectNotFoundError(ovndb.LogicalRouterTable, name)
		}
		if lr.ExternalIDs == nil {
			lr.ExternalIDs = map[string]string{}
		}
		for k, v := range externalIDs {
			lr.ExternalIDs[k] = v
		}
		return nil
	})
}

func (t *fakeTxn) DeleteLogicalRouter(name string, ifExists bool) {
	t.add(func(st *nbState) error {
		lr, ok := st.routers[name]
		if !ok {
			if ifExists {
				return nil
			}
			return ovndb.NewObjectNotFoundError(ovndb.LogicalRouterTable, name)
		}
		for _, p := range lr.Ports {
			delete(st.rports, p)
		}
		delete(st.routers, name)
		return nil
	})
}

func (t *fakeTxn) AddLogicalRouterPort(routerName string, lrp *ovndb.LogicalRouterPort) {
	t.add(func(st *nbState) error {
		lr, ok := st.routers[routerName]
		if !ok {
			return ovndb.NewObjectNotFoundError(ovndb.LogicalRouterTable, routerName)
		}
		row := *lrp
		st.rports[lrp.Name] = &row
		lr.Ports = append(lr.Ports, lrp.Name)
		return nil
	})
}

func (t *fakeTxn) DeleteLogicalRouterPort(routerName, portName string, ifExists bool) {
	t.add(func(st *nbState) error {
		if _, ok := st.rports[portName]; !ok {
			if ifExists {
				return nil
			}
			return ovndb.NewObjectNotFoundError(ovndb.LogicalRouterPortTable, portName)
		}
		lr, ok := st.routers[routerName]
		if !ok {
			return ovndb.NewObjectNotFoundError(ovndb.LogicalRouterTable, routerName)
		}
		lr.Ports = removeString(lr.Ports, portName)
		delete(st.rports, portName)
		return nil
	})
}

// ============================================================================
// Model store
// ============================================================================

// fakeModel is an in-memory model.Adapter
type fakeModel struct {
	mu   sync.Mutex
	next int

	networks map[string]*model.Network
	subnets  map[string]*model.Subnet
	ports    map[string]*model.Port
	groups   map[string]*model.SecurityGroup
	routers  map[string]*model.Router

	// failDeleteNetwork makes DeleteNetwork fail
	failDeleteNetwork error
}

var _ model.Adapter = (*fakeModel)(nil)

func newFakeModel() *fakeModel {
	return &fakeModel{
		networks: make(map[string]*model.Network),
		subnets:  make(map[string]*model.Subnet),
		ports:    make(map[string]*model.Port),
		groups:   make(map[string]*model.SecurityGroup),
		routers:  make(map[string]*model.Router),
	}
}

func (m *fakeModel) newID(prefix string) string {
	m.next++
	return fmt.Sprintf("%s-%d", prefix, m.next)
}

func clonePort(p *model.Port) *model.Port {
	c := *p
	c.FixedIPs = append([]model.FixedIP(nil), p.FixedIPs...)
	c.AllowedAddressPairs = append([]model.AllowedAddressPair(nil), p.AllowedAddressPairs...)
	c.SecurityGroups = append([]string(nil), p.SecurityGroups...)
	if p.BindingProfile != nil {
		c.BindingProfile = model.BindingProfile{}
		for k, v := range p.BindingProfile {
			c.BindingProfile[k] = v
		}
	}
	return &c
}

func cloneGroup(sg *model.SecurityGroup) *model.SecurityGroup {
	c := *sg
	c.Rules = append([]model.SecurityGroupRule(nil), sg.Rules...)
	return &c
}

func (m *fakeModel) CreateNetwork(ctx context.Context, net *model.Network) (*model.Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := &model.Network{ID: net.ID, Name: net.Name}
	if n.ID == "" {
		n.ID = m.newID("net")
	}
	m.networks[n.ID] = n
	c := *n
	return &c, nil
}

func (m *fakeModel) UpdateNetwork(ctx context.Context, id string, upd model.NetworkUpdate) (*model.Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.networks[id]
	if !ok {
		return nil, model.NewNotFoundError("network", id)
	}
	if upd.Name != nil {
		n.Name = *upd.Name
	}
	c := *n
	return &c, nil
}

func (m *fakeModel) DeleteNetwork(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDeleteNetwork != nil {
		return m.failDeleteNetwork
	}
	if _, ok := m.networks[id]; !ok {
		return model.NewNotFoundError("network", id)
	}
	delete(m.networks, id)
	return nil
}

func (m *fakeModel) GetNetwork(ctx context.Context, id string) (*model.Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.networks[id]
	if !ok {
		return nil, model.NewNotFoundError("network", id)
	}
	c := *n
	return &c, nil
}

func (m *fakeModel) CreateSubnet(ctx context.Context, subnet *model.Subnet) (*model.Subnet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *subnet
	if s.ID == "" {
		s.ID = m.newID("subnet")
	}
	m.subnets[s.ID] = &s
	c := s
	return &c, nil
}

func (m *fakeModel) GetSubnet(ctx context.Context, id string) (*model.Subnet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subnets[id]
	if !ok {
		return nil, model.NewNotFoundError("subnet", id)
	}
	c := *s
	return &c, nil
}

func (m *fakeModel) CreatePort(ctx context.Context, port *model.Port) (*model.Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := clonePort(port)
	if p.ID == "" {
		p.ID = m.newID("port")
	}
	if p.MACAddress == "" {
		p.MACAddress = fmt.Sprintf("fa:16:3e:00:00:%02x", m.next%256)
	}
	m.ports[p.ID] = p
	return clonePort(p), nil
}

func (m *fakeModel) UpdatePort(ctx context.Context, id string, upd model.PortUpdate) (*model.Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.ports[id]
	if !ok {
		return nil, model.NewNotFoundError("port", id)
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.AdminStateUp != nil {
		p.AdminStateUp = *upd.AdminStateUp
	}
	if upd.BindingProfile != nil {
		p.BindingProfile = upd.BindingProfile
	}
	if upd.AllowedAddressPairs != nil {
		p.AllowedAddressPairs = *upd.AllowedAddressPairs
	}
	if upd.SecurityGroups != nil {
		p.SecurityGroups = append([]string(nil), (*upd.SecurityGroups)...)
	}
	if upd.DeviceID != nil {
		p.DeviceID = *upd.DeviceID
	}
	if upd.DeviceOwner != nil {
		p.DeviceOwner = *upd.DeviceOwner
	}
	return clonePort(p), nil
}

func (m *fakeModel) DeletePort(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ports[id]; !ok {
		return model.NewNotFoundError("port", id)
	}
	delete(m.ports, id)
	return nil
}

func (m *fakeModel) GetPort(ctx context.Context, id string) (*model.Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.ports[id]
	if !ok {
		return nil, model.NewNotFoundError("port", id)
	}
	return clonePort(p), nil
}

func (m *fakeModel) GetPorts(ctx context.Context, filter model.PortFilter) ([]*model.Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Port
	for _, p := range m.ports {
		if filter.Matches(p) {
			out = append(out, clonePort(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *fakeModel) CreateSecurityGroup(ctx context.Context, sg *model.SecurityGroup) (*model.SecurityGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := cloneGroup(sg)
	if g.ID == "" {
		g.ID = m.newID("sg")
	}
	for i := range g.Rules {
		if g.Rules[i].ID == "" {
			g.Rules[i].ID = m.newID("rule")
		}
		g.Rules[i].SecurityGroupID = g.ID
	}
	m.groups[g.ID] = g
	return cloneGroup(g), nil
}

func (m *fakeModel) UpdateSecurityGroup(ctx context.Context, id string, upd model.SecurityGroupUpdate) (*model.SecurityGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, model.NewNotFoundError("security group", id)
	}
	if upd.Name != nil {
		g.Name = *upd.Name
	}
	if upd.Description != nil {
		g.Description = *upd.Description
	}
	return cloneGroup(g), nil
}

func (m *fakeModel) DeleteSecurityGroup(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[id]; !ok {
		return model.NewNotFoundError("security group", id)
	}
	delete(m.groups, id)
	return nil
}

func (m *fakeModel) GetSecurityGroup(ctx context.Context, id string) (*model.SecurityGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, model.NewNotFoundError("security group", id)
	}
	return cloneGroup(g), nil
}

func (m *fakeModel) CreateSecurityGroupRule(ctx context.Context, rule *model.SecurityGroupRule) (*model.SecurityGroupRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[rule.SecurityGroupID]
	if !ok {
		return nil, model.NewNotFoundError("security group", rule.SecurityGroupID)
	}
	r := *rule
	if r.ID == "" {
		r.ID = m.newID("rule")
	}
	g.Rules = append(g.Rules, r)
	return &r, nil
}

func (m *fakeModel) DeleteSecurityGroupRule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		for i, r := range g.Rules {
			if r.ID == id {
				g.Rules = append(g.Rules[:i], g.Rules[i+1:]...)
				return nil
			}
		}
	}
	return model.NewNotFoundError("security group rule", id)
}

func (m *fakeModel) GetSecurityGroupRule(ctx context.Context, id string) (*model.SecurityGroupRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		for _, r := range g.Rules {
			if r.ID == id {
				c := r
				return &c, nil
			}
		}
	}
	return nil, model.NewNotFoundError("security group rule", id)
}

func (m *fakeModel) GetPortSecurityGroupBindings(ctx context.Context, groupID string) ([]model.PortSecurityGroupBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PortSecurityGroupBinding
	for _, p := range m.ports {
		for _, sg := range p.SecurityGroups {
			if sg == groupID {
				out = append(out, model.PortSecurityGroupBinding{PortID: p.ID, SecurityGroupID: groupID})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PortID < out[j].PortID })
	return out, nil
}

func (m *fakeModel) GetSecurityGroupRulesByRemoteGroup(ctx context.Context, groupID string) ([]model.SecurityGroupRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SecurityGroupRule
	for _, g := range m.groups {
		for _, r := range g.Rules {
			if r.RemoteGroupID == groupID {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (m *fakeModel) CreateRouter(ctx context.Context, router *model.Router) (*model.Router, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := *router
	if r.ID == "" {
		r.ID = m.newID("router")
	}
	m.routers[r.ID] = &r
	c := r
	return &c, nil
}

func (m *fakeModel) UpdateRouter(ctx context.Context, id string, upd model.RouterUpdate) (*model.Router, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routers[id]
	if !ok {
		return nil, model.NewNotFoundError("router", id)
	}
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	c := *r
	return &c, nil
}

func (m *fakeModel) DeleteRouter(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routers[id]; !ok {
		return model.NewNotFoundError("router", id)
	}
	delete(m.routers, id)
	return nil
}

func (m *fakeModel) GetRouter(ctx context.Context, id string) (*model.Router, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routers[id]
	if !ok {
		return nil, model.NewNotFoundError("router", id)
	}
	c := *r
	return &c, nil
}

func (m *fakeModel) AddRouterInterface(ctx context.Context, routerID string, info model.RouterInterfaceInfo) (*model.RouterInterfaceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routers[routerID]; !ok {
		return nil, model.NewNotFoundError("router", routerID)
	}
	port, ok := m.ports[info.PortID]
	if !ok {
		return nil, model.NewNotFoundError("port", info.PortID)
	}
	port.DeviceID = routerID
	port.DeviceOwner = types.DeviceOwnerRouterInterface

	out := &model.RouterInterfaceInfo{RouterID: routerID, PortID: port.ID}
	if len(port.FixedIPs) > 0 {
		out.SubnetID = port.FixedIPs[0].SubnetID
	}
	return out, nil
}

func (m *fakeModel) RemoveRouterInterface(ctx context.Context, routerID string, info model.RouterInterfaceInfo) (*model.RouterInterfaceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	port, ok := m.ports[info.PortID]
	if !ok || port.DeviceID != routerID || port.DeviceOwner != types.DeviceOwnerRouterInterface {
		return nil, model.NewNotFoundError("router interface", info.PortID)
	}
	port.DeviceID = ""
	port.DeviceOwner = ""

	out := &model.RouterInterfaceInfo{RouterID: routerID, PortID: port.ID}
	if len(port.FixedIPs) > 0 {
		out.SubnetID = port.FixedIPs[0].SubnetID
	}
	return out, nil
}
