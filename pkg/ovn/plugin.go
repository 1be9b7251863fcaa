// Package ovn provides the Plugin, the entry point the orchestration
// service calls for every model operation.
//
// Each operation commits the model change first and then derives and
// writes the topology change. Only network creation is unwound when the
// topology write fails; for every other operation the model change stays
// committed, the failure is logged and returned, and the resync pass is
// left to repair the topology.
package ovn

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/logging"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/metrics"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/types"
)

// Options configures a Plugin
type Options struct {
	// L3Mode makes router interface changes write Logical Router Ports
	L3Mode bool
}

// Plugin composes the topology modules over a model store
type Plugin struct {
	model    model.Adapter
	topology TopologyStore

	compiler *ACLCompiler
	resolver *PortOptionResolver
	sync     *TopologySynchronizer
	cascade  *CascadeRefresher

	l3Mode bool
}

// NewPlugin creates a Plugin
func NewPlugin(m model.Adapter, topology TopologyStore, opts Options) *Plugin {
	compiler := NewACLCompiler()
	return &Plugin{
		model:    m,
		topology: topology,
		compiler: compiler,
		resolver: NewPortOptionResolver(m),
		sync:     NewTopologySynchronizer(topology, compiler),
		cascade:  NewCascadeRefresher(topology, m, compiler),
		l3Mode:   opts.L3Mode,
	}
}

func (p *Plugin) newCompileContext() *CompileContext {
	return NewCompileContext(p.model, p.topology)
}

// ============================================================================
// Networks
// ============================================================================

// CreateNetwork creates a network and its Logical Switch. If the switch
// cannot be created the network is deleted again and a
// ServiceUnavailableError is returned.
func (p *Plugin) CreateNetwork(ctx context.Context, net *model.Network) (result *model.Network, err error) {
	defer func() { metrics.RecordSyncOperation(metrics.EntityNetwork, metrics.OperationCreate, err) }()

	provider := net.Provider
	if err := ValidateProvider(provider); err != nil {
		return nil, err
	}

	created, err := p.model.CreateNetwork(ctx, net)
	if err != nil {
		return nil, err
	}
	logger := logging.LoggerForNetwork(ctx, created.ID)

	if err := p.sync.CreateNetwork(ctx, created, provider); err != nil {
		logger.Error(err, "Unable to create logical switch, deleting network")
		if derr := p.model.DeleteNetwork(ctx, created.ID); derr != nil {
			logger.Error(derr, "Failed to delete network after logical switch failure")
		} else {
			metrics.RecordCompensatingRollback()
		}
		return nil, &ServiceUnavailableError{Operation: OpCreateNetwork, Cause: err}
	}

	logger.Info("Created network", "switch", types.OVNName(created.ID))
	created.Provider = provider
	return created, nil
}

// UpdateNetwork updates a network. Provider attributes cannot change.
func (p *Plugin) UpdateNetwork(ctx context.Context, id string, upd model.NetworkUpdate) (result *model.Network, err error) {
	defer func() { metrics.RecordSyncOperation(metrics.EntityNetwork, metrics.OperationUpdate, err) }()

	if upd.Provider.IsSet() {
		return nil, invalidInputf("provider attributes of network %s cannot be updated", id)
	}

	updated, err := p.model.UpdateNetwork(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		if err := p.sync.SetNetworkName(ctx, id, *upd.Name); err != nil {
			logging.LoggerForNetwork(ctx, id).Error(err, "Unable to set network name on logical switch")
			return updated, err
		}
	}
	return updated, nil
}

// DeleteNetwork deletes a network and then its Logical Switch
func (p *Plugin) DeleteNetwork(ctx context.Context, id string) (err error) {
	defer func() { metrics.RecordSyncOperation(metrics.EntityNetwork, metrics.OperationDelete, err) }()

	if err := p.model.DeleteNetwork(ctx, id); err != nil {
		return err
	}
	if err := p.sync.DeleteNetwork(ctx, id); err != nil {
		logging.LoggerForNetwork(ctx, id).Error(err, "Unable to delete logical switch")
		return err
	}
	return nil
}

// CreateSubnet creates a subnet. Subnets have no topology of their own.
func (p *Plugin) CreateSubnet(ctx context.Context, subnet *model.Subnet) (*model.Subnet, error) {
	if _, err := netip.ParsePrefix(subnet.CIDR); err != nil {
		return nil, invalidInputf("invalid cidr %q: %v", subnet.CIDR, err)
	}
	return p.model.CreateSubnet(ctx, subnet)
}

// ============================================================================
// Ports
// ============================================================================

// CreatePort creates a port, its Logical Switch Port and ACLs, and then
// refreshes every group whose remote group rules now see the new port
func (p *Plugin) CreatePort(ctx context.Context, port *model.Port) (result *model.Port, err error) {
	defer func() { metrics.RecordSyncOperation(metrics.EntityPort, metrics.OperationCreate, err) }()

	profile, err := p.resolver.ValidateBindingProfile(ctx, port.BindingProfile)
	if err != nil {
		return nil, err
	}

	created, err := p.model.CreatePort(ctx, port)
	if err != nil {
		return nil, err
	}
	logger := logging.LoggerForPort(ctx, created.ID)

	cc := p.newCompileContext()
	info := p.resolver.Resolve(profile, created)
	if err := p.sync.CreatePort(ctx, cc, created, info); err != nil {
		logger.Error(err, "Unable to create logical switch port")
		return created, err
	}

	exclude := sets.New(created.ID)
	for _, sgID := range created.SecurityGroups {
		if err := p.cascade.RefreshRemoteSecurityGroup(ctx, cc, sgID, exclude); err != nil {
			logger.Error(err, "Unable to refresh remote security groups", "securityGroup", sgID)
			return created, err
		}
	}

	logger.Info("Created port", "network", created.NetworkID, "securityGroups", len(created.SecurityGroups))
	return created, nil
}

// UpdatePort updates a port, rewrites its Logical Switch Port and ACLs in
// one transaction and, when its security groups changed, refreshes the
// groups referencing any detached or attached group
func (p *Plugin) UpdatePort(ctx context.Context, id string, upd model.PortUpdate) (result *model.Port, err error) {
	defer func() { metrics.RecordSyncOperation(metrics.EntityPort, metrics.OperationUpdate, err) }()

	original, err := p.model.GetPort(ctx, id)
	if err != nil {
		return nil, err
	}

	requested := original.BindingProfile
	if upd.BindingProfile != nil {
		requested = upd.BindingProfile
	}
	profile, err := p.resolver.ValidateBindingProfile(ctx, requested)
	if err != nil {
		return nil, err
	}

	updated, err := p.model.UpdatePort(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	logger := logging.LoggerForPort(ctx, id)

	cc := p.newCompileContext()
	info := p.resolver.Resolve(profile, updated)
	if err := p.sync.UpdatePort(ctx, cc, updated, info); err != nil {
		logger.Error(err, "Unable to update logical switch port")
		return updated, err
	}

	oldGroups := sets.New(original.SecurityGroups...)
	newGroups := sets.New(updated.SecurityGroups...)
	if oldGroups.Equal(newGroups) {
		return updated, nil
	}

	exclude := sets.New(id)
	detached := sets.List(oldGroups.Difference(newGroups))
	attached := sets.List(newGroups.Difference(oldGroups))
	for _, sgID := range append(detached, attached...) {
		if err := p.cascade.RefreshRemoteSecurityGroup(ctx, cc, sgID, exclude); err != nil {
			logger.Error(err, "Unable to refresh remote security groups", "securityGroup", sgID)
			return updated, err
		}
	}
	return updated, nil
}

// DeletePort removes a port from the topology and then deletes it.
// ACLs of other ports that list this port through a remote group are left
// until their next refresh.
func (p *Plugin) DeletePort(ctx context.Context, id string) (err error) {
	defer func() { metrics.RecordSyncOperation(metrics.EntityPort, metrics.OperationDelete, err) }()

	port, err := p.model.GetPort(ctx, id)
	if err != nil {
		return err
	}
	if err := p.sync.DeletePort(ctx, port); err != nil {
		logging.LoggerForPort(ctx, id).Error(err, "Unable to delete logical switch port")
		return err
	}
	return p.model.DeletePort(ctx, id)
}

// GetPort returns a port
func (p *Plugin) GetPort(ctx context.Context, id string) (*model.Port, error) {
	return p.model.GetPort(ctx, id)
}

// ============================================================================
// Security groups
// ============================================================================

// CreateSecurityGroup creates a group. A new group has no ports.
func (p *Plugin) CreateSecurityGroup(ctx context.Context, sg *model.SecurityGroup) (*model.SecurityGroup, error) {
	for i := range sg.Rules {
		if err := ValidateRule(&sg.Rules[i]); err != nil {
			return nil, err
		}
	}
	return p.model.CreateSecurityGroup(ctx, sg)
}

// UpdateSecurityGroup updates a group and refreshes the ACLs of its ports
func (p *Plugin) UpdateSecurityGroup(ctx context.Context, id string, upd model.SecurityGroupUpdate) (result *model.SecurityGroup, err error) {
	defer func() { metrics.RecordSyncOperation(metrics.EntitySecurityGroup, metrics.OperationUpdate, err) }()

	updated, err := p.model.UpdateSecurityGroup(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	if _, err := p.cascade.RefreshSecurityGroup(ctx, p.newCompileContext(), id, nil); err != nil {
		logging.LoggerForSecurityGroup(ctx, id).Error(err, "Unable to refresh security group ACLs")
		return updated, err
	}
	return updated, nil
}

// DeleteSecurityGroup deletes a group. Groups still bound to ports are
// refused by the model store, so there are no ACLs to touch.
func (p *Plugin) DeleteSecurityGroup(ctx context.Context, id string) error {
	return p.model.DeleteSecurityGroup(ctx, id)
}

// CreateSecurityGroupRule adds a rule and refreshes the ACLs of the
// owning group's ports
func (p *Plugin) CreateSecurityGroupRule(ctx context.Context, rule *model.SecurityGroupRule) (result *model.SecurityGroupRule, err error) {
	defer func() {
		metrics.RecordSyncOperation(metrics.EntitySecurityGroupRule, metrics.OperationCreate, err)
	}()

	if err := ValidateRule(rule); err != nil {
		return nil, err
	}
	created, err := p.model.CreateSecurityGroupRule(ctx, rule)
	if err != nil {
		return nil, err
	}
	if _, err := p.cascade.RefreshSecurityGroup(ctx, p.newCompileContext(), created.SecurityGroupID, nil); err != nil {
		logging.LoggerForSecurityGroup(ctx, created.SecurityGroupID).Error(err, "Unable to refresh ACLs after rule create", "rule", created.ID)
		return created, err
	}
	return created, nil
}

// DeleteSecurityGroupRule removes a rule and refreshes the ACLs of the
// owning group's ports
func (p *Plugin) DeleteSecurityGroupRule(ctx context.Context, id string) (err error) {
	defer func() {
		metrics.RecordSyncOperation(metrics.EntitySecurityGroupRule, metrics.OperationDelete, err)
	}()

	rule, err := p.model.GetSecurityGroupRule(ctx, id)
	if err != nil {
		return err
	}
	if err := p.model.DeleteSecurityGroupRule(ctx, id); err != nil {
		return err
	}
	if _, err := p.cascade.RefreshSecurityGroup(ctx, p.newCompileContext(), rule.SecurityGroupID, nil); err != nil {
		logging.LoggerForSecurityGroup(ctx, rule.SecurityGroupID).Error(err, "Unable to refresh ACLs after rule delete", "rule", id)
		return err
	}
	return nil
}

// ValidateRule checks a security group rule before it is stored. The
// protocol is lowercased in place so stored rules carry the canonical name.
func ValidateRule(rule *model.SecurityGroupRule) error {
	rule.Protocol = strings.ToLower(rule.Protocol)
	if rule.Direction != model.DirectionIngress && rule.Direction != model.DirectionEgress {
		return invalidInputf("invalid rule direction %q", rule.Direction)
	}
	if rule.Ethertype != model.EthertypeIPv4 && rule.Ethertype != model.EthertypeIPv6 {
		return invalidInputf("invalid rule ethertype %q", rule.Ethertype)
	}
	if rule.RemoteIPPrefix != "" && rule.RemoteGroupID != "" {
		return invalidInputf("remote ip prefix and remote group are mutually exclusive")
	}
	if rule.RemoteIPPrefix != "" {
		prefix, err := netip.ParsePrefix(rule.RemoteIPPrefix)
		if err != nil {
			return invalidInputf("invalid remote ip prefix %q: %v", rule.RemoteIPPrefix, err)
		}
		if prefix.Addr().Is4() != (rule.Ethertype == model.EthertypeIPv4) {
			return invalidInputf("remote ip prefix %s does not match ethertype %s", rule.RemoteIPPrefix, rule.Ethertype)
		}
	}

	limit := 65535
	switch rule.Protocol {
	case "", model.ProtocolTCP, model.ProtocolUDP:
	case model.ProtocolICMP:
		limit = 255
	default:
		return invalidInputf("unsupported rule protocol %q", rule.Protocol)
	}
	lo, hasLo := portRangeBound(rule.PortRangeMin)
	hi, hasHi := portRangeBound(rule.PortRangeMax)
	if rule.Protocol == "" && (hasLo || hasHi) {
		return invalidInputf("port range requires a protocol")
	}
	for _, b := range []struct {
		set bool
		v   int
	}{{hasLo, lo}, {hasHi, hi}} {
		if b.set && (b.v < 0 || b.v > limit) {
			return invalidInputf("port range value %d is outside 0-%d", b.v, limit)
		}
	}
	// icmp uses the bounds as type and code, which are not ordered
	if hasLo && hasHi && lo > hi && rule.Protocol != model.ProtocolICMP {
		return invalidInputf("port range min %d is greater than max %d", lo, hi)
	}
	return nil
}

// ============================================================================
// Routers
// ============================================================================

// CreateRouter creates a router and its Logical Router
func (p *Plugin) CreateRouter(ctx context.Context, router *model.Router) (result *model.Router, err error) {
	defer func() { metrics.RecordSyncOperation(metrics.EntityRouter, metrics.OperationCreate, err) }()

	created, err := p.model.CreateRouter(ctx, router)
	if err != nil {
		return nil, err
	}
	if err := p.sync.CreateRouter(ctx, created); err != nil {
		logging.LoggerForRouter(ctx, created.ID).Error(err, "Unable to create logical router")
		return created, err
	}
	return created, nil
}

// UpdateRouter updates a router and its Logical Router's name
func (p *Plugin) UpdateRouter(ctx context.Context, id string, upd model.RouterUpdate) (result *model.Router, err error) {
	defer func() { metrics.RecordSyncOperation(metrics.EntityRouter, metrics.OperationUpdate, err) }()

	updated, err := p.model.UpdateRouter(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	if err := p.sync.UpdateRouter(ctx, updated); err != nil {
		logging.LoggerForRouter(ctx, id).Error(err, "Unable to update logical router")
		return updated, err
	}
	return updated, nil
}

// DeleteRouter deletes a router and then its Logical Router
func (p *Plugin) DeleteRouter(ctx context.Context, id string) (err error) {
	defer func() { metrics.RecordSyncOperation(metrics.EntityRouter, metrics.OperationDelete, err) }()

	if err := p.model.DeleteRouter(ctx, id); err != nil {
		return err
	}
	if err := p.sync.DeleteRouter(ctx, id); err != nil {
		logging.LoggerForRouter(ctx, id).Error(err, "Unable to delete logical router")
		return err
	}
	return nil
}

// AddRouterInterface attaches a subnet or port to a router. A subnet is
// attached through a new port holding its gateway address. In L3 mode the
// interface port is also linked to a new Logical Router Port.
func (p *Plugin) AddRouterInterface(ctx context.Context, routerID string, info model.RouterInterfaceInfo) (result *model.RouterInterfaceInfo, err error) {
	defer func() {
		metrics.RecordSyncOperation(metrics.EntityRouterInterface, metrics.OperationAdd, err)
	}()

	if (info.PortID == "") == (info.SubnetID == "") {
		return nil, invalidInputf("exactly one of port id and subnet id is required")
	}
	logger := logging.LoggerForRouter(ctx, routerID)

	portID := info.PortID
	if info.SubnetID != "" {
		port, err := p.createGatewayPort(ctx, routerID, info.SubnetID)
		if err != nil {
			return nil, err
		}
		portID = port.ID
	}

	added, err := p.model.AddRouterInterface(ctx, routerID, model.RouterInterfaceInfo{PortID: portID})
	if err != nil {
		return nil, err
	}
	if !p.l3Mode {
		logger.Debug("L3 mode is disabled, skipping logical router port")
		return added, nil
	}

	port, err := p.model.GetPort(ctx, added.PortID)
	if err != nil {
		return added, err
	}
	if len(port.FixedIPs) == 0 {
		return added, invalidInputf("router interface port %s has no fixed ips", port.ID)
	}
	subnet, err := p.model.GetSubnet(ctx, port.FixedIPs[0].SubnetID)
	if err != nil {
		return added, err
	}
	if err := p.sync.AddRouterInterface(ctx, routerID, port, subnet); err != nil {
		logger.Error(err, "Unable to add logical router port", "port", port.ID)
		return added, err
	}
	logger.Info("Added router interface", "port", port.ID, "subnet", subnet.ID)
	return added, nil
}

// createGatewayPort creates the interface port of a subnet attachment
func (p *Plugin) createGatewayPort(ctx context.Context, routerID, subnetID string) (*model.Port, error) {
	subnet, err := p.model.GetSubnet(ctx, subnetID)
	if err != nil {
		return nil, err
	}
	if subnet.GatewayIP == "" {
		return nil, invalidInputf("subnet %s has no gateway ip", subnetID)
	}
	return p.CreatePort(ctx, &model.Port{
		NetworkID:    subnet.NetworkID,
		FixedIPs:     []model.FixedIP{{SubnetID: subnet.ID, IPAddress: subnet.GatewayIP}},
		AdminStateUp: true,
		DeviceID:     routerID,
		DeviceOwner:  types.DeviceOwnerRouterInterface,
	})
}

// RemoveRouterInterface detaches a subnet or port from a router and
// deletes the interface port. In L3 mode the port's Logical Router Port is
// removed after the model change.
func (p *Plugin) RemoveRouterInterface(ctx context.Context, routerID string, info model.RouterInterfaceInfo) (result *model.RouterInterfaceInfo, err error) {
	defer func() {
		metrics.RecordSyncOperation(metrics.EntityRouterInterface, metrics.OperationRemove, err)
	}()

	portID, err := p.resolveInterfacePort(ctx, routerID, info)
	if err != nil {
		return nil, err
	}
	logger := logging.LoggerForRouter(ctx, routerID)

	removed, err := p.model.RemoveRouterInterface(ctx, routerID, model.RouterInterfaceInfo{PortID: portID})
	if err != nil {
		return nil, err
	}
	if p.l3Mode {
		if err := p.sync.RemoveRouterInterface(ctx, routerID, portID); err != nil {
			logger.Error(err, "Unable to delete logical router port", "port", portID)
			return removed, err
		}
	} else {
		logger.Debug("L3 mode is disabled, skipping logical router port")
	}

	if err := p.DeletePort(ctx, portID); err != nil {
		logger.Error(err, "Unable to delete router interface port", "port", portID)
		return removed, err
	}
	return removed, nil
}

// resolveInterfacePort returns the port of a router interface: the given
// port, or the router's only interface port whose sole subnet is the given
// subnet
func (p *Plugin) resolveInterfacePort(ctx context.Context, routerID string, info model.RouterInterfaceInfo) (string, error) {
	if info.PortID != "" {
		return info.PortID, nil
	}
	if info.SubnetID == "" {
		return "", invalidInputf("either port id or subnet id is required")
	}

	subnet, err := p.model.GetSubnet(ctx, info.SubnetID)
	if err != nil {
		return "", err
	}
	ports, err := p.model.GetPorts(ctx, model.PortFilter{
		DeviceID:    routerID,
		DeviceOwner: types.DeviceOwnerRouterInterface,
		NetworkID:   subnet.NetworkID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to list interface ports of router %s: %w", routerID, err)
	}
	for _, port := range ports {
		subnets := port.SubnetIDs()
		if len(subnets) == 1 && subnets[0] == info.SubnetID {
			return port.ID, nil
		}
	}
	return "", &RouterInterfaceNotFoundError{RouterID: routerID, SubnetID: info.SubnetID}
}
