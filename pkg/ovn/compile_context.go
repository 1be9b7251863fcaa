package ovn

import (
	"context"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/ovndb"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/types"
)

// ModelReader is the read side of the model store used while compiling
type ModelReader interface {
	GetPort(ctx context.Context, id string) (*model.Port, error)
	GetSubnet(ctx context.Context, id string) (*model.Subnet, error)
	GetSecurityGroup(ctx context.Context, id string) (*model.SecurityGroup, error)
	GetPortSecurityGroupBindings(ctx context.Context, groupID string) ([]model.PortSecurityGroupBinding, error)
}

// SwitchReader looks up Logical Switches
type SwitchReader interface {
	GetLogicalSwitch(ctx context.Context, name string) (*ovndb.LogicalSwitch, error)
}

// CompileContext caches model and topology reads for the duration of one
// public call. It must not outlive that call.
type CompileContext struct {
	model    ModelReader
	switches SwitchReader

	groups        map[string]*model.SecurityGroup
	bindings      map[string][]model.PortSecurityGroupBinding
	subnets       map[string]*model.Subnet
	networkSwitch map[string]*ovndb.LogicalSwitch
}

// NewCompileContext creates an empty context over the given readers
func NewCompileContext(m ModelReader, s SwitchReader) *CompileContext {
	return &CompileContext{
		model:         m,
		switches:      s,
		groups:        make(map[string]*model.SecurityGroup),
		bindings:      make(map[string][]model.PortSecurityGroupBinding),
		subnets:       make(map[string]*model.Subnet),
		networkSwitch: make(map[string]*ovndb.LogicalSwitch),
	}
}

// SecurityGroup returns a group with its rules
func (cc *CompileContext) SecurityGroup(ctx context.Context, id string) (*model.SecurityGroup, error) {
	if sg, ok := cc.groups[id]; ok {
		return sg, nil
	}
	sg, err := cc.model.GetSecurityGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	cc.groups[id] = sg
	return sg, nil
}

// Bindings returns the port bindings of a group
func (cc *CompileContext) Bindings(ctx context.Context, groupID string) ([]model.PortSecurityGroupBinding, error) {
	if b, ok := cc.bindings[groupID]; ok {
		return b, nil
	}
	b, err := cc.model.GetPortSecurityGroupBindings(ctx, groupID)
	if err != nil {
		return nil, err
	}
	cc.bindings[groupID] = b
	return b, nil
}

// Subnet returns a subnet
func (cc *CompileContext) Subnet(ctx context.Context, id string) (*model.Subnet, error) {
	if s, ok := cc.subnets[id]; ok {
		return s, nil
	}
	s, err := cc.model.GetSubnet(ctx, id)
	if err != nil {
		return nil, err
	}
	cc.subnets[id] = s
	return s, nil
}

// Port reads a port. Ports are not cached: the cascade reads each one once.
func (cc *CompileContext) Port(ctx context.Context, id string) (*model.Port, error) {
	return cc.model.GetPort(ctx, id)
}

// NetworkSwitch returns the Logical Switch of a network
func (cc *CompileContext) NetworkSwitch(ctx context.Context, networkID string) (*ovndb.LogicalSwitch, error) {
	if ls, ok := cc.networkSwitch[networkID]; ok {
		return ls, nil
	}
	name := types.OVNName(networkID)
	ls, err := cc.switches.GetLogicalSwitch(ctx, name)
	if err != nil {
		if ovndb.IsNotFound(err) {
			return nil, &MissingDependencyError{Kind: "logical switch", Name: name}
		}
		return nil, err
	}
	cc.networkSwitch[networkID] = ls
	return ls, nil
}

// HomeSwitch returns the name of the switch holding the port's Logical
// Port and ACLs: the port's private switch on a provider network, the
// network's switch otherwise
func (cc *CompileContext) HomeSwitch(ctx context.Context, port *model.Port) (string, error) {
	ls, err := cc.NetworkSwitch(ctx, port.NetworkID)
	if err != nil {
		return "", err
	}
	if PhysicalNetwork(ls) != "" {
		return types.OVNName(port.ID), nil
	}
	return ls.Name, nil
}

// PhysicalNetwork returns the physical network stashed on a network's
// switch, or "" for a tenant network
func PhysicalNetwork(ls *ovndb.LogicalSwitch) string {
	if ls == nil {
		return ""
	}
	return ls.ExternalIDs[types.ExternalIDPhysicalNetwork]
}
