// Package ovn provides the topology synchronizer.
//
// Topology Mapping:
// - Network        -> Logical Switch "neutron-<network id>"
// - Port           -> Logical Switch Port "<port id>" on the network's switch
// - Provider port  -> private Logical Switch "neutron-<port id>" holding the
//   tenant port and a localnet port "provnet-<port id>"
// - Router         -> Logical Router "neutron-<router id>"
// - Router iface   -> Logical Router Port "lrp-<port id>", peered through the
//   attached port's router-port option
//
// Each method commits exactly one transaction. The provider attributes of
// a network live only in its switch's external ids, and the private switch
// of a provider port is told apart from a plain port by its existence.
package ovn

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/ovndb"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/types"
)

// Transaction names, used in errors and metrics
const (
	OpCreateNetwork         = "create_network"
	OpUpdateNetwork         = "update_network"
	OpDeleteNetwork         = "delete_network"
	OpCreatePort            = "create_port"
	OpUpdatePort            = "update_port"
	OpDeletePrivateSwitch   = "delete_private_switch"
	OpDeletePort            = "delete_port"
	OpCreateRouter          = "create_router"
	OpUpdateRouter          = "update_router"
	OpDeleteRouter          = "delete_router"
	OpAddRouterInterface    = "add_router_interface"
	OpRemoveRouterInterface = "remove_router_interface"
	OpRefreshSecurityGroup  = "refresh_security_group"
)

// TopologyStore is the Topology Store Client the core writes through
type TopologyStore interface {
	SwitchReader
	NewTransaction(operation string) ovndb.Transaction
}

var _ TopologyStore = (*ovndb.NBStore)(nil)

// TopologySynchronizer writes the topology side of model operations
type TopologySynchronizer struct {
	topology TopologyStore
	compiler *ACLCompiler
}

// NewTopologySynchronizer creates a synchronizer
func NewTopologySynchronizer(topology TopologyStore, compiler *ACLCompiler) *TopologySynchronizer {
	return &TopologySynchronizer{topology: topology, compiler: compiler}
}

// ValidateProvider checks provider attributes of a network create request
func ValidateProvider(p *model.ProviderAttributes) error {
	if !p.IsSet() {
		return nil
	}
	if p.NetworkType != types.NetworkTypeFlat && p.NetworkType != types.NetworkTypeVlan {
		return invalidInputf("%s network type is not supported with provider networks (only flat or vlan)", p.NetworkType)
	}
	if p.PhysicalNetwork == "" {
		return invalidInputf("physical network is required for %s provider networks", p.NetworkType)
	}
	switch p.NetworkType {
	case types.NetworkTypeVlan:
		if p.SegmentationID == nil {
			return invalidInputf("segmentation id is required for vlan provider networks")
		}
		if *p.SegmentationID < 1 || *p.SegmentationID > 4094 {
			return invalidInputf("segmentation id %d is outside 1-4094", *p.SegmentationID)
		}
	case types.NetworkTypeFlat:
		if p.SegmentationID != nil {
			return invalidInputf("segmentation id is not allowed for flat provider networks")
		}
	}
	return nil
}

// NetworkExternalIDs returns the external ids of a network's switch
func NetworkExternalIDs(net *model.Network, provider *model.ProviderAttributes) map[string]string {
	ids := map[string]string{types.ExternalIDNetworkName: net.Name}
	if provider.IsSet() {
		ids[types.ExternalIDPhysicalNetwork] = provider.PhysicalNetwork
		ids[types.ExternalIDNetworkType] = provider.NetworkType
		if provider.SegmentationID != nil {
			ids[types.ExternalIDSegmentationID] = strconv.Itoa(*provider.SegmentationID)
		}
	}
	return ids
}

// CreateNetwork creates the network's Logical Switch
func (s *TopologySynchronizer) CreateNetwork(ctx context.Context, net *model.Network, provider *model.ProviderAttributes) error {
	txn := s.topology.NewTransaction(OpCreateNetwork)
	txn.CreateLogicalSwitch(types.OVNName(net.ID), NetworkExternalIDs(net, provider))
	return txn.Commit(ctx)
}

// SetNetworkName records a new display name on the network's switch
func (s *TopologySynchronizer) SetNetworkName(ctx context.Context, networkID, name string) error {
	txn := s.topology.NewTransaction(OpUpdateNetwork)
	txn.SetLogicalSwitchExternalIDs(types.OVNName(networkID), map[string]string{types.ExternalIDNetworkName: name})
	return txn.Commit(ctx)
}

// DeleteNetwork deletes the network's switch if it exists
func (s *TopologySynchronizer) DeleteNetwork(ctx context.Context, networkID string) error {
	txn := s.topology.NewTransaction(OpDeleteNetwork)
	txn.DeleteLogicalSwitch(types.OVNName(networkID), true)
	return txn.Commit(ctx)
}

// CreatePort creates the port's Logical Switch Port, and on a provider
// network its private switch and localnet port, together with its ACLs
func (s *TopologySynchronizer) CreatePort(ctx context.Context, cc *CompileContext, port *model.Port, info *PortInfo) error {
	networkSwitch, err := cc.NetworkSwitch(ctx, port.NetworkID)
	if err != nil {
		return err
	}

	txn := s.topology.NewTransaction(OpCreatePort)
	home := networkSwitch.Name
	if PhysicalNetwork(networkSwitch) != "" {
		home = types.OVNName(port.ID)
		localnet, err := LocalnetPort(port, networkSwitch)
		if err != nil {
			return err
		}
		txn.CreateLogicalSwitch(home, portExternalIDs(port))
		txn.CreateLogicalSwitchPort(home, localnet)
	}
	txn.CreateLogicalSwitchPort(home, info.LogicalSwitchPort(port))
	if err := s.compiler.AddPortACLs(ctx, cc, txn, home, port); err != nil {
		return err
	}
	return txn.Commit(ctx)
}

// UpdatePort rewrites the port's Logical Switch Port and regenerates its ACLs
func (s *TopologySynchronizer) UpdatePort(ctx context.Context, cc *CompileContext, port *model.Port, info *PortInfo) error {
	home, err := cc.HomeSwitch(ctx, port)
	if err != nil {
		return err
	}

	txn := s.topology.NewTransaction(OpUpdatePort)
	txn.UpdateLogicalSwitchPort(info.LogicalSwitchPort(port))
	if err := s.compiler.ReplacePortACLs(ctx, cc, txn, home, port); err != nil {
		return err
	}
	return txn.Commit(ctx)
}

// DeletePort removes a port from the topology. A provider port is removed
// with its private switch; when no such switch exists the port and its ACLs
// are removed from the network's switch instead.
func (s *TopologySynchronizer) DeletePort(ctx context.Context, port *model.Port) error {
	private := types.OVNName(port.ID)
	_, err := s.topology.GetLogicalSwitch(ctx, private)
	switch {
	case err == nil:
		// The localnet and tenant ports go with the switch
		txn := s.topology.NewTransaction(OpDeletePrivateSwitch)
		txn.DeleteLogicalSwitch(private, false)
		return txn.Commit(ctx)
	case !ovndb.IsNotFound(err):
		return err
	}

	networkSwitch := types.OVNName(port.NetworkID)
	txn := s.topology.NewTransaction(OpDeletePort)
	txn.DeleteLogicalSwitchPort(networkSwitch, port.ID)
	txn.DeletePortACLs(networkSwitch, port.ID)
	return txn.Commit(ctx)
}

func routerExternalIDs(router *model.Router) map[string]string {
	name := router.Name
	if name == "" {
		name = types.DefaultRouterName
	}
	return map[string]string{types.ExternalIDRouterName: name}
}

// CreateRouter creates the router's Logical Router
func (s *TopologySynchronizer) CreateRouter(ctx context.Context, router *model.Router) error {
	txn := s.topology.NewTransaction(OpCreateRouter)
	txn.CreateLogicalRouter(types.OVNName(router.ID), routerExternalIDs(router))
	return txn.Commit(ctx)
}

// UpdateRouter records the router's name on its Logical Router
func (s *TopologySynchronizer) UpdateRouter(ctx context.Context, router *model.Router) error {
	txn := s.topology.NewTransaction(OpUpdateRouter)
	txn.SetLogicalRouterExternalIDs(types.OVNName(router.ID), routerExternalIDs(router))
	return txn.Commit(ctx)
}

// DeleteRouter deletes the router's Logical Router if it exists
func (s *TopologySynchronizer) DeleteRouter(ctx context.Context, routerID string) error {
	txn := s.topology.NewTransaction(OpDeleteRouter)
	txn.DeleteLogicalRouter(types.OVNName(routerID), true)
	return txn.Commit(ctx)
}

// RouterPortNetwork returns "<ip>/<prefix length>" for an address on a subnet
func RouterPortNetwork(ip string, subnet *model.Subnet) (string, error) {
	prefix, err := netip.ParsePrefix(subnet.CIDR)
	if err != nil {
		return "", fmt.Errorf("subnet %s has invalid cidr %q: %w", subnet.ID, subnet.CIDR, err)
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", fmt.Errorf("invalid router interface address %q: %w", ip, err)
	}
	return netip.PrefixFrom(addr, prefix.Bits()).String(), nil
}

// AddRouterInterface creates the Logical Router Port of an interface port
// and peers the port with it
func (s *TopologySynchronizer) AddRouterInterface(ctx context.Context, routerID string, port *model.Port, subnet *model.Subnet) error {
	if len(port.FixedIPs) == 0 {
		return invalidInputf("router interface port %s has no fixed ips", port.ID)
	}
	network, err := RouterPortNetwork(port.FixedIPs[0].IPAddress, subnet)
	if err != nil {
		return err
	}

	lrpName := types.RouterPortName(port.ID)
	txn := s.topology.NewTransaction(OpAddRouterInterface)
	txn.AddLogicalRouterPort(types.OVNName(routerID), &ovndb.LogicalRouterPort{
		Name:     lrpName,
		MAC:      port.MACAddress,
		Networks: []string{network},
	})
	txn.SetLogicalSwitchPortRouterPort(port.ID, lrpName)
	return txn.Commit(ctx)
}

// RemoveRouterInterface deletes the Logical Router Port of an interface port
func (s *TopologySynchronizer) RemoveRouterInterface(ctx context.Context, routerID, portID string) error {
	txn := s.topology.NewTransaction(OpRemoveRouterInterface)
	txn.DeleteLogicalRouterPort(types.OVNName(routerID), types.RouterPortName(portID), false)
	return txn.Commit(ctx)
}
