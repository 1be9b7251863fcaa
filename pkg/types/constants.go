// Package types provides type definitions and constants.
//
// This package contains:
// - Derived OVN object names for Neutron resources
// - External id keys shared with the resync collaborator
// - ACL priorities
// - Neutron device owners and provider network types
package types

import "fmt"

const (
	// Provider network types
	NetworkTypeFlat = "flat"
	NetworkTypeVlan = "vlan"

	// Neutron device owners
	DeviceOwnerRouterInterface = "network:router_interface"

	// Default router name written when a router has none
	DefaultRouterName = "no_router_name"
)

// External id keys. The resync collaborator reads these to decide which NB
// rows belong to which Neutron resource, so they must stay stable.
const (
	ExternalIDNetworkName = "neutron:network_name"
	ExternalIDPortName    = "neutron:port_name"
	ExternalIDRouterName  = "neutron:router_name"

	// ExternalIDLogicalPort tags each ACL with the port it was compiled for
	ExternalIDLogicalPort = "neutron:lport"

	ExternalIDPhysicalNetwork = "neutron:provnet-physical-network"
	ExternalIDNetworkType     = "neutron:provnet-network-type"
	ExternalIDSegmentationID  = "neutron:provnet-segmentation-id"
)

// ACL priorities
const (
	ACLPriorityDrop  = 1001
	ACLPriorityAllow = 1002
)

// VLAN tag bounds accepted in a trunk binding profile
const (
	MinVlanTag = 0
	MaxVlanTag = 4095
)

// OVNName returns the OVN object name derived from a Neutron id
func OVNName(id string) string {
	return fmt.Sprintf("neutron-%s", id)
}

// LocalnetPortName returns the name of the localnet port in a provider
// port's private switch
func LocalnetPortName(portID string) string {
	return fmt.Sprintf("provnet-%s", portID)
}

// RouterPortName returns the Logical Router Port name for a router interface port
func RouterPortName(portID string) string {
	return fmt.Sprintf("lrp-%s", portID)
}
