// Package ovndb provides OVN Northbound database models and operations.
//
// This file defines the subset of the OVN Northbound schema the Neutron
// synchronizer writes to:
// - Logical_Switch: one per Neutron network, or one per provider-network port
// - Logical_Switch_Port: one per Neutron port, plus localnet ports
// - Logical_Router: one per Neutron router
// - Logical_Router_Port: one per router interface
// - ACL: security group rules compiled per port
//
// Only columns that the synchronizer reads or writes are mapped, so the model
// validates against older NB schemas as well.
package ovndb

import (
	"github.com/ovn-org/libovsdb/model"
)

// LogicalSwitch represents an OVN Logical Switch
//
// Key fields:
// - Name: derived from the Neutron network id (or port id for provider ports)
// - Ports: logical switch port UUIDs
// - ACLs: ACL UUIDs applied to this switch
// - ExternalIDs: network name and provider attributes
type LogicalSwitch struct {
	UUID        string            `ovsdb:"_uuid"`
	Name        string            `ovsdb:"name"`
	Ports       []string          `ovsdb:"ports"`
	ACLs        []string          `ovsdb:"acls"`
	OtherConfig map[string]string `ovsdb:"other_config"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
}

// LogicalSwitchPort represents an OVN Logical Switch Port
//
// Key fields:
// - Name: the Neutron port id, or "provnet-<port id>" for localnet ports
// - Addresses: "MAC IP..." entries, "unknown" for vtep and localnet ports
// - Type: "" for VIF ports, "localnet", "vtep" or "router"
// - Options: vtep bindings, network_name for localnet, router-port for router
// - PortSecurity: allowed MAC set
// - ParentName/Tag: container sub-interface (trunk) binding
type LogicalSwitchPort struct {
	UUID         string            `ovsdb:"_uuid"`
	Name         string            `ovsdb:"name"`
	Addresses    []string          `ovsdb:"addresses"`
	Type         string            `ovsdb:"type"`
	Options      map[string]string `ovsdb:"options"`
	PortSecurity []string          `ovsdb:"port_security"`
	ExternalIDs  map[string]string `ovsdb:"external_ids"`
	Enabled      *bool             `ovsdb:"enabled"`
	Up           *bool             `ovsdb:"up"`
	ParentName   *string           `ovsdb:"parent_name"`
	Tag          *int              `ovsdb:"tag"`
}

// LogicalRouter represents an OVN Logical Router
type LogicalRouter struct {
	UUID        string            `ovsdb:"_uuid"`
	Name        string            `ovsdb:"name"`
	Ports       []string          `ovsdb:"ports"`
	Options     map[string]string `ovsdb:"options"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
	Enabled     *bool             `ovsdb:"enabled"`
}

// LogicalRouterPort represents an OVN Logical Router Port
type LogicalRouterPort struct {
	UUID        string            `ovsdb:"_uuid"`
	Name        string            `ovsdb:"name"`
	Networks    []string          `ovsdb:"networks"`
	MAC         string            `ovsdb:"mac"`
	Peer        *string           `ovsdb:"peer"`
	Options     map[string]string `ovsdb:"options"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
	Enabled     *bool             `ovsdb:"enabled"`
}

// ACL represents an OVN Access Control List entry
//
// Key fields:
// - Direction: "from-lport" (egress) or "to-lport" (ingress)
// - Priority: Higher priority rules are evaluated first (0-32767)
// - Match: OVN match expression (e.g., `outport == "p1" && ip4`)
// - Action: "allow", "allow-related" or "drop"
// - ExternalIDs: owning logical port
type ACL struct {
	UUID        string            `ovsdb:"_uuid"`
	Name        *string           `ovsdb:"name"`
	Direction   string            `ovsdb:"direction"`
	Priority    int               `ovsdb:"priority"`
	Match       string            `ovsdb:"match"`
	Action      string            `ovsdb:"action"`
	Log         bool              `ovsdb:"log"`
	Severity    *string           `ovsdb:"severity"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
}

// ACL direction constants
const (
	ACLDirectionFromLport = "from-lport" // Egress traffic (from port)
	ACLDirectionToLport   = "to-lport"   // Ingress traffic (to port)
)

// ACL action constants
const (
	ACLActionAllow        = "allow"         // Allow the packet
	ACLActionAllowRelated = "allow-related" // Allow and track connection
	ACLActionDrop         = "drop"          // Silently drop the packet
)

// Table name constants
const (
	LogicalSwitchTable     = "Logical_Switch"
	LogicalSwitchPortTable = "Logical_Switch_Port"
	LogicalRouterTable     = "Logical_Router"
	LogicalRouterPortTable = "Logical_Router_Port"
	ACLTable               = "ACL"
)

// NBDBModel returns the database model for OVN Northbound database
func NBDBModel() (model.ClientDBModel, error) {
	return model.NewClientDBModel("OVN_Northbound", map[string]model.Model{
		LogicalSwitchTable:     &LogicalSwitch{},
		LogicalSwitchPortTable: &LogicalSwitchPort{},
		LogicalRouterTable:     &LogicalRouter{},
		LogicalRouterPortTable: &LogicalRouterPort{},
		ACLTable:               &ACL{},
	})
}
