// Package model defines the virtual network model the synchronizer reads
// and writes alongside: networks, subnets, ports, security groups and
// routers, plus the narrow adapter interfaces over the store that owns them.
//
// The model store is the source of truth. The OVN topology is derived from
// it and never read back into it.
package model

// Security group rule directions
const (
	DirectionIngress = "ingress"
	DirectionEgress  = "egress"
)

// Security group rule ethertypes
const (
	EthertypeIPv4 = "IPv4"
	EthertypeIPv6 = "IPv6"
)

// Security group rule protocols understood by the ACL compiler
const (
	ProtocolTCP  = "tcp"
	ProtocolUDP  = "udp"
	ProtocolICMP = "icmp"
)

// Binding profile keys
const (
	ProfileVtepPhysicalSwitch = "vtep_physical_switch"
	ProfileVtepLogicalSwitch  = "vtep_logical_switch"
	ProfileParentName         = "parent_name"
	ProfileTag                = "tag"
)

// ProviderAttributes bind a network to a physical network.
// They are never stored in the model; only the Logical Switch carries them.
type ProviderAttributes struct {
	PhysicalNetwork string `json:"physical_network,omitempty"`
	NetworkType     string `json:"network_type,omitempty"`
	SegmentationID  *int   `json:"segmentation_id,omitempty"`
}

// IsSet reports whether any provider attribute was given
func (p *ProviderAttributes) IsSet() bool {
	return p != nil && (p.PhysicalNetwork != "" || p.NetworkType != "" || p.SegmentationID != nil)
}

// Network is an L2 network
type Network struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Provider is only populated on create requests
	Provider *ProviderAttributes `json:"provider,omitempty"`
}

// NetworkUpdate carries the fields of a network update; nil means unchanged
type NetworkUpdate struct {
	Name     *string             `json:"name,omitempty"`
	Provider *ProviderAttributes `json:"provider,omitempty"`
}

// Subnet is an IP range on a network
type Subnet struct {
	ID        string `json:"id"`
	NetworkID string `json:"network_id"`
	Name      string `json:"name"`
	CIDR      string `json:"cidr"`
	IPVersion int    `json:"ip_version"`
	GatewayIP string `json:"gateway_ip,omitempty"`
}

// FixedIP is one address of a port. An empty IPAddress asks the model
// store to allocate one from the subnet.
type FixedIP struct {
	SubnetID  string `json:"subnet_id"`
	IPAddress string `json:"ip_address"`
}

// AllowedAddressPair lets a port send from an extra MAC/IP
type AllowedAddressPair struct {
	IPAddress  string `json:"ip_address"`
	MACAddress string `json:"mac_address"`
}

// BindingProfile is the free-form binding:profile of a port as decoded
// from JSON. Values are strings or numbers.
type BindingProfile map[string]interface{}

// Port is a virtual NIC attached to a network
type Port struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	NetworkID           string               `json:"network_id"`
	MACAddress          string               `json:"mac_address"`
	FixedIPs            []FixedIP            `json:"fixed_ips"`
	AdminStateUp        bool                 `json:"admin_state_up"`
	BindingProfile      BindingProfile       `json:"binding_profile,omitempty"`
	AllowedAddressPairs []AllowedAddressPair `json:"allowed_address_pairs,omitempty"`
	SecurityGroups      []string             `json:"security_groups,omitempty"`
	DeviceID            string               `json:"device_id,omitempty"`
	DeviceOwner         string               `json:"device_owner,omitempty"`
}

// SubnetIDs returns the subnet of every fixed IP in order
func (p *Port) SubnetIDs() []string {
	ids := make([]string, 0, len(p.FixedIPs))
	for _, ip := range p.FixedIPs {
		ids = append(ids, ip.SubnetID)
	}
	return ids
}

// PortUpdate carries the fields of a port update; nil means unchanged
type PortUpdate struct {
	Name                *string               `json:"name,omitempty"`
	AdminStateUp        *bool                 `json:"admin_state_up,omitempty"`
	BindingProfile      BindingProfile        `json:"binding_profile,omitempty"`
	AllowedAddressPairs *[]AllowedAddressPair `json:"allowed_address_pairs,omitempty"`
	SecurityGroups      *[]string             `json:"security_groups,omitempty"`
	DeviceID            *string               `json:"device_id,omitempty"`
	DeviceOwner         *string               `json:"device_owner,omitempty"`
}

// PortFilter selects ports; empty fields match everything
type PortFilter struct {
	DeviceID    string
	DeviceOwner string
	NetworkID   string
}

// Matches reports whether the port passes the filter
func (f PortFilter) Matches(p *Port) bool {
	if f.DeviceID != "" && p.DeviceID != f.DeviceID {
		return false
	}
	if f.DeviceOwner != "" && p.DeviceOwner != f.DeviceOwner {
		return false
	}
	if f.NetworkID != "" && p.NetworkID != f.NetworkID {
		return false
	}
	return true
}

// SecurityGroup is a named set of rules
type SecurityGroup struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Rules       []SecurityGroupRule `json:"security_group_rules"`
}

// SecurityGroupUpdate carries the fields of a group update; nil means unchanged
type SecurityGroupUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// SecurityGroupRule allows one class of traffic. Port range bounds of nil
// or -1 are unset. RemoteIPPrefix and RemoteGroupID are mutually exclusive.
type SecurityGroupRule struct {
	ID              string `json:"id"`
	SecurityGroupID string `json:"security_group_id"`
	Direction       string `json:"direction"`
	Ethertype       string `json:"ethertype"`
	Protocol        string `json:"protocol,omitempty"`
	PortRangeMin    *int   `json:"port_range_min,omitempty"`
	PortRangeMax    *int   `json:"port_range_max,omitempty"`
	RemoteIPPrefix  string `json:"remote_ip_prefix,omitempty"`
	RemoteGroupID   string `json:"remote_group_id,omitempty"`
}

// PortSecurityGroupBinding records that a port holds a security group
type PortSecurityGroupBinding struct {
	PortID          string `json:"port_id"`
	SecurityGroupID string `json:"security_group_id"`
}

// Router is an L3 router
type Router struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RouterUpdate carries the fields of a router update; nil means unchanged
type RouterUpdate struct {
	Name *string `json:"name,omitempty"`
}

// RouterInterfaceInfo identifies a router interface by port or by subnet.
// Requests set exactly one of PortID and SubnetID; results carry both.
type RouterInterfaceInfo struct {
	RouterID string `json:"id,omitempty"`
	PortID   string `json:"port_id,omitempty"`
	SubnetID string `json:"subnet_id,omitempty"`
}
