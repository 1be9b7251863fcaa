package modeldb

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/allocator"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "model.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newNetwork creates network net1 with subnet s1 10.0.0.0/29, gateway 10.0.0.1
func newNetwork(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	_, err := s.CreateNetwork(ctx, &model.Network{ID: "net1", Name: "net1"})
	require.NoError(t, err)
	_, err = s.CreateSubnet(ctx, &model.Subnet{ID: "s1", NetworkID: "net1", CIDR: "10.0.0.0/29", GatewayIP: "10.0.0.1"})
	require.NoError(t, err)
}

func intPtr(i int) *int { return &i }

func strPtr(s string) *string { return &s }

func TestOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "model.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = s.CreateNetwork(ctx, &model.Network{ID: "net1", Name: "persisted"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	net, err := s.GetNetwork(ctx, "net1")
	require.NoError(t, err)
	require.Equal(t, "persisted", net.Name)

	_, err = Open(ctx, ":memory:")
	require.Error(t, err)
}

func TestNetworkLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	net, err := s.CreateNetwork(ctx, &model.Network{Name: "blue"})
	require.NoError(t, err)
	_, err = uuid.Parse(net.ID)
	require.NoError(t, err)

	net, err = s.UpdateNetwork(ctx, net.ID, model.NetworkUpdate{Name: strPtr("green")})
	require.NoError(t, err)
	require.Equal(t, "green", net.Name)

	_, err = s.UpdateNetwork(ctx, "missing", model.NetworkUpdate{Name: strPtr("x")})
	require.True(t, model.IsNotFound(err))

	require.NoError(t, s.DeleteNetwork(ctx, net.ID))
	_, err = s.GetNetwork(ctx, net.ID)
	require.True(t, model.IsNotFound(err))
	require.True(t, model.IsNotFound(s.DeleteNetwork(ctx, net.ID)))
}

func TestDeleteNetworkWithPorts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	newNetwork(t, s)
	_, err := s.CreatePort(ctx, &model.Port{ID: "p1", NetworkID: "net1"})
	require.NoError(t, err)

	require.True(t, model.IsConflict(s.DeleteNetwork(ctx, "net1")))

	require.NoError(t, s.DeletePort(ctx, "p1"))
	require.NoError(t, s.DeleteNetwork(ctx, "net1"))
	_, err = s.GetSubnet(ctx, "s1")
	require.True(t, model.IsNotFound(err))
}

func TestCreateSubnet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	newNetwork(t, s)

	v6, err := s.CreateSubnet(ctx, &model.Subnet{NetworkID: "net1", CIDR: "fd00::/64", GatewayIP: "FD00::1"})
	require.NoError(t, err)
	require.Equal(t, 6, v6.IPVersion)
	require.Equal(t, "fd00::1", v6.GatewayIP)

	got, err := s.GetSubnet(ctx, v6.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(v6, got); diff != "" {
		t.Errorf("subnet mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		name   string
		subnet model.Subnet
		check  func(error) bool
	}{
		{
			name:   "unknown network",
			subnet: model.Subnet{NetworkID: "missing", CIDR: "10.1.0.0/24"},
			check:  model.IsNotFound,
		},
		{
			name:   "overlapping",
			subnet: model.Subnet{NetworkID: "net1", CIDR: "10.0.0.0/16"},
			check:  model.IsConflict,
		},
		{
			name:   "host bits",
			subnet: model.Subnet{NetworkID: "net1", CIDR: "10.1.0.1/24"},
			check:  func(err error) bool { return err != nil },
		},
		{
			name:   "gateway outside",
			subnet: model.Subnet{NetworkID: "net1", CIDR: "10.1.0.0/24", GatewayIP: "10.2.0.1"},
			check:  func(err error) bool { return err != nil },
		},
		{
			name:   "gateway is network address",
			subnet: model.Subnet{NetworkID: "net1", CIDR: "10.1.0.0/24", GatewayIP: "10.1.0.0"},
			check:  func(err error) bool { return err != nil },
		},
		{
			name:   "version mismatch",
			subnet: model.Subnet{NetworkID: "net1", CIDR: "10.1.0.0/24", IPVersion: 6},
			check:  func(err error) bool { return err != nil },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateSubnet(ctx, &tt.subnet)
			if !tt.check(err) {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

func TestCreatePort(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	newNetwork(t, s)
	_, err := s.CreateSecurityGroup(ctx, &model.SecurityGroup{ID: "sg1"})
	require.NoError(t, err)

	port, err := s.CreatePort(ctx, &model.Port{
		Name:           "vm1-eth0",
		NetworkID:      "net1",
		AdminStateUp:   true,
		BindingProfile: model.BindingProfile{"parent_name": "vm1", "tag": float64(5)},
		AllowedAddressPairs: []model.AllowedAddressPair{
			{IPAddress: "10.0.0.100", MACAddress: "FA:16:3E:AA:BB:CC"},
		},
		SecurityGroups: []string{"sg1", "sg1"},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(port.MACAddress, "fa:16:3e:"), port.MACAddress)

	want := &model.Port{
		ID:             port.ID,
		Name:           "vm1-eth0",
		NetworkID:      "net1",
		MACAddress:     port.MACAddress,
		FixedIPs:       []model.FixedIP{{SubnetID: "s1", IPAddress: "10.0.0.2"}},
		AdminStateUp:   true,
		BindingProfile: model.BindingProfile{"parent_name": "vm1", "tag": float64(5)},
		AllowedAddressPairs: []model.AllowedAddressPair{
			{IPAddress: "10.0.0.100", MACAddress: "fa:16:3e:aa:bb:cc"},
		},
		SecurityGroups: []string{"sg1"},
	}
	got, err := s.GetPort(ctx, port.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("port mismatch (-want +got):\n%s", diff)
	}

	_, err = s.CreatePort(ctx, &model.Port{NetworkID: "missing"})
	require.True(t, model.IsNotFound(err))
	_, err = s.CreatePort(ctx, &model.Port{NetworkID: "net1", SecurityGroups: []string{"missing"}})
	require.True(t, model.IsNotFound(err))
	_, err = s.CreatePort(ctx, &model.Port{NetworkID: "net1", MACAddress: "bogus"})
	require.Error(t, err)
}

func TestFixedIPAllocation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	newNetwork(t, s)

	create := func(id string, fixedIPs []model.FixedIP) (*model.Port, error) {
		return s.CreatePort(ctx, &model.Port{ID: id, NetworkID: "net1", FixedIPs: fixedIPs})
	}
	addresses := func(p *model.Port) []string {
		var out []string
		for _, ip := range p.FixedIPs {
			out = append(out, ip.IPAddress)
		}
		return out
	}

	p, err := create("p1", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.2"}, addresses(p))

	p, err = create("p2", []model.FixedIP{{IPAddress: "10.0.0.5"}})
	require.NoError(t, err)
	require.Equal(t, []model.FixedIP{{SubnetID: "s1", IPAddress: "10.0.0.5"}}, p.FixedIPs)

	p, err = create("p3", []model.FixedIP{{SubnetID: "s1"}})
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.3"}, addresses(p))

	// The gateway is only handed out on request
	p, err = create("router-port", []model.FixedIP{{SubnetID: "s1", IPAddress: "10.0.0.1"}})
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.1"}, addresses(p))

	_, err = create("dup", []model.FixedIP{{SubnetID: "s1", IPAddress: "10.0.0.5"}})
	require.True(t, allocator.IsAddressInUse(err))
	_, err = create("outside", []model.FixedIP{{SubnetID: "s1", IPAddress: "10.0.1.5"}})
	require.True(t, allocator.IsAddressOutOfRange(err))
	_, err = create("nosubnet", []model.FixedIP{{IPAddress: "192.168.0.5"}})
	require.True(t, model.IsConflict(err))

	p, err = create("none", []model.FixedIP{})
	require.NoError(t, err)
	require.Empty(t, p.FixedIPs)

	// 10.0.0.4 and 10.0.0.6 are left
	_, err = create("p4", nil)
	require.NoError(t, err)
	_, err = create("p5", nil)
	require.NoError(t, err)
	_, err = create("p6", nil)
	require.True(t, allocator.IsSubnetExhausted(err))

	// Deleting a port returns its address
	require.NoError(t, s.DeletePort(ctx, "p3"))
	p, err = create("p7", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.3"}, addresses(p))
}

func TestDualStackDefaultFixedIPs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	newNetwork(t, s)
	_, err := s.CreateSubnet(ctx, &model.Subnet{ID: "s6", NetworkID: "net1", CIDR: "fd00::/64", GatewayIP: "fd00::1"})
	require.NoError(t, err)
	_, err = s.CreateSubnet(ctx, &model.Subnet{ID: "s1b", NetworkID: "net1", CIDR: "10.0.1.0/24"})
	require.NoError(t, err)

	p, err := s.CreatePort(ctx, &model.Port{NetworkID: "net1"})
	require.NoError(t, err)
	require.Equal(t, []model.FixedIP{
		{SubnetID: "s1", IPAddress: "10.0.0.2"},
		{SubnetID: "s6", IPAddress: "fd00::2"},
	}, p.FixedIPs)
}

func TestUpdatePort(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	newNetwork(t, s)
	for _, id := range []string{"sg1", "sg2"} {
		_, err := s.CreateSecurityGroup(ctx, &model.SecurityGroup{ID: id})
		require.NoError(t, err)
	}
	_, err := s.CreatePort(ctx, &model.Port{
		ID:             "p1",
		NetworkID:      "net1",
		BindingProfile: model.BindingProfile{"parent_name": "vm1", "tag": float64(5)},
		SecurityGroups: []string{"sg1"},
	})
	require.NoError(t, err)

	up := false
	groups := []string{"sg2"}
	pairs := []model.AllowedAddressPair{{IPAddress: "10.0.0.64/26"}}
	p, err := s.UpdatePort(ctx, "p1", model.PortUpdate{
		Name:                strPtr("renamed"),
		AdminStateUp:        &up,
		AllowedAddressPairs: &pairs,
		SecurityGroups:      &groups,
		DeviceID:            strPtr("vm1"),
		DeviceOwner:         strPtr("compute:nova"),
	})
	require.NoError(t, err)
	require.Equal(t, "renamed", p.Name)
	require.False(t, p.AdminStateUp)
	require.Equal(t, pairs, p.AllowedAddressPairs)
	require.Equal(t, []string{"sg2"}, p.SecurityGroups)
	require.Equal(t, "vm1", p.DeviceID)
	require.Equal(t, "compute:nova", p.DeviceOwner)
	// A nil profile leaves the stored one
	require.Equal(t, model.BindingProfile{"parent_name": "vm1", "tag": float64(5)}, p.BindingProfile)

	p, err = s.UpdatePort(ctx, "p1", model.PortUpdate{BindingProfile: model.BindingProfile{"vtep_physical_switch": "sw", "vtep_logical_switch": "ls"}})
	require.NoError(t, err)
	require.Equal(t, model.BindingProfile{"vtep_physical_switch": "sw", "vtep_logical_switch": "ls"}, p.BindingProfile)

	missing := []string{"missing"}
	_, err = s.UpdatePort(ctx, "p1", model.PortUpdate{SecurityGroups: &missing})
	require.True(t, model.IsNotFound(err))
	p, err = s.GetPort(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, []string{"sg2"}, p.SecurityGroups)

	_, err = s.UpdatePort(ctx, "missing", model.PortUpdate{Name: strPtr("x")})
	require.True(t, model.IsNotFound(err))
}

func TestGetPorts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	newNetwork(t, s)
	_, err := s.CreateNetwork(ctx, &model.Network{ID: "net2"})
	require.NoError(t, err)

	ports := []model.Port{
		{ID: "a", NetworkID: "net1", DeviceID: "r1", DeviceOwner: types.DeviceOwnerRouterInterface},
		{ID: "b", NetworkID: "net1", DeviceID: "vm1", DeviceOwner: "compute:nova"},
		{ID: "c", NetworkID: "net2", DeviceID: "r1", DeviceOwner: types.DeviceOwnerRouterInterface},
	}
	for i := range ports {
		_, err := s.CreatePort(ctx, &ports[i])
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter model.PortFilter
		want   []string
	}{
		{name: "all", want: []string{"a", "b", "c"}},
		{name: "device", filter: model.PortFilter{DeviceID: "r1"}, want: []string{"a", "c"}},
		{name: "network", filter: model.PortFilter{NetworkID: "net1"}, want: []string{"a", "b"}},
		{
			name:   "router interfaces on net2",
			filter: model.PortFilter{DeviceID: "r1", DeviceOwner: types.DeviceOwnerRouterInterface, NetworkID: "net2"},
			want:   []string{"c"},
		},
		{name: "no match", filter: model.PortFilter{DeviceID: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GetPorts(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			require.Equal(t, tt.want, ids)
		})
	}
}

func TestSecurityGroups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	newNetwork(t, s)

	web, err := s.CreateSecurityGroup(ctx, &model.SecurityGroup{
		ID:   "web",
		Name: "web",
		Rules: []model.SecurityGroupRule{
			{ID: "r1", Direction: model.DirectionIngress, Ethertype: model.EthertypeIPv4, Protocol: model.ProtocolTCP,
				PortRangeMin: intPtr(0), PortRangeMax: intPtr(80), RemoteGroupID: "web"},
			{ID: "r2", Direction: model.DirectionEgress, Ethertype: model.EthertypeIPv6},
		},
	})
	require.NoError(t, err)
	want := []model.SecurityGroupRule{
		{ID: "r1", SecurityGroupID: "web", Direction: model.DirectionIngress, Ethertype: model.EthertypeIPv4,
			Protocol: model.ProtocolTCP, PortRangeMin: intPtr(0), PortRangeMax: intPtr(80), RemoteGroupID: "web"},
		{ID: "r2", SecurityGroupID: "web", Direction: model.DirectionEgress, Ethertype: model.EthertypeIPv6},
	}
	if diff := cmp.Diff(want, web.Rules); diff != "" {
		t.Errorf("rules mismatch (-want +got):\n%s", diff)
	}

	_, err = s.CreateSecurityGroup(ctx, &model.SecurityGroup{ID: "db"})
	require.NoError(t, err)
	rule, err := s.CreateSecurityGroupRule(ctx, &model.SecurityGroupRule{
		SecurityGroupID: "db",
		Direction:       model.DirectionIngress,
		Ethertype:       model.EthertypeIPv4,
		Protocol:        model.ProtocolTCP,
		PortRangeMin:    intPtr(5432),
		PortRangeMax:    intPtr(5432),
		RemoteGroupID:   "web",
	})
	require.NoError(t, err)
	got, err := s.GetSecurityGroupRule(ctx, rule.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(rule, got); diff != "" {
		t.Errorf("rule mismatch (-want +got):\n%s", diff)
	}

	remote, err := s.GetSecurityGroupRulesByRemoteGroup(ctx, "web")
	require.NoError(t, err)
	ids := []string{}
	for _, r := range remote {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"r1", rule.ID}, ids, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("remote rules mismatch (-want +got):\n%s", diff)
	}

	_, err = s.CreateSecurityGroupRule(ctx, &model.SecurityGroupRule{SecurityGroupID: "db", RemoteGroupID: "missing"})
	require.True(t, model.IsNotFound(err))
	_, err = s.CreateSecurityGroupRule(ctx, &model.SecurityGroupRule{SecurityGroupID: "missing"})
	require.True(t, model.IsNotFound(err))

	for _, id := range []string{"p2", "p1"} {
		_, err := s.CreatePort(ctx, &model.Port{ID: id, NetworkID: "net1", SecurityGroups: []string{"web"}})
		require.NoError(t, err)
	}
	bindings, err := s.GetPortSecurityGroupBindings(ctx, "web")
	require.NoError(t, err)
	require.Equal(t, []model.PortSecurityGroupBinding{
		{PortID: "p1", SecurityGroupID: "web"},
		{PortID: "p2", SecurityGroupID: "web"},
	}, bindings)

	sg, err := s.UpdateSecurityGroup(ctx, "web", model.SecurityGroupUpdate{Description: strPtr("frontends")})
	require.NoError(t, err)
	require.Equal(t, "web", sg.Name)
	require.Equal(t, "frontends", sg.Description)

	require.True(t, model.IsConflict(s.DeleteSecurityGroup(ctx, "web")))
	require.NoError(t, s.DeletePort(ctx, "p1"))
	require.NoError(t, s.DeletePort(ctx, "p2"))
	require.NoError(t, s.DeleteSecurityGroup(ctx, "web"))

	// Rules naming the deleted group as remote go with it
	_, err = s.GetSecurityGroupRule(ctx, rule.ID)
	require.True(t, model.IsNotFound(err))
	require.True(t, model.IsNotFound(s.DeleteSecurityGroupRule(ctx, "r9")))
}

func TestRouterInterfaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	newNetwork(t, s)

	router, err := s.CreateRouter(ctx, &model.Router{Name: "r"})
	require.NoError(t, err)
	router, err = s.UpdateRouter(ctx, router.ID, model.RouterUpdate{Name: strPtr("edge")})
	require.NoError(t, err)
	require.Equal(t, "edge", router.Name)

	_, err = s.CreatePort(ctx, &model.Port{ID: "gw", NetworkID: "net1", FixedIPs: []model.FixedIP{{SubnetID: "s1", IPAddress: "10.0.0.1"}}})
	require.NoError(t, err)
	_, err = s.CreatePort(ctx, &model.Port{ID: "bare", NetworkID: "net1", FixedIPs: []model.FixedIP{}})
	require.NoError(t, err)
	_, err = s.CreatePort(ctx, &model.Port{ID: "vm", NetworkID: "net1", DeviceID: "vm1"})
	require.NoError(t, err)

	_, err = s.AddRouterInterface(ctx, router.ID, model.RouterInterfaceInfo{PortID: "bare"})
	require.True(t, model.IsConflict(err))
	_, err = s.AddRouterInterface(ctx, router.ID, model.RouterInterfaceInfo{PortID: "vm"})
	require.True(t, model.IsConflict(err))
	_, err = s.AddRouterInterface(ctx, "missing", model.RouterInterfaceInfo{PortID: "gw"})
	require.True(t, model.IsNotFound(err))

	info, err := s.AddRouterInterface(ctx, router.ID, model.RouterInterfaceInfo{PortID: "gw"})
	require.NoError(t, err)
	require.Equal(t, &model.RouterInterfaceInfo{RouterID: router.ID, PortID: "gw", SubnetID: "s1"}, info)
	port, err := s.GetPort(ctx, "gw")
	require.NoError(t, err)
	require.Equal(t, router.ID, port.DeviceID)
	require.Equal(t, types.DeviceOwnerRouterInterface, port.DeviceOwner)

	require.True(t, model.IsConflict(s.DeleteRouter(ctx, router.ID)))

	info, err = s.RemoveRouterInterface(ctx, router.ID, model.RouterInterfaceInfo{PortID: "gw"})
	require.NoError(t, err)
	require.Equal(t, "s1", info.SubnetID)
	port, err = s.GetPort(ctx, "gw")
	require.NoError(t, err)
	require.Empty(t, port.DeviceID)
	require.Empty(t, port.DeviceOwner)

	_, err = s.RemoveRouterInterface(ctx, router.ID, model.RouterInterfaceInfo{PortID: "gw"})
	require.True(t, model.IsNotFound(err))
	_, err = s.RemoveRouterInterface(ctx, router.ID, model.RouterInterfaceInfo{PortID: "missing"})
	require.True(t, model.IsNotFound(err))

	require.NoError(t, s.DeleteRouter(ctx, router.ID))
	_, err = s.GetRouter(ctx, router.ID)
	require.True(t, model.IsNotFound(err))
}
