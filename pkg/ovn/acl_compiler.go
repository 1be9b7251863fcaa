// Package ovn provides the security group to ACL compiler.
//
// ACL Mapping:
// - Every secured port gets a drop-all ACL per direction at priority 1001
// - DHCP replies from the port's IPv4 subnets are allowed at priority 1002
// - Each security group rule becomes an allow-related ACL at priority 1002
// - Ingress rules map to "to-lport", egress rules to "from-lport"
//
// All ACLs of a port carry the external id neutron:lport=<port id> so that
// they can be found and replaced as a set.
//
// Reference: OVN-Kubernetes pkg/ovn/controller/network_policy.go
package ovn

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/metrics"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/ovndb"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/types"
)

// aclKey identifies an ACL for deduplication
type aclKey struct {
	direction string
	priority  int
	action    string
	match     string
}

func keyOf(acl *ovndb.ACL) aclKey {
	return aclKey{direction: acl.Direction, priority: acl.Priority, action: acl.Action, match: acl.Match}
}

// aclSet keeps ACLs in insertion order and drops repeats
type aclSet struct {
	seen       sets.Set[aclKey]
	entries    []*ovndb.ACL
	duplicates int
}

func newACLSet() *aclSet {
	return &aclSet{seen: sets.New[aclKey]()}
}

func (s *aclSet) add(acl *ovndb.ACL) {
	k := keyOf(acl)
	if s.seen.Has(k) {
		s.duplicates++
		return
	}
	s.seen.Insert(k)
	s.entries = append(s.entries, acl)
}

// ACLCompiler compiles the security groups of a port into ACLs.
// It holds no state; reads go through the caller's CompileContext.
type ACLCompiler struct{}

// NewACLCompiler creates a compiler
func NewACLCompiler() *ACLCompiler {
	return &ACLCompiler{}
}

// Compile returns the deduplicated ACLs of a port in generation order.
// A port without security groups gets none.
func (c *ACLCompiler) Compile(ctx context.Context, cc *CompileContext, port *model.Port) ([]*ovndb.ACL, error) {
	if len(port.SecurityGroups) == 0 {
		return nil, nil
	}

	extIDs := map[string]string{types.ExternalIDLogicalPort: port.ID}
	acls := newACLSet()

	// Default deny
	for _, dir := range []struct{ direction, field string }{
		{ovndb.ACLDirectionFromLport, FieldInport},
		{ovndb.ACLDirectionToLport, FieldOutport},
	} {
		acls.add(ovndb.BuildACL(dir.direction, types.ACLPriorityDrop,
			DropAllMatch(dir.field, port.ID), ovndb.ACLActionDrop, extIDs))
	}

	// DHCP replies, whether or not the subnet has DHCP enabled
	for _, ip := range port.FixedIPs {
		subnet, err := cc.Subnet(ctx, ip.SubnetID)
		if err != nil {
			return nil, fmt.Errorf("failed to get subnet %s of port %s: %w", ip.SubnetID, port.ID, err)
		}
		if subnet.IPVersion != 4 {
			continue
		}
		acls.add(ovndb.BuildACL(ovndb.ACLDirectionToLport, types.ACLPriorityAllow,
			DHCPReplyMatch(port.ID, subnet.CIDR), ovndb.ACLActionAllow, extIDs))
	}

	elided := 0
	for _, sgID := range port.SecurityGroups {
		sg, err := cc.SecurityGroup(ctx, sgID)
		if err != nil {
			return nil, fmt.Errorf("failed to get security group %s of port %s: %w", sgID, port.ID, err)
		}
		for i := range sg.Rules {
			rule := &sg.Rules[i]
			var members []string
			if rule.RemoteGroupID != "" {
				bindings, err := cc.Bindings(ctx, rule.RemoteGroupID)
				if err != nil {
					return nil, fmt.Errorf("failed to get ports of remote group %s: %w", rule.RemoteGroupID, err)
				}
				members = RemoteGroupMembers(bindings, port.ID)
			}
			match, ok := BuildRuleMatch(rule, port.ID, members)
			if !ok {
				elided++
				continue
			}
			direction, _, _ := ruleDirection(rule.Direction)
			acls.add(ovndb.BuildACL(direction, types.ACLPriorityAllow, match, ovndb.ACLActionAllowRelated, extIDs))
		}
	}

	metrics.RecordACLCompile(len(acls.entries), acls.duplicates, elided)
	return acls.entries, nil
}

// AddPortACLs compiles the port's ACLs into txn on switchName. The caller
// is responsible for deleting the previous set in the same transaction.
func (c *ACLCompiler) AddPortACLs(ctx context.Context, cc *CompileContext, txn ovndb.Transaction, switchName string, port *model.Port) error {
	acls, err := c.Compile(ctx, cc, port)
	if err != nil {
		return err
	}
	for _, acl := range acls {
		txn.AddACL(switchName, acl)
	}
	return nil
}

// ReplacePortACLs deletes the port's ACLs and adds the freshly compiled set
func (c *ACLCompiler) ReplacePortACLs(ctx context.Context, cc *CompileContext, txn ovndb.Transaction, switchName string, port *model.Port) error {
	txn.DeletePortACLs(switchName, port.ID)
	return c.AddPortACLs(ctx, cc, txn, switchName, port)
}
