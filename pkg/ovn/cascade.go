package ovn

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/logging"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/metrics"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
)

// RemoteRuleReader finds the rules that reference a group as remote group
type RemoteRuleReader interface {
	GetSecurityGroupRulesByRemoteGroup(ctx context.Context, groupID string) ([]model.SecurityGroupRule, error)
}

// CascadeRefresher regenerates the ACLs of every port affected by a
// security group change
type CascadeRefresher struct {
	topology TopologyStore
	rules    RemoteRuleReader
	compiler *ACLCompiler
}

// NewCascadeRefresher creates a refresher
func NewCascadeRefresher(topology TopologyStore, rules RemoteRuleReader, compiler *ACLCompiler) *CascadeRefresher {
	return &CascadeRefresher{topology: topology, rules: rules, compiler: compiler}
}

// RefreshSecurityGroup regenerates the ACLs of every port bound to groupID
// except those in exclude, in one transaction. It returns the number of
// ports refreshed.
func (r *CascadeRefresher) RefreshSecurityGroup(ctx context.Context, cc *CompileContext, groupID string, exclude sets.Set[string]) (refreshed int, err error) {
	defer func() {
		metrics.RecordCascadeRefresh(refreshed, err)
	}()

	bindings, err := cc.Bindings(ctx, groupID)
	if err != nil {
		return 0, fmt.Errorf("failed to get ports of security group %s: %w", groupID, err)
	}

	txn := r.topology.NewTransaction(OpRefreshSecurityGroup)
	for _, b := range bindings {
		if exclude.Has(b.PortID) {
			continue
		}
		port, err := cc.Port(ctx, b.PortID)
		if err != nil {
			return 0, fmt.Errorf("failed to get port %s: %w", b.PortID, err)
		}
		home, err := cc.HomeSwitch(ctx, port)
		if err != nil {
			return 0, err
		}
		if err := r.compiler.ReplacePortACLs(ctx, cc, txn, home, port); err != nil {
			return 0, err
		}
		refreshed++
	}

	if err := txn.Commit(ctx); err != nil {
		return 0, err
	}
	logging.LoggerForSecurityGroup(ctx, groupID).Debug("Refreshed security group ACLs", "ports", refreshed)
	return refreshed, nil
}

// RefreshRemoteSecurityGroup refreshes every group holding a rule whose
// remote group is groupID. Remote group matches list member ports, so a
// membership change of groupID invalidates them. The first failing group
// stops the cascade; groups already committed stay committed.
func (r *CascadeRefresher) RefreshRemoteSecurityGroup(ctx context.Context, cc *CompileContext, groupID string, exclude sets.Set[string]) error {
	rules, err := r.rules.GetSecurityGroupRulesByRemoteGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("failed to get rules referencing security group %s: %w", groupID, err)
	}

	owners := sets.New[string]()
	for _, rule := range rules {
		owners.Insert(rule.SecurityGroupID)
	}
	for _, owner := range sets.List(owners) {
		if _, err := r.RefreshSecurityGroup(ctx, cc, owner, exclude); err != nil {
			return fmt.Errorf("failed to refresh security group %s referencing %s: %w", owner, groupID, err)
		}
	}
	return nil
}
