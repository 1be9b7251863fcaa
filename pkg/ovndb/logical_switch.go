// Package ovndb provides Logical Switch operations.
//
// A Logical Switch is created for every Neutron network, and for every port
// on a provider network (the port's private switch). The NB schema does not
// index Logical_Switch by name, so lookups scan the monitor cache with a
// predicate and writes address the row by UUID.
//
// Every *Ops function returns operations for a composite transaction instead
// of executing them, so that callers can commit a whole logical change at once.
//
// Reference: OVN-Kubernetes pkg/libovsdb/ops/switch.go
package ovndb

import (
	"context"
	"fmt"

	"github.com/ovn-org/libovsdb/client"
	"github.com/ovn-org/libovsdb/model"
	"github.com/ovn-org/libovsdb/ovsdb"
	"k8s.io/klog/v2"
)

// FindLogicalSwitch retrieves a Logical Switch by name from the cache
//
// Parameters:
//   - ctx: Context for cancellation
//   - nb: Connected NB client
//   - name: Name of the switch to retrieve
//
// Returns:
//   - *LogicalSwitch: The found switch
//   - error: ObjectNotFoundError if not found, or other error
func FindLogicalSwitch(ctx context.Context, nb client.Client, name string) (*LogicalSwitch, error) {
	if name == "" {
		return nil, NewValidationError("name", name, "name is required")
	}

	var switches []*LogicalSwitch
	err := nb.WhereCache(func(ls *LogicalSwitch) bool {
		return ls.Name == name
	}).List(ctx, &switches)
	if err != nil {
		return nil, NewTransactionError("FindLogicalSwitch", err, name)
	}
	if len(switches) == 0 {
		return nil, NewObjectNotFoundError(LogicalSwitchTable, name)
	}
	if len(switches) > 1 {
		klog.Warningf("Found %d logical switches named %s, using %s", len(switches), name, switches[0].UUID)
	}
	return switches[0], nil
}

// CreateLogicalSwitchOps returns operations that insert a Logical Switch
//
// ls.UUID should be a named UUID when other operations in the same
// transaction reference the switch.
func CreateLogicalSwitchOps(nb client.Client, ls *LogicalSwitch) ([]ovsdb.Operation, error) {
	if ls.Name == "" {
		return nil, NewValidationError("name", ls.Name, "name is required")
	}
	return nb.Create(ls)
}

// DeleteLogicalSwitchOps returns operations that delete an existing switch.
// Its ports and ACLs are garbage collected by the server.
func DeleteLogicalSwitchOps(nb client.Client, ls *LogicalSwitch) ([]ovsdb.Operation, error) {
	return nb.Where(&LogicalSwitch{UUID: ls.UUID}).Delete()
}

// SetLogicalSwitchExternalIDsOps returns operations that merge ids into the
// switch's external_ids, overwriting existing keys
//
// Parameters:
//   - nb: Connected NB client
//   - ls: Cached switch the ids are merged into
//   - ids: External ids to set
//
// Returns:
//   - []ovsdb.Operation: Update operations
//   - error: Operation building error
func SetLogicalSwitchExternalIDsOps(nb client.Client, ls *LogicalSwitch, ids map[string]string) ([]ovsdb.Operation, error) {
	merged := make(map[string]string, len(ls.ExternalIDs)+len(ids))
	for k, v := range ls.ExternalIDs {
		merged[k] = v
	}
	for k, v := range ids {
		merged[k] = v
	}

	update := &LogicalSwitch{UUID: ls.UUID, ExternalIDs: merged}
	return nb.Where(update).Update(update, &update.ExternalIDs)
}

// AddPortsToLogicalSwitchOps returns a mutation inserting port UUIDs into the switch
func AddPortsToLogicalSwitchOps(nb client.Client, ls *LogicalSwitch, portUUIDs ...string) ([]ovsdb.Operation, error) {
	return mutateLogicalSwitchSet(nb, ls, "ports", ovsdb.MutateOperationInsert, portUUIDs)
}

// RemovePortsFromLogicalSwitchOps returns a mutation removing port UUIDs from the switch
func RemovePortsFromLogicalSwitchOps(nb client.Client, ls *LogicalSwitch, portUUIDs ...string) ([]ovsdb.Operation, error) {
	return mutateLogicalSwitchSet(nb, ls, "ports", ovsdb.MutateOperationDelete, portUUIDs)
}

// AddACLsToLogicalSwitchOps returns a mutation inserting ACL UUIDs into the switch
func AddACLsToLogicalSwitchOps(nb client.Client, ls *LogicalSwitch, aclUUIDs ...string) ([]ovsdb.Operation, error) {
	return mutateLogicalSwitchSet(nb, ls, "acls", ovsdb.MutateOperationInsert, aclUUIDs)
}

// RemoveACLsFromLogicalSwitchOps returns a mutation removing ACL UUIDs from the switch
func RemoveACLsFromLogicalSwitchOps(nb client.Client, ls *LogicalSwitch, aclUUIDs ...string) ([]ovsdb.Operation, error) {
	return mutateLogicalSwitchSet(nb, ls, "acls", ovsdb.MutateOperationDelete, aclUUIDs)
}

func mutateLogicalSwitchSet(nb client.Client, ls *LogicalSwitch, column string, mutator ovsdb.Mutator, uuids []string) ([]ovsdb.Operation, error) {
	if len(uuids) == 0 {
		return nil, nil
	}

	target := &LogicalSwitch{UUID: ls.UUID}
	var field interface{}
	switch column {
	case "ports":
		field = &target.Ports
	case "acls":
		field = &target.ACLs
	default:
		return nil, fmt.Errorf("unsupported Logical_Switch column %q", column)
	}

	return nb.Where(target).Mutate(target, model.Mutation{
		Field:   field,
		Mutator: mutator,
		Value:   uuids,
	})
}
