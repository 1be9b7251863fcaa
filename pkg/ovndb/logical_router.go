// Package ovndb provides Logical Router and Logical Router Port operations.
//
// One Logical Router exists per Neutron router. Attaching a subnet adds a
// Logical Router Port named "lrp-<port id>" whose peer is the Neutron port's
// Logical Switch Port (see SetLogicalSwitchPortRouterPortOps).
package ovndb

import (
	"context"
	"errors"

	"github.com/ovn-org/libovsdb/client"
	"github.com/ovn-org/libovsdb/model"
	"github.com/ovn-org/libovsdb/ovsdb"
	"k8s.io/klog/v2"
)

// FindLogicalRouter retrieves a Logical Router by name from the cache
func FindLogicalRouter(ctx context.Context, nb client.Client, name string) (*LogicalRouter, error) {
	if name == "" {
		return nil, NewValidationError("name", name, "name is required")
	}

	var routers []*LogicalRouter
	err := nb.WhereCache(func(lr *LogicalRouter) bool {
		return lr.Name == name
	}).List(ctx, &routers)
	if err != nil {
		return nil, NewTransactionError("FindLogicalRouter", err, name)
	}
	if len(routers) == 0 {
		return nil, NewObjectNotFoundError(LogicalRouterTable, name)
	}
	if len(routers) > 1 {
		klog.Warningf("Found %d logical routers named %s, using %s", len(routers), name, routers[0].UUID)
	}
	return routers[0], nil
}

// FindLogicalRouterPort retrieves a Logical Router Port by name
func FindLogicalRouterPort(ctx context.Context, nb client.Client, name string) (*LogicalRouterPort, error) {
	if name == "" {
		return nil, NewValidationError("name", name, "name is required")
	}

	lrp := &LogicalRouterPort{Name: name}
	if err := nb.Get(ctx, lrp); err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return nil, NewObjectNotFoundError(LogicalRouterPortTable, name)
		}
		return nil, NewTransactionError("FindLogicalRouterPort", err, name)
	}
	return lrp, nil
}

// CreateLogicalRouterOps returns operations that insert a Logical Router
func CreateLogicalRouterOps(nb client.Client, lr *LogicalRouter) ([]ovsdb.Operation, error) {
	if lr.Name == "" {
		return nil, NewValidationError("name", lr.Name, "name is required")
	}
	return nb.Create(lr)
}

// SetLogicalRouterExternalIDsOps returns operations merging ids into the
// router's external_ids
func SetLogicalRouterExternalIDsOps(nb client.Client, lr *LogicalRouter, ids map[string]string) ([]ovsdb.Operation, error) {
	merged := make(map[string]string, len(lr.ExternalIDs)+len(ids))
	for k, v := range lr.ExternalIDs {
		merged[k] = v
	}
	for k, v := range ids {
		merged[k] = v
	}

	update := &LogicalRouter{UUID: lr.UUID, ExternalIDs: merged}
	return nb.Where(update).Update(update, &update.ExternalIDs)
}

// DeleteLogicalRouterOps returns operations deleting the router.
// Its ports are garbage collected by the server.
func DeleteLogicalRouterOps(nb client.Client, lr *LogicalRouter) ([]ovsdb.Operation, error) {
	return nb.Where(&LogicalRouter{UUID: lr.UUID}).Delete()
}

// AddLogicalRouterPortOps returns operations creating lrp and linking it into lr
//
// Parameters:
//   - nb: Connected NB client
//   - lr: Cached router
//   - lrp: New port; its UUID must be a named UUID
//
// Returns:
//   - []ovsdb.Operation: Insert and mutate operations
//   - error: Operation building error
func AddLogicalRouterPortOps(nb client.Client, lr *LogicalRouter, lrp *LogicalRouterPort) ([]ovsdb.Operation, error) {
	if lrp.Name == "" {
		return nil, NewValidationError("name", lrp.Name, "router port name is required")
	}
	if lrp.MAC == "" {
		return nil, NewValidationError("mac", lrp.MAC, "router port MAC is required")
	}
	if len(lrp.Networks) == 0 {
		return nil, NewValidationError("networks", lrp.Networks, "router port needs at least one network")
	}

	createOps, err := nb.Create(lrp)
	if err != nil {
		return nil, err
	}

	target := &LogicalRouter{UUID: lr.UUID}
	mutateOps, err := nb.Where(target).Mutate(target, model.Mutation{
		Field:   &target.Ports,
		Mutator: ovsdb.MutateOperationInsert,
		Value:   []string{lrp.UUID},
	})
	if err != nil {
		return nil, err
	}
	return append(createOps, mutateOps...), nil
}

// DeleteLogicalRouterPortOps returns operations unlinking lrp from lr and deleting it
func DeleteLogicalRouterPortOps(nb client.Client, lr *LogicalRouter, lrp *LogicalRouterPort) ([]ovsdb.Operation, error) {
	target := &LogicalRouter{UUID: lr.UUID}
	mutateOps, err := nb.Where(target).Mutate(target, model.Mutation{
		Field:   &target.Ports,
		Mutator: ovsdb.MutateOperationDelete,
		Value:   []string{lrp.UUID},
	})
	if err != nil {
		return nil, err
	}

	deleteOps, err := nb.Where(&LogicalRouterPort{UUID: lrp.UUID}).Delete()
	if err != nil {
		return nil, err
	}
	return append(mutateOps, deleteOps...), nil
}
