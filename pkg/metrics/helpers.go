// Package metrics provides Prometheus metrics for zstack-ovn-neutron.
package metrics

import (
	"time"
)

// Result constants for metric labels
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Entity constants for sync metrics
const (
	EntityNetwork           = "network"
	EntityPort              = "port"
	EntityRouter            = "router"
	EntityRouterInterface   = "router_interface"
	EntitySecurityGroup     = "security_group"
	EntitySecurityGroupRule = "security_group_rule"
)

// Operation constants for sync metrics
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
	OperationAdd    = "add"
	OperationRemove = "remove"
)

func resultOf(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// RecordOVNOperation records one committed topology transaction
//
// Parameters:
//   - operation: The logical operation the transaction belonged to
//   - err: The error from the commit (nil for success)
//   - duration: The duration of the commit
func RecordOVNOperation(operation string, err error, duration time.Duration) {
	result := resultOf(err)
	OVNOperationDuration.WithLabelValues(operation, result).Observe(duration.Seconds())
	OVNOperationTotal.WithLabelValues(operation, result).Inc()
}

// RecordOVNTransaction records an OVN transaction metric
//
// Parameters:
//   - ops: Number of OVSDB operations in the transaction
//   - duration: The duration of the transaction
func RecordOVNTransaction(ops int, duration time.Duration) {
	OVNTransactionDuration.Observe(duration.Seconds())
	OVNTransactionOperations.Observe(float64(ops))
}

// RecordACLCompile records the outcome of compiling one port's ACLs
//
// Parameters:
//   - entries: ACL entries submitted after deduplication
//   - duplicates: Entries suppressed by deduplication
//   - elided: Rules skipped because their remote group was empty
func RecordACLCompile(entries, duplicates, elided int) {
	ACLEntriesCompiled.Add(float64(entries))
	ACLDuplicatesSuppressed.Add(float64(duplicates))
	ACLRulesElided.Add(float64(elided))
}

// RecordCascadeRefresh records one security group refresh
func RecordCascadeRefresh(ports int, err error) {
	CascadeRefreshTotal.WithLabelValues(resultOf(err)).Inc()
	if err == nil {
		CascadePortsRefreshed.Add(float64(ports))
	}
}

// RecordSyncOperation records a model-level operation
func RecordSyncOperation(entity, operation string, err error) {
	SyncOperationTotal.WithLabelValues(entity, operation, resultOf(err)).Inc()
}

// RecordCompensatingRollback records a model row removed after a topology failure
func RecordCompensatingRollback() {
	CompensatingRollbacks.Inc()
}
