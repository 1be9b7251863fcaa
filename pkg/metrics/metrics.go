// Package metrics provides Prometheus metrics for zstack-ovn-neutron.
//
// This package exposes metrics for monitoring the Neutron to OVN synchronizer:
// - OVN NB transaction latency and size
// - Topology operation counts per logical operation (success/failure)
// - ACL compilation output (entries, suppressed duplicates, elided rules)
// - Cascade refresh activity
// - Model/topology synchronization results and compensating rollbacks
//
// Metrics are registered with the controller-runtime registry and served by
// the serve-metrics command.
//
// Reference: OVN-Kubernetes pkg/metrics/
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	// Namespace is the Prometheus metrics namespace
	Namespace = "zstack_ovn_neutron"

	// Subsystem names for different metric categories
	SubsystemOVN     = "ovn"
	SubsystemACL     = "acl"
	SubsystemCascade = "cascade"
	SubsystemSync    = "sync"
)

var (
	// registerOnce ensures metrics are registered only once
	registerOnce sync.Once

	// ---- OVN Database Metrics ----

	// OVNOperationDuration measures the time taken to commit one logical operation
	// Labels: operation (create_port/refresh_security_group/etc), result (success/failure)
	OVNOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemOVN,
			Name:      "operation_duration_seconds",
			Help:      "Time taken for OVN topology operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation", "result"},
	)

	// OVNOperationTotal counts committed logical operations
	// Labels: operation, result (success/failure)
	OVNOperationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemOVN,
			Name:      "operations_total",
			Help:      "Total number of OVN topology operations",
		},
		[]string{"operation", "result"},
	)

	// OVNTransactionDuration measures the time taken for OVN transactions
	OVNTransactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemOVN,
			Name:      "transaction_duration_seconds",
			Help:      "Time taken for OVN database transactions in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// OVNTransactionOperations measures how many OVSDB operations a transaction carries
	OVNTransactionOperations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemOVN,
			Name:      "transaction_operations",
			Help:      "Number of OVSDB operations per transaction",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// ---- ACL Compiler Metrics ----

	// ACLEntriesCompiled counts ACL entries submitted to transactions
	ACLEntriesCompiled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemACL,
			Name:      "entries_compiled_total",
			Help:      "Total number of ACL entries compiled",
		},
	)

	// ACLDuplicatesSuppressed counts entries dropped by deduplication
	ACLDuplicatesSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemACL,
			Name:      "duplicates_suppressed_total",
			Help:      "Total number of duplicate ACL entries suppressed before submission",
		},
	)

	// ACLRulesElided counts rules skipped because their remote group had no other members
	ACLRulesElided = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemACL,
			Name:      "rules_elided_total",
			Help:      "Total number of security group rules with an empty remote group",
		},
	)

	// ---- Cascade Metrics ----

	// CascadeRefreshTotal counts per-group ACL refreshes
	// Labels: result (success/failure)
	CascadeRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemCascade,
			Name:      "refresh_total",
			Help:      "Total number of security group ACL refreshes",
		},
		[]string{"result"},
	)

	// CascadePortsRefreshed counts ports whose ACLs were regenerated by a cascade
	CascadePortsRefreshed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemCascade,
			Name:      "ports_refreshed_total",
			Help:      "Total number of ports whose ACLs were regenerated by a cascade refresh",
		},
	)

	// ---- Sync Metrics ----

	// SyncOperationTotal counts model-level operations
	// Labels: entity (network/port/router/...), operation (create/update/delete/...), result
	SyncOperationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSync,
			Name:      "operations_total",
			Help:      "Total number of model operations synchronized to OVN",
		},
		[]string{"entity", "operation", "result"},
	)

	// CompensatingRollbacks counts model rows deleted after a topology failure
	CompensatingRollbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSync,
			Name:      "compensating_rollbacks_total",
			Help:      "Total number of model rows removed because the topology write failed",
		},
	)
)

// Register registers all metrics with the controller-runtime metrics registry.
// This function is safe to call multiple times; metrics will only be registered once.
func Register() {
	registerOnce.Do(func() {
		// OVN metrics
		metrics.Registry.MustRegister(OVNOperationDuration)
		metrics.Registry.MustRegister(OVNOperationTotal)
		metrics.Registry.MustRegister(OVNTransactionDuration)
		metrics.Registry.MustRegister(OVNTransactionOperations)

		// ACL metrics
		metrics.Registry.MustRegister(ACLEntriesCompiled)
		metrics.Registry.MustRegister(ACLDuplicatesSuppressed)
		metrics.Registry.MustRegister(ACLRulesElided)

		// Cascade metrics
		metrics.Registry.MustRegister(CascadeRefreshTotal)
		metrics.Registry.MustRegister(CascadePortsRefreshed)

		// Sync metrics
		metrics.Registry.MustRegister(SyncOperationTotal)
		metrics.Registry.MustRegister(CompensatingRollbacks)
	})
}
