// Package ovndb provides OVN database transaction helpers.
//
// This file contains helper functions for executing OVN database transactions
// with proper error handling and retry logic.
//
// Transaction Patterns:
// 1. Build the operations of one logical change into an OperationBuilder
// 2. Execute them atomically with TransactAndCheck
// 3. Treat any failure as terminal for the logical change
//
// Reference: OVN-Kubernetes pkg/libovsdb/ops/transact.go
package ovndb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ovn-org/libovsdb/client"
	"github.com/ovn-org/libovsdb/ovsdb"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/metrics"
)

// ErrNotFound is returned by libovsdb cache lookups when no row matches
var ErrNotFound = client.ErrNotFound

// namedUUIDPrefix marks row references resolved by the server within a transaction
const namedUUIDPrefix = "named_"

// TransactWithRetry executes a transaction with retry on connection errors
//
// This function will retry the transaction if the client is disconnected,
// using polling with a 200ms interval until the context is cancelled.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - c: OVN database client
//   - ops: List of OVSDB operations to execute
//
// Returns:
//   - []ovsdb.OperationResult: Results of each operation
//   - error: Transaction error
func TransactWithRetry(ctx context.Context, c client.Client, ops []ovsdb.Operation) ([]ovsdb.OperationResult, error) {
	var results []ovsdb.OperationResult
	resultErr := wait.PollUntilContextCancel(ctx, 200*time.Millisecond, true, func(ctx context.Context) (bool, error) {
		var err error
		results, err = c.Transact(ctx, ops...)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, client.ErrNotConnected) {
			klog.V(5).Infof("Unable to execute transaction: %+v. Client is disconnected, will retry...", ops)
			return false, nil
		}
		return false, err
	})
	return results, resultErr
}

// TransactAndCheck executes a transaction and checks every operation result
//
// Parameters:
//   - ctx: Parent context; the transaction gets its own timeout below it
//   - c: OVN database client
//   - ops: List of OVSDB operations to execute
//   - timeout: Transaction timeout
//
// Returns:
//   - []ovsdb.OperationResult: Results of each operation
//   - error: Transaction or operation error
func TransactAndCheck(ctx context.Context, c client.Client, ops []ovsdb.Operation, timeout time.Duration) ([]ovsdb.OperationResult, error) {
	if len(ops) == 0 {
		return []ovsdb.OperationResult{{}}, nil
	}

	klog.V(5).Infof("Executing OVN transaction: %+v", ops)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	results, err := TransactWithRetry(ctx, c, ops)
	metrics.RecordOVNTransaction(len(ops), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("transaction failed with ops %+v: %w", ops, err)
	}

	opErrors, err := ovsdb.CheckOperationResults(results, ops)
	if err != nil {
		return nil, fmt.Errorf("operation failed with ops %+v results %+v errors %+v: %w", ops, results, opErrors, err)
	}

	return results, nil
}

// BuildNamedUUID generates a named UUID for insert operations
//
// Named UUIDs allow referencing newly inserted rows in the same transaction.
// OVSDB requires them to be identifiers, so every character outside
// [A-Za-z0-9_] is replaced with an underscore.
//
// Parameters:
//   - name: Base name for the UUID, unique within the transaction
//
// Returns:
//   - string: Named UUID string
func BuildNamedUUID(name string) string {
	var b strings.Builder
	b.WriteString(namedUUIDPrefix)
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// IsNamedUUID checks if a UUID is a named UUID
func IsNamedUUID(uuid string) bool {
	return strings.HasPrefix(uuid, namedUUIDPrefix)
}

// OperationBuilder accumulates the OVSDB operations of one transaction
type OperationBuilder struct {
	ops []ovsdb.Operation
}

// NewOperationBuilder creates a new operation builder
func NewOperationBuilder() *OperationBuilder {
	return &OperationBuilder{
		ops: make([]ovsdb.Operation, 0),
	}
}

// Add adds an operation to the builder
func (b *OperationBuilder) Add(op ovsdb.Operation) *OperationBuilder {
	b.ops = append(b.ops, op)
	return b
}

// AddAll adds multiple operations to the builder
func (b *OperationBuilder) AddAll(ops []ovsdb.Operation) *OperationBuilder {
	b.ops = append(b.ops, ops...)
	return b
}

// Build returns the built operations
func (b *OperationBuilder) Build() []ovsdb.Operation {
	return b.ops
}

// Len returns the number of operations
func (b *OperationBuilder) Len() int {
	return len(b.ops)
}
