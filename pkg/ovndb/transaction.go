// Package ovndb provides the transactional Topology Store Client.
//
// A Transaction records commands in call order. Nothing is read or written
// until Commit, which resolves every command against the monitor cache,
// builds the OVSDB operations and executes them as one atomic transaction.
//
// Switches created inside a transaction do not exist in the cache yet, so
// ports and ACLs added to them are linked through the new row's own column
// values instead of a mutation. The insert for such a switch is emitted after
// the rows it references.
package ovndb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ovn-org/libovsdb/client"
	"k8s.io/klog/v2"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/metrics"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/types"
)

// Transaction is a batch of topology changes committed atomically
type Transaction interface {
	// CreateLogicalSwitch creates a switch; later commands in the same
	// transaction may add ports and ACLs to it
	CreateLogicalSwitch(name string, externalIDs map[string]string)
	// DeleteLogicalSwitch deletes a switch with its ports and ACLs.
	// Without ifExists a missing switch fails the commit with ObjectNotFoundError.
	DeleteLogicalSwitch(name string, ifExists bool)
	SetLogicalSwitchExternalIDs(name string, externalIDs map[string]string)

	CreateLogicalSwitchPort(switchName string, lsp *LogicalSwitchPort)
	UpdateLogicalSwitchPort(lsp *LogicalSwitchPort)
	// DeleteLogicalSwitchPort is a no-op when the port does not exist
	DeleteLogicalSwitchPort(switchName, portName string)
	SetLogicalSwitchPortRouterPort(portName, routerPortName string)

	AddACL(switchName string, acl *ACL)
	// DeletePortACLs removes every ACL on the switch owned by portName
	DeletePortACLs(switchName, portName string)

	CreateLogicalRouter(name string, externalIDs map[string]string)
	SetLogicalRouterExternalIDs(name string, externalIDs map[string]string)
	DeleteLogicalRouter(name string, ifExists bool)
	AddLogicalRouterPort(routerName string, lrp *LogicalRouterPort)
	DeleteLogicalRouterPort(routerName, portName string, ifExists bool)

	// Len returns the number of recorded commands
	Len() int
	// Commit executes all recorded commands in one OVSDB transaction
	Commit(ctx context.Context) error
}

// NBStore is the Topology Store Client backed by the OVN NB database
type NBStore struct {
	client *Client
}

// NewNBStore creates a store over a connected Client
func NewNBStore(c *Client) *NBStore {
	return &NBStore{client: c}
}

// GetLogicalSwitch finds a switch by name
func (s *NBStore) GetLogicalSwitch(ctx context.Context, name string) (*LogicalSwitch, error) {
	nb, err := s.nbClient()
	if err != nil {
		return nil, err
	}
	return FindLogicalSwitch(ctx, nb, name)
}

// GetLogicalSwitchPort finds a port by name
func (s *NBStore) GetLogicalSwitchPort(ctx context.Context, name string) (*LogicalSwitchPort, error) {
	nb, err := s.nbClient()
	if err != nil {
		return nil, err
	}
	return FindLogicalSwitchPort(ctx, nb, name)
}

// NewTransaction begins an empty transaction; operation names it in errors and metrics
func (s *NBStore) NewTransaction(operation string) Transaction {
	return &nbTransaction{store: s, operation: operation}
}

func (s *NBStore) nbClient() (client.Client, error) {
	nb := s.client.NBClient()
	if nb == nil {
		return nil, NewConnectionError(s.client.config.NBDBAddress, errors.New("NB client is not connected"))
	}
	return nb, nil
}

type command func(ctx context.Context, st *txnState) error

type nbTransaction struct {
	store     *NBStore
	operation string
	commands  []command
}

// txnState is the scratch space of one Commit
type txnState struct {
	nb      client.Client
	builder *OperationBuilder
	seq     int

	newSwitches     map[string]*LogicalSwitch
	newSwitchOrder  []string
	deletedSwitches map[string]bool
}

func (st *txnState) namedUUID(kind string) string {
	st.seq++
	return BuildNamedUUID(fmt.Sprintf("%s%d", kind, st.seq))
}

func (t *nbTransaction) add(cmd command) {
	t.commands = append(t.commands, cmd)
}

func (t *nbTransaction) Len() int {
	return len(t.commands)
}

func (t *nbTransaction) CreateLogicalSwitch(name string, externalIDs map[string]string) {
	t.add(func(ctx context.Context, st *txnState) error {
		if _, ok := st.newSwitches[name]; ok {
			return fmt.Errorf("logical switch %s created twice in one transaction", name)
		}
		st.newSwitches[name] = &LogicalSwitch{
			UUID:        st.namedUUID("ls"),
			Name:        name,
			ExternalIDs: copyMap(externalIDs),
		}
		st.newSwitchOrder = append(st.newSwitchOrder, name)
		return nil
	})
}

func (t *nbTransaction) DeleteLogicalSwitch(name string, ifExists bool) {
	t.add(func(ctx context.Context, st *txnState) error {
		ls, err := FindLogicalSwitch(ctx, st.nb, name)
		if err != nil {
			if IsNotFound(err) && ifExists {
				return nil
			}
			return err
		}
		ops, err := DeleteLogicalSwitchOps(st.nb, ls)
		if err != nil {
			return err
		}
		st.builder.AddAll(ops)
		st.deletedSwitches[name] = true
		return nil
	})
}

func (t *nbTransaction) SetLogicalSwitchExternalIDs(name string, externalIDs map[string]string) {
	t.add(func(ctx context.Context, st *txnState) error {
		if ls, ok := st.newSwitches[name]; ok {
			for k, v := range externalIDs {
				ls.ExternalIDs[k] = v
			}
			return nil
		}
		ls, err := st.existingSwitch(ctx, name)
		if err != nil {
			return err
		}
		ops, err := SetLogicalSwitchExternalIDsOps(st.nb, ls, externalIDs)
		if err != nil {
			return err
		}
		st.builder.AddAll(ops)
		return nil
	})
}

func (t *nbTransaction) CreateLogicalSwitchPort(switchName string, lsp *LogicalSwitchPort) {
	t.add(func(ctx context.Context, st *txnState) error {
		row := *lsp
		row.UUID = st.namedUUID("lsp")
		ops, err := CreateLogicalSwitchPortOps(st.nb, &row)
		if err != nil {
			return err
		}
		st.builder.AddAll(ops)

		if ls, ok := st.newSwitches[switchName]; ok {
			ls.Ports = append(ls.Ports, row.UUID)
			return nil
		}
		ls, err := st.existingSwitch(ctx, switchName)
		if err != nil {
			return err
		}
		ops, err = AddPortsToLogicalSwitchOps(st.nb, ls, row.UUID)
		if err != nil {
			return err
		}
		st.builder.AddAll(ops)
		return nil
	})
}

func (t *nbTransaction) UpdateLogicalSwitchPort(lsp *LogicalSwitchPort) {
	t.add(func(ctx context.Context, st *txnState) error {
		existing, err := FindLogicalSwitchPort(ctx, st.nb, lsp.Name)
		if err != nil {
			return err
		}
		ops, err := UpdateLogicalSwitchPortOps(st.nb, existing, lsp)
		if err != nil {
			return err
		}
		st.builder.AddAll(ops)
		return nil
	})
}

func (t *nbTransaction) DeleteLogicalSwitchPort(switchName, portName string) {
	t.add(func(ctx context.Context, st *txnState) error {
		lsp, err := FindLogicalSwitchPort(ctx, st.nb, portName)
		if err != nil {
			if IsNotFound(err) {
				return nil
			}
			return err
		}
		ls, err := st.existingSwitch(ctx, switchName)
		if err != nil {
			return err
		}
		ops, err := DeleteLogicalSwitchPortOps(st.nb, ls, lsp)
		if err != nil {
			return err
		}
		st.builder.AddAll(ops)
		return nil
	})
}

func (t *nbTransaction) SetLogicalSwitchPortRouterPort(portName, routerPortName string) {
	t.add(func(ctx context.Context, st *txnState) error {
		lsp, err := FindLogicalSwitchPort(ctx, st.nb, portName)
		if err != nil {
			return err
		}
		ops, err := SetLogicalSwitchPortRouterPortOps(st.nb, lsp, routerPortName)
		if err != nil {
			return err
		}
		st.builder.AddAll(ops)
		return nil
	})
}

func (t *nbTransaction) AddACL(switchName string, acl *ACL) {
	t.add(func(ctx context.Context, st *txnState) error {
		row := *acl
		row.UUID = st.namedUUID("acl")
		ops, err := CreateACLOps(st.nb, &row)
		if err != nil {
			return err
		}
		st.builder.AddAll(ops)

		if ls, ok := st.newSwitches[switchName]; ok {
			ls.ACLs = append(ls.ACLs, row.UUID)
			return nil
		}
		ls, err := st.existingSwitch(ctx, switchName)
		if err != nil {
			return err
		}
		ops, err = AddACLsToLogicalSwitchOps(st.nb, ls, row.UUID)
		if err != nil {
			return err
		}
		st.builder.AddAll(ops)
		return nil
	})
}

func (t *nbTransaction) DeletePortACLs(switchName, portName string) {
	t.add(func(ctx context.Context, st *txnState) error {
		if _, ok := st.newSwitches[switchName]; ok {
			return nil
		}
		ls, err := st.existingSwitch(ctx, switchName)
		if err != nil {
			return err
		}
		acls, err := FindSwitchACLsByExternalID(ctx, st.nb, ls, types.ExternalIDLogicalPort, portName)
		if err != nil {
			return err
		}
		uuids := make([]string, 0, len(acls))
		for _, acl := range acls {
			uuids = append(uuids, acl.UUID)
		}
		ops, err := RemoveACLsFromLogicalSwitchOps(st.nb, ls, uuids...)
		if err != nil {
			return err
		}
		st.builder.AddAll(ops)
		return nil
	})
}

func (t *nbTransaction) CreateLogicalRouter(name string, externalIDs map[string]string) {
	t.add(func(ctx context.Context, st *txnState) error {
		enabled := true
		ops, err := CreateLogicalRouterOps(st.nb, &LogicalRouter{
			UUID:        st.namedUUID("lr"),
			Name:        name,
			ExternalIDs: copyMap(externalIDs),
			Enabled:     &enabled,
		})
		if err != nil {
			return err
		}
		st.builder.AddAll(ops)
		return nil
	})
}

func (t *nbTransaction) SetLogicalRouterExternalIDs(name string, externalIDs map[string]string) {
	t.add(func(ctx context.Context, st *txnState) error {
		lr, err := FindLogicalRouter(ctx, st.nb, name)
		if err != nil {
			return err
		}
		ops, err := SetLogicalRouterExternalIDsOps(st.nb, lr, externalIDs)
		if err != nil {
			return err
		}
		st.builder.AddAll(ops)
		return nil
	})
}

func (t *nbTransaction) DeleteLogicalRouter(name string, ifExists bool) {
	t.add(func(ctx context.Context, st *txnState) error {
		lr, err := FindLogicalRouter(ctx, st.nb, name)
		if err != nil {
			if IsNotFound(err) && ifExists {
				return nil
			}
			return err
		}
		ops, err := DeleteLogicalRouterOps(st.nb, lr)
		if err != nil {
			return err
		}
		st.builder.AddAll(ops)
		return nil
	})
}

func (t *nbTransaction) AddLogicalRouterPort(routerName string, lrp *LogicalRouterPort) {
	t.add(func(ctx context.Context, st *txnState) error {
		lr, err := FindLogicalRouter(ctx, st.nb, routerName)
		if err != nil {
			return err
		}
		row := *lrp
		row.UUID = st.namedUUID("lrp")
		ops, err := AddLogicalRouterPortOps(st.nb, lr, &row)
		if err != nil {
			return err
		}
		st.builder.AddAll(ops)
		return nil
	})
}

func (t *nbTransaction) DeleteLogicalRouterPort(routerName, portName string, ifExists bool) {
	t.add(func(ctx context.Context, st *txnState) error {
		lrp, err := FindLogicalRouterPort(ctx, st.nb, portName)
		if err != nil {
			if IsNotFound(err) && ifExists {
				return nil
			}
			return err
		}
		lr, err := FindLogicalRouter(ctx, st.nb, routerName)
		if err != nil {
			return err
		}
		ops, err := DeleteLogicalRouterPortOps(st.nb, lr, lrp)
		if err != nil {
			return err
		}
		st.builder.AddAll(ops)
		return nil
	})
}

// Commit resolves the recorded commands and executes them atomically
func (t *nbTransaction) Commit(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordOVNOperation(t.operation, err, time.Since(start))
	}()

	if len(t.commands) == 0 {
		return nil
	}

	nb, err := t.store.nbClient()
	if err != nil {
		return err
	}

	st := &txnState{
		nb:              nb,
		builder:         NewOperationBuilder(),
		newSwitches:     make(map[string]*LogicalSwitch),
		deletedSwitches: make(map[string]bool),
	}
	for _, cmd := range t.commands {
		if err := cmd(ctx, st); err != nil {
			return NewTransactionError(t.operation, err, "")
		}
	}
	for _, name := range st.newSwitchOrder {
		ops, err := CreateLogicalSwitchOps(nb, st.newSwitches[name])
		if err != nil {
			return NewTransactionError(t.operation, err, name)
		}
		st.builder.AddAll(ops)
	}

	klog.V(4).Infof("Committing %s: %d commands, %d operations", t.operation, len(t.commands), st.builder.Len())
	if _, err := TransactAndCheck(ctx, nb, st.builder.Build(), t.store.client.GetTxnTimeout()); err != nil {
		return NewTransactionError(t.operation, err, "")
	}
	return nil
}

// existingSwitch looks up a switch that must already be in the database and
// not deleted earlier in this transaction
func (st *txnState) existingSwitch(ctx context.Context, name string) (*LogicalSwitch, error) {
	if st.deletedSwitches[name] {
		return nil, NewObjectNotFoundError(LogicalSwitchTable, name)
	}
	return FindLogicalSwitch(ctx, st.nb, name)
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
