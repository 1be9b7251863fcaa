// Package ovndb provides Logical Switch Port operations.
//
// Port names are Neutron port ids, except localnet ports which are named
// "provnet-<port id>". Logical_Switch_Port is indexed by name, so lookups
// use the cache index directly.
//
// Port Types:
// - "" (empty): VIF port for VMs and containers
// - "router": Port connected to a Logical Router
// - "localnet": Port connected to a physical network
// - "vtep": Port bound to a VTEP gateway logical switch
//
// Reference: OVN-Kubernetes pkg/libovsdb/ops/switch.go
package ovndb

import (
	"context"
	"errors"
	"strings"

	"github.com/ovn-org/libovsdb/client"
	"github.com/ovn-org/libovsdb/ovsdb"
)

// Port type constants
const (
	PortTypeNormal   = ""
	PortTypeRouter   = "router"
	PortTypeLocalnet = "localnet"
	PortTypeVtep     = "vtep"
)

// Option keys for Logical Switch Ports
const (
	// OptionNetworkName is the physical network name for localnet ports
	OptionNetworkName = "network_name"

	// OptionRouterPort names the Logical Router Port a router-type port peers with
	OptionRouterPort = "router-port"

	// OptionVtepPhysicalSwitch and OptionVtepLogicalSwitch bind vtep ports
	OptionVtepPhysicalSwitch = "vtep-physical-switch"
	OptionVtepLogicalSwitch  = "vtep-logical-switch"
)

// AddressUnknown lets a port receive traffic for any destination MAC
const AddressUnknown = "unknown"

// FindLogicalSwitchPort retrieves a Logical Switch Port by name
//
// Parameters:
//   - ctx: Context for cancellation
//   - nb: Connected NB client
//   - name: Name of the port to retrieve
//
// Returns:
//   - *LogicalSwitchPort: The found port
//   - error: ObjectNotFoundError if not found, or other error
func FindLogicalSwitchPort(ctx context.Context, nb client.Client, name string) (*LogicalSwitchPort, error) {
	if name == "" {
		return nil, NewValidationError("name", name, "name is required")
	}

	lsp := &LogicalSwitchPort{Name: name}
	if err := nb.Get(ctx, lsp); err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return nil, NewObjectNotFoundError(LogicalSwitchPortTable, name)
		}
		return nil, NewTransactionError("FindLogicalSwitchPort", err, name)
	}
	return lsp, nil
}

// CreateLogicalSwitchPortOps returns operations that insert a port.
// lsp.UUID must be a named UUID; the caller links it into a switch.
func CreateLogicalSwitchPortOps(nb client.Client, lsp *LogicalSwitchPort) ([]ovsdb.Operation, error) {
	if lsp.Name == "" {
		return nil, NewValidationError("name", lsp.Name, "port name is required")
	}
	if !IsNamedUUID(lsp.UUID) {
		return nil, NewValidationError("uuid", lsp.UUID, "new ports need a named UUID")
	}
	return nb.Create(lsp)
}

// UpdateLogicalSwitchPortOps returns operations that overwrite the port's
// mutable columns with the values in lsp
//
// Parameters:
//   - nb: Connected NB client
//   - existing: Cached port, supplies the row UUID
//   - lsp: Desired port state
//
// Returns:
//   - []ovsdb.Operation: Update operations
//   - error: Operation building error
func UpdateLogicalSwitchPortOps(nb client.Client, existing, lsp *LogicalSwitchPort) ([]ovsdb.Operation, error) {
	update := *lsp
	update.UUID = existing.UUID
	update.Name = existing.Name
	if update.Options == nil {
		update.Options = map[string]string{}
	}
	if update.ExternalIDs == nil {
		update.ExternalIDs = map[string]string{}
	}
	return nb.Where(&update).Update(&update, getLogicalSwitchPortMutableFields(&update)...)
}

// SetLogicalSwitchPortRouterPortOps returns operations turning the port into
// the switch side of a router interface
func SetLogicalSwitchPortRouterPortOps(nb client.Client, lsp *LogicalSwitchPort, routerPortName string) ([]ovsdb.Operation, error) {
	options := make(map[string]string, len(lsp.Options)+1)
	for k, v := range lsp.Options {
		options[k] = v
	}
	options[OptionRouterPort] = routerPortName

	update := &LogicalSwitchPort{UUID: lsp.UUID, Type: PortTypeRouter, Options: options}
	return nb.Where(update).Update(update, &update.Type, &update.Options)
}

// DeleteLogicalSwitchPortOps returns operations removing the port from its
// switch and deleting the row
func DeleteLogicalSwitchPortOps(nb client.Client, ls *LogicalSwitch, lsp *LogicalSwitchPort) ([]ovsdb.Operation, error) {
	mutateOps, err := RemovePortsFromLogicalSwitchOps(nb, ls, lsp.UUID)
	if err != nil {
		return nil, err
	}

	deleteOps, err := nb.Where(&LogicalSwitchPort{UUID: lsp.UUID}).Delete()
	if err != nil {
		return nil, err
	}
	return append(mutateOps, deleteOps...), nil
}

// BuildAddresses formats a port address entry: "MAC IP1 IP2 ..."
func BuildAddresses(mac string, ips []string) string {
	if len(ips) == 0 {
		return mac
	}
	return mac + " " + strings.Join(ips, " ")
}

func getLogicalSwitchPortMutableFields(lsp *LogicalSwitchPort) []interface{} {
	return []interface{}{
		&lsp.Addresses,
		&lsp.Type,
		&lsp.Options,
		&lsp.PortSecurity,
		&lsp.ExternalIDs,
		&lsp.Enabled,
		&lsp.ParentName,
		&lsp.Tag,
	}
}
