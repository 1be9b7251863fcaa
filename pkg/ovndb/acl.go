// Package ovndb provides ACL (Access Control List) operations.
//
// Security group rules are compiled into ACLs that live on the Logical Switch
// holding the port. Every ACL carries the owning port in its external_ids,
// which is how a port's ACLs are found again when they are regenerated.
//
// Key OVN ACL fields:
// - direction: "from-lport" (egress) or "to-lport" (ingress)
// - priority: Higher priority rules are evaluated first (0-32767)
// - match: OVN match expression (e.g., `outport == "p1" && ip4 && tcp`)
// - action: "allow", "allow-related" or "drop"
// - external_ids: owning logical port
//
// Reference: OVN-Kubernetes pkg/libovsdb/ops/acl.go
package ovndb

import (
	"context"
	"errors"

	"github.com/ovn-org/libovsdb/client"
	"github.com/ovn-org/libovsdb/ovsdb"
)

// ACL priority bounds enforced by the NB schema
const (
	ACLPriorityMin = 0
	ACLPriorityMax = 32767
)

// BuildACL builds an ACL struct that is not yet in the database
//
// Parameters:
//   - direction: "from-lport" or "to-lport"
//   - priority: Rule priority
//   - match: OVN match expression
//   - action: ACL action
//   - externalIDs: External identifiers
//
// Returns:
//   - *ACL: The built ACL struct
func BuildACL(direction string, priority int, match, action string, externalIDs map[string]string) *ACL {
	return &ACL{
		Direction:   direction,
		Priority:    priority,
		Match:       match,
		Action:      action,
		ExternalIDs: externalIDs,
		Log:         false,
	}
}

// ValidateACL checks an ACL against the NB schema constraints
func ValidateACL(acl *ACL) error {
	if acl.Direction != ACLDirectionFromLport && acl.Direction != ACLDirectionToLport {
		return NewValidationError("direction", acl.Direction, "direction must be from-lport or to-lport")
	}
	if acl.Priority < ACLPriorityMin || acl.Priority > ACLPriorityMax {
		return NewValidationError("priority", acl.Priority, "priority must be between 0 and 32767")
	}
	if acl.Action != ACLActionAllow && acl.Action != ACLActionAllowRelated && acl.Action != ACLActionDrop {
		return NewValidationError("action", acl.Action, "action must be allow, allow-related or drop")
	}
	if acl.Match == "" {
		return NewValidationError("match", acl.Match, "match expression is required")
	}
	return nil
}

// CreateACLOps returns operations that insert an ACL.
// acl.UUID must be a named UUID so that the same transaction can link it
// into a switch; unreferenced ACLs are garbage collected.
func CreateACLOps(nb client.Client, acl *ACL) ([]ovsdb.Operation, error) {
	if err := ValidateACL(acl); err != nil {
		return nil, err
	}
	if !IsNamedUUID(acl.UUID) {
		return nil, NewValidationError("uuid", acl.UUID, "new ACLs need a named UUID")
	}
	return nb.Create(acl)
}

// FindSwitchACLsByExternalID returns the ACLs referenced by ls whose
// external_ids[key] equals value
//
// Parameters:
//   - ctx: Context for cancellation
//   - nb: Connected NB client
//   - ls: Cached switch whose ACL references are scanned
//   - key: External id key
//   - value: External id value
//
// Returns:
//   - []*ACL: Matching ACLs
//   - error: Cache lookup error
func FindSwitchACLsByExternalID(ctx context.Context, nb client.Client, ls *LogicalSwitch, key, value string) ([]*ACL, error) {
	var acls []*ACL
	for _, uuid := range ls.ACLs {
		acl := &ACL{UUID: uuid}
		if err := nb.Get(ctx, acl); err != nil {
			if errors.Is(err, client.ErrNotFound) {
				continue
			}
			return nil, NewTransactionError("FindSwitchACLsByExternalID", err, uuid)
		}
		if acl.ExternalIDs[key] == value {
			acls = append(acls, acl)
		}
	}
	return acls, nil
}
