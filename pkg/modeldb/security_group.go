package modeldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
)

// CreateSecurityGroup stores a group with its initial rules. A rule may
// name the new group as its remote group.
func (s *Store) CreateSecurityGroup(ctx context.Context, sg *model.SecurityGroup) (*model.SecurityGroup, error) {
	id := sg.ID
	if id == "" {
		id = uuid.NewString()
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO security_groups (id, name, description) VALUES (?, ?, ?)", id, sg.Name, sg.Description)
		if err != nil {
			return fmt.Errorf("creating security group %s: %w", id, err)
		}
		for i := range sg.Rules {
			rule := sg.Rules[i]
			rule.SecurityGroupID = id
			if _, err := insertRule(ctx, tx, &rule); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetSecurityGroup(ctx, id)
}

func (s *Store) UpdateSecurityGroup(ctx context.Context, id string, upd model.SecurityGroupUpdate) (*model.SecurityGroup, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateName(ctx, tx, "security_groups", "security group", id, upd.Name); err != nil {
			return err
		}
		if upd.Description != nil {
			if _, err := tx.ExecContext(ctx, "UPDATE security_groups SET description = ? WHERE id = ?", *upd.Description, id); err != nil {
				return fmt.Errorf("updating security group %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetSecurityGroup(ctx, id)
}

// DeleteSecurityGroup deletes a group, its rules and every rule naming it
// as remote group. A group still bound to ports is a conflict.
func (s *Store) DeleteSecurityGroup(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := count(ctx, tx, "SELECT COUNT(*) FROM port_security_groups WHERE security_group_id = ?", id)
		if err != nil {
			return fmt.Errorf("counting ports of security group %s: %w", id, err)
		}
		if n > 0 {
			return model.NewConflictError("security group", id, fmt.Sprintf("in use by %d ports", n))
		}
		return deleteByID(ctx, tx, "security_groups", "security group", id)
	})
}

func (s *Store) GetSecurityGroup(ctx context.Context, id string) (*model.SecurityGroup, error) {
	sg := &model.SecurityGroup{}
	err := s.db.QueryRowContext(ctx, "SELECT id, name, description FROM security_groups WHERE id = ?", id).
		Scan(&sg.ID, &sg.Name, &sg.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("security group", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading security group %s: %w", id, err)
	}
	sg.Rules, err = queryRules(ctx, s.db, "security_group_id = ?", id)
	if err != nil {
		return nil, err
	}
	return sg, nil
}

func (s *Store) CreateSecurityGroupRule(ctx context.Context, rule *model.SecurityGroupRule) (*model.SecurityGroupRule, error) {
	var out *model.SecurityGroupRule
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = insertRule(ctx, tx, rule)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteSecurityGroupRule(ctx context.Context, id string) error {
	return deleteByID(ctx, s.db, "security_group_rules", "security group rule", id)
}

func (s *Store) GetSecurityGroupRule(ctx context.Context, id string) (*model.SecurityGroupRule, error) {
	rules, err := queryRules(ctx, s.db, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, model.NewNotFoundError("security group rule", id)
	}
	return &rules[0], nil
}

// GetPortSecurityGroupBindings returns the bindings of a group ordered by port
func (s *Store) GetPortSecurityGroupBindings(ctx context.Context, groupID string) ([]model.PortSecurityGroupBinding, error) {
	ports, err := queryStrings(ctx, s.db,
		"SELECT port_id FROM port_security_groups WHERE security_group_id = ? ORDER BY port_id", groupID)
	if err != nil {
		return nil, fmt.Errorf("reading bindings of security group %s: %w", groupID, err)
	}
	bindings := make([]model.PortSecurityGroupBinding, 0, len(ports))
	for _, port := range ports {
		bindings = append(bindings, model.PortSecurityGroupBinding{PortID: port, SecurityGroupID: groupID})
	}
	return bindings, nil
}

func (s *Store) GetSecurityGroupRulesByRemoteGroup(ctx context.Context, groupID string) ([]model.SecurityGroupRule, error) {
	return queryRules(ctx, s.db, "remote_group_id = ?", groupID)
}

func insertRule(ctx context.Context, tx *sql.Tx, rule *model.SecurityGroupRule) (*model.SecurityGroupRule, error) {
	out := *rule
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	ok, err := exists(ctx, tx, "security_groups", out.SecurityGroupID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewNotFoundError("security group", out.SecurityGroupID)
	}
	var remoteGroup sql.NullString
	if out.RemoteGroupID != "" {
		ok, err := exists(ctx, tx, "security_groups", out.RemoteGroupID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, model.NewNotFoundError("security group", out.RemoteGroupID)
		}
		remoteGroup = sql.NullString{String: out.RemoteGroupID, Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO security_group_rules
		(id, security_group_id, direction, ethertype, protocol, port_range_min, port_range_max, remote_ip_prefix, remote_group_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.SecurityGroupID, out.Direction, out.Ethertype, out.Protocol,
		nullInt(out.PortRangeMin), nullInt(out.PortRangeMax), out.RemoteIPPrefix, remoteGroup)
	if err != nil {
		return nil, fmt.Errorf("creating security group rule %s: %w", out.ID, err)
	}
	return &out, nil
}

// queryRules returns the rules matching where, ordered by id
func queryRules(ctx context.Context, q queryer, where string, args ...any) ([]model.SecurityGroupRule, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, security_group_id, direction, ethertype, protocol, port_range_min, port_range_max, remote_ip_prefix, remote_group_id
		FROM security_group_rules WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("reading security group rules: %w", err)
	}
	var rules []model.SecurityGroupRule
	for rows.Next() {
		var rule model.SecurityGroupRule
		var lo, hi sql.NullInt64
		var remoteGroup sql.NullString
		err := rows.Scan(&rule.ID, &rule.SecurityGroupID, &rule.Direction, &rule.Ethertype, &rule.Protocol,
			&lo, &hi, &rule.RemoteIPPrefix, &remoteGroup)
		if err != nil {
			rows.Close()
			return nil, err
		}
		rule.PortRangeMin = intOrNil(lo)
		rule.PortRangeMax = intOrNil(hi)
		rule.RemoteGroupID = remoteGroup.String
		rules = append(rules, rule)
	}
	return rules, closeRows(rows)
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intOrNil(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
