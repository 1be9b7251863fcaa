package modeldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/google/uuid"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/allocator"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/util"
)

// CreatePort stores a port, generating its id and MAC when unset.
//
// Fixed IPs without an address are allocated from their subnet. A nil
// FixedIPs list asks for one address from the first subnet of each IP
// version on the network; an empty non-nil list leaves the port without
// addresses.
func (s *Store) CreatePort(ctx context.Context, port *model.Port) (*model.Port, error) {
	id := port.ID
	if id == "" {
		id = uuid.NewString()
	}
	mac := port.MACAddress
	var err error
	if mac == "" {
		mac, err = util.RandomMAC(util.DefaultMACBase)
	} else {
		mac, err = util.NormalizeMAC(mac)
	}
	if err != nil {
		return nil, err
	}
	profile, err := encodeProfile(port.BindingProfile)
	if err != nil {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := exists(ctx, tx, "networks", port.NetworkID)
		if err != nil {
			return err
		}
		if !ok {
			return model.NewNotFoundError("network", port.NetworkID)
		}
		if err := checkSecurityGroups(ctx, tx, port.SecurityGroups); err != nil {
			return err
		}
		fixedIPs, err := assignFixedIPs(ctx, tx, port.NetworkID, port.FixedIPs)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO ports (id, name, network_id, mac_address, admin_state_up, binding_profile, device_id, device_owner)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, port.Name, port.NetworkID, mac, port.AdminStateUp, profile, port.DeviceID, port.DeviceOwner)
		if err != nil {
			return fmt.Errorf("creating port %s: %w", id, err)
		}
		for i, ip := range fixedIPs {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO fixed_ips (port_id, position, subnet_id, ip_address) VALUES (?, ?, ?, ?)",
				id, i, ip.SubnetID, ip.IPAddress)
			if err != nil {
				return fmt.Errorf("storing fixed ip %s of port %s: %w", ip.IPAddress, id, err)
			}
		}
		if err := replaceAddressPairs(ctx, tx, id, port.AllowedAddressPairs); err != nil {
			return err
		}
		return replacePortSecurityGroups(ctx, tx, id, port.SecurityGroups)
	})
	if err != nil {
		return nil, err
	}
	return loadPort(ctx, s.db, id)
}

func (s *Store) UpdatePort(ctx context.Context, id string, upd model.PortUpdate) (*model.Port, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := exists(ctx, tx, "ports", id)
		if err != nil {
			return err
		}
		if !ok {
			return model.NewNotFoundError("port", id)
		}

		var sets []string
		var args []any
		if upd.Name != nil {
			sets, args = append(sets, "name = ?"), append(args, *upd.Name)
		}
		if upd.AdminStateUp != nil {
			sets, args = append(sets, "admin_state_up = ?"), append(args, *upd.AdminStateUp)
		}
		if upd.BindingProfile != nil {
			profile, err := encodeProfile(upd.BindingProfile)
			if err != nil {
				return err
			}
			sets, args = append(sets, "binding_profile = ?"), append(args, profile)
		}
		if upd.DeviceID != nil {
			sets, args = append(sets, "device_id = ?"), append(args, *upd.DeviceID)
		}
		if upd.DeviceOwner != nil {
			sets, args = append(sets, "device_owner = ?"), append(args, *upd.DeviceOwner)
		}
		if len(sets) > 0 {
			args = append(args, id)
			if _, err := tx.ExecContext(ctx, "UPDATE ports SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
				return fmt.Errorf("updating port %s: %w", id, err)
			}
		}

		if upd.AllowedAddressPairs != nil {
			if err := replaceAddressPairs(ctx, tx, id, *upd.AllowedAddressPairs); err != nil {
				return err
			}
		}
		if upd.SecurityGroups != nil {
			if err := checkSecurityGroups(ctx, tx, *upd.SecurityGroups); err != nil {
				return err
			}
			if err := replacePortSecurityGroups(ctx, tx, id, *upd.SecurityGroups); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loadPort(ctx, s.db, id)
}

// DeletePort deletes a port; its fixed IPs return to their subnets
func (s *Store) DeletePort(ctx context.Context, id string) error {
	return deleteByID(ctx, s.db, "ports", "port", id)
}

func (s *Store) GetPort(ctx context.Context, id string) (*model.Port, error) {
	return loadPort(ctx, s.db, id)
}

// GetPorts returns the ports passing filter, ordered by id
func (s *Store) GetPorts(ctx context.Context, filter model.PortFilter) ([]*model.Port, error) {
	var where []string
	var args []any
	if filter.DeviceID != "" {
		where, args = append(where, "device_id = ?"), append(args, filter.DeviceID)
	}
	if filter.DeviceOwner != "" {
		where, args = append(where, "device_owner = ?"), append(args, filter.DeviceOwner)
	}
	if filter.NetworkID != "" {
		where, args = append(where, "network_id = ?"), append(args, filter.NetworkID)
	}
	query := "SELECT id FROM ports"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	ids, err := queryStrings(ctx, s.db, query+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("listing ports: %w", err)
	}

	ports := make([]*model.Port, 0, len(ids))
	for _, id := range ids {
		port, err := loadPort(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		ports = append(ports, port)
	}
	return ports, nil
}

func loadPort(ctx context.Context, q queryer, id string) (*model.Port, error) {
	port := &model.Port{}
	var profile string
	err := q.QueryRowContext(ctx,
		"SELECT id, name, network_id, mac_address, admin_state_up, binding_profile, device_id, device_owner FROM ports WHERE id = ?", id).
		Scan(&port.ID, &port.Name, &port.NetworkID, &port.MACAddress, &port.AdminStateUp, &profile, &port.DeviceID, &port.DeviceOwner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("port", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading port %s: %w", id, err)
	}
	if port.BindingProfile, err = decodeProfile(profile); err != nil {
		return nil, fmt.Errorf("port %s: %w", id, err)
	}

	rows, err := q.QueryContext(ctx, "SELECT subnet_id, ip_address FROM fixed_ips WHERE port_id = ? ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("reading fixed ips of port %s: %w", id, err)
	}
	for rows.Next() {
		var ip model.FixedIP
		if err := rows.Scan(&ip.SubnetID, &ip.IPAddress); err != nil {
			rows.Close()
			return nil, err
		}
		port.FixedIPs = append(port.FixedIPs, ip)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx, "SELECT ip_address, mac_address FROM allowed_address_pairs WHERE port_id = ? ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("reading address pairs of port %s: %w", id, err)
	}
	for rows.Next() {
		var pair model.AllowedAddressPair
		if err := rows.Scan(&pair.IPAddress, &pair.MACAddress); err != nil {
			rows.Close()
			return nil, err
		}
		port.AllowedAddressPairs = append(port.AllowedAddressPairs, pair)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	port.SecurityGroups, err = queryStrings(ctx, q,
		"SELECT security_group_id FROM port_security_groups WHERE port_id = ? ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("reading security groups of port %s: %w", id, err)
	}
	return port, nil
}

// assignFixedIPs resolves and allocates the fixed IPs of a new port.
// Explicit addresses are claimed before any address is allocated, and a
// subnet's gateway is only handed out when asked for by address.
func assignFixedIPs(ctx context.Context, tx *sql.Tx, networkID string, requested []model.FixedIP) ([]model.FixedIP, error) {
	subnets, err := networkSubnets(ctx, tx, networkID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]storedSubnet, len(subnets))
	for _, subnet := range subnets {
		byID[subnet.ID] = subnet
	}

	if requested == nil {
		seen := map[int]bool{}
		for _, subnet := range subnets {
			if !seen[subnet.IPVersion] {
				seen[subnet.IPVersion] = true
				requested = append(requested, model.FixedIP{SubnetID: subnet.ID})
			}
		}
	}

	out := make([]model.FixedIP, len(requested))
	explicit := map[string]map[netip.Addr]bool{}
	for i, req := range requested {
		if req.SubnetID == "" && req.IPAddress == "" {
			return nil, fmt.Errorf("fixed ip %d names neither a subnet nor an address", i)
		}
		if req.IPAddress != "" {
			addr, err := netip.ParseAddr(req.IPAddress)
			if err != nil {
				return nil, fmt.Errorf("invalid fixed ip %q", req.IPAddress)
			}
			if req.SubnetID == "" {
				for _, subnet := range subnets {
					if subnet.prefix.Contains(addr) {
						req.SubnetID = subnet.ID
						break
					}
				}
				if req.SubnetID == "" {
					return nil, model.NewConflictError("network", networkID, fmt.Sprintf("no subnet contains %s", addr))
				}
			}
			if explicit[req.SubnetID] == nil {
				explicit[req.SubnetID] = map[netip.Addr]bool{}
			}
			explicit[req.SubnetID][addr] = true
			req.IPAddress = addr.String()
		}
		if _, ok := byID[req.SubnetID]; !ok {
			if _, err := getSubnet(ctx, tx, req.SubnetID); err != nil {
				return nil, err
			}
			return nil, model.NewConflictError("subnet", req.SubnetID, fmt.Sprintf("not on network %s", networkID))
		}
		out[i] = req
	}

	allocators := map[string]*allocator.SubnetAllocator{}
	for _, ip := range out {
		if _, ok := allocators[ip.SubnetID]; ok {
			continue
		}
		subnet := byID[ip.SubnetID]
		used, err := queryStrings(ctx, tx, "SELECT ip_address FROM fixed_ips WHERE subnet_id = ?", subnet.ID)
		if err != nil {
			return nil, fmt.Errorf("reading addresses of subnet %s: %w", subnet.ID, err)
		}
		a, err := allocator.NewSubnetAllocator(subnet.CIDR, used...)
		if err != nil {
			return nil, fmt.Errorf("subnet %s: %w", subnet.ID, err)
		}
		allocators[subnet.ID] = a
	}

	for _, ip := range out {
		if ip.IPAddress == "" {
			continue
		}
		if err := allocators[ip.SubnetID].Allocate(netip.MustParseAddr(ip.IPAddress)); err != nil {
			return nil, fmt.Errorf("subnet %s: %w", ip.SubnetID, err)
		}
	}
	for id, a := range allocators {
		gateway := byID[id].GatewayIP
		if gateway == "" {
			continue
		}
		gw, err := netip.ParseAddr(gateway)
		if err != nil || explicit[id][gw] {
			continue
		}
		// taken or outside the allocation range either way
		_ = a.Allocate(gw)
	}
	for i, ip := range out {
		if ip.IPAddress != "" {
			continue
		}
		addr, err := allocators[ip.SubnetID].AllocateNext()
		if err != nil {
			return nil, fmt.Errorf("subnet %s: %w", ip.SubnetID, err)
		}
		out[i].IPAddress = addr.String()
	}
	return out, nil
}

func checkSecurityGroups(ctx context.Context, q queryer, ids []string) error {
	for _, id := range ids {
		ok, err := exists(ctx, q, "security_groups", id)
		if err != nil {
			return err
		}
		if !ok {
			return model.NewNotFoundError("security group", id)
		}
	}
	return nil
}

func replaceAddressPairs(ctx context.Context, q queryer, portID string, pairs []model.AllowedAddressPair) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM allowed_address_pairs WHERE port_id = ?", portID); err != nil {
		return fmt.Errorf("clearing address pairs of port %s: %w", portID, err)
	}
	for i, pair := range pairs {
		mac := pair.MACAddress
		if mac != "" {
			var err error
			if mac, err = util.NormalizeMAC(mac); err != nil {
				return err
			}
		}
		_, err := q.ExecContext(ctx,
			"INSERT INTO allowed_address_pairs (port_id, position, ip_address, mac_address) VALUES (?, ?, ?, ?)",
			portID, i, pair.IPAddress, mac)
		if err != nil {
			return fmt.Errorf("storing address pair of port %s: %w", portID, err)
		}
	}
	return nil
}

func replacePortSecurityGroups(ctx context.Context, q queryer, portID string, groups []string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM port_security_groups WHERE port_id = ?", portID); err != nil {
		return fmt.Errorf("clearing security groups of port %s: %w", portID, err)
	}
	seen := map[string]bool{}
	position := 0
	for _, group := range groups {
		if seen[group] {
			continue
		}
		seen[group] = true
		_, err := q.ExecContext(ctx,
			"INSERT INTO port_security_groups (port_id, position, security_group_id) VALUES (?, ?, ?)",
			portID, position, group)
		if err != nil {
			return fmt.Errorf("binding security group %s to port %s: %w", group, portID, err)
		}
		position++
	}
	return nil
}

func encodeProfile(profile model.BindingProfile) (string, error) {
	if len(profile) == 0 {
		return "", nil
	}
	b, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("encoding binding profile: %w", err)
	}
	return string(b), nil
}

func decodeProfile(s string) (model.BindingProfile, error) {
	if s == "" {
		return nil, nil
	}
	var profile model.BindingProfile
	if err := json.Unmarshal([]byte(s), &profile); err != nil {
		return nil, fmt.Errorf("decoding binding profile: %w", err)
	}
	return profile, nil
}

// queryStrings returns the single string column of every row
func queryStrings(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, v)
	}
	return out, closeRows(rows)
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}
