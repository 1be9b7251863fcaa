package modeldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"

	"github.com/google/uuid"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/util"
)

// CreateNetwork stores a network. Provider attributes are not stored.
func (s *Store) CreateNetwork(ctx context.Context, net *model.Network) (*model.Network, error) {
	out := &model.Network{ID: net.ID, Name: net.Name}
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if _, err := s.db.ExecContext(ctx, "INSERT INTO networks (id, name) VALUES (?, ?)", out.ID, out.Name); err != nil {
		return nil, fmt.Errorf("creating network %s: %w", out.ID, err)
	}
	return out, nil
}

func (s *Store) UpdateNetwork(ctx context.Context, id string, upd model.NetworkUpdate) (*model.Network, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return updateName(ctx, tx, "networks", "network", id, upd.Name)
	})
	if err != nil {
		return nil, err
	}
	return s.GetNetwork(ctx, id)
}

// DeleteNetwork deletes a network and its subnets. A network that still
// has ports is a conflict.
func (s *Store) DeleteNetwork(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := count(ctx, tx, "SELECT COUNT(*) FROM ports WHERE network_id = ?", id)
		if err != nil {
			return fmt.Errorf("counting ports of network %s: %w", id, err)
		}
		if n > 0 {
			return model.NewConflictError("network", id, fmt.Sprintf("%d ports still attached", n))
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM subnets WHERE network_id = ?", id); err != nil {
			return fmt.Errorf("deleting subnets of network %s: %w", id, err)
		}
		return deleteByID(ctx, tx, "networks", "network", id)
	})
}

func (s *Store) GetNetwork(ctx context.Context, id string) (*model.Network, error) {
	net := &model.Network{}
	err := s.db.QueryRowContext(ctx, "SELECT id, name FROM networks WHERE id = ?", id).Scan(&net.ID, &net.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("network", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading network %s: %w", id, err)
	}
	return net, nil
}

// CreateSubnet stores a subnet. The IP version is derived from the CIDR;
// an empty gateway means the subnet has none.
func (s *Store) CreateSubnet(ctx context.Context, subnet *model.Subnet) (*model.Subnet, error) {
	prefix, version, err := util.ParseSubnet(subnet.CIDR)
	if err != nil {
		return nil, err
	}
	if subnet.IPVersion != 0 && subnet.IPVersion != version {
		return nil, fmt.Errorf("subnet %s is IPv%d, not IPv%d", subnet.CIDR, version, subnet.IPVersion)
	}
	out := *subnet
	out.CIDR = prefix.String()
	out.IPVersion = version
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.GatewayIP != "" {
		gw, err := util.AddrInSubnet(out.GatewayIP, prefix)
		if err != nil {
			return nil, err
		}
		if gw == prefix.Addr() {
			return nil, fmt.Errorf("gateway %s is the network address of %s", gw, prefix)
		}
		out.GatewayIP = gw.String()
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := exists(ctx, tx, "networks", out.NetworkID)
		if err != nil {
			return err
		}
		if !ok {
			return model.NewNotFoundError("network", out.NetworkID)
		}
		subnets, err := networkSubnets(ctx, tx, out.NetworkID)
		if err != nil {
			return err
		}
		for _, other := range subnets {
			if other.prefix.Overlaps(prefix) {
				return model.NewConflictError("subnet", out.ID, fmt.Sprintf("%s overlaps subnet %s (%s)", prefix, other.ID, other.CIDR))
			}
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO subnets (id, network_id, name, cidr, ip_version, gateway_ip) VALUES (?, ?, ?, ?, ?, ?)",
			out.ID, out.NetworkID, out.Name, out.CIDR, out.IPVersion, out.GatewayIP)
		if err != nil {
			return fmt.Errorf("creating subnet %s: %w", out.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) GetSubnet(ctx context.Context, id string) (*model.Subnet, error) {
	return getSubnet(ctx, s.db, id)
}

const subnetColumns = "id, network_id, name, cidr, ip_version, gateway_ip"

type scanner interface {
	Scan(dest ...any) error
}

func scanSubnet(row scanner) (*model.Subnet, error) {
	subnet := &model.Subnet{}
	err := row.Scan(&subnet.ID, &subnet.NetworkID, &subnet.Name, &subnet.CIDR, &subnet.IPVersion, &subnet.GatewayIP)
	return subnet, err
}

func getSubnet(ctx context.Context, q queryer, id string) (*model.Subnet, error) {
	subnet, err := scanSubnet(q.QueryRowContext(ctx, "SELECT "+subnetColumns+" FROM subnets WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("subnet", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading subnet %s: %w", id, err)
	}
	return subnet, nil
}

// storedSubnet is a subnet with its parsed prefix
type storedSubnet struct {
	*model.Subnet
	prefix netip.Prefix
}

// networkSubnets returns the subnets of a network in creation order
func networkSubnets(ctx context.Context, q queryer, networkID string) ([]storedSubnet, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+subnetColumns+" FROM subnets WHERE network_id = ? ORDER BY rowid", networkID)
	if err != nil {
		return nil, fmt.Errorf("listing subnets of network %s: %w", networkID, err)
	}
	defer rows.Close()

	var out []storedSubnet
	for rows.Next() {
		subnet, err := scanSubnet(rows)
		if err != nil {
			return nil, err
		}
		prefix, err := netip.ParsePrefix(subnet.CIDR)
		if err != nil {
			return nil, fmt.Errorf("stored subnet %s has invalid CIDR %q: %w", subnet.ID, subnet.CIDR, err)
		}
		out = append(out, storedSubnet{Subnet: subnet, prefix: prefix})
	}
	return out, rows.Err()
}
