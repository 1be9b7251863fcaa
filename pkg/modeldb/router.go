package modeldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/types"
)

func (s *Store) CreateRouter(ctx context.Context, router *model.Router) (*model.Router, error) {
	out := &model.Router{ID: router.ID, Name: router.Name}
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if _, err := s.db.ExecContext(ctx, "INSERT INTO routers (id, name) VALUES (?, ?)", out.ID, out.Name); err != nil {
		return nil, fmt.Errorf("creating router %s: %w", out.ID, err)
	}
	return out, nil
}

func (s *Store) UpdateRouter(ctx context.Context, id string, upd model.RouterUpdate) (*model.Router, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return updateName(ctx, tx, "routers", "router", id, upd.Name)
	})
	if err != nil {
		return nil, err
	}
	return s.GetRouter(ctx, id)
}

// DeleteRouter deletes a router without interfaces
func (s *Store) DeleteRouter(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := count(ctx, tx, "SELECT COUNT(*) FROM ports WHERE device_id = ? AND device_owner = ?",
			id, types.DeviceOwnerRouterInterface)
		if err != nil {
			return fmt.Errorf("counting interfaces of router %s: %w", id, err)
		}
		if n > 0 {
			return model.NewConflictError("router", id, fmt.Sprintf("%d interfaces still attached", n))
		}
		return deleteByID(ctx, tx, "routers", "router", id)
	})
}

func (s *Store) GetRouter(ctx context.Context, id string) (*model.Router, error) {
	router := &model.Router{}
	err := s.db.QueryRowContext(ctx, "SELECT id, name FROM routers WHERE id = ?", id).Scan(&router.ID, &router.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("router", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading router %s: %w", id, err)
	}
	return router, nil
}

// AddRouterInterface claims a port for the router. The port must have a
// fixed IP and must not belong to another device.
func (s *Store) AddRouterInterface(ctx context.Context, routerID string, info model.RouterInterfaceInfo) (*model.RouterInterfaceInfo, error) {
	var out *model.RouterInterfaceInfo
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := exists(ctx, tx, "routers", routerID)
		if err != nil {
			return err
		}
		if !ok {
			return model.NewNotFoundError("router", routerID)
		}
		port, err := loadPort(ctx, tx, info.PortID)
		if err != nil {
			return err
		}
		if port.DeviceID != "" && port.DeviceID != routerID {
			return model.NewConflictError("port", port.ID, fmt.Sprintf("in use by device %s", port.DeviceID))
		}
		if len(port.FixedIPs) == 0 {
			return model.NewConflictError("port", port.ID, "has no fixed ips")
		}
		_, err = tx.ExecContext(ctx, "UPDATE ports SET device_id = ?, device_owner = ? WHERE id = ?",
			routerID, types.DeviceOwnerRouterInterface, port.ID)
		if err != nil {
			return fmt.Errorf("binding port %s to router %s: %w", port.ID, routerID, err)
		}
		out = &model.RouterInterfaceInfo{RouterID: routerID, PortID: port.ID, SubnetID: port.FixedIPs[0].SubnetID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveRouterInterface releases an interface port of the router
func (s *Store) RemoveRouterInterface(ctx context.Context, routerID string, info model.RouterInterfaceInfo) (*model.RouterInterfaceInfo, error) {
	var out *model.RouterInterfaceInfo
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		port, err := loadPort(ctx, tx, info.PortID)
		if model.IsNotFound(err) || (err == nil && (port.DeviceID != routerID || port.DeviceOwner != types.DeviceOwnerRouterInterface)) {
			return model.NewNotFoundError("router interface", info.PortID)
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE ports SET device_id = '', device_owner = '' WHERE id = ?", port.ID); err != nil {
			return fmt.Errorf("releasing port %s from router %s: %w", port.ID, routerID, err)
		}
		out = &model.RouterInterfaceInfo{RouterID: routerID, PortID: port.ID}
		if len(port.FixedIPs) > 0 {
			out.SubnetID = port.FixedIPs[0].SubnetID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
