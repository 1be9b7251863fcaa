package model

import (
	"context"
	"errors"
	"fmt"
)

// NetworkStore persists networks and subnets
type NetworkStore interface {
	CreateNetwork(ctx context.Context, net *Network) (*Network, error)
	UpdateNetwork(ctx context.Context, id string, upd NetworkUpdate) (*Network, error)
	DeleteNetwork(ctx context.Context, id string) error
	GetNetwork(ctx context.Context, id string) (*Network, error)

	CreateSubnet(ctx context.Context, subnet *Subnet) (*Subnet, error)
	GetSubnet(ctx context.Context, id string) (*Subnet, error)
}

// PortStore persists ports with their fixed IPs, address pairs and
// security group bindings
type PortStore interface {
	CreatePort(ctx context.Context, port *Port) (*Port, error)
	UpdatePort(ctx context.Context, id string, upd PortUpdate) (*Port, error)
	DeletePort(ctx context.Context, id string) error
	GetPort(ctx context.Context, id string) (*Port, error)
	GetPorts(ctx context.Context, filter PortFilter) ([]*Port, error)
}

// SecurityGroupStore persists security groups and their rules
type SecurityGroupStore interface {
	CreateSecurityGroup(ctx context.Context, sg *SecurityGroup) (*SecurityGroup, error)
	UpdateSecurityGroup(ctx context.Context, id string, upd SecurityGroupUpdate) (*SecurityGroup, error)
	DeleteSecurityGroup(ctx context.Context, id string) error
	// GetSecurityGroup returns the group with its rules
	GetSecurityGroup(ctx context.Context, id string) (*SecurityGroup, error)

	CreateSecurityGroupRule(ctx context.Context, rule *SecurityGroupRule) (*SecurityGroupRule, error)
	DeleteSecurityGroupRule(ctx context.Context, id string) error
	GetSecurityGroupRule(ctx context.Context, id string) (*SecurityGroupRule, error)

	// GetPortSecurityGroupBindings returns the bindings of one group
	GetPortSecurityGroupBindings(ctx context.Context, groupID string) ([]PortSecurityGroupBinding, error)
	// GetSecurityGroupRulesByRemoteGroup returns every rule whose remote
	// group is groupID
	GetSecurityGroupRulesByRemoteGroup(ctx context.Context, groupID string) ([]SecurityGroupRule, error)
}

// RouterStore persists routers and router interfaces
type RouterStore interface {
	CreateRouter(ctx context.Context, router *Router) (*Router, error)
	UpdateRouter(ctx context.Context, id string, upd RouterUpdate) (*Router, error)
	DeleteRouter(ctx context.Context, id string) error
	GetRouter(ctx context.Context, id string) (*Router, error)

	// AddRouterInterface binds the port named by info to the router as a
	// router_interface port. The result carries the port's first subnet.
	AddRouterInterface(ctx context.Context, routerID string, info RouterInterfaceInfo) (*RouterInterfaceInfo, error)
	// RemoveRouterInterface unbinds an interface port from the router
	RemoveRouterInterface(ctx context.Context, routerID string, info RouterInterfaceInfo) (*RouterInterfaceInfo, error)
}

// Adapter is the whole model store
type Adapter interface {
	NetworkStore
	PortStore
	SecurityGroupStore
	RouterStore
}

// NotFoundError is returned when a model row does not exist
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// NewNotFoundError creates a NotFoundError
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// ConflictError is returned when a change would break a reference held by
// another row, for example deleting a network that still has ports
type ConflictError struct {
	Kind   string
	ID     string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Kind, e.ID, e.Reason)
}

// NewConflictError creates a ConflictError
func NewConflictError(kind, id, reason string) *ConflictError {
	return &ConflictError{Kind: kind, ID: id, Reason: reason}
}

// IsConflict checks if an error is a ConflictError
func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}
