package allocator

import (
	"errors"
	"fmt"
)

// SubnetExhaustedError indicates that a subnet has no free address
type SubnetExhaustedError struct {
	Subnet string
}

func (e *SubnetExhaustedError) Error() string {
	return fmt.Sprintf("subnet %s has no available IPs", e.Subnet)
}

// AddressInUseError indicates that a requested address is already taken
type AddressInUseError struct {
	IP string
}

func (e *AddressInUseError) Error() string {
	return fmt.Sprintf("IP %s is already allocated", e.IP)
}

// AddressOutOfRangeError indicates that an address is not a usable
// address of the subnet
type AddressOutOfRangeError struct {
	IP     string
	Subnet string
}

func (e *AddressOutOfRangeError) Error() string {
	return fmt.Sprintf("IP %s is not a usable address of subnet %s", e.IP, e.Subnet)
}

// IsSubnetExhausted checks if an error is, or wraps, a SubnetExhaustedError
func IsSubnetExhausted(err error) bool {
	var target *SubnetExhaustedError
	return errors.As(err, &target)
}

// IsAddressInUse checks if an error is, or wraps, an AddressInUseError
func IsAddressInUse(err error) bool {
	var target *AddressInUseError
	return errors.As(err, &target)
}

// IsAddressOutOfRange checks if an error is, or wraps, an AddressOutOfRangeError
func IsAddressOutOfRange(err error) bool {
	var target *AddressOutOfRangeError
	return errors.As(err, &target)
}
