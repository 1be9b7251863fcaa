// Package util provides address helpers shared by the model store and the
// command line.
//
// Reference: OVN-Kubernetes pkg/util/
package util

import (
	"crypto/rand"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// DefaultMACBase is the OpenStack base MAC; generated MACs keep its first
// three octets
const DefaultMACBase = "fa:16:3e:00:00:00"

// RandomMAC returns a MAC that keeps the first three octets of base and
// randomizes the rest
func RandomMAC(base string) (string, error) {
	hw, err := net.ParseMAC(base)
	if err != nil {
		return "", fmt.Errorf("invalid base MAC %q: %w", base, err)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("base MAC %q is not an EUI-48 address", base)
	}
	mac := make(net.HardwareAddr, 6)
	copy(mac, hw[:3])
	if _, err := rand.Read(mac[3:]); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return mac.String(), nil
}

// NormalizeMAC validates a MAC and returns it in lower-case colon form
func NormalizeMAC(mac string) (string, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil || len(hw) != 6 {
		return "", fmt.Errorf("invalid MAC address %q", mac)
	}
	return strings.ToLower(hw.String()), nil
}

// ParseSubnet parses a subnet CIDR, rejecting host bits, and returns it
// with its IP version
func ParseSubnet(cidr string) (netip.Prefix, int, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return netip.Prefix{}, 0, fmt.Errorf("invalid CIDR %s: %v", cidr, err)
	}
	if prefix != prefix.Masked() {
		return netip.Prefix{}, 0, fmt.Errorf("CIDR %s has host bits set, did you mean %s", cidr, prefix.Masked())
	}
	if prefix.Addr().Is4() {
		return prefix, 4, nil
	}
	return prefix, 6, nil
}

// DefaultGateway returns the first host address of a subnet
func DefaultGateway(prefix netip.Prefix) netip.Addr {
	return prefix.Masked().Addr().Next()
}

// AddrInSubnet parses ip and checks that it belongs to prefix
func AddrInSubnet(ip string, prefix netip.Prefix) (netip.Addr, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid IP address %q", ip)
	}
	if !prefix.Contains(addr) {
		return netip.Addr{}, fmt.Errorf("IP address %s is not in subnet %s", addr, prefix)
	}
	return addr, nil
}
