package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
)

func newPortCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "port",
		Short: "Manage ports",
	}
	cmd.AddCommand(
		newPortCreateCmd(opts),
		newPortUpdateCmd(opts),
		newPortDeleteCmd(opts),
		newPortShowCmd(opts),
	)
	return cmd
}

// portFlags are shared by port create and update
type portFlags struct {
	name           string
	adminStateUp   bool
	profile        string
	addressPairs   []string
	securityGroups []string
	deviceID       string
	deviceOwner    string
}

func (f *portFlags) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.name, "name", "", "Port name")
	fs.BoolVar(&f.adminStateUp, "admin-state-up", true, "Administrative state")
	fs.StringVar(&f.profile, "binding-profile", "", `Binding profile as a JSON object, e.g. '{"parent_name":"vm1","tag":10}'`)
	fs.StringArrayVar(&f.addressPairs, "allowed-address-pair", nil, "Allowed address pair ip_address=IP[,mac_address=MAC] (repeatable)")
	fs.StringSliceVar(&f.securityGroups, "security-group", nil, "Security group id (repeatable)")
	fs.StringVar(&f.deviceID, "device-id", "", "Device id")
	fs.StringVar(&f.deviceOwner, "device-owner", "", "Device owner")
}

func newPortCreateCmd(opts *rootOptions) *cobra.Command {
	var flags struct {
		portFlags
		id, network, mac string
		fixedIPs         []string
		noFixedIPs       bool
	}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a port and its Logical Switch Port",
		Example: `  zstack-ovn-neutron port create --network NET --security-group SG
  zstack-ovn-neutron port create --network NET --fixed-ip subnet_id=SUBNET,ip_address=10.0.0.10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profile, err := parseBindingProfile(flags.profile)
			if err != nil {
				return err
			}
			pairs, err := parseAddressPairs(flags.addressPairs)
			if err != nil {
				return err
			}
			fixedIPs, err := parseFixedIPs(flags.fixedIPs)
			if err != nil {
				return err
			}
			if flags.noFixedIPs {
				if len(fixedIPs) > 0 {
					return fmt.Errorf("--no-fixed-ips conflicts with --fixed-ip")
				}
				fixedIPs = []model.FixedIP{}
			}
			port := &model.Port{
				ID:                  flags.id,
				Name:                flags.name,
				NetworkID:           flags.network,
				MACAddress:          flags.mac,
				FixedIPs:            fixedIPs,
				AdminStateUp:        flags.adminStateUp,
				BindingProfile:      profile,
				AllowedAddressPairs: pairs,
				SecurityGroups:      flags.securityGroups,
				DeviceID:            flags.deviceID,
				DeviceOwner:         flags.deviceOwner,
			}
			return opts.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.plugin.CreatePort(ctx, port)
			})
		},
	}
	flags.addFlags(cmd.Flags())
	cmd.Flags().StringVar(&flags.id, "id", "", "Port id (generated when empty)")
	cmd.Flags().StringVar(&flags.network, "network", "", "Network id")
	cmd.Flags().StringVar(&flags.mac, "mac-address", "", "MAC address (generated when empty)")
	cmd.Flags().StringArrayVar(&flags.fixedIPs, "fixed-ip", nil,
		"Fixed IP subnet_id=SUBNET[,ip_address=IP] or ip_address=IP (repeatable, default: one address per IP version)")
	cmd.Flags().BoolVar(&flags.noFixedIPs, "no-fixed-ips", false, "Create the port without addresses")
	_ = cmd.MarkFlagRequired("network")
	return cmd
}

func newPortUpdateCmd(opts *rootOptions) *cobra.Command {
	var flags struct {
		portFlags
		noSecurityGroups bool
		noAddressPairs   bool
	}
	cmd := &cobra.Command{
		Use:   "update PORT",
		Short: "Update a port, its Logical Switch Port and ACLs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd, err := flags.portFlags.update(cmd.Flags())
			if err != nil {
				return err
			}
			if flags.noSecurityGroups {
				if upd.SecurityGroups != nil {
					return fmt.Errorf("--no-security-groups conflicts with --security-group")
				}
				upd.SecurityGroups = &[]string{}
			}
			if flags.noAddressPairs {
				if upd.AllowedAddressPairs != nil {
					return fmt.Errorf("--no-allowed-address-pairs conflicts with --allowed-address-pair")
				}
				upd.AllowedAddressPairs = &[]model.AllowedAddressPair{}
			}
			return opts.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.plugin.UpdatePort(ctx, args[0], upd)
			})
		},
	}
	flags.addFlags(cmd.Flags())
	cmd.Flags().BoolVar(&flags.noSecurityGroups, "no-security-groups", false, "Detach every security group")
	cmd.Flags().BoolVar(&flags.noAddressPairs, "no-allowed-address-pairs", false, "Remove every allowed address pair")
	return cmd
}

// update builds a PortUpdate from the flags that were set
func (f *portFlags) update(fs *pflag.FlagSet) (model.PortUpdate, error) {
	var upd model.PortUpdate
	if fs.Changed("name") {
		upd.Name = &f.name
	}
	if fs.Changed("admin-state-up") {
		upd.AdminStateUp = &f.adminStateUp
	}
	if fs.Changed("binding-profile") {
		profile, err := parseBindingProfile(f.profile)
		if err != nil {
			return upd, err
		}
		if profile == nil {
			profile = model.BindingProfile{}
		}
		upd.BindingProfile = profile
	}
	if fs.Changed("allowed-address-pair") {
		pairs, err := parseAddressPairs(f.addressPairs)
		if err != nil {
			return upd, err
		}
		upd.AllowedAddressPairs = &pairs
	}
	if fs.Changed("security-group") {
		groups := f.securityGroups
		upd.SecurityGroups = &groups
	}
	if fs.Changed("device-id") {
		upd.DeviceID = &f.deviceID
	}
	if fs.Changed("device-owner") {
		upd.DeviceOwner = &f.deviceOwner
	}
	return upd, nil
}

func newPortDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete PORT",
		Short: "Delete a port and its topology",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return nil, a.plugin.DeletePort(ctx, args[0])
			})
		},
	}
}

func newPortShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show PORT",
		Short: "Show a port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.plugin.GetPort(ctx, args[0])
			})
		},
	}
}

// parseKeyValues parses "k1=v1,k2=v2", accepting only the given keys
func parseKeyValues(s string, keys ...string) (map[string]string, error) {
	allowed := make(map[string]bool, len(keys))
	for _, k := range keys {
		allowed[k] = true
	}
	out := map[string]string{}
	for _, field := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok || v == "" {
			return nil, fmt.Errorf("invalid field %q in %q, want key=value", field, s)
		}
		if !allowed[k] {
			return nil, fmt.Errorf("unknown key %q in %q, want one of %s", k, s, strings.Join(keys, ", "))
		}
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("duplicate key %q in %q", k, s)
		}
		out[k] = v
	}
	return out, nil
}

func parseFixedIPs(values []string) ([]model.FixedIP, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]model.FixedIP, 0, len(values))
	for _, v := range values {
		kv, err := parseKeyValues(v, "subnet_id", "ip_address")
		if err != nil {
			return nil, err
		}
		out = append(out, model.FixedIP{SubnetID: kv["subnet_id"], IPAddress: kv["ip_address"]})
	}
	return out, nil
}

func parseAddressPairs(values []string) ([]model.AllowedAddressPair, error) {
	out := make([]model.AllowedAddressPair, 0, len(values))
	for _, v := range values {
		kv, err := parseKeyValues(v, "ip_address", "mac_address")
		if err != nil {
			return nil, err
		}
		if kv["ip_address"] == "" {
			return nil, fmt.Errorf("allowed address pair %q has no ip_address", v)
		}
		out = append(out, model.AllowedAddressPair{IPAddress: kv["ip_address"], MACAddress: kv["mac_address"]})
	}
	return out, nil
}

// parseBindingProfile decodes a JSON object; an empty string is no profile
func parseBindingProfile(s string) (model.BindingProfile, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var profile model.BindingProfile
	if err := json.Unmarshal([]byte(s), &profile); err != nil {
		return nil, fmt.Errorf("invalid binding profile: %w", err)
	}
	return profile, nil
}
