package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/util"
)

func newNetworkCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Manage networks",
	}
	cmd.AddCommand(
		newNetworkCreateCmd(opts),
		newNetworkUpdateCmd(opts),
		newNetworkDeleteCmd(opts),
	)
	return cmd
}

func newNetworkCreateCmd(opts *rootOptions) *cobra.Command {
	var flags struct {
		id, name        string
		physicalNetwork string
		networkType     string
		segmentationID  int
	}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a network and its Logical Switch",
		Example: `  zstack-ovn-neutron network create --name private
  zstack-ovn-neutron network create --name ext --provider-physical-network physnet1 \
      --provider-network-type vlan --provider-segmentation-id 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			net := &model.Network{ID: flags.id, Name: flags.name}
			provider := &model.ProviderAttributes{
				PhysicalNetwork: flags.physicalNetwork,
				NetworkType:     flags.networkType,
			}
			if cmd.Flags().Changed("provider-segmentation-id") {
				provider.SegmentationID = &flags.segmentationID
			}
			if provider.IsSet() {
				net.Provider = provider
			}
			return opts.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.plugin.CreateNetwork(ctx, net)
			})
		},
	}
	cmd.Flags().StringVar(&flags.id, "id", "", "Network id (generated when empty)")
	cmd.Flags().StringVar(&flags.name, "name", "", "Network name")
	cmd.Flags().StringVar(&flags.physicalNetwork, "provider-physical-network", "", "Physical network of a provider network")
	cmd.Flags().StringVar(&flags.networkType, "provider-network-type", "", "Provider network type: flat or vlan")
	cmd.Flags().IntVar(&flags.segmentationID, "provider-segmentation-id", 0, "VLAN id of a vlan provider network")
	return cmd
}

func newNetworkUpdateCmd(opts *rootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "update NETWORK",
		Short: "Update a network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd model.NetworkUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = &name
			}
			return opts.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.plugin.UpdateNetwork(ctx, args[0], upd)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New network name")
	return cmd
}

func newNetworkDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NETWORK",
		Short: "Delete a network and its Logical Switch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return nil, a.plugin.DeleteNetwork(ctx, args[0])
			})
		},
	}
}

// Special values of subnet create --gateway
const (
	gatewayAuto = "auto"
	gatewayNone = "none"
)

func newSubnetCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subnet",
		Short: "Manage subnets",
	}
	cmd.AddCommand(newSubnetCreateCmd(opts))
	return cmd
}

func newSubnetCreateCmd(opts *rootOptions) *cobra.Command {
	var flags struct {
		id, name, network, cidr, gateway string
	}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a subnet",
		Example: `  zstack-ovn-neutron subnet create --network NET --cidr 10.0.0.0/24
  zstack-ovn-neutron subnet create --network NET --cidr fd00::/64 --gateway none`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gateway, err := resolveGateway(flags.cidr, flags.gateway)
			if err != nil {
				return err
			}
			subnet := &model.Subnet{
				ID:        flags.id,
				NetworkID: flags.network,
				Name:      flags.name,
				CIDR:      flags.cidr,
				GatewayIP: gateway,
			}
			return opts.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.plugin.CreateSubnet(ctx, subnet)
			})
		},
	}
	cmd.Flags().StringVar(&flags.id, "id", "", "Subnet id (generated when empty)")
	cmd.Flags().StringVar(&flags.name, "name", "", "Subnet name")
	cmd.Flags().StringVar(&flags.network, "network", "", "Network id")
	cmd.Flags().StringVar(&flags.cidr, "cidr", "", "Subnet CIDR")
	cmd.Flags().StringVar(&flags.gateway, "gateway", gatewayAuto,
		"Gateway IP, 'auto' for the first host address or 'none'")
	_ = cmd.MarkFlagRequired("network")
	_ = cmd.MarkFlagRequired("cidr")
	return cmd
}

// resolveGateway turns the --gateway flag into a gateway address
func resolveGateway(cidr, gateway string) (string, error) {
	switch gateway {
	case gatewayNone:
		return "", nil
	case gatewayAuto, "":
		prefix, _, err := util.ParseSubnet(cidr)
		if err != nil {
			return "", err
		}
		gw := util.DefaultGateway(prefix)
		if !prefix.Contains(gw) {
			return "", fmt.Errorf("subnet %s has no room for a gateway", cidr)
		}
		return gw.String(), nil
	default:
		return gateway, nil
	}
}
