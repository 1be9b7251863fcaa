package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
)

func newRouterCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "router",
		Short: "Manage routers and router interfaces",
	}
	cmd.AddCommand(
		newRouterCreateCmd(opts),
		newRouterUpdateCmd(opts),
		newRouterDeleteCmd(opts),
		newRouterInterfaceCmd(opts, "add-interface"),
		newRouterInterfaceCmd(opts, "remove-interface"),
	)
	return cmd
}

func newRouterCreateCmd(opts *rootOptions) *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a router and its Logical Router",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.plugin.CreateRouter(ctx, &model.Router{ID: id, Name: name})
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Router id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "Router name")
	return cmd
}

func newRouterUpdateCmd(opts *rootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "update ROUTER",
		Short: "Update a router",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd model.RouterUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = &name
			}
			return opts.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.plugin.UpdateRouter(ctx, args[0], upd)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New router name")
	return cmd
}

func newRouterDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ROUTER",
		Short: "Delete a router and its Logical Router",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return nil, a.plugin.DeleteRouter(ctx, args[0])
			})
		},
	}
}

// newRouterInterfaceCmd builds add-interface or remove-interface
func newRouterInterfaceCmd(opts *rootOptions, use string) *cobra.Command {
	var info model.RouterInterfaceInfo
	short := "Attach a subnet or port to a router"
	if use == "remove-interface" {
		short = "Detach a subnet or port from a router and delete the interface port"
	}
	cmd := &cobra.Command{
		Use:   use + " ROUTER",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) (any, error) {
				if use == "remove-interface" {
					return a.plugin.RemoveRouterInterface(ctx, args[0], info)
				}
				return a.plugin.AddRouterInterface(ctx, args[0], info)
			})
		},
	}
	cmd.Flags().StringVar(&info.SubnetID, "subnet", "", "Subnet id")
	cmd.Flags().StringVar(&info.PortID, "port", "", "Port id")
	cmd.MarkFlagsMutuallyExclusive("subnet", "port")
	cmd.MarkFlagsOneRequired("subnet", "port")
	return cmd
}
