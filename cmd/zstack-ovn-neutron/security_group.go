package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
)

func newSecurityGroupCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "security-group",
		Aliases: []string{"sg"},
		Short:   "Manage security groups",
	}
	cmd.AddCommand(
		newSecurityGroupCreateCmd(opts),
		newSecurityGroupUpdateCmd(opts),
		newSecurityGroupDeleteCmd(opts),
	)
	return cmd
}

func newSecurityGroupCreateCmd(opts *rootOptions) *cobra.Command {
	var flags struct {
		id, name, description string
	}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a security group without rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sg := &model.SecurityGroup{ID: flags.id, Name: flags.name, Description: flags.description}
			return opts.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.plugin.CreateSecurityGroup(ctx, sg)
			})
		},
	}
	cmd.Flags().StringVar(&flags.id, "id", "", "Security group id (generated when empty)")
	cmd.Flags().StringVar(&flags.name, "name", "", "Security group name")
	cmd.Flags().StringVar(&flags.description, "description", "", "Description")
	return cmd
}

func newSecurityGroupUpdateCmd(opts *rootOptions) *cobra.Command {
	var flags struct {
		name, description string
	}
	cmd := &cobra.Command{
		Use:   "update SECURITY_GROUP",
		Short: "Update a security group and refresh its ports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd model.SecurityGroupUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = &flags.name
			}
			if cmd.Flags().Changed("description") {
				upd.Description = &flags.description
			}
			return opts.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.plugin.UpdateSecurityGroup(ctx, args[0], upd)
			})
		},
	}
	cmd.Flags().StringVar(&flags.name, "name", "", "New name")
	cmd.Flags().StringVar(&flags.description, "description", "", "New description")
	return cmd
}

func newSecurityGroupDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete SECURITY_GROUP",
		Short: "Delete a security group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return nil, a.plugin.DeleteSecurityGroup(ctx, args[0])
			})
		},
	}
}

func newSecurityGroupRuleCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "security-group-rule",
		Aliases: []string{"sg-rule"},
		Short:   "Manage security group rules",
	}
	cmd.AddCommand(
		newSecurityGroupRuleCreateCmd(opts),
		newSecurityGroupRuleDeleteCmd(opts),
	)
	return cmd
}

func newSecurityGroupRuleCreateCmd(opts *rootOptions) *cobra.Command {
	var flags struct {
		id, group            string
		direction, ethertype string
		protocol             string
		portMin, portMax     int
		remotePrefix         string
		remoteGroup          string
	}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a rule and refresh the ports of its group",
		Example: `  zstack-ovn-neutron security-group-rule create --security-group SG --protocol tcp \
      --port-range-min 22 --port-range-max 22 --remote-ip-prefix 0.0.0.0/0
  zstack-ovn-neutron security-group-rule create --security-group SG --remote-group SG`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rule := &model.SecurityGroupRule{
				ID:              flags.id,
				SecurityGroupID: flags.group,
				Direction:       flags.direction,
				Ethertype:       flags.ethertype,
				Protocol:        flags.protocol,
				RemoteIPPrefix:  flags.remotePrefix,
				RemoteGroupID:   flags.remoteGroup,
			}
			if cmd.Flags().Changed("port-range-min") {
				rule.PortRangeMin = &flags.portMin
			}
			if cmd.Flags().Changed("port-range-max") {
				rule.PortRangeMax = &flags.portMax
			}
			return opts.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.plugin.CreateSecurityGroupRule(ctx, rule)
			})
		},
	}
	cmd.Flags().StringVar(&flags.id, "id", "", "Rule id (generated when empty)")
	cmd.Flags().StringVar(&flags.group, "security-group", "", "Owning security group id")
	cmd.Flags().StringVar(&flags.direction, "direction", model.DirectionIngress, "ingress or egress")
	cmd.Flags().StringVar(&flags.ethertype, "ethertype", model.EthertypeIPv4, "IPv4 or IPv6")
	cmd.Flags().StringVar(&flags.protocol, "protocol", "", "tcp, udp, icmp or empty for any")
	cmd.Flags().IntVar(&flags.portMin, "port-range-min", -1, "Lowest port, or ICMP type")
	cmd.Flags().IntVar(&flags.portMax, "port-range-max", -1, "Highest port, or ICMP code")
	cmd.Flags().StringVar(&flags.remotePrefix, "remote-ip-prefix", "", "Remote CIDR")
	cmd.Flags().StringVar(&flags.remoteGroup, "remote-group", "", "Remote security group id")
	_ = cmd.MarkFlagRequired("security-group")
	cmd.MarkFlagsMutuallyExclusive("remote-ip-prefix", "remote-group")
	return cmd
}

func newSecurityGroupRuleDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete RULE",
		Short: "Delete a rule and refresh the ports of its group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) (any, error) {
				return nil, a.plugin.DeleteSecurityGroupRule(ctx, args[0])
			})
		},
	}
}
