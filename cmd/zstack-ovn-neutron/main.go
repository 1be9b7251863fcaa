// Package main provides the entry point for zstack-ovn-neutron.
//
// zstack-ovn-neutron drives the OVN synchronizer from the command line. Every
// command applies one model operation to the SQLite model store and writes
// the resulting topology change to the OVN Northbound database.
//
// Usage:
//
//	zstack-ovn-neutron [--config FILE] [--log-level LEVEL] <command>
//
// Commands:
//
//	network create|update|delete
//	subnet create
//	port create|update|delete|show
//	security-group create|update|delete
//	security-group-rule create|delete
//	router create|update|delete|add-interface|remove-interface
//	serve-metrics
//	version
//
// Environment Variables:
//
//	ZSTACK_OVN_NEUTRON_CONFIG_FILE   Path to configuration file
//	ZSTACK_OVN_NEUTRON_NBDB_ADDRESS  OVN Northbound DB address
//	ZSTACK_OVN_NEUTRON_MODEL_DB_PATH SQLite model store path
//	ZSTACK_OVN_NEUTRON_L3_MODE       Write Logical Router Ports (default: true)
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// Version information (set at build time)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd(filepath.Base(os.Args[0])).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd(executable string) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   executable,
		Short: "Synchronize a Neutron-style network model into OVN",
		Args:  cobra.NoArgs,
		// Errors are printed by main
		SilenceErrors: true,
	}
	opts.addFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newNetworkCmd(opts),
		newSubnetCmd(opts),
		newPortCmd(opts),
		newSecurityGroupCmd(opts),
		newSecurityGroupRuleCmd(opts),
		newRouterCmd(opts),
		newServeMetricsCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "zstack-ovn-neutron\n")
			fmt.Fprintf(out, "  Version:    %s\n", version)
			fmt.Fprintf(out, "  Git Commit: %s\n", gitCommit)
			fmt.Fprintf(out, "  Build Date: %s\n", buildDate)
		},
	}
}
