package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. environ replaces the process
// environment when non-nil.
func newRootCmd(environ map[string]string) *cobra.Command {
	l := &loader{environ: environ}

	root := &cobra.Command{
		Use:           "licensekit",
		Short:         "License entitlements and one-off plan purchases",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&l.envFiles, "env-file", nil, "additional dotenv files to load")

	root.AddCommand(
		newServeCmd(l),
		newMigrateCmd(l),
		newOrdersCmd(l),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "licensekit %s (commit %s)\n", Version, Commit)
		},
	}
}
