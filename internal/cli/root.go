// Package cli implements helpdeskctl, the operator tool for the help-desk
// service.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-service/internal/config"
)

// configLoader is swapped in tests.
var configLoader = config.Load

// NewRootCommand assembles the helpdeskctl command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "helpdeskctl",
		Short:         "Operate the help-desk ticket service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSLACommand(), newTokenCommand(), newSweepCommand(), newMigrateCommand())
	return root
}
