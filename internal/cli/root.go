// Package cli implements the stockbook command line.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

// Environment variables read by commands that log in.
const (
	EnvPin    = "STOCKBOOK_PIN"
	EnvNewPin = "STOCKBOOK_NEW_PIN"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	User   string
	Format string // "json" | "text"

	// Extra is appended to every fx app the commands build.
	Extra []fx.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the stockbook CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stockbook",
		Short: "stockbook - retail inventory and sales",
		Long: `Inventory, sales and purchases for a single store, priced in USD
and settled in ARS at the day's exchange rate.

Commands that change data log in as --user with the PIN taken from
` + EnvPin + `.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return NewExitError(ExitCommandError, err.Error())
	})

	cmd.PersistentFlags().StringVarP(&opts.User, "user", "u", "", "username to act as")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewFxCommand(opts))
	cmd.AddCommand(NewProductCommand(opts))
	cmd.AddCommand(NewSaleCommand(opts))
	cmd.AddCommand(NewPurchaseCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewUserCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// Execute runs the root command with args and returns the process exit code.
// Errors are written to stderr in the selected format.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	if !isValidFormat(opts.Format) {
		opts.Format = "text"
	}
	_ = (&OutputFormatter{Format: opts.Format, Writer: stderr}).Error(err)
	return GetExitCode(err)
}
