package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trivia-pay/internal/adapter"
	"github.com/trivia-pay/internal/circuitbreaker"
	"github.com/trivia-pay/internal/config"
	"github.com/trivia-pay/internal/logging"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ValidFormats lists the accepted --format values
var ValidFormats = []string{FormatText, FormatJSON}

// Opener loads the configuration and connects the ledger for commands that
// talk to the network
type Opener func() (*config.Config, adapter.Ledger, error)

// RootOptions holds global flags for all commands
type RootOptions struct {
	Verbose bool
	Format  string

	open Opener
}

// NewRootCommand creates payctl against the configured Algorand nodes
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOpener(OpenLedger)
}

// NewRootCommandWithOpener creates payctl with a custom ledger source
func NewRootCommandWithOpener(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "payctl",
		Short: "Trivia Pay operator tool",
		Long: `payctl builds and inspects Trivia Pay payment requests and bill notes,
renders QR codes and runs one-shot reconciliation passes against the ledger.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatText, "output format (text|json)")

	cmd.AddCommand(NewURICommand(opts))
	cmd.AddCommand(NewNoteCommand(opts))
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewQRCommand(opts))

	return cmd
}

// OpenLedger loads configuration from the environment and returns the
// circuit-guarded Algorand ledger
func OpenLedger() (*config.Config, adapter.Ledger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))

	ledger, err := adapter.NewAlgorandLedger(&cfg.Ledger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect ledger: %w", err)
	}
	return cfg, adapter.NewGuardedLedger(ledger, circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig)), nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
