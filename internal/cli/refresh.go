package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/reconcile"
	"github.com/trivia-pay/internal/store"
)

// RefreshResult is the outcome of a one-shot reconciliation pass
type RefreshResult struct {
	Address       string                `json:"address"`
	Balance       string                `json:"balance"`
	EscrowBalance string                `json:"escrowBalance,omitempty"`
	Stats         models.Stats          `json:"stats"`
	Transactions  int                   `json:"transactions"`
	Notifications []models.Notification `json:"notifications"`
	Failures      map[string]string     `json:"failures,omitempty"`
	FetchError    string                `json:"fetchError,omitempty"`
	DurationMS    int64                 `json:"durationMs"`
}

// NewRefreshCommand creates the refresh command
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "refresh <address>",
		Short: "Run one reconciliation pass for an address",
		Long: `Fetch balances, transaction history and application state for an address,
merge the wallet and escrow histories and list the bill requests found in
transaction notes.`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runRefresh(ctx, rootOpts, rootOpts.formatter(cmd), args[0])
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline for the pass")
	return cmd
}

func runRefresh(ctx context.Context, rootOpts *RootOptions, f *OutputFormatter, address string) error {
	if !models.IsValidAddressLength(address) {
		return f.Fail(ExitFailure, ErrCodeInvalidArgs,
			fmt.Sprintf("invalid Algorand address (must be 58 characters, got %d)", len(address)), nil)
	}

	cfg, ledger, err := rootOpts.open()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil)
	}
	f.VerboseLog("Refreshing %s on %s (app %d)", models.ShortenAddress(address), cfg.Ledger.Network, cfg.Contract.AppID)

	st := store.NewController(store.Initial(cfg.Ledger.Network, cfg.Contract.AppID, cfg.Contract.EscrowAddress))
	engine := reconcile.NewEngine(ledger, st, nil, reconcile.Options{HistoryLimit: cfg.Refresh.HistoryLimit})

	report, err := engine.Refresh(ctx, address)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil)
	}

	state := st.State()
	result := RefreshResult{
		Address:       address,
		Balance:       report.Balance.StringFixed(4),
		Stats:         report.Stats,
		Transactions:  report.Transactions,
		Notifications: report.NewNotifications,
		FetchError:    report.FetchError,
		DurationMS:    report.Duration.Milliseconds(),
	}
	if result.Notifications == nil {
		result.Notifications = []models.Notification{}
	}
	if state.EscrowBalance != nil {
		result.EscrowBalance = state.EscrowBalance.StringFixed(4)
	}
	if len(report.Failures) > 0 {
		result.Failures = make(map[string]string, len(report.Failures))
		for name, ferr := range report.Failures {
			result.Failures[name] = ferr.Error()
		}
	}

	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Address:       %s\n", result.Address)
		fmt.Fprintf(w, "Balance:       %s ALGO\n", result.Balance)
		if result.EscrowBalance != "" {
			fmt.Fprintf(w, "Escrow:        %s ALGO\n", result.EscrowBalance)
		}
		fmt.Fprintf(w, "Transactions:  %d\n", result.Transactions)
		fmt.Fprintf(w, "Deposited:     %s ALGO\n", result.Stats.TotalDeposited.StringFixed(4))
		fmt.Fprintf(w, "Bill requests: %d\n", len(result.Notifications))
		for _, n := range result.Notifications {
			fmt.Fprintf(w, "  - %s: %s ALGO from %s\n", n.BillName, n.Share.String(), models.ShortenAddress(n.CreatorAddress))
		}
		if result.FetchError != "" {
			fmt.Fprintf(w, "Warning:       %s\n", result.FetchError)
		}
		names := make([]string, 0, len(result.Failures))
		for name := range result.Failures {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "Failed lookup: %s (%s)\n", name, result.Failures[name])
		}
	})
}
