package cli

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/paymenturi"
)

// URIResult describes a payment request
type URIResult struct {
	URI       string `json:"uri"`
	Address   string `json:"address"`
	Amount    string `json:"amount,omitempty"`
	Note      string `json:"note,omitempty"`
	HasAmount bool   `json:"hasAmount"`
}

// NewURICommand creates the uri command group
func NewURICommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uri",
		Short: "Build and parse algorand:// payment requests",
	}
	cmd.AddCommand(newURIBuildCommand(rootOpts))
	cmd.AddCommand(newURIParseCommand(rootOpts))
	return cmd
}

func newURIBuildCommand(rootOpts *RootOptions) *cobra.Command {
	var amount, note string

	cmd := &cobra.Command{
		Use:   "build <address>",
		Short: "Build a payment request URI",
		Long: `Build an algorand:// payment request. The amount is given in ALGO and
encoded in microAlgos; a blank note is left out.`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runURIBuild(rootOpts.formatter(cmd), args[0], amount, note)
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "amount in ALGO")
	cmd.Flags().StringVar(&note, "note", "", "transaction note")
	return cmd
}

func runURIBuild(f *OutputFormatter, address, amount, note string) error {
	if !models.IsValidAddressLength(address) {
		return f.Fail(ExitFailure, ErrCodeInvalidArgs,
			fmt.Sprintf("invalid Algorand address (must be 58 characters, got %d)", len(address)), nil)
	}

	value := decimal.Zero
	if amount != "" {
		d, err := decimal.NewFromString(amount)
		if err != nil || d.IsNegative() {
			return f.Fail(ExitFailure, ErrCodeInvalidArgs, fmt.Sprintf("invalid amount %q", amount), nil)
		}
		value = d
	}

	uri := paymenturi.Build(address, value, note)
	req, err := paymenturi.Parse(uri)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeInvalidURI, err.Error(), nil)
	}
	return f.Success(newURIResult(uri, req), func(w io.Writer) {
		fmt.Fprintln(w, uri)
	})
}

func newURIParseCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <uri-or-address>",
		Short: "Decode a scanned payment request",
		Long: `Decode a scanned payment string: either a bare Algorand address or an
algorand:// URI with optional amount (microAlgos) and note.`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runURIParse(rootOpts.formatter(cmd), args[0])
		},
	}
}

func runURIParse(f *OutputFormatter, raw string) error {
	req, err := paymenturi.Parse(raw)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeInvalidURI, err.Error(), nil)
	}

	result := newURIResult(paymenturi.Build(req.Address, req.Amount, req.Note), req)
	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Address: %s\n", result.Address)
		if result.HasAmount {
			fmt.Fprintf(w, "Amount:  %s ALGO\n", result.Amount)
		}
		if result.Note != "" {
			fmt.Fprintf(w, "Note:    %s\n", result.Note)
		}
	})
}

func newURIResult(uri string, req *paymenturi.Request) URIResult {
	return URIResult{
		URI:       uri,
		Address:   req.Address,
		Amount:    req.AmountString(),
		Note:      req.Note,
		HasAmount: req.HasAmount(),
	}
}
