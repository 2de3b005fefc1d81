package cli

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/trivia-pay/internal/notify"
)

// NoteResult is an encoded bill request note
type NoteResult struct {
	Note   string `json:"note"`
	Base64 string `json:"base64"`
	Bytes  int    `json:"bytes"`
}

// NewNoteCommand creates the note command group
func NewNoteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Encode and decode on-chain bill request notes",
	}
	cmd.AddCommand(newNoteEncodeCommand(rootOpts))
	cmd.AddCommand(newNoteDecodeCommand(rootOpts))
	return cmd
}

type noteEncodeOptions struct {
	billID       string
	billName     string
	billNote     string
	share        string
	total        string
	payeeName    string
	payeeAddress string
	creator      string
	date         string
}

func newNoteEncodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &noteEncodeOptions{}

	cmd := &cobra.Command{
		Use:           "encode",
		Short:         "Encode a bill request note",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNoteEncode(rootOpts.formatter(cmd), opts)
		},
	}

	cmd.Flags().StringVar(&opts.billID, "bill-id", "", "bill id")
	cmd.Flags().StringVar(&opts.billName, "name", "", "bill name")
	cmd.Flags().StringVar(&opts.billNote, "bill-note", "", "bill description")
	cmd.Flags().StringVar(&opts.share, "share", "0", "payee share in ALGO")
	cmd.Flags().StringVar(&opts.total, "total", "0", "bill total in ALGO")
	cmd.Flags().StringVar(&opts.payeeName, "payee-name", "", "payee display name")
	cmd.Flags().StringVar(&opts.payeeAddress, "payee-address", "", "payee address")
	cmd.Flags().StringVar(&opts.creator, "creator", "", "bill creator address")
	cmd.Flags().StringVar(&opts.date, "date", "", "human readable bill date")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func runNoteEncode(f *OutputFormatter, opts *noteEncodeOptions) error {
	share, err := decimal.NewFromString(opts.share)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeInvalidArgs, fmt.Sprintf("invalid share %q", opts.share), nil)
	}
	total, err := decimal.NewFromString(opts.total)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeInvalidArgs, fmt.Sprintf("invalid total %q", opts.total), nil)
	}

	note, err := notify.Encode(notify.NotePayload{
		BillID:         opts.billID,
		BillName:       opts.billName,
		BillNote:       opts.billNote,
		Share:          share,
		Total:          total,
		PayeeName:      opts.payeeName,
		PayeeAddress:   opts.payeeAddress,
		CreatorAddress: opts.creator,
		Date:           opts.date,
	})
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidNote, err.Error(), nil)
	}

	f.VerboseLog("Encoded note is %d bytes", len(note))
	result := NoteResult{
		Note:   string(note),
		Base64: base64.StdEncoding.EncodeToString(note),
		Bytes:  len(note),
	}
	return f.Success(result, func(w io.Writer) {
		fmt.Fprintln(w, result.Note)
	})
}

func newNoteDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	var isBase64 bool

	cmd := &cobra.Command{
		Use:   "decode <note>",
		Short: "Decode a bill request note",
		Long: `Decode a transaction note carrying a bill request. Notes read from the
indexer are base64 encoded; pass --base64 to decode those.`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNoteDecode(rootOpts.formatter(cmd), args[0], isBase64)
		},
	}

	cmd.Flags().BoolVar(&isBase64, "base64", false, "the note is base64 encoded")
	return cmd
}

func runNoteDecode(f *OutputFormatter, raw string, isBase64 bool) error {
	note := []byte(raw)
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeInvalidNote, "note is not valid base64", nil)
		}
		note = decoded
	}

	if !notify.HasPrefix(note) {
		return f.Fail(ExitFailure, ErrCodeInvalidNote,
			fmt.Sprintf("note does not start with %s", notify.Prefix), nil)
	}
	payload, ok := notify.Decode(note)
	if !ok {
		return f.Fail(ExitFailure, ErrCodeInvalidNote, "bill request payload is malformed", nil)
	}

	return f.Success(payload, func(w io.Writer) {
		rows := []struct{ label, field, value string }{
			{"Bill ID", "billId", payload.BillID},
			{"Bill", "billName", payload.BillName},
			{"Note", "billNote", payload.BillNote},
			{"Share", "share", payload.Share.String() + " ALGO"},
			{"Total", "total", payload.Total.String() + " ALGO"},
			{"Payee", "payeeName", payload.PayeeName},
			{"Payee address", "payeeAddress", payload.PayeeAddress},
			{"Creator", "creatorAddress", payload.CreatorAddress},
			{"Date", "date", payload.Date},
		}
		for _, row := range rows {
			if payload.Has(row.field) {
				fmt.Fprintf(w, "%-14s %s\n", row.label+":", row.value)
			}
		}
	})
}
