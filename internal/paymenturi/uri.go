// Package paymenturi builds and parses algorand:// payment request URIs and
// renders them as QR codes.
package paymenturi

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/trivia-pay/internal/models"
)

// Scheme is the URI scheme of a payment request
const Scheme = "algorand://"

// DefaultQRSize is the edge length in pixels of rendered QR codes
const DefaultQRSize = 256

var bareAddress = regexp.MustCompile(`^[A-Z2-7]{58}$`)

// Request is a decoded payment request. Amount is zero when the URI carried none.
type Request struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
	Note    string          `json:"note"`
}

// HasAmount reports whether the request asks for a specific amount
func (r *Request) HasAmount() bool {
	return r.Amount.IsPositive()
}

// AmountString renders the amount with up to six decimals and no trailing zeros,
// or an empty string when there is none.
func (r *Request) AmountString() string {
	if !r.HasAmount() {
		return ""
	}
	s := r.Amount.StringFixed(6)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// Build returns algorand://<address>?amount=<micro>&note=<note>. The amount is
// included only when positive and the note only when it is not blank.
func Build(address string, amount decimal.Decimal, note string) string {
	if address == "" {
		return ""
	}

	params := url.Values{}
	if amount.IsPositive() {
		params.Set("amount", strconv.FormatUint(models.DisplayToMicro(amount), 10))
	}
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		params.Set("note", trimmed)
	}

	uri := Scheme + address
	if qs := params.Encode(); qs != "" {
		uri += "?" + qs
	}
	return uri
}

// Parse decodes a scanned payment string. It accepts a bare account address or
// an algorand:// URI whose address has the account address length.
func Parse(raw string) (*Request, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("empty payment request")
	}

	if bareAddress.MatchString(trimmed) {
		return &Request{Address: trimmed}, nil
	}

	if !strings.HasPrefix(strings.ToLower(trimmed), Scheme) {
		return nil, fmt.Errorf("not an algorand payment request")
	}

	rest := trimmed[len(Scheme):]
	address, query, _ := strings.Cut(rest, "?")
	if !models.IsValidAddressLength(address) {
		return nil, fmt.Errorf("invalid address length %d", len(address))
	}

	params, err := url.ParseQuery(query)
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	req := &Request{Address: address, Note: params.Get("note")}
	if micro := params.Get("amount"); micro != "" {
		n, err := decimal.NewFromString(micro)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", micro, err)
		}
		req.Amount = n.Shift(-6).Round(6)
	}
	return req, nil
}

// QRCodePNG renders content as a PNG QR code of size x size pixels
func QRCodePNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	return png, nil
}
