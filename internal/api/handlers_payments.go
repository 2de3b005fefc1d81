package api

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/paymenturi"
	"github.com/trivia-pay/internal/service"
)

// handleSendPayment handles POST /api/payments. The body names either a
// receiver address or a scanned payment request URI.
func (s *Server) handleSendPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Receiver string          `json:"receiver"`
		URI      string          `json:"uri"`
		Amount   decimal.Decimal `json:"amount"`
		Note     string          `json:"note"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		invalidBody(w)
		return
	}

	var (
		receipt *service.Receipt
		err     error
	)
	switch {
	case strings.TrimSpace(req.URI) != "":
		receipt, err = s.services.Payments.PayRequest(r.Context(), req.URI, req.Amount, req.Note)
	case strings.TrimSpace(req.Receiver) != "":
		receipt, err = s.services.Payments.Send(r.Context(), req.Receiver, req.Amount, req.Note)
	default:
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "receiver or uri is required", nil)
		return
	}
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, receipt)
}

// handleDeposit handles POST /api/deposits
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		invalidBody(w)
		return
	}

	receipt, err := s.services.Payments.DepositToEscrow(r.Context(), req.Amount)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, receipt)
}

// handleReceive handles GET /api/receive?amount=&note=&format=png. It builds a
// payment request to the connected address.
func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	address, err := s.services.Session.Address()
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	query := r.URL.Query()
	amount := decimal.Zero
	if raw := strings.TrimSpace(query.Get("amount")); raw != "" {
		amount, err = decimal.NewFromString(raw)
		if err != nil || amount.IsNegative() {
			respondError(w, http.StatusBadRequest, "INVALID_AMOUNT", "Enter a valid ALGO amount.", nil)
			return
		}
	}

	s.respondPaymentRequest(w, r, &service.PaymentRequest{
		Share: amount,
		URI:   paymenturi.Build(address, amount, query.Get("note")),
	})
}

// handleReceiveQR handles GET /api/receive/qr, the PNG form of /api/receive
func (s *Server) handleReceiveQR(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	query.Set("format", "png")
	r.URL.RawQuery = query.Encode()
	s.handleReceive(w, r)
}

// handleScan handles POST /api/scan: it decodes a scanned QR payload
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data string `json:"data"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		invalidBody(w)
		return
	}

	parsed, err := paymenturi.Parse(req.Data)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PAYMENT_REQUEST", err.Error(), nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address":   parsed.Address,
		"amount":    parsed.AmountString(),
		"note":      parsed.Note,
		"hasAmount": parsed.HasAmount(),
	})
}
