package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/trivia-pay/internal/paymenturi"
	"github.com/trivia-pay/internal/service"
)

// handleListBills handles GET /api/bills
func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"bills": s.services.Bills.List()})
}

// handleCreateBill handles POST /api/bills. The bill is stored even when its
// notifications fail; the notify outcome tells the caller what happened.
func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var input service.CreateBillInput
	if err := parseJSONBody(r, &input); err != nil {
		invalidBody(w)
		return
	}

	result, err := s.services.Bills.CreateBill(r.Context(), input)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// handleGetBill handles GET /api/bills/{id}
func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := s.services.Bills.Get(mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"bill":     bill,
		"paid":     bill.PaidCount(),
		"progress": bill.Progress(),
		"settled":  bill.IsSettled(),
	})
}

// handleDeleteBill handles DELETE /api/bills/{id}
func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Bills.DeleteBill(mux.Vars(r)["id"]); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMarkPaid handles POST /api/bills/{id}/payees/{payeeId}/paid
func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bill, err := s.services.Bills.MarkPaid(vars["id"], vars["payeeId"])
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"bill":     bill,
		"progress": bill.Progress(),
		"settled":  bill.IsSettled(),
	})
}

// handlePayeeBalance handles GET /api/bills/{id}/payees/{payeeId}/balance
func (s *Server) handlePayeeBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	check, err := s.services.Bills.CheckPayeeBalance(r.Context(), vars["id"], vars["payeeId"])
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, check)
}

// handlePayeeRequest handles GET /api/bills/{id}/payees/{payeeId}/request.
// ?format=png returns the request as a QR code.
func (s *Server) handlePayeeRequest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	req, err := s.services.Bills.PaymentRequest(vars["id"], vars["payeeId"])
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondPaymentRequest(w, r, req)
}

func (s *Server) respondPaymentRequest(w http.ResponseWriter, r *http.Request, req *service.PaymentRequest) {
	if r.URL.Query().Get("format") != "png" {
		respondJSON(w, http.StatusOK, req)
		return
	}
	png, err := paymenturi.QRCodePNG(req.URI, s.config.QRSize)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondPNG(w, png)
}
