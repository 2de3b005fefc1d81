package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/reconcile"
	"github.com/trivia-pay/internal/service"
	"github.com/trivia-pay/internal/types"
)

// sessionView is the public part of the session state
type sessionView struct {
	Connected     bool          `json:"connected"`
	Address       string        `json:"address,omitempty"`
	Network       types.Network `json:"network"`
	AppID         uint64        `json:"appId"`
	EscrowAddress string        `json:"escrowAddress"`
	Loading       bool          `json:"loading"`
	LastRefreshed *time.Time    `json:"lastRefreshed"`
	FetchError    string        `json:"fetchError,omitempty"`
	Version       uint64        `json:"version"`
}

// refreshView summarizes one reconciliation pass
type refreshView struct {
	Generation       uint64            `json:"generation"`
	Address          string            `json:"address,omitempty"`
	Skipped          bool              `json:"skipped"`
	Stale            bool              `json:"stale"`
	Balance          decimal.Decimal   `json:"balance"`
	Transactions     int               `json:"transactions"`
	Stats            models.Stats      `json:"stats"`
	NewNotifications int               `json:"newNotifications"`
	Failures         map[string]string `json:"failures,omitempty"`
	FetchError       string            `json:"fetchError,omitempty"`
	DurationMs       int64             `json:"durationMs"`
}

func newRefreshView(rep *reconcile.Report) refreshView {
	v := refreshView{
		Generation:       rep.Generation,
		Address:          rep.Address,
		Skipped:          rep.Skipped,
		Stale:            rep.Stale,
		Balance:          rep.Balance,
		Transactions:     rep.Transactions,
		Stats:            rep.Stats,
		NewNotifications: len(rep.NewNotifications),
		FetchError:       rep.FetchError,
		DurationMs:       rep.Duration.Milliseconds(),
	}
	if len(rep.Failures) > 0 {
		v.Failures = make(map[string]string, len(rep.Failures))
		for lookup, err := range rep.Failures {
			v.Failures[lookup] = err.Error()
		}
	}
	return v
}

// handleGetSession handles GET /api/session
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	st := s.services.Store.State()
	respondJSON(w, http.StatusOK, sessionView{
		Connected:     st.WalletConnected,
		Address:       st.Address,
		Network:       st.Network,
		AppID:         st.AppID,
		EscrowAddress: st.EscrowAddress,
		Loading:       st.Loading,
		LastRefreshed: st.LastRefreshed,
		FetchError:    st.FetchError,
		Version:       s.services.Store.Version(),
	})
}

// handleConnect handles POST /api/session/connect
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	address, err := s.services.Session.Connect(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"connected": true,
		"address":   address,
	})
}

// handleDisconnect handles POST /api/session/disconnect
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Session.Disconnect(r.Context()); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"connected": false})
}

// handleRefresh handles POST /api/refresh. With ?wait=false it only nudges
// the background loop.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if wait, err := strconv.ParseBool(r.URL.Query().Get("wait")); err == nil && !wait {
		respondJSON(w, http.StatusAccepted, map[string]interface{}{
			"triggered": s.services.Session.TriggerRefresh(),
		})
		return
	}

	report, err := s.services.Session.Refresh(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newRefreshView(report))
}

// handleGetSettings handles GET /api/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st := s.services.Store.State()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"appId":         st.AppID,
		"escrowAddress": st.EscrowAddress,
	})
}

// handleUpdateSettings handles PUT /api/settings. Omitted fields are left as they are.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AppID         *uint64 `json:"appId"`
		EscrowAddress *string `json:"escrowAddress"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		invalidBody(w)
		return
	}

	if req.EscrowAddress != nil {
		if err := s.services.Session.SetEscrowAddress(r.Context(), *req.EscrowAddress); err != nil {
			s.respondServiceError(w, r, err)
			return
		}
	}
	if req.AppID != nil {
		if err := s.services.Session.SetAppID(r.Context(), *req.AppID); err != nil {
			s.respondServiceError(w, r, err)
			return
		}
	}
	s.handleGetSettings(w, r)
}

// handleGetTransactions handles GET /api/transactions
func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := service.TransactionFilter{
		Type:   types.TransactionType(query.Get("type")),
		Status: types.TransactionStatus(strings.ToLower(query.Get("status"))),
		Search: strings.TrimSpace(query.Get("search")),
	}
	if filter.Type == "All" {
		filter.Type = ""
	}
	if filter.Status == "all" {
		filter.Status = ""
	}

	page := service.FilterTransactions(s.services.Store.State().RecentTransactions, filter)

	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(page.Transactions) {
			page.Transactions = page.Transactions[:l]
		}
	}

	respondJSON(w, http.StatusOK, page)
}

// handleGetAppState handles GET /api/app-state
func (s *Server) handleGetAppState(w http.ResponseWriter, r *http.Request) {
	st := s.services.Store.State()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"appId":       st.AppID,
		"globalState": st.AppGlobalState,
	})
}

// handleGetDashboard handles GET /api/dashboard
func (s *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.services.Analytics.Dashboard())
}

// handleGetAnalytics handles GET /api/analytics
func (s *Server) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.services.Analytics.Overview())
}

// handleGetHistory handles GET /api/analytics/history?days=N
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	days := 0
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		d, err := strconv.Atoi(daysStr)
		if err != nil || d <= 0 || d > 366 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "days must be between 1 and 366", nil)
			return
		}
		days = d
	}

	history, err := s.services.Analytics.History(r.Context(), days)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"days": history})
}
