package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// handleListNotifications handles GET /api/notifications?unread=true
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	notifications := s.services.Notifications.List(unreadOnly)
	st := s.services.Store.State()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"unread":        st.UnreadNotifications(),
	})
}

// handleMarkRead handles POST /api/notifications/{id}/read
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Notifications.MarkRead(mux.Vars(r)["id"]); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMarkAllRead handles POST /api/notifications/read
func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"updated": s.services.Notifications.MarkAllRead()})
}

// handleDismissNotification handles DELETE /api/notifications/{id}
func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Notifications.Dismiss(mux.Vars(r)["id"]); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDismissAll handles DELETE /api/notifications
func (s *Server) handleDismissAll(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"removed": s.services.Notifications.DismissAll()})
}

// handleNotificationRequest handles GET /api/notifications/{id}/request
func (s *Server) handleNotificationRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.services.Notifications.PaymentRequest(mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondPaymentRequest(w, r, req)
}
