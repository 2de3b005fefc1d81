package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/service"
)

// handleListGoals handles GET /api/goals
func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals := s.services.Goals.List()
	views := make([]map[string]interface{}, 0, len(goals))
	for _, g := range goals {
		views = append(views, map[string]interface{}{
			"goal":     g,
			"percent":  g.Percent(),
			"complete": g.IsComplete(),
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"goals":     views,
		"allocated": service.TotalAllocated(goals),
		"available": service.AvailableBalance(s.services.Store.State()),
	})
}

// handleCreateGoal handles POST /api/goals
func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var input service.CreateGoalInput
	if err := parseJSONBody(r, &input); err != nil {
		invalidBody(w)
		return
	}

	goal, err := s.services.Goals.CreateGoal(input)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, goal)
}

// handleDeleteGoal handles DELETE /api/goals/{id}
func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Goals.DeleteGoal(mux.Vars(r)["id"]); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGoalDeposit handles POST /api/goals/{id}/deposit
func (s *Server) handleGoalDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		invalidBody(w)
		return
	}

	goal, err := s.services.Goals.Deposit(mux.Vars(r)["id"], req.Amount)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"goal":     goal,
		"percent":  goal.Percent(),
		"complete": goal.IsComplete(),
	})
}
