package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/logging"
	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/store"
	"github.com/trivia-pay/internal/types"
)

// CreateGoalInput describes a new savings goal
type CreateGoalInput struct {
	Name     string          `json:"name"`
	Target   decimal.Decimal `json:"target"`
	Deadline *time.Time      `json:"deadline,omitempty"`
	Icon     string          `json:"icon"`
	Color    string          `json:"color"`
}

// GoalService manages local savings goals
type GoalService struct {
	store  *store.Controller
	newID  func() string
	logger *logging.Logger
}

// NewGoalService creates a goal service
func NewGoalService(st *store.Controller) *GoalService {
	return &GoalService{
		store:  st,
		newID:  uuid.NewString,
		logger: logging.WithComponent("goals"),
	}
}

// List returns every goal, newest first
func (s *GoalService) List() []models.Goal {
	return s.store.State().Goals
}

// CreateGoal adds a goal with nothing saved yet
func (s *GoalService) CreateGoal(input CreateGoalInput) (models.Goal, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return models.Goal{}, invalidInput("name", "Goal name is required.")
	}
	if !input.Target.IsPositive() {
		return models.Goal{}, types.NewServiceError("INVALID_AMOUNT", "Enter a valid target amount.",
			map[string]interface{}{"field": "target"})
	}

	goal := models.Goal{
		ID:       s.newID(),
		Name:     name,
		Target:   input.Target,
		Current:  decimal.Zero,
		Deadline: input.Deadline,
		Icon:     strings.TrimSpace(input.Icon),
		Color:    strings.TrimSpace(input.Color),
	}
	if goal.Icon == "" {
		goal.Icon = models.DefaultGoalIcon
	}
	if goal.Color == "" {
		goal.Color = models.DefaultGoalColor
	}

	s.store.Dispatch(store.AddGoal{Goal: goal})
	s.logger.WithField("goal_id", goal.ID).Info("Goal created")
	return goal, nil
}

// Deposit allocates amount to a goal. When the wallet balance is known the
// amount may not exceed what is left after all goal allocations. The goal
// never grows past its target.
func (s *GoalService) Deposit(goalID string, amount decimal.Decimal) (models.Goal, error) {
	if !amount.IsPositive() {
		return models.Goal{}, types.NewServiceError("INVALID_AMOUNT", "Enter a valid ALGO amount.",
			map[string]interface{}{"field": "amount"})
	}

	var err error
	st := s.store.Apply(func(current store.State) []store.Action {
		if _, ok := current.FindGoal(goalID); !ok {
			err = goalNotFound(goalID)
			return nil
		}
		if available := AvailableBalance(current); available != nil && amount.GreaterThan(*available) {
			err = types.NewServiceError("INSUFFICIENT_BALANCE",
				fmt.Sprintf("Insufficient balance. Available: %s ALGO (after other goal allocations).", available.StringFixed(4)),
				map[string]interface{}{"available": available.String()})
			return nil
		}
		return []store.Action{store.DepositToGoal{GoalID: goalID, Amount: amount}}
	})
	if err != nil {
		return models.Goal{}, err
	}

	goal, _ := st.FindGoal(goalID)
	s.logger.WithFields(map[string]interface{}{
		"goal_id": goalID,
		"percent": goal.Percent(),
	}).Info("Goal deposit recorded")
	return goal, nil
}

// DeleteGoal removes a goal and releases its allocation
func (s *GoalService) DeleteGoal(goalID string) error {
	st := s.store.State()
	if _, ok := st.FindGoal(goalID); !ok {
		return goalNotFound(goalID)
	}
	s.store.Dispatch(store.DeleteGoal{GoalID: goalID})
	return nil
}

// TotalAllocated sums what all goals have saved
func TotalAllocated(goals []models.Goal) decimal.Decimal {
	total := decimal.Zero
	for _, g := range goals {
		total = total.Add(g.Current)
	}
	return total
}

// AvailableBalance is the wallet balance minus all goal allocations, floored
// at zero, or nil when the balance is unknown
func AvailableBalance(st store.State) *decimal.Decimal {
	if st.Balance == nil {
		return nil
	}
	available := decimal.Max(decimal.Zero, st.Balance.Sub(TotalAllocated(st.Goals)))
	return &available
}

func goalNotFound(goalID string) error {
	return types.NewServiceError("GOAL_NOT_FOUND", "goal not found: "+goalID, map[string]interface{}{"goalId": goalID})
}
