package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/store"
	"github.com/trivia-pay/internal/types"
)

func TestCreateGoal_Defaults(t *testing.T) {
	svc := NewGoalService(newStore(""))

	goal, err := svc.CreateGoal(CreateGoalInput{Name: " Laptop ", Target: dec("100")})
	require.NoError(t, err)
	assert.Equal(t, "Laptop", goal.Name)
	assert.Equal(t, models.DefaultGoalIcon, goal.Icon)
	assert.Equal(t, models.DefaultGoalColor, goal.Color)
	assertDecimal(t, "0", goal.Current)
	assert.Len(t, svc.List(), 1)
}

func TestCreateGoal_Validation(t *testing.T) {
	svc := NewGoalService(newStore(""))

	_, err := svc.CreateGoal(CreateGoalInput{Name: "", Target: dec("10")})
	requireCode(t, err, "INVALID_INPUT")

	_, err = svc.CreateGoal(CreateGoalInput{Name: "Trip", Target: dec("-1")})
	requireCode(t, err, "INVALID_AMOUNT")

	assert.Empty(t, svc.List())
}

func TestDeposit_ClampsAtTarget(t *testing.T) {
	svc := NewGoalService(newStore(""))
	goal, err := svc.CreateGoal(CreateGoalInput{Name: "Trip", Target: dec("10")})
	require.NoError(t, err)

	goal, err = svc.Deposit(goal.ID, dec("4"))
	require.NoError(t, err)
	assertDecimal(t, "4", goal.Current)
	assert.Equal(t, 40, goal.Percent())

	goal, err = svc.Deposit(goal.ID, dec("25"))
	require.NoError(t, err)
	assertDecimal(t, "10", goal.Current)
	assert.True(t, goal.IsComplete())
}

func TestDeposit_RespectsAvailableBalance(t *testing.T) {
	st := newStore("")
	st.Dispatch(store.SetBalance{Balance: dec("10")})
	svc := NewGoalService(st)

	a, err := svc.CreateGoal(CreateGoalInput{Name: "A", Target: dec("100")})
	require.NoError(t, err)
	b, err := svc.CreateGoal(CreateGoalInput{Name: "B", Target: dec("100")})
	require.NoError(t, err)

	_, err = svc.Deposit(a.ID, dec("7"))
	require.NoError(t, err)

	_, err = svc.Deposit(b.ID, dec("4"))
	requireCode(t, err, "INSUFFICIENT_BALANCE")
	assert.Contains(t, err.Error(), "Available: 3.0000 ALGO")

	b, err = svc.Deposit(b.ID, dec("3"))
	require.NoError(t, err)
	assertDecimal(t, "3", b.Current)

	available := AvailableBalance(st.State())
	require.NotNil(t, available)
	assertDecimal(t, "0", *available)
}

func TestDeposit_UnknownBalanceIsUnchecked(t *testing.T) {
	svc := NewGoalService(newStore(""))
	goal, err := svc.CreateGoal(CreateGoalInput{Name: "Trip", Target: dec("10")})
	require.NoError(t, err)

	_, err = svc.Deposit(goal.ID, dec("5"))
	require.NoError(t, err)
}

func TestDeposit_Errors(t *testing.T) {
	svc := NewGoalService(newStore(""))
	goal, err := svc.CreateGoal(CreateGoalInput{Name: "Trip", Target: dec("10")})
	require.NoError(t, err)

	_, err = svc.Deposit(goal.ID, dec("0"))
	requireCode(t, err, "INVALID_AMOUNT")

	_, err = svc.Deposit("missing", dec("1"))
	requireCode(t, err, "GOAL_NOT_FOUND")
}

func TestDeleteGoal_ReleasesAllocation(t *testing.T) {
	st := newStore("")
	st.Dispatch(store.SetBalance{Balance: dec("10")})
	svc := NewGoalService(st)

	goal, err := svc.CreateGoal(CreateGoalInput{Name: "Trip", Target: dec("10")})
	require.NoError(t, err)
	_, err = svc.Deposit(goal.ID, dec("6"))
	require.NoError(t, err)
	assertDecimal(t, "4", *AvailableBalance(st.State()))

	require.NoError(t, svc.DeleteGoal(goal.ID))
	assertDecimal(t, "10", *AvailableBalance(st.State()))
	requireCode(t, svc.DeleteGoal(goal.ID), "GOAL_NOT_FOUND")
}

func TestAvailableBalance_FloorsAtZero(t *testing.T) {
	st := store.Initial(types.NetworkTestnet, 0, "")
	st.Balance = decPtr("1")
	st.Goals = []models.Goal{{ID: "g", Target: dec("5"), Current: dec("3")}}

	available := AvailableBalance(st)
	require.NotNil(t, available)
	assertDecimal(t, "0", *available)

	st.Balance = nil
	assert.Nil(t, AvailableBalance(st))
}
