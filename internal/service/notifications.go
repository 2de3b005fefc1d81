package service

import (
	"github.com/trivia-pay/internal/logging"
	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/paymenturi"
	"github.com/trivia-pay/internal/store"
	"github.com/trivia-pay/internal/types"
)

// NotificationService manages the inbound payment request list. Dismissed
// requests stay in the seen set, so a later refresh does not bring them back.
type NotificationService struct {
	store  *store.Controller
	logger *logging.Logger
}

// NewNotificationService creates a notification service
func NewNotificationService(st *store.Controller) *NotificationService {
	return &NotificationService{store: st, logger: logging.WithComponent("notifications")}
}

// List returns the notifications, newest first. unreadOnly filters out read ones.
func (s *NotificationService) List(unreadOnly bool) []models.Notification {
	all := s.store.State().Notifications
	if !unreadOnly {
		return all
	}
	unread := make([]models.Notification, 0, len(all))
	for _, n := range all {
		if !n.Read {
			unread = append(unread, n)
		}
	}
	return unread
}

// MarkRead flags one notification as read
func (s *NotificationService) MarkRead(id string) error {
	var err error
	s.store.Apply(func(current store.State) []store.Action {
		if !current.HasNotification(id) {
			err = notificationNotFound(id)
			return nil
		}
		return []store.Action{store.MarkNotificationRead{ID: id}}
	})
	return err
}

// MarkAllRead flags every notification as read and returns how many changed
func (s *NotificationService) MarkAllRead() int {
	changed := 0
	s.store.Apply(func(current store.State) []store.Action {
		var actions []store.Action
		for _, n := range current.Notifications {
			if !n.Read {
				actions = append(actions, store.MarkNotificationRead{ID: n.ID})
			}
		}
		changed = len(actions)
		return actions
	})
	return changed
}

// Dismiss removes one notification
func (s *NotificationService) Dismiss(id string) error {
	var err error
	s.store.Apply(func(current store.State) []store.Action {
		if !current.HasNotification(id) {
			err = notificationNotFound(id)
			return nil
		}
		return []store.Action{store.DismissNotification{ID: id}}
	})
	if err == nil {
		s.logger.WithField("notification_id", id).Debug("Notification dismissed")
	}
	return err
}

// DismissAll clears the list and returns how many were removed
func (s *NotificationService) DismissAll() int {
	removed := 0
	s.store.Apply(func(current store.State) []store.Action {
		actions := make([]store.Action, 0, len(current.Notifications))
		for _, n := range current.Notifications {
			actions = append(actions, store.DismissNotification{ID: n.ID})
		}
		removed = len(actions)
		return actions
	})
	return removed
}

// PaymentRequest returns the payment URI that settles a notification's share
// with its creator
func (s *NotificationService) PaymentRequest(id string) (*PaymentRequest, error) {
	st := s.store.State()
	for _, n := range st.Notifications {
		if n.ID != id {
			continue
		}
		if !models.IsValidAddressLength(n.CreatorAddress) {
			return nil, types.NewServiceError("INVALID_PAYMENT_REQUEST",
				"This request does not name a valid creator address.", map[string]interface{}{"notificationId": id})
		}
		return &PaymentRequest{
			BillName:  n.BillName,
			PayeeName: n.PayeeName,
			Share:     n.Share,
			URI:       paymenturi.Build(n.CreatorAddress, n.Share, "Bill: "+n.BillName),
		}, nil
	}
	return nil, notificationNotFound(id)
}

func notificationNotFound(id string) error {
	return types.NewServiceError("NOTIFICATION_NOT_FOUND", "notification not found: "+id,
		map[string]interface{}{"notificationId": id})
}
