package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/trivia-pay/internal/adapter"
	"github.com/trivia-pay/internal/config"
	"github.com/trivia-pay/internal/errors"
	"github.com/trivia-pay/internal/logging"
	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/reconcile"
	"github.com/trivia-pay/internal/storage"
	"github.com/trivia-pay/internal/store"
	"github.com/trivia-pay/internal/types"
	"github.com/trivia-pay/internal/worker"
)

// Scheduler drives background refreshes for the connected address
type Scheduler interface {
	Start(ctx context.Context, address string) error
	Stop()
	Trigger() bool
}

// SessionService binds the wallet connection lifecycle to the store and the
// refresh scheduler, and owns the persisted contract settings.
type SessionService struct {
	wallet    adapter.WalletProvider
	store     *store.Controller
	settings  *storage.Settings
	engine    *reconcile.Engine
	scheduler Scheduler
	defaults  config.ContractConfig
	// baseCtx bounds background refresh loops; it outlives single requests
	baseCtx context.Context
	logger  *logging.Logger
}

// SessionServiceConfig holds the dependencies of a SessionService
type SessionServiceConfig struct {
	Wallet    adapter.WalletProvider
	Store     *store.Controller
	Settings  *storage.Settings
	Engine    *reconcile.Engine
	Scheduler Scheduler
	Defaults  config.ContractConfig
	BaseCtx   context.Context
}

// NewSessionService creates a session service and registers the wallet's
// disconnect listener
func NewSessionService(cfg *SessionServiceConfig) (*SessionService, error) {
	if cfg.Wallet == nil {
		return nil, fmt.Errorf("wallet provider cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Settings == nil {
		return nil, fmt.Errorf("settings cannot be nil")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("reconcile engine cannot be nil")
	}
	scheduler := cfg.Scheduler
	if scheduler == nil {
		w, err := worker.NewRefreshWorker(&worker.RefreshWorkerConfig{Refresher: cfg.Engine})
		if err != nil {
			return nil, err
		}
		scheduler = w
	}
	baseCtx := cfg.BaseCtx
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	s := &SessionService{
		wallet:    cfg.Wallet,
		store:     cfg.Store,
		settings:  cfg.Settings,
		engine:    cfg.Engine,
		scheduler: scheduler,
		defaults:  cfg.Defaults,
		baseCtx:   baseCtx,
		logger:    logging.WithComponent("session"),
	}
	s.wallet.OnDisconnect(s.endSession)
	return s, nil
}

// LoadSettings applies persisted contract overrides, falling back to the
// configured defaults when nothing is stored
func (s *SessionService) LoadSettings(ctx context.Context) error {
	appID, err := s.settings.AppID(ctx, s.defaults.AppID)
	if err != nil {
		return errors.NewStorageError("load settings", err)
	}
	escrow, err := s.settings.EscrowAddress(ctx, s.defaults.EscrowAddress)
	if err != nil {
		return errors.NewStorageError("load settings", err)
	}
	s.store.Dispatch(store.SetAppID{AppID: appID}, store.SetEscrowAddress{Address: escrow})
	s.logger.WithFields(map[string]interface{}{
		"app_id": appID,
		"escrow": escrow,
	}).Info("Contract settings loaded")
	return nil
}

// Connect opens a wallet session and starts refreshing its first account
func (s *SessionService) Connect(ctx context.Context) (string, error) {
	accounts, err := s.wallet.Connect(ctx)
	if err != nil {
		if errors.IsUserCancellation(err) {
			return "", errors.NewCancelledError("wallet connection")
		}
		return "", errors.NewWalletError("connect", err)
	}
	if len(accounts) == 0 {
		return "", errors.NewWalletError("connect", fmt.Errorf("wallet returned no accounts"))
	}
	return accounts[0], s.beginSession(accounts[0])
}

// Restore resumes a previous wallet session, if the provider has one.
// It returns an empty address when there is nothing to restore.
func (s *SessionService) Restore(ctx context.Context) (string, error) {
	accounts, err := s.wallet.ReconnectSession(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to restore wallet session")
		return "", nil
	}
	if len(accounts) == 0 {
		return "", nil
	}
	return accounts[0], s.beginSession(accounts[0])
}

// Disconnect ends the wallet session. Bills, goals and notifications stay.
func (s *SessionService) Disconnect(ctx context.Context) error {
	if err := s.wallet.Disconnect(ctx); err != nil {
		s.logger.WithError(err).Warn("Wallet disconnect failed")
	}
	s.endSession()
	return nil
}

func (s *SessionService) beginSession(address string) error {
	s.store.Dispatch(store.ConnectWallet{Address: address})
	s.logger.WithField("address", models.ShortenAddress(address)).Info("Wallet connected")
	return s.scheduler.Start(s.baseCtx, address)
}

func (s *SessionService) endSession() {
	s.scheduler.Stop()
	if s.store.State().WalletConnected {
		s.store.Dispatch(store.DisconnectWallet{})
		s.logger.Info("Wallet disconnected")
	}
}

// Address returns the connected address, or an error when no wallet is connected
func (s *SessionService) Address() (string, error) {
	st := s.store.State()
	if !st.WalletConnected || st.Address == "" {
		return "", types.NewServiceError("WALLET_NOT_CONNECTED", "connect a wallet first", nil)
	}
	return st.Address, nil
}

// Refresh runs a reconciliation pass now and waits for it
func (s *SessionService) Refresh(ctx context.Context) (*reconcile.Report, error) {
	return s.engine.Refresh(ctx, "")
}

// TriggerRefresh asks the background loop for an extra pass
func (s *SessionService) TriggerRefresh() bool {
	return s.scheduler.Trigger()
}

// SetAppID persists and applies a new application id; zero clears it
func (s *SessionService) SetAppID(ctx context.Context, appID uint64) error {
	if err := s.settings.SetAppID(ctx, appID); err != nil {
		return errors.NewStorageError("save app id", err)
	}
	s.store.Dispatch(store.SetAppID{AppID: appID})
	s.TriggerRefresh()
	return nil
}

// SetEscrowAddress persists and applies a new escrow address; empty clears it
func (s *SessionService) SetEscrowAddress(ctx context.Context, address string) error {
	address = strings.TrimSpace(address)
	if address != "" && !models.IsValidAddressLength(address) {
		return errors.NewInvalidAddressError(address)
	}
	if err := s.settings.SetEscrowAddress(ctx, address); err != nil {
		return errors.NewStorageError("save escrow address", err)
	}
	s.store.Dispatch(store.SetEscrowAddress{Address: address})
	s.TriggerRefresh()
	return nil
}
