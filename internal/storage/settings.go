package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Settings persists the runtime overrides of the application id and escrow
// address. An unset key falls back to the configured default; a stored empty
// value means the user cleared the setting.
type Settings struct {
	kv KeyValueStore
}

// NewSettings creates a settings store over kv
func NewSettings(kv KeyValueStore) *Settings {
	return &Settings{kv: kv}
}

// AppID returns the persisted application id, or fallback when none is stored
func (s *Settings) AppID(ctx context.Context, fallback uint64) (uint64, error) {
	raw, err := s.kv.Get(ctx, KeyAppID)
	if errors.Is(err, ErrKeyNotFound) {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("load app id: %w", err)
	}
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fallback, nil
	}
	return id, nil
}

// SetAppID persists the application id; zero clears it
func (s *Settings) SetAppID(ctx context.Context, id uint64) error {
	value := ""
	if id != 0 {
		value = strconv.FormatUint(id, 10)
	}
	if err := s.kv.Set(ctx, KeyAppID, value); err != nil {
		return fmt.Errorf("save app id: %w", err)
	}
	return nil
}

// EscrowAddress returns the persisted escrow address, or fallback when none is stored
func (s *Settings) EscrowAddress(ctx context.Context, fallback string) (string, error) {
	raw, err := s.kv.Get(ctx, KeyEscrowAddress)
	if errors.Is(err, ErrKeyNotFound) {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("load escrow address: %w", err)
	}
	return raw, nil
}

// SetEscrowAddress persists the escrow address; empty clears it
func (s *Settings) SetEscrowAddress(ctx context.Context, address string) error {
	if err := s.kv.Set(ctx, KeyEscrowAddress, address); err != nil {
		return fmt.Errorf("save escrow address: %w", err)
	}
	return nil
}
