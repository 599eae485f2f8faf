// Package credentials keeps the backend session cookie in the OS keyring so
// it never lands in the config file.
package credentials

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const service = "roomcal"

var (
	// ErrNotFound is returned when no session is stored for the backend.
	ErrNotFound = errors.New("session not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring cannot be used.
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// account keys the entry by backend so several installations can coexist.
func account(baseURL string) string {
	return "session:" + strings.TrimRight(strings.TrimSpace(baseURL), "/")
}

// Session returns the stored session cookie for baseURL.
func Session(baseURL string) (string, error) {
	v, err := keyring.Get(service, account(baseURL))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return v, nil
}

// SetSession stores the session cookie for baseURL.
func SetSession(baseURL, session string) error {
	session = strings.TrimSpace(session)
	if session == "" {
		return errors.New("session is empty")
	}
	if err := keyring.Set(service, account(baseURL), session); err != nil {
		return fmt.Errorf("failed to store session in keyring: %w", err)
	}
	return nil
}

// ClearSession removes the stored session. Clearing a missing entry
// returns ErrNotFound.
func ClearSession(baseURL string) error {
	if err := keyring.Delete(service, account(baseURL)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete session from keyring: %w", err)
	}
	return nil
}

// Resolve picks the session to use: an explicit value (from the
// environment) wins, then the keyring. A missing or unavailable keyring
// yields an empty session.
func Resolve(baseURL, explicit string) string {
	if explicit != "" {
		return explicit
	}
	v, err := Session(baseURL)
	if err != nil {
		return ""
	}
	return v
}
