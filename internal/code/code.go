// Package code implements the process-wide confirmation-code and pending-account manager: time-limited, single-use
// six-digit codes bounded by a failed-attempt counter, plus the half-created accounts awaiting email confirmation.
package code

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/comcore-chat/comcore-server/internal/crypto"
)

// Kind identifies what a confirmation code is for.
type Kind string

const (
	KindNewAccount     Kind = "newAccount"
	KindTwoFactor      Kind = "twoFactor"
	KindResetPassword  Kind = "resetPassword"
)

// Sender delivers a confirmation code to an email address. The production implementation is internal/mailer; tests
// supply a fake that records the code instead of sending it.
type Sender interface {
	SendCode(email string, kind Kind, code string) error
}

type entry struct {
	kind     Kind
	code     string
	data     map[string]any
	expireAt time.Time
	fails    int
}

type pendingAccount struct {
	name         string
	email        string
	passwordHash string
}

// Manager is the process-wide code and pending-account table. Each map is guarded by its own mutex, per the
// single-lock-per-map concurrency model.
type Manager struct {
	lifetime time.Duration
	maxFails int
	sender   Sender
	log      zerolog.Logger

	codesMu sync.Mutex
	codes   map[string]*entry

	pendingMu sync.Mutex
	pending   map[string]*pendingAccount

	dist FailCounter
}

// New creates a Manager with the given code lifetime and max failed-attempt count.
func New(lifetime time.Duration, maxFails int, sender Sender, logger zerolog.Logger) *Manager {
	return &Manager{
		lifetime: lifetime,
		maxFails: maxFails,
		sender:   sender,
		log:      logger.With().Str("component", "code").Logger(),
		codes:    make(map[string]*entry),
		pending:  make(map[string]*pendingAccount),
	}
}

// SendConfirmation generates and delivers a new code for (email, kind, data), unless a live entry of the same kind
// already exists for this email, in which case it is returned unchanged (I8).
func (m *Manager) SendConfirmation(email string, kind Kind, data map[string]any) error {
	m.codesMu.Lock()
	if e, ok := m.codes[email]; ok && e.kind == kind && time.Now().Before(e.expireAt) {
		m.codesMu.Unlock()
		return nil
	}
	m.codesMu.Unlock()

	newCode, err := crypto.RandomCode(6)
	if err != nil {
		return err
	}

	m.codesMu.Lock()
	m.codes[email] = &entry{kind: kind, code: newCode, data: data, expireAt: time.Now().Add(m.lifetime)}
	m.codesMu.Unlock()

	if m.dist != nil {
		if err := m.dist.Reset(context.Background(), email); err != nil {
			m.log.Warn().Err(err).Str("email", email).Msg("failed to reset distributed fail counter")
		}
	}

	if err := m.sender.SendCode(email, kind, newCode); err != nil {
		m.log.Warn().Err(err).Str("email", email).Msg("failed to deliver confirmation code")
		return err
	}
	return nil
}

// CheckCode validates a candidate code. On success it returns the stored data and removes the entry (I6, single
// use). On mismatch it increments the failure counter and discards the entry once it reaches maxFails (I-B5).
// The candidate is trimmed and must be exactly six characters; anything else is rejected without consuming an
// attempt.
func (m *Manager) CheckCode(email string, kind Kind, candidate string) (map[string]any, bool) {
	candidate = strings.TrimSpace(candidate)
	if len(candidate) != 6 {
		return nil, false
	}

	m.codesMu.Lock()
	defer m.codesMu.Unlock()

	e, ok := m.codes[email]
	if !ok || e.kind != kind {
		return nil, false
	}
	if !time.Now().Before(e.expireAt) {
		delete(m.codes, email)
		return nil, false
	}
	if e.code != candidate {
		e.fails++
		discard := e.fails >= m.maxFails
		if m.dist != nil {
			total, err := m.dist.Incr(context.Background(), email, m.lifetime)
			if err != nil {
				m.log.Warn().Err(err).Str("email", email).Msg("failed to update distributed fail counter")
			} else if total >= int64(m.maxFails) {
				discard = true
			}
		}
		if discard {
			delete(m.codes, email)
		}
		return nil, false
	}

	delete(m.codes, email)
	if m.dist != nil {
		if err := m.dist.Reset(context.Background(), email); err != nil {
			m.log.Warn().Err(err).Str("email", email).Msg("failed to reset distributed fail counter")
		}
	}
	return e.data, true
}

// StartCreation registers a pending account and sends its newAccount confirmation code. It fails if an account with
// this email is already pending.
func (m *Manager) StartCreation(name, email, passwordHash string) error {
	m.pendingMu.Lock()
	if _, ok := m.pending[email]; ok {
		m.pendingMu.Unlock()
		return ErrAlreadyPending
	}
	m.pending[email] = &pendingAccount{name: name, email: email, passwordHash: passwordHash}
	m.pendingMu.Unlock()

	return m.SendConfirmation(email, KindNewAccount, map[string]any{"email": email})
}

// ContinueCreation reports whether a pending account exists for email whose stored password hash satisfies matches, and
// if so re-sends the confirmation code (so an expired code can be retried without starting over).
func (m *Manager) ContinueCreation(email string, matches func(storedHash string) bool) bool {
	m.pendingMu.Lock()
	p, ok := m.pending[email]
	m.pendingMu.Unlock()
	if !ok || !matches(p.passwordHash) {
		return false
	}
	_ = m.SendConfirmation(email, KindNewAccount, map[string]any{"email": email})
	return true
}

// PendingAccount is the information recorded between StartCreation and FinishCreation.
type PendingAccount struct {
	Name         string
	Email        string
	PasswordHash string
}

// FinishCreation pops and returns the pending account for email, or ok=false if none exists.
func (m *Manager) FinishCreation(email string) (PendingAccount, bool) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	p, ok := m.pending[email]
	if !ok {
		return PendingAccount{}, false
	}
	delete(m.pending, email)
	return PendingAccount{Name: p.name, Email: p.email, PasswordHash: p.passwordHash}, true
}
