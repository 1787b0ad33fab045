// Package cancelscope hands out cancellation tokens for a resolver instance.
//
// An instance holds exactly one live token at a time. Every computation the
// evaluator starts receives the current token; when the host edits the
// instance the token is cancelled, and results that arrive under a cancelled
// token are discarded.
package cancelscope

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrSuperseded is the cancellation cause of a token replaced by Renew
	// or cancelled by Cancel.
	ErrSuperseded = errors.New("cancellation scope superseded")
	// ErrClosed is the cancellation cause of the last token of a closed
	// manager.
	ErrClosed = errors.New("cancellation scope closed")
)

// Token is a cancellable context tagged with the generation that minted it.
type Token struct {
	context.Context
	generation uint64
}

// Generation returns the sequence number of the token within its manager.
func (t *Token) Generation() uint64 {
	return t.generation
}

// Live reports whether the token has not been cancelled.
func (t *Token) Live() bool {
	return t.Err() == nil
}

// Manager owns the live token of one resolver instance.
type Manager struct {
	parent context.Context

	mu      sync.Mutex
	current *Token
	cancel  context.CancelCauseFunc
	closed  bool
}

// New creates a manager whose tokens derive from parent. The first token is
// minted immediately.
func New(parent context.Context) *Manager {
	m := &Manager{parent: parent}
	m.mint()
	return m
}

func (m *Manager) mint() {
	var gen uint64
	if m.current != nil {
		gen = m.current.generation + 1
	}
	ctx, cancel := context.WithCancelCause(m.parent)
	m.current = &Token{Context: ctx, generation: gen}
	m.cancel = cancel
}

// Current returns the most recently minted token. It may already be
// cancelled if Cancel was called since.
func (m *Manager) Current() *Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Renew cancels the current token and mints a new one. It returns the new
// token, or the cancelled one if the manager is closed.
func (m *Manager) Renew() *Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return m.current
	}
	m.cancel(ErrSuperseded)
	m.mint()
	return m.current
}

// Cancel cancels the current token without minting a replacement.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel(ErrSuperseded)
}

// Close cancels the current token for good. Renew becomes a no-op.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.cancel(ErrClosed)
}
