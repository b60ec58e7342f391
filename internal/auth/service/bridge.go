package service

import (
	"sync"
	"time"

	"github.com/edgecoder/edgeauth/pkg/cryptox"
)

// oauthBridge hands a browser-completed OAuth login back to a native app.
// It carries two ephemeral maps: native redirect URIs pending for a state
// value, and one-shot hand-off tokens a native app redeems for a session.
// Both are process-local on purpose: the follow-up request lands on the same
// instance seconds later, and a restart losing them merely forces another
// login, never a security downgrade.
type oauthBridge struct {
	mu       sync.Mutex
	pending  map[string]bridgeEntry // state -> native redirect URI
	handoffs map[string]bridgeEntry // token fingerprint -> user id
	stateTTL time.Duration
	tokenTTL time.Duration
}

type bridgeEntry struct {
	value     string
	expiresAt time.Time
}

func newOAuthBridge(stateTTL, tokenTTL time.Duration) *oauthBridge {
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	if tokenTTL <= 0 {
		tokenTTL = 5 * time.Minute
	}
	return &oauthBridge{
		pending:  make(map[string]bridgeEntry),
		handoffs: make(map[string]bridgeEntry),
		stateTTL: stateTTL,
		tokenTTL: tokenTTL,
	}
}

// RememberNativeRedirect records the native redirect URI for a state value.
func (b *oauthBridge) RememberNativeRedirect(state, redirectURI string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sweepLocked()
	b.pending[state] = bridgeEntry{
		value:     redirectURI,
		expiresAt: time.Now().Add(b.stateTTL),
	}
}

// TakeNativeRedirect consumes the pending native redirect for a state, if any.
func (b *oauthBridge) TakeNativeRedirect(state string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.pending[state]
	if !ok {
		return "", false
	}
	delete(b.pending, state)

	if time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

// IssueHandoff mints a one-shot hand-off token bound to the user.
func (b *oauthBridge) IssueHandoff(userID string) (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.sweepLocked()
	b.handoffs[cryptox.FingerprintToken(token)] = bridgeEntry{
		value:     userID,
		expiresAt: time.Now().Add(b.tokenTTL),
	}
	return token, nil
}

// RedeemHandoff consumes a hand-off token. A second redeem fails.
func (b *oauthBridge) RedeemHandoff(token string) (string, bool) {
	key := cryptox.FingerprintToken(token)

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.handoffs[key]
	if !ok {
		return "", false
	}
	delete(b.handoffs, key)

	if time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

func (b *oauthBridge) sweepLocked() {
	now := time.Now()
	for k, e := range b.pending {
		if now.After(e.expiresAt) {
			delete(b.pending, k)
		}
	}
	for k, e := range b.handoffs {
		if now.After(e.expiresAt) {
			delete(b.handoffs, k)
		}
	}
}
