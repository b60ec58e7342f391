package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgecoder/edgeauth/internal/auth/store"
)

// HousekeepingService periodically deletes expired one-shot records
// (sessions, verification tokens, OAuth states, passkey and wallet
// challenges). Expired rows are already rejected at consume time; this
// worker only bounds table growth.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates the worker. A non-positive interval
// defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Sweep immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup sweeps each table independently; one failure never stops the rest.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	s.Logger.Info("starting housekeeping cleanup")

	sweeps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"sessions", s.Store.Sessions().DeleteExpiredSessions},
		{"email verification tokens", s.Store.EmailVerificationTokens().DeleteExpiredEmailVerificationTokens},
		{"oauth states", s.Store.OAuthStates().DeleteExpiredOAuthStates},
		{"passkey challenges", s.Store.PasskeyChallenges().DeleteExpiredPasskeyChallenges},
		{"wallet send challenges", s.Store.WalletSendMFAChallenges().DeleteExpiredWalletSendMFAChallenges},
	}

	var successful int
	for _, sweep := range sweeps {
		if err := sweep.fn(ctx); err != nil {
			s.Logger.Error("failed to delete expired "+sweep.name, "error", err)
			continue
		}
		s.Logger.Debug("deleted expired " + sweep.name)
		successful++
	}

	s.Logger.Info("housekeeping cleanup completed", "successful_cleanups", successful)
}
