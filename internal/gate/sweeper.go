package gate

import (
	"context"
	"time"

	"pkt.systems/vakt/internal/protocol"
)

// DefaultSweepInterval is how often expired sessions are removed.
const DefaultSweepInterval = 30 * time.Second

// Sweep removes sessions whose inactivity window has elapsed and pushes
// an expired message to their watchers. It returns the number removed.
func (s *HTTPServer) Sweep(ctx context.Context) int {
	if s.Store == nil {
		return 0
	}
	now := s.now()
	expired := s.Store.Sweep(now)
	s.limiter.Prune(now)
	if len(expired) == 0 {
		return 0
	}
	s.endSessions(ctx, EndReasonInactive, protocol.MessageExpired, expired...)
	_ = s.persist()
	return len(expired)
}

// PruneOrphans ends sessions whose user no longer exists.
func (s *HTTPServer) PruneOrphans(ctx context.Context) int {
	if s.Store == nil || s.Users == nil {
		return 0
	}
	var orphans []Session
	seen := make(map[string]bool)
	for _, session := range s.Store.snapshot() {
		if seen[session.Username] {
			continue
		}
		if _, ok := s.Users.Get(session.Username); ok {
			continue
		}
		seen[session.Username] = true
		orphans = append(orphans, s.Store.RevokeSessionsForUsername(session.Username)...)
	}
	if len(orphans) == 0 {
		return 0
	}
	s.endSessions(ctx, EndReasonUser, protocol.MessageLoggedOut, orphans...)
	_ = s.persist()
	return len(orphans)
}

// StartSweeper runs Sweep every interval until ctx is done.
func (s *HTTPServer) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(ctx); n > 0 {
					s.Logger.Debug("swept expired sessions", "count", n)
				}
			}
		}
	}()
}

func (s *Store) snapshot() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.Sessions))
	for _, session := range s.Sessions {
		out = append(out, session)
	}
	return out
}
