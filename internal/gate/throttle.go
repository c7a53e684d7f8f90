// Package gate throttles anonymous usage of gated actions and decides when
// the visitor is asked to sign in.
package gate

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lz-215/Dream-Dictionary/internal/metrics"
	"github.com/lz-215/Dream-Dictionary/internal/session"
	"github.com/lz-215/Dream-Dictionary/internal/ui"
)

// Limits is the subset of the config consulted by the throttle.
type Limits interface {
	GetUsageLimit() int
	GetPromptCooldown() time.Duration
}

// Decision is the outcome of recording one gated use.
type Decision struct {
	// Authenticated reports whether a session was present, in which case
	// nothing was counted.
	Authenticated bool
	// Count is the anonymous-use total after this use (0 when authenticated).
	Count int
	// Prompted reports whether this use showed the login prompt.
	Prompted bool
}

// Throttle counts anonymous uses and shows the login prompt at most once per
// cooldown window once the limit is reached.
type Throttle struct {
	store *session.Store
	rec   ui.Reconciler
	cfg   Limits
	now   func() time.Time
}

// NewThrottle creates a Throttle. A nil reconciler is replaced with a no-op
// one.
func NewThrottle(cfg Limits, store *session.Store, rec ui.Reconciler) *Throttle {
	if rec == nil {
		rec = ui.Noop{}
	}
	return &Throttle{
		store: store,
		rec:   rec,
		cfg:   cfg,
		now:   time.Now,
	}
}

// RecordUse records one gated action.
//
// With a session present it is a no-op. Otherwise the anonymous-use counter
// is incremented; once the count reaches the limit the login prompt is
// shown, then suppressed for the cooldown window. The counter keeps rising
// past the limit, so the prompt re-arms once per window until the visitor
// signs in. Only a new session resets the counter.
func (t *Throttle) RecordUse() Decision {
	if t.store.IsAuthenticated() {
		metrics.RecordGatedUse(true)
		return Decision{Authenticated: true}
	}
	metrics.RecordGatedUse(false)

	count := t.store.UsageCount() + 1
	if err := t.store.SetUsageCount(count); err != nil {
		log.WithField("error", err).Warn("failed to persist usage count")
	}

	if count < t.cfg.GetUsageLimit() {
		return Decision{Count: count}
	}

	now := t.now()
	if last, ok := t.store.PromptStamp(); ok && now.Sub(last) <= t.cfg.GetPromptCooldown() {
		return Decision{Count: count}
	}

	if err := t.store.SetPromptStamp(now); err != nil {
		log.WithField("error", err).Warn("failed to persist prompt timestamp")
	}
	t.rec.ShowUsagePrompt(count)
	metrics.RecordUsagePrompt()
	log.WithField("count", count).Info("anonymous usage limit reached, login prompt shown")
	return Decision{Count: count, Prompted: true}
}
