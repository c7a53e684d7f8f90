// Package bootstrap runs the startup pipeline: inspect the current address
// for a login redirect, resolve any identity it carries into a session, and
// push the outcome to the UI. Failures degrade to a signed-out or
// fallback-authenticated state; the pipeline never blocks startup.
package bootstrap

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/lz-215/Dream-Dictionary/internal/auth"
	apperrors "github.com/lz-215/Dream-Dictionary/internal/errors"
	"github.com/lz-215/Dream-Dictionary/internal/metrics"
	"github.com/lz-215/Dream-Dictionary/internal/redirect"
	"github.com/lz-215/Dream-Dictionary/internal/session"
	"github.com/lz-215/Dream-Dictionary/internal/ui"
)

// Outcome reports what a pipeline run did.
type Outcome string

const (
	// OutcomeResolved means an identity was extracted and a session persisted.
	OutcomeResolved Outcome = "resolved"
	// OutcomeLoginError means the redirect carried a provider error, or
	// resolution failed in a way that had to be shown to the user.
	OutcomeLoginError Outcome = "login-error"
	// OutcomeMissingIdentity means identity markers were present but no
	// usable provider id could be extracted.
	OutcomeMissingIdentity Outcome = "missing-identity"
	// OutcomeNoRedirect means the address carried no login redirect at all.
	OutcomeNoRedirect Outcome = "no-redirect"
)

// Pipeline wires the redirect extractor, the auth orchestrator and the UI
// reconciler together.
type Pipeline struct {
	orch *auth.Orchestrator
	rec  ui.Reconciler
}

// NewPipeline creates a Pipeline. A nil reconciler is replaced with a no-op
// one.
func NewPipeline(orch *auth.Orchestrator, rec ui.Reconciler) *Pipeline {
	if rec == nil {
		rec = ui.Noop{}
	}
	return &Pipeline{orch: orch, rec: rec}
}

// Run inspects rawURL for a login redirect and reconciles whatever it finds.
//
// A provider error parameter wins over any identity in the same address. An
// address with identity markers but no usable provider id surfaces a
// missing-information message. In every surfaced case the visible address is
// replaced with its cleaned form so navigating back does not replay the
// redirect. Run never returns an error; the session is non-nil exactly when
// the outcome is OutcomeResolved.
func (p *Pipeline) Run(ctx context.Context, rawURL string) (Outcome, *session.Session) {
	if param, ok := redirect.ExtractError(rawURL); ok {
		appErr := apperrors.LoginRejected(param)
		log.WithField("error_param", param).Warn("login provider returned an error")
		p.rec.ShowLoginError(appErr.Message)
		p.rec.AddressChanged(redirect.Clean(rawURL))
		metrics.RecordBootstrapOutcome(metrics.OutcomeLoginError)
		return OutcomeLoginError, nil
	}

	if id, ok := redirect.Extract(rawURL); ok {
		sess, appErr := p.orch.Resolve(ctx, id, rawURL)
		if appErr != nil {
			log.WithFields(log.Fields{
				"code":  appErr.Code,
				"error": appErr,
			}).Warn("session resolution failed")
			p.rec.ShowLoginError(appErr.Message)
			p.rec.AddressChanged(redirect.Clean(rawURL))
			metrics.RecordBootstrapOutcome(metrics.OutcomeLoginError)
			return OutcomeLoginError, nil
		}
		log.WithField("username", sess.Username).Info("signed in from login redirect")
		return OutcomeResolved, sess
	}

	if redirect.HasMarker(rawURL) {
		appErr := apperrors.MissingIdentity()
		log.Warn("redirect carried identity markers but no usable provider id")
		p.rec.ShowLoginError(appErr.Message)
		p.rec.AddressChanged(redirect.Clean(rawURL))
		metrics.RecordBootstrapOutcome(metrics.OutcomeMissingIdentity)
		return OutcomeMissingIdentity, nil
	}

	metrics.RecordBootstrapOutcome(metrics.OutcomeNoRedirect)
	return OutcomeNoRedirect, nil
}
