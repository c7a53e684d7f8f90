// Package auth resolves extracted redirect identities into persisted
// sessions. On trusted hosts the session is synthesized locally; anywhere
// else the identity is exchanged with the hosted backend, and a failed
// exchange degrades to local synthesis so sign-in never blocks the user.
//
// The tokens this package handles are client-trust markers, not verified
// server credentials. Nothing here is a security boundary.
package auth

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	apperrors "github.com/lz-215/Dream-Dictionary/internal/errors"
	"github.com/lz-215/Dream-Dictionary/internal/metrics"
	"github.com/lz-215/Dream-Dictionary/internal/redirect"
	"github.com/lz-215/Dream-Dictionary/internal/session"
	"github.com/lz-215/Dream-Dictionary/internal/ui"
	"github.com/lz-215/Dream-Dictionary/internal/util"
)

// DefaultUsername labels synthesized sessions that carry neither a display
// name nor an email.
const DefaultUsername = "Dreamer"

// avatarURLTemplate generates a deterministic avatar for identities that did
// not bring their own.
const avatarURLTemplate = "https://ui-avatars.com/api/?name=%s&background=7c3aed&color=fff"

// Resolver is the subset of the config consulted during resolution.
type Resolver interface {
	GetHost() string
	GetTrustedHosts() []string
	IsFallbackAllowedOnFailure() bool
}

// Orchestrator turns extracted identities into persisted sessions and pushes
// the outcome to the UI.
type Orchestrator struct {
	cfg       Resolver
	store     *session.Store
	exchanger *Exchanger
	rec       ui.Reconciler
}

// NewOrchestrator creates an Orchestrator. A nil reconciler is replaced with
// a no-op one.
func NewOrchestrator(cfg Resolver, store *session.Store, exchanger *Exchanger, rec ui.Reconciler) *Orchestrator {
	if rec == nil {
		rec = ui.Noop{}
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		exchanger: exchanger,
		rec:       rec,
	}
}

// Resolve turns an extracted identity into a persisted session.
//
// On a trusted host the session is synthesized locally without any network
// traffic. Anywhere else the identity is submitted to the exchange endpoint;
// a failed exchange degrades to local synthesis unless fallback is disabled,
// in which case the failure surfaces to the caller and nothing is persisted.
//
// rawURL is the redirect address the identity came from. After the session is
// persisted the reconciler is told to replace the visible address with its
// cleaned form, so re-running extraction on back-navigation finds nothing,
// and then to re-render with the new session. Resolve either persists a
// session or returns an error; it never leaves a partial state behind.
func (o *Orchestrator) Resolve(ctx context.Context, id redirect.Identity, rawURL string) (*session.Session, *apperrors.AppError) {
	if id.ProviderID == "" {
		return nil, apperrors.MissingIdentity()
	}

	var sess *session.Session
	switch {
	case o.hostTrusted():
		sess = Synthesize(id)
		log.WithFields(log.Fields{
			"provider_id": id.ProviderID,
			"username":    sess.Username,
		}).Debug("synthesized session on trusted host")
		metrics.RecordBootstrapOutcome(metrics.OutcomeResolved)
	default:
		exchanged, err := o.exchanger.Exchange(ctx, id)
		if err != nil {
			log.WithFields(log.Fields{
				"provider_id": id.ProviderID,
				"error":       err,
			}).Warn("identity exchange failed")
			if !o.cfg.IsFallbackAllowedOnFailure() {
				return nil, apperrors.ExchangeFailed(err)
			}
			sess = Synthesize(id)
			log.WithField("username", sess.Username).Info("falling back to local session after failed exchange")
			metrics.RecordBootstrapOutcome(metrics.OutcomeFallback)
		} else {
			sess = exchanged
			metrics.RecordBootstrapOutcome(metrics.OutcomeResolved)
		}
	}

	if err := o.store.Save(sess); err != nil {
		log.WithField("error", err).Error("failed to persist session")
		return nil, apperrors.SaveFailed(err)
	}

	if rawURL != "" {
		o.rec.AddressChanged(redirect.Clean(rawURL))
	}
	o.rec.SessionChanged(sess)

	return sess, nil
}

// Logout clears the persisted session and tells the UI to render signed out.
func (o *Orchestrator) Logout() error {
	if err := o.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	o.rec.SessionChanged(nil)
	return nil
}

// hostTrusted reports whether the configured host identity is in the
// trusted-hosts list.
func (o *Orchestrator) hostTrusted() bool {
	host := util.NormalizeHost(o.cfg.GetHost())
	for _, t := range o.cfg.GetTrustedHosts() {
		if util.NormalizeHost(t) == host {
			return true
		}
	}
	return false
}

// Synthesize builds a session locally from an extracted identity without
// contacting any remote endpoint. The minted token is an opaque local marker.
// Both the trusted-host path and the failed-exchange fallback use this
// construction.
func Synthesize(id redirect.Identity) *session.Session {
	username := fallbackUsername(id)
	return &session.Session{
		UserID:     "user_" + uuid.NewString(),
		Username:   username,
		Token:      "local_" + uuid.NewString(),
		ProviderID: id.ProviderID,
		AvatarURL:  pickAvatar(id.AvatarURL, username),
		Email:      id.Email,
	}
}

// fallbackUsername picks the username for a session built without a server
// response: display name first, then email, then the default label.
func fallbackUsername(id redirect.Identity) string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	if id.Email != "" {
		return id.Email
	}
	return DefaultUsername
}

func pickAvatar(provided, username string) string {
	if provided != "" {
		return provided
	}
	return fmt.Sprintf(avatarURLTemplate, url.QueryEscape(username))
}
