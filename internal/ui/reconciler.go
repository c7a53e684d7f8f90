// Package ui is the boundary between the bootstrap engine and whatever
// surface presents its state. The engine never draws anything itself; it
// reports session changes, sign-in errors, usage prompts and address updates
// through a Reconciler, and hosts plug in a terminal renderer, the websocket
// event hub, both, or nothing.
package ui

import "github.com/lz-215/Dream-Dictionary/internal/session"

// Reconciler receives state transitions from the bootstrap engine.
// Implementations must tolerate being called from HTTP handler goroutines.
type Reconciler interface {
	// SessionChanged reports the current session. nil means signed out.
	SessionChanged(sess *session.Session)
	// ShowLoginError presents a failed sign-in to the user.
	ShowLoginError(message string)
	// ShowUsagePrompt nudges an anonymous visitor to sign in after count
	// gated uses.
	ShowUsagePrompt(count int)
	// AddressChanged reports the cleaned visible address after redirect
	// parameters were consumed.
	AddressChanged(cleanURL string)
}

// Noop provides Reconciler defaults that do nothing.
type Noop struct{}

// SessionChanged implements Reconciler.
func (Noop) SessionChanged(*session.Session) {}

// ShowLoginError implements Reconciler.
func (Noop) ShowLoginError(string) {}

// ShowUsagePrompt implements Reconciler.
func (Noop) ShowUsagePrompt(int) {}

// AddressChanged implements Reconciler.
func (Noop) AddressChanged(string) {}

// Multi fans every callback out to each member in order.
type Multi []Reconciler

// SessionChanged implements Reconciler.
func (m Multi) SessionChanged(sess *session.Session) {
	for _, r := range m {
		r.SessionChanged(sess)
	}
}

// ShowLoginError implements Reconciler.
func (m Multi) ShowLoginError(message string) {
	for _, r := range m {
		r.ShowLoginError(message)
	}
}

// ShowUsagePrompt implements Reconciler.
func (m Multi) ShowUsagePrompt(count int) {
	for _, r := range m {
		r.ShowUsagePrompt(count)
	}
}

// AddressChanged implements Reconciler.
func (m Multi) AddressChanged(cleanURL string) {
	for _, r := range m {
		r.AddressChanged(cleanURL)
	}
}

// Compose builds a Reconciler from the non-nil arguments. With none it
// returns Noop, with one it returns that one unwrapped.
func Compose(recs ...Reconciler) Reconciler {
	var active Multi
	for _, r := range recs {
		if r != nil {
			active = append(active, r)
		}
	}
	switch len(active) {
	case 0:
		return Noop{}
	case 1:
		return active[0]
	default:
		return active
	}
}
