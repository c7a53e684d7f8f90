// Package session owns the durable client-side identity state: the single
// authenticated session, the anonymous usage counter, and the login prompt
// cooldown stamp. Each lives in its own JSON record under a per-profile state
// directory. Session presence is authoritative; a stale usage counter may
// coexist with a session and is ignored by readers.
package session

// Session is the single authenticated identity. At most one exists at a time.
// It persists across restarts until explicitly cleared; there is no expiry.
//
// Token is an opaque client-held credential, not a server-verified secret.
// Sessions produced by fallback synthesis are trusted purely on the client's
// say-so; that is a deliberate property of the design, not an oversight.
type Session struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	Token      string `json:"token"`
	ProviderID string `json:"providerId"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
	Email      string `json:"email,omitempty"`
}

const (
	// SessionRecord is the record name holding the serialized Session.
	SessionRecord = "session.json"

	// UsageRecord is the record name holding the anonymous usage counter.
	UsageRecord = "usage.json"

	// PromptRecord is the record name holding the prompt cooldown stamp.
	PromptRecord = "prompt.json"
)
