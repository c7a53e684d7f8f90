// Package browser opens URLs in the user's default browser.
package browser

import (
	"fmt"

	"github.com/pkg/browser"
	log "github.com/sirupsen/logrus"
)

// Open launches the default browser at url. A failed launch is not fatal to
// the login flow; callers print the URL so the user can open it by hand.
func Open(url string) error {
	log.WithField("url", url).Debug("opening browser")
	if err := browser.OpenURL(url); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
