package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/lz-215/Dream-Dictionary/internal/interpret"
	"github.com/lz-215/Dream-Dictionary/internal/session"
)

// Color palette shared by the terminal renderer.
var (
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")
	warningColor = lipgloss.Color("#F59E0B")
	accentColor  = lipgloss.Color("#7C3AED")
	mutedColor   = lipgloss.Color("#9CA3AF")
)

var (
	successStyle = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	accentStyle  = lipgloss.NewStyle().Foreground(accentColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	labelStyle   = lipgloss.NewStyle().Foreground(mutedColor).Width(10)
)

// Terminal renders reconcile events as styled lines on a writer. It is the
// surface used by the CLI commands.
type Terminal struct {
	out io.Writer
}

// NewTerminal returns a Terminal writing to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

// SessionChanged implements Reconciler.
func (t *Terminal) SessionChanged(sess *session.Session) {
	if sess == nil {
		fmt.Fprintln(t.out, mutedStyle.Render("Signed out."))
		return
	}
	fmt.Fprintf(t.out, "%s %s %s\n",
		successStyle.Render("Signed in as"),
		accentStyle.Render(sess.Username),
		mutedStyle.Render("("+sess.ProviderID+")"))
}

// ShowLoginError implements Reconciler.
func (t *Terminal) ShowLoginError(message string) {
	fmt.Fprintln(t.out, errorStyle.Render("✗ ")+message)
}

// ShowUsagePrompt implements Reconciler.
func (t *Terminal) ShowUsagePrompt(count int) {
	fmt.Fprintln(t.out, warningStyle.Render(
		fmt.Sprintf("You have interpreted %d dreams. Sign in to keep your history in one place.", count)))
}

// AddressChanged implements Reconciler.
func (t *Terminal) AddressChanged(cleanURL string) {
	fmt.Fprintln(t.out, mutedStyle.Render("Address: "+cleanURL))
}

// ShowInterpretation renders an interpretation result as styled sections.
func (t *Terminal) ShowInterpretation(result *interpret.Result) {
	if result.Summary != "" {
		fmt.Fprintln(t.out, accentStyle.Render(result.Summary))
	}
	for _, item := range result.Interpretations {
		fmt.Fprintf(t.out, "%s %s\n", successStyle.Render(item.Keyword+":"), item.Interpretation)
	}
	if result.Perspective != "" {
		fmt.Fprintln(t.out, mutedStyle.Render(result.Perspective))
	}
}

// StatusView renders the block shown by the -status command.
func StatusView(sess *session.Session, usageCount int, stateDir string) string {
	var b []byte
	line := func(label, value string) {
		b = append(b, labelStyle.Render(label)...)
		b = append(b, ' ')
		b = append(b, value...)
		b = append(b, '\n')
	}
	if sess != nil {
		line("Account", successStyle.Render(sess.Username))
		line("User ID", sess.UserID)
		line("Provider", sess.ProviderID)
		if sess.Email != "" {
			line("Email", sess.Email)
		}
	} else {
		line("Account", mutedStyle.Render("not signed in"))
		line("Usage", fmt.Sprintf("%d anonymous interpretations", usageCount))
	}
	line("State", stateDir)
	return string(b)
}
