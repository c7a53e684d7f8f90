// Package main provides the entry point for the Dream Dictionary client.
// It bootstraps identity from login redirects, persists the session locally,
// throttles anonymous interpretation use, and can run the local panel server
// the web page talks to.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lz-215/Dream-Dictionary/internal/auth"
	"github.com/lz-215/Dream-Dictionary/internal/bootstrap"
	"github.com/lz-215/Dream-Dictionary/internal/browser"
	"github.com/lz-215/Dream-Dictionary/internal/config"
	"github.com/lz-215/Dream-Dictionary/internal/gate"
	"github.com/lz-215/Dream-Dictionary/internal/history"
	"github.com/lz-215/Dream-Dictionary/internal/interpret"
	"github.com/lz-215/Dream-Dictionary/internal/logging"
	"github.com/lz-215/Dream-Dictionary/internal/loginurl"
	"github.com/lz-215/Dream-Dictionary/internal/server"
	"github.com/lz-215/Dream-Dictionary/internal/session"
	"github.com/lz-215/Dream-Dictionary/internal/ui"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// loginTimeout bounds how long the login flow waits for the provider
// redirect to land on the loopback callback server.
const loginTimeout = 5 * time.Minute

func init() {
	logging.SetupBaseLogger()
}

// app bundles the wired components every command works against.
type app struct {
	cfg      *config.Config
	cfgPath  string
	stateDir string
	store    *session.Store
	orch     *auth.Orchestrator
	pipeline *bootstrap.Pipeline
	throttle *gate.Throttle
	client   *interpret.Client
	history  *history.Store
	term     *ui.Terminal
	hub      *ui.Hub
}

func main() {
	var (
		login       bool
		logout      bool
		status      bool
		serve       bool
		noBrowser   bool
		showLogs    bool
		showConfig  bool
		showVersion bool
		showStats   bool
		showHistory bool
		redirectURL string
		interpretIn string
		historyPage int
		configPath  string
		logLines    int
	)

	flag.BoolVar(&login, "login", false, "Sign in via the external login provider")
	flag.BoolVar(&logout, "logout", false, "Sign out and clear the local session")
	flag.BoolVar(&status, "status", false, "Show the current sign-in state")
	flag.BoolVar(&serve, "serve", false, "Run the local panel server")
	flag.BoolVar(&noBrowser, "no-browser", false, "Print the login URL instead of opening a browser")
	flag.StringVar(&redirectURL, "redirect-url", "", "Bootstrap from a pasted login redirect URL")
	flag.StringVar(&interpretIn, "interpret", "", "Interpret the given dream text")
	flag.BoolVar(&showHistory, "history", false, "List past interpretations")
	flag.IntVar(&historyPage, "history-page", 1, "History page to list")
	flag.BoolVar(&showStats, "stats", false, "Show interpretation statistics")
	flag.BoolVar(&showLogs, "logs", false, "Print recent log entries")
	flag.IntVar(&logLines, "log-lines", 50, "Number of log entries to print with -logs")
	flag.BoolVar(&showConfig, "config", false, "Print the active configuration path and values")
	flag.BoolVar(&showVersion, "version", false, "Print version information")
	flag.StringVar(&configPath, "config-path", "", "Path to the configuration file")
	flag.Parse()

	if showVersion {
		fmt.Printf("dreamctl %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithField("error", err).Debug("no .env file loaded")
	}

	a, err := newApp(configPath, serve)
	if err != nil {
		log.WithField("error", err).Fatal("failed to initialize")
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case login:
		err = a.runLogin(ctx, noBrowser)
	case logout:
		err = a.runLogout()
	case status:
		err = a.runStatus()
	case redirectURL != "":
		a.pipeline.Run(ctx, redirectURL)
	case interpretIn != "":
		err = a.runInterpret(ctx, interpretIn)
	case showHistory:
		err = a.runHistory(historyPage)
	case showStats:
		err = a.runStats()
	case showLogs:
		a.runLogs(logLines)
	case showConfig:
		a.runConfig()
	case serve:
		err = a.runServe(ctx)
	default:
		flag.Usage()
	}
	if err != nil {
		log.WithField("error", err).Fatal("command failed")
	}
}

// newApp loads configuration and wires the component graph. The websocket
// hub is only attached in serve mode; CLI commands render to the terminal.
func newApp(configPath string, withHub bool) (*app, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("DREAM_CONFIG")
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate home directory: %w", err)
		}
		path = filepath.Join(home, ".dream-dictionary", "config.yaml")
	}

	cfg, err := config.LoadConfigOptional(path)
	if err != nil {
		return nil, err
	}
	if err = logging.ConfigureOutput(cfg.LogFile, cfg.LogLevel); err != nil {
		return nil, err
	}

	stateDir, err := cfg.GetStateDir()
	if err != nil {
		return nil, err
	}
	backend, err := session.NewFileBackend(stateDir)
	if err != nil {
		return nil, err
	}
	store := session.NewStore(backend)

	term := ui.NewTerminal(os.Stdout)
	var hub *ui.Hub
	var rec ui.Reconciler = term
	if withHub {
		hub = ui.NewHub()
		rec = ui.Compose(term, hub)
	}

	exchanger := auth.NewExchanger(cfg.GetExchangeURL())
	orch := auth.NewOrchestrator(cfg, store, exchanger, rec)
	pipeline := bootstrap.NewPipeline(orch, rec)
	throttle := gate.NewThrottle(cfg, store, rec)
	client := interpret.NewClient(cfg.GetAPIBaseURL())

	hist, err := history.Open(filepath.Join(stateDir, "history.db"))
	if err != nil {
		// The cache is an accessory; interpretation still works without it.
		log.WithField("error", err).Warn("history cache unavailable")
		hist = nil
	}

	return &app{
		cfg:      cfg,
		cfgPath:  path,
		stateDir: stateDir,
		store:    store,
		orch:     orch,
		pipeline: pipeline,
		throttle: throttle,
		client:   client,
		history:  hist,
		term:     term,
		hub:      hub,
	}, nil
}

func (a *app) close() {
	if a.history != nil {
		_ = a.history.Close()
	}
}

// runLogin drives the browser login flow: open the provider authorization
// URL, catch the redirect on a loopback callback server, and feed the
// captured URL through the same bootstrap pipeline a pasted redirect uses.
func (a *app) runLogin(ctx context.Context, noBrowser bool) error {
	port := a.cfg.Login.GetCallbackPort()
	callback := auth.NewCallbackServer(port)
	if err := callback.Start(); err != nil {
		return fmt.Errorf("failed to start login callback server: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = callback.Stop(stopCtx)
	}()

	authURL, _, err := loginurl.Build(loginurl.Provider{
		AuthURL:     a.cfg.Login.AuthURL,
		ClientID:    a.cfg.Login.ClientID,
		Scopes:      a.cfg.Login.Scopes,
		RedirectURL: fmt.Sprintf("http://localhost:%d%s", port, auth.CallbackPath),
	})
	if err != nil {
		return err
	}

	if noBrowser {
		fmt.Printf("Open this URL in your browser to sign in:\n\n  %s\n\n", authURL)
	} else if err = browser.Open(authURL); err != nil {
		log.WithField("error", err).Warn("could not open browser")
		fmt.Printf("Open this URL in your browser to sign in:\n\n  %s\n\n", authURL)
	}

	fmt.Println("Waiting for the login redirect...")
	raw, err := callback.WaitForRedirect(loginTimeout)
	if err != nil {
		return err
	}
	a.pipeline.Run(ctx, raw)
	return nil
}

func (a *app) runLogout() error {
	return a.orch.Logout()
}

func (a *app) runStatus() error {
	sess, _ := a.store.Load()
	fmt.Print(ui.StatusView(sess, a.store.UsageCount(), a.stateDir))
	return nil
}

// runInterpret is the CLI form of the gated action: the usage throttle runs
// first, then the dream goes to the backend and lands in the local history.
func (a *app) runInterpret(ctx context.Context, dreamText string) error {
	a.throttle.RecordUse()

	userID := interpret.AnonymousUserID
	if sess, ok := a.store.Load(); ok {
		userID = sess.UserID
	}

	result, err := a.client.Interpret(ctx, dreamText, userID, true)
	if err != nil {
		return err
	}
	a.term.ShowInterpretation(result)

	if a.history != nil {
		if err = a.history.Record(userID, dreamText, result.Interpretations); err != nil {
			log.WithField("error", err).Warn("failed to record interpretation in history")
		}
	}
	return nil
}

func (a *app) runHistory(page int) error {
	if a.history == nil {
		return fmt.Errorf("history cache is unavailable")
	}
	userID := ""
	if sess, ok := a.store.Load(); ok {
		userID = sess.UserID
	}
	result, err := a.history.List(page, 20, userID)
	if err != nil {
		return err
	}
	if result.TotalItems == 0 {
		fmt.Println("No interpretations recorded yet.")
		return nil
	}
	for _, entry := range result.Items {
		keywords := make([]string, 0, len(entry.Interpretations))
		for _, interp := range entry.Interpretations {
			keywords = append(keywords, interp.Keyword)
		}
		fmt.Printf("%s  %s\n    %s\n", entry.Date, strings.Join(keywords, ", "), entry.DreamText)
	}
	fmt.Printf("Page %d of %d (%d total)\n", result.CurrentPage, result.TotalPages, result.TotalItems)
	return nil
}

func (a *app) runStats() error {
	if a.history == nil {
		return fmt.Errorf("history cache is unavailable")
	}
	stats, err := a.history.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("Dreams interpreted: %d (last 7 days: %d)\n", stats.TotalDreams, stats.LastWeekCount)
	if len(stats.CommonKeywords) > 0 {
		fmt.Println("Most common symbols:")
		for _, kw := range stats.CommonKeywords {
			fmt.Printf("  %-20s %d\n", kw.Keyword, kw.Count)
		}
	}
	return nil
}

func (a *app) runLogs(n int) {
	for _, entry := range logging.GlobalBuffer.GetRecentEntries(n) {
		fmt.Printf("%s [%s] %s\n", entry.Timestamp.Format("2006-01-02 15:04:05"), strings.ToUpper(entry.Level), entry.Message)
	}
}

func (a *app) runConfig() {
	fmt.Printf("config file: %s\n", a.cfgPath)
	fmt.Printf("host:        %s\n", a.cfg.GetHost())
	fmt.Printf("port:        %d\n", a.cfg.GetPort())
	fmt.Printf("api base:    %s\n", a.cfg.GetAPIBaseURL())
	fmt.Printf("exchange:    %s\n", a.cfg.GetExchangeURL())
	fmt.Printf("trusted:     %s\n", strings.Join(a.cfg.GetTrustedHosts(), ", "))
	fmt.Printf("usage limit: %d per %s cooldown\n", a.cfg.GetUsageLimit(), a.cfg.GetPromptCooldown())
}

// runServe runs the panel server alongside the config watcher until the
// process is signalled.
func (a *app) runServe(ctx context.Context) error {
	panel := server.New(server.Options{
		Config:      a.cfg,
		Store:       a.store,
		Pipeline:    a.pipeline,
		Throttle:    a.throttle,
		Interpreter: a.client,
		History:     a.history,
		Hub:         a.hub,
		Logout:      a.orch.Logout,
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return panel.Start(groupCtx)
	})
	group.Go(func() error {
		err := config.WatchConfig(groupCtx, a.cfgPath, func(cfg *config.Config) {
			// Logging tweaks apply live; structural changes need a restart.
			if err := logging.ConfigureOutput(cfg.LogFile, cfg.LogLevel); err != nil {
				log.WithField("error", err).Warn("failed to apply reloaded log settings")
			}
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return group.Wait()
}
