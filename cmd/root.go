// Package cmd defines and implements the CLI commands for the paperdock
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperdock/paperdock/internal/answer"
	"github.com/paperdock/paperdock/internal/clock/system"
	"github.com/paperdock/paperdock/internal/config"
	"github.com/paperdock/paperdock/internal/fetch"
	"github.com/paperdock/paperdock/internal/id/uuid"
	"github.com/paperdock/paperdock/internal/importer"
	"github.com/paperdock/paperdock/internal/library"
	"github.com/paperdock/paperdock/internal/logging"
	"github.com/paperdock/paperdock/internal/metrics"
	"github.com/paperdock/paperdock/internal/remote"
	"github.com/paperdock/paperdock/internal/search"
)

var (
	cfgFile    string
	cookieFile string
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App bundles the assembled services the subcommands operate on.
type App struct {
	Cfg          config.Config
	Logger       *zap.Logger
	Store        *library.Store
	Blocklist    *fetch.Blocklist
	Orchestrator *fetch.Orchestrator
	Importer     *importer.Importer
	Ranker       *search.Ranker
	Synthesizer  *answer.Synthesizer
	Remote       *remote.Client
	Creds        fetch.Credentials
}

// Close releases the app's resources.
func (a *App) Close() {
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}

// newApp is the application factory. It's a variable so tests can replace
// it with a mock factory.
var newApp = buildApp

func buildApp(_ context.Context) (*App, error) {
	// A local .env is optional; real deployments set environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	store, err := library.NewStore(
		cfg.Library.Path, cfg.Library.MaxTextRunes,
		system.New(), uuid.New(), logger.Named("library"),
	)
	if err != nil {
		return nil, fmt.Errorf("init library store: %w", err)
	}

	client, err := fetch.NewClient(fetch.ClientConfig{
		Timeout:      cfg.HTTPTimeout(),
		Delay:        cfg.PolitenessDelay(),
		MaxRetries:   cfg.HTTP.MaxRetries,
		BackoffBase:  time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		BackoffMax:   time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
		UserAgents:   cfg.HTTP.UserAgents,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}, logger.Named("fetch"))
	if err != nil {
		return nil, fmt.Errorf("init fetch client: %w", err)
	}

	extractor := fetch.NewExtractor(cfg.Extract.MinContentRunes, logger.Named("extract"))
	blocklist := fetch.NewBlocklist(cfg.Proxy.BlockedDomains)
	planner := fetch.NewPlanner(blocklist, fetch.PlannerConfig{
		ProxyHost:    cfg.Proxy.Host,
		LoginPath:    cfg.Proxy.LoginPath,
		ProbeTimeout: time.Duration(cfg.Proxy.ProbeTimeoutSeconds) * time.Second,
	}, logger.Named("proxy"))

	var renderer fetch.RenderFetcher
	if cfg.Render.Enabled {
		renderer = fetch.NewRenderer(fetch.RendererConfig{
			NavTimeout:    time.Duration(cfg.Render.NavTimeoutSeconds) * time.Second,
			UserAgent:     cfg.Render.UserAgent,
			DenialPhrases: cfg.Render.DenialPhrases,
			ProxyHost:     cfg.Proxy.Host,
			FormShapes:    fetch.DefaultFormShapes,
		}, extractor, logger.Named("render"))
	}

	pdfExtractor := fetch.NewPDFExtractor(
		cfg.Extract.MinPDFRunes,
		cfg.HTTPTimeout(),
		logger.Named("pdf"),
	)

	orchestrator := fetch.NewOrchestrator(
		client, extractor, renderer, pdfExtractor, planner,
		cfg.Library.MaxTextRunes, logger.Named("fetch"),
	)

	creds, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	// The conventional env var also works when llm.api_key is unset.
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	batch := importer.New(orchestrator, store, blocklist, creds, importer.Config{
		FlushEvery:      cfg.Import.FlushEvery,
		MinContentRunes: cfg.Extract.MinContentRunes,
	}, logger.Named("import"))

	app := &App{
		Cfg:          cfg,
		Logger:       logger,
		Store:        store,
		Blocklist:    blocklist,
		Orchestrator: orchestrator,
		Importer:     batch,
		Ranker:       search.NewRanker(cfg.Search.MaxVocabulary, logger.Named("search")),
		Synthesizer: answer.NewSynthesizer(answer.Config{
			Endpoint:    cfg.LLM.Endpoint,
			Model:       cfg.LLM.Model,
			APIKey:      cfg.LLM.APIKey,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		}, logger.Named("answer")),
		Creds: creds,
	}
	if cfg.Remote.BaseURL != "" {
		remoteClient, err := remote.NewClient(remote.Config{
			BaseURL: cfg.Remote.BaseURL,
			APIKey:  cfg.Remote.APIKey,
			Timeout: time.Duration(cfg.Remote.TimeoutSeconds) * time.Second,
		}, logger.Named("remote"))
		if err != nil {
			return nil, fmt.Errorf("init remote client: %w", err)
		}
		app.Remote = remoteClient
	}
	return app, nil
}

// loadCredentials assembles pass-through access credentials: an optional
// cookie blob file plus proxy login values from config.
func loadCredentials(cfg config.Config) (fetch.Credentials, error) {
	creds := fetch.Credentials{
		Bearer:    os.Getenv("PAPERDOCK_BEARER_TOKEN"),
		ProxyUser: cfg.Proxy.Username,
		ProxyPass: cfg.Proxy.Password,
	}
	if cookieFile == "" {
		return creds, nil
	}
	blob, err := os.ReadFile(cookieFile)
	if err != nil {
		return fetch.Credentials{}, fmt.Errorf("read cookie file: %w", err)
	}
	creds.Cookies = fetch.ParseCookieBlob(string(blob))
	return creds, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paperdock",
		Short: "A personal research-article library with fetch, search, and analysis.",
		Long: `paperdock acquires research articles from the open and subscription web,
extracts their text through a ladder of static, rendered, and
institutional-proxy strategies, and ranks the resulting library for
retrieval and answer synthesis.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, app)
			cmd.SetContext(ctx)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if app, ok := cmd.Context().Value(appKey).(*App); ok && app != nil {
				app.Close()
			}
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default uses built-in defaults plus PAPERDOCK_* env)")
	cmd.PersistentFlags().StringVar(&cookieFile, "cookies", "", "file holding a pasted cookie blob for subscription sites")

	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*App, error) {
	app, ok := ctx.Value(appKey).(*App)
	if !ok || app == nil {
		return nil, errors.New("application services not initialized")
	}
	return app, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
