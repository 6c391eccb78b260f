// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/autodj/internal/api/connect"
	"github.com/osa030/autodj/internal/api/controlv1/controlv1connect"
	"github.com/osa030/autodj/internal/app/deck"
	"github.com/osa030/autodj/internal/app/engine"
	"github.com/osa030/autodj/internal/app/filter"
	"github.com/osa030/autodj/internal/app/notification"
	"github.com/osa030/autodj/internal/app/source"
	"github.com/osa030/autodj/internal/app/tempo"
	"github.com/osa030/autodj/internal/infra/catalog"
	"github.com/osa030/autodj/internal/infra/config"
	"github.com/osa030/autodj/internal/infra/library"
	"github.com/osa030/autodj/internal/infra/logger"
	"github.com/osa030/autodj/internal/infra/stream"
)

var (
	app        = kingpin.New("autodj-server", "autodj crossfade engine server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	autostart  = app.Flag("autostart", "Start a session once the server is listening").Bool()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// backend bundles the catalog-facing dependencies of the configured catalog
// type.
type backend struct {
	catalog     source.Catalog
	recommender source.Recommender
	streams     engine.Streams
	close       func() error
}

func openBackend(cfg config.CatalogConfig) (*backend, error) {
	switch cfg.Type {
	case config.CatalogSQLite:
		lib, err := library.Open(library.Config{DBPath: cfg.DBPath, AudioDir: cfg.AudioDir})
		if err != nil {
			return nil, errors.Wrap(err, "failed to open library")
		}
		return &backend{
			catalog:     lib,
			recommender: library.NewRecommender(lib),
			streams:     lib,
			close:       lib.Close,
		}, nil
	default:
		client, err := catalog.New(catalog.Config{BaseURL: cfg.BaseURL, Timeout: cfg.Timeout()})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create catalog client")
		}
		return &backend{
			catalog:     client,
			recommender: client,
			streams:     client,
			close:       func() error { return nil },
		}, nil
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	chain, err := filter.NewChainFromConfig(cfg)
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	be, err := openBackend(cfg.Catalog)
	if err != nil {
		return err
	}
	defer be.close()
	zlog.Info().Msgf("Catalog backend: type=%s", cfg.Catalog.Type)

	newSource, err := source.NewFactoryFromConfig(cfg.Source, be.catalog, be.recommender, chain)
	if err != nil {
		return errors.Wrap(err, "invalid source config")
	}

	pair := deck.NewPair(deck.Config{
		SampleRate:      cfg.Audio.SampleRate,
		FrameDuration:   cfg.Audio.FrameDuration(),
		ResampleQuality: cfg.Audio.ResampleQuality,
		MasterGain:      cfg.Audio.MasterGain,
	}, deck.NewStreamOpener(cfg.Audio.FetchTimeout(), cfg.Audio.MaxTrackBytes()))

	eng := engine.New(engine.Config{
		MixInterval:  cfg.Mix.MixInterval(),
		FadeDuration: cfg.Mix.FadeDuration(),
		TargetEnergy: cfg.Mix.TargetEnergy,
		SettleMargin: cfg.Audio.SettleMargin(),
		Tempo: tempo.Calculator{
			MinRate:    cfg.Mix.RateMin,
			MaxRate:    cfg.Mix.RateMax,
			DefaultBPM: cfg.Mix.DefaultBPM,
		},
	}, pair, be.streams, newSource, engine.WallClock{})

	broadcaster := stream.NewBroadcaster()
	notifier := notification.NewManager()
	controlService := apiconnect.NewControlService(eng, notifier, broadcaster)

	// Audio render loop, listener fan-out, engine loop and event forwarding
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	frames := make(chan []int16, 8)
	go pair.Run(runCtx, frames)
	go broadcaster.Run(runCtx, frames)
	engineDone := make(chan struct{})
	go func() {
		eng.Run(runCtx)
		close(engineDone)
	}()
	go notifier.Forward(runCtx, eng.Events(), controlService.ConvertEvent)

	mux := http.NewServeMux()
	controlPath, controlHandler := controlv1connect.NewControlServiceHandler(
		controlService,
		connect.WithInterceptors(apiconnect.NewAdminAuthInterceptor(cfg.Server.AdminToken)),
	)
	mux.Handle(controlPath, controlHandler)
	mux.Handle("/listen.wav", stream.NewWAVHandler(broadcaster, cfg.Audio.SampleRate))

	serverAddr := cfg.Server.Addr
	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    serverAddr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", serverAddr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	if *autostart {
		go func() {
			if err := eng.Start(runCtx); err != nil {
				zlog.Error().Msgf("Failed to start session: %v", errors.FlattenHints(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	// Stop the engine first so subscribers receive the stopped event
	cancelRun()
	<-engineDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close long-lived streams before the server waits for idle connections
	notifier.Close()
	broadcaster.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// printFilters prints available filters.
func printFilters() {
	registry := filter.GetRegistered()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Filters:")
	for _, name := range names {
		f := registry[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
