package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"reelshare/internal/api"
	"reelshare/internal/config"
	"reelshare/internal/credentials"
	"reelshare/internal/filestore"
	"reelshare/internal/ingest"
	"reelshare/internal/logging"
	"reelshare/internal/redis"
	"reelshare/internal/storage"
	"reelshare/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logging.Error("reelshare exited", "err", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgPath, port string

	rootCmd := &cobra.Command{
		Use:           "reelshare",
		Short:         "Upload local files, web files and YouTube videos to the Gemini file store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfgPath, port)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", os.Getenv("REELSHARE_CONFIG"), "path to config.json")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfgPath, port)
		},
	}
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().StringVarP(&port, "port", "p", "", "listen port, overrides config and PORT")
	}

	var refresh bool
	bootstrapCmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Fetch the configuration bundle from the config sheet and print it masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printBundle(cmd, cfgPath, refresh)
		},
	}
	bootstrapCmd.Flags().BoolVar(&refresh, "refresh", false, "drop the cached bundle before fetching")

	rootCmd.AddCommand(serveCmd, bootstrapCmd)
	return rootCmd
}

func loadConfig(path string) (*config.Config, error) {
	logging.CreateLogger()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// credentialsStack builds the bootstrap and, when redis is enabled, the bundle cache behind it.
func credentialsStack(ctx context.Context, cfg *config.Config) (*credentials.Bootstrap, *redis.BundleCache, func(), error) {
	sa, err := credentials.LoadServiceAccount(afero.NewOsFs(), cfg.ServiceAccount.File)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.ServiceAccount.TokenURI != "" {
		sa.TokenURI = cfg.ServiceAccount.TokenURI
	}

	cleanup := func() {}
	var bundleCache *redis.BundleCache
	rdb, err := redis.NewRedisClient(ctx, cfg)
	switch {
	case errors.Is(err, redis.ErrDisabled):
	case err != nil:
		logging.Warn("redis unavailable, bundle cache disabled", "err", err)
	default:
		cleanup = func() { rdb.Close() }
		cipher, err := redis.NewCipher(cfg.Redis.EncryptionKey)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("bundle cache key: %w", err)
		}
		ttl := time.Duration(cfg.Redis.TTLMinutes) * time.Minute
		bundleCache, err = redis.NewBundleCache(rdb, cipher, ttl)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
	}

	opts := credentials.Options{
		Exchanger: credentials.NewExchanger(sa, credentials.SheetsReadOnlyScope, nil),
		Reader:    credentials.NewSheetReader(cfg.Sheet.SpreadsheetID, cfg.Sheet.SheetRange(), cfg.Sheet.Endpoint, nil),
	}
	if bundleCache != nil {
		opts.Cache = bundleCache
	}
	boot, err := credentials.NewBootstrap(opts)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return boot, bundleCache, cleanup, nil
}

func serve(ctx context.Context, cfgPath, port string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if port != "" {
		cfg.BasicConfig.ServerAddress = ":" + strings.TrimPrefix(port, ":")
	}

	boot, _, cleanup, err := credentialsStack(ctx, cfg)
	if err != nil {
		logging.Error("credentials setup failed", "err", err)
		return err
	}
	defer cleanup()

	// warm the bundle so the first request does not pay for the sheet round trip
	go func() {
		if _, err := boot.Obtain(ctx); err != nil {
			logging.Warn("startup configuration fetch failed, retrying on first request", "err", err)
		}
	}()

	provider := filestore.NewProvider(boot, cfg.Gemini.BaseURL, nil)

	observer, err := ingest.NewPrometheusObserver("reelshare", prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	pipelineOpts := ingest.Options{
		Fs:              afero.NewOsFs(),
		TempRoot:        cfg.BasicConfig.TempDir,
		PollInterval:    time.Duration(cfg.Ingest.PollIntervalSeconds) * time.Second,
		PollTimeout:     time.Duration(cfg.Ingest.PollTimeoutSeconds) * time.Second,
		MaxPolls:        cfg.Ingest.MaxPolls,
		DownloadTimeout: time.Duration(cfg.Ingest.DownloadTimeoutSecs) * time.Second,
		Observer:        observer,
	}

	var ledger *storage.Ledger
	if dbType := cfg.BasicConfig.Database; dbType != "" {
		db, err := storage.Open(dbType, cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := storage.Migrate(db, dbType); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		ledger = storage.NewLedger(db)
		pipelineOpts.Recorder = ledger
		logging.Info("ingestion ledger enabled", "driver", dbType)
	}

	pipeline := ingest.NewPipeline(func(ctx context.Context) (ingest.Store, error) {
		client, err := provider.Client(ctx)
		if err != nil {
			return nil, err
		}
		return client, nil
	}, pipelineOpts)

	dispatcher := worker.NewDispatcher(worker.Config{
		MinWorkers:  cfg.Workers.MinWorkers,
		MaxWorkers:  cfg.Workers.MaxWorkers,
		QueueSize:   cfg.Workers.QueueSize,
		IdleTimeout: time.Duration(cfg.Workers.WorkerIdleTimeout) * time.Second,
	})
	defer dispatcher.Close()

	handlerOpts := api.Options{
		Pipeline:   pipeline,
		Dispatcher: dispatcher,
		Caches: func(ctx context.Context) (api.CacheCreator, error) {
			client, err := provider.Client(ctx)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		MaxUploadBytes: cfg.BasicConfig.MaxUploadBytes,
	}
	if ledger != nil {
		handlerOpts.Ledger = ledger
	}
	router := api.NewRouter(api.NewHandler(handlerOpts))

	ln, err := net.Listen("tcp", cfg.BasicConfig.ServerAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.BasicConfig.ServerAddress, err)
	}
	return runServer(ctx, ln, router)
}

// runServer serves until ctx ends, then drains in-flight requests for up to
// shutdownTimeout.
func runServer(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 30 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logging.Info("server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logging.Error("server stopped", "err", err)
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func printBundle(cmd *cobra.Command, cfgPath string, refresh bool) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	boot, bundleCache, cleanup, err := credentialsStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if refresh && bundleCache != nil {
		if err := bundleCache.Invalidate(ctx); err != nil {
			return fmt.Errorf("invalidate cached bundle: %w", err)
		}
	}
	bundle, err := boot.Obtain(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "apiKey:     %s\n", maskSecret(bundle.APIKey))
	fmt.Fprintf(out, "model:      %s\n", bundle.ModelName)
	fmt.Fprintf(out, "nodeServer: %s\n", bundle.ServerAddress)
	return nil
}

// maskSecret keeps the last four characters visible.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

var _ filestore.BundleSource = (*credentials.Bootstrap)(nil)
