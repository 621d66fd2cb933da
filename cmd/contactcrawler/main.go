// Package main wires together the contact crawler service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/leadharvest/contactcrawler/internal/api"
	gcsarchive "github.com/leadharvest/contactcrawler/internal/archive/gcs"
	localarchive "github.com/leadharvest/contactcrawler/internal/archive/local"
	memoryarchive "github.com/leadharvest/contactcrawler/internal/archive/memory"
	"github.com/leadharvest/contactcrawler/internal/clock/system"
	"github.com/leadharvest/contactcrawler/internal/config"
	"github.com/leadharvest/contactcrawler/internal/detector"
	"github.com/leadharvest/contactcrawler/internal/discovery"
	"github.com/leadharvest/contactcrawler/internal/extract"
	collyfetcher "github.com/leadharvest/contactcrawler/internal/fetcher/colly"
	headlessfetcher "github.com/leadharvest/contactcrawler/internal/fetcher/headless"
	"github.com/leadharvest/contactcrawler/internal/id/uuid"
	"github.com/leadharvest/contactcrawler/internal/logging"
	"github.com/leadharvest/contactcrawler/internal/metrics"
	"github.com/leadharvest/contactcrawler/internal/orchestrator"
	"github.com/leadharvest/contactcrawler/internal/parsing"
	"github.com/leadharvest/contactcrawler/internal/pipeline"
	memorypublisher "github.com/leadharvest/contactcrawler/internal/publisher/memory"
	pubsubpublisher "github.com/leadharvest/contactcrawler/internal/publisher/pubsub"
	queueMemory "github.com/leadharvest/contactcrawler/internal/queue/memory"
	"github.com/leadharvest/contactcrawler/internal/sitemap"
	storeMemory "github.com/leadharvest/contactcrawler/internal/store/memory"
	storePostgres "github.com/leadharvest/contactcrawler/internal/store/postgres"
	"github.com/leadharvest/contactcrawler/internal/task"
	"github.com/leadharvest/contactcrawler/internal/validator"
	"github.com/leadharvest/contactcrawler/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := system.New()
	idGen := uuid.New()

	staticFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.Crawler.UserAgent,
		ConnectTimeout: cfg.HTTP.ConnectTimeout(),
		ReadTimeout:    cfg.HTTP.ReadTimeout(),
		MaxRetries:     cfg.HTTP.MaxRetries,
		BackoffInitial: time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
	})

	resolver := sitemap.New(sitemap.Config{
		MaxDocuments:    cfg.Sitemap.MaxDocuments,
		MaxURLsPerDoc:   cfg.Sitemap.MaxURLsPerDoc,
		MaxDocumentSize: cfg.Sitemap.MaxDocumentSize * 1024 * 1024,
	}, staticFetcher, logger.Named("sitemap"))

	extractor := extract.New(cfg.Parser.EmailExcludes, cfg.Parser.FormScoreThreshold)

	var pipelineOpts []pipeline.Option
	var headless *headlessfetcher.Fetcher
	if cfg.Headless.Enabled {
		headless, err = headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
			headless = nil
		} else {
			defer headless.Close()
			pipelineOpts = append(pipelineOpts,
				pipeline.WithHeadless(headless, detector.NewHeuristic(cfg.Headless.MinHTMLBytes)))
		}
	}
	if cfg.AI.Enabled {
		v := validator.New(validator.Config{
			APIKey:         cfg.AI.APIKey,
			Model:          cfg.AI.Model,
			Timeout:        time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
			RequestsPerSec: cfg.AI.RequestsPerSec,
		}, logger.Named("validator"))
		pipelineOpts = append(pipelineOpts, pipeline.WithValidator(v))
	}

	blobStore, cleanupArchive, err := buildArchive(ctx, cfg.Archive)
	if err != nil {
		logger.Fatal("archive init failed", zap.Error(err))
	}
	if cleanupArchive != nil {
		defer cleanupArchive()
	}
	if blobStore != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithArchive(blobStore))
	}

	var store parsing.TaskStore
	switch strings.ToLower(cfg.DB.Provider) {
	case "postgres":
		pgStore, err := storePostgres.NewStore(ctx, storePostgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxConns),
		})
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pgStore.Close()
		store = pgStore
	default:
		store = storeMemory.NewStore(clk)
	}

	var publisher parsing.Publisher
	switch strings.ToLower(cfg.Publisher.Provider) {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.Publisher.ProjectID)
		if err != nil {
			logger.Fatal("pubsub client init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("pubsub client close failed", zap.Error(closeErr))
			}
		}()
		publisher = pubsubpublisher.New(client.Publisher(cfg.Publisher.TopicName))
	default:
		publisher = memorypublisher.New()
	}

	search := discovery.New(discovery.Config{
		APIKey:   cfg.Search.APIKey,
		CX:       cfg.Search.CX,
		Endpoint: cfg.Search.Endpoint,
		Timeout:  cfg.HTTP.ReadTimeout(),
	}, logger.Named("discovery"))

	pipe := pipeline.New(pipeline.Config{
		PageConcurrency: cfg.Crawler.PageConcurrency,
		MaxURLs:         cfg.Parser.MaxURLsToProcess,
	}, staticFetcher, resolver, extractor, clk, logger.Named("pipeline"), pipelineOpts...)

	orch := orchestrator.New(pipe, cfg.Crawler.BatchConcurrency, logger.Named("orchestrator"))

	queue := queueMemory.NewQueue(cfg.Crawler.QueueDepth)
	registry := task.NewRegistry()
	tasks := task.NewService(store, queue, registry, idGen, clk, logger.Named("task"))

	workerCfg := worker.Config{Topic: cfg.Publisher.TopicName}
	for i := 0; i < cfg.Crawler.Workers; i++ {
		w := worker.New(queue, store, pipe, orch, search, publisher, registry, workerCfg,
			logger.Named("worker").With(zap.Int("index", i)))
		go w.Run(ctx)
	}

	apiServer := api.NewServer(tasks, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
}

// buildArchive constructs the snapshot store named by the config, or nil
// when archiving is disabled.
func buildArchive(ctx context.Context, cfg config.ArchiveConfig) (parsing.BlobStore, func(), error) {
	var store parsing.BlobStore
	var cleanup func()
	switch strings.ToLower(cfg.Provider) {
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create GCS client: %w", err)
		}
		store, err = gcsarchive.New(client, gcsarchive.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		cleanup = func() { _ = client.Close() }
	case "local":
		localStore, err := localarchive.New(localarchive.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, nil, err
		}
		store = localStore
	case "memory":
		store = memoryarchive.NewBlobStore()
	case "", "none":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown archive provider %q", cfg.Provider)
	}
	if cfg.Prefix != "" {
		store = prefixedBlobStore{prefix: strings.Trim(cfg.Prefix, "/"), inner: store}
	}
	return store, cleanup, nil
}

// prefixedBlobStore puts every object under a fixed path prefix.
type prefixedBlobStore struct {
	prefix string
	inner  parsing.BlobStore
}

func (p prefixedBlobStore) PutObject(ctx context.Context, path, contentType string, data []byte) (string, error) {
	return p.inner.PutObject(ctx, p.prefix+"/"+path, contentType, data)
}
