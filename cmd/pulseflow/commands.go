package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulseflow/pulseflow/internal/model"
	"github.com/pulseflow/pulseflow/pkg/archive"
	"github.com/pulseflow/pulseflow/pkg/client"
	"github.com/pulseflow/pulseflow/pkg/config"
	"github.com/pulseflow/pulseflow/pkg/lifecycle"
	"github.com/pulseflow/pulseflow/pkg/queue"
	"github.com/pulseflow/pulseflow/pkg/resilience"
	"github.com/pulseflow/pulseflow/pkg/store"
	"github.com/pulseflow/pulseflow/pkg/taxonomy"
	"github.com/pulseflow/pulseflow/pkg/telemetry"
	"github.com/pulseflow/pulseflow/pkg/transport"
	"github.com/pulseflow/pulseflow/pkg/tui"
)

// pipeline bundles everything a command needs after assembly.
type pipeline struct {
	cfg      *config.Config
	client   *client.AnalyticsClient
	queue    *queue.Queue
	breaker  *resilience.CircuitBreaker
	taxonomy taxonomy.Provider
	watcher  *taxonomy.Watcher
	shutdown func(context.Context) error
}

// loadConfig merges config files, env, and CLI flag overrides.
func loadConfig() *config.Config {
	cfg := config.Global().Get()

	if endpointFlag != "" {
		cfg.Transport.Endpoint = endpointFlag
	}
	if modeFlag != "" {
		cfg.Client.Mode = modeFlag
	}
	if storageFlag != "" {
		cfg.Storage.Backend = storageFlag
	}
	if taxonomyFlag != "" {
		cfg.Taxonomy.Path = taxonomyFlag
	}
	if batchFlag > 0 {
		cfg.Client.BatchSize = batchFlag
	}
	if watchFlag {
		cfg.Taxonomy.Watch = true
	}

	return cfg
}

func buildStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "file", "":
		return store.NewFileStore(cfg.Storage.Dir)
	case "redis":
		redisCfg := store.DefaultRedisConfig(cfg.Storage.Redis.Address)
		redisCfg.Password = cfg.Storage.Redis.Password
		redisCfg.Database = cfg.Storage.Redis.Database
		if cfg.Storage.Redis.Prefix != "" {
			redisCfg.Prefix = cfg.Storage.Redis.Prefix
		}
		return store.NewRedisStore(redisCfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildTaxonomy(ctx context.Context, cfg *config.Config) (taxonomy.Provider, *taxonomy.Watcher, error) {
	if cfg.Taxonomy.Watch {
		w, err := taxonomy.NewWatcher(cfg.Taxonomy.Path)
		if err != nil {
			return nil, nil, err
		}
		if verbose {
			w.OnReload = func(reg *taxonomy.Registry) {
				fmt.Printf("Taxonomy reloaded: %d events\n", len(reg.Events()))
			}
			w.OnError = func(err error) {
				fmt.Fprintf(os.Stderr, "Taxonomy reload failed: %v\n", err)
			}
		}
		return w, w, nil
	}

	reg, err := taxonomy.LoadFile(cfg.Taxonomy.Path)
	if err != nil {
		return nil, nil, err
	}
	return taxonomy.NewStatic(reg), nil, nil
}

func buildArchiver(ctx context.Context, cfg *config.Config) (archive.Archiver, error) {
	switch cfg.Archive.Backend {
	case "", "none":
		return archive.NopArchiver{}, nil
	case "memory":
		return archive.NewMemoryArchiver(), nil
	case "s3":
		s3cfg := archive.DefaultS3Config(cfg.Archive.S3.Bucket)
		if cfg.Archive.S3.Prefix != "" {
			s3cfg.Prefix = cfg.Archive.S3.Prefix
		}
		s3cfg.Region = cfg.Archive.S3.Region
		s3cfg.Endpoint = cfg.Archive.S3.Endpoint
		return archive.NewS3Archiver(ctx, s3cfg)
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
}

// buildPipeline assembles the full delivery pipeline from configuration.
func buildPipeline(ctx context.Context) (*pipeline, error) {
	cfg := loadConfig()

	st, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	q, err := queue.New(ctx, st, queue.Config{
		MaxSize: cfg.Queue.MaxSize,
		Key:     cfg.Queue.Key,
	})
	if err != nil {
		return nil, err
	}

	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		Timeout:          cfg.Breaker.Timeout,
		MonitoringPeriod: cfg.Breaker.MonitoringPeriod,
	})
	if verbose {
		breaker.OnTrip = func(failures int) {
			fmt.Fprintf(os.Stderr, "Circuit opened after %d failures\n", failures)
		}
		breaker.OnReset = func() {
			fmt.Fprintln(os.Stderr, "Circuit closed")
		}
	}

	tr := transport.New(transport.Config{
		Endpoint:       cfg.Transport.Endpoint,
		Disabled:       cfg.Transport.Disabled,
		MaxRetries:     cfg.Transport.MaxRetries,
		BaseBackoff:    cfg.Transport.BaseBackoff,
		MaxBackoff:     cfg.Transport.MaxBackoff,
		RequestTimeout: cfg.Transport.RequestTimeout,
	}, breaker)

	provider, watcher, err := buildTaxonomy(ctx, cfg)
	if err != nil {
		return nil, err
	}

	archiver, err := buildArchiver(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c, err := client.New(client.Config{
		Mode:                model.Mode(cfg.Client.Mode),
		BatchSize:           cfg.Client.BatchSize,
		FlushInterval:       cfg.Client.FlushInterval,
		MaintenanceInterval: cfg.Client.MaintenanceInterval,
		MaxRetries:          cfg.Client.MaxRetries,
		AppVersion:          cfg.Client.AppVersion,
		Platform:            cfg.Client.Platform,
	}, client.Dependencies{
		Taxonomy:  provider,
		Queue:     q,
		Transport: tr,
		Archiver:  archiver,
	})
	if err != nil {
		return nil, err
	}

	p := &pipeline{
		cfg:      cfg,
		client:   c,
		queue:    q,
		breaker:  breaker,
		taxonomy: provider,
		watcher:  watcher,
	}

	if cfg.Telemetry.Enabled {
		otlpCfg := telemetry.DefaultOTLPConfig("pulseflow")
		otlpCfg.ServiceVersion = version
		if cfg.Telemetry.Endpoint != "" {
			otlpCfg.Endpoint = cfg.Telemetry.Endpoint
		}
		shutdown, err := telemetry.InitOTLP(otlpCfg)
		if err != nil {
			return nil, err
		}
		p.shutdown = shutdown
	}

	return p, nil
}

func (p *pipeline) close(ctx context.Context) {
	if p.shutdown != nil {
		p.shutdown(ctx)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	return lifecycle.RunWithSignalHandling(func(ctx context.Context) error {
		p, err := buildPipeline(ctx)
		if err != nil {
			return err
		}
		defer p.close(context.Background())

		if verbose {
			tui.PrintHeader(version)
			fmt.Printf("Endpoint: %s\n", p.cfg.Transport.Endpoint)
			fmt.Printf("Mode:     %s\n", p.cfg.Client.Mode)
			fmt.Printf("Storage:  %s\n", p.cfg.Storage.Backend)
			fmt.Printf("Queued:   %d\n\n", p.client.QueueSize())
		}

		if p.watcher != nil {
			go p.watcher.Run(ctx)
		}

		err = p.client.Run(ctx)
		if err == context.Canceled {
			// Normal shutdown path; give the queue a final bounded drain.
			return p.client.Close()
		}
		return err
	})
}

func runFlush(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close(ctx)

	sent, err := p.client.Flush(ctx)
	if err != nil {
		tui.PrintError(err)
		return err
	}

	tui.PrintSuccess(fmt.Sprintf("Delivered %d events (%d remaining)", sent, p.client.QueueSize()))
	return nil
}

func runDrain(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close(ctx)

	total := p.client.QueueSize()
	if total == 0 {
		tui.PrintSuccess("Queue is already empty")
		return nil
	}

	bar := tui.ShowProgress(int64(total), "Draining")
	start := time.Now()
	delivered := 0

	for p.client.QueueSize() > 0 {
		sent, err := p.client.Flush(ctx)
		if err != nil {
			bar.Finish()
			tui.PrintDrainReport(delivered, p.client.QueueSize(), time.Since(start))
			return err
		}
		if sent == 0 {
			break
		}
		delivered += sent
		bar.Add(sent)
	}

	bar.Finish()
	tui.PrintDrainReport(delivered, p.client.QueueSize(), time.Since(start))
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close(ctx)

	tui.PrintQueueStats(p.client.Stats())
	tui.PrintBreakerState(p.breaker.Snapshot())
	return nil
}

func runQueueClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close(ctx)

	size := p.queue.Size()
	if err := p.queue.Clear(ctx); err != nil {
		return err
	}

	tui.PrintSuccess(fmt.Sprintf("Discarded %d queued events", size))
	return nil
}

func runTaxonomyCheck(cmd *cobra.Command, args []string) error {
	path := loadConfig().Taxonomy.Path
	if len(args) > 0 {
		path = args[0]
	}

	reg, err := taxonomy.LoadFile(path)
	if err != nil {
		tui.PrintError(err)
		return err
	}

	events := reg.Events()
	tui.PrintSuccess(fmt.Sprintf("%s: %d events", path, len(events)))
	for _, name := range events {
		fmt.Printf("  %s\n", name)
		for _, p := range reg.RequiredProps(name) {
			fmt.Printf("    %s (required)\n", p)
		}
		for _, p := range reg.AllowedProps(name) {
			if !contains(reg.RequiredProps(name), p) {
				fmt.Printf("    %s\n", p)
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
