// Package main provides the edslrun CLI: load a run bundle, wire the
// cache, rate limiter, and provider adapters, and conduct the interview
// matrix it describes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	edslconfig "github.com/nurv/edsl/config"
	"github.com/nurv/edsl/jobsrunner"
	"github.com/nurv/edsl/llm"
	"github.com/nurv/edsl/observability"

	"github.com/nurv/edsl/cache"
	"github.com/nurv/edsl/ratelimit"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("edslrun: command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "edslrun",
		Short:        "Run an interview matrix against one or more language models",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(buildRunCmd())
	return root
}

func buildRunCmd() *cobra.Command {
	var (
		configPath string
		bundlePath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Conduct every interview a bundle describes",
		Example: `  edslrun run --config edsl.yaml --bundle survey.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatrix(cmd.Context(), configPath, bundlePath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "edsl.yaml", "Path to YAML runtime configuration")
	cmd.Flags().StringVarP(&bundlePath, "bundle", "b", "bundle.yaml", "Path to the survey/agent/scenario bundle")
	return cmd
}

func runMatrix(ctx context.Context, configPath, bundlePath string) error {
	cfg, err := edslconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()
	_ = metrics // registered with the default Prometheus registry; this command serves no /metrics endpoint

	bundle, err := edslconfig.LoadBundle(bundlePath)
	if err != nil {
		return fmt.Errorf("loading bundle: %w", err)
	}

	sv, err := bundle.BuildSurvey()
	if err != nil {
		return fmt.Errorf("building survey: %w", err)
	}
	agents := bundle.BuildAgents()
	scenarios := bundle.BuildScenarios()
	if len(agents) == 0 || len(scenarios) == 0 || len(bundle.Models) == 0 {
		return fmt.Errorf("bundle must declare at least one agent, scenario, and model")
	}

	adapters, err := buildAdapters(cfg, bundle.Models)
	if err != nil {
		return fmt.Errorf("building adapters: %w", err)
	}

	backend, err := cache.NewSQLiteBackend(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	var remote *cache.RemoteClient
	if cfg.RemoteCache.URL != "" {
		remote = cache.NewRemoteClient(cfg.RemoteCache.URL, cfg.RemoteCache.APIKey)
	}
	c := cache.New(cache.Options{
		Backend:        backend,
		ImmediateWrite: cfg.Runner.ImmediateWrite,
		Remote:         remote,
		RemoteBackups:  cfg.Runner.RemoteBackups,
	})
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error(ctx, "closing cache", "error", err)
		}
	}()

	buckets := ratelimit.NewBucketCollection()

	var workItems []jobsrunner.WorkItem
	for _, ag := range agents {
		for _, sc := range scenarios {
			for _, adapter := range adapters {
				workItems = append(workItems, jobsrunner.WorkItem{Agent: ag, Scenario: sc, Adapter: adapter})
			}
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info(runCtx, "received shutdown signal, cancelling in-flight interviews")
		cancel()
	}()

	results, err := jobsrunner.Run(runCtx, c, buckets, jobsrunner.RunOptions{
		Survey:          sv,
		WorkItems:       workItems,
		N:               cfg.Runner.N,
		StopOnException: cfg.Runner.StopOnException,
		Timeout:         cfg.Runner.Timeout,
		ProgressEvery:   2 * time.Second,
		Logger:          nil,
	})
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	printSummary(results)
	return nil
}

func buildAdapters(cfg *edslconfig.Config, models []string) ([]llm.Adapter, error) {
	adapters := make([]llm.Adapter, 0, len(models))
	for _, model := range models {
		provider, ok := providerFor(cfg, model)
		if !ok {
			return nil, fmt.Errorf("no provider configured for model %q", model)
		}
		switch provider.kind {
		case "anthropic":
			adapters = append(adapters, llm.NewAnthropicAdapter(llm.AnthropicConfig{
				APIKey: provider.cfg.APIKey,
				Model:  model,
			}))
		case "openai", "deep_infra":
			adapters = append(adapters, llm.NewOpenAIAdapter(llm.OpenAIConfig{
				APIKey:  provider.cfg.APIKey,
				BaseURL: provider.cfg.BaseURL,
				Model:   model,
			}))
		default:
			return nil, fmt.Errorf("unknown provider kind %q for model %q", provider.kind, model)
		}
	}
	return adapters, nil
}

type resolvedProvider struct {
	kind string
	cfg  edslconfig.ProviderConfig
}

// providerFor picks the provider whose DefaultModel matches model, or else
// the "anthropic" provider for model names starting with "claude" and the
// "openai" provider for names starting with "gpt"; other providers (such
// as "deep_infra") match only through DefaultModel. This is a thin
// convention, not a registry, since the bundle format doesn't carry a
// model->provider map of its own.
func providerFor(cfg *edslconfig.Config, model string) (resolvedProvider, bool) {
	for kind, p := range cfg.Providers {
		if p.DefaultModel == model {
			return resolvedProvider{kind: kind, cfg: p}, true
		}
	}
	for kind, p := range cfg.Providers {
		if kind == "anthropic" && len(model) >= 6 && model[:6] == "claude" {
			return resolvedProvider{kind: kind, cfg: p}, true
		}
		if kind == "openai" && len(model) >= 3 && model[:3] == "gpt" {
			return resolvedProvider{kind: kind, cfg: p}, true
		}
	}
	return resolvedProvider{}, false
}

func printSummary(results *jobsrunner.Results) {
	fmt.Printf("conducted %d interviews in %s\n", len(results.Items), results.Elapsed.Round(time.Millisecond))
	if !results.TaskHistory.HasExceptions() {
		fmt.Println("all interviews completed without exceptions")
		return
	}
	indices := results.TaskHistory.Indices()
	const maxListed = 5
	if len(indices) <= maxListed {
		fmt.Printf("%d interviews recorded exceptions: indices %v\n", len(indices), indices)
		return
	}
	fmt.Printf("%d interviews recorded exceptions: indices %v and %d more\n",
		len(indices), indices[:maxListed], len(indices)-maxListed)
}
