// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/openseed-dev/openseed/gateway"
	"github.com/openseed-dev/openseed/host"
	"github.com/openseed-dev/openseed/lib/budget"
	"github.com/openseed-dev/openseed/lib/clock"
	"github.com/openseed-dev/openseed/lib/creaturetoken"
	"github.com/openseed-dev/openseed/lib/eventlog"
	"github.com/openseed-dev/openseed/lib/runlock"
	"github.com/openseed-dev/openseed/lib/vcs"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Run the supervisor and gateway for one creature",
	RunE:  runHost,
}

func init() {
	rootCmd.AddCommand(hostCmd)
}

func runHost(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	config, err := host.LoadConfig(path)
	if err != nil {
		return err
	}

	secret, err := creaturetoken.LoadSecret(config.SecretPath())
	if err != nil {
		return err
	}
	logger.Info("loaded process secret", "fingerprint", creaturetoken.Fingerprint(secret))

	// The run lock is the single "is this creature running" predicate.
	lockPath := config.RunLockPath()
	if record, running := runlock.IsRunning(lockPath); running {
		return fmt.Errorf("creature %s already supervised by pid %d", record.Name, record.PID)
	}

	events, err := eventlog.Open(config.EventLogPath(), clock.Real(), logger)
	if err != nil {
		return err
	}
	defer events.Close()

	prices := budget.DefaultPrices()
	if config.Budget.PricesFile != "" {
		prices, err = budget.LoadPrices(config.Budget.PricesFile)
		if err != nil {
			return err
		}
	}
	tracker := budget.NewTracker(config.Budget.Config, prices,
		config.BudgetSnapshotPath(), clock.Real(), logger)

	name := config.Creature.Name
	creatureURL := fmt.Sprintf("http://127.0.0.1:%d", config.Creature.Port)
	hostURL := fmt.Sprintf("http://127.0.0.1:%d", config.Host.Port)

	launcher, err := host.NewExecLauncher(config.Creature.Command, config.Creature.Dir, map[string]string{
		"OPENSEED_NAME":         name,
		"OPENSEED_DIR":          config.Creature.Dir,
		"OPENSEED_PORT":         strconv.Itoa(config.Creature.Port),
		"OPENSEED_HOST_URL":     hostURL,
		"OPENSEED_TOKEN":        creaturetoken.Derive(secret, name),
		"OPENSEED_AUTO_ITERATE": strconv.FormatBool(config.Creature.AutoIterate),
	})
	if err != nil {
		return err
	}

	poll, gate, deadline, err := config.Health.Durations()
	if err != nil {
		return err
	}
	supervisor := host.New(host.Params{
		Name:             name,
		Repo:             vcs.Open(config.Creature.Dir),
		Launcher:         launcher,
		Probe:            host.NewHTTPProbe(creatureURL),
		Events:           events,
		Clock:            clock.Real(),
		Logger:           logger,
		PollInterval:     poll,
		HealthGate:       gate,
		RollbackDeadline: deadline,
	})

	// The budget sleep action stops the child until an operator (or the
	// daily reset plus a restart) wakes it; a stopped process holds its
	// state but makes no further calls.
	sleep := func(creature, reason string) {
		status := supervisor.Status()
		if status.PID == 0 {
			return
		}
		logger.Warn("putting creature to sleep", "creature", creature, "pid", status.PID, "reason", reason)
		if err := unix.Kill(status.PID, unix.SIGSTOP); err != nil {
			logger.Error("stopping creature process", "pid", status.PID, "error", err)
		}
	}

	gatewayServer := gateway.NewServer(buildProviders(config.Gateway, logger),
		tracker, secret, name, sleep, logger)
	hostServer := host.NewServer(supervisor, events, tracker, secret, name, clock.Real(), logger)

	mux := http.NewServeMux()
	mux.Handle("/v1/", gatewayServer.Handler())
	mux.Handle("/", hostServer.Handler())

	if err := runlock.Write(lockPath, runlock.Record{
		HostPort:     config.Host.Port,
		CreaturePort: config.Creature.Port,
		PID:          os.Getpid(),
		Name:         name,
		StartedAt:    time.Now().UTC(),
	}); err != nil {
		return err
	}
	defer func() {
		if err := runlock.Remove(lockPath); err != nil {
			logger.Error("removing run lock", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	if err := supervisor.Start(ctx); err != nil {
		return err
	}
	defer supervisor.Stop()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Host.Port),
		Handler: mux,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()
	logger.Info("host serving", "addr", httpServer.Addr, "creature", name)

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("http shutdown", "error", err)
	}
	return nil
}

// buildProviders wires each upstream whose API key is present in the
// environment. A model routed to an absent provider is rejected by the
// gateway with a configuration error rather than silently re-routed.
func buildProviders(config host.GatewayConfig, logger *slog.Logger) map[gateway.ProviderKind]gateway.Provider {
	providers := make(map[gateway.ProviderKind]gateway.Provider)

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		providers[gateway.KindAnthropic] = gateway.NewAnthropic(key, config.AnthropicBaseURL)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		providers[gateway.KindOpenAI] = gateway.NewOpenAI(key, config.OpenAIBaseURL)
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		providers[gateway.KindGemini] = gateway.NewGemini(key, config.GeminiBaseURL, logger)
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		providers[gateway.KindOpenRouter] = gateway.NewOpenRouter(key, config.OpenRouterBaseURL)
	}

	for kind := range providers {
		logger.Info("provider configured", "provider", kind)
	}
	return providers
}
