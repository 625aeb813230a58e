package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/rps-arena/core"
	"github.com/signalsfoundry/rps-arena/internal/config"
	"github.com/signalsfoundry/rps-arena/internal/logging"
	"github.com/signalsfoundry/rps-arena/internal/observability"
	"github.com/signalsfoundry/rps-arena/timectrl"
)

func main() {
	bootLog := logging.NewFromEnv()
	ctx := context.Background()

	if err := config.LoadDotEnv(".env"); err != nil {
		bootLog.Error(ctx, "failed to load .env", logging.Err(err))
		os.Exit(1)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		bootLog.Error(ctx, "invalid environment", logging.Err(err))
		os.Exit(1)
	}
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		bootLog.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(2)
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	tracingCfg := observability.TracingConfigFromEnv()
	tracingCfg.Attributes = runAttributes(cfg)
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}

	var collector *observability.SimCollector
	if cfg.MetricsAddr != "" {
		collector, err = observability.NewSimCollector(prometheus.NewRegistry())
		if err != nil {
			log.Error(ctx, "failed to register metrics", logging.Err(err))
			os.Exit(1)
		}
	}
	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)

	exitCode := 0
	res, err := run(ctx, cfg, log, collector)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error(ctx, "simulation failed", logging.Err(err))
		exitCode = 1
	}
	printScoreboard(os.Stdout, res, cfg.WinningScore)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
	stop()
	os.Exit(exitCode)
}

// summary collects what happened across all rounds of one run.
type summary struct {
	Seed       int64
	Outcomes   []core.Outcome
	Abandoned  int // rounds cut off by the tick cap
	Ticks      int
	SimElapsed time.Duration
}

// run plays cfg.Rounds rounds, restarting after each one ends, and returns
// once they are all played or ctx is cancelled.
func run(ctx context.Context, cfg config.Config, log logging.Logger, collector *observability.SimCollector) (summary, error) {
	settings, err := cfg.EngineSettings()
	if err != nil {
		return summary{}, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	res := summary{Seed: seed}

	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	simStart := time.Now().UTC()
	tc := timectrl.NewTimeController(simStart, cfg.TickInterval, mode)

	opts := []core.EngineOption{core.WithDriver(tc), core.WithLogger(log)}
	if collector != nil {
		opts = append(opts, core.WithMetricsRecorder(collector))
	}
	engine, err := core.NewSimulationEngine(settings, rand.New(rand.NewSource(seed)), opts...)
	if err != nil {
		return res, err
	}

	var (
		mu      sync.Mutex
		played  int
		runErr  error
		results []core.Outcome
	)
	// next is called from the tick goroutine once a round is over.
	next := func() {
		mu.Lock()
		played++
		done := played >= cfg.Rounds
		mu.Unlock()
		if done {
			tc.Stop()
			return
		}
		if err := engine.Restart(ctx); err != nil {
			mu.Lock()
			runErr = err
			mu.Unlock()
			tc.Stop()
		}
	}

	engine.OnEnded(func(o core.Outcome) {
		mu.Lock()
		results = append(results, o)
		mu.Unlock()
		log.Info(ctx, "winner",
			logging.Int("round", o.Round),
			logging.String("species", o.Winner.String()),
			logging.String("reason", string(o.Reason)),
			logging.Int("ticks", o.Tick),
		)
		next()
	})
	if cfg.MaxTicks > 0 {
		engine.OnTick(func(s core.Snapshot) {
			if s.State != core.Running || s.Tick < cfg.MaxTicks {
				return
			}
			log.Warn(ctx, "tick cap reached, abandoning round",
				logging.Int("round", s.Round),
				logging.Int("ticks", s.Tick),
				logging.String("tally", s.Tally.String()),
			)
			mu.Lock()
			res.Abandoned++
			mu.Unlock()
			next()
		})
	}
	tc.AddListener(func(time.Time) { engine.Tick(ctx) })

	log.Info(ctx, "simulator starting",
		logging.Any("seed", seed),
		logging.Int("agents", settings.AgentCount),
		logging.Int("winning_score", settings.WinningScore),
		logging.Int("rounds", cfg.Rounds),
		logging.String("broad_phase", settings.BroadPhase.String()),
		logging.String("mode", mode.String()),
	)
	if err := engine.Start(ctx); err != nil {
		return res, err
	}

	done := tc.Start(0)
	select {
	case <-done:
	case <-ctx.Done():
		tc.Stop()
		<-done
	}

	mu.Lock()
	defer mu.Unlock()
	res.Outcomes = results
	res.Ticks = tc.Ticks()
	res.SimElapsed = tc.Now().Sub(simStart)
	if runErr != nil {
		return res, runErr
	}
	return res, ctx.Err()
}

// runAttributes tags the trace resource with what makes a run reproducible.
func runAttributes(cfg config.Config) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("sim.seed", cfg.Seed),
		attribute.Int("sim.agents", cfg.AgentCount),
		attribute.Int("sim.winning_score", cfg.WinningScore),
		attribute.Int("sim.rounds", cfg.Rounds),
		attribute.String("sim.broad_phase", cfg.BroadPhase),
		attribute.String("sim.arena", fmt.Sprintf("%gx%g", cfg.ArenaWidth, cfg.ArenaHeight)),
	}
}

func printScoreboard(w io.Writer, s summary, threshold int) {
	fmt.Fprintf(w, "seed %d, %d ticks, %s simulated\n", s.Seed, s.Ticks, s.SimElapsed)
	for _, o := range s.Outcomes {
		fmt.Fprintf(w, "round %d: %s wins by %s after %d ticks\n", o.Round, o.Winner, o.Reason, o.Tick)
		for _, line := range o.Tally.Progress(threshold) {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	if s.Abandoned > 0 {
		fmt.Fprintf(w, "%d round(s) abandoned at the tick cap\n", s.Abandoned)
	}
}

func serveMetrics(addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
