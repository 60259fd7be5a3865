package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/attnguard/pkg/blocking"
	"github.com/vanderheijden86/attnguard/pkg/bus"
	"github.com/vanderheijden86/attnguard/pkg/config"
	"github.com/vanderheijden86/attnguard/pkg/debug"
	"github.com/vanderheijden86/attnguard/pkg/metrics"
	"github.com/vanderheijden86/attnguard/pkg/store"
	"github.com/vanderheijden86/attnguard/pkg/syncer"
	"github.com/vanderheijden86/attnguard/pkg/ui"
	"github.com/vanderheijden86/attnguard/pkg/version"
)

func main() {
	cpuProfile := flag.String("cpu-profile", "", "Write CPU profile to file")
	help := flag.Bool("help", false, "Show help")
	versionFlag := flag.Bool("version", false, "Show version")
	configPath := flag.String("config", "", "Config file path (default: XDG config dir)")
	statePath := flag.String("state", "", "Shared state path (default: XDG state dir)")
	backend := flag.String("backend", "", "State backend: file or sqlite")
	host := flag.String("host", "", "Page host this client is attached to")
	enable := flag.Bool("enable", false, "Enable the panel on startup")
	forcePoll := flag.Bool("force-poll", false, "Poll for state changes instead of watching")
	headless := flag.Bool("headless", false, "Print the blocking decision as JSON and exit")
	flag.Parse()

	// CPU profiling support
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	if *help {
		fmt.Println("Usage: attn [options]")
		fmt.Println("\nA shared focus timer with site blocking across client sessions.")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if *versionFlag {
		fmt.Printf("attn %s\n", version.Version)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Store.Backend = *backend
	}
	if *statePath != "" {
		cfg.Store.Path = *statePath
	}
	if *forcePoll {
		cfg.Store.ForcePoll = true
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *headless {
		cfg.UI.Headless = true
	}

	st, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening state store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.UI.Headless {
		if err := printDecision(ctx, st, cfg.Host); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, st, cfg, *enable); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func openStore(cfg config.Config) (store.Store, error) {
	path := cfg.StatePath()
	if path == "" {
		return nil, fmt.Errorf("cannot determine state path, set store.path in config")
	}

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		return store.OpenSQLite(path)
	case config.BackendFile, "":
		var opts []store.FileOption
		if cfg.Store.ForcePoll {
			opts = append(opts, store.WithForcePolling(true))
		}
		return store.OpenFile(path, opts...)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func run(ctx context.Context, st store.Store, cfg config.Config, enable bool) error {
	b := bus.New()
	defer b.Close()

	sy := syncer.New(st,
		syncer.WithBus(b),
		syncer.WithHost(cfg.Host),
	)

	panel := ui.NewPanel(sy, sy.Mirror(), ui.WithAltScreen(cfg.UI.AltScreen == nil || *cfg.UI.AltScreen))
	sy.AttachRenderer(panel)

	if enable {
		sy.SetPanelEnabled(true)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sy.Run(ctx) })
	g.Go(func() error {
		// Only a clean panel quit ends the session for this client. A
		// crashed program is recreated by the presence check.
		err := panel.Run(ctx)
		if err == nil {
			return context.Canceled
		}
		return err
	})

	err := g.Wait()

	for _, stat := range metrics.AllTimingStats() {
		debug.Log("timing %s: n=%d avg=%.2fms max=%.2fms", stat.Name, stat.Count, stat.AvgMs, stat.MaxMs)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// printDecision hydrates the shared state once and reports whether the
// given host would be blocked right now. For scripting and debugging.
func printDecision(ctx context.Context, st store.Store, host string) error {
	settings := store.HydrateUserSettings(ctx, st)
	state := store.HydrateTimerState(ctx, st)
	panicOpen := store.HydratePanicOpen(ctx, st)

	d := blocking.Decide(host, settings, state, panicOpen, time.Now())
	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
