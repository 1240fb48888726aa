package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"ytdlp_proxy/internal/runner"
	"ytdlp_proxy/internal/service/events"
	"ytdlp_proxy/internal/shared/config"
	"ytdlp_proxy/internal/shared/logger"
	"ytdlp_proxy/internal/shared/types"
	manager "ytdlp_proxy/proxypool"
	"ytdlp_proxy/proxypool/benchmark"
	"ytdlp_proxy/proxypool/geo"
	"ytdlp_proxy/proxypool/model"
	"ytdlp_proxy/proxypool/scraper"
	"ytdlp_proxy/proxypool/storage"
)

const usage = `usage: ytdlp-proxy update [-config file] [-events addr] | <yt-dlp args>

Start yt-dlp through one of the fastest free proxies.

Commands:
  update   Discover and benchmark proxies, save the best ones

Any other arguments are passed to yt-dlp with --proxy injected.
The config file defaults to ytdlp-proxy.ini next to the binary,
or $YTDLP_PROXY_CONFIG when set.
`

const exitInterrupted = 130

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(stdout, usage)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if args[0] == "update" {
		err = runUpdate(ctx, args[1:], stdout, stderr)
	} else {
		err = runDownload(ctx, args, stdout)
	}
	return exitCode(err, stderr)
}

func exitCode(err error, stderr io.Writer) int {
	var exitErr *runner.ExitError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(stderr, "Interrupted.")
		return exitInterrupted
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, flag.ErrHelp):
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func loadConfig(path string) (*types.Config, error) {
	if path == "" {
		path = os.Getenv("YTDLP_PROXY_CONFIG")
	}
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.LoadIni(path)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.LogConf); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func runUpdate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to the ini config file")
	eventsAddr := fs.String("events", "", "Serve pipeline events over websocket on this address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *eventsAddr != "" {
		cfg.EventsConf.Listen = *eventsAddr
	}

	registry := scraper.NewRegistry()
	if err := scraper.RegisterBuiltins(registry); err != nil {
		return err
	}
	scrapers, err := scraper.BuildEnabled(registry, cfg.SourcesConf)
	if err != nil {
		return err
	}
	st := storage.NewFileStorage(cfg.PoolConf.StateFile)

	var hub *events.Hub
	if cfg.EventsConf.Listen != "" {
		hub = events.NewHub()
		serveCtx, cancel := context.WithCancel(ctx)
		done, err := events.Serve(serveCtx, cfg.EventsConf.Listen, hub, st)
		if err != nil {
			cancel()
			return fmt.Errorf("failed to start event server: %w", err)
		}
		defer func() {
			cancel()
			<-done
		}()
	}

	var progress benchmark.ProgressFunc
	if hub != nil {
		progress = manager.ProgressEvents(hub)
	}
	bench := benchmark.New(benchmark.ConfigFromTypes(cfg.BenchmarkConf), progress)
	mgr := manager.NewManager(manager.OptionsFromConfig(cfg.PoolConf), st, scrapers, bench)
	if hub != nil {
		mgr.SetObserver(hub)
	}
	if cfg.PoolConf.GeoLookup {
		mgr.SetLocator(geo.NewLocator(cfg.PoolConf.GeoAPIURL, 0))
	}

	list, err := mgr.Update(ctx)
	if err != nil {
		if errors.Is(err, manager.ErrNoCandidates) || errors.Is(err, manager.ErrNoUsableProxy) {
			return fmt.Errorf("%w; the previously saved list was kept", err)
		}
		return err
	}
	printList(stdout, st.Path(), list)
	return nil
}

func printList(w io.Writer, path string, list model.RankedList) {
	fmt.Fprintf(w, "Saved %d proxies to %s\n", len(list), path)
	for i, p := range list {
		fmt.Fprintf(w, "%2d. %-28s %-16s %-12s %6.2fs\n", i+1, p.Address(), p.Country, p.City, p.Time)
	}
}

func runDownload(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}
	r := runner.New(cfg.YtdlpConf, storage.NewFileStorage(cfg.PoolConf.StateFile))
	r.Output = stdout
	return r.Run(ctx, args)
}
