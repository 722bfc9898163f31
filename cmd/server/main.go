// Web download server
//
// Serves one directory tree over HTTP:
// - listing pages with collapsible folders
// - plain file downloads
// - whole folders as ZIP archives under /download_folder/
// - Prometheus metrics and a health probe on a separate listener
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ransxd/web-download-server/internal/api"
	"github.com/ransxd/web-download-server/internal/archive"
	"github.com/ransxd/web-download-server/internal/config"
	"github.com/ransxd/web-download-server/internal/lifecycle"
	"github.com/ransxd/web-download-server/internal/listing"
	"github.com/ransxd/web-download-server/internal/logging"
	"github.com/ransxd/web-download-server/internal/metrics"
	"github.com/ransxd/web-download-server/internal/storage/local"
	"github.com/ransxd/web-download-server/internal/tree"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "YAML or TOML config file (env vars override it)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: cfg.LogOutput,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	if err := run(cfg); err != nil {
		logging.Fatal("server error", zap.Error(err))
	}
	logging.Info("server stopped")
}

func run(cfg *config.Config) error {
	root, err := local.New(local.Config{RootPath: cfg.RootDir})
	if err != nil {
		return err
	}

	filter := tree.NewFilter(cfg.PIDFile, cfg.LogFile)
	scanner := &tree.Scanner{
		Root:     root,
		Filter:   filter,
		MaxDepth: cfg.MaxDepth,
		OnError: func(dir string, err error) {
			metrics.RecordScanError()
			logging.Warn("directory listed as empty", zap.String("dir", dir), zap.Error(err))
		},
	}
	renderer, err := listing.New()
	if err != nil {
		return fmt.Errorf("load listing template: %w", err)
	}
	srv := api.NewServer(root, scanner, &archive.Packager{Filter: filter}, renderer, version)

	pid, err := lifecycle.Acquire(cfg.PIDFile)
	if err != nil {
		return err
	}
	guard := lifecycle.NewGuard(pid.Release)
	defer guard.Shutdown()
	defer func() {
		if r := recover(); r != nil {
			guard.Shutdown()
			panic(r)
		}
	}()

	ctx, stop := guard.Watch(context.Background())
	defer stop()

	servers := []*http.Server{{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.MetricsAddr != "" {
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           srv.AdminHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	logging.Info("web download server starting",
		zap.String("version", version),
		zap.String("root", root.Path()),
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("pid_file", pid.Path()),
		zap.Int("pid", pid.PID()))
	printBanner(root.Path(), cfg.ListenAddr, cfg.MetricsAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := servers[0].ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", servers[0].Addr, err)
		}
		return nil
	})
	for _, s := range servers[1:] {
		s := s
		// Admin listener failures are logged, not fatal.
		g.Go(func() error {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server error", zap.String("addr", s.Addr), zap.Error(err))
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", s.Addr, err))
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func printBanner(root, listenAddr, metricsAddr string) {
	bold := color.New(color.Bold)
	bold.Println("File Download Server")
	fmt.Printf("  serving  %s\n", color.CyanString(root))
	fmt.Printf("  browse   %s\n", color.GreenString(browseURL(listenAddr)))
	if metricsAddr != "" {
		fmt.Printf("  metrics  %s\n", color.HiBlackString(browseURL(metricsAddr)+"metrics"))
	}
	fmt.Println(color.HiBlackString("  press Ctrl+C to stop"))
}

// browseURL turns a listen address into a URL a user can open locally.
func browseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}
