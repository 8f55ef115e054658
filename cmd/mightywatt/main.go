// cmd/mightywatt/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mightywatt/internal/config"
	"github.com/tamzrod/mightywatt/internal/device"
	"github.com/tamzrod/mightywatt/internal/httpapi"
	"github.com/tamzrod/mightywatt/internal/metrics"
	"github.com/tamzrod/mightywatt/internal/mirror"
	"github.com/tamzrod/mightywatt/internal/transport"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config file")
	verbose := flag.Bool("verbose", false, "debug logging and device summary")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	listPorts := flag.Bool("list-ports", false, "list serial ports and exit")
	oneShot := flag.Bool("status", false, "print one status reading and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: mightywatt [flags] [serial-port]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *listPorts {
		ports, err := transport.Ports()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	// --------------------
	// Load + validate config
	// --------------------

	var cfg *config.Config
	if *cfgPath == "" {
		cfg = config.Default(flag.Arg(0))
	} else {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
			os.Exit(2)
		}
	}
	if flag.NArg() > 0 {
		cfg.Device.Port = flag.Arg(0)
	}
	if *listen != "" {
		cfg.HTTP.Listen = *listen
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config validation failed: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}
	config.Normalize(cfg)

	log := setupLogger(cfg.Log)

	if *oneShot {
		if err := printStatus(cfg, log); err != nil {
			log.Error(err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, log, *verbose); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logrus.Logger, verbose bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	devCfg := device.FromConfig(cfg.Device)
	opts := []device.Option{device.WithLogger(log)}

	// ---- metrics ----
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		devCfg.Handshake.OnAttempt = m.HandshakeAttempt
		opts = append(opts, device.WithObserver(m))
	}

	// ---- register mirror (optional) ----
	if cfg.Mirror.Enabled() {
		cli, err := mirror.Dial(mirror.ClientConfig{
			Endpoint: cfg.Mirror.Endpoint,
			Timeout:  time.Duration(cfg.Mirror.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			return fmt.Errorf("mirror connect %s: %w", cfg.Mirror.Endpoint, err)
		}
		defer cli.Close()

		mr := mirror.New(mirror.Config{
			UnitID:     cfg.Mirror.UnitID,
			BaseSlot:   cfg.Mirror.BaseSlot,
			DeviceName: cfg.Mirror.DeviceName,
			StaleAfter: devCfg.StaleAfter,
		}, cli, log)
		go mr.Run(ctx)
		opts = append(opts, device.WithObserver(mr))
	}

	// ---- websocket hub ----
	var hub *httpapi.Hub
	if cfg.HTTP.Listen != "" {
		hub = httpapi.NewHub(log)
		defer hub.Stop()
		opts = append(opts, device.WithObserver(hub))
	}

	// ---- device ----
	dev, err := device.Open(ctx, devCfg, opts...)
	if err != nil {
		return fmt.Errorf("cannot connect to MightyWatt on %s: %w", cfg.Device.Port, err)
	}
	defer dev.Close()

	if verbose {
		printSummary(dev)
	}

	if cfg.HTTP.Listen == "" {
		<-ctx.Done()
		log.Info("shutting down")
		return nil
	}

	// ---- HTTP ----
	srvOpts := []httpapi.Option{
		httpapi.WithHub(hub),
		httpapi.WithStaleAfter(devCfg.StaleAfter),
	}
	if m != nil {
		srvOpts = append(srvOpts, httpapi.WithMetrics(m.Handler()))
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           httpapi.New(dev, log, srvOpts...).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.HTTP.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return nil
}

// printStatus connects, prints one reading and disconnects.
func printStatus(cfg *config.Config, log *logrus.Logger) error {
	dev, err := device.Open(context.Background(), device.FromConfig(cfg.Device), device.WithLogger(log))
	if err != nil {
		return fmt.Errorf("cannot connect to MightyWatt on %s: %w", cfg.Device.Port, err)
	}
	defer dev.Close()

	s, err := dev.Status()
	if err != nil {
		return err
	}
	return printJSON(s)
}

func printSummary(dev *device.Device) {
	fmt.Printf("Connected to a MightyWatt on port %s\n", dev.Port())
	fmt.Println("Properties:")
	_ = printJSON(dev.Properties())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}

	if cfg.Output == "file" && cfg.FilePath != "" {
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			log.SetOutput(file)
		} else {
			log.Warnf("cannot open log file: %v, using stdout", err)
		}
	}

	return log
}
