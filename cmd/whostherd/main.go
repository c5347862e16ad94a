package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/whosthere/whosthere/internal/config"
	"github.com/whosthere/whosthere/internal/monitor"
	"github.com/whosthere/whosthere/internal/poller"
	"github.com/whosthere/whosthere/internal/session"
	"github.com/whosthere/whosthere/internal/utmp"
	"github.com/whosthere/whosthere/internal/ws"
)

// errorLinger gives connected clients a chance to receive the terminal
// error frame before the process exits.
const errorLinger = time.Second

func main() {
	app := cli.NewApp()
	app.Name = "whostherd"
	app.Usage = "watch who is logged into this machine and serve the live view"

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Value: "",
			Usage: "path to a YAML config file",
		},
		&cli.StringFlag{
			Name:  "utmp",
			Value: "",
			Usage: "override the login-record store path",
		},
		&cli.StringFlag{
			Name:  "display",
			Value: "",
			Usage: "override the monitor's own display (defaults to $DISPLAY)",
		},
		&cli.IntFlag{
			Name:  "port",
			Value: 0,
			Usage: "override the server port",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "logrus level (debug, info, warn, error)",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	if level, err := log.ParseLevel(c.String("log-level")); err == nil {
		log.SetLevel(level)
	}

	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if path := c.String("utmp"); path != "" {
		cfg.Monitor.UTMPPath = path
	}
	if port := c.Int("port"); port > 0 {
		cfg.Server.Port = port
	}

	// The display is resolved once at startup; without it IsCurrent can
	// never be computed, so this is fatal here rather than per cycle.
	display := cfg.Monitor.Display
	if d := c.String("display"); d != "" {
		display = d
	}
	if display == "" {
		display = os.Getenv("DISPLAY")
	}

	mux, err := poller.New()
	if err != nil {
		return err
	}
	defer mux.Close()
	if err := mux.WatchFile(cfg.Monitor.UTMPPath); err != nil {
		return err
	}

	mon, err := monitor.New(monitor.Config{
		UTMPPath:     cfg.Monitor.UTMPPath,
		Display:      display,
		IgnoredHosts: cfg.Monitor.IgnoredHosts,
		Location:     utmp.LocalLocation(),
	}, mux)
	if err != nil {
		return err
	}

	store := session.NewStore()
	broadcaster := ws.NewBroadcaster(store, cfg.Monitor.BroadcastThrottle, cfg.Monitor.SnapshotInterval)
	server := ws.NewServer(store, broadcaster, cfg.Server.AllowedOrigins, cfg.Server.AuthToken)

	log.WithFields(log.Fields{
		"utmp":    cfg.Monitor.UTMPPath,
		"display": display,
	}).Info("monitor starting")

	// The monitor owns its tracked set and runs for the process lifetime;
	// it only ever comes back with a fatal error.
	monErr := make(chan error, 1)
	go func() {
		monErr <- mon.Run(func(entries []session.Entry) {
			store.Replace(entries)
			broadcaster.QueueUpdate()
		})
	}()

	httpMux := http.NewServeMux()
	server.SetupRoutes(httpMux)
	go func() {
		if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, httpMux); err != nil {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-monErr:
		store.Fail(err)
		broadcaster.BroadcastError(err)
		log.WithError(err).Error("monitor failed")
		time.Sleep(errorLinger)
		return err
	case sig := <-sigCh:
		log.WithField("signal", sig).Info("shutting down")
		return nil
	}
}
