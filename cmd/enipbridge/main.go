// enipbridge polls tags from an EtherNet/IP controller and publishes each
// cycle as a JSON envelope over MQTT.
//
// The bridge is driven over HTTP (start, stop, status, config) and starts
// on its own by default. Configuration is read from ENIPBRIDGE_CONFIG or
// -config; see configs/config.yaml for the layout.
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
	"time"

	"github.com/nerrad567/gray-logic-enip/internal/api"
	"github.com/nerrad567/gray-logic-enip/internal/audit"
	"github.com/nerrad567/gray-logic-enip/internal/auth"
	"github.com/nerrad567/gray-logic-enip/internal/bridges/enip"
	"github.com/nerrad567/gray-logic-enip/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-enip/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-enip/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-enip/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-enip/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-enip/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// bridgeStopTimeout bounds how long shutdown waits for both sessions to close.
	bridgeStopTimeout = 15 * time.Second
)

// options are the command-line flags.
type options struct {
	configPath string
	autostart  bool
	issueToken string
	tokenTTL   time.Duration
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if opts.issueToken != "" {
		err = issueToken(opts, os.Stdout)
	} else {
		err = run(ctx, opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, output io.Writer) (options, error) {
	fs := flag.NewFlagSet("enipbridge", flag.ContinueOnError)
	fs.SetOutput(output)

	var opts options
	fs.StringVar(&opts.configPath, "config", getConfigPath(), "path to the YAML configuration file")
	fs.BoolVar(&opts.autostart, "autostart", true, "start the bridge immediately")
	fs.StringVar(&opts.issueToken, "issue-token", "", "print a bearer token for `subject` and exit")
	fs.DurationVar(&opts.tokenTTL, "token-ttl", 24*time.Hour, "lifetime of tokens printed by -issue-token (0 for none)")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// getConfigPath returns the config path from ENIPBRIDGE_CONFIG or the default.
func getConfigPath() string {
	if path := os.Getenv("ENIPBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func issueToken(opts options, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	token, err := auth.GenerateToken(opts.issueToken, cfg.Security.APITokenSecret, opts.tokenTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

// run wires every component and blocks until ctx is cancelled.
//
// Parameters:
//   - ctx: Cancelled on SIGINT or SIGTERM
//   - opts: Parsed command-line flags
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, opts options) error {
	log := logging.Default()
	log.Info("starting EtherNet/IP bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", opts.configPath, "level", cfg.Logging.Level)

	// Event log
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	events := audit.NewSQLiteRepository(db.DB)
	log.Info("event log ready", "path", db.Path())

	// Historian (optional)
	var historian enip.Historian
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
			st := influxClient.Stats()
			log.Info("InfluxDB closed",
				"points", st.Points,
				"partial_points", st.Partial,
				"empty_polls", st.Empty,
				"write_errors", st.WriteErrors,
			)
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		historian = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	collectors := metrics.New()

	bridgeLog := log.Component("bridge")
	supervisor, err := enip.NewSupervisor(enip.SupervisorOptions{
		NewDevice: enip.NewDeviceFactory(bridgeLog),
		NewBroker: enip.NewBrokerFactory(bridgeLog),
		Historian: historian,
		Metrics:   collectors,
		Events:    events,
		Logger:    bridgeLog,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating supervisor: %w", err)
	}

	fileCfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	store := config.NewStore(opts.configPath, fileCfg)

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.Component("api"),
		Bridge:   supervisor,
		Settings: store,
		Events:   events,
		Metrics:  collectors.Handler(),
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if cfg.Security.APITokenSecret == "" {
		log.Warn("security.api_token_secret is empty; control endpoints are unauthenticated")
	}

	if opts.autostart {
		if _, err := supervisor.Start(enip.SettingsFromConfig(cfg)); err != nil {
			log.Error("bridge autostart rejected", "error", err)
		}
	} else {
		log.Info("autostart disabled; waiting for POST /api/v1/bridge/start")
	}

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	stopBridge(supervisor, log)

	log.Info("EtherNet/IP bridge stopped")
	return nil
}

// stopBridge stops any active run and waits for its sessions to close.
func stopBridge(supervisor *enip.Supervisor, log *logging.Logger) {
	if err := supervisor.Stop(); err != nil && !errors.Is(err, enip.ErrNotRunning) {
		log.Error("error stopping bridge", "error", err)
	}

	select {
	case <-supervisor.Done():
	case <-time.After(bridgeStopTimeout):
		log.Warn("bridge did not stop in time", "timeout", bridgeStopTimeout)
	}
}
