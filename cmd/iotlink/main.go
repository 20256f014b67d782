// iotlink keeps a device connected: it associates with the local network,
// holds one MQTT broker session, arms the firmware update listener and
// serves a small administrative API.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/iotlink/internal/api"
	"github.com/nerrad567/iotlink/internal/audit"
	"github.com/nerrad567/iotlink/internal/auth"
	"github.com/nerrad567/iotlink/internal/infrastructure/config"
	"github.com/nerrad567/iotlink/internal/infrastructure/database"
	"github.com/nerrad567/iotlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/iotlink/internal/infrastructure/logging"
	"github.com/nerrad567/iotlink/internal/infrastructure/mqtt"
	"github.com/nerrad567/iotlink/internal/network"
	"github.com/nerrad567/iotlink/internal/node"
	"github.com/nerrad567/iotlink/internal/process"
	"github.com/nerrad567/iotlink/internal/session"
	"github.com/nerrad567/iotlink/internal/settings"
	"github.com/nerrad567/iotlink/internal/update"
	"github.com/nerrad567/iotlink/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when neither --config nor IOTLINK_CONFIG is set.
	defaultConfigPath = "configs/config.yaml"

	// eventRetention is how long lifecycle events are kept in SQLite.
	eventRetention = 30 * 24 * time.Hour
)

// options are the parsed command-line flags.
type options struct {
	configPath   string
	supervise    bool
	hashPassword bool
	showVersion  bool
}

func main() {
	os.Exit(realMain(os.Args[1:]))
}

// realMain parses flags, runs the selected mode and maps the outcome to
// an exit status: 0 clean, 1 error, 2 usage, process.ExitCodeRestart
// after an administrative reset.
func realMain(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 2
	}

	if opts.showVersion {
		fmt.Printf("iotlink %s (commit %s, built %s)\n", version, commit, date)
		return 0
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch {
	case opts.hashPassword:
		err = hashPassword(os.Stdin, os.Stdout)
	case opts.supervise:
		err = supervise(ctx, args)
	default:
		err = run(ctx, resolveConfigPath(opts.configPath))
	}

	if errors.Is(err, node.ErrResetRequested) {
		return process.ExitCodeRestart
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// parseFlags parses the command line. Usage goes to w.
func parseFlags(args []string, w io.Writer) (options, error) {
	var opts options

	fs := pflag.NewFlagSet("iotlink", pflag.ContinueOnError)
	fs.SetOutput(w)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file (default $IOTLINK_CONFIG or "+defaultConfigPath+")")
	fs.BoolVar(&opts.supervise, "supervise", false, "run the agent as a child process and restart it after a reset")
	fs.BoolVar(&opts.hashPassword, "hash-password", false, "read a password from stdin and print its Argon2id hash")
	fs.BoolVar(&opts.showVersion, "version", false, "print version information and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// resolveConfigPath returns flagPath, then IOTLINK_CONFIG, then the default.
func resolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if path := os.Getenv("IOTLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// supervise re-executes this binary without --supervise and restarts it
// whenever it exits for a reset.
func supervise(ctx context.Context, args []string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}

	log := logging.Default().Component("supervisor")
	sup := newSupervisor(exe, childArgs(args), log)
	err = sup.Run(ctx)
	log.Info("supervisor stopped", "status", sup.Status(), "last_error", sup.LastError())
	return err
}

// newSupervisor builds the agent supervisor. Every restart is logged with
// the counters so far.
func newSupervisor(exe string, args []string, log *logging.Logger) *process.Supervisor {
	cfg := process.DefaultConfig("iotlink", exe, args)

	var sup *process.Supervisor
	cfg.OnRestart = func(attempt int, requested bool) {
		st := sup.Stats()
		log.Info("restarting agent",
			"attempt", attempt,
			"requested", requested,
			"starts", st.Starts,
			"restarts", st.Restarts,
			"resets", st.Resets,
			"last_error", st.LastError,
		)
	}
	sup = process.NewSupervisor(cfg)
	sup.SetLogger(log)
	return sup
}

// childArgs returns args without the --supervise flag.
func childArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "--supervise" || strings.HasPrefix(arg, "--supervise=") {
			continue
		}
		out = append(out, arg)
	}
	return out
}

// hashPassword reads one line from r and writes its PHC hash to w.
func hashPassword(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		return errors.New("no password on stdin")
	}
	password := strings.TrimRight(scanner.Text(), "\r")
	if password == "" {
		return errors.New("password is empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}

// run is the agent itself, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Path to the YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, node.ErrResetRequested after a reset,
//     or an error describing a startup failure
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting iotlink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "device", cfg.Device.Name)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path(), "migrations_applied", applied)

	store := settings.NewStore(db.DB)
	overrides, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	events := audit.NewSQLiteRepository(db.DB)
	if pruned, pruneErr := events.Prune(ctx, time.Now().Add(-eventRetention)); pruneErr != nil {
		log.Warn("pruning event log failed", "error", pruneErr)
	} else if pruned > 0 {
		log.Info("event log pruned", "deleted", pruned)
	}

	// The recorder outlives ctx so that shutdown events are still written.
	recorder := audit.NewRecorder(events, log.Component("audit"))
	recorderCtx, stopRecorder := context.WithCancel(context.Background())
	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		recorder.Run(recorderCtx)
	}()
	defer func() {
		stopRecorder()
		<-recorderDone
	}()

	hub := api.NewHub(cfg.API.Stream, log.Component("stream"))
	go hub.Run(ctx)

	recorders := node.Recorders{recorder, hub}
	drops := map[string]api.DropCounter{"audit": recorder}
	health := map[string]api.HealthChecker{"database": db}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Device.Name)
		if influxErr != nil {
			log.Warn("InfluxDB unavailable, telemetry disabled", "error", influxErr)
		} else {
			defer func() {
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			influxClient.SetOnError(func(err error) {
				log.Warn("InfluxDB write error", "error", err)
			})
			recorders = append(recorders, influxClient)
			health["influxdb"] = influxClient
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	sess, mqttClient, err := buildSession(cfg, overrides, log, recorders)
	if err != nil {
		return err
	}

	station := network.NewHostStation(cfg.Network.Interface)
	netCtl := network.NewController(station)
	netCtl.SetLogger(log.Component("network"))

	var gate *update.Gate
	if cfg.Update.Enabled {
		listener := update.NewMDNSListener(cfg.Update.Board)
		listener.SetLogger(log.Component("update"))
		defer listener.Close() //nolint:errcheck // Best effort on shutdown
		gate = update.NewGate(listener, cfg.Update.Port, cfg.Device.Name)
		gate.SetLogger(log.Component("update"))
	}

	n := node.New(node.Config{
		Device:             cfg.Device.Name,
		Version:            version,
		Credentials:        credentials(cfg.Network, overrides, log),
		UpdatePasswordHash: cfg.Update.PasswordHash,
		PollInterval:       cfg.Loop.PollInterval(),
	}, netCtl, sess, gate)
	n.SetLogger(log.Component("node"))
	n.SetEventRecorder(recorders)

	if mqttClient != nil {
		drops["mqtt_inbound"] = mqttClient
		// The client is owned by the control goroutine.
		health["mqtt"] = healthFunc(func(ctx context.Context) error {
			var checkErr error
			if err := n.Do(ctx, func() { checkErr = mqttClient.HealthCheck(ctx) }); err != nil {
				return err
			}
			return checkErr
		})
	}

	if err := n.Start(); err != nil {
		return fmt.Errorf("starting network association: %w", err)
	}

	var basic *auth.BasicAuth
	if cfg.API.AdminPasswordHash != "" {
		basic, err = auth.NewBasicAuth(auth.AdminUsername, cfg.API.AdminPasswordHash)
		if err != nil {
			return fmt.Errorf("configuring admin auth: %w", err)
		}
	} else {
		log.Warn("api.admin_password_hash not set, admin API is unauthenticated")
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log.Component("api"),
		Admin:    n.Admin(),
		Settings: store,
		Events:   events,
		Auth:     basic,
		Health:   health,
		Hub:      hub,
		DB:       db.DB,
		Drops:    drops,
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

	log.Info("initialisation complete")

	runErr := n.Run(ctx)
	switch {
	case errors.Is(runErr, node.ErrResetRequested):
		log.Info("reset requested, exiting for restart")
	case runErr != nil:
		log.Error("poll dispatcher stopped", "error", runErr)
	default:
		log.Info("iotlink stopped")
	}
	return runErr
}

// buildSession creates the MQTT client and broker session. Both are nil
// when MQTT is disabled. A session without a broker host stays idle.
func buildSession(cfg *config.Config, overrides settings.Overrides, log *logging.Logger, events session.EventRecorder) (*session.Manager, *mqtt.Client, error) {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil, nil, nil
	}

	opts := mqtt.Options{
		ConnectTimeout: cfg.MQTT.ConnectTimeout(),
		BufferSize:     cfg.MQTT.BufferSize,
	}
	if cfg.MQTT.StatusTopic {
		opts.StatusTopic = mqtt.Topics{}.DeviceStatus(cfg.Device.Name)
	}
	client := mqtt.New(opts)
	client.SetLogger(log.Component("mqtt"))

	sess := session.New(client, session.Config{
		ClientID:          cfg.Device.Name,
		Port:              cfg.MQTT.Broker.Port,
		KeepAlive:         cfg.MQTT.KeepAliveInterval(),
		ReconnectInterval: cfg.MQTT.ReconnectInterval(),
		FloatPrecision:    cfg.MQTT.FloatPrecision,
		BufferSize:        cfg.MQTT.BufferSize,
	})
	sess.SetLogger(log.Component("session"))
	sess.SetEventRecorder(events)

	identity := session.ResolveIdentity(session.Identity{
		Host:     cfg.MQTT.Broker.Host,
		Username: cfg.MQTT.Auth.Username,
		Password: cfg.MQTT.Auth.Password,
	}, overrides.Identity())

	if err := sess.Enable(identity); err != nil {
		log.Warn("broker session not configured", "error", err)
	} else {
		log.Info("broker session configured", "server", identity.Host, "user", identity.Username)
	}

	for _, topic := range cfg.MQTT.Topics {
		if err := sess.AddTopic(topic); err != nil {
			return nil, nil, fmt.Errorf("adding topic %q: %w", topic, err)
		}
	}

	msgLog := log.Component("mqtt")
	sess.SetMessageHandler(func(topic string, payload []byte) {
		msgLog.Debug("message received", "topic", topic, "bytes", len(payload))
	})

	return sess, client, nil
}

// credentials builds the association credentials. A complete, valid
// static override wins over the configured static bundle.
func credentials(cfg config.NetworkConfig, overrides settings.Overrides, log *logging.Logger) network.Credentials {
	creds := network.Credentials{
		SSID:       cfg.SSID,
		Passphrase: cfg.Passphrase,
	}

	if static := overrides.Static(); static != nil {
		err := network.ValidateStaticAddress(*static)
		if err == nil {
			creds.Static = static
			return creds
		}
		log.Warn("ignoring stored static address", "error", err)
	}

	if cfg.Static.Enabled {
		creds.Static = &network.StaticAddress{
			Address: cfg.Static.Address,
			Gateway: cfg.Static.Gateway,
			Mask:    cfg.Static.Mask,
			DNS:     cfg.Static.DNS,
		}
	}
	return creds
}

// healthFunc adapts a function to api.HealthChecker.
type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}
