// Meridian Core - Observation Sequence Execution Engine
//
// This is the main entry point for the Meridian Core application.
// Meridian executes observation sequences against the telescope and
// instrument subsystems of a Gemini-style observatory:
//   - Single-threaded execution engine with snapshot state
//   - Exclusive resource scheduling across concurrent observations
//   - Cooperative pause/stop and immediate abort semantics
//   - Simulated or MQTT-bridged subsystem backends
//
// For architecture details, see: docs/architecture/system-overview.md
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/meridian-obs/meridian-core/migrations"

	"github.com/meridian-obs/meridian-core/internal/api"
	"github.com/meridian-obs/meridian-core/internal/audit"
	"github.com/meridian-obs/meridian-core/internal/engine"
	"github.com/meridian-obs/meridian-core/internal/infrastructure/config"
	"github.com/meridian-obs/meridian-core/internal/infrastructure/database"
	"github.com/meridian-obs/meridian-core/internal/infrastructure/influxdb"
	"github.com/meridian-obs/meridian-core/internal/infrastructure/logging"
	"github.com/meridian-obs/meridian-core/internal/infrastructure/mqtt"
	"github.com/meridian-obs/meridian-core/internal/instrument"
	"github.com/meridian-obs/meridian-core/internal/odb"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Meridian Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Command journal
	journal := audit.NewSQLiteRepository(db.DB)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Observation definitions and observing database milestones
	source := odb.NewSource(cfg.Sequences.Dir)
	notifier := odb.NewLogNotifier(log)
	log.Info("sequence source initialised", "dir", cfg.Sequences.Dir)

	// Subsystem bank: simulated or bridged per configuration
	bank, err := buildBank(cfg, mqttClient)
	if err != nil {
		return fmt.Errorf("building subsystem bank: %w", err)
	}
	log.Info("subsystem bank initialised",
		"mode", cfg.Instruments.Mode,
		"site", cfg.Site.ID,
	)

	builder := instrument.NewBuilder(bank, notifier, instrument.NewFileAllocator(cfg.Site.ID))

	// WebSocket hub, shared between the API server and the engine sink
	hub := api.NewHub(cfg.WebSocket, log)

	// Engine emission sinks
	journalSink := audit.NewSink(journal, log)
	metrics := &metricsSink{client: influxClient}
	sinks := engine.MultiSink{
		api.NewEmissionBroadcaster(hub),
		odb.NewSequenceTracker(notifier),
		journalSink,
	}
	if influxClient != nil {
		sinks = append(sinks, metrics)
	}
	var status *statusPublisher
	if mqttClient != nil {
		status = newStatusPublisher(mqttClient, byte(cfg.MQTT.QoS), log)
		sinks = append(sinks, status)
	}

	// Execution engine
	eng := engine.New(sinks)
	eng.SetLogger(log)
	eng.SetPollInterval(cfg.GetPollInterval())
	metrics.eng = eng

	// Long-running loops share one lifecycle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { hub.Run(gctx); return nil })
	g.Go(func() error { journalSink.Run(gctx); return nil })
	if status != nil {
		g.Go(func() error { status.Run(gctx); return nil })
	}

	// HTTP API server
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Engine:      eng,
		Source:      source,
		Builder:     builder,
		Journal:     journal,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(gctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"host", cfg.API.Host,
		"port", cfg.API.Port,
	)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal (or a loop failure)
	<-gctx.Done()

	log.Info("shutdown signal received, cleaning up")

	if waitErr := g.Wait(); waitErr != nil {
		return fmt.Errorf("engine stopped: %w", waitErr)
	}

	log.Info("Meridian Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MERIDIAN_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MERIDIAN_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildBank constructs the subsystem bank for the configured mode.
//
// Parameters:
//   - cfg: Application configuration
//   - mqttClient: MQTT client (required for mode "mqtt", ignored for "sim")
//
// Returns:
//   - *instrument.Bank: Bank covering the TCS, GCAL and site instruments
//   - error: If the bridged mode is selected without an MQTT connection
func buildBank(cfg *config.Config, mqttClient *mqtt.Client) (*instrument.Bank, error) {
	instruments := siteInstruments(cfg.Site.ID)

	switch cfg.Instruments.Mode {
	case "mqtt":
		if mqttClient == nil {
			return nil, fmt.Errorf("instruments.mode=mqtt requires an MQTT connection")
		}
		return instrument.BridgeBank(mqttClient, byte(cfg.MQTT.QoS), cfg.GetAckTimeout(), instruments...), nil
	default:
		latency := time.Duration(cfg.Instruments.Sim.ConfigLatency) * time.Millisecond
		tick := time.Duration(cfg.Instruments.Sim.ExposureTick) * time.Millisecond
		return instrument.SimBank(latency, tick, instruments...), nil
	}
}

// siteInstruments returns the instrument complement mounted at the site.
// Mirrors the file allocator's convention: site ids containing "north"
// select the northern complement, everything else the southern one.
func siteInstruments(siteID string) []engine.Resource {
	if instrument.NorthSite(siteID) {
		return []engine.Resource{
			engine.ResourceGmosN, engine.ResourceGnirs, engine.ResourceNifs,
			engine.ResourceNiri, engine.ResourceGraces,
		}
	}
	return []engine.Resource{
		engine.ResourceGmosS, engine.ResourceF2, engine.ResourceGsaoi,
		engine.ResourceGpi, engine.ResourceGhost,
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// metricsSink writes engine emissions to InfluxDB as time-series points.
// The InfluxDB client batches asynchronously, so writes never block the
// engine loop.
type metricsSink struct {
	client *influxdb.Client

	// eng is set after engine construction, before Run. Read-only once set.
	eng *engine.Engine
}

// Publish implements engine.Sink.
func (m *metricsSink) Publish(e engine.Emission) {
	if prog, ok := e.Event.(engine.ActionProgress); ok && prog.Note.Kind == engine.NotifyProgress {
		instr := ""
		if e.State != nil {
			if seq, ok := e.State.Sequences[prog.ObsID]; ok {
				instr = string(seq.Instrument)
			}
		}
		m.client.WriteObserveProgress(
			prog.ObsID, instr, prog.Step,
			prog.Note.Progress.Remaining.Seconds(),
			prog.Note.Progress.Total.Seconds(),
		)
	}

	if e.State != nil {
		for _, id := range e.State.ObservationIDs() {
			seq := e.State.Sequences[id]
			m.client.WriteSequenceState(id, string(seq.State), seq.Cursor)
		}
		c := e.State.Conditions
		m.client.WriteConditions(
			string(c.ImageQuality), string(c.CloudCover),
			string(c.WaterVapor), string(c.SkyBackground),
		)
	}

	if m.eng != nil {
		m.client.WriteEngineMetric("queue_depth", float64(m.eng.QueueDepth()))
	}
}

// sequenceStatus is the retained MQTT status payload for one observation.
type sequenceStatus struct {
	ObsID      string `json:"observation_id"`
	Title      string `json:"title"`
	Instrument string `json:"instrument"`
	State      string `json:"state"`
	Step       int    `json:"step"`
	Observer   string `json:"observer,omitempty"`
}

// statusPublisher mirrors engine state onto the retained MQTT status
// topics, so detached consoles recover state after a broker reconnect.
// MQTT publishes wait on broker acknowledgement, so emissions are queued
// and published off the engine loop.
type statusPublisher struct {
	client *mqtt.Client
	qos    byte
	log    *logging.Logger
	queue  chan engine.Emission
}

func newStatusPublisher(client *mqtt.Client, qos byte, log *logging.Logger) *statusPublisher {
	return &statusPublisher{
		client: client,
		qos:    qos,
		log:    log,
		queue:  make(chan engine.Emission, 64),
	}
}

// Publish implements engine.Sink.
func (p *statusPublisher) Publish(e engine.Emission) {
	select {
	case p.queue <- e:
	default:
		p.log.Warn("status queue full, dropping emission")
	}
}

// Run drains the queue until the context is cancelled.
func (p *statusPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-p.queue:
			p.publish(e)
		}
	}
}

func (p *statusPublisher) publish(e engine.Emission) {
	topics := mqtt.Topics{}

	for _, n := range e.Notices {
		if data, err := json.Marshal(n); err == nil {
			if pubErr := p.client.Publish(topics.StatusNotice(), data, p.qos, false); pubErr != nil {
				p.log.Warn("notice publish failed", "error", pubErr)
			}
		}
	}

	if e.State == nil {
		return
	}

	for _, id := range e.State.ObservationIDs() {
		seq := e.State.Sequences[id]
		data, err := json.Marshal(sequenceStatus{
			ObsID:      id,
			Title:      seq.Title,
			Instrument: string(seq.Instrument),
			State:      string(seq.State),
			Step:       seq.Cursor,
			Observer:   seq.Observer,
		})
		if err != nil {
			continue
		}
		if pubErr := p.client.Publish(topics.StatusSequence(id), data, p.qos, true); pubErr != nil {
			p.log.Warn("sequence status publish failed", "obs_id", id, "error", pubErr)
		}
	}

	if data, err := json.Marshal(e.State.Conditions); err == nil {
		if pubErr := p.client.Publish(topics.StatusConditions(), data, p.qos, true); pubErr != nil {
			p.log.Warn("conditions publish failed", "error", pubErr)
		}
	}

	if e.State.Operator != "" {
		payload := fmt.Sprintf(`{"operator":%q}`, e.State.Operator)
		if pubErr := p.client.PublishString(topics.StatusOperator(), payload, p.qos, true); pubErr != nil {
			p.log.Warn("operator publish failed", "error", pubErr)
		}
	}
}
