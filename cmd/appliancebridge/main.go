// Appliance Bridge
//
// This is the main entry point for the appliance bridge, a small HTTP
// service that relays pin commands to an ESP8266 relay board over MQTT
// and caches the board's last reported state.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"appliancebridge/internal/api"
	"appliancebridge/internal/appliance"
	"appliancebridge/internal/infrastructure/config"
	"appliancebridge/internal/infrastructure/logging"
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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting appliance bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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

	if cfg.IsDefaultPassword() {
		log.Warn("running with the default appliance password; set APPLIANCE_PASSWORD")
	}

	// Appliance relay: command path to the board plus the state cache.
	relay := appliance.New(cfg, log)
	relay.Start(ctx)
	defer func() {
		log.Info("closing appliance relay")
		if closeErr := relay.Close(); closeErr != nil {
			log.Error("error closing appliance relay", "error", closeErr)
		}
	}()

	// Connect eagerly so the state cache starts filling before the first
	// command. Failure is not fatal: commands retry the dial on demand.
	if connectErr := relay.Connect(ctx); connectErr != nil {
		log.Warn("broker not reachable at startup, will retry on demand",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"error", connectErr,
		)
	} else {
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	// Start HTTP API server
	apiServer, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Relay:   relay,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "addr", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	log.Info("appliance bridge ready",
		"control_topic", cfg.Appliance.ControlTopic,
		"state_topic", cfg.Appliance.StateTopic,
	)

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info("shutdown signal received")

	return nil
}

// getConfigPath returns the configuration file path from the environment
// or the default.
func getConfigPath() string {
	if path := os.Getenv("APPLIANCE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
