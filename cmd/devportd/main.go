// Command devportd is a reference DevPort endpoint daemon.
//
// This command exposes a single parameter-record endpoint with:
//   - CLI argument parsing
//   - Configuration file support
//   - Registry selection (in-memory or mDNS advertising)
//   - Wire traffic capture to a .dplog file
//   - Comprehensive logging
//
// Usage:
//
//	devportd [flags]
//
// Flags:
//
//	-listen string        Listen address (default ":9155")
//	-name string          Endpoint instance name (default "devport0")
//	-class string         Endpoint class name (default "devport")
//	-config string        Configuration file path (YAML)
//	-mdns                 Advertise the endpoint via mDNS
//	-mdns-port int        Port advertised in mDNS records (0 = registry default)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-busy-retry-ms int    Retry hint reported to rejected clients (default 1000)
//	-wire-log string      Write wire traffic capture to this file
//
// Examples:
//
//	# Expose an endpoint on the default port, local registry only
//	devportd -name sensor0 -class sensor
//
//	# Advertise via mDNS with a config file
//	devportd -config /etc/devport/endpoint.yaml -mdns
//
//	# Debug logging plus wire capture for devport-log
//	devportd -log-level debug -wire-log /tmp/endpoint.dplog
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devport-proto/devport-go/pkg/endpoint"
	devlog "github.com/devport-proto/devport-go/pkg/log"
	"github.com/devport-proto/devport-go/pkg/params"
	"github.com/devport-proto/devport-go/pkg/registry"
	"github.com/devport-proto/devport-go/pkg/service"
)

// Config holds the daemon configuration.
type Config struct {
	Listen      string
	Name        string
	Class       string
	ConfigFile  string
	MDNS        bool
	MDNSPort    int
	LogLevel    string
	BusyRetryMs int
	WireLog     string
}

// FileConfig mirrors Config for YAML parsing. Values from the file fill
// in flags that were not set on the command line.
type FileConfig struct {
	Listen      string `yaml:"listen"`
	Name        string `yaml:"name"`
	Class       string `yaml:"class"`
	MDNS        *bool  `yaml:"mdns"`
	MDNSPort    int    `yaml:"mdns_port"`
	LogLevel    string `yaml:"log_level"`
	BusyRetryMs int    `yaml:"busy_retry_ms"`
	WireLog     string `yaml:"wire_log"`
}

var config Config

func init() {
	flag.StringVar(&config.Listen, "listen", ":9155", "Listen address")
	flag.StringVar(&config.Name, "name", "devport0", "Endpoint instance name")
	flag.StringVar(&config.Class, "class", "devport", "Endpoint class name")
	flag.StringVar(&config.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.BoolVar(&config.MDNS, "mdns", false, "Advertise the endpoint via mDNS")
	flag.IntVar(&config.MDNSPort, "mdns-port", 0, "Port advertised in mDNS records (0 = registry default)")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.IntVar(&config.BusyRetryMs, "busy-retry-ms", 1000, "Retry hint reported to rejected clients (ms)")
	flag.StringVar(&config.WireLog, "wire-log", "", "Write wire traffic capture to this file")
}

func main() {
	flag.Parse()

	// Setup logging
	setupLogging(config.LogLevel)

	log.Println("DevPort Endpoint Daemon")
	log.Println("=======================")

	// Config file fills in flags the command line left alone
	if config.ConfigFile != "" {
		if err := loadConfigFile(config.ConfigFile); err != nil {
			log.Fatalf("Invalid config file: %v", err)
		}
		setupLogging(config.LogLevel)
	}

	log.Printf("Endpoint: %s (class %s)", config.Name, config.Class)
	log.Printf("Listen address: %s", config.Listen)

	// Validate configuration
	if err := validateConfig(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := debugLogger()

	// Create registry authority
	authority, err := createAuthority(logger)
	if err != nil {
		log.Fatalf("Failed to create registry authority: %v", err)
	}

	// Create endpoint manager
	epConfig := endpoint.DefaultConfig()
	epConfig.Name = config.Name
	epConfig.ClassName = config.Class
	epConfig.Logger = logger

	mgr, err := endpoint.New(authority, epConfig)
	if err != nil {
		log.Fatalf("Failed to create endpoint manager: %v", err)
	}

	// Command 1 is the reference handler: report the record
	mgr.Handle(1, func(rec params.Record) error {
		log.Printf("[HANDLER] command 1: %s", rec.String())
		return nil
	})

	// Create endpoint service
	svcConfig := service.DefaultConfig()
	svcConfig.ListenAddress = config.Listen
	svcConfig.BusyRetryHint = time.Duration(config.BusyRetryMs) * time.Millisecond
	svcConfig.Logger = logger
	svcConfig.ProtocolLogger = createProtocolLogger(logger)

	svc, err := service.NewEndpointService(mgr, svcConfig)
	if err != nil {
		log.Fatalf("Failed to create endpoint service: %v", err)
	}

	// Register event handler
	svc.OnEvent(handleEvent)

	// Start service
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		log.Fatalf("Failed to start service: %v", err)
	}
	log.Printf("Service started (state: %s)", svc.State())
	log.Printf("Endpoint exposed at %s (identity %d)", svc.Addr(), mgr.Identity())

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Printf("Received signal: %v", sig)
	log.Println("Shutting down...")

	if err := svc.Stop(); err != nil {
		log.Printf("Error stopping service: %v", err)
	}

	// Teardown logs unpublish errors instead of failing; make sure no
	// mDNS registration outlives the process.
	if ma, ok := authority.(*registry.MDNSAuthority); ok {
		ma.StopAll()
	}

	closeWireLog()
	log.Println("Goodbye!")
}

func setupLogging(level string) {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	switch level {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	case "warn", "error":
		log.SetFlags(log.Ltime)
	}
}

// debugLogger returns the slog logger handed to the library packages.
// Their debug output is only produced at -log-level debug.
func debugLogger() *slog.Logger {
	if config.LogLevel != "debug" {
		return nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// loadConfigFile reads a YAML config file. Flags set explicitly on the
// command line keep their values.
func loadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["listen"] && fc.Listen != "" {
		config.Listen = fc.Listen
	}
	if !set["name"] && fc.Name != "" {
		config.Name = fc.Name
	}
	if !set["class"] && fc.Class != "" {
		config.Class = fc.Class
	}
	if !set["mdns"] && fc.MDNS != nil {
		config.MDNS = *fc.MDNS
	}
	if !set["mdns-port"] && fc.MDNSPort != 0 {
		config.MDNSPort = fc.MDNSPort
	}
	if !set["log-level"] && fc.LogLevel != "" {
		config.LogLevel = fc.LogLevel
	}
	if !set["busy-retry-ms"] && fc.BusyRetryMs != 0 {
		config.BusyRetryMs = fc.BusyRetryMs
	}
	if !set["wire-log"] && fc.WireLog != "" {
		config.WireLog = fc.WireLog
	}

	log.Printf("Loaded configuration from %s", path)
	return nil
}

func validateConfig() error {
	if config.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if config.Name == "" {
		return fmt.Errorf("endpoint name must not be empty")
	}
	if config.Class == "" {
		return fmt.Errorf("class name must not be empty")
	}
	switch config.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		return fmt.Errorf("unknown log level: %s", config.LogLevel)
	}
	if config.BusyRetryMs < 0 {
		return fmt.Errorf("busy-retry-ms must not be negative, got %d", config.BusyRetryMs)
	}
	if config.MDNSPort < 0 || config.MDNSPort > 65535 {
		return fmt.Errorf("mdns-port must be 0-65535, got %d", config.MDNSPort)
	}
	return nil
}

// createAuthority selects the registry backing the endpoint lifecycle.
func createAuthority(logger *slog.Logger) (registry.Authority, error) {
	if !config.MDNS {
		log.Println("Registry: in-memory (no network advertising)")
		return registry.NewMemoryAuthority(), nil
	}

	mdnsConfig := registry.DefaultMDNSConfig()
	if config.MDNSPort != 0 {
		mdnsConfig.Port = config.MDNSPort
	}
	mdnsConfig.Logger = logger

	log.Printf("Registry: mDNS (%s, advertised port %d)", registry.ServiceType, mdnsConfig.Port)
	return registry.NewMDNSAuthority(mdnsConfig)
}

// wireLogger is the open capture file, if -wire-log was given.
var wireLogger *devlog.FileLogger

// createProtocolLogger assembles the traffic capture chain: a capture
// file when -wire-log is set, mirrored to the console at debug level.
func createProtocolLogger(logger *slog.Logger) devlog.Logger {
	var loggers []devlog.Logger

	if config.WireLog != "" {
		fl, err := devlog.NewFileLogger(config.WireLog)
		if err != nil {
			log.Fatalf("Failed to open wire log: %v", err)
		}
		wireLogger = fl
		loggers = append(loggers, fl)
		log.Printf("Wire capture: %s", config.WireLog)
	}
	if logger != nil {
		loggers = append(loggers, devlog.NewSlogAdapter(logger))
	}

	switch len(loggers) {
	case 0:
		return nil
	case 1:
		return loggers[0]
	default:
		return devlog.NewMultiLogger(loggers...)
	}
}

func closeWireLog() {
	if wireLogger != nil {
		if err := wireLogger.Close(); err != nil {
			log.Printf("Error closing wire log: %v", err)
		}
	}
}

func handleEvent(event service.Event) {
	switch event.Type {
	case service.EventSessionOpened:
		log.Printf("[EVENT] Session opened (conn: %s)", event.ConnID)
	case service.EventSessionClosed:
		log.Printf("[EVENT] Session closed (conn: %s)", event.ConnID)
	case service.EventRecordWritten:
		if event.Error != nil {
			log.Printf("[EVENT] Record written, handler failed: %s (%v)", event.Record.String(), event.Error)
			return
		}
		log.Printf("[EVENT] Record written: %s", event.Record.String())
	case service.EventClientRejected:
		log.Printf("[EVENT] Client rejected, endpoint busy (conn: %s)", event.ConnID)
	case service.EventStateChanged:
		log.Printf("[EVENT] Endpoint state: %s", event.State)
	}
}
