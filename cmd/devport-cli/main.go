// Command devport-cli is an interactive DevPort client.
//
// This command connects to an exposed DevPort endpoint and provides a
// command shell for exercising it:
//   - CLI argument parsing
//   - Session management (claim and release)
//   - Parameter record transfer
//   - Endpoint state inspection
//   - mDNS endpoint discovery
//   - Wire traffic capture
//
// Usage:
//
//	devport-cli [flags]
//
// Flags:
//
//	-addr string       Endpoint address to connect to (default "127.0.0.1:9155")
//	-timeout duration  Per-request response timeout (default 10s)
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-wire-log string   Write a traffic capture to this file (view with devport-log)
//
// Examples:
//
//	# Connect to a local endpoint
//	devport-cli
//
//	# Connect to a remote endpoint and capture traffic
//	devport-cli -addr 192.168.1.40:9155 -wire-log session.dplog
//
// Interactive Commands:
//
//	open [-wait]             - Claim the endpoint (-wait retries while busy)
//	close                    - Release the endpoint
//	write <cmd> <addr> <len> - Write a parameter record
//	read                     - Read the last accepted record
//	info                     - Show endpoint state
//	discover                 - Find exposed endpoints via mDNS
//	quit                     - Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devport-proto/devport-go/cmd/devport-cli/interactive"
	devlog "github.com/devport-proto/devport-go/pkg/log"
	"github.com/devport-proto/devport-go/pkg/transport"
)

// Config holds the client configuration.
type Config struct {
	Addr     string
	Timeout  time.Duration
	LogLevel string
	WireLog  string
}

var (
	config     Config
	wireLogger *devlog.FileLogger
)

func init() {
	flag.StringVar(&config.Addr, "addr", "127.0.0.1:9155", "Endpoint address to connect to")
	flag.DurationVar(&config.Timeout, "timeout", 10*time.Second, "Per-request response timeout")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&config.WireLog, "wire-log", "", "Write a traffic capture to this file")
}

func main() {
	flag.Parse()

	// Setup logging
	setupLogging(config.LogLevel)

	log.Println("DevPort Interactive Client")
	log.Println("==========================")
	log.Printf("Endpoint address: %s", config.Addr)

	if err := validateConfig(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	clientConfig := transport.ClientConfig{
		RequestTimeout: config.Timeout,
	}
	if config.WireLog != "" {
		fl, err := devlog.NewFileLogger(config.WireLog)
		if err != nil {
			log.Fatalf("Failed to open wire log: %v", err)
		}
		wireLogger = fl
		clientConfig.ProtocolLogger = fl
		log.Printf("Wire capture: %s", config.WireLog)
	}

	client := transport.NewClient(clientConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := client.Connect(ctx, config.Addr)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", config.Addr, err)
	}
	log.Printf("Connected to %s", conn.RemoteAddr())

	sh, err := interactive.New(conn)
	if err != nil {
		log.Fatalf("Failed to create interactive shell: %v", err)
	}
	// Redirect log output through readline to avoid interfering with input
	log.SetOutput(sh.Stdout())
	go sh.Run(ctx, cancel)

	// Wait for shutdown signal or context cancellation
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
		// Context was cancelled by the quit command
	}

	log.Println("Shutting down...")
	cancel()

	if err := conn.Close(); err != nil {
		log.Printf("Error closing connection: %v", err)
	}
	if wireLogger != nil {
		_ = wireLogger.Close()
	}

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

func validateConfig() error {
	if config.Addr == "" {
		return fmt.Errorf("endpoint address is required")
	}
	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	switch config.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		return fmt.Errorf("invalid log level: %s", config.LogLevel)
	}
	return nil
}
