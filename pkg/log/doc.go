// Package log provides structured protocol capture for DevPort.
//
// This package defines the Logger interface and Event types for recording
// protocol traffic at multiple layers (transport, wire, service). It is
// separate from operational logging (slog): capture produces a complete
// machine-readable trace of what crossed the wire, for debugging and
// offline analysis.
//
// # Basic Usage
//
// Applications configure capture by providing a Logger implementation:
//
//	// For development: mirror events to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to a binary capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/devport/endpoint.dplog")
//
//	// Both at once
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: decoded requests and responses (MessageEvent)
//   - Service: connection and session state changes (StateChangeEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Capture files are a concatenation of CBOR-encoded events, conventionally
// with a .dplog extension. The devport-log CLI tool provides viewing,
// filtering, statistics, and export.
package log
