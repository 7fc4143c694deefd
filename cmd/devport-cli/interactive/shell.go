// Package interactive provides the interactive command-line interface
// for the DevPort client.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/devport-proto/devport-go/pkg/endpoint"
	"github.com/devport-proto/devport-go/pkg/params"
	"github.com/devport-proto/devport-go/pkg/registry"
	"github.com/devport-proto/devport-go/pkg/transport"
)

// Prompts shown while the endpoint is free and while this shell holds it.
const (
	promptFree    = "devport> "
	promptHolding = "devport* "
)

// Shell handles interactive mode for devport-cli.
type Shell struct {
	conn *transport.ClientConn
	rl   *readline.Instance

	// Session tracking for the prompt-side view; the endpoint remains
	// the source of truth.
	holding bool
}

// New creates a new interactive shell over an established connection.
func New(conn *transport.ClientConn) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptFree,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Shell{
		conn: conn,
		rl:   rl,
	}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()

		case "open", "o":
			s.cmdOpen(ctx, args)

		case "close", "c":
			s.cmdClose()

		case "write", "w":
			s.cmdWrite(args)

		case "read", "r":
			s.cmdRead()

		case "info", "i":
			s.cmdInfo()

		case "discover":
			s.cmdDiscover(ctx)

		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
DevPort Commands:
  Session:
    open [-wait]         - Claim the endpoint (-wait retries while busy)
    close                - Release the endpoint

  Transfer:
    write <cmd> <addr> <len> - Write a parameter record
    read                 - Read the last accepted record
    info                 - Show endpoint state

  Discovery:
    discover             - Find exposed endpoints via mDNS

  General:
    help                 - Show this help
    quit                 - Exit

  Values:
    <cmd>, <addr>, <len> accept decimal or 0x hex - e.g. write 7 0x1000 64`)
}

// cmdOpen handles the open command.
func (s *Shell) cmdOpen(ctx context.Context, args []string) {
	// A second open would be rejected busy by our own claim.
	if s.holding {
		fmt.Fprintln(s.rl.Stdout(), "Already holding the endpoint")
		return
	}

	wait := len(args) > 0 && args[0] == "-wait"

	backoff := transport.NewBackoff()
	for {
		err := s.conn.Open()
		if err == nil {
			s.setHolding(true)
			fmt.Fprintln(s.rl.Stdout(), "Endpoint claimed")
			return
		}

		var be *transport.BusyError
		if !errors.As(err, &be) {
			fmt.Fprintf(s.rl.Stdout(), "Open failed: %v\n", err)
			return
		}
		if !wait {
			fmt.Fprintf(s.rl.Stdout(), "Endpoint busy: %v (use 'open -wait' to retry)\n", err)
			return
		}

		// The endpoint's retry hint overrides a shorter backoff step.
		delay := backoff.Next()
		if be.RetryAfter > delay {
			delay = be.RetryAfter
		}
		fmt.Fprintf(s.rl.Stdout(), "Endpoint busy, retrying in %s...\n", delay.Round(time.Millisecond))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// cmdClose handles the close command.
func (s *Shell) cmdClose() {
	if err := s.conn.Release(); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Close failed: %v\n", err)
		return
	}
	s.setHolding(false)
	fmt.Fprintln(s.rl.Stdout(), "Endpoint released")
}

// setHolding tracks the claim and reflects it in the prompt.
func (s *Shell) setHolding(held bool) {
	s.holding = held
	if held {
		s.rl.SetPrompt(promptHolding)
	} else {
		s.rl.SetPrompt(promptFree)
	}
}

// cmdWrite handles the write command.
func (s *Shell) cmdWrite(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: write <cmd> <addr> <len>")
		fmt.Fprintln(s.rl.Stdout(), "  Example: write 7 0x1000 64")
		return
	}

	command, err := parseUint32(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid command: %v\n", err)
		return
	}
	addr, err := parseUint32(args[1])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid address: %v\n", err)
		return
	}
	length, err := parseUint32(args[2])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid length: %v\n", err)
		return
	}

	record := params.Record{Command: command, TargetAddr: addr, Length: length}
	written, err := s.conn.WriteRecord(params.Encode(record))
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Write failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Wrote %d bytes (%s)\n", written, record.String())
}

// cmdRead handles the read command.
func (s *Shell) cmdRead() {
	data, err := s.conn.ReadRecord()
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Read failed: %v\n", err)
		return
	}

	record, err := params.Decode(data)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid record from endpoint: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "%s\n", record.String())
}

// cmdInfo handles the info command.
func (s *Shell) cmdInfo() {
	info, err := s.conn.Info()
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Info failed: %v\n", err)
		return
	}

	fmt.Fprintf(s.rl.Stdout(), "State:    %s\n", endpoint.State(info.State))
	fmt.Fprintf(s.rl.Stdout(), "Holders:  %d\n", info.Holders)
	if info.Identity != 0 {
		fmt.Fprintf(s.rl.Stdout(), "Identity: %d\n", info.Identity)
	}
	if info.Name != "" {
		fmt.Fprintf(s.rl.Stdout(), "Name:     %s\n", info.Name)
	}
	if info.Class != "" {
		fmt.Fprintf(s.rl.Stdout(), "Class:    %s\n", info.Class)
	}
	if info.Version != "" {
		fmt.Fprintf(s.rl.Stdout(), "Version:  %s\n", info.Version)
	}
}

// cmdDiscover handles the discover command.
func (s *Shell) cmdDiscover(ctx context.Context) {
	fmt.Fprintln(s.rl.Stdout(), "Discovering exposed endpoints...")
	discoverCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	found, err := registry.Browse(discoverCtx, registry.BrowseConfig{})
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Discovery error: %v\n", err)
		return
	}

	// The channel closes when the timeout expires.
	var endpoints []*registry.EndpointService
	for svc := range found {
		endpoints = append(endpoints, svc)
	}

	if len(endpoints) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No exposed endpoints found")
		return
	}

	fmt.Fprintf(s.rl.Stdout(), "Found %d exposed endpoint(s):\n", len(endpoints))
	for idx, ep := range endpoints {
		fmt.Fprintf(s.rl.Stdout(), "  %d. %s (class: %s, identity: %d, host: %s:%d)\n",
			idx+1, ep.InstanceName, ep.Class, ep.Identity, ep.Host, ep.Port)
	}
}

// parseUint32 parses a decimal or 0x-prefixed value.
func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
