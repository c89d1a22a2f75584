// Package logging provides a minimal logging interface and adapters for AgentRelay.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the pool, agents and orchestrator use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - RelayLogger with component scoping and model/tool/turn helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "console", false)
//	relay, err := agentrelay.New(cfg, func(o *agentrelay.Options) { o.Logger = logger })
//
// The interface is kept minimal so callers can plug any structured logger.
package logging
