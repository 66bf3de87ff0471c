// Package logging provides structured logging for the access node.
//
// It wraps log/slog so every component logs through the same handler with
// the same default fields (service, version). State machine transitions,
// dropped link messages, storage failures and chain integrity results are
// all reported here rather than propagated as errors.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	fsmLog := logger.Component("access")
//	fsmLog.Info("state transition", "from", "IDLE", "to", "SENSOR_CONNECT")
//
// # Security
//
// Never log passcodes, password hashes, tokens or TOTP secrets. Credentials
// are identified in logs by alias and MAC only.
package logging
