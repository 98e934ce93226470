// Package logging provides structured logging for the console runtime.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - Console output with severity tags: [E] error, [W] warning, [I] info,
//     [D] debug, [X] trace, followed by a timestamp
//   - JSON and text output for headless hosts
//   - Level adjustable at runtime (the shell's log command)
//   - Extra sinks with their own level, such as an MQTT log topic
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # trace, debug, info, warn, error
//	  format: "console"  # console, json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("capability loaded", "name", "gpio")
//	logger.Error("upload aborted", "error", err)
//
// Never log secrets such as the MQTT password or the InfluxDB token.
package logging
