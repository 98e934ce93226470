// Package config handles loading and validating the console runtime configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The configuration describes the host the runtime runs on: its identity,
// the console streams (UART or stdin, remote TCP shell), the emulated
// filesystem, the pin backend and the optional integrations (MQTT, SQLite
// sensor history, InfluxDB export, web console, Modbus sensors).
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via environment variables
//   - The remote shell is unauthenticated; bind it to a trusted interface only
//
// Usage:
//
//	cfg, err := config.Load("configs/espconsole.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.Hostname)
package config
