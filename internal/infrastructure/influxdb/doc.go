// Package influxdb exports sensor readings and runtime statistics to an
// InfluxDB v2 server.
//
// The export is optional: Connect returns ErrDisabled when the integration
// is switched off in the configuration, and every write method is a no-op on
// a disconnected client.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Device.Hostname)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSensor("temp", "temperature", "°C", 21.5, true, time.Now())
package influxdb
