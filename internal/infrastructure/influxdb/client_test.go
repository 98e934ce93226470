package influxdb_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/ocfu/espconsole/internal/infrastructure/config"
	"github.com/ocfu/espconsole/internal/infrastructure/influxdb"
)

func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "espconsole-dev-token",
		Org:           "espconsole",
		Bucket:        "sensors",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

// requireInfluxDB skips unless RUN_INTEGRATION is set and a server answers.
func requireInfluxDB(t *testing.T) *influxdb.Client {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION to run against a local InfluxDB")
	}
	c, err := influxdb.Connect(context.Background(), testConfig(), "esp-test")
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // Test cleanup
	return c
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(context.Background(), cfg, "esp")
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := influxdb.Connect(ctx, cfg, "esp")
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestNilClient(t *testing.T) {
	var c *influxdb.Client
	if c.IsConnected() {
		t.Error("nil IsConnected() = true")
	}
	if err := c.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
	// Must not panic.
	c.WriteSensor("temp", "", "", 1, true, time.Now())
	c.Flush()
}

func TestSensorPoint(t *testing.T) {
	ts := time.Unix(1700000000, 0)

	tests := []struct {
		name     string
		point    *write.Point
		contains []string
		excludes []string
	}{
		{
			name:  "valid reading",
			point: influxdb.SensorPoint("esp01", "temp", "temperature", "C", 21.5, true, ts),
			contains: []string{
				"sensor,host=esp01,sensor=temp,type=temperature,unit=C ",
				"value=21.5",
				"valid=true",
				" 1700000000000000000",
			},
		},
		{
			name:     "invalid reading has no value",
			point:    influxdb.SensorPoint("esp01", "hum", "", "", 0, false, ts),
			contains: []string{"sensor,host=esp01,sensor=hum ", "valid=false"},
			excludes: []string{"value=", "type=", "unit="},
		},
		{
			name:     "system statistics",
			point:    influxdb.SystemPoint("esp01", 40000, 90*time.Second, 250, ts),
			contains: []string{"system,host=esp01 ", "free_heap=40000i", "uptime_s=90i", "loops_rate=250"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := write.PointToLineProtocol(tt.point, time.Nanosecond)
			for _, want := range tt.contains {
				if !strings.Contains(line, want) {
					t.Errorf("line %q missing %q", line, want)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(line, bad) {
					t.Errorf("line %q should not contain %q", line, bad)
				}
			}
		})
	}
}

func TestWriteSensor_Integration(t *testing.T) {
	c := requireInfluxDB(t)

	var writeErr error
	c.SetOnError(func(err error) { writeErr = err })

	c.WriteSensor("temp", "temperature", "C", 22.25, true, time.Now())
	c.WriteSystem(32000, time.Minute, 100, time.Now())
	c.Flush()

	if writeErr != nil {
		t.Errorf("async write error = %v", writeErr)
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
