package capability

import (
	"io"
	"time"

	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/gpio"
	"github.com/ocfu/espconsole/internal/ha"
	"github.com/ocfu/espconsole/internal/infrastructure/config"
	"github.com/ocfu/espconsole/internal/infrastructure/logging"
	"github.com/ocfu/espconsole/internal/platform"
	"github.com/ocfu/espconsole/internal/sensor"
	"github.com/ocfu/espconsole/internal/settings"
	"github.com/ocfu/espconsole/internal/timer"
	"github.com/ocfu/espconsole/internal/vars"
)

// Context owns the runtime's shared state. One Context exists per running
// console and is passed to every capability hook.
type Context struct {
	Platform   platform.Platform
	Config     *config.Config
	Logger     *logging.Logger
	Vars       *vars.Store
	Dispatcher *command.Dispatcher
	Caps       *Registry
	Timers     *timer.Scheduler
	Pins       *gpio.Tracker
	Devices    *gpio.Manager
	Sensors    *sensor.Registry
	HA         *ha.Device
	Settings   *settings.Store
	Started    time.Time
}

// Out returns the console stream.
func (c *Context) Out() io.Writer {
	if c.Dispatcher == nil {
		return io.Discard
	}
	return c.Dispatcher.Output()
}

// Now returns the platform clock.
func (c *Context) Now() time.Time {
	return c.Platform.Now()
}

// Uptime returns the time since the context was started.
func (c *Context) Uptime() time.Duration {
	return c.Platform.Now().Sub(c.Started)
}
