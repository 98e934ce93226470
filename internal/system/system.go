// Package system assembles a running console: it builds the context object,
// installs the built-in and extended command tables, registers the
// capabilities and drives the cooperative loop.
package system

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/ocfu/espconsole/internal/batch"
	"github.com/ocfu/espconsole/internal/capabilities/fs"
	"github.com/ocfu/espconsole/internal/capabilities/gpiocap"
	"github.com/ocfu/espconsole/internal/capabilities/influxcap"
	"github.com/ocfu/espconsole/internal/capabilities/modbuscap"
	"github.com/ocfu/espconsole/internal/capabilities/mqttcap"
	"github.com/ocfu/espconsole/internal/capabilities/sensorcap"
	"github.com/ocfu/espconsole/internal/capabilities/webcap"
	"github.com/ocfu/espconsole/internal/capability"
	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/console"
	"github.com/ocfu/espconsole/internal/gpio"
	"github.com/ocfu/espconsole/internal/ha"
	"github.com/ocfu/espconsole/internal/infrastructure/config"
	"github.com/ocfu/espconsole/internal/infrastructure/logging"
	"github.com/ocfu/espconsole/internal/platform"
	"github.com/ocfu/espconsole/internal/remote"
	"github.com/ocfu/espconsole/internal/sensor"
	"github.com/ocfu/espconsole/internal/settings"
	"github.com/ocfu/espconsole/internal/stream"
	"github.com/ocfu/espconsole/internal/timer"
	"github.com/ocfu/espconsole/internal/vars"
)

// TickInterval is the pause between loop iterations in Run.
const TickInterval = 2 * time.Millisecond

// ErrReboot is returned by Run when a reboot was requested.
var ErrReboot = errors.New("system: reboot requested")

// Options configures a System.
type Options struct {
	Platform platform.Platform
	Config   *config.Config
	Logger   *logging.Logger
	Version  string
	// ANSI enables colour in prompts.
	ANSI bool
}

// System is one running console.
type System struct {
	ctx     *capability.Context
	version string
	batch   *batch.Interpreter
	prompt  *console.Prompt
	remote  *remote.Server
	ansi    bool

	consoles []*console.Console
	onReboot []func()
	reboot   bool
	loops    uint64
}

// New builds the runtime. It does not start the remote shell or load
// capabilities; Boot does.
func New(opts Options) (*System, error) {
	if opts.Platform == nil {
		return nil, fmt.Errorf("system: platform is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	plat := opts.Platform

	store := vars.New()
	for name, v := range map[string]string{
		vars.Hostname: cfg.Device.Hostname,
		vars.User:     cfg.Device.User,
		vars.URL:      cfg.Device.URL,
		vars.BUF:      strconv.Itoa(cfg.Console.Buffer),
	} {
		if v != "" {
			_ = store.Set(name, v)
		}
	}

	d := command.New(store)
	d.SetLogger(logger.With("component", "shell"))

	ctx := &capability.Context{
		Platform:   plat,
		Config:     cfg,
		Logger:     logger,
		Vars:       store,
		Dispatcher: d,
		Started:    plat.Now(),
	}

	s := &System{
		ctx:     ctx,
		version: opts.Version,
		prompt:  console.NewPrompt(cfg.Console.Prompt, ""),
		ansi:    opts.ANSI,
	}

	ctx.Timers = timer.New(d, plat.Now)
	ctx.Timers.SetLogger(logger.With("component", "timer"))

	ctx.Pins = gpio.NewTracker(plat.Pins(), plat.PinCount())
	ctx.Devices = gpio.NewManager(ctx.Pins, d, store, plat.Now)
	ctx.Devices.SetLogger(logger.With("component", "gpio"))
	ctx.Devices.SetDegraded(s.Degraded)
	ctx.Devices.SetReboot(s.Reboot)

	ctx.Sensors = sensor.NewRegistry()
	ctx.Sensors.SetLogger(logger.With("component", "sensor"))

	ctx.HA = ha.NewDevice(ha.Info{
		ChipID:       chipID(cfg, plat),
		Name:         cfg.Device.Hostname,
		Manufacturer: cfg.Device.Manufacturer,
		Model:        cfg.Device.Model,
		SWVersion:    opts.Version,
		URL:          cfg.Device.URL,
	}, cfg.MQTT.Root, cfg.MQTT.Discovery)
	ctx.HA.SetLogger(logger.With("component", "ha"))

	ctx.Settings = settings.New(plat.FS(), cfg.Settings.Path)

	caps := capability.NewRegistry(ctx)
	caps.SetLogger(logger.With("component", "cap"))

	s.batch = batch.New(plat.FS(), d)
	s.batch.SetLogger(logger.With("component", "batch"))

	if cfg.Shell.Enabled {
		s.remote = remote.New(d, plat.FS(), plat.Now, remote.Options{
			Listen:         cfg.Shell.Listen,
			OneShotTimeout: time.Duration(cfg.Shell.OneShotTimeout) * time.Millisecond,
			UploadTimeout:  time.Duration(cfg.Shell.UploadTimeout) * time.Millisecond,
			Prompt:         s.prompt,
			ANSI:           opts.ANSI,
			History:        cfg.Console.History,
			Free:           func() int64 { return platform.FreeSpace(plat) },
			Banner:         s.banner(),
		})
		s.remote.SetLogger(logger.With("component", "remote"))
		d.OnExit(s.remote.Disconnect)
	}

	d.AddHook(caps.Report)
	d.AddSource(s.builtins())
	d.AddSource(s.extended())
	d.AddSource(caps)

	s.registerCapabilities()
	return s, nil
}

// registerCapabilities binds the capabilities compiled into the runtime, in
// the order their verbs are searched.
func (s *System) registerCapabilities() {
	caps := s.ctx.Caps
	for _, c := range []struct {
		name string
		ctor capability.Constructor
	}{
		{fs.Name, fs.New},
		{gpiocap.Name, gpiocap.New},
		{sensorcap.Name, sensorcap.New},
		{mqttcap.Name, mqttcap.New},
		{modbuscap.Name, modbuscap.New},
		{influxcap.Name, influxcap.New},
		{webcap.Name, webcap.New},
	} {
		if err := caps.Register(c.name, c.ctor); err != nil {
			s.ctx.Logger.Error("registering capability", "name", c.name, "error", err)
		}
	}
}

func chipID(cfg *config.Config, plat platform.Platform) uint32 {
	if cfg.Device.ChipID != "" {
		if v, err := strconv.ParseUint(cfg.Device.ChipID, 16, 32); err == nil {
			return uint32(v)
		}
	}
	return plat.ChipID()
}

// Context returns the runtime context.
func (s *System) Context() *capability.Context { return s.ctx }

// Dispatcher returns the command dispatcher.
func (s *System) Dispatcher() *command.Dispatcher { return s.ctx.Dispatcher }

// Remote returns the remote shell, or nil when disabled.
func (s *System) Remote() *remote.Server { return s.remote }

// Prompt returns the shared prompt configuration.
func (s *System) Prompt() *console.Prompt { return s.prompt }

// Loops returns the number of completed loop iterations.
func (s *System) Loops() uint64 { return s.loops }

// AddConsole attaches a local console to st. The first console becomes the
// default output of the dispatcher and of capabilities.
func (s *System) AddConsole(st stream.Stream, echoInput bool) *console.Console {
	c := console.New(st, s.ctx.Dispatcher, s.prompt, console.Options{
		Mode:         s.mode,
		ANSI:         s.ansi,
		EchoInput:    echoInput,
		HistoryDepth: s.ctx.Config.Console.History,
	})
	if len(s.consoles) == 0 {
		s.ctx.Dispatcher.SetOutput(c)
	}
	s.consoles = append(s.consoles, c)
	return c
}

func (s *System) mode() console.Mode {
	switch s.ctx.Platform.WiFi().Mode {
	case platform.WiFiAccessPoint:
		return console.ModeAP
	case platform.WiFiDisconnected:
		return console.ModeDisconnected
	default:
		return console.ModeLocal
	}
}

// Degraded reports that the device runs as an access point for setup.
// Device callbacks other than reset are suppressed in this mode.
func (s *System) Degraded() bool {
	return s.ctx.Platform.WiFi().Mode == platform.WiFiAccessPoint
}

// OnReboot registers fn to run before the platform reboots.
func (s *System) OnReboot(fn func()) {
	s.onReboot = append(s.onReboot, fn)
}

// Reboot runs the reboot callbacks and restarts the platform.
func (s *System) Reboot(force bool) {
	if s.reboot {
		return
	}
	s.reboot = true
	s.ctx.Logger.Warn("rebooting", "force", force)
	for _, fn := range s.onReboot {
		fn()
	}
	s.ctx.Platform.Reboot(force)
}

// Rebooting reports whether a reboot was requested.
func (s *System) Rebooting() bool { return s.reboot }

// Boot loads the configured capabilities, starts the remote shell, runs the
// autostart batch and prints the first prompt.
func (s *System) Boot() error {
	out := s.ctx.Out()
	if s.ctx.Config.Console.Banner {
		fmt.Fprintln(out, s.banner())
	}
	for _, name := range s.ctx.Config.Capabilities.Autoload {
		if err := s.ctx.Caps.Load(name); err != nil {
			s.ctx.Logger.Error("autoload failed", "name", name, "error", err)
		}
	}
	if s.remote != nil {
		if err := s.remote.Start(); err != nil {
			return fmt.Errorf("starting remote shell: %w", err)
		}
	}
	s.autostart(out)
	for _, c := range s.consoles {
		c.Prompt()
	}
	return nil
}

func (s *System) autostart(out io.Writer) {
	p := s.ctx.Config.Shell.Autostart
	if p == "" {
		return
	}
	if ok, _ := afero.Exists(s.ctx.Platform.FS(), p); !ok {
		return
	}
	s.ctx.Logger.Info("running autostart", "file", p)
	s.batch.Run(out, 0, p, "", "")
}

func (s *System) banner() string {
	return fmt.Sprintf("espconsole %s on %s (cx%x)", s.version, s.ctx.Config.Device.Hostname, chipID(s.ctx.Config, s.ctx.Platform))
}

// Loop runs one cooperative iteration: consoles, remote shell, timers,
// capabilities, devices, sensors.
func (s *System) Loop() {
	now := s.ctx.Platform.Now()
	for _, c := range s.consoles {
		if !c.Closed() {
			c.Poll()
		}
	}
	if s.remote != nil {
		s.remote.Poll()
	}
	s.ctx.Timers.Poll()
	s.ctx.Caps.Loop()
	s.ctx.Devices.Loop(now)
	s.ctx.Sensors.Update(now)
	s.loops++
}

// Run loops until ctx is cancelled or a reboot is requested.
func (s *System) Run(ctx context.Context) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		s.Loop()
		if s.reboot {
			return ErrReboot
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Close unloads every capability and stops the remote shell.
func (s *System) Close() error {
	var errs []error
	for _, info := range s.ctx.Caps.List() {
		if !info.Loaded {
			continue
		}
		if err := s.ctx.Caps.Shutdown(info.Name); err != nil {
			errs = append(errs, err)
		}
	}
	if s.remote != nil {
		errs = append(errs, s.remote.Close())
	}
	return errors.Join(errs...)
}
