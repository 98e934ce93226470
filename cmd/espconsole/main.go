// espconsole runs the command console on a host: the local console is the
// terminal (or a serial port), the device filesystem is a directory and the
// pins are simulated or driven through the Linux GPIO character device.
package main

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ocfu/espconsole/internal/console"
	"github.com/ocfu/espconsole/internal/infrastructure/config"
	"github.com/ocfu/espconsole/internal/infrastructure/logging"
	"github.com/ocfu/espconsole/internal/platform"
	"github.com/ocfu/espconsole/internal/platform/linuxgpio"
	"github.com/ocfu/espconsole/internal/stream"
	"github.com/ocfu/espconsole/internal/system"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

type options struct {
	configPath string
	port       string
	root       string
	logLevel   string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "espconsole",
		Short:         "Interactive command console for microcontroller-style devices",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	f := root.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "configuration file (default $ESPCONSOLE_CONFIG or "+defaultConfigPath+")")
	f.StringVarP(&opts.port, "port", "p", "", "serial port for the local console instead of the terminal")
	f.StringVar(&opts.root, "root", "", "directory backing the device filesystem")
	f.StringVar(&opts.logLevel, "log-level", "", "log level (error, warn, info, debug, trace)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "espconsole %s (commit %s, built %s)\n", version, commit, date)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := stream.SerialPorts()
			if err != nil {
				return fmt.Errorf("listing serial ports: %w", err)
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	})
	return root
}

// loadConfig reads the configuration. A missing default file falls back to
// the built-in defaults; a missing explicit file is an error.
func loadConfig(opts *options) (*config.Config, error) {
	path, explicit := opts.configPath, true
	if path == "" {
		path = os.Getenv("ESPCONSOLE_CONFIG")
	}
	if path == "" {
		path, explicit = defaultConfigPath, false
	}
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if opts.port != "" {
		cfg.Serial.Port = opts.port
	}
	if opts.root != "" {
		cfg.Filesystem.Root = opts.root
	}
	if opts.logLevel != "" {
		if !logging.ValidLevel(opts.logLevel) {
			return nil, fmt.Errorf("unknown log level %q", opts.logLevel)
		}
		cfg.Logging.Level = opts.logLevel
	}
	return cfg, nil
}

// run builds the console and restarts it after every reboot until ctx is
// cancelled.
func run(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	st, out, restore, err := openConsole(cfg)
	if err != nil {
		return err
	}
	defer restore()

	log := logging.NewWithWriter(out, cfg.Logging, version)
	log.Info("starting espconsole",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	plat, closePins, err := newPlatform(cfg)
	if err != nil {
		return err
	}
	defer closePins()

	ansi := ansiEnabled(cfg.Console.ANSI, cfg.Serial.Port == "")
	for {
		err := runOnce(ctx, cfg, plat, log, st, ansi)
		if !errors.Is(err, system.ErrReboot) {
			return err
		}
		log.Info("restarting")
	}
}

func runOnce(ctx context.Context, cfg *config.Config, plat platform.Platform, log *logging.Logger, st stream.Stream, ansi bool) error {
	sys, err := system.New(system.Options{
		Platform: plat,
		Config:   cfg,
		Logger:   log,
		Version:  version,
		ANSI:     ansi,
	})
	if err != nil {
		return fmt.Errorf("building console: %w", err)
	}
	sys.AddConsole(st, true)
	defer func() {
		if closeErr := sys.Close(); closeErr != nil {
			log.Error("error closing console", "error", closeErr)
		}
	}()
	if err := sys.Boot(); err != nil {
		return fmt.Errorf("booting console: %w", err)
	}
	return sys.Run(ctx)
}

func newPlatform(cfg *config.Config) (platform.Platform, func(), error) {
	opts := platform.HostOptions{
		Root:     cfg.Filesystem.Root,
		Capacity: cfg.Filesystem.Capacity,
		PinCount: cfg.GPIO.PinCount,
		ChipID:   hostChipID(cfg.Device.Hostname),
	}
	closePins := func() {}
	if cfg.GPIO.Chip != "" {
		pins, err := linuxgpio.Open(cfg.GPIO.Chip)
		if err != nil {
			return nil, nil, err
		}
		opts.Pins = pins
		opts.PinCount = pins.Lines()
		closePins = func() { _ = pins.Close() }
	}
	plat, err := platform.NewHost(opts)
	if err != nil {
		closePins()
		return nil, nil, err
	}
	return plat, closePins, nil
}

// hostChipID derives a stable device id from the host name.
func hostChipID(name string) uint32 {
	if h, err := os.Hostname(); err == nil {
		name += "@" + h
	}
	return crc32.ChecksumIEEE([]byte(name)) & 0xffffff
}

// openConsole returns the local console stream and the writer for log
// output. On a terminal, stdin is switched to raw mode until restore.
func openConsole(cfg *config.Config) (stream.Stream, io.Writer, func(), error) {
	if cfg.Serial.Port != "" {
		p, err := stream.OpenSerial(stream.SerialConfig{
			Port:     cfg.Serial.Port,
			Baud:     cfg.Serial.Baud,
			DataBits: cfg.Serial.DataBits,
			Parity:   cfg.Serial.Parity,
			StopBits: cfg.Serial.StopBits,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return p, console.CRLFWriter{W: p}, func() { _ = p.Close() }, nil
	}

	restore := func() {}
	var out io.Writer = os.Stdout
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("setting raw mode: %w", err)
		}
		restore = func() { _ = term.Restore(fd, state) }
		out = console.CRLFWriter{W: os.Stdout}
	}
	p := stream.NewPump(stdio{Reader: os.Stdin, Writer: out})
	return p, out, restore, nil
}

// stdio joins stdin and stdout. Closing it leaves both open.
type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error { return nil }

// ansiEnabled resolves the auto/on/off console setting.
func ansiEnabled(setting string, terminal bool) bool {
	switch strings.ToLower(setting) {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}
	return terminal && isatty.IsTerminal(os.Stdout.Fd())
}
