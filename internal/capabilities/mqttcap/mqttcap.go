// Package mqttcap connects the console to an MQTT broker. It provides the
// mqtt and ha verbs, publishes the Home Assistant entities of the runtime and
// forwards log records to the device log topic.
//
// Messages arrive on the MQTT client's goroutines. They are queued and
// handled in Loop so that every command runs on the console loop.
package mqttcap

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ocfu/espconsole/internal/capability"
	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/ha"
	"github.com/ocfu/espconsole/internal/infrastructure/config"
	"github.com/ocfu/espconsole/internal/infrastructure/mqtt"
	"github.com/ocfu/espconsole/internal/vars"
)

// Name is the capability name used by cap load.
const Name = "mqtt"

// logSink names the logger sink that publishes to the log topic.
const logSink = "mqtt"

// maxQueue bounds the messages waiting for the loop; older ones are dropped.
const maxQueue = 64

var usages = map[string]string{
	"mqtt": "mqtt [status] | mqtt connect | mqtt disconnect | mqtt pub [-r] <topic> <payload> | " +
		"mqtt sub <topic> <cmd> | mqtt unsub <topic>",
	"ha": "ha [list] | ha on | ha off | ha add <type> <name> <source> [<friendly>] | ha del <name> | " +
		"ha state <name> <value> | ha avail <name> 0|1",
}

// Broker is the part of the MQTT client the capability uses.
// *mqtt.Client implements it.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
	Close() error
}

// Dialer connects to the broker described by cfg.
type Dialer func(cfg config.MQTTConfig, device string) (Broker, error)

func dialBroker(cfg config.MQTTConfig, device string) (Broker, error) {
	return mqtt.Connect(cfg, device)
}

type delivery struct {
	handler func(topic string, payload []byte)
	msg     mqtt.Message
}

// Capability implements the mqtt and ha verbs.
type Capability struct {
	capability.Base

	dial   Dialer
	broker Broker
	qos    byte
	topics mqtt.Topics

	// subs maps topics subscribed with mqtt sub to their command.
	subs map[string]string

	mu      sync.Mutex
	queue   []delivery
	dropped int
}

// New constructs the capability.
func New() capability.Capability {
	return NewWithDialer(dialBroker)()
}

// NewWithDialer returns a constructor that connects through dial.
func NewWithDialer(dial Dialer) capability.Constructor {
	return func() capability.Capability {
		return &Capability{dial: dial, subs: make(map[string]string)}
	}
}

// Name implements capability.Capability.
func (c *Capability) Name() string { return Name }

// Commands implements capability.Capability.
func (c *Capability) Commands() []string { return []string{"mqtt", "ha"} }

// Usage implements capability.Usager.
func (c *Capability) Usage(verb string) (string, bool) {
	u, ok := usages[verb]
	return u, ok
}

// Setup connects when the broker is enabled in the configuration. A failed
// connection leaves the capability loaded; mqtt connect retries.
func (c *Capability) Setup(ctx *capability.Context) error {
	if ctx.HA != nil {
		ctx.HA.SetCommandHandler(func(e *ha.Entity, payload string) {
			c.entityCommand(ctx, e, payload)
		})
	}
	if ctx.Config == nil || !ctx.Config.MQTT.Enabled {
		return nil
	}
	if err := c.connect(ctx); err != nil {
		ctx.Logger.Warn("mqtt connect failed", "error", err)
	}
	return nil
}

// Loop handles queued messages and publishes changed entity states.
func (c *Capability) Loop(ctx *capability.Context) {
	for _, d := range c.drain() {
		d.handler(d.msg.Topic, d.msg.Payload)
	}
	if ctx.HA != nil && c.connected() {
		ctx.HA.Sync(func(source string) (string, bool) { return lookup(ctx, source) })
	}
}

// Teardown disconnects from the broker.
func (c *Capability) Teardown(ctx *capability.Context) {
	c.disconnect(ctx)
	if ctx.HA != nil {
		ctx.HA.SetCommandHandler(nil)
	}
}

func (c *Capability) connected() bool {
	return c.broker != nil && c.broker.IsConnected()
}

func (c *Capability) connect(ctx *capability.Context) error {
	if c.broker != nil {
		return nil
	}
	cfg := ctx.Config.MQTT
	host := ctx.Vars.Value(vars.Hostname)
	if host == "" {
		host = ctx.Config.Device.Hostname
	}
	b, err := c.dial(cfg, host)
	if err != nil {
		return err
	}
	c.broker = b
	c.qos = byte(cfg.QoS)
	c.topics = mqtt.Topics{Root: cfg.Root, Device: host}

	if ctx.HA != nil {
		ctx.HA.SetPublisher(&publisher{c: c})
		if err := ctx.HA.RegItems(true); err != nil {
			ctx.Logger.Warn("registering entities", "error", err)
		}
	}
	for topic, cmd := range c.subs {
		if err := c.subscribe(ctx, topic, cmd); err != nil {
			ctx.Logger.Warn("restoring subscription", "topic", topic, "error", err)
		}
	}
	if cfg.LogLevel != "" {
		ctx.Logger.AddSink(logSink, &logWriter{b: b, topic: c.topics.Log()}, cfg.LogLevel)
	}
	ctx.Logger.Info("mqtt connected", "broker", cfg.Broker.Host, "root", c.topics.Base())
	return nil
}

func (c *Capability) disconnect(ctx *capability.Context) {
	if c.broker == nil {
		return
	}
	if ctx.Logger != nil {
		ctx.Logger.RemoveSink(logSink)
	}
	if ctx.HA != nil {
		ctx.HA.SetPublisher(nil)
	}
	if err := c.broker.Close(); err != nil && ctx.Logger != nil {
		ctx.Logger.Warn("mqtt close", "error", err)
	}
	c.broker = nil
}

// enqueue is called from MQTT client goroutines.
func (c *Capability) enqueue(handler func(string, []byte), msg mqtt.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) >= maxQueue {
		c.queue = c.queue[1:]
		c.dropped++
	}
	c.queue = append(c.queue, delivery{handler: handler, msg: msg})
}

func (c *Capability) drain() []delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.queue
	c.queue = nil
	return q
}

func (c *Capability) subscribe(ctx *capability.Context, topic, cmd string) error {
	return c.broker.Subscribe(topic, c.qos, func(msg mqtt.Message) error {
		c.enqueue(func(topic string, payload []byte) {
			ctx.Dispatcher.Dispatch(cmd, ctx.Out(), 0, map[string]string{
				"TOPIC":   topic,
				"PAYLOAD": string(payload),
			})
		}, msg)
		return nil
	})
}

// Execute implements capability.Capability.
func (c *Capability) Execute(ctx *capability.Context, req *command.Request) command.Exit {
	switch req.Line.Verb() {
	case "mqtt":
		return c.mqttVerb(ctx, req)
	case "ha":
		return c.haVerb(ctx, req)
	}
	return command.NotHandled
}

func (c *Capability) mqttVerb(ctx *capability.Context, req *command.Request) command.Exit {
	l := req.Line
	switch l.Arg(1) {
	case "", "status":
		state := "disconnected"
		if c.connected() {
			state = "connected"
		}
		req.Printf("mqtt %s\n", state)
		if ctx.Config != nil {
			b := ctx.Config.MQTT.Broker
			req.Printf("broker: %s:%d\n", b.Host, b.Port)
		}
		if c.broker != nil {
			req.Printf("base: %s\n", c.topics.Base())
		}
		req.Printf("subscriptions: %d\n", len(c.subs))
		c.mu.Lock()
		if c.dropped > 0 {
			req.Printf("dropped: %d\n", c.dropped)
		}
		c.mu.Unlock()
		req.SetOutput(strconv.Itoa(boolInt(c.connected())))
		return command.Success
	case "connect":
		if ctx.Config == nil {
			return req.Fail("mqtt: no configuration")
		}
		if err := c.connect(ctx); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	case "disconnect":
		c.disconnect(ctx)
		return command.Success
	case "pub":
		retain := l.Arg(2) == "-r"
		i := 2
		if retain {
			i = 3
		}
		if !l.Has(i) {
			return req.Usage("mqtt pub [-r] <topic> <payload>")
		}
		if c.broker == nil {
			return req.Fail("%v", mqtt.ErrNotConnected)
		}
		payload := command.Unquote(l.After(i))
		if err := c.broker.Publish(c.topic(l.Arg(i)), []byte(payload), c.qos, retain); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	case "sub":
		if l.Len() < 4 {
			return req.Usage("mqtt sub <topic> <cmd>")
		}
		if c.broker == nil {
			return req.Fail("%v", mqtt.ErrNotConnected)
		}
		topic := c.topic(l.Arg(2))
		if !mqtt.ValidFilter(topic) {
			return req.Fail("%v: %q", mqtt.ErrInvalidTopic, topic)
		}
		cmd := command.Unquote(l.After(2))
		if err := c.subscribe(ctx, topic, cmd); err != nil {
			return req.Fail("%v", err)
		}
		c.subs[topic] = cmd
		return command.Success
	case "unsub":
		if !l.Has(2) {
			return req.Usage("mqtt unsub <topic>")
		}
		topic := c.topic(l.Arg(2))
		if _, ok := c.subs[topic]; !ok {
			return req.Fail("mqtt: not subscribed to %s", topic)
		}
		delete(c.subs, topic)
		if c.broker != nil {
			if err := c.broker.Unsubscribe(topic); err != nil {
				return req.Fail("%v", err)
			}
		}
		return command.Success
	}
	return req.Usage(usages["mqtt"])
}

// topic resolves a relative topic against the device base.
func (c *Capability) topic(t string) string {
	if strings.HasPrefix(t, "/") || c.topics.Device == "" {
		return t
	}
	return c.topics.Base() + "/" + t
}

// publisher adapts the broker to ha.Publisher. Command messages are queued
// for the loop.
type publisher struct {
	c *Capability
}

func (p *publisher) Publish(topic string, payload []byte, retained bool) error {
	if p.c.broker == nil {
		return mqtt.ErrNotConnected
	}
	return p.c.broker.Publish(topic, payload, p.c.qos, retained)
}

func (p *publisher) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	if p.c.broker == nil {
		return mqtt.ErrNotConnected
	}
	return p.c.broker.Subscribe(topic, p.c.qos, func(msg mqtt.Message) error {
		p.c.enqueue(handler, msg)
		return nil
	})
}

func (p *publisher) Unsubscribe(topic string) error {
	if p.c.broker == nil {
		return mqtt.ErrNotConnected
	}
	return p.c.broker.Unsubscribe(topic)
}

// logWriter publishes each log line to the device log topic. Records logged
// while publishing are dropped.
type logWriter struct {
	b     Broker
	topic string
	busy  atomic.Bool
}

func (w *logWriter) Write(p []byte) (int, error) {
	if !w.busy.CompareAndSwap(false, true) {
		return len(p), nil
	}
	defer w.busy.Store(false)
	line := strings.TrimRight(string(p), "\r\n")
	if err := w.b.Publish(w.topic, []byte(line), 0, false); err != nil {
		return 0, fmt.Errorf("publishing log: %w", err)
	}
	return len(p), nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
