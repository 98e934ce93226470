package ha

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ocfu/espconsole/internal/infrastructure/mqtt"
)

// Discovery root used when the configuration leaves it empty.
const DefaultDiscovery = "/homeassistant"

// Publisher is the MQTT surface the device needs.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
}

// CommandHandler receives a command payload for an entity.
type CommandHandler func(e *Entity, payload string)

// Logger defines the logging interface used by the Device.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Info is the device-level metadata advertised with every entity.
type Info struct {
	ChipID       uint32
	Name         string
	Manufacturer string
	Model        string
	SWVersion    string
	HWVersion    string
	URL          string
}

// ID returns the device identifier, cx followed by the chip id in hex.
func (i Info) ID() string {
	return fmt.Sprintf("cx%x", i.ChipID)
}

// Device groups the entities of one console.
type Device struct {
	info      Info
	topics    mqtt.Topics
	discovery string
	pub       Publisher
	onCommand CommandHandler
	entities  []*Entity
	enabled   bool
	logger    Logger
}

// NewDevice creates a device. root is the topic root; discovery defaults to
// DefaultDiscovery.
func NewDevice(info Info, root, discovery string) *Device {
	if discovery == "" {
		discovery = DefaultDiscovery
	}
	return &Device{
		info:      info,
		topics:    mqtt.Topics{Root: root, Device: info.Name},
		discovery: discovery,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the device.
func (d *Device) SetLogger(logger Logger) {
	d.logger = logger
}

// SetPublisher attaches or detaches (nil) the MQTT publisher.
func (d *Device) SetPublisher(p Publisher) {
	d.pub = p
}

// SetCommandHandler sets the function called for every entity command.
func (d *Device) SetCommandHandler(fn CommandHandler) {
	d.onCommand = fn
}

// Info returns the device metadata.
func (d *Device) Info() Info { return d.info }

// Topics returns the topic builder of the device.
func (d *Device) Topics() mqtt.Topics { return d.topics }

// DiscoveryRoot returns the discovery prefix.
func (d *Device) DiscoveryRoot() string { return d.discovery }

// Enabled reports whether entities are registered with the broker.
func (d *Device) Enabled() bool { return d.enabled }

// Add attaches an entity. When the device is enabled the entity is
// registered immediately.
func (d *Device) Add(e *Entity) error {
	if _, ok := d.Get(e.Name); ok {
		return fmt.Errorf("%w: %s", ErrEntityExists, e.Name)
	}
	e.uid = d.info.ID() + "_" + e.Name
	d.entities = append(d.entities, e)
	if d.enabled && d.pub != nil {
		return d.Register(e)
	}
	return nil
}

// Remove deregisters and detaches the named entity.
func (d *Device) Remove(name string) error {
	i := slices.IndexFunc(d.entities, func(e *Entity) bool { return e.Name == name })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, name)
	}
	e := d.entities[i]
	var err error
	if e.registered {
		err = d.Deregister(e)
	}
	d.entities = slices.Delete(d.entities, i, i+1)
	return err
}

// Get returns the named entity.
func (d *Device) Get(name string) (*Entity, bool) {
	for _, e := range d.entities {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// List returns the entities in insertion order.
func (d *Device) List() []*Entity {
	return slices.Clone(d.entities)
}

// Len returns the number of entities.
func (d *Device) Len() int { return len(d.entities) }

// Register publishes the discovery document, availability and last state of
// e and subscribes to its command topic.
func (d *Device) Register(e *Entity) error {
	if d.pub == nil {
		return ErrNoPublisher
	}
	payload, err := d.discoveryPayload(e)
	if err != nil {
		return fmt.Errorf("encoding discovery for %s: %w", e.Name, err)
	}
	if err := d.pub.Publish(d.DiscoveryTopic(e), payload, true); err != nil {
		return fmt.Errorf("publishing discovery for %s: %w", e.Name, err)
	}
	if err := d.pub.Publish(d.topics.Entity(e.Name), []byte(availability(e.available)), true); err != nil {
		return fmt.Errorf("publishing availability for %s: %w", e.Name, err)
	}
	if e.Type.Commandable() {
		if err := d.pub.Subscribe(d.topics.EntityCommand(e.Name), d.commandFunc(e)); err != nil {
			return fmt.Errorf("subscribing %s: %w", e.Name, err)
		}
	}
	e.registered = true
	if e.state != "" {
		if err := d.publishState(e); err != nil {
			return err
		}
	}
	d.logger.Debug("entity registered", "name", e.Name, "type", e.Type.String())
	return nil
}

// Deregister clears every retained topic of e and drops its command
// subscription.
func (d *Device) Deregister(e *Entity) error {
	if d.pub == nil {
		return ErrNoPublisher
	}
	var errs []error
	if e.Type.Commandable() {
		errs = append(errs, d.pub.Unsubscribe(d.topics.EntityCommand(e.Name)))
		errs = append(errs, d.pub.Publish(d.topics.EntityCommand(e.Name), nil, true))
	}
	errs = append(errs,
		d.pub.Publish(d.topics.EntityState(e.Name), nil, true),
		d.pub.Publish(d.topics.Entity(e.Name), nil, true),
		d.pub.Publish(d.DiscoveryTopic(e), nil, true),
	)
	e.registered = false
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("deregistering %s: %w", e.Name, err)
	}
	d.logger.Debug("entity deregistered", "name", e.Name)
	return nil
}

// RegItems registers (enable) or deregisters every entity in order.
func (d *Device) RegItems(enable bool) error {
	if d.pub == nil {
		return ErrNoPublisher
	}
	var errs []error
	for _, e := range d.entities {
		if enable {
			errs = append(errs, d.Register(e))
		} else if e.registered {
			errs = append(errs, d.Deregister(e))
		}
	}
	d.enabled = enable
	return errors.Join(errs...)
}

// SetState stores the state of the named entity and publishes it when it
// changed and the entity is registered.
func (d *Device) SetState(name, raw string) error {
	e, ok := d.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, name)
	}
	v := e.FormatState(raw)
	if v == e.state {
		return nil
	}
	e.state = v
	if !e.registered || d.pub == nil {
		return nil
	}
	return d.publishState(e)
}

// SetAvailable changes the availability of the named entity.
func (d *Device) SetAvailable(name string, avail bool) error {
	e, ok := d.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, name)
	}
	if e.available == avail {
		return nil
	}
	e.available = avail
	if !e.registered || d.pub == nil {
		return nil
	}
	return d.pub.Publish(d.topics.Entity(e.Name), []byte(availability(avail)), true)
}

// PublishAttributes publishes a JSON attribute document for the entity.
func (d *Device) PublishAttributes(name string, attrs map[string]any) error {
	e, ok := d.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, name)
	}
	if d.pub == nil {
		return ErrNoPublisher
	}
	payload, err := encodeAttributes(attrs)
	if err != nil {
		return err
	}
	return d.pub.Publish(d.topics.EntityAttributes(e.Name), payload, false)
}

// Sync polls the source of every bound entity and publishes changed states.
// lookup returns the raw value of a source and whether it exists; entities
// whose source has vanished become unavailable.
func (d *Device) Sync(lookup func(source string) (string, bool)) {
	for _, e := range d.entities {
		if e.Source == "" {
			continue
		}
		raw, ok := lookup(e.Source)
		if err := d.SetAvailable(e.Name, ok); err != nil {
			d.logger.Warn("availability publish failed", "name", e.Name, "error", err)
		}
		if !ok {
			continue
		}
		if err := d.SetState(e.Name, raw); err != nil {
			d.logger.Warn("state publish failed", "name", e.Name, "error", err)
		}
	}
}

// DiscoveryTopic returns the discovery topic of e.
func (d *Device) DiscoveryTopic(e *Entity) string {
	return d.topics.Discovery(d.discovery, e.Type.Component(), d.info.ID(), e.Name)
}

func (d *Device) publishState(e *Entity) error {
	if err := d.pub.Publish(d.topics.EntityState(e.Name), []byte(e.state), true); err != nil {
		return fmt.Errorf("publishing state for %s: %w", e.Name, err)
	}
	return nil
}

func (d *Device) commandFunc(e *Entity) func(string, []byte) {
	return func(_ string, payload []byte) {
		// Clearing a retained command arrives as an empty payload.
		if len(payload) == 0 {
			return
		}
		d.logger.Debug("entity command", "name", e.Name, "payload", string(payload))
		if d.onCommand != nil {
			d.onCommand(e, string(payload))
		}
	}
}

func availability(ok bool) string {
	if ok {
		return mqtt.PayloadOnline
	}
	return mqtt.PayloadOffline
}
