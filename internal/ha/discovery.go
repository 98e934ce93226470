package ha

import (
	"encoding/json"
	"fmt"
)

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
	HWVersion    string   `json:"hw_version,omitempty"`
	URL          string   `json:"configuration_url,omitempty"`
}

type discoveryDoc struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	ObjectID          string          `json:"object_id"`
	StateTopic        string          `json:"state_topic,omitempty"`
	CommandTopic      string          `json:"command_topic,omitempty"`
	Retain            bool            `json:"retain,omitempty"`
	AvailabilityTopic string          `json:"availability_topic"`
	PayloadAvailable  string          `json:"payload_available"`
	PayloadNotAvail   string          `json:"payload_not_available"`
	AttributesTopic   string          `json:"json_attributes_topic"`
	EntityCategory    string          `json:"entity_category,omitempty"`
	StateClass        string          `json:"state_class,omitempty"`
	Unit              string          `json:"unit_of_measurement,omitempty"`
	DeviceClass       string          `json:"device_class,omitempty"`
	Icon              string          `json:"icon,omitempty"`
	Options           []string        `json:"options,omitempty"`
	Min               *float64        `json:"min,omitempty"`
	Max               *float64        `json:"max,omitempty"`
	Step              *float64        `json:"step,omitempty"`
	Device            discoveryDevice `json:"device"`
}

func (d *Device) discoveryPayload(e *Entity) ([]byte, error) {
	doc := discoveryDoc{
		Name:              e.Friendly,
		UniqueID:          e.uid,
		ObjectID:          e.uid,
		AvailabilityTopic: d.topics.Entity(e.Name),
		PayloadAvailable:  availability(true),
		PayloadNotAvail:   availability(false),
		AttributesTopic:   d.topics.EntityAttributes(e.Name),
		EntityCategory:    e.Category.String(),
		StateClass:        e.StateClass.String(),
		Unit:              e.Unit,
		DeviceClass:       e.DeviceClass,
		Icon:              e.Icon,
		Device: discoveryDevice{
			Identifiers:  []string{d.info.ID()},
			Name:         d.info.Name,
			Manufacturer: d.info.Manufacturer,
			Model:        d.info.Model,
			SWVersion:    d.info.SWVersion,
			HWVersion:    d.info.HWVersion,
			URL:          d.info.URL,
		},
	}
	if e.Type != TypeButton && e.Type != TypeNotify {
		doc.StateTopic = d.topics.EntityState(e.Name)
	}
	if e.Type.Commandable() {
		doc.CommandTopic = d.topics.EntityCommand(e.Name)
		doc.Retain = e.RetainCommand()
	}
	switch e.Type {
	case TypeSelect:
		doc.Options = e.Options
	case TypeNumber:
		if e.Max > e.Min {
			doc.Min, doc.Max = &e.Min, &e.Max
		}
		if e.Step > 0 {
			doc.Step = &e.Step
		}
	}
	return json.Marshal(doc)
}

func encodeAttributes(attrs map[string]any) ([]byte, error) {
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encoding attributes: %w", err)
	}
	return b, nil
}
