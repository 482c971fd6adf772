package enip

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-enip/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-enip/internal/infrastructure/mqtt"
)

// Settings is the immutable snapshot one bridge run works from.
// A configuration change takes effect on the next Start.
type Settings struct {
	MQTT           config.MQTTConfig
	Device         config.DeviceConfig
	PollInterval   time.Duration
	Reconnect      Policy
	HealthInterval time.Duration
}

// SettingsFromConfig snapshots cfg. Slices and maps are copied so later
// edits to cfg do not reach a running bridge.
func SettingsFromConfig(cfg *config.Config) Settings {
	dev := cfg.Device
	dev.Tags = append([]string(nil), cfg.Device.Tags...)
	if cfg.Device.TagTypes != nil {
		dev.TagTypes = make(map[string]string, len(cfg.Device.TagTypes))
		for k, v := range cfg.Device.TagTypes {
			dev.TagTypes[k] = v
		}
	}

	return Settings{
		MQTT:         cfg.MQTT,
		Device:       dev,
		PollInterval: cfg.GetPollInterval(),
		Reconnect: Policy{
			Initial: time.Duration(cfg.Reconnect.InitialDelay) * time.Second,
			Max:     time.Duration(cfg.Reconnect.MaxDelay) * time.Second,
		},
		HealthInterval: time.Duration(cfg.Health.Interval) * time.Second,
	}
}

// Validate checks the fields a run cannot start without.
func (s Settings) Validate() error {
	var errs []string
	if strings.TrimSpace(s.Device.Address) == "" {
		errs = append(errs, "device address is required")
	}
	if s.PollInterval <= 0 {
		errs = append(errs, "poll interval must be greater than 0")
	}
	if s.MQTT.QoS < 0 || s.MQTT.QoS > 2 {
		errs = append(errs, "qos must be 0, 1, or 2")
	}
	if _, err := ParseTagTypes(s.Device.TagTypes); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(errs, "; "))
	}
	return nil
}

// Topics returns the topic builder for the configured prefix.
func (s Settings) Topics() mqtt.Topics {
	return mqtt.NewTopics(s.MQTT.TopicPrefix)
}

// DeviceTimeout returns the connect timeout for the controller.
func (s Settings) DeviceTimeout() time.Duration {
	return time.Duration(s.Device.TimeoutSeconds) * time.Second
}

// DeviceFactory builds the device session for a run.
type DeviceFactory func(s Settings) (DeviceSession, error)

// BrokerFactory builds the broker session for a run.
type BrokerFactory func(s Settings) (BrokerSession, error)

// NewDeviceFactory returns a DeviceFactory producing gologix-backed devices.
func NewDeviceFactory(logger Logger) DeviceFactory {
	return func(s Settings) (DeviceSession, error) {
		types, err := ParseTagTypes(s.Device.TagTypes)
		if err != nil {
			return nil, err
		}
		return NewDevice(DeviceOptions{
			Address: s.Device.Address,
			Types:   types,
			Timeout: s.DeviceTimeout(),
			Logger:  logger,
		}), nil
	}
}

// NewBrokerFactory returns a BrokerFactory producing paho-backed brokers.
func NewBrokerFactory(logger Logger) BrokerFactory {
	return func(s Settings) (BrokerSession, error) {
		client := mqtt.New(s.MQTT)
		if logger != nil {
			client.SetLogger(logger)
		}
		return NewBroker(client, logger), nil
	}
}
