package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Store holds the file-level configuration and persists replacements to
// disk. Environment overrides are layered on at read time and never saved,
// so a secret supplied as MQTT_PASSWORD stays out of the YAML file.
//
// Thread Safety: All methods are safe for concurrent use.
type Store struct {
	path string
	mu   sync.RWMutex
	file *Config
}

// NewStore wraps file, the configuration as read by LoadFile from path
// (before environment overrides). An empty path keeps replacements in
// memory only.
func NewStore(path string, file *Config) *Store {
	return &Store{path: path, file: file.Clone()}
}

// Current returns a deep copy of the live configuration: the file-level
// settings with environment overrides applied.
func (s *Store) Current() *Config {
	s.mu.RLock()
	out := s.file.Clone()
	s.mu.RUnlock()

	// MQTT_PORT was already parsed by Load; a bad value here only leaves
	// the file port in place.
	_ = applyEnvOverrides(out)
	return out
}

// Replace validates cfg, writes it to the store's file and makes it live.
// Fields that still carry their environment value are written with the
// file's previous value instead. Running components keep the settings they
// started with.
func (s *Store) Replace(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file := withoutEnvOverrides(cfg, s.file)
	if s.path != "" {
		if err := writeFile(s.path, file); err != nil {
			return err
		}
	}
	s.file = file
	return nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Device.Tags = append([]string(nil), c.Device.Tags...)
	if c.Device.TagTypes != nil {
		out.Device.TagTypes = make(map[string]string, len(c.Device.TagTypes))
		for k, v := range c.Device.TagTypes {
			out.Device.TagTypes[k] = v
		}
	}
	out.API.CORS.AllowedOrigins = append([]string(nil), c.API.CORS.AllowedOrigins...)
	out.API.CORS.AllowedMethods = append([]string(nil), c.API.CORS.AllowedMethods...)
	out.API.CORS.AllowedHeaders = append([]string(nil), c.API.CORS.AllowedHeaders...)
	return &out
}

// Redacted returns a copy with secrets replaced by RedactedSecret.
func (c *Config) Redacted() *Config {
	out := c.Clone()
	redact(&out.MQTT.Auth.Password)
	redact(&out.InfluxDB.Token)
	redact(&out.Security.APITokenSecret)
	return out
}

// RedactedSecret stands in for secrets in API responses. Submitting it back
// keeps the stored value.
const RedactedSecret = "********"

func redact(s *string) {
	if *s != "" {
		*s = RedactedSecret
	}
}

// MergeJSON applies a JSON document onto a copy of c. Fields absent from
// data keep their current values, and secrets submitted as RedactedSecret
// keep the stored value.
func (c *Config) MergeJSON(data []byte) (*Config, error) {
	out := c.Clone()
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	keepSecret(&out.MQTT.Auth.Password, c.MQTT.Auth.Password)
	keepSecret(&out.InfluxDB.Token, c.InfluxDB.Token)
	keepSecret(&out.Security.APITokenSecret, c.Security.APITokenSecret)
	return out, nil
}

func keepSecret(s *string, stored string) {
	if *s == RedactedSecret {
		*s = stored
	}
}
