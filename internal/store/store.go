// Package store persists the bot configuration (log channel, alert channel,
// temperature threshold) to a single JSON or YAML file.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/namuen/sensor-bot/internal/logger"
	"github.com/namuen/sensor-bot/internal/logic"
)

// DefaultPath is where the config lives when no path is given.
const DefaultPath = "./config.json"

// ErrEmpty is returned by decode when the file holds only whitespace.
var ErrEmpty = errors.New("config file is empty")

// Config is the persisted bot configuration. Empty channel IDs are stored as null.
type Config struct {
	LogChannelID   string
	AlertChannelID string
	TempThreshold  float64
}

// Default returns the configuration used when nothing has been persisted.
func Default() Config {
	return Config{TempThreshold: logic.DefaultThreshold}
}

// Logic converts to the view the monitor reads on every event.
func (c Config) Logic() logic.Config {
	return logic.Config{
		LogChannelID:   c.LogChannelID,
		AlertChannelID: c.AlertChannelID,
		TempThreshold:  c.TempThreshold,
	}
}

// channelID is a snowflake as written in the file. It is always saved as a
// string but also read back from a bare number, so a hand-edited
// "logChannelId": 123 keeps working.
type channelID string

func (id *channelID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = channelID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("channel id must be a string or number, got %s", data)
	}
	*id = channelID(n.String())
	return nil
}

func (id *channelID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: channel id must be a string or number", node.Line)
	}
	*id = channelID(node.Value)
	return nil
}

// fileConfig is the on-disk layout.
type fileConfig struct {
	LogChannelID   *channelID `json:"logChannelId" yaml:"logChannelId"`
	AlertChannelID *channelID `json:"alertChannelId" yaml:"alertChannelId"`
	TempThreshold  float64    `json:"tempThreshold" yaml:"tempThreshold"`
}

func toFile(c Config) fileConfig {
	fc := fileConfig{TempThreshold: c.TempThreshold}
	if c.LogChannelID != "" {
		id := channelID(c.LogChannelID)
		fc.LogChannelID = &id
	}
	if c.AlertChannelID != "" {
		id := channelID(c.AlertChannelID)
		fc.AlertChannelID = &id
	}
	return fc
}

func fromFile(fc fileConfig) Config {
	c := Config{TempThreshold: fc.TempThreshold}
	if fc.LogChannelID != nil {
		c.LogChannelID = string(*fc.LogChannelID)
	}
	if fc.AlertChannelID != nil {
		c.AlertChannelID = string(*fc.AlertChannelID)
	}
	return c
}

// Store holds the current configuration and rewrites the file on every change.
type Store struct {
	mu   sync.RWMutex
	path string
	yaml bool
	cfg  Config
	log  zerolog.Logger
}

// Open loads the config at path. A missing, empty or unparsable file is
// replaced by defaults. The returned Store is always usable; a non-nil error
// means the defaults could not be written back and is only worth logging.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	ext := strings.ToLower(filepath.Ext(path))
	s := &Store{
		path: path,
		yaml: ext == ".yaml" || ext == ".yml",
		cfg:  Default(),
		log:  logger.WithComponent("store"),
	}

	cfg, err := s.load()
	if err == nil {
		s.cfg = cfg
		s.log.Info().
			Str("path", path).
			Str("log_channel", cfg.LogChannelID).
			Str("alert_channel", cfg.AlertChannelID).
			Float64("threshold", cfg.TempThreshold).
			Msg("config loaded")
		return s, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		s.log.Info().Str("path", path).Msg("config file not found, writing defaults")
	} else {
		s.log.Warn().Err(err).Str("path", path).Msg("config file unreadable, recreating with defaults")
		if backup, berr := s.backup(); berr == nil {
			s.log.Warn().Str("backup", backup).Msg("previous config kept")
		}
	}

	if err := s.save(); err != nil {
		return s, err
	}
	return s, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Config returns a copy of the current configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetLogChannel stores the channel that receives periodic readings.
func (s *Store) SetLogChannel(channelID string) error {
	return s.update(func(c *Config) { c.LogChannelID = channelID })
}

// SetAlertChannel stores the channel that receives threshold alerts.
func (s *Store) SetAlertChannel(channelID string) error {
	return s.update(func(c *Config) { c.AlertChannelID = channelID })
}

// SetThreshold stores the alert threshold. Any value is accepted.
func (s *Store) SetThreshold(celsius float64) error {
	return s.update(func(c *Config) { c.TempThreshold = celsius })
}

// update applies fn in memory and then persists. The in-memory change is kept
// even if the write fails.
func (s *Store) update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.cfg)
	return s.save()
}

func (s *Store) load() (Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Config{}, err
	}
	return decode(data, s.yaml)
}

// decode parses file contents over the defaults, so a missing
// tempThreshold key keeps the default threshold.
func decode(data []byte, asYAML bool) (Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Config{}, ErrEmpty
	}

	fc := toFile(Default())
	var err error
	if asYAML {
		err = yaml.Unmarshal(data, &fc)
	} else {
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return fromFile(fc), nil
}

func encode(c Config, asYAML bool) ([]byte, error) {
	fc := toFile(c)
	if asYAML {
		return yaml.Marshal(fc)
	}
	return json.MarshalIndent(fc, "", "  ")
}

// backup copies an unparsable file aside before defaults replace it.
func (s *Store) backup() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", err
	}
	backup := s.path + ".bak"
	if err := os.WriteFile(backup, data, 0644); err != nil {
		return "", err
	}
	return backup, nil
}

// save writes the whole config. Caller holds the lock (or owns s exclusively).
func (s *Store) save() error {
	data, err := encode(s.cfg, s.yaml)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	// Write to temp file first, then rename
	tmpFile := s.path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	if err := os.Rename(tmpFile, s.path); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("rename config file: %w", err)
	}

	s.log.Debug().Str("path", s.path).Msg("config saved")
	return nil
}
