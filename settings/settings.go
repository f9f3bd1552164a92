// Package settings persists the connection settings of the aria2 daemon.
// Host, port and the like live in a TOML file; the RPC secret is kept in the
// OS keyring.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pelletier/go-toml/v2"
	"github.com/zalando/go-keyring"

	"github.com/synodriver/aria2link/aria2"
)

const (
	appName        = "aria2link"
	keyringService = appName
	keyringUser    = "rpc-secret"
)

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
)

type fileConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Secure  bool   `toml:"secure"`
	Path    string `toml:"path"`
	Timeout string `toml:"timeout,omitempty"`
}

// Store reads and writes one settings file.
type Store struct {
	path string
	log  *slog.Logger
}

// DefaultPath is <user config dir>/aria2link/config.toml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, appName, "config.toml"), nil
}

func NewStore(path string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Store{path: path, log: log.With("component", "settings")}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the stored settings, or the defaults when nothing was saved.
// An unreadable keyring only drops the secret.
func (s *Store) Load() (aria2.Config, error) {
	cfg := aria2.DefaultConfig()

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read settings: %w", err)
	default:
		var fc fileConfig
		if err := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&fc); err != nil {
			return cfg, fmt.Errorf("parse settings: %w", err)
		}
		if err := fc.apply(&cfg); err != nil {
			return cfg, err
		}
	}

	secret, err := keyringGet(keyringService, keyringUser)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
	case err != nil:
		s.log.Warn("keyring unavailable, continuing without secret", "err", err)
	default:
		cfg.Secret = secret
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (fc fileConfig) apply(cfg *aria2.Config) error {
	if fc.Host != "" {
		cfg.Host = fc.Host
	}
	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if fc.Path != "" {
		cfg.Path = fc.Path
	}
	cfg.Secure = fc.Secure
	if fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return fmt.Errorf("parse settings: timeout: %w", err)
		}
		cfg.Timeout = d
	}
	return nil
}

// Save validates cfg and writes it. The file is replaced atomically while
// holding a lock next to it.
func (s *Store) Save(cfg aria2.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	fc := fileConfig{
		Host:   cfg.Host,
		Port:   cfg.Port,
		Secure: cfg.Secure,
		Path:   cfg.Path,
	}
	if cfg.Timeout != 0 {
		fc.Timeout = cfg.Timeout.String()
	}
	data, err := toml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock settings: %w", err)
	}
	defer lock.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write settings: %w", err)
	}

	if cfg.Secret == "" {
		if err := keyringDelete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("clear secret: %w", err)
		}
		return nil
	}
	if err := keyringSet(keyringService, keyringUser, cfg.Secret); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}
	return nil
}

// Clear removes the settings file and the stored secret.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove settings: %w", err)
	}
	os.Remove(s.path + ".lock")
	if err := keyringDelete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("clear secret: %w", err)
	}
	return nil
}
