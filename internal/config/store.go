package config

import (
	"fmt"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"sitewatch/internal/logger"
)

// Store holds the active configuration. Readers get the latest validated
// snapshot; a reload that fails validation keeps the previous one.
type Store struct {
	current atomic.Pointer[Config]
}

func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

func (s *Store) Current() *Config {
	return s.current.Load()
}

func (s *Store) Notification() NotificationSettings {
	return s.current.Load().NotificationSettings()
}

// Reload re-reads the file loaded by LoadConfig.
func (s *Store) Reload() error {
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to re-read config: %w", err)
	}
	cfg, err := decode()
	if err != nil {
		return err
	}
	s.current.Store(cfg)
	return nil
}

// Watch reloads the store whenever the config file changes on disk.
func (s *Store) Watch(log logger.Logger) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if err := s.Reload(); err != nil {
			log.Warnw("Ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		log.Infow("Configuration reloaded", "file", e.Name)
	})
	viper.WatchConfig()
}

// SettingsFunc adapts a plain function to a settings source.
type SettingsFunc func() NotificationSettings

func (f SettingsFunc) Notification() NotificationSettings {
	return f()
}

// StaticSettings returns a source that always yields s.
func StaticSettings(s NotificationSettings) SettingsFunc {
	return func() NotificationSettings { return s }
}
