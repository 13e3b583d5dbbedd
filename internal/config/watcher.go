package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch monitors the configuration file for changes and invokes onChange
// with each successfully reloaded configuration. Reloads that fail to parse
// or validate are logged and skipped, keeping the previous config active.
// When no config file exists there is nothing to watch and Watch is a no-op.
func Watch(configPath string, log *slog.Logger, onChange func(*Config)) error {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			log.Debug("no config file present, config watching disabled")
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	v.OnConfigChange(func(event fsnotify.Event) {
		cfg, err := unmarshal(v)
		if err != nil {
			log.Warn("config reload failed, keeping previous config",
				slog.String("file", event.Name),
				slog.String("error", err.Error()))
			return
		}
		if err := cfg.Validate(); err != nil {
			log.Warn("reloaded config invalid, keeping previous config",
				slog.String("file", event.Name),
				slog.String("error", err.Error()))
			return
		}
		log.Info("configuration reloaded", slog.String("file", event.Name))
		onChange(cfg)
	})
	v.WatchConfig()

	log.Debug("watching config file", slog.String("file", v.ConfigFileUsed()))
	return nil
}
