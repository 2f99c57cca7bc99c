package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch re-reads the configuration file whenever it changes on disk and
// hands each successfully validated result to onChange. An edit that
// fails to parse or validate is reported to onError and the previous
// configuration stays in effect.
func Watch(configPath string, onChange func(*Config), onError func(error)) error {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("cannot watch configuration: no file at %s", configPath)
	}

	v.OnConfigChange(func(fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
			onError(fmt.Errorf("failed to unmarshal config: %w", err))
			return
		}
		ApplyDefaults(&cfg)
		if err := Validate(&cfg); err != nil {
			onError(fmt.Errorf("configuration validation failed: %w", err))
			return
		}
		onChange(&cfg)
	})
	v.WatchConfig()
	return nil
}
