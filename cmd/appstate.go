package cmd

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/juju/fslock"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// appState is the modifiable state of the application.
type appState struct {
	// Log is the root logger of the application.
	// Consumers are expected to store and use local copies of the logger
	// after modifying with the .With method.
	Log *zap.Logger

	Viper *viper.Viper

	HomePath string
	Debug    bool
	Config   *Config
}

func (a *appState) configPath() string {
	return path.Join(a.HomePath, "config", "config.yaml")
}

// loadConfigFile reads config/config.yaml under the home path into
// a.Config. Commands that need a config call this and fail loudly when
// none exists yet.
func (a *appState) loadConfigFile() error {
	cfgPath := a.configPath()
	if _, err := os.Stat(cfgPath); err != nil {
		return fmt.Errorf("config file not found at %s, run `%s config init`: %w", cfgPath, appName, err)
	}

	a.Viper.SetConfigFile(cfgPath)
	if err := a.Viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file at %s: %w", cfgPath, err)
	}

	byt, err := os.ReadFile(cfgPath)
	if err != nil {
		return err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(byt, cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config file at %s: %w", cfgPath, err)
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid config at %s: %w", cfgPath, err)
	}

	a.Config = cfg
	return nil
}

// OverwriteConfig overwrites the config file on disk with the serialization of cfg,
// and it replaces a.Config with cfg. A lock file guards concurrent
// access to config.yaml.
func (a *appState) OverwriteConfig(cfg *Config) error {
	cfgPath := a.configPath()
	if _, err := os.Stat(cfgPath); err != nil {
		return fmt.Errorf("failed to check existence of config file at %s: %w", cfgPath, err)
	}

	lockFilePath := path.Join(a.HomePath, "config", "config.lock")
	lock := fslock.New(lockFilePath)
	if err := lock.LockWithTimeout(10 * time.Second); err != nil {
		return fmt.Errorf("failed to acquire config lock: %w", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			a.Log.Error("Error unlocking config file lock, please manually delete",
				zap.String("filepath", lockFilePath),
			)
		}
	}()

	if err := cfg.validate(); err != nil {
		return fmt.Errorf("failed to validate config at %s: %w", cfgPath, err)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	if err := os.WriteFile(cfgPath, out, 0600); err != nil {
		return fmt.Errorf("failed to write config file at %s: %w", cfgPath, err)
	}

	a.Config = cfg
	return nil
}
