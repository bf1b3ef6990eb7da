package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReloadCallback is invoked after a successful hot-reload with the old and
// new configuration.
type ReloadCallback func(old, new *Config) error

// Manager loads configuration and watches config files for changes.
type Manager struct {
	mu              sync.RWMutex
	viper           *viper.Viper
	validator       *validator.Validate
	logger          *zap.Logger
	config          *Config
	watcher         *fsnotify.Watcher
	watchPaths      []string
	reloadCallbacks []ReloadCallback
	lastReload      time.Time
	ctx             context.Context
	cancel          context.CancelFunc
}

// NewManager creates a configuration manager.
func NewManager(logger *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		viper:     viper.New(),
		validator: validator.New(),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Load reads configuration from the given YAML files (missing files are
// skipped) and the environment, applies defaults and validates the result.
func (m *Manager) Load(configPaths ...string) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setupViper()

	if err := m.loadConfigFiles(configPaths...); err != nil {
		return nil, fmt.Errorf("failed to load config files: %w", err)
	}

	var cfg Config
	if err := m.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaults(&cfg)

	if err := m.validate(&cfg); err != nil {
		return nil, err
	}

	m.config = &cfg
	m.lastReload = time.Now()

	m.logger.Info("Configuration loaded",
		zap.String("environment", cfg.Environment),
		zap.String("database_driver", cfg.Database.Driver),
		zap.Int("engine_workers", cfg.Engine.Workers))

	return &cfg, nil
}

// Config returns the current configuration.
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnReload registers a callback invoked after a successful hot-reload.
func (m *Manager) OnReload(cb ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadCallbacks = append(m.reloadCallbacks, cb)
}

func (m *Manager) setupViper() {
	m.viper.SetConfigType("yaml")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.viper.SetEnvPrefix("RISKD")
}

func (m *Manager) loadConfigFiles(configPaths ...string) error {
	if len(configPaths) == 0 {
		configPaths = []string{
			"./config.yaml",
			"./configs/config.yaml",
			"/etc/riskd/config.yaml",
		}
	}

	var loadedFiles []string

	for _, path := range configPaths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			m.logger.Debug("Config file not found, skipping", zap.String("path", path))
			continue
		}

		m.viper.SetConfigFile(path)
		if err := m.viper.MergeInConfig(); err != nil {
			return fmt.Errorf("failed to load config file %s: %w", path, err)
		}

		loadedFiles = append(loadedFiles, path)
		m.watchPaths = append(m.watchPaths, path)
	}

	if len(loadedFiles) == 0 {
		m.logger.Warn("No configuration files found, using defaults and environment variables")
	} else {
		m.logger.Info("Loaded configuration files", zap.Strings("files", loadedFiles))
	}

	return nil
}

func (m *Manager) validate(cfg *Config) error {
	if err := m.validator.Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if cfg.Redis.Enabled && cfg.Redis.Address == "" {
		return fmt.Errorf("redis cache is enabled but no address is configured")
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka is enabled but no brokers are configured")
	}
	if cfg.Engine.BatchSize > cfg.Engine.MaxPaths {
		return fmt.Errorf("engine batch_size (%d) exceeds max_paths (%d)",
			cfg.Engine.BatchSize, cfg.Engine.MaxPaths)
	}

	return nil
}

// Watch starts a file watcher that hot-reloads the configuration when a
// watched file changes. No-op when no config files were loaded.
func (m *Manager) Watch() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.watchPaths) == 0 {
		m.logger.Info("No config files to watch, hot-reload disabled")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	m.watcher = watcher

	for _, path := range m.watchPaths {
		if err := watcher.Add(path); err != nil {
			m.logger.Warn("Failed to watch config file", zap.String("path", path), zap.Error(err))
		}
	}

	go m.watchForChanges()

	m.logger.Info("File watcher started for hot-reload", zap.Strings("paths", m.watchPaths))
	return nil
}

// Close stops the file watcher.
func (m *Manager) Close() error {
	m.cancel()
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

func (m *Manager) watchForChanges() {
	debounceTimer := time.NewTimer(0)
	debounceTimer.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {
				m.logger.Debug("Config file changed",
					zap.String("file", event.Name),
					zap.String("operation", event.Op.String()))
				// Debounce rapid file changes
				debounceTimer.Reset(500 * time.Millisecond)
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("File watcher error", zap.Error(err))

		case <-debounceTimer.C:
			if err := m.reload(); err != nil {
				m.logger.Error("Failed to reload configuration", zap.Error(err))
			}
		}
	}
}

func (m *Manager) reload() error {
	m.mu.RLock()
	oldConfig := m.config
	paths := make([]string, len(m.watchPaths))
	copy(paths, m.watchPaths)
	callbacks := make([]ReloadCallback, len(m.reloadCallbacks))
	copy(callbacks, m.reloadCallbacks)
	m.mu.RUnlock()

	newViper := viper.New()
	newViper.SetConfigType("yaml")
	newViper.AutomaticEnv()
	newViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	newViper.SetEnvPrefix("RISKD")

	for _, path := range paths {
		newViper.SetConfigFile(path)
		if err := newViper.MergeInConfig(); err != nil {
			return fmt.Errorf("failed to reload config file %s: %w", path, err)
		}
	}

	var newConfig Config
	if err := newViper.Unmarshal(&newConfig); err != nil {
		return fmt.Errorf("failed to unmarshal reloaded config: %w", err)
	}

	setDefaults(&newConfig)

	if err := m.validate(&newConfig); err != nil {
		return fmt.Errorf("reloaded configuration invalid: %w", err)
	}

	for _, cb := range callbacks {
		if err := cb(oldConfig, &newConfig); err != nil {
			return fmt.Errorf("reload callback failed: %w", err)
		}
	}

	m.mu.Lock()
	m.viper = newViper
	m.config = &newConfig
	m.lastReload = time.Now()
	m.mu.Unlock()

	m.logger.Info("Configuration reloaded", zap.Time("reloaded_at", time.Now()))
	return nil
}
