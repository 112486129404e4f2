package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ConfigWatcher 配置监听器
// 配置文件变更后重新解析,校验通过才通知回调
type ConfigWatcher struct {
	config     *Config
	configPath string
	viper      *viper.Viper
	logger     logrus.FieldLogger
	callbacks  []func(*Config)
	mu         sync.RWMutex
	stopped    bool
	stopMu     sync.RWMutex
}

// NewConfigWatcher 创建配置监听器
func NewConfigWatcher(cfg *Config, configPath string, logger logrus.FieldLogger) *ConfigWatcher {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &ConfigWatcher{
		config:     cfg,
		configPath: configPath,
		viper:      v,
		logger:     logger.WithField("component", "config_watcher"),
		callbacks:  make([]func(*Config), 0),
	}
}

// OnConfigChange 注册配置变更回调
func (w *ConfigWatcher) OnConfigChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 启动配置监听
func (w *ConfigWatcher) Start() error {
	if err := w.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	w.viper.WatchConfig()
	w.viper.OnConfigChange(func(e fsnotify.Event) {
		w.stopMu.RLock()
		stopped := w.stopped
		w.stopMu.RUnlock()
		if stopped {
			return
		}

		w.reload(e.Name)
	})

	return nil
}

// reload 重新解析配置并通知回调
func (w *ConfigWatcher) reload(source string) {
	newCfg, err := unmarshal(w.viper)
	if err != nil {
		// 保留旧配置
		w.logger.WithError(err).WithField("file", source).Error("Rejected config change")
		return
	}

	// 复制回调列表，在锁外执行，避免死锁
	w.mu.RLock()
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, callback := range callbacks {
		callback(newCfg)
	}

	w.mu.Lock()
	w.config = newCfg
	w.mu.Unlock()

	w.logger.WithField("file", source).Info("Config reloaded")
}

// Stop 停止配置监听
func (w *ConfigWatcher) Stop() {
	w.stopMu.Lock()
	defer w.stopMu.Unlock()
	w.stopped = true
}

// GetConfig 获取当前配置
func (w *ConfigWatcher) GetConfig() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}
