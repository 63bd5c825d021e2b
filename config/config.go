package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"hostsync/logger"
	"hostsync/source"
)

// CreateDefaultConfig 创建默认配置文件
func CreateDefaultConfig(filePath string) error {
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	return os.WriteFile(filePath, []byte(DefaultConfigContent), 0644)
}

// LoadConfig 从 YAML 文件加载配置，文件不存在时自动创建默认配置
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := CreateDefaultConfig(filePath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		logger.Infof("配置文件不存在，已创建默认配置: %s", filePath)
		if data, err = os.ReadFile(filePath); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return Parse(data)
}

// Parse 解析 YAML 配置并补全默认值
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	setDefaultValues(&cfg, data)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置是否可用
func (c *Config) Validate() error {
	if c.HTTP.ConnectTimeoutMs < 0 || c.HTTP.ReadTimeoutMs < 0 {
		return fmt.Errorf("http timeouts must not be negative")
	}
	if c.Lists.UpdateIntervalHours < 0 {
		return fmt.Errorf("lists.update_interval_hours must not be negative")
	}
	if c.Refresh.LivenessIntervalSeconds < 0 {
		return fmt.Errorf("refresh.liveness_interval_seconds must not be negative")
	}
	if _, ok := logger.ParseLevel(c.System.LogLevel); !ok {
		return fmt.Errorf("unknown log level %q", c.System.LogLevel)
	}
	if c.WebAPI.Enabled {
		if _, _, err := net.SplitHostPort(c.WebAPI.ListenAddr); err != nil {
			return fmt.Errorf("invalid webapi.listen_addr %q: %w", c.WebAPI.ListenAddr, err)
		}
	}

	for i, item := range c.Lists.Items {
		if strings.TrimSpace(item.Location) == "" {
			return fmt.Errorf("lists.items[%d]: location is required", i)
		}
		if source.Classify(item.Location) == source.KindUnknown {
			// 不支持的地址只会被跳过，这里仅提示
			logger.Warnf("lists.items[%d] %q: unsupported location %q will be skipped", i, item.Title, item.Location)
		}
	}
	return nil
}

// Items 返回刷新使用的条目列表，title 为空时使用 location
func (c *Config) Items() []source.Item {
	items := make([]source.Item, 0, len(c.Lists.Items))
	for _, li := range c.Lists.Items {
		title := li.Title
		if title == "" {
			title = li.Location
		}
		items = append(items, source.Item{
			Title:    title,
			Location: strings.TrimSpace(li.Location),
			Enabled:  li.IsEnabled(),
		})
	}
	return items
}

func (h HTTPConfig) ConnectTimeout() time.Duration {
	return time.Duration(h.ConnectTimeoutMs) * time.Millisecond
}

func (h HTTPConfig) ReadTimeout() time.Duration {
	return time.Duration(h.ReadTimeoutMs) * time.Millisecond
}

func (l ListsConfig) UpdateInterval() time.Duration {
	return time.Duration(l.UpdateIntervalHours) * time.Hour
}

func (r RefreshConfig) LivenessInterval() time.Duration {
	return time.Duration(r.LivenessIntervalSeconds) * time.Second
}
