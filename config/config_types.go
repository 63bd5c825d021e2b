package config

// Config 主配置结构
type Config struct {
	Lists   ListsConfig   `yaml:"lists" json:"lists"`
	HTTP    HTTPConfig    `yaml:"http" json:"http"`
	Refresh RefreshConfig `yaml:"refresh" json:"refresh"`
	WebAPI  WebAPIConfig  `yaml:"webapi" json:"webapi"`
	System  SystemConfig  `yaml:"system" json:"system"`
	Stats   StatsConfig   `yaml:"stats" json:"stats"`
}

// ListsConfig 规则列表配置
type ListsConfig struct {
	MirrorDir           string     `yaml:"mirror_dir,omitempty" json:"mirror_dir"`
	UpdateIntervalHours int        `yaml:"update_interval_hours,omitempty" json:"update_interval_hours"`
	Items               []ListItem `yaml:"items" json:"items"`
}

// ListItem 单个规则列表
type ListItem struct {
	Title    string `yaml:"title" json:"title"`
	Location string `yaml:"location" json:"location"`
	// 未填写时默认启用
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled"`
}

// IsEnabled 返回条目是否启用
func (i ListItem) IsEnabled() bool {
	return i.Enabled == nil || *i.Enabled
}

// HTTPConfig 下载客户端配置
type HTTPConfig struct {
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms,omitempty" json:"connect_timeout_ms"`
	ReadTimeoutMs    int    `yaml:"read_timeout_ms,omitempty" json:"read_timeout_ms"`
	UserAgent        string `yaml:"user_agent,omitempty" json:"user_agent"`
}

// RefreshConfig 刷新调度配置
type RefreshConfig struct {
	// 0 表示不限制并发，每个条目一个 goroutine
	PoolSize                int `yaml:"pool_size" json:"pool_size"`
	LivenessIntervalSeconds int `yaml:"liveness_interval_seconds,omitempty" json:"liveness_interval_seconds"`
}

// WebAPIConfig HTTP 管理接口配置
type WebAPIConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr,omitempty" json:"listen_addr"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	LogLevel string `yaml:"log_level,omitempty" json:"log_level"`
}

// StatsConfig 统计配置
type StatsConfig struct {
	HistorySize int `yaml:"history_size,omitempty" json:"history_size"`
}
