package config

import "gopkg.in/yaml.v3"

// explicitFields 记录原始 YAML 中显式填写的字段，用于区分"未填写"和"填写为零值"
type explicitFields struct {
	Lists struct {
		UpdateIntervalHours *int `yaml:"update_interval_hours"`
	} `yaml:"lists"`
	WebAPI struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"webapi"`
}

// setDefaultValues 设置配置文件中缺失字段的默认值
func setDefaultValues(cfg *Config, rawData []byte) {
	var explicit explicitFields
	_ = yaml.Unmarshal(rawData, &explicit)

	// Lists 配置默认值
	if cfg.Lists.MirrorDir == "" {
		cfg.Lists.MirrorDir = "./mirrors"
	}
	// update_interval_hours 显式为 0 表示关闭自动刷新
	if explicit.Lists.UpdateIntervalHours == nil {
		cfg.Lists.UpdateIntervalHours = 24
	}

	setHTTPDefaults(&cfg.HTTP)

	if cfg.Refresh.LivenessIntervalSeconds == 0 {
		cfg.Refresh.LivenessIntervalSeconds = 10
	}

	// WebAPI 未配置 enabled 时默认开启，显式 false 保持关闭
	if explicit.WebAPI.Enabled == nil {
		cfg.WebAPI.Enabled = true
	}
	if cfg.WebAPI.ListenAddr == "" {
		cfg.WebAPI.ListenAddr = "127.0.0.1:8088"
	}

	if cfg.System.LogLevel == "" {
		cfg.System.LogLevel = "info"
	}

	if cfg.Stats.HistorySize == 0 {
		cfg.Stats.HistorySize = 20
	}
}

// setHTTPDefaults 设置下载配置的默认值
func setHTTPDefaults(h *HTTPConfig) {
	if h.ConnectTimeoutMs == 0 {
		h.ConnectTimeoutMs = 10000
	}
	if h.ReadTimeoutMs == 0 {
		h.ReadTimeoutMs = 10000
	}
	if h.UserAgent == "" {
		h.UserAgent = "hostsync/1.0"
	}
}
