package config

import (
	"sync/atomic"
)

// 原子存储当前生效的配置，供各业务读取
var current atomic.Value // *Config

func SetCurrent(c *Config) {
	current.Store(c)
}

func GetCurrent() *Config {
	v := current.Load()
	if v == nil {
		return nil
	}
	return v.(*Config)
}

// GetFeatureFlag 返回功能开关（默认 false）
func GetFeatureFlag(name string) bool {
	cfg := GetCurrent()
	if cfg == nil || cfg.FeatureFlags == nil {
		return false
	}
	return cfg.FeatureFlags[name]
}

// GetThreshold 返回业务阈值（支持默认值）
func GetThreshold(name string, def int64) int64 {
	cfg := GetCurrent()
	if cfg == nil || cfg.Thresholds == nil {
		return def
	}
	if v, ok := cfg.Thresholds[name]; ok {
		return v
	}
	return def
}

// GetMaxEntryFee 返回单局入场费上限
// 动态阈值 max_entry_fee_cents（分）优先于静态 escrow 配置；0 为不限制
func GetMaxEntryFee() float64 {
	if cents := GetThreshold("max_entry_fee_cents", 0); cents > 0 {
		return float64(cents) / 100
	}
	if cfg := GetCurrent(); cfg != nil {
		return cfg.Escrow.MaxEntryFee
	}
	return 0
}

