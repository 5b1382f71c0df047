package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyRemoteDefaults(&cfg.Remote)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Remote.Type == RemoteTypeDisk {
		absStorage, err := filepath.Abs(cfg.Remote.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析容器目录: %w", err)
		}
		cfg.Remote.StoragePath = absStorage
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("Debug", false)
	v.SetDefault("Root", "./")
	v.SetDefault("Container", "connect-cdn")
	v.SetDefault("Immediate", false)
	v.SetDefault("UploadTimeout", "0s")
	v.SetDefault("MaxConcurrentUploads", 4)
	v.SetDefault("CompressUploads", false)
	v.SetDefault("Remote.Type", RemoteTypeSwift)
	v.SetDefault("Remote.StoragePath", "./storage")
	v.SetDefault("Remote.Timeout", "30s")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if strings.TrimSpace(g.Root) == "" {
		g.Root = "./"
	}
	if strings.TrimSpace(g.Container) == "" {
		g.Container = "connect-cdn"
	}
	if g.MaxConcurrentUploads == 0 {
		g.MaxConcurrentUploads = 4
	}
}

func applyRemoteDefaults(r *RemoteConfig) {
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	if r.Type == "" {
		r.Type = RemoteTypeSwift
	}
	if r.Timeout.DurationValue() == 0 {
		r.Timeout = Duration(30 * time.Second)
	}
	if r.Type == RemoteTypeDisk && r.StoragePath == "" {
		r.StoragePath = "./storage"
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
