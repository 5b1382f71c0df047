package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 远端存储类型。
const (
	RemoteTypeSwift = "swift"
	RemoteTypeDisk  = "disk"
)

// GlobalConfig 描述服务与 CDN 中间件的全局行为。
type GlobalConfig struct {
	ListenPort           int      `mapstructure:"ListenPort"`
	LogLevel             string   `mapstructure:"LogLevel"`
	LogFilePath          string   `mapstructure:"LogFilePath"`
	LogMaxSize           int      `mapstructure:"LogMaxSize"`
	LogMaxBackups        int      `mapstructure:"LogMaxBackups"`
	LogCompress          bool     `mapstructure:"LogCompress"`
	Debug                bool     `mapstructure:"Debug"`
	Root                 string   `mapstructure:"Root"`
	Container            string   `mapstructure:"Container"`
	Immediate            bool     `mapstructure:"Immediate"`
	UploadTimeout        Duration `mapstructure:"UploadTimeout"`
	MaxConcurrentUploads int      `mapstructure:"MaxConcurrentUploads"`
	CompressUploads      bool     `mapstructure:"CompressUploads"`
}

// RemoteConfig 决定如何连接远端对象存储：
// swift 既可以提供 AuthURL+Username+APIKey 现场鉴权，也可以直接给出 StorageURL+Token；
// disk 把容器落到 StoragePath 下，并通过 PublicBaseURL 对外暴露。
type RemoteConfig struct {
	Type          string   `mapstructure:"Type"`
	AuthURL       string   `mapstructure:"AuthURL"`
	Username      string   `mapstructure:"Username"`
	APIKey        string   `mapstructure:"APIKey"`
	StorageURL    string   `mapstructure:"StorageURL"`
	CDNURL        string   `mapstructure:"CDNURL"`
	Token         string   `mapstructure:"Token"`
	StoragePath   string   `mapstructure:"StoragePath"`
	PublicBaseURL string   `mapstructure:"PublicBaseURL"`
	Timeout       Duration `mapstructure:"Timeout"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Remote RemoteConfig `mapstructure:"Remote"`
}

// HasCredentials 表示是否配置了完整的 Username/APIKey。
func (r RemoteConfig) HasCredentials() bool {
	return r.Username != "" && r.APIKey != ""
}

// HasToken 表示是否直接提供了预鉴权的存储端点。
func (r RemoteConfig) HasToken() bool {
	return r.StorageURL != "" && r.Token != ""
}

// AuthMode 输出 `credentials`、`token` 或 `local`，供日志字段使用。
func (r RemoteConfig) AuthMode() string {
	switch {
	case r.Type == RemoteTypeDisk:
		return "local"
	case r.HasToken():
		return "token"
	default:
		return "credentials"
	}
}
