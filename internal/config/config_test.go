package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.Container != "assets" {
		t.Fatalf("Container 应被保留，得到 %s", cfg.Global.Container)
	}
	if cfg.Global.MaxConcurrentUploads != 4 {
		t.Fatalf("MaxConcurrentUploads 应自动填充默认值，得到 %d", cfg.Global.MaxConcurrentUploads)
	}
	if cfg.Global.UploadTimeout.DurationValue() != 2*time.Minute {
		t.Fatalf("UploadTimeout 解析错误: %s", cfg.Global.UploadTimeout.DurationValue())
	}
	if cfg.Remote.Timeout.DurationValue() != 30*time.Second {
		t.Fatalf("Remote.Timeout 应默认 30s")
	}
	if cfg.Remote.AuthMode() != "credentials" {
		t.Fatalf("预期 credentials 模式，得到 %s", cfg.Remote.AuthMode())
	}
}

func TestLoadDiskRemote(t *testing.T) {
	cfg, err := Load(testConfigPath(t, "disk.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.Container != "connect-cdn" {
		t.Fatalf("Container 默认值应为 connect-cdn，得到 %s", cfg.Global.Container)
	}
	if !cfg.Global.Debug || !cfg.Global.CompressUploads {
		t.Fatalf("Debug/CompressUploads 应被解析")
	}
	if cfg.Remote.AuthMode() != "local" {
		t.Fatalf("disk 模式应输出 local")
	}
	if cfg.Remote.StoragePath == "./storage" {
		t.Fatalf("StoragePath 应被转换为绝对路径")
	}
}

func TestValidateRejectsHalfCredentials(t *testing.T) {
	cfgPath := testConfigPath(t, "missing.toml")

	_, err := Load(cfgPath)
	if err == nil {
		t.Fatalf("不合法的配置应返回错误")
	}
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "Remote.Username/APIKey" {
		t.Fatalf("应返回 Username/APIKey 字段错误，得到 %v", err)
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateContainerName(t *testing.T) {
	testCases := []struct {
		name      string
		container string
		shouldErr bool
	}{
		{"plain", "connect-cdn", false},
		{"empty", "", true},
		{"slash", "a/b", true},
		{"query", "a?b", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Global.Container = tc.container
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for container %q", tc.container)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for container %q: %v", tc.container, err)
			}
		})
	}
}

func TestRemoteTypeValidation(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(*RemoteConfig)
		shouldErr bool
	}{
		{"swift credentials", func(*RemoteConfig) {}, false},
		{"swift token", func(r *RemoteConfig) {
			r.Username, r.APIKey, r.AuthURL = "", "", ""
			r.StorageURL, r.Token = "https://storage.example/v1/AUTH_x", "tok"
		}, false},
		{"swift nothing", func(r *RemoteConfig) {
			r.Username, r.APIKey = "", ""
		}, true},
		{"swift bad auth url", func(r *RemoteConfig) { r.AuthURL = "ftp://auth" }, true},
		{"disk", func(r *RemoteConfig) {
			r.Type = RemoteTypeDisk
			r.StoragePath = "./storage"
			r.PublicBaseURL = "http://localhost:5000/-/origin"
		}, false},
		{"disk without public url", func(r *RemoteConfig) {
			r.Type = RemoteTypeDisk
			r.StoragePath = "./storage"
		}, true},
		{"unsupported", func(r *RemoteConfig) { r.Type = "s3" }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg.Remote)
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:           5000,
			Root:                 "./public",
			Container:            "connect-cdn",
			MaxConcurrentUploads: 1,
		},
		Remote: RemoteConfig{
			Type:     RemoteTypeSwift,
			AuthURL:  "https://auth.example/v1.0",
			Username: "user",
			APIKey:   "key",
			Timeout:  Duration(time.Second),
		},
	}
}
