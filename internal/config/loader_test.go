package config

import "testing"

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
UploadTimeout = "boom"

[Remote]
Type = "disk"
PublicBaseURL = "http://localhost:5000/-/origin"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsSecondsDuration(t *testing.T) {
	cfg := `
UploadTimeout = 45

[Remote]
Type = "disk"
PublicBaseURL = "http://localhost:5000/-/origin"
Timeout = "1m"
`
	loaded, err := Load(writeTempConfig(t, cfg))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if got := loaded.Global.UploadTimeout.DurationValue().Seconds(); got != 45 {
		t.Fatalf("整数秒应被解析为 45s，得到 %v", got)
	}
	if got := loaded.Remote.Timeout.DurationValue().Minutes(); got != 1 {
		t.Fatalf("Remote.Timeout 应为 1m，得到 %v", got)
	}
}
