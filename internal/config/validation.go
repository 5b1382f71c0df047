package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const supportedRemoteTypeList = "swift|disk"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if strings.TrimSpace(g.Root) == "" {
		return newFieldError("Global.Root", "不能为空")
	}
	if err := validateContainerName(g.Container); err != nil {
		return fmt.Errorf("Global.Container: %w", err)
	}
	if g.UploadTimeout.DurationValue() < 0 {
		return newFieldError("Global.UploadTimeout", "不能为负数")
	}
	if g.MaxConcurrentUploads <= 0 {
		return newFieldError("Global.MaxConcurrentUploads", "必须大于 0")
	}

	return c.Remote.validate()
}

func (r RemoteConfig) validate() error {
	switch r.Type {
	case RemoteTypeSwift:
		if (r.Username == "") != (r.APIKey == "") {
			return newFieldError(remoteField("Username/APIKey"), "必须同时提供或同时留空")
		}
		if (r.StorageURL == "") != (r.Token == "") {
			return newFieldError(remoteField("StorageURL/Token"), "必须同时提供或同时留空")
		}
		if !r.HasCredentials() && !r.HasToken() {
			return newFieldError(remoteField("Username/APIKey"), "swift 需要凭证或预置 Token")
		}
		if r.HasCredentials() {
			if err := validateEndpoint(r.AuthURL); err != nil {
				return fmt.Errorf("%s: %w", remoteField("AuthURL"), err)
			}
		}
		if r.HasToken() {
			if err := validateEndpoint(r.StorageURL); err != nil {
				return fmt.Errorf("%s: %w", remoteField("StorageURL"), err)
			}
			if r.CDNURL != "" {
				if err := validateEndpoint(r.CDNURL); err != nil {
					return fmt.Errorf("%s: %w", remoteField("CDNURL"), err)
				}
			}
		}
	case RemoteTypeDisk:
		if strings.TrimSpace(r.StoragePath) == "" {
			return newFieldError(remoteField("StoragePath"), "不能为空")
		}
		if err := validateEndpoint(r.PublicBaseURL); err != nil {
			return fmt.Errorf("%s: %w", remoteField("PublicBaseURL"), err)
		}
	default:
		return newFieldError(remoteField("Type"), "仅支持 "+supportedRemoteTypeList)
	}

	if r.Timeout.DurationValue() <= 0 {
		return newFieldError(remoteField("Timeout"), "必须大于 0")
	}
	return nil
}

func validateContainerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("容器名不能为空")
	}
	if strings.ContainsAny(name, "/?#") {
		return errors.New("容器名不允许包含 / ? #")
	}
	return nil
}

func validateEndpoint(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("地址缺少 Host: %s", raw)
	}
	return nil
}
