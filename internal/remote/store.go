package remote

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/cdn-hub/internal/config"
)

// ContainerSpec 描述需要创建或定位的远端容器。
type ContainerSpec struct {
	Name       string
	CDNEnabled bool
}

// Store 负责创建/定位远端容器；容器已存在时应直接返回。
type Store interface {
	CreateContainer(ctx context.Context, spec ContainerSpec) (Container, error)
}

// Container 是一个已就绪的远端容器。
type Container interface {
	// Name 返回容器名。
	Name() string
	// CDNURI 返回容器对外的公共基础地址，不带结尾斜杠。
	CDNURI() string
	// AddFile 将 localPath 的内容上传为 destName，附带 headers。
	// uploaded 为 false 且 err 为 nil 表示远端没有确认写入。
	AddFile(ctx context.Context, destName, localPath string, headers http.Header) (uploaded bool, err error)
}

// StatusError 记录远端返回的非预期 HTTP 状态码。
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
}

// ErrUnsupportedType 表示配置了未知的远端类型。
var ErrUnsupportedType = errors.New("unsupported remote type")

// New 根据 Remote 配置构建 Store：swift 复用共享 http.Client，disk 直接落盘。
func New(cfg config.RemoteConfig, client *http.Client, logger *logrus.Logger) (Store, error) {
	switch cfg.Type {
	case config.RemoteTypeSwift:
		return NewSwift(SwiftOptions{
			Client:     client,
			Logger:     logger,
			AuthURL:    cfg.AuthURL,
			Username:   cfg.Username,
			APIKey:     cfg.APIKey,
			StorageURL: cfg.StorageURL,
			CDNURL:     cfg.CDNURL,
			Token:      cfg.Token,
		})
	case config.RemoteTypeDisk:
		return NewDisk(cfg.StoragePath, cfg.PublicBaseURL)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
}

// 字体类型在部分系统的 mime 表中缺失，统一补齐。
var contentTypeOverrides = map[string]string{
	".ttf":  "application/x-font-ttf",
	".woff": "application/x-woff",
}

// ContentType 按扩展名推断对象的 Content-Type，未知类型回退为 octet-stream。
func ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := contentTypeOverrides[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// escapeObjectPath 对对象名逐段转义，保留 / 作为层级分隔。
func escapeObjectPath(name string) string {
	segments := strings.Split(name, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
