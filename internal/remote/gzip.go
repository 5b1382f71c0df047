package remote

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// WithGzip 包装 Store：当上传 headers 声明 Content-Encoding: gzip 时，先把本地文件
// 压缩到临时文件再交给底层容器，保证字节与声明一致。
func WithGzip(store Store) Store {
	return gzipStore{inner: store}
}

type gzipStore struct {
	inner Store
}

func (s gzipStore) CreateContainer(ctx context.Context, spec ContainerSpec) (Container, error) {
	container, err := s.inner.CreateContainer(ctx, spec)
	if err != nil {
		return nil, err
	}
	return gzipContainer{Container: container}, nil
}

type gzipContainer struct {
	Container
}

func (c gzipContainer) AddFile(ctx context.Context, destName, localPath string, headers http.Header) (bool, error) {
	if !strings.EqualFold(headers.Get("Content-Encoding"), "gzip") {
		return c.Container.AddFile(ctx, destName, localPath, headers)
	}

	compressed, err := compressFile(localPath)
	if err != nil {
		return false, err
	}
	defer os.Remove(compressed)

	return c.Container.AddFile(ctx, destName, compressed, headers)
}

// compressFile 将 localPath 以 gzip 写入临时文件，返回临时文件路径。
func compressFile(localPath string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "cdn-gzip-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()

	zw, err := gzip.NewWriterLevel(tmp, gzip.BestCompression)
	if err == nil {
		_, err = io.Copy(zw, src)
		if closeErr := zw.Close(); err == nil {
			err = closeErr
		}
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return tmpName, nil
}
