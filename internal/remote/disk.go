package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// headersSuffix 是对象旁路文件的后缀，保存上传时附带的 headers。
const headersSuffix = ".headers"

// DiskStore 以 basePath/<container>/<destName> 布局把容器落到本地目录，
// 通过 PublicBaseURL/<container> 对外提供访问。
type DiskStore struct {
	basePath      string
	publicBaseURL string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// NewDisk 以 basePath 为根目录构建磁盘容器存储，整站复用一份实例。
func NewDisk(basePath, publicBaseURL string) (*DiskStore, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}
	if publicBaseURL == "" {
		return nil, errors.New("public base url required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &DiskStore{
		basePath:      abs,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		locks:         make(map[string]*entryLock),
	}, nil
}

// BasePath 返回容器根目录，供 HTTP 层挂载静态源站。
func (s *DiskStore) BasePath() string {
	return s.basePath
}

// CreateContainer 创建容器目录；目录已存在时直接复用。
func (s *DiskStore) CreateContainer(ctx context.Context, spec ContainerSpec) (Container, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validContainer(spec.Name) {
		return nil, fmt.Errorf("invalid container name %q", spec.Name)
	}

	dir := filepath.Join(s.basePath, spec.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	return &diskContainer{
		store:  s,
		name:   spec.Name,
		dir:    dir,
		cdnURI: s.publicBaseURL + "/" + escapeObjectPath(spec.Name),
	}, nil
}

type diskContainer struct {
	store  *DiskStore
	name   string
	dir    string
	cdnURI string
}

func (c *diskContainer) Name() string   { return c.name }
func (c *diskContainer) CDNURI() string { return c.cdnURI }

// AddFile 通过临时文件 + rename 原子写入对象，并把 headers 写入旁路文件。
func (c *diskContainer) AddFile(ctx context.Context, destName, localPath string, headers http.Header) (bool, error) {
	objectPath, err := c.objectPath(destName)
	if err != nil {
		return false, err
	}

	unlock := c.store.lockEntry(c.name + "::" + destName)
	defer unlock()

	src, err := os.Open(localPath)
	if err != nil {
		return false, err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
		return false, err
	}
	if err := writeAtomic(ctx, objectPath, src); err != nil {
		return false, err
	}

	meta := headers.Clone()
	if meta == nil {
		meta = http.Header{}
	}
	if meta.Get("Content-Type") == "" {
		meta.Set("Content-Type", ContentType(destName))
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return false, err
	}
	if err := writeAtomic(ctx, objectPath+headersSuffix, strings.NewReader(string(encoded))); err != nil {
		return false, err
	}
	return true, nil
}

// ReadHeaders 读取对象上传时保存的 headers，对象不存在时返回 fs.ErrNotExist。
func (s *DiskStore) ReadHeaders(container, destName string) (http.Header, error) {
	objectPath, err := s.resolveObject(container, destName)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(objectPath + headersSuffix)
	if err != nil {
		return nil, err
	}
	headers := http.Header{}
	if err := json.Unmarshal(raw, &headers); err != nil {
		return nil, err
	}
	return headers, nil
}

// OpenObject 打开已上传的对象及其 headers，供 HTTP 层充当源站。
// 调用方负责关闭返回的文件。
func (s *DiskStore) OpenObject(container, destName string) (*os.File, http.Header, error) {
	headers, err := s.ReadHeaders(container, destName)
	if err != nil {
		return nil, nil, err
	}
	objectPath, err := s.resolveObject(container, destName)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(objectPath)
	if err != nil {
		return nil, nil, err
	}
	return file, headers, nil
}

func (s *DiskStore) resolveObject(container, destName string) (string, error) {
	if !validContainer(container) {
		return "", fmt.Errorf("invalid container name %q", container)
	}
	c := &diskContainer{store: s, name: container, dir: filepath.Join(s.basePath, container)}
	return c.objectPath(destName)
}

func validContainer(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func (c *diskContainer) objectPath(destName string) (string, error) {
	rel := path.Clean("/" + destName)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" || strings.HasSuffix(rel, headersSuffix) {
		return "", fmt.Errorf("invalid object name %q", destName)
	}
	objectPath := filepath.Join(c.dir, filepath.FromSlash(rel))
	if !strings.HasPrefix(objectPath, c.dir+string(filepath.Separator)) {
		return "", errors.New("invalid object path")
	}
	return objectPath, nil
}

func (s *DiskStore) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func writeAtomic(ctx context.Context, target string, body io.Reader) error {
	tempFile, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}
	if err := os.Rename(tempName, target); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
