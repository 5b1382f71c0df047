package cdn

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/cdn-hub/internal/remote"
)

type fakeFileInfo struct {
	name    string
	modTime time.Time
	dir     bool
}

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return 1 }
func (f fakeFileInfo) ModTime() time.Time { return f.modTime }
func (f fakeFileInfo) IsDir() bool        { return f.dir }
func (f fakeFileInfo) Sys() any           { return nil }
func (f fakeFileInfo) Mode() fs.FileMode {
	if f.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}

// fakeFS 以内存表模拟本地文件，并统计 Stat 次数。
type fakeFS struct {
	mu    sync.Mutex
	files map[string]fakeFileInfo
	stats map[string]int
}

func newFakeFS() *fakeFS {
	return &fakeFS{files: make(map[string]fakeFileInfo), stats: make(map[string]int)}
}

func (f *fakeFS) put(path string, modMillis int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = fakeFileInfo{name: path, modTime: time.UnixMilli(modMillis)}
}

func (f *fakeFS) putDir(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = fakeFileInfo{name: path, dir: true}
}

func (f *fakeFS) statCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats[path]
}

func (f *fakeFS) Stat(name string) (fs.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[name]++
	info, ok := f.files[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return info, nil
}

type upload struct {
	destName  string
	localPath string
	headers   http.Header
}

// fakeContainer 记录上传调用；block 非空时每次上传都等待 block 可读。
type fakeContainer struct {
	mu       sync.Mutex
	uploads  []upload
	started  chan string
	block    chan struct{}
	err      error
	rejected bool
	panicMsg string
	waitCtx  bool
}

func newFakeContainer() *fakeContainer {
	return &fakeContainer{started: make(chan string, 64)}
}

func (c *fakeContainer) Name() string   { return "connect-cdn" }
func (c *fakeContainer) CDNURI() string { return "https://cdn.example" }

func (c *fakeContainer) AddFile(ctx context.Context, destName, localPath string, headers http.Header) (bool, error) {
	c.mu.Lock()
	c.uploads = append(c.uploads, upload{destName: destName, localPath: localPath, headers: headers})
	block, err, rejected, panicMsg, waitCtx := c.block, c.err, c.rejected, c.panicMsg, c.waitCtx
	c.mu.Unlock()

	c.started <- destName
	if panicMsg != "" {
		panic(panicMsg)
	}
	if waitCtx {
		<-ctx.Done()
		return false, ctx.Err()
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return false, err
	}
	return !rejected, nil
}

func (c *fakeContainer) uploadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.uploads)
}

func (c *fakeContainer) set(fn func(*fakeContainer)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

// fakeStore 在 release 关闭前阻塞 CreateContainer，便于测试初始化前的排队。
type fakeStore struct {
	container *fakeContainer
	release   chan struct{}
	err       error
	specs     []remote.ContainerSpec
	mu        sync.Mutex
}

func (s *fakeStore) CreateContainer(ctx context.Context, spec remote.ContainerSpec) (remote.Container, error) {
	s.mu.Lock()
	s.specs = append(s.specs, spec)
	s.mu.Unlock()
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.container, nil
}

// fakeWatcher 保存回调，由测试手动触发。
type fakeWatcher struct {
	mu         sync.Mutex
	callbacks  map[string]func()
	watchCalls int
	unwatchErr map[string]error
	unwatched  []string
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{callbacks: make(map[string]func()), unwatchErr: make(map[string]error)}
}

func (w *fakeWatcher) Watch(path string, onChange func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watchCalls++
	if _, ok := w.callbacks[path]; ok {
		return errors.New("duplicate watch")
	}
	w.callbacks[path] = onChange
	return nil
}

func (w *fakeWatcher) Unwatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unwatched = append(w.unwatched, path)
	delete(w.callbacks, path)
	return w.unwatchErr[path]
}

func (w *fakeWatcher) fire(t *testing.T, path string) {
	t.Helper()
	w.mu.Lock()
	callback := w.callbacks[path]
	w.mu.Unlock()
	if callback == nil {
		t.Fatalf("no watch registered for %s", path)
	}
	callback()
}

type harness struct {
	cdn       *CDN
	fs        *fakeFS
	store     *fakeStore
	container *fakeContainer
	watcher   *fakeWatcher
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		fs:        newFakeFS(),
		container: newFakeContainer(),
		watcher:   newFakeWatcher(),
	}
	h.store = &fakeStore{container: h.container}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	opts := Options{
		Store:      h.store,
		Root:       "/srv",
		Logger:     logger,
		Debug:      true,
		FileSystem: h.fs,
		Watcher:    h.watcher,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("new cdn: %v", err)
	}
	h.cdn = c
	t.Cleanup(func() {
		h.container.set(func(fc *fakeContainer) {
			if fc.block != nil {
				select {
				case <-fc.block:
				default:
					close(fc.block)
				}
			}
		})
		c.Wait()
	})
	return h
}

// initReady 调用 Init 并等待回调完成（此时排队请求已全部派发）。
func (h *harness) initReady(t *testing.T) {
	t.Helper()
	done := make(chan error, 1)
	h.cdn.Init(context.Background(), func(_ *CDN, err error) { done <- err })
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("init failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("init did not complete")
	}
}
