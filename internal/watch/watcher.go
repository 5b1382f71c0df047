// Package watch notifies callers when individual local files change.
package watch

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const defaultDebounce = 100 * time.Millisecond

var (
	// ErrAlreadyWatching 表示该路径已经注册过回调。
	ErrAlreadyWatching = errors.New("watch: path already watched")
	// ErrNotWatching 表示该路径没有注册过回调。
	ErrNotWatching = errors.New("watch: path not watched")
	// ErrClosed 表示 Watcher 已关闭。
	ErrClosed = errors.New("watch: watcher closed")
)

// Option 调整 Watcher 行为。
type Option func(*Watcher)

// WithDebounce 设置同一文件连续事件的合并窗口。
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher 监听文件所在目录并按文件路径过滤事件，这样编辑器"写临时文件再 rename"
// 的保存方式也能被捕获。同一目录的多个文件共享一次目录注册。
type Watcher struct {
	logger   *logrus.Logger
	debounce time.Duration
	fsw      *fsnotify.Watcher

	mu     sync.Mutex
	files  map[string]func()
	dirs   map[string]int
	timers map[string]*time.Timer
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

// New 创建 Watcher 并启动事件循环。
func New(logger *logrus.Logger, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	w := &Watcher{
		logger:   logger,
		debounce: defaultDebounce,
		fsw:      fsw,
		files:    make(map[string]func()),
		dirs:     make(map[string]int),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.loop()
	return w, nil
}

// Watch 为 path 注册变更回调，每个路径只允许注册一次。
func (w *Watcher) Watch(path string, onChange func()) error {
	if onChange == nil {
		return errors.New("watch: callback required")
	}
	abs, err := normalize(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if _, exists := w.files[abs]; exists {
		return ErrAlreadyWatching
	}

	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[abs] = onChange
	return nil
}

// Unwatch 取消 path 的回调；目录上最后一个文件移除时同时移除目录监听。
func (w *Watcher) Unwatch(path string) error {
	abs, err := normalize(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if _, exists := w.files[abs]; !exists {
		return fmt.Errorf("%w: %s", ErrNotWatching, abs)
	}
	delete(w.files, abs)
	if timer := w.timers[abs]; timer != nil {
		timer.Stop()
		delete(w.timers, abs)
	}

	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		if err := w.fsw.Remove(dir); err != nil {
			return fmt.Errorf("unwatch %s: %w", dir, err)
		}
	}
	return nil
}

// Watching 返回当前注册的文件数量。
func (w *Watcher) Watching() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.files)
}

// Close 停止事件循环并释放 fsnotify 资源，可重复调用。
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		for key, timer := range w.timers {
			timer.Stop()
			delete(w.timers, key)
		}
		w.mu.Unlock()
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).WithField("action", "watch").Warn("watcher error")
		}
	}
}

// handleEvent 只关心内容或时间戳可能变化的事件；Remove 之后的重新创建会以 Create 送达。
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Name == "" {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Chmod) {
		return
	}
	name := filepath.Clean(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if _, ok := w.files[name]; !ok {
		return
	}
	if timer := w.timers[name]; timer != nil {
		timer.Stop()
	}
	w.timers[name] = time.AfterFunc(w.debounce, func() { w.fire(name) })
}

func (w *Watcher) fire(name string) {
	w.mu.Lock()
	delete(w.timers, name)
	callback := w.files[name]
	closed := w.closed
	w.mu.Unlock()

	if closed || callback == nil {
		return
	}
	w.logger.WithFields(logrus.Fields{"action": "watch", "path": name}).Debug("file changed")
	callback()
}

func normalize(path string) (string, error) {
	if path == "" {
		return "", errors.New("watch: path required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}
