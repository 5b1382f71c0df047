package cdn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/semaphore"

	"github.com/any-hub/cdn-hub/internal/logging"
	"github.com/any-hub/cdn-hub/internal/remote"
	"github.com/any-hub/cdn-hub/internal/watch"
)

const (
	// DefaultContainer 是未配置容器名时使用的名称。
	DefaultContainer = "connect-cdn"
	// DefaultRoot 是未配置本地根目录时使用的路径。
	DefaultRoot = "./"

	defaultMaxConcurrentUploads = 4
)

// LifecycleState 描述实例所处阶段。
type LifecycleState string

const (
	StateInitializing LifecycleState = "initializing"
	StateReady        LifecycleState = "ready"
	StateDestroyed    LifecycleState = "destroyed"
)

// Options 配置一个 CDN 实例。Store 必填，其余字段都有默认值。
type Options struct {
	// Container 远端容器名，默认 connect-cdn。
	Container string
	// Store 预先构建好的远端存储客户端。
	Store remote.Store
	// Root 本地静态资源根目录，默认 ./，会规范为恰好一个结尾分隔符。
	Root string
	// Debug 为 false 时丢弃核心日志。
	Debug  bool
	Logger *logrus.Logger
	// FileSystem 默认 OSFileSystem。
	FileSystem FileSystem
	// Watcher 默认基于 fsnotify 创建，Destroy 时一并关闭。
	Watcher Watcher
	// Headers 上传时附带的 headers，默认允许跨域并声明 gzip 编码。
	Headers http.Header
	// UploadTimeout 大于 0 时限制单次流水线耗时，超时视为失败。
	UploadTimeout time.Duration
	// MaxConcurrentUploads 同时进行的流水线上限，默认 4。
	MaxConcurrentUploads int
	Metrics              *Metrics
}

// DefaultHeaders 返回默认的上传 headers。Content-Encoding 只是声明，
// 字节是否已压缩由调用方（或 remote.WithGzip）负责。
func DefaultHeaders() http.Header {
	h := http.Header{}
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Content-Encoding", "gzip")
	return h
}

// InitCallback 在容器就绪或初始化失败时被调用。
type InitCallback func(c *CDN, err error)

// CDN 持有上传缓存、初始化闸门和文件监听表，生命周期与中间件实例一致。
type CDN struct {
	containerName string
	root          string
	logger        *logrus.Logger
	store         remote.Store
	fs            FileSystem
	watcher       Watcher
	ownedWatcher  *watch.Watcher
	headers       http.Header
	uploadTimeout time.Duration
	metrics       *Metrics
	sem           *semaphore.Weighted

	cache *UploadCache
	gate  *InitGate
	wg    conc.WaitGroup

	mu        sync.RWMutex
	state     LifecycleState
	started   bool
	container remote.Container
	ready     chan struct{}

	watchMu   sync.Mutex
	watching  map[string]map[string]bool
	destroyed bool
}

// New 校验并补齐 Options，返回处于 initializing 状态的实例；需要调用 Init 创建容器。
func New(opts Options) (*CDN, error) {
	if opts.Store == nil {
		return nil, errors.New("cdn: remote store is required")
	}
	if opts.Container == "" {
		opts.Container = DefaultContainer
	}
	if opts.MaxConcurrentUploads <= 0 {
		opts.MaxConcurrentUploads = defaultMaxConcurrentUploads
	}
	if opts.UploadTimeout < 0 {
		return nil, fmt.Errorf("cdn: invalid upload timeout %s", opts.UploadTimeout)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if !opts.Debug {
		logger = logging.Discard()
	}

	headers := opts.Headers
	if headers == nil {
		headers = DefaultHeaders()
	}

	c := &CDN{
		containerName: opts.Container,
		root:          NormalizeRoot(opts.Root),
		logger:        logger,
		store:         opts.Store,
		fs:            opts.FileSystem,
		watcher:       opts.Watcher,
		headers:       headers.Clone(),
		uploadTimeout: opts.UploadTimeout,
		metrics:       opts.Metrics,
		sem:           semaphore.NewWeighted(int64(opts.MaxConcurrentUploads)),
		cache:         NewUploadCache(),
		gate:          &InitGate{},
		state:         StateInitializing,
		ready:         make(chan struct{}),
		watching:      make(map[string]map[string]bool),
	}
	if c.fs == nil {
		c.fs = OSFileSystem{}
	}
	if c.watcher == nil {
		w, err := watch.New(logger)
		if err != nil {
			return nil, err
		}
		c.watcher = w
		c.ownedWatcher = w
	}
	return c, nil
}

// Init 异步创建/定位远端容器。成功后打开闸门重放排队请求，再调用 callback。
// 失败时错误交给 callback；未提供 callback 则 panic，由宿主进程处理。
func (c *CDN) Init(ctx context.Context, callback InitCallback) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		if callback != nil {
			callback(c, ErrAlreadyInitialized)
		}
		return
	}
	c.started = true
	c.mu.Unlock()

	go func() {
		spec := remote.ContainerSpec{Name: c.containerName, CDNEnabled: true}
		container, err := c.store.CreateContainer(ctx, spec)
		if err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrContainerInit, c.containerName, err)
			c.logger.WithError(err).WithFields(logging.ContainerFields("init", c.containerName, "")).Error("container init failed")
			if callback != nil {
				callback(c, err)
				return
			}
			panic(err)
		}

		c.mu.Lock()
		c.container = container
		if c.state == StateInitializing {
			c.state = StateReady
		}
		c.mu.Unlock()
		close(c.ready)

		c.logger.WithFields(logging.ContainerFields("init", container.Name(), container.CDNURI())).
			WithField("queued", c.gate.Pending()).
			Info("container ready")
		c.gate.Open()

		if callback != nil {
			callback(c, nil)
		}
	}()
}

// Ready 在容器就绪后关闭。
func (c *CDN) Ready() <-chan struct{} {
	return c.ready
}

// State 返回当前生命周期阶段。
func (c *CDN) State() LifecycleState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// CDN 返回 filename 的远端 URL；尚未上传完成时返回原始参数，并在后台触发上传。
func (c *CDN) CDN(filename string, immediate bool) string {
	key := NormalizeKey(filename)
	c.Store(key, immediate, false)

	if url, ok := c.cache.Get(key).Servable(); ok {
		c.metrics.observeLookup(true)
		return url
	}
	c.metrics.observeLookup(false)
	return filename
}

// Store 触发 key 的上传流水线，不等待结果。非强制时，已在途或已完成的 key 直接忽略；
// 容器未就绪时请求进入闸门排队。
func (c *CDN) Store(key string, immediate, force bool) {
	if !force && c.cache.Get(key).State != Absent {
		return
	}
	c.gate.Enqueue(func() { c.dispatch(key, immediate, force) })
}

func (c *CDN) dispatch(key string, immediate, force bool) {
	ticket, ok := c.cache.BeginUpload(key, force)
	if !ok {
		return
	}
	r := &run{key: key, immediate: immediate, ticket: ticket}
	c.wg.Go(func() { c.execute(r) })
}

// Wait 阻塞直到所有已启动的流水线结束。
func (c *CDN) Wait() {
	c.wg.Wait()
}

// LocalPath 返回逻辑文件名在 Root 下对应的本地路径，后缀会被去掉。
func (c *CDN) LocalPath(filename string) (string, error) {
	name, _ := ParseName(NormalizeKey(filename))
	return resolveLocal(c.root, name)
}

// Lookup 只读查询缓存条目，不触发上传。
func (c *CDN) Lookup(filename string) Entry {
	return c.cache.Get(NormalizeKey(filename))
}

// Destroy 注销所有文件监听，单个失败只记录日志并继续；缓存保持不变，
// 在途上传不会被取消。
func (c *CDN) Destroy() error {
	c.watchMu.Lock()
	paths := make([]string, 0, len(c.watching))
	for p := range c.watching {
		paths = append(paths, p)
	}
	c.watching = make(map[string]map[string]bool)
	c.destroyed = true
	c.watchMu.Unlock()
	sort.Strings(paths)

	var errs []error
	for _, p := range paths {
		if err := c.watcher.Unwatch(p); err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrWatchUnregister, p, err)
			c.logger.WithError(err).WithFields(logrus.Fields{"action": "destroy", "path": p}).Warn("unwatch failed")
			errs = append(errs, err)
		}
	}
	if c.ownedWatcher != nil {
		if err := c.ownedWatcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	c.mu.Lock()
	c.state = StateDestroyed
	c.mu.Unlock()
	return errors.Join(errs...)
}

// Status 是诊断接口使用的实例快照。
type Status struct {
	State     LifecycleState   `json:"state"`
	Container string           `json:"container"`
	CDNURI    string           `json:"cdn_uri,omitempty"`
	Root      string           `json:"root"`
	Queued    int              `json:"queued"`
	Watching  []string         `json:"watching"`
	Entries   map[string]Entry `json:"entries"`
}

// Status 返回当前实例快照。
func (c *CDN) Status() Status {
	c.mu.RLock()
	status := Status{State: c.state, Container: c.containerName, Root: c.root}
	if c.container != nil {
		status.CDNURI = c.container.CDNURI()
	}
	c.mu.RUnlock()

	status.Queued = c.gate.Pending()
	status.Entries = c.cache.Snapshot()

	c.watchMu.Lock()
	status.Watching = make([]string, 0, len(c.watching))
	for p := range c.watching {
		status.Watching = append(status.Watching, p)
	}
	c.watchMu.Unlock()
	sort.Strings(status.Watching)
	return status
}

func (c *CDN) currentContainer() remote.Container {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.container
}

// ensureWatch 为本地路径注册一次变更监听；同一路径上的多个逻辑 key 共享监听，
// 变更时全部强制重新上传。注册失败不影响本次上传，下次请求会再尝试。
func (c *CDN) ensureWatch(key, localPath string, immediate bool) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()

	if c.destroyed {
		return
	}
	if keys, ok := c.watching[localPath]; ok {
		keys[key] = immediate
		return
	}

	err := c.watcher.Watch(localPath, func() { c.onChange(localPath) })
	if err != nil && !errors.Is(err, watch.ErrAlreadyWatching) {
		c.logger.WithError(err).WithFields(logging.AssetFields("watch", key, localPath)).Warn("watch failed")
		return
	}
	c.watching[localPath] = map[string]bool{key: immediate}
}

func (c *CDN) onChange(localPath string) {
	c.watchMu.Lock()
	keys := make(map[string]bool, len(c.watching[localPath]))
	for key, immediate := range c.watching[localPath] {
		keys[key] = immediate
	}
	c.watchMu.Unlock()

	for key, immediate := range keys {
		c.logger.WithFields(logging.AssetFields("refresh", key, localPath)).Debug("source changed")
		c.Store(key, immediate, true)
	}
}
