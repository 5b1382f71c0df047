package cdn

import "sync"

// State 描述某个逻辑文件在上传缓存中的状态。
type State int

const (
	// Absent 表示从未请求，或上一次上传失败已释放槽位。
	Absent State = iota
	// Pending 表示上传进行中，同时充当互斥锁。
	Pending
	// Resolved 表示上传成功，URL 可直接使用。
	Resolved
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	default:
		return "absent"
	}
}

// MarshalText 让诊断接口输出可读状态。
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 解析 MarshalText 的输出，未知值视为 Absent。
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pending":
		*s = Pending
	case "resolved":
		*s = Resolved
	default:
		*s = Absent
	}
	return nil
}

// Entry 是缓存中的一个条目。Pending 状态下 URL 非空表示 immediate 模式写入的乐观地址。
type Entry struct {
	State State  `json:"state"`
	URL   string `json:"url,omitempty"`
	gen   uint64
}

// Servable 返回当前可以对外输出的 URL（已确认或乐观写入）。
func (e Entry) Servable() (string, bool) {
	if e.State == Absent || e.URL == "" {
		return "", false
	}
	return e.URL, true
}

// Ticket 标识一次 BeginUpload 获得的上传权；被强制上传取代后，旧 Ticket 的
// Resolve/Fail 不再生效，避免迟到的旧结果覆盖新结果。
type Ticket struct {
	Key string
	gen uint64
}

// UploadCache 维护逻辑文件名到上传状态的映射，保证同一 key 最多一个上传在途。
// 条目只会在失败时被删除，没有淘汰策略。
type UploadCache struct {
	mu      sync.Mutex
	entries map[string]Entry
	nextGen uint64
}

// NewUploadCache 创建空缓存。
func NewUploadCache() *UploadCache {
	return &UploadCache{entries: make(map[string]Entry)}
}

// Get 返回 key 的当前条目，不存在时为 Absent。
func (c *UploadCache) Get(key string) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key]
}

// BeginUpload 原子地执行 Absent → Pending；force 为 true 时无条件进入 Pending。
func (c *UploadCache) BeginUpload(key string, force bool) (Ticket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if current := c.entries[key]; current.State != Absent && !force {
		return Ticket{}, false
	}
	c.nextGen++
	c.entries[key] = Entry{State: Pending, gen: c.nextGen}
	return Ticket{Key: key, gen: c.nextGen}, true
}

// SetOptimistic 在上传完成前写入计算出的目标 URL（immediate 模式）。
func (c *UploadCache) SetOptimistic(t Ticket, url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.current(t)
	if !ok || entry.State != Pending {
		return false
	}
	entry.URL = url
	c.entries[t.Key] = entry
	return true
}

// Resolve 将条目置为 Resolved(url)。
func (c *UploadCache) Resolve(t Ticket, url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.current(t)
	if !ok {
		return false
	}
	entry.State = Resolved
	entry.URL = url
	c.entries[t.Key] = entry
	return true
}

// Fail 释放槽位回到 Absent，下次访问会重试。
func (c *UploadCache) Fail(t Ticket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.current(t); !ok {
		return false
	}
	delete(c.entries, t.Key)
	return true
}

// Snapshot 返回全部条目的副本。
func (c *UploadCache) Snapshot() map[string]Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]Entry, len(c.entries))
	for key, entry := range c.entries {
		out[key] = entry
	}
	return out
}

// Len 返回当前条目数量。
func (c *UploadCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *UploadCache) current(t Ticket) (Entry, bool) {
	entry, ok := c.entries[t.Key]
	if !ok || entry.gen != t.gen {
		return Entry{}, false
	}
	return entry, true
}
