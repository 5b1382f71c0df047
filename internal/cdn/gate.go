package cdn

import "sync"

// InitGate 在远端容器就绪前缓冲请求，就绪后按提交顺序重放一次。
// 打开之后的请求直接执行，可能早于仍在重放中的排队请求。
type InitGate struct {
	mu    sync.Mutex
	ready bool
	queue []func()
}

// Enqueue 未就绪时排队，已就绪时立即执行 fn。
func (g *InitGate) Enqueue(fn func()) {
	g.mu.Lock()
	if g.ready {
		g.mu.Unlock()
		fn()
		return
	}
	g.queue = append(g.queue, fn)
	g.mu.Unlock()
}

// Open 标记就绪并按 FIFO 重放队列；重复调用返回 false 且不做任何事。
func (g *InitGate) Open() bool {
	g.mu.Lock()
	if g.ready {
		g.mu.Unlock()
		return false
	}
	g.ready = true
	queued := g.queue
	g.queue = nil
	g.mu.Unlock()

	for _, fn := range queued {
		fn()
	}
	return true
}

// Ready 报告闸门是否已经打开。
func (g *InitGate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// Pending 返回排队中的请求数。
func (g *InitGate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}
