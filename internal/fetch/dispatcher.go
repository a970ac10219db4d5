package fetch

import (
	"bytes"
	"log"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// Dispatcher 在单个 goroutine 上依次执行回调，回调之间不会并发。
// 网络请求在其他 goroutine 完成后，把结果回调投递到这里。
//
// 队列不设上限，Post 永远不会阻塞，回调里再次投递（比如缓存命中的 Request）
// 不会卡住调度 goroutine。
type Dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	closed  bool
	done    chan struct{}
	goid    atomic.Uint64 // 调度 goroutine 的 id
}

// NewDispatcher 创建并启动回调调度器，queueSize 是队列的初始容量
func NewDispatcher(queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		pending: make([]func(), 0, queueSize),
		done:    make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)

	started := make(chan struct{})
	go d.run(started)
	<-started
	return d
}

func (d *Dispatcher) run(started chan<- struct{}) {
	defer close(d.done)
	d.goid.Store(goroutineID())
	close(started)

	for {
		d.mu.Lock()
		for len(d.pending) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.pending) == 0 {
			d.mu.Unlock()
			return
		}
		batch := d.pending
		d.pending = nil
		d.mu.Unlock()

		for _, fn := range batch {
			d.invoke(fn)
		}
	}
}

// invoke 回调 panic 不能让调度器退出
func (d *Dispatcher) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Fetch] callback panic: %v", r)
		}
	}()
	fn()
}

// Post 投递回调，调度器已关闭时返回 false
func (d *Dispatcher) Post(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.pending = append(d.pending, fn)
	d.cond.Signal()
	return true
}

// Close 停止接收新回调，执行完队列中剩余的回调后返回。
// 在回调内部调用时不等待，剩余回调在当前回调返回后继续执行。
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Signal()
	d.mu.Unlock()

	if d.onDispatcher() {
		return
	}
	<-d.done
}

func (d *Dispatcher) onDispatcher() bool {
	return goroutineID() == d.goid.Load()
}

// goroutineID 从栈头 "goroutine N [...]" 中解析当前 goroutine id
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
