// Package sweeper 按 cron 表达式定期清理过期的缓存记录。
package sweeper

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/robfig/cron"

	fetcherrors "fetch-go/internal/errors"
)

// Evicter 由 cache.Store 实现
type Evicter interface {
	EvictExpired(ctx context.Context) (int, error)
}

type Sweeper struct {
	store    Evicter
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	running  atomic.Bool
	runs     atomic.Int64
	evicted  atomic.Int64
}

// New 校验 schedule 并创建清理器，schedule 使用带秒的 6 段格式或 @every 语法
func New(store Evicter, schedule string, timeout time.Duration) (*Sweeper, error) {
	if _, err := cron.Parse(schedule); err != nil {
		return nil, fetcherrors.New(fetcherrors.ErrInvalidConfig, "invalid sweep schedule "+schedule, err)
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Sweeper{
		store:    store,
		schedule: schedule,
		timeout:  timeout,
	}, nil
}

// Start 启动定时任务
func (s *Sweeper) Start() error {
	c := cron.New()
	if err := c.AddFunc(s.schedule, s.run); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	log.Printf("[Sweeper] 已启动，schedule=%s", s.schedule)
	return nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		log.Printf("[Sweeper] 清理失败: %v", err)
	}
}

// RunOnce 执行一次清理，上一次尚未结束时直接跳过
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		log.Printf("[Sweeper] 上一次清理仍在进行，跳过")
		return 0, nil
	}
	defer s.running.Store(false)

	start := time.Now()
	n, err := s.store.EvictExpired(ctx)
	s.runs.Add(1)
	s.evicted.Add(int64(n))
	if n > 0 {
		log.Printf("[Sweeper] 清理了 %d 条过期记录，耗时 %v", n, time.Since(start))
	}
	return n, err
}

// Stats 返回执行次数和累计清理数量
func (s *Sweeper) Stats() (runs, evicted int64) {
	return s.runs.Load(), s.evicted.Load()
}

// Stop 停止定时任务
func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		log.Printf("[Sweeper] 已停止")
	}
}
