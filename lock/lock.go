package lock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hatlonely/customobj/errs"
)

// RegistryOptions 类型锁配置
type RegistryOptions struct {
	// 等待锁的最长时间，0 表示只受 context 控制
	Timeout time.Duration `cfg:"timeout" def:"30s"`
}

// Observer 锁等待的观测回调，用于指标统计
type Observer interface {
	ObserveLockWait(typeID int64, waited time.Duration, timedOut bool)
}

// Registry 每个类型 id 一把可重入锁
//
// mu 只保护 locks 映射本身，生成和迁移期间从不持有。重入通过 context 记录已持有的 id 实现，
// 同一调用链上再次获取同一个 id 直接成功。
type Registry struct {
	mu       sync.Mutex
	locks    map[int64]chan struct{}
	timeout  time.Duration
	observer Observer
}

func NewRegistryWithOptions(options *RegistryOptions) *Registry {
	r := &Registry{locks: map[int64]chan struct{}{}}
	if options != nil {
		r.timeout = options.Timeout
	}
	return r
}

// SetObserver 设置观测回调
func (r *Registry) SetObserver(observer Observer) {
	r.observer = observer
}

type heldKey struct{}

type heldSet map[int64]struct{}

// Held 判断当前调用链是否已经持有该类型的锁
func Held(ctx context.Context, id int64) bool {
	held, _ := ctx.Value(heldKey{}).(heldSet)
	_, ok := held[id]
	return ok
}

func (r *Registry) sem(id int64) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		r.locks[id] = ch
	}
	return ch
}

// Acquire 获取类型锁，返回携带持有信息的 context 和释放函数
//
// 释放函数可以安全地多次调用。超时返回 errs.ConcurrencyTimeoutError。
func (r *Registry) Acquire(ctx context.Context, id int64) (context.Context, func(), error) {
	if Held(ctx, id) {
		return ctx, func() {}, nil
	}

	ch := r.sem(id)
	start := time.Now()

	var timeout <-chan time.Time
	if r.timeout > 0 {
		timer := time.NewTimer(r.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ch <- struct{}{}:
	case <-timeout:
		r.observe(id, time.Since(start), true)
		return ctx, func() {}, &errs.ConcurrencyTimeoutError{TypeID: id, Waited: time.Since(start)}
	case <-ctx.Done():
		r.observe(id, time.Since(start), true)
		return ctx, func() {}, &errs.ConcurrencyTimeoutError{TypeID: id, Waited: time.Since(start)}
	}
	r.observe(id, time.Since(start), false)

	var once sync.Once
	release := func() {
		once.Do(func() { <-ch })
	}
	return withHeld(ctx, id), release, nil
}

// AcquireMany 按 id 升序获取多把锁，避免交叉等待
func (r *Registry) AcquireMany(ctx context.Context, ids ...int64) (context.Context, func(), error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var releases []func()
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	var prev int64
	for i, id := range sorted {
		if i > 0 && id == prev {
			continue
		}
		prev = id
		next, release, err := r.Acquire(ctx, id)
		if err != nil {
			releaseAll()
			return ctx, func() {}, err
		}
		ctx = next
		releases = append(releases, release)
	}
	return ctx, releaseAll, nil
}

// Len 已创建的锁数量
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

func (r *Registry) observe(id int64, waited time.Duration, timedOut bool) {
	if r.observer != nil {
		r.observer.ObserveLockWait(id, waited, timedOut)
	}
}

func withHeld(ctx context.Context, id int64) context.Context {
	parent, _ := ctx.Value(heldKey{}).(heldSet)
	held := make(heldSet, len(parent)+1)
	for k := range parent {
		held[k] = struct{}{}
	}
	held[id] = struct{}{}
	return context.WithValue(ctx, heldKey{}, held)
}
