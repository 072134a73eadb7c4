package lock

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

// newHeldRedLock 构造一个已持有n把锁的RedLock，不连接真实Redis节点，
// 只用于验证锁簿记的并发安全
func newHeldRedLock(n int) *RedLock {
	r := &RedLock{
		ctx:   context.Background(),
		locks: make(map[string]string),
	}
	for i := 0; i < n; i++ {
		r.locks[AppendLockName(int64(i+1))] = fmt.Sprintf("token-%d", i)
	}
	return r
}

// 不同投票活动的追加会在各自的锁名上并发进出，
// 锁簿记必须能承受多个goroutine同时释放互不相干的锁
func TestRedLockConcurrentReleaseDistinctNames(t *testing.T) {
	const n = 300
	r := newHeldRedLock(n)

	var wg sync.WaitGroup
	for part := 0; part < 3; part++ {
		wg.Add(1)
		go func(part int) {
			defer wg.Done()
			for i := part * n / 3; i < (part+1)*n/3; i++ {
				if err := r.ReleaseLock(AppendLockName(int64(i + 1))); err != nil {
					t.Errorf("释放锁 %d 失败: %v", i+1, err)
				}
			}
		}(part)
	}
	wg.Wait()

	r.mu.Lock()
	remaining := len(r.locks)
	r.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("释放后不应残留锁，实际 %d", remaining)
	}
}

func TestRedLockConcurrentReleaseAll(t *testing.T) {
	r := newHeldRedLock(100)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			r.ReleaseLock(AppendLockName(int64(i + 1)))
		}
	}()
	go func() {
		defer wg.Done()
		r.ReleaseAllLocks()
	}()
	wg.Wait()

	r.mu.Lock()
	remaining := len(r.locks)
	r.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("全量释放后不应残留锁，实际 %d", remaining)
	}
}

func TestRedLockReleaseUnknown(t *testing.T) {
	r := newHeldRedLock(0)

	if err := r.ReleaseLock("ledger:append:1"); err == nil {
		t.Fatal("释放未持有的锁应返回错误")
	}
}
