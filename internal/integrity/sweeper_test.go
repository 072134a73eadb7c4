package integrity

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lvdashuaibi/pollchain/config"
)

// grantLock 总是授予锁，并记录获取和释放的锁名
type grantLock struct {
	mu       sync.Mutex
	acquired []string
	released []string
}

func (g *grantLock) AcquireLock(lockName string, timeout time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.acquired = append(g.acquired, lockName)
	return true, nil
}

func (g *grantLock) RefreshLock(lockName string, timeout time.Duration) (bool, error) {
	return true, nil
}

func (g *grantLock) ReleaseLock(lockName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released = append(g.released, lockName)
	return nil
}

func (g *grantLock) ReleaseAllLocks() {}

func (g *grantLock) Close() error { return nil }

func (g *grantLock) hasReleased(lockName string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, name := range g.released {
		if name == lockName {
			return true
		}
	}
	return false
}

// countingSource 统计巡检扫描次数
type countingSource struct {
	*memorySource
	listCalls atomic.Int64
}

func (c *countingSource) ListPollIDs() ([]int64, error) {
	c.listCalls.Add(1)
	return c.memorySource.ListPollIDs()
}

// 非巡检者实例在原巡检者锁过期后接替角色，停止时释放巡检者锁
func TestSweeperTakeOverAndStop(t *testing.T) {
	oldInterval := config.AppConfig.Integrity.SweepInterval
	config.AppConfig.Integrity.SweepInterval = 5 * time.Millisecond
	defer func() { config.AppConfig.Integrity.SweepInterval = oldInterval }()

	source := &countingSource{memorySource: newMemorySource()}
	source.buildChain(1, "voter-a")

	distLock := &grantLock{}
	sweeper := NewSweeper(NewReporter(source, nil), distLock, false)
	sweeper.Start()

	// 等到至少完成一次巡检，说明接替已经发生
	deadline := time.Now().Add(2 * time.Second)
	for source.listCalls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("巡检器未在期限内接替并执行巡检")
		}
		time.Sleep(time.Millisecond)
	}

	sweeper.Stop()

	if !distLock.hasReleased(SweeperLockName) {
		t.Fatal("停止后应释放巡检者锁")
	}
}
