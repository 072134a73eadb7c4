package integrity

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/lvdashuaibi/pollchain/config"
	"github.com/lvdashuaibi/pollchain/internal/lock"
	"github.com/lvdashuaibi/pollchain/internal/model"
)

const SweeperLockName = "integrity:sweeper:lock"

// Sweeper 后台巡检器：被选为巡检者的实例定期校验所有链，
// 发现断链立即写日志告警。多实例部署时通过分布式锁竞选。
type Sweeper struct {
	reporter    *Reporter
	distLock    lock.Lock
	sweepTicker *time.Ticker
	stopChan    chan struct{}
	isSweeper   atomic.Bool // 巡检goroutine接替时写，Stop在主goroutine读
}

func NewSweeper(reporter *Reporter, distLock lock.Lock, isSweeper bool) *Sweeper {
	s := &Sweeper{
		reporter: reporter,
		distLock: distLock,
		stopChan: make(chan struct{}),
	}
	s.isSweeper.Store(isSweeper)
	return s
}

// Start 启动巡检循环。非巡检者实例同样启动定时器，
// 周期性尝试接替失效的巡检者。
func (s *Sweeper) Start() {
	interval := config.AppConfig.Integrity.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	s.sweepTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-s.sweepTicker.C:
				if !s.isSweeper.Load() {
					s.tryTakeOver()
				}
				if s.isSweeper.Load() {
					s.sweepOnce()
				}
			case <-s.stopChan:
				s.sweepTicker.Stop()
				log.Println("完整性巡检器已停止")
				return
			}
		}
	}()
}

// tryTakeOver 尝试接替巡检者角色，原巡检者的锁过期后即可抢到
func (s *Sweeper) tryTakeOver() {
	timeout := config.AppConfig.Ledger.LockTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	acquired, err := s.distLock.AcquireLock(SweeperLockName, timeout)
	if err != nil {
		log.Printf("竞争巡检者锁失败: %v", err)
		return
	}
	if acquired {
		log.Println("本实例已接替为完整性巡检者")
		s.isSweeper.Store(true)
	}
}

// sweepOnce 巡检所有链一次
func (s *Sweeper) sweepOnce() {
	var checked, invalid int

	err := s.reporter.ExportAllChains(func(report *model.IntegrityReport) error {
		checked++
		if !report.Valid {
			invalid++
			log.Printf("巡检发现断链: 投票活动=%d, 总票数=%d, 断链数=%d",
				report.PollID, report.TotalVotes, len(report.BrokenLinks))
		}
		return nil
	})
	if err != nil {
		log.Printf("完整性巡检失败: %v", err)
		return
	}

	if invalid > 0 {
		log.Printf("完整性巡检完成: 共 %d 条链，%d 条存在断链", checked, invalid)
	}
}

// Stop 停止巡检器并释放巡检者锁
func (s *Sweeper) Stop() {
	close(s.stopChan)
	if s.isSweeper.Load() {
		s.distLock.ReleaseLock(SweeperLockName)
	}
}
