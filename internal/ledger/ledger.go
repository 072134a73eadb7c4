// Package ledger 维护每个投票活动的哈希链账本：追加是唯一的写入口，
// 记录一旦落库不再修改。
package ledger

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/lvdashuaibi/pollchain/config"
	"github.com/lvdashuaibi/pollchain/internal/hash"
	"github.com/lvdashuaibi/pollchain/internal/lock"
	"github.com/lvdashuaibi/pollchain/internal/model"
)

const defaultReceiptCodeBytes = 16

// RecordStore 账本存储接口，由MySQL仓库实现
type RecordStore interface {
	// GetLatestVoteRecord 读取链尾记录，链为空时返回(nil, nil)
	GetLatestVoteRecord(pollID int64) (*model.VoteRecord, error)
	// InsertVoteRecord 事务性插入，序号不衔接时返回ErrSequenceConflict
	InsertVoteRecord(record *model.VoteRecord) error
}

type Ledger struct {
	store       RecordStore
	appendLock  lock.Lock
	lockTimeout time.Duration
}

func NewLedger(store RecordStore, appendLock lock.Lock) *Ledger {
	timeout := config.AppConfig.Ledger.LockTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Ledger{
		store:       store,
		appendLock:  appendLock,
		lockTimeout: timeout,
	}
}

// AppendVote 追加一条投票记录并返回落库后的记录。
// "读链尾 → 计算哈希 → 写入"整段持有该投票活动的追加锁，
// 锁获取有界等待，超时按冲突处理，由调用方决定是否重试。
func (l *Ledger) AppendVote(pollID, optionID int64, voterToken string, castAt time.Time) (*model.VoteRecord, error) {
	castAt = hash.NormalizeCastAt(castAt)

	// 先算内容哈希，输入错误在加锁前就拒绝
	contentHash, err := hash.ComputeContentHash(pollID, optionID, voterToken, castAt)
	if err != nil {
		return nil, err
	}

	lockName := lock.AppendLockName(pollID)
	acquired, err := l.appendLock.AcquireLock(lockName, l.lockTimeout)
	if err != nil {
		return nil, fmt.Errorf("获取追加锁失败: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: 追加锁等待超时", model.ErrSequenceConflict)
	}
	defer l.appendLock.ReleaseLock(lockName)

	tip, err := l.store.GetLatestVoteRecord(pollID)
	if err != nil {
		return nil, fmt.Errorf("读取链尾失败: %w", err)
	}

	var sequence int64
	prevLinkHash := hash.SeedLinkHash(pollID)
	if tip != nil {
		sequence = tip.Sequence + 1
		prevLinkHash = tip.LinkHash
	}

	linkHash, err := hash.ComputeLinkHash(contentHash, prevLinkHash)
	if err != nil {
		return nil, err
	}

	receiptCode, err := generateReceiptCode()
	if err != nil {
		return nil, fmt.Errorf("生成回执码失败: %w", err)
	}

	record := &model.VoteRecord{
		PollID:      pollID,
		Sequence:    sequence,
		OptionID:    optionID,
		VoterToken:  voterToken,
		CastAt:      castAt,
		ContentHash: contentHash,
		LinkHash:    linkHash,
		ReceiptCode: receiptCode,
	}

	if err := l.store.InsertVoteRecord(record); err != nil {
		return nil, err
	}

	return record, nil
}

// generateReceiptCode 生成随机回执码。回执码与哈希值无关，
// 不能从链上数据推测。
func generateReceiptCode() (string, error) {
	n := config.AppConfig.Ledger.ReceiptCodeBytes
	if n <= 0 {
		n = defaultReceiptCodeBytes
	}

	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
