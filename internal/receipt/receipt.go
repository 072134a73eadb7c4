// Package receipt 签发并解析投票回执。回执暴露内容哈希，
// 投票人可用自己掌握的字段独立重算核对。
package receipt

import (
	"fmt"
	"log"

	"github.com/lvdashuaibi/pollchain/internal/model"
)

// RecordSource 按回执码读取投票记录的接口，由MySQL仓库实现（唯一索引）
type RecordSource interface {
	GetVoteRecordByReceiptCode(receiptCode string) (*model.VoteRecord, error)
}

// ReceiptCache 回执缓存接口，由Redis仓库实现，可为nil
type ReceiptCache interface {
	GetReceipt(receiptCode string) (*model.Receipt, bool, error)
	SetReceipt(receipt *model.Receipt) error
}

type Issuer struct {
	source RecordSource
	cache  ReceiptCache
}

func NewIssuer(source RecordSource, cache ReceiptCache) *Issuer {
	return &Issuer{
		source: source,
		cache:  cache,
	}
}

// IssueReceipt 从落库的投票记录派生回执，纯投影，不额外持久化
func (i *Issuer) IssueReceipt(record *model.VoteRecord) *model.Receipt {
	return &model.Receipt{
		ReceiptCode: record.ReceiptCode,
		PollID:      record.PollID,
		ContentHash: record.ContentHash,
		CastAt:      record.CastAt,
	}
}

// ResolveReceipt 按回执码解析回执，先查缓存再回源数据库
func (i *Issuer) ResolveReceipt(receiptCode string) (*model.Receipt, error) {
	if receiptCode == "" {
		return nil, fmt.Errorf("%w: 回执码不能为空", model.ErrInvalidInput)
	}

	if i.cache != nil {
		cached, found, err := i.cache.GetReceipt(receiptCode)
		if err != nil {
			log.Printf("读取回执缓存失败: %v", err)
		}
		if found && cached != nil {
			return cached, nil
		}
	}

	record, err := i.source.GetVoteRecordByReceiptCode(receiptCode)
	if err != nil {
		return nil, err
	}

	receipt := i.IssueReceipt(record)

	if i.cache != nil {
		if err := i.cache.SetReceipt(receipt); err != nil {
			log.Printf("写入回执缓存失败: %v", err)
		}
	}

	return receipt, nil
}
