// Package integrity 校验每个投票活动的哈希链并生成完整性报告。
// 校验只读不修复：断链是报告数据，不是校验器自身的错误。
package integrity

import (
	"fmt"
	"log"
	"time"

	"github.com/lvdashuaibi/pollchain/internal/hash"
	"github.com/lvdashuaibi/pollchain/internal/model"
)

// ChainSource 链数据读取接口，由MySQL仓库实现
type ChainSource interface {
	GetPoll(pollID int64) (*model.Poll, error)
	ListPollIDs() ([]int64, error)
	GetVoteRecordsByPoll(pollID int64) ([]*model.VoteRecord, error)
}

// SummaryCache 健康摘要缓存接口，由Redis仓库实现，可为nil
type SummaryCache interface {
	GetPollSummary(pollID int64) (*model.HealthSummary, bool, error)
	SetPollSummary(summary *model.HealthSummary) error
}

type Reporter struct {
	source ChainSource
	cache  SummaryCache
}

// NewReporter 创建完整性报告器。cache为nil时不使用缓存（审计CLI场景）
func NewReporter(source ChainSource, cache SummaryCache) *Reporter {
	return &Reporter{
		source: source,
		cache:  cache,
	}
}

// VerifyChain 校验某投票活动的整条链，返回完整性报告。
// 逐条重算内容哈希和链接哈希，并检查序号从0起连续；
// 空链合法。投票活动元数据不存在时返回ErrPollNotFound。
func (r *Reporter) VerifyChain(pollID int64) (*model.IntegrityReport, error) {
	if _, err := r.source.GetPoll(pollID); err != nil {
		return nil, err
	}

	records, err := r.source.GetVoteRecordsByPoll(pollID)
	if err != nil {
		return nil, fmt.Errorf("读取投票记录失败: %w", err)
	}

	report := &model.IntegrityReport{
		PollID:      pollID,
		TotalVotes:  int64(len(records)),
		BrokenLinks: []model.BrokenLink{},
		VerifiedAt:  time.Now(),
	}

	prevLinkHash := hash.SeedLinkHash(pollID)
	wantSequence := int64(0)

	for _, record := range records {
		if record.Sequence != wantSequence {
			report.BrokenLinks = append(report.BrokenLinks, model.BrokenLink{
				Sequence: record.Sequence,
				RecordID: record.ID,
				Reason:   model.ReasonSequenceGap,
			})
		}
		wantSequence = record.Sequence + 1

		// 内容哈希：存储字段被原地篡改时不再吻合。
		// 字段本身非法到无法哈希，同样按内容篡改处理。
		expectedContent, err := hash.ComputeContentHash(
			record.PollID, record.OptionID, record.VoterToken, record.CastAt)
		if err != nil || expectedContent != record.ContentHash {
			report.BrokenLinks = append(report.BrokenLinks, model.BrokenLink{
				Sequence: record.Sequence,
				RecordID: record.ID,
				Reason:   model.ReasonContentHashMismatch,
			})
		}
		if err != nil {
			expectedContent = record.ContentHash
		}

		// 链接哈希：基于重算的内容哈希和前一条的存储链接哈希，
		// 链被拼接或前驱被改而未级联重算时不再吻合
		expectedLink, err := hash.ComputeLinkHash(expectedContent, prevLinkHash)
		if err != nil || expectedLink != record.LinkHash {
			report.BrokenLinks = append(report.BrokenLinks, model.BrokenLink{
				Sequence: record.Sequence,
				RecordID: record.ID,
				Reason:   model.ReasonLinkHashMismatch,
			})
		}

		prevLinkHash = record.LinkHash
	}

	report.Valid = len(report.BrokenLinks) == 0
	return report, nil
}

// FullReport 完整报告，供取证场景使用
func (r *Reporter) FullReport(pollID int64) (*model.IntegrityReport, error) {
	return r.VerifyChain(pollID)
}

// HealthSummary 报告的轻量投影，带缓存，供健康检查高频轮询
func (r *Reporter) HealthSummary(pollID int64) (*model.HealthSummary, error) {
	if r.cache != nil {
		summary, found, err := r.cache.GetPollSummary(pollID)
		if err != nil {
			log.Printf("读取健康摘要缓存失败: %v", err)
		}
		if found && summary != nil {
			return summary, nil
		}
	}

	report, err := r.VerifyChain(pollID)
	if err != nil {
		return nil, err
	}

	summary := &model.HealthSummary{
		PollID:          pollID,
		Valid:           report.Valid,
		TotalVotes:      report.TotalVotes,
		BrokenLinkCount: int64(len(report.BrokenLinks)),
	}

	if r.cache != nil {
		if err := r.cache.SetPollSummary(summary); err != nil {
			log.Printf("写入健康摘要缓存失败: %v", err)
		}
	}

	return summary, nil
}

// ExportAllChains 逐个投票活动计算报告并回调fn，供批量审计导出。
// 每份报告独立计算，回调返回错误时中止迭代。
func (r *Reporter) ExportAllChains(fn func(*model.IntegrityReport) error) error {
	pollIDs, err := r.source.ListPollIDs()
	if err != nil {
		return fmt.Errorf("读取投票活动列表失败: %w", err)
	}

	for _, pollID := range pollIDs {
		report, err := r.VerifyChain(pollID)
		if err != nil {
			return fmt.Errorf("校验投票活动 %d 失败: %w", pollID, err)
		}
		if err := fn(report); err != nil {
			return err
		}
	}

	return nil
}
