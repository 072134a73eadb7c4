package service

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lvdashuaibi/pollchain/internal/ledger"
	"github.com/lvdashuaibi/pollchain/internal/model"
	"github.com/lvdashuaibi/pollchain/internal/receipt"
)

// PollSource 投票活动元数据读取接口，由MySQL仓库实现
type PollSource interface {
	GetPoll(pollID int64) (*model.Poll, error)
}

// EventSender 投票落账事件发送接口，由Kafka生产者实现
type EventSender interface {
	SendVoteRecordedEvent(event *model.VoteRecordedEvent) error
}

// SummaryInvalidator 健康摘要缓存失效接口，由Redis仓库实现，可为nil
type SummaryInvalidator interface {
	InvalidatePollSummary(pollID int64) (int64, error)
}

type VoteService struct {
	polls    PollSource
	ledger   *ledger.Ledger
	issuer   *receipt.Issuer
	producer EventSender
	cache    SummaryInvalidator
}

func NewVoteService(
	polls PollSource,
	voteLedger *ledger.Ledger,
	issuer *receipt.Issuer,
	producer EventSender,
	cache SummaryInvalidator,
) *VoteService {
	return &VoteService{
		polls:    polls,
		ledger:   voteLedger,
		issuer:   issuer,
		producer: producer,
		cache:    cache,
	}
}

// CastVote 投票入口：前置校验投票活动与选项，追加账本记录并签发回执。
// 鉴权在上游完成，voterToken是已解析的投票人令牌。
func (s *VoteService) CastVote(request *model.VoteRequest) (*model.VoteResponse, error) {
	failedResponse := &model.VoteResponse{
		Success:   false,
		Message:   "投票失败",
		PollID:    request.PollID,
		Timestamp: time.Now(),
	}

	if request.VoterToken == "" {
		return failedResponse, fmt.Errorf("%w: 投票人令牌不能为空", model.ErrInvalidInput)
	}

	// 前置校验：投票活动存在、开放，选项合法
	poll, err := s.polls.GetPoll(request.PollID)
	if err != nil {
		return failedResponse, err
	}
	if !poll.IsOpen() {
		return failedResponse, fmt.Errorf("%w: 投票活动ID=%d", model.ErrPollClosed, request.PollID)
	}
	if !poll.HasOption(request.OptionID) {
		return failedResponse, fmt.Errorf("%w: 投票活动=%d, 选项=%d",
			model.ErrInvalidOption, request.PollID, request.OptionID)
	}

	record, err := s.ledger.AppendVote(request.PollID, request.OptionID, request.VoterToken, time.Now())
	if err != nil {
		if errors.Is(err, model.ErrSequenceConflict) {
			// 冲突可重试，但由调用方决定，保持本次操作的延迟可预期
			return failedResponse, fmt.Errorf("投票并发冲突，请重试: %w", err)
		}
		return failedResponse, err
	}

	voteReceipt := s.issuer.IssueReceipt(record)

	// 发送落账事件，失败时降级为同步失效缓存，保证读到最新健康摘要
	event := &model.VoteRecordedEvent{
		PollID:      record.PollID,
		Sequence:    record.Sequence,
		ReceiptCode: record.ReceiptCode,
		LinkHash:    record.LinkHash,
		CastAt:      record.CastAt,
	}
	if err := s.producer.SendVoteRecordedEvent(event); err != nil {
		log.Printf("发送投票落账事件到Kafka失败: %v", err)
		if s.cache != nil {
			if _, err := s.cache.InvalidatePollSummary(record.PollID); err != nil {
				log.Printf("失效投票活动 %d 健康摘要缓存失败: %v", record.PollID, err)
			}
		}
	}

	return &model.VoteResponse{
		Success:   true,
		Message:   "投票成功",
		PollID:    record.PollID,
		Sequence:  record.Sequence,
		Receipt:   voteReceipt,
		Timestamp: time.Now(),
	}, nil
}

// ResolveReceipt 按回执码解析回执
func (s *VoteService) ResolveReceipt(receiptCode string) (*model.Receipt, error) {
	return s.issuer.ResolveReceipt(receiptCode)
}

// ProcessVoteEvent 处理投票落账事件（消费者使用）：失效健康摘要缓存
func (s *VoteService) ProcessVoteEvent(event *model.VoteRecordedEvent) error {
	if s.cache == nil {
		return nil
	}

	count, err := s.cache.InvalidatePollSummary(event.PollID)
	if err != nil {
		return fmt.Errorf("处理投票落账事件失效缓存失败: %w", err)
	}

	log.Printf("投票活动 %d 第 %d 次追加已同步，摘要缓存已失效", event.PollID, count)
	return nil
}
