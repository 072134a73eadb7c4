package model

import (
	"time"
)

// 断链原因码
const (
	ReasonContentHashMismatch = "CONTENT_HASH_MISMATCH"
	ReasonLinkHashMismatch    = "LINK_HASH_MISMATCH"
	ReasonSequenceGap         = "SEQUENCE_GAP"
)

// 投票状态
const (
	PollStatusOpen   = "open"
	PollStatusClosed = "closed"
)

// VoteRecord 投票记录，持久化后不可变
type VoteRecord struct {
	ID          int64     `json:"id"`
	PollID      int64     `json:"pollId"`
	Sequence    int64     `json:"sequence"`
	OptionID    int64     `json:"optionId"`
	VoterToken  string    `json:"voterToken"`
	CastAt      time.Time `json:"castAt"`
	ContentHash string    `json:"contentHash"`
	LinkHash    string    `json:"linkHash"`
	ReceiptCode string    `json:"receiptCode"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Poll 投票活动元数据，由民主模块维护，本服务只读
type Poll struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	OptionIDs []int64   `json:"optionIds"`
	ClosesAt  time.Time `json:"closesAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsOpen 投票活动是否开放
func (p *Poll) IsOpen() bool {
	return p.Status == PollStatusOpen
}

// HasOption 选项是否属于该投票活动
func (p *Poll) HasOption(optionID int64) bool {
	for _, id := range p.OptionIDs {
		if id == optionID {
			return true
		}
	}
	return false
}

// Receipt 投票回执，供投票人自行核验
type Receipt struct {
	ReceiptCode string    `json:"receiptCode"`
	PollID      int64     `json:"pollId"`
	ContentHash string    `json:"contentHash"`
	CastAt      time.Time `json:"castAt"`
}

// BrokenLink 校验发现的断链条目
type BrokenLink struct {
	Sequence int64  `json:"sequence"`
	RecordID int64  `json:"recordId"`
	Reason   string `json:"reason"`
}

// IntegrityReport 链完整性报告，按需计算，不持久化
type IntegrityReport struct {
	PollID      int64        `json:"pollId"`
	Valid       bool         `json:"valid"`
	TotalVotes  int64        `json:"totalVotes"`
	BrokenLinks []BrokenLink `json:"brokenLinks"`
	VerifiedAt  time.Time    `json:"verifiedAt"`
}

// HealthSummary 完整性报告的轻量投影
type HealthSummary struct {
	PollID          int64 `json:"pollId"`
	Valid           bool  `json:"valid"`
	TotalVotes      int64 `json:"totalVotes"`
	BrokenLinkCount int64 `json:"brokenLinkCount"`
}

// VoteRequest 投票请求
type VoteRequest struct {
	PollID     int64  `json:"pollId"`
	OptionID   int64  `json:"optionId"`
	VoterToken string `json:"voterToken"`
}

// VoteResponse 投票响应
type VoteResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	PollID    int64     `json:"pollId"`
	Sequence  int64     `json:"sequence"`
	Receipt   *Receipt  `json:"receipt,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// VoteRecordedEvent Kafka投票落账事件
type VoteRecordedEvent struct {
	PollID      int64     `json:"pollId"`
	Sequence    int64     `json:"sequence"`
	ReceiptCode string    `json:"receiptCode"`
	LinkHash    string    `json:"linkHash"`
	CastAt      time.Time `json:"castAt"`
}
