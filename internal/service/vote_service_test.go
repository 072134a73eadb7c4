package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lvdashuaibi/pollchain/internal/ledger"
	"github.com/lvdashuaibi/pollchain/internal/model"
	"github.com/lvdashuaibi/pollchain/internal/receipt"
)

// memoryRepo 同时充当投票活动源、账本存储和回执源
type memoryRepo struct {
	mu      sync.Mutex
	polls   map[int64]*model.Poll
	nextID  int64
	records map[int64][]*model.VoteRecord
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		polls:   make(map[int64]*model.Poll),
		records: make(map[int64][]*model.VoteRecord),
	}
}

func (r *memoryRepo) GetPoll(pollID int64) (*model.Poll, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	poll, ok := r.polls[pollID]
	if !ok {
		return nil, fmt.Errorf("%w: 投票活动ID=%d", model.ErrPollNotFound, pollID)
	}
	return poll, nil
}

func (r *memoryRepo) GetLatestVoteRecord(pollID int64) (*model.VoteRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chain := r.records[pollID]
	if len(chain) == 0 {
		return nil, nil
	}
	tip := *chain[len(chain)-1]
	return &tip, nil
}

func (r *memoryRepo) InsertVoteRecord(record *model.VoteRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chain := r.records[record.PollID]
	if record.Sequence != int64(len(chain)) {
		return fmt.Errorf("%w: 期望序号 %d，实际 %d",
			model.ErrSequenceConflict, len(chain), record.Sequence)
	}

	r.nextID++
	record.ID = r.nextID
	stored := *record
	r.records[record.PollID] = append(chain, &stored)
	return nil
}

func (r *memoryRepo) GetVoteRecordByReceiptCode(code string) (*model.VoteRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, chain := range r.records {
		for _, record := range chain {
			if record.ReceiptCode == code {
				return record, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: 回执码 %s", model.ErrReceiptNotFound, code)
}

// noopLock 单测用锁，总是成功
type noopLock struct{}

func (noopLock) AcquireLock(string, time.Duration) (bool, error) { return true, nil }
func (noopLock) RefreshLock(string, time.Duration) (bool, error) { return true, nil }
func (noopLock) ReleaseLock(string) error                        { return nil }
func (noopLock) ReleaseAllLocks()                                {}
func (noopLock) Close() error                                    { return nil }

// senderStub 记录发送的事件，可注入失败
type senderStub struct {
	events []*model.VoteRecordedEvent
	fail   bool
}

func (s *senderStub) SendVoteRecordedEvent(event *model.VoteRecordedEvent) error {
	if s.fail {
		return errors.New("kafka不可用")
	}
	s.events = append(s.events, event)
	return nil
}

type invalidatorStub struct {
	calls []int64
}

func (i *invalidatorStub) InvalidatePollSummary(pollID int64) (int64, error) {
	i.calls = append(i.calls, pollID)
	return int64(len(i.calls)), nil
}

func newTestService(repo *memoryRepo, sender *senderStub, inv *invalidatorStub) *VoteService {
	voteLedger := ledger.NewLedger(repo, noopLock{})
	issuer := receipt.NewIssuer(repo, nil)
	return NewVoteService(repo, voteLedger, issuer, sender, inv)
}

func openPoll(repo *memoryRepo, pollID int64) {
	repo.polls[pollID] = &model.Poll{
		ID:        pollID,
		Title:     "车位改造表决",
		Status:    model.PollStatusOpen,
		OptionIDs: []int64{1, 2},
	}
}

func TestCastVoteSuccess(t *testing.T) {
	repo := newMemoryRepo()
	openPoll(repo, 1)
	sender := &senderStub{}
	svc := newTestService(repo, sender, nil)

	response, err := svc.CastVote(&model.VoteRequest{PollID: 1, OptionID: 2, VoterToken: "voter-a"})
	if err != nil {
		t.Fatalf("投票失败: %v", err)
	}

	if !response.Success || response.Receipt == nil {
		t.Fatalf("响应应成功并携带回执: %+v", response)
	}
	if response.Sequence != 0 {
		t.Fatalf("首票序号应为0，实际 %d", response.Sequence)
	}
	if len(sender.events) != 1 || sender.events[0].PollID != 1 {
		t.Fatalf("应发送一条落账事件: %+v", sender.events)
	}

	// 回执可回查
	resolved, err := svc.ResolveReceipt(response.Receipt.ReceiptCode)
	if err != nil {
		t.Fatalf("解析回执失败: %v", err)
	}
	if resolved.ContentHash != response.Receipt.ContentHash {
		t.Fatal("解析出的回执哈希与签发时不符")
	}
}

func TestCastVotePollNotFound(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &senderStub{}, nil)

	response, err := svc.CastVote(&model.VoteRequest{PollID: 42, OptionID: 1, VoterToken: "voter-a"})
	if !errors.Is(err, model.ErrPollNotFound) {
		t.Fatalf("应返回ErrPollNotFound，实际: %v", err)
	}
	if response.Success {
		t.Fatal("失败响应不应标记成功")
	}
	if len(repo.records[42]) != 0 {
		t.Fatal("前置校验失败不应写入记录")
	}
}

func TestCastVotePollClosed(t *testing.T) {
	repo := newMemoryRepo()
	openPoll(repo, 1)
	repo.polls[1].Status = model.PollStatusClosed
	svc := newTestService(repo, &senderStub{}, nil)

	_, err := svc.CastVote(&model.VoteRequest{PollID: 1, OptionID: 1, VoterToken: "voter-a"})
	if !errors.Is(err, model.ErrPollClosed) {
		t.Fatalf("应返回ErrPollClosed，实际: %v", err)
	}
}

func TestCastVoteInvalidOption(t *testing.T) {
	repo := newMemoryRepo()
	openPoll(repo, 1)
	svc := newTestService(repo, &senderStub{}, nil)

	_, err := svc.CastVote(&model.VoteRequest{PollID: 1, OptionID: 99, VoterToken: "voter-a"})
	if !errors.Is(err, model.ErrInvalidOption) {
		t.Fatalf("应返回ErrInvalidOption，实际: %v", err)
	}
}

func TestCastVoteEmptyToken(t *testing.T) {
	repo := newMemoryRepo()
	openPoll(repo, 1)
	svc := newTestService(repo, &senderStub{}, nil)

	_, err := svc.CastVote(&model.VoteRequest{PollID: 1, OptionID: 1, VoterToken: ""})
	if !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("应返回ErrInvalidInput，实际: %v", err)
	}
}

func TestCastVoteKafkaDegraded(t *testing.T) {
	repo := newMemoryRepo()
	openPoll(repo, 1)
	sender := &senderStub{fail: true}
	inv := &invalidatorStub{}
	svc := newTestService(repo, sender, inv)

	response, err := svc.CastVote(&model.VoteRequest{PollID: 1, OptionID: 1, VoterToken: "voter-a"})
	if err != nil {
		t.Fatalf("Kafka不可用时投票本身不应失败: %v", err)
	}
	if !response.Success {
		t.Fatal("响应应成功")
	}

	// 事件发送失败时降级为同步失效缓存
	if len(inv.calls) != 1 || inv.calls[0] != 1 {
		t.Fatalf("应同步失效健康摘要缓存: %v", inv.calls)
	}
}

func TestProcessVoteEvent(t *testing.T) {
	repo := newMemoryRepo()
	inv := &invalidatorStub{}
	svc := newTestService(repo, &senderStub{}, inv)

	event := &model.VoteRecordedEvent{PollID: 7, Sequence: 3}
	if err := svc.ProcessVoteEvent(event); err != nil {
		t.Fatalf("处理落账事件失败: %v", err)
	}
	if len(inv.calls) != 1 || inv.calls[0] != 7 {
		t.Fatalf("应失效投票活动7的摘要缓存: %v", inv.calls)
	}
}
