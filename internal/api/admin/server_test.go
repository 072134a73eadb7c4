package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lvdashuaibi/pollchain/internal/hash"
	"github.com/lvdashuaibi/pollchain/internal/integrity"
	"github.com/lvdashuaibi/pollchain/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var castAt = time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)

type memorySource struct {
	polls   map[int64]*model.Poll
	records map[int64][]*model.VoteRecord
}

func (s *memorySource) GetPoll(pollID int64) (*model.Poll, error) {
	poll, ok := s.polls[pollID]
	if !ok {
		return nil, fmt.Errorf("%w: 投票活动ID=%d", model.ErrPollNotFound, pollID)
	}
	return poll, nil
}

func (s *memorySource) ListPollIDs() ([]int64, error) {
	var ids []int64
	for id := int64(1); id <= 8; id++ {
		if _, ok := s.polls[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memorySource) GetVoteRecordsByPoll(pollID int64) ([]*model.VoteRecord, error) {
	return s.records[pollID], nil
}

func buildSource(t *testing.T) *memorySource {
	t.Helper()

	source := &memorySource{
		polls:   make(map[int64]*model.Poll),
		records: make(map[int64][]*model.VoteRecord),
	}

	for pollID := int64(1); pollID <= 2; pollID++ {
		source.polls[pollID] = &model.Poll{
			ID:        pollID,
			Title:     fmt.Sprintf("业主表决 %d", pollID),
			Status:    model.PollStatusOpen,
			OptionIDs: []int64{1, 2},
		}

		prev := hash.SeedLinkHash(pollID)
		for seq := int64(0); seq < 2; seq++ {
			at := hash.NormalizeCastAt(castAt.Add(time.Duration(seq) * time.Second))
			voter := fmt.Sprintf("voter-%d-%d", pollID, seq)
			contentHash, err := hash.ComputeContentHash(pollID, 1, voter, at)
			if err != nil {
				t.Fatalf("计算内容哈希失败: %v", err)
			}
			linkHash, err := hash.ComputeLinkHash(contentHash, prev)
			if err != nil {
				t.Fatalf("计算链接哈希失败: %v", err)
			}
			source.records[pollID] = append(source.records[pollID], &model.VoteRecord{
				ID:          seq + 1,
				PollID:      pollID,
				Sequence:    seq,
				OptionID:    1,
				VoterToken:  voter,
				CastAt:      at,
				ContentHash: contentHash,
				LinkHash:    linkHash,
				ReceiptCode: fmt.Sprintf("code-%d-%d", pollID, seq),
			})
			prev = linkHash
		}
	}

	return source
}

func doRequest(t *testing.T, server *AdminServer, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	return w
}

func TestFullReportEndpoint(t *testing.T) {
	server := NewAdminServer(integrity.NewReporter(buildSource(t), nil))

	w := doRequest(t, server, "/admin/polls/1/integrity")
	if w.Code != http.StatusOK {
		t.Fatalf("状态码应为200，实际 %d: %s", w.Code, w.Body.String())
	}

	var report model.IntegrityReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if !report.Valid || report.TotalVotes != 2 {
		t.Fatalf("报告不符: %+v", report)
	}
}

func TestHealthSummaryEndpoint(t *testing.T) {
	server := NewAdminServer(integrity.NewReporter(buildSource(t), nil))

	w := doRequest(t, server, "/admin/polls/2/integrity/summary")
	if w.Code != http.StatusOK {
		t.Fatalf("状态码应为200，实际 %d: %s", w.Code, w.Body.String())
	}

	var summary model.HealthSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if !summary.Valid || summary.TotalVotes != 2 || summary.BrokenLinkCount != 0 {
		t.Fatalf("摘要不符: %+v", summary)
	}
}

func TestFullReportPollNotFound(t *testing.T) {
	server := NewAdminServer(integrity.NewReporter(buildSource(t), nil))

	w := doRequest(t, server, "/admin/polls/99/integrity")
	if w.Code != http.StatusNotFound {
		t.Fatalf("状态码应为404，实际 %d", w.Code)
	}
}

func TestFullReportBadPollID(t *testing.T) {
	server := NewAdminServer(integrity.NewReporter(buildSource(t), nil))

	w := doRequest(t, server, "/admin/polls/abc/integrity")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("状态码应为400，实际 %d", w.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	source := buildSource(t)
	// 篡改第二条链，导出结果应如实反映
	source.records[2][0].OptionID = 99

	server := NewAdminServer(integrity.NewReporter(source, nil))

	w := doRequest(t, server, "/admin/integrity/export")
	if w.Code != http.StatusOK {
		t.Fatalf("状态码应为200，实际 %d", w.Code)
	}

	var reports []model.IntegrityReport
	if err := json.Unmarshal(w.Body.Bytes(), &reports); err != nil {
		t.Fatalf("解析导出结果失败: %v: %s", err, w.Body.String())
	}
	if len(reports) != 2 {
		t.Fatalf("应导出2份报告，实际 %d", len(reports))
	}
	if !reports[0].Valid || reports[1].Valid {
		t.Fatalf("报告有效性不符: %v %v", reports[0].Valid, reports[1].Valid)
	}
}
