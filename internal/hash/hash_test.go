package hash

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lvdashuaibi/pollchain/internal/model"
)

var castAt = time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)

func TestContentHashDeterministic(t *testing.T) {
	h1, err := ComputeContentHash(1, 2, "voter-a", castAt)
	if err != nil {
		t.Fatalf("计算内容哈希失败: %v", err)
	}
	h2, err := ComputeContentHash(1, 2, "voter-a", castAt)
	if err != nil {
		t.Fatalf("计算内容哈希失败: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("相同输入应产生相同哈希: %s != %s", h1, h2)
	}
	if len(h1) != DigestSize*2 {
		t.Fatalf("哈希长度应为 %d，实际 %d", DigestSize*2, len(h1))
	}
}

func TestContentHashDistinguishesFields(t *testing.T) {
	base, _ := ComputeContentHash(1, 2, "voter-a", castAt)

	variants := []struct {
		name             string
		pollID, optionID int64
		voterToken       string
		castAt           time.Time
	}{
		{"不同投票活动", 3, 2, "voter-a", castAt},
		{"不同选项", 1, 3, "voter-a", castAt},
		{"不同投票人", 1, 2, "voter-b", castAt},
		{"不同时间", 1, 2, "voter-a", castAt.Add(time.Millisecond)},
	}

	for _, v := range variants {
		got, err := ComputeContentHash(v.pollID, v.optionID, v.voterToken, v.castAt)
		if err != nil {
			t.Fatalf("%s: %v", v.name, err)
		}
		if got == base {
			t.Fatalf("%s: 哈希不应与基准相同", v.name)
		}
	}
}

func TestContentHashFieldBoundary(t *testing.T) {
	// 长度前缀必须防止字段边界歧义
	h1, _ := ComputeContentHash(1, 2, "ab", castAt)
	h2, _ := ComputeContentHash(1, 2, "a", castAt)
	if h1 == h2 {
		t.Fatal("不同令牌不应产生相同哈希")
	}
}

func TestContentHashTimezoneStable(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*3600)
	h1, _ := ComputeContentHash(1, 2, "voter-a", castAt)
	h2, _ := ComputeContentHash(1, 2, "voter-a", castAt.In(shanghai))
	if h1 != h2 {
		t.Fatal("同一时刻不同时区表示应产生相同哈希")
	}
}

func TestContentHashInvalidInput(t *testing.T) {
	cases := []struct {
		name             string
		pollID, optionID int64
		voterToken       string
		castAt           time.Time
	}{
		{"投票活动ID为负", -1, 2, "voter-a", castAt},
		{"投票活动ID为零", 0, 2, "voter-a", castAt},
		{"选项ID为负", 1, -2, "voter-a", castAt},
		{"令牌为空", 1, 2, "", castAt},
		{"时间为零值", 1, 2, "voter-a", time.Time{}},
	}

	for _, c := range cases {
		_, err := ComputeContentHash(c.pollID, c.optionID, c.voterToken, c.castAt)
		if !errors.Is(err, model.ErrInvalidInput) {
			t.Fatalf("%s: 应返回ErrInvalidInput，实际: %v", c.name, err)
		}
	}
}

func TestLinkHashChaining(t *testing.T) {
	content, _ := ComputeContentHash(1, 2, "voter-a", castAt)
	seed := SeedLinkHash(1)

	link1, err := ComputeLinkHash(content, seed)
	if err != nil {
		t.Fatalf("计算链接哈希失败: %v", err)
	}
	link2, err := ComputeLinkHash(content, link1)
	if err != nil {
		t.Fatalf("计算链接哈希失败: %v", err)
	}
	if link1 == link2 {
		t.Fatal("不同前驱应产生不同链接哈希")
	}
}

func TestLinkHashOrderDependent(t *testing.T) {
	a, _ := ComputeContentHash(1, 2, "voter-a", castAt)
	b, _ := ComputeContentHash(1, 3, "voter-b", castAt)

	ab, _ := ComputeLinkHash(a, b)
	ba, _ := ComputeLinkHash(b, a)
	if ab == ba {
		t.Fatal("参数顺序交换不应产生相同链接哈希")
	}
}

func TestLinkHashInvalidDigest(t *testing.T) {
	content, _ := ComputeContentHash(1, 2, "voter-a", castAt)

	if _, err := ComputeLinkHash("not-hex", content); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("非十六进制摘要应返回ErrInvalidInput，实际: %v", err)
	}
	if _, err := ComputeLinkHash(content, "abcd"); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("长度错误的摘要应返回ErrInvalidInput，实际: %v", err)
	}
}

func TestSeedLinkHashPerPoll(t *testing.T) {
	s1 := SeedLinkHash(1)
	s2 := SeedLinkHash(2)
	if s1 == s2 {
		t.Fatal("不同投票活动的种子应不同")
	}
	if s1 != SeedLinkHash(1) {
		t.Fatal("种子必须是确定性的")
	}
	if len(s1) != DigestSize*2 || strings.ToLower(s1) != s1 {
		t.Fatalf("种子应为小写十六进制摘要: %s", s1)
	}
}
