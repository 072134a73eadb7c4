// Package hash 计算投票记录的内容哈希与链接哈希。
//
// 序列化约定（跨语言重新实现时必须逐字节一致）：
//
//	contentHash = SHA-256(
//	    uint64be(pollID) ||
//	    uint64be(optionID) ||
//	    uint64be(len(voterToken)) || voterToken ||
//	    uint64be(unixMilli(castAt)) )
//	linkHash = SHA-256(rawContentHash || rawPrevLinkHash)
//	seed     = SHA-256(uint64be(pollID))
//
// voterToken是唯一的变长字段，带长度前缀，保证序列化是单射的。
// castAt按UTC毫秒参与哈希，入库前必须先用NormalizeCastAt归一化。
package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/lvdashuaibi/pollchain/internal/model"
)

// DigestSize 哈希的原始字节数
const DigestSize = sha256.Size

// NormalizeCastAt 归一化投票时间：UTC、毫秒精度
func NormalizeCastAt(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// ComputeContentHash 计算投票记录语义字段的内容哈希
func ComputeContentHash(pollID, optionID int64, voterToken string, castAt time.Time) (string, error) {
	if pollID <= 0 {
		return "", fmt.Errorf("%w: 投票活动ID必须为正数: %d", model.ErrInvalidInput, pollID)
	}
	if optionID <= 0 {
		return "", fmt.Errorf("%w: 选项ID必须为正数: %d", model.ErrInvalidInput, optionID)
	}
	if voterToken == "" {
		return "", fmt.Errorf("%w: 投票人令牌不能为空", model.ErrInvalidInput)
	}
	if castAt.IsZero() {
		return "", fmt.Errorf("%w: 投票时间不能为零值", model.ErrInvalidInput)
	}

	h := sha256.New()
	var buf [8]byte

	binary.BigEndian.PutUint64(buf[:], uint64(pollID))
	h.Write(buf[:])

	binary.BigEndian.PutUint64(buf[:], uint64(optionID))
	h.Write(buf[:])

	binary.BigEndian.PutUint64(buf[:], uint64(len(voterToken)))
	h.Write(buf[:])
	h.Write([]byte(voterToken))

	binary.BigEndian.PutUint64(buf[:], uint64(NormalizeCastAt(castAt).UnixMilli()))
	h.Write(buf[:])

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeLinkHash 计算链接哈希：内容哈希与前一条链接哈希的拼接摘要
func ComputeLinkHash(contentHash, prevLinkHash string) (string, error) {
	content, err := decodeDigest(contentHash)
	if err != nil {
		return "", fmt.Errorf("%w: 内容哈希格式错误: %v", model.ErrInvalidInput, err)
	}
	prev, err := decodeDigest(prevLinkHash)
	if err != nil {
		return "", fmt.Errorf("%w: 前链接哈希格式错误: %v", model.ErrInvalidInput, err)
	}

	h := sha256.New()
	h.Write(content)
	h.Write(prev)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SeedLinkHash 首条记录的"前链接哈希"种子，追加方与校验方共用
func SeedLinkHash(pollID int64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(pollID))
	sum := sha256.Sum256(buf[:])
	return hex.EncodeToString(sum[:])
}

func decodeDigest(s string) ([]byte, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != DigestSize {
		return nil, fmt.Errorf("摘要长度应为 %d 字节，实际 %d 字节", DigestSize, len(raw))
	}
	return raw, nil
}
