package model

import "errors"

// 错误分类：输入错误和未找到错误直接返回调用方，不重试；
// 冲突错误由调用方决定是否重试；断链发现是报告数据，不走错误通道。
var (
	ErrInvalidInput     = errors.New("pollchain: 输入无效")
	ErrSequenceConflict = errors.New("pollchain: 序号写入冲突")
	ErrPollNotFound     = errors.New("pollchain: 投票活动不存在")
	ErrPollClosed       = errors.New("pollchain: 投票活动已关闭")
	ErrInvalidOption    = errors.New("pollchain: 选项不属于该投票活动")
	ErrReceiptNotFound  = errors.New("pollchain: 回执不存在")
	ErrDuplicateVoter   = errors.New("pollchain: 该投票人已投过票")
)
