package models

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound      = errors.New("document not found")
	ErrInvalidDocumentStatus = errors.New("invalid document status")
	ErrTaskNotFound          = errors.New("task not found")
)

// 文档生命周期：uploaded -> processing -> completed | failed，
// completed和failed都可以重新进入processing
var statusTransitions = map[DocumentStatus][]DocumentStatus{
	DocStatusUploaded:   {DocStatusProcessing, DocStatusFailed},
	DocStatusProcessing: {DocStatusCompleted, DocStatusFailed},
	DocStatusCompleted:  {DocStatusProcessing},
	DocStatusFailed:     {DocStatusProcessing},
}

// CanTransitionTo 判断能否从当前状态进入目标状态
func (s DocumentStatus) CanTransitionTo(to DocumentStatus) bool {
	for _, next := range statusTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition 不允许的转换返回包装了ErrInvalidDocumentStatus的错误
func (s DocumentStatus) CheckTransition(to DocumentStatus) error {
	if s.CanTransitionTo(to) {
		return nil
	}
	return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidDocumentStatus, s, to)
}

// IsTerminal 处理已经结束（成功或失败）
func (s DocumentStatus) IsTerminal() bool {
	return s == DocStatusCompleted || s == DocStatusFailed
}
