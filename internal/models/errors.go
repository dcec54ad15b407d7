package models

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentNotFound 文档不存在错误
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidDocumentStatus 无效的文档状态错误
	ErrInvalidDocumentStatus = errors.New("invalid document status")

	// ErrLengthMismatch 片段与分类结果数量不一致错误
	ErrLengthMismatch = errors.New("segments and classifications length mismatch")
)

// NewLengthMismatchError 创建数量不一致错误，错误信息包含两侧长度
func NewLengthMismatchError(segments, classifications int) error {
	return fmt.Errorf("%w: segments (%d) and classifications (%d) must have same length",
		ErrLengthMismatch, segments, classifications)
}
