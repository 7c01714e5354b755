package errs

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNotImplemented 字段类型不支持该操作，调用方应当视为功能不可用而非致命错误
	ErrNotImplemented = errors.New("not implemented for this kind")
	// ErrNotFound 类型、字段或记录不存在
	ErrNotFound = errors.New("not found")
)

// ValidationError 字段值或字段定义本身不满足约束
type ValidationError struct {
	Field   string
	Message string
	// 聚合多个字段的错误
	Fields []*ValidationError
}

func NewValidationError(field string, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		msgs := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			msgs = append(msgs, f.Error())
		}
		return "validation failed: " + strings.Join(msgs, "; ")
	}
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Add 追加一个字段错误
func (e *ValidationError) Add(err *ValidationError) {
	e.Fields = append(e.Fields, err)
}

// OrNil 没有任何错误时返回 nil
func (e *ValidationError) OrNil() error {
	if e == nil || (len(e.Fields) == 0 && e.Message == "") {
		return nil
	}
	if len(e.Fields) == 1 && e.Message == "" {
		return e.Fields[0]
	}
	return e
}

// SchemaConflictError 字段名重复、使用保留字段名、类型名冲突或删除被引用的类型，在任何 DDL 执行前拒绝
type SchemaConflictError struct {
	Reason string
	Name   string
}

func NewSchemaConflictError(name string, format string, args ...any) *SchemaConflictError {
	return &SchemaConflictError{Name: name, Reason: fmt.Sprintf(format, args...)}
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("schema conflict on %q: %s", e.Name, e.Reason)
}

// MigrationError DDL 执行失败，外层事务已回滚
type MigrationError struct {
	Op        string
	Table     string
	Statement string
	Err       error
}

func (e *MigrationError) Error() string {
	if e.Statement == "" {
		return fmt.Sprintf("migration %s on %s failed: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("migration %s on %s failed: %v [%s]", e.Op, e.Table, e.Err, e.Statement)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// RecursionGuardError 引用图递归超过深度限制，对应字段视为未解析
type RecursionGuardError struct {
	TypeID int64
	Path   []int64
}

func (e *RecursionGuardError) Error() string {
	return fmt.Sprintf("recursion guard tripped resolving type %d via %v", e.TypeID, e.Path)
}

// ConcurrencyTimeoutError 在限定时间内没有获取到类型锁，可以重试
type ConcurrencyTimeoutError struct {
	TypeID int64
	Waited time.Duration
}

func (e *ConcurrencyTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for lock on type %d", e.Waited, e.TypeID)
}

func (e *ConcurrencyTimeoutError) Retryable() bool {
	return true
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsSchemaConflict(err error) bool {
	var e *SchemaConflictError
	return errors.As(err, &e)
}

func IsMigration(err error) bool {
	var e *MigrationError
	return errors.As(err, &e)
}

func IsRecursionGuard(err error) bool {
	var e *RecursionGuardError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsNotImplemented(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}

// IsRetryable 判断错误是否可以重试
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}
