package fault

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind — класс ошибки цикла. По нему раннер и планировщик решают,
// пропустить цикл или остановить процесс.
type Kind int

const (
	Unknown Kind = iota
	InsufficientHistory
	DataUnavailable
	LockTimeout
	InvalidPositionInvariant
	OrderRejected
	ExternalServiceFailure
)

func (k Kind) String() string {
	switch k {
	case InsufficientHistory:
		return "insufficient_history"
	case DataUnavailable:
		return "data_unavailable"
	case LockTimeout:
		return "lock_timeout"
	case InvalidPositionInvariant:
		return "invalid_position_invariant"
	case OrderRejected:
		return "order_rejected"
	case ExternalServiceFailure:
		return "external_service_failure"
	default:
		return "unknown"
	}
}

// Error несёт Kind и операцию, на которой всё упало.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Cause нужен для errors.Cause из pkg/errors.
func (e *Error) Cause() error { return e.Err }

func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// Wrap помечает err видом kind. nil остаётся nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: errors.WithStack(err)}
}

// KindOf ищет первую *Error в цепочке.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsFatal: после таких ошибок процесс не должен продолжать работу.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case LockTimeout, InvalidPositionInvariant:
		return true
	}
	return false
}

// Recoverable: цикл прерван чисто, следующий по расписанию можно запускать.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case InsufficientHistory, DataUnavailable, OrderRejected, ExternalServiceFailure:
		return true
	}
	return false
}
