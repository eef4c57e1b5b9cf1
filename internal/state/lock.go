package state

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gc_bot/internal/fault"
)

const (
	DefaultLockTimeout = 5 * time.Second
	DefaultLockPoll    = 100 * time.Millisecond
)

// Locker — взаимное исключение раннеров на один файл состояния.
type Locker interface {
	TryAcquire(ctx context.Context, timeout time.Duration) (token string, err error)
	Release(token string) error
}

// FileLock — advisory-лок через эксклюзивное создание файла с токеном внутри.
// Зависший .lock после падения процесса удаляется оператором вручную.
type FileLock struct {
	path string
	poll time.Duration
	log  *zap.Logger
}

func NewFileLock(path string, poll time.Duration, log *zap.Logger) *FileLock {
	if poll <= 0 {
		poll = DefaultLockPoll
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FileLock{path: path, poll: poll, log: log.Named("lock")}
}

func (l *FileLock) Path() string { return l.path }

func (l *FileLock) TryAcquire(ctx context.Context, timeout time.Duration) (string, error) {
	const op = "state.FileLock.TryAcquire"
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	token := uuid.NewString()
	deadline := time.Now().Add(timeout)

	for {
		ok, err := l.create(token)
		if err != nil {
			return "", errors.Wrapf(err, "create lock %s", l.path)
		}
		if ok {
			return token, nil
		}

		if !time.Now().Before(deadline) {
			return "", fault.Newf(fault.LockTimeout, op, "lock %s is held after %s", l.path, timeout)
		}

		t := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", fault.Wrap(fault.LockTimeout, op, ctx.Err())
		case <-t.C:
		}
	}
}

func (l *FileLock) create(token string) (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	if _, err := f.WriteString(token); err != nil {
		_ = f.Close()
		_ = os.Remove(l.path)
		return false, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(l.path)
		return false, err
	}
	return true, nil
}

// Release удаляет .lock только если внутри наш токен.
func (l *FileLock) Release(token string) error {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "read lock %s", l.path)
	}
	if strings.TrimSpace(string(raw)) != token {
		l.log.Warn("lock owned by another holder, leaving it in place", zap.String("path", l.path))
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove lock %s", l.path)
	}
	return nil
}
