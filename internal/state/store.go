package state

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Store хранит PositionState в JSON-файле. Запись идёт через .tmp и rename,
// перед заменой живой файл копируется в .bak.
type Store struct {
	path string
	log  *zap.Logger
	now  func() time.Time
}

func NewStore(path string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{path: path, log: log.Named("state"), now: time.Now}
}

func (s *Store) Path() string       { return s.path }
func (s *Store) BackupPath() string { return s.path + ".bak" }
func (s *Store) LockPath() string   { return s.path + ".lock" }

// Load возвращает последнее сохранённое состояние. Нет файла — дефолт.
// Битый файл — пробуем .bak, и только потом дефолт.
func (s *Store) Load() (PositionState, error) {
	st, err := readState(s.path)
	switch {
	case err == nil:
	case os.IsNotExist(errors.Cause(err)):
		return Default(), nil
	default:
		s.log.Warn("state file unreadable, trying backup", zap.String("path", s.path), zap.Error(err))
		st, err = readState(s.BackupPath())
		if err != nil {
			s.log.Error("backup unreadable, falling back to defaults",
				zap.String("path", s.BackupPath()), zap.Error(err))
			return Default(), nil
		}
	}

	if err := st.Validate(); err != nil {
		return PositionState{}, errors.Wrapf(err, "load %s", s.path)
	}
	return st, nil
}

// Save проставляет last_updated_at и атомарно заменяет файл состояния.
func (s *Store) Save(st *PositionState) error {
	if err := st.Validate(); err != nil {
		return errors.Wrap(err, "refusing to save invalid state")
	}

	now := s.now().UTC()
	st.LastUpdatedAt = &now

	payload, err := sonic.ConfigStd.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create state dir")
	}

	tmp := s.path + ".tmp"
	if err := writeFileSync(tmp, payload); err != nil {
		return errors.Wrap(err, "write temp state")
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := copyFile(s.path, s.BackupPath()); err != nil {
			_ = os.Remove(tmp)
			return errors.Wrap(err, "backup state")
		}
	}

	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "rename temp state")
	}
	return nil
}

func readState(path string) (PositionState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PositionState{}, errors.WithStack(err)
	}
	st := Default()
	if err := sonic.ConfigStd.Unmarshal(raw, &st); err != nil {
		return PositionState{}, errors.Wrapf(err, "decode %s", path)
	}
	return st, nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
