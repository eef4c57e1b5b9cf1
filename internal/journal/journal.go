package journal

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Journal пишет события цикла в <dir>/YYYYMMDD.jsonl, одна строка JSON на событие.
// Файл выбирается по дате в зоне loc и переключается в полночь.
type Journal struct {
	dir string
	loc *time.Location
	now func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
	log  *zap.Logger
}

func New(dir string, loc *time.Location) (*Journal, error) {
	if dir == "" {
		return nil, errors.New("journal dir is empty")
	}
	if loc == nil {
		loc = time.UTC
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create journal dir")
	}
	return &Journal{dir: dir, loc: loc, now: time.Now}, nil
}

// Write добавляет событие. Ошибки записи журнала не должны ломать цикл,
// поэтому возвращаются только для логирования.
func (j *Journal) Write(event string, fields ...zap.Field) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.rotate(); err != nil {
		return err
	}
	j.log.Info(event, fields...)
	return nil
}

// Path — файл журнала на дату t.
func (j *Journal) Path(t time.Time) string {
	return filepath.Join(j.dir, t.In(j.loc).Format("20060102")+".jsonl")
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closeFile()
}

func (j *Journal) rotate() error {
	now := j.now()
	day := now.In(j.loc).Format("20060102")
	if j.file != nil && day == j.day {
		return nil
	}
	if err := j.closeFile(); err != nil {
		return err
	}

	f, err := os.OpenFile(j.Path(now), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open journal file")
	}

	enc := zapcore.EncoderConfig{
		TimeKey:        "ts",
		MessageKey:     "event",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(f), zapcore.DebugLevel)

	j.file = f
	j.day = day
	j.log = zap.New(core, zap.WithClock(clock{j.now}))
	return nil
}

func (j *Journal) closeFile() error {
	if j.file == nil {
		return nil
	}
	_ = j.log.Sync()
	err := j.file.Close()
	j.file, j.log, j.day = nil, nil, ""
	return errors.Wrap(err, "close journal file")
}

// clock отдаёт zap время журнала, чтобы ts совпадал с выбором файла.
type clock struct{ now func() time.Time }

func (c clock) Now() time.Time { return c.now().UTC() }

func (c clock) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }
