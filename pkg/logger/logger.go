package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var InfoLogger, FatalLogger *zap.Logger

var (
	serviceName = "default"
)

type Config struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// New собирает zap-логгер с полем service. Development — человекочитаемый вывод.
func New(cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return l.With(zap.String("service", serviceName)), nil
}

// SetGlobal ставит логгер для printf-хелперов ниже.
func SetGlobal(l *zap.Logger) {
	InfoLogger = l
	FatalLogger = l
	zap.ReplaceGlobals(l)
}

func Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	pick(InfoLogger).Info(msg)
}

func Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	pick(InfoLogger).Error(msg)
}

func Fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	pick(FatalLogger).Fatal(msg)
}

// fallback пишет в stderr, пока SetGlobal не вызван (например, при ошибке конфига).
var fallback = sync.OnceValue(func() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return l.With(zap.String("service", serviceName))
})

func pick(l *zap.Logger) *zap.Logger {
	if l == nil {
		return fallback()
	}
	return l
}
