package notify

import (
	"bytes"
	"context"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type SlackConfig struct {
	WebhookURL    string        `mapstructure:"webhook_url" json:"-" yaml:"-"`
	Username      string        `mapstructure:"username" json:"username" yaml:"username"`
	IconEmoji     string        `mapstructure:"icon_emoji" json:"icon_emoji" yaml:"icon_emoji"`
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries" json:"max_retries" yaml:"max_retries"`
	BackoffFactor float64       `mapstructure:"backoff_factor" json:"backoff_factor" yaml:"backoff_factor"`
}

func DefaultSlackConfig() SlackConfig {
	return SlackConfig{
		Username:      "gc-bot",
		IconEmoji:     ":chart_with_upwards_trend:",
		Timeout:       10 * time.Second,
		MaxRetries:    3,
		BackoffFactor: 1.6,
	}
}

// Slack — incoming webhook с повторами: пауза backoff^(attempt-1) секунд.
type Slack struct {
	cfg  SlackConfig
	http *http.Client
	log  *zap.Logger
	unit time.Duration // единица паузы между попытками
}

func NewSlack(cfg SlackConfig, log *zap.Logger) *Slack {
	def := DefaultSlackConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Slack{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, log: log.Named("slack"), unit: time.Second}
}

// Notify без webhook ничего не шлёт и считает это успехом.
func (s *Slack) Notify(ctx context.Context, ev Event) bool {
	if s.cfg.WebhookURL == "" {
		s.log.Warn("[SLACK] webhook url not set, skipping", zap.String("kind", string(ev.Kind)))
		return true
	}

	payload := map[string]any{
		"username":   s.cfg.Username,
		"icon_emoji": s.cfg.IconEmoji,
		"text":       ev.Text,
	}
	if len(ev.Blocks) > 0 {
		payload["blocks"] = ev.Blocks
	}
	body, err := sonic.Marshal(payload)
	if err != nil {
		s.log.Error("[SLACK] marshal payload", zap.Error(err))
		return false
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		if lastErr = s.post(ctx, body); lastErr == nil {
			return true
		}
		wait := time.Duration(math.Pow(s.cfg.BackoffFactor, float64(attempt-1)) * float64(s.unit))
		s.log.Warn("[SLACK] send failed",
			zap.Int("attempt", attempt), zap.Int("max", s.cfg.MaxRetries), zap.Duration("sleep", wait), zap.Error(lastErr))
		if attempt == s.cfg.MaxRetries {
			break
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			s.log.Error("[SLACK] send cancelled", zap.Error(ctx.Err()))
			return false
		case <-t.C:
		}
	}
	s.log.Error("[SLACK] send ultimately failed", zap.String("kind", string(ev.Kind)), zap.Error(lastErr))
	return false
}

func (s *Slack) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "post webhook")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("http %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
