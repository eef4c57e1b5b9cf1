package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://www.okx.com"

type Config struct {
	BaseURL    string        `mapstructure:"base_url" json:"base_url" yaml:"base_url"`
	APIKey     string        `mapstructure:"api_key" json:"-" yaml:"-"`
	APISecret  string        `mapstructure:"api_secret" json:"-" yaml:"-"`
	Passphrase string        `mapstructure:"passphrase" json:"-" yaml:"-"`
	Simulated  bool          `mapstructure:"simulated" json:"simulated" yaml:"simulated"` // демо-торговля OKX
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	Retries    int           `mapstructure:"retries" json:"retries" yaml:"retries"`
	Backoff    time.Duration `mapstructure:"backoff" json:"backoff" yaml:"backoff"`
	RatePerSec float64       `mapstructure:"rate_per_sec" json:"rate_per_sec" yaml:"rate_per_sec"`
	PageLimit  int           `mapstructure:"page_limit" json:"page_limit" yaml:"page_limit"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		Timeout:    10 * time.Second,
		Retries:    3,
		Backoff:    time.Second,
		RatePerSec: 10,
		PageLimit:  100,
	}
}

// Client — REST-клиент OKX: свечи, параметры инструмента и рыночные ордера.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
	now     func() time.Time
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retries <= 0 {
		cfg.Retries = def.Retries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = def.RatePerSec
	}
	if cfg.PageLimit <= 0 || cfg.PageLimit > 300 {
		cfg.PageLimit = def.PageLimit
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		log:     log.Named("okx"),
		now:     time.Now,
	}
}

// HasCredentials — заданы ли ключи для приватных методов.
func (c *Client) HasCredentials() bool {
	return c.cfg.APIKey != "" && c.cfg.APISecret != "" && c.cfg.Passphrase != ""
}

// envelope — общий ответ OKX: code "0" — успех.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// apiError — ответ с ненулевым code; повторять такой запрос бессмысленно.
type apiError struct {
	Code string
	Msg  string
}

func (e *apiError) Error() string { return "okx error " + e.Code + ": " + e.Msg }

// get выполняет GET с повторами. Публичные и приватные GET идемпотентны.
func (c *Client) get(ctx context.Context, path string, signed bool, out any) error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		lastErr = c.do(ctx, http.MethodGet, path, nil, signed, out)
		if lastErr == nil {
			return nil
		}
		var apiErr *apiError
		if errors.As(lastErr, &apiErr) || ctx.Err() != nil {
			return lastErr
		}
		if attempt == c.cfg.Retries {
			break
		}
		wait := time.Duration(float64(c.cfg.Backoff) * math.Pow(1.5, float64(attempt-1)))
		c.log.Warn("[OKX] request failed, retrying",
			zap.String("path", path), zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(lastErr))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Wrap(ctx.Err(), "okx retry wait")
		case <-t.C:
		}
	}
	return errors.Wrapf(lastErr, "GET %s after %d attempts", path, c.cfg.Retries)
}

// post — один запрос без повторов: ордер неидемпотентен.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := sonic.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal body")
	}
	return c.do(ctx, http.MethodPost, path, payload, true, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limit wait")
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rd)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		c.signRequest(req, method, path, body)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return errors.Errorf("%s %s: http %d: %s", method, path, resp.StatusCode, truncate(data))
	}

	var env envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return errors.Wrapf(err, "decode %s: %s", path, truncate(data))
	}
	if env.Code != "0" {
		// детали ордера лежат в data[].sCode, отдадим их вызывающему
		if out != nil && len(env.Data) > 0 {
			_ = sonic.Unmarshal(env.Data, out)
		}
		return &apiError{Code: env.Code, Msg: env.Msg}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return errors.Wrapf(sonic.Unmarshal(env.Data, out), "decode data %s", path)
}

// signRequest: base64(HMAC-SHA256(ts + METHOD + path + body)).
func (c *Client) signRequest(req *http.Request, method, path string, body []byte) {
	ts := c.now().UTC().Format("2006-01-02T15:04:05.000Z")
	msg := ts + strings.ToUpper(method) + path + string(body)
	h := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	h.Write([]byte(msg))

	req.Header.Set("OK-ACCESS-KEY", c.cfg.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", base64.StdEncoding.EncodeToString(h.Sum(nil)))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.cfg.Passphrase)
	if c.cfg.Simulated {
		req.Header.Set("x-simulated-trading", "1")
	}
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
