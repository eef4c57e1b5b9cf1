package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"gc_bot/internal/backtest"
	"gc_bot/internal/exchange"
	"gc_bot/internal/execution"
	"gc_bot/internal/models"
	"gc_bot/internal/notify"
	"gc_bot/internal/runner"
	"gc_bot/internal/state"
	"gc_bot/internal/strategy"
	"gc_bot/pkg/db"
	"gc_bot/pkg/logger"
	"gc_bot/pkg/tracing"
)

const (
	configFilePathENV = "CONFIG_FILE"
	defaultConfigFile = "configs/values_local.yaml"
	envPrefix         = "GCBOT"
)

type Paths struct {
	State   string `mapstructure:"state"`
	Ledger  string `mapstructure:"ledger"`
	Journal string `mapstructure:"journal"`
	Metrics string `mapstructure:"metrics"`
}

type LedgerConfig struct {
	Driver     string `mapstructure:"driver"` // csv | postgres | sqlite
	SQLitePath string `mapstructure:"sqlite_path"`
}

type LockConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Poll    time.Duration `mapstructure:"poll"`
}

type BacktestConfig struct {
	ForceCloseLast bool `mapstructure:"force_close_last"`
	Lookback       int  `mapstructure:"lookback"`
}

type NotifyConfig struct {
	Slack    notify.SlackConfig    `mapstructure:"slack"`
	Telegram notify.TelegramConfig `mapstructure:"telegram"`
}

type SchedulerConfig struct {
	Minute int `mapstructure:"minute"`
}

type HealthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// Config — вся конфигурация бота. Собирается один раз в Load и дальше
// передаётся в конструкторы явно.
type Config struct {
	Mode      models.Mode `mapstructure:"mode"`
	Symbol    string      `mapstructure:"symbol"`
	Timeframe string      `mapstructure:"timeframe"`
	Limit     int         `mapstructure:"limit"`
	Timezone  string      `mapstructure:"timezone"`

	Paths        Paths                     `mapstructure:"paths"`
	Ledger       LedgerConfig              `mapstructure:"ledger"`
	Lock         LockConfig                `mapstructure:"lock"`
	Signal       strategy.Params           `mapstructure:"signal"`
	Sizing       execution.Sizing          `mapstructure:"sizing"`
	Exits        execution.Exits           `mapstructure:"exits"`
	Fees         execution.Costs           `mapstructure:"fees"`
	DailySummary runner.DailySummaryConfig `mapstructure:"daily_summary"`
	Backtest     BacktestConfig            `mapstructure:"backtest"`
	Exchange     exchange.Config           `mapstructure:"exchange"`
	Notify       NotifyConfig              `mapstructure:"notify"`
	Scheduler    SchedulerConfig           `mapstructure:"scheduler"`
	Health       HealthConfig              `mapstructure:"health"`
	Tracing      tracing.Config            `mapstructure:"tracing"`
	Log          logger.Config             `mapstructure:"log"`
	Postgres     PostgresConfig            `mapstructure:"postgres"`
}

// флаг -> ключ конфигурации
var flagKeys = map[string]string{
	"mode":         "mode",
	"symbol":       "symbol",
	"timeframe":    "timeframe",
	"limit":        "limit",
	"state-path":   "paths.state",
	"ledger-dir":   "paths.ledger",
	"ledger":       "ledger.driver",
	"log-level":    "log.level",
	"short-window": "signal.short_window",
	"long-window":  "signal.long_window",
}

// Flags регистрирует общие флаги командной строки.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to YAML config (default $CONFIG_FILE or "+defaultConfigFile+")")
	fs.String("mode", "", "paper | real")
	fs.String("symbol", "", "instrument, e.g. BTC-USDT")
	fs.String("timeframe", "", "candle timeframe, e.g. 1h")
	fs.Int("limit", 0, "bars to fetch per cycle")
	fs.String("state-path", "", "position state file")
	fs.String("ledger-dir", "", "csv ledger directory")
	fs.String("ledger", "", "ledger driver: csv | postgres | sqlite")
	fs.String("log-level", "", "debug | info | warn | error")
	fs.Int("short-window", 0, "short SMA window")
	fs.Int("long-window", 0, "long SMA window")
}

// Load: .env, значения по умолчанию, YAML-файл, переменные GCBOT_*, флаги.
// Каждый следующий источник перекрывает предыдущий. flags может быть nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path == "" && flags != nil {
		if f := flags.Lookup("config"); f != nil {
			path = f.Value.String()
		}
	}
	if path == "" {
		path = os.Getenv(configFilePathENV)
	}
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	if explicit || fileExists(path) {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errors.Wrapf(err, "bind flag %s", name)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	sig := strategy.DefaultParams()
	siz := execution.DefaultSizing()
	ex := execution.DefaultExits()
	fees := execution.DefaultCosts()
	okx := exchange.DefaultConfig()
	slack := notify.DefaultSlackConfig()

	v.SetDefault("mode", string(models.ModePaper))
	v.SetDefault("symbol", "BTC-USDT")
	v.SetDefault("timeframe", "1h")
	v.SetDefault("limit", 200)
	v.SetDefault("timezone", "UTC")

	v.SetDefault("paths.state", "./data/state/state.json")
	v.SetDefault("paths.ledger", "./data/ledger")
	v.SetDefault("paths.journal", "./data/logs")
	v.SetDefault("paths.metrics", "./data/metrics/metrics.csv")

	v.SetDefault("ledger.driver", "csv")
	v.SetDefault("ledger.sqlite_path", "./data/ledger/ledger.db")

	v.SetDefault("lock.timeout", state.DefaultLockTimeout)
	v.SetDefault("lock.poll", state.DefaultLockPoll)

	v.SetDefault("signal.short_window", sig.ShortWindow)
	v.SetDefault("signal.long_window", sig.LongWindow)
	v.SetDefault("signal.epsilon", sig.Epsilon)
	v.SetDefault("signal.rsi.enabled", sig.RSI.Enabled)
	v.SetDefault("signal.rsi.period", sig.RSI.Period)

	v.SetDefault("sizing.notional", siz.NotionalQuote)
	v.SetDefault("sizing.initial_capital", siz.InitialCapital)

	v.SetDefault("exits.take_profit_pct", ex.TakeProfitPct)
	v.SetDefault("exits.stop_loss_pct", ex.StopLossPct)
	v.SetDefault("exits.prefer_take_profit", ex.PreferTakeProfit)

	v.SetDefault("fees.slippage_bps", fees.SlippageBps)
	v.SetDefault("fees.taker_fee_bps", fees.TakerFeeBps)

	v.SetDefault("daily_summary.enabled", true)
	v.SetDefault("daily_summary.hour", 23)

	v.SetDefault("backtest.force_close_last", true)
	v.SetDefault("backtest.lookback", 0)

	v.SetDefault("exchange.base_url", okx.BaseURL)
	v.SetDefault("exchange.simulated", okx.Simulated)
	v.SetDefault("exchange.timeout", okx.Timeout)
	v.SetDefault("exchange.retries", okx.Retries)
	v.SetDefault("exchange.backoff", okx.Backoff)
	v.SetDefault("exchange.rate_per_sec", okx.RatePerSec)
	v.SetDefault("exchange.page_limit", okx.PageLimit)

	v.SetDefault("notify.slack.username", slack.Username)
	v.SetDefault("notify.slack.icon_emoji", slack.IconEmoji)
	v.SetDefault("notify.slack.timeout", slack.Timeout)
	v.SetDefault("notify.slack.max_retries", slack.MaxRetries)
	v.SetDefault("notify.slack.backoff_factor", slack.BackoffFactor)
	v.SetDefault("notify.telegram.chat_id", 0)

	v.SetDefault("scheduler.minute", 5)

	v.SetDefault("health.enabled", true)
	v.SetDefault("health.addr", ":8080")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service", "gc_bot")
	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("postgres.max_conn_lifetime", time.Hour)
}

// bindEnv — ключи без значения по умолчанию (секреты, опциональные числа)
// viper сам из окружения не подхватит. Плюс привычные имена без префикса.
func bindEnv(v *viper.Viper) error {
	binds := map[string][]string{
		"exchange.api_key":         {"GCBOT_EXCHANGE_API_KEY", "OKX_API_KEY"},
		"exchange.api_secret":      {"GCBOT_EXCHANGE_API_SECRET", "OKX_API_SECRET"},
		"exchange.passphrase":      {"GCBOT_EXCHANGE_PASSPHRASE", "OKX_PASSPHRASE"},
		"notify.slack.webhook_url": {"GCBOT_NOTIFY_SLACK_WEBHOOK_URL", "SLACK_WEBHOOK_URL"},
		"notify.telegram.token":    {"GCBOT_NOTIFY_TELEGRAM_TOKEN", "TELEGRAM_TOKEN"},
		"notify.telegram.chat_id":  {"GCBOT_NOTIFY_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID"},
		"postgres.dsn":             {"GCBOT_POSTGRES_DSN", "DATABASE_DSN"},
		"sizing.notional_fraction": {"GCBOT_SIZING_NOTIONAL_FRACTION"},
		"signal.rsi.min":           {"GCBOT_SIGNAL_RSI_MIN"},
		"signal.rsi.max":           {"GCBOT_SIGNAL_RSI_MAX"},
	}
	for key, envs := range binds {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return errors.Wrapf(err, "bind env %s", key)
		}
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (c *Config) Validate() error {
	if err := c.Signal.Validate(); err != nil {
		return errors.Wrap(err, "signal")
	}
	switch c.Mode {
	case models.ModePaper, models.ModeReal:
	default:
		return errors.Errorf("mode must be paper or real, got %q", c.Mode)
	}
	if c.Symbol == "" {
		return errors.New("symbol is empty")
	}
	if c.Limit <= c.Signal.LongWindow {
		return errors.Errorf("limit must be > signal.long_window (%d), got %d", c.Signal.LongWindow, c.Limit)
	}
	if lb := c.Backtest.Lookback; lb < 0 || (lb > 0 && lb <= c.Signal.LongWindow) {
		return errors.Errorf("backtest.lookback must be 0 or > signal.long_window (%d), got %d", c.Signal.LongWindow, lb)
	}
	if c.Sizing.NotionalQuote <= 0 {
		return errors.Errorf("sizing.notional must be > 0, got %g", c.Sizing.NotionalQuote)
	}
	if f := c.Sizing.NotionalFraction; f != nil && (*f <= 0 || *f > 1) {
		return errors.Errorf("sizing.notional_fraction must be in (0, 1], got %g", *f)
	}
	if c.Exits.TakeProfitPct <= 0 || c.Exits.StopLossPct <= 0 || c.Exits.StopLossPct >= 1 {
		return errors.Errorf("exits: take_profit_pct > 0 and 0 < stop_loss_pct < 1 required")
	}
	if c.Mode == models.ModeReal &&
		(c.Exchange.APIKey == "" || c.Exchange.APISecret == "" || c.Exchange.Passphrase == "") {
		return errors.New("real mode requires exchange api_key, api_secret and passphrase")
	}
	switch c.Ledger.Driver {
	case "csv", "sqlite":
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("ledger driver postgres requires postgres.dsn")
		}
	default:
		return errors.Errorf("ledger.driver must be csv, postgres or sqlite, got %q", c.Ledger.Driver)
	}
	if c.Scheduler.Minute < 0 || c.Scheduler.Minute > 59 {
		return errors.Errorf("scheduler.minute must be 0..59, got %d", c.Scheduler.Minute)
	}
	if c.DailySummary.Hour < 0 || c.DailySummary.Hour > 23 {
		return errors.Errorf("daily_summary.hour must be 0..23, got %d", c.DailySummary.Hour)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "timezone %q", c.Timezone)
	}
	return loc, nil
}

// RunnerConfig — срез конфигурации для runner.New.
func (c *Config) RunnerConfig() (runner.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return runner.Config{}, err
	}
	return runner.Config{
		Symbol:       c.Symbol,
		Timeframe:    c.Timeframe,
		Limit:        c.Limit,
		Mode:         c.Mode,
		Signal:       c.Signal,
		Sizing:       c.Sizing,
		Exits:        c.Exits,
		Costs:        c.Fees,
		LockTimeout:  c.Lock.Timeout,
		Location:     loc,
		DailySummary: c.DailySummary,
		MetricsPath:  c.Paths.Metrics,
	}, nil
}

func (c *Config) BacktestConfig() backtest.Config {
	return backtest.Config{
		Symbol:         c.Symbol,
		Signal:         c.Signal,
		Sizing:         c.Sizing,
		Exits:          c.Exits,
		Costs:          c.Fees,
		ForceCloseLast: c.Backtest.ForceCloseLast,
		Lookback:       c.Backtest.Lookback,
	}
}

func (c *Config) PoolConfig() db.PoolConfig {
	return db.PoolConfig{
		DSN:             c.Postgres.DSN,
		MaxConns:        c.Postgres.MaxConns,
		MaxConnLifetime: c.Postgres.MaxConnLifetime,
	}
}
