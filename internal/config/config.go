package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config is the process-wide configuration. It is loaded once at startup and
// handed to constructors; nothing reads it through globals.
type Config struct {
	Debug         bool          `mapstructure:"debug"`
	Timezone      string        `mapstructure:"timezone"`
	UUIDNamespace string        `mapstructure:"uuid_namespace"`
	TraceDir      string        `mapstructure:"trace_dir"`
	Headless      bool          `mapstructure:"headless"`
	OTP           OTPConfig     `mapstructure:"otp"`
	JMAP          JMAPConfig    `mapstructure:"jmap"`
	VoIPms        VoIPmsConfig  `mapstructure:"voipms"`
	BMO           BMOConfig     `mapstructure:"bmo"`
	Tangerine     TangerineConf `mapstructure:"tangerine"`
	Manulife      ManulifeConf  `mapstructure:"manulife"`
	Ledger        LedgerConfig  `mapstructure:"ledger"`
	YNAB          YNABConfig    `mapstructure:"ynab"`
	Notion        NotionConfig  `mapstructure:"notion"`
	GCS           GCSConfig     `mapstructure:"gcs"`
	RunLog        RunLogConfig  `mapstructure:"runlog"`
	ConfigPath    string        `mapstructure:"-"`
}

type OTPConfig struct {
	PollDelay      time.Duration `mapstructure:"poll_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	// MaxWait bounds the whole polling loop; zero keeps polling until the
	// process is stopped.
	MaxWait time.Duration `mapstructure:"max_wait"`
}

type JMAPConfig struct {
	SessionURL  string `mapstructure:"session_url"`
	BearerToken string `mapstructure:"bearer_token"`
}

type VoIPmsConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DID      string `mapstructure:"did"`
	Timezone string `mapstructure:"timezone"`
}

type BMOConfig struct {
	CardNumber string `mapstructure:"card_number"`
	Password   string `mapstructure:"password"`
}

type TangerineConf struct {
	LoginID string `mapstructure:"login_id"`
	PIN     string `mapstructure:"pin"`
}

type ManulifeConf struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LedgerConfig struct {
	Backend string `mapstructure:"backend"`
}

type YNABConfig struct {
	AccessToken string `mapstructure:"access_token"`
	BudgetID    string `mapstructure:"budget_id"`
	BaseURL     string `mapstructure:"base_url"`
}

type NotionConfig struct {
	Token          string `mapstructure:"token"`
	AccountsDB     string `mapstructure:"accounts_db"`
	TransactionsDB string `mapstructure:"transactions_db"`
}

type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

type RunLogConfig struct {
	Project string `mapstructure:"project"`
	Dataset string `mapstructure:"dataset"`
}

const (
	BackendYNAB   = "ynab"
	BackendNotion = "notion"
)

func NewDefault() *Config {
	return &Config{
		Timezone: "America/Toronto",
		TraceDir: "traces",
		Headless: true,
		OTP: OTPConfig{
			PollDelay:      time.Second,
			AttemptTimeout: time.Minute,
		},
		VoIPms: VoIPmsConfig{Timezone: "America/New_York"},
		Ledger: LedgerConfig{Backend: BackendYNAB},
		YNAB:   YNABConfig{BaseURL: "https://api.ynab.com/v1"},
		RunLog: RunLogConfig{Dataset: "banksync"},
	}
}

// Load reads the optional config file at path and overlays BANKSYNC_*
// environment variables (BANKSYNC_YNAB_BUDGET_ID -> ynab.budget_id).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, NewDefault())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("BANKSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := NewDefault()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from the config file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("debug", d.Debug)
	v.SetDefault("timezone", d.Timezone)
	v.SetDefault("uuid_namespace", d.UUIDNamespace)
	v.SetDefault("trace_dir", d.TraceDir)
	v.SetDefault("headless", d.Headless)
	v.SetDefault("otp.poll_delay", d.OTP.PollDelay)
	v.SetDefault("otp.attempt_timeout", d.OTP.AttemptTimeout)
	v.SetDefault("otp.max_wait", d.OTP.MaxWait)
	v.SetDefault("jmap.session_url", "")
	v.SetDefault("jmap.bearer_token", "")
	v.SetDefault("voipms.username", "")
	v.SetDefault("voipms.password", "")
	v.SetDefault("voipms.did", "")
	v.SetDefault("voipms.timezone", d.VoIPms.Timezone)
	v.SetDefault("bmo.card_number", "")
	v.SetDefault("bmo.password", "")
	v.SetDefault("tangerine.login_id", "")
	v.SetDefault("tangerine.pin", "")
	v.SetDefault("manulife.username", "")
	v.SetDefault("manulife.password", "")
	v.SetDefault("ledger.backend", d.Ledger.Backend)
	v.SetDefault("ynab.access_token", "")
	v.SetDefault("ynab.budget_id", "")
	v.SetDefault("ynab.base_url", d.YNAB.BaseURL)
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.accounts_db", "")
	v.SetDefault("notion.transactions_db", "")
	v.SetDefault("gcs.bucket", "")
	v.SetDefault("runlog.project", "")
	v.SetDefault("runlog.dataset", d.RunLog.Dataset)
}

// Namespace parses the UUID namespace used to derive account ids.
func (c *Config) Namespace() (uuid.UUID, error) {
	ns, err := uuid.Parse(c.UUIDNamespace)
	if err != nil {
		return uuid.Nil, fmt.Errorf("uuid_namespace: %w", err)
	}
	return ns, nil
}

// Location resolves the ledger time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

// Validate checks the keys needed to sync the given source into the
// configured ledger backend.
func (c *Config) Validate(source string) error {
	var errs []error
	require := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	if _, err := c.Namespace(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	switch source {
	case "bmo":
		require("bmo.card_number", c.BMO.CardNumber)
		require("bmo.password", c.BMO.Password)
		require("jmap.session_url", c.JMAP.SessionURL)
		require("jmap.bearer_token", c.JMAP.BearerToken)
	case "tangerine":
		require("tangerine.login_id", c.Tangerine.LoginID)
		require("tangerine.pin", c.Tangerine.PIN)
		c.requireVoIPms(require)
	case "manulife-bank":
		require("manulife.username", c.Manulife.Username)
		require("manulife.password", c.Manulife.Password)
		c.requireVoIPms(require)
	}

	switch c.Ledger.Backend {
	case BackendYNAB:
		require("ynab.access_token", c.YNAB.AccessToken)
		require("ynab.budget_id", c.YNAB.BudgetID)
	case BackendNotion:
		require("notion.token", c.Notion.Token)
		require("notion.accounts_db", c.Notion.AccountsDB)
		require("notion.transactions_db", c.Notion.TransactionsDB)
	default:
		errs = append(errs, fmt.Errorf("ledger.backend %q is not one of %q, %q", c.Ledger.Backend, BackendYNAB, BackendNotion))
	}

	return errors.Join(errs...)
}

func (c *Config) requireVoIPms(require func(key, value string)) {
	require("voipms.username", c.VoIPms.Username)
	require("voipms.password", c.VoIPms.Password)
	require("voipms.did", c.VoIPms.DID)
}
