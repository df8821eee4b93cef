package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// SeedEnv environment variable holding the signer seed when the config file has none.
const SeedEnv = "WALLET_SEED"

const (
	defaultFeeDebounce       = 500 * time.Millisecond
	defaultPollInterval      = 30 * time.Second
	defaultJournalDir        = "./wal/submissions"
	defaultListenAddr        = ":8080"
	defaultMovementsPageSize = 15
	defaultRateLimit         = "10"
)

type Config struct {
	APIURL            string
	AccountID         string
	Seed              string
	NetworkPassphrase string
	FeeDebounce       time.Duration
	PollInterval      time.Duration
	JournalDir        string
	ListenAddr        string
	LogLevel          zapcore.Level
	MovementsPageSize int
	// RateLimit API requests per second.
	RateLimit decimal.Decimal
	// Setup run the configuration wizard instead of the wallet.
	Setup bool
}

type ConfigTmp struct {
	APIURL            string        `yaml:"api_url"`
	AccountID         string        `yaml:"account_id,omitempty"`
	Seed              string        `yaml:"seed,omitempty"`
	NetworkPassphrase string        `yaml:"network_passphrase,omitempty"`
	FeeDebounce       time.Duration `yaml:"fee_debounce,omitempty"`
	PollInterval      time.Duration `yaml:"poll_interval,omitempty"`
	JournalDir        string        `yaml:"journal_dir,omitempty"`
	ListenAddr        string        `yaml:"listen_addr,omitempty"`
	LogLevel          string        `yaml:"log_level,omitempty"`
	MovementsPageSize int           `yaml:"movements_page_size,omitempty"`
	RateLimitStr      string        `yaml:"rate_limit,omitempty"`
}

// Get reads the configuration from the command line of the process.
func Get() (Config, error) {
	return Parse(os.Args[1:])
}

// Parse reads --config path.yaml if given, otherwise the remaining flags.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("walletd", flag.ContinueOnError)
	path := fs.String("config", "", "path to yaml config")
	setup := fs.Bool("setup", false, "run the configuration wizard")
	apiURL := fs.String("api-url", "", "ledger API base URL")
	accountID := fs.String("account-id", "", "wallet account id, derived from the seed when empty")
	passphrase := fs.String("network-passphrase", "", "network passphrase, fetched from the API when empty")
	feeDebounce := fs.Duration("fee-debounce", defaultFeeDebounce, "delay before a fee quote is requested")
	pollInterval := fs.Duration("poll-interval", defaultPollInterval, "balances reload interval")
	journalDir := fs.String("journal-dir", defaultJournalDir, "submission journal directory")
	listen := fs.String("listen", defaultListenAddr, "web server address")
	logLevel := fs.String("log-level", "info", "log level")
	pageSize := fs.Int("movements-page-size", defaultMovementsPageSize, "movements page size")
	rateLimit := fs.String("rate-limit", defaultRateLimit, "API requests per second")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *setup {
		return Config{Setup: true}, nil
	}
	if *path != "" {
		return getYaml(*path)
	}

	return build(ConfigTmp{
		APIURL:            *apiURL,
		AccountID:         *accountID,
		NetworkPassphrase: *passphrase,
		FeeDebounce:       *feeDebounce,
		PollInterval:      *pollInterval,
		JournalDir:        *journalDir,
		ListenAddr:        *listen,
		LogLevel:          *logLevel,
		MovementsPageSize: *pageSize,
		RateLimitStr:      *rateLimit,
	})
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config")
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse yaml config")
	}

	return build(tmp)
}

func build(c ConfigTmp) (Config, error) {
	if c.APIURL == "" {
		return Config{}, errors.New("'api_url' is required")
	}

	seed := c.Seed
	if seed == "" {
		seed = os.Getenv(SeedEnv)
	}
	if seed == "" {
		return Config{}, fmt.Errorf("signer seed is required, set 'seed' or %s", SeedEnv)
	}

	cfg := Config{
		APIURL:            c.APIURL,
		AccountID:         c.AccountID,
		Seed:              seed,
		NetworkPassphrase: c.NetworkPassphrase,
		FeeDebounce:       c.FeeDebounce,
		PollInterval:      c.PollInterval,
		JournalDir:        c.JournalDir,
		ListenAddr:        c.ListenAddr,
		MovementsPageSize: c.MovementsPageSize,
	}

	if cfg.FeeDebounce <= 0 {
		cfg.FeeDebounce = defaultFeeDebounce
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.JournalDir == "" {
		cfg.JournalDir = defaultJournalDir
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.MovementsPageSize <= 0 {
		cfg.MovementsPageSize = defaultMovementsPageSize
	}

	level := c.LogLevel
	if level == "" {
		level = "info"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'log_level' param in config: %w", err)
	}
	cfg.LogLevel = lvl

	rate := c.RateLimitStr
	if rate == "" {
		rate = defaultRateLimit
	}
	cfg.RateLimit, err = decimal.NewFromString(rate)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'rate_limit' param in config (must be a decimal), error: %w", err)
	}
	if !cfg.RateLimit.IsPositive() {
		return Config{}, fmt.Errorf("'rate_limit' must be positive, got %s", cfg.RateLimit)
	}

	return cfg, nil
}
