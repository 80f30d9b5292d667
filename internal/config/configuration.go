package config

import (
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// LoggingConfig configures the process wide logger.
type LoggingConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"text"`
	File   string `envconfig:"FILE"`
}

// SignerConfig selects where the connected account comes from. Exactly one of
// PrivateKey, Mnemonic or Ledger must be set for commands that sign.
type SignerConfig struct {
	PrivateKey  string `envconfig:"PRIVATE_KEY"`
	Mnemonic    string `envconfig:"MNEMONIC"`
	HDPath      string `envconfig:"HD_PATH" default:"m/44'/60'/0'/0/0"`
	Ledger      bool   `envconfig:"LEDGER"`
	LedgerIndex int    `envconfig:"LEDGER_INDEX" default:"0"`
}

// Sources returns how many signer sources are configured.
func (c SignerConfig) Sources() int {
	n := 0
	if c.PrivateKey != "" {
		n++
	}
	if c.Mnemonic != "" {
		n++
	}
	if c.Ledger {
		n++
	}
	return n
}

// ContractsConfig overrides registry addresses for the connected chain.
type ContractsConfig struct {
	Token       string `envconfig:"TOKEN_ADDRESS"`
	Bank        string `envconfig:"BANK_ADDRESS"`
	PermitToken string `envconfig:"PERMIT_TOKEN_ADDRESS"`
	PermitBank  string `envconfig:"PERMIT_BANK_ADDRESS"`
	NFT         string `envconfig:"NFT_ADDRESS"`
	Market      string `envconfig:"MARKET_ADDRESS"`
}

// APIConfig configures the relay HTTP service.
type APIConfig struct {
	Host string `envconfig:"HOST" default:"localhost"`
	Port string `envconfig:"PORT" default:"8080"`
}

// Configuration holds everything the CLI and the relay need.
type Configuration struct {
	RPCURL          string        `envconfig:"RPC_URL" required:"true"`
	ChainID         int64         `envconfig:"CHAIN_ID"`
	DomainStrict    bool          `envconfig:"DOMAIN_STRICT" default:"true"`
	WatchInterval   time.Duration `envconfig:"WATCH_INTERVAL" default:"4s"`
	ReceiptTimeout  time.Duration `envconfig:"RECEIPT_TIMEOUT" default:"2m"`
	DefaultDeadline time.Duration `envconfig:"DEFAULT_DEADLINE" default:"1h"`
	EventCapacity   int           `envconfig:"EVENT_CAPACITY" default:"500"`

	Logging   LoggingConfig   `envconfig:"LOG"`
	Signer    SignerConfig    `envconfig:"SIGNER"`
	Contracts ContractsConfig `envconfig:"CONTRACTS"`
	API       APIConfig       `envconfig:"API"`
}

func loadEnvironment(filename string) error {
	var err error
	if filename != "" {
		err = godotenv.Overload(filename)
	} else {
		err = godotenv.Load()
		// a missing .env is fine, the environment may already be populated
		if os.IsNotExist(err) {
			return nil
		}
	}
	return err
}

// LoadGlobal loads the configuration from the environment, after applying the
// given .env file (or ./.env when filename is empty).
func LoadGlobal(filename string) (*Configuration, error) {
	if err := loadEnvironment(filename); err != nil {
		return nil, errors.Wrap(err, "failed to load environment file")
	}

	config := new(Configuration)
	if err := envconfig.Process("tokenbank", config); err != nil {
		return nil, errors.Wrap(err, "failed to process environment")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values envconfig cannot check on its own.
func (c *Configuration) Validate() error {
	if c.Signer.Sources() > 1 {
		return errors.New("one (and only one) of private key, mnemonic or ledger may be set")
	}
	if c.WatchInterval <= 0 {
		return errors.New("watch interval must be positive")
	}
	if c.ReceiptTimeout <= 0 {
		return errors.New("receipt timeout must be positive")
	}
	if c.DefaultDeadline <= 0 {
		return errors.New("default deadline must be positive")
	}

	overrides := map[string]string{
		"token":        c.Contracts.Token,
		"bank":         c.Contracts.Bank,
		"permit token": c.Contracts.PermitToken,
		"permit bank":  c.Contracts.PermitBank,
		"nft":          c.Contracts.NFT,
		"market":       c.Contracts.Market,
	}
	for name, addr := range overrides {
		if addr != "" && !common.IsHexAddress(addr) {
			return errors.Errorf("invalid %s address: %s", name, addr)
		}
	}

	return nil
}
