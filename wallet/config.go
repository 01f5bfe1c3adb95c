package wallet

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	spark "github.com/lightsparkdev/spark-wallet"
	"github.com/lightsparkdev/spark-wallet/common"
	"github.com/lightsparkdev/spark-wallet/common/keys"
	"github.com/lightsparkdev/spark-wallet/signer"
	"github.com/lightsparkdev/spark-wallet/so/middleware"
)

// OptimizerConfig controls background leaf consolidation.
type OptimizerConfig struct {
	Enabled bool `yaml:"enabled"`
	// Interval between optimization runs.
	Interval time.Duration `yaml:"interval"`
	// Multiplicity is how many times the minimum leaf count a wallet may hold
	// before it is consolidated.
	Multiplicity int `yaml:"multiplicity"`
}

// Config is the wallet's YAML configuration.
type Config struct {
	Network string `yaml:"network"`
	// Account selects the HD account the wallet's keys are derived under.
	Account uint32 `yaml:"account"`
	// OperatorsFile is the path of the operator registry, see so.LoadRegistry.
	OperatorsFile string `yaml:"operators_file"`
	// FrostSignerAddress is the address of the FROST signer RPC service.
	FrostSignerAddress string `yaml:"frost_signer_address"`
	// UseTokenTransactionSchnorrSignatures selects BIP-340 signatures for token
	// transactions. ECDSA DER signatures are used otherwise.
	UseTokenTransactionSchnorrSignatures bool `yaml:"use_token_transaction_schnorr_signatures"`
	// TokenOwnerKey selects the key the wallet's token outputs are locked to:
	// "identity" or "deposit".
	TokenOwnerKey string `yaml:"token_owner_key"`
	// TransferExpiry is how long a sent transfer stays claimable.
	TransferExpiry time.Duration `yaml:"transfer_expiry"`
	// ServiceProviderIdentityPublicKey is the hex identity key of the settlement
	// service that swaps, exits and pays invoices.
	ServiceProviderIdentityPublicKey string                  `yaml:"service_provider_identity_public_key"`
	Client                           middleware.ClientConfig `yaml:"client"`
	Optimizer                        OptimizerConfig         `yaml:"optimizer"`
	// TimelockRefreshInterval is how often owned leaves are checked for a refresh.
	TimelockRefreshInterval time.Duration `yaml:"timelock_refresh_interval"`
	// ClaimInterval is how often pending incoming transfers are claimed in the background.
	ClaimInterval         time.Duration `yaml:"claim_interval"`
	ConnectionIdleTimeout time.Duration `yaml:"connection_idle_timeout"`
	LogLevel              string        `yaml:"log_level"`
}

const (
	TokenOwnerIdentity = "identity"
	TokenOwnerDeposit  = "deposit"
)

const (
	defaultOptimizerInterval       = 10 * time.Minute
	defaultOptimizerMultiplicity   = 5
	defaultTimelockRefreshInterval = time.Hour
	defaultClaimInterval           = time.Minute
)

// DefaultConfig is a regtest configuration with the default retry policy.
func DefaultConfig() Config {
	return Config{
		Network:        "regtest",
		TransferExpiry: spark.DefaultTransferExpiry,
		TokenOwnerKey:  TokenOwnerIdentity,
		Client: middleware.ClientConfig{
			Retry: middleware.DefaultRetryPolicy(),
		},
		Optimizer: OptimizerConfig{
			Interval:     defaultOptimizerInterval,
			Multiplicity: defaultOptimizerMultiplicity,
		},
		TimelockRefreshInterval: defaultTimelockRefreshInterval,
		ClaimInterval:           defaultClaimInterval,
		LogLevel:                "info",
	}
}

// LoadConfig reads a YAML config file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if _, err := c.BitcoinNetwork(); err != nil {
		return err
	}
	if c.ServiceProviderIdentityPublicKey != "" {
		if _, err := c.ServiceProviderKey(); err != nil {
			return err
		}
	}
	switch c.TokenOwnerKey {
	case "", TokenOwnerIdentity, TokenOwnerDeposit:
	default:
		return fmt.Errorf("token_owner_key must be %q or %q, got %q", TokenOwnerIdentity, TokenOwnerDeposit, c.TokenOwnerKey)
	}
	if c.TransferExpiry <= 0 {
		return fmt.Errorf("transfer_expiry must be positive")
	}
	if c.Optimizer.Enabled && c.Optimizer.Interval <= 0 {
		return fmt.Errorf("optimizer.interval must be positive when the optimizer is enabled")
	}
	return nil
}

func (c *Config) BitcoinNetwork() (common.Network, error) {
	return common.NetworkFromString(c.Network)
}

// ServiceProviderKey parses the settlement service identity key. It is zero
// when none is configured.
func (c *Config) ServiceProviderKey() (keys.Public, error) {
	if c.ServiceProviderIdentityPublicKey == "" {
		return keys.Public{}, nil
	}
	key, err := keys.ParsePublicKeyHex(c.ServiceProviderIdentityPublicKey)
	if err != nil {
		return keys.Public{}, fmt.Errorf("invalid service_provider_identity_public_key: %w", err)
	}
	return key, nil
}

// tokenOwnerKey resolves TokenOwnerKey against s. It is zero for the identity key.
func (c *Config) tokenOwnerKey(s signer.Signer) (keys.Private, error) {
	if c.TokenOwnerKey != TokenOwnerDeposit {
		return keys.Private{}, nil
	}
	key, err := s.DepositSigningKey()
	if err != nil {
		return keys.Private{}, fmt.Errorf("failed to derive the token owner key: %w", err)
	}
	return key, nil
}

func (c *Config) optimizerMultiplicity() int {
	if c.Optimizer.Multiplicity <= 0 {
		return defaultOptimizerMultiplicity
	}
	return c.Optimizer.Multiplicity
}
