package params

import (
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Exchange struct {
	// QuoteToken is the settlement token address (PBL).
	QuoteToken common.Address
	// Owner may update token registrations and the system commission.
	Owner common.Address
	// Custody is the account the exchange holds external funds under.
	Custody common.Address
}

type Node struct {
	// ListenAddr is the REST/WebSocket bind address.
	ListenAddr string
	// DBPath is the Pebble database directory. Empty runs memory-only.
	DBPath string
	// LogFile receives the JSON log stream alongside stdout.
	LogFile string
}

type Config struct {
	Exchange Exchange
	Node     Node
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			QuoteToken: common.HexToAddress("0x0000000000000000000000000000000000000b41"),
			Owner:      common.HexToAddress("0x0000000000000000000000000000000000000001"),
			Custody:    common.HexToAddress("0x00000000000000000000000000000000000000e1"),
		},
		Node: Node{
			ListenAddr: ":8080",
			DBPath:     "data/exchange.db",
			LogFile:    "data/exchange.log",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if v := os.Getenv("QUOTE_TOKEN_ADDR"); common.IsHexAddress(v) {
		cfg.Exchange.QuoteToken = common.HexToAddress(v)
	}
	if v := os.Getenv("EXCHANGE_OWNER_ADDR"); common.IsHexAddress(v) {
		cfg.Exchange.Owner = common.HexToAddress(v)
	}
	if v := os.Getenv("EXCHANGE_CUSTODY_ADDR"); common.IsHexAddress(v) {
		cfg.Exchange.Custody = common.HexToAddress(v)
	}

	cfg.Node.ListenAddr = getEnv("LISTEN_ADDR", cfg.Node.ListenAddr)
	cfg.Node.DBPath = getEnv("DB_PATH", cfg.Node.DBPath)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
