package params

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type API struct {
	Addr string
	// AllowedOrigins for CORS (frontend hosts)
	AllowedOrigins []string
}

type Gossip struct {
	Enabled    bool
	ListenAddr string // libp2p multiaddr, e.g. /ip4/0.0.0.0/tcp/9000
	Bootstrap  []string
}

type Node struct {
	DBPath  string
	LogFile string
	// Owner is the hex address allowed to call emergency sweep.
	// Empty means sweep stays disabled until ownership is configured.
	Owner string
}

type Config struct {
	Node   Node
	API    API
	Gossip Gossip
}

func Default() Config {
	return Config{
		Node: Node{
			DBPath:  "data/swapd.db",
			LogFile: "data/node.log",
		},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Gossip: Gossip{
			Enabled:    false,
			ListenAddr: "/ip4/0.0.0.0/tcp/9000",
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

	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Node.DBPath = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("OWNER_ADDRESS"); v != "" {
		cfg.Node.Owner = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("API_ORIGINS"); v != "" {
		cfg.API.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("GOSSIP"); v != "" {
		cfg.Gossip.Enabled = v == "true"
	}
	if v := os.Getenv("GOSSIP_LISTEN"); v != "" {
		cfg.Gossip.ListenAddr = v
	}
	if v := os.Getenv("GOSSIP_BOOTSTRAP"); v != "" {
		cfg.Gossip.Bootstrap = strings.Split(v, ",")
	}

	return cfg
}
