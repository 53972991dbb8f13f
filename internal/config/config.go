package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Hub holds all configuration for the hub server.
type Hub struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
	// PublicAddress is advertised to clients in GAME_LAUNCH_EVENT. Game
	// children bind locally; players connect to this address.
	PublicAddress string `yaml:"public_address"`

	// Storage
	DataDir    string `yaml:"data_dir"`
	UploadRoot string `yaml:"upload_root"`

	// Protocol limits
	MaxFrameSize  uint32 `yaml:"max_frame_size"`
	ChunkSize     int    `yaml:"chunk_size"`
	SendQueueSize int    `yaml:"send_queue_size"`

	// Timeouts
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	ReadyCheckTimeout time.Duration `yaml:"ready_check_timeout"`
}

// Default returns a Hub config with sensible defaults.
func Default() Hub {
	return Hub{
		BindAddress:       "0.0.0.0",
		Port:              0, // 0 = prompt the operator at startup
		PublicAddress:     "127.0.0.1",
		DataDir:           "data",
		UploadRoot:        "uploaded_games",
		MaxFrameSize:      8 << 20,
		ChunkSize:         4096,
		SendQueueSize:     256,
		WriteTimeout:      5 * time.Second,
		ReadTimeout:       0, // 0 = no idle disconnect; clients keep one connection open
		ReadyCheckTimeout: 60 * time.Second,
	}
}

// Load reads hub config from a YAML file.
// If the file doesn't exist, returns defaults.
func Load(path string) (Hub, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
