package global

import (
	"os"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// AppConfig carries everything the gateway needs at startup. Values come
// from an optional YAML file with env-var overrides on top.
type AppConfig struct {
	NodeID int64  `mapstructure:"node_id"`
	Addr   string `mapstructure:"addr"`

	MongoURI string `mapstructure:"mongo_uri"`
	MongoDB  string `mapstructure:"mongo_db"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	NatsURL string `mapstructure:"nats_url"`

	JWTSecret string `mapstructure:"jwt_secret"`

	// Upload protocol knobs.
	UploadDir    string        `mapstructure:"upload_dir"`
	UploadTmpDir string        `mapstructure:"upload_tmp_dir"`
	MediaBase    string        `mapstructure:"media_base"`
	ChunkSize    int64         `mapstructure:"chunk_size"`
	MaxFileSize  int64         `mapstructure:"max_file_size"`
	UploadTTL    time.Duration `mapstructure:"upload_ttl"`

	// Push dispatcher pool.
	PushWorkers int `mapstructure:"push_workers"`
	PushQueue   int `mapstructure:"push_queue"`
}

func Default() AppConfig {
	return AppConfig{
		NodeID:       1,
		Addr:         ":8080",
		MongoURI:     "mongodb://127.0.0.1:27017",
		MongoDB:      "scproject",
		RedisAddr:    "127.0.0.1:6379",
		RedisDB:      0,
		NatsURL:      "",
		JWTSecret:    "",
		UploadDir:    "media",
		// sibling of UploadDir: the media tree is statically served, and
		// half-assembled .part files must never be reachable through it
		UploadTmpDir: "media_tmp",
		MediaBase:    "/media",
		ChunkSize:    1 << 20, // 1MB
		MaxFileSize:  2 << 30, // 2GB
		UploadTTL:    24 * time.Hour,
		PushWorkers:  4,
		PushQueue:    1024,
	}
}

// Load reads the YAML file at path (if path is non-empty) on top of the
// defaults, then applies env overrides. Unknown keys are ignored.
func Load(path string) (AppConfig, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		var m map[string]any
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return cfg, err
		}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		})
		if err != nil {
			return cfg, err
		}
		if err := dec.Decode(m); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("SC_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("SC_MONGO_URI"); v != "" {
		cfg.MongoURI = v
	}
	if v := os.Getenv("SC_MONGO_DB"); v != "" {
		cfg.MongoDB = v
	}
	if v := os.Getenv("SC_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("SC_REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("SC_NATS_URL"); v != "" {
		cfg.NatsURL = v
	}
	if v := os.Getenv("SC_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("SC_NODE_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.NodeID = n
		}
	}
	if v := os.Getenv("SC_UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
}
