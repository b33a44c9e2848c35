package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/redis/go-redis/v9"

	"github.com/veritasvault/vv-auth/adapters/events"
	"github.com/veritasvault/vv-auth/adapters/repo"
	"github.com/veritasvault/vv-auth/adapters/store"
	"github.com/veritasvault/vv-auth/adapters/tokenizer"
	"github.com/veritasvault/vv-auth/ports"
	"github.com/veritasvault/vv-auth/service"
	transport "github.com/veritasvault/vv-auth/transport/http"
)

type config struct {
	Listen     string        `koanf:"listen"`
	Domain     string        `koanf:"domain"`
	URI        string        `koanf:"uri"`
	SessionTTL time.Duration `koanf:"session_ttl"`
	RedisURL   string        `koanf:"redis_url"`
}

func loadConfig() (config, error) {
	cfg := config{
		Listen:     ":9000",
		SessionTTL: time.Hour,
	}

	k := koanf.New(".")

	path := os.Getenv("VVAUTH_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, err
		}
	}

	// VVAUTH_REDIS_URL overrides redis_url, and so on.
	if err := k.Load(env.Provider("VVAUTH_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "VVAUTH_"))
	}), nil); err != nil {
		return cfg, err
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Session tokens are signed with a per-process key; tokens do not
	// survive a restart.
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Fatalf("Failed to generate signing key: %v", err)
	}

	var (
		nonces    ports.NonceStore
		publisher ports.EventPublisher
	)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient := redis.NewClient(opts)

		wmLogger := watermill.NewStdLogger(false, false)
		wmPublisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			wmLogger,
		)
		if err != nil {
			log.Fatalf("Failed to create Redis publisher: %v", err)
		}

		nonces = store.NewRedisStore(redisClient)
		publisher = events.NewWatermillPublisher(wmPublisher)
	} else {
		logger.Warn("no redis configured, nonce replay protection is per-instance only")
		nonces = store.NewMemoryStore()
	}

	users := repo.NewMemoryRepository()
	tok := tokenizer.NewJWTTokenizer(signKey)

	verifier := service.NewVerifier(service.VerifierConfig{
		Domain:     cfg.Domain,
		URI:        cfg.URI,
		SessionTTL: cfg.SessionTTL,
	}, tok, nonces, users, publisher, logger)

	router := transport.SetupRouter(verifier)

	logger.Info("starting verifier", "listen", cfg.Listen)
	if err := router.Run(cfg.Listen); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
