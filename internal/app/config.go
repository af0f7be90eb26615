package app

import (
	"time"

	"github.com/mizukilab/kaiseki-backend/internal/platform/envutil"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

type Config struct {
	JWTSecretKey    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Environment     string
	Version         string
}

func LoadConfig(log *logger.Logger) Config {
	jwtSecretKey := envutil.GetEnv(log, "JWT_SECRET_KEY", "defaultsecret")
	accessTTLSeconds := envutil.GetEnvAsInt(log, "ACCESS_TOKEN_TTL", 3600)
	refreshTTLSeconds := envutil.GetEnvAsInt(log, "REFRESH_TOKEN_TTL", 86400)
	return Config{
		JWTSecretKey:    jwtSecretKey,
		AccessTokenTTL:  time.Duration(accessTTLSeconds) * time.Second,
		RefreshTokenTTL: time.Duration(refreshTTLSeconds) * time.Second,
		Environment:     envutil.GetEnv(log, "APP_ENV", "development"),
		Version:         envutil.GetEnv(log, "APP_VERSION", "dev"),
	}
}
