package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	Env                   string
	LogLevel              string
	AllowedOrigin         string
	DatabaseURL           string
	AutoMigrate           bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	KitchenChannel        string
	AuthSecret            string
	AccessTokenTTLMinutes int
	InvoicePrefix         string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	autoMigrate, _ := strconv.ParseBool(getEnv("AUTO_MIGRATE", "false"))

	return Config{
		Port:                  getEnv("PORT", "8080"),
		Env:                   strings.ToLower(getEnv("APP_ENV", "production")),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		AutoMigrate:           autoMigrate,
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		KitchenChannel:        getEnv("KITCHEN_CHANNEL", "kitchen:orders"),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		InvoicePrefix:         strings.ToUpper(getEnv("INVOICE_PREFIX", "INV")),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Development exposes raw error text to clients and switches to console logs.
func (c Config) Development() bool {
	return c.Env == "development"
}

func getEnv(key string, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}
