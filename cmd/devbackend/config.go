package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/pixelforge/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvDevelopment
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the dev backend will be run
	ListenAddr string

	// Secret key
	// Access tokens are signed with it (HS256), so it is required
	SecretKey string

	// Telegram bot token
	// Verifies init data and sends images to users. Without it init data is trusted as is and nothing is sent
	BotToken string

	// Bot API endpoint, public Telegram API if empty
	TelegramAPIURL string

	// Placeholder images service
	ImageBaseURL string

	// Database connection string, data is kept in memory if empty
	DatabaseDSN string

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		ListenAddr:  defaultListenAddr,
		Environment: defaultEnvironment,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":      setString(&c.ListenAddr),
		"SECRET_KEY":       setString(&c.SecretKey),
		"BOT_TOKEN":        setString(&c.BotToken),
		"TELEGRAM_API_URL": setString(&c.TelegramAPIURL),
		"IMAGE_BASE_URL":   setString(&c.ImageBaseURL),
		"DATABASE_URI":     setString(&c.DatabaseDSN),
		"LOG_LEVEL":        setString(&c.LogLevel),
		"ENVIRONMENT":      setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("devbackend", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key to sign access tokens")
	fs.StringVarP(&c.BotToken, "bot-token", "b", c.BotToken, "Telegram bot token")
	fs.StringVar(&c.TelegramAPIURL, "telegram-api", c.TelegramAPIURL, "Telegram Bot API address")
	fs.StringVar(&c.ImageBaseURL, "image-base-url", c.ImageBaseURL, "Placeholder images address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}
