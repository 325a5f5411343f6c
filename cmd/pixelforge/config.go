package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/pixelforge/internal/logger"
)

// Token store backends
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
)

const (
	defaultBackendURL   = "http://localhost:8000"
	defaultLoggingLevel = logger.LevelWarn
	defaultEnvironment  = logger.EnvDevelopment
	defaultStore        = StoreFile
	defaultStorePath    = ".pixelforge/session.json"
)

type Config struct {
	// Webhook backend base url
	BackendURL string

	// Default logging level
	LogLevel string

	// Environment
	Environment string

	// Where tokens and cached user are kept between runs: memory, file or postgres
	Store string

	// JSON file for "file" store
	StorePath string

	// Database for "postgres" store
	DatabaseDSN string

	// Signed init data as the Telegram host hands it to the mini app
	InitData string

	// Skip the backend authentication and act as a fixed test user
	DevMode bool

	// Art style for generate command
	Style string
}

func NewConfig() *Config {
	return &Config{
		BackendURL:  defaultBackendURL,
		LogLevel:    defaultLoggingLevel,
		Environment: defaultEnvironment,
		Store:       defaultStore,
		StorePath:   defaultStorePath,
		Style:       "none",
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
	// Set option if value is a valid bool
	setBool := func(o *bool) func(value string) {
		return func(value string) {
			if b, err := strconv.ParseBool(value); err == nil {
				*o = b
			}
		}
	}

	envMap := map[string]func(string){
		"BACKEND_URL":  setString(&c.BackendURL),
		"LOG_LEVEL":    setString(&c.LogLevel),
		"ENVIRONMENT":  setString(&c.Environment),
		"STORE":        setString(&c.Store),
		"STORE_PATH":   setString(&c.StorePath),
		"DATABASE_URI": setString(&c.DatabaseDSN),
		"INIT_DATA":    setString(&c.InitData),
		"DEV_MODE":     setBool(&c.DevMode),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

// ParseFlags parses flags and returns the rest: command and its arguments
func (c *Config) ParseFlags(args []string) ([]string, error) {
	fs := pflag.NewFlagSet("pixelforge", pflag.ContinueOnError)
	fs.SetInterspersed(false)

	fs.StringVarP(&c.BackendURL, "backend", "u", c.BackendURL, "Backend base url")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.Store, "store", c.Store, "Session store (memory, file, postgres)")
	fs.StringVar(&c.StorePath, "store-path", c.StorePath, "Session file for file store")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string for postgres store")
	fs.StringVarP(&c.InitData, "init-data", "i", c.InitData, "Telegram init data")
	fs.BoolVar(&c.DevMode, "dev", c.DevMode, "Development mode: no backend authentication")
	fs.StringVarP(&c.Style, "style", "s", c.Style, "Art style for generate")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}
