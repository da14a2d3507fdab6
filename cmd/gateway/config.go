package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/kittipos-w/paygate/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8001"
	defaultLoggingLevel = logger.LevelInfo
	defaultIssuerAddr   = "http://127.0.0.1:8000"
	defaultUpstreamAddr = "http://127.0.0.1:8002"
	defaultEnvironment  = logger.EnvProduction
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the gateway will be run
	ListenAddr string

	// Token issuing service address to verify payments against
	IssuerAddr string

	// Protected upstream service address to forward paid requests to
	UpstreamAddr string

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:     defaultLoggingLevel,
		ListenAddr:   defaultListenAddr,
		IssuerAddr:   defaultIssuerAddr,
		UpstreamAddr: defaultUpstreamAddr,
		Environment:  defaultEnvironment,
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
		"RUN_ADDRESS":     setString(&c.ListenAddr),
		"BANK_API_URL":    setString(&c.IssuerAddr),
		"BACKEND_API_URL": setString(&c.UpstreamAddr),
		"LOG_LEVEL":       setString(&c.LogLevel),
		"ENVIRONMENT":     setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("gateway", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.IssuerAddr, "issuer", "i", c.IssuerAddr, "Token issuing service address")
	fs.StringVarP(&c.UpstreamAddr, "upstream", "u", c.UpstreamAddr, "Protected upstream service address")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}
