package sigrokla

import (
	"time"

	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/decode"
)

type Config struct {
	StoreDir      string
	CatalogPath   string
	CLIPath       string
	DecodeTimeout time.Duration
	MaxCaptures   int
	Logger        Logger
	Backend       CaptureBackend
	Registry      *decode.Registry
}

type Option func(*Config)

func WithStoreDir(dir string) Option {
	return func(c *Config) {
		c.StoreDir = dir
	}
}

func WithCatalogPath(path string) Option {
	return func(c *Config) {
		c.CatalogPath = path
	}
}

func WithCLIPath(path string) Option {
	return func(c *Config) {
		c.CLIPath = path
	}
}

func WithDecodeTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DecodeTimeout = d
	}
}

func WithMaxCaptures(n int) Option {
	return func(c *Config) {
		c.MaxCaptures = n
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithBackend(backend CaptureBackend) Option {
	return func(c *Config) {
		c.Backend = backend
	}
}

func WithRegistry(reg *decode.Registry) Option {
	return func(c *Config) {
		c.Registry = reg
	}
}

func defaultConfig() *Config {
	return &Config{
		StoreDir:      "",
		CatalogPath:   "",
		CLIPath:       "",
		DecodeTimeout: decode.DefaultTimeout,
		MaxCaptures:   0,
		Logger:        nil,
	}
}
