package main

import (
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla"
)

var (
	port           int
	storeDir       string
	catalogPath    string
	cliPath        string
	decodeTimeout  time.Duration
	maxCaptures    int
	allowedOrigins string
)

func init() {
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&storeDir, "store", getEnvOrDefault("SIGROK_STORE_DIR", ""), "Directory for capture files (empty = per-session temp dir)")
	flag.StringVar(&catalogPath, "catalog", getEnvOrDefault("SIGROK_CATALOG_PATH", ""), "Path to SQLite capture catalog (empty = disabled)")
	flag.StringVar(&cliPath, "cli", getEnvOrDefault("SIGROK_CLI_PATH", "sigrok-cli"), "Path to the sigrok-cli binary")
	flag.DurationVar(&decodeTimeout, "timeout", 30*time.Second, "Timeout for sigrok-cli invocations")
	flag.IntVar(&maxCaptures, "max-captures", 0, "Maximum captures per session (0 = unlimited)")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()

	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	service, err := sigrokla.NewService(
		sigrokla.WithStoreDir(storeDir),
		sigrokla.WithCatalogPath(catalogPath),
		sigrokla.WithCLIPath(cliPath),
		sigrokla.WithDecodeTimeout(decodeTimeout),
		sigrokla.WithMaxCaptures(maxCaptures),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	config := &ServerConfig{
		Port:           port,
		StoreDir:       storeDir,
		CatalogPath:    catalogPath,
		CLIPath:        cliPath,
		AllowedOrigins: origins,
	}

	server := NewServer(service, config)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
