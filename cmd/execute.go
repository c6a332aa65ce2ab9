// Package cmd contains the CLI entry points. Following the pattern used by
// kubectl, hugo, and other standard Go CLI tools, all application logic
// lives here, leaving main.go as a minimal entry point.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/csw48/AI-autonomous-platform/internal/config"
	"github.com/csw48/AI-autonomous-platform/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.1.0"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point for the docindex CLI.
func Execute() error {
	// Version and help work even when configuration is invalid.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			printVersionInfo()
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "migrate":
			return runMigrate()
		case "serve":
			return runServe()
		default:
			printHelp()
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}

	return runServe()
}

// initLogger builds the process logger. DEBUG in the environment switches
// to debug level; DOCINDEX_LOG_JSON switches to JSON output for log
// shippers.
func initLogger() log.Logger {
	return log.New(log.Config{
		Level: logLevel(),
		JSON:  os.Getenv("DOCINDEX_LOG_JSON") != "",
	})
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// loadConfig loads and validates configuration. Validation happens inside
// config.Load, so a returned Config is always usable.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func printVersionInfo() {
	fmt.Printf("docindex v%s\n", AppVersion)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
}

func printHelp() {
	fmt.Println("docindex - document indexing and hybrid retrieval service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  docindex serve       Start the HTTP API server (default)")
	fmt.Println("  docindex migrate     Apply pending database migrations and exit")
	fmt.Println("  docindex version     Show version information")
	fmt.Println("  docindex help        Show this help")
	fmt.Println()
	fmt.Println("Configuration is read from ~/.docindex/config.yaml and DOCINDEX_*")
	fmt.Println("environment variables; DATABASE_URL overrides the database settings.")
}
