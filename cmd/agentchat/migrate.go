package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/BaSui01/agentchat/config"
	"github.com/BaSui01/agentchat/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate handles the migrate command. Subcommand dispatch lives in
// migration.CLI.Run; this layer only resolves the target database from
// flags or the config file.
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}
	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printMigrateUsage()
		return
	}

	// 形如 agentchat migrate steps 2 --config x：
	// 前段是子命令与数字参数，--flag 起是连接参数
	split := len(args)
	for i, a := range args {
		if strings.HasPrefix(a, "-") {
			split = i
			break
		}
	}
	cmdArgs, flagArgs := args[:split], args[split:]

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	if err := fs.Parse(flagArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		os.Exit(1)
	}

	migrator, err := newMigrator(*configPath, *dbType, *dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	if err := cli.Run(context.Background(), cmdArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
}

// newMigrator builds a migrator from explicit flags, falling back to the
// database section of the config file.
func newMigrator(configPath, dbType, dbURL string) (*migration.DefaultMigrator, error) {
	// If db-type and db-url are provided, use them directly
	if dbType != "" && dbURL != "" {
		return migration.NewMigratorFromURL(dbType, dbURL)
	}

	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Override database type if specified
	if dbType != "" {
		cfg.Database.Driver = dbType
	}

	return migration.NewMigratorFromDatabaseConfig(cfg.Database)
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  agentchat migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration
  down-all  Rollback all migrations
  steps     Apply n migrations (negative rolls back)
  status    Show migration status
  version   Show current migration version
  goto      Migrate to a specific version
  force     Force set migration version (use with caution)
  info      Show migration summary
  help      Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  agentchat migrate up
  agentchat migrate up --config /etc/agentchat/config.yaml
  agentchat migrate down
  agentchat migrate steps 2
  agentchat migrate status
  agentchat migrate goto 1
  agentchat migrate force 0
  agentchat migrate down-all`)
}
