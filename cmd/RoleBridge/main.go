package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/RoleBridge/internal/api"
	"github.com/BTreeMap/RoleBridge/internal/discord"
	"github.com/BTreeMap/RoleBridge/internal/lockfile"
	"github.com/BTreeMap/RoleBridge/internal/roblox"
	"github.com/BTreeMap/RoleBridge/internal/scheduler"
	"github.com/BTreeMap/RoleBridge/internal/session"
	"github.com/BTreeMap/RoleBridge/internal/store"
	"github.com/BTreeMap/RoleBridge/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for RoleBridge state data
	DefaultStateDir = "/var/lib/rolebridge"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "rolebridge.db"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run starts RoleBridge and returns the process exit code. Deferred cleanup
// such as releasing the state lock runs before main exits.
func run(args []string) int {
	config := loadEnvironmentConfig()
	initializeLogger(config.Debug)

	flags, err := parseCommandLineFlags(args, config)
	if err != nil {
		slog.Error("Invalid command line", "error", err)
		return 2
	}

	// SQLite state lives in the state directory; one process per directory.
	if store.DetectDSNType(flags.dbDSN) != "postgres" {
		lock, err := lockfile.Acquire(flags.stateDir)
		if err != nil {
			slog.Error("Failed to lock state directory", "error", err)
			return 1
		}
		defer lock.Release()
	}

	discordOpts := buildDiscordOptions(flags)
	storeOpts := buildStoreOptions(flags)
	robloxOpts := buildRobloxOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping RoleBridge with configured modules")
	slog.Debug("Module options counts", "discord", len(discordOpts), "store", len(storeOpts), "roblox", len(robloxOpts), "api", len(apiOpts))
	if err := api.Run(discordOpts, storeOpts, robloxOpts, apiOpts); err != nil {
		slog.Error("RoleBridge failed to run", "error", err)
		return 1
	}
	slog.Info("RoleBridge exited successfully")
	return 0
}

// Config holds environment configuration
type Config struct {
	DiscordToken     string
	DevGuildID       string
	DatabaseDSN      string
	RedisURL         string
	StateDir         string
	APIAddr          string
	RobloxAPIURL     string
	SweepSchedule    string
	SessionTTL       time.Duration
	RegisterCommands bool
	Debug            bool
}

// Flags holds command line flag values
type Flags struct {
	token            string
	guildID          string
	stateDir         string
	dbDSN            string
	redisURL         string
	apiAddr          string
	robloxURL        string
	sweepSchedule    string
	sessionTTL       time.Duration
	registerCommands bool
}

// initializeLogger sets up structured logging
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DiscordToken:     util.FirstEnv("DISCORD_TOKEN", "BOT_TOKEN"),
		DevGuildID:       os.Getenv("DISCORD_GUILD_ID"),
		DatabaseDSN:      util.FirstEnv("DATABASE_DSN", "DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		StateDir:         os.Getenv("ROLEBRIDGE_STATE_DIR"),
		APIAddr:          os.Getenv("API_ADDR"),
		RobloxAPIURL:     os.Getenv("ROBLOX_GROUPS_API"),
		SweepSchedule:    os.Getenv("SWEEP_SCHEDULE"),
		SessionTTL:       util.ParseDurationEnv("SESSION_TTL", session.DefaultTTL),
		RegisterCommands: util.ParseBoolEnv("REGISTER_COMMANDS", true),
		Debug:            util.ParseBoolEnv("ROLEBRIDGE_DEBUG", true),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	// If no database DSN is provided, default to SQLite in the state directory
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
	}
	if config.SweepSchedule == "" {
		config.SweepSchedule = scheduler.DefaultSweepSchedule
	}

	slog.Debug("environment variables loaded",
		"DISCORD_TOKEN_SET", config.DiscordToken != "",
		"DISCORD_GUILD_ID", config.DevGuildID,
		"DATABASE_DSN_SET", config.DatabaseDSN != "",
		"REDIS_URL_SET", config.RedisURL != "",
		"ROLEBRIDGE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"SWEEP_SCHEDULE", config.SweepSchedule,
		"SESSION_TTL", config.SessionTTL)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(args []string, config Config) (Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("rolebridge", flag.ContinueOnError)
	fs.StringVar(&flags.token, "token", config.DiscordToken, "Discord bot token (overrides $DISCORD_TOKEN)")
	fs.StringVar(&flags.guildID, "guild-id", config.DevGuildID, "register commands on this guild only (overrides $DISCORD_GUILD_ID)")
	fs.StringVar(&flags.stateDir, "state-dir", config.StateDir, "state directory for RoleBridge data (overrides $ROLEBRIDGE_STATE_DIR)")
	fs.StringVar(&flags.dbDSN, "db-dsn", config.DatabaseDSN, "database DSN, SQLite path or PostgreSQL URL (overrides $DATABASE_DSN or $DATABASE_URL)")
	fs.StringVar(&flags.redisURL, "redis-url", config.RedisURL, "keep prompt sessions in Redis (overrides $REDIS_URL)")
	fs.StringVar(&flags.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&flags.robloxURL, "roblox-api", config.RobloxAPIURL, "Roblox groups API base URL (overrides $ROBLOX_GROUPS_API)")
	fs.StringVar(&flags.sweepSchedule, "sweep-schedule", config.SweepSchedule, "cron schedule of the expired record sweep (overrides $SWEEP_SCHEDULE)")
	fs.DurationVar(&flags.sessionTTL, "session-ttl", config.SessionTTL, "idle lifetime of a prompt session (overrides $SESSION_TTL)")
	fs.BoolVar(&flags.registerCommands, "register-commands", config.RegisterCommands, "overwrite the slash commands on startup (overrides $REGISTER_COMMANDS)")
	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	if flags.token == "" {
		return flags, errors.New("a Discord bot token is required (-token or $DISCORD_TOKEN)")
	}

	// Follow a moved state directory when the DSN is the default one.
	if flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && flags.stateDir != config.StateDir {
		flags.dbDSN = filepath.Join(flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", flags.stateDir)
	}

	slog.Debug("flags parsed",
		"guildID", flags.guildID,
		"stateDir", flags.stateDir,
		"dbDSN_set", flags.dbDSN != "",
		"redis", flags.redisURL != "",
		"apiAddr", flags.apiAddr,
		"sweepSchedule", flags.sweepSchedule,
		"sessionTTL", flags.sessionTTL,
		"registerCommands", flags.registerCommands)
	return flags, nil
}

// buildDiscordOptions constructs Discord client options
func buildDiscordOptions(flags Flags) []discord.Option {
	opts := []discord.Option{discord.WithToken(flags.token)}
	if flags.guildID != "" {
		opts = append(opts, discord.WithGuildID(flags.guildID))
	}
	return opts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if flags.dbDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return storeOpts
	}
	if store.DetectDSNType(flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return append(storeOpts, store.WithPostgresDSN(flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", flags.dbDSN)
	return append(storeOpts, store.WithSQLiteDSN(flags.dbDSN))
}

// buildRobloxOptions constructs Roblox client options
func buildRobloxOptions(flags Flags) []roblox.Option {
	var opts []roblox.Option
	if u := strings.TrimSpace(flags.robloxURL); u != "" {
		opts = append(opts, roblox.WithBaseURL(strings.TrimRight(u, "/")))
	}
	return opts
}

// buildAPIOptions constructs service options
func buildAPIOptions(flags Flags) []api.Option {
	apiOpts := []api.Option{
		api.WithSweepSchedule(flags.sweepSchedule),
		api.WithSessionTTL(flags.sessionTTL),
		api.WithCommandRegistration(flags.registerCommands),
	}
	if flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.apiAddr))
	}
	if flags.redisURL != "" {
		apiOpts = append(apiOpts, api.WithRedisURL(flags.redisURL))
	}
	return apiOpts
}
