package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/BrasasLabs/Anfitrion/internal/api"
	"github.com/BrasasLabs/Anfitrion/internal/flow"
	"github.com/BrasasLabs/Anfitrion/internal/lockfile"
	"github.com/BrasasLabs/Anfitrion/internal/nlu"
	"github.com/BrasasLabs/Anfitrion/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Anfitrion state data
	DefaultStateDir = "/var/lib/anfitrion"
	// DefaultDBFileName is the default whatsmeow SQLite database filename
	DefaultDBFileName = "whatsmeow.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Only one instance may own the WhatsApp session in this state directory.
	lock, err := lockfile.AcquireLock(stateDirFor(flags, config))
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	waOpts := buildWhatsAppOptions(flags)
	nluOpts := buildNLUOptions(flags)
	apiOpts := buildAPIOptions(flags)
	flowCfg := flow.ConfigFromEnv()

	slog.Info("Bootstrapping Anfitrion with configured modules")
	slog.Debug("Final configuration",
		"business_file", *flags.businessFile,
		"dsn_set", *flags.dbDSN != "",
		"api_addr", *flags.apiAddr,
		"provider", *flags.provider)
	if err := api.Run(waOpts, nluOpts, flowCfg, apiOpts...); err != nil {
		slog.Error("Anfitrion failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Anfitrion exited successfully")
}

// Config holds environment configuration
type Config struct {
	BusinessFile string
	WhatsAppDSN  string
	StateDir     string
	OpenAIKey    string
	APIAddr      string
	Provider     string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput     *string
	numeric      *bool
	businessFile *string
	dbDSN        *string
	openaiKey    *string
	apiAddr      *string
	provider     *string
}

// initializeLogger sets up structured logging with the level from $LOG_LEVEL.
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
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
		BusinessFile: os.Getenv("BUSINESS_FILE"),
		WhatsAppDSN:  os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:     os.Getenv("ANFITRION_STATE_DIR"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		APIAddr:      os.Getenv("API_ADDR"),
		Provider:     os.Getenv("MESSAGING_PROVIDER"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = os.Getenv("DATABASE_URL")
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
	}
	// The original deployment configured only a bare port.
	if config.APIAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			config.APIAddr = ":" + port
		}
	}

	slog.Debug("environment variables loaded",
		"BUSINESS_FILE", config.BusinessFile,
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"ANFITRION_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"MESSAGING_PROVIDER", config.Provider)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:     flag.String("qr-output", "", "path to write login QR code"),
		numeric:      flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		businessFile: flag.String("business-file", config.BusinessFile, "path to business profile JSON (overrides $BUSINESS_FILE)"),
		dbDSN:        flag.String("db-dsn", config.WhatsAppDSN, "database DSN for the WhatsApp session store (overrides $WHATSAPP_DB_DSN)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR / $PORT)"),
		provider:     flag.String("provider", config.Provider, "messaging provider: whatsmeow or twilio (overrides $MESSAGING_PROVIDER)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"businessFile", *flags.businessFile,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"provider", *flags.provider)

	return flags
}

// stateDirFor returns the directory the instance lock lives in: the SQLite
// database directory for file-based DSNs, the configured state directory
// otherwise.
func stateDirFor(flags Flags, config Config) string {
	if whatsapp.DetectDSNType(*flags.dbDSN) == "sqlite" {
		return filepath.Dir(*flags.dbDSN)
	}
	return config.StateDir
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if whatsapp.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.dbDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.dbDSN))
	}
	return waOpts
}

// buildNLUOptions constructs intent classifier configuration options
func buildNLUOptions(flags Flags) []nlu.Option {
	var nluOpts []nlu.Option
	if *flags.openaiKey != "" {
		nluOpts = append(nluOpts, nlu.WithAPIKey(*flags.openaiKey))
	}
	return nluOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.businessFile != "" {
		apiOpts = append(apiOpts, api.WithBusinessFile(*flags.businessFile))
	}
	if *flags.provider != "" {
		apiOpts = append(apiOpts, api.WithProvider(*flags.provider))
	}
	return apiOpts
}
