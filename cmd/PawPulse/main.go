package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/PawPulse/PawPulse/internal/api"
	"github.com/PawPulse/PawPulse/internal/bot"
	"github.com/PawPulse/PawPulse/internal/flow"
	"github.com/PawPulse/PawPulse/internal/lockfile"
	"github.com/PawPulse/PawPulse/internal/messaging"
	"github.com/PawPulse/PawPulse/internal/scheduler"
	"github.com/PawPulse/PawPulse/internal/store"
	"github.com/PawPulse/PawPulse/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for PawPulse state data
	DefaultStateDir = "/var/lib/pawpulse"
	// DefaultDBFileName is the default SQLite database filename for the user store
	DefaultDBFileName = "pawpulse.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow device database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultSurveyHour is the default daily fire hour (local time)
	DefaultSurveyHour = 19
	// DefaultSurveyMinute is the default daily fire minute
	DefaultSurveyMinute = 0
	// DefaultTimezone is the default zone the daily fire time is interpreted in
	DefaultTimezone = "Europe/Moscow"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		slog.Error("PawPulse failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("PawPulse exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir    string
	DatabaseURL string
	WhatsAppDSN string
	Transport   string
	APIAddr     string
	Timezone    string
	SurveyHour  int
	SurveyMin   int
	NumericCode bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	waDSN       *string
	transport   *string
	apiAddr     *string
	timezone    *string
	surveyHour  *int
	surveyMin   *int
	qrOutput    *string
	numericCode *bool
}

// initializeLogger sets up structured logging
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		StateDir:    os.Getenv("PAWPULSE_STATE_DIR"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		WhatsAppDSN: os.Getenv("WHATSAPP_DB_DSN"),
		Transport:   os.Getenv("PAWPULSE_TRANSPORT"),
		APIAddr:     os.Getenv("API_ADDR"),
		Timezone:    os.Getenv("SURVEY_TIMEZONE"),
		SurveyHour:  util.ParseIntEnv("SURVEY_HOUR", DefaultSurveyHour),
		SurveyMin:   util.ParseIntEnv("SURVEY_MINUTE", DefaultSurveyMinute),
		NumericCode: util.ParseBoolEnv("PAWPULSE_NUMERIC_CODE", false),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		// whatsmeow strongly recommends foreign keys on its SQLite store.
		config.WhatsAppDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
	if config.Transport == "" {
		config.Transport = "whatsapp"
	}
	if config.Timezone == "" {
		config.Timezone = DefaultTimezone
	}

	slog.Debug("environment variables loaded",
		"PAWPULSE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"PAWPULSE_TRANSPORT", config.Transport,
		"API_ADDR", config.APIAddr,
		"SURVEY_TIMEZONE", config.Timezone,
		"SURVEY_HOUR", config.SurveyHour,
		"SURVEY_MINUTE", config.SurveyMin)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for PawPulse data (overrides $PAWPULSE_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "user store DSN: SQLite path or Postgres URL (overrides $DATABASE_URL)"),
		waDSN:       flag.String("wa-db-dsn", config.WhatsAppDSN, "whatsmeow device database DSN (overrides $WHATSAPP_DB_DSN)"),
		transport:   flag.String("transport", config.Transport, "chat transport: whatsapp or twilio (overrides $PAWPULSE_TRANSPORT)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "admin API listen address (overrides $API_ADDR)"),
		timezone:    flag.String("timezone", config.Timezone, "time zone for the daily survey (overrides $SURVEY_TIMEZONE)"),
		surveyHour:  flag.Int("survey-hour", config.SurveyHour, "hour of day to fire the daily survey (overrides $SURVEY_HOUR)"),
		surveyMin:   flag.Int("survey-minute", config.SurveyMin, "minute of the hour to fire the daily survey (overrides $SURVEY_MINUTE)"),
		qrOutput:    flag.String("qr-output", "", "path to write the WhatsApp login QR code"),
		numericCode: flag.Bool("numeric-code", config.NumericCode, "use a numeric WhatsApp login code instead of a QR code"),
	}

	flag.Parse()
	return flags
}

// run wires the modules together and blocks until shutdown.
func run(ctx context.Context, flags Flags) error {
	loc, err := time.LoadLocation(*flags.timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", *flags.timezone, err)
	}
	if *flags.surveyHour < 0 || *flags.surveyHour > 23 || *flags.surveyMin < 0 || *flags.surveyMin > 59 {
		return fmt.Errorf("invalid survey time %02d:%02d", *flags.surveyHour, *flags.surveyMin)
	}

	userStore, err := buildStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer userStore.Close()

	msgService, err := buildMessagingService(flags)
	if err != nil {
		return err
	}

	engine := flow.NewEngine(userStore, msgService, flow.WithLocation(loc))
	sched := scheduler.NewDailyScheduler(userStore, engine, *flags.surveyHour, *flags.surveyMin, loc)

	schedule := fmt.Sprintf("%02d:%02d (%s)", *flags.surveyHour, *flags.surveyMin, loc.String())
	b := bot.New(userStore, engine, sched, msgService, bot.WithScheduleDescription(schedule))

	apiOpts := []api.Option{}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if twilioSvc, ok := msgService.(*messaging.TwilioService); ok {
		apiOpts = append(apiOpts, api.WithInboundWebhook(twilioSvc.WebhookHandler))
	}
	apiServer := api.NewServer(userStore, sched.FireAll, apiOpts...)

	go func() {
		if err := apiServer.Run(ctx); err != nil {
			slog.Error("API server failed", "error", err)
		}
	}()

	slog.Info("Bootstrapping PawPulse", "transport", *flags.transport, "schedule", schedule)
	return b.Run(ctx)
}

// buildStore selects the user store backend from the DSN.
func buildStore(dsn string) (store.UserStore, error) {
	if dsn == "" {
		slog.Warn("No database DSN provided, using in-memory store (state is lost on restart)")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring Postgres store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildMessagingService selects and configures the chat transport.
func buildMessagingService(flags Flags) (messaging.Service, error) {
	switch *flags.transport {
	case "whatsapp":
		waOpts := []messaging.WhatsAppOption{messaging.WithWhatsAppDBDSN(*flags.waDSN)}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, messaging.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numericCode {
			waOpts = append(waOpts, messaging.WithNumericCode())
		}
		return messaging.NewWhatsAppService(waOpts...)
	case "twilio":
		// Credentials come from TWILIO_* environment variables.
		return messaging.NewTwilioService()
	default:
		return nil, fmt.Errorf("unknown transport %q (expected whatsapp or twilio)", *flags.transport)
	}
}
