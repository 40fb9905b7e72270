package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"taskmill/internal/api"
	"taskmill/internal/audit"
	"taskmill/internal/config"
	"taskmill/internal/consumer"
	"taskmill/internal/consumer/action"
	"taskmill/internal/consumer/chat"
	"taskmill/internal/consumer/email"
	"taskmill/internal/notify"
	"taskmill/internal/scheduler"
	"taskmill/internal/store"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "path to YAML config file")
		addr    = flag.String("addr", "", "HTTP bind address (overrides config)")
		dbPath  = flag.String("db", "", "SQLite DB path (overrides config)")
		poll    = flag.Duration("poll", 0, "clock evaluation interval (overrides config)")
		workers = flag.Int("workers", 0, "max concurrent firings (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *poll > 0 {
		cfg.Scheduler.PollInterval = config.Duration(*poll)
	}
	if *workers > 0 {
		cfg.Scheduler.MaxWorkers = *workers
	}

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}

	taskStore := store.NewSQLiteStore(db)
	auditStore := audit.NewSQLiteStore(db)
	recorder := audit.NewRecorder(log.Logger, auditStore)

	// Consumer registry. Email/chat transports here are the dev defaults
	// that log instead of delivering; production deployments swap in real
	// SMTP and chat clients.
	renderer := fileRenderer{dir: cfg.Templates}
	consumers := consumer.NewRegistry()
	consumers.Register(email.Type, email.Factory(logMailer{}, renderer))
	consumers.Register(chat.Type, chat.Factory(logChatSender{}, renderer))
	consumers.Register(action.Type, action.Factory(action.Table{
		"log": logAction,
	}))

	engine := scheduler.NewEngine(log.Logger, taskStore, consumers, scheduler.Options{
		PollInterval: cfg.Scheduler.PollInterval.Std(),
		MaxWorkers:   cfg.Scheduler.MaxWorkers,
		Listener:     recorder,
	})
	if err := engine.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("start scheduler")
	}

	notifier := notify.NewService(log.Logger, engine)

	srv := &http.Server{Addr: cfg.Addr, Handler: api.NewServer(engine, notifier, auditStore)}
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	if err := engine.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown")
	}
}
