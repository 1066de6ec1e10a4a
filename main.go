package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var db *sqlx.DB
var devMode bool

const shutdownTimeout = 10 * time.Second

// openDB connects to SQLite with a single connection; every writer is
// serialised behind writeMu anyway and in-memory databases need one
// connection to stay consistent.
func openDB(dsn string) (*sqlx.DB, error) {
	conn, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}

func main() {
	fv := registerFlags()
	flag.Parse()
	cfg := loadConfig(*fv.configPath)
	fv.applyTo(&cfg)
	if err := cfg.validate(); err != nil {
		log.Fatal(err)
	}
	devMode = cfg.Dev
	timing = cfg.gameTiming()
	hub.wsRate = rate.Limit(cfg.WSRate)
	hub.wsBurst = cfg.WSBurst

	// Set up logging to both stdout and file
	logFile, err := os.OpenFile("werewolf.log", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Fatal("Failed to open log file:", err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	appLogger, err = NewAppLogger(cfg.toLogConfig())
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer CloseAppLogger()
	if appLogger.IsEnabled() {
		log.Println("Extended logging enabled")
	}

	db, err = openDB(cfg.DB)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := initDB(); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	LogDBState("after initDB")

	initStoryteller(cfg)

	if _, err := recoverScheduledTasks(scheduler); err != nil {
		log.Fatal("Failed to recover phase timers:", err)
	}

	hub.start()

	srv := &http.Server{Addr: cfg.Addr, Handler: newRouter()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Server starting on %s", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		scheduler.Stop()
		hub.stop()
		storiesInFlight.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Fatal("Server error:", err)
	}
	log.Println("Server stopped")
}
