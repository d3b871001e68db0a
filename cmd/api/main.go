package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tmahmood/finledger/internal/config"
	"github.com/tmahmood/finledger/internal/directory"
	"github.com/tmahmood/finledger/internal/handler"
	"github.com/tmahmood/finledger/internal/ledger"
	"github.com/tmahmood/finledger/internal/middleware"
	"github.com/tmahmood/finledger/internal/repository"
	"github.com/tmahmood/finledger/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize the ledger store
	var store ledger.Store
	switch cfg.StoreBackend {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DBConn)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("Failed to ping database: %v", err)
		}
		store = repository.NewPostgresStore(db)
	case "memory":
		logger.Warn("Using in-memory store; state is lost on restart")
		store = repository.NewMemoryStore()
	}

	// Initialize layers
	dir := directory.NewService(store, logger, cfg)

	var notifier ledger.AlertNotifier
	if cfg.SMTPHost != "" && cfg.FraudAlertEmail != "" {
		notifier = email.NewSender(cfg, logger)
	}
	evaluator := ledger.NewEvaluator(store, notifier, ledger.EvaluatorConfig{
		LargeAmountThreshold: cfg.LargeAmountThreshold,
		VelocityMaxCount:     cfg.VelocityMaxCount,
		VelocityWindow:       cfg.VelocityWindow,
	}, logger)
	engine := ledger.NewEngine(store, dir, evaluator, logger)
	h := handler.NewHandler(engine, dir, logger)

	// Retry fraud evaluations that failed post-commit
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.FraudSweepSpec, func() {
		evaluator.Sweep(context.Background())
	}); err != nil {
		logger.Fatalf("Failed to schedule fraud sweep: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	authRouter.HandleFunc("/accounts", h.ListAccounts).Methods("GET")
	authRouter.HandleFunc("/transfers", h.Transfer).Methods("POST")
	authRouter.HandleFunc("/deposits", h.Deposit).Methods("POST")
	authRouter.HandleFunc("/withdrawals", h.Withdraw).Methods("POST")
	authRouter.HandleFunc("/transactions", h.TransactionHistory).Methods("GET")
	authRouter.HandleFunc("/transactions/{id}", h.TransactionDetails).Methods("GET")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
