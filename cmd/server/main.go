package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rfenton/docimport/internal/config"
	"github.com/rfenton/docimport/internal/db"
	"github.com/rfenton/docimport/internal/importer"
	"github.com/rfenton/docimport/internal/middleware"
	"github.com/rfenton/docimport/internal/repository"

	"github.com/rs/cors"
)

func main() {
	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	dbConfig, err := config.LoadDBConfig(".")
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	importerConfig, err := config.LoadImporterConfig(".")
	if err != nil {
		log.Fatalf("Failed to load importer config: %v", err)
	}

	// Run migrations
	if err := db.RunMigrations(dbConfig, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Create repositories
	store := repository.NewDocumentStore(conn.Pool)
	logRepo := repository.NewImportLogRepository(conn.Pool)
	runRepo := repository.NewImportRunRepository(conn.Pool)

	// Create the import runner
	runner := importer.NewRunner(
		store,
		logRepo,
		runRepo,
		importer.WithBatchSize(importerConfig.BatchSize),
		importer.WithSplitRowsAt(importerConfig.SplitRowsAt),
		importer.WithMaxPreviewRows(importerConfig.MaxPreviewRows),
		importer.WithPreprocessors(importer.NewPreprocessorRegistry()),
	)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	mux := http.NewServeMux()
	importer.NewHTTPHandler(runner, runRepo).Register(mux)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":8080",
		Handler:      corsHandler.Handler(middleware.LoggingMiddleware(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Println("Starting import server on :8080")
		log.Println("Import endpoints available under http://localhost:8080/api/imports")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
