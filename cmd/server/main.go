package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aidash/internal/api"
	"aidash/internal/auth"
	"aidash/internal/config"
	"aidash/internal/core"
	"aidash/internal/openai"
	"aidash/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if cfg.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Initialize session store
	sessionStore, err := store.NewSessionStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize session store: %v", err)
	}
	defer sessionStore.Close()

	// Initialize remote analysis client
	client := openai.NewClient(cfg.OpenAIAPIKey, openai.WithBaseURL(cfg.OpenAIBaseURL))

	// Initialize core services
	analysisService := core.NewAnalysisService(client, cfg.SummaryAssistantID, cfg.InsightAssistantID)
	kpiService := core.NewKPIService(client, cfg.KPIAssistantID)
	chatService := core.NewChatService(client, sessionStore, cfg.ChatAssistantID)

	// Initialize API handler and router
	tokens := auth.NewTokenManager(cfg.JWTSecret)
	apiHandler := api.NewAPIHandler(analysisService, kpiService, chatService, sessionStore, tokens, cfg.ClientAccessKey)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,  // Multipart uploads from mobile can be slow
		WriteTimeout: 120 * time.Second, // Analysis pipelines poll for up to ~40s each
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give in-flight pipelines time to finish their final
	// append-and-persist before the store closes.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
