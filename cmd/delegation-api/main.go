package main

import (
	"log"
	"os"

	"github.com/cyphera/agent-delegation/internal/logger"
	"github.com/cyphera/agent-delegation/internal/server"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		// A missing .env file is fine in deployed environments where
		// variables are set directly.
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	stage := os.Getenv("STAGE")
	if stage == "" {
		stage = "dev"
	}
	logger.InitLogger(stage)
	defer logger.Sync()

	server.InitializeHandlers()
	defer server.Shutdown()

	if err := server.Start(); err != nil {
		logger.Fatal("Server exited", zap.Error(err))
	}
}
