package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/study-rag/internal/config"
	"github.com/Epistemic-Technology/study-rag/internal/logger"
	"github.com/Epistemic-Technology/study-rag/server"
)

func main() {
	// STUDY_RAG_CONFIG selects the YAML file
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		// Fall back to stderr if logger initialization fails
		panic(err)
	}

	log.Info("Starting study-rag server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, cleanup, err := server.CreateServer(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize server: %v", err)
	}
	defer cleanup()

	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Error("Server failed: %v", err)
	}
}
