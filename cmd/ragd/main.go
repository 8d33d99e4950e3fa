package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/rag-chat/backend/internal/config"
	"github.com/zhouzirui/rag-chat/backend/internal/handler"
	"github.com/zhouzirui/rag-chat/backend/internal/service/rag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	var (
		docs      retriever.Retriever
		generator rag.Generator
	)

	if cfg.Qdrant.Enabled() && cfg.AI.EmbeddingEnabled() {
		embedder, err := cfg.AI.NewEmbedder(ctx)
		if err != nil {
			log.Fatalf("failed to create embedder: %v", err)
		}
		client, err := rag.NewQdrantClient(cfg.Qdrant)
		if err != nil {
			log.Fatalf("failed to connect to qdrant: %v", err)
		}
		defer client.Close()

		docs = rag.NewQdrantRetriever(client, cfg.Qdrant.Collection, embedder, cfg.Backend.TopK)
		log.Printf("retrieving from qdrant collection %s (top %d)", cfg.Qdrant.Collection, cfg.Backend.TopK)
	} else {
		log.Println("QDRANT_URL 或 ARK_EMBEDDING_MODEL 未配置，仅支持寒暄回复")
	}

	if cfg.AI.Enabled() {
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Fatalf("failed to create chat model: %v", err)
		}
		generator, err = rag.NewChainGenerator(ctx, chatModel)
		if err != nil {
			log.Fatalf("failed to build answer chain: %v", err)
		}
		log.Println("AI service initialized successfully")
	} else {
		log.Println("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	engine := rag.NewEngine(docs, generator, cfg.Backend.TopK)
	router := handler.NewBackendRouter(engine, cfg.CORS.AllowedOrigins)

	srv := &http.Server{
		Addr:              cfg.Backend.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("answer backend listening on %s", srv.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
