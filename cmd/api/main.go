package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/rag-chat/backend/internal/config"
	"github.com/zhouzirui/rag-chat/backend/internal/handler"
	userRepo "github.com/zhouzirui/rag-chat/backend/internal/repository/user"
	"github.com/zhouzirui/rag-chat/backend/internal/repository/workspace"
	"github.com/zhouzirui/rag-chat/backend/internal/service/answer"
	"github.com/zhouzirui/rag-chat/backend/internal/service/auth"
	"github.com/zhouzirui/rag-chat/backend/internal/service/chat"
	"github.com/zhouzirui/rag-chat/backend/internal/service/user"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	users, closeUsers, err := openUserRepository(ctx, cfg.Mongo)
	if err != nil {
		log.Fatalf("failed to open user repository: %v", err)
	}
	defer closeUsers()

	secret := cfg.Auth.Secret
	if secret == "" {
		secret = ephemeralSecret()
		log.Println("warning: JWT_SECRET not set, using a random secret; tokens will not survive a restart")
	}
	issuer, err := auth.NewIssuer(secret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("failed to create token issuer: %v", err)
	}

	snapshots, err := openWorkspaceStore(ctx, cfg.Sessions, cfg.Redis)
	if err != nil {
		log.Fatalf("failed to open workspace store: %v", err)
	}
	defer snapshots.Close()

	answerClient := answer.NewClient(cfg.RAG)
	if cfg.RAG.Timeout > 0 {
		log.Printf("answer service %s, timeout %s", cfg.RAG.BaseURL, cfg.RAG.Timeout)
	} else {
		log.Printf("answer service %s, no timeout", cfg.RAG.BaseURL)
	}

	router := handler.NewRouter(handler.Dependencies{
		Answerer:       answerClient,
		Accounts:       user.NewService(users),
		Tokens:         issuer,
		Chats:          chat.NewManager(answerClient, snapshots),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	startServer(ctx, cfg.Server, router)
}

func openUserRepository(ctx context.Context, cfg config.MongoConfig) (userRepo.Repository, func(), error) {
	if !cfg.Enabled() {
		log.Println("MONGODB_URI 未配置，用户数据仅保存在内存中")
		return userRepo.NewMemoryRepository(), func() {}, nil
	}

	client, err := userRepo.Connect(ctx, cfg.URI)
	if err != nil {
		return nil, nil, err
	}
	repo, err := userRepo.NewMongoRepository(ctx, client.Database(cfg.Database))
	if err != nil {
		client.Disconnect(context.Background())
		return nil, nil, err
	}

	log.Printf("connected to MongoDB database %s", cfg.Database)
	return repo, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(shutdownCtx); err != nil {
			log.Printf("mongo disconnect: %v", err)
		}
	}, nil
}

func openWorkspaceStore(ctx context.Context, sessions config.SessionStoreConfig, redisCfg config.RedisConfig) (workspace.Store, error) {
	if sessions.Driver != workspace.DriverRedis {
		log.Println("chat sessions kept in memory")
		return workspace.NewStore(workspace.DriverMemory)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", redisCfg.Addr, err)
	}

	log.Printf("chat sessions persisted to redis %s (ttl %s)", redisCfg.Addr, sessions.TTL)
	return workspace.NewStore(workspace.DriverRedis, workspace.WithRedisClient(client), workspace.WithTTL(sessions.TTL))
}

func ephemeralSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("failed to generate jwt secret: %v", err)
	}
	return hex.EncodeToString(buf)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("RAG chat backend listening on %s", addr)
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
