package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	arkembedding "github.com/cloudwego/eino-ext/components/embedding/ark"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	RAG      RAGConfig
	Mongo    MongoConfig
	Auth     AuthConfig
	Sessions SessionStoreConfig
	Redis    RedisConfig
	CORS     CORSConfig
	AI       AIConfig
	Qdrant   QdrantConfig
	Backend  BackendConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig("PORT", "8080")
	if err != nil {
		return nil, err
	}

	rag, err := loadRAGConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	sessions, err := loadSessionStoreConfig()
	if err != nil {
		return nil, err
	}

	redis, err := loadRedisConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		RAG:      rag,
		Mongo:    loadMongoConfig(),
		Auth:     auth,
		Sessions: sessions,
		Redis:    redis,
		CORS:     loadCORSConfig(),
		AI:       ai,
		Qdrant:   loadQdrantConfig(),
		Backend:  backend,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(key, defaultPort string) (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv(key))
	if port == "" {
		port = defaultPort
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid %s value: %q", key, port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// RAGConfig 描述问答后端的转发配置。
type RAGConfig struct {
	BaseURL string
	// Timeout 为 0 表示不设超时，与原始行为一致。
	Timeout time.Duration
}

func loadRAGConfig() (RAGConfig, error) {
	timeout, err := parseOptionalDurationEnv("RAG_TIMEOUT")
	if err != nil {
		return RAGConfig{}, err
	}

	cfg := RAGConfig{
		BaseURL: strings.TrimRight(getEnvOrDefault("RAG_API_URL", "http://127.0.0.1:8000"), "/"),
	}
	if timeout != nil {
		if *timeout < 0 {
			return RAGConfig{}, fmt.Errorf("invalid RAG_TIMEOUT value %q: must not be negative", timeout.String())
		}
		cfg.Timeout = *timeout
	}
	return cfg, nil
}

// MongoConfig 描述用户库连接。
type MongoConfig struct {
	URI      string
	Database string
}

// Enabled 表示是否配置了 MongoDB。
func (c MongoConfig) Enabled() bool {
	return c.URI != ""
}

func loadMongoConfig() MongoConfig {
	return MongoConfig{
		URI:      strings.TrimSpace(os.Getenv("MONGODB_URI")),
		Database: getEnvOrDefault("MONGODB_DATABASE", "ragchat"),
	}
}

// AuthConfig 描述 JWT 签发参数。
type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

func loadAuthConfig() (AuthConfig, error) {
	ttl := 24 * time.Hour
	override, err := parseOptionalDurationEnv("JWT_TTL")
	if err != nil {
		return AuthConfig{}, err
	}
	if override != nil && *override > 0 {
		ttl = *override
	}

	return AuthConfig{
		Secret:   strings.TrimSpace(os.Getenv("JWT_SECRET")),
		TokenTTL: ttl,
	}, nil
}

// SessionStoreConfig 选择聊天会话快照的存储驱动。
type SessionStoreConfig struct {
	Driver string
	TTL    time.Duration
}

func loadSessionStoreConfig() (SessionStoreConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("SESSION_STORE", "memory"))
	if driver != "memory" && driver != "redis" {
		return SessionStoreConfig{}, fmt.Errorf("invalid SESSION_STORE value %q: want memory or redis", driver)
	}

	ttl := 7 * 24 * time.Hour
	override, err := parseOptionalDurationEnv("SESSION_TTL")
	if err != nil {
		return SessionStoreConfig{}, err
	}
	if override != nil {
		ttl = *override
	}

	return SessionStoreConfig{Driver: driver, TTL: ttl}, nil
}

// RedisConfig 描述 Redis 连接。
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func loadRedisConfig() (RedisConfig, error) {
	db, err := parseOptionalIntEnv("REDIS_DB")
	if err != nil {
		return RedisConfig{}, err
	}

	cfg := RedisConfig{
		Addr:     getEnvOrDefault("REDIS_ADDR", "127.0.0.1:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
	}
	if db != nil {
		cfg.DB = *db
	}
	return cfg, nil
}

// CORSConfig 描述允许跨域的前端地址。
type CORSConfig struct {
	AllowedOrigins []string
}

func loadCORSConfig() CORSConfig {
	raw := getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if origin := strings.TrimSpace(part); origin != "" {
			origins = append(origins, origin)
		}
	}
	return CORSConfig{AllowedOrigins: origins}
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	EmbeddingModel string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && c.hasCredentials()
}

// EmbeddingEnabled 表示是否可以创建向量模型。
func (c AIConfig) EmbeddingEnabled() bool {
	return c.EmbeddingModel != "" && c.hasCredentials()
}

func (c AIConfig) hasCredentials() bool {
	return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// NewEmbedder 创建用于检索的向量模型。
func (c AIConfig) NewEmbedder(ctx context.Context) (embedding.Embedder, error) {
	if !c.EmbeddingEnabled() {
		return nil, fmt.Errorf("Ark 凭证或 ARK_EMBEDDING_MODEL 缺失")
	}

	return arkembedding.NewEmbedder(ctx, &arkembedding.EmbeddingConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.EmbeddingModel,
	})
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("Model")),
		EmbeddingModel: strings.TrimSpace(os.Getenv("ARK_EMBEDDING_MODEL")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
	}, nil
}

// QdrantConfig 描述向量库连接。
type QdrantConfig struct {
	URL        string
	Collection string
	APIKey     string
}

// Enabled 表示是否配置了向量库。
func (c QdrantConfig) Enabled() bool {
	return c.URL != ""
}

func loadQdrantConfig() QdrantConfig {
	return QdrantConfig{
		URL:        strings.TrimSpace(os.Getenv("QDRANT_URL")),
		Collection: getEnvOrDefault("QDRANT_COLLECTION", "vectorstore"),
		APIKey:     strings.TrimSpace(os.Getenv("QDRANT_API_KEY")),
	}
}

// BackendConfig 描述内置问答后端 (ragd) 的配置。
type BackendConfig struct {
	Server ServerConfig
	TopK   int
}

func loadBackendConfig() (BackendConfig, error) {
	server, err := loadServerConfig("RAGD_PORT", "8000")
	if err != nil {
		return BackendConfig{}, err
	}

	topK := 2
	if override, err := parseOptionalIntEnv("RAG_TOP_K"); err != nil {
		return BackendConfig{}, err
	} else if override != nil {
		if *override < 1 {
			topK = 1
		} else {
			topK = *override
		}
	}

	return BackendConfig{Server: server, TopK: topK}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseOptionalDurationEnv 接受 Go duration ("30s") 或纯数字秒数。
func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		d := time.Duration(seconds) * time.Second
		return &d, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &d, nil
}
