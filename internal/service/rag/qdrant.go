package rag

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"

	"github.com/zhouzirui/rag-chat/backend/internal/config"
)

const defaultQdrantPort = 6334

// pointQuerier is the subset of *qdrant.Client used for search.
type pointQuerier interface {
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

// NewQdrantClient connects to the gRPC endpoint described by cfg.URL. A URL
// without scheme is treated as https.
func NewQdrantClient(cfg config.QdrantConfig) (*qdrant.Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}

	raw := cfg.URL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse qdrant url: %w", err)
	}

	port := defaultQdrantPort
	if u.Port() != "" {
		if port, err = strconv.Atoi(u.Port()); err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return client, nil
}

// QdrantRetriever embeds the query and runs a nearest-neighbour search.
// Points are expected to carry the chunk text under "page_content" (or
// "content") and optional metadata under "metadata".
type QdrantRetriever struct {
	points     pointQuerier
	collection string
	embedder   embedding.Embedder
	topK       int
}

// NewQdrantRetriever creates a retriever over one collection.
func NewQdrantRetriever(points pointQuerier, collection string, embedder embedding.Embedder, topK int) *QdrantRetriever {
	return &QdrantRetriever{points: points, collection: collection, embedder: embedder, topK: topK}
}

// Retrieve implements retriever.Retriever.
func (r *QdrantRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := r.topK
	options := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	if options.TopK != nil && *options.TopK > 0 {
		topK = *options.TopK
	}

	vectors, err := r.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embed query: expected one vector, got %d", len(vectors))
	}

	vector := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		vector[i] = float32(v)
	}

	limit := uint64(topK)
	req := &qdrant.QueryPoints{
		CollectionName: r.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if options.ScoreThreshold != nil {
		threshold := float32(*options.ScoreThreshold)
		req.ScoreThreshold = &threshold
	}

	points, err := r.points.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	docs := make([]*schema.Document, 0, len(points))
	for _, point := range points {
		doc := pointToDocument(point)
		if doc.Content == "" {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func pointToDocument(point *qdrant.ScoredPoint) *schema.Document {
	doc := &schema.Document{MetaData: make(map[string]any)}

	if point.Id != nil {
		if id := point.Id.GetUuid(); id != "" {
			doc.ID = id
		} else {
			doc.ID = strconv.FormatUint(point.Id.GetNum(), 10)
		}
	}

	for k, v := range point.Payload {
		switch k {
		case "page_content", "content":
			if s := v.GetStringValue(); s != "" && doc.Content == "" {
				doc.Content = s
			}
		case "metadata":
			if st := v.GetStructValue(); st != nil {
				for mk, mv := range st.GetFields() {
					doc.MetaData[mk] = extractValue(mv)
				}
			}
		default:
			doc.MetaData[k] = extractValue(v)
		}
	}

	return doc.WithScore(float64(point.Score))
}

func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}

	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

var _ retriever.Retriever = (*QdrantRetriever)(nil)
