package rag

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

// NoContextAnswer is returned when retrieval finds nothing for a question.
const NoContextAnswer = "Sorry, I couldn't find anything in the dataset related to your question."

var (
	ErrEmptyQuestion     = errors.New("question is required")
	ErrRetrieverDisabled = errors.New("document retriever is not configured")
)

var smallTalk = map[string]string{
	"hi":        "Hi there! How can I help you with the dataset?",
	"hello":     "Hello! Ask me something from the dataset.",
	"bye":       "Goodbye! Have a great day.",
	"thank you": "You're welcome!",
}

// Generator writes an answer grounded in the retrieved documents.
type Generator interface {
	Generate(ctx context.Context, question string, docs []*schema.Document) (string, error)
}

// Engine answers dataset questions: small talk directly, everything else by
// retrieval followed by generation.
type Engine struct {
	retriever retriever.Retriever
	generator Generator
	topK      int
}

// NewEngine wires an engine. A nil retriever limits it to small talk.
func NewEngine(r retriever.Retriever, g Generator, topK int) *Engine {
	if topK < 1 {
		topK = 1
	}
	return &Engine{retriever: r, generator: g, topK: topK}
}

// Answer normalizes the question (trimmed, lower-cased) and answers it.
func (e *Engine) Answer(ctx context.Context, question string) (string, error) {
	q := strings.ToLower(strings.TrimSpace(question))
	if q == "" {
		return "", ErrEmptyQuestion
	}

	if reply, ok := smallTalk[q]; ok {
		log.Printf("[rag] small talk %q", q)
		return reply, nil
	}

	if e.retriever == nil || e.generator == nil {
		return "", ErrRetrieverDisabled
	}

	docs, err := e.retriever.Retrieve(ctx, q, retriever.WithTopK(e.topK))
	if err != nil {
		return "", fmt.Errorf("retrieve documents: %w", err)
	}
	if len(docs) == 0 {
		log.Printf("[rag] blocked, no relevant data for %q", q)
		return NoContextAnswer, nil
	}

	log.Printf("[rag] question %q with %d documents", q, len(docs))
	answer, err := e.generator.Generate(ctx, q, docs)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}
