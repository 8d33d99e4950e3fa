package rag

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

const systemPreamble = "Use the following pieces of context to answer the question at the end. " +
	"If you don't know the answer, just say that you don't know, don't try to make up an answer."

// ChainGenerator stuffs the retrieved documents into the system prompt and
// runs a prompt → chat model chain.
type ChainGenerator struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewChainGenerator compiles the answer chain around chatModel.
func NewChainGenerator(ctx context.Context, chatModel model.BaseChatModel) (*ChainGenerator, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile answer chain: %w", err)
	}
	return &ChainGenerator{chain: runnable}, nil
}

// Generate implements Generator.
func (g *ChainGenerator) Generate(ctx context.Context, question string, docs []*schema.Document) (string, error) {
	response, err := g.chain.Invoke(ctx, map[string]any{
		"system": buildSystemPrompt(docs),
		"query":  question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run answer chain: %w", err)
	}

	log.Printf("[rag] generated answer, length=%d", len(response.Content))
	return strings.TrimSpace(response.Content), nil
}

func buildSystemPrompt(docs []*schema.Document) string {
	var builder strings.Builder
	builder.WriteString(systemPreamble)
	builder.WriteString("\n\n")
	for i, doc := range docs {
		if i > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(doc.Content)
	}
	return builder.String()
}
