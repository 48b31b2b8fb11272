package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docvault/pkg/ai"
	"docvault/pkg/domain"
)

const qaSystemPrompt = "Use the following pieces of context to answer the question at the end. " +
	"If you don't know the answer, just say that you don't know, don't try to make up an answer."

const condenseSystemPrompt = "Given the following conversation and a follow up question, " +
	"rephrase the follow up question to be a standalone question."

// AnswerGenerator turns retrieved context and prior turns into an answer.
type AnswerGenerator struct {
	llm     ai.TextGenerator
	timeout time.Duration
}

func NewAnswerGenerator(llm ai.TextGenerator, callTimeout time.Duration) (*AnswerGenerator, error) {
	if llm == nil {
		return nil, fmt.Errorf("text generator required")
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &AnswerGenerator{llm: llm, timeout: callTimeout}, nil
}

// Generate answers question from contexts. An empty contexts slice is valid;
// the prompt then leads the model to say it does not know.
func (g *AnswerGenerator) Generate(ctx context.Context, question string, contexts []string, history []domain.Turn) (string, error) {
	return g.call(ctx, qaSystemPrompt, qaPrompt(question, contexts, history))
}

// Condense rewrites a follow-up question into a standalone one. Without
// history the question is returned unchanged and no call is made.
func (g *AnswerGenerator) Condense(ctx context.Context, question string, history []domain.Turn) (string, error) {
	if len(history) == 0 {
		return question, nil
	}
	var sb strings.Builder
	sb.WriteString("Chat History:\n")
	sb.WriteString(formatHistory(history))
	sb.WriteString("\nFollow Up Input: ")
	sb.WriteString(question)
	sb.WriteString("\nStandalone question:")
	out, err := g.call(ctx, condenseSystemPrompt, sb.String())
	if err != nil {
		return "", err
	}
	if out = strings.TrimSpace(out); out == "" {
		return question, nil
	}
	return out, nil
}

func (g *AnswerGenerator) call(ctx context.Context, system, user string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	out, err := g.llm.GenerateText(callCtx, system, user)
	if err != nil {
		return "", serviceError(ErrGenerationService, err)
	}
	return out, nil
}

func qaPrompt(question string, contexts []string, history []domain.Turn) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(contexts, "\n\n"))
	sb.WriteString("\n\n")
	if len(history) > 0 {
		sb.WriteString("Chat History:\n")
		sb.WriteString(formatHistory(history))
		sb.WriteString("\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\nHelpful Answer:")
	return sb.String()
}

func formatHistory(history []domain.Turn) string {
	var sb strings.Builder
	for _, t := range history {
		sb.WriteString("Human: ")
		sb.WriteString(t.Question)
		sb.WriteString("\nAssistant: ")
		sb.WriteString(t.Answer)
		sb.WriteString("\n")
	}
	return sb.String()
}
