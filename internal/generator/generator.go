// Package generator produces learning modules and lesson content through the
// AI gateway.
package generator

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/learnpath/internal/ai"
	"github.com/p-n-ai/learnpath/internal/wizard"
)

//go:embed modules.schema.json
var modulesSchema string

const (
	defaultOutlineMaxTokens = 1200
	defaultContentMaxTokens = 4000
)

// ErrEmptyContent is returned when the model answers with nothing.
var ErrEmptyContent = errors.New("empty content from model")

// Completer is the part of the AI gateway the generator needs.
type Completer interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (ai.CompletionResponse, error)
}

// Config holds dependencies and tuning for a Generator.
type Config struct {
	AI               Completer
	OutlineMaxTokens int // default 1200
	ContentMaxTokens int // default 4000
}

// Generator implements wizard.Generator.
type Generator struct {
	ai               Completer
	schema           *gojsonschema.Schema
	outlineMaxTokens int
	contentMaxTokens int
}

var _ wizard.Generator = (*Generator)(nil)

// New creates a Generator. It fails only if the embedded schema is broken.
func New(cfg Config) (*Generator, error) {
	if cfg.AI == nil {
		return nil, errors.New("generator: AI completer is required")
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(modulesSchema))
	if err != nil {
		return nil, fmt.Errorf("compile modules schema: %w", err)
	}

	g := &Generator{
		ai:               cfg.AI,
		schema:           schema,
		outlineMaxTokens: cfg.OutlineMaxTokens,
		contentMaxTokens: cfg.ContentMaxTokens,
	}
	if g.outlineMaxTokens == 0 {
		g.outlineMaxTokens = defaultOutlineMaxTokens
	}
	if g.contentMaxTokens == 0 {
		g.contentMaxTokens = defaultContentMaxTokens
	}
	return g, nil
}

// GenerateModules asks the model for an ordered module outline of topic at
// gradeLevel.
func (g *Generator) GenerateModules(ctx context.Context, topic, gradeLevel string) ([]wizard.Module, error) {
	resp, err := g.ai.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: outlineSystemPrompt},
			{Role: "user", Content: outlineUserPrompt(topic, gradeLevel)},
		},
		MaxTokens:   g.outlineMaxTokens,
		Temperature: 0.4,
		Format:      ai.FormatJSON,
		Task:        ai.TaskModuleOutline,
	})
	if err != nil {
		return nil, fmt.Errorf("complete module outline: %w", err)
	}

	modules, err := g.parseModules(resp.Content)
	if err != nil {
		slog.Warn("model returned an invalid module outline",
			"topic", topic,
			"model", resp.Model,
			"error", err,
		)
		return nil, err
	}
	return modules, nil
}

// GenerateModuleContent asks the model for a Markdown lesson on one module.
func (g *Generator) GenerateModuleContent(ctx context.Context, title, description, gradeLevel string) (string, error) {
	resp, err := g.ai.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: contentSystemPrompt},
			{Role: "user", Content: contentUserPrompt(title, description, gradeLevel)},
		},
		MaxTokens:   g.contentMaxTokens,
		Temperature: 0.7,
		Format:      ai.FormatText,
		Task:        ai.TaskModuleContent,
	})
	if err != nil {
		return "", fmt.Errorf("complete module content: %w", err)
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}

type outline struct {
	Modules []wizard.Module `json:"modules"`
}

func (g *Generator) parseModules(raw string) ([]wizard.Module, error) {
	payload := stripCodeFence(raw)
	if payload == "" {
		return nil, ErrEmptyContent
	}

	result, err := g.schema.Validate(gojsonschema.NewStringLoader(payload))
	if err != nil {
		return nil, fmt.Errorf("parse module outline: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid module outline: %s", strings.Join(msgs, "; "))
	}

	var out outline
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, fmt.Errorf("decode module outline: %w", err)
	}
	for i := range out.Modules {
		out.Modules[i].Title = strings.TrimSpace(out.Modules[i].Title)
		out.Modules[i].Description = strings.TrimSpace(out.Modules[i].Description)
	}
	return out.Modules, nil
}

// stripCodeFence removes a surrounding Markdown code fence, which models add
// even when told not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string, e.g. "json".
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
