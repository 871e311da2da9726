package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiProvider implements the LLM Provider interface using the
// Google Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// GeminiOption configures a GeminiProvider.
type GeminiOption func(*GeminiProvider)

// WithGeminiModel overrides the default model.
func WithGeminiModel(model string) GeminiOption {
	return func(g *GeminiProvider) {
		if strings.TrimSpace(model) != "" {
			g.model = model
		}
	}
}

// NewGemini creates a Gemini provider authenticated with the given API key.
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	g := &GeminiProvider{
		client: client,
		model:  defaultGeminiModel,
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Name returns the provider identifier.
func (g *GeminiProvider) Name() string {
	return "gemini"
}

// Generate produces a complete reply in one non-streaming call.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = g.model
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), buildConfig(opts))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini generate: empty response")
	}
	return text, nil
}

// GenerateStream produces a reply incrementally.
func (g *GeminiProvider) GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (*Stream, error) {
	model := opts.Model
	if model == "" {
		model = g.model
	}

	it := g.client.Models.GenerateContentStream(ctx, model, genai.Text(prompt), buildConfig(opts))
	stream := NewStream()
	go pump(it, stream)
	return stream, nil
}

func pump(it iter.Seq2[*genai.GenerateContentResponse, error], stream *Stream) {
	defer stream.Finish()

	next, stop := iter.Pull2(it)
	defer stop()

	for {
		resp, err, ok := next()
		if !ok {
			return
		}
		if err != nil {
			stream.SetError(fmt.Errorf("gemini stream: %w", err))
			return
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		if !stream.Push(text) {
			return
		}
	}
}

func buildConfig(opts GenerateOptions) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if opts.MaxOutputTokens > 0 {
		config.MaxOutputTokens = opts.MaxOutputTokens
	}
	if opts.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: opts.SystemPrompt}},
		}
	}
	return config
}
