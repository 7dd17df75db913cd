package providers

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider serves both chat generation and embeddings through the
// Gemini API.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	embedModel  string
	temperature float32
}

func NewGeminiProvider(ctx context.Context, apiKey, model, embedModel string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key missing")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiProvider{
		client:      client,
		model:       model,
		embedModel:  embedModel,
		temperature: 0.3,
	}, nil
}

func (g *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "gemini", Model: g.model}
	prompt := req.Prompt
	if len(req.Context) > 0 {
		prompt += "\n\nContext:\n" + strings.Join(req.Context, "\n\n")
	}
	temp := g.temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:       &temp,
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("gemini generate: %w", err)
	}
	return GenerateResponse{Text: resp.Text()}, info, nil
}

func (g *GeminiProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "gemini", Model: g.embedModel}
	if len(req.Inputs) == 0 {
		return nil, info, fmt.Errorf("no embedding inputs")
	}
	var cfg *genai.EmbedContentConfig
	if req.Dimension > 0 {
		dim := int32(req.Dimension)
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}
	contents := make([]*genai.Content, 0, len(req.Inputs))
	for _, text := range req.Inputs {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}
	res, err := g.client.Models.EmbedContent(ctx, g.embedModel, contents, cfg)
	if err != nil {
		return nil, info, fmt.Errorf("gemini embedding: %w", err)
	}
	if len(res.Embeddings) != len(req.Inputs) {
		return nil, info, fmt.Errorf("gemini embedding count mismatch: got %d, expected %d", len(res.Embeddings), len(req.Inputs))
	}
	out := make([][]float32, 0, len(res.Embeddings))
	for _, emb := range res.Embeddings {
		out = append(out, matchDimension(emb.Values, req.Dimension))
	}
	return out, info, nil
}
