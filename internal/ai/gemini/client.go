package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	// Provider names the backend in structured logs.
	Provider = "gemini"

	DefaultModel          = "gemini-2.5-flash"
	DefaultEmbeddingModel = "gemini-embedding-001"
	DefaultTemperature    = 0.3
)

// ErrEmptyResponse is returned when a generation carries no text.
var ErrEmptyResponse = errors.New("Gemini response was empty.")

// Config selects models and pacing for a Generator.
type Config struct {
	APIKey            string  `mapstructure:"-"`
	Model             string  `mapstructure:"model"`
	EmbeddingModel    string  `mapstructure:"embedding-model"`
	Temperature       float32 `mapstructure:"temperature"`
	RequestsPerSecond float64 `mapstructure:"requests-per-second"`
}

// Request is one generation call.
type Request struct {
	System string
	Prompt string
	// Schema switches the call to JSON output constrained by the schema.
	Schema *genai.Schema
}

type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Generator wraps the Google GenAI client for prompt and embedding calls.
type Generator struct {
	models         modelsAPI
	modelName      string
	embeddingModel string
	temperature    float32
	limiter        *rate.Limiter
}

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, cfg Config) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(client.Models, cfg), nil
}

func newGenerator(models modelsAPI, cfg Config) *Generator {
	g := &Generator{
		models:         models,
		modelName:      strings.TrimSpace(cfg.Model),
		embeddingModel: strings.TrimSpace(cfg.EmbeddingModel),
		temperature:    cfg.Temperature,
	}

	if g.modelName == "" {
		g.modelName = DefaultModel
	}
	if g.embeddingModel == "" {
		g.embeddingModel = DefaultEmbeddingModel
	}
	if g.temperature <= 0 {
		g.temperature = DefaultTemperature
	}
	if cfg.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return g
}

// Generate sends the request to Gemini and returns the concatenated text of
// every candidate part.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if system := strings.TrimSpace(req.System); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = req.Schema
	}

	if err := g.wait(ctx); err != nil {
		return "", err
	}

	resp, err := g.models.GenerateContent(ctx, g.modelName, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			builder.WriteString(part.Text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", ErrEmptyResponse
	}

	return output, nil
}

// Embed returns one vector per text using the embedding model.
func (g *Generator) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if g == nil || g.models == nil {
		return nil, errors.New("gemini generator is not initialized")
	}

	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := g.wait(ctx); err != nil {
			return nil, err
		}

		config := &genai.EmbedContentConfig{TaskType: taskType}
		if taskType == TaskRetrievalDocument {
			config.Title = documentTitle
		}

		resp, err := g.models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), config)
		if err != nil {
			return nil, fmt.Errorf("embed content: %w", err)
		}
		if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
			return nil, errors.New("gemini api returned no embeddings")
		}

		vectors = append(vectors, resp.Embeddings[0].Values)
	}

	return vectors, nil
}

func (g *Generator) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limiter: %w", err)
	}
	return nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.modelName
}

func (g *Generator) EmbeddingModel() string {
	if g == nil {
		return ""
	}
	return g.embeddingModel
}
