package embed

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// DefaultModel is the default Gemini embedding model.
// gemini-embedding-001 outputs 3072 dimensions natively but supports
// truncation via OutputDimensionality (Matryoshka Representation Learning);
// the pgvector schema is sized by config, so the two must agree.
const DefaultModel = "gemini-embedding-001"

// GeminiConfig configures the Gemini embedding client.
type GeminiConfig struct {
	APIKey string

	// Model is the embedding model identifier. Default: DefaultModel.
	Model string

	// Dimension is the requested output dimensionality. Must match the
	// vector index's configured vector size.
	Dimension int32

	// RequestsPerSecond caps calls to the remote API. Zero means no cap.
	RequestsPerSecond float64
}

// Gemini is an Embedder backed by the Gemini embedding API.
//
// Gemini is safe for concurrent use by multiple goroutines.
type Gemini struct {
	client  *genai.Client
	model   string
	dim     int32
	limiter *rate.Limiter // nil when uncapped
	logger  *slog.Logger
}

// NewGemini creates a Gemini embedding client.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Gemini{
		client:  client,
		model:   cfg.Model,
		dim:     cfg.Dimension,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Embed generates an embedding for text. The returned vector always has
// exactly Dimension() elements; a dimensionality mismatch from the remote
// service is reported as a configuration error.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, &Error{Op: "embed", Err: err}
		}
	}

	dim := g.dim
	resp, err := g.client.Models.EmbedContent(ctx, g.model,
		genai.Text(text),
		&genai.EmbedContentConfig{OutputDimensionality: &dim},
	)
	if err != nil {
		return nil, &Error{Op: "embed", Err: err}
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, &Error{Op: "embed", Err: fmt.Errorf("empty embedding response")}
	}

	values := resp.Embeddings[0].Values
	if len(values) != int(g.dim) {
		return nil, &Error{Op: "embed", Err: fmt.Errorf(
			"model %s returned %d dimensions, configured for %d", g.model, len(values), g.dim)}
	}

	g.logger.Debug("embedded text", "model", g.model, "chars", len(text))
	return values, nil
}

// Dimension returns the configured output dimensionality.
func (g *Gemini) Dimension() int { return int(g.dim) }
