package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

const (
	// requestDelay spaces consecutive model calls to stay under the per-minute quota
	requestDelay = 4 * time.Second
	// maxRetries bounds attempts on rate-limited calls
	maxRetries = 3
	// retryBackoff is the first wait after a rate-limit response
	retryBackoff = 10 * time.Second

	defaultModel    = "gemini-1.5-flash"
	defaultLocation = "us-central1"
)

// Generator produces text for a prompt. Scorers depend on this instead of the
// concrete Vertex AI client so they can be exercised with fakes.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Options configures the Vertex AI client
type Options struct {
	ProjectID       string
	Location        string
	Model           string
	CredentialsFile string
	// RequestDelay overrides requestDelay; zero keeps the default, negative disables pacing
	RequestDelay time.Duration
}

// VertexAIClient wraps the Vertex AI Gemini API
type VertexAIClient struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	limiter   *rate.Limiter
	projectID string
	location  string
	logger    *slog.Logger
}

// NewVertexAIClient creates a new Vertex AI client
func NewVertexAIClient(ctx context.Context, opts Options, logger *slog.Logger) (*VertexAIClient, error) {
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("google cloud project is not configured")
	}
	if opts.Location == "" {
		opts.Location = defaultLocation
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, opts.ProjectID, opts.Location, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	model := client.GenerativeModel(opts.Model)

	// Low temperature keeps scores stable across re-runs
	model.SetTemperature(0.2)
	model.SetTopK(40)
	model.SetTopP(0.95)
	model.SetMaxOutputTokens(2048)
	model.ResponseMIMEType = "application/json"

	return &VertexAIClient{
		client:    client,
		model:     model,
		limiter:   newPacer(opts.RequestDelay),
		projectID: opts.ProjectID,
		location:  opts.Location,
		logger:    logger,
	}, nil
}

func newPacer(delay time.Duration) *rate.Limiter {
	if delay < 0 {
		return nil
	}
	if delay == 0 {
		delay = requestDelay
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// GenerateContent sends a prompt to the model and returns the response,
// retrying with exponential backoff when the quota is exhausted
func (v *VertexAIClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	operation := func() (string, error) {
		if v.limiter != nil {
			if err := v.limiter.Wait(ctx); err != nil {
				return "", backoff.Permanent(err)
			}
		}

		text, err := v.generateOnce(ctx, prompt)
		if err == nil {
			return text, nil
		}
		if !isRateLimitError(err) {
			return "", backoff.Permanent(err)
		}
		v.logger.Warn("vertex ai rate limited, backing off", slog.String("error", err.Error()))
		return "", err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryBackoff
	bo.MaxInterval = 4 * retryBackoff

	return backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(maxRetries))
}

func (v *VertexAIClient) generateOnce(ctx context.Context, prompt string) (string, error) {
	resp, err := v.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("no response candidates returned")
	}

	// Extract text from response
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	return sb.String(), nil
}

// Close closes the Vertex AI client
func (v *VertexAIClient) Close() error {
	return v.client.Close()
}

// isRateLimitError reports whether err looks like a quota or throttling response
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"resourceexhausted", "resource exhausted", "429", "rate limit", "quota"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
