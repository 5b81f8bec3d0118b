package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/voicehealth/backend/internal/metrics"
	"github.com/voicehealth/backend/internal/storage/models"
	"github.com/voicehealth/backend/pkg/circuitbreaker"
	"github.com/voicehealth/backend/pkg/logger"
	"github.com/voicehealth/backend/pkg/retry"
)

// Client wraps an OpenAI-compatible endpoint (a local model server in
// the default deployment) behind the extraction and insight-generation
// contracts. Every call is bounded by a timeout and guarded by the
// circuit breaker; a tripped breaker surfaces as a recoverable error.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(baseURL, apiKey, model string, temperature float32, maxTokens, timeoutSec int) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	timeout := time.Duration(timeoutSec) * time.Second
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	logger.Info("LLM client initialized",
		zap.String("model", model),
		zap.String("base_url", cfg.BaseURL),
	)

	return &Client{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

type completionRequest struct {
	systemPrompt string
	userPrompt   string
	temperature  float32
}

func (c *Client) complete(ctx context.Context, req completionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.systemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.userPrompt,
		},
	}

	var content string

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: req.temperature,
					MaxTokens:   c.maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			content = resp.Choices[0].Message.Content
			return nil
		})
	})

	if err != nil {
		return "", err
	}

	return content, nil
}

const extractionSchema = `{"symptoms": ["list of symptom names"], "severity": 7, "potential_triggers": ["list"], "mood": "string or empty", "body_location": ["list"], "time_context": "string or empty", "notes": "string or empty"}`

// Extract runs a full extraction pass over a raw transcript.
func (c *Client) Extract(ctx context.Context, text string) (*models.ExtractedEntry, error) {
	systemPrompt := `You are a precise data extraction engine for a personal symptom log.
Extract structured fields from the user's spoken or typed entry.

Return ONLY a JSON object with this shape:
` + extractionSchema + `

Rules:
- severity is an integer from 1 to 10, or null if the entry never indicates intensity
- use empty arrays/strings for fields the entry does not mention
- do not invent symptoms or triggers that are not stated or strongly implied`

	userPrompt := fmt.Sprintf("Entry:\n%s\n\nReturn JSON only.", text)

	resp, err := c.complete(ctx, completionRequest{
		systemPrompt: systemPrompt,
		userPrompt:   userPrompt,
		temperature:  0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract entry: %w", err)
	}

	extracted, err := parseExtractedEntry(resp)
	if err != nil {
		return nil, err
	}

	logger.Debug("Entry extracted",
		zap.Int("symptoms", len(extracted.Symptoms)),
		zap.Bool("has_severity", extracted.Severity != nil),
	)

	return extracted, nil
}

// UpdateExtract runs the narrower incremental pass: fill blanks and
// resolve ambiguity in an existing partial extraction from follow-up
// text, without re-deriving fields already known. This halves the
// number of full-extraction calls in the guided flow.
func (c *Client) UpdateExtract(ctx context.Context, state *models.ExtractedEntry, newText string) (*models.ExtractedEntry, error) {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extraction state: %w", err)
	}

	systemPrompt := `You are a precise data extraction engine for a personal symptom log.
You are given a partially extracted entry and follow-up conversation text.
Fill in fields that are null or empty and resolve ambiguity using the new text.
Keep fields that are already populated unless the new text clearly corrects them.

Return ONLY a JSON object with this shape:
` + extractionSchema

	userPrompt := fmt.Sprintf("Current extraction:\n%s\n\nFollow-up text:\n%s\n\nReturn the updated JSON only.", stateJSON, newText)

	resp, err := c.complete(ctx, completionRequest{
		systemPrompt: systemPrompt,
		userPrompt:   userPrompt,
		temperature:  0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update extraction: %w", err)
	}

	return parseExtractedEntry(resp)
}

// GenerateInsights turns a stats bundle into dashboard insight cards
// and a prediction.
func (c *Client) GenerateInsights(ctx context.Context, bundle *models.StatsBundle) (*models.InsightPayload, error) {
	bundleJSON, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stats bundle: %w", err)
	}

	systemPrompt := `You are a health pattern summarizer. You are given correlation,
temporal and severity-trend statistics computed from a user's symptom log.
Write short, plain-language insight cards. These are descriptive observations
about logged patterns, never diagnoses or medical advice.

Return ONLY a JSON object with this shape:
{"insights": [{"title": "short title", "body": "1-2 sentences", "icon": "emoji"}],
 "prediction": {"title": "short title", "body": "1-2 sentences", "risk_level": "low|medium|high"}}

Produce at most 4 insights, ordered by strength of the underlying signal.`

	userPrompt := fmt.Sprintf("Statistics:\n%s\n\nReturn JSON only.", bundleJSON)

	resp, err := c.complete(ctx, completionRequest{
		systemPrompt: systemPrompt,
		userPrompt:   userPrompt,
		temperature:  0.4,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate insights: %w", err)
	}

	var payload models.InsightPayload
	if err := json.Unmarshal([]byte(StripJSONFences(resp)), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse insights payload: %w", err)
	}

	logger.Info("Insights generated", zap.Int("count", len(payload.Insights)))

	return &payload, nil
}

func parseExtractedEntry(content string) (*models.ExtractedEntry, error) {
	var extracted models.ExtractedEntry
	if err := json.Unmarshal([]byte(StripJSONFences(content)), &extracted); err != nil {
		return nil, fmt.Errorf("failed to parse extraction output: %w", err)
	}
	return &extracted, nil
}

// StripJSONFences removes a markdown code fence around a JSON payload,
// which smaller local models emit despite instructions.
func StripJSONFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	var jsonLines []string
	inBlock := false
	for _, line := range strings.Split(trimmed, "\n") {
		if strings.HasPrefix(line, "```") {
			inBlock = !inBlock
			continue
		}
		if inBlock {
			jsonLines = append(jsonLines, line)
		}
	}
	return strings.TrimSpace(strings.Join(jsonLines, "\n"))
}
