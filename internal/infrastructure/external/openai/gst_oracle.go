package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/infrastructure/retry"
)

// DefaultMaxTextChars caps the document text sent per request.
const DefaultMaxTextChars = 12000

// Config holds the oracle settings
type Config struct {
	APIKey       string
	Model        string
	BaseURL      string // empty for api.openai.com
	MaxTextChars int
}

// GSTOracle implements port.GSTOracle using chat completions
type GSTOracle struct {
	client       *openai.Client
	model        string
	maxTextChars int
	prompts      *PromptConfig
	policy       retry.Policy
	logger       *zap.Logger
}

var _ port.GSTOracle = (*GSTOracle)(nil)

// NewGSTOracle creates a new oracle. A nil prompts uses DefaultPrompts.
func NewGSTOracle(cfg Config, prompts *PromptConfig, policy retry.Policy, logger *zap.Logger) *GSTOracle {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTextChars <= 0 {
		cfg.MaxTextChars = DefaultMaxTextChars
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &GSTOracle{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		maxTextChars: cfg.MaxTextChars,
		prompts:      prompts,
		policy:       policy,
		logger:       logger,
	}
}

// ExtractGST asks the model for the GSTIN, legal name and state code
// found in documentText.
func (o *GSTOracle) ExtractGST(ctx context.Context, documentText string) (*port.GSTExtraction, error) {
	text := documentText
	if r := []rune(text); len(r) > o.maxTextChars {
		text = string(r[:o.maxTextChars])
	}

	p := &o.prompts.GSTExtraction
	userPrompt, err := p.User(map[string]string{"Text": text})
	if err != nil {
		return nil, err
	}

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	content, err := retry.Do(ctx, o.policy, o.logger, "openai gst extraction", func(ctx context.Context) (string, error) {
		resp, err := o.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", classify(err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no response from OpenAI")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		o.logger.Error("OpenAI API call failed", zap.Error(err))
		return nil, err
	}

	var result port.GSTExtraction
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		jsonStr := extractJSON(content)
		if jsonStr == "" || json.Unmarshal([]byte(jsonStr), &result) != nil {
			o.logger.Error("Failed to parse OpenAI response",
				zap.Error(err),
				zap.String("content", content))
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	result.GSTIN = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(result.GSTIN), " ", ""))
	result.LegalName = strings.TrimSpace(result.LegalName)
	result.StateCode = strings.TrimSpace(result.StateCode)

	o.logger.Debug("GST extraction completed",
		zap.String("gstin", result.GSTIN),
		zap.String("legal_name", result.LegalName))

	return &result, nil
}

// classify marks request errors the API will keep rejecting as permanent.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 && retry.IsClientError(apiErr.HTTPStatusCode) {
		return retry.Permanent(err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != http.StatusTooManyRequests && retry.IsClientError(reqErr.HTTPStatusCode) {
		return retry.Permanent(err)
	}
	return err
}

// extractJSON returns the first balanced JSON object in content, for
// replies that wrap it in prose or a code fence.
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}
