// Package anthropic adapts the Anthropic Messages API to the
// provider.TextGenerator interface. The adapter only translates calls and
// errors; retry policy belongs to provider.NewRetryTextGenerator, so the
// wrapped client should be built with option.WithMaxRetries(0).
package anthropic

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/becomeliminal/arcana-go/core"
	"github.com/becomeliminal/arcana-go/provider"
)

const providerName = "anthropic"

// Config holds adapter defaults applied when GenerateOptions leaves a field
// unset.
type Config struct {
	// Model is the default Claude model.
	Model string

	// MaxTokens is the default response cap.
	MaxTokens int64
}

// DefaultConfig returns the adapter defaults.
var DefaultConfig = &Config{
	Model:     "claude-sonnet-4-20250514",
	MaxTokens: 4096,
}

// Generator implements provider.TextGenerator on the Anthropic SDK.
type Generator struct {
	client *anthropic.Client
	config *Config
}

// New creates a generator around client; nil config uses DefaultConfig.
func New(client *anthropic.Client, config *Config) *Generator {
	if config == nil {
		config = DefaultConfig
	}
	return &Generator{client: client, config: config}
}

// Generate implements provider.TextGenerator.
func (g *Generator) Generate(ctx context.Context, prompt string, opts provider.GenerateOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = g.config.Model
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.config.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", core.NewProviderError(providerName, core.KindProviderFault, errors.New("response contained no text blocks"))
	}
	return text, nil
}

// classify maps SDK and transport failures onto the shared error taxonomy.
func classify(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		kind := kindForStatus(apierr.StatusCode)
		pe := core.NewProviderError(providerName, kind, err)
		if kind == core.KindRateLimited && apierr.Response != nil {
			if secs, convErr := strconv.Atoi(apierr.Response.Header.Get("retry-after")); convErr == nil && secs > 0 {
				pe.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return pe
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return core.NewProviderError(providerName, core.KindTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return core.NewProviderError(providerName, core.KindTimeout, err)
		}
		return core.NewProviderError(providerName, core.KindConnection, err)
	}

	return core.NewProviderError(providerName, core.KindConnection, err)
}

func kindForStatus(status int) core.ErrorKind {
	switch {
	case status == 401 || status == 403:
		return core.KindAuthFailure
	case status == 408:
		return core.KindTimeout
	// 529 is Anthropic's "overloaded" answer; treat it like 429 so the
	// retry decorator backs off instead of failing hard.
	case status == 429 || status == 529:
		return core.KindRateLimited
	case status >= 400 && status < 500:
		return core.KindInvalidRequest
	case status >= 500:
		return core.KindProviderFault
	default:
		return core.KindUnknown
	}
}
