package enrich

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// Default OpenAI models for the enrichment stages.
const (
	DefaultChatModel      = "gpt-4o-mini"
	DefaultImageModel     = oai.ImageModelDallE3
	DefaultEmbeddingModel = oai.EmbeddingModelTextEmbedding3Small
)

// AIClient implements [Tagger], [Translator], [ImageGenerator], and
// [Embedder] against the OpenAI API.
type AIClient struct {
	client         oai.Client
	chatModel      string
	imageModel     string
	embeddingModel string
}

// aiConfig holds optional configuration for the client.
type aiConfig struct {
	baseURL        string
	organization   string
	timeout        time.Duration
	chatModel      string
	imageModel     string
	embeddingModel string
}

// AIOption is a functional option for [AIClient].
type AIOption func(*aiConfig)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) AIOption {
	return func(c *aiConfig) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) AIOption {
	return func(c *aiConfig) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) AIOption {
	return func(c *aiConfig) {
		c.timeout = d
	}
}

// WithChatModel overrides the chat model used for tagging and translation.
func WithChatModel(model string) AIOption {
	return func(c *aiConfig) {
		c.chatModel = model
	}
}

// WithImageModel overrides the image generation model.
func WithImageModel(model string) AIOption {
	return func(c *aiConfig) {
		c.imageModel = model
	}
}

// WithEmbeddingModel overrides the embedding model.
func WithEmbeddingModel(model string) AIOption {
	return func(c *aiConfig) {
		c.embeddingModel = model
	}
}

// NewAIClient constructs an [AIClient].
func NewAIClient(apiKey string, opts ...AIOption) (*AIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("enrich: apiKey must not be empty")
	}

	cfg := &aiConfig{
		chatModel:      DefaultChatModel,
		imageModel:     DefaultImageModel,
		embeddingModel: DefaultEmbeddingModel,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &AIClient{
		client:         oai.NewClient(reqOpts...),
		chatModel:      cfg.chatModel,
		imageModel:     cfg.imageModel,
		embeddingModel: cfg.embeddingModel,
	}, nil
}

// complete runs a single-turn chat completion and returns the message text.
func (c *AIClient) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.chatModel),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage(user),
		},
		Temperature: param.NewOpt(0.0),
	})
	if err != nil {
		return "", fmt.Errorf("enrich: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("enrich: empty choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Tags implements [Tagger]. It returns lowercase dietary tags such as
// "vegan", "vegetarian", "gluten-free" for an ingredient name.
func (c *AIClient) Tags(ctx context.Context, name, language string) ([]string, error) {
	system := "You label restaurant ingredients with dietary tags. " +
		"Answer with a comma-separated list of lowercase tags from this set: " +
		"vegan, vegetarian, gluten-free, lactose-free, nut-free, contains-alcohol, seafood, meat. " +
		"Answer with the tags only, no prose."
	user := name
	if language != "" {
		user = fmt.Sprintf("%s (ingredient name in language %q)", name, language)
	}

	out, err := c.complete(ctx, system, user)
	if err != nil {
		return nil, err
	}

	var tags []string
	for _, t := range strings.Split(out, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags, nil
}

// Translate implements [Translator].
func (c *AIClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	system := fmt.Sprintf(
		"You translate restaurant menu terms from %q to %q. "+
			"Answer with the translation only, no prose.",
		sourceLang, targetLang)
	out, err := c.complete(ctx, system, text)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("enrich: empty translation for %q", text)
	}
	return out, nil
}

// GenerateImage implements [ImageGenerator]. It returns the URL of a
// generated menu item image.
func (c *AIClient) GenerateImage(ctx context.Context, description string) (string, error) {
	resp, err := c.client.Images.Generate(ctx, oai.ImageGenerateParams{
		Prompt: "Professional food photography of " + description +
			", plated for a restaurant menu, natural light.",
		Model: c.imageModel,
		N:     param.NewOpt(int64(1)),
	})
	if err != nil {
		return "", fmt.Errorf("enrich: generate image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("enrich: empty image response")
	}
	return resp.Data[0].URL, nil
}

// Embed implements [Embedder].
func (c *AIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: c.embeddingModel,
		Input: oai.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("enrich: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("enrich: empty embedding response")
	}
	out := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		out[i] = float32(v)
	}
	return out, nil
}
