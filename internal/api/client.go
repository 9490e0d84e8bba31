// Package api provides the Anthropic API client used for LLM-assisted note classification.
package api

import (
	"context"
	"errors"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

// DefaultModel is used when no model is configured. Classification
// prompts are short, so the smallest model is enough.
const DefaultModel = anthropic.ModelClaude3_5HaikuLatest

// ErrNoAPIKey is returned when neither the config nor ANTHROPIC_API_KEY
// supplies a key and Bedrock is not in use.
var ErrNoAPIKey = errors.New("ANTHROPIC_API_KEY is not set")

// Client is an Anthropic client bound to one model.
type Client struct {
	inner   anthropic.Client
	model   anthropic.Model
	bedrock bool
}

// ClientConfig selects the model and how to authenticate.
type ClientConfig struct {
	// Model defaults to DefaultModel.
	Model anthropic.Model
	// APIKey falls back to ANTHROPIC_API_KEY.
	APIKey string
	// UseAWSBedrock authenticates through the AWS credential chain instead.
	UseAWSBedrock bool
	AWSRegion     string
	AWSProfile    string
}

// NewClient creates a client. It does not contact the API.
func NewClient(cfg ClientConfig) (*Client, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		if key == "" {
			return nil, ErrNoAPIKey
		}
		opts = append(opts, option.WithAPIKey(key))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	if cfg.UseAWSBedrock {
		model = bedrockModel(model)
	}

	return &Client{
		inner:   anthropic.NewClient(opts...),
		model:   model,
		bedrock: cfg.UseAWSBedrock,
	}, nil
}

// bedrockModels maps API model names to Bedrock cross-region inference
// profiles.
var bedrockModels = map[anthropic.Model]anthropic.Model{
	anthropic.ModelClaude3_5HaikuLatest:     "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
	anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
	anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
}

// bedrockModel returns the Bedrock name of model; unknown names pass
// through so a profile id can be configured directly.
func bedrockModel(model anthropic.Model) anthropic.Model {
	if m, ok := bedrockModels[model]; ok {
		return m
	}
	return model
}

// Model returns the model requests are sent to.
func (c *Client) Model() anthropic.Model { return c.model }

// Bedrock reports whether requests go through AWS Bedrock.
func (c *Client) Bedrock() bool { return c.bedrock }
