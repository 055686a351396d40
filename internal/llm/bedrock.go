package llm

import (
	"context"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/pandora-run/pandora/internal/backoff"
)

// BedrockProvider implements Provider against AWS Bedrock's Converse API,
// giving the fallback chain access to foundation models hosted in an AWS
// account (Anthropic, Titan, Llama, Mistral) behind one entry. Credentials
// come from the default AWS chain unless set explicitly.
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
	maxRetries   int
	retryPolicy  backoff.BackoffPolicy
}

// BedrockConfig configures a BedrockProvider.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	MaxRetries      int
}

// NewBedrockProvider constructs a provider bound to the given AWS account.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
		maxRetries:   maxRetries,
		retryPolicy:  backoff.DefaultPolicy(),
	}, nil
}

func (p *BedrockProvider) Name() string { return "bedrock" }

// Models lists the models Pandora's phases are expected to run against;
// actual availability depends on the AWS account's model access.
func (p *BedrockProvider) Models() []Model {
	return []Model{
		{ID: "anthropic.claude-3-opus-20240229-v1:0", Name: "Claude 3 Opus (Bedrock)", ContextSize: 200000},
		{ID: "anthropic.claude-3-sonnet-20240229-v1:0", Name: "Claude 3 Sonnet (Bedrock)", ContextSize: 200000},
		{ID: "anthropic.claude-3-haiku-20240307-v1:0", Name: "Claude 3 Haiku (Bedrock)", ContextSize: 200000},
		{ID: "meta.llama3-70b-instruct-v1:0", Name: "Llama 3 70B (Bedrock)", ContextSize: 8192},
		{ID: "mistral.mixtral-8x7b-instruct-v0:1", Name: "Mixtral 8x7B (Bedrock)", ContextSize: 32768},
	}
}

func (p *BedrockProvider) model(req *CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *BedrockProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	chunks := make(chan *CompletionChunk)

	go func() {
		defer close(chunks)

		messages := make([]brtypes.Message, 0, len(req.Messages))
		for _, m := range req.Messages {
			role := brtypes.ConversationRoleUser
			if m.Role == "assistant" {
				role = brtypes.ConversationRoleAssistant
			}
			messages = append(messages, brtypes.Message{
				Role:    role,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		}

		input := &bedrockruntime.ConverseInput{
			ModelId:  aws.String(p.model(req)),
			Messages: messages,
		}
		if req.System != "" {
			input.System = []brtypes.SystemContentBlock{
				&brtypes.SystemContentBlockMemberText{Value: req.System},
			}
		}
		inference := &brtypes.InferenceConfiguration{
			Temperature: aws.Float32(float32(req.Temperature)),
		}
		if req.MaxTokens > 0 && req.MaxTokens <= math.MaxInt32 {
			inference.MaxTokens = aws.Int32(int32(req.MaxTokens))
		}
		input.InferenceConfig = inference

		result, err := backoff.RetryWithBackoff(ctx, p.retryPolicy, p.maxRetries, func(int) (*bedrockruntime.ConverseOutput, error) {
			return p.client.Converse(ctx, input)
		})
		if err != nil {
			chunks <- &CompletionChunk{Error: fmt.Errorf("bedrock: %w", err)}
			return
		}
		out := result.Value

		var text string
		if msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
			for _, block := range msg.Value.Content {
				if t, ok := block.(*brtypes.ContentBlockMemberText); ok {
					text += t.Value
				}
			}
		}

		chunk := &CompletionChunk{Text: text, Done: true}
		if out.Usage != nil {
			if out.Usage.InputTokens != nil {
				chunk.InputTokens = int(*out.Usage.InputTokens)
			}
			if out.Usage.OutputTokens != nil {
				chunk.OutputTokens = int(*out.Usage.OutputTokens)
			}
		}
		chunks <- chunk
	}()

	return chunks, nil
}
