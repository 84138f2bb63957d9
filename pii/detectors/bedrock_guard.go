package pii

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const (
	defaultGuardrailVersion = "DRAFT"
	defaultAWSRegion        = "us-east-1"
)

// guardrailAPI is the subset of the bedrockruntime client used by BedrockGuard.
type guardrailAPI interface {
	ApplyGuardrail(ctx context.Context, params *bedrockruntime.ApplyGuardrailInput,
		optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ApplyGuardrailOutput, error)
}

// BedrockGuard applies a managed Bedrock guardrail to the input text.
type BedrockGuard struct {
	client           guardrailAPI
	guardrailID      string
	guardrailVersion string
}

// NewBedrockGuard requires guardrail_id. guardrail_version, region, profile and endpoint_url
// configure the AWS client; credentials come from the default AWS chain.
func NewBedrockGuard(ctx context.Context, opts Options) (*BedrockGuard, error) {
	guardrailID := opts.String("guardrail_id", "")
	if guardrailID == "" {
		return nil, fmt.Errorf("%w: guardrail_id", ErrMissingOption)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.String("region", defaultAWSRegion)),
	}
	if profile := opts.String("profile", ""); profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := opts.String("endpoint_url", "")
	client := bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	for key := range opts.extras("guardrail_id", "guardrail_version", "region", "profile", "endpoint_url") {
		slog.Warn("bedrock guard: ignoring unsupported option", "option", key)
	}

	return newBedrockGuardWithClient(client, guardrailID, opts.String("guardrail_version", defaultGuardrailVersion)), nil
}

func newBedrockGuardWithClient(client guardrailAPI, guardrailID, version string) *BedrockGuard {
	return &BedrockGuard{
		client:           client,
		guardrailID:      guardrailID,
		guardrailVersion: version,
	}
}

func (b *BedrockGuard) Detect(ctx context.Context, text string) (GuardResult, error) {
	out, err := b.client.ApplyGuardrail(ctx, &bedrockruntime.ApplyGuardrailInput{
		GuardrailIdentifier: aws.String(b.guardrailID),
		GuardrailVersion:    aws.String(b.guardrailVersion),
		Source:              types.GuardrailContentSourceInput,
		Content: []types.GuardrailContentBlock{
			&types.GuardrailContentBlockMemberText{
				Value: types.GuardrailTextBlock{Text: aws.String(text)},
			},
		},
	})
	if err != nil {
		return GuardResult{}, fmt.Errorf("bedrock apply guardrail: %w", err)
	}

	payload := guardrailPayloadFromOutput(out)
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = nil
	}
	return parseGuardrailPayload(text, payload, raw), nil
}

// guardrailPayloadFromOutput copies the SDK response into the parser's record types.
func guardrailPayloadFromOutput(out *bedrockruntime.ApplyGuardrailOutput) guardrailPayload {
	var payload guardrailPayload
	if out == nil {
		return payload
	}
	payload.Action = string(out.Action)
	for _, o := range out.Outputs {
		payload.Outputs = append(payload.Outputs, guardrailOutput{Text: o.Text})
	}
	for _, a := range out.Assessments {
		var assessment guardrailAssessment
		if a.SensitiveInformationPolicy != nil {
			info := &guardrailSensitiveInfo{}
			for _, e := range a.SensitiveInformationPolicy.PiiEntities {
				entityType := string(e.Type)
				info.PiiEntities = append(info.PiiEntities, guardrailEntity{
					Type:  &entityType,
					Match: e.Match,
				})
			}
			assessment.SensitiveInformationPolicy = info
		}
		payload.Assessments = append(payload.Assessments, assessment)
	}
	return payload
}
