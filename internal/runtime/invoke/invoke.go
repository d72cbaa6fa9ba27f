// Package invoke implements the next-function invoker: short ARN
// expansion and synchronous-fire Lambda invocation, built on AWS SDK v2
// config loading with an optional endpoint override.
package invoke

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

const localstackAccountID = "000000000000"

// DefaultConfigLoader allows overriding the AWS config loader in tests.
var DefaultConfigLoader = awsconfig.LoadDefaultConfig

// InvokerFactory allows overriding the lambda client construction in
// tests.
var InvokerFactory = func(cfg aws.Config, optFns ...func(*lambda.Options)) LambdaAPI {
	return lambda.NewFromConfig(cfg, optFns...)
}

// LambdaAPI is the subset of the generated Lambda client this package
// calls, narrowed for fakeability in tests.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Identity carries the environment-derived pieces needed for short-ARN
// expansion.
type Identity struct {
	Region    string
	AccountID string
	Stage     string
	Endpoint  string // non-empty selects a LocalStack-style override
}

// ExpandARN turns a bare function name into a full ARN using the
// convention `arn:aws:lambda:<region>:<account>:function:<name>-<stage>`.
// A name already containing ":" is assumed to be a full ARN and passed
// through unchanged.
func ExpandARN(name string, identity Identity) (string, error) {
	if strings.Contains(name, ":") {
		return name, nil
	}
	if identity.Region == "" || identity.AccountID == "" || identity.Stage == "" {
		return "", fmt.Errorf("invoke: cannot expand short name %q: AWS_REGION, AWS_ACCOUNT_ID and AWS_STAGE are all required", name)
	}
	return fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s-%s", identity.Region, identity.AccountID, name, identity.Stage), nil
}

// Invoker fires a synchronous (RequestResponse) Lambda invocation and
// returns the raw payload. Nothing awaits the downstream function's own
// continuation beyond the platform's own invoke semantics.
type Invoker struct {
	client   LambdaAPI
	identity Identity
}

// NewInvoker loads AWS config (honoring a custom endpoint for local
// development against LocalStack) and builds the underlying Lambda
// client.
func NewInvoker(ctx context.Context, identity Identity, accessKeyID, secretAccessKey string) (*Invoker, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if identity.Region != "" {
		opts = append(opts, awsconfig.WithRegion(identity.Region))
	}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := DefaultConfigLoader(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("invoke: load AWS config: %w", err)
	}
	if identity.Region != "" {
		cfg.Region = identity.Region
	}

	identity = resolveLocalstackAccount(identity)

	var clientOpts []func(*lambda.Options)
	if identity.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *lambda.Options) {
			o.BaseEndpoint = aws.String(identity.Endpoint)
		})
	}

	return &Invoker{client: InvokerFactory(cfg, clientOpts...), identity: identity}, nil
}

// resolveLocalstackAccount defaults AccountID to LocalStack's fixed test
// account when an endpoint override is configured and no account was
// supplied explicitly.
func resolveLocalstackAccount(identity Identity) Identity {
	if identity.AccountID == "" && identity.Endpoint != "" {
		identity.AccountID = localstackAccountID
	}
	return identity
}

// Invoke expands name to a full ARN and fires a synchronous invocation
// with payload as the event body, returning the raw response payload.
func (inv *Invoker) Invoke(ctx context.Context, name string, payload []byte) ([]byte, error) {
	arn, err := ExpandARN(name, inv.identity)
	if err != nil {
		return nil, err
	}

	out, err := inv.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(arn),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke: invoke %q: %w", arn, err)
	}
	if out.FunctionError != nil {
		return nil, fmt.Errorf("invoke: %q returned a function error: %s", arn, *out.FunctionError)
	}
	return out.Payload, nil
}

// InvokeAsync fires a fire-and-forget (Event) invocation, used for
// tracker notifications and error-forwarding dispositions, whose
// failures are logged and swallowed by the caller rather than failing the
// primary handler.
func (inv *Invoker) InvokeAsync(ctx context.Context, name string, payload []byte) error {
	arn, err := ExpandARN(name, inv.identity)
	if err != nil {
		return err
	}

	_, err = inv.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(arn),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("invoke: async invoke %q: %w", arn, err)
	}
	return nil
}
