package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	configpkg "github.com/robinsondotnet/aws-orchestrate/internal/runtime/config"
	dbfactorypkg "github.com/robinsondotnet/aws-orchestrate/internal/runtime/dbfactory"
	errorsxpkg "github.com/robinsondotnet/aws-orchestrate/internal/runtime/errorsx"
	handlercontextpkg "github.com/robinsondotnet/aws-orchestrate/internal/runtime/handlercontext"
	idspkg "github.com/robinsondotnet/aws-orchestrate/internal/runtime/ids"
	invokepkg "github.com/robinsondotnet/aws-orchestrate/internal/runtime/invoke"
	jsoncodecpkg "github.com/robinsondotnet/aws-orchestrate/internal/runtime/jsoncodec"
	loggingpkg "github.com/robinsondotnet/aws-orchestrate/internal/runtime/logging"
	matcherpkg "github.com/robinsondotnet/aws-orchestrate/internal/runtime/matcher"
	metricspkg "github.com/robinsondotnet/aws-orchestrate/internal/runtime/metrics"
	predicatepkg "github.com/robinsondotnet/aws-orchestrate/internal/runtime/predicate"
	secretspkg "github.com/robinsondotnet/aws-orchestrate/internal/runtime/secrets"
	sequencepkg "github.com/robinsondotnet/aws-orchestrate/internal/runtime/sequence"
	trackerpkg "github.com/robinsondotnet/aws-orchestrate/internal/runtime/tracker"
	tracingpkg "github.com/robinsondotnet/aws-orchestrate/internal/runtime/tracing"
	wrapperpkg "github.com/robinsondotnet/aws-orchestrate/internal/runtime/wrapper"
)

type (
	Config = configpkg.Config

	HandlerFunc    = wrapperpkg.HandlerFunc
	HandlerContext = handlercontextpkg.Context
	Wrapper        = wrapperpkg.Wrapper
	WrapperOptions = wrapperpkg.Options
	Invoker        = wrapperpkg.Invoker

	Sequence     = sequencepkg.Sequence
	SequenceStep = sequencepkg.SequenceStep
	ErrorHandler = sequencepkg.ErrorHandler
	Predicate    = predicatepkg.Expr

	Matcher        = matcherpkg.Matcher
	Disposition    = matcherpkg.Disposition
	DefaultPolicy  = matcherpkg.DefaultPolicy
	MatcherOutcome = matcherpkg.Outcome

	Typed             = errorsxpkg.Typed
	ServerlessError   = errorsxpkg.ServerlessError
	HandledError      = errorsxpkg.HandledError
	UnhandledError    = errorsxpkg.UnhandledError
	RethrowError      = errorsxpkg.RethrowError
	ErrorWithinError  = errorsxpkg.ErrorWithinError
	CallDepthExceeded = errorsxpkg.CallDepthExceeded

	SecretFetcher = secretspkg.Fetcher
	SecretStore   = secretspkg.Store

	DBFactory = dbfactorypkg.Factory
	DBPool    = dbfactorypkg.Pool

	AWSIdentity   = invokepkg.Identity
	LambdaInvoker = invokepkg.Invoker

	TrackerStatus    = trackerpkg.Status
	TrackerRequest   = trackerpkg.Request
	TrackerStore     = trackerpkg.Store
	TrackerHandler   = trackerpkg.Handler
	S3TrackerStore   = trackerpkg.S3Store
	BoltTrackerStore = trackerpkg.BoltStore

	MetricsRecorder = metricspkg.Recorder
	Tracer          = tracingpkg.Tracer

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger
)

var (
	NewWrapper          = wrapperpkg.New
	NewSequence         = sequencepkg.New
	DeserializeSequence = sequencepkg.Deserialize

	NewMatcher = matcherpkg.New

	AsTypedError       = errorsxpkg.AsTyped
	NewServerlessError = errorsxpkg.NewServerlessError

	NewSecretStore   = secretspkg.NewStore
	NewDBPool        = dbfactorypkg.NewPool
	NewLambdaInvoker = invokepkg.NewInvoker
	ExpandARN        = invokepkg.ExpandARN

	NewTrackerHandler   = trackerpkg.NewHandler
	NewS3TrackerStore   = trackerpkg.NewS3Store
	NewBoltTrackerStore = trackerpkg.NewBoltStore

	NewMetricsRecorder = metricspkg.New
	NewTracer          = tracingpkg.New

	NewSlogLogger    = loggingpkg.NewSlogServiceLogger
	CompilePredicate = predicatepkg.Compile

	CreateULID = idspkg.CreateULID

	ValidateConfig = configpkg.ValidateConfig
)

// Runtime bundles a configured Wrapper with the resources Bootstrap opened
// for it, so a process can release them on shutdown.
type Runtime struct {
	Wrapper *Wrapper

	dbPool    *DBPool
	boltStore *BoltTrackerStore
}

// Close releases every resource Bootstrap opened: the database connection
// pool and, if selected, the bbolt tracker store's file handle.
func (r *Runtime) Close() error {
	var errs []error
	if r.dbPool != nil {
		if err := r.dbPool.CloseAll(); err != nil {
			errs = append(errs, fmt.Errorf("orchestrate: close database pool: %w", err))
		}
	}
	if r.boltStore != nil {
		if err := r.boltStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("orchestrate: close bbolt tracker store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Bootstrap validates cfg and wires every backend it selects into a ready
// Wrapper around fn: the next-function invoker, the Vault-backed secret
// fetcher (if SecretStoreAddress is set), the database connection factory
// (if DatabaseURL is set), Prometheus metrics, OpenTelemetry tracing (if
// enabled), and an Error Matcher with the default "unhandled" policy.
//
// Handlers that are themselves the distinguished tracker target should use
// NewTrackerHandler directly with BootstrapTrackerStore instead of calling
// Bootstrap.
func Bootstrap(ctx context.Context, cfg Config, functionName string, logger ServiceLogger, fn HandlerFunc) (*Runtime, error) {
	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("orchestrate: invalid config: %w", err)
	}

	identity := AWSIdentity{
		Region:    cfg.AWSRegion,
		AccountID: cfg.AWSAccountID,
		Stage:     cfg.AWSStage,
		Endpoint:  cfg.AWSEndpoint,
	}
	invoker, err := NewLambdaInvoker(ctx, identity, "", "")
	if err != nil {
		return nil, fmt.Errorf("orchestrate: build lambda invoker: %w", err)
	}

	var fetchSecret SecretFetcher
	if cfg.SecretStoreAddress != "" {
		store, err := NewSecretStore(cfg.SecretStoreAddress, cfg.SecretStoreToken, cfg.SecretStoreMount)
		if err != nil {
			return nil, fmt.Errorf("orchestrate: build secret store: %w", err)
		}
		fetchSecret = store.Fetcher()
	}

	rt := &Runtime{}
	if cfg.DatabaseURL != "" {
		rt.dbPool = NewDBPool()
	}

	rec := NewMetricsRecorder()
	var tracer *Tracer
	if cfg.TracingEnabled {
		tracer = NewTracer()
	}

	rt.Wrapper = NewWrapper(WrapperOptions{
		FunctionName:           functionName,
		Logger:                 logger,
		Matcher:                NewMatcher("unhandled", forwardingInvoker(invoker)),
		Invoker:                invoker,
		SequenceTrackerARN:     cfg.SequenceTrackerARN,
		FetchSecret:            fetchSecret,
		DBPool:                 rt.dbPool,
		DatabaseURL:            cfg.DatabaseURL,
		CompressionMinBytes:    cfg.CompressionMinBytes,
		Metrics:                rec,
		Tracer:                 tracer,
		IncludeStackInResponse: false,
	}, fn)

	return rt, nil
}

// forwardingInvoker adapts a LambdaInvoker into the matcher.Forwarder shape
// used by forwardTo dispositions and the error-forwarding default policy.
func forwardingInvoker(invoker *LambdaInvoker) matcherpkg.Forwarder {
	return func(ctx context.Context, arn string, payload any) error {
		encoded, err := jsoncodecpkg.Marshal(payload)
		if err != nil {
			return fmt.Errorf("orchestrate: marshal forwarded error payload: %w", err)
		}
		return invoker.InvokeAsync(ctx, arn, encoded)
	}
}

// BootstrapTrackerStore builds the Store backing a distinguished tracker
// function from cfg: an S3-backed store (the production default) or a
// bbolt-backed store for local/offline deployment, per TrackerStore. The
// returned Runtime's Close releases the bbolt file handle if one was
// opened; an S3-backed store needs no explicit cleanup.
func BootstrapTrackerStore(ctx context.Context, cfg Config) (TrackerStore, *Runtime, error) {
	switch strings.ToLower(cfg.TrackerStore) {
	case "bbolt":
		store, err := NewBoltTrackerStore(cfg.TrackerBoltPath)
		if err != nil {
			return nil, nil, fmt.Errorf("orchestrate: open bbolt tracker store: %w", err)
		}
		return store, &Runtime{boltStore: store}, nil
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, nil, fmt.Errorf("orchestrate: load AWS config: %w", err)
		}
		var clientOpts []func(*s3.Options)
		if cfg.AWSEndpoint != "" {
			clientOpts = append(clientOpts, func(o *s3.Options) {
				o.BaseEndpoint = aws.String(cfg.AWSEndpoint)
				o.UsePathStyle = true
			})
		}
		client := s3.NewFromConfig(awsCfg, clientOpts...)
		store, err := NewS3TrackerStore(client, cfg.TrackerS3Bucket)
		if err != nil {
			return nil, nil, fmt.Errorf("orchestrate: build s3 tracker store: %w", err)
		}
		return store, &Runtime{}, nil
	default:
		return nil, nil, fmt.Errorf("orchestrate: unknown tracker store %q", cfg.TrackerStore)
	}
}
