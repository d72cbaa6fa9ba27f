package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	orchestrate "github.com/robinsondotnet/aws-orchestrate"
)

// Tracker example: this function is the distinguished target named by
// other handlers' SequenceTrackerARN. It has no business logic of its
// own: every invocation is a tracker.Request recording one sequence
// step's progress, persisted to whichever store BootstrapTrackerStore
// selected.
func main() {
	ctx := context.Background()
	logger := orchestrate.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := orchestrate.Config{
		AWSRegion:       envOr("AWS_REGION", "us-east-1"),
		AWSStage:        envOr("STAGE", "dev"),
		TrackerStore:    envOr("TRACKER_STORE", "bbolt"),
		TrackerS3Bucket: os.Getenv("TRACKER_S3_BUCKET"),
		TrackerBoltPath: envOr("TRACKER_BOLT_PATH", "/tmp/tracker.db"),
	}

	store, rt, err := orchestrate.BootstrapTrackerStore(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap tracker store failed", err, nil)
		os.Exit(1)
	}
	defer rt.Close()

	handler, err := orchestrate.NewTrackerHandler(cfg.AWSStage, store, nil)
	if err != nil {
		logger.Error("build tracker handler failed", err, nil)
		os.Exit(1)
	}

	lambda.Start(func(ctx context.Context, req orchestrate.TrackerRequest) (orchestrate.TrackerStatus, error) {
		return handler.Handle(ctx, req)
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
