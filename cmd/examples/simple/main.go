package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	orchestrate "github.com/robinsondotnet/aws-orchestrate"
)

// Simple example showing how to wrap a plain function with Bootstrap,
// no sequence or tracker involved.
func main() {
	ctx := context.Background()
	logger := orchestrate.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := orchestrate.Config{
		AWSRegion: envOr("AWS_REGION", "us-east-1"),
		AWSStage:  envOr("STAGE", "dev"),
	}

	rt, err := orchestrate.Bootstrap(ctx, cfg, "greet", logger, handle)
	if err != nil {
		logger.Error("bootstrap failed", err, nil)
		os.Exit(1)
	}
	defer rt.Close()

	lambda.Start(rt.Wrapper.Handle)
}

type greetRequest struct {
	Name string `json:"name"`
}

func handle(ctx context.Context, req json.RawMessage, hctx *orchestrate.HandlerContext) (any, error) {
	var in greetRequest
	if err := json.Unmarshal(req, &in); err != nil {
		return nil, err
	}
	if in.Name == "" {
		in.Name = "world"
	}
	hctx.Logger.Info("greeting", orchestrate.LogFields{"name": in.Name})
	return map[string]string{"message": "hello, " + in.Name}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
