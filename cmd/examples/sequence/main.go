package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	orchestrate "github.com/robinsondotnet/aws-orchestrate"
)

// Sequence example: the first invocation (a bare order-submitted event)
// builds a two-step plan and registers it on the HandlerContext; the
// wrapper drives "charge-payment" and then "ship-order" in turn,
// resolving ship-order's "orderId" lookup against charge-payment's
// response.
func main() {
	ctx := context.Background()
	logger := orchestrate.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := orchestrate.Config{
		AWSRegion:          envOr("AWS_REGION", "us-east-1"),
		AWSStage:           envOr("STAGE", "dev"),
		SequenceTrackerARN: os.Getenv("SEQUENCE_TRACKER_ARN"),
	}

	rt, err := orchestrate.Bootstrap(ctx, cfg, "submit-order", logger, handle)
	if err != nil {
		logger.Error("bootstrap failed", err, nil)
		os.Exit(1)
	}
	defer rt.Close()

	lambda.Start(rt.Wrapper.Handle)
}

type orderRequest struct {
	OrderID string  `json:"orderId"`
	Amount  float64 `json:"amount"`
}

func handle(ctx context.Context, req json.RawMessage, hctx *orchestrate.HandlerContext) (any, error) {
	// Continuation call: the active sequence step already ran, nothing
	// left to plan here.
	if hctx.Sequence != nil && hctx.Sequence.IsSequence() {
		return map[string]any{"continued": true}, nil
	}

	var in orderRequest
	if err := json.Unmarshal(req, &in); err != nil {
		return nil, err
	}

	seq := orchestrate.NewSequence()
	seq.Add("charge-payment", map[string]any{
		"orderId": in.OrderID,
		"amount":  in.Amount,
	})
	seq.Add("ship-order", map[string]any{
		"orderId": map[string]any{"lookup": "charge-payment.orderId"},
	})
	hctx.RegisterSequence(seq)

	return map[string]any{"accepted": true, "orderId": in.OrderID}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
