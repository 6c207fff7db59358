package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/canvass/internal/queue"
)

// NewQueueHandler adapts the service to the worker. Skipped jobs are acked.
func NewQueueHandler(service *Service) queue.Handler {
	return queue.HandlerFunc(func(ctx context.Context, d queue.Delivery) error {
		payload, err := DecodePayload(d.Payload)
		if err != nil {
			return err
		}
		if payload.TenantID != d.TenantID {
			return fmt.Errorf("import payload tenant %s does not match message tenant %s", payload.TenantID, d.TenantID)
		}
		err = service.Run(ctx, payload)
		if errors.Is(err, ErrJobNotRunnable) {
			return nil
		}
		return err
	})
}
