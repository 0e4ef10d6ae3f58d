package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/systmms/keyrotate/pkg/rotation"
)

// namedSink is implemented by sinks that can describe themselves in errors.
type namedSink interface {
	Name() string
}

// MultiAlertSink publishes every alert to all of its sinks. One failing sink
// does not stop the others.
type MultiAlertSink []rotation.AlertSink

// Publish sends message to each sink and joins the failures.
func (m MultiAlertSink) Publish(ctx context.Context, message string) error {
	var errs []error
	for i, sink := range m {
		if err := sink.Publish(ctx, message); err != nil {
			name := fmt.Sprintf("sink %d", i)
			if n, ok := sink.(namedSink); ok {
				name = n.Name()
			}
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
