// Package delivery transfers encoded provisioning batches to the downstream
// inbox under a timestamped name.
package delivery

import (
	"context"
	"fmt"
	"time"

	"simrelease/pkg/platform/sentinel"
)

// ErrDelivery is returned when the remote inbox cannot be reached or the
// transfer fails. It wraps sentinel.ErrUnavailable.
var ErrDelivery = fmt.Errorf("batch delivery: %w", sentinel.ErrUnavailable)

func deliveryError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDelivery, op, err)
}

// Channel delivers one encoded batch and returns the name it was stored under.
// Implementations release their remote session on every return path.
type Channel interface {
	Deliver(ctx context.Context, payload []byte) (string, error)
}

const timestampLayout = "02012006_150405"

// Namer builds delivered filenames: auc<identity><DDMMYYYY_HHMMSS>.<ext>.
// Two batches named within the same second under one identity collide.
type Namer struct {
	Identity  string
	Extension string
	Now       func() time.Time
}

// Name returns the filename for a batch delivered now.
func (n Namer) Name() string {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	return Filename(n.Identity, n.Extension, now())
}

// Filename formats a delivered filename for identity at t.
func Filename(identity, extension string, t time.Time) string {
	if extension == "" {
		extension = "SPML"
	}
	return "auc" + identity + t.Format(timestampLayout) + "." + extension
}
