// Package auc builds authentication-center provisioning batches from registry
// key material and hands them to a delivery channel.
package auc

import (
	"context"
	"fmt"

	"simrelease/internal/registry"
)

// Entry is one subscriber in a provisioning batch.
type Entry struct {
	Serial             string
	Identifier         string
	Key                string
	AlgorithmID        int
	AccessSubscription int
	KeyBucket          string
}

// Batch is an ordered set of provisioning entries.
type Batch struct {
	Entries []Entry
}

// Empty reports whether the batch carries no provisioning entries. An empty
// batch is "nothing to provision", not a failure.
func (b *Batch) Empty() bool {
	return b == nil || len(b.Entries) == 0
}

// Builder maps provisioning records to batch entries.
type Builder struct {
	designatedClass int
}

// NewBuilder returns a Builder. Media of designatedClass use algorithm 1 with
// access subscription 2; every other class uses algorithm 0 with 1.
func NewBuilder(designatedClass int) *Builder {
	return &Builder{designatedClass: designatedClass}
}

// Build looks up key material for each serial through sess. Serials with no
// material are skipped.
func (b *Builder) Build(ctx context.Context, sess registry.Session, serials []string) (*Batch, error) {
	batch := &Batch{}
	for _, serial := range serials {
		recs, err := sess.FindProvisioning(ctx, serial)
		if err != nil {
			return nil, fmt.Errorf("load key material for %s: %w", serial, err)
		}
		for _, rec := range recs {
			batch.Entries = append(batch.Entries, b.entry(serial, rec))
		}
	}
	return batch, nil
}

func (b *Builder) entry(serial string, rec registry.AucProvisioning) Entry {
	algo, acsub := 0, 1
	if rec.MediumClass == b.designatedClass {
		algo, acsub = 1, 2
	}
	return Entry{
		Serial:             serial,
		Identifier:         rec.PortNumber,
		Key:                rec.Key,
		AlgorithmID:        algo,
		AccessSubscription: acsub,
		KeyBucket:          KeyBucket(rec.KeyTableID),
	}
}

// KeyBucket derives the key-derivation bucket: "1" followed by the last two
// characters of the key table identifier (all of it when shorter).
func KeyBucket(keyTableID string) string {
	r := []rune(keyTableID)
	if len(r) > 2 {
		r = r[len(r)-2:]
	}
	return "1" + string(r)
}
