package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const reorderTracerName = "organizer/reorder"

// ReorderService is the only writer of order and container fields. A batch is
// applied as independent single-record writes; there is no transaction, so a
// failed batch may be partially applied. Nothing is broadcast for a failed
// batch and callers are expected to resynchronize from a full fetch.
type ReorderService struct {
	st  PlacementStore
	pub Publisher
	now func() time.Time
}

func NewReorderService(st PlacementStore, pub Publisher) ReorderService {
	return ReorderService{st: st, pub: pub, now: time.Now}
}

// Apply writes every placement in b and, once all writes have finished
// successfully, publishes exactly one reorder event carrying b unchanged.
// Placements naming records that no longer exist are skipped.
func (s ReorderService) Apply(ctx context.Context, b ReorderBatch) (err error) {
	ctx, span := otel.Tracer(reorderTracerName).Start(ctx, "reorder.apply")
	span.SetAttributes(
		attribute.Int("organizer.reorder.items", len(b.Items)),
		attribute.Int("organizer.reorder.folders", len(b.Folders)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err = b.Validate(); err != nil {
		return err
	}

	at := s.now().UTC()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errs    []error
		skipped int
	)
	record := func(id string, werr error) {
		if werr == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if errors.Is(werr, ErrNotFound) {
			skipped++
			return
		}
		errs = append(errs, fmt.Errorf("place %s: %w", id, werr))
	}

	for _, p := range b.Items {
		wg.Add(1)
		go func(p ItemPlacement) {
			defer wg.Done()
			record(p.ID, s.st.PlaceItem(ctx, p, at))
		}(p)
	}
	for _, p := range b.Folders {
		wg.Add(1)
		go func(p FolderPlacement) {
			defer wg.Done()
			record(p.ID, s.st.PlaceFolder(ctx, p, at))
		}(p)
	}
	wg.Wait()

	span.SetAttributes(attribute.Int("organizer.reorder.skipped", skipped))
	if skipped > 0 {
		log.WithField("skipped", skipped).Debug("reorder batch referenced missing records")
	}
	if len(errs) > 0 {
		log.WithFields(log.Fields{"failed": len(errs), "writes": len(b.Items) + len(b.Folders)}).Error("reorder batch failed")
		return errors.Join(errs...)
	}

	ev, err := NewEvent(Reordered, b)
	if err != nil {
		return err
	}
	s.pub.Publish(ctx, ev)
	return nil
}
