package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"organizer/domain"
)

// Transport is the request/response channel to the API.
type Transport interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
	CreateItem(ctx context.Context, in domain.NewItem) (domain.Item, error)
	CreateFolder(ctx context.Context, in domain.NewFolder) (domain.Folder, error)
	UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) (domain.Item, error)
	UpdateFolder(ctx context.Context, id string, patch domain.FolderPatch) (domain.Folder, error)
	DeleteItem(ctx context.Context, id string) error
	DeleteFolder(ctx context.Context, id string) error
	Reorder(ctx context.Context, b domain.ReorderBatch) error
}

// Subscriber delivers broadcasts in order for as long as the connection lives.
type Subscriber interface {
	Subscribe(ctx context.Context, ready func() error, fn func(domain.Event)) error
}

// Options configures an Engine. All fields are optional.
type Options struct {
	// OnError receives every failed request before the engine resyncs.
	OnError func(error)
	// OnChange runs after every change to the working copy.
	OnChange func()
	// RetryMin and RetryMax bound the reconnect backoff of Run.
	RetryMin time.Duration
	RetryMax time.Duration
}

const (
	defaultRetryMin = time.Second
	defaultRetryMax = 5 * time.Second
	tempIDPrefix    = "local-"
)

// Engine owns a client's working copy. User actions are applied to it
// immediately and then sent to the server; broadcasts, including the echo of
// this client's own requests, are merged as they arrive. Any failed request
// discards the working copy and refetches it.
type Engine struct {
	api  Transport
	opts Options

	mu    sync.Mutex
	state *State
	// pending holds, per in-flight load, the broadcasts received since that
	// load started.
	pending map[int][]domain.Event
	loadGen int
	applied int
	newID   func() string
}

func NewEngine(api Transport, opts Options) *Engine {
	if opts.RetryMin <= 0 {
		opts.RetryMin = defaultRetryMin
	}
	if opts.RetryMax < opts.RetryMin {
		opts.RetryMax = max(defaultRetryMax, opts.RetryMin)
	}
	return &Engine{
		api:   api,
		opts:  opts,
		state:   NewState(domain.Snapshot{}),
		pending: make(map[int][]domain.Event),
		newID: func() string { return tempIDPrefix + uuid.NewString() },
	}
}

// Snapshot returns a copy of the working copy.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Snapshot()
}

func (e *Engine) RootItems() []domain.Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.RootItems()
}

func (e *Engine) FolderItems(folderID string) []domain.Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.FolderItems(folderID)
}

func (e *Engine) Folders() []domain.Folder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Folders()
}

// Load replaces the working copy with the authoritative snapshot. Broadcasts
// that arrive while the fetch is in flight are replayed on top of it. A load
// that completes after a newer one has already landed is discarded.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	e.loadGen++
	gen := e.loadGen
	e.pending[gen] = nil
	e.mu.Unlock()

	snap, err := e.api.Snapshot(ctx)

	e.mu.Lock()
	buffered := e.pending[gen]
	delete(e.pending, gen)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("load snapshot: %w", err)
	}
	if gen < e.applied {
		e.mu.Unlock()
		return nil
	}
	st := NewState(snap)
	for _, ev := range buffered {
		if err := st.Apply(ev); err != nil {
			log.WithError(err).WithField("kind", ev.Kind).Warn("dropping undecodable broadcast")
		}
	}
	e.state = st
	e.applied = gen
	e.mu.Unlock()
	e.changed()
	return nil
}

// Apply merges one broadcast into the working copy.
func (e *Engine) Apply(ev domain.Event) {
	e.mu.Lock()
	for gen, buf := range e.pending {
		e.pending[gen] = append(buf, ev)
	}
	err := e.state.Apply(ev)
	e.mu.Unlock()
	if err != nil {
		log.WithError(err).WithField("kind", ev.Kind).Warn("dropping undecodable broadcast")
		return
	}
	log.WithField("kind", ev.Kind).Debug("broadcast applied")
	e.changed()
}

// Run keeps the working copy live: it subscribes to broadcasts, loads the
// snapshot once the subscription is open, and reconnects with backoff when the
// stream drops. It returns when ctx is cancelled.
func (e *Engine) Run(ctx context.Context, sub Subscriber) error {
	backoff := e.opts.RetryMin
	for {
		connected := false
		err := sub.Subscribe(ctx, func() error {
			connected = true
			if err := e.Load(ctx); err != nil {
				e.report(err)
				return err
			}
			return nil
		}, e.Apply)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = e.opts.RetryMin
		}
		log.WithError(err).WithField("retry_in", backoff).Warn("broadcast stream lost, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, e.opts.RetryMax)
	}
}

// CreateItem appends a placeholder to the target container and replaces it
// with the server record once the request completes.
func (e *Engine) CreateItem(ctx context.Context, in domain.NewItem) (domain.Item, error) {
	if err := in.Validate(); err != nil {
		return domain.Item{}, err
	}
	tempID := e.newID()
	e.mu.Lock()
	if !in.Container.IsRoot() {
		if _, ok := e.state.Folder(in.Container.FolderID()); !ok {
			e.mu.Unlock()
			return domain.Item{}, &domain.ValidationError{Field: "container", Reason: "references an unknown folder"}
		}
	}
	e.state.addItem(domain.Item{
		ID:        tempID,
		Title:     in.Title,
		Icon:      in.Icon,
		Container: in.Container,
		Order:     len(e.state.itemsIn(in.Container)),
	})
	e.mu.Unlock()
	e.changed()

	it, err := e.api.CreateItem(ctx, in)
	if err != nil {
		return domain.Item{}, e.failed(ctx, "create item", err)
	}
	e.mu.Lock()
	e.state.settleItem(tempID, it)
	e.mu.Unlock()
	e.changed()
	return it, nil
}

func (e *Engine) CreateFolder(ctx context.Context, in domain.NewFolder) (domain.Folder, error) {
	if err := in.Validate(); err != nil {
		return domain.Folder{}, err
	}
	tempID := e.newID()
	e.mu.Lock()
	e.state.addFolder(domain.Folder{
		ID:     tempID,
		Name:   in.Name,
		IsOpen: true,
		Order:  len(e.state.folders),
	})
	e.mu.Unlock()
	e.changed()

	f, err := e.api.CreateFolder(ctx, in)
	if err != nil {
		return domain.Folder{}, e.failed(ctx, "create folder", err)
	}
	e.mu.Lock()
	e.state.settleFolder(tempID, f)
	e.mu.Unlock()
	e.changed()
	return f, nil
}

// UpdateItem edits item fields. An item that no longer exists is a benign
// no-op.
func (e *Engine) UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	if it, ok := e.state.Item(id); ok {
		e.state.replaceItem(patch.Apply(it))
	}
	e.mu.Unlock()
	e.changed()

	if _, err := e.api.UpdateItem(ctx, id, patch); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.WithField("id", id).Debug("update of missing item ignored")
			return nil
		}
		return e.failed(ctx, "update item", err)
	}
	return nil
}

func (e *Engine) UpdateFolder(ctx context.Context, id string, patch domain.FolderPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	if f, ok := e.state.Folder(id); ok {
		e.state.replaceFolder(patch.Apply(f))
	}
	e.mu.Unlock()
	e.changed()

	if _, err := e.api.UpdateFolder(ctx, id, patch); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.WithField("id", id).Debug("update of missing folder ignored")
			return nil
		}
		return e.failed(ctx, "update folder", err)
	}
	return nil
}

// ToggleFolder flips a folder's open state.
func (e *Engine) ToggleFolder(ctx context.Context, id string) error {
	e.mu.Lock()
	f, ok := e.state.Folder(id)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("folder %s: %w", id, domain.ErrNotFound)
	}
	open := !f.IsOpen
	return e.UpdateFolder(ctx, id, domain.FolderPatch{IsOpen: &open})
}

func (e *Engine) DeleteItem(ctx context.Context, id string) error {
	e.mu.Lock()
	e.state.removeItem(id)
	e.mu.Unlock()
	e.changed()

	if err := e.api.DeleteItem(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return e.failed(ctx, "delete item", err)
	}
	return nil
}

// DeleteFolder removes the folder and its items.
func (e *Engine) DeleteFolder(ctx context.Context, id string) error {
	e.mu.Lock()
	e.state.removeFolder(id)
	e.mu.Unlock()
	e.changed()

	if err := e.api.DeleteFolder(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return e.failed(ctx, "delete folder", err)
	}
	return nil
}

// Drop translates a finished drag against the working copy, applies the
// resulting reassignment locally and sends it to the server. It reports
// whether a move was issued.
func (e *Engine) Drop(ctx context.Context, ev DragEnd) (bool, error) {
	e.mu.Lock()
	mv, ok := Translate(ev, e.state.items, e.state.folders)
	if !ok {
		e.mu.Unlock()
		return false, nil
	}
	batch := mv.Batch()
	e.state.applyBatch(batch)
	e.mu.Unlock()
	e.changed()

	if err := e.api.Reorder(ctx, batch); err != nil {
		return true, e.failed(ctx, "reorder", err)
	}
	return true, nil
}

// MoveItem moves an item to index of dst. It is the programmatic form of an
// item drag; index is clamped to the positions dst can take.
func (e *Engine) MoveItem(ctx context.Context, id string, dst domain.Container, index int) (bool, error) {
	e.mu.Lock()
	it, ok := e.state.Item(id)
	var from, last int
	if ok {
		from = indexByID(e.state.itemsIn(it.Container), id)
		last = len(e.state.itemsIn(dst))
		if dst == it.Container {
			last--
		}
	}
	e.mu.Unlock()
	if !ok {
		return false, nil
	}
	return e.Drop(ctx, DragEnd{
		Source:      Location{DroppableID: droppableFor(it.Container), Index: from},
		Destination: &Location{DroppableID: droppableFor(dst), Index: clamp(index, last)},
		DraggableID: id,
		Kind:        DragItem,
	})
}

// MoveFolder moves a folder to index of the folder list.
func (e *Engine) MoveFolder(ctx context.Context, id string, index int) (bool, error) {
	e.mu.Lock()
	folders := e.state.Folders()
	from := -1
	for i, f := range folders {
		if f.ID == id {
			from = i
		}
	}
	e.mu.Unlock()
	if from < 0 {
		return false, nil
	}
	return e.Drop(ctx, DragEnd{
		Source:      Location{DroppableID: FoldersDroppable, Index: from},
		Destination: &Location{DroppableID: FoldersDroppable, Index: clamp(index, len(folders)-1)},
		DraggableID: id,
		Kind:        DragFolder,
	})
}

func clamp(i, last int) int {
	return max(0, min(i, last))
}

// failed reports err and refetches the working copy. The optimistic change is
// not rolled back; the reload overwrites it.
func (e *Engine) failed(ctx context.Context, op string, err error) error {
	err = fmt.Errorf("%s: %w", op, err)
	log.WithError(err).Warn("request failed, resyncing")
	e.report(err)
	if lerr := e.Load(context.WithoutCancel(ctx)); lerr != nil {
		log.WithError(lerr).Error("resync failed")
		e.report(lerr)
	}
	return err
}

func (e *Engine) report(err error) {
	if e.opts.OnError != nil {
		e.opts.OnError(err)
	}
}

func (e *Engine) changed() {
	if e.opts.OnChange != nil {
		e.opts.OnChange()
	}
}

func (s *State) itemsIn(c domain.Container) []domain.Item { return domain.ItemsIn(s.items, c) }

func droppableFor(c domain.Container) string {
	if c.IsRoot() {
		return RootDroppable
	}
	return FolderDroppable(c.FolderID())
}

func indexByID(items []domain.Item, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}
