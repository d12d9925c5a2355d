package client

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"organizer/domain"
)

type errorLog struct {
	mu   sync.Mutex
	errs []error
}

func (l *errorLog) record(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *errorLog) all() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

func newLoadedEngine(t *testing.T, snap domain.Snapshot) (*Engine, *fakeTransport, *errorLog) {
	t.Helper()
	api := newFakeTransport(snap)
	errs := &errorLog{}
	e := NewEngine(api, Options{OnError: errs.record})
	require.NoError(t, e.Load(context.Background()))
	return e, api, errs
}

func TestEngine_DropSendsFullReassignment(t *testing.T) {
	e, api, errs := newLoadedEngine(t, domain.Snapshot{Items: rootItems()})

	moved, err := e.Drop(context.Background(), drag("B", DragItem, Location{RootDroppable, 1}, &Location{RootDroppable, 0}))
	require.NoError(t, err)
	require.True(t, moved)

	require.Len(t, api.reorders, 1)
	assert.Equal(t, []domain.ItemPlacement{
		{ID: "B", Order: 0, Container: domain.Root},
		{ID: "A", Order: 1, Container: domain.Root},
		{ID: "C", Order: 2, Container: domain.Root},
	}, api.reorders[0].Items)
	assert.Equal(t, []string{"B", "A", "C"}, itemIDs(e.RootItems()))

	// The echo of our own request converges on the same state.
	before := e.Snapshot()
	e.Apply(event(t, domain.Reordered, api.reorders[0]))
	assert.Equal(t, before, e.Snapshot())
	assert.Empty(t, errs.all())
}

func TestEngine_DropInPlaceIsNoop(t *testing.T) {
	e, api, _ := newLoadedEngine(t, domain.Snapshot{Items: rootItems()})
	before := e.Snapshot()

	moved, err := e.Drop(context.Background(), drag("B", DragItem, Location{RootDroppable, 1}, &Location{RootDroppable, 1}))
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Empty(t, api.reorders)
	assert.Equal(t, before, e.Snapshot())
}

func TestEngine_MoveItemAcrossContainers(t *testing.T) {
	f := domain.InFolder("F")
	e, api, _ := newLoadedEngine(t, domain.Snapshot{
		Items: []domain.Item{
			{ID: "A", Order: 0},
			{ID: "B", Order: 1},
			{ID: "X", Container: f, Order: 0},
		},
		Folders: []domain.Folder{{ID: "F"}},
	})

	moved, err := e.MoveItem(context.Background(), "A", f, 0)
	require.NoError(t, err)
	require.True(t, moved)

	assert.Equal(t, []string{"B"}, itemIDs(e.RootItems()))
	assert.Equal(t, []string{"A", "X"}, itemIDs(e.FolderItems("F")))
	require.Len(t, api.reorders, 1)
	assert.Len(t, api.reorders[0].Items, 3)
}

func TestEngine_MoveToEndWhenAlreadyLastIsNoop(t *testing.T) {
	f := domain.InFolder("F")
	e, api, _ := newLoadedEngine(t, domain.Snapshot{
		Items: []domain.Item{
			{ID: "A", Order: 0},
			{ID: "B", Order: 1},
			{ID: "X", Container: f, Order: 0},
		},
		Folders: []domain.Folder{{ID: "F", Order: 0}, {ID: "G", Order: 1}},
	})
	ctx := context.Background()

	moved, err := e.MoveItem(ctx, "B", domain.Root, math.MaxInt32)
	require.NoError(t, err)
	assert.False(t, moved)
	moved, err = e.MoveFolder(ctx, "G", math.MaxInt32)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Empty(t, api.reorders)

	moved, err = e.MoveItem(ctx, "A", f, math.MaxInt32)
	require.NoError(t, err)
	require.True(t, moved)
	assert.Equal(t, []string{"X", "A"}, itemIDs(e.FolderItems("F")))

	moved, err = e.MoveItem(ctx, "B", domain.Root, -5)
	require.NoError(t, err)
	assert.False(t, moved, "B is the only root item left")
}

func TestEngine_MoveFolder(t *testing.T) {
	e, api, _ := newLoadedEngine(t, domain.Snapshot{
		Folders: []domain.Folder{{ID: "f1", Order: 0}, {ID: "f2", Order: 1}},
	})

	moved, err := e.MoveFolder(context.Background(), "f2", 0)
	require.NoError(t, err)
	require.True(t, moved)
	assert.Equal(t, []string{"f2", "f1"}, folderIDs(e.Folders()))
	require.Len(t, api.reorders, 1)
	assert.Empty(t, api.reorders[0].Items)

	moved, err = e.MoveFolder(context.Background(), "missing", 0)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestEngine_CreateItemIsOptimistic(t *testing.T) {
	e, api, _ := newLoadedEngine(t, domain.Snapshot{Items: []domain.Item{{ID: "A"}}})
	api.entered = make(chan struct{}, 1)
	api.release = make(chan struct{})

	type result struct {
		it  domain.Item
		err error
	}
	done := make(chan result, 1)
	go func() {
		it, err := e.CreateItem(context.Background(), domain.NewItem{Title: "Docs", Icon: "book"})
		done <- result{it, err}
	}()

	select {
	case <-api.entered:
	case <-time.After(time.Second):
		t.Fatal("request was never sent")
	}
	pending := e.RootItems()
	require.Len(t, pending, 2)
	assert.True(t, strings.HasPrefix(pending[1].ID, tempIDPrefix), "placeholder id %q", pending[1].ID)
	assert.Equal(t, 1, pending[1].Order)

	close(api.release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "srv-1", res.it.ID)
	assert.Equal(t, []string{"A", "srv-1"}, itemIDs(e.RootItems()))

	// The create broadcast arriving afterwards is a duplicate.
	e.Apply(event(t, domain.ItemCreated, res.it))
	assert.Len(t, e.RootItems(), 2)
}

func TestEngine_CreateValidationDoesNotMutate(t *testing.T) {
	e, api, errs := newLoadedEngine(t, domain.Snapshot{})

	_, err := e.CreateItem(context.Background(), domain.NewItem{Icon: "x"})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "title", ve.Field)

	_, err = e.CreateItem(context.Background(), domain.NewItem{Title: "t", Icon: "x", Container: domain.InFolder("ghost")})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "container", ve.Field)

	_, err = e.CreateFolder(context.Background(), domain.NewFolder{Name: "  "})
	require.ErrorAs(t, err, &ve)

	assert.Empty(t, e.Snapshot().Items)
	assert.Empty(t, e.Snapshot().Folders)
	assert.Zero(t, api.nextID)
	assert.Empty(t, errs.all(), "validation failures are reported inline only")
}

func TestEngine_CreateFolder(t *testing.T) {
	e, _, _ := newLoadedEngine(t, domain.Snapshot{Folders: []domain.Folder{{ID: "f"}}})

	f, err := e.CreateFolder(context.Background(), domain.NewFolder{Name: "Work"})
	require.NoError(t, err)
	assert.True(t, f.IsOpen)
	assert.Equal(t, 1, f.Order)
	assert.Equal(t, []string{"f", f.ID}, folderIDs(e.Folders()))
}

func TestEngine_FailureReportsAndResyncs(t *testing.T) {
	authoritative := domain.Snapshot{Items: rootItems()}
	e, api, errs := newLoadedEngine(t, authoritative)
	api.err = errors.New("connection reset")
	loadsBefore := api.snapshotCalls()

	moved, err := e.Drop(context.Background(), drag("A", DragItem, Location{RootDroppable, 0}, &Location{RootDroppable, 2}))
	assert.True(t, moved)
	require.Error(t, err)
	assert.ErrorContains(t, err, "reorder")

	require.Len(t, errs.all(), 1)
	assert.Equal(t, loadsBefore+1, api.snapshotCalls(), "failure must trigger a full reload")
	assert.Equal(t, []string{"A", "B", "C"}, itemIDs(e.RootItems()), "optimistic move is discarded by the reload")
}

func TestEngine_FailedResyncIsReported(t *testing.T) {
	e, api, errs := newLoadedEngine(t, domain.Snapshot{Items: rootItems()})
	api.err = errors.New("down")
	api.snapErr = errors.New("still down")

	require.Error(t, e.DeleteItem(context.Background(), "A"))
	assert.Len(t, errs.all(), 2)
}

func TestEngine_UpdateOfMissingRecordIsBenign(t *testing.T) {
	e, api, errs := newLoadedEngine(t, domain.Snapshot{Items: []domain.Item{{ID: "A", Title: "old"}}})
	api.notFound = true
	loadsBefore := api.snapshotCalls()

	title := "new"
	require.NoError(t, e.UpdateItem(context.Background(), "A", domain.ItemPatch{Title: &title}))
	require.NoError(t, e.DeleteItem(context.Background(), "A"))

	assert.Empty(t, errs.all())
	assert.Equal(t, loadsBefore, api.snapshotCalls())
}

func TestEngine_UpdateAppliesLocally(t *testing.T) {
	e, api, _ := newLoadedEngine(t, domain.Snapshot{Items: []domain.Item{{ID: "A", Title: "old", Icon: "i", Order: 0}}})

	title := "new"
	require.NoError(t, e.UpdateItem(context.Background(), "A", domain.ItemPatch{Title: &title}))
	items := e.RootItems()
	require.Len(t, items, 1)
	assert.Equal(t, "new", items[0].Title)
	assert.Equal(t, "i", items[0].Icon)
	assert.Equal(t, []string{"A"}, api.updates)

	empty := ""
	err := e.UpdateItem(context.Background(), "A", domain.ItemPatch{Title: &empty})
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, []string{"A"}, api.updates)
}

func TestEngine_ToggleFolder(t *testing.T) {
	e, _, _ := newLoadedEngine(t, domain.Snapshot{Folders: []domain.Folder{{ID: "f", IsOpen: true}}})

	require.NoError(t, e.ToggleFolder(context.Background(), "f"))
	assert.False(t, e.Folders()[0].IsOpen)

	assert.ErrorIs(t, e.ToggleFolder(context.Background(), "missing"), domain.ErrNotFound)
}

func TestEngine_DeleteFolderCascadesLocally(t *testing.T) {
	f := domain.InFolder("F")
	e, api, _ := newLoadedEngine(t, domain.Snapshot{
		Items:   []domain.Item{{ID: "A"}, {ID: "X", Container: f}},
		Folders: []domain.Folder{{ID: "F"}},
	})

	require.NoError(t, e.DeleteFolder(context.Background(), "F"))
	assert.Empty(t, e.Folders())
	assert.Equal(t, []string{"A"}, itemIDs(e.Snapshot().Items))
	assert.Equal(t, []string{"F"}, api.deleted)
}

func TestEngine_LoadReplaysBroadcastsReceivedDuringFetch(t *testing.T) {
	api := newFakeTransport(domain.Snapshot{Items: []domain.Item{{ID: "A"}}})
	e := NewEngine(api, Options{})
	late := event(t, domain.ItemCreated, domain.Item{ID: "late", Order: 1})
	api.onSnapshot = func() { e.Apply(late) }

	require.NoError(t, e.Load(context.Background()))

	assert.Equal(t, []string{"A", "late"}, itemIDs(e.RootItems()))
	assert.Empty(t, e.pending)
}

func TestEngine_OverlappingLoadsDoNotReplayStaleBroadcasts(t *testing.T) {
	ctx := context.Background()
	api := newFakeTransport(domain.Snapshot{})
	e := NewEngine(api, Options{})

	first := make(chan struct{}, 1)
	first <- struct{}{}
	entered := make(chan struct{})
	release := make(chan struct{})
	api.onSnapshot = func() {
		select {
		case <-first:
			close(entered)
			<-release
		default:
		}
	}

	slow := make(chan error, 1)
	go func() { slow <- e.Load(ctx) }()
	<-entered

	x := domain.Item{ID: "X", Title: "x", Icon: "doc"}
	e.Apply(event(t, domain.ItemCreated, x))
	api.setSnapshot(domain.Snapshot{Items: []domain.Item{x}})
	require.NoError(t, e.Load(ctx))
	assert.Equal(t, []string{"X"}, itemIDs(e.RootItems()))

	close(release)
	require.NoError(t, <-slow)
	assert.Empty(t, e.pending)

	e.Apply(event(t, domain.ItemDeleted, "X"))
	api.setSnapshot(domain.Snapshot{})
	require.NoError(t, e.Load(ctx))
	assert.Empty(t, e.RootItems())
}

func TestEngine_OlderLoadFinishingFirstIsKept(t *testing.T) {
	ctx := context.Background()
	api := newFakeTransport(domain.Snapshot{Items: []domain.Item{{ID: "A"}}})
	e := NewEngine(api, Options{})

	entered := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	api.onSnapshot = func() {
		calls++
		if calls == 2 {
			close(entered)
			<-release
		}
	}

	require.NoError(t, e.Load(ctx))
	slow := make(chan error, 1)
	go func() { slow <- e.Load(ctx) }()
	<-entered
	e.Apply(event(t, domain.ItemCreated, domain.Item{ID: "B", Order: 1}))
	assert.Equal(t, []string{"A", "B"}, itemIDs(e.RootItems()))

	close(release)
	require.NoError(t, <-slow)
	assert.Equal(t, []string{"A", "B"}, itemIDs(e.RootItems()), "broadcast during the fetch is replayed")
	assert.Empty(t, e.pending)
}

func TestEngine_OnChange(t *testing.T) {
	var n int
	api := newFakeTransport(domain.Snapshot{})
	e := NewEngine(api, Options{OnChange: func() { n++ }})

	require.NoError(t, e.Load(context.Background()))
	e.Apply(event(t, domain.FolderCreated, domain.Folder{ID: "f"}))
	e.Apply(domain.Event{Kind: domain.FolderCreated, Data: []byte("{")})

	assert.Equal(t, 2, n)
}

// scriptedSubscriber fails its first connection attempt, then opens a stream
// that delivers events until the context ends.
type scriptedSubscriber struct {
	mu       sync.Mutex
	attempts int
	events   []domain.Event
	opened   chan struct{}
}

func (s *scriptedSubscriber) Subscribe(ctx context.Context, ready func() error, fn func(domain.Event)) error {
	s.mu.Lock()
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()
	if attempt == 1 {
		return errors.New("connection refused")
	}
	if err := ready(); err != nil {
		return err
	}
	for _, ev := range s.events {
		fn(ev)
	}
	close(s.opened)
	<-ctx.Done()
	return ctx.Err()
}

func TestEngine_RunReconnectsAndLoads(t *testing.T) {
	api := newFakeTransport(domain.Snapshot{Items: []domain.Item{{ID: "A"}}})
	e := NewEngine(api, Options{RetryMin: time.Millisecond, RetryMax: 5 * time.Millisecond})
	sub := &scriptedSubscriber{
		events: []domain.Event{event(t, domain.ItemDeleted, "A")},
		opened: make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, sub) }()

	select {
	case <-sub.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never opened")
	}
	assert.Equal(t, 1, api.snapshotCalls())
	assert.Empty(t, e.RootItems())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
