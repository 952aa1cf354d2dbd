package reservation_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tunbebong-creator/music-space/internal/domain"
	"github.com/tunbebong-creator/music-space/internal/ports"
)

// memStore is an in-memory ports.BookingStore. Each event has its own
// one-slot lock that a transaction holds from LockEventBySlug until commit or
// rollback, which is how the real store's row lock behaves. Waiting for it
// gives up when the context ends.
type memStore struct {
	mu       sync.Mutex
	events   map[string]*domain.Event
	bookings map[uuid.UUID]domain.Booking
	outbox   []domain.OutboxMessage
	rowLocks map[uuid.UUID]chan struct{}

	txCalls        int
	serialFailures int
	commitErr      error
	outboxErr      error
}

func newMemStore() *memStore {
	return &memStore{
		events:   map[string]*domain.Event{},
		bookings: map[uuid.UUID]domain.Booking{},
		rowLocks: map[uuid.UUID]chan struct{}{},
	}
}

func (m *memStore) addEvent(slug string, capacity int, priceCents int64) *domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := &domain.Event{
		ID:         uuid.New(),
		Slug:       slug,
		Title:      "Event " + slug,
		StartTime:  time.Date(2026, 11, 1, 19, 0, 0, 0, time.UTC),
		Capacity:   capacity,
		PriceCents: priceCents,
		Currency:   "VND",
	}
	m.events[strings.ToLower(slug)] = ev
	m.rowLocks[ev.ID] = make(chan struct{}, 1)
	return ev
}

func (m *memStore) setPrice(slug string, priceCents int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[strings.ToLower(slug)].PriceCents = priceCents
}

// holdLock takes the event lock outside any transaction, as a concurrent
// transaction would. The returned func releases it.
func (m *memStore) holdLock(eventID uuid.UUID) func() {
	m.mu.Lock()
	lock := m.rowLocks[eventID]
	m.mu.Unlock()
	lock <- struct{}{}
	return func() { <-lock }
}

func (m *memStore) bookingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bookings)
}

func (m *memStore) outboxCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outbox)
}

func (m *memStore) WithTx(ctx context.Context, fn func(tx ports.BookingTx) error) error {
	m.mu.Lock()
	m.txCalls++
	if m.serialFailures > 0 {
		m.serialFailures--
		m.mu.Unlock()
		return domain.ErrSerializationFailure
	}
	m.mu.Unlock()

	tx := &memTx{store: m, statuses: map[uuid.UUID]domain.Status{}}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	for _, b := range tx.inserted {
		m.bookings[b.ID] = b
	}
	for id, st := range tx.statuses {
		b := m.bookings[id]
		b.Status = st
		b.UpdatedAt = tx.updatedAt
		m.bookings[id] = b
	}
	m.outbox = append(m.outbox, tx.outbox...)
	return nil
}

func (m *memStore) view(b domain.Booking) *domain.BookingView {
	for _, ev := range m.events {
		if ev.ID == b.EventID {
			return &domain.BookingView{Booking: b, Event: *ev}
		}
	}
	return &domain.BookingView{Booking: b}
}

func (m *memStore) GetByCode(ctx context.Context, code string) (*domain.BookingView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if strings.EqualFold(b.Code, code) {
			return m.view(b), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.BookingView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m.view(b), nil
}

func (m *memStore) List(ctx context.Context) ([]domain.BookingView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.BookingView, 0, len(m.bookings))
	for _, b := range m.bookings {
		out = append(out, *m.view(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) GetEventBySlug(ctx context.Context, slug string) (*domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[strings.ToLower(slug)]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

func (m *memStore) BookedQuantity(ctx context.Context, eventID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bookedLocked(eventID, nil), nil
}

func (m *memStore) bookedLocked(eventID uuid.UUID, staged []domain.Booking) int {
	total := 0
	for _, b := range m.bookings {
		if b.EventID == eventID && b.Status.HoldsCapacity() {
			total += b.Quantity
		}
	}
	for _, b := range staged {
		if b.EventID == eventID && b.Status.HoldsCapacity() {
			total += b.Quantity
		}
	}
	return total
}

func (m *memStore) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.SentAt = &at
	m.bookings[id] = b
	return nil
}

type memTx struct {
	store     *memStore
	locks     []chan struct{}
	inserted  []domain.Booking
	statuses  map[uuid.UUID]domain.Status
	updatedAt time.Time
	outbox    []domain.OutboxMessage
}

func (t *memTx) release() {
	for _, l := range t.locks {
		<-l
	}
}

func (t *memTx) LockEventBySlug(ctx context.Context, slug string) (*domain.Event, error) {
	t.store.mu.Lock()
	ev, ok := t.store.events[strings.ToLower(slug)]
	var lock chan struct{}
	if ok {
		lock = t.store.rowLocks[ev.ID]
	}
	t.store.mu.Unlock()
	if !ok {
		return nil, domain.ErrEventNotFound
	}

	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	t.locks = append(t.locks, lock)

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	cp := *ev
	return &cp, nil
}

func (t *memTx) BookedQuantity(ctx context.Context, eventID uuid.UUID) (int, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.bookedLocked(eventID, t.inserted), nil
}

func (t *memTx) InsertBooking(ctx context.Context, b domain.Booking) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, existing := range t.store.bookings {
		if strings.EqualFold(existing.Code, b.Code) {
			return false, nil
		}
	}
	for _, staged := range t.inserted {
		if strings.EqualFold(staged.Code, b.Code) {
			return false, nil
		}
	}
	t.inserted = append(t.inserted, b)
	return true, nil
}

func (t *memTx) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, at time.Time) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, ok := t.store.bookings[id]; !ok {
		return domain.ErrNotFound
	}
	t.statuses[id] = status
	t.updatedAt = at
	return nil
}

func (t *memTx) InsertOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.outboxErr != nil {
		return t.store.outboxErr
	}
	t.outbox = append(t.outbox, msg)
	return nil
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (n *recordingNotifier) Dispatch(id uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, id)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.ids)
}
