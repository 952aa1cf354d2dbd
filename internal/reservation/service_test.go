package reservation_test

import (
	"context"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tunbebong-creator/music-space/internal/domain"
	"github.com/tunbebong-creator/music-space/internal/observability"
	"github.com/tunbebong-creator/music-space/internal/reservation"
	"golang.org/x/sync/errgroup"
)

func newService(store *memStore, notifier *recordingNotifier, opts ...reservation.Option) *reservation.Service {
	return reservation.NewService(store, notifier, observability.NewNopLogger(), opts...)
}

func reserveReq(slug string, qty int) domain.ReserveRequest {
	return domain.ReserveRequest{
		Slug:     slug,
		Quantity: qty,
		Method:   "Cash",
		Contact:  domain.Contact{Name: "Lan", Email: "lan@example.com", Phone: "0900000000"},
	}
}

func remaining(t *testing.T, svc *reservation.Service, slug string) int {
	t.Helper()
	a, err := svc.Availability(context.Background(), slug)
	require.NoError(t, err)
	return a.Remaining
}

func TestReserve_ConcurrentRequestsNeverOversell(t *testing.T) {
	store := newMemStore()
	store.addEvent("jazz-night", 10, 150000)
	notifier := &recordingNotifier{}
	svc := newService(store, notifier)

	var ok, soldOut atomic.Int32
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 25; i++ {
		g.Go(func() error {
			_, err := svc.Reserve(ctx, reserveReq("jazz-night", 1))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrSoldOut):
				soldOut.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(10), ok.Load())
	assert.Equal(t, int32(15), soldOut.Load())
	assert.Equal(t, 10, store.bookingCount())
	assert.Equal(t, 0, remaining(t, svc, "jazz-night"))
	assert.Equal(t, 10, notifier.count())
}

func TestReserve_ConcurrentMixedQuantitiesStayWithinCapacity(t *testing.T) {
	store := newMemStore()
	ev := store.addEvent("folk", 7, 1000)
	svc := newService(store, &recordingNotifier{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			_, _ = svc.Reserve(context.Background(), reserveReq("folk", q))
		}(i%3 + 1)
	}
	wg.Wait()

	booked, err := store.BookedQuantity(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, booked, 7)
}

func TestReserve_SingleSeatScenario(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addEvent("solo", 1, 50000)
	svc := newService(store, &recordingNotifier{})

	first, err := svc.Reserve(ctx, reserveReq("solo", 1))
	require.NoError(t, err)
	assert.Equal(t, 0, remaining(t, svc, "solo"))

	_, err = svc.Reserve(ctx, reserveReq("solo", 1))
	var soldOut *domain.SoldOutError
	require.True(t, errors.As(err, &soldOut))
	assert.Equal(t, 0, soldOut.Remaining)

	_, err = svc.SetStatus(ctx, first.BookingID, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining(t, svc, "solo"))

	_, err = svc.Reserve(ctx, reserveReq("solo", 1))
	require.NoError(t, err)
}

func TestReserve_SoldOutReportsRemaining(t *testing.T) {
	store := newMemStore()
	store.addEvent("duo", 5, 0)
	svc := newService(store, &recordingNotifier{})

	_, err := svc.Reserve(context.Background(), reserveReq("duo", 3))
	require.NoError(t, err)

	_, err = svc.Reserve(context.Background(), reserveReq("duo", 3))
	var soldOut *domain.SoldOutError
	require.ErrorAs(t, err, &soldOut)
	assert.Equal(t, 2, soldOut.Remaining)
	assert.Equal(t, 1, store.bookingCount())
}

func TestReserve_UnlimitedCapacity(t *testing.T) {
	store := newMemStore()
	store.addEvent("open-air", 0, 100)
	svc := newService(store, &recordingNotifier{})

	for i := 0; i < 3; i++ {
		_, err := svc.Reserve(context.Background(), reserveReq("open-air", 1000))
		require.NoError(t, err)
	}
	a, err := svc.Availability(context.Background(), "open-air")
	require.NoError(t, err)
	assert.True(t, a.Unlimited)
	assert.Equal(t, 3000, a.Booked)
}

func TestReserve_RejectsAmountOverflow(t *testing.T) {
	store := newMemStore()
	store.addEvent("stadium", 0, 250000)
	notifier := &recordingNotifier{}
	svc := newService(store, notifier)

	_, err := svc.Reserve(context.Background(), reserveReq("stadium", 40000000000000))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrQuantityTooLarge))
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	assert.Equal(t, 0, store.bookingCount())
	assert.Equal(t, 0, store.outboxCount())
	assert.Equal(t, 0, notifier.count())

	res, err := svc.Reserve(context.Background(), reserveReq("stadium", 2))
	require.NoError(t, err)
	view, err := svc.GetByID(context.Background(), res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, int64(500000), view.AmountCents)
}

func TestReserve_LockWaitBoundedByTxTimeout(t *testing.T) {
	store := newMemStore()
	ev := store.addEvent("busy", 5, 1000)
	notifier := &recordingNotifier{}
	svc := newService(store, notifier, reservation.WithTxTimeout(50*time.Millisecond))

	release := store.holdLock(ev.ID)
	start := time.Now()
	_, err := svc.Reserve(context.Background(), reserveReq("busy", 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 0, store.bookingCount())
	assert.Equal(t, 0, store.outboxCount())
	assert.Equal(t, 0, notifier.count())

	release()
	_, err = svc.Reserve(context.Background(), reserveReq("busy", 1))
	require.NoError(t, err)
	assert.Equal(t, 1, store.bookingCount())
}

func TestReserve_FailureBeforeCommitLeavesNothing(t *testing.T) {
	store := newMemStore()
	store.addEvent("atomic", 4, 100)
	notifier := &recordingNotifier{}
	svc := newService(store, notifier)
	before := remaining(t, svc, "atomic")

	store.outboxErr = errors.New("disk full")
	_, err := svc.Reserve(context.Background(), reserveReq("atomic", 2))
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrSoldOut))

	store.outboxErr = nil
	store.commitErr = errors.New("connection reset")
	_, err = svc.Reserve(context.Background(), reserveReq("atomic", 2))
	require.Error(t, err)

	assert.Equal(t, 0, store.bookingCount())
	assert.Equal(t, 0, store.outboxCount())
	assert.Equal(t, before, remaining(t, svc, "atomic"))
	assert.Equal(t, 0, notifier.count())
}

func TestReserve_AmountFrozenAtBookingTime(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addEvent("price", 0, 120000)
	svc := newService(store, &recordingNotifier{})

	res, err := svc.Reserve(ctx, reserveReq("price", 3))
	require.NoError(t, err)

	store.setPrice("price", 999999)

	view, err := svc.GetByID(ctx, res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, int64(360000), view.AmountCents)
}

func TestReserve_NormalizesInput(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addEvent("Mixed-Case", 0, 10)
	svc := newService(store, &recordingNotifier{})

	for _, q := range []int{0, -4} {
		req := reserveReq("mixed-case", q)
		req.Method = ""
		res, err := svc.Reserve(ctx, req)
		require.NoError(t, err)

		view, err := svc.GetByID(ctx, res.BookingID)
		require.NoError(t, err)
		assert.Equal(t, 1, view.Quantity)
		assert.Equal(t, domain.DefaultMethod, view.Method)
		assert.Equal(t, domain.StatusPending, view.Status)
	}

	res, err := svc.Reserve(ctx, reserveReq("MIXED-CASE", 2))
	require.NoError(t, err)
	view, err := svc.GetByID(ctx, res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, "cash", view.Method)
}

func TestReserve_ValidationHappensBeforeAnyTransaction(t *testing.T) {
	store := newMemStore()
	store.addEvent("v", 1, 1)
	svc := newService(store, &recordingNotifier{})

	req := reserveReq("v", 1)
	req.Contact.Phone = "  "
	_, err := svc.Reserve(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 0, store.txCalls)
}

func TestReserve_UnknownEvent(t *testing.T) {
	svc := newService(newMemStore(), &recordingNotifier{})
	_, err := svc.Reserve(context.Background(), reserveReq("missing", 1))
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestReserve_CodesAreUniqueAndWellFormed(t *testing.T) {
	store := newMemStore()
	store.addEvent("many", 0, 1)
	svc := newService(store, &recordingNotifier{})
	pattern := regexp.MustCompile(`^[0-9A-F]{8}$`)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		res, err := svc.Reserve(context.Background(), reserveReq("many", 1))
		require.NoError(t, err)
		assert.Regexp(t, pattern, res.Code)
		assert.False(t, seen[res.Code], "duplicate code %s", res.Code)
		seen[res.Code] = true
	}
}

func sequenceGenerator(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i%len(codes)]
		i++
		return c, nil
	}
}

func TestReserve_RegeneratesCodeOnCollision(t *testing.T) {
	store := newMemStore()
	store.addEvent("dup", 0, 1)
	svc := newService(store, &recordingNotifier{},
		reservation.WithCodeGenerator(sequenceGenerator("AAAA0001", "AAAA0001", "BBBB0002")))

	first, err := svc.Reserve(context.Background(), reserveReq("dup", 1))
	require.NoError(t, err)
	second, err := svc.Reserve(context.Background(), reserveReq("dup", 1))
	require.NoError(t, err)

	assert.Equal(t, "AAAA0001", first.Code)
	assert.Equal(t, "BBBB0002", second.Code)
}

func TestReserve_PersistentCollisionFailsWithoutWriting(t *testing.T) {
	store := newMemStore()
	store.addEvent("stuck", 0, 1)
	svc := newService(store, &recordingNotifier{}, reservation.WithCodeGenerator(sequenceGenerator("CAFE0000")))

	_, err := svc.Reserve(context.Background(), reserveReq("stuck", 1))
	require.NoError(t, err)
	_, err = svc.Reserve(context.Background(), reserveReq("stuck", 1))
	assert.ErrorIs(t, err, domain.ErrCodeCollision)
	assert.Equal(t, 1, store.bookingCount())
}

func TestReserve_RetriesSerializationFailures(t *testing.T) {
	store := newMemStore()
	store.addEvent("retry", 2, 1)
	svc := newService(store, &recordingNotifier{})

	store.serialFailures = 2
	_, err := svc.Reserve(context.Background(), reserveReq("retry", 1))
	require.NoError(t, err)
	assert.Equal(t, 3, store.txCalls)

	store.serialFailures = 3
	_, err = svc.Reserve(context.Background(), reserveReq("retry", 1))
	assert.ErrorIs(t, err, domain.ErrSerializationFailure)
	assert.Equal(t, 1, store.bookingCount())
}

func TestReserve_WritesOutboxMessage(t *testing.T) {
	store := newMemStore()
	store.addEvent("outbox", 0, 1)
	svc := newService(store, &recordingNotifier{})

	_, err := svc.Reserve(context.Background(), reserveReq("outbox", 1))
	require.NoError(t, err)
	require.Equal(t, 1, store.outboxCount())
	assert.Equal(t, domain.EventBookingCreated, store.outbox[0].EventType)
}

func TestSetStatus_RejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addEvent("s", 0, 1)
	svc := newService(store, &recordingNotifier{})
	res, err := svc.Reserve(ctx, reserveReq("s", 1))
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, res.BookingID, "bogus")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	view, err := svc.GetByID(ctx, res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, view.Status)
}

func TestSetStatus_AcceptsEveryLifecycleState(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addEvent("life", 0, 1)
	now := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	svc := newService(store, &recordingNotifier{}, reservation.WithClock(func() time.Time { return now }))
	res, err := svc.Reserve(ctx, reserveReq("life", 1))
	require.NoError(t, err)

	for _, st := range []string{"confirmed", "CHECKED_IN", " pending ", "cancelled"} {
		now = now.Add(time.Minute)
		view, err := svc.SetStatus(ctx, res.BookingID, st)
		require.NoError(t, err)
		parsed, _ := domain.ParseStatus(st)
		assert.Equal(t, parsed, view.Status)
		assert.Equal(t, now, view.UpdatedAt)
		assert.Equal(t, "Event life", view.Event.Title)
	}
}

func TestSetStatus_CancelFreesExactlyTheBookedQuantity(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addEvent("free", 10, 1)
	svc := newService(store, &recordingNotifier{})

	res, err := svc.Reserve(ctx, reserveReq("free", 4))
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, reserveReq("free", 6))
	require.NoError(t, err)
	require.Equal(t, 0, remaining(t, svc, "free"))

	_, err = svc.SetStatus(ctx, res.BookingID, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, 4, remaining(t, svc, "free"))

	_, err = svc.Reserve(ctx, reserveReq("free", 4))
	require.NoError(t, err)
	assert.Equal(t, 0, remaining(t, svc, "free"))
}

func TestSetStatus_UnknownBooking(t *testing.T) {
	svc := newService(newMemStore(), &recordingNotifier{})
	_, err := svc.SetStatus(context.Background(), uuid.New(), "confirmed")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetBooking(ctx context.Context, code string) (*domain.BookingView, error) {
	args := m.Called(ctx, code)
	v, _ := args.Get(0).(*domain.BookingView)
	return v, args.Error(1)
}

func (m *mockCache) SetBooking(ctx context.Context, v domain.BookingView) error {
	return m.Called(ctx, v).Error(0)
}

func (m *mockCache) InvalidateBooking(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}

func TestGetByCode_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addEvent("lookup", 0, 1)
	svc := newService(store, &recordingNotifier{}, reservation.WithCodeGenerator(sequenceGenerator("ABCD1234")))
	_, err := svc.Reserve(ctx, reserveReq("lookup", 1))
	require.NoError(t, err)

	lower, err := svc.GetByCode(ctx, "abcd1234")
	require.NoError(t, err)
	upper, err := svc.GetByCode(ctx, "ABCD1234")
	require.NoError(t, err)
	assert.Equal(t, lower.ID, upper.ID)

	_, err = svc.GetByCode(ctx, "FFFF0000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetByCode_UsesCache(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addEvent("cached", 0, 1)
	cache := &mockCache{}
	svc := newService(store, &recordingNotifier{},
		reservation.WithCache(cache),
		reservation.WithCodeGenerator(sequenceGenerator("0000BEEF")))
	res, err := svc.Reserve(ctx, reserveReq("cached", 1))
	require.NoError(t, err)

	cache.On("GetBooking", mock.Anything, "0000BEEF").Return(nil, nil).Once()
	cache.On("SetBooking", mock.Anything, mock.MatchedBy(func(v domain.BookingView) bool { return v.ID == res.BookingID })).Return(nil).Once()
	_, err = svc.GetByCode(ctx, "0000beef")
	require.NoError(t, err)

	hit := &domain.BookingView{Booking: domain.Booking{ID: res.BookingID, Code: "0000BEEF"}}
	cache.On("GetBooking", mock.Anything, "0000BEEF").Return(hit, nil).Once()
	got, err := svc.GetByCode(ctx, "0000BEEF")
	require.NoError(t, err)
	assert.Same(t, hit, got)

	cache.On("InvalidateBooking", mock.Anything, "0000BEEF").Return(nil).Once()
	_, err = svc.SetStatus(ctx, res.BookingID, "confirmed")
	require.NoError(t, err)

	cache.AssertExpectations(t)
}

func TestGetByCode_CacheErrorsFallThrough(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addEvent("flaky", 0, 1)
	cache := &mockCache{}
	svc := newService(store, &recordingNotifier{},
		reservation.WithCache(cache),
		reservation.WithCodeGenerator(sequenceGenerator("12345678")))
	_, err := svc.Reserve(ctx, reserveReq("flaky", 1))
	require.NoError(t, err)

	cache.On("GetBooking", mock.Anything, "12345678").Return(nil, errors.New("redis down"))
	cache.On("SetBooking", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	view, err := svc.GetByCode(ctx, "12345678")
	require.NoError(t, err)
	assert.Equal(t, "12345678", view.Code)
}

func TestList_NewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addEvent("list", 0, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := newService(store, &recordingNotifier{}, reservation.WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		res, err := svc.Reserve(ctx, reserveReq("list", 1))
		require.NoError(t, err)
		ids = append(ids, res.BookingID)
	}

	views, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, ids[2], views[0].ID)
	assert.Equal(t, ids[0], views[2].ID)
}

type mockAuditor struct {
	mock.Mock
}

func (m *mockAuditor) BookingCreated(ctx context.Context, b domain.Booking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockAuditor) StatusChanged(ctx context.Context, b domain.BookingView) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockAuditor) TicketSent(ctx context.Context, b domain.BookingView) error {
	return m.Called(ctx, b).Error(0)
}

func TestReserve_AuditFailureDoesNotFailReservation(t *testing.T) {
	store := newMemStore()
	store.addEvent("audit", 0, 1)
	auditor := &mockAuditor{}
	auditor.On("BookingCreated", mock.Anything, mock.Anything).Return(errors.New("mongo down")).Once()
	svc := newService(store, &recordingNotifier{}, reservation.WithAuditor(auditor))

	_, err := svc.Reserve(context.Background(), reserveReq("audit", 1))
	require.NoError(t, err)
	auditor.AssertExpectations(t)
}
