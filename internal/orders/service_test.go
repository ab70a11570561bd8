package orders_test

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/order-lifecycle/internal/apperr"
	"github.com/ariefcatur/order-lifecycle/internal/idempotency"
	"github.com/ariefcatur/order-lifecycle/internal/memory"
	"github.com/ariefcatur/order-lifecycle/internal/orders"
)

type customersFunc func(ctx context.Context, id int64) error

func (f customersFunc) AssertCustomerExists(ctx context.Context, id int64) error { return f(ctx, id) }

func anyCustomer() customersFunc { return func(context.Context, int64) error { return nil } }

type published struct {
	topic string
	key   string
	env   orders.Envelope
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(topic string, key, value []byte, _ ...kafkago.Header) {
	var env orders.Envelope
	_ = json.Unmarshal(value, &env)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, key: string(key), env: env})
}

type mapStatusCache struct {
	mu sync.Mutex
	m  map[int64]orders.StatusView
}

func (c *mapStatusCache) GetStatus(_ context.Context, id int64) (orders.StatusView, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[id]
	return v, ok, nil
}

func (c *mapStatusCache) SetStatus(_ context.Context, v orders.StatusView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[v.OrderID] = v
	return nil
}

func (c *mapStatusCache) FillStatus(_ context.Context, v orders.StatusView) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[v.OrderID]; ok {
		return false, nil
	}
	c.m[v.OrderID] = v
	return true, nil
}

// afterReadStore runs onRead once, right after the next FindByID has read
// the order.
type afterReadStore struct {
	*memory.OrderStore
	onRead func()
}

func (s *afterReadStore) FindByID(ctx context.Context, id int64) (*orders.Order, error) {
	o, err := s.OrderStore.FindByID(ctx, id)
	if h := s.onRead; h != nil {
		s.onRead = nil
		h()
	}
	return o, err
}

type fixture struct {
	store  *memory.OrderStore
	keys   *memory.IdempotencyStore
	events *recordingPublisher
	now    time.Time
	svc    *orders.Service
}

func newFixture(t *testing.T, customers orders.CustomerChecker) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewOrderStore(),
		keys:   memory.NewIdempotencyStore(),
		events: &recordingPublisher{},
		now:    time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.store.Now = func() time.Time { return f.now }
	f.store.PutProduct(orders.Product{ID: 7, SKU: "SKU-7", Name: "Widget", PriceCents: 1000, Stock: 50})
	f.store.PutProduct(orders.Product{ID: 8, SKU: "SKU-8", Name: "Gadget", PriceCents: 250, Stock: 3})
	f.svc = orders.NewService(f.store, customers, idempotency.NewCoordinator(f.keys),
		orders.WithPublisher(f.events, "orders-api"),
		orders.WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	p, ok := f.store.Product(id)
	require.True(t, ok)
	return p.Stock
}

func (f *fixture) create(t *testing.T, items ...orders.ItemInput) *orders.Order {
	t.Helper()
	r, err := f.svc.Create(context.Background(), "", orders.CreateOrderInput{CustomerID: 1, Items: items})
	require.NoError(t, err)
	require.NotNil(t, r.Order)
	return r.Order
}

func TestCreateOrderExample(t *testing.T) {
	f := newFixture(t, anyCustomer())

	o := f.create(t, orders.ItemInput{ProductID: 7, Qty: 5})
	assert.Equal(t, int64(5000), o.TotalCents)
	assert.Equal(t, orders.StatusCreated, o.Status)
	assert.Equal(t, 45, f.stock(t, 7))

	require.Len(t, f.events.msgs, 1)
	msg := f.events.msgs[0]
	assert.Equal(t, orders.TopicOrderCreated, msg.topic)
	assert.Equal(t, "1", msg.key)
	assert.Equal(t, orders.EventOrderCreated, msg.env.EventType)
	assert.Equal(t, "orders-api", msg.env.Producer)
	assert.True(t, f.now.Equal(msg.env.OccurredAt))
}

func TestCreateTotalMatchesItems(t *testing.T) {
	f := newFixture(t, anyCustomer())

	o := f.create(t, orders.ItemInput{ProductID: 7, Qty: 2}, orders.ItemInput{ProductID: 8, Qty: 3})
	var sum int64
	for _, it := range o.Items {
		assert.Equal(t, it.UnitPriceCents*int64(it.Qty), it.SubtotalCents)
		sum += it.SubtotalCents
	}
	assert.Equal(t, sum, o.TotalCents)
	assert.Equal(t, int64(2750), o.TotalCents)
}

func TestCreateIsAllOrNothing(t *testing.T) {
	f := newFixture(t, anyCustomer())

	_, err := f.svc.Create(context.Background(), "", orders.CreateOrderInput{CustomerID: 1, Items: []orders.ItemInput{
		{ProductID: 7, Qty: 5},
		{ProductID: 8, Qty: 4},
	}})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindInsufficientStock, ae.Kind)
	assert.Equal(t, int64(8), ae.ProductID)

	assert.Equal(t, 50, f.stock(t, 7))
	assert.Equal(t, 3, f.stock(t, 8))
	assert.Zero(t, f.store.OrderCount())
	assert.Empty(t, f.events.msgs)
}

func TestCreateUnknownProduct(t *testing.T) {
	f := newFixture(t, anyCustomer())

	_, err := f.svc.Create(context.Background(), "", orders.CreateOrderInput{CustomerID: 1, Items: []orders.ItemInput{
		{ProductID: 7, Qty: 1},
		{ProductID: 99, Qty: 1},
	}})
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)
	assert.Equal(t, 50, f.stock(t, 7))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, anyCustomer())

	cases := map[string]orders.CreateOrderInput{
		"no items":     {CustomerID: 1},
		"zero qty":     {CustomerID: 1, Items: []orders.ItemInput{{ProductID: 7, Qty: 0}}},
		"bad customer": {CustomerID: 0, Items: []orders.ItemInput{{ProductID: 7, Qty: 1}}},
		"bad product":  {CustomerID: 1, Items: []orders.ItemInput{{ProductID: -1, Qty: 1}}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), "", in)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestCreateChecksCustomerBeforeStock(t *testing.T) {
	for name, tc := range map[string]struct {
		err  error
		want error
	}{
		"missing":     {err: apperr.ErrCustomerNotFound, want: apperr.ErrCustomerNotFound},
		"unreachable": {err: apperr.External(errors.New("timeout")), want: apperr.ErrExternalService},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, customersFunc(func(context.Context, int64) error { return tc.err }))
			_, err := f.svc.Create(context.Background(), "", orders.CreateOrderInput{
				CustomerID: 1, Items: []orders.ItemInput{{ProductID: 7, Qty: 1}},
			})
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, 50, f.stock(t, 7))
			assert.Zero(t, f.store.OrderCount())
		})
	}
}

func TestCreateReturnsCompletedBodyForKnownKey(t *testing.T) {
	f := newFixture(t, anyCustomer())
	ctx := context.Background()

	o := f.create(t, orders.ItemInput{ProductID: 7, Qty: 1})
	confirmed, err := f.svc.Confirm(ctx, o.ID, "saga-1")
	require.NoError(t, err)

	r, err := f.svc.Create(ctx, "saga-1", orders.CreateOrderInput{CustomerID: 1, Items: []orders.ItemInput{{ProductID: 7, Qty: 1}}})
	require.NoError(t, err)
	assert.True(t, r.Replayed)
	assert.Equal(t, []byte(confirmed.Body), []byte(r.Body))
	assert.Equal(t, 1, f.store.OrderCount())
	assert.Equal(t, 49, f.stock(t, 7))
}

func TestCreateWithPendingKeyStillCreates(t *testing.T) {
	f := newFixture(t, anyCustomer())
	ctx := context.Background()
	require.NoError(t, f.keys.Insert(ctx, idempotency.Record{Key: "k", TargetType: idempotency.TargetOrder, TargetID: 1}))

	in := orders.CreateOrderInput{CustomerID: 1, Items: []orders.ItemInput{{ProductID: 7, Qty: 1}}}
	r1, err := f.svc.Create(ctx, "k", in)
	require.NoError(t, err)
	r2, err := f.svc.Create(ctx, "k", in)
	require.NoError(t, err)

	// The create path reads the key but never claims it.
	assert.NotEqual(t, r1.Order.ID, r2.Order.ID)
	assert.Equal(t, 2, f.store.OrderCount())
}

func TestConfirmIsIdempotent(t *testing.T) {
	f := newFixture(t, anyCustomer())
	ctx := context.Background()
	o := f.create(t, orders.ItemInput{ProductID: 7, Qty: 1})

	first, err := f.svc.Confirm(ctx, o.ID, "key-1")
	require.NoError(t, err)
	require.NotNil(t, first.Order)
	assert.Equal(t, orders.StatusConfirmed, first.Order.Status)

	second, err := f.svc.Confirm(ctx, o.ID, "key-1")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, []byte(first.Body), []byte(second.Body))

	confirms := 0
	for _, m := range f.events.msgs {
		if m.env.EventType == orders.EventOrderConfirmed {
			confirms++
		}
	}
	assert.Equal(t, 1, confirms)
}

func TestConfirmRequiresKey(t *testing.T) {
	f := newFixture(t, anyCustomer())
	o := f.create(t, orders.ItemInput{ProductID: 7, Qty: 1})

	_, err := f.svc.Confirm(context.Background(), o.ID, "  ")
	assert.ErrorIs(t, err, apperr.ErrIdempotencyKeyRequired)
	assert.Zero(t, f.keys.Len())
}

func TestConfirmFailureReleasesKey(t *testing.T) {
	f := newFixture(t, anyCustomer())
	ctx := context.Background()

	_, err := f.svc.Confirm(ctx, 404, "key-1")
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)
	assert.Zero(t, f.keys.Len())

	o := f.create(t, orders.ItemInput{ProductID: 7, Qty: 1})
	_, err = f.svc.Cancel(ctx, o.ID)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, o.ID, "key-2")
	assert.ErrorIs(t, err, apperr.ErrInvalidOrderStatus)
	assert.Zero(t, f.keys.Len())
}

func TestConfirmWhileProcessingIsInProgress(t *testing.T) {
	f := newFixture(t, anyCustomer())
	ctx := context.Background()
	o := f.create(t, orders.ItemInput{ProductID: 7, Qty: 1})
	require.NoError(t, f.keys.Insert(ctx, idempotency.Record{Key: "busy", TargetType: idempotency.TargetOrder, TargetID: o.ID}))

	_, err := f.svc.Confirm(ctx, o.ID, "busy")
	assert.ErrorIs(t, err, apperr.ErrRequestInProgress)

	got, err := f.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCreated, got.Status)
}

func TestConcurrentConfirmsApplyOnce(t *testing.T) {
	f := newFixture(t, anyCustomer())
	ctx := context.Background()
	o := f.create(t, orders.ItemInput{ProductID: 7, Qty: 1})

	const n = 24
	var applied, replayed, busy atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			r, err := f.svc.Confirm(ctx, o.ID, "shared")
			switch {
			case err == nil && r.Replayed:
				replayed.Add(1)
			case err == nil:
				applied.Add(1)
			case errors.Is(err, apperr.ErrRequestInProgress):
				busy.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), applied.Load())
	assert.Equal(t, int32(n), applied.Load()+replayed.Load()+busy.Load())
}

func TestCancelWindow(t *testing.T) {
	cases := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{"nine minutes", 9 * time.Minute, nil},
		{"exactly ten minutes", 10 * time.Minute, nil},
		{"eleven minutes", 11 * time.Minute, apperr.ErrCancellationWindowExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, anyCustomer())
			ctx := context.Background()
			t0 := f.now
			o := f.create(t, orders.ItemInput{ProductID: 7, Qty: 5})
			_, err := f.svc.Confirm(ctx, o.ID, "k")
			require.NoError(t, err)

			f.now = t0.Add(tc.elapsed)
			got, err := f.svc.Cancel(ctx, o.ID)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, 45, f.stock(t, 7))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, orders.StatusCanceled, got.Status)
			assert.Equal(t, 50, f.stock(t, 7))
		})
	}
}

func TestCancelWindowFollowsStoreClock(t *testing.T) {
	f := newFixture(t, anyCustomer())
	ctx := context.Background()
	t0 := f.now
	appNow := t0
	svc := orders.NewService(f.store, anyCustomer(), idempotency.NewCoordinator(f.keys),
		orders.WithClock(func() time.Time { return appNow }),
	)

	late := f.create(t, orders.ItemInput{ProductID: 7, Qty: 1})
	early := f.create(t, orders.ItemInput{ProductID: 7, Qty: 1})
	for _, id := range []int64{late.ID, early.ID} {
		_, err := svc.Confirm(ctx, id, "k-"+strconv.FormatInt(id, 10))
		require.NoError(t, err)
	}

	// The application clock lags the store's.
	f.now, appNow = t0.Add(11*time.Minute), t0.Add(time.Minute)
	_, err := svc.Cancel(ctx, late.ID)
	assert.ErrorIs(t, err, apperr.ErrCancellationWindowExpired)

	// The application clock runs ahead of the store's.
	f.now, appNow = t0.Add(5*time.Minute), t0.Add(time.Hour)
	got, err := svc.Cancel(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCanceled, got.Status)
	assert.Equal(t, 49, f.stock(t, 7))
}

func TestCancelCreatedIgnoresWindow(t *testing.T) {
	f := newFixture(t, anyCustomer())
	o := f.create(t, orders.ItemInput{ProductID: 7, Qty: 5})

	f.now = f.now.Add(24 * time.Hour)
	got, err := f.svc.Cancel(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCanceled, got.Status)
	assert.Equal(t, 50, f.stock(t, 7))
}

func TestCancelTwiceDoesNotRestockAgain(t *testing.T) {
	f := newFixture(t, anyCustomer())
	ctx := context.Background()
	o := f.create(t, orders.ItemInput{ProductID: 7, Qty: 5})

	_, err := f.svc.Cancel(ctx, o.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, o.ID)
	assert.ErrorIs(t, err, apperr.ErrOrderAlreadyCanceled)
	assert.Equal(t, 50, f.stock(t, 7))
}

func TestCancelMissingOrder(t *testing.T) {
	f := newFixture(t, anyCustomer())
	_, err := f.svc.Cancel(context.Background(), 12)
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)
}

func TestConcurrentCreatesNeverOversell(t *testing.T) {
	f := newFixture(t, anyCustomer())
	ctx := context.Background()

	const n = 20
	var ok, short atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(ctx, "", orders.CreateOrderInput{CustomerID: 1, Items: []orders.ItemInput{{ProductID: 8, Qty: 1}}})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, apperr.ErrInsufficientStock):
				short.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), ok.Load())
	assert.Equal(t, int32(n-3), short.Load())
	assert.Equal(t, 0, f.stock(t, 8))
}

func TestStatusUsesCacheThenStore(t *testing.T) {
	f := newFixture(t, anyCustomer())
	cache := &mapStatusCache{m: map[int64]orders.StatusView{}}
	svc := orders.NewService(f.store, anyCustomer(), idempotency.NewCoordinator(f.keys), orders.WithStatusCache(cache))
	ctx := context.Background()

	r, err := svc.Create(ctx, "", orders.CreateOrderInput{CustomerID: 1, Items: []orders.ItemInput{{ProductID: 7, Qty: 1}}})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCreated, cache.m[r.Order.ID].Status)

	_, err = svc.Confirm(ctx, r.Order.ID, "k")
	require.NoError(t, err)
	v, err := svc.Status(ctx, r.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, v.Status)

	delete(cache.m, r.Order.ID)
	v, err = svc.Status(ctx, r.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, v.Status)
	assert.Contains(t, cache.m, r.Order.ID)

	_, err = svc.Status(ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)
}

func TestStatusRefillDoesNotOverwriteNewerTransition(t *testing.T) {
	f := newFixture(t, anyCustomer())
	store := &afterReadStore{OrderStore: f.store}
	cache := &mapStatusCache{m: map[int64]orders.StatusView{}}
	svc := orders.NewService(store, anyCustomer(), idempotency.NewCoordinator(f.keys),
		orders.WithStatusCache(cache),
		orders.WithClock(func() time.Time { return f.now }),
	)
	ctx := context.Background()

	r, err := svc.Create(ctx, "", orders.CreateOrderInput{CustomerID: 1, Items: []orders.ItemInput{{ProductID: 7, Qty: 1}}})
	require.NoError(t, err)
	delete(cache.m, r.Order.ID)

	// The confirm commits after Status has read CREATED from the store.
	confirmedAt := f.now.Add(time.Second)
	store.onRead = func() {
		f.now = confirmedAt
		_, err := svc.Confirm(ctx, r.Order.ID, "k")
		require.NoError(t, err)
	}
	_, err = svc.Status(ctx, r.Order.ID)
	require.NoError(t, err)

	db, err := f.store.FindByID(ctx, r.Order.ID)
	require.NoError(t, err)
	cached := cache.m[r.Order.ID]
	require.Equal(t, db.Status, cached.Status)
	assert.Equal(t, orders.StatusConfirmed, cached.Status)
	assert.True(t, confirmedAt.Equal(cached.UpdatedAt))

	// A later miss refills with the row's own transition time.
	delete(cache.m, r.Order.ID)
	v, err := svc.Status(ctx, r.Order.ID)
	require.NoError(t, err)
	assert.True(t, confirmedAt.Equal(v.UpdatedAt))
}

func TestListProductsPagination(t *testing.T) {
	f := newFixture(t, anyCustomer())
	for id := int64(10); id < 15; id++ {
		f.store.PutProduct(orders.Product{ID: id, SKU: "BULK", Name: "Bulk item", PriceCents: 1, Stock: 1})
	}
	ctx := context.Background()

	page, err := f.svc.ListProducts(ctx, orders.ProductFilter{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Data, 3)
	require.NotNil(t, page.Pagination.NextCursor)
	assert.Equal(t, int64(10), *page.Pagination.NextCursor)

	page, err = f.svc.ListProducts(ctx, orders.ProductFilter{Cursor: 10, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, page.Data, 3)

	page, err = f.svc.ListProducts(ctx, orders.ProductFilter{Search: "bulk", Cursor: 12})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Nil(t, page.Pagination.NextCursor)
	assert.Equal(t, orders.DefaultPageSize, page.Pagination.Limit)

	page, err = f.svc.ListProducts(ctx, orders.ProductFilter{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, orders.MaxPageSize, page.Pagination.Limit)
}
