package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/larek/internal/bus"
	"github.com/dukerupert/larek/internal/domain"
	"github.com/dukerupert/larek/internal/store"
	"github.com/dukerupert/larek/internal/workflow"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeCatalog struct {
	mu       sync.Mutex
	products []domain.Product
	details  map[string]string
	listErr  error
	getErr   error
}

func (c *fakeCatalog) ListProducts(ctx context.Context) ([]domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	out := make([]domain.Product, len(c.products))
	for i, p := range c.products {
		out[i] = p.Clone()
	}
	return out, nil
}

func (c *fakeCatalog) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return domain.Product{}, c.getErr
	}
	for _, p := range c.products {
		if p.ID == id {
			p = p.Clone()
			p.Description = c.details[id]
			return p, nil
		}
	}
	return domain.Product{}, domain.NotFound("fake.get_product", "product", id)
}

type fakeOrders struct {
	mu        sync.Mutex
	submitted []domain.Order
	err       error
}

func (o *fakeOrders) SubmitOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.submitted = append(o.submitted, order)
	if o.err != nil {
		return domain.OrderResult{}, o.err
	}
	return domain.OrderResult{ID: "order-1", Total: order.Total}, nil
}

// recorder captures bus events; handlers run on the loop goroutine.
type recorder struct {
	mu     sync.Mutex
	events []bus.Event
}

func (r *recorder) handle(ctx context.Context, ev bus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) of(topic bus.Topic) []bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bus.Event
	for _, ev := range r.events {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) topics() []bus.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bus.Topic, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Topic
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// deferredSpawn holds background fetches until the test runs them.
type deferredSpawn struct {
	pending []func()
}

func (d *deferredSpawn) spawn(fn func()) {
	d.pending = append(d.pending, fn)
}

func (d *deferredSpawn) runAll() {
	pending := d.pending
	d.pending = nil
	for _, fn := range pending {
		fn()
	}
}

func newDeferredHarness(t *testing.T) *harness {
	t.Helper()
	d := &deferredSpawn{}
	h := newHarness(t, workflow.WithSpawn(d.spawn))
	h.deferred = d
	return h
}

type harness struct {
	t       *testing.T
	store   *store.Store
	bus     *bus.Bus
	loop    *workflow.Loop
	flow    *workflow.Flow
	catalog *fakeCatalog
	orders  *fakeOrders
	rec     *recorder

	deferred *deferredSpawn
}

func sampleProducts() []domain.Product {
	return []domain.Product{
		{ID: "p1", Title: "Frontend avatar", Category: domain.CategorySoftSkill, Price: domain.Price(100)},
		{ID: "p2", Title: "Bonus", Category: domain.CategoryAdditional, Price: domain.Price(50)},
		{ID: "p3", Title: "Mythical button", Category: domain.CategoryButton},
	}
}

func newHarness(t *testing.T, opts ...workflow.FlowOption) *harness {
	t.Helper()

	b := bus.New()
	rec := &recorder{}
	b.Subscribe(bus.All(), rec.handle)

	h := &harness{
		t:     t,
		store: store.New(b, nil),
		bus:   b,
		loop:  workflow.NewLoop(nil),
		catalog: &fakeCatalog{
			products: sampleProducts(),
			details:  map[string]string{"p1": "p1 details", "p2": "p2 details"},
		},
		orders: &fakeOrders{},
		rec:    rec,
	}

	// Fetches run inline; their completions are posted to the loop and
	// drained by the next do/flush.
	opts = append([]workflow.FlowOption{workflow.WithSpawn(func(fn func()) { fn() })}, opts...)
	h.flow = workflow.NewFlow(h.store, b, h.catalog, h.orders, h.loop, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// do runs fn on the loop and waits for it.
func (h *harness) do(fn func(ctx context.Context) error) error {
	h.t.Helper()
	return h.loop.Do(context.Background(), fn)
}

// flush waits until every task posted so far has run.
func (h *harness) flush() {
	h.t.Helper()
	require.NoError(h.t, h.do(func(context.Context) error { return nil }))
}

func (h *harness) start() {
	h.t.Helper()
	require.NoError(h.t, h.do(func(ctx context.Context) error {
		h.flow.Start(ctx)
		return nil
	}))
	if h.deferred != nil {
		h.deferred.runAll()
	}
	h.flush()
}

func (h *harness) step() workflow.Step {
	var step workflow.Step
	_ = h.do(func(context.Context) error {
		step = h.flow.Step()
		return nil
	})
	return step
}

// toDelivery fills the basket with p1 and p2 and opens the delivery step.
func (h *harness) toDelivery() {
	h.t.Helper()
	h.start()
	require.NoError(h.t, h.do(func(ctx context.Context) error {
		if _, err := h.flow.ToggleBasket(ctx, "p1"); err != nil {
			return err
		}
		if _, err := h.flow.ToggleBasket(ctx, "p2"); err != nil {
			return err
		}
		if err := h.flow.OpenBasket(ctx); err != nil {
			return err
		}
		return h.flow.BeginCheckout(ctx)
	}))
}

// toContacts completes the delivery step.
func (h *harness) toContacts() {
	h.t.Helper()
	h.toDelivery()
	require.NoError(h.t, h.do(func(ctx context.Context) error {
		if err := h.flow.SetDelivery(ctx, domain.PaymentOnline, "Street 1"); err != nil {
			return err
		}
		return h.flow.ConfirmDelivery(ctx)
	}))
}

// =============================================================================
// Catalog loading
// =============================================================================

func TestStart_LoadsCatalog(t *testing.T) {
	h := newHarness(t)

	h.start()

	assert.Len(t, h.store.Catalog(), 3)
	assert.False(t, h.store.Loading())
	assert.Equal(t, []bus.Topic{
		bus.TopicLoadingChanged,
		bus.TopicCatalogChanged,
		bus.TopicLoadingChanged,
	}, h.rec.topics())
}

func TestStart_FailureLeavesCatalog(t *testing.T) {
	h := newHarness(t)
	h.catalog.listErr = domain.Transport(errors.New("connection refused"), "catalog.list", "failed to fetch products")

	h.start()

	assert.Empty(t, h.store.Catalog())
	assert.False(t, h.store.Loading())
	assert.Empty(t, h.rec.of(bus.TopicCatalogChanged))

	reported := h.rec.of(bus.TopicErrorReported)
	require.Len(t, reported, 1)
	assert.True(t, domain.IsCode(reported[0].Payload.(error), domain.ETRANSPORT))
}

// =============================================================================
// Preview
// =============================================================================

func TestSelectCard_FetchesDetails(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.rec.reset()

	require.NoError(t, h.do(func(ctx context.Context) error {
		return h.flow.SelectCard(ctx, "p1")
	}))
	h.flush()

	assert.Equal(t, workflow.StepPreview, h.step())
	require.NotNil(t, h.store.Preview())
	assert.Equal(t, "p1 details", h.store.Preview().Description)

	previews := h.rec.of(bus.TopicPreviewChanged)
	require.Len(t, previews, 2, "opened, then re-rendered with details")
	assert.Equal(t, "p1 details", previews[1].Payload.(*domain.CatalogItem).Description)
}

func TestSelectCard_UnknownProduct(t *testing.T) {
	h := newHarness(t)
	h.start()

	err := h.do(func(ctx context.Context) error {
		return h.flow.SelectCard(ctx, "missing")
	})

	assert.True(t, domain.IsCode(err, domain.ENOTFOUND))
	assert.Equal(t, workflow.StepBrowsing, h.step())
}

func TestSelectCard_DetailFailureKeepsPreview(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.catalog.getErr = domain.Transport(errors.New("timeout"), "catalog.get", "failed to fetch product")

	require.NoError(t, h.do(func(ctx context.Context) error {
		return h.flow.SelectCard(ctx, "p2")
	}))
	h.flush()

	require.NotNil(t, h.store.Preview())
	assert.Equal(t, "p2", h.store.Preview().ID)
	assert.Len(t, h.rec.of(bus.TopicErrorReported), 1)
}

func TestSelectCard_StaleDetailsDoNotRerender(t *testing.T) {
	h := newDeferredHarness(t)
	h.start()
	deferred := h.deferred

	require.NoError(t, h.do(func(ctx context.Context) error {
		if err := h.flow.SelectCard(ctx, "p1"); err != nil {
			return err
		}
		return h.flow.SelectCard(ctx, "p2")
	}))
	require.Len(t, deferred.pending, 2)

	// p2 answers first, p1 arrives late.
	deferred.pending[1]()
	deferred.pending[0]()
	h.flush()

	require.NotNil(t, h.store.Preview())
	assert.Equal(t, "p2", h.store.Preview().ID)
	assert.Equal(t, "p2 details", h.store.Preview().Description)

	p1, _ := h.store.Product("p1")
	assert.Equal(t, "p1 details", p1.Description, "late details are still recorded")

	last := h.rec.of(bus.TopicPreviewChanged)
	assert.Equal(t, "p2", last[len(last)-1].Payload.(*domain.CatalogItem).ID)
}

func TestCloseModal(t *testing.T) {
	h := newHarness(t)
	h.start()

	require.NoError(t, h.do(func(ctx context.Context) error {
		if err := h.flow.SelectCard(ctx, "p1"); err != nil {
			return err
		}
		return h.flow.CloseModal(ctx)
	}))

	assert.Nil(t, h.store.Preview())
	assert.Equal(t, workflow.StepBrowsing, h.step())
}

// =============================================================================
// Basket
// =============================================================================

func TestToggleBasket(t *testing.T) {
	h := newHarness(t)
	h.start()

	var added, removed bool
	require.NoError(t, h.do(func(ctx context.Context) error {
		var err error
		if added, err = h.flow.ToggleBasket(ctx, "p1"); err != nil {
			return err
		}
		removed, err = h.flow.ToggleBasket(ctx, "p1")
		return err
	}))

	assert.True(t, added)
	assert.False(t, removed)
	assert.Empty(t, h.store.Basket())
}

func TestToggleBasket_Errors(t *testing.T) {
	h := newHarness(t)
	h.start()

	err := h.do(func(ctx context.Context) error {
		_, err := h.flow.ToggleBasket(ctx, "p3")
		return err
	})
	assert.True(t, domain.IsCode(err, domain.EINVALID), "priceless product")

	err = h.do(func(ctx context.Context) error {
		_, err := h.flow.ToggleBasket(ctx, "missing")
		return err
	})
	assert.True(t, domain.IsCode(err, domain.ENOTFOUND))
	assert.Empty(t, h.store.Basket())
}

func TestBeginCheckout_EmptyBasket(t *testing.T) {
	h := newHarness(t)
	h.start()

	err := h.do(func(ctx context.Context) error {
		if err := h.flow.OpenBasket(ctx); err != nil {
			return err
		}
		return h.flow.BeginCheckout(ctx)
	})

	assert.True(t, domain.IsCode(err, domain.EINVALID))
	assert.Equal(t, workflow.StepBasket, h.step())
}

// =============================================================================
// Checkout
// =============================================================================

func TestConfirmDelivery_RequiresPaymentAndAddress(t *testing.T) {
	h := newHarness(t)
	h.toDelivery()

	err := h.do(func(ctx context.Context) error {
		if err := h.flow.SetDelivery(ctx, domain.PaymentUnset, ""); err != nil {
			return err
		}
		return h.flow.ConfirmDelivery(ctx)
	})

	require.True(t, domain.IsValidationError(err))
	assert.Equal(t, map[string]string{
		"address": "address required",
		"payment": "payment required",
	}, domain.GetValidationFields(err))
	assert.Equal(t, workflow.StepDelivery, h.step())
}

func TestConfirmDelivery_IgnoresContactErrors(t *testing.T) {
	h := newHarness(t)
	h.toContacts()

	assert.Equal(t, workflow.StepContacts, h.step())
	assert.True(t, h.store.FormErrors().Has(domain.FieldEmail, domain.FieldPhone))
}

func TestSubmit_ClearsBasketAndConfirms(t *testing.T) {
	h := newHarness(t)
	h.toContacts()
	h.rec.reset()

	require.NoError(t, h.do(func(ctx context.Context) error {
		if err := h.flow.SetContacts(ctx, "a@b.c", "+7 900"); err != nil {
			return err
		}
		return h.flow.Submit(ctx)
	}))
	h.flush()

	require.Len(t, h.orders.submitted, 1)
	sent := h.orders.submitted[0]
	assert.Equal(t, int64(150), sent.Total)
	assert.Equal(t, []string{"p1", "p2"}, sent.Items)
	assert.Equal(t, domain.PaymentOnline, sent.Payment)
	assert.Equal(t, "Street 1", sent.Address)

	assert.Empty(t, h.store.Basket())
	baskets := h.rec.of(bus.TopicBasketChanged)
	require.NotEmpty(t, baskets)
	assert.Empty(t, baskets[len(baskets)-1].Payload.([]domain.Product))

	submitted := h.rec.of(bus.TopicOrderSubmitted)
	require.Len(t, submitted, 1)
	assert.Equal(t, domain.OrderResult{ID: "order-1", Total: 150}, submitted[0].Payload)

	assert.Len(t, h.rec.of(bus.TopicOrderReady), 1)
	assert.Equal(t, workflow.StepConfirmed, h.step())

	var result *domain.OrderResult
	require.NoError(t, h.do(func(ctx context.Context) error {
		result = h.flow.LastResult()
		return h.flow.Finish(ctx)
	}))
	require.NotNil(t, result)
	assert.Equal(t, "order-1", result.ID)
	assert.Equal(t, workflow.StepBrowsing, h.step())
}

func TestSubmit_GateRejectsMissingContacts(t *testing.T) {
	h := newHarness(t)
	h.toContacts()

	err := h.do(func(ctx context.Context) error {
		if err := h.flow.SetContacts(ctx, "a@b.c", ""); err != nil {
			return err
		}
		return h.flow.Submit(ctx)
	})

	require.True(t, domain.IsValidationError(err))
	assert.Equal(t, map[string]string{"phone": "phone required"}, domain.GetValidationFields(err))
	assert.Empty(t, h.orders.submitted)
}

func TestSubmit_FailureLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t)
	h.orders.err = domain.Transport(errors.New("502 bad gateway"), "order.submit", "failed to submit order")
	h.toContacts()

	require.NoError(t, h.do(func(ctx context.Context) error {
		if err := h.flow.SetContacts(ctx, "a@b.c", "+7 900"); err != nil {
			return err
		}
		return h.flow.Submit(ctx)
	}))
	h.flush()

	assert.Len(t, h.store.Basket(), 2)
	assert.Equal(t, []string{"p1", "p2"}, h.store.Order().Items)
	assert.Equal(t, workflow.StepContacts, h.step())
	assert.Empty(t, h.rec.of(bus.TopicOrderSubmitted))
	assert.Len(t, h.rec.of(bus.TopicErrorReported), 1)

	// a retry is accepted once the first attempt has finished
	h.orders.err = nil
	require.NoError(t, h.do(func(ctx context.Context) error {
		return h.flow.Submit(ctx)
	}))
	h.flush()
	assert.Equal(t, workflow.StepConfirmed, h.step())
}

func TestSubmit_RejectsDoubleSubmit(t *testing.T) {
	h := newDeferredHarness(t)
	h.toContacts()

	submit := func(ctx context.Context) error {
		if err := h.flow.SetContacts(ctx, "a@b.c", "+7 900"); err != nil {
			return err
		}
		return h.flow.Submit(ctx)
	}
	require.NoError(t, h.do(submit))

	err := h.do(submit)
	assert.True(t, domain.IsCode(err, domain.ECONFLICT))

	h.deferred.runAll()
	h.flush()
	assert.Len(t, h.orders.submitted, 1)
	assert.Equal(t, workflow.StepConfirmed, h.step())
}

func TestSubmit_LocksBasketAndStepUntilDone(t *testing.T) {
	h := newDeferredHarness(t)
	h.toContacts()

	require.NoError(t, h.do(func(ctx context.Context) error {
		if err := h.flow.SetContacts(ctx, "a@b.c", "+7 900"); err != nil {
			return err
		}
		return h.flow.Submit(ctx)
	}))
	h.rec.reset()

	tests := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"toggle", func(ctx context.Context) error {
			_, err := h.flow.ToggleBasket(ctx, "p2")
			return err
		}},
		{"select card", func(ctx context.Context) error { return h.flow.SelectCard(ctx, "p1") }},
		{"close modal", h.flow.CloseModal},
		{"open basket", h.flow.OpenBasket},
		{"begin checkout", h.flow.BeginCheckout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.do(tt.fn)
			assert.True(t, domain.IsCode(err, domain.ECONFLICT))
			assert.Equal(t, workflow.StepContacts, h.step())
		})
	}
	assert.Len(t, h.store.Basket(), 2)

	h.deferred.runAll()
	h.flush()

	require.Len(t, h.orders.submitted, 1)
	assert.Equal(t, []string{"p1", "p2"}, h.orders.submitted[0].Items)
	assert.Equal(t, int64(150), h.orders.submitted[0].Total)
	assert.Equal(t, workflow.StepConfirmed, h.step())
	assert.NotContains(t, h.rec.topics(), bus.TopicPreviewChanged)

	err := h.do(func(ctx context.Context) error {
		_, err := h.flow.ToggleBasket(ctx, "p2")
		return err
	})
	assert.NoError(t, err, "basket unlocks once the order is confirmed")
}

func TestCommands_RequireStep(t *testing.T) {
	h := newHarness(t)
	h.start()

	tests := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"set delivery", func(ctx context.Context) error { return h.flow.SetDelivery(ctx, domain.PaymentCash, "x") }},
		{"confirm delivery", h.flow.ConfirmDelivery},
		{"set contacts", func(ctx context.Context) error { return h.flow.SetContacts(ctx, "a", "b") }},
		{"submit", h.flow.Submit},
		{"finish", h.flow.Finish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.do(tt.fn)
			assert.True(t, domain.IsCode(err, domain.ECONFLICT))
		})
	}
}

// =============================================================================
// Intents
// =============================================================================

func TestBind_IntentsPostCommands(t *testing.T) {
	h := newHarness(t)
	h.start()
	subs := h.flow.Bind(h.bus)
	ctx := context.Background()

	h.bus.Trigger(bus.TopicCardSelect, nil)(ctx, "p1")
	h.flush()
	assert.Equal(t, workflow.StepPreview, h.step())

	h.bus.Publish(ctx, bus.TopicBasketToggle, "p1")
	h.flush()
	assert.True(t, h.store.InBasket("p1"))

	h.bus.Publish(ctx, bus.TopicBasketOpen, nil)
	h.flush()
	assert.Equal(t, workflow.StepBasket, h.step())
	assert.Nil(t, h.store.Preview())

	h.bus.Publish(ctx, bus.TopicOrderOpen, nil)
	h.flush()
	assert.Equal(t, workflow.StepDelivery, h.step())

	h.bus.Publish(ctx, bus.TopicModalClose, nil)
	h.flush()
	assert.Equal(t, workflow.StepBrowsing, h.step())

	for _, sub := range subs {
		assert.True(t, h.bus.Unsubscribe(sub))
	}
}

func TestBind_IntentErrorsAreReported(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.flow.Bind(h.bus)

	h.bus.Publish(context.Background(), bus.TopicBasketToggle, "p3")
	h.flush()

	assert.Empty(t, h.store.Basket())
	assert.Len(t, h.rec.of(bus.TopicErrorReported), 1)
}
