// Package workflow drives the storefront: it loads the catalog, opens
// previews, toggles basket items and walks the buyer through the two-step
// checkout. Every command runs on a Loop, so the store sees one writer.
package workflow

import (
	"context"
	"log/slog"

	"github.com/dukerupert/larek/internal/bus"
	"github.com/dukerupert/larek/internal/domain"
	"github.com/dukerupert/larek/internal/store"
)

// Step is the screen the buyer is on.
type Step string

const (
	StepBrowsing  Step = "browsing"
	StepPreview   Step = "preview"
	StepBasket    Step = "basket"
	StepDelivery  Step = "delivery"
	StepContacts  Step = "contacts"
	StepConfirmed Step = "confirmed"
)

// Flow owns the checkout step machine. Its command methods must be called on
// the loop goroutine, either from a task passed to Loop.Do or Loop.Post, or
// through the intents registered by Bind.
type Flow struct {
	store   *store.Store
	bus     *bus.Bus
	catalog domain.CatalogSource
	orders  domain.OrderSink
	loop    *Loop
	logger  *slog.Logger
	spawn   func(func())

	step       Step
	submitting bool
	lastResult *domain.OrderResult
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithLogger sets the flow logger.
func WithLogger(logger *slog.Logger) FlowOption {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithSpawn replaces the function used to start background fetches.
// Tests pass a synchronous runner.
func WithSpawn(spawn func(func())) FlowOption {
	return func(f *Flow) {
		if spawn != nil {
			f.spawn = spawn
		}
	}
}

// NewFlow creates a flow in the browsing step.
func NewFlow(s *store.Store, b *bus.Bus, catalog domain.CatalogSource, orders domain.OrderSink, loop *Loop, opts ...FlowOption) *Flow {
	f := &Flow{
		store:   s,
		bus:     b,
		catalog: catalog,
		orders:  orders,
		loop:    loop,
		logger:  slog.Default(),
		spawn:   func(fn func()) { go fn() },
		step:    StepBrowsing,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Step returns the current step.
func (f *Flow) Step() Step {
	return f.step
}

// Submitting reports whether an order submission is in flight.
func (f *Flow) Submitting() bool {
	return f.submitting
}

// LastResult returns the confirmation of the last successful order, if any.
func (f *Flow) LastResult() *domain.OrderResult {
	if f.lastResult == nil {
		return nil
	}
	res := *f.lastResult
	return &res
}

// Start turns loading on and fetches the catalog in the background. On
// success the catalog is replaced; on failure it is left as it was and the
// error is reported. Loading is turned off either way.
func (f *Flow) Start(ctx context.Context) {
	f.store.SetLoading(ctx, true)
	bg := context.WithoutCancel(ctx)

	f.spawn(func() {
		products, err := f.catalog.ListProducts(bg)
		f.loop.Post(func(ctx context.Context) {
			defer f.store.SetLoading(ctx, false)
			if err != nil {
				f.report(ctx, err)
				return
			}
			f.store.SetCatalog(ctx, products)
			f.logger.Info("catalog loaded", "products", len(products))
		})
	})
}

// SelectCard opens the preview for a product and fetches its full
// description. A response that arrives after the preview moved on still
// updates the catalog but does not re-render the preview.
func (f *Flow) SelectCard(ctx context.Context, id string) error {
	const op = "workflow.select_card"

	if err := f.requireIdle(op); err != nil {
		return err
	}
	token, ok := f.store.SelectPreview(ctx, id)
	if !ok {
		return domain.NotFound(op, "product", id)
	}
	f.setStep(ctx, StepPreview)

	bg := context.WithoutCancel(ctx)
	f.spawn(func() {
		p, err := f.catalog.GetProduct(bg, id)
		f.loop.Post(func(ctx context.Context) {
			if err != nil {
				f.report(ctx, err)
				return
			}
			f.store.UpdateProductDescription(ctx, token, id, p.Description)
		})
	})
	return nil
}

// CloseModal closes whatever modal is open and returns to browsing. Closing
// the confirmation behaves like Finish.
func (f *Flow) CloseModal(ctx context.Context) error {
	if err := f.requireIdle("workflow.close_modal"); err != nil {
		return err
	}
	if f.store.Preview() != nil {
		f.store.ClosePreview(ctx)
	}
	f.setStep(ctx, StepBrowsing)
	return nil
}

// ToggleBasket adds the product to the basket or removes it if present.
// It returns whether the product is in the basket afterwards.
func (f *Flow) ToggleBasket(ctx context.Context, id string) (bool, error) {
	const op = "workflow.toggle_basket"

	if err := f.requireIdle(op); err != nil {
		return false, err
	}
	item, ok := f.store.Product(id)
	if !ok {
		return false, domain.NotFound(op, "product", id)
	}
	if item.Priceless() {
		return false, domain.Invalid(op, "product is not for sale")
	}
	return f.store.ToggleBasket(ctx, item.Product), nil
}

// OpenBasket closes any preview and shows the basket.
func (f *Flow) OpenBasket(ctx context.Context) error {
	if err := f.requireIdle("workflow.open_basket"); err != nil {
		return err
	}
	if f.store.Preview() != nil {
		f.store.ClosePreview(ctx)
	}
	f.setStep(ctx, StepBasket)
	return nil
}

// BeginCheckout moves from the basket to the delivery step.
func (f *Flow) BeginCheckout(ctx context.Context) error {
	const op = "workflow.begin_checkout"

	if err := f.requireIdle(op); err != nil {
		return err
	}
	if f.store.BasketSize() == 0 {
		return domain.Invalid(op, "basket is empty")
	}
	if f.store.Total() <= 0 {
		return domain.Invalid(op, "basket total must be positive")
	}
	if f.store.Preview() != nil {
		f.store.ClosePreview(ctx)
	}
	f.setStep(ctx, StepDelivery)
	return nil
}

// SetDelivery records the payment method and address. An empty payment
// leaves the current choice unchanged.
func (f *Flow) SetDelivery(ctx context.Context, payment domain.PaymentMethod, address string) error {
	const op = "workflow.set_delivery"

	if err := f.requireStep(op, StepDelivery); err != nil {
		return err
	}
	if payment != domain.PaymentUnset {
		if err := f.store.SetOrderField(ctx, domain.FieldPayment, string(payment)); err != nil {
			return err
		}
	}
	return f.store.SetOrderField(ctx, domain.FieldAddress, address)
}

// ConfirmDelivery advances to the contacts step once the address is valid
// and a payment method is chosen.
func (f *Flow) ConfirmDelivery(ctx context.Context) error {
	const op = "workflow.confirm_delivery"

	if err := f.requireStep(op, StepDelivery); err != nil {
		return err
	}

	f.store.ValidateOrder(ctx)
	errs := f.store.FormErrors().Only(domain.FieldAddress)
	if f.store.Order().Payment == domain.PaymentUnset {
		errs[domain.FieldPayment] = string(domain.FieldPayment) + " required"
	}
	if len(errs) > 0 {
		return gateError(op, errs)
	}

	f.setStep(ctx, StepContacts)
	return nil
}

// SetContacts records the buyer's email and phone.
func (f *Flow) SetContacts(ctx context.Context, email, phone string) error {
	const op = "workflow.set_contacts"

	if err := f.requireStep(op, StepContacts); err != nil {
		return err
	}
	if err := f.store.SetOrderField(ctx, domain.FieldEmail, email); err != nil {
		return err
	}
	return f.store.SetOrderField(ctx, domain.FieldPhone, phone)
}

// Submit prepares the order from the basket and sends it in the background.
// On success the basket is cleared and the flow moves to confirmed. On
// failure the basket, order and step are left as they were.
func (f *Flow) Submit(ctx context.Context) error {
	const op = "workflow.submit"

	if err := f.requireStep(op, StepContacts); err != nil {
		return err
	}
	if f.submitting {
		return domain.Conflict(op, "order is already being submitted")
	}

	f.store.ValidateOrder(ctx)
	if errs := f.store.FormErrors().Only(domain.FieldEmail, domain.FieldPhone, domain.FieldAddress); len(errs) > 0 {
		return gateError(op, errs)
	}

	order := f.store.PrepareOrder()
	f.submitting = true
	bg := context.WithoutCancel(ctx)

	f.spawn(func() {
		result, err := f.orders.SubmitOrder(bg, order)
		f.loop.Post(func(ctx context.Context) {
			f.submitting = false
			if err != nil {
				f.report(ctx, err)
				return
			}
			f.complete(ctx, result)
		})
	})
	return nil
}

// Finish dismisses the confirmation and returns to browsing.
func (f *Flow) Finish(ctx context.Context) error {
	if err := f.requireStep("workflow.finish", StepConfirmed); err != nil {
		return err
	}
	f.setStep(ctx, StepBrowsing)
	return nil
}

// Bind subscribes the flow to view intents. Each intent posts its command
// onto the loop. The returned subscriptions can be passed to Unsubscribe.
func (f *Flow) Bind(b *bus.Bus) []bus.Subscription {
	return []bus.Subscription{
		bus.On(b, bus.Exact(bus.TopicCardSelect), func(_ context.Context, id string) error {
			f.loop.Post(func(ctx context.Context) {
				f.intentFailed(ctx, f.SelectCard(ctx, id))
			})
			return nil
		}),
		bus.On(b, bus.Exact(bus.TopicBasketToggle), func(_ context.Context, id string) error {
			f.loop.Post(func(ctx context.Context) {
				_, err := f.ToggleBasket(ctx, id)
				f.intentFailed(ctx, err)
			})
			return nil
		}),
		b.Subscribe(bus.Exact(bus.TopicBasketOpen), func(context.Context, bus.Event) error {
			f.loop.Post(func(ctx context.Context) {
				f.intentFailed(ctx, f.OpenBasket(ctx))
			})
			return nil
		}),
		b.Subscribe(bus.Exact(bus.TopicOrderOpen), func(context.Context, bus.Event) error {
			f.loop.Post(func(ctx context.Context) {
				f.intentFailed(ctx, f.BeginCheckout(ctx))
			})
			return nil
		}),
		b.Subscribe(bus.Exact(bus.TopicModalClose), func(context.Context, bus.Event) error {
			f.loop.Post(func(ctx context.Context) {
				f.intentFailed(ctx, f.CloseModal(ctx))
			})
			return nil
		}),
	}
}

func (f *Flow) complete(ctx context.Context, result domain.OrderResult) {
	f.store.ClearBasket()
	f.bus.Publish(ctx, bus.TopicBasketChanged, f.store.Basket())
	f.bus.Publish(ctx, bus.TopicOrderSubmitted, result)

	f.lastResult = &result
	f.logger.Info("order submitted", "order_id", result.ID, "total", result.Total)
	f.setStep(ctx, StepConfirmed)
}

func (f *Flow) setStep(ctx context.Context, step Step) {
	if f.step == step {
		return
	}
	f.logger.Debug("step changed", "from", f.step, "to", step)
	f.step = step
	f.bus.Publish(ctx, bus.TopicStepChanged, step)
}

func (f *Flow) requireStep(op string, step Step) error {
	if f.step != step {
		return domain.Errorf(domain.ECONFLICT, op, "not allowed in step %s", f.step)
	}
	return nil
}

// requireIdle rejects commands that would change the basket or step while
// the order sent from them is in flight.
func (f *Flow) requireIdle(op string) error {
	if f.submitting {
		return domain.Conflict(op, "order is being submitted")
	}
	return nil
}

// report logs a background failure and publishes it on error:reported.
func (f *Flow) report(ctx context.Context, err error) {
	f.logger.Error("background request failed",
		"op", domain.ErrorOp(err),
		"code", domain.ErrorCode(err),
		"error", err,
	)
	f.bus.Publish(ctx, bus.TopicErrorReported, err)
}

// intentFailed reports command errors raised by bus intents, which have no
// caller to return them to.
func (f *Flow) intentFailed(ctx context.Context, err error) {
	if err != nil {
		f.report(ctx, err)
	}
}

func gateError(op string, errs domain.FormErrors) error {
	fields := make(map[string]string, len(errs))
	for field, msg := range errs {
		fields[string(field)] = msg
	}
	return &domain.ValidationError{Op: op, Fields: fields}
}
