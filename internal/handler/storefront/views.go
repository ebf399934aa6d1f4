package storefront

import (
	"strconv"
	"strings"

	"github.com/dukerupert/larek/internal/domain"
	"github.com/dukerupert/larek/internal/store"
	"github.com/dukerupert/larek/internal/workflow"
)

const (
	buttonBuy         = "Купить"
	buttonRemove      = "Удалить из корзины"
	buttonUnavailable = "Недоступно"
)

// CardView is a product as a catalog card or preview shows it.
type CardView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image"`
	Category    string `json:"category"`
	Tag         string `json:"tag"`
	Price       string `json:"price"`
	InBasket    bool   `json:"in_basket"`
	Button      string `json:"button"`
	CanBuy      bool   `json:"can_buy"`
}

// BasketLine is one row of the basket.
type BasketLine struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Title string `json:"title"`
	Price string `json:"price"`
}

// BasketView is the basket modal.
type BasketView struct {
	Items       []BasketLine `json:"items"`
	Count       int          `json:"count"`
	Total       int64        `json:"total"`
	TotalLabel  string       `json:"total_label"`
	CanCheckout bool         `json:"can_checkout"`
}

// FormView is one checkout form with the errors relevant to it.
type FormView struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors"`
	Text   string            `json:"text"`
}

// OrderView is the draft order and both checkout forms.
type OrderView struct {
	Payment  domain.PaymentMethod `json:"payment"`
	Address  string               `json:"address"`
	Email    string               `json:"email"`
	Phone    string               `json:"phone"`
	Delivery FormView             `json:"delivery"`
	Contacts FormView             `json:"contacts"`
}

// SuccessView is the confirmation shown after an order is accepted.
type SuccessView struct {
	ID          string `json:"id"`
	Total       int64  `json:"total"`
	Description string `json:"description"`
}

// StateView is everything a client needs to render the page.
type StateView struct {
	Step       workflow.Step `json:"step"`
	Locked     bool          `json:"locked"`
	Loading    bool          `json:"loading"`
	Counter    int           `json:"counter"`
	Catalog    []CardView    `json:"catalog"`
	Preview    *CardView     `json:"preview"`
	Basket     BasketView    `json:"basket"`
	Order      OrderView     `json:"order"`
	Submitting bool          `json:"submitting"`
	Success    *SuccessView  `json:"success,omitempty"`
}

func newCardView(item domain.CatalogItem, inBasket bool) CardView {
	v := CardView{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		Image:       item.Image,
		Category:    string(item.Category),
		Tag:         string(item.Tag),
		Price:       item.PriceLabel(),
		InBasket:    inBasket,
		CanBuy:      !item.Priceless(),
	}
	switch {
	case item.Priceless():
		v.Button = buttonUnavailable
	case inBasket:
		v.Button = buttonRemove
	default:
		v.Button = buttonBuy
	}
	return v
}

func catalogView(s *store.Store) []CardView {
	items := s.Catalog()
	cards := make([]CardView, len(items))
	for i, item := range items {
		cards[i] = newCardView(item, s.InBasket(item.ID))
	}
	return cards
}

func previewView(s *store.Store) *CardView {
	item := s.Preview()
	if item == nil {
		return nil
	}
	v := newCardView(*item, s.InBasket(item.ID))
	return &v
}

func basketView(s *store.Store) BasketView {
	basket := s.Basket()
	lines := make([]BasketLine, len(basket))
	for i, p := range basket {
		lines[i] = BasketLine{
			Index: i + 1,
			ID:    p.ID,
			Title: p.Title,
			Price: p.PriceLabel(),
		}
	}
	total := s.Total()
	return BasketView{
		Items:       lines,
		Count:       len(basket),
		Total:       total,
		TotalLabel:  strconv.FormatInt(total, 10) + " синапсов",
		CanCheckout: len(basket) > 0 && total > 0,
	}
}

func orderView(s *store.Store) OrderView {
	order := s.Order()
	errs := s.FormErrors()

	delivery := errs.Only(domain.FieldAddress)
	deliveryValid := len(delivery) == 0 && order.Payment.Valid()

	contacts := errs.Only(domain.FieldEmail, domain.FieldPhone)

	return OrderView{
		Payment:  order.Payment,
		Address:  order.Address,
		Email:    order.Email,
		Phone:    order.Phone,
		Delivery: formView(delivery, deliveryValid && order.Address != ""),
		Contacts: formView(contacts, len(contacts) == 0 && order.Email != "" && order.Phone != ""),
	}
}

func formView(errs domain.FormErrors, valid bool) FormView {
	fields := make(map[string]string, len(errs))
	// fixed order so the joined text is stable
	var parts []string
	for _, f := range []domain.OrderField{domain.FieldPayment, domain.FieldAddress, domain.FieldEmail, domain.FieldPhone} {
		if msg, ok := errs[f]; ok {
			fields[string(f)] = msg
			parts = append(parts, msg)
		}
	}
	return FormView{
		Valid:  valid,
		Errors: fields,
		Text:   strings.Join(parts, "; "),
	}
}

func successView(res *domain.OrderResult) *SuccessView {
	if res == nil {
		return nil
	}
	return &SuccessView{
		ID:          res.ID,
		Total:       res.Total,
		Description: "Списано " + strconv.FormatInt(res.Total, 10) + " синапсов",
	}
}

// stateView must be called on the loop goroutine.
func stateView(s *store.Store, f *workflow.Flow) StateView {
	step := f.Step()
	v := StateView{
		Step:       step,
		Locked:     step != workflow.StepBrowsing,
		Loading:    s.Loading(),
		Counter:    s.BasketSize(),
		Catalog:    catalogView(s),
		Preview:    previewView(s),
		Basket:     basketView(s),
		Order:      orderView(s),
		Submitting: f.Submitting(),
	}
	if step == workflow.StepConfirmed {
		v.Success = successView(f.LastResult())
	}
	return v
}
