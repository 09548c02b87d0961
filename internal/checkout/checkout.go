// internal/checkout/checkout.go
//
// Checkout quoting and payment-session creation.
//
// Context
// -------
// Quote() is the pure half: product price plus optional voucher, computed
// with the side-effect-free voucher calculation so the cart can re-quote
// on every edit.  Begin() is the effectful half: it creates a checkout
// session with the payment provider and returns the redirect URL.  Actual
// redemption commit (incrementing voucher uses, activating the server)
// happens in the provider's webhook, outside this panel.
package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yanizio/gamehost/internal/product"
	"github.com/yanizio/gamehost/internal/voucher"
)

// ErrUnknownVoucher is returned when the submitted code matches nothing.
var ErrUnknownVoucher = errors.New("checkout: unknown voucher code")

// Session is the provider-side checkout session.
type Session struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
}

// SessionRequest is what the provider needs to open a session.
type SessionRequest struct {
	Amount      decimal.Decimal
	Description string
	UserID      uint64
}

// Provider creates checkout sessions.  The concrete HTTP implementation
// lives in provider.go; tests substitute a stub.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// Quote is the computed price for one product + optional voucher.
type Quote struct {
	ProductID uint64          `json:"product_id"`
	Amount    decimal.Decimal `json:"amount"`
	Savings   decimal.Decimal `json:"savings"`
}

// Vouchers is the read side of the voucher store.
type Vouchers interface {
	ByCode(ctx context.Context, code string) (*voucher.Voucher, error)
}

// Products is the read side of the product catalog.
type Products interface {
	ByID(ctx context.Context, id uint64) (*product.Product, error)
}

// Service glues catalog, voucher calculation, and the payment provider.
type Service struct {
	products Products
	vouchers Vouchers
	provider Provider
	log      *zap.SugaredLogger
}

// New wires a Service.
func New(products Products, vouchers Vouchers, provider Provider, log *zap.SugaredLogger) *Service {
	return &Service{products: products, vouchers: vouchers, provider: provider, log: log}
}

// Quote prices productID with voucherCode applied ("" for none).  Pure
// with respect to vouchers: repeated calls never consume a use.
func (s *Service) Quote(ctx context.Context, productID uint64, voucherCode string) (*Quote, error) {
	p, err := s.products.ByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	q := &Quote{
		ProductID: p.ID,
		Amount:    p.PriceMonthly.Round(2),
		Savings:   decimal.Zero.Round(2),
	}
	if voucherCode == "" {
		return q, nil
	}

	v, err := s.vouchers.ByCode(ctx, voucherCode)
	if err != nil {
		if errors.Is(err, voucher.ErrNoRow) {
			return nil, ErrUnknownVoucher
		}
		return nil, err
	}
	res, err := voucher.Apply(v, p.PriceMonthly, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	q.Amount = res.DiscountedAmount
	q.Savings = res.Savings
	return q, nil
}

// Begin quotes the purchase and opens a provider session for the final
// amount.  The caller redirects the user to Session.RedirectURL.
func (s *Service) Begin(ctx context.Context, userID, productID uint64, voucherCode string) (*Session, *Quote, error) {
	q, err := s.Quote(ctx, productID, voucherCode)
	if err != nil {
		return nil, nil, err
	}

	p, err := s.products.ByID(ctx, productID)
	if err != nil {
		return nil, nil, err
	}

	sess, err := s.provider.CreateSession(ctx, SessionRequest{
		Amount:      q.Amount,
		Description: p.Name,
		UserID:      userID,
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Infow("checkout session created",
		"session_id", sess.ID, "user_id", userID, "product_id", productID,
		"amount", q.Amount.String())
	return sess, q, nil
}
