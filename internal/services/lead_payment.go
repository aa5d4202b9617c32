package services

import (
	"context"
	"fmt"
	"time"

	"bazaar/leadhub/internal/config"
	"bazaar/leadhub/internal/payment"
	"bazaar/leadhub/internal/utils"
)

// Window is the acceptance phase an inquiry is in.
type Window int

const (
	WindowFree Window = iota
	WindowPaid
	WindowExpired
)

func (w Window) String() string {
	switch w {
	case WindowFree:
		return "free"
	case WindowPaid:
		return "paid"
	}
	return "expired"
}

// DecideWindow classifies an inquiry by age. Both bounds are inclusive.
func DecideWindow(createdAt, now time.Time, free, total time.Duration) Window {
	age := now.Sub(createdAt)
	switch {
	case age <= free:
		return WindowFree
	case age <= total:
		return WindowPaid
	}
	return WindowExpired
}

// Pricing is the public description of the lead price and windows.
type Pricing struct {
	LeadPrice         float64 `json:"lead_price"`
	LeadPricePaise    int     `json:"lead_price_paise"`
	FreePeriodMinutes int     `json:"free_period_minutes"`
	PaidPeriodHours   int     `json:"paid_period_hours"`
	Currency          string  `json:"currency"`
}

// PaymentProof is what the checkout returns after a successful payment.
type PaymentProof struct {
	OrderID   string `json:"razorpay_order_id" binding:"required"`
	PaymentID string `json:"razorpay_payment_id" binding:"required"`
	Signature string `json:"razorpay_signature" binding:"required"`
}

// ILeadPaymentGate decides when accepting a lead costs money and handles the order.
type ILeadPaymentGate interface {
	Window(ctx context.Context, createdAt, now time.Time) Window
	Pricing(ctx context.Context) Pricing
	CreateOrder(ctx context.Context, inquiryID, responderID utils.SixID, now time.Time) (*payment.Order, error)
	Verify(ctx context.Context, proof PaymentProof) bool
}

type leadPaymentGate struct {
	cfg      *config.Config
	settings ISettingsService
	gateway  payment.Gateway
}

func NewLeadPaymentGate(cfg *config.Config, settings ISettingsService, gateway payment.Gateway) ILeadPaymentGate {
	return &leadPaymentGate{cfg: cfg, settings: settings, gateway: gateway}
}

func (g *leadPaymentGate) windows(ctx context.Context) (time.Duration, time.Duration) {
	free := g.settings.GetDuration(ctx, SettingFreeWindowMinutes, time.Minute, g.cfg.FreeWindow)
	total := g.settings.GetDuration(ctx, SettingPaidWindowHours, time.Hour, g.cfg.PaidWindow)
	if total < free {
		total = free
	}
	return free, total
}

func (g *leadPaymentGate) Window(ctx context.Context, createdAt, now time.Time) Window {
	free, total := g.windows(ctx)
	return DecideWindow(createdAt, now, free, total)
}

func (g *leadPaymentGate) Pricing(ctx context.Context) Pricing {
	paise := g.settings.GetInt(ctx, SettingLeadPricePaise, g.cfg.LeadPricePaise)
	free, total := g.windows(ctx)
	return Pricing{
		LeadPrice:         float64(paise) / 100,
		LeadPricePaise:    paise,
		FreePeriodMinutes: int(free / time.Minute),
		PaidPeriodHours:   int(total / time.Hour),
		Currency:          g.settings.GetString(ctx, SettingLeadCurrency, g.cfg.LeadCurrency),
	}
}

func (g *leadPaymentGate) CreateOrder(ctx context.Context, inquiryID, responderID utils.SixID, now time.Time) (*payment.Order, error) {
	pricing := g.Pricing(ctx)
	order, err := g.gateway.CreateOrder(ctx, payment.OrderRequest{
		AmountPaise: pricing.LeadPricePaise,
		Currency:    pricing.Currency,
		Receipt:     payment.Receipt(inquiryID, responderID, now),
		Notes: map[string]string{
			"inquiry_id": inquiryID.String(),
			"user_id":    responderID.String(),
			"type":       "lead_purchase",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lead order for inquiry %s: %w", inquiryID, err)
	}
	return order, nil
}

func (g *leadPaymentGate) Verify(ctx context.Context, proof PaymentProof) bool {
	return g.gateway.VerifySignature(proof.OrderID, proof.PaymentID, proof.Signature)
}
