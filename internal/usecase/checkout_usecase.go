package usecase

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// 決済ゲートウェイに渡す明細
type GatewayLineItem struct {
	Name        string
	Description string
	UnitAmount  int64 // 最小通貨単位
	Quantity    int64
	Currency    string
}

// 外部の決済プロバイダ。1回のチェックアウトにつき1セッション。
type PaymentGateway interface {
	CreateSession(ctx context.Context, items []GatewayLineItem, successURL string, cancelURL string) (string, error)
}

type CheckoutUsecase struct {
	cart     *CartUsecase
	gateway  PaymentGateway
	currency string
}

// DI
func NewCheckoutUsecase(cart *CartUsecase, gateway PaymentGateway, currency string) *CheckoutUsecase {
	return &CheckoutUsecase{cart: cart, gateway: gateway, currency: currency}
}

type CheckoutOutput struct {
	SessionID string             `json:"session_id"`
	Total     int64              `json:"total"`
	Items     []CartItemResponse `json:"items"`
	// 注文確定（POST /orders）でそのまま使うキー
	IdempotencyKey string `json:"idempotency_key"`
}

// StartCheckout はresolve済みカートから合計と明細を組み立てて
// ゲートウェイセッションを1つ作る。失敗しても状態は何も書かない。
func (u *CheckoutUsecase) StartCheckout(ctx context.Context, userID int64, successURL string, cancelURL string) (CheckoutOutput, error) {
	if userID <= 0 {
		return CheckoutOutput{}, &UnauthorizedError{Reason: "unauthorized"}
	}
	if strings.TrimSpace(successURL) == "" || strings.TrimSpace(cancelURL) == "" {
		return CheckoutOutput{}, &ValidationError{Reason: "success_url and cancel_url required"}
	}

	resolved, err := u.cart.Resolve(ctx, userID)
	if err != nil {
		return CheckoutOutput{}, err
	}
	if len(resolved) == 0 {
		return CheckoutOutput{}, &ValidationError{Reason: "cart empty"}
	}

	lineItems := make([]GatewayLineItem, 0, len(resolved))
	var total int64 = 0

	for _, r := range resolved {
		lineItems = append(lineItems, GatewayLineItem{
			Name:        r.Product.Title,
			Description: r.Product.Description,
			UnitAmount:  r.Product.Price,
			Quantity:    r.Quantity,
			Currency:    u.currency,
		})
		total += r.Product.Price * r.Quantity
	}

	sessionID, err := u.gateway.CreateSession(ctx, lineItems, successURL, cancelURL)
	if err != nil {
		return CheckoutOutput{}, &PaymentGatewayError{Err: err}
	}

	return CheckoutOutput{
		SessionID:      sessionID,
		Total:          total,
		Items:          buildCartResponse(resolved).Items,
		IdempotencyKey: uuid.NewString(),
	}, nil
}
