package usecase

import (
	"context"
	"strings"
	"time"

	"webshop/internal/domain/model"
	repo "webshop/internal/repository"

	"github.com/sirupsen/logrus"
)

// OrderUsecase はカートを不変の注文に変換する。
// 注文＋明細の作成は1トランザクション、カートのクリアはその後の別操作。
type OrderUsecase struct {
	tx       repo.TransactionManager
	cartRepo repo.CartRepository
	log      *logrus.Logger
}

func NewOrderUsecase(tx repo.TransactionManager, cartRepo repo.CartRepository, log *logrus.Logger) *OrderUsecase {
	return &OrderUsecase{tx: tx, cartRepo: cartRepo, log: log}
}

type PlaceOrderInput struct {
	IdempotencyKey string
}

type OrderItemOutput struct {
	ProductID   int64  `json:"product_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
}

type OrderOutput struct {
	ID         int64             `json:"id"`
	UserID     int64             `json:"user_id"`
	UserEmail  string            `json:"user_email"`
	TotalPrice int64             `json:"total_price"`
	CreatedAt  time.Time         `json:"created_at"`
	Items      []OrderItemOutput `json:"items"`
}

// PlaceOrder はresolve済みカートをスナップショットして注文を作る。
// 同じキーの再実行は同じ注文を返す（クリア失敗後のリトライがここで治る）。
func (u *OrderUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, &UnauthorizedError{Reason: "unauthorized"}
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" || len(key) > 255 {
		return OrderOutput{}, &ValidationError{Reason: "invalid idempotency_key"}
	}

	var out OrderOutput
	var clearCartID int64 = 0
	var clearBefore time.Time

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じキーなら同じ結果
		existing, found, err := r.Orders().FindByIdempotencyKey(ctx, userID, key)
		if err != nil {
			return &PersistenceError{Op: "find order by key", Err: err}
		}
		if found {
			items, err := r.OrderItems().ListByOrderID(ctx, existing.ID)
			if err != nil {
				return &PersistenceError{Op: "list order items", Err: err}
			}
			out = toOrderOutput(existing, items)

			//前回クリアに失敗していた場合に備えて、注文より古い明細だけを
			//もう一度クリア対象にする。注文後に入れ直した明細は消さない。
			if cart, err := r.Carts().FindByUserID(ctx, userID); err == nil {
				clearCartID = cart.ID
				clearBefore = existing.CreatedAt
			}
			return nil
		}

		//カート取得
		cart, err := r.Carts().FindByUserID(ctx, userID)
		if err == repo.ErrNotFound {
			return &ValidationError{Reason: "cart empty"}
		}
		if err != nil {
			return &PersistenceError{Op: "find cart", Err: err}
		}

		cartItems, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return &PersistenceError{Op: "list cart items", Err: err}
		}

		//スナップショット境界：ここで商品の全フィールドをコピーする。
		//以後この注文が元のProductを読むことはない。
		orderItems := make([]model.OrderItem, 0, len(cartItems))
		var total int64 = 0
		now := time.Now()

		for _, ci := range cartItems {
			p, err := r.Products().FindByID(ctx, ci.ProductID)
			if err == repo.ErrNotFound {
				//消えた商品の明細はスキップ（resolveと同じ扱い）
				continue
			}
			if err != nil {
				return &PersistenceError{Op: "find product", Err: err}
			}

			orderItems = append(orderItems, model.OrderItem{
				ProductID:           p.ID,
				TitleSnapshot:       p.Title,
				DescriptionSnapshot: p.Description,
				ImageURLSnapshot:    p.ImageURL,
				UnitPriceSnapshot:   p.Price,
				Quantity:            ci.Quantity,
				CreatedAt:           now,
			})

			total += p.Price * ci.Quantity
		}

		if len(orderItems) == 0 {
			return &ValidationError{Reason: "cart empty"}
		}

		//emailも作成時点でスナップショット
		buyer, err := r.Users().FindByID(ctx, userID)
		if err == repo.ErrNotFound {
			return &NotFoundError{Resource: "user"}
		}
		if err != nil {
			return &PersistenceError{Op: "find user", Err: err}
		}

		orderID, err := r.Orders().Create(ctx, model.Order{
			UserID:         userID,
			UserEmail:      buyer.Email,
			TotalPrice:     total,
			IdempotencyKey: key,
			CreatedAt:      now,
		})
		if err != nil {
			//競合（同時に同じキーが入った等）はもう一回検索して同じ結果を返す
			ex2, found2, err2 := r.Orders().FindByIdempotencyKey(ctx, userID, key)
			if err2 == nil && found2 {
				items2, err3 := r.OrderItems().ListByOrderID(ctx, ex2.ID)
				if err3 != nil {
					return &PersistenceError{Op: "list order items", Err: err3}
				}
				out = toOrderOutput(ex2, items2)
				clearCartID = cart.ID
				clearBefore = ex2.CreatedAt
				return nil
			}
			return &PersistenceError{Op: "create order", Err: err}
		}

		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return &PersistenceError{Op: "create order items", Err: err}
		}

		created := model.Order{
			ID:         orderID,
			UserID:     userID,
			UserEmail:  buyer.Email,
			TotalPrice: total,
			CreatedAt:  now,
		}
		out = toOrderOutput(created, orderItems)
		clearCartID = cart.ID
		clearBefore = now
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}

	//注文は確定済みなので、クリア失敗は注文の失敗にしない。
	//ログに残し、同じキーでのリトライ時に再クリアされる。
	//クリアするのは注文より古い明細だけ。
	if clearCartID != 0 {
		if err := u.cartRepo.ClearOlderThan(ctx, clearCartID, clearBefore); err != nil && err != repo.ErrNotFound {
			u.log.WithFields(logrus.Fields{
				"user_id": userID,
				"cart_id": clearCartID,
				"error":   err,
			}).Warn("cart clear after order failed; retried on next attempt with same key")
		}
	}

	return out, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64) ([]OrderOutput, error) {
	if userID <= 0 {
		return []OrderOutput{}, &UnauthorizedError{Reason: "unauthorized"}
	}

	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListByUserID(ctx, userID, 1, 50)
		if err != nil {
			return &PersistenceError{Op: "list orders", Err: err}
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return &PersistenceError{Op: "list order items", Err: err}
			}
			outs = append(outs, toOrderOutput(o, items))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, &UnauthorizedError{Reason: "unauthorized"}
	}
	if orderID <= 0 {
		return OrderOutput{}, &ValidationError{Reason: "invalid id"}
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return &NotFoundError{Resource: "order"}
		}
		if err != nil {
			return &PersistenceError{Op: "find order", Err: err}
		}
		if o.UserID != userID {
			//他人の注文は「存在しない扱い」にする
			return &NotFoundError{Resource: "order"}
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return &PersistenceError{Op: "list order items", Err: err}
		}

		out = toOrderOutput(o, items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID:   it.ProductID,
			Title:       it.TitleSnapshot,
			Description: it.DescriptionSnapshot,
			ImageURL:    it.ImageURLSnapshot,
			Price:       it.UnitPriceSnapshot,
			Quantity:    it.Quantity,
		})
	}

	return OrderOutput{
		ID:         o.ID,
		UserID:     o.UserID,
		UserEmail:  o.UserEmail,
		TotalPrice: o.TotalPrice,
		CreatedAt:  o.CreatedAt,
		Items:      outItems,
	}
}
