package repository

import (
	"context"

	"webshop/internal/domain/model"
)

type CartItemRepository interface {
	ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error)
	// 同一商品は数量加算。行ロックで直列化し、同時追加でも加算が落ちない。
	UpsertAddQuantity(ctx context.Context, cartID int64, productID int64, addQty int64) error
	// 無ければErrNotFound（no-opにするかは呼び出し側が決める）
	DeleteByCartAndProduct(ctx context.Context, cartID int64, productID int64) error
}
