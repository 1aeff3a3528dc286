package repository

import (
	"context"
	"time"

	"webshop/internal/domain/model"
)

type CartRepository interface {
	GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error)
	FindByUserID(ctx context.Context, userID int64) (model.Cart, error)
	// 明細を全削除する（カート自体は残す）
	Clear(ctx context.Context, cartID int64) error
	// beforeより古い明細だけを削除する。
	// 注文確定後のクリアに使う：それ以降に入れ直された明細は消さない。
	ClearOlderThan(ctx context.Context, cartID int64, before time.Time) error
}
