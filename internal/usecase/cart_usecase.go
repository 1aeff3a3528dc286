package usecase

import (
	"context"

	"webshop/internal/domain/model"
	repo "webshop/internal/repository"
)

// CartUsecase はカートの変更と、カタログへの結合（resolve）を持つ。
// カートが持つのは商品IDと数量だけで、価格は常にresolveで引き直す。
type CartUsecase struct {
	cartRepo     repo.CartRepository
	cartItemRepo repo.CartItemRepository
	productRepo  repo.ProductRepository
}

// DI
func NewCartUsecase(
	cartRepo repo.CartRepository,
	cartItemRepo repo.CartItemRepository,
	productRepo repo.ProductRepository,
) *CartUsecase {
	return &CartUsecase{
		cartRepo:     cartRepo,
		cartItemRepo: cartItemRepo,
		productRepo:  productRepo,
	}
}

// カタログと結合済みの明細
type ResolvedCartItem struct {
	Product  model.Product
	Quantity int64
}

type CartItemResponse struct {
	ProductID int64  `json:"product_id"`
	Title     string `json:"title"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
}

type CartResponse struct {
	Items []CartItemResponse `json:"items"`
	Total int64              `json:"total"`
}

// GetCart はresolve済みのカートを返す（無ければ空で作る）。
func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartResponse, error) {
	resolved, err := u.Resolve(ctx, userID)
	if err != nil {
		return CartResponse{}, err
	}
	return buildCartResponse(resolved), nil
}

// AddToCart は1回の呼び出しで数量を1増やす（無ければ数量1で追加）。
// 加算はDB側の行ロック付きupsertで直列化される。
func (u *CartUsecase) AddToCart(ctx context.Context, userID int64, productID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, &UnauthorizedError{Reason: "unauthorized"}
	}
	if productID <= 0 {
		return CartResponse{}, &ValidationError{Reason: "invalid product_id"}
	}

	// 商品チェック
	_, err := u.productRepo.FindByID(ctx, productID)
	if err == repo.ErrNotFound {
		return CartResponse{}, &NotFoundError{Resource: "product"}
	}
	if err != nil {
		return CartResponse{}, &PersistenceError{Op: "find product", Err: err}
	}

	cart, err := u.cartRepo.GetOrCreateByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, &PersistenceError{Op: "get cart", Err: err}
	}

	if err := u.cartItemRepo.UpsertAddQuantity(ctx, cart.ID, productID, 1); err != nil {
		return CartResponse{}, &PersistenceError{Op: "add cart item", Err: err}
	}

	return u.GetCart(ctx, userID)
}

// RemoveFromCart は明細を商品単位で削除する。無ければ何もしない。
func (u *CartUsecase) RemoveFromCart(ctx context.Context, userID int64, productID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, &UnauthorizedError{Reason: "unauthorized"}
	}
	if productID <= 0 {
		return CartResponse{}, &ValidationError{Reason: "invalid product_id"}
	}

	cart, err := u.cartRepo.GetOrCreateByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, &PersistenceError{Op: "get cart", Err: err}
	}

	err = u.cartItemRepo.DeleteByCartAndProduct(ctx, cart.ID, productID)
	if err != nil && err != repo.ErrNotFound {
		return CartResponse{}, &PersistenceError{Op: "delete cart item", Err: err}
	}

	return u.GetCart(ctx, userID)
}

// Clear はカートを空にする（注文確定後に使う）。
func (u *CartUsecase) Clear(ctx context.Context, userID int64) error {
	cart, err := u.cartRepo.FindByUserID(ctx, userID)
	if err == repo.ErrNotFound {
		return nil
	}
	if err != nil {
		return &PersistenceError{Op: "find cart", Err: err}
	}

	if err := u.cartRepo.Clear(ctx, cart.ID); err != nil && err != repo.ErrNotFound {
		return &PersistenceError{Op: "clear cart", Err: err}
	}
	return nil
}

// Resolve は各明細をカタログの現在の商品に結合する。
// 追加後に削除された商品の明細はスキップする（永続カートからは消さない）。
func (u *CartUsecase) Resolve(ctx context.Context, userID int64) ([]ResolvedCartItem, error) {
	if userID <= 0 {
		return nil, &UnauthorizedError{Reason: "unauthorized"}
	}

	cart, err := u.cartRepo.GetOrCreateByUserID(ctx, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "get cart", Err: err}
	}

	items, err := u.cartItemRepo.ListByCartID(ctx, cart.ID)
	if err != nil {
		return nil, &PersistenceError{Op: "list cart items", Err: err}
	}

	resolved := make([]ResolvedCartItem, 0, len(items))
	for _, it := range items {
		p, err := u.productRepo.FindByID(ctx, it.ProductID)
		if err == repo.ErrNotFound {
			//商品が消えた明細はresolve結果に出さない
			continue
		}
		if err != nil {
			return nil, &PersistenceError{Op: "find product", Err: err}
		}

		resolved = append(resolved, ResolvedCartItem{
			Product:  p,
			Quantity: it.Quantity,
		})
	}

	return resolved, nil
}

func buildCartResponse(resolved []ResolvedCartItem) CartResponse {
	items := make([]CartItemResponse, 0, len(resolved))
	var total int64 = 0

	for _, r := range resolved {
		items = append(items, CartItemResponse{
			ProductID: r.Product.ID,
			Title:     r.Product.Title,
			Price:     r.Product.Price,
			Quantity:  r.Quantity,
		})
		total += r.Product.Price * r.Quantity
	}

	return CartResponse{Items: items, Total: total}
}
