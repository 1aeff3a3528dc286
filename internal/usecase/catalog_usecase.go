package usecase

import (
	"context"
	"strings"

	"webshop/internal/domain/model"
	repo "webshop/internal/repository"
)

// CatalogUsecase は商品一覧・詳細の読み取り。カタログを変更することはない。
type CatalogUsecase struct {
	productRepo repo.ProductRepository
}

// DI
func NewCatalogUsecase(productRepo repo.ProductRepository) *CatalogUsecase {
	return &CatalogUsecase{productRepo: productRepo}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page     int
	Limit    int
	Q        string
	MinPrice *int64
	MaxPrice *int64
	Sort     string
}

type ProductListOutput struct {
	Items        []model.Product `json:"items"`
	TotalItems   int64           `json:"total_items"`
	CurrentPage  int             `json:"current_page"`
	HasNext      bool            `json:"has_next"`
	HasPrevious  bool            `json:"has_previous"`
	NextPage     int             `json:"next_page"`
	PreviousPage int             `json:"previous_page"`
	LastPage     int             `json:"last_page"`
	Limit        int             `json:"limit"`
}

func (u *CatalogUsecase) ListProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, &ValidationError{Reason: "invalid page"}
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, &ValidationError{Reason: "invalid limit"}
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, &ValidationError{Reason: "q too long"}
	}
	if in.MinPrice != nil && *in.MinPrice < 0 {
		return ProductListOutput{}, &ValidationError{Reason: "min_price must be >= 0"}
	}
	if in.MaxPrice != nil && *in.MaxPrice < 0 {
		return ProductListOutput{}, &ValidationError{Reason: "max_price must be >= 0"}
	}
	if in.MinPrice != nil && in.MaxPrice != nil && *in.MinPrice > *in.MaxPrice {
		return ProductListOutput{}, &ValidationError{Reason: "min_price must be <= max_price"}
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc":
	default:
		return ProductListOutput{}, &ValidationError{Reason: "invalid sort"}
	}

	items, total, err := u.productRepo.List(ctx, repo.ProductListQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Q:        strings.TrimSpace(in.Q),
		MinPrice: in.MinPrice,
		MaxPrice: in.MaxPrice,
		Sort:     in.Sort,
	})
	if err != nil {
		return ProductListOutput{}, &PersistenceError{Op: "list products", Err: err}
	}

	return buildProductListOutput(items, total, in.Page, in.Limit), nil
}

func (u *CatalogUsecase) GetProductDetail(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, &ValidationError{Reason: "invalid product id"}
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if err == repo.ErrNotFound {
		return model.Product{}, &NotFoundError{Resource: "product"}
	}
	if err != nil {
		return model.Product{}, &PersistenceError{Op: "find product", Err: err}
	}
	return p, nil
}

// ページングのメタ情報（1始まり）
func buildProductListOutput(items []model.Product, total int64, page int, limit int) ProductListOutput {
	lastPage := int((total + int64(limit) - 1) / int64(limit))

	return ProductListOutput{
		Items:        items,
		TotalItems:   total,
		CurrentPage:  page,
		HasNext:      int64(page)*int64(limit) < total,
		HasPrevious:  page > 1,
		NextPage:     page + 1,
		PreviousPage: page - 1,
		LastPage:     lastPage,
		Limit:        limit,
	}
}
