package usecase

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"webshop/internal/domain/model"
	repo "webshop/internal/repository"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

// fakeShopStoreに注文側のリポジトリを足したもの。
// TransactionManagerとTxReposも兼ねる（WithinTxは単にfnを呼ぶ）。
type fakeOrderStore struct {
	*fakeShopStore

	omu         sync.Mutex
	nextOrderID int64
	orders      map[int64]model.Order
	orderItems  map[int64][]model.OrderItem
	userRepo    *fakeUserRepo

	failClearTimes int
}

type fakeUserRepo struct {
	users map[int64]model.User
}

func (r *fakeUserRepo) FindByID(ctx context.Context, userID int64) (model.User, error) {
	u, ok := r.users[userID]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	return u, nil
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		fakeShopStore: newFakeShopStore(),
		orders:        map[int64]model.Order{},
		orderItems:    map[int64][]model.OrderItem{},
		userRepo:      &fakeUserRepo{users: map[int64]model.User{}},
	}
}

func (s *fakeOrderStore) addUser(u model.User) model.User {
	s.userRepo.users[u.ID] = u
	return u
}

// TransactionManager / TxRepos

func (s *fakeOrderStore) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return fn(s)
}

func (s *fakeOrderStore) Orders() repo.OrderRepository         { return s }
func (s *fakeOrderStore) OrderItems() repo.OrderItemRepository { return s }
func (s *fakeOrderStore) Carts() repo.CartRepository           { return s }
func (s *fakeOrderStore) CartItems() repo.CartItemRepository   { return s.fakeShopStore }
func (s *fakeOrderStore) Products() repo.ProductRepository     { return s.fakeShopStore }
func (s *fakeOrderStore) Users() repo.UserRepository           { return s.userRepo }

// CartRepository.ClearOlderThanを失敗注入付きで上書き

func (s *fakeOrderStore) ClearOlderThan(ctx context.Context, cartID int64, before time.Time) error {
	s.omu.Lock()
	if s.failClearTimes > 0 {
		s.failClearTimes--
		s.omu.Unlock()
		return errors.New("store down")
	}
	s.omu.Unlock()
	return s.fakeShopStore.ClearOlderThan(ctx, cartID, before)
}

// OrderRepository
// （埋め込んだ商品側のFindByID/Createはここで注文用にシャドーされる）

func (s *fakeOrderStore) FindByID(ctx context.Context, id int64) (model.Order, error) {
	s.omu.Lock()
	defer s.omu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (s *fakeOrderStore) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	s.omu.Lock()
	defer s.omu.Unlock()
	var out []model.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, int64(len(out)), nil
}

func (s *fakeOrderStore) Create(ctx context.Context, order model.Order) (int64, error) {
	s.omu.Lock()
	defer s.omu.Unlock()
	for _, o := range s.orders {
		if o.UserID == order.UserID && o.IdempotencyKey == order.IdempotencyKey {
			return 0, errors.New("duplicate key")
		}
	}
	s.nextOrderID++
	order.ID = s.nextOrderID
	s.orders[order.ID] = order
	return order.ID, nil
}

func (s *fakeOrderStore) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	s.omu.Lock()
	defer s.omu.Unlock()
	for _, o := range s.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			return o, true, nil
		}
	}
	return model.Order{}, false, nil
}

// OrderItemRepository

func (s *fakeOrderStore) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	s.omu.Lock()
	defer s.omu.Unlock()
	for i := range items {
		items[i].OrderID = orderID
	}
	s.orderItems[orderID] = append(s.orderItems[orderID], items...)
	return nil
}

func (s *fakeOrderStore) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	s.omu.Lock()
	defer s.omu.Unlock()
	out := make([]model.OrderItem, len(s.orderItems[orderID]))
	copy(out, s.orderItems[orderID])
	return out, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func seededOrderStore(t *testing.T) (*fakeOrderStore, model.Product, model.Product) {
	t.Helper()
	store := newFakeOrderStore()
	store.addUser(model.User{ID: 1, Email: "buyer@example.com"})
	a := store.addProduct(model.Product{Title: "A", Description: "first", Price: 1000})
	b := store.addProduct(model.Product{Title: "B", Price: 550})
	return store, a, b
}

func fillCart(t *testing.T, store *fakeOrderStore, a model.Product, b model.Product) {
	t.Helper()
	ctx := context.Background()
	cartUC := newCartUsecaseForTest(store.fakeShopStore)
	//A x2, B x1
	for _, pid := range []int64{a.ID, a.ID, b.ID} {
		_, err := cartUC.AddToCart(ctx, 1, pid)
		assert.NoError(t, err)
	}
}

func TestPlaceOrder_SnapshotsCartAndClearsIt(t *testing.T) {
	ctx := context.Background()
	store, a, b := seededOrderStore(t)
	fillCart(t, store, a, b)

	uc := NewOrderUsecase(store, store, testLogger())
	out, err := uc.PlaceOrder(ctx, 1, PlaceOrderInput{IdempotencyKey: "attempt-1"})
	assert.NoError(t, err)

	assert.Equal(t, int64(2550), out.TotalPrice)
	assert.Equal(t, "buyer@example.com", out.UserEmail)
	assert.Len(t, out.Items, 2)
	assert.Equal(t, "A", out.Items[0].Title)
	assert.Equal(t, int64(2), out.Items[0].Quantity)
	assert.Equal(t, int64(1000), out.Items[0].Price)
	assert.Equal(t, "B", out.Items[1].Title)
	assert.Equal(t, int64(550), out.Items[1].Price)

	//注文後はカートが空
	cartUC := newCartUsecaseForTest(store.fakeShopStore)
	cart, err := cartUC.GetCart(ctx, 1)
	assert.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestPlaceOrder_SameKeyReturnsSameOrder(t *testing.T) {
	ctx := context.Background()
	store, a, b := seededOrderStore(t)
	fillCart(t, store, a, b)

	uc := NewOrderUsecase(store, store, testLogger())
	first, err := uc.PlaceOrder(ctx, 1, PlaceOrderInput{IdempotencyKey: "attempt-1"})
	assert.NoError(t, err)

	second, err := uc.PlaceOrder(ctx, 1, PlaceOrderInput{IdempotencyKey: "attempt-1"})
	assert.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.orders, 1)
}

func TestPlaceOrder_EmptyCart_ValidationError(t *testing.T) {
	ctx := context.Background()
	store, _, _ := seededOrderStore(t)

	uc := NewOrderUsecase(store, store, testLogger())
	_, err := uc.PlaceOrder(ctx, 1, PlaceOrderInput{IdempotencyKey: "attempt-1"})
	assert.IsType(t, &ValidationError{}, err)
	assert.Empty(t, store.orders)
}

func TestPlaceOrder_MissingKey_ValidationError(t *testing.T) {
	ctx := context.Background()
	store, a, b := seededOrderStore(t)
	fillCart(t, store, a, b)

	uc := NewOrderUsecase(store, store, testLogger())
	_, err := uc.PlaceOrder(ctx, 1, PlaceOrderInput{})
	assert.IsType(t, &ValidationError{}, err)
}

func TestPlaceOrder_ClearFailure_OrderSucceedsAndRetryClears(t *testing.T) {
	ctx := context.Background()
	store, a, b := seededOrderStore(t)
	fillCart(t, store, a, b)
	store.failClearTimes = 1

	uc := NewOrderUsecase(store, store, testLogger())
	first, err := uc.PlaceOrder(ctx, 1, PlaceOrderInput{IdempotencyKey: "attempt-1"})
	assert.NoError(t, err)

	//クリアに失敗したのでカートには明細が残っている
	cartUC := newCartUsecaseForTest(store.fakeShopStore)
	cart, err := cartUC.GetCart(ctx, 1)
	assert.NoError(t, err)
	assert.NotEmpty(t, cart.Items)

	//同じキーでリトライ：二重注文にはならず、今度はクリアされる
	second, err := uc.PlaceOrder(ctx, 1, PlaceOrderInput{IdempotencyKey: "attempt-1"})
	assert.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.orders, 1)

	cart, err = cartUC.GetCart(ctx, 1)
	assert.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestPlaceOrder_ReplayAfterRefill_KeepsNewCart(t *testing.T) {
	ctx := context.Background()
	store, a, b := seededOrderStore(t)
	fillCart(t, store, a, b)

	uc := NewOrderUsecase(store, store, testLogger())
	first, err := uc.PlaceOrder(ctx, 1, PlaceOrderInput{IdempotencyKey: "attempt-1"})
	assert.NoError(t, err)

	//クリア成功後にカートへ入れ直す
	cartUC := newCartUsecaseForTest(store.fakeShopStore)
	_, err = cartUC.AddToCart(ctx, 1, a.ID)
	assert.NoError(t, err)

	//古いキーの再送。注文は同じものが返り、入れ直した明細は消えない
	second, err := uc.PlaceOrder(ctx, 1, PlaceOrderInput{IdempotencyKey: "attempt-1"})
	assert.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	cart, err := cartUC.GetCart(ctx, 1)
	assert.NoError(t, err)
	assert.Len(t, cart.Items, 1)
	assert.Equal(t, a.ID, cart.Items[0].ProductID)
}

func TestPlaceOrder_SnapshotSurvivesProductMutation(t *testing.T) {
	ctx := context.Background()
	store, a, b := seededOrderStore(t)
	fillCart(t, store, a, b)

	uc := NewOrderUsecase(store, store, testLogger())
	placed, err := uc.PlaceOrder(ctx, 1, PlaceOrderInput{IdempotencyKey: "attempt-1"})
	assert.NoError(t, err)

	//注文後に商品Aを値上げして改名し、Bは削除する
	a.Title = "A (renamed)"
	a.Price = 9999
	assert.NoError(t, store.fakeShopStore.Update(ctx, a))
	assert.NoError(t, store.fakeShopStore.SoftDelete(ctx, b.ID))

	got, err := uc.GetMyOrderDetail(ctx, 1, placed.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(2550), got.TotalPrice)
	assert.Equal(t, "A", got.Items[0].Title)
	assert.Equal(t, int64(1000), got.Items[0].Price)
	assert.Equal(t, "B", got.Items[1].Title)
	assert.Equal(t, int64(550), got.Items[1].Price)
}

func TestGetMyOrderDetail_OtherUser_LooksAbsent(t *testing.T) {
	ctx := context.Background()
	store, a, b := seededOrderStore(t)
	fillCart(t, store, a, b)

	uc := NewOrderUsecase(store, store, testLogger())
	placed, err := uc.PlaceOrder(ctx, 1, PlaceOrderInput{IdempotencyKey: "attempt-1"})
	assert.NoError(t, err)

	_, err = uc.GetMyOrderDetail(ctx, 2, placed.ID)
	assert.IsType(t, &NotFoundError{}, err)
}
