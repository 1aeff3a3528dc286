package usecase

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"webshop/internal/domain/model"

	"github.com/stretchr/testify/assert"
)

type memStaged struct {
	buf       bytes.Buffer
	writeErr  error
	commitErr error
	committed bool
	aborted   bool
	store     *memInvoiceStore
	orderID   int64
}

func (s *memStaged) Write(p []byte) (int, error) {
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	return s.buf.Write(p)
}

func (s *memStaged) Commit() error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.committed = true
	s.store.files[s.orderID] = s.buf.Bytes()
	return nil
}

func (s *memStaged) Abort() {
	s.aborted = true
}

type memInvoiceStore struct {
	files     map[int64][]byte
	staged    []*memStaged
	createErr error
	writeErr  error
}

func newMemInvoiceStore() *memInvoiceStore {
	return &memInvoiceStore{files: map[int64][]byte{}}
}

func (m *memInvoiceStore) CreateStaged(orderID int64) (StagedInvoice, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	st := &memStaged{store: m, orderID: orderID, writeErr: m.writeErr}
	m.staged = append(m.staged, st)
	return st, nil
}

func (m *memInvoiceStore) Path(orderID int64) string {
	return "/invoices/" + InvoiceFileName(orderID)
}

// io.Writerとして途中で失敗するsink
type brokenSink struct {
	limit int
	n     int
}

func (w *brokenSink) Write(p []byte) (int, error) {
	if w.n+len(p) > w.limit {
		room := w.limit - w.n
		if room < 0 {
			room = 0
		}
		w.n += room
		return room, errors.New("client went away")
	}
	w.n += len(p)
	return len(p), nil
}

func seededInvoice(t *testing.T, store *memInvoiceStore) (*InvoiceUsecase, model.Order) {
	t.Helper()
	orders := newFakeOrderStore()
	order := model.Order{
		UserID:         1,
		UserEmail:      "buyer@example.com",
		TotalPrice:     2550,
		IdempotencyKey: "k1",
		CreatedAt:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	id, err := orders.Create(context.Background(), order)
	assert.NoError(t, err)
	order.ID = id

	err = orders.CreateBulk(context.Background(), id, []model.OrderItem{
		{ProductID: 1, TitleSnapshot: "A", UnitPriceSnapshot: 1000, Quantity: 2},
		{ProductID: 2, TitleSnapshot: "B", UnitPriceSnapshot: 550, Quantity: 1},
	})
	assert.NoError(t, err)

	return NewInvoiceUsecase(orders, orders, store, testLogger()), order
}

func TestRenderInvoice_StreamsAndStoresSameBytes(t *testing.T) {
	ctx := context.Background()
	store := newMemInvoiceStore()
	uc, order := seededInvoice(t, store)

	var sink bytes.Buffer
	n, location, err := uc.RenderInvoice(ctx, order.ID, 1, &sink)
	assert.NoError(t, err)

	assert.Equal(t, int64(sink.Len()), n)
	assert.True(t, strings.HasPrefix(sink.String(), "%PDF"))
	assert.Equal(t, store.Path(order.ID), location)

	//永続コピーはクライアントに送ったものと同一
	assert.Equal(t, sink.Bytes(), store.files[order.ID])
	assert.True(t, store.staged[0].committed)
	assert.False(t, store.staged[0].aborted)
}

func TestRenderInvoice_DeterministicForSameOrder(t *testing.T) {
	ctx := context.Background()
	store := newMemInvoiceStore()
	uc, order := seededInvoice(t, store)

	var first, second bytes.Buffer
	_, _, err := uc.RenderInvoice(ctx, order.ID, 1, &first)
	assert.NoError(t, err)

	//PDFの日付メタデータは秒単位なので、秒をまたいでも同一であること
	time.Sleep(1100 * time.Millisecond)

	_, _, err = uc.RenderInvoice(ctx, order.ID, 1, &second)
	assert.NoError(t, err)

	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestRenderInvoice_OtherUser_NoBytes(t *testing.T) {
	ctx := context.Background()
	store := newMemInvoiceStore()
	uc, order := seededInvoice(t, store)

	var sink bytes.Buffer
	n, _, err := uc.RenderInvoice(ctx, order.ID, 2, &sink)
	assert.IsType(t, &UnauthorizedError{}, err)
	assert.Zero(t, n)
	assert.Zero(t, sink.Len())
	assert.Empty(t, store.staged)
}

func TestRenderInvoice_MissingOrder_NotFound(t *testing.T) {
	ctx := context.Background()
	store := newMemInvoiceStore()
	uc, _ := seededInvoice(t, store)

	var sink bytes.Buffer
	_, _, err := uc.RenderInvoice(ctx, 999, 1, &sink)
	assert.IsType(t, &NotFoundError{}, err)
	assert.Zero(t, sink.Len())
}

func TestRenderInvoice_StoreDown_StillStreams(t *testing.T) {
	ctx := context.Background()
	store := newMemInvoiceStore()
	store.createErr = errors.New("disk full")
	uc, order := seededInvoice(t, store)

	var sink bytes.Buffer
	n, location, err := uc.RenderInvoice(ctx, order.ID, 1, &sink)
	assert.NoError(t, err)
	assert.Equal(t, int64(sink.Len()), n)
	assert.True(t, strings.HasPrefix(sink.String(), "%PDF"))
	assert.Empty(t, location)
	assert.Empty(t, store.files)
}

func TestRenderInvoice_StagedWriteFailure_StillStreams(t *testing.T) {
	ctx := context.Background()
	store := newMemInvoiceStore()
	store.writeErr = errors.New("disk full")
	uc, order := seededInvoice(t, store)

	var sink bytes.Buffer
	_, location, err := uc.RenderInvoice(ctx, order.ID, 1, &sink)
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(sink.String(), "%PDF"))
	assert.Empty(t, location)

	//途中で死んだステージングは破棄され、Commitされない
	assert.True(t, store.staged[0].aborted)
	assert.False(t, store.staged[0].committed)
	assert.Empty(t, store.files)
}

func TestRenderInvoice_SinkFailure_AbortsStaging(t *testing.T) {
	ctx := context.Background()
	store := newMemInvoiceStore()
	uc, order := seededInvoice(t, store)

	_, location, err := uc.RenderInvoice(ctx, order.ID, 1, &brokenSink{limit: 64})
	assert.IsType(t, &PersistenceError{}, err)
	assert.Empty(t, location)

	//不完全なファイルは保存されない
	assert.True(t, store.staged[0].aborted)
	assert.False(t, store.staged[0].committed)
	assert.Empty(t, store.files)
}

// PDF内のzlib圧縮ストリームを展開してテキストを取り出す
func pdfText(t *testing.T, raw []byte) string {
	t.Helper()
	var out strings.Builder
	rest := raw
	for {
		i := bytes.Index(rest, []byte("stream\n"))
		if i < 0 {
			break
		}
		rest = rest[i+len("stream\n"):]
		j := bytes.Index(rest, []byte("endstream"))
		if j < 0 {
			break
		}
		if zr, err := zlib.NewReader(bytes.NewReader(rest[:j])); err == nil {
			b, _ := io.ReadAll(zr)
			out.Write(b)
			zr.Close()
		}
		rest = rest[j:]
	}
	return out.String()
}

func TestRenderInvoice_BodyContainsItemLines(t *testing.T) {
	ctx := context.Background()
	store := newMemInvoiceStore()
	uc, order := seededInvoice(t, store)

	var sink bytes.Buffer
	_, _, err := uc.RenderInvoice(ctx, order.ID, 1, &sink)
	assert.NoError(t, err)

	text := pdfText(t, sink.Bytes())
	assert.Contains(t, text, "Invoice")
	assert.Contains(t, text, "A - 2 x $10")
	assert.Contains(t, text, "B - 1 x $5.50")
	assert.Contains(t, text, "Total Price: $25.50")
}

func TestRenderInvoice_NoLineItems_TotalZero(t *testing.T) {
	ctx := context.Background()
	store := newMemInvoiceStore()
	orders := newFakeOrderStore()

	id, err := orders.Create(ctx, model.Order{
		UserID:         1,
		UserEmail:      "buyer@example.com",
		TotalPrice:     0,
		IdempotencyKey: "k-empty",
		CreatedAt:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	assert.NoError(t, err)

	uc := NewInvoiceUsecase(orders, orders, store, testLogger())

	var sink bytes.Buffer
	_, _, err = uc.RenderInvoice(ctx, id, 1, &sink)
	assert.NoError(t, err)

	//明細行は1つも出ず、合計は$0
	text := pdfText(t, sink.Bytes())
	assert.Contains(t, text, "Total Price: $0")
	assert.NotContains(t, text, " x $")
}

func TestInvoiceItemLine(t *testing.T) {
	assert.Equal(t, "A - 2 x $10", invoiceItemLine(model.OrderItem{TitleSnapshot: "A", UnitPriceSnapshot: 1000, Quantity: 2}))
	assert.Equal(t, "B - 1 x $5.50", invoiceItemLine(model.OrderItem{TitleSnapshot: "B", UnitPriceSnapshot: 550, Quantity: 1}))
}

func TestFormatMinorPrice(t *testing.T) {
	assert.Equal(t, "0", formatMinorPrice(0))
	assert.Equal(t, "10", formatMinorPrice(1000))
	assert.Equal(t, "5.50", formatMinorPrice(550))
	assert.Equal(t, "0.05", formatMinorPrice(5))
}

func TestInvoiceFileName(t *testing.T) {
	assert.Equal(t, "invoice-42.pdf", InvoiceFileName(42))
}
