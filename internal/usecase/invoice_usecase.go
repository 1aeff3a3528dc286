package usecase

import (
	"context"
	"fmt"
	"io"

	"webshop/internal/domain/model"
	repo "webshop/internal/repository"

	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"
)

// 書き込み途中のインボイス。Commitするまで正式な置き場には現れない。
// Abortは何度呼んでも安全であること。
type StagedInvoice interface {
	io.Writer
	Commit() error
	Abort()
}

// 注文IDをキーにした永続インボイス置き場。
type InvoiceStore interface {
	CreateStaged(orderID int64) (StagedInvoice, error)
	Path(orderID int64) string
}

// InvoiceUsecase は保存済みの注文だけからPDFを組み立てる。
// カートやカタログの現在の状態には一切依存しない。
type InvoiceUsecase struct {
	orderRepo     repo.OrderRepository
	orderItemRepo repo.OrderItemRepository
	store         InvoiceStore
	log           *logrus.Logger
}

func NewInvoiceUsecase(
	orderRepo repo.OrderRepository,
	orderItemRepo repo.OrderItemRepository,
	store InvoiceStore,
	log *logrus.Logger,
) *InvoiceUsecase {
	return &InvoiceUsecase{
		orderRepo:     orderRepo,
		orderItemRepo: orderItemRepo,
		store:         store,
		log:           log,
	}
}

func InvoiceFileName(orderID int64) string {
	return fmt.Sprintf("invoice-%d.pdf", orderID)
}

// RenderInvoice は1回の生成パスで、呼び出し元のsinkと永続ストアの両方へ書く。
// ストア側の失敗はrenderを止めない（ログのみ）。sink側の失敗はrenderを中断し、
// ストアには不完全なファイルを残さない。
// 返り値はsinkへ書いたバイト数と、保存に成功した場合の保存先。
func (u *InvoiceUsecase) RenderInvoice(ctx context.Context, orderID int64, userID int64, sink io.Writer) (int64, string, error) {
	if userID <= 0 {
		return 0, "", &UnauthorizedError{Reason: "unauthorized"}
	}
	if orderID <= 0 {
		return 0, "", &ValidationError{Reason: "invalid order id"}
	}

	order, err := u.orderRepo.FindByID(ctx, orderID)
	if err == repo.ErrNotFound {
		return 0, "", &NotFoundError{Resource: "order"}
	}
	if err != nil {
		return 0, "", &PersistenceError{Op: "find order", Err: err}
	}
	if order.UserID != userID {
		//注文の中身はどちらの分岐でも一切返さない
		return 0, "", &UnauthorizedError{Reason: "invoice access denied"}
	}

	items, err := u.orderItemRepo.ListByOrderID(ctx, orderID)
	if err != nil {
		return 0, "", &PersistenceError{Op: "list order items", Err: err}
	}

	staged, err := u.store.CreateStaged(orderID)
	if err != nil {
		//永続コピーは諦めるが、クライアントへの配信は続ける
		u.log.WithFields(logrus.Fields{
			"order_id": orderID,
			"error":    err,
		}).Warn("invoice store unavailable; streaming without durable copy")
		staged = nil
	}

	fw := &invoiceFanOut{
		sink:   sink,
		staged: staged,
		log:    u.log.WithField("order_id", orderID),
	}

	if err := buildInvoicePDF(order, items, fw); err != nil {
		//sinkが切れた。途中までのステージングは破棄する。
		fw.abortStaged()
		return fw.sinkBytes, "", &PersistenceError{Op: "stream invoice", Err: err}
	}

	location := ""
	if fw.stagedAlive() {
		if err := staged.Commit(); err != nil {
			u.log.WithFields(logrus.Fields{
				"order_id": orderID,
				"error":    err,
			}).Warn("invoice durable write failed")
		} else {
			location = u.store.Path(orderID)
		}
	}

	return fw.sinkBytes, location, nil
}

// 1つの生成パスを2つの書き込み先に分配する。
// ステージング側のエラーは記録して以後そちらへの書き込みを止めるだけで、
// Writeのエラーとしては返さない。sink側のエラーだけが生成を中断させる。
type invoiceFanOut struct {
	sink       io.Writer
	staged     StagedInvoice
	stagedDead bool
	sinkBytes  int64
	log        *logrus.Entry
}

func (w *invoiceFanOut) Write(p []byte) (int, error) {
	if w.staged != nil && !w.stagedDead {
		if _, err := w.staged.Write(p); err != nil {
			w.stagedDead = true
			w.staged.Abort()
			w.log.WithField("error", err).Warn("invoice durable write failed mid-stream")
		}
	}

	n, err := w.sink.Write(p)
	w.sinkBytes += int64(n)
	return n, err
}

func (w *invoiceFanOut) stagedAlive() bool {
	return w.staged != nil && !w.stagedDead
}

func (w *invoiceFanOut) abortStaged() {
	if w.staged != nil {
		w.staged.Abort()
	}
}

// レイアウトは決め打ち：タイトル、罫線、明細行、罫線、合計。
// 合計は注文自身の明細から計算し直す（スナップショットと必ず一致する）。
func buildInvoicePDF(order model.Order, items []model.OrderItem, w io.Writer) error {
	pdf := gofpdf.New("P", "pt", "A4", "")
	//バイト列を注文ごとに決定的にする（どちらも既定値はtime.Now()）
	pdf.SetCreationDate(order.CreatedAt)
	pdf.SetModificationDate(order.CreatedAt)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "U", 26)
	pdf.Cell(0, 26, "Invoice")
	pdf.Ln(36)

	pdf.SetFont("Helvetica", "", 14)
	pdf.Cell(0, 14, "-----------------------")
	pdf.Ln(22)

	var total int64 = 0
	for _, it := range items {
		total += it.UnitPriceSnapshot * it.Quantity
		pdf.Cell(0, 14, invoiceItemLine(it))
		pdf.Ln(20)
	}

	pdf.Cell(0, 14, "---")
	pdf.Ln(28)

	pdf.SetFont("Helvetica", "", 20)
	pdf.Cell(0, 20, "Total Price: $"+formatMinorPrice(total))

	return pdf.Output(w)
}

func invoiceItemLine(it model.OrderItem) string {
	return fmt.Sprintf("%s - %d x $%s", it.TitleSnapshot, it.Quantity, formatMinorPrice(it.UnitPriceSnapshot))
}

// 最小通貨単位の金額を表示用に変換する。端数が無ければセントを出さない
// （空の注文の合計は "$0" になる）。
func formatMinorPrice(minor int64) string {
	if minor%100 == 0 {
		return fmt.Sprintf("%d", minor/100)
	}
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
