package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"webshop/internal/config"
	"webshop/internal/middleware"
	"webshop/internal/usecase"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	uc        *usecase.OrderUsecase
	invoiceUC *usecase.InvoiceUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase, invoiceUC *usecase.InvoiceUsecase) *OrderHandler {
	return &OrderHandler{uc: uc, invoiceUC: invoiceUC}
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/orders")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.detail)
	g.GET("/:id/invoice", h.invoice)
}

func (h *OrderHandler) create(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	//二重送信防止キーはヘッダーから受け取る（bodyには入れない）
	idemKey := c.Request().Header.Get("Idempotency-Key")

	out, err := h.uc.PlaceOrder(c.Request().Context(), userID, usecase.PlaceOrderInput{
		IdempotencyKey: idemKey,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, out)
}

func (h *OrderHandler) list(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	outs, err := h.uc.ListMyOrders(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, outs)
}

func (h *OrderHandler) detail(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.GetMyOrderDetail(c.Request().Context(), userID, orderID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

// インボイスはレスポンスへ直接ストリームする。
// 同じ生成パスが永続コピーも書く（usecase側のfan-out）。
func (h *OrderHandler) invoice(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/pdf")
	res.Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`inline; filename="%s"`, usecase.InvoiceFileName(orderID)))

	written, _, err := h.invoiceUC.RenderInvoice(c.Request().Context(), orderID, userID, res)
	if err != nil {
		if written == 0 {
			//まだ1バイトも書いていないので普通のエラー応答に差し替えられる
			//（Content-Typeを消しておかないとJSONボディがapplication/pdfのまま出る）
			res.Header().Del(echo.HeaderContentType)
			res.Header().Del(echo.HeaderContentDisposition)
			return writeError(c, err)
		}
		//ストリーム途中で切れた。もうJSONは返せない。
		return err
	}

	return nil
}
