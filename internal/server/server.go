package server

import (
	"webshop/internal/config"
	"webshop/internal/handler"

	"github.com/labstack/echo/v4"
)

func Start(
	addr string,
	cfg config.Config,
	productH *handler.ProductHandler,
	cartH *handler.CartHandler,
	checkoutH *handler.CheckoutHandler,
	orderH *handler.OrderHandler,
) error {
	e := echo.New()
	e.HideBanner = true

	RegisterRoutes(e, cfg, productH, cartH, checkoutH, orderH)

	return e.Start(addr)
}
