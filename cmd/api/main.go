package main

import (
	"webshop/internal/config"
	"webshop/internal/domain/model"
	"webshop/internal/handler"
	"webshop/internal/infra/db"
	"webshop/internal/infra/invoice"
	"webshop/internal/infra/payment"
	infraRepo "webshop/internal/infra/repository"
	"webshop/internal/server"
	"webshop/internal/usecase"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	//.envは無くてもよい（本番はプロセスのenvを使う）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}

	log := logrus.New()
	if cfg.GoEnv == "prod" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.Cart{},
		&model.CartItem{},
		&model.Order{},
		&model.OrderItem{},
	); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	//Repository（GORM実装）生成
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	orderItemRepo := infraRepo.NewOrderItemGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//外部コラボレータ
	gateway := payment.NewStripeGateway(cfg.StripeSecretKey)
	invoiceStore, err := invoice.NewFileStore(cfg.InvoiceDir)
	if err != nil {
		log.Fatalf("invoice store: %v", err)
	}

	//Usecase生成
	catalogUC := usecase.NewCatalogUsecase(productRepo)
	cartUC := usecase.NewCartUsecase(cartRepo, cartRepo, productRepo)
	checkoutUC := usecase.NewCheckoutUsecase(cartUC, gateway, cfg.Currency)
	orderUC := usecase.NewOrderUsecase(txManager, cartRepo, log)
	invoiceUC := usecase.NewInvoiceUsecase(orderRepo, orderItemRepo, invoiceStore, log)

	//Handler生成
	productH := handler.NewProductHandler(catalogUC)
	cartH := handler.NewCartHandler(cartUC)
	checkoutH := handler.NewCheckoutHandler(checkoutUC)
	orderH := handler.NewOrderHandler(orderUC, invoiceUC)

	//Server起動
	addr := ":" + cfg.Port
	log.WithField("addr", addr).Info("starting server")
	if err := server.Start(addr, cfg, productH, cartH, checkoutH, orderH); err != nil {
		log.Fatalf("server: %v", err)
	}
}
