package config

import (
	"fmt"
	"os"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	JWTSecret string // JWT署名シークレット

	StripeSecretKey string // Stripeの秘密鍵
	Currency        string // チェックアウト通貨（usd）

	InvoiceDir string // インボイスPDFの保存先

	GoEnv string // dev/prod
}

// Loadは環境変数から設定を読む。DB接続はinfra/dbが直接envを見る。
func Load() (Config, error) {
	cfg := Config{
		Port: os.Getenv("PORT"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		Currency:        os.Getenv("CURRENCY"),

		InvoiceDir: os.Getenv("INVOICE_DIR"),

		GoEnv: os.Getenv("GO_ENV"),
	}

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.StripeSecretKey == "" {
		return Config{}, fmt.Errorf("STRIPE_SECRET_KEY is required")
	}

	//任意（デフォルトあり）
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.InvoiceDir == "" {
		cfg.InvoiceDir = "data/invoices"
	}
	if cfg.GoEnv == "" {
		cfg.GoEnv = "dev"
	}

	return cfg, nil
}
