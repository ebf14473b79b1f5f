package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5433）

	JWTSecret string // JWT署名シークレット

	GatewayBaseURL   string // 決済ゲートウェイのベースURL
	GatewaySecretKey string // サーバー側の秘密キー（クライアントへは絶対に出さない）
	GatewayPublicKey string // フロントの決済widget用公開キー

	WebhookSecret       string // webhook署名のHMAC共有シークレット
	WebhookToleranceSec int    // webhookタイムスタンプの許容秒数

	CommissionRate decimal.Decimal // 手数料率 [0,1]
	TaxRate        decimal.Decimal // 税率
	ShippingFee    decimal.Decimal // 送料（固定）

	GoEnv string // dev/prod
}

// Loadは環境変数
func Load() (Config, error) {
	pgPort, err := mustAtoi("POSTGRES_PORT")
	if err != nil {
		return Config{}, err
	}

	commissionRate, err := mustDecimal("COMMISSION_RATE")
	if err != nil {
		return Config{}, err
	}
	taxRate, err := mustDecimal("TAX_RATE")
	if err != nil {
		return Config{}, err
	}
	shippingFee, err := mustDecimal("SHIPPING_FEE")
	if err != nil {
		return Config{}, err
	}

	tolerance := 300
	if v := os.Getenv("WEBHOOK_TOLERANCE_SEC"); v != "" {
		tolerance, err = strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("WEBHOOK_TOLERANCE_SEC must be number: %w", err)
		}
	}

	cfg := Config{
		Port: os.Getenv("PORT"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     pgPort,

		JWTSecret: os.Getenv("JWT_SECRET"),

		GatewayBaseURL:   os.Getenv("GATEWAY_BASE_URL"),
		GatewaySecretKey: os.Getenv("GATEWAY_SECRET_KEY"),
		GatewayPublicKey: os.Getenv("GATEWAY_PUBLIC_KEY"),

		WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),
		WebhookToleranceSec: tolerance,

		CommissionRate: commissionRate,
		TaxRate:        taxRate,
		ShippingFee:    shippingFee,

		GoEnv: os.Getenv("GO_ENV"),
	}

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.PostgresUser == "" {
		return Config{}, fmt.Errorf("POSTGRES_USER is required")
	}
	if cfg.PostgresPassword == "" {
		return Config{}, fmt.Errorf("POSTGRES_PASSWORD is required")
	}
	if cfg.PostgresDB == "" {
		return Config{}, fmt.Errorf("POSTGRES_DB is required")
	}
	if cfg.PostgresHost == "" {
		return Config{}, fmt.Errorf("POSTGRES_HOST is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.GatewayBaseURL == "" {
		return Config{}, fmt.Errorf("GATEWAY_BASE_URL is required")
	}
	if cfg.GatewaySecretKey == "" {
		return Config{}, fmt.Errorf("GATEWAY_SECRET_KEY is required")
	}
	if cfg.WebhookSecret == "" {
		return Config{}, fmt.Errorf("WEBHOOK_SECRET is required")
	}
	if cfg.GoEnv == "" {
		return Config{}, fmt.Errorf("GO_ENV is required")
	}

	//手数料率の範囲は起動時に弾く
	if cfg.CommissionRate.IsNegative() || cfg.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return Config{}, fmt.Errorf("COMMISSION_RATE must be in [0,1]")
	}
	if cfg.TaxRate.IsNegative() {
		return Config{}, fmt.Errorf("TAX_RATE must not be negative")
	}
	if cfg.ShippingFee.IsNegative() {
		return Config{}, fmt.Errorf("SHIPPING_FEE must not be negative")
	}

	return cfg, nil
}

func mustAtoi(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func mustDecimal(key string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return decimal.Decimal{}, fmt.Errorf("%s is required", key)
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s must be decimal: %w", key, err)
	}
	return d, nil
}
