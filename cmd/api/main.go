package main

import (
	"time"

	"marketpay/internal/config"
	"marketpay/internal/domain/model"
	"marketpay/internal/gateway"
	"marketpay/internal/handler"
	"marketpay/internal/infra/db"
	infraRepo "marketpay/internal/infra/repository"
	"marketpay/internal/logger"
	"marketpay/internal/usecase"
	"marketpay/internal/webhook"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	//.envはローカル開発用。無ければ環境変数だけで動く。
	_ = godotenv.Load("../.env")

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger.Init(cfg.GoEnv)
	defer logger.Sync()
	log := logger.L()

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	if err := gormDB.AutoMigrate(
		&model.Product{},
		&model.Order{},
		&model.OrderItem{},
		&model.PaymentTransaction{},
		&model.CommissionRecord{},
		&model.WebhookEvent{},
		&model.AuditLog{},
	); err != nil {
		log.Fatal("auto migrate failed", zap.Error(err))
	}

	txm := infraRepo.NewTxManagerGorm(gormDB)

	//ゲートウェイclient（リトライ・breaker・rate limitはデフォルト設定）
	gw := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewaySecretKey)

	//Usecase生成
	sm := usecase.NewStateMachine(txm, cfg.CommissionRate)
	orderUC := usecase.NewOrderUsecase(txm, gw, cfg.TaxRate, cfg.ShippingFee, "JPY")
	cancelUC := usecase.NewCancelUsecase(txm, gw, sm)
	webhookUC := usecase.NewWebhookUsecase(txm, sm, gw)
	fulfillUC := usecase.NewFulfillmentUsecase(txm, sm)

	verifier := webhook.NewVerifier(cfg.WebhookSecret, time.Duration(cfg.WebhookToleranceSec)*time.Second)

	//Handler生成
	orderH := handler.NewOrderHandler(orderUC, cancelUC)
	webhookH := handler.NewWebhookHandler(verifier, webhookUC)
	adminH := handler.NewAdminOrderHandler(fulfillUC, webhookUC)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(200, "ok")
	})

	orderH.RegisterRoutes(e, cfg)
	webhookH.RegisterRoutes(e)
	adminH.RegisterRoutes(e, cfg)

	addr := cfg.Port
	if addr[0] != ':' {
		addr = ":" + addr
	}

	if err := e.Start(addr); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
