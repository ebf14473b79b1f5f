package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

// Init は環境に応じてzapを初期化する（prod=JSON / それ以外=開発用）
func Init(env string) {
	var cfg zap.Config

	if env == "prod" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.OutputPaths = []string{"stdout"}
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var err error
	log, err = cfg.Build(zap.AddCaller())
	if err != nil {
		panic(err)
	}
}

// L はグローバルlogger
func L() *zap.Logger {
	if log == nil {
		Init(os.Getenv("GO_ENV"))
	}
	return log
}

// Sync はバッファをflushする（終了時に呼ぶ）
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
