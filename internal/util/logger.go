package util

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewZapLogger(cfg LogConfig) *zap.SugaredLogger {
	stdout := zapcore.AddSync(os.Stdout)

	lvl := zapcore.InfoLevel
	if err := lvl.Set(cfg.Level); err != nil {
		lvl = zapcore.InfoLevel
	}
	level := zap.NewAtomicLevelAt(lvl)

	var encoder zapcore.Encoder
	if cfg.Pretty {
		developmentCfg := zap.NewDevelopmentEncoderConfig()
		developmentCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(developmentCfg)
	} else {
		productionCfg := zap.NewProductionEncoderConfig()
		productionCfg.TimeKey = "ts"
		productionCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(productionCfg)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, stdout, level),
	)

	return zap.New(core).Sugar()
}
