package edgex

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ZapLoggerConfig = zap.Config{
	Level:       zap.NewAtomicLevelAt(zap.InfoLevel),
	Development: false,
	Encoding:    "console",
	EncoderConfig: zapcore.EncoderConfig{
		// Keys can be anything except the empty string.
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		MessageKey:     "M",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	},
	OutputPaths:      []string{"stdout"},
	ErrorOutputPaths: []string{"stderr"},
}

var ZapLogger = NewZapLogger()
var ZapSugarLogger = NewZapSugarLogger()

var log = ZapSugarLogger

func ZapLoggerConfig() zap.Config {
	return _ZapLoggerConfig
}

func NewZapLogger() *zap.Logger {
	logger, err := _ZapLoggerConfig.Build()
	if nil != err {
		return zap.NewNop()
	}
	return logger
}

func NewZapSugarLogger() *zap.SugaredLogger {
	return ZapLogger.Sugar()
}

// SetLogLevel 修改全局日志级别。无法识别的级别名称保持原级别不变。
func SetLogLevel(level string) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); nil != err {
		log.Warnf("Unknown log level: %s", level)
		return
	}
	_ZapLoggerConfig.Level.SetLevel(lvl)
}

// SetVerbose 开启或关闭Debug级别输出
func SetVerbose(verbose bool) {
	if verbose {
		_ZapLoggerConfig.Level.SetLevel(zap.DebugLevel)
	} else {
		_ZapLoggerConfig.Level.SetLevel(zap.InfoLevel)
	}
}
