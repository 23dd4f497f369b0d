package utils

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger builds a zap logger that writes to stdout and to a rotated file
// under path. The file is named after the application.
func InitLogger(path, appName string, debug bool) (*zap.Logger, error) {
	if path != "" {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, err
		}
	}
	if appName == "" {
		appName = "isp-portal"
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if debug {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.CallerKey = "caller"
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	encoder := zapcore.NewJSONEncoder(encoderConfig)
	if debug {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	logLevel := zap.InfoLevel
	if debug {
		logLevel = zap.DebugLevel
	}

	// rotated file sink, always JSON so log shippers can parse it
	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(path, appName+".log"),
		MaxSize:    10, // MB
		MaxBackups: 7,
		MaxAge:     28, // days
		Compress:   true,
	})

	consoleWriter := zapcore.AddSync(os.Stdout)

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileWriter, logLevel),
		zapcore.NewCore(encoder, consoleWriter, logLevel),
	)

	return zap.New(core, zap.AddCaller()), nil
}
