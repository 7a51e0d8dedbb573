package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a zap logger that writes JSON to the given log file path
// and also writes to stderr. Account name and PID are included as initial fields.
func New(logPath, accountName string) (*zap.Logger, error) {
	fileCore, err := fileCore(logPath)
	if err != nil {
		return nil, err
	}

	encoderCfg := encoderConfig()
	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	stderrCore := zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stderr), zapcore.InfoLevel)

	return zap.New(zapcore.NewTee(fileCore, stderrCore), initialFields(accountName)), nil
}

// NewFile creates a zap logger that writes JSON only to the given log file.
// The interactive client uses this one: stderr belongs to the terminal UI.
func NewFile(logPath, accountName string) (*zap.Logger, error) {
	core, err := fileCore(logPath)
	if err != nil {
		return nil, err
	}
	return zap.New(core, initialFields(accountName)), nil
}

func fileCore(logPath string) (zapcore.Core, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	jsonEncoder := zapcore.NewJSONEncoder(encoderConfig())
	return zapcore.NewCore(jsonEncoder, zapcore.AddSync(file), zapcore.InfoLevel), nil
}

func encoderConfig() zapcore.EncoderConfig {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return encoderCfg
}

func initialFields(accountName string) zap.Option {
	return zap.Fields(
		zap.String("account", accountName),
		zap.Int("pid", os.Getpid()),
	)
}
