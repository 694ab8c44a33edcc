package container

import (
	"fmt"

	"github.com/samber/do"
	"go.uber.org/zap"
)

// LoggerPackage provides the shared *zap.Logger.
func LoggerPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		return NewLogger(opts.LogFormat, opts.LogLevel)
	})
}

// NewLogger builds a production logger for the json format and a development logger otherwise.
func NewLogger(format, level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console", "":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}

	cfg.Level = lvl

	return cfg.Build()
}
