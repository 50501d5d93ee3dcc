package main

import (
	"github.com/septivank/utility-billing-service/internal/config"
	"github.com/septivank/utility-billing-service/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}
