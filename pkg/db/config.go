package db

import (
	"github.com/smallbiznis/stockbook/internal/config"
)

type Config struct {
	Path          string
	BusyTimeoutMS int
}

func NewConfig(cfg config.Config) Config {
	return Config{
		Path:          cfg.DBPath,
		BusyTimeoutMS: cfg.DBBusyTimeoutMS,
	}
}
