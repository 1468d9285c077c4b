package auth

import (
	"github.com/smallbiznis/stockbook/internal/auth/repository"
	"github.com/smallbiznis/stockbook/internal/auth/service"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
