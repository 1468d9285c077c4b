package fxrate

import (
	"github.com/smallbiznis/stockbook/internal/fxrate/repository"
	"github.com/smallbiznis/stockbook/internal/fxrate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fxrate.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		fx.Annotate(service.NewStaticSource, fx.ResultTags(`group:"fx_sources"`)),
	),
	fx.Provide(service.New),
	fx.Provide(service.NewProvider),
)
