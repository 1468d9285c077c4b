package pdf

import (
	"github.com/smallbiznis/stockbook/internal/report/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(
		fx.Annotate(New, fx.As(new(domain.Renderer))),
	),
)

type PDFProvider struct{}

func New() *PDFProvider {
	return &PDFProvider{}
}
