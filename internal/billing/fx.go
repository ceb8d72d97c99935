package billing

import (
	"go.uber.org/fx"

	"github.com/fitmirror/fitmirror/internal/billing/repository"
	"github.com/fitmirror/fitmirror/internal/billing/service"
)

var Module = fx.Module("billing",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
