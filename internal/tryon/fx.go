package tryon

import (
	"github.com/fitmirror/fitmirror/internal/tryon/repository"
	"github.com/fitmirror/fitmirror/internal/tryon/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tryon.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
