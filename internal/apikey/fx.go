package apikey

import (
	"go.uber.org/fx"

	"github.com/fitmirror/fitmirror/internal/apikey/repository"
	"github.com/fitmirror/fitmirror/internal/apikey/service"
)

var Module = fx.Module("apikey",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
