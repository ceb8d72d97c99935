package shop

import (
	"github.com/fitmirror/fitmirror/internal/shop/repository"
	"github.com/fitmirror/fitmirror/internal/shop/service"
	"go.uber.org/fx"
)

var Module = fx.Module("shop.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
