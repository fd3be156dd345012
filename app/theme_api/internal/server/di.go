package server

import (
	"github.com/google/wire"

	"github.com/iWorld-y/theme_synth/app/theme_api/internal/data"
	"github.com/iWorld-y/theme_synth/app/theme_api/internal/service"
	"github.com/iWorld-y/theme_synth/app/theme_api/internal/usecase"
)

// ProviderSet 是主题服务的依赖注入 Provider 集合
var ProviderSet = wire.NewSet(
	// Server providers
	NewHTTPServer,

	// Data providers
	data.NewData,
	data.NewThemeRepo,

	// UseCase providers
	usecase.NewThemeUseCase,

	// Service providers
	service.NewThemeService,
)
