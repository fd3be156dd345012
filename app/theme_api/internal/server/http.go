package server

import (
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iWorld-y/theme_synth/app/theme_api/internal/conf"
	"github.com/iWorld-y/theme_synth/app/theme_api/internal/service"
)

func NewHTTPServer(c *conf.Server, s *service.ThemeService, logger log.Logger) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			logging.Server(logger),
		),
	}
	if c != nil && c.Http != nil {
		if c.Http.Addr != "" {
			opts = append(opts, http.Address(c.Http.Addr))
		}
		if c.Http.Timeout != "" {
			if d, err := time.ParseDuration(c.Http.Timeout); err == nil {
				opts = append(opts, http.Timeout(d))
			}
		}
	}

	srv := http.NewServer(opts...)

	r := srv.Route("/api/v1")
	r.POST("/tenants/{tenant}/runs", s.TriggerRun)
	r.GET("/tenants/{tenant}/themes", s.ListThemes)

	// 合成引擎的 prometheus 指标
	srv.Handle("/metrics", promhttp.Handler())

	return srv
}
