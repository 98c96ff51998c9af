// Package ops serves the local operations endpoints: health, a job listing,
// and Prometheus metrics. It binds to loopback by default and carries no
// authentication, so keep it off public interfaces.
package ops

import (
	"bytes"
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/prometheus/common/expfmt"

	"github.com/tempobot/tempo/internal/pkg/logs"
	"github.com/tempobot/tempo/internal/pkg/metrics"
	"github.com/tempobot/tempo/internal/scheduler"
)

type Server struct {
	httpServer *hzServer.Hertz
	sched      *scheduler.Scheduler
}

func New(bind string, sched *scheduler.Scheduler) *Server {
	hlog.SetLogger(logs.NewHlogLogger(logs.DefaultLogger()))

	hzSvr := hzServer.Default(
		hzServer.WithHostPorts(bind),
		hzServer.WithReadTimeout(10*time.Second),
		hzServer.WithWriteTimeout(10*time.Second),
		hzServer.WithExitWaitTime(5*time.Second),
	)

	s := &Server{httpServer: hzSvr, sched: sched}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.httpServer.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	s.httpServer.GET("/jobs", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, utils.H{"jobs": s.sched.ListJobs()})
	})

	s.httpServer.GET("/metrics", func(ctx context.Context, c *app.RequestContext) {
		families, err := metrics.Registry().Gather()
		if err != nil {
			c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		var buf bytes.Buffer
		enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
		for _, mf := range families {
			if err := enc.Encode(mf); err != nil {
				c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
				return
			}
		}
		c.Data(consts.StatusOK, string(expfmt.FmtText), buf.Bytes())
	})
}

// Start serves in a background goroutine.
func (s *Server) Start() {
	go s.httpServer.Spin()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
