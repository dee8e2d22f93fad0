package global

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type (
	Logging interface {
		Log() *zap.SugaredLogger
		Tracef(tag string, format string, args ...any)
		StartTracingTags(tags ...string)
		VerbosityLevel() int
		Infof0(template string, args ...any)
		Infof1(template string, args ...any)
		Infof2(template string, args ...any)
	}

	// StartStop interface of the global object which coordinates graceful shutdown of the session
	StartStop interface {
		Ctx() context.Context // global context of the client. Canceling means stopping the session
		Stop()
		IsShuttingDown() bool
		MarkWorkProcessStarted(name string)
		MarkWorkProcessStopped(name string)
		RepeatInBackground(name string, period time.Duration, fun func() bool, skipFirst ...bool) // runs background goroutine
	}

	Metrics interface {
		MetricsRegistry() *prometheus.Registry
	}

	ClientGlobal interface {
		Logging
		StartStop
		Metrics
	}
)
