package global

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Global struct {
	*zap.SugaredLogger
	ctx             context.Context
	stopFun         context.CancelFunc
	logVerbosity    int
	metricsRegistry *prometheus.Registry
	shutdown        atomic.Bool

	traceTagsMutex sync.RWMutex
	traceTags      map[string]struct{}

	wpMutex        sync.Mutex
	wgWorkProcess  sync.WaitGroup
	workProcesses  map[string]struct{}
	stoppedCounter int
}

const TraceTagGlobal = "global"

func New(level zapcore.Level, verbosity int, metricsEnabled bool) *Global {
	ctx, cancelFun := context.WithCancel(context.Background())
	ret := &Global{
		SugaredLogger: newLogger(level),
		ctx:           ctx,
		stopFun:       cancelFun,
		logVerbosity:  verbosity,
		traceTags:     make(map[string]struct{}),
		workProcesses: make(map[string]struct{}),
	}
	if metricsEnabled {
		ret.metricsRegistry = prometheus.NewRegistry()
	}
	return ret
}

// NewDefault is used in tests and in the CLI commands which do not read the logging profile
func NewDefault() *Global {
	return New(zapcore.InfoLevel, 0, true)
}

// NewFromConfig reads 'logging.level', 'verbose' and 'metrics.disable' from the profile
func NewFromConfig() *Global {
	level := zapcore.InfoLevel
	if lvlStr := viper.GetString("logging.level"); lvlStr != "" {
		if lvl, err := zapcore.ParseLevel(lvlStr); err == nil {
			level = lvl
		}
	}
	verbosity := 0
	if viper.GetBool("verbose") {
		verbosity = 1
	}
	if viper.GetBool("v2") {
		verbosity = 2
	}
	ret := New(level, verbosity, !viper.GetBool("metrics.disable"))
	if tags := viper.GetStringSlice("logging.trace_tags"); len(tags) > 0 {
		ret.StartTracingTags(tags...)
	}
	return ret
}

func newLogger(level zapcore.Level) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("01-02 15:04:05.000")
	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Errorf("can't build logger: %w", err))
	}
	return logger.Sugar()
}

func (l *Global) Log() *zap.SugaredLogger {
	return l.SugaredLogger
}

func (l *Global) Ctx() context.Context {
	return l.ctx
}

func (l *Global) Stop() {
	if l.shutdown.CompareAndSwap(false, true) {
		l.Log().Info("global STOP invoked..")
		l.stopFun()
	}
}

func (l *Global) IsShuttingDown() bool {
	return l.shutdown.Load()
}

func (l *Global) MetricsRegistry() *prometheus.Registry {
	return l.metricsRegistry
}

func (l *Global) VerbosityLevel() int {
	return l.logVerbosity
}

func (l *Global) Infof0(template string, args ...any) {
	l.Log().Infof(template, args...)
}

func (l *Global) Infof1(template string, args ...any) {
	if l.logVerbosity >= 1 {
		l.Log().Infof(template, args...)
	}
}

func (l *Global) Infof2(template string, args ...any) {
	if l.logVerbosity >= 2 {
		l.Log().Infof(template, args...)
	}
}

func (l *Global) StartTracingTags(tags ...string) {
	l.traceTagsMutex.Lock()
	defer l.traceTagsMutex.Unlock()

	for _, t := range tags {
		for _, st := range strings.Split(t, ",") {
			if st = strings.TrimSpace(st); st != "" {
				l.traceTags[st] = struct{}{}
			}
		}
	}
}

func (l *Global) Tracef(tag string, format string, args ...any) {
	l.traceTagsMutex.RLock()
	_, enabled := l.traceTags[tag]
	l.traceTagsMutex.RUnlock()

	if enabled {
		l.Log().Infof("TRACE("+tag+") "+format, args...)
	}
}

func (l *Global) MarkWorkProcessStarted(name string) {
	l.wpMutex.Lock()
	defer l.wpMutex.Unlock()

	_, already := l.workProcesses[name]
	if already {
		panic(fmt.Errorf("MarkWorkProcessStarted: repeating work process '%s'", name))
	}
	l.wgWorkProcess.Add(1)
	l.workProcesses[name] = struct{}{}
}

func (l *Global) MarkWorkProcessStopped(name string) {
	l.wpMutex.Lock()
	defer l.wpMutex.Unlock()

	if _, ok := l.workProcesses[name]; !ok {
		return
	}
	delete(l.workProcesses, name)
	l.stoppedCounter++
	l.wgWorkProcess.Done()
}

// WorkProcesses returns sorted names of running background processes
func (l *Global) WorkProcesses() []string {
	l.wpMutex.Lock()
	defer l.wpMutex.Unlock()

	ret := make([]string, 0, len(l.workProcesses))
	for name := range l.workProcesses {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// WaitAllWorkProcessesStop returns false on timeout
func (l *Global) WaitAllWorkProcessesStop(timeout ...time.Duration) bool {
	waitTimeout := 10 * time.Second
	if len(timeout) > 0 {
		waitTimeout = timeout[0]
	}
	done := make(chan struct{})
	go func() {
		l.wgWorkProcess.Wait()
		close(done)
	}()
	select {
	case <-done:
		l.Tracef(TraceTagGlobal, "all work processes stopped")
		return true
	case <-time.After(waitTimeout):
		l.Log().Warnf("work processes did not stop in %v: %v", waitTimeout, l.WorkProcesses())
		return false
	}
}
