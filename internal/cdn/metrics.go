package cdn

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 导出上传流水线与访问器的 Prometheus 指标。
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	lookups  *prometheus.CounterVec
}

// NewMetrics 在 reg 上注册指标；reg 为空时使用默认 Registerer。
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cdn_hub",
			Name:      "uploads_total",
			Help:      "Upload pipeline runs by outcome.",
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cdn_hub",
			Name:      "upload_duration_seconds",
			Help:      "Wall time of upload pipeline runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cdn_hub",
			Name:      "cache_lookups_total",
			Help:      "Accessor lookups split by whether a CDN URL was served.",
		}, []string{"hit"}),
	}

	if err := register(reg, &m.runs); err != nil {
		return nil, err
	}
	if err := register(reg, &m.duration); err != nil {
		return nil, err
	}
	if err := register(reg, &m.lookups); err != nil {
		return nil, err
	}
	return m, nil
}

// register 注册 collector；同名指标已存在时复用已有实例，类型不一致则报错。
func register[T prometheus.Collector](reg prometheus.Registerer, collector *T) error {
	err := reg.Register(*collector)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return fmt.Errorf("register cdn metric: %w", err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("register cdn metric: existing collector has type %T", are.ExistingCollector)
	}
	*collector = existing
	return nil
}

func (m *Metrics) observeRun(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := resultLabel(err)
	m.runs.WithLabelValues(result).Inc()
	m.duration.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) observeLookup(hit bool) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(strconv.FormatBool(hit)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "resolved"
	case errors.Is(err, errStaleTicket):
		return "superseded"
	case errors.Is(err, ErrLocalFileMissing):
		return "missing"
	case errors.Is(err, ErrNotARegularFile):
		return "not_file"
	case errors.Is(err, ErrInvalidPath):
		return "invalid_path"
	case errors.Is(err, ErrUploadNotConfirmed):
		return "unconfirmed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrRemoteUpload):
		return "upload_error"
	default:
		return "error"
	}
}
