package metrics

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/target/webfront-auth/internal/errors"
	"github.com/target/webfront-auth/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultDenied   = "denied"
	ResultError    = "error"
	ResultRejected = "rejected"
)

// Login kinds.
const (
	KindBasic  = "basic"
	KindUnsafe = "unsafe_direct"
	KindRemote = "remote"
)

// LoginMetric captures one login attempt.
type LoginMetric struct {
	Kind     string
	Scheme   string
	Result   string
	Duration time.Duration
	Err      error
}

// Recorder mirrors authentication metrics to StatsD and Prometheus.
// A nil Recorder drops everything.
type Recorder struct {
	sink statsd.Sink

	logins          *prometheus.CounterVec
	loginDuration   *prometheus.HistogramVec
	refreshes       *prometheus.CounterVec
	envelopeRejects *prometheus.CounterVec
	impersonations  *prometheus.CounterVec
}

// NewRecorder registers the collectors on reg. Either argument may be nil.
func NewRecorder(sink statsd.Sink, reg prometheus.Registerer) *Recorder {
	r := &Recorder{sink: sink}
	if reg == nil {
		return r
	}
	factory := promauto.With(reg)
	r.logins = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webfront",
		Name:      "logins_total",
		Help:      "Login attempts by kind, scheme and result",
	}, []string{"kind", "scheme", "result"})
	r.loginDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "webfront",
		Name:      "login_duration_seconds",
		Help:      "Time spent in login collaborators",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
	r.refreshes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webfront",
		Name:      "refresh_total",
		Help:      "Refresh calls by resulting level",
	}, []string{"level"})
	r.envelopeRejects = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webfront",
		Name:      "envelope_rejected_total",
		Help:      "Sealed values that failed to open, by purpose",
	}, []string{"purpose"})
	r.impersonations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webfront",
		Name:      "impersonations_total",
		Help:      "Impersonation requests by result",
	}, []string{"result"})
	return r
}

// Login records a login attempt.
func (r *Recorder) Login(in LoginMetric) {
	if r == nil {
		return
	}
	tags := map[string]string{"kind": in.Kind, "scheme": in.Scheme, "result": in.Result}
	if in.Err != nil && in.Result == ResultError {
		tags["error_class"] = Classify(in.Err)
	}
	if r.sink != nil {
		r.sink.Count("auth.login", 1, tags)
		if in.Duration > 0 {
			r.sink.Timing("auth.login.duration", in.Duration, map[string]string{"kind": in.Kind})
		}
	}
	if r.logins != nil {
		r.logins.WithLabelValues(in.Kind, in.Scheme, in.Result).Inc()
		if in.Duration > 0 {
			r.loginDuration.WithLabelValues(in.Kind).Observe(in.Duration.Seconds())
		}
	}
}

// Refresh records a refresh answered at level.
func (r *Recorder) Refresh(level string) {
	if r == nil {
		return
	}
	if r.sink != nil {
		r.sink.Count("auth.refresh", 1, map[string]string{"level": level})
	}
	if r.refreshes != nil {
		r.refreshes.WithLabelValues(level).Inc()
	}
}

// EnvelopeRejected records a sealed value that did not open.
func (r *Recorder) EnvelopeRejected(purpose string) {
	if r == nil {
		return
	}
	if r.sink != nil {
		r.sink.Count("auth.envelope.rejected", 1, map[string]string{"purpose": purpose})
	}
	if r.envelopeRejects != nil {
		r.envelopeRejects.WithLabelValues(purpose).Inc()
	}
}

// Impersonation records an impersonation request.
func (r *Recorder) Impersonation(result string) {
	if r == nil {
		return
	}
	if r.sink != nil {
		r.sink.Count("auth.impersonation", 1, map[string]string{"result": result})
	}
	if r.impersonations != nil {
		r.impersonations.WithLabelValues(result).Inc()
	}
}

// Classify returns a normalized error class suitable for tagging metrics/logs.
// Application errors use their code; other errors the innermost concrete type name.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
}
