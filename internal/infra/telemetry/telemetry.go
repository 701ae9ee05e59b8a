package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/config"
)

// Login outcome labels recorded by the provider.
const (
	LoginResultSuccess            = "success"
	LoginResultInvalidCredentials = "invalid_credentials"
	LoginResultLocked             = "locked"
)

// Provider represents a telemetry provider handle.
type Provider struct {
	logins               *prometheus.CounterVec
	lockouts             prometheus.Counter
	auditAppends         prometheus.Counter
	auditWriteFailures   prometheus.Counter
	sessionsPurged       prometheus.Counter
	alarmPublishFailures prometheus.Counter
}

// Attach registers the auth metrics and returns a provider handle. HTTP
// request metrics live with the transport middleware, not here.
func Attach(_ context.Context, cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	logins := promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authcore",
		Name:      "logins_total",
		Help:      "Login attempts partitioned by outcome",
	}, []string{"result"})

	lockouts := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authcore",
		Name:      "lockouts_total",
		Help:      "Accounts locked after consecutive login failures",
	})

	auditAppends := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authcore",
		Name:      "audit_events_total",
		Help:      "Audit events appended to the trail",
	})

	auditWriteFailures := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authcore",
		Name:      "audit_write_failures_total",
		Help:      "Audit append failures escalated to the alarm channel",
	})

	sessionsPurged := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authcore",
		Name:      "sessions_purged_total",
		Help:      "Expired sessions removed by the maintenance sweep",
	})

	alarmPublishFailures := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authcore",
		Name:      "alarm_publish_failures_total",
		Help:      "Alarm events that failed to reach the message broker",
	})

	return &Provider{
		logins:               logins,
		lockouts:             lockouts,
		auditAppends:         auditAppends,
		auditWriteFailures:   auditWriteFailures,
		sessionsPurged:       sessionsPurged,
		alarmPublishFailures: alarmPublishFailures,
	}, nil
}

// RecordLogin increments the login counter for the given outcome.
func (p *Provider) RecordLogin(result string) {
	if p == nil || p.logins == nil {
		return
	}
	p.logins.WithLabelValues(result).Inc()
}

// RecordLockout increments the lockout counter.
func (p *Provider) RecordLockout() {
	if p == nil || p.lockouts == nil {
		return
	}
	p.lockouts.Inc()
}

// RecordAuditAppend increments the audit append counter.
func (p *Provider) RecordAuditAppend() {
	if p == nil || p.auditAppends == nil {
		return
	}
	p.auditAppends.Inc()
}

// RecordAuditWriteFailure increments the audit write failure counter.
func (p *Provider) RecordAuditWriteFailure() {
	if p == nil || p.auditWriteFailures == nil {
		return
	}
	p.auditWriteFailures.Inc()
}

// RecordSessionsPurged adds the purged session count from a maintenance sweep.
func (p *Provider) RecordSessionsPurged(count int64) {
	if p == nil || p.sessionsPurged == nil || count <= 0 {
		return
	}
	p.sessionsPurged.Add(float64(count))
}

// RecordAlarmPublishFailure increments the alarm publish failure counter.
func (p *Provider) RecordAlarmPublishFailure() {
	if p == nil || p.alarmPublishFailures == nil {
		return
	}
	p.alarmPublishFailures.Inc()
}
