// Package alertdispatch is the cooldown-gated alert dispatcher: it picks
// channels per severity and hands alerts to external transports. Failed
// sends do not update last-sent, so the next cycle retries.
package alertdispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetops/fuelcore/internal/models"
)

// Alert is one dispatchable notification about a truck condition.
type Alert struct {
	TruckID   string
	AlertType string
	Severity  models.Severity
	Title     string
	Message   string
	Timestamp time.Time

	// Recovered marks an OK/recovery alert: never dispatched, but clears
	// the cooldown entry so the next escalation goes out immediately.
	Recovered bool
}

// EmailSender delivers one alert by email.
type EmailSender interface {
	SendEmail(ctx context.Context, subject, body string) error
}

// SMSSender delivers one alert by SMS.
type SMSSender interface {
	SendSMS(ctx context.Context, message string) error
}

// InAppSink receives alerts that stay inside the application (dashboard
// toast, websocket push). Delivery is best-effort.
type InAppSink interface {
	Notify(alert Alert)
}

type cooldownKey struct {
	truckID   string
	alertType string
}

// Dispatcher owns the process-wide cooldown map and the configured
// transports. All methods are safe for concurrent use.
type Dispatcher struct {
	email    EmailSender
	sms      SMSSender
	inApp    InAppSink
	cooldown time.Duration
	timeout  time.Duration

	mu       sync.Mutex
	lastSent map[cooldownKey]time.Time
}

// New returns a Dispatcher. Any transport may be nil; nil transports are
// skipped at dispatch time.
func New(email EmailSender, sms SMSSender, inApp InAppSink, cooldown, transportTimeout time.Duration) *Dispatcher {
	if cooldown <= 0 {
		cooldown = 60 * time.Minute
	}
	if transportTimeout <= 0 {
		transportTimeout = 10 * time.Second
	}
	return &Dispatcher{
		email:    email,
		sms:      sms,
		inApp:    inApp,
		cooldown: cooldown,
		timeout:  transportTimeout,
		lastSent: make(map[cooldownKey]time.Time),
	}
}

// Dispatch applies the cooldown and channel rules to one alert and returns
// true if it was sent on at least one channel. Transport errors are logged
// and swallowed; a fully failed send does not update last-sent, so the next
// cycle retries.
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert) bool {
	key := cooldownKey{alert.TruckID, alert.AlertType}

	if alert.Recovered {
		d.mu.Lock()
		delete(d.lastSent, key)
		d.mu.Unlock()
		return false
	}

	critical := alert.Severity == models.SeverityCritical

	d.mu.Lock()
	last, seen := d.lastSent[key]
	if !critical && seen && alert.Timestamp.Sub(last) < d.cooldown {
		d.mu.Unlock()
		log.Debug().
			Str("truck_id", alert.TruckID).
			Str("alert_type", alert.AlertType).
			Time("last_sent", last).
			Msg("alert suppressed by cooldown")
		return false
	}
	d.mu.Unlock()

	sent := d.send(ctx, alert)
	if sent {
		d.mu.Lock()
		d.lastSent[key] = alert.Timestamp
		d.mu.Unlock()
	}
	return sent
}

// send fans the alert out to the channels its severity selects: CRITICAL
// goes to SMS and email, HIGH to email, everything else in-app only.
func (d *Dispatcher) send(ctx context.Context, alert Alert) bool {
	sent := false

	if d.inApp != nil {
		d.inApp.Notify(alert)
		sent = true
	}

	switch alert.Severity {
	case models.SeverityCritical:
		sent = d.sendSMS(ctx, alert) || sent
		sent = d.sendEmail(ctx, alert) || sent
	case models.SeverityHigh:
		sent = d.sendEmail(ctx, alert) || sent
	}

	return sent
}

func (d *Dispatcher) sendEmail(ctx context.Context, alert Alert) bool {
	if d.email == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.email.SendEmail(ctx, alert.Title, alert.Message); err != nil {
		log.Warn().
			Err(err).
			Str("truck_id", alert.TruckID).
			Str("alert_type", alert.AlertType).
			Msg("email alert delivery failed")
		return false
	}
	return true
}

func (d *Dispatcher) sendSMS(ctx context.Context, alert Alert) bool {
	if d.sms == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.sms.SendSMS(ctx, alert.Title+": "+alert.Message); err != nil {
		log.Warn().
			Err(err).
			Str("truck_id", alert.TruckID).
			Str("alert_type", alert.AlertType).
			Msg("sms alert delivery failed")
		return false
	}
	return true
}

// LastSent reports when (truckID, alertType) was last successfully
// dispatched, for tests and the sensor-health summary.
func (d *Dispatcher) LastSent(truckID, alertType string) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.lastSent[cooldownKey{truckID, alertType}]
	return t, ok
}
