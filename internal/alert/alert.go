// Package alert fans tail-risk notifications out to chat channels
package alert

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"blackswan/internal/core"
)

type AlertLevel string

const (
	Info     AlertLevel = "INFO"
	Warning  AlertLevel = "WARNING"
	Error    AlertLevel = "ERROR"
	Critical AlertLevel = "CRITICAL"
)

const defaultChannelTimeout = 10 * time.Second

type AlertPayload struct {
	Level     AlertLevel
	Title     string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// SortedFieldKeys returns the field names in lexical order
func (p AlertPayload) SortedFieldKeys() []string {
	keys := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type AlertChannel interface {
	Send(ctx context.Context, alert AlertPayload) error
	Name() string
}

// Option configures an AlertManager
type Option func(*AlertManager)

// WithChannelTimeout bounds each channel's delivery attempt
func WithChannelTimeout(d time.Duration) Option {
	return func(am *AlertManager) {
		if d > 0 {
			am.timeout = d
		}
	}
}

type AlertManager struct {
	channels []AlertChannel
	logger   core.ILogger
	timeout  time.Duration
	mu       sync.RWMutex
}

func NewAlertManager(logger core.ILogger, opts ...Option) *AlertManager {
	am := &AlertManager{
		channels: make([]AlertChannel, 0),
		logger:   logger.WithField("component", "alert_manager"),
		timeout:  defaultChannelTimeout,
	}
	for _, opt := range opts {
		opt(am)
	}
	return am
}

func (am *AlertManager) AddChannel(ch AlertChannel) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.channels = append(am.channels, ch)
	am.logger.Info("Added alert channel", "name", ch.Name())
}

// ChannelCount returns the number of registered channels
func (am *AlertManager) ChannelCount() int {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return len(am.channels)
}

// Alert delivers to every channel concurrently and waits for all of them.
// Failures are logged and returned joined; one failing channel does not stop
// the others.
func (am *AlertManager) Alert(ctx context.Context, title, message string, level AlertLevel, fields map[string]string) error {
	payload := AlertPayload{
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    fields,
	}

	am.logger.Info("Triggering alert", "title", title, "level", level)

	am.mu.RLock()
	channels := append([]AlertChannel(nil), am.channels...)
	am.mu.RUnlock()

	errs := make([]error, len(channels))
	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Add(1)
		go func(i int, c AlertChannel) {
			defer wg.Done()
			timeoutCtx, cancel := context.WithTimeout(ctx, am.timeout)
			defer cancel()

			if err := c.Send(timeoutCtx, payload); err != nil {
				am.logger.Error("Failed to send alert", "channel", c.Name(), "error", err)
				errs[i] = fmt.Errorf("%s: %w", c.Name(), err)
			}
		}(i, ch)
	}
	wg.Wait()

	return errors.Join(errs...)
}
