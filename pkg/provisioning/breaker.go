package provisioning

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerConfig configures BreakerNotifier
type BreakerConfig struct {
	// Name identifies the breaker in logs
	Name string
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before a trial call
	OpenTimeout time.Duration
	// Interval clears failure counts while closed; 0 never clears
	Interval time.Duration
}

// DefaultBreakerConfig returns the breaker defaults
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:        "provisioning",
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
	}
}

// BreakerNotifier stops calling a failing downstream until it recovers.
// While open, notifications fail immediately with gobreaker.ErrOpenState.
type BreakerNotifier struct {
	next Notifier
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerNotifier wraps next with a circuit breaker
func NewBreakerNotifier(next Notifier, cfg BreakerConfig, logger *logrus.Logger) *BreakerNotifier {
	if cfg.Name == "" {
		cfg.Name = "provisioning"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Provisioning circuit breaker state changed")
		},
	}

	return &BreakerNotifier{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// NotifyNewUser forwards to the wrapped notifier unless the circuit is open
func (b *BreakerNotifier) NotifyNewUser(ctx context.Context, userID, bearerToken string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.NotifyNewUser(ctx, userID, bearerToken)
	})
	return err
}

// State reports the current breaker state
func (b *BreakerNotifier) State() gobreaker.State {
	return b.cb.State()
}
