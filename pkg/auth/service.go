package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/authgate/pkg/async"
	"github.com/platinummonkey/authgate/pkg/contextkeys"
	"github.com/platinummonkey/authgate/pkg/identity"
	"github.com/platinummonkey/authgate/pkg/observability"
	"github.com/platinummonkey/authgate/pkg/provisioning"
	"github.com/platinummonkey/authgate/pkg/session"
	"github.com/platinummonkey/authgate/pkg/users"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const provisioningTask = "provisioning notification"

var (
	// ErrInvalidIdentityToken means the identity token failed verification
	ErrInvalidIdentityToken = errors.New("invalid identity token")
	// ErrUserNotFound means no user has the requested ID
	ErrUserNotFound = errors.New("user not found")
	// ErrInternal wraps every unexpected failure
	ErrInternal = errors.New("internal error")
)

// LoginRequest is the input of Login. Department is only applied when a new
// user is created.
type LoginRequest struct {
	IDToken    string
	Department *string
}

// LoginResult is the outcome of a successful login
type LoginResult struct {
	Token     string
	User      *users.User
	IsNewUser bool
}

// Service runs the login workflow and read-only user queries
type Service struct {
	verifier identity.Verifier
	dir      users.Directory
	issuer   *session.Issuer
	notifier provisioning.Notifier

	metrics       *observability.Metrics
	logger        *logrus.Logger
	tracer        trace.Tracer
	notifyTimeout time.Duration
	asyncNotify   bool

	inflight sync.WaitGroup
}

// Option configures a Service
type Option func(*Service)

// WithMetrics records login and provisioning metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the fallback logger for calls without a request logger
func WithLogger(l *logrus.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNotifyTimeout bounds the provisioning call
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// WithAsyncNotify makes Login return without waiting for the provisioning call
func WithAsyncNotify(enabled bool) Option {
	return func(s *Service) {
		s.asyncNotify = enabled
	}
}

// NewService wires the login workflow. A nil notifier disables provisioning.
func NewService(v identity.Verifier, dir users.Directory, iss *session.Issuer, n provisioning.Notifier, opts ...Option) *Service {
	if n == nil {
		n = provisioning.NopNotifier{}
	}

	s := &Service{
		verifier:      v,
		dir:           dir,
		issuer:        iss,
		notifier:      n,
		logger:        logrus.StandardLogger(),
		tracer:        otel.Tracer("github.com/platinummonkey/authgate/pkg/auth"),
		notifyTimeout: provisioning.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) log(ctx context.Context) *logrus.Entry {
	if _, ok := ctx.Value(contextkeys.LoggerKey).(*logrus.Entry); ok {
		return observability.FromContext(ctx)
	}
	return observability.FromContext(observability.WithLogger(ctx, logrus.NewEntry(s.logger)))
}

// Login verifies the identity token, resolves or creates the user and issues a
// session token
func (s *Service) Login(ctx context.Context, req LoginRequest) (res *LoginResult, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "auth.Login")
	outcome := observability.OutcomeError

	defer func() {
		s.metrics.ObserveLogin(outcome, time.Since(start))
		span.SetAttributes(attribute.String("auth.outcome", outcome))
		if err != nil && outcome == observability.OutcomeError {
			span.RecordError(err)
			span.SetStatus(codes.Error, "login failed")
		}
		span.End()
	}()

	log := s.log(ctx)

	verified, err := s.verifier.Verify(ctx, req.IDToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			outcome = observability.OutcomeRejected
			log.WithError(err).Debug("Identity token verification failed")
			log.Warn("Rejected invalid identity token")
			return nil, ErrInvalidIdentityToken
		}
		log.WithError(err).Error("Identity verification error")
		return nil, fmt.Errorf("%w: verify identity: %v", ErrInternal, err)
	}

	user, isNew, err := s.resolve(ctx, log, verified, req.Department)
	if err != nil {
		log.WithError(err).Error("Failed to resolve user")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	ctx = contextkeys.WithUserID(ctx, user.ID)
	log = log.WithField("user_id", user.ID)
	span.SetAttributes(attribute.Bool("auth.new_user", isNew))

	token, err := s.issuer.Issue(user)
	if err != nil {
		log.WithError(err).Error("Failed to issue session token")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if isNew {
		log.Info("Created user, notifying provisioning service")
		s.provision(ctx, log, user.ID, token)
		outcome = observability.OutcomeNewUser
	} else {
		outcome = observability.OutcomeExistingUser
	}

	return &LoginResult{Token: token, User: user, IsNewUser: isNew}, nil
}

// resolve returns the user owning the verified email, creating it when absent.
// A create that loses a concurrent race re-resolves once and is reported as an
// existing user.
func (s *Service) resolve(ctx context.Context, log *logrus.Entry, id *identity.VerifiedIdentity, department *string) (*users.User, bool, error) {
	existing, err := s.dir.FindByEmail(ctx, id.Email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, users.ErrNotFound) {
		return nil, false, fmt.Errorf("find user by email: %w", err)
	}

	created, err := s.dir.Save(ctx, &users.User{
		Email:      id.Email,
		Name:       optional(id.Name),
		AvatarURL:  optional(id.Picture),
		Role:       users.DefaultRole,
		Department: department,
	})
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, users.ErrEmailTaken) {
		return nil, false, fmt.Errorf("create user: %w", err)
	}

	s.metrics.ObserveSignupRace()
	log.Info("Concurrent signup detected, resolving existing user")

	existing, err = s.dir.FindByEmail(ctx, id.Email)
	if err != nil {
		return nil, false, fmt.Errorf("re-resolve user after signup race: %w", err)
	}
	return existing, false, nil
}

// provision notifies the downstream service about a new user. Failures are
// logged and discarded.
func (s *Service) provision(ctx context.Context, log *logrus.Entry, userID, token string) {
	task := func(ctx context.Context) error {
		start := time.Now()
		err := s.notifier.NotifyNewUser(ctx, userID, token)
		s.metrics.ObserveProvisioning(err, time.Since(start))
		return err
	}

	failures := log.WithField("event", "ProvisioningSideEffectFailure")

	if s.asyncNotify {
		s.inflight.Add(1)
		async.SafeGo(ctx, s.notifyTimeout, provisioningTask, failures, func(ctx context.Context) error {
			defer s.inflight.Done()
			return task(ctx)
		})
		return
	}

	if err := async.Detached(ctx, s.notifyTimeout, provisioningTask, task); err != nil {
		failures.WithError(err).Warn("Provisioning notification failed")
	}
}

// Drain waits for background provisioning notifications to finish
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetUser returns the user with the given ID
func (s *Service) GetUser(ctx context.Context, id string) (*users.User, error) {
	u, err := s.dir.FindByID(ctx, id)
	if errors.Is(err, users.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		s.log(ctx).WithError(err).WithField("user_id", id).Error("Failed to fetch user")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return u, nil
}

// ListUsers returns every user
func (s *Service) ListUsers(ctx context.Context) ([]*users.User, error) {
	all, err := s.dir.FindAll(ctx)
	if err != nil {
		s.log(ctx).WithError(err).Error("Failed to list users")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return all, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
