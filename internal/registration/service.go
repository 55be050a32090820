package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/colcon/colcon-site/internal/events"
)

// Operation names reported to Instrumentation.
const (
	OpRegister = "register"
	OpList     = "list"
	OpVerify   = "verify_email"
)

// maxIDAttempts bounds regeneration of a colliding generated id.
const maxIDAttempts = 5

// Store is the persistence port of the service.
type Store interface {
	Load(ctx context.Context) (*Document, error)
	Update(ctx context.Context, fn func(*Document) error) (*Document, error)
}

// Instrumentation receives per-operation outcomes.
type Instrumentation interface {
	ObserveOperation(operation, outcome string)
}

// InputError is a rejected payload. It matches ErrInvalidInput.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *InputError) Unwrap() error { return ErrInvalidInput }

// ServiceConfig holds optional collaborators of the Service.
type ServiceConfig struct {
	Publisher events.Publisher
	Metrics   Instrumentation
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func(time.Time) string
	// FoldEmailCase makes the duplicate check ignore case and surrounding
	// spaces. Off by default: emails are compared exactly as submitted.
	FoldEmailCase bool
}

// Service implements register, list and verify-email on top of a Store.
type Service struct {
	store     Store
	publisher events.Publisher
	metrics   Instrumentation
	logger    *slog.Logger
	validate  *validator.Validate
	now       func() time.Time
	newID     func(time.Time) string
	foldEmail bool
}

// NewService builds a Service.
func NewService(store Store, cfg ServiceConfig) *Service {
	s := &Service{
		store:     store,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		validate:  validator.New(),
		now:       cfg.Now,
		newID:     cfg.NewID,
		foldEmail: cfg.FoldEmailCase,
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = NewUserID
	}
	return s
}

// Register creates a user record. It fails with ErrInvalidInput when email
// or password is missing and with ErrConflict when the email (or a supplied
// id) is already taken.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	req.ID = strings.TrimSpace(req.ID)
	// Blank counts as missing; the stored email keeps its original form.
	check := req
	check.Email = strings.TrimSpace(check.Email)
	if err := s.validate.Struct(check); err != nil {
		return nil, s.observe(OpRegister, &InputError{Message: ErrInvalidInput.Error()})
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, s.observe(OpRegister, &InputError{Message: "invalid status"})
	}

	now := s.now().UTC()
	record := UserRecord{
		ID:               req.ID,
		Email:            req.Email,
		Password:         req.Password,
		Timestamp:        now,
		Status:           StatusPending,
		RegistrationDate: now,
		EmailVerified:    req.EmailVerified,
	}
	if !req.Timestamp.IsZero() {
		record.Timestamp = req.Timestamp.UTC()
	}
	if !req.RegistrationDate.IsZero() {
		record.RegistrationDate = req.RegistrationDate.UTC()
	}
	if req.Status != "" {
		record.Status = req.Status
	}

	doc, err := s.store.Update(ctx, func(doc *Document) error {
		if s.emailTaken(doc, record.Email) {
			return fmt.Errorf("%w: %s", ErrConflict, record.Email)
		}
		if record.ID != "" {
			if doc.FindByID(record.ID) >= 0 {
				return fmt.Errorf("%w: id %s", ErrConflict, record.ID)
			}
		} else {
			id, err := s.uniqueID(doc, now)
			if err != nil {
				return err
			}
			record.ID = id
		}
		doc.Users = append(doc.Users, record)
		return nil
	})
	if err != nil {
		return nil, s.observe(OpRegister, err)
	}
	s.observe(OpRegister, nil)

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", record.ID),
		slog.String("email", record.Email),
		slog.Int("total_users", doc.TotalUsers))
	s.publish(ctx, events.Event{Type: events.TypeRegistered, UserID: record.ID, Email: record.Email, OccurredAt: now})

	return &RegisterResult{UserID: record.ID, Email: record.Email}, nil
}

// ListAll returns the whole document, passwords included. Trusted callers only.
func (s *Service) ListAll(ctx context.Context) (*Document, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, s.observe(OpList, err)
	}
	s.observe(OpList, nil)
	return doc, nil
}

// VerifyEmail marks the user active and verified. The token is accepted
// without validation. A blank userId matches no record and is ErrNotFound.
func (s *Service) VerifyEmail(ctx context.Context, req VerifyRequest) error {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return s.observe(OpVerify, fmt.Errorf("%w: empty userId", ErrNotFound))
	}

	now := s.now().UTC()
	var email string
	_, err := s.store.Update(ctx, func(doc *Document) error {
		idx := doc.FindByID(req.UserID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, req.UserID)
		}
		user := &doc.Users[idx]
		user.EmailVerified = true
		user.Status = StatusActive
		verifiedAt := now
		user.EmailVerifiedAt = &verifiedAt
		email = user.Email
		return nil
	})
	if err != nil {
		return s.observe(OpVerify, err)
	}
	s.observe(OpVerify, nil)

	s.logger.InfoContext(ctx, "email verified", slog.String("user_id", req.UserID))
	s.publish(ctx, events.Event{Type: events.TypeVerified, UserID: req.UserID, Email: email, OccurredAt: now})
	return nil
}

func (s *Service) uniqueID(doc *Document, now time.Time) (string, error) {
	for range maxIDAttempts {
		id := s.newID(now)
		if doc.FindByID(id) < 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: no unique id after %d attempts", ErrPersistence, maxIDAttempts)
}

func (s *Service) emailTaken(doc *Document, email string) bool {
	if s.foldEmail {
		return doc.FindByEmailFold(email) >= 0
	}
	return doc.FindByEmail(email) >= 0
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "publish registration event",
			slog.String("type", string(event.Type)),
			slog.Any("error", err))
	}
}

// observe reports err's outcome class and returns err unchanged.
func (s *Service) observe(op string, err error) error {
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, Outcome(err))
	}
	return err
}

// Outcome classifies an operation error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPersistence):
		return "persistence_failure"
	default:
		return "error"
	}
}
