package signup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/colcon/colcon-site/internal/registration"
)

// Result is the single outcome of a Submit call.
type Result int

const (
	// ResultInvalid means the form failed validation and nothing was sent.
	ResultInvalid Result = iota
	// ResultRemote means the service stored the registration.
	ResultRemote
	// ResultLocal means the service could not be reached or answered with
	// an error, and the registration was appended to the local pending list.
	ResultLocal
	// ResultFailed means the local fallback could not be written.
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultInvalid:
		return "invalid"
	case ResultRemote:
		return "remote"
	case ResultLocal:
		return "local"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome reports what Submit did.
type Outcome struct {
	Result Result
	Record registration.UserRecord
	Errors FieldErrors
	// Err is the underlying failure for ResultLocal and ResultFailed.
	Err error
}

// Registrar sends records to the registration service.
type Registrar interface {
	Register(ctx context.Context, record registration.UserRecord) (*registration.RegisterResult, error)
}

// Pending stores records that could not be sent.
type Pending interface {
	Append(ctx context.Context, slot string, record registration.UserRecord) error
}

// Flow drives one registration form submission.
type Flow struct {
	validator *Validator
	remote    Registrar
	pending   Pending
	logger    *slog.Logger
	now       func() time.Time
	newID     func(time.Time) string
}

// FlowOption customises a Flow.
type FlowOption func(*Flow)

// WithLogger sets the flow logger.
func WithLogger(logger *slog.Logger) FlowOption {
	return func(f *Flow) { f.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) FlowOption {
	return func(f *Flow) { f.now = now }
}

// NewFlow builds a Flow posting to remote and falling back to pending.
func NewFlow(remote Registrar, pending Pending, opts ...FlowOption) *Flow {
	f := &Flow{
		validator: NewValidator(),
		remote:    remote,
		pending:   pending,
		logger:    slog.Default(),
		now:       time.Now,
		newID:     registration.NewUserID,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Submit validates form and registers it remotely. Any failure to register,
// whether transport or an error status, appends the record to the local
// pending list. Only a failed local write is reported as a field error.
func (f *Flow) Submit(ctx context.Context, form Form) Outcome {
	if errs := f.validator.Validate(form); errs != nil {
		return Outcome{Result: ResultInvalid, Errors: errs}
	}

	now := f.now().UTC()
	record := registration.UserRecord{
		ID:               f.newID(now),
		Email:            form.Email,
		Password:         form.Password,
		Timestamp:        now,
		Status:           registration.StatusPending,
		RegistrationDate: now,
		EmailVerified:    false,
	}

	_, err := f.remote.Register(ctx, record)
	if err == nil {
		f.logger.InfoContext(ctx, "registration sent", slog.String("user_id", record.ID))
		return Outcome{Result: ResultRemote, Record: record}
	}

	attrs := []any{slog.String("user_id", record.ID), slog.Any("error", err)}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		attrs = append(attrs, slog.Int("status", apiErr.Status))
	}
	f.logger.WarnContext(ctx, "registration not accepted by service, saving locally", attrs...)
	if perr := f.pending.Append(ctx, PendingSlot, record); perr != nil {
		f.logger.ErrorContext(ctx, "local save failed", slog.Any("error", perr))
		return Outcome{Result: ResultFailed, Record: record, Errors: FieldErrors{FieldEmail: MsgSaveFailed}, Err: perr}
	}
	return Outcome{Result: ResultLocal, Record: record, Err: err}
}
