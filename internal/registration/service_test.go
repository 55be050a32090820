package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colcon/colcon-site/internal/events"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *recordingMetrics) ObserveOperation(op, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[op+"/"+outcome]++
}

func (m *recordingMetrics) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[key]
}

type failingStore struct{ err error }

func (s failingStore) Load(context.Context) (*Document, error) { return nil, s.err }

func (s failingStore) Update(context.Context, func(*Document) error) (*Document, error) {
	return nil, s.err
}

type serviceFixture struct {
	service   *Service
	store     *FileStore
	clock     *fakeClock
	publisher *recordingPublisher
	metrics   *recordingMetrics
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	clock := newFakeClock()
	store := newTestStore(t, clock)
	publisher := &recordingPublisher{}
	metrics := &recordingMetrics{}
	service := NewService(store, ServiceConfig{
		Publisher: publisher,
		Metrics:   metrics,
		Now:       clock.Now,
	})
	return serviceFixture{service: service, store: store, clock: clock, publisher: publisher, metrics: metrics}
}

func TestRegisterDistinctEmails(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first, err := f.service.Register(ctx, RegisterRequest{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)
	second, err := f.service.Register(ctx, RegisterRequest{Email: "b@x.com", Password: "secret2"})
	require.NoError(t, err)

	assert.NotEqual(t, first.UserID, second.UserID)
	assert.True(t, strings.HasPrefix(first.UserID, "user_"))

	doc, err := f.service.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Users, 2)
	assert.Equal(t, 2, doc.TotalUsers)
	assert.Equal(t, "a@x.com", doc.Users[0].Email)
	assert.Equal(t, "secret1", doc.Users[0].Password)
	assert.Equal(t, "b@x.com", doc.Users[1].Email)
	assert.Equal(t, "secret2", doc.Users[1].Password)
	for _, u := range doc.Users {
		assert.Equal(t, StatusPending, u.Status)
		assert.False(t, u.EmailVerified)
		assert.Nil(t, u.EmailVerifiedAt)
		assert.True(t, f.clock.Now().Equal(u.RegistrationDate))
		assert.True(t, f.clock.Now().Equal(u.Timestamp))
	}
	assert.Equal(t, 2, f.metrics.Count("register/success"))
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Register(ctx, RegisterRequest{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = f.service.Register(ctx, RegisterRequest{Email: "a@x.com", Password: "other"})
	assert.ErrorIs(t, err, ErrConflict)

	doc, err := f.service.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Users, 1)
	assert.Equal(t, 1, doc.TotalUsers)
	assert.Equal(t, 1, f.metrics.Count("register/conflict"))
	assert.Len(t, f.publisher.Events(), 1, "no event for rejected registrations")
}

func TestRegisterComparesEmailExactly(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	for _, email := range []string{"A@x.com", "a@x.com", " a@x.com"} {
		_, err := f.service.Register(ctx, RegisterRequest{Email: email, Password: "secret1"})
		require.NoError(t, err, email)
	}

	doc, err := f.service.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Users, 3)
	assert.Equal(t, "A@x.com", doc.Users[0].Email)
	assert.Equal(t, "a@x.com", doc.Users[1].Email)
	assert.Equal(t, " a@x.com", doc.Users[2].Email)
}

func TestRegisterFoldEmailCase(t *testing.T) {
	clock := newFakeClock()
	service := NewService(newTestStore(t, clock), ServiceConfig{Now: clock.Now, FoldEmailCase: true})
	ctx := context.Background()

	_, err := service.Register(ctx, RegisterRequest{Email: "A@x.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = service.Register(ctx, RegisterRequest{Email: "  a@X.com ", Password: "secret1"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRegisterMissingFields(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	cases := []RegisterRequest{
		{Email: "", Password: "secret1"},
		{Email: "   ", Password: "secret1"},
		{Email: "a@x.com", Password: ""},
		{},
	}
	for i, req := range cases {
		t.Run(fmt.Sprintf("case%d", i), func(t *testing.T) {
			_, err := f.service.Register(ctx, req)
			require.ErrorIs(t, err, ErrInvalidInput)
			var inputErr *InputError
			require.True(t, errors.As(err, &inputErr))
			assert.Equal(t, "email and password required", inputErr.Message)
		})
	}

	doc, err := f.service.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.Users)
}

func TestRegisterUsesCallerSuppliedFields(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	ts := time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)
	regDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := f.service.Register(ctx, RegisterRequest{
		Email:            "c@x.com",
		Password:         "secret3",
		ID:               "user_client_1",
		Status:           StatusPending,
		Timestamp:        ClientTime{ts},
		RegistrationDate: ClientTime{regDate},
	})
	require.NoError(t, err)
	assert.Equal(t, "user_client_1", res.UserID)
	assert.Equal(t, "c@x.com", res.Email)

	doc, err := f.service.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Users, 1)
	assert.True(t, ts.Equal(doc.Users[0].Timestamp))
	assert.True(t, regDate.Equal(doc.Users[0].RegistrationDate))

	_, err = f.service.Register(ctx, RegisterRequest{Email: "d@x.com", Password: "secret4", ID: "user_client_1"})
	assert.ErrorIs(t, err, ErrConflict, "ids stay unique within the store")
}

func TestRegisterRejectsUnknownStatus(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.Register(context.Background(), RegisterRequest{Email: "a@x.com", Password: "secret1", Status: "banned"})
	require.ErrorIs(t, err, ErrInvalidInput)
	var inputErr *InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, "invalid status", inputErr.Message)
}

func TestRegisterRegeneratesCollidingID(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(t, clock)
	ids := []string{"user_dup", "user_dup", "user_fresh"}
	var calls int
	service := NewService(store, ServiceConfig{
		Now: clock.Now,
		NewID: func(time.Time) string {
			id := ids[calls]
			calls++
			return id
		},
	})
	ctx := context.Background()

	first, err := service.Register(ctx, RegisterRequest{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)
	second, err := service.Register(ctx, RegisterRequest{Email: "b@x.com", Password: "secret2"})
	require.NoError(t, err)

	assert.Equal(t, "user_dup", first.UserID)
	assert.Equal(t, "user_fresh", second.UserID)
}

func TestRegisterExhaustedIDsIsPersistenceFailure(t *testing.T) {
	clock := newFakeClock()
	metrics := &recordingMetrics{}
	service := NewService(newTestStore(t, clock), ServiceConfig{
		Now:     clock.Now,
		Metrics: metrics,
		NewID:   func(time.Time) string { return "user_same" },
	})
	ctx := context.Background()

	_, err := service.Register(ctx, RegisterRequest{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = service.Register(ctx, RegisterRequest{Email: "b@x.com", Password: "secret2"})
	require.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, "persistence_failure", Outcome(err))
	assert.Equal(t, 1, metrics.Count("register/persistence_failure"))

	doc, err := service.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Users, 1)
}

func TestVerifyEmailUnknownUser(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Register(ctx, RegisterRequest{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)
	before, err := f.service.ListAll(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	err = f.service.VerifyEmail(ctx, VerifyRequest{UserID: "user_missing", Token: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	after, err := f.service.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, f.metrics.Count("verify_email/not_found"))
}

func TestVerifyEmailBlankUserIDIsNotFound(t *testing.T) {
	f := newServiceFixture(t)

	for _, id := range []string{"", " "} {
		err := f.service.VerifyEmail(context.Background(), VerifyRequest{UserID: id})
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 2, f.metrics.Count("verify_email/not_found"))
}

func TestVerifyEmailActivatesOnlyTargetRecord(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first, err := f.service.Register(ctx, RegisterRequest{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = f.service.Register(ctx, RegisterRequest{Email: "b@x.com", Password: "secret2"})
	require.NoError(t, err)
	before, err := f.service.ListAll(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.service.VerifyEmail(ctx, VerifyRequest{UserID: first.UserID, Token: "anything"}))

	after, err := f.service.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, after.Users, 2)

	verified := after.Users[0]
	assert.Equal(t, StatusActive, verified.Status)
	assert.True(t, verified.EmailVerified)
	require.NotNil(t, verified.EmailVerifiedAt)
	assert.True(t, f.clock.Now().Equal(*verified.EmailVerifiedAt))

	assert.Equal(t, before.Users[1], after.Users[1], "other records unchanged")
	require.NotNil(t, after.LastUpdate)
	assert.True(t, f.clock.Now().Equal(*after.LastUpdate))

	published := f.publisher.Events()
	require.Len(t, published, 3)
	assert.Equal(t, events.TypeVerified, published[2].Type)
	assert.Equal(t, first.UserID, published[2].UserID)
	assert.Equal(t, "a@x.com", published[2].Email)
}

func TestEndToEndScenario(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	res, err := f.service.Register(ctx, RegisterRequest{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)
	doc, err := f.service.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Users, 1)
	assert.Equal(t, StatusPending, doc.Users[0].Status)

	_, err = f.service.Register(ctx, RegisterRequest{Email: "a@x.com", Password: "other"})
	assert.ErrorIs(t, err, ErrConflict)
	doc, err = f.service.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Users, 1)

	require.NoError(t, f.service.VerifyEmail(ctx, VerifyRequest{UserID: res.UserID, Token: "anything"}))
	doc, err = f.service.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, doc.Users[0].Status)
	assert.True(t, doc.Users[0].EmailVerified)
}

func TestTotalUsersTracksRegistrations(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	const n = 5
	for i := range n {
		f.clock.Advance(time.Second)
		_, err := f.service.Register(ctx, RegisterRequest{Email: fmt.Sprintf("u%d@x.com", i), Password: "secret1"})
		require.NoError(t, err)
	}
	doc, err := f.service.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, doc.TotalUsers)
	require.NotNil(t, doc.LastUpdate)
	assert.False(t, doc.LastUpdate.Before(f.clock.Now()))
}

func TestConcurrentRegistrationsSameEmail(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Register(ctx, RegisterRequest{Email: "same@x.com", Password: "secret1"})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, conflicts)

	doc, err := f.service.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.TotalUsers)
}

func TestPublishFailureDoesNotFailRegistration(t *testing.T) {
	f := newServiceFixture(t)
	f.publisher.err = errors.New("redis down")

	_, err := f.service.Register(context.Background(), RegisterRequest{Email: "a@x.com", Password: "secret1"})
	assert.NoError(t, err)
}

func TestPersistenceFailureIsReported(t *testing.T) {
	metrics := &recordingMetrics{}
	storeErr := fmt.Errorf("%w: disk full", ErrPersistence)
	service := NewService(failingStore{err: storeErr}, ServiceConfig{Metrics: metrics})

	_, err := service.Register(context.Background(), RegisterRequest{Email: "a@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrPersistence)
	_, err = service.ListAll(context.Background())
	assert.ErrorIs(t, err, ErrPersistence)

	assert.Equal(t, 1, metrics.Count("register/persistence_failure"))
	assert.Equal(t, 1, metrics.Count("list/persistence_failure"))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", Outcome(nil))
	assert.Equal(t, "invalid_input", Outcome(&InputError{Message: "x"}))
	assert.Equal(t, "conflict", Outcome(fmt.Errorf("%w: a", ErrConflict)))
	assert.Equal(t, "not_found", Outcome(ErrNotFound))
	assert.Equal(t, "persistence_failure", Outcome(ErrPersistence))
	assert.Equal(t, "error", Outcome(errors.New("other")))
}
