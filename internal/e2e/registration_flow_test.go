package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colcon/colcon-site/internal/app"
	"github.com/colcon/colcon-site/internal/events"
	"github.com/colcon/colcon-site/internal/i18n"
	jobmetrics "github.com/colcon/colcon-site/internal/jobs"
	"github.com/colcon/colcon-site/internal/observability"
	"github.com/colcon/colcon-site/internal/registration"
	"github.com/colcon/colcon-site/internal/signup"
	"github.com/colcon/colcon-site/jobs"
	_ "github.com/colcon/colcon-site/testing"
)

type eventSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *eventSink) handle(_ context.Context, evt events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *eventSink) snapshot() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.events...)
}

func TestRegistrationLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	root := t.TempDir()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	sub, err := events.NewListener(rdb, events.DefaultChannel, nil).Subscribe(ctx)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()
	sink := &eventSink{}
	recorder := jobs.NewEventRecorder(nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sub.Run(ctx, func(ctx context.Context, evt events.Event) {
			recorder.Handle(ctx, evt)
			sink.handle(ctx, evt)
		})
	}()

	store, err := registration.NewFileStore(registration.StoreOptions{Path: filepath.Join(root, "data_profile", "users.json")})
	require.NoError(t, err)
	metrics := observability.NewMetrics()
	messages := i18n.NewLocalizer()
	service := registration.NewService(store, registration.ServiceConfig{
		Publisher: events.NewRedisPublisher(rdb, events.DefaultChannel),
		Metrics:   metrics,
	})
	srv := httptest.NewServer(app.NewRouter(app.RouterParams{
		Config:              &app.Config{APIPrefix: "/api", AppRequestTimeout: 5 * time.Second},
		Messages:            messages,
		RegistrationHandler: registration.NewHandler(nil, service, messages),
		Metrics:             metrics,
	}))
	defer srv.Close()

	local, err := signup.OpenLocalStore(ctx, filepath.Join(root, "client", "local.db"))
	require.NoError(t, err)
	defer func() { _ = local.Close() }()
	flow := signup.NewFlow(signup.NewClient(srv.URL+"/api", 2*time.Second), local)

	// First registration reaches the service.
	out := flow.Submit(ctx, signup.Form{Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret1"})
	require.Equal(t, signup.ResultRemote, out.Result, out.Errors)

	// Same email again is refused by the service and queued locally.
	out = flow.Submit(ctx, signup.Form{Email: "a@x.com", Password: "other1", ConfirmPassword: "other1"})
	require.Equal(t, signup.ResultLocal, out.Result, out.Errors)
	pending, err := local.List(ctx, signup.PendingSlot)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, out.Record.ID, pending[0].ID)

	doc, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Users, 1)
	userID := doc.Users[0].ID

	body, err := json.Marshal(map[string]string{"userId": userID, "token": "anything"})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/verify-email", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	doc, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, registration.StatusActive, doc.Users[0].Status)
	assert.True(t, doc.Users[0].EmailVerified)

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	got := sink.snapshot()
	assert.Equal(t, events.TypeRegistered, got[0].Type)
	assert.Equal(t, events.TypeVerified, got[1].Type)
	assert.Equal(t, userID, got[1].UserID)

	// Nightly snapshot captures the verified state.
	snapshotDir := filepath.Join(root, "snapshots")
	job := jobs.NewSnapshotJob(store, snapshotDir, 3, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := jobs.NewSnapshotTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, task))
	entries, err := os.ReadDir(snapshotDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// With the service gone, the next registration is kept locally.
	srv.Close()
	out = flow.Submit(ctx, signup.Form{Email: "b@x.com", Password: "secret2", ConfirmPassword: "secret2"})
	require.Equal(t, signup.ResultLocal, out.Result)
	pending, err = local.List(ctx, signup.PendingSlot)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b@x.com", pending[0].Email)

	cancel()
	<-done
}
