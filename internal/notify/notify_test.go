package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projecthub/internal/config"
	"projecthub/internal/domain"
)

type received struct {
	header http.Header
	body   webhookBody
}

func hookServer(t *testing.T, status int) (*httptest.Server, <-chan received) {
	t.Helper()
	ch := make(chan received, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body webhookBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		ch <- received{header: r.Header.Clone(), body: body}
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

var sample = domain.Notification{UserID: "u1", Type: "task_assigned", Title: "Task assigned", Message: "hi", Link: "/projects/p/tasks/t"}

func TestWebhookPostsNotification(t *testing.T) {
	srv, ch := hookServer(t, http.StatusNoContent)
	w, ok := NewWebhook(config.WebhookConfig{URL: srv.URL, Secret: "s3cret"})
	require.True(t, ok)

	require.NoError(t, w.Notify(context.Background(), sample))
	got := <-ch
	assert.Equal(t, "task_assigned", got.header.Get("X-Projecthub-Event"))
	assert.Equal(t, "s3cret", got.header.Get("X-Projecthub-Secret"))
	assert.Equal(t, "application/json", got.header.Get("Content-Type"))
	assert.Equal(t, got.body.Delivery, got.header.Get("X-Projecthub-Delivery"))
	assert.Equal(t, sample, got.body.Notification)
}

func TestWebhookFiltersTypes(t *testing.T) {
	srv, ch := hookServer(t, http.StatusOK)
	w, ok := NewWebhook(config.WebhookConfig{URL: srv.URL, Types: []string{" stage_changed "}})
	require.True(t, ok)

	require.NoError(t, w.Notify(context.Background(), sample))
	assert.Empty(t, ch)

	n := sample
	n.Type = "stage_changed"
	require.NoError(t, w.Notify(context.Background(), n))
	got := <-ch
	assert.Empty(t, got.header.Get("X-Projecthub-Secret"))
}

func TestWebhookReportsStatus(t *testing.T) {
	srv, _ := hookServer(t, http.StatusBadGateway)
	w, _ := NewWebhook(config.WebhookConfig{URL: srv.URL})
	err := w.Notify(context.Background(), sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502: nope")
}

func TestDisabledWebhookIsSkipped(t *testing.T) {
	off := false
	_, ok := NewWebhook(config.WebhookConfig{URL: "http://example.invalid", Enabled: &off})
	assert.False(t, ok)
}

type notifierFunc func(context.Context, domain.Notification) error

func (f notifierFunc) Notify(ctx context.Context, n domain.Notification) error { return f(ctx, n) }

func TestMultiJoinsErrors(t *testing.T) {
	var calls int
	ok := notifierFunc(func(context.Context, domain.Notification) error { calls++; return nil })
	bad := notifierFunc(func(context.Context, domain.Notification) error { calls++; return errors.New("boom") })

	err := Multi{bad, nil, ok}.Notify(context.Background(), sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notifier 0: boom")
	assert.Equal(t, 2, calls)
}

func TestAsyncLogsFailuresAndPanics(t *testing.T) {
	var (
		buf bytes.Buffer
		mu  sync.Mutex
		wg  sync.WaitGroup
	)
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &mu}, nil))

	failing := Async{
		Next:   notifierFunc(func(context.Context, domain.Notification) error { return errors.New("unreachable") }),
		Logger: logger,
		done:   wg.Done,
	}
	panicking := Async{
		Next:   notifierFunc(func(context.Context, domain.Notification) error { panic("kaput") }),
		Logger: logger,
		done:   wg.Done,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wg.Add(2)
	require.NoError(t, failing.Notify(ctx, sample))
	require.NoError(t, panicking.Notify(ctx, sample))
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, buf.String(), "notification delivery failed")
	assert.Contains(t, buf.String(), "unreachable")
	assert.Contains(t, buf.String(), "notification panicked")
}

func TestFromConfigLogsAndPosts(t *testing.T) {
	srv, ch := hookServer(t, http.StatusOK)
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &mu}, nil))

	n := FromConfig(config.NotificationsConfig{Webhooks: []config.WebhookConfig{{URL: srv.URL}}}, logger)
	require.NoError(t, n.Notify(context.Background(), sample))

	got := <-ch
	assert.Equal(t, "u1", got.body.UserID)
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, buf.String(), "type=task_assigned")
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
