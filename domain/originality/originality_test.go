package originality

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/capstonehub/capstonehub/domain/email"
	"github.com/capstonehub/capstonehub/domain/notifications"
	"github.com/capstonehub/capstonehub/internal/config"
	"github.com/capstonehub/capstonehub/internal/dispatch"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Email: config.EmailConfig{
			FromEmail:   "no-reply@capstonehub.app",
			FromName:    "CapstoneHub",
			MaxAttempts: 3,
		},
		Originality: config.OriginalityConfig{
			FlagThreshold: 60,
		},
	}
}

// offlineConnector fails every connection attempt, so repository calls in
// best-effort paths error instead of hitting a live database.
type offlineConnector struct{}

func (offlineConnector) Connect(context.Context) (driver.Conn, error) {
	return nil, errors.New("database offline")
}

func (offlineConnector) Driver() driver.Driver { return nil }

func offlineDB() *bun.DB {
	return bun.NewDB(sql.OpenDB(offlineConnector{}), pgdialect.New())
}

type fakeProvider struct {
	result *CheckResult
	err    error
	urls   []string
}

func (p *fakeProvider) Check(ctx context.Context, documentURL string) (*CheckResult, error) {
	p.urls = append(p.urls, documentURL)
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

type fakeRecorder struct {
	sub   *RecordedSubmission
	err   error
	ids   []string
	score float64
}

func (r *fakeRecorder) RecordOriginality(ctx context.Context, submissionID string, score float64) (*RecordedSubmission, error) {
	r.ids = append(r.ids, submissionID)
	r.score = score
	if r.err != nil {
		return nil, r.err
	}
	return r.sub, nil
}

func newTestProcessor(t *testing.T, provider Provider, recorder Recorder) (*Processor, *dispatch.MemoryBroker) {
	t.Helper()

	broker := dispatch.NewMemoryBroker()
	queue := dispatch.NewQueue(broker, dispatch.QueueDefaults{}, testLogger())
	cfg := testConfig()

	emails := email.NewService(queue, cfg, testLogger())
	notifs := notifications.NewService(
		notifications.NewRepository(offlineDB(), testLogger()), testLogger())

	return NewCheckProcessor(provider, recorder, emails, notifs, testLogger()), broker
}

func checkJob(t *testing.T, payload CheckPayload) *dispatch.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &dispatch.Job{ID: "job-1", Queue: QueueName, Payload: raw, Attempt: 1, MaxAttempts: 5}
}

func TestProcessor_RecordsScoreAndQueuesResultEmail(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{result: &CheckResult{Score: 91.5}}
	recorder := &fakeRecorder{sub: &RecordedSubmission{
		ID:           "sub-1",
		Title:        "Edge Caching for Rural Networks",
		StudentName:  "Dana Cruz",
		StudentEmail: "dana@university.edu",
	}}
	processor, broker := newTestProcessor(t, provider, recorder)

	job := checkJob(t, CheckPayload{SubmissionID: "sub-1", DocumentURL: "https://docs.example/sub-1.pdf"})
	require.NoError(t, processor.Process(ctx, job))

	assert.Equal(t, []string{"https://docs.example/sub-1.pdf"}, provider.urls)
	assert.Equal(t, []string{"sub-1"}, recorder.ids)
	assert.Equal(t, 91.5, recorder.score)

	stats, err := broker.Stats(ctx, email.QueueName)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Queued, "student result email should be queued")
}

func TestProcessor_FlaggedSubmissionAlsoEmailsAdviser(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{result: &CheckResult{Score: 42}}
	recorder := &fakeRecorder{sub: &RecordedSubmission{
		ID:           "sub-2",
		Title:        "Reused Thesis",
		StudentName:  "Dana Cruz",
		StudentEmail: "dana@university.edu",
		AdviserName:  "Prof. Reyes",
		AdviserEmail: "reyes@university.edu",
		Flagged:      true,
	}}
	processor, broker := newTestProcessor(t, provider, recorder)

	job := checkJob(t, CheckPayload{SubmissionID: "sub-2", DocumentURL: "https://docs.example/sub-2.pdf"})
	require.NoError(t, processor.Process(ctx, job))

	stats, err := broker.Stats(ctx, email.QueueName)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Queued, "student and adviser emails should be queued")
}

func TestProcessor_ProviderErrorIsRetryable(t *testing.T) {
	provider := &fakeProvider{err: errors.New("provider unreachable")}
	recorder := &fakeRecorder{}
	processor, _ := newTestProcessor(t, provider, recorder)

	job := checkJob(t, CheckPayload{SubmissionID: "sub-1", DocumentURL: "https://docs.example/sub-1.pdf"})
	err := processor.Process(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider unreachable")
	assert.Empty(t, recorder.ids, "score must not be recorded on provider failure")
}

func TestProcessor_RecorderErrorPropagates(t *testing.T) {
	provider := &fakeProvider{result: &CheckResult{Score: 75}}
	recorder := &fakeRecorder{err: errors.New("submission not found")}
	processor, broker := newTestProcessor(t, provider, recorder)

	job := checkJob(t, CheckPayload{SubmissionID: "ghost", DocumentURL: "https://docs.example/ghost.pdf"})
	err := processor.Process(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record originality score")

	stats, err := broker.Stats(context.Background(), email.QueueName)
	require.NoError(t, err)
	assert.Zero(t, stats.Queued, "no result email without a recorded score")
}

func TestProcessor_RejectsMalformedPayload(t *testing.T) {
	processor, _ := newTestProcessor(t, &fakeProvider{}, &fakeRecorder{})

	job := &dispatch.Job{ID: "job-1", Queue: QueueName, Payload: []byte(`{not json`)}
	require.Error(t, processor.Process(context.Background(), job))

	job = checkJob(t, CheckPayload{SubmissionID: "", DocumentURL: ""})
	err := processor.Process(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete")
}

func TestService_EnqueueCheck(t *testing.T) {
	ctx := context.Background()
	broker := dispatch.NewMemoryBroker()
	queue := dispatch.NewQueue(broker, dispatch.QueueDefaults{}, testLogger())
	svc := NewService(queue, testLogger())

	id, err := svc.EnqueueCheck(ctx, "sub-1", "https://docs.example/sub-1.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	jobs, err := broker.Dequeue(ctx, QueueName, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	var payload CheckPayload
	require.NoError(t, jobs[0].UnmarshalPayload(&payload))
	assert.Equal(t, "sub-1", payload.SubmissionID)
	assert.Equal(t, "https://docs.example/sub-1.pdf", payload.DocumentURL)
}

func TestService_EnqueueCheck_Validation(t *testing.T) {
	queue := dispatch.NewQueue(dispatch.NewMemoryBroker(), dispatch.QueueDefaults{}, testLogger())
	svc := NewService(queue, testLogger())

	_, err := svc.EnqueueCheck(context.Background(), "", "https://docs.example/x.pdf")
	assert.Error(t, err)

	_, err = svc.EnqueueCheck(context.Background(), "sub-1", "")
	assert.Error(t, err)
}

func TestHTTPProvider_Check(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checks", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"score": 88.2, "report_url": "https://reports.example/1"}`))
	}))
	defer srv.Close()

	provider := NewHTTPProvider(&config.OriginalityConfig{
		ServiceURL:     srv.URL,
		APIKey:         "secret-key",
		RequestTimeout: 5 * time.Second,
	}, testLogger())

	result, err := provider.Check(context.Background(), "https://docs.example/sub-1.pdf")
	require.NoError(t, err)

	assert.Equal(t, 88.2, result.Score)
	assert.Equal(t, "https://reports.example/1", result.ReportURL)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.JSONEq(t, `{"document_url": "https://docs.example/sub-1.pdf"}`, gotBody)
}

func TestHTTPProvider_Check_ErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail": "document could not be fetched"}`))
	}))
	defer srv.Close()

	provider := NewHTTPProvider(&config.OriginalityConfig{
		ServiceURL:     srv.URL,
		RequestTimeout: 5 * time.Second,
	}, testLogger())

	_, err := provider.Check(context.Background(), "https://docs.example/sub-1.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "document could not be fetched")
}

func TestHTTPProvider_Check_ScoreOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"score": 140}`))
	}))
	defer srv.Close()

	provider := NewHTTPProvider(&config.OriginalityConfig{
		ServiceURL:     srv.URL,
		RequestTimeout: 5 * time.Second,
	}, testLogger())

	_, err := provider.Check(context.Background(), "https://docs.example/sub-1.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestSimulatedProvider_DeterministicAndInRange(t *testing.T) {
	p := simulatedProvider{}

	first, err := p.Check(context.Background(), "https://docs.example/sub-1.pdf")
	require.NoError(t, err)
	second, err := p.Check(context.Background(), "https://docs.example/sub-1.pdf")
	require.NoError(t, err)

	assert.Equal(t, first.Score, second.Score)
	assert.GreaterOrEqual(t, first.Score, 50.0)
	assert.Less(t, first.Score, 100.0)

	other, err := p.Check(context.Background(), "https://docs.example/sub-2.pdf")
	require.NoError(t, err)
	assert.NotEqual(t, first.Score, other.Score)
}

func TestNewProvider_SelectsByConfiguration(t *testing.T) {
	cfg := testConfig()
	assert.IsType(t, &simulatedProvider{}, NewProvider(cfg, testLogger()))

	cfg.Originality.ServiceURL = "https://originality.example"
	cfg.Originality.APIKey = "key"
	assert.IsType(t, &HTTPProvider{}, NewProvider(cfg, testLogger()))
}
