package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/metricworker/helpers"
	"sjsage522/metricworker/internal/jobs"
	"sjsage522/metricworker/internal/sheet"
	"sjsage522/metricworker/pkg/errors"
	"sjsage522/metricworker/services/publisher"
)

// MockPublisher implements the publisher.Publisher interface for testing
type MockPublisher struct {
	mu       sync.Mutex
	messages [][]byte
	trimmed  int
}

// Ensure MockPublisher implements publisher.Publisher
var _ publisher.Publisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(key string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Copy the message to ensure thread safety
	messageCopy := make([]byte, len(message))
	copy(messageCopy, message)
	m.messages = append(m.messages, messageCopy)
	return nil
}

func (m *MockPublisher) TrimStreams() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trimmed++
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

// MockLogger implements the helpers.LoggerInterface for testing
type MockLogger struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

// Ensure MockLogger implements helpers.LoggerInterface
var _ helpers.LoggerInterface = (*MockLogger)(nil)

func (m *MockLogger) LogError(jobName string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, jobName+": "+err.Error())
}

func (m *MockLogger) LogInfo(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, fmt.Sprintf(format, args...))
}

var testNow = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

// scripted returns canned results and errors by job name
func scripted(results map[string]jobs.Result, failures map[string]error) RunFunc {
	return func(ctx context.Context, spec jobs.Spec, env jobs.Env) (jobs.Result, error) {
		if err, ok := failures[spec.Name]; ok {
			return jobs.Result{}, err
		}
		return results[spec.Name], nil
	}
}

func counterResult(job, sheetName string, value int) jobs.Result {
	return jobs.Result{
		Job:     job,
		Kind:    jobs.KindCounters,
		Summary: fmt.Sprintf("%s: Konverteringar = %d.", job, value),
		Outputs: []jobs.Output{{
			Sheet: sheetName,
			Record: sheet.Record{
				KeyColumn: sheet.DateColumn,
				Key:       testNow.Format(sheet.StampLayout),
				Match:     sheet.SameDay,
				Fields:    []sheet.Field{{Label: "Konverteringar", Value: value}},
			},
		}},
	}
}

func newTestWorker(ctx context.Context, pub publisher.Publisher) (*Worker, *sheet.Memory, *MockLogger, *bytes.Buffer) {
	store := sheet.NewMemory()
	log := &MockLogger{}
	out := &bytes.Buffer{}
	env := jobs.Env{Sheets: store, Now: func() time.Time { return testNow }}
	return NewWorker(ctx, env, pub, log, out, time.Millisecond), store, log, out
}

func specs(names ...string) []jobs.Spec {
	out := make([]jobs.Spec, len(names))
	for i, name := range names {
		out[i] = jobs.Spec{Name: name, Kind: jobs.KindCounters}
	}
	return out
}

func TestWorkerRunJobs(t *testing.T) {
	pub := &MockPublisher{}
	w, store, log, out := newTestWorker(context.Background(), pub)
	w.run = scripted(map[string]jobs.Result{
		"a": counterResult("a", "A", 10),
		"b": counterResult("b", "B", 20),
	}, nil)

	report, err := w.RunJobs(specs("a", "b"))
	require.NoError(t, err)
	assert.Len(t, report.Results, 2)
	assert.NotEmpty(t, report.RunID)
	assert.Empty(t, log.errors)
	assert.Equal(t, "a: Konverteringar = 10.\nb: Konverteringar = 20.\n", out.String())

	grid, err := store.Load(context.Background(), "A")
	require.NoError(t, err)
	want := sheet.Grid{{"Datum", "Konverteringar"}, {"2025-03-01 09:30", "10"}}
	if diff := cmp.Diff(want, grid); diff != "" {
		t.Errorf("sheet A mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, pub.messages, 2)
	var m publisher.Measurement
	require.NoError(t, json.Unmarshal(pub.messages[0], &m))
	assert.Equal(t, report.RunID, m.RunID)
	assert.Equal(t, "a", m.Job)
	assert.Equal(t, "A", m.Sheet)
	assert.Equal(t, "2025-03-01 09:30", m.Key)
	assert.Equal(t, 1, pub.trimmed)
}

func TestWorkerRunJobsTwiceKeepsOneRow(t *testing.T) {
	w, store, _, _ := newTestWorker(context.Background(), nil)
	w.run = scripted(map[string]jobs.Result{"a": counterResult("a", "A", 10)}, nil)

	_, err := w.RunJobs(specs("a"))
	require.NoError(t, err)
	_, err = w.RunJobs(specs("a"))
	require.NoError(t, err)

	grid, err := store.Load(context.Background(), "A")
	require.NoError(t, err)
	assert.Len(t, grid, 2)
	assert.Equal(t, []string{"Datum", "Konverteringar"}, grid.Header())
}

func TestWorkerSkipsFailedJob(t *testing.T) {
	w, store, log, out := newTestWorker(context.Background(), nil)
	w.run = scripted(
		map[string]jobs.Result{"b": counterResult("b", "B", 20)},
		map[string]error{"a": errors.NewNavigation("epc", "login failed", nil)},
	)

	report, err := w.RunJobs(specs("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, report.Failed)
	assert.Len(t, report.Results, 1)
	require.Len(t, log.errors, 1)
	assert.Contains(t, log.errors[0], "login failed")
	assert.Equal(t, "b: Konverteringar = 20.\n", out.String())
	assert.ElementsMatch(t, []string{"B"}, store.Sheets())
}

func TestWorkerFatalErrorAborts(t *testing.T) {
	w, store, log, out := newTestWorker(context.Background(), nil)
	w.run = scripted(
		map[string]jobs.Result{"b": counterResult("b", "B", 20)},
		map[string]error{"a": fmt.Errorf("job a: %w", errors.NewStructure("Konverteringar", "counter label not found"))},
	)

	_, err := w.RunJobs(specs("a", "b"))
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.Len(t, log.errors, 1)
	assert.Empty(t, out.String())
	assert.Empty(t, store.Sheets())
}

func TestWorkerStartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w, _, _, _ := newTestWorker(ctx, nil)

	var mu sync.Mutex
	runs := 0
	w.run = func(ctx context.Context, spec jobs.Spec, env jobs.Env) (jobs.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		runs++
		if runs == 3 {
			cancel()
		}
		return counterResult(spec.Name, "A", runs), nil
	}

	done := make(chan error, 1)
	go func() { done <- w.Start(specs("a")) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, runs)
}
