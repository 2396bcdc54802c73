package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordAndQueryExecutions(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordExecution(&ExecutionRecord{
		FrameID: 1, Modality: "video", Backend: "127.0.0.1:8188",
		Status: "ok", Duration: 40 * time.Millisecond, CreatedAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, s.RecordExecution(&ExecutionRecord{
		FrameID: 2, Modality: "video", Backend: "127.0.0.1:8189",
		Status: "BACKEND_PROTOCOL", Duration: 5 * time.Second, CreatedAt: time.Now(),
	}))

	recent, err := s.RecentExecutions(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(2), recent[0].FrameID, "newest first")

	byFrame, err := s.ExecutionsForFrame(1)
	require.NoError(t, err)
	require.Len(t, byFrame, 1)
	assert.Equal(t, "ok", byFrame[0].Status)
}

func TestStore_RecordActivationDefaultsTimestamp(t *testing.T) {
	s := openTestStore(t)

	a := &GraphActivation{PromptID: "p1", Modalities: "video,audio", NodeCount: 4}
	require.NoError(t, s.RecordActivation(a))
	assert.False(t, a.ActivatedAt.IsZero())
}

func TestStore_Prune(t *testing.T) {
	s := openTestStore(t)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.RecordExecution(&ExecutionRecord{FrameID: 1, Status: "ok", CreatedAt: old}))
	require.NoError(t, s.RecordExecution(&ExecutionRecord{FrameID: 2, Status: "ok", CreatedAt: time.Now()}))

	deleted, err := s.Prune(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	recent, err := s.RecentExecutions(10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestStore_RecentActivations(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordActivation(&GraphActivation{PromptID: "a", Modalities: "video", NodeCount: 2}))
	require.NoError(t, s.RecordActivation(&GraphActivation{PromptID: "b", Modalities: "video,audio", NodeCount: 4}))

	got, err := s.RecentActivations(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestStore_NilStoreRecordsNothing(t *testing.T) {
	var s *Store
	require.NoError(t, s.RecordActivation(&GraphActivation{PromptID: "x"}))
	require.NoError(t, s.RecordExecution(&ExecutionRecord{FrameID: 1, Status: "ok"}))
}
