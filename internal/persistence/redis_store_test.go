package persistence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hboehmer-IW/prefect/pkg/api"
)

func TestRedisPayload_RoundTrip(t *testing.T) {
	created := time.Now().Add(-time.Minute).Truncate(0)
	started := created.Add(time.Second)
	ended := started.Add(30 * time.Second)
	scheduled := created.Add(10 * time.Second)

	in := &api.FlowRun{
		ID:        "run-redis-1",
		FlowName:  "fetch-stats",
		StateType: api.StateFailed,
		State: &api.State{
			Type:          api.StateFailed,
			Timestamp:     ended,
			Message:       "exhausted retries",
			ScheduledTime: &scheduled,
		},
		Parameters:        map[string]any{"owner": "golang", "repo": "go"},
		Output:            "partial",
		Err:               errors.New("503 from upstream"),
		RunCount:          3,
		TotalRunTime:      1500 * time.Millisecond,
		StartTime:         &started,
		EndTime:           &ended,
		ExpectedStartTime: &scheduled,
		Created:           created,
		Updated:           ended,
	}

	data, err := encodeRedisPayload(in)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	out, err := decodeRedisPayload(data)
	require.NoError(t, err)

	require.Equal(t, in.ID, out.ID)
	require.Equal(t, in.FlowName, out.FlowName)
	require.Equal(t, api.StateFailed, out.StateType)
	require.Equal(t, "exhausted retries", out.State.Message)
	require.True(t, out.State.Timestamp.Equal(ended))
	require.NotNil(t, out.State.ScheduledTime)
	require.True(t, out.State.ScheduledTime.Equal(scheduled))

	params, ok := out.Parameters.(map[string]any)
	require.True(t, ok, "expected map[string]any, got %T", out.Parameters)
	require.Equal(t, "golang", params["owner"])
	require.Equal(t, "partial", out.Output)

	// Errors cross the wire as strings.
	require.EqualError(t, out.Err, "503 from upstream")

	require.Equal(t, 3, out.RunCount)
	require.Equal(t, 1500*time.Millisecond, out.TotalRunTime)
	require.NotNil(t, out.StartTime)
	require.True(t, out.StartTime.Equal(started))
	require.NotNil(t, out.EndTime)
	require.True(t, out.EndTime.Equal(ended))
	require.NotNil(t, out.ExpectedStartTime)
	require.True(t, out.ExpectedStartTime.Equal(scheduled))
	require.True(t, out.Created.Equal(created))
	require.True(t, out.Updated.Equal(ended))
}

func TestRedisPayload_UnsetFields(t *testing.T) {
	in := sampleRun("run-redis-2", "fetch-stats", api.StateScheduled)

	data, err := encodeRedisPayload(in)
	require.NoError(t, err)

	out, err := decodeRedisPayload(data)
	require.NoError(t, err)

	// Zero nanosecond sentinels decode back to nil, not to the epoch.
	require.Nil(t, out.StartTime)
	require.Nil(t, out.EndTime)
	require.Nil(t, out.ExpectedStartTime)
	require.Nil(t, out.NextScheduledStartTime)
	require.Nil(t, out.State.ScheduledTime)

	require.Nil(t, out.Parameters)
	require.Nil(t, out.Output)
	require.Nil(t, out.Err)
	require.Equal(t, api.StateScheduled, out.StateType)
}

func TestRedisPayload_DecodeEmpty(t *testing.T) {
	_, err := decodeRedisPayload(nil)
	require.ErrorIs(t, err, ErrRunNotFound)
}
