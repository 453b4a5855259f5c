package persistence

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hboehmer-IW/prefect/pkg/api"
)

// RedisRunStore is a RunStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>:run:<id>             => gob-encoded redisRunPayload
//	<prefix>:idx:all              => SET of all run IDs
//	<prefix>:idx:flow:<flow>      => SET of run IDs for a given flow
//	<prefix>:idx:state:<state>    => SET of run IDs for a given state type
//
// The indexes are best-effort; they are always updated on Save/Update, and
// ListRuns filters by the decoded payload.
type RedisRunStore struct {
	client *redis.Client
	prefix string
}

var _ RunStore = (*RedisRunStore)(nil)

type redisRunPayload struct {
	ID       string
	FlowName string

	StateType     string
	StateTime     int64
	StateMessage  string
	ScheduledTime int64 // zero means unset

	RunCount     int
	TotalRunTime int64

	StartTime              int64
	EndTime                int64
	ExpectedStartTime      int64
	NextScheduledStartTime int64

	Parameters []byte
	Output     []byte
	Error      string

	Created int64
	Updated int64
}

// NewRedisRunStore creates a RedisRunStore.
// prefix is optional but recommended (e.g. "prefect:").
func NewRedisRunStore(client *redis.Client, prefix string) *RedisRunStore {
	if prefix == "" {
		prefix = "prefect:"
	}
	return &RedisRunStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisRunStore) keyRun(id string) string {
	return s.prefix + "run:" + id
}

func (s *RedisRunStore) keyAll() string {
	return s.prefix + "idx:all"
}

func (s *RedisRunStore) keyFlow(name string) string {
	return s.prefix + "idx:flow:" + name
}

func (s *RedisRunStore) keyState(st api.StateType) string {
	return s.prefix + "idx:state:" + string(st)
}

func nanosOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}

func timeOrNil(n int64) *time.Time {
	if n == 0 {
		return nil
	}
	t := time.Unix(0, n)
	return &t
}

func encodeRedisPayload(run *api.FlowRun) ([]byte, error) {
	params, err := EncodeValue(run.Parameters)
	if err != nil {
		return nil, err
	}
	output, err := EncodeValue(run.Output)
	if err != nil {
		return nil, err
	}

	errStr := ""
	if run.Err != nil {
		errStr = run.Err.Error()
	}

	state := run.State
	if state == nil {
		state = &api.State{Type: run.StateType}
	}

	payload := redisRunPayload{
		ID:                     run.ID,
		FlowName:               run.FlowName,
		StateType:              string(run.StateType),
		StateTime:              state.Timestamp.UnixNano(),
		StateMessage:           state.Message,
		ScheduledTime:          nanosOrZero(state.ScheduledTime),
		RunCount:               run.RunCount,
		TotalRunTime:           int64(run.TotalRunTime),
		StartTime:              nanosOrZero(run.StartTime),
		EndTime:                nanosOrZero(run.EndTime),
		ExpectedStartTime:      nanosOrZero(run.ExpectedStartTime),
		NextScheduledStartTime: nanosOrZero(run.NextScheduledStartTime),
		Parameters:             params,
		Output:                 output,
		Error:                  errStr,
		Created:                run.Created.UnixNano(),
		Updated:                run.Updated.UnixNano(),
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRedisPayload(data []byte) (*api.FlowRun, error) {
	if len(data) == 0 {
		return nil, ErrRunNotFound
	}
	var payload redisRunPayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return nil, err
	}

	paramsVal, err := DecodeValue(payload.Parameters)
	if err != nil {
		return nil, err
	}
	outputVal, err := DecodeValue(payload.Output)
	if err != nil {
		return nil, err
	}

	run := &api.FlowRun{
		ID:         payload.ID,
		FlowName:   payload.FlowName,
		StateType:  api.StateType(payload.StateType),
		Parameters: paramsVal,
		Output:     outputVal,
		RunCount:   payload.RunCount,

		TotalRunTime:           time.Duration(payload.TotalRunTime),
		StartTime:              timeOrNil(payload.StartTime),
		EndTime:                timeOrNil(payload.EndTime),
		ExpectedStartTime:      timeOrNil(payload.ExpectedStartTime),
		NextScheduledStartTime: timeOrNil(payload.NextScheduledStartTime),

		Created: time.Unix(0, payload.Created),
		Updated: time.Unix(0, payload.Updated),
	}
	run.State = &api.State{
		Type:          run.StateType,
		Timestamp:     time.Unix(0, payload.StateTime),
		Message:       payload.StateMessage,
		ScheduledTime: timeOrNil(payload.ScheduledTime),
	}
	if payload.Error != "" {
		run.Err = errors.New(payload.Error)
	}

	return run, nil
}

func (s *RedisRunStore) SaveRun(run *api.FlowRun) error {
	ctx := context.Background()

	data, err := encodeRedisPayload(run)
	if err != nil {
		return err
	}

	// Set payload
	if err := s.client.Set(ctx, s.keyRun(run.ID), data, 0).Err(); err != nil {
		return err
	}

	// Update indexes (best-effort; we don't treat index failures as fatal)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.keyAll(), run.ID)
	pipe.SAdd(ctx, s.keyFlow(run.FlowName), run.ID)
	pipe.SAdd(ctx, s.keyState(run.StateType), run.ID)
	_, _ = pipe.Exec(ctx)

	return nil
}

func (s *RedisRunStore) UpdateRun(run *api.FlowRun) error {
	ctx := context.Background()

	data, err := encodeRedisPayload(run)
	if err != nil {
		return err
	}

	// Overwrite payload
	if err := s.client.Set(ctx, s.keyRun(run.ID), data, 0).Err(); err != nil {
		return err
	}

	// Index updates: we just re-add; some stale index entries may remain as
	// the state changes, but ListRuns filters by payload.
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.keyAll(), run.ID)
	pipe.SAdd(ctx, s.keyFlow(run.FlowName), run.ID)
	pipe.SAdd(ctx, s.keyState(run.StateType), run.ID)
	_, _ = pipe.Exec(ctx)

	return nil
}

func (s *RedisRunStore) GetRun(id string) (*api.FlowRun, error) {
	ctx := context.Background()

	data, err := s.client.Get(ctx, s.keyRun(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return decodeRedisPayload(data)
}

func (s *RedisRunStore) ListRuns(filter RunFilter) ([]*api.FlowRun, error) {
	ctx := context.Background()

	var ids []string
	var err error

	switch {
	case filter.FlowName != "" && filter.StateType != "":
		ids, err = s.client.SInter(ctx,
			s.keyFlow(filter.FlowName),
			s.keyState(filter.StateType),
		).Result()
	case filter.FlowName != "":
		ids, err = s.client.SMembers(ctx, s.keyFlow(filter.FlowName)).Result()
	case filter.StateType != "":
		ids, err = s.client.SMembers(ctx, s.keyState(filter.StateType)).Result()
	default:
		ids, err = s.client.SMembers(ctx, s.keyAll()).Result()
	}

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*api.FlowRun{}, nil
		}
		return nil, err
	}
	if len(ids) == 0 {
		return []*api.FlowRun{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.keyRun(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	var runs []*api.FlowRun
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		run, err := decodeRedisPayload(data)
		if err != nil {
			return nil, err
		}
		// Stale index entries: re-check against the decoded payload.
		if filter.FlowName != "" && run.FlowName != filter.FlowName {
			continue
		}
		if filter.StateType != "" && run.StateType != filter.StateType {
			continue
		}
		runs = append(runs, run)
	}

	return runs, nil
}
