package cancelflag

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	values  map[string]string
	getErr  error
	lastTTL time.Duration
}

func (f *fakeStore) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		cmd := redis.NewStringCmd(ctx)
		cmd.SetErr(f.getErr)
		return cmd
	}
	v, ok := f.values[key]
	if !ok {
		cmd := redis.NewStringCmd(ctx)
		cmd.SetErr(redis.Nil)
		return cmd
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeStore) SetEx(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.values[key] = value.(string)
	f.lastTTL = ttl
	return redis.NewStatusResult("OK", nil)
}

func TestSetThenIsSet(t *testing.T) {
	rdb := &fakeStore{values: map[string]string{}}
	flags := New(rdb, time.Hour)
	jobID := uuid.New()

	set, err := flags.IsSet(context.Background(), jobID)
	require.NoError(t, err)
	assert.False(t, set)

	require.NoError(t, flags.Set(context.Background(), jobID))
	assert.Equal(t, time.Hour, rdb.lastTTL)

	set, err = flags.IsSet(context.Background(), jobID)
	require.NoError(t, err)
	assert.True(t, set)
}

func TestIsSetPropagatesErrors(t *testing.T) {
	rdb := &fakeStore{values: map[string]string{}, getErr: errors.New("redis down")}
	flags := New(rdb, time.Hour)

	set, err := flags.IsSet(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.False(t, set)
}
