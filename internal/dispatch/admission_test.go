package dispatch

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSetStore struct {
	members map[string]struct{}
	err     error
}

func (f *fakeSetStore) SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	if f.err != nil {
		cmd := redis.NewIntCmd(ctx)
		cmd.SetErr(f.err)
		return cmd
	}
	for _, m := range members {
		f.members[m.(string)] = struct{}{}
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeSetStore) SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	for _, m := range members {
		delete(f.members, m.(string))
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeSetStore) SCard(ctx context.Context, key string) *redis.IntCmd {
	if f.err != nil {
		cmd := redis.NewIntCmd(ctx)
		cmd.SetErr(f.err)
		return cmd
	}
	return redis.NewIntResult(int64(len(f.members)), nil)
}

func TestSingleSlotAdmission(t *testing.T) {
	rdb := &fakeSetStore{members: map[string]struct{}{}}
	adm := NewAdmission(rdb, 1)
	ctx := context.Background()

	ok, err := adm.CanClaim(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, adm.Acquire(ctx, "exec-1"))

	ok, err = adm.CanClaim(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "one global slot: a second execution must wait")

	require.NoError(t, adm.Release(ctx, "exec-1"))
	require.NoError(t, adm.Release(ctx, "exec-1"), "double release is a no-op")

	ok, err = adm.CanClaim(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanClaimFailsClosed(t *testing.T) {
	rdb := &fakeSetStore{members: map[string]struct{}{}, err: errors.New("redis down")}
	adm := NewAdmission(rdb, 1)

	ok, err := adm.CanClaim(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}
