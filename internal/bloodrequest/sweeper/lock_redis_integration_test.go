//go:build integration

package sweeper_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hemogrid/internal/bloodrequest/sweeper"
	"hemogrid/pkg/testutil/containers"
)

type RedisLockerSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisLockerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockerSuite))
}

func (s *RedisLockerSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisLockerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLockerSuite) TestOnlyOneHolderAcrossLockers() {
	ctx := context.Background()
	const contenders = 10

	var (
		wg       sync.WaitGroup
		acquired atomic.Int32
	)
	for range contenders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locker := sweeper.NewRedisLocker(s.redis.Client)
			_, ok, err := locker.TryLock(ctx, 5*time.Second)
			s.NoError(err)
			if ok {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()
	s.EqualValues(1, acquired.Load())
}

func (s *RedisLockerSuite) TestUnlockOnlyReleasesOwnToken() {
	ctx := context.Background()
	first := sweeper.NewRedisLocker(s.redis.Client)
	second := sweeper.NewRedisLocker(s.redis.Client)

	unlock, ok, err := first.TryLock(ctx, 50*time.Millisecond)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Eventually(func() bool {
		_, ok, err := second.TryLock(ctx, 5*time.Second)
		return err == nil && ok
	}, 2*time.Second, 20*time.Millisecond, "lock should lapse after its TTL")

	s.Require().NoError(unlock(ctx))
	_, ok, err = first.TryLock(ctx, time.Second)
	s.Require().NoError(err)
	s.False(ok, "stale unlock must not free the successor's lock")
}

func (s *RedisLockerSuite) TestSweeperUsesRedisLock() {
	ctx := context.Background()
	locker := sweeper.NewRedisLocker(s.redis.Client, sweeper.WithLockKey("test:sweeper"))
	holder := sweeper.NewRedisLocker(s.redis.Client, sweeper.WithLockKey("test:sweeper"))
	unlock, ok, err := holder.TryLock(ctx, 5*time.Second)
	s.Require().NoError(err)
	s.Require().True(ok)

	var calls atomic.Int32
	sw := sweeper.New(expirerFunc(func(context.Context) (int, error) {
		calls.Add(1)
		return 1, nil
	}), sweeper.WithLocker(locker))

	n, err := sw.SweepOnce(ctx)
	s.Require().NoError(err)
	s.Zero(n)

	s.Require().NoError(unlock(ctx))
	n, err = sw.SweepOnce(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.EqualValues(1, calls.Load())
}

type expirerFunc func(context.Context) (int, error)

func (f expirerFunc) ExpireOverdue(ctx context.Context) (int, error) { return f(ctx) }
