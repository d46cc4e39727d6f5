package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreGet(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name        string
		setupMock   func(mock redismock.ClientMock)
		wantValue   string
		wantOK      bool
		expectedErr error
	}{
		{
			name: "Hit",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectGet("test-key").SetVal("test-value")
			},
			wantValue: "test-value",
			wantOK:    true,
		},
		{
			name: "Miss maps redis.Nil to ok=false",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectGet("test-key").SetErr(redis.Nil)
			},
			wantOK: false,
		},
		{
			name: "Backend error",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectGet("test-key").SetErr(errors.New("redis error"))
			},
			expectedErr: errors.New("redis error"),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			redisClient, redisMock := redismock.NewClientMock()
			defer redisClient.Close()

			store := NewRedisStore(redisClient)
			tc.setupMock(redisMock)

			value, ok, err := store.Get(ctx, "test-key")

			if tc.expectedErr != nil {
				require.Error(t, err)
				assert.EqualError(t, err, tc.expectedErr.Error())
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.wantOK, ok)
				assert.Equal(t, tc.wantValue, value)
			}

			assert.NoError(t, redisMock.ExpectationsWereMet())
		})
	}
}

func TestRedisStoreSet(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name        string
		ttl         time.Duration
		setupMock   func(mock redismock.ClientMock)
		expectedErr error
	}{
		{
			name: "Success",
			ttl:  time.Minute,
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectSet("test-key", "test-value", time.Minute).SetVal("OK")
			},
		},
		{
			name: "Negative TTL stores without expiry",
			ttl:  -time.Second,
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectSet("test-key", "test-value", 0).SetVal("OK")
			},
		},
		{
			name: "Error from Redis client",
			ttl:  time.Minute,
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectSet("test-key", "test-value", time.Minute).SetErr(errors.New("redis error"))
			},
			expectedErr: errors.New("redis error"),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			redisClient, redisMock := redismock.NewClientMock()
			defer redisClient.Close()

			store := NewRedisStore(redisClient)
			tc.setupMock(redisMock)

			err := store.Set(ctx, "test-key", "test-value", tc.ttl)

			if tc.expectedErr != nil {
				require.Error(t, err)
				assert.EqualError(t, err, tc.expectedErr.Error())
			} else {
				require.NoError(t, err)
			}

			assert.NoError(t, redisMock.ExpectationsWereMet())
		})
	}
}

func TestRedisStoreDelete(t *testing.T) {
	ctx := context.Background()
	redisClient, redisMock := redismock.NewClientMock()
	defer redisClient.Close()

	store := NewRedisStore(redisClient)
	redisMock.ExpectDel("test-key").SetVal(1)

	require.NoError(t, store.Delete(ctx, "test-key"))
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestRedisStoreClear(t *testing.T) {
	ctx := context.Background()
	redisClient, redisMock := redismock.NewClientMock()
	defer redisClient.Close()

	store := NewRedisStore(redisClient)
	redisMock.ExpectFlushDB().SetVal("OK")

	require.NoError(t, store.Clear(ctx))
	assert.NoError(t, redisMock.ExpectationsWereMet())
}
