package utils

import (
	"testing"
	"time"
)

func TestPostgresPoolConfig_Defaults(t *testing.T) {
	got := PostgresPoolConfig{}.withDefaults()
	want := PostgresPoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 15 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		PingTimeout:     3 * time.Second,
	}
	if got != want {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestPostgresPoolConfig_IdleFollowsOpen(t *testing.T) {
	cases := []struct {
		in   PostgresPoolConfig
		open int
		idle int
	}{
		{PostgresPoolConfig{MaxOpenConns: 3}, 3, 2},
		{PostgresPoolConfig{MaxOpenConns: 40}, 40, 20},
		{PostgresPoolConfig{MaxOpenConns: 4, MaxIdleConns: 9}, 4, 4},
		{PostgresPoolConfig{MaxOpenConns: 1}, 1, 1},
	}
	for _, tc := range cases {
		got := tc.in.withDefaults()
		if got.MaxOpenConns != tc.open || got.MaxIdleConns != tc.idle {
			t.Fatalf("%+v: expected open=%d idle=%d, got open=%d idle=%d", tc.in, tc.open, tc.idle, got.MaxOpenConns, got.MaxIdleConns)
		}
	}
}

func TestRedisConfig_Defaults(t *testing.T) {
	got := RedisConfig{Addr: "x"}.withDefaults()
	if got.PoolSize != 20 || got.DialTimeout != 3*time.Second {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}
