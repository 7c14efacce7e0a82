package core

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

type BaseFixture struct {
	ctx      context.Context
	db       *sql.DB
	t        *testing.T
	tearDown func()
}

func NewBaseFixture(t *testing.T) *BaseFixture {
	ctx, cancel := context.WithCancel(context.Background())

	db, err := NewMemorySQLiteDB()
	if err != nil {
		t.Fatal(err)
	}

	return &BaseFixture{
		ctx: ctx,
		db:  db.DB,
		t:   t,
		tearDown: func() {
			cancel()
			db.Close()
		},
	}
}

// stepClock returns a clock that advances by step on every call.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func seedUsers(ctx context.Context, t *testing.T, userStore UserStore, users ...User) []UserWithoutSecrets {
	created := make([]UserWithoutSecrets, 0, len(users))
	for _, u := range users {
		cu, err := userStore.CreateUser(ctx, u)
		if err != nil {
			t.Fatal(err)
		}
		created = append(created, *cu)
	}
	return created
}
