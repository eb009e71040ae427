package assistant

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"jassist-go/internal/config"
	"jassist-go/internal/jassist"
	"jassist-go/internal/testutil"
)

func testSessionRoundTrip(t *testing.T, store SessionStore) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.AssistantID != "" || got.ThreadID != "" || !got.ThreadCreatedAt.IsZero() {
		t.Fatalf("Load() on empty store = %+v, want empty session", got)
	}

	created := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	if err := store.Save(ctx, &Session{AssistantID: "asst_1", ThreadID: "thread_1", ThreadCreatedAt: created}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.AssistantID != "asst_1" || got.ThreadID != "thread_1" {
		t.Errorf("Load() = %+v", got)
	}
	if !got.ThreadCreatedAt.Equal(created) {
		t.Errorf("ThreadCreatedAt = %v, want %v", got.ThreadCreatedAt, created)
	}

	if err := store.Save(ctx, &Session{AssistantID: "asst_2"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.AssistantID != "asst_2" || got.ThreadID != "" {
		t.Errorf("Load() after overwrite = %+v", got)
	}
}

func TestDatabaseSessionStore(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	testSessionRoundTrip(t, NewDatabaseSessionStore(db, "default"))
}

func TestRedisSessionStore(t *testing.T) {
	url := os.Getenv("JASSIST_TEST_REDIS_URL")
	if url == "" {
		t.Skip("JASSIST_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL() error = %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })

	store := NewRedisSessionStore(client, "test-"+time.Now().Format("150405.000000"))
	t.Cleanup(func() { client.Del(context.Background(), store.key) })
	testSessionRoundTrip(t, store)
}

func TestNewSessionStoreFromConfig(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	tests := []struct {
		name    string
		cfg     config.SessionConfig
		wantErr bool
	}{
		{"default", config.SessionConfig{}, false},
		{"database", config.SessionConfig{Type: "database"}, false},
		{"redis", config.SessionConfig{Type: "redis", RedisURL: "redis://localhost:6379/0"}, false},
		{"bad redis url", config.SessionConfig{Type: "redis", RedisURL: "not a url"}, true},
		{"unknown", config.SessionConfig{Type: "memcached"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSessionStoreFromConfig(tt.cfg, "default", db)
			if tt.wantErr {
				if !jassist.IsConfigurationError(err) {
					t.Errorf("NewSessionStoreFromConfig() error = %v, want ConfigurationError", err)
				}
				return
			}
			if err != nil {
				t.Errorf("NewSessionStoreFromConfig() error = %v", err)
			}
		})
	}
}
