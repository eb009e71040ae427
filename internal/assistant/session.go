package assistant

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jassist-go/internal/config"
	"jassist-go/internal/database/sqlc"
	"jassist-go/internal/jassist"
)

// Session is the cached assistant and persistent thread.
type Session struct {
	AssistantID     string
	ThreadID        string
	ThreadCreatedAt time.Time
}

// SessionStore persists a Session between processes.
type SessionStore interface {
	// Load returns an empty Session when none has been saved.
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

// SessionDatabase is the part of jassist.Database the database store needs.
type SessionDatabase interface {
	FindClassificationSession(name string) (*sqlc.ClassificationSession, error)
	SaveClassificationSession(session *sqlc.ClassificationSession) error
}

// DatabaseSessionStore keeps the session in the classification_sessions table.
type DatabaseSessionStore struct {
	db   SessionDatabase
	name string
}

func NewDatabaseSessionStore(db SessionDatabase, name string) *DatabaseSessionStore {
	return &DatabaseSessionStore{db: db, name: name}
}

func (s *DatabaseSessionStore) Load(ctx context.Context) (*Session, error) {
	row, err := s.db.FindClassificationSession(s.name)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return &Session{}, nil
	}
	return &Session{
		AssistantID:     row.AssistantID.String,
		ThreadID:        row.ThreadID.String,
		ThreadCreatedAt: row.ThreadCreatedAt.Time,
	}, nil
}

func (s *DatabaseSessionStore) Save(ctx context.Context, sess *Session) error {
	return s.db.SaveClassificationSession(&sqlc.ClassificationSession{
		Name:            s.name,
		AssistantID:     sql.NullString{String: sess.AssistantID, Valid: sess.AssistantID != ""},
		ThreadID:        sql.NullString{String: sess.ThreadID, Valid: sess.ThreadID != ""},
		ThreadCreatedAt: sql.NullTime{Time: sess.ThreadCreatedAt, Valid: !sess.ThreadCreatedAt.IsZero()},
	})
}

// RedisSessionStore keeps the session in a redis hash.
type RedisSessionStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisSessionStore(client redis.UniversalClient, name string) *RedisSessionStore {
	return &RedisSessionStore{client: client, key: "jassist:classification:session:" + name}
}

func (s *RedisSessionStore) Load(ctx context.Context) (*Session, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("loading session from redis: %w", err)
	}
	sess := &Session{
		AssistantID: fields["assistant_id"],
		ThreadID:    fields["persistent_thread_id"],
	}
	if ts := fields["persistent_thread_created_at"]; ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing thread creation time: %w", err)
		}
		sess.ThreadCreatedAt = t
	}
	return sess, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, sess *Session) error {
	created := ""
	if !sess.ThreadCreatedAt.IsZero() {
		created = sess.ThreadCreatedAt.UTC().Format(time.RFC3339Nano)
	}
	err := s.client.HSet(ctx, s.key,
		"assistant_id", sess.AssistantID,
		"persistent_thread_id", sess.ThreadID,
		"persistent_thread_created_at", created,
	).Err()
	if err != nil {
		return fmt.Errorf("saving session to redis: %w", err)
	}
	return nil
}

// NewSessionStoreFromConfig creates the SessionStore named by cfg.Type.
func NewSessionStoreFromConfig(cfg config.SessionConfig, name string, db jassist.Database) (SessionStore, error) {
	switch cfg.Type {
	case "", "database":
		return NewDatabaseSessionStore(db, name), nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, jassist.Configf("invalid session redis_url: %v", err)
		}
		return NewRedisSessionStore(redis.NewClient(opts), name), nil
	default:
		return nil, jassist.Configf("unknown session type: %s", cfg.Type)
	}
}
