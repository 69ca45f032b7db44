package presence

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"aurora_back/cache"
)

const sessionTTL = 90 * time.Second

// Session is one live presence record stored under a TTL key.
type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ProjectID string    `json:"project_id,omitempty"`
	SeenAt    time.Time `json:"seen_at"`
}

// Tracker keeps presence in Redis. Everything is best effort: a missing
// or failing Redis never surfaces to callers.
type Tracker struct {
	client *redis.Client
}

func NewTrackerFromEnv() *Tracker {
	client, err := cache.GetRedisClient()
	if err != nil {
		log.Printf("presence: redis unavailable, presence disabled: %v", err)
		return &Tracker{}
	}
	return &Tracker{client: client}
}

func sessionKey(sessionID string) string {
	return "aurora:presence:session:" + sessionID
}

func projectKey(projectID string) string {
	return "aurora:presence:project:" + projectID
}

// Update refreshes a session's TTL key and its project membership.
func (t *Tracker) Update(ctx context.Context, userID, sessionID, projectID string) {
	if t.client == nil {
		return
	}

	session := Session{
		SessionID: sessionID,
		UserID:    userID,
		ProjectID: projectID,
		SeenAt:    time.Now().UTC(),
	}
	encoded, err := json.Marshal(session)
	if err != nil {
		return
	}

	if err := t.client.Set(ctx, sessionKey(sessionID), encoded, sessionTTL).Err(); err != nil {
		log.Printf("presence: set session %s: %v", sessionID, err)
		return
	}
	if projectID != "" {
		pipe := t.client.Pipeline()
		pipe.SAdd(ctx, projectKey(projectID), sessionID)
		pipe.Expire(ctx, projectKey(projectID), sessionTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("presence: track project %s: %v", projectID, err)
		}
	}
}

// Clear drops a session immediately instead of waiting for TTL expiry.
func (t *Tracker) Clear(ctx context.Context, sessionID string) {
	if t.client == nil {
		return
	}
	if err := t.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		log.Printf("presence: clear session %s: %v", sessionID, err)
	}
}

// ProjectSessions lists the sessions still live on a project. Expired
// members are pruned as a side effect.
func (t *Tracker) ProjectSessions(ctx context.Context, projectID string) []Session {
	if t.client == nil {
		return nil
	}

	members, err := t.client.SMembers(ctx, projectKey(projectID)).Result()
	if err != nil {
		log.Printf("presence: list project %s: %v", projectID, err)
		return nil
	}

	sessions := make([]Session, 0, len(members))
	var stale []interface{}
	for _, sessionID := range members {
		raw, err := t.client.Get(ctx, sessionKey(sessionID)).Result()
		if err != nil {
			stale = append(stale, sessionID)
			continue
		}
		var session Session
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			stale = append(stale, sessionID)
			continue
		}
		sessions = append(sessions, session)
	}

	if len(stale) > 0 {
		if err := t.client.SRem(ctx, projectKey(projectID), stale...).Err(); err != nil {
			log.Printf("presence: prune project %s: %v", projectID, err)
		}
	}
	return sessions
}
