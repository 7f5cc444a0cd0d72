package rezagos

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const completedKey = "rezagos:completed"

// CompletionStore persists which correction tasks were marked as resolved.
// The upstream queue keeps returning resolved tasks, so the set survives
// process restarts in Redis rather than in memory.
type CompletionStore struct {
	client *redis.Client
}

func NewCompletionStore(client *redis.Client) *CompletionStore {
	return &CompletionStore{client: client}
}

// MarkCompleted records a task as resolved.
func (s *CompletionStore) MarkCompleted(ctx context.Context, taskID int64) error {
	if err := s.client.SAdd(ctx, completedKey, strconv.FormatInt(taskID, 10)).Err(); err != nil {
		return fmt.Errorf("rezagos: mark completed %d: %w", taskID, err)
	}
	return nil
}

// Reopen removes a task from the resolved set so it reappears in the queue.
func (s *CompletionStore) Reopen(ctx context.Context, taskID int64) error {
	if err := s.client.SRem(ctx, completedKey, strconv.FormatInt(taskID, 10)).Err(); err != nil {
		return fmt.Errorf("rezagos: reopen %d: %w", taskID, err)
	}
	return nil
}

// Completed returns the full resolved set as a membership map.
func (s *CompletionStore) Completed(ctx context.Context) (map[int64]bool, error) {
	members, err := s.client.SMembers(ctx, completedKey).Result()
	if err != nil {
		return nil, fmt.Errorf("rezagos: load completed set: %w", err)
	}
	set := make(map[int64]bool, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		set[id] = true
	}
	return set, nil
}
