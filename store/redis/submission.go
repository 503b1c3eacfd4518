package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Bondifuzz/api-gateway/id"
	"github.com/Bondifuzz/api-gateway/resolve"
	"github.com/Bondifuzz/api-gateway/store"
	"github.com/Bondifuzz/api-gateway/task"
)

// Save stores the submission as a Hash and adds it to the ordered index.
func (s *Store) Save(ctx context.Context, sub *task.Submission) error {
	sID := sub.ID.String()
	key := submissionKey(sID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("gateway/redis: save check exists: %w", err)
	}
	if exists > 0 {
		return store.ErrAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, submissionToMap(sub))
	pipe.ZAdd(ctx, submissionIndexKey, goredis.Z{
		Score:  float64(sub.CreatedAt.UnixMilli()),
		Member: sID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("gateway/redis: save submission: %w", err)
	}
	return nil
}

// Update persists changes to an existing submission.
func (s *Store) Update(ctx context.Context, sub *task.Submission) error {
	key := submissionKey(sub.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("gateway/redis: update check exists: %w", err)
	}
	if exists == 0 {
		return store.ErrNotFound
	}

	fields := submissionToMap(sub)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	if _, err := s.client.HSet(ctx, key, fields).Result(); err != nil {
		return fmt.Errorf("gateway/redis: update submission: %w", err)
	}
	return nil
}

// Get retrieves a submission by id.
func (s *Store) Get(ctx context.Context, taskID id.TaskID) (*task.Submission, error) {
	return s.getByKey(ctx, submissionKey(taskID.String()))
}

// List returns submissions in insertion order, filtered and paginated.
// Filters are applied client-side, so offset and limit count matching
// records, not raw index entries.
func (s *Store) List(ctx context.Context, opts store.ListOpts) ([]*task.Submission, error) {
	ids, err := s.client.ZRange(ctx, submissionIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("gateway/redis: list zrange: %w", err)
	}

	matched := make([]*task.Submission, 0, len(ids))
	for _, sID := range ids {
		sub, getErr := s.getByKey(ctx, submissionKey(sID))
		if getErr != nil {
			continue // skip records deleted between ZRange and HGetAll
		}
		if !matches(sub, opts.State, opts.Kind) {
			continue
		}
		matched = append(matched, sub)
	}

	if opts.Offset >= len(matched) {
		return nil, nil
	}
	if opts.Offset > 0 {
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// Count returns the number of submissions matching opts.
func (s *Store) Count(ctx context.Context, opts store.CountOpts) (int64, error) {
	ids, err := s.client.ZRange(ctx, submissionIndexKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("gateway/redis: count zrange: %w", err)
	}

	var count int64
	for _, sID := range ids {
		sub, getErr := s.getByKey(ctx, submissionKey(sID))
		if getErr != nil {
			continue
		}
		if matches(sub, opts.State, opts.Kind) {
			count++
		}
	}
	return count, nil
}

func matches(sub *task.Submission, state task.State, kind string) bool {
	if state != "" && sub.State != state {
		return false
	}
	if kind != "" && sub.Kind != kind {
		return false
	}
	return true
}

// ── helpers ──

func submissionToMap(sub *task.Submission) map[string]interface{} {
	m := map[string]interface{}{
		"id":         sub.ID.String(),
		"kind":       sub.Kind,
		"language":   sub.Triple.Language,
		"engine":     sub.Triple.Engine,
		"image":      sub.Triple.Image,
		"state":      string(sub.State),
		"background": strconv.FormatBool(sub.Background),
		"attempts":   strconv.Itoa(sub.Attempts),
		"last_error": sub.LastError,
		"created_at": sub.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": sub.UpdatedAt.Format(time.RFC3339Nano),
	}
	if sub.CompletedAt != nil {
		m["completed_at"] = sub.CompletedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getByKey(ctx context.Context, key string) (*task.Submission, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("gateway/redis: get submission: %w", err)
	}
	if len(vals) == 0 {
		return nil, store.ErrNotFound
	}
	return mapToSubmission(vals)
}

func mapToSubmission(m map[string]string) (*task.Submission, error) {
	taskID, err := id.ParseTaskID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("gateway/redis: parse submission id: %w", err)
	}

	background, _ := strconv.ParseBool(m["background"]) //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts"])          //nolint:errcheck // best-effort parse from trusted Redis data

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	sub := &task.Submission{
		ID:   taskID,
		Kind: m["kind"],
		Triple: resolve.Triple{
			Language: m["language"],
			Engine:   m["engine"],
			Image:    m["image"],
		},
		State:      task.State(m["state"]),
		Background: background,
		Attempts:   attempts,
		LastError:  m["last_error"],
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}

	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		sub.CompletedAt = &t
	}

	return sub, nil
}
