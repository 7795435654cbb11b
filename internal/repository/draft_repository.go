package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/mtb-case-api/internal/models"
	"github.com/noah-isme/mtb-case-api/pkg/cache"
)

const draftUpdateAttempts = 5

// ErrDraftContention is returned when a draft kept changing underneath an update.
var ErrDraftContention = errors.New("draft modified concurrently")

// DraftStore keeps one in-progress case draft per user.
type DraftStore interface {
	// Get returns nil without error when the user has no draft.
	Get(ctx context.Context, userID string) (*models.Draft, error)
	// Update loads the draft (an empty one when missing), applies fn and
	// stores the result. An error from fn aborts without writing.
	Update(ctx context.Context, userID string, fn func(*models.Draft) error) (*models.Draft, error)
	Delete(ctx context.Context, userID string) error
}

func newDraft(userID string) *models.Draft {
	return &models.Draft{UserID: userID, PendingFiles: []models.PendingFile{}}
}

// RedisDraftRepository stores drafts as JSON values with a sliding TTL.
type RedisDraftRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisDraftRepository constructs a Redis backed draft store.
func NewRedisDraftRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisDraftRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisDraftRepository{client: client, ttl: ttl, logger: logger}
}

func draftKey(userID string) string {
	return cache.Key("draft", userID)
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisDraftRepository) load(ctx context.Context, g stringGetter, userID string) (*models.Draft, error) {
	key := draftKey(userID)
	raw, err := g.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var draft models.Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, fmt.Errorf("unmarshal draft %s: %w", key, err)
	}
	if draft.PendingFiles == nil {
		draft.PendingFiles = []models.PendingFile{}
	}
	return &draft, nil
}

func (r *RedisDraftRepository) Get(ctx context.Context, userID string) (*models.Draft, error) {
	return r.load(ctx, r.client, userID)
}

// Update runs fn under WATCH so concurrent edits from several tabs cannot
// overwrite each other.
func (r *RedisDraftRepository) Update(ctx context.Context, userID string, fn func(*models.Draft) error) (*models.Draft, error) {
	key := draftKey(userID)
	var updated *models.Draft

	txf := func(tx *redis.Tx) error {
		draft, err := r.load(ctx, tx, userID)
		if err != nil {
			return err
		}
		if draft == nil {
			draft = newDraft(userID)
		}
		if err := fn(draft); err != nil {
			return err
		}
		draft.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(draft)
		if err != nil {
			return fmt.Errorf("marshal draft %s: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		if err == nil {
			updated = draft
		}
		return err
	}

	for attempt := 0; attempt < draftUpdateAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		r.logger.Debug("draft changed during update, retrying", zap.String("user_id", userID), zap.Int("attempt", attempt+1))
	}
	return nil, ErrDraftContention
}

func (r *RedisDraftRepository) Delete(ctx context.Context, userID string) error {
	key := draftKey(userID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// MemoryDraftRepository is a process local DraftStore used in tests and
// when Redis is disabled.
type MemoryDraftRepository struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryDraft
}

type memoryDraft struct {
	draft     models.Draft
	expiresAt time.Time
}

// NewMemoryDraftRepository constructs an in-memory store. A zero ttl never expires drafts.
func NewMemoryDraftRepository(ttl time.Duration) *MemoryDraftRepository {
	return &MemoryDraftRepository{ttl: ttl, now: time.Now, entries: make(map[string]memoryDraft)}
}

func (r *MemoryDraftRepository) Get(_ context.Context, userID string) (*models.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.lookup(userID)
	if !ok {
		return nil, nil
	}
	return cloneDraft(entry.draft), nil
}

func (r *MemoryDraftRepository) Update(_ context.Context, userID string, fn func(*models.Draft) error) (*models.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	draft := newDraft(userID)
	if entry, ok := r.lookup(userID); ok {
		draft = cloneDraft(entry.draft)
	}
	if err := fn(draft); err != nil {
		return nil, err
	}
	now := r.now()
	draft.UpdatedAt = now.UTC()
	entry := memoryDraft{draft: *cloneDraft(*draft)}
	if r.ttl > 0 {
		entry.expiresAt = now.Add(r.ttl)
	}
	r.entries[userID] = entry
	return draft, nil
}

func (r *MemoryDraftRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, userID)
	return nil
}

// lookup must be called with mu held.
func (r *MemoryDraftRepository) lookup(userID string) (memoryDraft, bool) {
	entry, ok := r.entries[userID]
	if !ok {
		return memoryDraft{}, false
	}
	if !entry.expiresAt.IsZero() && !r.now().Before(entry.expiresAt) {
		delete(r.entries, userID)
		return memoryDraft{}, false
	}
	return entry, true
}

func cloneDraft(d models.Draft) *models.Draft {
	out := d
	if d.PatientDetails != nil {
		details := *d.PatientDetails
		out.PatientDetails = &details
	}
	out.PendingFiles = append([]models.PendingFile{}, d.PendingFiles...)
	return &out
}
