package store

import (
	"context"

	"github.com/Seednode/quizhost/internal/quiz"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedQuizStore wraps a Store with a read-through LRU cache in front of
// GetQuiz. Quiz snapshots are immutable once a Session captures them (§4.2),
// so a cache entry never needs invalidating within the lifetime described
// by this package — it only bounds memory for long-running processes
// serving many distinct quizzes.
type CachedQuizStore struct {
	Store
	cache *lru.Cache[string, *quiz.Quiz]
}

// NewCachedQuizStore wraps next with an LRU of the given size (quiz
// snapshots, not full Store entries).
func NewCachedQuizStore(next Store, size int) (*CachedQuizStore, error) {
	c, err := lru.New[string, *quiz.Quiz](size)
	if err != nil {
		return nil, err
	}
	return &CachedQuizStore{Store: next, cache: c}, nil
}

func (c *CachedQuizStore) GetQuiz(ctx context.Context, quizID string) (*quiz.Quiz, error) {
	if q, ok := c.cache.Get(quizID); ok {
		return q, nil
	}

	q, err := c.Store.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(quizID, q)
	return q, nil
}

var _ Store = (*CachedQuizStore)(nil)
