package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/membership-service/internal/domain"
	"github.com/spec-kit/membership-service/internal/repository"
)

// RefreshTokenRepository stores refresh tokens keyed by token string.
type RefreshTokenRepository struct {
	mu      sync.Mutex
	byToken map[string]domain.RefreshToken
	now     func() time.Time
}

var _ repository.RefreshTokenRepository = (*RefreshTokenRepository)(nil)

// NewRefreshTokenRepository builds an empty store. now stamps CreatedAt and may be nil.
func NewRefreshTokenRepository(now func() time.Time) *RefreshTokenRepository {
	if now == nil {
		now = time.Now
	}
	return &RefreshTokenRepository{
		byToken: make(map[string]domain.RefreshToken),
		now:     now,
	}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.insertLocked(token)
}

func (r *RefreshTokenRepository) insertLocked(token *domain.RefreshToken) error {
	if _, exists := r.byToken[token.Token]; exists {
		return repository.ErrDuplicateToken
	}
	token.ID = uuid.NewString()
	token.CreatedAt = r.now().UTC()
	r.byToken[token.Token] = *token
	return nil
}

func (r *RefreshTokenRepository) GetByToken(ctx context.Context, tokenStr string) (*domain.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.byToken[tokenStr]
	if !ok {
		return nil, domain.ErrRefreshTokenNotFound
	}
	return &token, nil
}

func (r *RefreshTokenRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleteIDLocked(id)
	return nil
}

func (r *RefreshTokenRepository) deleteIDLocked(id string) bool {
	for key, token := range r.byToken {
		if token.ID == id {
			delete(r.byToken, key)
			return true
		}
	}
	return false
}

func (r *RefreshTokenRepository) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for key, token := range r.byToken {
		if token.UserID == userID {
			delete(r.byToken, key)
			deleted++
		}
	}
	return deleted, nil
}

func (r *RefreshTokenRepository) Replace(ctx context.Context, oldID string, next *domain.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byToken[next.Token]; exists {
		return repository.ErrDuplicateToken
	}
	if !r.deleteIDLocked(oldID) {
		return domain.ErrRefreshTokenNotFound
	}
	return r.insertLocked(next)
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for key, token := range r.byToken {
		if token.Expired(now) {
			delete(r.byToken, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of stored tokens.
func (r *RefreshTokenRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byToken)
}
