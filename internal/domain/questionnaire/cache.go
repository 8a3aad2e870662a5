package questionnaire

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/platform/db"
)

// JSONCache is the subset of the Redis store used for definitions.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// cachedQuestionnaireRepo serves definitions from the cache when it can.
// Every hit is decoded into a fresh value, so callers never share a tree.
// Cache failures are logged and fall through to the wrapped repository.
type cachedQuestionnaireRepo struct {
	QuestionnaireRepository
	cache  JSONCache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedQuestionnaireRepo(repo QuestionnaireRepository, cache JSONCache, ttl time.Duration, logger zerolog.Logger) QuestionnaireRepository {
	return &cachedQuestionnaireRepo{QuestionnaireRepository: repo, cache: cache, ttl: ttl, logger: logger}
}

// cacheKey scopes entries by tenant since ids are only unique per schema.
func cacheKey(ctx context.Context, id uuid.UUID) string {
	return "questionnaire:" + db.TenantFromContext(ctx) + ":" + id.String()
}

func (r *cachedQuestionnaireRepo) GetByID(ctx context.Context, id uuid.UUID) (*Questionnaire, error) {
	var q Questionnaire
	hit, err := r.cache.GetJSON(ctx, cacheKey(ctx, id), &q)
	if err != nil {
		r.logger.Warn().Err(err).Str("questionnaire_id", id.String()).Msg("questionnaire cache read failed")
	}
	if hit {
		return &q, nil
	}

	found, err := r.QuestionnaireRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.SetJSON(ctx, cacheKey(ctx, id), found, r.ttl); err != nil {
		r.logger.Warn().Err(err).Str("questionnaire_id", id.String()).Msg("questionnaire cache write failed")
	}
	return found, nil
}

func (r *cachedQuestionnaireRepo) Update(ctx context.Context, q *Questionnaire) error {
	if err := r.QuestionnaireRepository.Update(ctx, q); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, cacheKey(ctx, q.ID)); err != nil {
		r.logger.Warn().Err(err).Str("questionnaire_id", q.ID.String()).Msg("questionnaire cache invalidation failed")
	}
	return nil
}
