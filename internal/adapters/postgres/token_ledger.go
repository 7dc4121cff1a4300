package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/domain"
	"gorm.io/gorm"
)

// tokenLedger stores issued tokens by digest. Rows are never deleted;
// revocation only flips active and stamps revoked_at.
type tokenLedger struct {
	db *gorm.DB
}

func (l *tokenLedger) FindByTokenValue(ctx context.Context, value string) (domain.Token, error) {
	var row tokenModel
	err := l.db.WithContext(ctx).
		Where("token_digest = ?", domain.TokenDigest(value)).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Token{}, domain.ErrNotFound
		}
		return domain.Token{}, err
	}
	return toDomainToken(row), nil
}

func (l *tokenLedger) FindActiveByOwner(ctx context.Context, userID uuid.UUID) ([]domain.Token, error) {
	var rows []tokenModel
	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("active = ?", true).
		Order("issued_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make([]domain.Token, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainToken(row))
	}
	return result, nil
}

func (l *tokenLedger) Save(ctx context.Context, token domain.Token) error {
	rec := toTokenModel(token)
	return l.db.WithContext(ctx).Create(&rec).Error
}

func (l *tokenLedger) SaveAll(ctx context.Context, tokens []domain.Token) error {
	if len(tokens) == 0 {
		return nil
	}
	rows := make([]tokenModel, 0, len(tokens))
	for _, token := range tokens {
		rows = append(rows, toTokenModel(token))
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
}

// RevokeIfActive is a single conditional UPDATE. Under concurrent callers
// exactly one observes RowsAffected == 1.
func (l *tokenLedger) RevokeIfActive(ctx context.Context, digest string, at time.Time) (bool, error) {
	res := l.db.WithContext(ctx).
		Model(&tokenModel{}).
		Where("token_digest = ?", digest).
		Where("active = ?", true).
		Updates(map[string]any{
			"active":     false,
			"revoked_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
