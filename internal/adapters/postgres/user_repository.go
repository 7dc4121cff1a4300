package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type userRepository struct {
	db *gorm.DB
}

func (r *userRepository) FindByID(ctx context.Context, userID uuid.UUID) (domain.User, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("user_id = ?", userID))
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("lower(email) = ?", strings.ToLower(email)))
}

func (r *userRepository) findOne(ctx context.Context, query *gorm.DB) (domain.User, error) {
	var row userModel
	if err := query.Where("deleted_at IS NULL").Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	roles, err := r.rolesOf(ctx, r.db.WithContext(ctx), row.UserID)
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(row, roles), nil
}

func (r *userRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("lower(email) = ?", strings.ToLower(email)).
		Where("deleted_at IS NULL").
		Count(&count).Error
	return count > 0, err
}

func (r *userRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("username = ?", username).
		Where("deleted_at IS NULL").
		Count(&count).Error
	return count > 0, err
}

// Save upserts the user row and replaces its role set in one transaction.
func (r *userRepository) Save(ctx context.Context, user domain.User) (domain.User, error) {
	if user.UserID == uuid.Nil {
		user.UserID = uuid.New()
	}
	rec := toUserModel(user)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"username", "email", "password_hash", "active", "email_verified", "updated_at", "deleted_at",
			}),
		}
		if err := tx.Clauses(upsert).Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: username or email", domain.ErrDuplicateIdentity)
			}
			return err
		}

		roleIDs, err := r.resolveRoles(tx, user.Roles)
		if err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", rec.UserID).Delete(&userRoleModel{}).Error; err != nil {
			return err
		}
		if len(roleIDs) == 0 {
			return nil
		}
		links := make([]userRoleModel, 0, len(roleIDs))
		for _, id := range roleIDs {
			links = append(links, userRoleModel{UserID: rec.UserID, RoleID: id})
		}
		return tx.Create(&links).Error
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (r *userRepository) SoftDelete(ctx context.Context, userID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Where("deleted_at IS NULL").
		Updates(map[string]any{
			"deleted_at": at,
			"active":     false,
			"updated_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// resolveRoles returns role ids for names, creating unknown roles on the fly.
func (r *userRepository) resolveRoles(tx *gorm.DB, names []string) ([]uuid.UUID, error) {
	if len(names) == 0 {
		return nil, nil
	}
	missing := make([]roleModel, 0, len(names))
	now := time.Now().UTC()
	for _, name := range names {
		missing = append(missing, roleModel{RoleID: uuid.New(), Name: name, CreatedAt: now})
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&missing).Error; err != nil {
		return nil, err
	}

	var rows []roleModel
	if err := tx.Where("name IN ?", names).Find(&rows).Error; err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.RoleID)
	}
	return ids, nil
}

func (r *userRepository) rolesOf(ctx context.Context, db *gorm.DB, userID uuid.UUID) ([]string, error) {
	var names []string
	err := db.WithContext(ctx).
		Table("user_roles").
		Joins("JOIN roles ON roles.role_id = user_roles.role_id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.name ASC").
		Pluck("roles.name", &names).Error
	return names, err
}
