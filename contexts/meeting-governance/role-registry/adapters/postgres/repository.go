package postgresadapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"boardroom/contexts/meeting-governance/role-registry/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/role-registry/domain/errors"
	"boardroom/contexts/meeting-governance/role-registry/ports"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

func (r *Repository) UpsertRole(ctx context.Context, role entities.MeetingRole) error {
	row := roleModelFromEntity(role)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "meeting_id"}, {Name: "user_id"}, {Name: "role_tag"}},
		DoUpdates: clause.Assignments(map[string]any{
			"voting_weight": row.VotingWeight,
			"capabilities":  row.Capabilities,
			"active":        row.Active,
			"updated_at":    row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("role_repo_upsert_failed", create.Error,
			"meeting_id", row.MeetingID,
			"user_id", row.UserID,
			"role_tag", row.RoleTag,
		)
	}
	return nil
}

func (r *Repository) DeactivateRole(ctx context.Context, meetingID string, userID string, roleTag string) error {
	result := r.db.WithContext(ctx).
		Model(&roleModel{}).
		Where("meeting_id = ?", strings.TrimSpace(meetingID)).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Where("role_tag = ?", strings.TrimSpace(roleTag)).
		Updates(map[string]any{
			"active":     false,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return r.logError("role_repo_deactivate_failed", result.Error,
			"meeting_id", strings.TrimSpace(meetingID),
			"user_id", strings.TrimSpace(userID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRoleNotFound
	}
	return nil
}

func (r *Repository) ListRolesByUser(ctx context.Context, meetingID string, userID string) ([]entities.MeetingRole, error) {
	var rows []roleModel
	if err := r.db.WithContext(ctx).
		Where("meeting_id = ?", strings.TrimSpace(meetingID)).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Order("role_tag ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("role_repo_list_by_user_failed", err,
			"meeting_id", strings.TrimSpace(meetingID),
			"user_id", strings.TrimSpace(userID),
		)
	}
	return toRoleEntities(rows), nil
}

func (r *Repository) ListRolesByMeeting(ctx context.Context, meetingID string) ([]entities.MeetingRole, error) {
	var rows []roleModel
	if err := r.db.WithContext(ctx).
		Where("meeting_id = ?", strings.TrimSpace(meetingID)).
		Order("user_id ASC, role_tag ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("role_repo_list_by_meeting_failed", err,
			"meeting_id", strings.TrimSpace(meetingID),
		)
	}
	return toRoleEntities(rows), nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "meeting-governance/role-registry",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("role repository operation failed", fields...)
	return err
}

type roleModel struct {
	MeetingID    string    `gorm:"column:meeting_id;primaryKey"`
	UserID       string    `gorm:"column:user_id;primaryKey"`
	RoleTag      string    `gorm:"column:role_tag;primaryKey"`
	VotingWeight float64   `gorm:"column:voting_weight"`
	Capabilities string    `gorm:"column:capabilities"`
	Active       bool      `gorm:"column:active"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (roleModel) TableName() string {
	return "meeting_roles"
}

func roleModelFromEntity(role entities.MeetingRole) roleModel {
	row := roleModel{
		MeetingID:    strings.TrimSpace(role.MeetingID),
		UserID:       strings.TrimSpace(role.UserID),
		RoleTag:      strings.TrimSpace(role.RoleTag),
		VotingWeight: role.VotingWeight,
		Capabilities: strings.Join(role.Capabilities, ","),
		Active:       role.Active,
		CreatedAt:    role.CreatedAt.UTC(),
		UpdatedAt:    role.UpdatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func (m roleModel) toEntity() entities.MeetingRole {
	var capabilities []string
	for _, item := range strings.Split(m.Capabilities, ",") {
		if item = strings.TrimSpace(item); item != "" {
			capabilities = append(capabilities, item)
		}
	}
	return entities.MeetingRole{
		MeetingID:    m.MeetingID,
		UserID:       m.UserID,
		RoleTag:      m.RoleTag,
		VotingWeight: m.VotingWeight,
		Capabilities: capabilities,
		Active:       m.Active,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

func toRoleEntities(rows []roleModel) []entities.MeetingRole {
	items := make([]entities.MeetingRole, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var _ ports.RoleRepository = (*Repository)(nil)
