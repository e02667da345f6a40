package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"boardroom/contexts/meeting-governance/proxy-graph/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/proxy-graph/domain/errors"
	"boardroom/contexts/meeting-governance/proxy-graph/ports"
	"boardroom/internal/shared/outbox"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
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

func (r *Repository) SaveGrantSuperseding(
	ctx context.Context,
	grant entities.ProxyGrant,
	revokedAt time.Time,
) (entities.ProxyGrant, bool, error) {
	var superseded entities.ProxyGrant
	had := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prior grantModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("meeting_id = ?", strings.TrimSpace(grant.MeetingID)).
			Where("LOWER(grantor_id) = LOWER(?)", strings.TrimSpace(grant.GrantorID)).
			Where("status = ?", string(entities.GrantStatusActive)).
			First(&prior).
			Error
		switch {
		case err == nil:
			if err := tx.Model(&grantModel{}).
				Where("id = ?", prior.ID).
				Updates(map[string]any{
					"status":            string(entities.GrantStatusRevoked),
					"revocation_reason": entities.RevocationReasonSuperseded,
					"updated_at":        revokedAt.UTC(),
				}).Error; err != nil {
				return err
			}
			prior.Status = string(entities.GrantStatusRevoked)
			prior.RevocationReason = entities.RevocationReasonSuperseded
			prior.UpdatedAt = revokedAt.UTC()
			superseded = prior.toEntity()
			had = true
		case errors.Is(err, gorm.ErrRecordNotFound):
			// No prior active grant; nothing to supersede.
		default:
			return err
		}

		row := grantModelFromEntity(grant)
		return tx.Create(&row).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return entities.ProxyGrant{}, false, domainerrors.ErrConflict
		}
		return entities.ProxyGrant{}, false, r.logError("proxy_repo_save_grant_superseding_failed", err,
			"grant_id", strings.TrimSpace(grant.GrantID),
			"meeting_id", strings.TrimSpace(grant.MeetingID),
			"grantor_id", strings.TrimSpace(grant.GrantorID),
		)
	}
	return superseded, had, nil
}

func (r *Repository) SaveGrant(ctx context.Context, grant entities.ProxyGrant) error {
	row := grantModelFromEntity(grant)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"status":            row.Status,
			"revoked_by":        row.RevokedBy,
			"revocation_reason": row.RevocationReason,
			"votes_cast":        row.VotesCast,
			"updated_at":        row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("proxy_repo_save_grant_failed", create.Error,
			"grant_id", strings.TrimSpace(grant.GrantID),
		)
	}
	return nil
}

func (r *Repository) GetGrant(ctx context.Context, grantID string) (entities.ProxyGrant, error) {
	var row grantModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(grantID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ProxyGrant{}, domainerrors.ErrGrantNotFound
		}
		return entities.ProxyGrant{}, r.logError("proxy_repo_get_grant_failed", err,
			"grant_id", strings.TrimSpace(grantID),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) GetActiveGrantByGrantor(
	ctx context.Context,
	meetingID string,
	grantorID string,
) (entities.ProxyGrant, bool, error) {
	var row grantModel
	err := r.db.WithContext(ctx).
		Where("meeting_id = ?", strings.TrimSpace(meetingID)).
		Where("LOWER(grantor_id) = LOWER(?)", strings.TrimSpace(grantorID)).
		Where("status = ?", string(entities.GrantStatusActive)).
		Order("created_at DESC").
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ProxyGrant{}, false, nil
		}
		return entities.ProxyGrant{}, false, r.logError("proxy_repo_get_active_grant_failed", err,
			"meeting_id", strings.TrimSpace(meetingID),
			"grantor_id", strings.TrimSpace(grantorID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListGrantsByMeeting(ctx context.Context, meetingID string) ([]entities.ProxyGrant, error) {
	var rows []grantModel
	if err := r.db.WithContext(ctx).
		Where("meeting_id = ?", strings.TrimSpace(meetingID)).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("proxy_repo_list_grants_failed", err,
			"meeting_id", strings.TrimSpace(meetingID),
		)
	}
	items := make([]entities.ProxyGrant, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) ExpireActiveBefore(ctx context.Context, now time.Time) ([]entities.ProxyGrant, error) {
	var rows []grantModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(entities.GrantStatusActive)).
		Where("effective_until IS NOT NULL AND effective_until < ?", now.UTC()).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("proxy_repo_expire_list_failed", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	if err := r.db.WithContext(ctx).
		Model(&grantModel{}).
		Where("id IN ?", ids).
		Where("status = ?", string(entities.GrantStatusActive)).
		Updates(map[string]any{
			"status":     string(entities.GrantStatusExpired),
			"updated_at": now.UTC(),
		}).Error; err != nil {
		return nil, r.logError("proxy_repo_expire_update_failed", err)
	}

	items := make([]entities.ProxyGrant, 0, len(rows))
	for _, row := range rows {
		row.Status = string(entities.GrantStatusExpired)
		row.UpdatedAt = now.UTC()
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("key = ?", strings.TrimSpace(key)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, r.logError("proxy_repo_idempotency_get_failed", err,
			"idempotency_key", strings.TrimSpace(key),
		)
	}
	if !row.ExpiresAt.IsZero() && now.UTC().After(row.ExpiresAt.UTC()) {
		if err := r.db.WithContext(ctx).
			Where("key = ?", strings.TrimSpace(key)).
			Delete(&idempotencyModel{}).Error; err != nil {
			return ports.IdempotencyRecord{}, false, r.logError("proxy_repo_idempotency_expire_delete_failed", err,
				"idempotency_key", strings.TrimSpace(key),
			)
		}
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:         row.Key,
		RequestHash: row.RequestHash,
		GrantID:     row.GrantID,
		ExpiresAt:   row.ExpiresAt.UTC(),
	}, true, nil
}

func (r *Repository) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModel{
		Key:         strings.TrimSpace(record.Key),
		RequestHash: strings.TrimSpace(record.RequestHash),
		GrantID:     strings.TrimSpace(record.GrantID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("proxy_repo_idempotency_put_failed", create.Error, "idempotency_key", row.Key)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing idempotencyModel
	if err := r.db.WithContext(ctx).
		Where("key = ?", row.Key).
		First(&existing).Error; err != nil {
		return r.logError("proxy_repo_idempotency_load_existing_failed", err, "idempotency_key", row.Key)
	}
	if existing.RequestHash != row.RequestHash || existing.GrantID != row.GrantID {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("proxy_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outbox.StatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("proxy_repo_append_outbox_insert_failed", create.Error,
			"outbox_id", row.OutboxID,
		)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("proxy_repo_append_outbox_load_existing_failed", err,
			"outbox_id", row.OutboxID,
		)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outbox.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("proxy_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outbox.StatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("proxy_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "meeting-governance/proxy-graph",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("proxy repository operation failed", fields...)
	return err
}

type grantModel struct {
	ID               string     `gorm:"column:id;primaryKey"`
	MeetingID        string     `gorm:"column:meeting_id"`
	GrantorID        string     `gorm:"column:grantor_id"`
	HolderID         string     `gorm:"column:holder_id"`
	Scope            string     `gorm:"column:scope"`
	VotingWeight     float64    `gorm:"column:voting_weight"`
	MaxVotesAllowed  int        `gorm:"column:max_votes_allowed"`
	VotesCast        int        `gorm:"column:votes_cast"`
	EffectiveFrom    time.Time  `gorm:"column:effective_from"`
	EffectiveUntil   *time.Time `gorm:"column:effective_until"`
	Status           string     `gorm:"column:status"`
	RevokedBy        string     `gorm:"column:revoked_by"`
	RevocationReason string     `gorm:"column:revocation_reason"`
	CanSubDelegate   bool       `gorm:"column:can_sub_delegate"`
	ParentGrantID    *string    `gorm:"column:parent_grant_id"`
	ChainDepth       int        `gorm:"column:chain_depth"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at"`
}

func (grantModel) TableName() string {
	return "proxy_grants"
}

func grantModelFromEntity(grant entities.ProxyGrant) grantModel {
	row := grantModel{
		ID:               strings.TrimSpace(grant.GrantID),
		MeetingID:        strings.TrimSpace(grant.MeetingID),
		GrantorID:        strings.TrimSpace(grant.GrantorID),
		HolderID:         strings.TrimSpace(grant.HolderID),
		Scope:            strings.TrimSpace(grant.Scope),
		VotingWeight:     grant.VotingWeight,
		MaxVotesAllowed:  grant.MaxVotesAllowed,
		VotesCast:        grant.VotesCast,
		EffectiveFrom:    grant.EffectiveFrom.UTC(),
		EffectiveUntil:   normalizeOptionalTime(grant.EffectiveUntil),
		Status:           string(grant.Status),
		RevokedBy:        strings.TrimSpace(grant.RevokedBy),
		RevocationReason: strings.TrimSpace(grant.RevocationReason),
		CanSubDelegate:   grant.CanSubDelegate,
		ChainDepth:       grant.ChainDepth,
		CreatedAt:        grant.CreatedAt.UTC(),
		UpdatedAt:        grant.UpdatedAt.UTC(),
	}
	if parentID := strings.TrimSpace(grant.ParentGrantID); parentID != "" {
		row.ParentGrantID = &parentID
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func (m grantModel) toEntity() entities.ProxyGrant {
	parentID := ""
	if m.ParentGrantID != nil {
		parentID = strings.TrimSpace(*m.ParentGrantID)
	}
	return entities.ProxyGrant{
		GrantID:          m.ID,
		MeetingID:        m.MeetingID,
		GrantorID:        m.GrantorID,
		HolderID:         m.HolderID,
		Scope:            m.Scope,
		VotingWeight:     m.VotingWeight,
		MaxVotesAllowed:  m.MaxVotesAllowed,
		VotesCast:        m.VotesCast,
		EffectiveFrom:    m.EffectiveFrom.UTC(),
		EffectiveUntil:   normalizeOptionalTime(m.EffectiveUntil),
		Status:           entities.GrantStatus(m.Status),
		RevokedBy:        m.RevokedBy,
		RevocationReason: m.RevocationReason,
		CanSubDelegate:   m.CanSubDelegate,
		ParentGrantID:    parentID,
		ChainDepth:       m.ChainDepth,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
}

type idempotencyModel struct {
	Key         string    `gorm:"column:key;primaryKey"`
	RequestHash string    `gorm:"column:request_hash"`
	GrantID     string    `gorm:"column:grant_id"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "proxy_graph_idempotency"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "proxy_outbox"
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	timestamp := value.UTC()
	return &timestamp
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var _ ports.GrantRepository = (*Repository)(nil)
var _ ports.IdempotencyStore = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
