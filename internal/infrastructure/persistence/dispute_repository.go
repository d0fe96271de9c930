package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

const disputeColumns = `id, swap_request_id, reporter_id, type, description, photos, status,
	outcome, resolution_note, resolved_by, resolved_at, created_at, updated_at`

type disputeRow struct {
	ID             uuid.UUID      `db:"id"`
	SwapRequestID  uuid.UUID      `db:"swap_request_id"`
	ReporterID     uuid.UUID      `db:"reporter_id"`
	Type           string         `db:"type"`
	Description    string         `db:"description"`
	Photos         pq.StringArray `db:"photos"`
	Status         string         `db:"status"`
	Outcome        *string        `db:"outcome"`
	ResolutionNote string         `db:"resolution_note"`
	ResolvedBy     *uuid.UUID     `db:"resolved_by"`
	ResolvedAt     *time.Time     `db:"resolved_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func toDisputeRow(d *entity.Dispute) disputeRow {
	var outcome *string
	if d.Outcome != nil {
		o := string(*d.Outcome)
		outcome = &o
	}
	return disputeRow{
		ID:             d.ID,
		SwapRequestID:  d.SwapRequestID,
		ReporterID:     d.ReporterID,
		Type:           string(d.Type),
		Description:    d.Description,
		Photos:         photosToDB(d.Photos),
		Status:         string(d.Status),
		Outcome:        outcome,
		ResolutionNote: d.ResolutionNote,
		ResolvedBy:     d.ResolvedBy,
		ResolvedAt:     d.ResolvedAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func (r disputeRow) toEntity() *entity.Dispute {
	d := &entity.Dispute{
		ID:             r.ID,
		SwapRequestID:  r.SwapRequestID,
		ReporterID:     r.ReporterID,
		Type:           valueobject.DisputeType(r.Type),
		Description:    r.Description,
		Photos:         []string(r.Photos),
		Status:         entity.DisputeStatus(r.Status),
		ResolutionNote: r.ResolutionNote,
		ResolvedBy:     r.ResolvedBy,
		ResolvedAt:     r.ResolvedAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.Outcome != nil {
		o := valueobject.ResolutionOutcome(*r.Outcome)
		d.Outcome = &o
	}
	return d
}

type DisputeRepository struct {
	db *sqlx.DB
}

var _ repository.DisputeRepository = (*DisputeRepository)(nil)

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

func (r *DisputeRepository) Create(ctx context.Context, d *entity.Dispute) error {
	query := `INSERT INTO swap_disputes (` + disputeColumns + `) VALUES (` + namedParams(disputeColumns) + `)`
	if _, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, toDisputeRow(d)); err != nil {
		if isUniqueViolation(err) {
			return apperror.Wrap(err, apperror.ErrCodeConflict, "по заявке уже открыт спор")
		}
		return dbError(err, "не удалось создать спор")
	}
	return nil
}

func (r *DisputeRepository) Update(ctx context.Context, d *entity.Dispute) error {
	query := `
		UPDATE swap_disputes SET
			status = :status, outcome = :outcome, resolution_note = :resolution_note,
			resolved_by = :resolved_by, resolved_at = :resolved_at, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, toDisputeRow(d))
	if err != nil {
		return dbError(err, "не удалось обновить спор")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return dbError(err, "не удалось проверить результат обновления")
	}
	if affected == 0 {
		return apperror.ErrDisputeNotFound
	}
	return nil
}

func (r *DisputeRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Dispute, error) {
	var row disputeRow
	query := `SELECT ` + disputeColumns + ` FROM swap_disputes WHERE id = $1`
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrDisputeNotFound
		}
		return nil, dbError(err, "не удалось получить спор")
	}
	return row.toEntity(), nil
}

func (r *DisputeRepository) FindOpenBySwapRequest(ctx context.Context, swapRequestID uuid.UUID) (*entity.Dispute, error) {
	var row disputeRow
	query := `SELECT ` + disputeColumns + ` FROM swap_disputes WHERE swap_request_id = $1 AND status = $2 LIMIT 1`
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &row, query, swapRequestID, string(entity.DisputeStatusOpen)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, dbError(err, "не удалось найти открытый спор")
	}
	return row.toEntity(), nil
}

func (r *DisputeRepository) ListBySwapRequest(ctx context.Context, swapRequestID uuid.UUID) ([]*entity.Dispute, error) {
	var rows []disputeRow
	query := `SELECT ` + disputeColumns + ` FROM swap_disputes WHERE swap_request_id = $1 ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &rows, query, swapRequestID); err != nil {
		return nil, dbError(err, "не удалось получить споры")
	}
	out := make([]*entity.Dispute, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}
