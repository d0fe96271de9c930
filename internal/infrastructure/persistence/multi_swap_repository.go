package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

const multiSwapColumns = `id, initiator_id, chain_key, status, total_score, cancelled_by, cancel_reason,
	expires_at, confirmed_at, version, created_at, updated_at`

type multiSwapRow struct {
	ID           uuid.UUID  `db:"id"`
	InitiatorID  uuid.UUID  `db:"initiator_id"`
	ChainKey     string     `db:"chain_key"`
	Status       string     `db:"status"`
	TotalScore   float64    `db:"total_score"`
	CancelledBy  *uuid.UUID `db:"cancelled_by"`
	CancelReason string     `db:"cancel_reason"`
	ExpiresAt    time.Time  `db:"expires_at"`
	ConfirmedAt  *time.Time `db:"confirmed_at"`
	Version      int64      `db:"version"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

type participantRow struct {
	MultiSwapID         uuid.UUID  `db:"multi_swap_id"`
	Position            int        `db:"position"`
	UserID              uuid.UUID  `db:"user_id"`
	GivesProductID      uuid.UUID  `db:"gives_product_id"`
	WantsProductID      uuid.UUID  `db:"wants_product_id"`
	WantsProductOwnerID uuid.UUID  `db:"wants_product_owner_id"`
	Value               int64      `db:"value"`
	Confirmed           bool       `db:"confirmed"`
	ConfirmedAt         *time.Time `db:"confirmed_at"`
}

func toMultiSwapRow(m *entity.MultiSwap) multiSwapRow {
	return multiSwapRow{
		ID:           m.ID,
		InitiatorID:  m.InitiatorID,
		ChainKey:     m.ChainKey,
		Status:       string(m.Status),
		TotalScore:   m.TotalScore,
		CancelledBy:  m.CancelledBy,
		CancelReason: m.CancelReason,
		ExpiresAt:    m.ExpiresAt,
		ConfirmedAt:  m.ConfirmedAt,
		Version:      m.Version,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func (r multiSwapRow) toEntity(participants []participantRow) *entity.MultiSwap {
	m := &entity.MultiSwap{
		ID:           r.ID,
		InitiatorID:  r.InitiatorID,
		ChainKey:     r.ChainKey,
		Status:       valueobject.MultiSwapStatus(r.Status),
		TotalScore:   r.TotalScore,
		CancelledBy:  r.CancelledBy,
		CancelReason: r.CancelReason,
		ExpiresAt:    r.ExpiresAt,
		ConfirmedAt:  r.ConfirmedAt,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		Participants: make([]entity.MultiSwapParticipant, 0, len(participants)),
	}
	for _, p := range participants {
		m.Participants = append(m.Participants, entity.MultiSwapParticipant{
			Position:            p.Position,
			UserID:              p.UserID,
			GivesProductID:      p.GivesProductID,
			WantsProductID:      p.WantsProductID,
			WantsProductOwnerID: p.WantsProductOwnerID,
			Value:               valueobject.Valor(p.Value),
			Confirmed:           p.Confirmed,
			ConfirmedAt:         p.ConfirmedAt,
		})
	}
	return m
}

type MultiSwapRepository struct {
	db *sqlx.DB
}

var _ repository.MultiSwapRepository = (*MultiSwapRepository)(nil)

func NewMultiSwapRepository(db *sqlx.DB) *MultiSwapRepository {
	return &MultiSwapRepository{db: db}
}

func (r *MultiSwapRepository) Create(ctx context.Context, m *entity.MultiSwap) error {
	q := conn(ctx, r.db)

	// просроченная, но ещё не закрытая цепочка не должна держать уникальный ключ
	if _, err := q.ExecContext(ctx, `
		UPDATE multi_swaps SET status = $3, version = version + 1, updated_at = $2
		WHERE chain_key = $1 AND status = $4 AND expires_at <= $2
	`, m.ChainKey, m.CreatedAt, string(valueobject.MultiSwapStatusExpired), string(valueobject.MultiSwapStatusPending)); err != nil {
		return dbError(err, "не удалось закрыть просроченные цепочки")
	}

	row := toMultiSwapRow(m)
	row.Version = 1
	query := `INSERT INTO multi_swaps (` + multiSwapColumns + `) VALUES (` + namedParams(multiSwapColumns) + `)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, row); err != nil {
		if isUniqueViolation(err) {
			return apperror.Wrap(err, apperror.ErrCodeConflict, "эта цепочка уже ожидает подтверждения")
		}
		return dbError(err, "не удалось создать цепочку")
	}

	batch := newBatchInserter(q, `INSERT INTO multi_swap_participants (multi_swap_id, position, user_id,
		gives_product_id, wants_product_id, wants_product_owner_id, value, confirmed, confirmed_at)`, 9, 0)
	for _, p := range m.Participants {
		if err := batch.add(ctx, m.ID, p.Position, p.UserID, p.GivesProductID, p.WantsProductID,
			p.WantsProductOwnerID, p.Value.Int64(), p.Confirmed, p.ConfirmedAt); err != nil {
			return dbError(err, "не удалось сохранить участников цепочки")
		}
	}
	if err := batch.flush(ctx); err != nil {
		return dbError(err, "не удалось сохранить участников цепочки")
	}

	m.Version = 1
	return nil
}

func (r *MultiSwapRepository) Update(ctx context.Context, m *entity.MultiSwap, expectedVersion int64) error {
	q := conn(ctx, r.db)

	res, err := q.ExecContext(ctx, `
		UPDATE multi_swaps SET status = $3, cancelled_by = $4, cancel_reason = $5,
			confirmed_at = $6, updated_at = $7, version = $2 + 1
		WHERE id = $1 AND version = $2
	`, m.ID, expectedVersion, string(m.Status), m.CancelledBy, m.CancelReason, m.ConfirmedAt, m.UpdatedAt)
	if err != nil {
		return dbError(err, "не удалось обновить цепочку")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return dbError(err, "не удалось проверить результат обновления")
	}
	if affected == 0 {
		var exists bool
		if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM multi_swaps WHERE id = $1)`, m.ID); err != nil {
			return dbError(err, "не удалось проверить цепочку")
		}
		if !exists {
			return apperror.ErrMultiSwapNotFound
		}
		return apperror.ErrStaleVersion
	}

	for _, p := range m.Participants {
		if _, err := q.ExecContext(ctx, `
			UPDATE multi_swap_participants SET confirmed = $3, confirmed_at = $4
			WHERE multi_swap_id = $1 AND position = $2
		`, m.ID, p.Position, p.Confirmed, p.ConfirmedAt); err != nil {
			return dbError(err, "не удалось обновить подтверждения")
		}
	}

	m.Version = expectedVersion + 1
	return nil
}

func (r *MultiSwapRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.MultiSwap, error) {
	q := conn(ctx, r.db)

	var row multiSwapRow
	query := `SELECT ` + multiSwapColumns + ` FROM multi_swaps WHERE id = $1`
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrMultiSwapNotFound
		}
		return nil, dbError(err, "не удалось получить цепочку")
	}
	out, err := r.withParticipants(ctx, q, []multiSwapRow{row})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (r *MultiSwapRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.MultiSwap, int, error) {
	q := conn(ctx, r.db)

	var total int
	if err := sqlx.GetContext(ctx, q, &total, `
		SELECT COUNT(DISTINCT multi_swap_id) FROM multi_swap_participants WHERE user_id = $1
	`, userID); err != nil {
		return nil, 0, dbError(err, "не удалось посчитать цепочки")
	}

	var rows []multiSwapRow
	query := `SELECT ` + multiSwapColumns + ` FROM multi_swaps
		WHERE id IN (SELECT multi_swap_id FROM multi_swap_participants WHERE user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	if err := sqlx.SelectContext(ctx, q, &rows, query, userID, limit, offset); err != nil {
		return nil, 0, dbError(err, "не удалось получить цепочки")
	}
	out, err := r.withParticipants(ctx, q, rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *MultiSwapRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*entity.MultiSwap, error) {
	q := conn(ctx, r.db)

	var rows []multiSwapRow
	query := `SELECT ` + multiSwapColumns + ` FROM multi_swaps
		WHERE status = $1 AND expires_at <= $2
		ORDER BY expires_at LIMIT $3`
	if err := sqlx.SelectContext(ctx, q, &rows, query, string(valueobject.MultiSwapStatusPending), now, limit); err != nil {
		return nil, dbError(err, "не удалось выбрать просроченные цепочки")
	}
	return r.withParticipants(ctx, q, rows)
}

// withParticipants подгружает участников одним запросом на всю выборку.
func (r *MultiSwapRepository) withParticipants(ctx context.Context, q sqlx.QueryerContext, rows []multiSwapRow) ([]*entity.MultiSwap, error) {
	if len(rows) == 0 {
		return []*entity.MultiSwap{}, nil
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	var participants []participantRow
	if err := sqlx.SelectContext(ctx, q, &participants, `
		SELECT multi_swap_id, position, user_id, gives_product_id, wants_product_id,
			wants_product_owner_id, value, confirmed, confirmed_at
		FROM multi_swap_participants WHERE multi_swap_id = ANY($1::uuid[])
		ORDER BY multi_swap_id, position
	`, uuidArray(ids)); err != nil {
		return nil, dbError(err, "не удалось получить участников цепочек")
	}

	byID := make(map[uuid.UUID][]participantRow, len(rows))
	for _, p := range participants {
		byID[p.MultiSwapID] = append(byID[p.MultiSwapID], p)
	}
	out := make([]*entity.MultiSwap, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity(byID[row.ID]))
	}
	return out, nil
}
