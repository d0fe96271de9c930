package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

const swapRequestColumns = `
	id, requester_id, owner_id, product_id, offered_product_id,
	pending_currency_amount, agreed_price_requester, agreed_price_owner,
	negotiation_status, status, message,
	delivery_type, delivery_point_id, custom_location, delivery_at, last_proposed_by,
	qr_code, qr_used_at, owner_arrived, requester_arrived,
	owner_received_product, requester_received_product,
	verification_code_hash, code_issued_at, code_used_at,
	drop_off_deadline, dropped_off_at, picked_up_at,
	packaging_photos, packaging_sealed_at, delivery_photos, delivery_sealed_at,
	receiving_photos, receiving_sealed_at,
	dispute_window_ends_at, completed_at, settled_at, hold_released_at,
	cancelled_by, cancel_reason, version, created_at, updated_at`

type swapRequestRow struct {
	ID                    uuid.UUID  `db:"id"`
	RequesterID           uuid.UUID  `db:"requester_id"`
	OwnerID               uuid.UUID  `db:"owner_id"`
	ProductID             uuid.UUID  `db:"product_id"`
	OfferedProductID      *uuid.UUID `db:"offered_product_id"`
	PendingCurrencyAmount *int64     `db:"pending_currency_amount"`
	AgreedPriceRequester  *int64     `db:"agreed_price_requester"`
	AgreedPriceOwner      *int64     `db:"agreed_price_owner"`
	NegotiationStatus     string     `db:"negotiation_status"`
	Status                string     `db:"status"`
	Message               string     `db:"message"`

	DeliveryType    string     `db:"delivery_type"`
	DeliveryPointID *uuid.UUID `db:"delivery_point_id"`
	CustomLocation  *string    `db:"custom_location"`
	DeliveryAt      *time.Time `db:"delivery_at"`
	LastProposedBy  *uuid.UUID `db:"last_proposed_by"`

	QRCode                   string     `db:"qr_code"`
	QRUsedAt                 *time.Time `db:"qr_used_at"`
	OwnerArrived             bool       `db:"owner_arrived"`
	RequesterArrived         bool       `db:"requester_arrived"`
	OwnerReceivedProduct     bool       `db:"owner_received_product"`
	RequesterReceivedProduct bool       `db:"requester_received_product"`
	VerificationCodeHash     string     `db:"verification_code_hash"`
	CodeIssuedAt             *time.Time `db:"code_issued_at"`
	CodeUsedAt               *time.Time `db:"code_used_at"`

	DropOffDeadline *time.Time `db:"drop_off_deadline"`
	DroppedOffAt    *time.Time `db:"dropped_off_at"`
	PickedUpAt      *time.Time `db:"picked_up_at"`

	PackagingPhotos   pq.StringArray `db:"packaging_photos"`
	PackagingSealedAt *time.Time     `db:"packaging_sealed_at"`
	DeliveryPhotos    pq.StringArray `db:"delivery_photos"`
	DeliverySealedAt  *time.Time     `db:"delivery_sealed_at"`
	ReceivingPhotos   pq.StringArray `db:"receiving_photos"`
	ReceivingSealedAt *time.Time     `db:"receiving_sealed_at"`

	DisputeWindowEndsAt *time.Time `db:"dispute_window_ends_at"`
	CompletedAt         *time.Time `db:"completed_at"`
	SettledAt           *time.Time `db:"settled_at"`
	HoldReleasedAt      *time.Time `db:"hold_released_at"`
	CancelledBy         *uuid.UUID `db:"cancelled_by"`
	CancelReason        string     `db:"cancel_reason"`

	Version   int64     `db:"version"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type swapRequestUpdate struct {
	swapRequestRow
	ExpectedVersion int64 `db:"expected_version"`
}

func toSwapRequestRow(s *entity.SwapRequest) swapRequestRow {
	return swapRequestRow{
		ID:                       s.ID,
		RequesterID:              s.RequesterID,
		OwnerID:                  s.OwnerID,
		ProductID:                s.ProductID,
		OfferedProductID:         s.OfferedProductID,
		PendingCurrencyAmount:    valorToDB(s.PendingCurrencyAmount),
		AgreedPriceRequester:     valorToDB(s.AgreedPriceRequester),
		AgreedPriceOwner:         valorToDB(s.AgreedPriceOwner),
		NegotiationStatus:        string(s.NegotiationStatus),
		Status:                   string(s.Status),
		Message:                  s.Message,
		DeliveryType:             string(s.DeliveryType),
		DeliveryPointID:          s.DeliveryPointID,
		CustomLocation:           s.CustomLocation,
		DeliveryAt:               s.DeliveryAt,
		LastProposedBy:           s.LastProposedBy,
		QRCode:                   s.QRCode,
		QRUsedAt:                 s.QRUsedAt,
		OwnerArrived:             s.OwnerArrived,
		RequesterArrived:         s.RequesterArrived,
		OwnerReceivedProduct:     s.OwnerReceivedProduct,
		RequesterReceivedProduct: s.RequesterReceivedProduct,
		VerificationCodeHash:     s.VerificationCodeHash,
		CodeIssuedAt:             s.CodeIssuedAt,
		CodeUsedAt:               s.CodeUsedAt,
		DropOffDeadline:          s.DropOffDeadline,
		DroppedOffAt:             s.DroppedOffAt,
		PickedUpAt:               s.PickedUpAt,
		PackagingPhotos:          photosToDB(s.PackagingEvidence.Photos),
		PackagingSealedAt:        s.PackagingEvidence.SealedAt,
		DeliveryPhotos:           photosToDB(s.DeliveryEvidence.Photos),
		DeliverySealedAt:         s.DeliveryEvidence.SealedAt,
		ReceivingPhotos:          photosToDB(s.ReceivingEvidence.Photos),
		ReceivingSealedAt:        s.ReceivingEvidence.SealedAt,
		DisputeWindowEndsAt:      s.DisputeWindowEndsAt,
		CompletedAt:              s.CompletedAt,
		SettledAt:                s.SettledAt,
		HoldReleasedAt:           s.HoldReleasedAt,
		CancelledBy:              s.CancelledBy,
		CancelReason:             s.CancelReason,
		Version:                  s.Version,
		CreatedAt:                s.CreatedAt,
		UpdatedAt:                s.UpdatedAt,
	}
}

func (r swapRequestRow) toEntity() *entity.SwapRequest {
	return &entity.SwapRequest{
		ID:                       r.ID,
		RequesterID:              r.RequesterID,
		OwnerID:                  r.OwnerID,
		ProductID:                r.ProductID,
		OfferedProductID:         r.OfferedProductID,
		PendingCurrencyAmount:    valorFromDB(r.PendingCurrencyAmount),
		AgreedPriceRequester:     valorFromDB(r.AgreedPriceRequester),
		AgreedPriceOwner:         valorFromDB(r.AgreedPriceOwner),
		NegotiationStatus:        valueobject.NegotiationStatus(r.NegotiationStatus),
		Status:                   valueobject.SwapStatus(r.Status),
		Message:                  r.Message,
		DeliveryType:             valueobject.DeliveryType(r.DeliveryType),
		DeliveryPointID:          r.DeliveryPointID,
		CustomLocation:           r.CustomLocation,
		DeliveryAt:               r.DeliveryAt,
		LastProposedBy:           r.LastProposedBy,
		QRCode:                   r.QRCode,
		QRUsedAt:                 r.QRUsedAt,
		OwnerArrived:             r.OwnerArrived,
		RequesterArrived:         r.RequesterArrived,
		OwnerReceivedProduct:     r.OwnerReceivedProduct,
		RequesterReceivedProduct: r.RequesterReceivedProduct,
		VerificationCodeHash:     r.VerificationCodeHash,
		CodeIssuedAt:             r.CodeIssuedAt,
		CodeUsedAt:               r.CodeUsedAt,
		DropOffDeadline:          r.DropOffDeadline,
		DroppedOffAt:             r.DroppedOffAt,
		PickedUpAt:               r.PickedUpAt,
		PackagingEvidence:        valueobject.EvidenceSet{Photos: []string(r.PackagingPhotos), SealedAt: r.PackagingSealedAt},
		DeliveryEvidence:         valueobject.EvidenceSet{Photos: []string(r.DeliveryPhotos), SealedAt: r.DeliverySealedAt},
		ReceivingEvidence:        valueobject.EvidenceSet{Photos: []string(r.ReceivingPhotos), SealedAt: r.ReceivingSealedAt},
		DisputeWindowEndsAt:      r.DisputeWindowEndsAt,
		CompletedAt:              r.CompletedAt,
		SettledAt:                r.SettledAt,
		HoldReleasedAt:           r.HoldReleasedAt,
		CancelledBy:              r.CancelledBy,
		CancelReason:             r.CancelReason,
		Version:                  r.Version,
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}
}

func valorToDB(v *valueobject.Valor) *int64 {
	if v == nil {
		return nil
	}
	n := v.Int64()
	return &n
}

func valorFromDB(n *int64) *valueobject.Valor {
	if n == nil {
		return nil
	}
	v := valueobject.Valor(*n)
	return &v
}

func photosToDB(photos []string) pq.StringArray {
	if photos == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(photos)
}

// SwapRequestRepository хранит заявки и журнал статусов (swap_request_events).
type SwapRequestRepository struct {
	db *sqlx.DB
}

var _ repository.SwapRequestRepository = (*SwapRequestRepository)(nil)

func NewSwapRequestRepository(db *sqlx.DB) *SwapRequestRepository {
	return &SwapRequestRepository{db: db}
}

func (r *SwapRequestRepository) Create(ctx context.Context, s *entity.SwapRequest) error {
	q := conn(ctx, r.db)

	row := toSwapRequestRow(s)
	row.Version = 1
	query := `INSERT INTO swap_requests (` + swapRequestColumns + `) VALUES (` + namedParams(swapRequestColumns) + `)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, row); err != nil {
		if isUniqueViolation(err) {
			return apperror.Wrap(err, apperror.ErrCodeConflict, "у вас уже есть активная заявка на этот товар")
		}
		return dbError(err, "не удалось создать заявку")
	}
	if err := r.appendEvents(ctx, q, s.PendingTransitions); err != nil {
		return err
	}

	s.Version = 1
	s.ClearPendingTransitions()
	return nil
}

func (r *SwapRequestRepository) Update(ctx context.Context, s *entity.SwapRequest, expectedVersion int64) error {
	q := conn(ctx, r.db)

	query := `
		UPDATE swap_requests SET
			offered_product_id = :offered_product_id,
			pending_currency_amount = :pending_currency_amount,
			agreed_price_requester = :agreed_price_requester,
			agreed_price_owner = :agreed_price_owner,
			negotiation_status = :negotiation_status,
			status = :status,
			delivery_type = :delivery_type,
			delivery_point_id = :delivery_point_id,
			custom_location = :custom_location,
			delivery_at = :delivery_at,
			last_proposed_by = :last_proposed_by,
			qr_code = :qr_code,
			qr_used_at = :qr_used_at,
			owner_arrived = :owner_arrived,
			requester_arrived = :requester_arrived,
			owner_received_product = :owner_received_product,
			requester_received_product = :requester_received_product,
			verification_code_hash = :verification_code_hash,
			code_issued_at = :code_issued_at,
			code_used_at = :code_used_at,
			drop_off_deadline = :drop_off_deadline,
			dropped_off_at = :dropped_off_at,
			picked_up_at = :picked_up_at,
			packaging_photos = :packaging_photos,
			packaging_sealed_at = :packaging_sealed_at,
			delivery_photos = :delivery_photos,
			delivery_sealed_at = :delivery_sealed_at,
			receiving_photos = :receiving_photos,
			receiving_sealed_at = :receiving_sealed_at,
			dispute_window_ends_at = :dispute_window_ends_at,
			completed_at = :completed_at,
			settled_at = :settled_at,
			hold_released_at = :hold_released_at,
			cancelled_by = :cancelled_by,
			cancel_reason = :cancel_reason,
			version = :expected_version + 1,
			updated_at = :updated_at
		WHERE id = :id AND version = :expected_version`

	res, err := sqlx.NamedExecContext(ctx, q, query, swapRequestUpdate{
		swapRequestRow:  toSwapRequestRow(s),
		ExpectedVersion: expectedVersion,
	})
	if err != nil {
		return dbError(err, "не удалось обновить заявку")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return dbError(err, "не удалось проверить результат обновления")
	}
	if affected == 0 {
		return r.missingOrStale(ctx, q, s.ID)
	}
	if err := r.appendEvents(ctx, q, s.PendingTransitions); err != nil {
		return err
	}

	s.Version = expectedVersion + 1
	s.ClearPendingTransitions()
	return nil
}

func (r *SwapRequestRepository) missingOrStale(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) error {
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM swap_requests WHERE id = $1)`, id); err != nil {
		return dbError(err, "не удалось проверить заявку")
	}
	if !exists {
		return apperror.ErrSwapRequestNotFound
	}
	return apperror.ErrStaleVersion
}

func (r *SwapRequestRepository) appendEvents(ctx context.Context, q sqlx.ExecerContext, transitions []entity.StatusTransition) error {
	if len(transitions) == 0 {
		return nil
	}
	batch := newBatchInserter(q, `INSERT INTO swap_request_events (swap_request_id, from_status, to_status, actor_id, created_at)`, 5, 50)
	for _, t := range transitions {
		if err := batch.add(ctx, t.SwapRequestID, string(t.From), string(t.To), t.ActorID, t.At); err != nil {
			return dbError(err, "не удалось записать журнал статусов")
		}
	}
	if err := batch.flush(ctx); err != nil {
		return dbError(err, "не удалось записать журнал статусов")
	}
	return nil
}

func (r *SwapRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.SwapRequest, error) {
	var row swapRequestRow
	query := `SELECT ` + swapRequestColumns + ` FROM swap_requests WHERE id = $1`
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrSwapRequestNotFound
		}
		return nil, dbError(err, "не удалось получить заявку")
	}
	return row.toEntity(), nil
}

func (r *SwapRequestRepository) FindActiveByRequesterAndProduct(ctx context.Context, requesterID, productID uuid.UUID) (*entity.SwapRequest, error) {
	var row swapRequestRow
	query := `SELECT ` + swapRequestColumns + ` FROM swap_requests
		WHERE requester_id = $1 AND product_id = $2 AND status <> ALL($3)
		LIMIT 1`
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &row, query, requesterID, productID, inactiveStatuses()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, dbError(err, "не удалось найти активную заявку")
	}
	return row.toEntity(), nil
}

// inactiveStatuses - статусы, при которых заявка не считается активной.
func inactiveStatuses() pq.StringArray {
	return pq.StringArray{
		string(valueobject.SwapStatusCompleted),
		string(valueobject.SwapStatusDisputed),
		string(valueobject.SwapStatusRejected),
		string(valueobject.SwapStatusCancelled),
		string(valueobject.SwapStatusRefunded),
	}
}

func (r *SwapRequestRepository) List(ctx context.Context, filter repository.SwapRequestFilter) ([]*entity.SwapRequest, int, error) {
	q := conn(ctx, r.db)

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.UserID != uuid.Nil {
		switch filter.Role {
		case entity.RoleRequester:
			where = append(where, "requester_id = "+arg(filter.UserID))
		case entity.RoleOwner:
			where = append(where, "owner_id = "+arg(filter.UserID))
		default:
			p := arg(filter.UserID)
			where = append(where, "(requester_id = "+p+" OR owner_id = "+p+")")
		}
	}
	if len(filter.Statuses) > 0 {
		statuses := make(pq.StringArray, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, q, &total, `SELECT COUNT(*) FROM swap_requests`+cond, args...); err != nil {
		return nil, 0, dbError(err, "не удалось посчитать заявки")
	}

	query := `SELECT ` + swapRequestColumns + ` FROM swap_requests` + cond + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	var rows []swapRequestRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, 0, dbError(err, "не удалось получить список заявок")
	}
	return toSwapRequests(rows), total, nil
}

func (r *SwapRequestRepository) History(ctx context.Context, id uuid.UUID) ([]entity.StatusTransition, error) {
	q := conn(ctx, r.db)

	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM swap_requests WHERE id = $1)`, id); err != nil {
		return nil, dbError(err, "не удалось проверить заявку")
	}
	if !exists {
		return nil, apperror.ErrSwapRequestNotFound
	}

	var rows []struct {
		SwapRequestID uuid.UUID  `db:"swap_request_id"`
		From          string     `db:"from_status"`
		To            string     `db:"to_status"`
		ActorID       *uuid.UUID `db:"actor_id"`
		At            time.Time  `db:"created_at"`
	}
	query := `SELECT swap_request_id, from_status, to_status, actor_id, created_at
		FROM swap_request_events WHERE swap_request_id = $1 ORDER BY id`
	if err := sqlx.SelectContext(ctx, q, &rows, query, id); err != nil {
		return nil, dbError(err, "не удалось получить журнал статусов")
	}

	out := make([]entity.StatusTransition, 0, len(rows))
	for _, row := range rows {
		out = append(out, entity.StatusTransition{
			SwapRequestID: row.SwapRequestID,
			From:          valueobject.SwapStatus(row.From),
			To:            valueobject.SwapStatus(row.To),
			ActorID:       row.ActorID,
			At:            row.At,
		})
	}
	return out, nil
}

func (r *SwapRequestRepository) FindDropOffsPastDeadline(ctx context.Context, now time.Time, limit int) ([]*entity.SwapRequest, error) {
	query := `SELECT ` + swapRequestColumns + ` FROM swap_requests
		WHERE status = $1 AND delivery_type = $2 AND drop_off_deadline < $3
		ORDER BY updated_at LIMIT $4`
	return r.selectMany(ctx, query,
		string(valueobject.SwapStatusQRGenerated), string(valueobject.DeliveryTypeDropOff), now, limit)
}

func (r *SwapRequestRepository) FindReleasableHolds(ctx context.Context, now time.Time, limit int) ([]*entity.SwapRequest, error) {
	query := `SELECT ` + swapRequestColumns + ` FROM swap_requests
		WHERE status = $1 AND settled_at IS NOT NULL AND hold_released_at IS NULL
			AND dispute_window_ends_at <= $2
		ORDER BY updated_at LIMIT $3`
	return r.selectMany(ctx, query, string(valueobject.SwapStatusCompleted), now, limit)
}

func (r *SwapRequestRepository) selectMany(ctx context.Context, query string, args ...any) ([]*entity.SwapRequest, error) {
	var rows []swapRequestRow
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &rows, query, args...); err != nil {
		return nil, dbError(err, "не удалось выбрать заявки")
	}
	return toSwapRequests(rows), nil
}

func toSwapRequests(rows []swapRequestRow) []*entity.SwapRequest {
	out := make([]*entity.SwapRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out
}

// namedParams превращает список колонок в список :параметров для sqlx.Named.
func namedParams(columns string) string {
	parts := strings.Split(columns, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, ":"+strings.TrimSpace(p))
	}
	return strings.Join(out, ", ")
}
