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

const productColumns = `p.id, p.owner_id, p.title, p.value, p.latitude, p.longitude, p.active, p.created_at, p.updated_at`

type productRow struct {
	ID        uuid.UUID `db:"id"`
	OwnerID   uuid.UUID `db:"owner_id"`
	Title     string    `db:"title"`
	Value     int64     `db:"value"`
	Latitude  *float64  `db:"latitude"`
	Longitude *float64  `db:"longitude"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r productRow) toEntity() *entity.Product {
	p := &entity.Product{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Title:     r.Title,
		Value:     valueobject.Valor(r.Value),
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Latitude != nil && r.Longitude != nil {
		p.Location = &valueobject.Location{Latitude: *r.Latitude, Longitude: *r.Longitude}
	}
	return p
}

func uuidArray(ids []uuid.UUID) pq.StringArray {
	out := make(pq.StringArray, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

// ProductRepository читает каталог. Владельцев меняет только Ledger.
type ProductRepository struct {
	db *sqlx.DB
}

var _ repository.ProductRepository = (*ProductRepository)(nil)

func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Product, error) {
	var row productRow
	query := `SELECT ` + productColumns + ` FROM products p WHERE p.id = $1`
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrProductNotFound
		}
		return nil, dbError(err, "не удалось получить товар")
	}
	return row.toEntity(), nil
}

func (r *ProductRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*entity.Product, error) {
	out := make(map[uuid.UUID]*entity.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []productRow
	query := `SELECT ` + productColumns + ` FROM products p WHERE p.id = ANY($1::uuid[])`
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &rows, query, uuidArray(ids)); err != nil {
		return nil, dbError(err, "не удалось получить товары")
	}
	for _, row := range rows {
		out[row.ID] = row.toEntity()
	}
	return out, nil
}

// Upsert заводит или обновляет карточку товара, пришедшую из каталога.
func (r *ProductRepository) Upsert(ctx context.Context, p *entity.Product) error {
	var lat, lng *float64
	if p.Location != nil {
		lat, lng = &p.Location.Latitude, &p.Location.Longitude
	}
	query := `
		INSERT INTO products (id, owner_id, title, value, latitude, longitude, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id, title = EXCLUDED.title, value = EXCLUDED.value,
			latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
			active = EXCLUDED.active, updated_at = EXCLUDED.updated_at`
	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		p.ID, p.OwnerID, p.Title, p.Value.Int64(), lat, lng, p.Active, p.CreatedAt, p.UpdatedAt)
	return dbError(err, "не удалось сохранить товар")
}

type InterestRepository struct {
	db *sqlx.DB
}

var _ repository.InterestRepository = (*InterestRepository)(nil)

func NewInterestRepository(db *sqlx.DB) *InterestRepository {
	return &InterestRepository{db: db}
}

func (r *InterestRepository) Add(ctx context.Context, in *entity.Interest) error {
	query := `INSERT INTO product_interests (user_id, product_id, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO NOTHING`
	_, err := conn(ctx, r.db).ExecContext(ctx, query, in.UserID, in.ProductID, in.CreatedAt)
	return dbError(err, "не удалось сохранить интерес")
}

func (r *InterestRepository) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM product_interests WHERE user_id = $1 AND product_id = $2`, userID, productID)
	return dbError(err, "не удалось удалить интерес")
}

func (r *InterestRepository) Has(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM product_interests WHERE user_id = $1 AND product_id = $2)`
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &exists, query, userID, productID); err != nil {
		return false, dbError(err, "не удалось проверить интерес")
	}
	return exists, nil
}

func (r *InterestRepository) ListEdges(ctx context.Context, limit int) ([]entity.InterestEdge, error) {
	var rows []struct {
		UserID uuid.UUID `db:"user_id"`
		productRow
	}
	query := `SELECT i.user_id, ` + productColumns + `
		FROM product_interests i
		JOIN products p ON p.id = i.product_id
		WHERE p.active AND p.owner_id <> i.user_id
		ORDER BY i.created_at
		LIMIT $1`
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &rows, query, limit); err != nil {
		return nil, dbError(err, "не удалось получить граф интересов")
	}

	edges := make([]entity.InterestEdge, 0, len(rows))
	for _, row := range rows {
		edges = append(edges, entity.InterestEdge{UserID: row.UserID, Product: *row.productRow.toEntity()})
	}
	return edges, nil
}
