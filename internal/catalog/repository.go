package catalog

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akbansal/sweetshop/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const productColumns = "id, name, description, category, image_url, price, stock, created_at, updated_at"

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	p := &domain.Product{}
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.ImageURL,
		&p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.Product, error) {
	return r.Search(ctx, domain.ProductFilter{})
}

func (r *Repository) Search(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	query := "SELECT " + productColumns + " FROM products"
	var conds []string
	var args []any

	addCond := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}

	if filter.Name != "" {
		addCond("name ILIKE ?", "%"+filter.Name+"%")
	}
	if filter.Category != "" {
		addCond("category = ?", filter.Category)
	}
	if filter.MinPrice != nil {
		addCond("price >= ?", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		addCond("price <= ?", *filter.MaxPrice)
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)

	p, err := scanProduct(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *Repository) Create(ctx context.Context, p *domain.Product) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, category, image_url, price, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, p.ID, p.Name, p.Description, p.Category, p.ImageURL, p.Price, p.Stock, now)
	return err
}

func (r *Repository) Update(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = $1, description = $2, category = $3, image_url = $4,
		    price = $5, stock = $6, updated_at = NOW()
		WHERE id = $7
	`, p.Name, p.Description, p.Category, p.ImageURL, p.Price, p.Stock, p.ID)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, p.ID)
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// Reserve decrements stock by quantity as one conditional statement. The
// decrement and the availability check are a single atomic step, so two
// concurrent reservations cannot both win the last units.
func (r *Repository) Reserve(ctx context.Context, productID uuid.UUID, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrStockConflict
	}

	return nil
}

// Release returns previously reserved stock. Used for compensating failed
// placements and for order cancellation.
func (r *Repository) Release(ctx context.Context, productID uuid.UUID, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *Repository) Restock(ctx context.Context, productID uuid.UUID, quantity int) (*domain.Product, error) {
	if err := r.Release(ctx, productID, quantity); err != nil {
		if err == domain.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return r.GetByID(ctx, productID)
}
