package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"parkreserve-backend/internal/domain"
	"parkreserve-backend/internal/logger"
	"parkreserve-backend/internal/repository"
)

const resourceColumns = `id, name, type, description, location, capacity, hourly_rate_cents, daily_rate_cents, active`

type resourceRepository struct {
	db *sql.DB
}

func NewResourceRepository(db *sql.DB) repository.ResourceRepository {
	return &resourceRepository{db: db}
}

func scanResource(row rowScanner) (*domain.Resource, error) {
	res := &domain.Resource{}
	err := row.Scan(&res.ID, &res.Name, &res.Type, &res.Description, &res.Location, &res.Capacity,
		&res.HourlyRateCents, &res.DailyRateCents, &res.Active)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *resourceRepository) GetByID(ctx context.Context, id int32) (*domain.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE id = $1`
	logger.DatabaseCall("resourceRepository.GetByID", query, "resourceID", id)
	res, err := scanResource(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.CodeNotFound, "resource %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *resourceRepository) List(ctx context.Context, filter domain.ResourceFilter) ([]domain.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE 1=1`
	var args []any
	argIdx := 1
	if filter.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, filter.Type)
		argIdx++
	}
	if filter.ActiveOnly {
		query += " AND active = TRUE"
	}
	query += " ORDER BY name"

	logger.DatabaseCall("resourceRepository.List", query, "type", filter.Type, "activeOnly", filter.ActiveOnly)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []domain.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, *res)
	}
	return resources, rows.Err()
}
