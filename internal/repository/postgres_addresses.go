package repository

import (
	"context"
	"database/sql"
	"fmt"

	"hivedesk-core/internal/domain"
)

// PostgresAddressesRepository 租户地址Repository实现（租户库）
type PostgresAddressesRepository struct {
	db *sql.DB
}

// NewPostgresAddressesRepository 创建地址Repository
// db 必须是租户隔离库的句柄
func NewPostgresAddressesRepository(db *sql.DB) *PostgresAddressesRepository {
	return &PostgresAddressesRepository{db: db}
}

// 确保实现了接口
var _ AddressesRepository = (*PostgresAddressesRepository)(nil)

// CreateAddress 创建地址及其全部营业时段（同事务）
func (r *PostgresAddressesRepository) CreateAddress(ctx context.Context, address *domain.TenantAddress) (string, error) {
	if address == nil {
		return "", fmt.Errorf("address is required")
	}
	if address.Line1 == "" {
		return "", fmt.Errorf("line1 is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var addressID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO addresses (line1, line2, city, state, country, zip)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))
		RETURNING address_id::text
	`, address.Line1, address.Line2, address.City, address.State, address.Country, address.Zip,
	).Scan(&addressID)
	if err != nil {
		return "", fmt.Errorf("failed to create address: %w", err)
	}

	for _, h := range address.Hours {
		if h.DayOfWeek < 0 || h.DayOfWeek > 6 {
			return "", fmt.Errorf("invalid day_of_week: %d (must be 0-6)", h.DayOfWeek)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO operation_hours (address_id, day_of_week, opens_at, closes_at)
			VALUES ($1::uuid, $2, $3, $4)
		`, addressID, h.DayOfWeek, h.OpensAt, h.ClosesAt)
		if err != nil {
			return "", fmt.Errorf("failed to create operation hour: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return addressID, nil
}

// ListAddresses 查询全部地址（含营业时段）
func (r *PostgresAddressesRepository) ListAddresses(ctx context.Context) ([]*domain.TenantAddress, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			address_id::text,
			line1,
			COALESCE(line2, '') as line2,
			COALESCE(city, '') as city,
			COALESCE(state, '') as state,
			COALESCE(country, '') as country,
			COALESCE(zip, '') as zip
		FROM addresses
		ORDER BY line1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query addresses: %w", err)
	}
	defer rows.Close()

	addresses := []*domain.TenantAddress{}
	for rows.Next() {
		var a domain.TenantAddress
		if err := rows.Scan(&a.AddressID, &a.Line1, &a.Line2, &a.City, &a.State, &a.Country, &a.Zip); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		addresses = append(addresses, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	for _, a := range addresses {
		hours, err := r.hoursFor(ctx, a.AddressID)
		if err != nil {
			return nil, err
		}
		a.Hours = hours
	}
	return addresses, nil
}

// CountAddresses 地址总数
func (r *PostgresAddressesRepository) CountAddresses(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM addresses`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count addresses: %w", err)
	}
	return count, nil
}

func (r *PostgresAddressesRepository) hoursFor(ctx context.Context, addressID string) ([]domain.OperationHour, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT hour_id::text, address_id::text, day_of_week, opens_at, closes_at
		FROM operation_hours
		WHERE address_id = $1::uuid
		ORDER BY day_of_week, opens_at
	`, addressID)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation hours: %w", err)
	}
	defer rows.Close()

	hours := []domain.OperationHour{}
	for rows.Next() {
		var h domain.OperationHour
		if err := rows.Scan(&h.HourID, &h.AddressID, &h.DayOfWeek, &h.OpensAt, &h.ClosesAt); err != nil {
			return nil, fmt.Errorf("failed to scan operation hour: %w", err)
		}
		hours = append(hours, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return hours, nil
}
