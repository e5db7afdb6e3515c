package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"hivedesk-core/internal/domain"
)

// PostgresPermissionsRepository 权限Repository实现（主库，强类型版本）
// operations 存VARCHAR[]，routes 存permission_routes子表
type PostgresPermissionsRepository struct {
	db *sql.DB
}

// NewPostgresPermissionsRepository 创建权限Repository
func NewPostgresPermissionsRepository(db *sql.DB) *PostgresPermissionsRepository {
	return &PostgresPermissionsRepository{db: db}
}

// 确保实现了接口
var _ PermissionsRepository = (*PostgresPermissionsRepository)(nil)

type rowScanner interface{ Scan(...any) error }

func scanPermission(row rowScanner) (*domain.Permission, error) {
	var perm domain.Permission
	var ops pq.StringArray
	err := row.Scan(
		&perm.PermissionID,
		&perm.Name,
		&perm.Description,
		&ops,
	)
	if err != nil {
		return nil, err
	}
	perm.Operations = []string(ops)
	return &perm, nil
}

// GetPermission 查询单个权限（含routes）
func (r *PostgresPermissionsRepository) GetPermission(ctx context.Context, permissionID string) (*domain.Permission, error) {
	if permissionID == "" {
		return nil, fmt.Errorf("permission_id is required")
	}

	perm, err := scanPermission(r.db.QueryRowContext(ctx, `
		SELECT permission_id::text, name, COALESCE(description, '') as description, operations
		FROM permissions
		WHERE permission_id = $1::uuid
	`, permissionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("failed to query permission: %w", err)
	}

	routes, err := routesFor(ctx, r.db, perm.PermissionID)
	if err != nil {
		return nil, err
	}
	perm.Routes = routes
	return perm, nil
}

// GetPermissionByName 根据name查询权限
func (r *PostgresPermissionsRepository) GetPermissionByName(ctx context.Context, name string) (*domain.Permission, error) {
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	perm, err := scanPermission(r.db.QueryRowContext(ctx, `
		SELECT permission_id::text, name, COALESCE(description, '') as description, operations
		FROM permissions
		WHERE name = $1
	`, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("failed to query permission by name: %w", err)
	}

	routes, err := routesFor(ctx, r.db, perm.PermissionID)
	if err != nil {
		return nil, err
	}
	perm.Routes = routes
	return perm, nil
}

// ListPermissions 查询权限列表（分页）
func (r *PostgresPermissionsRepository) ListPermissions(ctx context.Context, page, size int) ([]*domain.Permission, int, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 100
	}
	offset := (page - 1) * size

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM permissions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count permissions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT permission_id::text, name, COALESCE(description, '') as description, operations
		FROM permissions
		ORDER BY name
		LIMIT $1 OFFSET $2
	`, size, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	permissions := []*domain.Permission{}
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, perm)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	return permissions, total, nil
}

// CountRolesReferencing 统计grants中引用此权限的角色数
// JSONB包含查询：grants @> '[{"id":"<pid>"}]'
func (r *PostgresPermissionsRepository) CountRolesReferencing(ctx context.Context, permissionID string) (int, error) {
	if permissionID == "" {
		return 0, fmt.Errorf("permission_id is required")
	}

	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM roles
		WHERE grants @> jsonb_build_array(jsonb_build_object('id', $1::text))
	`, permissionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count referencing roles: %w", err)
	}
	return count, nil
}

// CreatePermission 创建权限（含routes）
func (r *PostgresPermissionsRepository) CreatePermission(ctx context.Context, permission *domain.Permission) (string, error) {
	if permission == nil {
		return "", fmt.Errorf("permission is required")
	}
	if permission.Name == "" {
		return "", fmt.Errorf("name is required")
	}

	ops, ok := domain.NormalizeOperations(permission.Operations)
	if !ok {
		return "", domain.ErrInvalidOperation
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var permissionID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO permissions (name, description, operations)
		VALUES ($1, NULLIF($2, ''), $3)
		RETURNING permission_id::text
	`, permission.Name, permission.Description, pq.Array(ops)).Scan(&permissionID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return "", domain.ErrConflict
		}
		return "", fmt.Errorf("failed to create permission: %w", err)
	}

	for _, pattern := range permission.Routes {
		if pattern == "" {
			continue
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO permission_routes (permission_id, pattern)
			VALUES ($1::uuid, $2)
		`, permissionID, pattern)
		if err != nil {
			return "", fmt.Errorf("failed to create permission route: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return permissionID, nil
}

// UpdatePermissionMeta 更新name/description/routes（不触碰operations）
func (r *PostgresPermissionsRepository) UpdatePermissionMeta(ctx context.Context, permissionID string, permission *domain.Permission) error {
	if permissionID == "" {
		return fmt.Errorf("permission_id is required")
	}
	if permission == nil {
		return fmt.Errorf("permission is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE permissions
		SET name = COALESCE(NULLIF($2, ''), name),
		    description = COALESCE(NULLIF($3, ''), description)
		WHERE permission_id = $1::uuid
	`, permissionID, permission.Name, permission.Description)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return domain.ErrConflict
		}
		return fmt.Errorf("failed to update permission: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrPermissionNotFound
	}

	// routes整体替换
	if permission.Routes != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM permission_routes WHERE permission_id = $1::uuid`, permissionID); err != nil {
			return fmt.Errorf("failed to clear permission routes: %w", err)
		}
		for _, pattern := range permission.Routes {
			if pattern == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO permission_routes (permission_id, pattern) VALUES ($1::uuid, $2)
			`, permissionID, pattern); err != nil {
				return fmt.Errorf("failed to create permission route: %w", err)
			}
		}
	}

	return tx.Commit()
}

// UpdateOperationsGuarded 带写时复核的操作集合更新
// FOR UPDATE锁行后以最新存储状态复核单调规则，避免并发更新产生不安全的净结果
func (r *PostgresPermissionsRepository) UpdateOperationsGuarded(ctx context.Context, permissionID string, ops []string) (*domain.Permission, bool, error) {
	if permissionID == "" {
		return nil, false, fmt.Errorf("permission_id is required")
	}

	normalized, ok := domain.NormalizeOperations(ops)
	if !ok {
		return nil, false, domain.ErrInvalidOperation
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. 锁行重读最新状态
	stored, err := scanPermission(tx.QueryRowContext(ctx, `
		SELECT permission_id::text, name, COALESCE(description, '') as description, operations
		FROM permissions
		WHERE permission_id = $1::uuid
		FOR UPDATE
	`, permissionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, domain.ErrPermissionNotFound
		}
		return nil, false, fmt.Errorf("failed to lock permission: %w", err)
	}

	// 2. 被引用判定（同事务内，锁行保证期间无并发写）
	var refCount int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM roles
		WHERE grants @> jsonb_build_array(jsonb_build_object('id', $1::text))
	`, permissionID).Scan(&refCount)
	if err != nil {
		return nil, false, fmt.Errorf("failed to count referencing roles: %w", err)
	}

	// routes同事务内读取，返回视图与GetPermission保持一致
	routes, err := routesFor(ctx, tx, permissionID)
	if err != nil {
		return nil, false, err
	}
	stored.Routes = routes

	// 3. 单调安全规则：被引用时只接受严格超集
	if refCount > 0 && !domain.IsStrictSupersetOf(normalized, stored.Operations) {
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return stored, false, nil
	}

	// 4. 写入新集合
	if _, err := tx.ExecContext(ctx, `
		UPDATE permissions SET operations = $2 WHERE permission_id = $1::uuid
	`, permissionID, pq.Array(normalized)); err != nil {
		return nil, false, fmt.Errorf("failed to update operations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	updated := *stored
	updated.Operations = normalized
	return &updated, true, nil
}

// DeletePermission 删除权限
// 仍被角色引用时拒绝（保护角色持有者）
func (r *PostgresPermissionsRepository) DeletePermission(ctx context.Context, permissionID string) error {
	if permissionID == "" {
		return fmt.Errorf("permission_id is required")
	}

	refCount, err := r.CountRolesReferencing(ctx, permissionID)
	if err != nil {
		return err
	}
	if refCount > 0 {
		return domain.ErrConflict
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM permission_routes WHERE permission_id = $1::uuid`, permissionID); err != nil {
		return fmt.Errorf("failed to delete permission routes: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM permissions WHERE permission_id = $1::uuid`, permissionID)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrPermissionNotFound
	}

	return tx.Commit()
}

// queryer 让routesFor在事务内外均可复用
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func routesFor(ctx context.Context, q queryer, permissionID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT pattern FROM permission_routes WHERE permission_id = $1::uuid ORDER BY pattern
	`, permissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query permission routes: %w", err)
	}
	defer rows.Close()

	routes := []string{}
	for rows.Next() {
		var pattern string
		if err := rows.Scan(&pattern); err != nil {
			return nil, fmt.Errorf("failed to scan permission route: %w", err)
		}
		routes = append(routes, pattern)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return routes, nil
}
