package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"hivedesk-core/internal/domain"
)

// PostgresRolesRepository 角色Repository实现（主库，强类型版本）
type PostgresRolesRepository struct {
	db *sql.DB
}

// NewPostgresRolesRepository 创建角色Repository
func NewPostgresRolesRepository(db *sql.DB) *PostgresRolesRepository {
	return &PostgresRolesRepository{db: db}
}

// 确保实现了接口
var _ RolesRepository = (*PostgresRolesRepository)(nil)

func scanRole(row rowScanner) (*domain.Role, error) {
	var role domain.Role
	var grantsRaw json.RawMessage
	err := row.Scan(
		&role.RoleID,
		&role.RoleCode,
		&role.Description,
		&grantsRaw,
		&role.IsSystem,
	)
	if err != nil {
		return nil, err
	}
	grants, err := domain.ParseGrants(grantsRaw)
	if err != nil {
		// 存储层出现坏数据：边界校验本应拦截，读取时不再吞掉
		return nil, fmt.Errorf("failed to parse role grants: %w", err)
	}
	role.Grants = grants
	return &role, nil
}

const roleColumns = `
	role_id::text,
	role_code,
	COALESCE(description, '') as description,
	COALESCE(grants, '[]'::jsonb) as grants,
	is_system`

// GetRole 根据role_id查询角色
func (r *PostgresRolesRepository) GetRole(ctx context.Context, roleID string) (*domain.Role, error) {
	if roleID == "" {
		return nil, fmt.Errorf("role_id is required")
	}

	role, err := scanRole(r.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE role_id = $1::uuid`, roleID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to query role: %w", err)
	}
	return role, nil
}

// GetRoleByCode 根据role_code查询角色
func (r *PostgresRolesRepository) GetRoleByCode(ctx context.Context, roleCode string) (*domain.Role, error) {
	if roleCode == "" {
		return nil, fmt.Errorf("role_code is required")
	}

	role, err := scanRole(r.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE role_code = $1`, roleCode))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to query role by code: %w", err)
	}
	return role, nil
}

// GetRolesByCodes 批量查询角色（未知code静默跳过）
func (r *PostgresRolesRepository) GetRolesByCodes(ctx context.Context, roleCodes []string) ([]*domain.Role, error) {
	if len(roleCodes) == 0 {
		return []*domain.Role{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE role_code = ANY($1) ORDER BY role_code`,
		pq.Array(roleCodes))
	if err != nil {
		return nil, fmt.Errorf("failed to query roles by codes: %w", err)
	}
	defer rows.Close()

	roles := []*domain.Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return roles, nil
}

// ListRoles 查询角色列表（分页）
func (r *PostgresRolesRepository) ListRoles(ctx context.Context, page, size int) ([]*domain.Role, int, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 100
	}
	offset := (page - 1) * size

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM roles`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count roles: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roleColumns+` FROM roles ORDER BY role_code LIMIT $1 OFFSET $2`, size, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	roles := []*domain.Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}
	return roles, total, nil
}

// CreateRole 创建角色
// 验证（Repository层）：
//   - role_code必填、唯一
//   - grants的每个permission_id必须存在于permissions表（值匹配）
func (r *PostgresRolesRepository) CreateRole(ctx context.Context, role *domain.Role) (string, error) {
	if role == nil {
		return "", fmt.Errorf("role is required")
	}
	if role.RoleCode == "" {
		return "", fmt.Errorf("role_code is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := validateGrantRefsTx(ctx, tx, role.Grants); err != nil {
		return "", err
	}

	grantsRaw, err := domain.MarshalGrants(role.Grants)
	if err != nil {
		return "", err
	}

	var roleID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO roles (role_code, description, grants, is_system)
		VALUES ($1, NULLIF($2, ''), $3::jsonb, $4)
		RETURNING role_id::text
	`, role.RoleCode, role.Description, string(grantsRaw), role.IsSystem).Scan(&roleID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return "", domain.ErrConflict
		}
		return "", fmt.Errorf("failed to create role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return roleID, nil
}

// UpdateRole 更新角色（description/grants；role_code不可变）
func (r *PostgresRolesRepository) UpdateRole(ctx context.Context, roleID string, role *domain.Role) error {
	if roleID == "" {
		return fmt.Errorf("role_id is required")
	}
	if role == nil {
		return fmt.Errorf("role is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if role.Grants != nil {
		if err := validateGrantRefsTx(ctx, tx, role.Grants); err != nil {
			return err
		}
	}

	query := `UPDATE roles SET description = COALESCE(NULLIF($2, ''), description)`
	args := []any{roleID, role.Description}
	if role.Grants != nil {
		grantsRaw, err := domain.MarshalGrants(role.Grants)
		if err != nil {
			return err
		}
		query += `, grants = $3::jsonb`
		args = append(args, string(grantsRaw))
	}
	query += ` WHERE role_id = $1::uuid`

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrRoleNotFound
	}

	return tx.Commit()
}

// DeleteRole 删除角色（系统预定义角色拒绝删除）
func (r *PostgresRolesRepository) DeleteRole(ctx context.Context, roleID string) error {
	if roleID == "" {
		return fmt.Errorf("role_id is required")
	}

	var isSystem bool
	err := r.db.QueryRowContext(ctx,
		`SELECT is_system FROM roles WHERE role_id = $1::uuid`, roleID).Scan(&isSystem)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.ErrRoleNotFound
		}
		return fmt.Errorf("failed to query role: %w", err)
	}
	if isSystem {
		return domain.ErrConflict
	}

	_, err = r.db.ExecContext(ctx, `DELETE FROM roles WHERE role_id = $1::uuid`, roleID)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return nil
}

// validateGrantRefsTx 校验grants引用的权限存在
func validateGrantRefsTx(ctx context.Context, tx *sql.Tx, grants []domain.Grant) error {
	for _, g := range grants {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM permissions WHERE permission_id = $1::uuid)`,
			g.PermissionID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to validate grant permission: %w", err)
		}
		if !exists {
			return fmt.Errorf("grant references unknown permission: %w (permission_id=%s)",
				domain.ErrPermissionNotFound, g.PermissionID)
		}
	}
	return nil
}
