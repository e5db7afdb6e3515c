package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"hivedesk-core/internal/domain"
)

// PostgresStaffRepository 员工Repository实现
// 每个实例绑定一个库句柄：主库或某租户的隔离库
type PostgresStaffRepository struct {
	db *sql.DB
}

// NewPostgresStaffRepository 创建员工Repository
// db 来自ConnectionRouter解析出的句柄（请求作用域显式传递）
func NewPostgresStaffRepository(db *sql.DB) *PostgresStaffRepository {
	return &PostgresStaffRepository{db: db}
}

// 确保实现了接口
var _ StaffRepository = (*PostgresStaffRepository)(nil)

const staffColumns = `
	staff_id::text,
	COALESCE(tenant_id::text, '') as tenant_id,
	account,
	password_hash,
	COALESCE(name, '') as name,
	COALESCE(email, '') as email,
	COALESCE(phone, '') as phone,
	COALESCE(roles, '{}') as roles,
	COALESCE(status, 'active') as status`

func scanStaff(row rowScanner) (*domain.Staff, error) {
	var staff domain.Staff
	err := row.Scan(
		&staff.StaffID,
		&staff.TenantID,
		&staff.Account,
		&staff.PasswordHash,
		&staff.Name,
		&staff.Email,
		&staff.Phone,
		&staff.Roles,
		&staff.Status,
	)
	if err != nil {
		return nil, err
	}
	return &staff, nil
}

// GetStaff 根据staff_id查询员工
func (r *PostgresStaffRepository) GetStaff(ctx context.Context, staffID string) (*domain.Staff, error) {
	if staffID == "" {
		return nil, fmt.Errorf("staff_id is required")
	}

	staff, err := scanStaff(r.db.QueryRowContext(ctx,
		`SELECT `+staffColumns+` FROM staff WHERE staff_id = $1::uuid`, staffID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrStaffNotFound
		}
		return nil, fmt.Errorf("failed to query staff: %w", err)
	}
	return staff, nil
}

// GetStaffByAccount 根据account查询员工（登录路径）
func (r *PostgresStaffRepository) GetStaffByAccount(ctx context.Context, account string) (*domain.Staff, error) {
	if account == "" {
		return nil, fmt.Errorf("account is required")
	}

	staff, err := scanStaff(r.db.QueryRowContext(ctx,
		`SELECT `+staffColumns+` FROM staff WHERE account = $1`, account))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrStaffNotFound
		}
		return nil, fmt.Errorf("failed to query staff by account: %w", err)
	}
	return staff, nil
}

// CountStaff 员工总数（开通完整性校验用）
func (r *PostgresStaffRepository) CountStaff(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM staff`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count staff: %w", err)
	}
	return count, nil
}

// CreateStaff 创建员工
func (r *PostgresStaffRepository) CreateStaff(ctx context.Context, staff *domain.Staff) (string, error) {
	if staff == nil {
		return "", fmt.Errorf("staff is required")
	}
	if staff.Account == "" {
		return "", fmt.Errorf("account is required")
	}
	if len(staff.PasswordHash) == 0 {
		return "", fmt.Errorf("password_hash is required")
	}

	status := staff.Status
	if status == "" {
		status = "active"
	}

	var staffID string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO staff (tenant_id, account, password_hash, name, email, phone, roles, status)
		VALUES (NULLIF($1, '')::uuid, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8)
		RETURNING staff_id::text
	`, staff.TenantID, staff.Account, staff.PasswordHash,
		staff.Name, staff.Email, staff.Phone, pq.Array([]string(staff.Roles)), status,
	).Scan(&staffID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return "", domain.ErrConflict
		}
		return "", fmt.Errorf("failed to create staff: %w", err)
	}
	return staffID, nil
}

// UpdatePassword 更新口令哈希（旧口令校验由Service层完成）
func (r *PostgresStaffRepository) UpdatePassword(ctx context.Context, staffID string, newHash []byte) error {
	if staffID == "" {
		return fmt.Errorf("staff_id is required")
	}
	if len(newHash) == 0 {
		return fmt.Errorf("password_hash is required")
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE staff SET password_hash = $2 WHERE staff_id = $1::uuid`, staffID, newHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrStaffNotFound
	}
	return nil
}

// AssignRoles 整体替换员工的角色列表
func (r *PostgresStaffRepository) AssignRoles(ctx context.Context, staffID string, roleCodes []string) error {
	if staffID == "" {
		return fmt.Errorf("staff_id is required")
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE staff SET roles = $2 WHERE staff_id = $1::uuid`, staffID, pq.Array(roleCodes))
	if err != nil {
		return fmt.Errorf("failed to assign roles: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrStaffNotFound
	}
	return nil
}

// SetStaffStatus 更新员工状态（active/inactive）
func (r *PostgresStaffRepository) SetStaffStatus(ctx context.Context, staffID string, status string) error {
	if staffID == "" {
		return fmt.Errorf("staff_id is required")
	}
	if status == "" {
		return fmt.Errorf("status is required")
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE staff SET status = $2 WHERE staff_id = $1::uuid`, staffID, status)
	if err != nil {
		return fmt.Errorf("failed to set staff status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrStaffNotFound
	}
	return nil
}
