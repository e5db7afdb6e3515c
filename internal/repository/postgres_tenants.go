package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"hivedesk-core/internal/domain"
)

// PostgresTenantsRepository 租户Repository实现（主库，强类型版本）
type PostgresTenantsRepository struct {
	db *sql.DB
}

// NewPostgresTenantsRepository 创建租户Repository
func NewPostgresTenantsRepository(db *sql.DB) *PostgresTenantsRepository {
	return &PostgresTenantsRepository{db: db}
}

// 确保实现了接口
var _ TenantsRepository = (*PostgresTenantsRepository)(nil)

const tenantColumns = `
	tenant_id::text,
	tenant_name,
	domain,
	COALESCE(registration_number, '') as registration_number,
	COALESCE(email, '') as email,
	COALESCE(phone, '') as phone,
	COALESCE(status, 'active') as status,
	COALESCE(metadata, '{}'::jsonb) as metadata`

func scanTenant(row interface{ Scan(...any) error }) (*domain.Tenant, error) {
	var tenant domain.Tenant
	var metadataRaw json.RawMessage
	err := row.Scan(
		&tenant.TenantID,
		&tenant.TenantName,
		&tenant.Domain,
		&tenant.RegistrationNumber,
		&tenant.Email,
		&tenant.Phone,
		&tenant.Status,
		&metadataRaw,
	)
	if err != nil {
		return nil, err
	}
	tenant.Metadata = metadataRaw
	return &tenant, nil
}

// GetTenant 根据tenant_id获取租户信息
func (r *PostgresTenantsRepository) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE tenant_id = $1::uuid`

	tenant, err := scanTenant(r.db.QueryRowContext(ctx, query, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// GetTenantByDomain 根据domain获取租户信息（用于子域名路由）
func (r *PostgresTenantsRepository) GetTenantByDomain(ctx context.Context, domainName string) (*domain.Tenant, error) {
	if domainName == "" {
		return nil, fmt.Errorf("domain is required")
	}

	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE domain = $1`

	tenant, err := scanTenant(r.db.QueryRowContext(ctx, query, domainName))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant by domain: %w", err)
	}
	return tenant, nil
}

// ListTenants 查询租户列表（支持分页、过滤、搜索）
func (r *PostgresTenantsRepository) ListTenants(ctx context.Context, filter TenantFilters, page, size int) ([]*domain.Tenant, int, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	offset := (page - 1) * size

	// 构建WHERE条件
	where := []string{}
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Search != "" {
		where = append(where, fmt.Sprintf("tenant_name ILIKE $%d", argIdx))
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	// 查询总数
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM tenants %s`, whereClause)
	var total int
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count tenants: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM tenants %s ORDER BY tenant_name LIMIT $%d OFFSET $%d`,
		tenantColumns, whereClause, argIdx, argIdx+1)
	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []*domain.Tenant{}
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate tenants: %w", err)
	}

	return tenants, total, nil
}

// CreateTenant 创建租户行
// domain唯一性由数据库约束保证，冲突映射为domain.ErrDomainAlreadyExists
func (r *PostgresTenantsRepository) CreateTenant(ctx context.Context, tenant *domain.Tenant) (string, error) {
	if tenant == nil {
		return "", fmt.Errorf("tenant is required")
	}
	if tenant.TenantName == "" {
		return "", fmt.Errorf("tenant_name is required")
	}
	if tenant.Domain == "" {
		return "", fmt.Errorf("domain is required")
	}

	status := tenant.Status
	if status == "" {
		status = domain.TenantStatusActive
	}

	metadataArg := "{}"
	if len(tenant.Metadata) > 0 {
		metadataArg = string(tenant.Metadata)
	}

	var tenantID string
	var err error
	if tenant.TenantID != "" {
		// Provisioner预生成的ID
		err = r.db.QueryRowContext(ctx,
			`INSERT INTO tenants (tenant_id, tenant_name, domain, registration_number, email, phone, status, metadata)
			 VALUES ($1::uuid, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8::jsonb)
			 RETURNING tenant_id::text`,
			tenant.TenantID, tenant.TenantName, tenant.Domain, tenant.RegistrationNumber,
			tenant.Email, tenant.Phone, status, metadataArg,
		).Scan(&tenantID)
	} else {
		err = r.db.QueryRowContext(ctx,
			`INSERT INTO tenants (tenant_name, domain, registration_number, email, phone, status, metadata)
			 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7::jsonb)
			 RETURNING tenant_id::text`,
			tenant.TenantName, tenant.Domain, tenant.RegistrationNumber,
			tenant.Email, tenant.Phone, status, metadataArg,
		).Scan(&tenantID)
	}
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			// unique_violation: domain已被占用
			return "", domain.ErrDomainAlreadyExists
		}
		return "", fmt.Errorf("failed to create tenant: %w", err)
	}

	return tenantID, nil
}

// UpdateTenant 更新租户联系信息（domain不可变，不接受更新）
func (r *PostgresTenantsRepository) UpdateTenant(ctx context.Context, tenantID string, tenant *domain.Tenant) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if tenant == nil {
		return fmt.Errorf("tenant is required")
	}

	updates := []string{}
	args := []any{tenantID}
	argIdx := 2

	if tenant.TenantName != "" {
		updates = append(updates, fmt.Sprintf("tenant_name = $%d", argIdx))
		args = append(args, tenant.TenantName)
		argIdx++
	}

	if tenant.RegistrationNumber != "" {
		updates = append(updates, fmt.Sprintf("registration_number = NULLIF($%d, '')", argIdx))
		args = append(args, tenant.RegistrationNumber)
		argIdx++
	}

	if tenant.Email != "" {
		updates = append(updates, fmt.Sprintf("email = NULLIF($%d, '')", argIdx))
		args = append(args, tenant.Email)
		argIdx++
	}

	if tenant.Phone != "" {
		updates = append(updates, fmt.Sprintf("phone = NULLIF($%d, '')", argIdx))
		args = append(args, tenant.Phone)
		argIdx++
	}

	if len(tenant.Metadata) > 0 {
		updates = append(updates, fmt.Sprintf("metadata = $%d::jsonb", argIdx))
		args = append(args, string(tenant.Metadata))
		argIdx++
	}

	if len(updates) == 0 {
		return fmt.Errorf("no fields to update")
	}

	query := fmt.Sprintf(`UPDATE tenants SET %s WHERE tenant_id = $1::uuid`, strings.Join(updates, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrTenantNotFound
	}

	return nil
}

// SetTenantStatus 更新租户状态
func (r *PostgresTenantsRepository) SetTenantStatus(ctx context.Context, tenantID string, status string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if status == "" {
		return fmt.Errorf("status is required")
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET status = $2 WHERE tenant_id = $1::uuid`,
		tenantID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to set tenant status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrTenantNotFound
	}

	return nil
}

// GetTenantDatabase 读取租户库描述符
func (r *PostgresTenantsRepository) GetTenantDatabase(ctx context.Context, tenantID string) (*domain.TenantDatabase, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	var desc domain.TenantDatabase
	err := r.db.QueryRowContext(ctx, `
		SELECT tenant_id::text, db_host, db_port, db_name, db_user, db_password, COALESCE(ssl_mode, 'disable')
		FROM tenant_databases
		WHERE tenant_id = $1::uuid
	`, tenantID).Scan(
		&desc.TenantID,
		&desc.Host,
		&desc.Port,
		&desc.DBName,
		&desc.DBUser,
		&desc.DBPassword,
		&desc.SSLMode,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant database: %w", err)
	}
	return &desc, nil
}

// SetTenantDatabase 写入租户库描述符，仅开通时调用一次
// ON CONFLICT DO NOTHING：已存在时不覆盖，返回ErrDescriptorImmutable
func (r *PostgresTenantsRepository) SetTenantDatabase(ctx context.Context, desc *domain.TenantDatabase) error {
	if desc == nil {
		return fmt.Errorf("descriptor is required")
	}
	if desc.TenantID == "" || desc.DBName == "" || desc.DBUser == "" {
		return fmt.Errorf("tenant_id, db_name, db_user are required")
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO tenant_databases (tenant_id, db_host, db_port, db_name, db_user, db_password, ssl_mode)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id) DO NOTHING
	`, desc.TenantID, desc.Host, desc.Port, desc.DBName, desc.DBUser, desc.DBPassword, desc.SSLMode)
	if err != nil {
		return fmt.Errorf("failed to set tenant database: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrDescriptorImmutable
	}

	return nil
}
