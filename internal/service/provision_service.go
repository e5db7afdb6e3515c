package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sethvargo/go-password/password"
	"go.uber.org/zap"

	"hivedesk-core/internal/domain"
	"hivedesk-core/internal/migrate"
	"hivedesk-core/internal/repository"
	"hivedesk-core/internal/tenantdb"
)

// StreamTenantProvisioned 租户开通完成事件stream
const StreamTenantProvisioned = "tenant.provisioned"

// EventPublisher 事件发布接口（store.StreamPublisher实现）
type EventPublisher interface {
	Publish(ctx context.Context, stream string, values map[string]interface{}) (string, error)
}

// TenantDBDefaults 新建租户库的服务器参数（来自配置）
type TenantDBDefaults struct {
	Host    string
	Port    int
	SSLMode string
}

// AddressSeed 开通时的总部地址
type AddressSeed struct {
	Line1   string
	Line2   string
	City    string
	State   string
	Country string
	Zip     string
	Hours   []HourSeed
}

// HourSeed 营业时段
type HourSeed struct {
	DayOfWeek int
	OpensAt   string
	ClosesAt  string
}

// AdminSeed 开通时的首个管理员账号
type AdminSeed struct {
	Account  string
	Password string
	Name     string
	Email    string
	Phone    string
}

// ProvisionRequest 租户开通请求
type ProvisionRequest struct {
	TenantName         string
	Domain             string
	RegistrationNumber string
	Email              string
	Phone              string
	Address            AddressSeed
	Admin              AdminSeed
}

// ProvisionSeed Resume时补齐的种子数据（开通请求在失败前未落库的部分）
type ProvisionSeed struct {
	Address *AddressSeed
	Admin   *AdminSeed
}

// TenantProvisioner 租户开通服务
// 开通是多步saga：主库注册 -> 物理建库建角色 -> 迁移 -> 种子数据 -> 激活。
// 主库行写入后的任何失败都保留tenant行（status=provisioning_failed），
// 通过Resume幂等重跑后半程，不产生孤儿库
type TenantProvisioner struct {
	tenants  repository.TenantsRepository
	roles    repository.RolesRepository
	router   *tenantdb.Router
	adminDB  *sql.DB
	defaults TenantDBDefaults
	events   EventPublisher
	logger   *zap.Logger

	// 可替换的执行钩子（测试注入内存实现）
	CreatePhysical func(ctx context.Context, desc *domain.TenantDatabase) error
	ApplySchema    func(ctx context.Context, db *sql.DB) error
	AddressesFor   func(db *sql.DB) repository.AddressesRepository
	StaffFor       func(db *sql.DB) repository.StaffRepository
}

// NewTenantProvisioner 创建开通服务
// adminDB: 具备CREATEDB/CREATEROLE权限的主库句柄
func NewTenantProvisioner(
	tenants repository.TenantsRepository,
	roles repository.RolesRepository,
	router *tenantdb.Router,
	adminDB *sql.DB,
	defaults TenantDBDefaults,
	events EventPublisher,
	logger *zap.Logger,
) *TenantProvisioner {
	p := &TenantProvisioner{
		tenants:  tenants,
		roles:    roles,
		router:   router,
		adminDB:  adminDB,
		defaults: defaults,
		events:   events,
		logger:   logger,
	}
	p.CreatePhysical = p.createPhysical
	p.ApplySchema = func(ctx context.Context, db *sql.DB) error {
		return migrate.Apply(ctx, db, migrate.TenantSchema, logger)
	}
	p.AddressesFor = func(db *sql.DB) repository.AddressesRepository {
		return repository.NewPostgresAddressesRepository(db)
	}
	p.StaffFor = func(db *sql.DB) repository.StaffRepository {
		return repository.NewPostgresStaffRepository(db)
	}
	return p
}

// Provision 开通新租户
// domain冲突在建库前拦截，返回domain.ErrDomainAlreadyExists且不产生任何物理资源
func (p *TenantProvisioner) Provision(ctx context.Context, req *ProvisionRequest) (*domain.Tenant, error) {
	if err := validateProvisionRequest(req); err != nil {
		return nil, err
	}

	// 1. domain唯一性预检（CreateTenant的唯一索引兜底并发竞争）
	reqDomain := strings.ToLower(strings.TrimSpace(req.Domain))
	if _, err := p.tenants.GetTenantByDomain(ctx, reqDomain); err == nil {
		return nil, domain.ErrDomainAlreadyExists
	} else if !errors.Is(err, domain.ErrTenantNotFound) {
		return nil, fmt.Errorf("failed to check domain: %w", err)
	}

	// 2. 生成租户标识和隔离库凭据
	tenantID := uuid.New().String()
	desc, err := p.generateDescriptor(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate credentials: %w", err)
	}

	// 3. 主库注册（status=provisioning，描述符仅此一次写入）
	tenant := &domain.Tenant{
		TenantID:           tenantID,
		TenantName:         req.TenantName,
		Domain:             reqDomain,
		RegistrationNumber: req.RegistrationNumber,
		Email:              req.Email,
		Phone:              req.Phone,
		Status:             domain.TenantStatusProvisioning,
	}
	if _, err := p.tenants.CreateTenant(ctx, tenant); err != nil {
		return nil, err
	}
	if err := p.tenants.SetTenantDatabase(ctx, desc); err != nil {
		return nil, p.markFailed(ctx, tenantID, fmt.Errorf("failed to store database descriptor: %w", err))
	}

	// 4-7. 物理建库、迁移、种子、激活
	if err := p.materialize(ctx, tenant, desc, &req.Address, &req.Admin); err != nil {
		return nil, p.markFailed(ctx, tenantID, err)
	}

	p.logger.Info("Tenant provisioned",
		zap.String("tenant_id", tenantID),
		zap.String("domain", tenant.Domain),
		zap.String("db_name", desc.DBName),
	)
	return tenant, nil
}

// Resume 幂等重跑失败租户的开通后半程（物理建库、迁移、种子、激活）
// seed可为nil：仅重试物理步骤，缺失的种子数据会使完整性校验不通过
func (p *TenantProvisioner) Resume(ctx context.Context, tenantID string, seed *ProvisionSeed) (*domain.Tenant, error) {
	tenant, err := p.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	switch tenant.Status {
	case domain.TenantStatusActive:
		return tenant, nil
	case domain.TenantStatusProvisioning, domain.TenantStatusProvisioningFailed:
	default:
		return nil, fmt.Errorf("%w: cannot resume tenant in status %s", domain.ErrInvalidOperation, tenant.Status)
	}

	desc, err := p.tenants.GetTenantDatabase(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load database descriptor: %w", err)
	}

	var addr *AddressSeed
	var admin *AdminSeed
	if seed != nil {
		addr = seed.Address
		admin = seed.Admin
	}
	if err := p.materialize(ctx, tenant, desc, addr, admin); err != nil {
		return nil, p.markFailed(ctx, tenantID, err)
	}

	p.logger.Info("Tenant provisioning resumed",
		zap.String("tenant_id", tenantID),
		zap.String("domain", tenant.Domain),
	)
	return tenant, nil
}

// CheckProvisioned 校验租户开通完整性（种子管理员和地址已落库）
func (p *TenantProvisioner) CheckProvisioned(ctx context.Context, tenantID string) error {
	tenant, err := p.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	desc, err := p.tenants.GetTenantDatabase(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load database descriptor: %w", err)
	}
	db, err := p.router.Adopt(ctx, tenant, desc)
	if err != nil {
		return err
	}

	staffCount, err := p.StaffFor(db).CountStaff(ctx)
	if err != nil {
		return fmt.Errorf("failed to count staff: %w", err)
	}
	addrCount, err := p.AddressesFor(db).CountAddresses(ctx)
	if err != nil {
		return fmt.Errorf("failed to count addresses: %w", err)
	}
	if staffCount < 1 {
		return fmt.Errorf("%w: no admin staff seeded", domain.ErrProvisioningIncomplete)
	}
	if addrCount < 1 {
		return fmt.Errorf("%w: no address seeded", domain.ErrProvisioningIncomplete)
	}
	return nil
}

// materialize 执行开通的物理半程，每一步可安全重入
func (p *TenantProvisioner) materialize(ctx context.Context, tenant *domain.Tenant, desc *domain.TenantDatabase, addr *AddressSeed, admin *AdminSeed) error {
	if err := p.CreatePhysical(ctx, desc); err != nil {
		return fmt.Errorf("failed to create physical database: %w", err)
	}

	db, err := p.router.Adopt(ctx, tenant, desc)
	if err != nil {
		return err
	}

	if err := p.ApplySchema(ctx, db); err != nil {
		return fmt.Errorf("failed to apply tenant schema: %w", err)
	}

	if addr != nil {
		if err := p.seedAddress(ctx, db, addr); err != nil {
			return err
		}
	}
	if admin != nil {
		if err := p.seedAdmin(ctx, db, tenant.TenantID, admin); err != nil {
			return err
		}
	}

	if err := p.tenants.SetTenantStatus(ctx, tenant.TenantID, domain.TenantStatusActive); err != nil {
		return fmt.Errorf("failed to activate tenant: %w", err)
	}
	tenant.Status = domain.TenantStatusActive

	if p.events != nil {
		if _, err := p.events.Publish(ctx, StreamTenantProvisioned, map[string]interface{}{
			"tenant_id":   tenant.TenantID,
			"domain":      tenant.Domain,
			"occurred_at": time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			// 事件发布失败不回滚开通结果
			p.logger.Warn("Failed to publish provisioned event",
				zap.String("tenant_id", tenant.TenantID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (p *TenantProvisioner) seedAddress(ctx context.Context, db *sql.DB, seed *AddressSeed) error {
	repo := p.AddressesFor(db)
	n, err := repo.CountAddresses(ctx)
	if err != nil {
		return fmt.Errorf("failed to count addresses: %w", err)
	}
	if n > 0 {
		return nil // 重入：地址已落库
	}

	address := &domain.TenantAddress{
		Line1:   seed.Line1,
		Line2:   seed.Line2,
		City:    seed.City,
		State:   seed.State,
		Country: seed.Country,
		Zip:     seed.Zip,
	}
	for _, h := range seed.Hours {
		address.Hours = append(address.Hours, domain.OperationHour{
			DayOfWeek: h.DayOfWeek,
			OpensAt:   h.OpensAt,
			ClosesAt:  h.ClosesAt,
		})
	}
	if _, err := repo.CreateAddress(ctx, address); err != nil {
		return fmt.Errorf("failed to seed address: %w", err)
	}
	return nil
}

func (p *TenantProvisioner) seedAdmin(ctx context.Context, db *sql.DB, tenantID string, seed *AdminSeed) error {
	repo := p.StaffFor(db)
	n, err := repo.CountStaff(ctx)
	if err != nil {
		return fmt.Errorf("failed to count staff: %w", err)
	}
	if n > 0 {
		return nil // 重入：管理员已落库
	}

	if err := p.ensureAdminRole(ctx); err != nil {
		return err
	}

	staff := &domain.Staff{
		TenantID:     tenantID,
		Account:      seed.Account,
		PasswordHash: domain.HashPassword(seed.Account, seed.Password),
		Name:         seed.Name,
		Email:        seed.Email,
		Phone:        seed.Phone,
		Roles:        []string{domain.DefaultAdminRoleCode},
		Status:       domain.StaffStatusActive,
	}
	if _, err := repo.CreateStaff(ctx, staff); err != nil {
		return fmt.Errorf("failed to seed admin staff: %w", err)
	}
	return nil
}

// ensureAdminRole 保证主库存在默认管理员角色（首个租户开通前可能尚未建立）
func (p *TenantProvisioner) ensureAdminRole(ctx context.Context) error {
	_, err := p.roles.GetRoleByCode(ctx, domain.DefaultAdminRoleCode)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrRoleNotFound) {
		return fmt.Errorf("failed to check admin role: %w", err)
	}
	_, err = p.roles.CreateRole(ctx, &domain.Role{
		RoleCode:    domain.DefaultAdminRoleCode,
		Description: "Tenant administrator",
		IsSystem:    true,
	})
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("failed to create admin role: %w", err)
	}
	return nil
}

// markFailed 将租户置为provisioning_failed并返回可识别的失败错误
// 主库行保留，等待Resume修复；不尝试回滚物理资源。
// 已登记的连接句柄一并驱逐，半开通的租户不可被常规请求路由
func (p *TenantProvisioner) markFailed(ctx context.Context, tenantID string, cause error) error {
	p.router.Invalidate(tenantID)
	if err := p.tenants.SetTenantStatus(ctx, tenantID, domain.TenantStatusProvisioningFailed); err != nil {
		p.logger.Error("Failed to mark tenant provisioning_failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	}
	p.logger.Warn("Tenant provisioning failed",
		zap.String("tenant_id", tenantID),
		zap.Error(cause),
	)
	return fmt.Errorf("%w: %v", domain.ErrProvisioningIncomplete, cause)
}

// generateDescriptor 生成隔离库描述符（库名/角色名随机后缀，口令32位随机）
func (p *TenantProvisioner) generateDescriptor(tenantID string) (*domain.TenantDatabase, error) {
	suffix := strings.ReplaceAll(tenantID, "-", "")[:12]
	pw, err := password.Generate(32, 10, 0, false, true)
	if err != nil {
		return nil, err
	}
	return &domain.TenantDatabase{
		TenantID:   tenantID,
		Host:       p.defaults.Host,
		Port:       p.defaults.Port,
		DBName:     "hd_t_" + suffix,
		DBUser:     "hd_u_" + suffix,
		DBPassword: pw,
		SSLMode:    p.defaults.SSLMode,
	}, nil
}

// createPhysical 建库建角色（生产钩子默认值）
// CREATE DATABASE/CREATE ROLE不支持参数绑定，标识符和口令经pq转义拼接；
// 对象已存在视为重入成功（42710 duplicate_object / 42P04 duplicate_database）
func (p *TenantProvisioner) createPhysical(ctx context.Context, desc *domain.TenantDatabase) error {
	createRole := fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s",
		pq.QuoteIdentifier(desc.DBUser), pq.QuoteLiteral(desc.DBPassword))
	if _, err := p.adminDB.ExecContext(ctx, createRole); err != nil {
		if !isPqCode(err, "42710") {
			return fmt.Errorf("failed to create role: %w", err)
		}
		// 重入：角色已存在，重设口令保证与描述符一致
		alterRole := fmt.Sprintf("ALTER ROLE %s WITH LOGIN PASSWORD %s",
			pq.QuoteIdentifier(desc.DBUser), pq.QuoteLiteral(desc.DBPassword))
		if _, err := p.adminDB.ExecContext(ctx, alterRole); err != nil {
			return fmt.Errorf("failed to alter role: %w", err)
		}
	}

	createDB := fmt.Sprintf("CREATE DATABASE %s OWNER %s",
		pq.QuoteIdentifier(desc.DBName), pq.QuoteIdentifier(desc.DBUser))
	if _, err := p.adminDB.ExecContext(ctx, createDB); err != nil && !isPqCode(err, "42P04") {
		return fmt.Errorf("failed to create database: %w", err)
	}
	return nil
}

func isPqCode(err error, code string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code
}

func validateProvisionRequest(req *ProvisionRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is required", domain.ErrInvalidOperation)
	}
	if strings.TrimSpace(req.TenantName) == "" {
		return fmt.Errorf("%w: tenant_name is required", domain.ErrInvalidOperation)
	}
	if strings.TrimSpace(req.Domain) == "" {
		return fmt.Errorf("%w: domain is required", domain.ErrInvalidOperation)
	}
	if strings.TrimSpace(req.Admin.Account) == "" || req.Admin.Password == "" {
		return fmt.Errorf("%w: admin account and password are required", domain.ErrInvalidOperation)
	}
	return nil
}
