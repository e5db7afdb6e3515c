package migrate

// Master 主库迁移集合：平台级表（tenants/tenant_databases/roles/permissions/staff）
var Master = []Migration{
	{
		Version: 1,
		Name:    "create_tenants",
		SQL: `
CREATE EXTENSION IF NOT EXISTS pgcrypto;
CREATE TABLE IF NOT EXISTS tenants (
	tenant_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_name VARCHAR(255) NOT NULL,
	domain VARCHAR(255) NOT NULL UNIQUE,
	registration_number VARCHAR(100),
	email VARCHAR(255),
	phone VARCHAR(50),
	status VARCHAR(50) NOT NULL DEFAULT 'active',
	metadata JSONB DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_tenants_status ON tenants (status);`,
	},
	{
		Version: 2,
		Name:    "create_tenant_databases",
		SQL: `
CREATE TABLE IF NOT EXISTS tenant_databases (
	tenant_id UUID PRIMARY KEY REFERENCES tenants(tenant_id),
	db_host VARCHAR(255) NOT NULL,
	db_port INT NOT NULL DEFAULT 5432,
	db_name VARCHAR(63) NOT NULL UNIQUE,
	db_user VARCHAR(63) NOT NULL,
	db_password VARCHAR(255) NOT NULL,
	ssl_mode VARCHAR(20) NOT NULL DEFAULT 'disable',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Version: 3,
		Name:    "create_permissions",
		SQL: `
CREATE TABLE IF NOT EXISTS permissions (
	permission_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name VARCHAR(255) NOT NULL UNIQUE,
	description TEXT,
	operations VARCHAR(20)[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS permission_routes (
	route_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	permission_id UUID NOT NULL REFERENCES permissions(permission_id),
	pattern VARCHAR(255) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_permission_routes_permission ON permission_routes (permission_id);`,
	},
	{
		Version: 4,
		Name:    "create_roles",
		SQL: `
CREATE TABLE IF NOT EXISTS roles (
	role_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	role_code VARCHAR(100) NOT NULL UNIQUE,
	description TEXT,
	grants JSONB NOT NULL DEFAULT '[]'::jsonb,
	is_system BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_roles_grants ON roles USING gin (grants);`,
	},
	{
		Version: 5,
		Name:    "create_master_staff",
		SQL: `
CREATE TABLE IF NOT EXISTS staff (
	staff_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID,
	account VARCHAR(255) NOT NULL UNIQUE,
	password_hash BYTEA NOT NULL,
	name VARCHAR(255),
	email VARCHAR(255),
	phone VARCHAR(50),
	roles VARCHAR(100)[] NOT NULL DEFAULT '{}',
	status VARCHAR(50) NOT NULL DEFAULT 'active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
}

// TenantSchema 租户库迁移集合
// 每个租户库结构一致：开通时应用同一套迁移
var TenantSchema = []Migration{
	{
		Version: 1,
		Name:    "create_addresses",
		SQL: `
CREATE EXTENSION IF NOT EXISTS pgcrypto;
CREATE TABLE IF NOT EXISTS addresses (
	address_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	line1 VARCHAR(255) NOT NULL,
	line2 VARCHAR(255),
	city VARCHAR(100),
	state VARCHAR(100),
	country VARCHAR(100),
	zip VARCHAR(20),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS operation_hours (
	hour_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	address_id UUID NOT NULL REFERENCES addresses(address_id),
	day_of_week INT NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
	opens_at VARCHAR(5) NOT NULL,
	closes_at VARCHAR(5) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_operation_hours_address ON operation_hours (address_id);`,
	},
	{
		Version: 2,
		Name:    "create_tenant_staff",
		SQL: `
CREATE TABLE IF NOT EXISTS staff (
	staff_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID,
	account VARCHAR(255) NOT NULL UNIQUE,
	password_hash BYTEA NOT NULL,
	name VARCHAR(255),
	email VARCHAR(255),
	phone VARCHAR(50),
	roles VARCHAR(100)[] NOT NULL DEFAULT '{}',
	status VARCHAR(50) NOT NULL DEFAULT 'active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Version: 3,
		Name:    "create_customers",
		SQL: `
CREATE TABLE IF NOT EXISTS customers (
	customer_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	account VARCHAR(255) NOT NULL UNIQUE,
	password_hash BYTEA,
	name VARCHAR(255),
	email VARCHAR(255),
	phone VARCHAR(50),
	status VARCHAR(50) NOT NULL DEFAULT 'active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
}
