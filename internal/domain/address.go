package domain

// TenantAddress 租户经营地址（租户库 addresses 表）
type TenantAddress struct {
	AddressID string `db:"address_id"`
	Line1     string `db:"line1"` // NOT NULL
	Line2     string `db:"line2"` // nullable
	City      string `db:"city"`
	State     string `db:"state"`
	Country   string `db:"country"`
	Zip       string `db:"zip"`

	// Hours 每周营业时段，属于且仅属于本地址
	Hours []OperationHour
}

// OperationHour 营业时段（租户库 operation_hours 表）
// day_of_week: 0=Sunday ... 6=Saturday
type OperationHour struct {
	HourID    string `db:"hour_id"`
	AddressID string `db:"address_id"`
	DayOfWeek int    `db:"day_of_week"` // 0-6
	OpensAt   string `db:"opens_at"`    // "HH:MM"
	ClosesAt  string `db:"closes_at"`   // "HH:MM"
}
