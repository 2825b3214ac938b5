package postgresadapter

import "gorm.io/gorm"

// AutoMigrate creates the exception tables, including the partial unique
// index guarding one active request per (finding, scope).
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&requestModel{}, &auditEventModel{}, &outboxModel{})
}
