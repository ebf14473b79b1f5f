package model

import (
	"time"

	"gorm.io/gorm"

	"marketpay/internal/domain/money"
)

type Product struct {
	ID       int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	VendorID int64          `gorm:"not null;index" json:"vendor_id"`
	Name     string         `gorm:"type:varchar(255);not null" json:"name"`
	SKU      string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"sku"`
	Price    money.Money    `gorm:"type:numeric(12,2);not null" json:"price"`
	Stock    int64          `gorm:"not null" json:"stock"`
	IsActive bool           `gorm:"not null;default:false" json:"is_active"`
	CreatedAt time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time     `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
