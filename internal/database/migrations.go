package database

import (
	"gorm.io/gorm"

	"github.com/ncastellanos/vecino/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Resident{},
		&models.PanicSettings{},
		&models.PanicAlert{},
		&models.CacheEntry{},
	)
}

// SeedData ensures every active resident has a panic settings row so panel
// agents always find a configuration to load.
func SeedData(db *gorm.DB) error {
	var residents []models.Resident
	if err := db.Select("id").Find(&residents).Error; err != nil {
		return err
	}

	for _, resident := range residents {
		settings := models.PanicSettings{
			ResidentID:           resident.ID,
			HoldTimeSeconds:      5,
			ShareGPSLocation:     true,
			AlertDurationMinutes: 60,
		}
		if err := db.Where(models.PanicSettings{ResidentID: resident.ID}).
			Attrs(settings).
			FirstOrCreate(&models.PanicSettings{}).Error; err != nil {
			return err
		}
	}

	return nil
}
