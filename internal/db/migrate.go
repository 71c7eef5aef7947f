package db

import (
	"auctionbot/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.ItemObservation{},
		&models.ReconciledItem{},
		&models.Opportunity{},
		&models.PortfolioEntry{},
		&models.LedgerEvent{},
		&models.BidAttempt{},
		&models.FeedSource{},
	)
}
