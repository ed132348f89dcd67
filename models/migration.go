package models

import (
	"log"

	"bitbucket.org/mmdatafocus/retail_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{},
		&Location{},
		&Product{}, &ProductVariant{},
		&Transfer{}, &TransferItem{},
		&StockSummary{}, &StockMovement{},
		&History{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
