package models

import (
	"log"

	"github.com/needibay/ordersync_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Admin{},
		&Category{}, &Product{}, &ProductVariant{},
		&Salesperson{}, &Distributor{}, &Shopkeeper{},
		&InventoryRecord{}, &DistributorOrderRecord{},
		&Order{}, &OrderItem{}, &PartialPayment{},
		&NotificationJob{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
