// seed-admin creates or updates the console admin for a business.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/seed-admin -business-id <id> -email admin@example.com -password <pw>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/needibay/ordersync_backend/config"
	"github.com/needibay/ordersync_backend/models"
	"github.com/needibay/ordersync_backend/utils"
	"gorm.io/gorm"
)

func main() {
	businessID := flag.String("business-id", "", "Business id the admin belongs to (required)")
	email := flag.String("email", "", "Admin email (required)")
	password := flag.String("password", "", "Admin password (required, min 8 chars)")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" || strings.TrimSpace(*email) == "" || len(*password) < 8 {
		fmt.Fprintln(os.Stderr, "usage: seed-admin -business-id <id> -email <email> -password <min 8 chars>")
		os.Exit(2)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetBusinessIdInContext(ctx, strings.TrimSpace(*businessID))
	ctx = utils.SetIsAdminInContext(ctx, true)
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	hashed, err := utils.HashPassword(*password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var existing models.Admin
	err = db.WithContext(ctx).Model(&models.Admin{}).Where("email = ?", *email).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup admin: %v\n", err)
			os.Exit(1)
		}
		a := models.Admin{
			BusinessId: strings.TrimSpace(*businessID),
			Email:      *email,
			Password:   string(hashed),
		}
		if err := db.WithContext(ctx).Create(&a).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin: email=%q business_id=%q\n", *email, *businessID)
		return
	}

	if err := db.WithContext(ctx).Model(&models.Admin{}).Where("email = ?", *email).Updates(map[string]any{
		"password":    string(hashed),
		"business_id": strings.TrimSpace(*businessID),
	}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Updated admin: email=%q business_id=%q\n", *email, *businessID)
}
