// Command seed-dev creates a development business with two locations, a few
// tracked products and opening stock, and prints a token for API calls.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/models"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
)

func main() {
	name := flag.String("name", "Dev Retail", "Business name")
	openingQty := flag.String("opening-qty", "50", "Opening quantity per product at the warehouse")
	flag.Parse()

	openingQuantity, err := utils.ParseDecimal(*openingQty)
	if err != nil || openingQuantity.IsNegative() {
		fmt.Fprintf(os.Stderr, "invalid -opening-qty %q\n", *openingQty)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seeder")
	ctx = utils.SetUsernameInContext(ctx, "seed@dev.local")

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{Name: *name, Email: "dev@dev.local"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create business: %v\n", err)
		os.Exit(1)
	}
	businessId := biz.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessId)

	warehouse, err := models.CreateLocation(ctx, &models.NewLocation{Name: "Main Warehouse", City: "Yangon"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create warehouse: %v\n", err)
		os.Exit(1)
	}
	store, err := models.CreateLocation(ctx, &models.NewLocation{Name: "Downtown Store", City: "Yangon"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create store: %v\n", err)
		os.Exit(1)
	}

	seeds := []models.NewProduct{
		{Name: "Notebook A5", Sku: "NB-A5"},
		{Name: "Ballpoint Pen", Sku: "PEN-01"},
		{Name: "Stapler", Sku: "STA-01"},
	}
	for _, seed := range seeds {
		product, err := models.CreateProduct(ctx, &seed)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create product %s: %v\n", seed.Name, err)
			os.Exit(1)
		}
		tx := db.Begin()
		if _, err := models.ApplyStockDelta(tx, businessId, warehouse.ID, product.ID, 0,
			openingQuantity, models.StockMovementReasonOpening, "Opening stock", 0, 0); err != nil {
			tx.Rollback()
			fmt.Fprintf(os.Stderr, "opening stock %s: %v\n", seed.Name, err)
			os.Exit(1)
		}
		if err := tx.Commit().Error; err != nil {
			fmt.Fprintf(os.Stderr, "commit opening stock: %v\n", err)
			os.Exit(1)
		}
	}

	storeToken, err := utils.JwtGenerate(1, businessId, "store@dev.local", store.ID, "staff")
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate token: %v\n", err)
		os.Exit(1)
	}
	adminToken, err := utils.JwtGenerate(1, businessId, "admin@dev.local", 0, "admin")
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate admin token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("business:  %s\n", businessId)
	fmt.Printf("warehouse: %d\n", warehouse.ID)
	fmt.Printf("store:     %d\n", store.ID)
	fmt.Printf("store token: %s\n", storeToken)
	fmt.Printf("admin token: %s\n", adminToken)
}
