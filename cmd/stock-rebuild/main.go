// Command stock-rebuild recomputes the stock_summaries counters for one
// business from the stock_movements ledger. Use it after manual data repairs
// or when a counter is suspected to have drifted.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/models"
)

func main() {
	businessId := flag.String("business-id", "", "Required: business id (uuid)")
	dryRun := flag.Bool("dry-run", false, "Compute and report without writing")
	flag.Parse()

	if strings.TrimSpace(*businessId) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	tx := db.Begin()
	if tx.Error != nil {
		fmt.Fprintf(os.Stderr, "begin: %v\n", tx.Error)
		os.Exit(1)
	}
	updated, err := models.RebuildStockSummaries(tx, strings.TrimSpace(*businessId))
	if err != nil {
		tx.Rollback()
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		tx.Rollback()
		fmt.Printf("dry run: %d stock summaries would change\n", updated)
		return
	}
	if err := tx.Commit().Error; err != nil {
		fmt.Fprintf(os.Stderr, "commit: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("rebuilt %d stock summaries\n", updated)
}
