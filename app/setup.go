package app

import (
	"fmt"
	"log"
	"os"

	"github.com/amlguard/compliance-api/api"
	"github.com/amlguard/compliance-api/config"
	"github.com/amlguard/compliance-api/database"
	"github.com/amlguard/compliance-api/router"
	"github.com/amlguard/compliance-api/services/archive"
	"github.com/amlguard/compliance-api/services/cron"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func SetupAndRunServer() error {

	// Load ENV
	if err := config.LoadENV(); err != nil {
		return err
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}

	// Initialize GORM database connection
	db, err := database.StartGORM()
	if err != nil {
		print("Check whether the Postgres is running or not\n")
		return err
	}

	if err := database.Migrate(db); err != nil {
		print("Failed to initialize database tables\n")
		return err
	}

	store := database.NewGormStore(db)

	// Usage event archiver (optional; retention pruning is deferred
	// without it)
	var archiver cron.UsageArchiver
	if getEnv.SPACES_ACCESS_KEY != "" && getEnv.SPACES_BUCKET != "" {
		spaces, err := archive.NewSpacesArchiver(archive.Config{
			AccessKey: getEnv.SPACES_ACCESS_KEY,
			SecretKey: getEnv.SPACES_SECRET_KEY,
			Bucket:    getEnv.SPACES_BUCKET,
			Region:    getEnv.SPACES_REGION,
			Endpoint:  getEnv.SPACES_ENDPOINT,
		})
		if err != nil {
			log.Printf("Warning: Failed to initialize usage archiver: %v", err)
		} else {
			archiver = spaces
		}
	}

	// Initialize Cron Manager (only if enabled via environment variable)
	var cronManager *cron.CronManager
	if os.Getenv("CRON_ENABLED") != "false" { // Default to enabled
		cronManager = cron.NewCronManager(store, archiver, getEnv.USAGE_RETENTION_DAYS)
		if err := cronManager.Start(); err != nil {
			log.Printf("Warning: Failed to start cron jobs: %v", err)
			// Don't fail the app, just log the warning
		}
	}

	// Defer Closing DB and stopping cron jobs
	defer func() {
		if cronManager != nil {
			cronManager.Stop()
		}
		database.Close(db)
	}()

	// Init API
	server := api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))
	app := server.GetEngine()

	// Attach Middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	// Setup Routes
	router.SetupRoutes(app, db, store)

	// Get the PORT & Start the Server
	return server.Run()
}
