package main

import (
	"log"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"gopivot/adapters/postgres"
	"gopivot/ai"
	"gopivot/app"
	"gopivot/internal/config"
	"gopivot/internal/errors"
	"gopivot/ui"
)

func main() {
	// Load environment variables (.env is optional in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error [%s]: %v", errors.GetCode(err), err)
	}

	db, err := initDatabase(appConfig)
	if err != nil {
		log.Fatalf("Database error [%s]: %v", errors.GetCode(err), err)
	}
	defer db.Close()

	analyzer := ai.NewAnalyzer(&appConfig.AI)

	problems := postgres.NewProblemRepository(db)
	visions := postgres.NewVisionRepository(db)
	stages := postgres.NewStageRepository(db)
	pivots := postgres.NewPivotRepository(db)

	refinements := app.NewRefinementService(analyzer, problems, visions, stages, pivots)
	simulations := app.NewSimulationService(pivots)

	httpApp := ui.NewApp(refinements, simulations, problems, visions)

	addr := ":" + appConfig.Server.Port
	log.Printf("[api] listening on %s (model=%s)", addr, appConfig.AI.OpenAIModel)
	if err := http.ListenAndServe(addr, httpApp.Router()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// initDatabase initializes the PostgreSQL database connection
func initDatabase(appConfig *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", appConfig.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}
	if err := postgres.Migrate(db); err != nil {
		return nil, errors.Wrap(err, "migration failed")
	}
	return db, nil
}
