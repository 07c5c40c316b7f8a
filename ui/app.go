package ui

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gopivot/app"
	"gopivot/ports"
)

// App represents the HTTP application
type App struct {
	router      *chi.Mux
	refinements *app.RefinementService
	simulations *app.SimulationService
	problems    ports.ProblemRepository
	visions     ports.VisionRepository
}

// NewApp creates a new HTTP application
func NewApp(
	refinements *app.RefinementService,
	simulations *app.SimulationService,
	problems ports.ProblemRepository,
	visions ports.VisionRepository,
) *App {
	a := &App{
		router:      chi.NewRouter(),
		refinements: refinements,
		simulations: simulations,
		problems:    problems,
		visions:     visions,
	}

	a.setupMiddleware()
	a.setupRoutes()

	return a
}

// setupMiddleware configures HTTP middleware
func (a *App) setupMiddleware() {
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
}

// setupRoutes configures the application routes
func (a *App) setupRoutes() {
	a.router.Route("/api/v2", func(r chi.Router) {
		r.Post("/problems", a.handleCreateProblem)
		r.Get("/problems/{problemID}", a.handleGetProblem)
		r.Post("/problems/{problemID}/analyze", a.handleAnalyzeProblem)
		r.Post("/problems/{problemID}/commit", a.handleCommitProblem)

		r.Post("/problems/{problemID}/visions", a.handleCreateVision)
		r.Get("/problems/{problemID}/visions", a.handleListVisions)

		r.Post("/visions/{visionID}/analyze", a.handleAnalyzeVision)
		r.Post("/visions/{visionID}/commit", a.handleCommitVision)
		r.Delete("/visions/{visionID}", a.handleDeleteVision)
		r.Get("/visions/{visionID}/stages", a.handleStageLocks)

		r.Post("/visions/{visionID}/r1/analyze", a.handleAnalyzeR1)
		r.Post("/visions/{visionID}/r1/commit", a.handleCommitR1)
		r.Post("/visions/{visionID}/{stage}/analyze", a.handleAnalyzeRefinement)
		r.Post("/visions/{visionID}/{stage}/commit", a.handleCommitRefinement)

		r.Get("/visions/{visionID}/pivot", a.handleGetPivot)
		r.Get("/visions/{visionID}/simulation", a.handleSimulation)
		r.Get("/visions/{visionID}/simulation.xlsx", a.handleSimulationExport)
	})
}

// Router returns the chi router for serving
func (a *App) Router() http.Handler {
	return a.router
}
