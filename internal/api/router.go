// Package api assembles the HTTP surface of the dashboard backend.
package api

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-dashboard/internal/api/handlers"
	"github.com/dvloznov/finance-dashboard/internal/api/middleware"
	"github.com/dvloznov/finance-dashboard/internal/jobs"
)

// Store is the persistence behind the REST resources.
type Store interface {
	handlers.CategoryStore
	handlers.TransactionStore
	handlers.ReferenceStore
	handlers.StatementGetter
}

// Ingester stores classified batches and manual transactions.
type Ingester interface {
	handlers.BatchIngester
	handlers.TransactionCreator
}

// Deps wires the router. Publisher and Jobs are optional.
type Deps struct {
	Store         Store
	Ingester      Ingester
	Importer      handlers.StatementImporter
	Dashboard     handlers.Aggregator
	Publisher     jobs.Publisher
	Jobs          jobs.JobStore
	DefaultUserID int64

	APIKey         string
	FrontendOrigin string
	Log            zerolog.Logger
}

// NewRouter registers every route and wraps the mux in the middleware chain.
func NewRouter(d Deps) http.Handler {
	log := d.Log
	categories := handlers.NewCategoriesHandler(d.Store, log)
	transactions := handlers.NewTransactionsHandler(d.Store, d.Ingester, log)
	reference := handlers.NewReferenceHandler(d.Store, log)
	dash := handlers.NewDashboardHandler(d.Dashboard, log)
	statements := handlers.NewStatementsHandler(handlers.StatementsDeps{
		Ingester:      d.Ingester,
		Importer:      d.Importer,
		Publisher:     d.Publisher,
		Statements:    d.Store,
		DefaultUserID: d.DefaultUserID,
	}, log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.Health)

	// Statements
	mux.HandleFunc("POST /statements/ingest", statements.Ingest)
	mux.HandleFunc("POST /statements/upload-csv", statements.UploadCSV)
	mux.HandleFunc("GET /statements/{id}", statements.GetStatement)

	// Transactions
	mux.HandleFunc("GET /transactions", transactions.ListTransactions)
	mux.HandleFunc("POST /transactions", transactions.CreateTransaction)
	mux.HandleFunc("GET /transactions/{id}", transactions.GetTransaction)
	mux.HandleFunc("PATCH /transactions/{id}", transactions.UpdateTransaction)
	mux.HandleFunc("PUT /transactions/{id}", transactions.UpdateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", transactions.DeleteTransaction)

	// Dashboard
	mux.HandleFunc("GET /dash/overview", dash.Overview)
	mux.HandleFunc("GET /dash/by-category", dash.ByCategory)
	mux.HandleFunc("GET /dash/series", dash.Series)
	mux.HandleFunc("GET /dash/top-subcategories", dash.TopSubcategories)

	// Categories
	mux.HandleFunc("GET /categories", categories.ListCategories)
	mux.HandleFunc("POST /categories", categories.CreateCategory)
	mux.HandleFunc("GET /categories/hierarchy", categories.Hierarchy)
	mux.HandleFunc("GET /categories/{id}", categories.GetCategory)
	mux.HandleFunc("PATCH /categories/{id}", categories.UpdateCategory)
	mux.HandleFunc("PUT /categories/{id}", categories.UpdateCategory)
	mux.HandleFunc("DELETE /categories/{id}", categories.DeleteCategory)

	// Reference data
	mux.HandleFunc("GET /banks", reference.ListBanks)
	mux.HandleFunc("GET /banks/{id}", reference.GetBank)
	mux.HandleFunc("GET /payment-methods", reference.ListPaymentMethods)
	mux.HandleFunc("GET /payment-methods/{id}", reference.GetPaymentMethod)

	// Jobs
	if d.Jobs != nil {
		jobsHandler := handlers.NewJobsHandler(d.Jobs, log)
		mux.HandleFunc("GET /jobs", jobsHandler.ListJobs)
		mux.HandleFunc("GET /jobs/{id}", jobsHandler.GetJob)
	}

	return middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS(d.FrontendOrigin),
		middleware.APIKey(d.APIKey, "/health"),
	)
}
