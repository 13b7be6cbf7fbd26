// Package api assembles the HTTP router.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/tipenter/internal/api/handlers"
	"github.com/dvloznov/tipenter/internal/api/middleware"
	"github.com/dvloznov/tipenter/internal/infra/postgres"
	"github.com/dvloznov/tipenter/internal/jobs"
	"github.com/dvloznov/tipenter/internal/money"
	"github.com/dvloznov/tipenter/internal/receipt"
)

// Deps are the router's collaborators. Publisher, JobStore, Ledger and
// Limiter are optional.
type Deps struct {
	Log       zerolog.Logger
	Scanner   handlers.Scanner
	Store     receipt.Store
	Verifier  money.Verifier
	Publisher jobs.Publisher
	JobStore  jobs.JobStore
	Ledger    postgres.Ledger
	Limiter   *middleware.RateLimiter

	CORSOrigin     string
	EnhanceQuality int
}

// NewRouter builds the TipEnter HTTP handler.
func NewRouter(d Deps) http.Handler {
	scan := handlers.NewScanHandler(d.Scanner, d.Store, d.Publisher, d.EnhanceQuality, d.Log)
	batches := handlers.NewBatchesHandler(d.Store, d.Ledger, d.Verifier, d.Log)

	r := chi.NewRouter()
	r.Use(
		middleware.Recovery(d.Log),
		middleware.RequestID,
		middleware.Logger(d.Log),
		middleware.CORS(d.CORSOrigin),
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	r.Route("/api", func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(middleware.RateLimit(d.Limiter))
		}

		r.Post("/process-images", scan.ProcessImages)
		r.Post("/process-receipt", scan.ProcessReceipt)
		r.Post("/enhance-image", scan.EnhanceImage)
		r.Post("/scan-jobs", scan.EnqueueScan)

		r.Route("/batches/{id}", func(r chi.Router) {
			r.Get("/receipts", func(w http.ResponseWriter, r *http.Request) {
				batches.ListReceipts(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/export.csv", func(w http.ResponseWriter, r *http.Request) {
				batches.ExportCSV(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/export.xlsx", func(w http.ResponseWriter, r *http.Request) {
				batches.ExportXLSX(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/tip-updates", func(w http.ResponseWriter, r *http.Request) {
				batches.ListTipUpdates(w, r, chi.URLParam(r, "id"))
			})
			r.Post("/receipts/{index}/verify", func(w http.ResponseWriter, r *http.Request) {
				batches.VerifyReceipt(w, r, chi.URLParam(r, "id"), chi.URLParam(r, "index"))
			})
			r.Put("/receipts/{index}/tip", func(w http.ResponseWriter, r *http.Request) {
				batches.UpdateTip(w, r, chi.URLParam(r, "id"), chi.URLParam(r, "index"))
			})
			r.Put("/receipts/{index}/approval", func(w http.ResponseWriter, r *http.Request) {
				batches.SetApproval(w, r, chi.URLParam(r, "id"), chi.URLParam(r, "index"))
			})
		})

		if d.JobStore != nil {
			jobsHandler := handlers.NewJobsHandler(d.JobStore, d.Log)
			r.Get("/jobs", jobsHandler.ListJobs)
			r.Get("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
				jobsHandler.GetJob(w, r, chi.URLParam(r, "id"))
			})
		}
	})

	return r
}
