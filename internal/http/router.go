package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func NewRouter(handler *Handler, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(Recoverer(log))
	r.Use(Timeout)
	r.Use(CORS)

	r.Get("/healthz", handler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/dataset", handler.DatasetMeta)
		r.Post("/dataset/refresh", handler.RefreshDataset)
		r.Get("/dataset/default-window", handler.DefaultWindow)

		r.Get("/kpis", handler.KPIs)
		r.Get("/summary/monthly", handler.MonthlyWindow)
		r.Get("/summary/year", handler.YearSummary)
		r.Get("/breakdown/{dimension}", handler.Breakdown)
		r.Get("/vendors", handler.Vendors)
		r.Get("/transactions", handler.Transactions)

		r.Get("/views", handler.ListViews)
		r.Get("/views/{name}", handler.GetView)
		r.Put("/views/{name}", handler.PutView)
		r.Post("/views", handler.PutView)
		r.Delete("/views/{name}", handler.DeleteView)
	})

	return r
}
