package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/your-org/healthcareai-go/internal/datastore"
	"github.com/your-org/healthcareai-go/internal/frame"
	"github.com/your-org/healthcareai-go/internal/trainer"
)

// RouterOptions wires the scoring service.
type RouterOptions struct {
	Model   Predictor
	Info    ModelInfo
	Store   datastore.Store // nil disables /v1/runs
	Metrics *Metrics
	Logger  *zap.Logger
}

// NewRouter builds the chi router of the scoring service.
func NewRouter(opts RouterOptions) http.Handler {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(opts.Metrics.Middleware)

	r.Get("/healthz", HealthCheckHandler(opts.Info.ID))
	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())

	model := &countingPredictor{Predictor: opts.Model, metrics: opts.Metrics}
	NewPredictionHandler(model, opts.Info, opts.Logger).RegisterRoutes(r)
	if opts.Store != nil {
		NewRunHandler(opts.Store).RegisterRoutes(r)
	}
	return r
}

type countingPredictor struct {
	Predictor
	metrics *Metrics
}

func (p *countingPredictor) PredictWithFactors(f *frame.Frame, k int) ([]trainer.Prediction, error) {
	preds, err := p.Predictor.PredictWithFactors(f, k)
	if err == nil {
		p.metrics.scored.Add(float64(len(preds)))
	}
	return preds, err
}
