// Package serving answers health and prediction requests from a trained
// heart disease pipeline artifact.
//
// The artifact is loaded lazily on the first request and cached for the
// lifetime of the Service. Health keeps checking that the file is
// still present and report a degraded state when it disappears, while
// predictions continue to be served from the cached pipeline.
package serving

import (
	"context"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/YuminosukeSato/heartml/pipeline"
	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/pkg/log"
	"github.com/YuminosukeSato/heartml/schema"
)

// DecisionThreshold is the positive-class probability at or above which a
// record is classified as having heart disease.
const DecisionThreshold = 0.5

// State is the lifecycle state of the cached artifact.
type State string

const (
	StateUnloaded State = "UNLOADED"
	StateReady    State = "READY"
	StateDegraded State = "DEGRADED"
)

// Health status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Loader reads a pipeline artifact from storage.
type Loader func(path string) (*pipeline.Pipeline, error)

// HealthStatus is the body of the health endpoint.
type HealthStatus struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	ModelPath   string `json:"model_path"`
	Error       string `json:"error,omitempty"`
}

// Prediction is the result for a single record.
type Prediction struct {
	Prediction int     `json:"prediction"`
	Confidence float64 `json:"confidence"`
	ModelPath  string  `json:"model_path"`
}

// Option configures a Service.
type Option func(*Service)

// WithLoader replaces the artifact loader. Defaults to pipeline.Load.
func WithLoader(l Loader) Option {
	return func(s *Service) {
		s.load = l
	}
}

// WithLogger sets the logger used for request logging.
func WithLogger(l log.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// Service holds the cached pipeline and its state.
type Service struct {
	path   string
	load   Loader
	logger log.Logger
	group  singleflight.Group

	mu    sync.RWMutex
	state State
	model *pipeline.Pipeline
}

// NewService creates a Service for the artifact at modelPath. Nothing is read
// until the first Load, Health or Predict call.
func NewService(modelPath string, opts ...Option) *Service {
	s := &Service{
		path:  modelPath,
		load:  pipeline.Load,
		state: StateUnloaded,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.GetLoggerWithName("serving")
	}
	s.logger = s.logger.With(log.ModelPathKey, modelPath)
	return s
}

// ModelPath returns the configured artifact path.
func (s *Service) ModelPath() string {
	return s.path
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Service) cached() *pipeline.Pipeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// Load returns the cached pipeline, reading the artifact on first use.
// Concurrent first calls share a single read of storage.
func (s *Service) Load(ctx context.Context) (*pipeline.Pipeline, error) {
	if p := s.cached(); p != nil {
		return p, nil
	}

	ch := s.group.DoChan(s.path, func() (interface{}, error) {
		if p := s.cached(); p != nil {
			return p, nil
		}

		var p *pipeline.Pipeline
		err := errors.SafeExecute("load model", func() (err error) {
			p, err = s.load(s.path)
			return err
		})
		if err != nil {
			s.safeLog("load failure log", func() {
				s.logger.Error("Model load failed", err, log.OperationKey, log.OperationLoad)
			})
			return nil, errors.NewModelUnavailableError(s.path, err)
		}

		s.mu.Lock()
		s.model = p
		s.state = StateReady
		s.mu.Unlock()
		s.safeLog("load log", func() {
			s.logger.Info("Model loaded",
				log.OperationKey, log.OperationLoad,
				log.SchemaFingerprintKey, p.SchemaFingerprint,
				log.RunIDKey, p.RunID,
			)
		})
		return p, nil
	})

	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "wait for model load")
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*pipeline.Pipeline), nil
	}
}

// Health loads the artifact if needed and, once loaded, checks that it is
// still present in storage. It never fails; problems are reported in the
// returned status.
func (s *Service) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{Status: StatusOK, ModelPath: s.path}

	if s.cached() == nil {
		if _, err := s.Load(ctx); err != nil {
			status.Status = StatusDegraded
			status.Error = err.Error()
			return status
		}
		status.ModelLoaded = true
		return status
	}

	status.ModelLoaded = true
	err := s.statArtifact()

	s.mu.Lock()
	prev := s.state
	if err != nil {
		s.state = StateDegraded
	} else {
		s.state = StateReady
	}
	next := s.state
	s.mu.Unlock()

	if prev != next {
		s.safeLog("state log", func() {
			s.logger.Warn("Model state changed", "from", string(prev), "to", string(next))
		})
	}
	if err != nil {
		status.Status = StatusDegraded
		status.Error = errors.NewModelUnavailableError(s.path, err).Error()
	}
	return status
}

func (s *Service) statArtifact() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.Newf("%s is a directory", s.path)
	}
	return nil
}

// Predict validates record against the heart schema and classifies it.
// Validation failures are *errors.ValidationError, a missing or broken
// artifact is *errors.ModelUnavailableError. A panic during inference is
// returned as an error. The raw record is logged before validation and every
// failure other than a validation error is logged with its stack.
func (s *Service) Predict(ctx context.Context, record map[string]interface{}) (pred Prediction, err error) {
	defer func() {
		var ve *errors.ValidationError
		if err != nil && !errors.As(err, &ve) {
			s.safeLog("prediction error log", func() {
				s.logger.Error("Prediction failed", err, log.RequestIDKey, RequestIDFromContext(ctx))
			})
		}
	}()
	defer errors.Recover(&err, "Service.Predict")

	s.safeLog("prediction request log", func() {
		s.logger.Info("Prediction request",
			log.RequestIDKey, RequestIDFromContext(ctx),
			log.InputKey, record,
		)
	})

	vec, err := schema.Heart.Vector(record)
	if err != nil {
		return Prediction{}, err
	}

	p, err := s.Load(ctx)
	if err != nil {
		return Prediction{}, err
	}

	confidence, err := p.PredictOne(vec)
	if err != nil {
		return Prediction{}, errors.Wrap(err, "predict")
	}

	pred = Prediction{Confidence: confidence, ModelPath: s.path}
	if confidence >= DecisionThreshold {
		pred.Prediction = 1
	}
	s.logPrediction(ctx, vec, pred)
	return pred, nil
}

func (s *Service) logPrediction(ctx context.Context, vec []float64, pred Prediction) {
	s.safeLog("prediction log", func() {
		s.logger.Info("Prediction served",
			log.RequestIDKey, RequestIDFromContext(ctx),
			log.InputKey, schema.Heart.Map(vec),
			log.PredictionKey, pred.Prediction,
			log.ConfidenceKey, pred.Confidence,
			log.ThresholdKey, DecisionThreshold,
		)
	})
}

// safeLog runs fn and drops any panic raised by the log sink.
func (s *Service) safeLog(op string, fn func()) {
	_ = errors.SafeExecute(op, func() error {
		fn()
		return nil
	})
}

type requestIDKey struct{}

// ContextWithRequestID attaches a request id to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored by ContextWithRequestID,
// or an empty string.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
