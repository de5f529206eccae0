package prediction

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/constants"
	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/kozaktomas/customer-recognition/internal/logging"
	"github.com/m-mizutani/goerr/v2"
)

// ErrInvalidAmount is returned for negative or non-finite bill amounts.
var ErrInvalidAmount = goerr.New("bill amount must be a finite non-negative number")

// Store is the part of the customer store the engine needs.
type Store interface {
	PurchaseHistories(ctx context.Context) (map[string][]database.Purchase, error)
	RecordPurchase(ctx context.Context, customerID string, p database.Purchase) (*database.Customer, error)
}

// Engine owns the purchase histories and the trained model.
type Engine struct {
	store     Store
	artifacts ArtifactStore

	updateMu sync.Mutex // serializes purchase updates end to end

	mu        sync.RWMutex
	histories map[string][]database.Purchase
	model     Model // nil until Load or Train
	samples   int
	trainedAt time.Time

	jitter func() float64 // uniform in [-1, 1]
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithJitter replaces the random source used for prediction noise.
// fn must return values in [-1, 1].
func WithJitter(fn func() float64) Option {
	return func(e *Engine) { e.jitter = fn }
}

// WithClock replaces the clock used to date purchases and trainings.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

// NewEngine creates an engine. artifacts may be nil to skip persistence.
func NewEngine(store Store, artifacts ArtifactStore, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		artifacts: artifacts,
		histories: make(map[string][]database.Purchase),
		jitter:    func() float64 { return rand.Float64()*2 - 1 },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load reads purchase histories from the store and the model artifact.
// When no usable artifact exists the model is trained from the histories.
func (e *Engine) Load(ctx context.Context) error {
	histories, err := e.store.PurchaseHistories(ctx)
	if err != nil {
		return goerr.Wrap(err, "load purchase histories")
	}

	e.mu.Lock()
	e.histories = histories
	e.mu.Unlock()

	if e.artifacts != nil {
		a, err := e.artifacts.Load(ctx)
		if err == nil {
			m, convErr := a.ToModel()
			if convErr == nil {
				e.mu.Lock()
				e.model, e.samples, e.trainedAt = m, a.Samples, a.TrainedAt
				e.mu.Unlock()
				logging.From(ctx).Info("model loaded", "type", m.Kind(), "samples", a.Samples)
				return nil
			}
			err = convErr
		}
		if !errors.Is(err, ErrArtifactNotFound) {
			logging.From(ctx).Warn("model artifact unusable, retraining", logging.ErrAttr(err))
		}
	}

	e.Train(ctx)
	return nil
}

// Train fits a model on the current histories, installs it and persists it.
// It never fails; persistence errors are logged.
func (e *Engine) Train(ctx context.Context) Model {
	e.mu.Lock()
	m := e.trainLocked()
	a := NewArtifact(m, e.samples, e.trainedAt)
	e.mu.Unlock()

	e.saveArtifact(ctx, a)
	return m
}

func (e *Engine) trainLocked() Model {
	m, samples := Fit(e.histories)
	e.model, e.samples, e.trainedAt = m, samples, e.now()
	return m
}

func (e *Engine) saveArtifact(ctx context.Context, a Artifact) {
	if e.artifacts == nil {
		return
	}
	if err := e.artifacts.Save(ctx, a); err != nil {
		logging.From(ctx).Error("failed to save model artifact", logging.ErrAttr(err))
	}
}

// Predict returns the expected next bill of a customer. It never fails and
// always returns a finite non-negative amount.
func (e *Engine) Predict(customerID string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.model == nil {
		return constants.DefaultBill
	}

	history := e.histories[customerID]
	switch m := e.model.(type) {
	case SimpleModel:
		if len(history) == 0 {
			return sanitize(m.AvgBill * (1 + constants.UnknownJitter*e.jitter()))
		}
		last := history[len(history)-1].Amount
		avg := database.AverageBill(history)
		base := constants.SimpleLastWeight*last + constants.SimpleAvgWeight*avg
		return sanitize(base * (1 + constants.KnownJitter*e.jitter()))
	case RegressionModel:
		if len(history) == 0 {
			return constants.DefaultBill
		}
		last := history[len(history)-1].Amount
		return sanitize(m.Slope*last + m.Intercept)
	default:
		return constants.DefaultBill
	}
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return constants.DefaultBill
	}
	if v < 0 {
		return 0
	}
	return v
}

// UpdateWithNewPurchase records a purchase dated now and retrains.
func (e *Engine) UpdateWithNewPurchase(ctx context.Context, customerID string, amount float64) (bool, error) {
	return e.UpdateWithPurchase(ctx, customerID, database.Purchase{Amount: amount})
}

// UpdateWithPurchase appends p to the customer's history in the store, creating
// the customer when needed, then reloads every history from the store and
// retrains synchronously. Updates are serialized. A store write failure returns
// false and leaves the engine untouched; a failed reload only patches the
// customer's own history.
func (e *Engine) UpdateWithPurchase(ctx context.Context, customerID string, p database.Purchase) (bool, error) {
	if customerID == "" {
		return false, goerr.New("customer id is required")
	}
	if math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) || p.Amount < 0 {
		return false, goerr.Wrap(ErrInvalidAmount, "update purchase", goerr.V("amount", p.Amount))
	}
	if p.Date.IsZero() {
		p.Date = e.now()
	}

	e.updateMu.Lock()
	defer e.updateMu.Unlock()

	customer, err := e.store.RecordPurchase(ctx, customerID, p)
	if err != nil {
		return false, goerr.Wrap(err, "record purchase", goerr.V("customer_id", customerID))
	}

	histories, err := e.store.PurchaseHistories(ctx)
	if err != nil {
		logging.From(ctx).Warn("failed to reload purchase histories, retraining on cached data",
			"customer_id", customerID, logging.ErrAttr(err))
		histories = nil
	}

	e.mu.Lock()
	switch {
	case histories != nil:
		e.histories = histories
	case customer != nil:
		e.histories[customerID] = append([]database.Purchase(nil), customer.Purchases...)
	default:
		e.histories[customerID] = append(e.histories[customerID], p)
	}
	m := e.trainLocked()
	a := NewArtifact(m, e.samples, e.trainedAt)
	e.mu.Unlock()

	logging.From(ctx).Info("model retrained",
		"customer_id", customerID, "amount", p.Amount, "type", m.Kind(), "samples", a.Samples)
	e.saveArtifact(ctx, a)
	return true, nil
}

// Model returns the current model, nil before Load or Train.
func (e *Engine) Model() Model {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model
}

// ModelInfo describes the current model for display.
func (e *Engine) ModelInfo() (Artifact, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.model == nil {
		return Artifact{}, false
	}
	return NewArtifact(e.model, e.samples, e.trainedAt), true
}

// History returns a copy of the customer's purchases ordered by date.
func (e *Engine) History(customerID string) []database.Purchase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]database.Purchase(nil), e.histories[customerID]...)
}

// CustomerIDs returns the ids of customers with purchase history, sorted.
func (e *Engine) CustomerIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.histories))
	for id, h := range e.histories {
		if len(h) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
