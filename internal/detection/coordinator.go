package detection

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/cooldown"
	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/kozaktomas/customer-recognition/internal/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Status is the synchronous outcome of HandleDetection.
type Status string

const (
	StatusAccepted   Status = "accepted"   // admitted and queued
	StatusSuppressed Status = "suppressed" // inside the cooldown window
	StatusDropped    Status = "dropped"    // admitted but the queue was full or stopped
)

// Result is returned to the caller before any processing happens.
type Result struct {
	CustomerID string
	Status     Status
}

// ImageResolver publishes the customer's latest captured image and returns its URL.
type ImageResolver interface {
	Resolve(ctx context.Context, customerID string) (string, error)
}

// Predictor forecasts a customer's next bill.
type Predictor interface {
	Predict(customerID string) float64
}

// Store is the part of the customer store the coordinator writes to.
type Store interface {
	Find(ctx context.Context, customerID string) (*database.Customer, error)
	Upsert(ctx context.Context, c *database.Customer) (bool, error)
	IncrementVisit(ctx context.Context, customerID string, seenAt time.Time) (int, error)
}

// Config sizes the worker pool.
type Config struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

type task struct {
	customerID string
	at         time.Time
}

// Coordinator admits detections through the cooldown gate and processes them
// on a bounded worker pool: store update, image, prediction, cache publish.
type Coordinator struct {
	gate      *cooldown.Gate
	store     Store
	images    ImageResolver
	predictor Predictor
	cache     *Cache

	cfg   Config
	tasks chan task
	now   func() time.Time

	mu      sync.RWMutex // guards stopped against sends on a closed queue
	stopped bool
	wg      sync.WaitGroup
}

// NewCoordinator wires the pipeline. images may be nil.
func NewCoordinator(gate *cooldown.Gate, store Store, images ImageResolver, predictor Predictor, cache *Cache, cfg Config) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 10 * time.Second
	}
	return &Coordinator{
		gate:      gate,
		store:     store,
		images:    images,
		predictor: predictor,
		cache:     cache,
		cfg:       cfg,
		tasks:     make(chan task, cfg.QueueSize),
		now:       time.Now,
	}
}

// SetClock replaces the clock. Must be called before Start.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// Start launches the workers. Queued tasks keep running after ctx is cancelled
// until Stop drains them; ctx only carries the logger.
func (c *Coordinator) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for i := range c.cfg.Workers {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			logger := logging.From(base).With("worker", i)
			wctx := logging.With(base, logger)
			for t := range c.tasks {
				c.process(wctx, t)
			}
		}()
	}
}

// Stop closes the queue and waits for the workers to drain it or ctx to expire.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.stopped {
		c.stopped = true
		close(c.tasks)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "detection workers did not drain")
	}
}

// HandleDetection records the detection in the cooldown gate and queues it.
// It never blocks on I/O.
func (c *Coordinator) HandleDetection(ctx context.Context, customerID string) Result {
	now := c.now()
	if !c.gate.Allow(customerID, now) {
		logging.From(ctx).Debug("detection suppressed", "customer_id", customerID)
		return Result{CustomerID: customerID, Status: StatusSuppressed}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		logging.From(ctx).Warn("detection dropped, coordinator stopped", "customer_id", customerID)
		return Result{CustomerID: customerID, Status: StatusDropped}
	}

	select {
	case c.tasks <- task{customerID: customerID, at: now}:
		return Result{CustomerID: customerID, Status: StatusAccepted}
	default:
		logging.From(ctx).Warn("detection dropped, queue full", "customer_id", customerID, "queue", cap(c.tasks))
		return Result{CustomerID: customerID, Status: StatusDropped}
	}
}

func (c *Coordinator) process(ctx context.Context, t task) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TaskTimeout)
	defer cancel()
	logger := logging.From(ctx).With("customer_id", t.customerID)

	visits, err := c.recordVisit(ctx, t)
	if err != nil {
		logger.Error("failed to record visit", logging.ErrAttr(err))
		return
	}

	var imageURL string
	if c.images != nil {
		imageURL, err = c.images.Resolve(ctx, t.customerID)
		if err != nil {
			logger.Warn("failed to resolve captured image", logging.ErrAttr(err))
			imageURL = ""
		}
	}

	predicted := c.predictor.Predict(t.customerID)
	c.cache.Publish(NewEvent(t.customerID, t.at, predicted, imageURL, visits))
	logger.Info("customer detected", "visit_count", visits, "predicted_bill", predicted)
}

// recordVisit creates the customer on first sight or counts one more visit.
// Returns the visit count after the update.
func (c *Coordinator) recordVisit(ctx context.Context, t task) (int, error) {
	existing, err := c.store.Find(ctx, t.customerID)
	if err != nil {
		return 0, goerr.Wrap(err, "find customer")
	}

	if existing == nil {
		created, err := c.store.Upsert(ctx, &database.Customer{
			CustomerID:       t.customerID,
			VisitCount:       1,
			RegistrationDate: t.at,
			LastSeenDate:     t.at,
		})
		if err != nil {
			return 0, goerr.Wrap(err, "create customer")
		}
		if created {
			return 1, nil
		}
		// created concurrently by a bill update
	}

	visits, err := c.store.IncrementVisit(ctx, t.customerID, t.at)
	if err != nil {
		return 0, goerr.Wrap(err, "increment visit")
	}
	return visits, nil
}
