// Package recognition turns captured frames into customer detections: it embeds
// faces, matches them against the known gallery, registers strangers and
// notifies the detection server.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/customer-recognition/internal/cooldown"
	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/kozaktomas/customer-recognition/internal/embedding"
	"github.com/kozaktomas/customer-recognition/internal/facematch"
	"github.com/kozaktomas/customer-recognition/internal/images"
	"github.com/kozaktomas/customer-recognition/internal/logging"
	"github.com/m-mizutani/goerr/v2"
)

const captureTimeLayout = "20060102150405"

// Embedder computes face embeddings for an encoded image.
type Embedder interface {
	ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*embedding.FaceResponse, error)
}

// Notifier tells the detection server a customer was seen.
type Notifier interface {
	Notify(ctx context.Context, customerID string) error
}

// Config locates the directories the recognizer works with.
type Config struct {
	InboxDir   string // frames waiting to be processed
	CaptureDir string // per-customer captures, named <customer_id>_<timestamp><ext>
}

// Outcome describes what happened to a single face.
type Outcome struct {
	CustomerID string
	Distance   float64
	New        bool
	Suppressed bool
	Notified   bool
}

// Recognizer matches faces from inbox frames against the gallery.
type Recognizer struct {
	embedder Embedder
	store    database.CustomerWriter
	gallery  *facematch.Gallery
	gate     *cooldown.Gate
	notifier Notifier
	cfg      Config
	now      func() time.Time

	mu     sync.Mutex
	failed map[string]struct{} // inbox files that could not be processed
}

// New creates a recognizer. notifier may be nil.
func New(embedder Embedder, store database.CustomerWriter, gallery *facematch.Gallery, gate *cooldown.Gate, notifier Notifier, cfg Config) *Recognizer {
	return &Recognizer{
		embedder: embedder,
		store:    store,
		gallery:  gallery,
		gate:     gate,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		failed:   make(map[string]struct{}),
	}
}

// SetClock replaces the clock used for ids, capture names and the cooldown.
func (r *Recognizer) SetClock(now func() time.Time) {
	r.now = now
}

// LoadGallery fills the gallery with the embeddings of every stored customer.
func (r *Recognizer) LoadGallery(ctx context.Context) (int, error) {
	known, err := r.store.ListEmbeddings(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list embeddings")
	}
	r.gallery.Load(known)
	logging.From(ctx).Info("loaded customer embeddings", "count", len(known), "indexed", r.gallery.Indexed())
	return len(known), nil
}

// Run scans the inbox every interval until ctx is done.
func (r *Recognizer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Scan(ctx); err != nil {
			logging.From(ctx).Error("inbox scan failed", logging.ErrAttr(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Scan processes every pending image in the inbox in name order.
// Processed frames are removed; frames that fail are skipped until restart.
func (r *Recognizer) Scan(ctx context.Context) ([]Outcome, error) {
	entries, err := os.ReadDir(r.cfg.InboxDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to read inbox", goerr.V("dir", r.cfg.InboxDir))
	}

	var outcomes []Outcome
	for _, e := range entries {
		if ctx.Err() != nil {
			return outcomes, ctx.Err()
		}
		if e.IsDir() || !images.IsImage(e.Name()) {
			continue
		}
		path := filepath.Join(r.cfg.InboxDir, e.Name())
		if r.hasFailed(path) {
			continue
		}

		out, err := r.ProcessFile(ctx, path)
		if err != nil {
			logging.From(ctx).Warn("failed to process frame", "path", path, logging.ErrAttr(err))
			r.markFailed(path)
			continue
		}
		outcomes = append(outcomes, out...)
		if err := os.Remove(path); err != nil {
			logging.From(ctx).Warn("failed to remove processed frame", "path", path, logging.ErrAttr(err))
			r.markFailed(path)
		}
	}
	return outcomes, nil
}

func (r *Recognizer) hasFailed(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.failed[path]
	return ok
}

func (r *Recognizer) markFailed(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[path] = struct{}{}
}

// ProcessFile reads and processes a single frame.
func (r *Recognizer) ProcessFile(ctx context.Context, path string) ([]Outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read frame", goerr.V("path", path))
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		ext = ".jpg"
	}
	return r.ProcessImage(ctx, data, ext)
}

// ProcessImage embeds every face in the image and handles each one.
func (r *Recognizer) ProcessImage(ctx context.Context, data []byte, ext string) ([]Outcome, error) {
	resp, err := r.embedder.ComputeFaceEmbeddings(ctx, data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to compute embeddings")
	}

	faces := resp.Embeddings()
	outcomes := make([]Outcome, 0, len(faces))
	for _, emb := range faces {
		out, err := r.handleFace(ctx, emb, data, ext)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func (r *Recognizer) handleFace(ctx context.Context, emb []float32, data []byte, ext string) (Outcome, error) {
	now := r.now()
	match := r.gallery.Match(emb)

	if !match.Matched {
		return r.register(ctx, emb, data, ext, now)
	}

	out := Outcome{CustomerID: match.CustomerID, Distance: match.Distance}
	if !r.gate.Allow(match.CustomerID, now) {
		out.Suppressed = true
		return out, nil
	}

	img, err := r.saveCapture(match.CustomerID, data, ext, now)
	if err != nil {
		return out, err
	}
	if err := r.store.AddFaceImage(ctx, match.CustomerID, img); err != nil {
		return out, goerr.Wrap(err, "failed to add face image", goerr.V("customer_id", match.CustomerID))
	}

	out.Notified = r.notify(ctx, match.CustomerID)
	logging.From(ctx).Info("known customer", "customer_id", match.CustomerID, "distance", match.Distance, "notified", out.Notified)
	return out, nil
}

// register stores a stranger as a new customer. Visits are counted by the
// detection server once notified, so the record starts at zero.
func (r *Recognizer) register(ctx context.Context, emb []float32, data []byte, ext string, now time.Time) (Outcome, error) {
	id, err := r.newCustomerID(ctx, now)
	if err != nil {
		return Outcome{}, err
	}

	img, err := r.saveCapture(id, data, ext, now)
	if err != nil {
		return Outcome{}, err
	}

	vec := slices.Clone(emb)
	if _, err := r.store.Upsert(ctx, &database.Customer{
		CustomerID:       id,
		FaceEmbedding:    vec,
		AllEmbeddings:    [][]float32{vec},
		RegistrationDate: now,
		LastSeenDate:     now,
		FaceImages:       []database.FaceImage{img},
	}); err != nil {
		return Outcome{}, goerr.Wrap(err, "failed to register customer", goerr.V("customer_id", id))
	}

	r.gallery.Add(id, vec)
	r.gate.Allow(id, now)

	out := Outcome{CustomerID: id, New: true, Notified: r.notify(ctx, id)}
	logging.From(ctx).Info("registered new customer", "customer_id", id, "notified", out.Notified)
	return out, nil
}

// newCustomerID returns C<unix seconds>, suffixed when that id is already taken.
func (r *Recognizer) newCustomerID(ctx context.Context, now time.Time) (string, error) {
	base := fmt.Sprintf("C%d", now.Unix())
	id := base
	for i := 2; ; i++ {
		existing, err := r.store.Find(ctx, id)
		if err != nil {
			return "", goerr.Wrap(err, "failed to check customer id", goerr.V("customer_id", id))
		}
		if existing == nil {
			return id, nil
		}
		id = fmt.Sprintf("%s-%d", base, i)
	}
}

func (r *Recognizer) saveCapture(customerID string, data []byte, ext string, now time.Time) (database.FaceImage, error) {
	if err := os.MkdirAll(r.cfg.CaptureDir, 0o755); err != nil {
		return database.FaceImage{}, goerr.Wrap(err, "failed to create capture directory", goerr.V("dir", r.cfg.CaptureDir))
	}

	path := filepath.Join(r.cfg.CaptureDir, customerID+"_"+now.Format(captureTimeLayout)+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return database.FaceImage{}, goerr.Wrap(err, "failed to save capture", goerr.V("path", path))
	}

	return database.FaceImage{
		ImageID:     uuid.NewString(),
		CaptureDate: now,
		ImagePath:   path,
	}, nil
}

func (r *Recognizer) notify(ctx context.Context, customerID string) bool {
	if r.notifier == nil {
		return false
	}
	if err := r.notifier.Notify(ctx, customerID); err != nil {
		if errors.Is(err, ErrNotifierPaused) {
			logging.From(ctx).Debug("notification skipped", "customer_id", customerID)
		} else {
			logging.From(ctx).Warn("failed to notify detection server", "customer_id", customerID, logging.ErrAttr(err))
		}
		return false
	}
	return true
}
