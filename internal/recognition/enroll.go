package recognition

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/kozaktomas/customer-recognition/internal/facematch"
	"github.com/kozaktomas/customer-recognition/internal/images"
	"github.com/kozaktomas/customer-recognition/internal/logging"
	"github.com/m-mizutani/goerr/v2"
)

// EnrollStatus describes the result of enrolling one folder.
type EnrollStatus string

const (
	EnrollCreated EnrollStatus = "created"
	EnrollExists  EnrollStatus = "exists"   // customer already stored, folder skipped
	EnrollNoFaces EnrollStatus = "no_faces" // no image in the folder had a face
)

// EnrollResult reports what happened to a face-data folder.
type EnrollResult struct {
	CustomerID string
	Status     EnrollStatus
	Images     int // images with a face
	Failed     int // images that could not be read or embedded
}

// PersonFolders lists the sub-directories of a face-data directory in name order.
func PersonFolders(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read face data directory", goerr.V("dir", dir))
	}

	var folders []string
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, filepath.Join(dir, e.Name()))
		}
	}
	return folders, nil
}

// EnrollFolder stores the person photographed in folder as a customer named after it.
// The first face of every image contributes an embedding; the stored representative
// is their mean. Existing customers are left untouched.
func EnrollFolder(ctx context.Context, embedder Embedder, store database.CustomerWriter, folder string, now time.Time) (EnrollResult, error) {
	id := facematch.NormalizeCustomerID(filepath.Base(folder))
	res := EnrollResult{CustomerID: id}
	if id == "" {
		return res, goerr.New("folder name yields an empty customer id", goerr.V("folder", folder))
	}

	existing, err := store.Find(ctx, id)
	if err != nil {
		return res, goerr.Wrap(err, "failed to check customer", goerr.V("customer_id", id))
	}
	if existing != nil {
		res.Status = EnrollExists
		return res, nil
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return res, goerr.Wrap(err, "failed to read folder", goerr.V("folder", folder))
	}

	var embeddings [][]float32
	var faceImages []database.FaceImage
	for _, e := range entries {
		if e.IsDir() || !images.IsImage(e.Name()) {
			continue
		}
		path := filepath.Join(folder, e.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			logging.From(ctx).Warn("failed to read image", "path", path, logging.ErrAttr(err))
			res.Failed++
			continue
		}
		resp, err := embedder.ComputeFaceEmbeddings(ctx, data)
		if err != nil {
			logging.From(ctx).Warn("failed to embed image", "path", path, logging.ErrAttr(err))
			res.Failed++
			continue
		}
		faces := resp.Embeddings()
		if len(faces) == 0 {
			logging.From(ctx).Debug("no face found", "path", path)
			continue
		}

		embeddings = append(embeddings, slices.Clone(faces[0]))
		faceImages = append(faceImages, database.FaceImage{
			ImageID:     uuid.NewString(),
			CaptureDate: now,
			ImagePath:   path,
		})
	}

	if len(embeddings) == 0 {
		res.Status = EnrollNoFaces
		return res, nil
	}

	created, err := store.Upsert(ctx, &database.Customer{
		CustomerID:       id,
		FaceEmbedding:    database.MeanEmbedding(embeddings),
		AllEmbeddings:    embeddings,
		RegistrationDate: now,
		LastSeenDate:     now,
		FaceImages:       faceImages,
	})
	if err != nil {
		return res, goerr.Wrap(err, "failed to store customer", goerr.V("customer_id", id))
	}

	res.Images = len(embeddings)
	res.Status = EnrollCreated
	if !created {
		// registered concurrently between Find and Upsert
		res.Status = EnrollExists
	}
	return res, nil
}
