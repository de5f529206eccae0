package recognition

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/kozaktomas/customer-recognition/internal/database/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestPersonFolders(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, filepath.Join(dir, "Bob"), nil)
	writeFiles(t, filepath.Join(dir, "Alice"), nil)
	writeFiles(t, dir, map[string]string{"notes.txt": "x"})

	folders, err := PersonFolders(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "Alice"), filepath.Join(dir, "Bob")}, folders)

	_, err = PersonFolders(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestEnrollFolder_Created(t *testing.T) {
	ctx := context.Background()
	store := mock.NewMockCustomerStore()
	folder := filepath.Join(t.TempDir(), "Jiří Novák")
	writeFiles(t, folder, map[string]string{
		"a.jpg":     "face-a",
		"b.png":     "face-b",
		"c.jpg":     "empty",
		"readme.md": "face-a",
	})
	emb := fakeEmbedder{faces: map[string][][]float32{
		"face-a": {{1, 0}, {9, 9}},
		"face-b": {{3, 2}},
	}}

	res, err := EnrollFolder(ctx, emb, store, folder, t0)
	require.NoError(t, err)
	assert.Equal(t, EnrollResult{CustomerID: "Jiri-Novak", Status: EnrollCreated, Images: 2}, res)

	c, err := store.Find(ctx, "Jiri-Novak")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, [][]float32{{1, 0}, {3, 2}}, c.AllEmbeddings, "first face of every image")
	assert.Equal(t, []float32{2, 1}, c.FaceEmbedding)
	assert.Zero(t, c.VisitCount)
	require.Len(t, c.FaceImages, 2)
	assert.Equal(t, filepath.Join(folder, "a.jpg"), c.FaceImages[0].ImagePath)
	assert.NotEmpty(t, c.FaceImages[0].ImageID)
}

func TestEnrollFolder_SkipsExisting(t *testing.T) {
	store := mock.NewMockCustomerStore()
	store.AddCustomer(database.Customer{CustomerID: "C100001", VisitCount: 3})
	folder := filepath.Join(t.TempDir(), "C100001")
	writeFiles(t, folder, map[string]string{"a.jpg": "face-a"})
	emb := fakeEmbedder{faces: map[string][][]float32{"face-a": {{1, 0}}}}

	res, err := EnrollFolder(context.Background(), emb, store, folder, t0)
	require.NoError(t, err)
	assert.Equal(t, EnrollExists, res.Status)

	c, err := store.Find(context.Background(), "C100001")
	require.NoError(t, err)
	assert.Empty(t, c.AllEmbeddings)
	assert.Equal(t, 3, c.VisitCount)
}

func TestEnrollFolder_NoFaces(t *testing.T) {
	store := mock.NewMockCustomerStore()
	folder := filepath.Join(t.TempDir(), "Nobody")
	writeFiles(t, folder, map[string]string{"a.jpg": "empty", "b.jpg": "broken"})
	emb := fakeEmbedder{err: errors.New("embedding server down")}

	res, err := EnrollFolder(context.Background(), emb, store, folder, t0)
	require.NoError(t, err)
	assert.Equal(t, EnrollNoFaces, res.Status)
	assert.Equal(t, 2, res.Failed)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEnrollFolder_StoreFailure(t *testing.T) {
	store := mock.NewMockCustomerStore()
	store.UpsertError = errors.New("db down")
	folder := filepath.Join(t.TempDir(), "Alice")
	writeFiles(t, folder, map[string]string{"a.jpg": "face-a"})
	emb := fakeEmbedder{faces: map[string][][]float32{"face-a": {{1, 0}}}}

	_, err := EnrollFolder(context.Background(), emb, store, folder, t0)
	assert.Error(t, err)
}
