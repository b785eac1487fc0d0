package hyphal

import (
	"bytes"
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/internal/store"
	"github.com/hyphalmesh/substrate/pkg/models"
)

// fakeMemoryStore is tenant-scoped: Search and Get only ever return rows
// whose TenantID matches the requested tenant, mirroring the fail-closed
// isolation every store implementation must provide.
type fakeMemoryStore struct {
	byTenant map[string][]models.Memory
}

func newFakeMemoryStore() *fakeMemoryStore {
	return &fakeMemoryStore{byTenant: map[string][]models.Memory{}}
}

func (f *fakeMemoryStore) Store(_ context.Context, m models.Memory) error {
	f.byTenant[m.TenantID] = append(f.byTenant[m.TenantID], m)
	return nil
}

func (f *fakeMemoryStore) Get(_ context.Context, tenantID, id string) (*models.Memory, error) {
	for _, m := range f.byTenant[tenantID] {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, nil
}

func (f *fakeMemoryStore) Search(_ context.Context, tenantID string, embedding []float32, limit int, filters store.MemoryFilters) ([]store.MemoryHit, error) {
	var hits []store.MemoryHit
	for _, m := range f.byTenant[tenantID] {
		if m.Quality < filters.MinQuality {
			continue
		}
		hits = append(hits, store.MemoryHit{Memory: m, Similarity: cosine(embedding, m.Embedding)})
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeMemoryStore) UpdateQuality(_ context.Context, tenantID, id string, quality float64) error {
	for i, m := range f.byTenant[tenantID] {
		if m.ID == id {
			f.byTenant[tenantID][i].Quality = quality
		}
	}
	return nil
}

func (f *fakeMemoryStore) IncrementAccessed(_ context.Context, tenantID, id string) error {
	for i, m := range f.byTenant[tenantID] {
		if m.ID == id {
			f.byTenant[tenantID][i].AccessedCount++
		}
	}
	return nil
}

func (f *fakeMemoryStore) Delete(_ context.Context, tenantID, id string) error {
	kept := f.byTenant[tenantID][:0]
	for _, m := range f.byTenant[tenantID] {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	f.byTenant[tenantID] = kept
	return nil
}

func (f *fakeMemoryStore) SweepExpired(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na*na + nb*nb) // cheap proxy, monotone enough for test ordering
}

func embeddingOf(seed float32) []float32 {
	v := make([]float32, models.EmbeddingDim)
	v[0] = seed
	v[1] = 1
	return v
}

func TestStoreRejectsBadEmbeddingDim(t *testing.T) {
	svc := New(DefaultConfig(), newFakeMemoryStore(), nil, nil, nil, zap.NewNop())
	_, err := svc.Store(context.Background(), "t1", StoreInput{
		Kind:        models.MemoryInsight,
		Embedding:   []float32{0.1, 0.2},
		Quality:     0.5,
		Sensitivity: models.SensitivityPublic,
	})
	if core.CodeOf(err) != core.CodeInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestStoreRejectsOutOfRangeQuality(t *testing.T) {
	svc := New(DefaultConfig(), newFakeMemoryStore(), nil, nil, nil, zap.NewNop())
	for _, q := range []float64{-0.01, 1.01} {
		_, err := svc.Store(context.Background(), "t1", StoreInput{
			Kind:        models.MemoryInsight,
			Embedding:   embeddingOf(0.1),
			Quality:     q,
			Sensitivity: models.SensitivityPublic,
		})
		if core.CodeOf(err) != core.CodeInvalidArgument {
			t.Errorf("quality %f: expected InvalidArgument, got %v", q, err)
		}
	}
}

func TestStoreRejectsUnknownSensitivity(t *testing.T) {
	svc := New(DefaultConfig(), newFakeMemoryStore(), nil, nil, nil, zap.NewNop())
	_, err := svc.Store(context.Background(), "t1", StoreInput{
		Kind:        models.MemoryInsight,
		Embedding:   embeddingOf(0.1),
		Quality:     0.5,
		Sensitivity: "top-secret",
	})
	if core.CodeOf(err) != core.CodeInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestStoreThenSearchRoundTrips(t *testing.T) {
	ms := newFakeMemoryStore()
	svc := New(DefaultConfig(), ms, nil, nil, nil, zap.NewNop())

	id, err := svc.Store(context.Background(), "t1", StoreInput{
		Kind:        models.MemoryInsight,
		Embedding:   embeddingOf(0.9),
		Quality:     0.7,
		Sensitivity: models.SensitivityPublic,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hits, err := svc.Search(context.Background(), "t1", SearchInput{
		Embedding:          embeddingOf(0.9),
		TopK:               1,
		SensitivityCeiling: models.SensitivityConfidential,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Memory.ID != id {
		t.Fatalf("expected to find the stored memory, got %+v", hits)
	}
}

// TestSearchTenantIsolation mirrors S6: a search scoped to tenant t1 must
// never surface a memory stored under tenant t2, even with an identical
// embedding.
func TestSearchTenantIsolation(t *testing.T) {
	ms := newFakeMemoryStore()
	svc := New(DefaultConfig(), ms, nil, nil, nil, zap.NewNop())

	if _, err := svc.Store(context.Background(), "t2", StoreInput{
		Kind:        models.MemoryInsight,
		Embedding:   embeddingOf(0.9),
		Quality:     0.9,
		Sensitivity: models.SensitivityPublic,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hits, err := svc.Search(context.Background(), "t1", SearchInput{
		Embedding: embeddingOf(0.9),
		TopK:      5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected zero cross-tenant hits, got %d", len(hits))
	}
}

func TestSearchReturnsNilForNonPositiveTopK(t *testing.T) {
	svc := New(DefaultConfig(), newFakeMemoryStore(), nil, nil, nil, zap.NewNop())
	hits, err := svc.Search(context.Background(), "t1", SearchInput{Embedding: embeddingOf(0.1), TopK: 0})
	if err != nil || hits != nil {
		t.Fatalf("expected (nil, nil) for top_k<=0, got (%v, %v)", hits, err)
	}
}

func TestDeleteRemovesMemory(t *testing.T) {
	ms := newFakeMemoryStore()
	svc := New(DefaultConfig(), ms, nil, nil, nil, zap.NewNop())

	id, err := svc.Store(context.Background(), "t1", StoreInput{
		Kind:        models.MemoryInsight,
		Embedding:   embeddingOf(0.4),
		Quality:     0.5,
		Sensitivity: models.SensitivityPublic,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Delete(context.Background(), "t1", id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, _ := ms.Get(context.Background(), "t1", id)
	if m != nil {
		t.Fatalf("expected memory to be deleted, found %+v", m)
	}
}

// TestStoreRefusesConfidentialContentWithoutMasterSecret mirrors spec.md
// §4.5: sensitivity >= confidential must never be persisted in plaintext,
// so a Service with no masterSecret must fail closed rather than fall back
// to storing the raw content.
func TestStoreRefusesConfidentialContentWithoutMasterSecret(t *testing.T) {
	svc := New(DefaultConfig(), newFakeMemoryStore(), nil, nil, nil, zap.NewNop())
	_, err := svc.Store(context.Background(), "t1", StoreInput{
		Kind:        models.MemoryInsight,
		Embedding:   embeddingOf(0.1),
		Quality:     0.5,
		Content:     []byte("the launch codes"),
		Sensitivity: models.SensitivityConfidential,
	})
	if core.CodeOf(err) != core.CodeUnavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

// TestStoreEncryptsConfidentialContentAndSearchDecryptsIt verifies the
// full envelope-encryption round trip: the byte stream the store actually
// persists must not contain the plaintext, and Search must hand the
// caller back the original plaintext.
func TestStoreEncryptsConfidentialContentAndSearchDecryptsIt(t *testing.T) {
	ms := newFakeMemoryStore()
	masterSecret := []byte("a-32-byte-ish-master-secret-val")
	svc := New(DefaultConfig(), ms, masterSecret, nil, nil, zap.NewNop())

	plaintext := []byte("the launch codes are 00000000")
	id, err := svc.Store(context.Background(), "t1", StoreInput{
		Kind:        models.MemoryInsight,
		Embedding:   embeddingOf(0.5),
		Quality:     0.8,
		Content:     plaintext,
		Sensitivity: models.SensitivitySecret,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := ms.Get(context.Background(), "t1", id)
	if err != nil || stored == nil {
		t.Fatalf("expected to find stored memory, got %v, %v", stored, err)
	}
	if bytes.Contains(stored.Content, plaintext) {
		t.Fatalf("expected content at rest to be sealed, found plaintext in %q", stored.Content)
	}

	hits, err := svc.Search(context.Background(), "t1", SearchInput{
		Embedding:          embeddingOf(0.5),
		TopK:               1,
		SensitivityCeiling: models.SensitivitySecret,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected one hit, got %d", len(hits))
	}
	if !bytes.Equal(hits[0].Memory.Content, plaintext) {
		t.Fatalf("expected decrypted content %q, got %q", plaintext, hits[0].Memory.Content)
	}
}
