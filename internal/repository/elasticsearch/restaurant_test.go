package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharmash3/restaurant-review-be/internal/domain"
	"github.com/sharmash3/restaurant-review-be/internal/repository"
	apperrors "github.com/sharmash3/restaurant-review-be/pkg/errors"
)

// fakeES emulates the handful of endpoints the repository calls, including
// if_seq_no/if_primary_term checks.
type fakeES struct {
	mu          sync.Mutex
	indexExists bool
	createdWith string
	docs        map[string]json.RawMessage
	seqNos      map[string]int64
	nextSeq     int64
	lastSearch  map[string]any
	searchHits  []json.RawMessage
}

const primaryTerm = 1

func newFakeES() *fakeES {
	return &fakeES{docs: map[string]json.RawMessage{}, seqNos: map[string]int64{}}
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case r.URL.Path == "/":
		_, _ = w.Write([]byte(`{"version":{"number":"8.13.0"},"tagline":"You Know, for Search"}`))
	case r.Method == http.MethodHead && len(parts) == 1:
		if f.indexExists {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && len(parts) == 1:
		body, _ := io.ReadAll(r.Body)
		f.createdWith = string(body)
		f.indexExists = true
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	case len(parts) == 2 && parts[1] == "_search":
		_ = json.NewDecoder(r.Body).Decode(&f.lastSearch)
		hits := make([]string, 0, len(f.searchHits))
		for _, h := range f.searchHits {
			hits = append(hits, `{"_seq_no":4,"_primary_term":1,"_source":`+string(h)+`}`)
		}
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":42},"hits":[` + strings.Join(hits, ",") + `]}}`))
	case len(parts) == 3 && parts[1] == "_doc":
		f.handleDoc(w, r, parts[2])
	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"unexpected","reason":"` + r.Method + ` ` + r.URL.Path + `"},"status":400}`))
	}
}

func (f *fakeES) handleDoc(w http.ResponseWriter, r *http.Request, id string) {
	q := r.URL.Query()
	doc, exists := f.docs[id]

	switch r.Method {
	case http.MethodGet:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"found":false}`))
			return
		}
		_, _ = w.Write([]byte(`{"found":true,"_seq_no":` + strconv.FormatInt(f.seqNos[id], 10) +
			`,"_primary_term":1,"_source":` + string(doc) + `}`))
	case http.MethodPut, http.MethodPost:
		if q.Get("op_type") == "create" && exists {
			f.conflict(w)
			return
		}
		if raw := q.Get("if_seq_no"); raw != "" {
			seq, _ := strconv.ParseInt(raw, 10, 64)
			if !exists || seq != f.seqNos[id] || q.Get("if_primary_term") != "1" {
				f.conflict(w)
				return
			}
		}
		body, _ := io.ReadAll(r.Body)
		f.docs[id] = body
		f.seqNos[id] = f.nextSeq
		f.nextSeq++
		_, _ = w.Write([]byte(`{"result":"created","_seq_no":` + strconv.FormatInt(f.seqNos[id], 10) + `,"_primary_term":1}`))
	case http.MethodDelete:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"result":"not_found"}`))
			return
		}
		delete(f.docs, id)
		_, _ = w.Write([]byte(`{"result":"deleted"}`))
	}
}

func (f *fakeES) conflict(w http.ResponseWriter) {
	w.WriteHeader(http.StatusConflict)
	_, _ = w.Write([]byte(`{"error":{"type":"version_conflict_engine_exception","reason":"conflict"},"status":409}`))
}

func newTestRepo(t *testing.T) (*RestaurantRepository, *fakeES) {
	t.Helper()
	fake := newFakeES()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	repo, err := NewWithClient(context.Background(), client, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return repo, fake
}

func TestNew_CreatesIndexWithMapping(t *testing.T) {
	repo, fake := newTestRepo(t)
	assert.Equal(t, DefaultIndexName, repo.indexName)
	assert.Contains(t, fake.createdWith, `"geo_point"`)
	assert.JSONEq(t, buildIndexMapping(), fake.createdWith)
}

func version(t *testing.T, primaryTerm, seqNo int64) int64 {
	t.Helper()
	v, err := encodeVersion(primaryTerm, seqNo)
	require.NoError(t, err)
	return v
}

func TestVersionEncoding(t *testing.T) {
	v := version(t, 3, 0)
	assert.NotZero(t, v)
	term, seq := decodeVersion(v)
	assert.Equal(t, int64(3), term)
	assert.Equal(t, int64(0), seq)

	term, seq = decodeVersion(version(t, 1, 123456))
	assert.Equal(t, int64(1), term)
	assert.Equal(t, int64(123456), seq)

	term, seq = decodeVersion(version(t, maxPrimaryTerm, maxSeqNo))
	assert.Equal(t, int64(maxPrimaryTerm), term)
	assert.Equal(t, int64(maxSeqNo), seq)
}

func TestVersionEncoding_RejectsPairsThatDoNotFit(t *testing.T) {
	tests := []struct {
		name        string
		term, seqNo int64
	}{
		{"seq_no past 32 bits", 1, maxSeqNo + 1},
		{"seq_no at 2^32", 1, 1 << 32},
		{"negative seq_no", 1, -1},
		{"term past 31 bits", maxPrimaryTerm + 1, 0},
		{"zero term", 0, 0},
		{"huge seq_no", 1, math.MaxInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := encodeVersion(tt.term, tt.seqNo)
			assert.ErrorIs(t, err, errVersionRange)
		})
	}
}

func TestSequenceNumberPastTokenRange(t *testing.T) {
	ctx := context.Background()
	repo, fake := newTestRepo(t)
	fake.nextSeq = maxSeqNo + 1

	_, err := repo.Save(ctx, &domain.Restaurant{ID: "r-1", Name: "Gymkhana"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errVersionRange)
	assert.NotErrorIs(t, err, repository.ErrVersionConflict)

	_, err = repo.FindByID(ctx, "r-1")
	assert.ErrorIs(t, err, errVersionRange)
}

func TestSave_UndecodableVersionIsConflict(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Save(context.Background(), &domain.Restaurant{ID: "r-1", Version: 1 << 32})
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
}

func TestSaveAndFind_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, fake := newTestRepo(t)

	saved, err := repo.Save(ctx, &domain.Restaurant{
		ID:          "r-1",
		Name:        "St. John",
		GeoLocation: domain.GeoLocation{Latitude: 51.52, Longitude: -0.10},
		Reviews:     []domain.Review{{ID: "rv", Rating: 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, version(t, primaryTerm, 0), saved.Version)

	var stored map[string]any
	require.NoError(t, json.Unmarshal(fake.docs["r-1"], &stored))
	assert.Equal(t, map[string]any{"lat": 51.52, "lon": -0.10}, stored["location"])

	got, err := repo.FindByID(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "St. John", got.Name)
	assert.Equal(t, saved.Version, got.Version)
	require.Len(t, got.Reviews, 1)
}

func TestSave_OptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	first, err := repo.Save(ctx, &domain.Restaurant{ID: "r-1", Name: "v1"})
	require.NoError(t, err)

	_, err = repo.Save(ctx, &domain.Restaurant{ID: "r-1", Name: "second insert"})
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	first.Name = "v2"
	second, err := repo.Save(ctx, first)
	require.NoError(t, err)
	assert.NotEqual(t, first.Version, second.Version)

	first.Name = "stale"
	_, err = repo.Save(ctx, first)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
}

func TestFindByID_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.FindByID(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDeleteByID_MissingIsNotAnError(t *testing.T) {
	ctx := context.Background()
	repo, fake := newTestRepo(t)

	_, err := repo.Save(ctx, &domain.Restaurant{ID: "r-1"})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteByID(ctx, "r-1"))
	assert.Empty(t, fake.docs)
	assert.NoError(t, repo.DeleteByID(ctx, "r-1"))
}

func TestSearchQueries(t *testing.T) {
	ctx := context.Background()
	repo, fake := newTestRepo(t)
	fake.searchHits = []json.RawMessage{json.RawMessage(`{"id":"r-9","name":"Hoppers","average_rating":4.2}`)}
	page := domain.PageRequest{Index: 2, Size: 10}

	t.Run("all", func(t *testing.T) {
		result, err := repo.FindAll(ctx, page)
		require.NoError(t, err)
		assert.Equal(t, 42, result.Total)
		require.Len(t, result.Restaurants, 1)
		assert.Equal(t, "Hoppers", result.Restaurants[0].Name)
		assert.Equal(t, version(t, 1, 4), result.Restaurants[0].Version)

		assert.EqualValues(t, 20, fake.lastSearch["from"])
		assert.EqualValues(t, 10, fake.lastSearch["size"])
		assert.Contains(t, fake.lastSearch["query"], "match_all")
	})

	t.Run("rating floor", func(t *testing.T) {
		_, err := repo.FindByRatingFloor(ctx, 4, page)
		require.NoError(t, err)
		raw, _ := json.Marshal(fake.lastSearch["query"])
		assert.Contains(t, string(raw), `"average_rating":{"gte":4}`)
		assert.NotContains(t, string(raw), "multi_match")
	})

	t.Run("text and rating", func(t *testing.T) {
		_, err := repo.FindByTextAndRatingFloor(ctx, "sri lankan", 3.5, page)
		require.NoError(t, err)
		raw, _ := json.Marshal(fake.lastSearch["query"])
		assert.Contains(t, string(raw), `"query":"sri lankan"`)
		assert.Contains(t, string(raw), `"gte":3.5`)
	})

	t.Run("geo radius", func(t *testing.T) {
		_, err := repo.FindByGeoRadius(ctx, 51.5, -0.12, 2.5, page)
		require.NoError(t, err)
		raw, _ := json.Marshal(fake.lastSearch)
		assert.Contains(t, string(raw), `"distance":"2.5km"`)
		assert.Contains(t, string(raw), `"_geo_distance"`)
		assert.NotContains(t, string(raw), "average_rating")
	})

	t.Run("page past the result window", func(t *testing.T) {
		result, err := repo.FindAll(ctx, domain.PageRequest{Index: math.MaxInt / 10, Size: 20})
		require.NoError(t, err)
		assert.Equal(t, 42, result.Total)
		assert.EqualValues(t, 0, fake.lastSearch["from"])
		assert.EqualValues(t, 0, fake.lastSearch["size"])
	})
}

func TestPing(t *testing.T) {
	repo, _ := newTestRepo(t)
	assert.NoError(t, repo.Ping(context.Background()))
}
