package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/sharmash3/restaurant-review-be/internal/domain"
	"github.com/sharmash3/restaurant-review-be/internal/repository"
	"github.com/sharmash3/restaurant-review-be/pkg/database"
	apperrors "github.com/sharmash3/restaurant-review-be/pkg/errors"
)

// RestaurantRepository stores aggregates as Elasticsearch documents keyed by
// restaurant id. Version packs the document's _primary_term and _seq_no so
// saves can use if_primary_term/if_seq_no.
type RestaurantRepository struct {
	client    *elasticsearch.Client
	indexName string
	logger    *slog.Logger
}

var _ repository.RestaurantRepository = (*RestaurantRepository)(nil)

// document is the stored shape: the aggregate plus a geo_point for distance queries.
type document struct {
	domain.Restaurant
	Location geoPoint `json:"location"`
}

type geoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type esGetResponse struct {
	Found       bool     `json:"found"`
	SeqNo       int64    `json:"_seq_no"`
	PrimaryTerm int64    `json:"_primary_term"`
	Source      document `json:"_source"`
}

type esIndexResponse struct {
	SeqNo       int64 `json:"_seq_no"`
	PrimaryTerm int64 `json:"_primary_term"`
}

type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			SeqNo       int64    `json:"_seq_no"`
			PrimaryTerm int64    `json:"_primary_term"`
			Source      document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New connects to esURL and creates the index if it does not exist.
func New(ctx context.Context, esURL, indexName string, logger *slog.Logger) (*RestaurantRepository, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{esURL}})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}
	return NewWithClient(ctx, client, indexName, logger)
}

// NewWithClient uses an existing client and ensures the index exists.
func NewWithClient(ctx context.Context, client *elasticsearch.Client, indexName string, logger *slog.Logger) (*RestaurantRepository, error) {
	if indexName == "" {
		indexName = DefaultIndexName
	}
	r := &RestaurantRepository{client: client, indexName: indexName, logger: logger}
	if err := r.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("elasticsearch: ensure index: %w", err)
	}
	return r, nil
}

// Bounds of the concurrency pair that fit one token: seqNo+1 takes the low 32
// bits and the primary term the remaining 31.
const (
	maxSeqNo       = 1<<32 - 2
	maxPrimaryTerm = 1<<31 - 1
)

var errVersionRange = errors.New("concurrency pair does not fit the version token")

// encodeVersion packs a document's concurrency pair into one token. Zero is
// reserved for aggregates that were never stored.
func encodeVersion(primaryTerm, seqNo int64) (int64, error) {
	if seqNo < 0 || seqNo > maxSeqNo || primaryTerm < 1 || primaryTerm > maxPrimaryTerm {
		return 0, fmt.Errorf("%w: _primary_term %d, _seq_no %d", errVersionRange, primaryTerm, seqNo)
	}
	return primaryTerm<<32 | (seqNo + 1), nil
}

func decodeVersion(v int64) (primaryTerm, seqNo int64) {
	return v >> 32, (v & 0xffffffff) - 1
}

func (r *RestaurantRepository) ensureIndex(ctx context.Context) error {
	res, err := r.client.Indices.Exists([]string{r.indexName}, r.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	_ = res.Body.Close()

	if res.StatusCode == http.StatusOK {
		r.logger.Info("elasticsearch index already exists", slog.String("index", r.indexName))
		return nil
	}

	res, err = r.client.Indices.Create(
		r.indexName,
		r.client.Indices.Create.WithBody(strings.NewReader(buildIndexMapping())),
		r.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("create index", res)
	}

	r.logger.Info("elasticsearch index created", slog.String("index", r.indexName))
	return nil
}

// FindByID loads one aggregate.
func (r *RestaurantRepository) FindByID(ctx context.Context, id string) (_ *domain.Restaurant, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemElasticsearch, "FindRestaurant", r.indexName)
	defer func() { end(err) }()

	res, err := r.client.Get(r.indexName, id, r.client.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch get: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFound("restaurant", id)
	}
	if res.IsError() {
		return nil, responseError("elasticsearch get", res)
	}

	var got esGetResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		return nil, fmt.Errorf("elasticsearch get: decode response: %w", err)
	}
	if !got.Found {
		return nil, apperrors.NotFound("restaurant", id)
	}

	restaurant := got.Source.Restaurant
	if restaurant.Version, err = encodeVersion(got.PrimaryTerm, got.SeqNo); err != nil {
		return nil, fmt.Errorf("elasticsearch get %s: %w", id, err)
	}
	return &restaurant, nil
}

// Save creates the document when Version is 0, otherwise replaces it only if
// it has not been written since it was read.
func (r *RestaurantRepository) Save(ctx context.Context, restaurant *domain.Restaurant) (_ *domain.Restaurant, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemElasticsearch, "SaveRestaurant", r.indexName)
	defer func() { end(err) }()

	next := restaurant.Clone()
	next.Version = 0
	data, err := json.Marshal(document{
		Restaurant: *next,
		Location:   geoPoint{Lat: next.GeoLocation.Latitude, Lon: next.GeoLocation.Longitude},
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch index: marshal restaurant: %w", err)
	}

	opts := []func(*esapi.IndexRequest){
		r.client.Index.WithDocumentID(restaurant.ID),
		r.client.Index.WithRefresh("wait_for"),
		r.client.Index.WithContext(ctx),
	}
	if restaurant.Version == 0 {
		opts = append(opts, r.client.Index.WithOpType("create"))
	} else {
		term, seq := decodeVersion(restaurant.Version)
		if seq < 0 || term < 1 {
			return nil, repository.ErrVersionConflict
		}
		opts = append(opts, r.client.Index.WithIfPrimaryTerm(int(term)), r.client.Index.WithIfSeqNo(int(seq)))
	}

	res, err := r.client.Index(r.indexName, bytes.NewReader(data), opts...)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusConflict {
		return nil, repository.ErrVersionConflict
	}
	if res.IsError() {
		return nil, responseError("elasticsearch index", res)
	}

	var indexed esIndexResponse
	if err := json.NewDecoder(res.Body).Decode(&indexed); err != nil {
		return nil, fmt.Errorf("elasticsearch index: decode response: %w", err)
	}
	if next.Version, err = encodeVersion(indexed.PrimaryTerm, indexed.SeqNo); err != nil {
		return nil, fmt.Errorf("elasticsearch index %s: %w", next.ID, err)
	}

	r.logger.DebugContext(ctx, "indexed restaurant", slog.String("id", next.ID), slog.Int64("version", next.Version))
	return next, nil
}

// DeleteByID removes the document. A 404 counts as success.
func (r *RestaurantRepository) DeleteByID(ctx context.Context, id string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemElasticsearch, "DeleteRestaurant", r.indexName)
	defer func() { end(err) }()

	res, err := r.client.Delete(r.indexName, id,
		r.client.Delete.WithRefresh("wait_for"),
		r.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("elasticsearch delete", res)
	}
	return nil
}

// FindAll pages over all restaurants, oldest first.
func (r *RestaurantRepository) FindAll(ctx context.Context, page domain.PageRequest) (*domain.RestaurantPage, error) {
	return r.search(ctx, "FindAllRestaurants", map[string]any{"match_all": map[string]any{}}, creationOrder(), page)
}

// FindByRatingFloor pages over restaurants rated at least min.
func (r *RestaurantRepository) FindByRatingFloor(ctx context.Context, min float64, page domain.PageRequest) (*domain.RestaurantPage, error) {
	query := map[string]any{
		"bool": map[string]any{"filter": []any{ratingFloor(min)}},
	}
	return r.search(ctx, "FindRestaurantsByRating", query, creationOrder(), page)
}

// FindByTextAndRatingFloor runs a fuzzy match over name, cuisine and city,
// best match first.
func (r *RestaurantRepository) FindByTextAndRatingFloor(ctx context.Context, text string, min float64, page domain.PageRequest) (*domain.RestaurantPage, error) {
	query := map[string]any{
		"bool": map[string]any{
			"must": []any{map[string]any{
				"multi_match": map[string]any{
					"query":         text,
					"fields":        []string{"name^3", "cuisine_type^2", "address.city"},
					"type":          "best_fields",
					"fuzziness":     "AUTO",
					"prefix_length": 1,
				},
			}},
			"filter": []any{ratingFloor(min)},
		},
	}
	sort := []any{
		map[string]any{"_score": "desc"},
		map[string]any{"id": "asc"},
	}
	return r.search(ctx, "FindRestaurantsByText", query, sort, page)
}

// FindByGeoRadius pages over restaurants within radiusKm, nearest first.
func (r *RestaurantRepository) FindByGeoRadius(ctx context.Context, lat, lon, radiusKm float64, page domain.PageRequest) (*domain.RestaurantPage, error) {
	point := geoPoint{Lat: lat, Lon: lon}
	query := map[string]any{
		"bool": map[string]any{
			"filter": []any{map[string]any{
				"geo_distance": map[string]any{
					"distance": fmt.Sprintf("%gkm", radiusKm),
					"location": point,
				},
			}},
		},
	}
	sort := []any{
		map[string]any{"_geo_distance": map[string]any{"location": point, "order": "asc", "unit": "km"}},
		map[string]any{"id": "asc"},
	}
	return r.search(ctx, "FindRestaurantsByGeo", query, sort, page)
}

// Ping checks whether the cluster is reachable.
func (r *RestaurantRepository) Ping(ctx context.Context) error {
	res, err := r.client.Ping(r.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// DeleteIndex drops the index. A missing index counts as success.
func (r *RestaurantRepository) DeleteIndex(ctx context.Context) error {
	res, err := r.client.Indices.Delete([]string{r.indexName}, r.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("elasticsearch delete index", res)
	}
	return nil
}

func ratingFloor(min float64) map[string]any {
	return map[string]any{"range": map[string]any{"average_rating": map[string]any{"gte": min}}}
}

func creationOrder() []any {
	return []any{
		map[string]any{"created_at": "asc"},
		map[string]any{"id": "asc"},
	}
}

func (r *RestaurantRepository) search(ctx context.Context, operation string, query map[string]any, sort []any, page domain.PageRequest) (_ *domain.RestaurantPage, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemElasticsearch, operation, r.indexName)
	defer func() { end(err) }()

	from, size := page.Offset(), page.Size
	if from > maxResultWindow-size {
		from, size = 0, 0
	}
	body, err := json.Marshal(map[string]any{
		"query":            query,
		"sort":             sort,
		"from":             from,
		"size":             size,
		"track_total_hits": true,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := r.client.Search(
		r.client.Search.WithIndex(r.indexName),
		r.client.Search.WithBody(bytes.NewReader(body)),
		r.client.Search.WithSeqNoPrimaryTerm(true),
		r.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError("elasticsearch search", res)
	}

	var found esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&found); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	result := &domain.RestaurantPage{
		Restaurants: make([]domain.Restaurant, 0, len(found.Hits.Hits)),
		Total:       found.Hits.Total.Value,
		Page:        page,
	}
	for _, hit := range found.Hits.Hits {
		restaurant := hit.Source.Restaurant
		if restaurant.Version, err = encodeVersion(hit.PrimaryTerm, hit.SeqNo); err != nil {
			return nil, fmt.Errorf("elasticsearch search: hit %s: %w", restaurant.ID, err)
		}
		result.Restaurants = append(result.Restaurants, restaurant)
	}
	return result, nil
}

func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
	var errResp esErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Type != "" {
		return fmt.Errorf("%s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected status %s", op, res.Status())
}
