package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/sharmash3/restaurant-review-be/internal/domain"
	"github.com/sharmash3/restaurant-review-be/internal/geo"
	"github.com/sharmash3/restaurant-review-be/internal/repository"
	"github.com/sharmash3/restaurant-review-be/pkg/database"
	apperrors "github.com/sharmash3/restaurant-review-be/pkg/errors"
)

// RestaurantRepository stores each aggregate as a JSONB document next to the
// columns the search queries filter on. The version column guards updates.
type RestaurantRepository struct {
	pool database.DBTX
}

var _ repository.RestaurantRepository = (*RestaurantRepository)(nil)

// NewRestaurantRepository creates a PostgreSQL-backed restaurant repository.
func NewRestaurantRepository(pool database.DBTX) *RestaurantRepository {
	return &RestaurantRepository{pool: pool}
}

const searchText = `lower(name || ' ' || cuisine_type || ' ' || city)`

// FindByID loads one aggregate.
func (r *RestaurantRepository) FindByID(ctx context.Context, id string) (_ *domain.Restaurant, err error) {
	query := `SELECT document, version FROM restaurants WHERE id = $1`
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "FindRestaurant", query)
	defer func() { end(err) }()

	var (
		doc     []byte
		version int64
	)
	if err := r.pool.QueryRow(ctx, query, id).Scan(&doc, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("restaurant", id)
		}
		return nil, fmt.Errorf("get restaurant %s: %w", id, err)
	}
	return decode(doc, version)
}

// Save inserts a new aggregate or replaces the stored one when its version
// still matches.
func (r *RestaurantRepository) Save(ctx context.Context, restaurant *domain.Restaurant) (_ *domain.Restaurant, err error) {
	next := restaurant.Clone()
	next.Version = restaurant.Version + 1

	doc, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("marshal restaurant %s: %w", restaurant.ID, err)
	}

	var query string
	args := []any{
		next.ID, next.Name, next.CuisineType, next.Address.City, next.AverageRating,
		next.GeoLocation.Latitude, next.GeoLocation.Longitude, doc, next.Version,
		next.CreatedAt, next.UpdatedAt,
	}
	if restaurant.Version == 0 {
		query = `
			INSERT INTO restaurants (id, name, cuisine_type, city, average_rating, latitude, longitude,
			                         document, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO NOTHING`
	} else {
		query = `
			UPDATE restaurants
			SET name = $2, cuisine_type = $3, city = $4, average_rating = $5, latitude = $6,
			    longitude = $7, document = $8, version = $9, created_at = $10, updated_at = $11
			WHERE id = $1 AND version = $12`
		args = append(args, restaurant.Version)
	}

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "SaveRestaurant", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("save restaurant %s: %w", restaurant.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, repository.ErrVersionConflict
	}
	return next, nil
}

// DeleteByID removes the aggregate if present.
func (r *RestaurantRepository) DeleteByID(ctx context.Context, id string) (err error) {
	query := `DELETE FROM restaurants WHERE id = $1`
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "DeleteRestaurant", query)
	defer func() { end(err) }()

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete restaurant %s: %w", id, err)
	}
	return nil
}

// FindAll pages over all restaurants, oldest first.
func (r *RestaurantRepository) FindAll(ctx context.Context, page domain.PageRequest) (*domain.RestaurantPage, error) {
	return r.list(ctx, "FindAllRestaurants", "TRUE", "created_at, id", page)
}

// FindByRatingFloor pages over restaurants rated at least min.
func (r *RestaurantRepository) FindByRatingFloor(ctx context.Context, min float64, page domain.PageRequest) (*domain.RestaurantPage, error) {
	return r.list(ctx, "FindRestaurantsByRating", "average_rating >= $1", "created_at, id", page, min)
}

// FindByTextAndRatingFloor matches text as a case-insensitive substring of the
// name, cuisine type or city.
func (r *RestaurantRepository) FindByTextAndRatingFloor(ctx context.Context, text string, min float64, page domain.PageRequest) (*domain.RestaurantPage, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(text))) + "%"
	where := searchText + ` LIKE $1 AND average_rating >= $2`
	return r.list(ctx, "FindRestaurantsByText", where, "created_at, id", page, pattern, min)
}

// FindByGeoRadius pages over restaurants within radiusKm of the point using
// the haversine distance, nearest first.
func (r *RestaurantRepository) FindByGeoRadius(ctx context.Context, lat, lon, radiusKm float64, page domain.PageRequest) (*domain.RestaurantPage, error) {
	// Rounding can push the asin argument just past 1 near antipodal points.
	distance := fmt.Sprintf(`(2 * %[1]g * asin(least(1, sqrt(
		power(sin(radians(latitude - $1) / 2), 2) +
		cos(radians($1)) * cos(radians(latitude)) * power(sin(radians(longitude - $2) / 2), 2)))))`, geo.EarthRadiusKm)
	return r.list(ctx, "FindRestaurantsByGeo", distance+" <= $3", distance+", id", page, lat, lon, radiusKm)
}

// Ping checks connectivity.
func (r *RestaurantRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *RestaurantRepository) list(ctx context.Context, operation, where, orderBy string, page domain.PageRequest, args ...any) (_ *domain.RestaurantPage, err error) {
	n := len(args)
	query := fmt.Sprintf(`
		SELECT document, version, count(*) OVER() AS total_count
		FROM restaurants
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`, where, orderBy, n+1, n+2)

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, operation, query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("query restaurants: %w", err)
	}
	defer rows.Close()

	result := &domain.RestaurantPage{Restaurants: []domain.Restaurant{}, Page: page}
	for rows.Next() {
		var (
			doc     []byte
			version int64
		)
		if err := rows.Scan(&doc, &version, &result.Total); err != nil {
			return nil, fmt.Errorf("scan restaurant row: %w", err)
		}
		restaurant, err := decode(doc, version)
		if err != nil {
			return nil, err
		}
		result.Restaurants = append(result.Restaurants, *restaurant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restaurant rows: %w", err)
	}

	// The window count is lost on a page past the end.
	if len(result.Restaurants) == 0 && page.Offset() > 0 {
		countQuery := fmt.Sprintf(`SELECT count(*) FROM restaurants WHERE %s`, where)
		if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&result.Total); err != nil {
			return nil, fmt.Errorf("count restaurants: %w", err)
		}
	}
	return result, nil
}

func decode(doc []byte, version int64) (*domain.Restaurant, error) {
	var restaurant domain.Restaurant
	if err := json.Unmarshal(doc, &restaurant); err != nil {
		return nil, fmt.Errorf("decode restaurant document: %w", err)
	}
	restaurant.Version = version
	return &restaurant, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
