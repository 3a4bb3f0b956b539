package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealmatch/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// =============================================================================
// Listings
// =============================================================================

func (s *PostgresStore) UpsertListing(ctx context.Context, l *models.VehicleListing) error {
	query := `
		INSERT INTO listings (
			id, source, source_id, url, make, model, year, price, currency,
			mileage, condition, fuel_type, transmission, raw_data, scraped_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
		ON CONFLICT (source, source_id) DO UPDATE SET
			url = EXCLUDED.url,
			scraped_at = EXCLUDED.scraped_at
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		l.ID, l.Source, l.SourceID, l.URL, l.Make, l.Model, l.Year, l.Price, l.Currency,
		l.Mileage, l.Condition, l.FuelType, l.Transmission, l.RawData, l.ScrapedAt, l.CreatedAt,
	).Scan(&l.ID)
}

func (s *PostgresStore) GetListingByID(ctx context.Context, id uuid.UUID) (*models.VehicleListing, error) {
	return s.scanListing(s.pool.QueryRow(ctx, listingSelect+` WHERE id = $1`, id))
}

func (s *PostgresStore) GetListingBySource(ctx context.Context, source, sourceID string) (*models.VehicleListing, error) {
	return s.scanListing(s.pool.QueryRow(ctx, listingSelect+` WHERE source = $1 AND source_id = $2`, source, sourceID))
}

const listingSelect = `
	SELECT id, source, source_id, url, make, model, year, price, currency,
		mileage, condition, fuel_type, transmission, raw_data, scraped_at, created_at
	FROM listings`

func (s *PostgresStore) scanListing(row pgx.Row) (*models.VehicleListing, error) {
	var l models.VehicleListing
	err := row.Scan(
		&l.ID, &l.Source, &l.SourceID, &l.URL, &l.Make, &l.Model, &l.Year, &l.Price, &l.Currency,
		&l.Mileage, &l.Condition, &l.FuelType, &l.Transmission, &l.RawData, &l.ScrapedAt, &l.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// =============================================================================
// Dealer preferences
// =============================================================================

func (s *PostgresStore) UpsertDealerPreferences(ctx context.Context, p *models.DealerPreferences) error {
	if err := p.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO dealer_preferences (
			dealer_id, preferred_makes, preferred_models, min_year, max_year,
			min_price, max_price, max_mileage, preferred_conditions,
			preferred_fuel_types, preferred_transmissions, enabled_sources, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW()
		)
		ON CONFLICT (dealer_id) DO UPDATE SET
			preferred_makes = EXCLUDED.preferred_makes,
			preferred_models = EXCLUDED.preferred_models,
			min_year = EXCLUDED.min_year,
			max_year = EXCLUDED.max_year,
			min_price = EXCLUDED.min_price,
			max_price = EXCLUDED.max_price,
			max_mileage = EXCLUDED.max_mileage,
			preferred_conditions = EXCLUDED.preferred_conditions,
			preferred_fuel_types = EXCLUDED.preferred_fuel_types,
			preferred_transmissions = EXCLUDED.preferred_transmissions,
			enabled_sources = EXCLUDED.enabled_sources,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		p.DealerID, p.PreferredMakes, p.PreferredModels, p.MinYear, p.MaxYear,
		p.MinPrice, p.MaxPrice, p.MaxMileage, p.PreferredConditions,
		p.PreferredFuelTypes, p.PreferredTransmissions, p.EnabledSources,
	)
	return err
}

func (s *PostgresStore) GetDealerPreferences(ctx context.Context, dealerID uuid.UUID) (*models.DealerPreferences, error) {
	query := `
		SELECT dealer_id, preferred_makes, preferred_models, min_year, max_year,
			min_price, max_price, max_mileage, preferred_conditions,
			preferred_fuel_types, preferred_transmissions, enabled_sources, updated_at
		FROM dealer_preferences WHERE dealer_id = $1`

	var p models.DealerPreferences
	err := s.pool.QueryRow(ctx, query, dealerID).Scan(
		&p.DealerID, &p.PreferredMakes, &p.PreferredModels, &p.MinYear, &p.MaxYear,
		&p.MinPrice, &p.MaxPrice, &p.MaxMileage, &p.PreferredConditions,
		&p.PreferredFuelTypes, &p.PreferredTransmissions, &p.EnabledSources, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) ListDealerPreferences(ctx context.Context) ([]models.DealerPreferences, error) {
	query := `
		SELECT dealer_id, preferred_makes, preferred_models, min_year, max_year,
			min_price, max_price, max_mileage, preferred_conditions,
			preferred_fuel_types, preferred_transmissions, enabled_sources, updated_at
		FROM dealer_preferences`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DealerPreferences
	for rows.Next() {
		var p models.DealerPreferences
		if err := rows.Scan(
			&p.DealerID, &p.PreferredMakes, &p.PreferredModels, &p.MinYear, &p.MaxYear,
			&p.MinPrice, &p.MaxPrice, &p.MaxMileage, &p.PreferredConditions,
			&p.PreferredFuelTypes, &p.PreferredTransmissions, &p.EnabledSources, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// Learned preferences
// =============================================================================

// UpdateLearnedPreferences applies fn to the dealer's learned profile inside
// one transaction holding a row lock, which serializes updates per dealer.
// The row is created lazily on first update.
func (s *PostgresStore) UpdateLearnedPreferences(ctx context.Context, dealerID uuid.UUID, fn func(*models.LearnedPreferences) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO learned_preferences (dealer_id, learned_makes, learned_models, last_updated)
		VALUES ($1, '{}', '{}', NOW())
		ON CONFLICT (dealer_id) DO NOTHING`, dealerID)
	if err != nil {
		return fmt.Errorf("init profile: %w", err)
	}

	learned, err := scanLearned(tx.QueryRow(ctx, learnedSelect+` WHERE dealer_id = $1 FOR UPDATE`, dealerID))
	if err != nil {
		return fmt.Errorf("lock profile: %w", err)
	}
	if learned == nil {
		learned = models.NewLearnedPreferences(dealerID)
	}

	if err := fn(learned); err != nil {
		return err
	}

	makesJSON, err := json.Marshal(learned.Makes)
	if err != nil {
		return fmt.Errorf("marshal makes: %w", err)
	}
	modelsJSON, err := json.Marshal(learned.Models)
	if err != nil {
		return fmt.Errorf("marshal models: %w", err)
	}
	priceJSON, err := json.Marshal(learned.PriceRange)
	if err != nil {
		return fmt.Errorf("marshal price range: %w", err)
	}
	mileageJSON, err := json.Marshal(learned.MileageRange)
	if err != nil {
		return fmt.Errorf("marshal mileage range: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE learned_preferences SET
			learned_makes = $2,
			learned_models = $3,
			learned_price_range = $4,
			learned_mileage_range = $5,
			total_interactions = $6,
			total_saves = $7,
			total_skips = $8,
			last_updated = $9
		WHERE dealer_id = $1`,
		dealerID, makesJSON, modelsJSON, priceJSON, mileageJSON,
		learned.TotalInteractions, learned.TotalSaves, learned.TotalSkips, learned.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetLearnedPreferences(ctx context.Context, dealerID uuid.UUID) (*models.LearnedPreferences, error) {
	return scanLearned(s.pool.QueryRow(ctx, learnedSelect+` WHERE dealer_id = $1`, dealerID))
}

const learnedSelect = `
	SELECT dealer_id, learned_makes, learned_models,
		COALESCE(learned_price_range, '{}'), COALESCE(learned_mileage_range, '{}'),
		total_interactions, total_saves, total_skips, last_updated
	FROM learned_preferences`

func scanLearned(row pgx.Row) (*models.LearnedPreferences, error) {
	var l models.LearnedPreferences
	var makesJSON, modelsJSON, priceJSON, mileageJSON []byte
	err := row.Scan(
		&l.DealerID, &makesJSON, &modelsJSON, &priceJSON, &mileageJSON,
		&l.TotalInteractions, &l.TotalSaves, &l.TotalSkips, &l.LastUpdated,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	l.Makes = make(map[string]float64)
	l.Models = make(map[string]float64)
	if err := json.Unmarshal(makesJSON, &l.Makes); err != nil {
		return nil, fmt.Errorf("unmarshal makes: %w", err)
	}
	if err := json.Unmarshal(modelsJSON, &l.Models); err != nil {
		return nil, fmt.Errorf("unmarshal models: %w", err)
	}
	if err := json.Unmarshal(priceJSON, &l.PriceRange); err != nil {
		return nil, fmt.Errorf("unmarshal price range: %w", err)
	}
	if err := json.Unmarshal(mileageJSON, &l.MileageRange); err != nil {
		return nil, fmt.Errorf("unmarshal mileage range: %w", err)
	}
	return &l, nil
}

// =============================================================================
// Interactions
// =============================================================================

func (s *PostgresStore) InsertInteraction(ctx context.Context, i *models.Interaction) error {
	query := `
		INSERT INTO interactions (id, dealer_id, match_id, type, duration_sec, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		i.ID, i.DealerID, i.MatchID, string(i.Type), i.DurationSec, i.Metadata, i.CreatedAt,
	)
	return err
}

// =============================================================================
// Vehicle matches
// =============================================================================

func (s *PostgresStore) UpsertMatch(ctx context.Context, m *models.VehicleMatch) error {
	breakdownJSON, err := json.Marshal(m.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}

	query := `
		INSERT INTO vehicle_matches (
			id, dealer_id, listing_id, base_score, personalization_boost, final_score,
			score_breakdown, viewed, saved, skipped, contacted_seller, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		ON CONFLICT (dealer_id, listing_id) DO UPDATE SET
			base_score = EXCLUDED.base_score,
			personalization_boost = EXCLUDED.personalization_boost,
			final_score = EXCLUDED.final_score,
			score_breakdown = EXCLUDED.score_breakdown,
			updated_at = NOW()
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		m.ID, m.DealerID, m.ListingID, m.BaseScore, m.Boost, m.FinalScore,
		breakdownJSON, m.Viewed, m.Saved, m.Skipped, m.ContactedSeller, m.CreatedAt, m.UpdatedAt,
	).Scan(&m.ID)
}

func (s *PostgresStore) GetMatchByID(ctx context.Context, id uuid.UUID) (*models.VehicleMatch, error) {
	return scanMatch(s.pool.QueryRow(ctx, matchSelect+` WHERE id = $1`, id))
}

func (s *PostgresStore) GetMatchForDealerListing(ctx context.Context, dealerID, listingID uuid.UUID) (*models.VehicleMatch, error) {
	return scanMatch(s.pool.QueryRow(ctx, matchSelect+` WHERE dealer_id = $1 AND listing_id = $2`, dealerID, listingID))
}

const matchSelect = `
	SELECT id, dealer_id, listing_id, base_score, personalization_boost, final_score,
		score_breakdown, viewed, saved, skipped, contacted_seller, created_at, updated_at
	FROM vehicle_matches`

func scanMatch(row pgx.Row) (*models.VehicleMatch, error) {
	var m models.VehicleMatch
	var breakdownJSON []byte
	err := row.Scan(
		&m.ID, &m.DealerID, &m.ListingID, &m.BaseScore, &m.Boost, &m.FinalScore,
		&breakdownJSON, &m.Viewed, &m.Saved, &m.Skipped, &m.ContactedSeller, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(breakdownJSON, &m.Breakdown); err != nil {
		return nil, fmt.Errorf("unmarshal breakdown: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) ListMatchesForDealer(ctx context.Context, dealerID uuid.UUID, limit, offset int) ([]models.VehicleMatch, error) {
	rows, err := s.pool.Query(ctx,
		matchSelect+` WHERE dealer_id = $1 ORDER BY final_score DESC, created_at DESC LIMIT $2 OFFSET $3`,
		dealerID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.VehicleMatch
	for rows.Next() {
		var m models.VehicleMatch
		var breakdownJSON []byte
		if err := rows.Scan(
			&m.ID, &m.DealerID, &m.ListingID, &m.BaseScore, &m.Boost, &m.FinalScore,
			&breakdownJSON, &m.Viewed, &m.Saved, &m.Skipped, &m.ContactedSeller, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(breakdownJSON, &m.Breakdown); err != nil {
			return nil, fmt.Errorf("unmarshal breakdown: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListFreshMatches returns a dealer's unviewed, unskipped matches created
// since the cutoff, best first, with their listings. Used by the digest
// builder.
func (s *PostgresStore) ListFreshMatches(ctx context.Context, dealerID uuid.UUID, since time.Time, limit int) ([]ScoredListing, error) {
	query := `
		SELECT m.id, m.dealer_id, m.listing_id, m.base_score, m.personalization_boost, m.final_score,
			m.score_breakdown, m.viewed, m.saved, m.skipped, m.contacted_seller, m.created_at, m.updated_at,
			l.id, l.source, l.source_id, l.url, l.make, l.model, l.year, l.price, l.currency,
			l.mileage, l.condition, l.fuel_type, l.transmission, l.raw_data, l.scraped_at, l.created_at
		FROM vehicle_matches m
		JOIN listings l ON l.id = m.listing_id
		WHERE m.dealer_id = $1 AND m.created_at >= $2 AND NOT m.viewed AND NOT m.skipped
		ORDER BY m.final_score DESC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, dealerID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScoredListing
	for rows.Next() {
		var sl ScoredListing
		var breakdownJSON []byte
		if err := rows.Scan(
			&sl.Match.ID, &sl.Match.DealerID, &sl.Match.ListingID, &sl.Match.BaseScore, &sl.Match.Boost, &sl.Match.FinalScore,
			&breakdownJSON, &sl.Match.Viewed, &sl.Match.Saved, &sl.Match.Skipped, &sl.Match.ContactedSeller,
			&sl.Match.CreatedAt, &sl.Match.UpdatedAt,
			&sl.Listing.ID, &sl.Listing.Source, &sl.Listing.SourceID, &sl.Listing.URL, &sl.Listing.Make,
			&sl.Listing.Model, &sl.Listing.Year, &sl.Listing.Price, &sl.Listing.Currency, &sl.Listing.Mileage,
			&sl.Listing.Condition, &sl.Listing.FuelType, &sl.Listing.Transmission, &sl.Listing.RawData,
			&sl.Listing.ScrapedAt, &sl.Listing.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(breakdownJSON, &sl.Match.Breakdown); err != nil {
			return nil, fmt.Errorf("unmarshal breakdown: %w", err)
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

// ScoredListing pairs a match with its listing for read paths.
type ScoredListing struct {
	Match   models.VehicleMatch
	Listing models.VehicleListing
}

// GetListingForMatch resolves the listing a match points at.
func (s *PostgresStore) GetListingForMatch(ctx context.Context, matchID uuid.UUID) (*models.VehicleListing, error) {
	query := `
		SELECT l.id, l.source, l.source_id, l.url, l.make, l.model, l.year, l.price, l.currency,
			l.mileage, l.condition, l.fuel_type, l.transmission, l.raw_data, l.scraped_at, l.created_at
		FROM listings l
		JOIN vehicle_matches m ON m.listing_id = l.id
		WHERE m.id = $1`
	return s.scanListing(s.pool.QueryRow(ctx, query, matchID))
}

// SetMatchFlag marks the flag corresponding to an interaction type. Flags
// only ever go from false to true; matches are never deleted.
func (s *PostgresStore) SetMatchFlag(ctx context.Context, matchID uuid.UUID, typ models.InteractionType) error {
	var column string
	switch typ {
	case models.InteractionView:
		column = "viewed"
	case models.InteractionSave:
		column = "saved"
	case models.InteractionSkip:
		column = "skipped"
	case models.InteractionContactSeller:
		column = "contacted_seller"
	default:
		return nil // SHARE leaves no flag
	}

	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE vehicle_matches SET %s = TRUE, updated_at = NOW() WHERE id = $1`, column),
		matchID,
	)
	return err
}

// =============================================================================
// Usage counters
// =============================================================================

// IncrViews bumps the (dealer, day) view counter and returns the new count
// in one atomic statement. The ttl is ignored here; day keys simply stop
// being queried after the window closes.
func (s *PostgresStore) IncrViews(ctx context.Context, dealerID uuid.UUID, day string, _ time.Duration) (int64, error) {
	query := `
		INSERT INTO usage_counters (dealer_id, day, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (dealer_id, day) DO UPDATE SET count = usage_counters.count + 1
		RETURNING count`

	var count int64
	if err := s.pool.QueryRow(ctx, query, dealerID, day).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
