/**
 * @description
 * Tracker Service — the core "fetch → extract → persist → derive" path.
 * Given (user, url) it renders the page through the scraper collaborator,
 * extracts structured product facts with the user's own LLM credentials,
 * appends a price observation and returns the derived snapshot (previous
 * price, trend, all-time low).
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/jackc/pgconn: retryable Postgres error codes
 * - github.com/redis/go-redis/v9: price-update publishing
 * - backend/internal/integrations/llm
 *
 * @notes
 * - Credentials resolve strictly from the requesting user's ProviderConfig.
 *   There is deliberately no table-wide fallback lookup.
 * - The previous price is captured from the product row before it is
 *   overwritten, inside the same transaction, so concurrent refreshes of one
 *   product cannot both observe the same stale pre-image.
 */

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/mantis-project/backend/internal/integrations/llm"
	"github.com/mantis-project/backend/internal/logger"
	"github.com/mantis-project/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// PriceUpdateChannel carries PriceUpdate events for the SSE stream
	PriceUpdateChannel = "mantis:price_updates"

	// trendEpsilon treats float prices within this distance as equal
	trendEpsilon = 1e-9

	maxTxRetries = 5
)

// Trend compares the newest observation with the immediately preceding one
type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendNeutral Trend = "neutral"
)

// PageFetcher renders a product page (external scraper collaborator)
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (string, error)
}

// Extractor turns page content into structured product facts (LLM collaborator)
type Extractor interface {
	Extract(ctx context.Context, creds llm.Credentials, pageContent string) (*llm.Extraction, error)
}

// TrackedProduct is the response shape for one tracked product, including the
// fields derived from the price history.
type TrackedProduct struct {
	ID          uint64             `json:"id"`
	URL         string             `json:"url"`
	Title       string             `json:"title"`
	Price       float64            `json:"price"`
	Currency    string             `json:"currency"`
	StockStatus models.StockStatus `json:"stock_status"`
	Website     string             `json:"website,omitempty"`
	LastChecked time.Time          `json:"last_checked"`

	PreviousPrice    *float64 `json:"previous_price"`
	PreviousCurrency *string  `json:"previous_currency"`
	PriceDiff        *float64 `json:"price_diff"`
	Trend            Trend    `json:"trend"`
	IsAllTimeLow     bool     `json:"is_all_time_low"`

	LowestPrice     *float64   `json:"lowest_price"`
	LowestCurrency  *string    `json:"lowest_currency"`
	LowestTimestamp *time.Time `json:"lowest_timestamp"`
}

// PriceUpdate is the event published after each successful observation
type PriceUpdate struct {
	ProductID uint64    `json:"product_id"`
	UserID    uuid.UUID `json:"user_id"`
	URL       string    `json:"url"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	Trend     Trend     `json:"trend"`
}

// TrackerService orchestrates extraction and persistence for one URL at a time
type TrackerService struct {
	db        *gorm.DB
	redis     *redis.Client
	fetcher   PageFetcher
	extractor Extractor
}

// NewTrackerService creates a new TrackerService
func NewTrackerService(db *gorm.DB, rdb *redis.Client, fetcher PageFetcher, extractor Extractor) *TrackerService {
	return &TrackerService{
		db:        db,
		redis:     rdb,
		fetcher:   fetcher,
		extractor: extractor,
	}
}

// Track produces a fresh observation for (userID, rawURL) and persists it.
// On any failure before persistence, nothing is written.
func (s *TrackerService) Track(ctx context.Context, userID uuid.UUID, rawURL string) (*TrackedProduct, error) {
	normalizedURL, host, err := validateProductURL(rawURL)
	if err != nil {
		return nil, err
	}

	creds, err := s.resolveCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}

	pageContent, err := s.fetcher.FetchPage(ctx, normalizedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	extraction, err := s.extractor.Extract(ctx, creds, pageContent)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	domain := strings.TrimSpace(extraction.Website)
	if domain == "" {
		domain = host
	}

	observation := observation{
		Title:       extraction.Title,
		Price:       extraction.Price,
		Currency:    extraction.Currency,
		StockStatus: models.NormalizeStockStatus(extraction.StockStatus),
		Domain:      domain,
		At:          time.Now(),
	}

	var tracked *TrackedProduct
	for attempt := 1; attempt <= maxTxRetries; attempt++ {
		tracked, err = s.applyObservation(ctx, userID, normalizedURL, observation)
		if err == nil {
			break
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01" || pgErr.Code == "23505") {
			// Serialization conflict or a concurrent first-track of the same
			// URL hit the unique index; retry finds the existing row.
			backoff := time.Duration(attempt*100+rand.Intn(100)) * time.Millisecond
			time.Sleep(backoff)
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	s.publishUpdate(ctx, userID, tracked)

	return tracked, nil
}

// Get returns the derived snapshot for one product owned by userID
func (s *TrackerService) Get(ctx context.Context, userID uuid.UUID, productID uint64) (*TrackedProduct, error) {
	var product models.Product
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", productID, userID).
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return s.serialize(ctx, s.db.WithContext(ctx), &product)
}

// ListForUser returns the derived snapshots for all of userID's products
func (s *TrackerService) ListForUser(ctx context.Context, userID uuid.UUID) ([]TrackedProduct, error) {
	var products []models.Product
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&products).Error; err != nil {
		return nil, err
	}

	tracked := make([]TrackedProduct, 0, len(products))
	for i := range products {
		t, err := s.serialize(ctx, s.db.WithContext(ctx), &products[i])
		if err != nil {
			// Products without any observation yet are skipped, not fatal
			logger.Error("TrackerService: failed to serialize product %d: %v", products[i].ID, err)
			continue
		}
		tracked = append(tracked, *t)
	}
	return tracked, nil
}

// Delete removes a product and its history. Foreign ownership is reported as
// ErrNotFound, indistinguishable from a missing row.
func (s *TrackerService) Delete(ctx context.Context, userID uuid.UUID, productID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		err := tx.Where("id = ? AND user_id = ?", productID, userID).First(&product).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if err := tx.Where("product_id = ?", product.ID).Delete(&models.PriceHistory{}).Error; err != nil {
			return err
		}
		return tx.Delete(&product).Error
	})
}

// resolveCredentials loads the requesting user's own ProviderConfig.
// The user id filter is the provider-isolation invariant; do not widen it.
func (s *TrackerService) resolveCredentials(ctx context.Context, userID uuid.UUID) (llm.Credentials, error) {
	var cfg models.ProviderConfig
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return llm.Credentials{}, ErrNoProviderConfigured
	}
	if err != nil {
		return llm.Credentials{}, err
	}

	return llm.Credentials{
		Provider: cfg.ProviderName,
		APIKey:   cfg.APIKey,
		Model:    cfg.ModelName,
	}, nil
}

type observation struct {
	Title       string
	Price       float64
	Currency    string
	StockStatus models.StockStatus
	Domain      string
	At          time.Time
}

// applyObservation runs the read-previous / append-history / overwrite-product
// sequence as one transaction so per-product updates stay serializable.
func (s *TrackerService) applyObservation(ctx context.Context, userID uuid.UUID, normalizedURL string, obs observation) (*TrackedProduct, error) {
	var tracked *TrackedProduct

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("user_id = ? AND url = ?", userID, normalizedURL)
		if tx.Dialector.Name() == "postgres" {
			// Row lock keeps a manual refresh and the scheduler from both
			// reading the same pre-image. SQLite serializes writers natively
			// and rejects FOR UPDATE.
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var product models.Product
		err := query.First(&product).Error
		isNew := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !isNew {
			return err
		}

		// Previous price comes from the row as it stood before this update,
		// not from the history log after insertion.
		var prevPrice *float64
		var prevCurrency *string
		if !isNew && product.LastChecked != nil {
			p := product.Price
			c := product.Currency
			prevPrice = &p
			prevCurrency = &c
		}

		if isNew {
			product = models.Product{
				UserID:    userID,
				URL:       normalizedURL,
				CreatedAt: obs.At,
			}
			if err := tx.Create(&product).Error; err != nil {
				return err
			}
		}

		entry := models.PriceHistory{
			ProductID: product.ID,
			Price:     obs.Price,
			Currency:  obs.Currency,
			Timestamp: obs.At,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"title":        obs.Title,
			"price":        obs.Price,
			"currency":     obs.Currency,
			"stock_status": obs.StockStatus,
			"domain":       obs.Domain,
			"last_checked": obs.At,
		}
		if err := tx.Model(&models.Product{}).Where("id = ?", product.ID).Updates(updates).Error; err != nil {
			return err
		}

		lowest, err := lowestEntry(tx, product.ID)
		if err != nil {
			return err
		}

		trend := computeTrend(prevPrice, obs.Price)
		var diff *float64
		if prevPrice != nil {
			d := obs.Price - *prevPrice
			diff = &d
		}

		tracked = &TrackedProduct{
			ID:               product.ID,
			URL:              normalizedURL,
			Title:            obs.Title,
			Price:            obs.Price,
			Currency:         obs.Currency,
			StockStatus:      obs.StockStatus,
			Website:          obs.Domain,
			LastChecked:      obs.At,
			PreviousPrice:    prevPrice,
			PreviousCurrency: prevCurrency,
			PriceDiff:        diff,
			Trend:            trend,
			IsAllTimeLow:     obs.Price <= lowest.Price+trendEpsilon,
			LowestPrice:      &lowest.Price,
			LowestCurrency:   &lowest.Currency,
			LowestTimestamp:  &lowest.Timestamp,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return tracked, nil
}

// serialize derives the response fields for an already-persisted product from
// its stored history (latest vs second-latest entry).
func (s *TrackerService) serialize(ctx context.Context, tx *gorm.DB, product *models.Product) (*TrackedProduct, error) {
	var latest []models.PriceHistory
	if err := tx.
		Where("product_id = ?", product.ID).
		Order("timestamp DESC").Order("id DESC").
		Limit(2).
		Find(&latest).Error; err != nil {
		return nil, err
	}
	if len(latest) == 0 {
		return nil, fmt.Errorf("product %d has no price history", product.ID)
	}

	var prevPrice *float64
	var prevCurrency *string
	if len(latest) >= 2 {
		prevPrice = &latest[1].Price
		prevCurrency = &latest[1].Currency
	}

	lowest, err := lowestEntry(tx, product.ID)
	if err != nil {
		return nil, err
	}

	current := latest[0]
	lastChecked := current.Timestamp
	if product.LastChecked != nil {
		lastChecked = *product.LastChecked
	}

	trend := computeTrend(prevPrice, current.Price)
	var diff *float64
	if prevPrice != nil {
		d := current.Price - *prevPrice
		diff = &d
	}

	return &TrackedProduct{
		ID:               product.ID,
		URL:              product.URL,
		Title:            product.Title,
		Price:            current.Price,
		Currency:         current.Currency,
		StockStatus:      product.StockStatus,
		Website:          product.Domain,
		LastChecked:      lastChecked,
		PreviousPrice:    prevPrice,
		PreviousCurrency: prevCurrency,
		PriceDiff:        diff,
		Trend:            trend,
		IsAllTimeLow:     current.Price <= lowest.Price+trendEpsilon,
		LowestPrice:      &lowest.Price,
		LowestCurrency:   &lowest.Currency,
		LowestTimestamp:  &lowest.Timestamp,
	}, nil
}

func lowestEntry(tx *gorm.DB, productID uint64) (*models.PriceHistory, error) {
	var lowest models.PriceHistory
	if err := tx.
		Where("product_id = ?", productID).
		Order("price ASC").Order("timestamp ASC").
		First(&lowest).Error; err != nil {
		return nil, err
	}
	return &lowest, nil
}

// computeTrend classifies the newest price against the previous one.
// No previous observation means neutral; equality within epsilon is neutral.
func computeTrend(previous *float64, current float64) Trend {
	if previous == nil {
		return TrendNeutral
	}
	diff := current - *previous
	switch {
	case diff < -trendEpsilon:
		return TrendDown
	case diff > trendEpsilon:
		return TrendUp
	default:
		return TrendNeutral
	}
}

func (s *TrackerService) publishUpdate(ctx context.Context, userID uuid.UUID, tracked *TrackedProduct) {
	if s.redis == nil || tracked == nil {
		return
	}

	payload, err := json.Marshal(PriceUpdate{
		ProductID: tracked.ID,
		UserID:    userID,
		URL:       tracked.URL,
		Price:     tracked.Price,
		Currency:  tracked.Currency,
		Trend:     tracked.Trend,
	})
	if err != nil {
		return
	}

	// Best effort: a stream hiccup must not fail the track call
	if err := s.redis.Publish(ctx, PriceUpdateChannel, payload).Err(); err != nil {
		logger.Error("TrackerService: failed to publish price update for product %d: %v", tracked.ID, err)
	}
}

// validateProductURL requires an absolute http(s) URL and returns the
// normalized form plus the host for domain fallback.
func validateProductURL(rawURL string) (string, string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", "", ErrInvalidURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if parsed.Host == "" {
		return "", "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	return parsed.String(), parsed.Host, nil
}
