/**
 * @description
 * Refresh Service — batch and single-product re-tracking.
 * Walks every stored product and re-runs the tracker path with the product
 * owner's own credentials. One product failing (extraction error, owner
 * without provider config) never aborts the batch: failures are accumulated
 * and logged, successes proceed.
 *
 * @dependencies
 * - gorm.io/gorm
 * - backend/internal/services (TrackerService)
 */

package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mantis-project/backend/internal/logger"
	"github.com/mantis-project/backend/internal/models"
	"gorm.io/gorm"
)

const refreshBatchSize = 100

// RefreshFailure records one product that could not be refreshed
type RefreshFailure struct {
	ProductID uint64    `json:"product_id"`
	UserID    uuid.UUID `json:"user_id"`
	URL       string    `json:"url"`
	Error     string    `json:"error"`
}

// RefreshSummary is the outcome of one full refresh pass
type RefreshSummary struct {
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failures  []RefreshFailure `json:"failures"`
}

// RefreshService drives scheduled and manual refreshes through the tracker
type RefreshService struct {
	db      *gorm.DB
	tracker *TrackerService
}

// NewRefreshService creates a new RefreshService
func NewRefreshService(db *gorm.DB, tracker *TrackerService) *RefreshService {
	return &RefreshService{
		db:      db,
		tracker: tracker,
	}
}

// RefreshAll re-tracks every stored product across all users.
// The returned error covers only the enumeration itself; per-product failures
// live in the summary.
func (s *RefreshService) RefreshAll(ctx context.Context) (*RefreshSummary, error) {
	summary := &RefreshSummary{}

	var batch []models.Product
	result := s.db.WithContext(ctx).FindInBatches(&batch, refreshBatchSize, func(tx *gorm.DB, _ int) error {
		for i := range batch {
			product := batch[i]
			summary.Total++

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			// Each product refreshes with its own owner's credentials
			if _, err := s.tracker.Track(ctx, product.UserID, product.URL); err != nil {
				logger.Error("RefreshService: failed to refresh product %d (%s): %v", product.ID, product.URL, err)
				summary.Failures = append(summary.Failures, RefreshFailure{
					ProductID: product.ID,
					UserID:    product.UserID,
					URL:       product.URL,
					Error:     err.Error(),
				})
				continue
			}
			summary.Succeeded++
		}
		return nil
	})
	if result.Error != nil {
		return summary, result.Error
	}

	logger.Info("RefreshService: refreshed %d/%d products (%d failed)",
		summary.Succeeded, summary.Total, len(summary.Failures))
	return summary, nil
}

// RefreshProduct re-tracks exactly one product, scoped to its owner.
// Equivalent to a single iteration of the batch.
func (s *RefreshService) RefreshProduct(ctx context.Context, userID uuid.UUID, productID uint64) (*TrackedProduct, error) {
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

	return s.tracker.Track(ctx, product.UserID, product.URL)
}
