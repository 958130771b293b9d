package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	documentDatamodel "github.com/frahmantamala/expenseflow/internal/core/datamodel/document"
	"github.com/frahmantamala/expenseflow/internal/document"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) document.RepositoryAPI {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *document.Document) error {
	dm := document.ToDataModel(doc)
	return r.db.WithContext(ctx).Create(dm).Error
}

// GetByID returns nil, nil when the document does not exist.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*document.Document, error) {
	var dm documentDatamodel.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&dm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return document.FromDataModel(&dm), nil
}

func (r *DocumentRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*document.Document, int64, error) {
	query := r.db.WithContext(ctx).Model(&documentDatamodel.Document{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []*documentDatamodel.Document
	err := query.Order("uploaded_at DESC").Order("id").Limit(limit).Offset(offset).Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	docs := make([]*document.Document, len(rows))
	for i, dm := range rows {
		docs[i] = document.FromDataModel(dm)
	}
	return docs, total, nil
}

// SaveExtraction is guarded by the status column so a document is
// extracted at most once even under concurrent requests.
func (r *DocumentRepository) SaveExtraction(ctx context.Context, id string, ex document.Extraction, extractionError *string, processedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&documentDatamodel.Document{}).
		Where("id = ? AND status = ?", id, document.StatusUploaded).
		Updates(map[string]interface{}{
			"status":             document.StatusProcessed,
			"extracted_amount":   ex.Amount,
			"extracted_currency": ex.Currency,
			"extracted_merchant": ex.Merchant,
			"extracted_date":     ex.Date,
			"confidence":         ex.Confidence,
			"extraction_source":  ex.Source,
			"raw_text":           ex.RawText,
			"extraction_error":   extractionError,
			"processed_at":       processedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *DocumentRepository) LinkExpense(ctx context.Context, id string, userID, expenseID int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&documentDatamodel.Document{}).
		Where("id = ? AND user_id = ? AND expense_id IS NULL", id, userID).
		Update("expense_id", expenseID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
