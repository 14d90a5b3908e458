package repository

import (
	"context"
	"sync"
	"time"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type paymentEventRepository struct {
	db *gorm.DB
}

// NewPaymentEventRepository creates a webhook event repository backed by GORM.
func NewPaymentEventRepository(db *gorm.DB) PaymentEventRepository {
	return &paymentEventRepository{db: db}
}

func (r *paymentEventRepository) CreateIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	if event.Provider == "" || event.ProviderEventID == "" {
		return false, nil, ErrWebhookEventEmpty
	}
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *paymentEventRepository) MarkProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// MemoryPaymentEventRepository is the in-process PaymentEventRepository.
type MemoryPaymentEventRepository struct {
	mu     sync.Mutex
	nextID uint
	events map[string]*models.PaymentWebhookEvent
}

func NewMemoryPaymentEventRepository() *MemoryPaymentEventRepository {
	return &MemoryPaymentEventRepository{events: map[string]*models.PaymentWebhookEvent{}}
}

func (r *MemoryPaymentEventRepository) CreateIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	if event.Provider == "" || event.ProviderEventID == "" {
		return false, nil, ErrWebhookEventEmpty
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := event.Provider + "\x00" + event.ProviderEventID
	if existing, ok := r.events[key]; ok {
		cp := *existing
		return false, &cp, nil
	}
	r.nextID++
	event.ID = r.nextID
	event.CreatedAt = time.Now().UTC()
	event.UpdatedAt = event.CreatedAt
	stored := *event
	r.events[key] = &stored
	cp := stored
	return true, &cp, nil
}

func (r *MemoryPaymentEventRepository) MarkProcessed(ctx context.Context, id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			now := time.Now().UTC()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
			e.UpdatedAt = now
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}
