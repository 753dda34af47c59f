package listings

import (
	"context"

	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/infrastructure/database"
	"sharehouse-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Query filters the public listing browser. Zero values mean "no filter".
type Query struct {
	Status   string
	HouseID  *uuid.UUID
	SellerID *uuid.UUID
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	OrderBy  string
	Limit    int
	Offset   int
}

type Page struct {
	Items  []domain.Listing `json:"items"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

var orderColumns = map[string]string{
	"price":    "price ASC",
	"-price":   "price DESC",
	"created":  "created_at ASC",
	"-created": "created_at DESC",
}

// Browse returns one page of listings matching q, newest first by default.
func (s *Service) Browse(ctx context.Context, q Query) (*Page, error) {
	if q.Status == "" {
		q.Status = domain.ListingActive
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	order, ok := orderColumns[q.OrderBy]
	if !ok {
		order = orderColumns["-created"]
	}

	db := s.DB.WithContext(ctx).Model(&domain.Listing{})
	if q.Status != "all" {
		db = db.Where("status = ?", q.Status)
	}
	if q.HouseID != nil {
		db = db.Where("house_id = ?", *q.HouseID)
	}
	if q.SellerID != nil {
		db = db.Where("seller_id = ?", *q.SellerID)
	}
	if q.MinPrice != nil {
		db = db.Where("price >= ?", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		db = db.Where("price <= ?", *q.MaxPrice)
	}

	db = db.Session(&gorm.Session{})
	page := &Page{Limit: q.Limit, Offset: q.Offset}
	if err := db.Count(&page.Total).Error; err != nil {
		return nil, err
	}
	if err := db.Order(order).Limit(q.Limit).Offset(q.Offset).Find(&page.Items).Error; err != nil {
		return nil, err
	}
	return page, nil
}

// Cheapest returns the lowest priced active listing, optionally on one house.
func (s *Service) Cheapest(ctx context.Context, houseID *uuid.UUID) (*domain.Listing, error) {
	db := s.DB.WithContext(ctx).Where("status = ?", domain.ListingActive)
	if houseID != nil {
		db = db.Where("house_id = ?", *houseID)
	}
	var l domain.Listing
	if err := db.Order("price ASC, created_at ASC").Take(&l).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.ErrListingNotFound
		}
		return nil, err
	}
	return &l, nil
}

// Get returns one listing by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	var l domain.Listing
	if err := s.DB.WithContext(ctx).Where("id = ?", id).Take(&l).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.ErrListingNotFound
		}
		return nil, err
	}
	return &l, nil
}
