package postgres

import (
	"context"
	"errors"

	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/repositories"
	"gorm.io/gorm"
)

type DeckPostgreSQL struct {
	db *gorm.DB
}

func NewDeckPostgreSQL(db *gorm.DB) *DeckPostgreSQL {
	return &DeckPostgreSQL{db: db}
}

func (d *DeckPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Deck, error) {
	var deck models.Deck
	if err := d.db.WithContext(ctx).First(&deck, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &deck, nil
}

func (d *DeckPostgreSQL) GetByIDWithSlides(ctx context.Context, id uint) (*models.Deck, error) {
	var deck models.Deck
	if err := d.db.WithContext(ctx).
		Preload("Slides", func(db *gorm.DB) *gorm.DB {
			return db.Order("slides.position ASC")
		}).
		Preload("Slides.Question").
		First(&deck, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &deck, nil
}

func (d *DeckPostgreSQL) GetSlide(ctx context.Context, slideID uint) (*models.Slide, error) {
	var slide models.Slide
	if err := d.db.WithContext(ctx).
		Preload("Question").
		First(&slide, slideID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &slide, nil
}

func (d *DeckPostgreSQL) GetSlideByIndex(ctx context.Context, deckID uint, index int) (*models.Slide, error) {
	var slide models.Slide
	if err := d.db.WithContext(ctx).
		Where("deck_id = ?", deckID).
		Order("position ASC").
		Offset(index).
		Preload("Question").
		First(&slide).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &slide, nil
}

func (d *DeckPostgreSQL) SlideIndex(ctx context.Context, deckID uint, position float64) (int, error) {
	var count int64
	if err := d.db.WithContext(ctx).
		Model(&models.Slide{}).
		Where("deck_id = ? AND position < ?", deckID, position).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (d *DeckPostgreSQL) CountSlides(ctx context.Context, deckID uint) (int, error) {
	var count int64
	if err := d.db.WithContext(ctx).
		Model(&models.Slide{}).
		Where("deck_id = ?", deckID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (d *DeckPostgreSQL) CountQuestions(ctx context.Context, deckID uint) (int, error) {
	var count int64
	if err := d.db.WithContext(ctx).
		Model(&models.Question{}).
		Joins("JOIN slides ON slides.id = questions.slide_id").
		Where("slides.deck_id = ?", deckID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}
