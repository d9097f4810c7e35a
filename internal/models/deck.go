package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Deck struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	Title     string `json:"title" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	CreatedBy string `json:"created_by" gorm:"not null;size:255;index"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Slides []Slide `json:"slides" gorm:"foreignKey:DeckID"`
}

// Slide position is a sortable real number so a slide can be inserted between two
// siblings without renumbering the rest of the deck.
type Slide struct {
	ID       uint    `json:"id" gorm:"primaryKey"`
	DeckID   uint    `json:"deck_id" gorm:"not null;index:idx_slides_deck_position,priority:1"`
	Position float64 `json:"position" gorm:"not null;index:idx_slides_deck_position,priority:2"`
	Title    *string `json:"title" gorm:"size:200"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// At most one single-choice question per slide.
	Question *Question `json:"question,omitempty" gorm:"foreignKey:SlideID"`
}

type Question struct {
	ID      uint           `json:"id" gorm:"primaryKey"`
	SlideID uint           `json:"slide_id" gorm:"not null;uniqueIndex"`
	Text    string         `json:"text" gorm:"not null;type:text" validate:"required"`
	Options datatypes.JSON `json:"options" gorm:"type:jsonb;not null"`

	// Zero-based offset into Options.
	CorrectOption int `json:"correct_option" gorm:"not null" validate:"min=0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OptionList decodes the stored option texts in display order.
func (q *Question) OptionList() ([]string, error) {
	var options []string
	if err := json.Unmarshal(q.Options, &options); err != nil {
		return nil, err
	}
	return options, nil
}

func (Deck) TableName() string {
	return "decks"
}

func (Slide) TableName() string {
	return "slides"
}

func (Question) TableName() string {
	return "questions"
}
