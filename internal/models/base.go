package models

import (
	"bazaar/leadhub/internal/utils"
)

// IBase is satisfied by every stored document through the embedded Base.
type IBase interface {
	SetID(id utils.SixID)
	EnsureID() utils.SixID
}

// Base carries the document id, stored as the Mongo _id.
type Base struct {
	ID utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
}

func NewBase() Base {
	return Base{ID: utils.NewSixID()}
}

func (b *Base) SetID(id utils.SixID) {
	b.ID = id
}

// EnsureID assigns a fresh id when none is set and returns the id.
func (b *Base) EnsureID() utils.SixID {
	if b.ID.IsZero() {
		b.ID = utils.NewSixID()
	}
	return b.ID
}
