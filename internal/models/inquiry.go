package models

import (
	"time"

	"bazaar/leadhub/internal/utils"
)

// Priority is informational only; no workflow changes it.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ResponseStatus is the per-recipient contact state.
type ResponseStatus string

const (
	ResponseNotContacted  ResponseStatus = "not_contacted"
	ResponseContacted     ResponseStatus = "contacted"
	ResponseInterested    ResponseStatus = "interested"
	ResponseNotInterested ResponseStatus = "not_interested"
)

func (r ResponseStatus) Valid() bool {
	switch r {
	case ResponseNotContacted, ResponseContacted, ResponseInterested, ResponseNotInterested:
		return true
	}
	return false
}

// Decision is what a recipient did with a lead.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

type PaymentStatus string

const (
	PaymentFree    PaymentStatus = "free"
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// RecipientKind selects which recipient list an operation works on.
type RecipientKind string

const (
	KindVendor     RecipientKind = "vendor"
	KindIndividual RecipientKind = "individual"
)

func (k RecipientKind) Valid() bool {
	return k == KindVendor || k == KindIndividual
}

// Location is an optional geo hint attached to an inquiry.
type Location struct {
	Latitude  *float64 `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude *float64 `bson:"longitude,omitempty" json:"longitude,omitempty"`
	Address   string   `bson:"address,omitempty" json:"address,omitempty"`
	City      string   `bson:"city,omitempty" json:"city,omitempty"`
	State     string   `bson:"state,omitempty" json:"state,omitempty"`
	Country   string   `bson:"country,omitempty" json:"country,omitempty"`
	Pincode   string   `bson:"pincode,omitempty" json:"pincode,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l *Location) HasCoordinates() bool {
	return l != nil && l.Latitude != nil && l.Longitude != nil
}

// IsEmpty reports whether the location carries nothing usable for matching.
func (l *Location) IsEmpty() bool {
	return l == nil || (!l.HasCoordinates() && l.Address == "" && l.City == "" && l.State == "" && l.Pincode == "" && l.Country == "")
}

// Submitter is the snapshot of the authenticated user taken at submission time.
type Submitter struct {
	UserID utils.SixID
	Name   string
	Email  string
	Phone  string
}

// Actor is the authenticated user performing a recipient operation.
type Actor struct {
	ID   utils.SixID
	Name string
	Role UserRole
}

type VendorRecipient struct {
	VendorID       utils.SixID    `bson:"vendor_id" json:"vendor_id"`
	VendorName     string         `bson:"vendor_name" json:"vendor_name"`
	BusinessName   string         `bson:"business_name" json:"business_name"`
	ContactedAt    *time.Time     `bson:"contacted_at,omitempty" json:"contacted_at,omitempty"`
	ResponseStatus ResponseStatus `bson:"response_status" json:"response_status"`
}

type IndividualRecipient struct {
	IndividualID   utils.SixID    `bson:"individual_id" json:"individual_id"`
	IndividualName string         `bson:"individual_name" json:"individual_name"`
	ContactedAt    *time.Time     `bson:"contacted_at,omitempty" json:"contacted_at,omitempty"`
	ResponseStatus ResponseStatus `bson:"response_status" json:"response_status"`
}

// Recipients are fixed when the inquiry is created. Only ResponseStatus and
// ContactedAt of an entry change afterwards.
type Recipients struct {
	Vendors     []VendorRecipient     `bson:"vendors" json:"vendors"`
	Individuals []IndividualRecipient `bson:"individuals" json:"individuals"`
}

// Response is one entry of the append-only decision log.
type Response struct {
	ResponderID   utils.SixID   `bson:"responder_id" json:"responder_id"`
	Response      Decision      `bson:"response" json:"response"`
	Message       string        `bson:"message,omitempty" json:"message,omitempty"`
	RespondedAt   time.Time     `bson:"responded_at" json:"responded_at"`
	PaymentStatus PaymentStatus `bson:"payment_status" json:"payment_status"`
	PaymentID     string        `bson:"payment_id,omitempty" json:"payment_id,omitempty"`

	// Set once when the pending-payment reminder went out.
	PaymentRemindedAt *time.Time `bson:"payment_reminded_at,omitempty" json:"payment_reminded_at,omitempty"`
}

// Inquiry is a lead submitted by a user and fanned out to matching recipients.
type Inquiry struct {
	Base           `bson:",inline"`
	SubmittedBy    utils.SixID   `bson:"submitted_by" json:"submitted_by"`
	UserName       string        `bson:"user_name" json:"user_name"`
	UserEmail      string        `bson:"user_email" json:"user_email"`
	UserPhone      string        `bson:"user_phone" json:"user_phone"`
	SearchQuery    string        `bson:"search_query" json:"search_query"`
	SearchTags     []string      `bson:"search_tags,omitempty" json:"search_tags,omitempty"`
	InquiryMessage string        `bson:"inquiry_message,omitempty" json:"inquiry_message,omitempty"`
	UserLocation   *Location     `bson:"user_location,omitempty" json:"user_location,omitempty"`
	Status         InquiryStatus `bson:"status" json:"status"`
	Priority       Priority      `bson:"priority" json:"priority"`
	Recipients     Recipients    `bson:"recipients" json:"recipients"`
	Responses      []Response    `bson:"responses" json:"responses"`
	Views          int           `bson:"views" json:"views"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `bson:"updated_at" json:"updated_at"`
}

// RecipientIndex finds id in the recipient lists and returns which list and position.
func (i *Inquiry) RecipientIndex(id utils.SixID) (RecipientKind, int, bool) {
	for idx := range i.Recipients.Vendors {
		if i.Recipients.Vendors[idx].VendorID == id {
			return KindVendor, idx, true
		}
	}
	for idx := range i.Recipients.Individuals {
		if i.Recipients.Individuals[idx].IndividualID == id {
			return KindIndividual, idx, true
		}
	}
	return "", -1, false
}

func (i *Inquiry) IsRecipient(id utils.SixID) bool {
	_, _, ok := i.RecipientIndex(id)
	return ok
}

// ResponseBy returns the index of the responder's entry in Responses, or -1.
func (i *Inquiry) ResponseBy(id utils.SixID) int {
	for idx := range i.Responses {
		if i.Responses[idx].ResponderID == id {
			return idx
		}
	}
	return -1
}

// RecipientIDs lists every recipient, vendors first, skipping exclude.
func (i *Inquiry) RecipientIDs(exclude utils.SixID) []utils.SixID {
	ids := make([]utils.SixID, 0, len(i.Recipients.Vendors)+len(i.Recipients.Individuals))
	for _, v := range i.Recipients.Vendors {
		if v.VendorID != exclude {
			ids = append(ids, v.VendorID)
		}
	}
	for _, ind := range i.Recipients.Individuals {
		if ind.IndividualID != exclude {
			ids = append(ids, ind.IndividualID)
		}
	}
	return ids
}

// Candidate is a matched recipient projected from user, KYC and service records.
type Candidate struct {
	ID           utils.SixID `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email,omitempty"`
	Phone        string      `json:"phone,omitempty"`
	BusinessName string      `json:"business_name,omitempty"`
	Role         UserRole    `json:"role,omitempty"`
	CustomID     string      `json:"custom_id,omitempty"`
}

// RecipientSet is the matcher result.
type RecipientSet struct {
	Vendors     []Candidate
	Individuals []Candidate
}
