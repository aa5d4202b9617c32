package models

import (
	"time"

	"bazaar/leadhub/internal/utils"
)

// UserRole is the marketplace role of a user account.
type UserRole string

const (
	RoleSuperAdmin  UserRole = "super_admin"
	RoleAdmin       UserRole = "admin"
	RoleSalesPerson UserRole = "sales_person"
	RoleVendor      UserRole = "vendor"
	RoleUser        UserRole = "user"
	RoleIndividual  UserRole = "individual"
)

func (r UserRole) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// User is the read model of an account. Registration lives elsewhere.
type User struct {
	Base      `bson:",inline"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email" json:"email"`
	Phone     string    `bson:"phone" json:"phone"`
	Role      UserRole  `bson:"role" json:"role"`
	CustomID  string    `bson:"customId,omitempty" json:"customId,omitempty"`
	Active    bool      `bson:"active" json:"active"`
	KycStatus KycStatus `bson:"kycStatus,omitempty" json:"kycStatus,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

type KycStatus string

const (
	KycPending  KycStatus = "pending"
	KycApproved KycStatus = "approved"
	KycRejected KycStatus = "rejected"
)

type Address struct {
	StreetAddress string `bson:"street_address,omitempty" json:"street_address,omitempty"`
	City          string `bson:"city,omitempty" json:"city,omitempty"`
	State         string `bson:"state,omitempty" json:"state,omitempty"`
	Country       string `bson:"country,omitempty" json:"country,omitempty"`
	Pincode       string `bson:"pincode,omitempty" json:"pincode,omitempty"`
	Landmark      string `bson:"landmark,omitempty" json:"landmark,omitempty"`
}

type PersonalDetails struct {
	FullName        string  `bson:"full_name,omitempty" json:"full_name,omitempty"`
	AadharNumber    string  `bson:"aadhar_number,omitempty" json:"aadhar_number,omitempty"`
	PersonalAddress Address `bson:"personal_address" json:"personal_address"`
}

type BusinessDetails struct {
	ShopName        string      `bson:"shop_name,omitempty" json:"shop_name,omitempty"`
	BusinessName    string      `bson:"business_name,omitempty" json:"business_name,omitempty"`
	BusinessType    string      `bson:"business_type,omitempty" json:"business_type,omitempty"`
	Category        utils.SixID `bson:"category,omitempty" json:"category,omitempty"`
	BusinessAddress Address     `bson:"business_address" json:"business_address"`
}

// KycDocument is an uploaded identity or business proof stored in object storage.
type KycDocument struct {
	DocType    string    `bson:"doc_type" json:"doc_type"`
	Key        string    `bson:"key" json:"key"`
	UploadedAt time.Time `bson:"uploaded_at" json:"uploaded_at"`
}

// VendorKyc is the identity/business verification record of a vendor or individual.
type VendorKyc struct {
	Base            `bson:",inline"`
	CustomID        string           `bson:"customId,omitempty" json:"customId,omitempty"`
	UserID          utils.SixID      `bson:"vendor_id" json:"vendor_id"`
	UserRole        UserRole         `bson:"user_role" json:"user_role"`
	KycStatus       KycStatus        `bson:"kyc_status" json:"kyc_status"`
	PersonalDetails *PersonalDetails `bson:"personal_details,omitempty" json:"personal_details,omitempty"`
	BusinessDetails *BusinessDetails `bson:"business_details,omitempty" json:"business_details,omitempty"`
	Documents       []KycDocument    `bson:"documents,omitempty" json:"documents,omitempty"`
	ReviewedBy      *utils.SixID     `bson:"reviewed_by,omitempty" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time       `bson:"reviewed_at,omitempty" json:"reviewed_at,omitempty"`
	RejectionReason string           `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `bson:"updated_at" json:"updated_at"`
}

// DisplayBusinessName prefers the shop name, then the business name, then fallback.
func (k *VendorKyc) DisplayBusinessName(fallback string) string {
	if k.BusinessDetails != nil {
		if k.BusinessDetails.ShopName != "" {
			return k.BusinessDetails.ShopName
		}
		if k.BusinessDetails.BusinessName != "" {
			return k.BusinessDetails.BusinessName
		}
	}
	return fallback
}

type ServiceStatus string

const (
	ServiceActive   ServiceStatus = "active"
	ServiceInactive ServiceStatus = "inactive"
	ServiceDraft    ServiceStatus = "draft"
)

// Service is a vendor's listing. Only active services are matched.
type Service struct {
	Base        `bson:",inline"`
	VendorID    utils.SixID   `bson:"vendor_id" json:"vendor_id"`
	ServiceName string        `bson:"service_name" json:"service_name"`
	Price       float64       `bson:"price" json:"price"`
	Description string        `bson:"description,omitempty" json:"description,omitempty"`
	Keywords    []string      `bson:"keywords,omitempty" json:"keywords,omitempty"`
	SearchTags  []string      `bson:"search_tags,omitempty" json:"search_tags,omitempty"`
	Category    utils.SixID   `bson:"category,omitempty" json:"category,omitempty"`
	Status      ServiceStatus `bson:"status" json:"status"`
}

type VendorCategory struct {
	Base         `bson:",inline"`
	CustomID     string `bson:"customId,omitempty" json:"customId,omitempty"`
	CategoryName string `bson:"category_name" json:"category_name"`
	IsDeleted    bool   `bson:"is_deleted" json:"is_deleted"`
}

type StaffStatus string

const (
	StaffActive   StaffStatus = "active"
	StaffInactive StaffStatus = "inactive"
	StaffRemoved  StaffStatus = "removed"
)

// Staff links an individual user to the vendor that employs them.
type Staff struct {
	Base             `bson:",inline"`
	VendorID         utils.SixID `bson:"vendor_id" json:"vendor_id"`
	IndividualUserID utils.SixID `bson:"individual_user_id" json:"individual_user_id"`
	Status           StaffStatus `bson:"status" json:"status"`
}
