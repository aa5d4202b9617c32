package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bazaar/leadhub/internal/apperr"
	"bazaar/leadhub/internal/db"
	"bazaar/leadhub/internal/models"
	"bazaar/leadhub/internal/notify"
	"bazaar/leadhub/internal/storage"
	"bazaar/leadhub/internal/utils"
)

// Document types accepted for upload.
var kycDocTypes = map[string]bool{
	"aadhar":           true,
	"pan":              true,
	"photo":            true,
	"shop_photo":       true,
	"business_license": true,
	"gst_certificate":  true,
}

var kycContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// IKycStore persists KYC records.
type IKycStore interface {
	FindByUser(ctx context.Context, userID utils.SixID, role models.UserRole) (*models.VendorKyc, error)
	List(ctx context.Context, status models.KycStatus, skip, limit int64) ([]models.VendorKyc, int64, error)
	// SetReview moves a pending record to status and returns it, or nil when it was not pending.
	SetReview(ctx context.Context, id utils.SixID, status models.KycStatus, adminID utils.SixID, reason string, at time.Time) (*models.VendorKyc, error)
	PushDocument(ctx context.Context, userID utils.SixID, doc models.KycDocument) (bool, error)
	SetUserKycStatus(ctx context.Context, userID utils.SixID, status models.KycStatus) error
}

// DocumentQueue schedules normalisation of an uploaded document.
type DocumentQueue interface {
	EnqueueDocumentProcessing(ctx context.Context, userID utils.SixID, docType, key string) error
}

type UploadTicket struct {
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expires_in"`
}

// Eligibility is the outcome of the staff promotion check.
type Eligibility struct {
	UserID   utils.SixID `json:"user_id"`
	Eligible bool        `json:"eligible"`
	Reason   string      `json:"reason,omitempty"`
}

type KycPage struct {
	Items       []models.VendorKyc `json:"kyc"`
	CurrentPage int                `json:"current_page"`
	TotalCount  int64              `json:"total_count"`
	Limit       int                `json:"limit"`
}

type IKycService interface {
	EnsureApproved(ctx context.Context, userID utils.SixID, role models.UserRole) error
	ListByStatus(ctx context.Context, status models.KycStatus, page, limit int) (*KycPage, error)
	Review(ctx context.Context, kycID, adminID utils.SixID, approve bool, reason string) (*models.VendorKyc, error)
	RequestDocumentUpload(ctx context.Context, userID utils.SixID, docType, filename, contentType string) (*UploadTicket, error)
	SubmitDocument(ctx context.Context, userID utils.SixID, docType, key string) error
	AttachDocument(ctx context.Context, userID utils.SixID, docType, key string) error
	StaffEligibility(ctx context.Context, individualUserID utils.SixID) (*Eligibility, error)
}

type kycService struct {
	store     IKycStore
	directory IDirectoryStore
	storage   storage.IS3Storage
	documents DocumentQueue
	emails    notify.EmailEnqueuer
	now       func() time.Time
}

// NewKycService wires the KYC gatekeeper. storage, documents and emails may be nil
// when those features are not configured.
func NewKycService(store IKycStore, directory IDirectoryStore, s3 storage.IS3Storage, documents DocumentQueue, emails notify.EmailEnqueuer) IKycService {
	return &kycService{
		store:     store,
		directory: directory,
		storage:   s3,
		documents: documents,
		emails:    emails,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *kycService) EnsureApproved(ctx context.Context, userID utils.SixID, role models.UserRole) error {
	kyc, err := s.store.FindByUser(ctx, userID, role)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Forbidden("KYC not approved")
		}
		return err
	}
	if kyc.KycStatus != models.KycApproved {
		return apperr.Forbidden("KYC not approved")
	}
	return nil
}

func (s *kycService) ListByStatus(ctx context.Context, status models.KycStatus, page, limit int) (*KycPage, error) {
	switch status {
	case "", models.KycPending, models.KycApproved, models.KycRejected:
	default:
		return nil, apperr.Validation("Invalid KYC status '%s'", status)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	items, total, err := s.store.List(ctx, status, int64((page-1)*limit), int64(limit))
	if err != nil {
		return nil, err
	}
	return &KycPage{Items: items, CurrentPage: page, TotalCount: total, Limit: limit}, nil
}

func (s *kycService) Review(ctx context.Context, kycID, adminID utils.SixID, approve bool, reason string) (*models.VendorKyc, error) {
	status := models.KycApproved
	reason = strings.TrimSpace(reason)
	if !approve {
		status = models.KycRejected
		if reason == "" {
			return nil, apperr.Validation("A reason is required when rejecting KYC")
		}
	}

	kyc, err := s.store.SetReview(ctx, kycID, status, adminID, reason, s.now())
	if err != nil {
		return nil, err
	}
	if kyc == nil {
		return nil, apperr.Conflict("KYC is not pending review")
	}
	if err := s.store.SetUserKycStatus(ctx, kyc.UserID, status); err != nil {
		log.Printf("KYC: failed to mirror status %s onto user %s: %v", status, kyc.UserID, err)
	}
	log.Printf("KYC: %s %s by %s", kycID, status, adminID)

	if s.emails != nil {
		if user, err := s.directory.FindUser(ctx, kyc.UserID); err == nil && user.Email != "" {
			err = s.emails.EnqueueEmail(ctx, user.Email, "kyc_reviewed", map[string]interface{}{
				"recipient_name":   user.Name,
				"kyc_status":       status,
				"rejection_reason": reason,
			})
			if err != nil {
				log.Printf("KYC: failed to enqueue review email for %s: %v", kyc.UserID, err)
			}
		}
	}
	return kyc, nil
}

func validateDocType(docType string) error {
	if !kycDocTypes[docType] {
		return apperr.Validation("Unsupported document type '%s'", docType)
	}
	return nil
}

func (s *kycService) RequestDocumentUpload(ctx context.Context, userID utils.SixID, docType, filename, contentType string) (*UploadTicket, error) {
	if err := validateDocType(docType); err != nil {
		return nil, err
	}
	if strings.TrimSpace(filename) == "" {
		return nil, apperr.Validation("Filename is required")
	}
	if !kycContentTypes[contentType] {
		return nil, apperr.Validation("Only JPEG and PNG documents are accepted")
	}
	if s.storage == nil {
		return nil, apperr.Dependency(nil, "Document storage is not configured")
	}
	url, key, err := s.storage.PresignUpload(ctx, userID.String(), docType, filename, contentType)
	if err != nil {
		return nil, apperr.Dependency(err, "Failed to prepare document upload")
	}
	return &UploadTicket{UploadURL: url, Key: key, ExpiresIn: int((15 * time.Minute).Seconds())}, nil
}

// SubmitDocument is called once the client finished the presigned upload.
func (s *kycService) SubmitDocument(ctx context.Context, userID utils.SixID, docType, key string) error {
	if err := validateDocType(docType); err != nil {
		return err
	}
	if !strings.HasPrefix(key, "kyc/"+userID.String()+"/") {
		return apperr.Forbidden("Document key does not belong to this user")
	}
	if s.documents == nil {
		return s.AttachDocument(ctx, userID, docType, key)
	}
	if err := s.documents.EnqueueDocumentProcessing(ctx, userID, docType, key); err != nil {
		return fmt.Errorf("failed to enqueue document processing: %w", err)
	}
	return nil
}

func (s *kycService) AttachDocument(ctx context.Context, userID utils.SixID, docType, key string) error {
	ok, err := s.store.PushDocument(ctx, userID, models.KycDocument{DocType: docType, Key: key, UploadedAt: s.now()})
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("KYC record not found")
	}
	return nil
}

func (s *kycService) StaffEligibility(ctx context.Context, individualUserID utils.SixID) (*Eligibility, error) {
	user, err := s.directory.FindUser(ctx, individualUserID)
	if err != nil {
		return nil, err
	}
	out := &Eligibility{UserID: individualUserID}
	switch {
	case user.Role != models.RoleIndividual:
		out.Reason = "User is not an individual"
	case !user.Active:
		out.Reason = "User is not active"
	}
	if out.Reason != "" {
		return out, nil
	}

	staff, err := s.directory.IsActiveStaff(ctx, individualUserID)
	if err != nil {
		return nil, err
	}
	if staff {
		out.Reason = "User is already staff"
		return out, nil
	}
	if err := s.EnsureApproved(ctx, individualUserID, models.RoleIndividual); err != nil {
		if errors.Is(err, apperr.ErrForbidden) {
			out.Reason = apperr.Message(err)
			return out, nil
		}
		return nil, err
	}
	out.Eligible = true
	return out, nil
}

type mongoKycStore struct {
	db *mongo.Database
}

func NewKycStore(database *mongo.Database) IKycStore {
	return &mongoKycStore{db: database}
}

func (s *mongoKycStore) coll() *mongo.Collection {
	return s.db.Collection(db.KycCollection)
}

func (s *mongoKycStore) FindByUser(ctx context.Context, userID utils.SixID, role models.UserRole) (*models.VendorKyc, error) {
	var kyc models.VendorKyc
	err := s.coll().FindOne(ctx, bson.M{"vendor_id": userID, "user_role": role}).Decode(&kyc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("KYC record not found")
		}
		return nil, fmt.Errorf("failed to find KYC for %s: %w", userID, err)
	}
	return &kyc, nil
}

func (s *mongoKycStore) List(ctx context.Context, status models.KycStatus, skip, limit int64) ([]models.VendorKyc, int64, error) {
	filter := bson.M{}
	if status != "" {
		filter["kyc_status"] = status
	}
	total, err := s.coll().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count KYC records: %w", err)
	}
	items, err := findAll[models.VendorKyc](ctx, s.coll(), filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetSkip(skip).SetLimit(limit))
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []models.VendorKyc{}
	}
	return items, total, nil
}

func (s *mongoKycStore) SetReview(ctx context.Context, id utils.SixID, status models.KycStatus, adminID utils.SixID, reason string, at time.Time) (*models.VendorKyc, error) {
	set := bson.M{
		"kyc_status":  status,
		"reviewed_by": adminID,
		"reviewed_at": at,
		"updated_at":  at,
	}
	if reason != "" {
		set["rejection_reason"] = reason
	}
	var kyc models.VendorKyc
	err := s.coll().FindOneAndUpdate(ctx,
		bson.M{"_id": id, "kyc_status": models.KycPending},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&kyc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			n, cerr := s.coll().CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
			if cerr == nil && n == 0 {
				return nil, apperr.NotFound("KYC record not found")
			}
			return nil, nil
		}
		return nil, fmt.Errorf("failed to review KYC %s: %w", id, err)
	}
	return &kyc, nil
}

func (s *mongoKycStore) PushDocument(ctx context.Context, userID utils.SixID, doc models.KycDocument) (bool, error) {
	res, err := s.coll().UpdateOne(ctx,
		bson.M{"vendor_id": userID},
		bson.M{
			"$push": bson.M{"documents": doc},
			"$set":  bson.M{"updated_at": doc.UploadedAt},
		})
	if err != nil {
		return false, fmt.Errorf("failed to attach document: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *mongoKycStore) SetUserKycStatus(ctx context.Context, userID utils.SixID, status models.KycStatus) error {
	_, err := s.db.Collection(db.UsersCollection).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"kycStatus": status}})
	if err != nil {
		return fmt.Errorf("failed to update user KYC status: %w", err)
	}
	return nil
}
