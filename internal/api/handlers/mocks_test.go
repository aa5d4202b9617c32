package handlers_test

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"

	"bazaar/leadhub/internal/api/middleware"
	"bazaar/leadhub/internal/models"
	"bazaar/leadhub/internal/services"
	"bazaar/leadhub/internal/utils"
)

// --- Mocks ---

type MockInquiryService struct {
	mock.Mock
}

func (m *MockInquiryService) Submit(ctx context.Context, submitter models.Submitter, req services.SubmitRequest) (*services.SubmitResult, error) {
	args := m.Called(ctx, submitter, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SubmitResult), args.Error(1)
}

func (m *MockInquiryService) ListForRecipient(ctx context.Context, recipientID utils.SixID, kind models.RecipientKind, status string, page, limit int) (*services.Page, error) {
	args := m.Called(ctx, recipientID, kind, status, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Page), args.Error(1)
}

func (m *MockInquiryService) RecordResponse(ctx context.Context, id utils.SixID, responder models.Actor, status models.ResponseStatus) (*models.Inquiry, error) {
	args := m.Called(ctx, id, responder, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Inquiry), args.Error(1)
}

func (m *MockInquiryService) GetDetails(ctx context.Context, id, requesterID utils.SixID) (*models.Inquiry, error) {
	args := m.Called(ctx, id, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Inquiry), args.Error(1)
}

func (m *MockInquiryService) Accept(ctx context.Context, id utils.SixID, responder models.Actor, message string) (*services.AcceptResult, error) {
	args := m.Called(ctx, id, responder, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AcceptResult), args.Error(1)
}

func (m *MockInquiryService) Reject(ctx context.Context, id utils.SixID, responder models.Actor, message string) (*services.DecisionResult, error) {
	args := m.Called(ctx, id, responder, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.DecisionResult), args.Error(1)
}

func (m *MockInquiryService) VerifyPayment(ctx context.Context, id utils.SixID, responder models.Actor, proof services.PaymentProof) (*services.DecisionResult, error) {
	args := m.Called(ctx, id, responder, proof)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.DecisionResult), args.Error(1)
}

func (m *MockInquiryService) RemindPendingPayment(ctx context.Context, id, responderID utils.SixID, orderID string) (bool, error) {
	args := m.Called(ctx, id, responderID, orderID)
	return args.Bool(0), args.Error(1)
}

type MockKycService struct {
	mock.Mock
}

func (m *MockKycService) EnsureApproved(ctx context.Context, userID utils.SixID, role models.UserRole) error {
	return m.Called(ctx, userID, role).Error(0)
}

func (m *MockKycService) ListByStatus(ctx context.Context, status models.KycStatus, page, limit int) (*services.KycPage, error) {
	args := m.Called(ctx, status, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.KycPage), args.Error(1)
}

func (m *MockKycService) Review(ctx context.Context, kycID, adminID utils.SixID, approve bool, reason string) (*models.VendorKyc, error) {
	args := m.Called(ctx, kycID, adminID, approve, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VendorKyc), args.Error(1)
}

func (m *MockKycService) RequestDocumentUpload(ctx context.Context, userID utils.SixID, docType, filename, contentType string) (*services.UploadTicket, error) {
	args := m.Called(ctx, userID, docType, filename, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.UploadTicket), args.Error(1)
}

func (m *MockKycService) SubmitDocument(ctx context.Context, userID utils.SixID, docType, key string) error {
	return m.Called(ctx, userID, docType, key).Error(0)
}

func (m *MockKycService) AttachDocument(ctx context.Context, userID utils.SixID, docType, key string) error {
	return m.Called(ctx, userID, docType, key).Error(0)
}

func (m *MockKycService) StaffEligibility(ctx context.Context, individualUserID utils.SixID) (*services.Eligibility, error) {
	args := m.Called(ctx, individualUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Eligibility), args.Error(1)
}

type MockPricing struct {
	mock.Mock
}

func (m *MockPricing) Pricing(ctx context.Context) services.Pricing {
	return m.Called(ctx).Get(0).(services.Pricing)
}

type MockLocator struct {
	mock.Mock
}

func (m *MockLocator) FromIP(ctx context.Context, ip string) (*models.Location, error) {
	args := m.Called(ctx, ip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Location), args.Error(1)
}

type MockSettings struct {
	mock.Mock
}

func (m *MockSettings) Set(ctx context.Context, key string, value interface{}) error {
	return m.Called(ctx, key, value).Error(0)
}

type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) FindUser(ctx context.Context, id utils.SixID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type MockStreamer struct {
	mock.Mock
}

func (m *MockStreamer) Serve(w http.ResponseWriter, r *http.Request, userID utils.SixID) {
	m.Called(userID)
	w.WriteHeader(http.StatusOK)
}

// --- Helpers ---

// withUser stands in for AuthMiddleware.
func withUser(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, user.ID)
		c.Set(middleware.ContextKeyUser, user)
		c.Next()
	}
}

func testUser(role models.UserRole) *models.User {
	return &models.User{Base: models.NewBase(), Name: "Ravi", Email: "ravi@example.com", Phone: "9876543210", Role: role, Active: true}
}

func actorOf(u *models.User) models.Actor {
	return models.Actor{ID: u.ID, Name: u.Name, Role: u.Role}
}
