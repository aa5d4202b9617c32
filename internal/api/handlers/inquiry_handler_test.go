package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bazaar/leadhub/internal/api/handlers"
	"bazaar/leadhub/internal/apperr"
	"bazaar/leadhub/internal/models"
	"bazaar/leadhub/internal/payment"
	"bazaar/leadhub/internal/services"
	"bazaar/leadhub/internal/utils"
)

type inquiryFixture struct {
	svc     *MockInquiryService
	pricing *MockPricing
	locator *MockLocator
	router  *gin.Engine
	user    *models.User
}

func newInquiryFixture(role models.UserRole) *inquiryFixture {
	gin.SetMode(gin.TestMode)
	f := &inquiryFixture{
		svc:     new(MockInquiryService),
		pricing: new(MockPricing),
		locator: new(MockLocator),
		user:    testUser(role),
	}
	h := handlers.NewInquiryHandler(f.svc, f.pricing, f.locator)

	r := gin.New()
	r.GET("/v1/inquiries/location", h.DetectLocation)
	r.GET("/v1/inquiries/pricing", h.Pricing)
	authed := r.Group("/v1/inquiries", withUser(f.user))
	authed.POST("/submit", h.Submit)
	authed.GET("/vendor/list", h.List(models.KindVendor))
	authed.GET("/individual/list", h.List(models.KindIndividual))
	authed.GET("/vendor/details/:id", h.Details)
	authed.PUT("/vendor/response/:id", h.UpdateResponse)
	authed.POST("/vendor/accept/:id", h.Accept)
	authed.POST("/vendor/reject/:id", h.Reject)
	authed.POST("/vendor/verify-payment/:id", h.VerifyPayment)
	f.router = r
	return f
}

func (f *inquiryFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != nil {
		raw, _ := json.Marshal(body)
		buf = bytes.NewBuffer(raw)
	} else {
		buf = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "49.36.1.10:5555"
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestInquiryHandler_Submit(t *testing.T) {
	f := newInquiryFixture(models.RoleIndividual)
	req := services.SubmitRequest{SearchQuery: "hair styling near me", InquiryMessage: "Need a stylist"}
	submitter := models.Submitter{UserID: f.user.ID, Name: f.user.Name, Email: f.user.Email, Phone: f.user.Phone}
	id := utils.NewSixID()
	f.svc.On("Submit", mock.Anything, submitter, req).Return(&services.SubmitResult{
		InquiryID:   id,
		SearchQuery: req.SearchQuery,
		Recipients: services.RecipientSummary{
			Vendors: []models.VendorRecipient{{VendorID: utils.NewSixID()}, {VendorID: utils.NewSixID()}},
			Total:   2,
		},
		Status:    models.StatusPending,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}, nil)

	w := f.do(http.MethodPost, "/v1/inquiries/submit", req)
	assert.Equal(t, http.StatusCreated, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, id.String(), data["inquiry_id"])
	counts := data["recipients_count"].(map[string]interface{})
	assert.EqualValues(t, 2, counts["vendors"])
	assert.EqualValues(t, 0, counts["individuals"])
	assert.EqualValues(t, 2, counts["total"])
	f.svc.AssertExpectations(t)
}

func TestInquiryHandler_SubmitValidationError(t *testing.T) {
	f := newInquiryFixture(models.RoleIndividual)
	f.svc.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(nil, apperr.Validation("Search query is required"))

	w := f.do(http.MethodPost, "/v1/inquiries/submit", services.SubmitRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "validation_error", body["error"])
	assert.Equal(t, "Search query is required", body["message"])
}

func TestInquiryHandler_ListUsesKindAndQuery(t *testing.T) {
	f := newInquiryFixture(models.RoleVendor)
	f.svc.On("ListForRecipient", mock.Anything, f.user.ID, models.KindVendor, "all", 2, 5).
		Return(&services.Page{Items: []models.Inquiry{}, CurrentPage: 2, TotalPages: 3, TotalCount: 11, Limit: 5}, nil)
	f.svc.On("ListForRecipient", mock.Anything, f.user.ID, models.KindIndividual, "", 1, services.DefaultPageLimit).
		Return(&services.Page{Items: []models.Inquiry{}, CurrentPage: 1, Limit: services.DefaultPageLimit}, nil)

	w := f.do(http.MethodGet, "/v1/inquiries/vendor/list?status=all&page=2&limit=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	pagination := decode(t, w)["data"].(map[string]interface{})["pagination"].(map[string]interface{})
	assert.EqualValues(t, 3, pagination["total_pages"])
	assert.EqualValues(t, 11, pagination["total_count"])

	w = f.do(http.MethodGet, "/v1/inquiries/individual/list?page=x", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	f.svc.AssertExpectations(t)
}

func TestInquiryHandler_DetailsErrors(t *testing.T) {
	f := newInquiryFixture(models.RoleVendor)
	id := utils.NewSixID()
	f.svc.On("GetDetails", mock.Anything, id, f.user.ID).Return(nil, apperr.Forbidden("You are not authorized to view this inquiry"))

	w := f.do(http.MethodGet, "/v1/inquiries/vendor/details/"+id.String(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decode(t, w)["error"])

	w = f.do(http.MethodGet, "/v1/inquiries/vendor/details/not-an-id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid inquiry ID", decode(t, w)["message"])
}

func TestInquiryHandler_UpdateResponse(t *testing.T) {
	f := newInquiryFixture(models.RoleVendor)
	id := utils.NewSixID()
	f.svc.On("RecordResponse", mock.Anything, id, actorOf(f.user), models.ResponseInterested).
		Return(&models.Inquiry{Base: models.Base{ID: id}}, nil)

	w := f.do(http.MethodPut, "/v1/inquiries/vendor/response/"+id.String(), map[string]string{"response_status": "interested"})
	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "interested", data["response_status"])
}

func TestInquiryHandler_AcceptFreeAndPaid(t *testing.T) {
	f := newInquiryFixture(models.RoleVendor)
	freeID, paidID := utils.NewSixID(), utils.NewSixID()
	f.svc.On("Accept", mock.Anything, freeID, actorOf(f.user), "").Return(&services.AcceptResult{
		InquiryID: freeID, Status: models.StatusAccepted, Response: models.DecisionAccepted, PaymentStatus: models.PaymentFree,
	}, nil)
	f.svc.On("Accept", mock.Anything, paidID, actorOf(f.user), "call me").Return(&services.AcceptResult{
		InquiryID: paidID, PaymentRequired: true, PaymentStatus: models.PaymentPending,
		Order:     &payment.Order{ID: "order_1", Amount: 900, Currency: "INR"},
		LeadPrice: 9,
	}, nil)

	w := f.do(http.MethodPost, "/v1/inquiries/vendor/accept/"+freeID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Inquiry accepted successfully (Free period)", body["message"])
	assert.Equal(t, "free", body["data"].(map[string]interface{})["payment_status"])

	w = f.do(http.MethodPost, "/v1/inquiries/vendor/accept/"+paidID.String(), map[string]string{"message": "call me"})
	assert.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, "Payment required to accept this lead", body["message"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, true, data["payment_required"])
	assert.Equal(t, "order_1", data["payment_order"].(map[string]interface{})["id"])
	f.svc.AssertExpectations(t)
}

func TestInquiryHandler_AcceptConflictsMapToStatus(t *testing.T) {
	f := newInquiryFixture(models.RoleVendor)
	responded, raced, orderFail := utils.NewSixID(), utils.NewSixID(), utils.NewSixID()
	f.svc.On("Accept", mock.Anything, responded, mock.Anything, "").Return(nil, apperr.ClientConflict("You have already responded to this inquiry"))
	f.svc.On("Accept", mock.Anything, raced, mock.Anything, "").Return(nil, apperr.Conflict("Inquiry was modified concurrently, please retry"))
	f.svc.On("Accept", mock.Anything, orderFail, mock.Anything, "").Return(nil,
		&apperr.Error{Kind: apperr.KindPayment, Message: "Failed to create payment order", Status: http.StatusBadGateway})

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/v1/inquiries/vendor/accept/"+responded.String(), nil).Code)
	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/v1/inquiries/vendor/accept/"+raced.String(), nil).Code)

	w := f.do(http.MethodPost, "/v1/inquiries/vendor/accept/"+orderFail.String(), nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "payment_error", decode(t, w)["error"])
}

func TestInquiryHandler_DecisionBodyOptional(t *testing.T) {
	f := newInquiryFixture(models.RoleVendor)
	accepted, rejected := utils.NewSixID(), utils.NewSixID()
	f.svc.On("Accept", mock.Anything, accepted, actorOf(f.user), "").Return(&services.AcceptResult{
		InquiryID: accepted, Status: models.StatusAccepted, Response: models.DecisionAccepted, PaymentStatus: models.PaymentFree,
	}, nil).Once()
	f.svc.On("Reject", mock.Anything, rejected, actorOf(f.user), "").Return(&services.DecisionResult{
		InquiryID: rejected, Status: models.StatusRejected, Response: models.DecisionRejected,
	}, nil).Once()

	send := func(path, body string, length int64) *httptest.ResponseRecorder {
		req, _ := http.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.ContentLength = length
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		return w
	}

	// Chunked transfer with nothing in it.
	assert.Equal(t, http.StatusOK, send("/v1/inquiries/vendor/accept/"+accepted.String(), "", -1).Code)
	assert.Equal(t, http.StatusOK, send("/v1/inquiries/vendor/reject/"+rejected.String(), "", -1).Code)

	w := send("/v1/inquiries/vendor/accept/"+accepted.String(), "{not json", -1)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decode(t, w)["error"])
	f.svc.AssertExpectations(t)
}

func TestInquiryHandler_Reject(t *testing.T) {
	f := newInquiryFixture(models.RoleVendor)
	id := utils.NewSixID()
	f.svc.On("Reject", mock.Anything, id, actorOf(f.user), "not my area").Return(&services.DecisionResult{
		InquiryID: id, Status: models.StatusRejected, Response: models.DecisionRejected,
	}, nil)

	w := f.do(http.MethodPost, "/v1/inquiries/vendor/reject/"+id.String(), map[string]string{"message": "not my area"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rejected", decode(t, w)["data"].(map[string]interface{})["status"])
}

func TestInquiryHandler_VerifyPayment(t *testing.T) {
	f := newInquiryFixture(models.RoleVendor)
	id := utils.NewSixID()
	proof := services.PaymentProof{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"}
	f.svc.On("VerifyPayment", mock.Anything, id, actorOf(f.user), proof).Return(&services.DecisionResult{
		InquiryID: id, Status: models.StatusAccepted, Response: models.DecisionAccepted, PaymentStatus: models.PaymentPaid, PaymentID: "pay_1",
	}, nil)

	w := f.do(http.MethodPost, "/v1/inquiries/vendor/verify-payment/"+id.String(), proof)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paid", decode(t, w)["data"].(map[string]interface{})["payment_status"])

	w = f.do(http.MethodPost, "/v1/inquiries/vendor/verify-payment/"+id.String(), map[string]string{"razorpay_order_id": "order_1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.svc.AssertNumberOfCalls(t, "VerifyPayment", 1)
}

func TestInquiryHandler_LocationAndPricing(t *testing.T) {
	f := newInquiryFixture(models.RoleIndividual)
	f.locator.On("FromIP", mock.Anything, "49.36.1.10").Return(&models.Location{City: "Pune", Pincode: "411001"}, nil).Once()
	f.pricing.On("Pricing", mock.Anything).Return(services.Pricing{LeadPrice: 9, LeadPricePaise: 900, FreePeriodMinutes: 60, PaidPeriodHours: 12, Currency: "INR"})

	w := f.do(http.MethodGet, "/v1/inquiries/location", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "49.36.1.10", data["ip_address"])

	w = f.do(http.MethodGet, "/v1/inquiries/pricing", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	pricing := decode(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 9, pricing["lead_price"])
	assert.EqualValues(t, 60, pricing["free_period_minutes"])
	assert.Equal(t, "INR", pricing["currency"])

	f.locator.On("FromIP", mock.Anything, "49.36.1.10").Return(nil, services.ErrLocationUnavailable).Once()
	w = f.do(http.MethodGet, "/v1/inquiries/location", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInquiryHandler_UnknownErrorHidden(t *testing.T) {
	f := newInquiryFixture(models.RoleVendor)
	id := utils.NewSixID()
	f.svc.On("Reject", mock.Anything, id, mock.Anything, "").Return(nil, errors.New("mongo: connection reset"))

	w := f.do(http.MethodPost, "/v1/inquiries/vendor/reject/"+id.String(), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "internal_error", body["error"])
	assert.NotContains(t, body["message"], "mongo")
}
