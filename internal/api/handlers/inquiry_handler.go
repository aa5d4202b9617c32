package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bazaar/leadhub/internal/api/middleware"
	"bazaar/leadhub/internal/apperr"
	"bazaar/leadhub/internal/models"
	"bazaar/leadhub/internal/services"
)

// PricingSource is the part of the payment gate the public pricing route needs.
type PricingSource interface {
	Pricing(ctx context.Context) services.Pricing
}

// IPLocator resolves a client address to an approximate location.
type IPLocator interface {
	FromIP(ctx context.Context, ip string) (*models.Location, error)
}

// InquiryHandler serves the inquiry routes for both recipient kinds.
type InquiryHandler struct {
	inquiries services.IInquiryService
	pricing   PricingSource
	locator   IPLocator
}

func NewInquiryHandler(inquiries services.IInquiryService, pricing PricingSource, locator IPLocator) *InquiryHandler {
	return &InquiryHandler{inquiries: inquiries, pricing: pricing, locator: locator}
}

// Submit handles POST /v1/inquiries/submit
func (h *InquiryHandler) Submit(c *gin.Context) {
	var req services.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("Invalid request body"))
		return
	}

	user := middleware.CurrentUser(c)
	submitter := models.Submitter{UserID: user.ID, Name: user.Name, Email: user.Email, Phone: user.Phone}

	result, err := h.inquiries.Submit(c.Request.Context(), submitter, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Inquiry submitted successfully",
		"data": gin.H{
			"inquiry_id":   result.InquiryID,
			"search_query": result.SearchQuery,
			"recipients_count": gin.H{
				"vendors":     len(result.Recipients.Vendors),
				"individuals": len(result.Recipients.Individuals),
				"total":       result.Recipients.Total,
			},
			"status":     result.Status,
			"created_at": result.CreatedAt,
		},
	})
}

// List returns the handler for GET /v1/inquiries/{kind}/list
func (h *InquiryHandler) List(kind models.RecipientKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := h.inquiries.ListForRecipient(c.Request.Context(),
			middleware.CurrentActor(c).ID, kind,
			c.Query("status"),
			queryInt(c, "page", 1),
			queryInt(c, "limit", services.DefaultPageLimit))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, gin.H{
			"message": "Inquiries retrieved successfully",
			"data": gin.H{
				"inquiries": page.Items,
				"pagination": gin.H{
					"current_page": page.CurrentPage,
					"total_pages":  page.TotalPages,
					"total_count":  page.TotalCount,
					"limit":        page.Limit,
				},
			},
		})
	}
}

// Details handles GET /v1/inquiries/{kind}/details/:id
func (h *InquiryHandler) Details(c *gin.Context) {
	id, ok := pathID(c, "id", "inquiry")
	if !ok {
		return
	}
	inq, err := h.inquiries.GetDetails(c.Request.Context(), id, middleware.CurrentActor(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "Inquiry details retrieved successfully", "data": inq})
}

type responseRequest struct {
	ResponseStatus models.ResponseStatus `json:"response_status"`
}

// UpdateResponse handles PUT /v1/inquiries/{kind}/response/:id
func (h *InquiryHandler) UpdateResponse(c *gin.Context) {
	id, ok := pathID(c, "id", "inquiry")
	if !ok {
		return
	}
	var req responseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("Invalid request body"))
		return
	}
	inq, err := h.inquiries.RecordResponse(c.Request.Context(), id, middleware.CurrentActor(c), req.ResponseStatus)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"message": "Response status updated successfully",
		"data": gin.H{
			"inquiry_id":      inq.ID,
			"response_status": req.ResponseStatus,
			"updated_at":      inq.UpdatedAt,
		},
	})
}

type decisionRequest struct {
	Message string `json:"message"`
}

// bindDecision tolerates an empty body since the message is optional.
func bindDecision(c *gin.Context) (decisionRequest, bool) {
	var req decisionRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	// Chunked requests report ContentLength -1 even when the body is empty.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, apperr.Validation("Invalid request body"))
		return req, false
	}
	return req, true
}

// Accept handles POST /v1/inquiries/{kind}/accept/:id
func (h *InquiryHandler) Accept(c *gin.Context) {
	id, ok := pathID(c, "id", "inquiry")
	if !ok {
		return
	}
	req, ok := bindDecision(c)
	if !ok {
		return
	}
	result, err := h.inquiries.Accept(c.Request.Context(), id, middleware.CurrentActor(c), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	message := "Inquiry accepted successfully (Free period)"
	if result.PaymentRequired {
		message = "Payment required to accept this lead"
	}
	respondOK(c, gin.H{"message": message, "data": result})
}

// Reject handles POST /v1/inquiries/{kind}/reject/:id
func (h *InquiryHandler) Reject(c *gin.Context) {
	id, ok := pathID(c, "id", "inquiry")
	if !ok {
		return
	}
	req, ok := bindDecision(c)
	if !ok {
		return
	}
	result, err := h.inquiries.Reject(c.Request.Context(), id, middleware.CurrentActor(c), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "Inquiry rejected successfully", "data": result})
}

// VerifyPayment handles POST /v1/inquiries/{kind}/verify-payment/:id
func (h *InquiryHandler) VerifyPayment(c *gin.Context) {
	id, ok := pathID(c, "id", "inquiry")
	if !ok {
		return
	}
	var proof services.PaymentProof
	if err := c.ShouldBindJSON(&proof); err != nil {
		respondError(c, apperr.Validation("razorpay_order_id, razorpay_payment_id and razorpay_signature are required"))
		return
	}
	result, err := h.inquiries.VerifyPayment(c.Request.Context(), id, middleware.CurrentActor(c), proof)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "Payment verified and lead accepted successfully", "data": result})
}

// DetectLocation handles GET /v1/inquiries/location
func (h *InquiryHandler) DetectLocation(c *gin.Context) {
	ip := c.ClientIP()
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	loc, err := h.locator.FromIP(ctx, ip)
	if err != nil {
		if errors.Is(err, services.ErrLocationUnavailable) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   apperr.KindNotFound,
				"message": "Unable to determine location from IP address",
			})
			return
		}
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"message": "Location retrieved successfully",
		"data":    gin.H{"location": loc, "ip_address": ip},
	})
}

// Pricing handles GET /v1/inquiries/pricing
func (h *InquiryHandler) Pricing(c *gin.Context) {
	respondOK(c, gin.H{"data": h.pricing.Pricing(c.Request.Context())})
}
