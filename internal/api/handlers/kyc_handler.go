package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bazaar/leadhub/internal/api/middleware"
	"bazaar/leadhub/internal/apperr"
	"bazaar/leadhub/internal/models"
	"bazaar/leadhub/internal/services"
)

// KycHandler serves document uploads, staff eligibility and admin review.
type KycHandler struct {
	kyc services.IKycService
}

func NewKycHandler(kyc services.IKycService) *KycHandler {
	return &KycHandler{kyc: kyc}
}

type uploadURLRequest struct {
	DocType     string `json:"doc_type" binding:"required"`
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

// UploadURL handles POST /v1/kyc/documents/upload-url
func (h *KycHandler) UploadURL(c *gin.Context) {
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("doc_type, filename and content_type are required"))
		return
	}
	ticket, err := h.kyc.RequestDocumentUpload(c.Request.Context(), middleware.CurrentActor(c).ID, req.DocType, req.Filename, req.ContentType)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"data": ticket})
}

type submitDocumentRequest struct {
	DocType string `json:"doc_type" binding:"required"`
	Key     string `json:"key" binding:"required"`
}

// SubmitDocument handles POST /v1/kyc/documents once the client has uploaded.
func (h *KycHandler) SubmitDocument(c *gin.Context) {
	var req submitDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("doc_type and key are required"))
		return
	}
	if err := h.kyc.SubmitDocument(c.Request.Context(), middleware.CurrentActor(c).ID, req.DocType, req.Key); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "message": "Document received for processing"})
}

// StaffEligibility handles POST /v1/kyc/staff-eligibility/:user_id
func (h *KycHandler) StaffEligibility(c *gin.Context) {
	userID, ok := pathID(c, "user_id", "user")
	if !ok {
		return
	}
	result, err := h.kyc.StaffEligibility(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"data": result})
}

// List handles GET /v1/admin/kyc
func (h *KycHandler) List(c *gin.Context) {
	status := models.KycStatus(c.DefaultQuery("status", string(models.KycPending)))
	if status == services.StatusFilterAll {
		status = ""
	}
	page, err := h.kyc.ListByStatus(c.Request.Context(), status, queryInt(c, "page", 1), queryInt(c, "limit", services.DefaultPageLimit))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"data": page})
}

type reviewRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

// Review handles POST /v1/admin/kyc/:id/review
func (h *KycHandler) Review(c *gin.Context) {
	id, ok := pathID(c, "id", "KYC")
	if !ok {
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("Invalid request body"))
		return
	}
	kyc, err := h.kyc.Review(c.Request.Context(), id, middleware.CurrentActor(c).ID, req.Approve, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "KYC " + string(kyc.KycStatus), "data": kyc})
}
