package services

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"

	"bazaar/leadhub/internal/apperr"
	"bazaar/leadhub/internal/models"
	"bazaar/leadhub/internal/notify"
	"bazaar/leadhub/internal/payment"
	"bazaar/leadhub/internal/utils"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100

	minQueryLength   = 2
	maxQueryLength   = 200
	maxMessageLength = 500

	// StatusFilterAll disables the status filter when listing.
	StatusFilterAll = "all"
)

var pincodePattern = regexp.MustCompile(`\b\d{6}\b`)

// SubmitRequest is the user supplied part of a new inquiry.
type SubmitRequest struct {
	SearchQuery    string           `json:"search_query"`
	InquiryMessage string           `json:"inquiry_message"`
	UserLocation   *models.Location `json:"user_location"`
	Priority       models.Priority  `json:"priority"`
	SearchTags     []string         `json:"search_tags"`
}

type RecipientSummary struct {
	Vendors     []models.VendorRecipient     `json:"vendors"`
	Individuals []models.IndividualRecipient `json:"individuals"`
	Total       int                          `json:"total"`
}

type SubmitResult struct {
	InquiryID   utils.SixID          `json:"inquiry_id"`
	SearchQuery string               `json:"search_query"`
	Recipients  RecipientSummary     `json:"recipients"`
	Status      models.InquiryStatus `json:"status"`
	CreatedAt   time.Time            `json:"created_at"`
}

// AcceptResult is either an immediate free acceptance or a payment requirement.
type AcceptResult struct {
	InquiryID       utils.SixID          `json:"inquiry_id"`
	Status          models.InquiryStatus `json:"status,omitempty"`
	Response        models.Decision      `json:"response"`
	PaymentStatus   models.PaymentStatus `json:"payment_status"`
	PaymentRequired bool                 `json:"payment_required"`
	Order           *payment.Order       `json:"payment_order,omitempty"`
	LeadPrice       float64              `json:"lead_price,omitempty"`
}

type DecisionResult struct {
	InquiryID     utils.SixID          `json:"inquiry_id"`
	Status        models.InquiryStatus `json:"status"`
	Response      models.Decision      `json:"response"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	PaymentID     string               `json:"payment_id,omitempty"`
}

type Page struct {
	Items       []models.Inquiry `json:"inquiries"`
	CurrentPage int              `json:"current_page"`
	TotalPages  int              `json:"total_pages"`
	TotalCount  int64            `json:"total_count"`
	Limit       int              `json:"limit"`
}

// PaymentReminderScheduler arranges a nudge for a paid acceptance whose
// payment has not been verified yet.
type PaymentReminderScheduler interface {
	SchedulePaymentReminder(ctx context.Context, inquiryID, responderID utils.SixID, orderID string, after time.Duration) error
}

// IInquiryService owns the inquiry lifecycle.
type IInquiryService interface {
	Submit(ctx context.Context, submitter models.Submitter, req SubmitRequest) (*SubmitResult, error)
	ListForRecipient(ctx context.Context, recipientID utils.SixID, kind models.RecipientKind, status string, page, limit int) (*Page, error)
	RecordResponse(ctx context.Context, id utils.SixID, responder models.Actor, status models.ResponseStatus) (*models.Inquiry, error)
	GetDetails(ctx context.Context, id, requesterID utils.SixID) (*models.Inquiry, error)
	Accept(ctx context.Context, id utils.SixID, responder models.Actor, message string) (*AcceptResult, error)
	Reject(ctx context.Context, id utils.SixID, responder models.Actor, message string) (*DecisionResult, error)
	VerifyPayment(ctx context.Context, id utils.SixID, responder models.Actor, proof PaymentProof) (*DecisionResult, error)
	RemindPendingPayment(ctx context.Context, id, responderID utils.SixID, orderID string) (bool, error)
}

type inquiryService struct {
	store         IInquiryStore
	matcher       IMatcher
	gate          ILeadPaymentGate
	geo           ILocationService
	dispatcher    notify.Dispatcher
	reminders     PaymentReminderScheduler
	reminderDelay time.Duration
	now           func() time.Time
}

// NewInquiryService wires the lifecycle manager. geo and reminders may be nil.
func NewInquiryService(
	store IInquiryStore,
	matcher IMatcher,
	gate ILeadPaymentGate,
	geo ILocationService,
	dispatcher notify.Dispatcher,
	reminders PaymentReminderScheduler,
	reminderDelay time.Duration,
) IInquiryService {
	if dispatcher == nil {
		dispatcher = notify.Noop{}
	}
	return &inquiryService{
		store:         store,
		matcher:       matcher,
		gate:          gate,
		geo:           geo,
		dispatcher:    dispatcher,
		reminders:     reminders,
		reminderDelay: reminderDelay,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func validateSubmit(req *SubmitRequest) error {
	req.SearchQuery = strings.TrimSpace(req.SearchQuery)
	if req.SearchQuery == "" {
		return apperr.Validation("Search query is required")
	}
	if n := len([]rune(req.SearchQuery)); n < minQueryLength || n > maxQueryLength {
		return apperr.Validation("Search query must be between %d and %d characters", minQueryLength, maxQueryLength)
	}
	req.InquiryMessage = strings.TrimSpace(req.InquiryMessage)
	if len([]rune(req.InquiryMessage)) > maxMessageLength {
		return apperr.Validation("Inquiry message must be at most %d characters", maxMessageLength)
	}
	if loc := req.UserLocation; loc != nil {
		if (loc.Latitude == nil) != (loc.Longitude == nil) {
			return apperr.Validation("Both latitude and longitude are required")
		}
		if loc.HasCoordinates() {
			if *loc.Latitude < -90 || *loc.Latitude > 90 {
				return apperr.Validation("Latitude must be between -90 and 90")
			}
			if *loc.Longitude < -180 || *loc.Longitude > 180 {
				return apperr.Validation("Longitude must be between -180 and 180")
			}
		}
	}
	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	} else if !req.Priority.Valid() {
		return apperr.Validation("Invalid priority '%s'", req.Priority)
	}
	return nil
}

// enrichLocation fills missing address fields from the coordinates and pulls a
// pincode out of the address. Geocoding failures are ignored.
func (s *inquiryService) enrichLocation(ctx context.Context, loc *models.Location) *models.Location {
	if loc == nil {
		return nil
	}
	out := *loc
	if out.HasCoordinates() && (out.Address == "" || out.City == "") && s.geo != nil {
		resolved, err := s.geo.Reverse(ctx, *out.Latitude, *out.Longitude)
		if err != nil {
			log.Printf("Inquiry: reverse geocoding %.5f,%.5f failed: %v", *out.Latitude, *out.Longitude, err)
		} else {
			if out.Address == "" {
				out.Address = resolved.Address
			}
			if out.City == "" {
				out.City = resolved.City
			}
			if out.State == "" {
				out.State = resolved.State
			}
			if out.Country == "" {
				out.Country = resolved.Country
			}
			if out.Pincode == "" {
				out.Pincode = resolved.Pincode
			}
		}
	}
	if out.Pincode == "" && out.Address != "" {
		out.Pincode = pincodePattern.FindString(out.Address)
	}
	if out.IsEmpty() {
		return nil
	}
	return &out
}

func (s *inquiryService) Submit(ctx context.Context, submitter models.Submitter, req SubmitRequest) (*SubmitResult, error) {
	if err := validateSubmit(&req); err != nil {
		return nil, err
	}
	loc := s.enrichLocation(ctx, req.UserLocation)
	matched := s.matcher.FindRecipients(ctx, req.SearchQuery, loc)

	now := s.now()
	inq := &models.Inquiry{
		SubmittedBy:    submitter.UserID,
		UserName:       submitter.Name,
		UserEmail:      submitter.Email,
		UserPhone:      submitter.Phone,
		SearchQuery:    req.SearchQuery,
		SearchTags:     req.SearchTags,
		InquiryMessage: req.InquiryMessage,
		UserLocation:   loc,
		Status:         models.StatusPending,
		Priority:       req.Priority,
		Recipients: models.Recipients{
			Vendors:     make([]models.VendorRecipient, 0, len(matched.Vendors)),
			Individuals: make([]models.IndividualRecipient, 0, len(matched.Individuals)),
		},
		Responses: []models.Response{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, v := range matched.Vendors {
		inq.Recipients.Vendors = append(inq.Recipients.Vendors, models.VendorRecipient{
			VendorID:       v.ID,
			VendorName:     v.Name,
			BusinessName:   v.BusinessName,
			ResponseStatus: models.ResponseNotContacted,
		})
	}
	for _, ind := range matched.Individuals {
		inq.Recipients.Individuals = append(inq.Recipients.Individuals, models.IndividualRecipient{
			IndividualID:   ind.ID,
			IndividualName: ind.Name,
			ResponseStatus: models.ResponseNotContacted,
		})
	}

	saved, err := s.store.Insert(ctx, inq)
	if err != nil {
		return nil, err
	}
	log.Printf("Inquiry: %s submitted by %s reached %d vendors and %d individuals",
		saved.ID, submitter.UserID, len(saved.Recipients.Vendors), len(saved.Recipients.Individuals))

	s.dispatcher.Notify(ctx, saved.RecipientIDs(utils.SixID{}), notify.NewEvent(notify.EventNewInquiry, newInquiryData(saved)))

	return &SubmitResult{
		InquiryID:   saved.ID,
		SearchQuery: saved.SearchQuery,
		Recipients: RecipientSummary{
			Vendors:     saved.Recipients.Vendors,
			Individuals: saved.Recipients.Individuals,
			Total:       len(saved.Recipients.Vendors) + len(saved.Recipients.Individuals),
		},
		Status:    saved.Status,
		CreatedAt: saved.CreatedAt,
	}, nil
}

func newInquiryData(inq *models.Inquiry) map[string]interface{} {
	data := map[string]interface{}{
		"inquiry_id":      inq.ID.String(),
		"user_name":       inq.UserName,
		"user_phone":      inq.UserPhone,
		"search_query":    inq.SearchQuery,
		"inquiry_message": inq.InquiryMessage,
		"created_at":      inq.CreatedAt,
		"priority":        inq.Priority,
	}
	if inq.UserLocation != nil {
		data["user_location"] = inq.UserLocation
	}
	return data
}

func responseData(inq *models.Inquiry, responder models.Actor, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"inquiry_id":     inq.ID.String(),
		"search_query":   inq.SearchQuery,
		"responder_id":   responder.ID.String(),
		"responder_name": responder.Name,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

func (s *inquiryService) ListForRecipient(ctx context.Context, recipientID utils.SixID, kind models.RecipientKind, status string, page, limit int) (*Page, error) {
	if !kind.Valid() {
		return nil, apperr.Validation("Invalid recipient kind '%s'", kind)
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

	f := ListFilter{
		RecipientID: recipientID,
		Kind:        kind,
		Skip:        int64((page - 1) * limit),
		Limit:       int64(limit),
	}
	switch status {
	case "":
		f.Status = models.StatusPending
	case StatusFilterAll:
	default:
		st := models.InquiryStatus(status)
		if !st.Valid() {
			return nil, apperr.Validation("Invalid status '%s'", status)
		}
		f.Status = st
	}

	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return &Page{
		Items:       items,
		CurrentPage: page,
		TotalPages:  int((total + int64(limit) - 1) / int64(limit)),
		TotalCount:  total,
		Limit:       limit,
	}, nil
}

func (s *inquiryService) RecordResponse(ctx context.Context, id utils.SixID, responder models.Actor, status models.ResponseStatus) (*models.Inquiry, error) {
	if !status.Valid() {
		return nil, apperr.Validation("Invalid response status '%s'", status)
	}
	inq, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	kind, _, ok := inq.RecipientIndex(responder.ID)
	if !ok {
		return nil, apperr.Forbidden("You are not authorized to update this inquiry")
	}

	now := s.now()
	matched, err := s.store.SetRecipientResponse(ctx, id, kind, responder.ID, status, now)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, apperr.NotFound("Inquiry not found")
	}
	if status == models.ResponseContacted {
		if _, err := s.store.PromoteStatus(ctx, id, models.StatusPending, models.StatusContacted, now); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.dispatcher.Notify(ctx, updated.RecipientIDs(responder.ID), notify.NewEvent(notify.EventInquiryResponse,
		responseData(updated, responder, map[string]interface{}{
			"response_status": status,
			"updated_at":      now,
		})))
	return updated, nil
}

func (s *inquiryService) GetDetails(ctx context.Context, id, requesterID utils.SixID) (*models.Inquiry, error) {
	inq, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inq.IsRecipient(requesterID) {
		return nil, apperr.Forbidden("You are not authorized to view this inquiry")
	}
	return s.store.IncrementViews(ctx, id)
}

// loadForDecision runs the checks shared by accept and reject.
func (s *inquiryService) loadForDecision(ctx context.Context, id, responderID utils.SixID) (*models.Inquiry, error) {
	inq, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inq.IsRecipient(responderID) {
		return nil, apperr.Forbidden("You are not authorized to respond to this inquiry")
	}
	if inq.ResponseBy(responderID) >= 0 {
		return nil, errAlreadyResponded()
	}
	if inq.Status.IsTerminal() {
		return nil, errNoLongerAvailable()
	}
	return inq, nil
}

func errAlreadyResponded() error {
	return apperr.ClientConflict("You have already responded to this inquiry")
}

func errNoLongerAvailable() error {
	return apperr.ClientConflict("This inquiry is no longer available for acceptance")
}

// explainMissedAppend re-reads the inquiry after a conditional append matched
// nothing and reports why.
func (s *inquiryService) explainMissedAppend(ctx context.Context, id, responderID utils.SixID) error {
	inq, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if inq.ResponseBy(responderID) >= 0 {
		return errAlreadyResponded()
	}
	if inq.Status.IsTerminal() {
		return errNoLongerAvailable()
	}
	return apperr.Conflict("Inquiry was modified concurrently, please retry")
}

func (s *inquiryService) Accept(ctx context.Context, id utils.SixID, responder models.Actor, message string) (*AcceptResult, error) {
	inq, err := s.loadForDecision(ctx, id, responder.ID)
	if err != nil {
		return nil, err
	}
	if message == "" {
		message = "Inquiry accepted"
	}

	now := s.now()
	switch s.gate.Window(ctx, inq.CreatedAt, now) {
	case WindowExpired:
		return nil, errNoLongerAvailable()

	case WindowPaid:
		order, err := s.gate.CreateOrder(ctx, id, responder.ID, now)
		if err != nil {
			log.Printf("Inquiry: payment order for %s by %s failed: %v", id, responder.ID, err)
			return nil, &apperr.Error{Kind: apperr.KindPayment, Message: "Failed to create payment order", Status: 502, Err: err}
		}
		resp := models.Response{
			ResponderID:   responder.ID,
			Response:      models.DecisionAccepted,
			Message:       message,
			RespondedAt:   now,
			PaymentStatus: models.PaymentPending,
			PaymentID:     order.ID,
		}
		ok, err := s.store.AppendResponse(ctx, id, resp, nil)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, s.explainMissedAppend(ctx, id, responder.ID)
		}
		if s.reminders != nil && s.reminderDelay > 0 {
			if err := s.reminders.SchedulePaymentReminder(ctx, id, responder.ID, order.ID, s.reminderDelay); err != nil {
				log.Printf("Inquiry: failed to schedule payment reminder for %s/%s: %v", id, order.ID, err)
			}
		}
		return &AcceptResult{
			InquiryID:       id,
			Response:        models.DecisionAccepted,
			PaymentStatus:   models.PaymentPending,
			PaymentRequired: true,
			Order:           order,
			LeadPrice:       s.gate.Pricing(ctx).LeadPrice,
		}, nil
	}

	accepted := models.StatusAccepted
	resp := models.Response{
		ResponderID:   responder.ID,
		Response:      models.DecisionAccepted,
		Message:       message,
		RespondedAt:   now,
		PaymentStatus: models.PaymentFree,
	}
	ok, err := s.store.AppendResponse(ctx, id, resp, &accepted)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.explainMissedAppend(ctx, id, responder.ID)
	}

	s.dispatcher.Notify(ctx, inq.RecipientIDs(responder.ID), notify.NewEvent(notify.EventInquiryResponse,
		responseData(inq, responder, map[string]interface{}{
			"response":       models.DecisionAccepted,
			"message":        message,
			"updated_at":     now,
			"payment_status": models.PaymentFree,
		})))

	return &AcceptResult{
		InquiryID:     id,
		Status:        models.StatusAccepted,
		Response:      models.DecisionAccepted,
		PaymentStatus: models.PaymentFree,
	}, nil
}

func (s *inquiryService) Reject(ctx context.Context, id utils.SixID, responder models.Actor, message string) (*DecisionResult, error) {
	inq, err := s.loadForDecision(ctx, id, responder.ID)
	if err != nil {
		return nil, err
	}
	if message == "" {
		message = "Inquiry rejected"
	}

	now := s.now()
	rejected := models.StatusRejected
	resp := models.Response{
		ResponderID:   responder.ID,
		Response:      models.DecisionRejected,
		Message:       message,
		RespondedAt:   now,
		PaymentStatus: models.PaymentFree,
	}
	ok, err := s.store.AppendResponse(ctx, id, resp, &rejected)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.explainMissedAppend(ctx, id, responder.ID)
	}

	s.dispatcher.Notify(ctx, inq.RecipientIDs(responder.ID), notify.NewEvent(notify.EventInquiryResponse,
		responseData(inq, responder, map[string]interface{}{
			"response":   models.DecisionRejected,
			"message":    message,
			"updated_at": now,
		})))

	return &DecisionResult{
		InquiryID:     id,
		Status:        models.StatusRejected,
		Response:      models.DecisionRejected,
		PaymentStatus: models.PaymentFree,
	}, nil
}

func (s *inquiryService) VerifyPayment(ctx context.Context, id utils.SixID, responder models.Actor, proof PaymentProof) (*DecisionResult, error) {
	inq, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	idx := inq.ResponseBy(responder.ID)
	if idx < 0 || proof.OrderID == "" ||
		inq.Responses[idx].PaymentStatus != models.PaymentPending ||
		inq.Responses[idx].PaymentID != proof.OrderID {
		return nil, apperr.Validation("No pending payment found for this inquiry")
	}
	pending := inq.Responses[idx]

	if !s.gate.Verify(ctx, proof) {
		log.Printf("Inquiry: payment signature mismatch for %s order %s", id, proof.OrderID)
		return nil, apperr.Payment(nil, "Payment verification failed")
	}

	now := s.now()
	ok, err := s.store.SettlePayment(ctx, id, responder.ID, proof.OrderID, proof.PaymentID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.store.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if i := current.ResponseBy(responder.ID); i >= 0 && current.Responses[i].PaymentStatus == models.PaymentPaid {
			return nil, apperr.ClientConflict("Payment already verified")
		}
		if current.Status.IsTerminal() {
			return nil, errNoLongerAvailable()
		}
		return nil, apperr.Validation("No pending payment found for this inquiry")
	}

	s.dispatcher.Notify(ctx, inq.RecipientIDs(responder.ID), notify.NewEvent(notify.EventInquiryResponse,
		responseData(inq, responder, map[string]interface{}{
			"response":       models.DecisionAccepted,
			"message":        pending.Message,
			"updated_at":     now,
			"payment_status": models.PaymentPaid,
			"payment_id":     proof.PaymentID,
		})))

	return &DecisionResult{
		InquiryID:     id,
		Status:        models.StatusAccepted,
		Response:      models.DecisionAccepted,
		PaymentStatus: models.PaymentPaid,
		PaymentID:     proof.PaymentID,
	}, nil
}

// RemindPendingPayment nudges a responder whose paid acceptance is still
// unverified. The response entry is only stamped, so a late VerifyPayment
// still settles it. Reports false when there is nothing left to remind about.
func (s *inquiryService) RemindPendingPayment(ctx context.Context, id, responderID utils.SixID, orderID string) (bool, error) {
	inq, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !inq.Status.CanTransition(models.StatusAccepted) {
		return false, nil
	}
	marked, err := s.store.MarkPaymentReminded(ctx, id, responderID, orderID, s.now())
	if err != nil || !marked {
		return false, err
	}
	s.dispatcher.Notify(ctx, []utils.SixID{responderID}, notify.NewEvent(notify.EventPaymentReminder, map[string]interface{}{
		"inquiry_id":   inq.ID.String(),
		"search_query": inq.SearchQuery,
		"order_id":     orderID,
		"lead_price":   s.gate.Pricing(ctx).LeadPrice,
	}))
	log.Printf("Inquiry: reminded %s to pay for %s (order %s)", responderID, id, orderID)
	return true, nil
}
