package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bazaar/leadhub/internal/apperr"
	"bazaar/leadhub/internal/db"
	"bazaar/leadhub/internal/models"
	"bazaar/leadhub/internal/utils"
)

// ListFilter selects a page of inquiries for one recipient.
type ListFilter struct {
	RecipientID utils.SixID
	Kind        models.RecipientKind
	// Status is ignored when empty.
	Status models.InquiryStatus
	Skip   int64
	Limit  int64
}

// IInquiryStore persists inquiries. Every mutating method is a single
// conditional update and reports whether it matched.
type IInquiryStore interface {
	Insert(ctx context.Context, inq *models.Inquiry) (*models.Inquiry, error)
	FindByID(ctx context.Context, id utils.SixID) (*models.Inquiry, error)
	List(ctx context.Context, f ListFilter) ([]models.Inquiry, int64, error)
	SetRecipientResponse(ctx context.Context, id utils.SixID, kind models.RecipientKind, recipientID utils.SixID, status models.ResponseStatus, at time.Time) (bool, error)
	PromoteStatus(ctx context.Context, id utils.SixID, from, to models.InquiryStatus, at time.Time) (bool, error)
	IncrementViews(ctx context.Context, id utils.SixID) (*models.Inquiry, error)
	AppendResponse(ctx context.Context, id utils.SixID, resp models.Response, newStatus *models.InquiryStatus) (bool, error)
	SettlePayment(ctx context.Context, id, responderID utils.SixID, orderID, paymentID string, at time.Time) (bool, error)
	MarkPaymentReminded(ctx context.Context, id, responderID utils.SixID, orderID string, at time.Time) (bool, error)
}

type mongoInquiryStore struct {
	coll *mongo.Collection
}

func NewInquiryStore(database *mongo.Database) IInquiryStore {
	return &mongoInquiryStore{coll: database.Collection(db.InquiriesCollection)}
}

func recipientField(kind models.RecipientKind) string {
	if kind == models.KindVendor {
		return "recipients.vendors.vendor_id"
	}
	return "recipients.individuals.individual_id"
}

func listFilter(f ListFilter) bson.M {
	filter := bson.M{recipientField(f.Kind): f.RecipientID}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	return filter
}

func statusIn(statuses []models.InquiryStatus) bson.M {
	return bson.M{"$in": statuses}
}

// appendResponseFilter matches only while the responder has no entry yet and
// the inquiry can still move to newStatus.
func appendResponseFilter(id, responderID utils.SixID, newStatus *models.InquiryStatus) bson.M {
	filter := bson.M{
		"_id":                    id,
		"responses.responder_id": bson.M{"$ne": responderID},
		"status":                 bson.M{"$nin": bson.A{models.StatusCompleted, models.StatusCancelled}},
	}
	if newStatus != nil {
		filter["status"] = statusIn(models.SourcesFor(*newStatus))
	}
	return filter
}

func pendingPaymentMatch(responderID utils.SixID, orderID string) bson.M {
	return bson.M{
		"responder_id":   responderID,
		"payment_status": models.PaymentPending,
		"payment_id":     orderID,
	}
}

func (s *mongoInquiryStore) Insert(ctx context.Context, inq *models.Inquiry) (*models.Inquiry, error) {
	return db.InsertOne(ctx, s.coll, inq)
}

func (s *mongoInquiryStore) FindByID(ctx context.Context, id utils.SixID) (*models.Inquiry, error) {
	var inq models.Inquiry
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&inq); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("Inquiry not found")
		}
		return nil, fmt.Errorf("failed to find inquiry %s: %w", id, err)
	}
	return &inq, nil
}

func (s *mongoInquiryStore) List(ctx context.Context, f ListFilter) ([]models.Inquiry, int64, error) {
	filter := listFilter(f)
	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count inquiries: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(f.Skip).
		SetLimit(f.Limit)
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list inquiries: %w", err)
	}
	items := []models.Inquiry{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, fmt.Errorf("failed to decode inquiries: %w", err)
	}
	return items, total, nil
}

func (s *mongoInquiryStore) SetRecipientResponse(ctx context.Context, id utils.SixID, kind models.RecipientKind, recipientID utils.SixID, status models.ResponseStatus, at time.Time) (bool, error) {
	list := "recipients.individuals"
	if kind == models.KindVendor {
		list = "recipients.vendors"
	}
	filter := bson.M{"_id": id, recipientField(kind): recipientID}
	update := bson.M{"$set": bson.M{
		list + ".$.response_status": status,
		list + ".$.contacted_at":    at,
		"updated_at":                at,
	}}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to update recipient response: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *mongoInquiryStore) PromoteStatus(ctx context.Context, id utils.SixID, from, to models.InquiryStatus, at time.Time) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": at}})
	if err != nil {
		return false, fmt.Errorf("failed to promote inquiry status: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *mongoInquiryStore) IncrementViews(ctx context.Context, id utils.SixID) (*models.Inquiry, error) {
	var inq models.Inquiry
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"views": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&inq)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("Inquiry not found")
		}
		return nil, fmt.Errorf("failed to increment views: %w", err)
	}
	return &inq, nil
}

func (s *mongoInquiryStore) AppendResponse(ctx context.Context, id utils.SixID, resp models.Response, newStatus *models.InquiryStatus) (bool, error) {
	set := bson.M{"updated_at": resp.RespondedAt}
	if newStatus != nil {
		set["status"] = *newStatus
	}
	update := bson.M{
		"$push": bson.M{"responses": resp},
		"$set":  set,
	}
	res, err := s.coll.UpdateOne(ctx, appendResponseFilter(id, resp.ResponderID, newStatus), update)
	if err != nil {
		return false, fmt.Errorf("failed to append response: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *mongoInquiryStore) SettlePayment(ctx context.Context, id, responderID utils.SixID, orderID, paymentID string, at time.Time) (bool, error) {
	filter := bson.M{
		"_id":       id,
		"responses": bson.M{"$elemMatch": pendingPaymentMatch(responderID, orderID)},
		"status":    statusIn(models.SourcesFor(models.StatusAccepted)),
	}
	update := bson.M{"$set": bson.M{
		"responses.$[r].payment_status": models.PaymentPaid,
		"responses.$[r].payment_id":     paymentID,
		"status":                        models.StatusAccepted,
		"updated_at":                    at,
	}}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{Filters: []interface{}{
		bson.M{"r.responder_id": responderID, "r.payment_status": models.PaymentPending, "r.payment_id": orderID},
	}})
	res, err := s.coll.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return false, fmt.Errorf("failed to settle payment: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *mongoInquiryStore) MarkPaymentReminded(ctx context.Context, id, responderID utils.SixID, orderID string, at time.Time) (bool, error) {
	match := pendingPaymentMatch(responderID, orderID)
	match["payment_reminded_at"] = bson.M{"$exists": false}
	update := bson.M{"$set": bson.M{"responses.$[r].payment_reminded_at": at}}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{Filters: []interface{}{
		bson.M{
			"r.responder_id":        responderID,
			"r.payment_status":      models.PaymentPending,
			"r.payment_id":          orderID,
			"r.payment_reminded_at": bson.M{"$exists": false},
		},
	}})
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id, "responses": bson.M{"$elemMatch": match}}, update, opts)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment reminder: %w", err)
	}
	return res.MatchedCount > 0, nil
}
