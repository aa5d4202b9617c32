package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bazaar/leadhub/internal/apperr"
	"bazaar/leadhub/internal/db"
	"bazaar/leadhub/internal/models"
	"bazaar/leadhub/internal/utils"
)

// IDirectoryStore is the read side of users, services, categories, KYC and staff.
type IDirectoryStore interface {
	ServicesMatching(ctx context.Context, terms []string) ([]models.Service, error)
	CategoryIDsMatching(ctx context.Context, terms []string) ([]utils.SixID, error)
	ServicesInCategories(ctx context.Context, categoryIDs []utils.SixID) ([]models.Service, error)
	KycMatching(ctx context.Context, role models.UserRole, terms []string, loc *models.Location) ([]models.VendorKyc, error)
	IndividualsMatching(ctx context.Context, query string, exclude []utils.SixID) ([]models.User, error)
	UsersByIDs(ctx context.Context, ids []utils.SixID) ([]models.User, error)
	ActiveStaffIDs(ctx context.Context) ([]utils.SixID, error)

	FindUser(ctx context.Context, id utils.SixID) (*models.User, error)
	IsActiveStaff(ctx context.Context, userID utils.SixID) (bool, error)
}

type mongoDirectoryStore struct {
	db *mongo.Database
}

// NewDirectoryStore returns the MongoDB backed directory.
func NewDirectoryStore(database *mongo.Database) IDirectoryStore {
	return &mongoDirectoryStore{db: database}
}

// regexClause is a case-insensitive substring match of a literal term.
func regexClause(field, term string) bson.M {
	return bson.M{field: bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"}}
}

func anyFieldMatches(fields []string, terms []string) bson.A {
	clauses := bson.A{}
	for _, term := range terms {
		for _, f := range fields {
			clauses = append(clauses, regexClause(f, term))
		}
	}
	return clauses
}

// serviceFilter matches active services on name, keywords, tags or description.
func serviceFilter(terms []string) bson.M {
	return bson.M{
		"status": models.ServiceActive,
		"$or":    anyFieldMatches([]string{"service_name", "keywords", "search_tags", "description"}, terms),
	}
}

func categoryFilter(terms []string) bson.M {
	return bson.M{
		"is_deleted": bson.M{"$ne": true},
		"$or":        anyFieldMatches([]string{"category_name"}, terms),
	}
}

// locationClauses matches an address sub-document against the user's location.
// A pincode also matches every pincode sharing its first three digits.
func locationClauses(addrPrefix string, loc *models.Location) bson.A {
	clauses := bson.A{}
	if loc == nil {
		return clauses
	}
	if loc.City != "" {
		clauses = append(clauses,
			regexClause(addrPrefix+".city", loc.City),
			regexClause(addrPrefix+".street_address", loc.City))
	}
	if loc.State != "" {
		clauses = append(clauses, regexClause(addrPrefix+".state", loc.State))
	}
	if loc.Pincode != "" {
		clauses = append(clauses, regexClause(addrPrefix+".pincode", loc.Pincode))
		prefix := loc.Pincode
		if len(prefix) > 3 {
			prefix = prefix[:3]
		}
		clauses = append(clauses, bson.M{addrPrefix + ".pincode": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix), "$options": "i"}})
	}
	if loc.Address != "" {
		for _, part := range strings.Split(loc.Address, ",") {
			if part = strings.TrimSpace(part); len(part) > 2 {
				clauses = append(clauses, regexClause(addrPrefix+".street_address", part))
			}
		}
	}
	return clauses
}

// vendorKycFilter matches business details by term or business address by location.
func vendorKycFilter(terms []string, loc *models.Location) bson.M {
	or := anyFieldMatches([]string{
		"business_details.shop_name",
		"business_details.business_name",
		"business_details.business_type",
	}, terms)
	or = append(or, locationClauses("business_details.business_address", loc)...)
	return bson.M{"user_role": models.RoleVendor, "$or": or}
}

// individualKycFilter matches personal details by the raw query or personal address by location.
func individualKycFilter(terms []string, loc *models.Location) bson.M {
	or := anyFieldMatches([]string{
		"personal_details.full_name",
		"personal_details.aadhar_number",
		"personal_details.personal_address.street_address",
	}, terms)
	or = append(or, locationClauses("personal_details.personal_address", loc)...)
	return bson.M{"user_role": models.RoleIndividual, "$or": or}
}

func individualUserFilter(query string, exclude []utils.SixID) bson.M {
	filter := bson.M{
		"role": bson.M{"$in": bson.A{models.RoleUser, models.RoleIndividual}},
		"$or":  anyFieldMatches([]string{"name", "email", "phone", "customId"}, []string{query}),
	}
	if len(exclude) > 0 {
		filter["_id"] = bson.M{"$nin": exclude}
	}
	return filter
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter interface{}, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", coll.Name(), err)
	}
	var out []T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", coll.Name(), err)
	}
	return out, nil
}

func (s *mongoDirectoryStore) ServicesMatching(ctx context.Context, terms []string) ([]models.Service, error) {
	return findAll[models.Service](ctx, s.db.Collection(db.ServicesCollection), serviceFilter(terms))
}

func (s *mongoDirectoryStore) CategoryIDsMatching(ctx context.Context, terms []string) ([]utils.SixID, error) {
	cats, err := findAll[models.VendorCategory](ctx, s.db.Collection(db.CategoriesCollection), categoryFilter(terms),
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	ids := make([]utils.SixID, 0, len(cats))
	for _, c := range cats {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (s *mongoDirectoryStore) ServicesInCategories(ctx context.Context, categoryIDs []utils.SixID) ([]models.Service, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{"status": models.ServiceActive, "category": bson.M{"$in": categoryIDs}}
	return findAll[models.Service](ctx, s.db.Collection(db.ServicesCollection), filter)
}

func (s *mongoDirectoryStore) KycMatching(ctx context.Context, role models.UserRole, terms []string, loc *models.Location) ([]models.VendorKyc, error) {
	var filter bson.M
	switch role {
	case models.RoleVendor:
		filter = vendorKycFilter(terms, loc)
	case models.RoleIndividual:
		filter = individualKycFilter(terms, loc)
	default:
		return nil, fmt.Errorf("no KYC scan for role %q", role)
	}
	return findAll[models.VendorKyc](ctx, s.db.Collection(db.KycCollection), filter)
}

func (s *mongoDirectoryStore) IndividualsMatching(ctx context.Context, query string, exclude []utils.SixID) ([]models.User, error) {
	return findAll[models.User](ctx, s.db.Collection(db.UsersCollection), individualUserFilter(query, exclude))
}

func (s *mongoDirectoryStore) UsersByIDs(ctx context.Context, ids []utils.SixID) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return findAll[models.User](ctx, s.db.Collection(db.UsersCollection), bson.M{"_id": bson.M{"$in": ids}})
}

func (s *mongoDirectoryStore) ActiveStaffIDs(ctx context.Context) ([]utils.SixID, error) {
	staff, err := findAll[models.Staff](ctx, s.db.Collection(db.StaffCollection), bson.M{"status": models.StaffActive},
		options.Find().SetProjection(bson.M{"individual_user_id": 1}))
	if err != nil {
		return nil, err
	}
	ids := make([]utils.SixID, 0, len(staff))
	for _, st := range staff {
		ids = append(ids, st.IndividualUserID)
	}
	return ids, nil
}

func (s *mongoDirectoryStore) FindUser(ctx context.Context, id utils.SixID) (*models.User, error) {
	var user models.User
	err := s.db.Collection(db.UsersCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("failed to find user %s: %w", id, err)
	}
	return &user, nil
}

func (s *mongoDirectoryStore) IsActiveStaff(ctx context.Context, userID utils.SixID) (bool, error) {
	n, err := s.db.Collection(db.StaffCollection).CountDocuments(ctx,
		bson.M{"individual_user_id": userID, "status": models.StaffActive},
		options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check staff status: %w", err)
	}
	return n > 0, nil
}
