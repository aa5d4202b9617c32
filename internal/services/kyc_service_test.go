package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bazaar/leadhub/internal/apperr"
	"bazaar/leadhub/internal/db"
	"bazaar/leadhub/internal/models"
	"bazaar/leadhub/internal/utils"
)

type memKycStore struct {
	mu          sync.Mutex
	records     []models.VendorKyc
	userStatus  map[utils.SixID]models.KycStatus
	failFinding bool
}

func (m *memKycStore) FindByUser(ctx context.Context, userID utils.SixID, role models.UserRole) (*models.VendorKyc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFinding {
		return nil, errors.New("socket closed")
	}
	for _, k := range m.records {
		if k.UserID == userID && k.UserRole == role {
			return &k, nil
		}
	}
	return nil, apperr.NotFound("KYC record not found")
}

func (m *memKycStore) List(ctx context.Context, status models.KycStatus, skip, limit int64) ([]models.VendorKyc, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.VendorKyc{}
	for _, k := range m.records {
		if status == "" || k.KycStatus == status {
			out = append(out, k)
		}
	}
	total := int64(len(out))
	start := min(skip, total)
	return out[start:min(start+limit, total)], total, nil
}

func (m *memKycStore) SetReview(ctx context.Context, id utils.SixID, status models.KycStatus, adminID utils.SixID, reason string, at time.Time) (*models.VendorKyc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		k := &m.records[i]
		if k.ID != id {
			continue
		}
		if k.KycStatus != models.KycPending {
			return nil, nil
		}
		k.KycStatus = status
		k.ReviewedBy = &adminID
		k.ReviewedAt = &at
		k.RejectionReason = reason
		out := *k
		return &out, nil
	}
	return nil, apperr.NotFound("KYC record not found")
}

func (m *memKycStore) PushDocument(ctx context.Context, userID utils.SixID, doc models.KycDocument) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].UserID == userID {
			m.records[i].Documents = append(m.records[i].Documents, doc)
			return true, nil
		}
	}
	return false, nil
}

func (m *memKycStore) SetUserKycStatus(ctx context.Context, userID utils.SixID, status models.KycStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userStatus == nil {
		m.userStatus = map[utils.SixID]models.KycStatus{}
	}
	m.userStatus[userID] = status
	return nil
}

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) PresignUpload(ctx context.Context, ownerID, docType, filename, contentType string) (string, string, error) {
	args := m.Called(ctx, ownerID, docType, filename, contentType)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *mockStorage) GetObject(ctx context.Context, key string) ([]byte, string, error) {
	args := m.Called(ctx, key)
	b, _ := args.Get(0).([]byte)
	return b, args.String(1), args.Error(2)
}

func (m *mockStorage) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	return m.Called(ctx, key, data, contentType).Error(0)
}

type mockEmailQueue struct {
	mock.Mock
}

func (m *mockEmailQueue) EnqueueEmail(ctx context.Context, to, templateID string, data map[string]interface{}) error {
	return m.Called(ctx, to, templateID, data).Error(0)
}

type mockDocumentQueue struct {
	mock.Mock
}

func (m *mockDocumentQueue) EnqueueDocumentProcessing(ctx context.Context, userID utils.SixID, docType, key string) error {
	return m.Called(ctx, userID, docType, key).Error(0)
}

func TestKyc_EnsureApproved(t *testing.T) {
	approved, pending := utils.NewSixID(), utils.NewSixID()
	store := &memKycStore{records: []models.VendorKyc{
		{Base: models.NewBase(), UserID: approved, UserRole: models.RoleIndividual, KycStatus: models.KycApproved},
		{Base: models.NewBase(), UserID: pending, UserRole: models.RoleIndividual, KycStatus: models.KycPending},
	}}
	svc := NewKycService(store, &fakeDirectory{}, nil, nil, nil)
	ctx := context.Background()

	assert.NoError(t, svc.EnsureApproved(ctx, approved, models.RoleIndividual))
	assert.ErrorIs(t, svc.EnsureApproved(ctx, approved, models.RoleVendor), apperr.ErrForbidden)
	assert.ErrorIs(t, svc.EnsureApproved(ctx, pending, models.RoleIndividual), apperr.ErrForbidden)
	assert.ErrorIs(t, svc.EnsureApproved(ctx, utils.NewSixID(), models.RoleIndividual), apperr.ErrForbidden)

	store.failFinding = true
	err := svc.EnsureApproved(ctx, approved, models.RoleIndividual)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, apperr.ErrForbidden)
}

func TestKyc_Review(t *testing.T) {
	vendor := models.User{Base: models.NewBase(), Name: "Ravi", Email: "ravi@example.com", Role: models.RoleVendor, Active: true}
	kyc := models.VendorKyc{Base: models.NewBase(), UserID: vendor.ID, UserRole: models.RoleVendor, KycStatus: models.KycPending}
	store := &memKycStore{records: []models.VendorKyc{kyc}}
	emails := &mockEmailQueue{}
	svc := NewKycService(store, &fakeDirectory{users: []models.User{vendor}}, nil, nil, emails)
	admin := utils.NewSixID()
	ctx := context.Background()

	_, err := svc.Review(ctx, kyc.ID, admin, false, "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	emails.On("EnqueueEmail", mock.Anything, "ravi@example.com", "kyc_reviewed", mock.MatchedBy(func(d map[string]interface{}) bool {
		return d["kyc_status"] == models.KycApproved && d["recipient_name"] == "Ravi"
	})).Return(nil).Once()

	reviewed, err := svc.Review(ctx, kyc.ID, admin, true, "")
	require.NoError(t, err)
	assert.Equal(t, models.KycApproved, reviewed.KycStatus)
	assert.Equal(t, admin, *reviewed.ReviewedBy)
	assert.Equal(t, models.KycApproved, store.userStatus[vendor.ID])
	emails.AssertExpectations(t)

	_, err = svc.Review(ctx, kyc.ID, admin, false, "blurred photo")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.Review(ctx, utils.NewSixID(), admin, true, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestKyc_ListByStatus(t *testing.T) {
	store := &memKycStore{records: []models.VendorKyc{
		{Base: models.NewBase(), KycStatus: models.KycPending},
		{Base: models.NewBase(), KycStatus: models.KycApproved},
		{Base: models.NewBase(), KycStatus: models.KycPending},
	}}
	svc := NewKycService(store, &fakeDirectory{}, nil, nil, nil)
	ctx := context.Background()

	page, err := svc.ListByStatus(ctx, models.KycPending, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.TotalCount)
	assert.Len(t, page.Items, 1)

	page, err = svc.ListByStatus(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.Equal(t, DefaultPageLimit, page.Limit)

	_, err = svc.ListByStatus(ctx, "unknown", 1, 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestKyc_RequestDocumentUpload(t *testing.T) {
	user := utils.NewSixID()
	s3 := &mockStorage{}
	svc := NewKycService(&memKycStore{}, &fakeDirectory{}, s3, nil, nil)
	ctx := context.Background()

	_, err := svc.RequestDocumentUpload(ctx, user, "passport_scan", "a.jpg", "image/jpeg")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.RequestDocumentUpload(ctx, user, "pan", "a.pdf", "application/pdf")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	s3.On("PresignUpload", mock.Anything, user.String(), "pan", "pan.jpg", "image/jpeg").
		Return("https://bucket.s3/put", "kyc/"+user.String()+"/pan/x_pan.jpg", nil).Once()
	ticket, err := svc.RequestDocumentUpload(ctx, user, "pan", "pan.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.s3/put", ticket.UploadURL)
	assert.Equal(t, 900, ticket.ExpiresIn)

	s3.On("PresignUpload", mock.Anything, user.String(), "photo", "me.png", "image/png").
		Return("", "", errors.New("credentials expired")).Once()
	_, err = svc.RequestDocumentUpload(ctx, user, "photo", "me.png", "image/png")
	assert.ErrorIs(t, err, apperr.ErrDependency)
	s3.AssertExpectations(t)

	noStorage := NewKycService(&memKycStore{}, &fakeDirectory{}, nil, nil, nil)
	_, err = noStorage.RequestDocumentUpload(ctx, user, "pan", "pan.jpg", "image/jpeg")
	assert.ErrorIs(t, err, apperr.ErrDependency)
}

func TestKyc_SubmitAndAttachDocument(t *testing.T) {
	user := utils.NewSixID()
	store := &memKycStore{records: []models.VendorKyc{{Base: models.NewBase(), UserID: user, UserRole: models.RoleVendor}}}
	queue := &mockDocumentQueue{}
	svc := NewKycService(store, &fakeDirectory{}, nil, queue, nil)
	ctx := context.Background()
	key := "kyc/" + user.String() + "/pan/abc_pan.jpg"

	err := svc.SubmitDocument(ctx, user, "pan", "kyc/SOMEONEELS/pan/abc_pan.jpg")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	queue.On("EnqueueDocumentProcessing", mock.Anything, user, "pan", key).Return(nil).Once()
	require.NoError(t, svc.SubmitDocument(ctx, user, "pan", key))
	queue.AssertExpectations(t)

	require.NoError(t, svc.AttachDocument(ctx, user, "pan", key))
	require.Len(t, store.records[0].Documents, 1)
	assert.Equal(t, key, store.records[0].Documents[0].Key)

	assert.ErrorIs(t, svc.AttachDocument(ctx, utils.NewSixID(), "pan", key), apperr.ErrNotFound)

	// Without a queue the document is attached directly.
	direct := NewKycService(store, &fakeDirectory{}, nil, nil, nil)
	require.NoError(t, direct.SubmitDocument(ctx, user, "photo", "kyc/"+user.String()+"/photo/p.png"))
	assert.Len(t, store.records[0].Documents, 2)
}

func TestKyc_StaffEligibility(t *testing.T) {
	ready := models.User{Base: models.NewBase(), Role: models.RoleIndividual, Active: true}
	unverified := models.User{Base: models.NewBase(), Role: models.RoleIndividual, Active: true}
	inactive := models.User{Base: models.NewBase(), Role: models.RoleIndividual}
	vendor := models.User{Base: models.NewBase(), Role: models.RoleVendor, Active: true}
	staffed := models.User{Base: models.NewBase(), Role: models.RoleIndividual, Active: true}

	dir := &fakeDirectory{
		users: []models.User{ready, unverified, inactive, vendor, staffed},
		staff: []models.Staff{{IndividualUserID: staffed.ID, Status: models.StaffActive}},
	}
	store := &memKycStore{records: []models.VendorKyc{
		{UserID: ready.ID, UserRole: models.RoleIndividual, KycStatus: models.KycApproved},
		{UserID: staffed.ID, UserRole: models.RoleIndividual, KycStatus: models.KycApproved},
	}}
	svc := NewKycService(store, dir, nil, nil, nil)
	ctx := context.Background()

	got, err := svc.StaffEligibility(ctx, ready.ID)
	require.NoError(t, err)
	assert.True(t, got.Eligible)

	for user, reason := range map[utils.SixID]string{
		unverified.ID: "KYC not approved",
		inactive.ID:   "User is not active",
		vendor.ID:     "User is not an individual",
		staffed.ID:    "User is already staff",
	} {
		got, err := svc.StaffEligibility(ctx, user)
		require.NoError(t, err)
		assert.False(t, got.Eligible)
		assert.Equal(t, reason, got.Reason)
	}

	_, err = svc.StaffEligibility(ctx, utils.NewSixID())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMongoKycStore(t *testing.T) {
	database := utils.SetupTestDB(t, "testdb_kyc_store", db.KycCollection, db.UsersCollection)
	store := NewKycStore(database)
	ctx := context.Background()

	user := utils.NewSixID()
	kyc := &models.VendorKyc{UserID: user, UserRole: models.RoleVendor, KycStatus: models.KycPending, CreatedAt: time.Now().UTC()}
	saved, err := db.InsertOne(ctx, database.Collection(db.KycCollection), kyc)
	require.NoError(t, err)

	found, err := store.FindByUser(ctx, user, models.RoleVendor)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)

	reviewed, err := store.SetReview(ctx, saved.ID, models.KycApproved, utils.NewSixID(), "", time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, reviewed)
	assert.Equal(t, models.KycApproved, reviewed.KycStatus)

	again, err := store.SetReview(ctx, saved.ID, models.KycRejected, utils.NewSixID(), "late", time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, again)

	ok, err := store.PushDocument(ctx, user, models.KycDocument{DocType: "pan", Key: "kyc/x", UploadedAt: time.Now().UTC()})
	require.NoError(t, err)
	assert.True(t, ok)

	items, total, err := store.List(ctx, models.KycApproved, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Len(t, items[0].Documents, 1)
}
