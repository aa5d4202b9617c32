package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"bazaar/leadhub/internal/apperr"
	"bazaar/leadhub/internal/models"
	"bazaar/leadhub/internal/notify"
	"bazaar/leadhub/internal/utils"
)

// fakeDirectory is an in-memory IDirectoryStore using case-insensitive substring matching.
type fakeDirectory struct {
	users      []models.User
	services   []models.Service
	categories []models.VendorCategory
	kyc        []models.VendorKyc
	staff      []models.Staff
	failOn     string
}

func contains(haystack, needle string) bool {
	return needle != "" && strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func anyContains(values []string, terms []string) bool {
	for _, v := range values {
		for _, t := range terms {
			if contains(v, t) {
				return true
			}
		}
	}
	return false
}

func (f *fakeDirectory) fail(op string) error {
	if f.failOn == op {
		return errors.New("connection reset")
	}
	return nil
}

func (f *fakeDirectory) ServicesMatching(ctx context.Context, terms []string) ([]models.Service, error) {
	if err := f.fail("services"); err != nil {
		return nil, err
	}
	var out []models.Service
	for _, s := range f.services {
		fields := append([]string{s.ServiceName, s.Description}, append(s.Keywords, s.SearchTags...)...)
		if s.Status == models.ServiceActive && anyContains(fields, terms) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeDirectory) CategoryIDsMatching(ctx context.Context, terms []string) ([]utils.SixID, error) {
	var out []utils.SixID
	for _, c := range f.categories {
		if !c.IsDeleted && anyContains([]string{c.CategoryName}, terms) {
			out = append(out, c.ID)
		}
	}
	return out, nil
}

func (f *fakeDirectory) ServicesInCategories(ctx context.Context, ids []utils.SixID) ([]models.Service, error) {
	var out []models.Service
	for _, s := range f.services {
		for _, id := range ids {
			if s.Status == models.ServiceActive && s.Category == id {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (f *fakeDirectory) KycMatching(ctx context.Context, role models.UserRole, terms []string, loc *models.Location) ([]models.VendorKyc, error) {
	if err := f.fail("kyc"); err != nil {
		return nil, err
	}
	var out []models.VendorKyc
	for _, k := range f.kyc {
		if k.UserRole != role {
			continue
		}
		var fields []string
		var addr models.Address
		if role == models.RoleVendor && k.BusinessDetails != nil {
			fields = []string{k.BusinessDetails.ShopName, k.BusinessDetails.BusinessName, k.BusinessDetails.BusinessType}
			addr = k.BusinessDetails.BusinessAddress
		}
		if role == models.RoleIndividual && k.PersonalDetails != nil {
			fields = []string{k.PersonalDetails.FullName, k.PersonalDetails.AadharNumber, k.PersonalDetails.PersonalAddress.StreetAddress}
			addr = k.PersonalDetails.PersonalAddress
		}
		if anyContains(fields, terms) || locationMatches(addr, loc) {
			out = append(out, k)
		}
	}
	return out, nil
}

func locationMatches(addr models.Address, loc *models.Location) bool {
	if loc == nil {
		return false
	}
	if contains(addr.City, loc.City) || contains(addr.StreetAddress, loc.City) || contains(addr.State, loc.State) {
		return true
	}
	if loc.Pincode != "" && len(loc.Pincode) >= 3 && strings.HasPrefix(addr.Pincode, loc.Pincode[:3]) {
		return true
	}
	return false
}

func (f *fakeDirectory) IndividualsMatching(ctx context.Context, query string, exclude []utils.SixID) ([]models.User, error) {
	skip := map[utils.SixID]bool{}
	for _, id := range exclude {
		skip[id] = true
	}
	var out []models.User
	for _, u := range f.users {
		if (u.Role == models.RoleUser || u.Role == models.RoleIndividual) && !skip[u.ID] &&
			anyContains([]string{u.Name, u.Email, u.Phone, u.CustomID}, []string{query}) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeDirectory) UsersByIDs(ctx context.Context, ids []utils.SixID) ([]models.User, error) {
	var out []models.User
	for _, u := range f.users {
		for _, id := range ids {
			if u.ID == id {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (f *fakeDirectory) ActiveStaffIDs(ctx context.Context) ([]utils.SixID, error) {
	var out []utils.SixID
	for _, s := range f.staff {
		if s.Status == models.StaffActive {
			out = append(out, s.IndividualUserID)
		}
	}
	return out, nil
}

func (f *fakeDirectory) FindUser(ctx context.Context, id utils.SixID) (*models.User, error) {
	for i := range f.users {
		if f.users[i].ID == id {
			u := f.users[i]
			return &u, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (f *fakeDirectory) IsActiveStaff(ctx context.Context, userID utils.SixID) (bool, error) {
	for _, s := range f.staff {
		if s.IndividualUserID == userID && s.Status == models.StaffActive {
			return true, nil
		}
	}
	return false, nil
}

// fakeMatcher returns a fixed recipient set.
type fakeMatcher struct {
	set   models.RecipientSet
	calls int
	mu    sync.Mutex
}

func (m *fakeMatcher) FindRecipients(ctx context.Context, query string, loc *models.Location) models.RecipientSet {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.set
}

// recordingDispatcher captures notifications.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []dispatched
}

type dispatched struct {
	ids   []utils.SixID
	event string
	data  map[string]interface{}
}

func (d *recordingDispatcher) record(ids []utils.SixID, eventType string, data map[string]interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, dispatched{ids: ids, event: eventType, data: data})
}

func (d *recordingDispatcher) all() []dispatched {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatched(nil), d.events...)
}

func (d *recordingDispatcher) Notify(ctx context.Context, ids []utils.SixID, event notify.Event) {
	d.record(ids, string(event.Type), event.Data)
}

// memInquiryStore mirrors the conditional semantics of the Mongo store under a mutex.
type memInquiryStore struct {
	mu   sync.Mutex
	docs map[utils.SixID]*models.Inquiry
}

func newMemInquiryStore() *memInquiryStore {
	return &memInquiryStore{docs: make(map[utils.SixID]*models.Inquiry)}
}

func cloneInquiry(in *models.Inquiry) *models.Inquiry {
	out := *in
	out.Recipients.Vendors = append([]models.VendorRecipient(nil), in.Recipients.Vendors...)
	out.Recipients.Individuals = append([]models.IndividualRecipient(nil), in.Recipients.Individuals...)
	out.Responses = append([]models.Response{}, in.Responses...)
	return &out
}

// put stores inq as-is, bypassing Insert, so tests can backdate created_at.
func (m *memInquiryStore) put(inq *models.Inquiry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inq.EnsureID()
	m.docs[inq.ID] = cloneInquiry(inq)
}

func (m *memInquiryStore) get(id utils.SixID) *models.Inquiry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneInquiry(m.docs[id])
}

func (m *memInquiryStore) Insert(ctx context.Context, inq *models.Inquiry) (*models.Inquiry, error) {
	m.put(inq)
	return m.get(inq.ID), nil
}

func (m *memInquiryStore) FindByID(ctx context.Context, id utils.SixID) (*models.Inquiry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inq, ok := m.docs[id]
	if !ok {
		return nil, apperr.NotFound("Inquiry not found")
	}
	return cloneInquiry(inq), nil
}

func (m *memInquiryStore) List(ctx context.Context, f ListFilter) ([]models.Inquiry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.Inquiry
	for _, inq := range m.docs {
		kind, _, ok := inq.RecipientIndex(f.RecipientID)
		if !ok || kind != f.Kind || (f.Status != "" && inq.Status != f.Status) {
			continue
		}
		matched = append(matched, *cloneInquiry(inq))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := int64(len(matched))
	start := min(f.Skip, total)
	end := min(start+f.Limit, total)
	return append([]models.Inquiry{}, matched[start:end]...), total, nil
}

func (m *memInquiryStore) SetRecipientResponse(ctx context.Context, id utils.SixID, kind models.RecipientKind, recipientID utils.SixID, status models.ResponseStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inq, ok := m.docs[id]
	if !ok {
		return false, nil
	}
	k, idx, ok := inq.RecipientIndex(recipientID)
	if !ok || k != kind {
		return false, nil
	}
	if kind == models.KindVendor {
		inq.Recipients.Vendors[idx].ResponseStatus = status
		inq.Recipients.Vendors[idx].ContactedAt = &at
	} else {
		inq.Recipients.Individuals[idx].ResponseStatus = status
		inq.Recipients.Individuals[idx].ContactedAt = &at
	}
	inq.UpdatedAt = at
	return true, nil
}

func (m *memInquiryStore) PromoteStatus(ctx context.Context, id utils.SixID, from, to models.InquiryStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inq, ok := m.docs[id]
	if !ok || inq.Status != from {
		return false, nil
	}
	inq.Status = to
	inq.UpdatedAt = at
	return true, nil
}

func (m *memInquiryStore) IncrementViews(ctx context.Context, id utils.SixID) (*models.Inquiry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inq, ok := m.docs[id]
	if !ok {
		return nil, apperr.NotFound("Inquiry not found")
	}
	inq.Views++
	return cloneInquiry(inq), nil
}

func (m *memInquiryStore) AppendResponse(ctx context.Context, id utils.SixID, resp models.Response, newStatus *models.InquiryStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inq, ok := m.docs[id]
	if !ok || inq.ResponseBy(resp.ResponderID) >= 0 || inq.Status.IsTerminal() {
		return false, nil
	}
	if newStatus != nil {
		if !inq.Status.CanTransition(*newStatus) {
			return false, nil
		}
		inq.Status = *newStatus
	}
	inq.Responses = append(inq.Responses, resp)
	inq.UpdatedAt = resp.RespondedAt
	return true, nil
}

func (m *memInquiryStore) pendingIndex(inq *models.Inquiry, responderID utils.SixID, orderID string) int {
	for i, r := range inq.Responses {
		if r.ResponderID == responderID && r.PaymentStatus == models.PaymentPending && r.PaymentID == orderID {
			return i
		}
	}
	return -1
}

func (m *memInquiryStore) SettlePayment(ctx context.Context, id, responderID utils.SixID, orderID, paymentID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inq, ok := m.docs[id]
	if !ok || !inq.Status.CanTransition(models.StatusAccepted) {
		return false, nil
	}
	i := m.pendingIndex(inq, responderID, orderID)
	if i < 0 {
		return false, nil
	}
	inq.Responses[i].PaymentStatus = models.PaymentPaid
	inq.Responses[i].PaymentID = paymentID
	inq.Status = models.StatusAccepted
	inq.UpdatedAt = at
	return true, nil
}

func (m *memInquiryStore) MarkPaymentReminded(ctx context.Context, id, responderID utils.SixID, orderID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inq, ok := m.docs[id]
	if !ok {
		return false, nil
	}
	i := m.pendingIndex(inq, responderID, orderID)
	if i < 0 || inq.Responses[i].PaymentRemindedAt != nil {
		return false, nil
	}
	stamp := at
	inq.Responses[i].PaymentRemindedAt = &stamp
	return true, nil
}
