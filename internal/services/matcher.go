package services

import (
	"context"
	"log"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"bazaar/leadhub/internal/models"
	"bazaar/leadhub/internal/utils"
)

// IMatcher finds the vendors and individuals an inquiry should reach.
type IMatcher interface {
	FindRecipients(ctx context.Context, query string, loc *models.Location) models.RecipientSet
}

var fillerWords = regexp.MustCompile(`\b(near me|near|close to|around|in|at)\b`)

// MeaningfulWords lowercases the query, drops location filler and keeps words
// longer than two characters.
func MeaningfulWords(query string) []string {
	stripped := strings.TrimSpace(fillerWords.ReplaceAllString(strings.ToLower(query), ""))
	var words []string
	for _, w := range strings.Fields(stripped) {
		if len(w) > 2 {
			words = append(words, w)
		}
	}
	return words
}

// SearchTerms is the meaningful words followed by the raw query.
func SearchTerms(query string) []string {
	return append(MeaningfulWords(query), query)
}

type matcher struct {
	store IDirectoryStore
}

func NewMatcher(store IDirectoryStore) IMatcher {
	return &matcher{store: store}
}

// candidateSet keeps first-insertion order while letting later projections
// overwrite earlier ones.
type candidateSet struct {
	order []utils.SixID
	byID  map[utils.SixID]models.Candidate
}

func newCandidateSet() *candidateSet {
	return &candidateSet{byID: make(map[utils.SixID]models.Candidate)}
}

func (c *candidateSet) put(cand models.Candidate) {
	if _, ok := c.byID[cand.ID]; !ok {
		c.order = append(c.order, cand.ID)
	}
	c.byID[cand.ID] = cand
}

func (c *candidateSet) list() []models.Candidate {
	out := make([]models.Candidate, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

func candidateFromUser(u *models.User) models.Candidate {
	return models.Candidate{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Phone:        u.Phone,
		BusinessName: u.Name,
		Role:         u.Role,
		CustomID:     u.CustomID,
	}
}

// FindRecipients never fails: any scan error is logged and yields an empty set.
func (m *matcher) FindRecipients(ctx context.Context, query string, loc *models.Location) models.RecipientSet {
	set, err := m.findRecipients(ctx, query, loc)
	if err != nil {
		log.Printf("Matcher: scan failed for %q: %v", query, err)
		return models.RecipientSet{Vendors: []models.Candidate{}, Individuals: []models.Candidate{}}
	}
	return set
}

func (m *matcher) findRecipients(ctx context.Context, query string, loc *models.Location) (models.RecipientSet, error) {
	terms := SearchTerms(query)

	var (
		byService, byCategory []models.Service
		vendorKyc, indivKyc   []models.VendorKyc
		staffIDs              []utils.SixID
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		byService, err = m.store.ServicesMatching(gctx, terms)
		return err
	})
	g.Go(func() error {
		ids, err := m.store.CategoryIDsMatching(gctx, terms)
		if err != nil || len(ids) == 0 {
			return err
		}
		byCategory, err = m.store.ServicesInCategories(gctx, ids)
		return err
	})
	g.Go(func() (err error) {
		vendorKyc, err = m.store.KycMatching(gctx, models.RoleVendor, terms, loc)
		return err
	})
	g.Go(func() (err error) {
		indivKyc, err = m.store.KycMatching(gctx, models.RoleIndividual, []string{query}, loc)
		return err
	})
	g.Go(func() (err error) {
		staffIDs, err = m.store.ActiveStaffIDs(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.RecipientSet{}, err
	}

	// Individuals by profile need the staff exclusion list, owners need every scan.
	ownerIDs := make([]utils.SixID, 0, len(byService)+len(byCategory)+len(vendorKyc)+len(indivKyc))
	for _, svc := range append(append([]models.Service{}, byService...), byCategory...) {
		ownerIDs = append(ownerIDs, svc.VendorID)
	}
	for _, k := range vendorKyc {
		ownerIDs = append(ownerIDs, k.UserID)
	}
	for _, k := range indivKyc {
		ownerIDs = append(ownerIDs, k.UserID)
	}

	var (
		owners      []models.User
		individuals []models.User
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		owners, err = m.store.UsersByIDs(gctx, dedupeIDs(ownerIDs))
		return err
	})
	g.Go(func() (err error) {
		individuals, err = m.store.IndividualsMatching(gctx, query, staffIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.RecipientSet{}, err
	}

	users := make(map[utils.SixID]*models.User, len(owners))
	for i := range owners {
		users[owners[i].ID] = &owners[i]
	}
	excluded := make(map[utils.SixID]bool, len(staffIDs))
	for _, id := range staffIDs {
		excluded[id] = true
	}

	vendors := newCandidateSet()
	for _, svc := range byService {
		if u := users[svc.VendorID]; u != nil && u.Role == models.RoleVendor {
			vendors.put(candidateFromUser(u))
		}
	}
	for _, svc := range byCategory {
		if u := users[svc.VendorID]; u != nil && u.Role == models.RoleVendor {
			vendors.put(candidateFromUser(u))
		}
	}
	for i := range vendorKyc {
		k := &vendorKyc[i]
		if u := users[k.UserID]; u != nil && u.Role == models.RoleVendor {
			c := candidateFromUser(u)
			c.BusinessName = k.DisplayBusinessName(u.Name)
			vendors.put(c)
		}
	}

	indiv := newCandidateSet()
	for i := range individuals {
		if u := &individuals[i]; !excluded[u.ID] && u.Role != models.RoleVendor {
			indiv.put(candidateFromUser(u))
		}
	}
	for _, k := range indivKyc {
		if u := users[k.UserID]; u != nil && u.Role == models.RoleIndividual && !excluded[u.ID] {
			indiv.put(candidateFromUser(u))
		}
	}

	log.Printf("Matcher: %q matched %d vendors and %d individuals", query, len(vendors.order), len(indiv.order))
	return models.RecipientSet{Vendors: vendors.list(), Individuals: indiv.list()}, nil
}

func dedupeIDs(ids []utils.SixID) []utils.SixID {
	seen := make(map[utils.SixID]bool, len(ids))
	out := make([]utils.SixID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] && !id.IsZero() {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
