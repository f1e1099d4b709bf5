package pass_api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-guestpass/internal/auth"
	"ms-guestpass/internal/models"
	"ms-guestpass/internal/passes"
	passdb "ms-guestpass/internal/passes/db"
	"ms-guestpass/internal/utils"
)

// stubPassDB implements passes.DBLayer over maps, mirroring the quota check
// the real transaction performs.
type stubPassDB struct {
	promoters   map[string]*models.PromoterProfile
	assignments map[string]*models.Assignment
	events      map[string]*models.Event
	tickets     map[string]*models.Ticket
	labels      map[string]string
}

func newStubPassDB() *stubPassDB {
	return &stubPassDB{
		promoters:   make(map[string]*models.PromoterProfile),
		assignments: make(map[string]*models.Assignment),
		events:      make(map[string]*models.Event),
		tickets:     make(map[string]*models.Ticket),
		labels:      make(map[string]string),
	}
}

func (s *stubPassDB) PromoterByUser(_ context.Context, userID string) (*models.PromoterProfile, error) {
	p, ok := s.promoters[userID]
	if !ok || !p.Active {
		return nil, passdb.ErrNotFound
	}
	return p, nil
}

func (s *stubPassDB) AssignmentFor(_ context.Context, eventID, promoterID string) (*models.Assignment, error) {
	for _, a := range s.assignments {
		if a.EventID == eventID && a.PromoterID == promoterID {
			return a, nil
		}
	}
	return nil, passdb.ErrNotFound
}

func (s *stubPassDB) EventByID(_ context.Context, id string) (*models.Event, error) {
	e, ok := s.events[id]
	if !ok {
		return nil, passdb.ErrNotFound
	}
	return e, nil
}

func (s *stubPassDB) CreateTicketWithQuota(_ context.Context, assignmentID string, ticket *models.Ticket) (int, error) {
	assignment, ok := s.assignments[assignmentID]
	if !ok {
		return 0, passdb.ErrNotFound
	}
	count := 0
	for _, t := range s.tickets {
		if t.AssignmentID == assignmentID {
			count++
		}
	}
	if assignment.LimitAccesses != nil && count >= *assignment.LimitAccesses {
		return 0, passdb.ErrQuotaExhausted
	}
	s.tickets[ticket.ID] = ticket
	return count + 1, nil
}

func (s *stubPassDB) TicketForPromoter(_ context.Context, ticketID, promoterID string) (*models.Ticket, error) {
	t, ok := s.tickets[ticketID]
	if !ok || t.PromoterID != promoterID {
		return nil, passdb.ErrNotFound
	}
	return t, nil
}

func (s *stubPassDB) OtherLabel(_ context.Context, managerID string) (string, error) {
	if label, ok := s.labels[managerID]; ok {
		return label, nil
	}
	return models.DefaultOtherLabel, nil
}

func (s *stubPassDB) UpsertOtherLabel(_ context.Context, managerID, label string) error {
	s.labels[managerID] = label
	return nil
}

type apiFixture struct {
	router  *chi.Mux
	db      *stubPassDB
	userID  string
	eventID string
}

func setupAPI(t *testing.T, limit *int) *apiFixture {
	t.Helper()

	db := newStubPassDB()

	userID := utils.NewID()
	promoter := &models.PromoterProfile{
		ID:        utils.NewID(),
		UserID:    userID,
		ManagerID: utils.NewID(),
		Active:    true,
	}
	db.promoters[userID] = promoter

	event := &models.Event{
		ID:       utils.NewID(),
		ClubID:   utils.NewID(),
		Name:     "Launch Party",
		StartsAt: time.Now(),
		EndsAt:   time.Now().Add(4 * time.Hour),
		Active:   true,
	}
	db.events[event.ID] = event

	assignment := &models.Assignment{
		ID:            utils.NewID(),
		EventID:       event.ID,
		PromoterID:    promoter.ID,
		LimitAccesses: limit,
	}
	db.assignments[assignment.ID] = assignment

	handler := NewHandler(passes.NewPassService(db, nil, nil))
	router := chi.NewRouter()
	handler.Routes(router)

	return &apiFixture{router: router, db: db, userID: userID, eventID: event.ID}
}

func doRequest(f *apiFixture, method, path string, body interface{}, principal *auth.Principal) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	if principal != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), *principal))
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func promoterPrincipal(f *apiFixture) *auth.Principal {
	return &auth.Principal{UserID: f.userID, Role: auth.RolePromoter}
}

func TestIssueTicketEndpoint_Created(t *testing.T) {
	limit := 3
	f := setupAPI(t, &limit)

	rec := doRequest(f, http.MethodPost, "/tickets", map[string]string{
		"eventId":   f.eventID,
		"guestType": models.GuestTypePremium,
		"note":      "birthday table",
	}, promoterPrincipal(f))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var issued passes.IssuedTicket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	assert.Equal(t, models.GuestTypePremium, issued.GuestType)
	assert.Equal(t, models.TicketStatusPending, issued.Status)
	assert.Equal(t, 1, issued.UsedAccesses)
	require.NotNil(t, issued.RemainingAccesses)
	assert.Equal(t, 2, *issued.RemainingAccesses)
}

func TestIssueTicketEndpoint_Unauthenticated(t *testing.T) {
	f := setupAPI(t, nil)

	rec := doRequest(f, http.MethodPost, "/tickets", map[string]string{
		"eventId":   f.eventID,
		"guestType": models.GuestTypeStandard,
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIssueTicketEndpoint_BadGuestType(t *testing.T) {
	f := setupAPI(t, nil)

	rec := doRequest(f, http.MethodPost, "/tickets", map[string]string{
		"eventId":   f.eventID,
		"guestType": "VIP",
	}, promoterPrincipal(f))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIssueTicketEndpoint_InactivePromoter(t *testing.T) {
	f := setupAPI(t, nil)
	f.db.promoters[f.userID].Active = false

	rec := doRequest(f, http.MethodPost, "/tickets", map[string]string{
		"eventId":   f.eventID,
		"guestType": models.GuestTypeStandard,
	}, promoterPrincipal(f))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIssueTicketEndpoint_UnassignedEvent(t *testing.T) {
	f := setupAPI(t, nil)

	rec := doRequest(f, http.MethodPost, "/tickets", map[string]string{
		"eventId":   utils.NewID(),
		"guestType": models.GuestTypeStandard,
	}, promoterPrincipal(f))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIssueTicketEndpoint_QuotaExhausted(t *testing.T) {
	limit := 1
	f := setupAPI(t, &limit)

	first := doRequest(f, http.MethodPost, "/tickets", map[string]string{
		"eventId":   f.eventID,
		"guestType": models.GuestTypeStandard,
	}, promoterPrincipal(f))
	require.Equal(t, http.StatusCreated, first.Code)

	second := doRequest(f, http.MethodPost, "/tickets", map[string]string{
		"eventId":   f.eventID,
		"guestType": models.GuestTypeStandard,
	}, promoterPrincipal(f))
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestTicketQREndpoint(t *testing.T) {
	limit := 5
	f := setupAPI(t, &limit)

	rec := doRequest(f, http.MethodPost, "/tickets", map[string]string{
		"eventId":   f.eventID,
		"guestType": models.GuestTypeStandard,
	}, promoterPrincipal(f))
	require.Equal(t, http.StatusCreated, rec.Code)

	var issued passes.IssuedTicket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))

	qrRec := doRequest(f, http.MethodGet, "/tickets/"+issued.ID+"/qr", nil, promoterPrincipal(f))
	require.Equal(t, http.StatusOK, qrRec.Code)
	assert.Equal(t, "image/png", qrRec.Header().Get("Content-Type"))
	// PNG magic bytes.
	assert.True(t, bytes.HasPrefix(qrRec.Body.Bytes(), []byte{0x89, 'P', 'N', 'G'}))
}

func TestTicketQREndpoint_UnknownTicket(t *testing.T) {
	f := setupAPI(t, nil)

	rec := doRequest(f, http.MethodGet, "/tickets/"+utils.NewID()+"/qr", nil, promoterPrincipal(f))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOtherLabelEndpoints_ManagerOnly(t *testing.T) {
	f := setupAPI(t, nil)

	// Promoters cannot touch manager settings.
	rec := doRequest(f, http.MethodGet, "/settings/guest-types/other-label", nil, promoterPrincipal(f))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	managerID := utils.NewID()
	manager := &auth.Principal{UserID: managerID, Role: auth.RoleManager}

	rec = doRequest(f, http.MethodGet, "/settings/guest-types/other-label", nil, manager)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.DefaultOtherLabel, resp["otherLabel"])

	rec = doRequest(f, http.MethodPatch, "/settings/guest-types/other-label", map[string]string{
		"otherLabel": "House guest",
	}, manager)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "House guest", resp["otherLabel"])

	rec = doRequest(f, http.MethodGet, "/settings/guest-types/other-label", nil, manager)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "House guest", resp["otherLabel"])
}

func TestUpdateOtherLabelEndpoint_Blank(t *testing.T) {
	f := setupAPI(t, nil)
	manager := &auth.Principal{UserID: utils.NewID(), Role: auth.RoleManager}

	rec := doRequest(f, http.MethodPatch, "/settings/guest-types/other-label", map[string]string{
		"otherLabel": "   ",
	}, manager)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
