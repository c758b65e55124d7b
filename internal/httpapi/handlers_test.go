package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"rekapin/backend/internal/domain"
	"rekapin/backend/internal/service"
	"rekapin/backend/internal/store/memory"
)

const (
	testClientID     = "wa-bridge"
	testClientSecret = "bridge-secret"
	skyHouseBooking  = "🟢SKY HOUSE\nUnit :L3/30N\nCek out: 05:00\nUntuk : 6 jam\nCash/Tf: cash 250\nCs : dreamy\nKomisi: 50"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.New()
	svc := service.New(repo, service.Options{Location: time.UTC})
	auth := NewAuthManager("test-secret-key", time.Hour,
		ClientCredential{ClientID: testClientID, SecretHash: mustHashSecret(t, testClientSecret)},
		ClientCredential{ClientID: "dashboard", SecretHash: mustHashSecret(t, "viewer-secret"), Role: RoleViewer},
	)

	api, err := New(svc, auth, Options{AllowedOrigin: "*"})
	if err != nil {
		t.Fatalf("new api: %v", err)
	}
	return api
}

// mustHashSecret generates a bcrypt hash of the given secret or fails the test.
func mustHashSecret(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func issueToken(t *testing.T, api *API, clientID, secret string) string {
	t.Helper()
	payload, _ := json.Marshal(domain.TokenRequest{ClientID: clientID, ClientSecret: secret})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("token: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.TokenResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return resp.AccessToken
}

func doJSON(t *testing.T, api *API, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func inbound(id, text string) domain.InboundMessage {
	return domain.InboundMessage{
		MessageID:   id,
		ChannelID:   "group-sky",
		ChannelName: "SKY HOUSE",
		Text:        text,
		ReceivedAt:  time.Date(2025, time.June, 28, 5, 0, 0, 0, time.UTC),
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleMessagesRecordsThenReportsDuplicate(t *testing.T) {
	api := newTestAPI(t)
	token := issueToken(t, api, testClientID, testClientSecret)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/messages", token, inbound("msg-1", skyHouseBooking))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.IngestResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Outcome != domain.OutcomeRecorded || resp.TransactionID == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Verdict == nil || resp.Verdict.Kind != domain.VerdictValid || resp.Verdict.Booking.GrossAmount != 250000 {
		t.Fatalf("expected valid verdict with booking, got %+v", resp.Verdict)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/messages", token, inbound("msg-1", skyHouseBooking))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", rec.Code)
	}
	resp = domain.IngestResponse{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Outcome != domain.OutcomeDuplicate {
		t.Fatalf("expected duplicate outcome, got %s", resp.Outcome)
	}
}

func TestHandleMessagesRejectsIncompleteBooking(t *testing.T) {
	api := newTestAPI(t)
	token := issueToken(t, api, testClientID, testClientSecret)
	text := "🟢SKY HOUSE\nUnit :L3/30N\nCek out: 05:00\nUntuk : 6 jam\nCs : dreamy\nKomisi: 50"

	rec := doJSON(t, api, http.MethodPost, "/api/v1/messages", token, inbound("msg-2", text))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var resp domain.IngestResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Verdict == nil || resp.Verdict.Kind != domain.VerdictMissingField || resp.Verdict.MissingField != "Cash/Tf" {
		t.Fatalf("expected missing Cash/Tf verdict, got %+v", resp.Verdict)
	}
}

func TestHandleMessagesIgnoresChatter(t *testing.T) {
	api := newTestAPI(t)
	token := issueToken(t, api, testClientID, testClientSecret)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/messages", token, inbound("msg-3", "selamat pagi"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}

func TestHandleMessagesValidatesPayload(t *testing.T) {
	api := newTestAPI(t)
	token := issueToken(t, api, testClientID, testClientSecret)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/messages", token, map[string]any{"message_id": "x", "unknown": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/messages", token, inbound("", skyHouseBooking))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing message id, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/messages", token, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandleCommandsRecap(t *testing.T) {
	api := newTestAPI(t)
	token := issueToken(t, api, testClientID, testClientSecret)

	if rec := doJSON(t, api, http.MethodPost, "/api/v1/messages", token, inbound("msg-1", skyHouseBooking)); rec.Code != http.StatusCreated {
		t.Fatalf("seed booking: %d", rec.Code)
	}

	rec := doJSON(t, api, http.MethodPost, "/api/v1/commands", token, domain.CommandRequest{
		Text:        "!rekap 28062025",
		ChannelID:   "group-sky",
		ChannelName: "SKY HOUSE",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var report domain.RecapReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Date != "2025-06-28" || report.Summary.BookingCount != 1 || report.NetTotal != 200000 {
		t.Fatalf("unexpected report %+v", report)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/commands", token, domain.CommandRequest{Text: "!rekap invalid"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid command, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/commands", token, domain.CommandRequest{Text: "rekap"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-command, got %d", rec.Code)
	}
}

func TestHandleRecapAndTotalsForViewer(t *testing.T) {
	api := newTestAPI(t)
	bridge := issueToken(t, api, testClientID, testClientSecret)
	viewer := issueToken(t, api, "dashboard", "viewer-secret")

	if rec := doJSON(t, api, http.MethodPost, "/api/v1/messages", bridge, inbound("msg-1", skyHouseBooking)); rec.Code != http.StatusCreated {
		t.Fatalf("seed booking: %d", rec.Code)
	}

	rec := doJSON(t, api, http.MethodGet, "/api/v1/recap?date=28062025&location=sky%20house", viewer, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/recap?date=2025-06-28", viewer, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/totals", viewer, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var totals domain.Totals
	if err := json.NewDecoder(rec.Body).Decode(&totals); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if totals.BookingCount != 1 || totals.GrossTotal != 250000 {
		t.Fatalf("unexpected totals %+v", totals)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/messages", viewer, inbound("msg-9", skyHouseBooking))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected viewer to be forbidden from ingesting, got %d", rec.Code)
	}
}

func TestHandleTokenValidatesPayload(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/token", "", map[string]string{"client_id": testClientID})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without client_secret, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/auth/token", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
