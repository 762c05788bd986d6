package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/contacts/internal/config"
	"github.com/JonMunkholm/contacts/internal/core"
	db "github.com/JonMunkholm/contacts/internal/database"
	"github.com/JonMunkholm/contacts/internal/metrics"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 0, RequestTimeout: 5 * time.Second},
		Security: config.SecurityConfig{EnableCSP: true},
	}
}

type testEnv struct {
	server  *Server
	service *core.Service
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	ctx := context.Background()

	database, err := db.OpenSQLite(ctx, db.DefaultSQLiteURL)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	m := metrics.New()
	svc, err := core.NewService(ctx, database, core.ArchiverConfig{
		Stages:        5,
		MaxStageDelay: 2 * time.Millisecond,
		SettleDelay:   time.Millisecond,
		RunTimeout:    5 * time.Second,
	}, m)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})

	return &testEnv{server: NewServer(svc, m, cfg), service: svc}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) create(t *testing.T, first, email string) core.Contact {
	t.Helper()
	rec := e.do(t, jsonRequest(http.MethodPost, "/contacts", `{"first":"`+first+`","email":"`+email+`"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[ContactResponse](t, rec).Contact
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestRootRedirects(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/contacts", rec.Header().Get("Location"))
}

func TestCreateContact(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(t, jsonRequest(http.MethodPost, "/contacts", `{"first":"Ann","last":"Lee","phone":"555","email":"ann@x.com"}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/contacts/0", rec.Header().Get("Location"))
	resp := decode[ContactResponse](t, rec)
	assert.Equal(t, msgCreated, resp.Message)
	assert.Equal(t, core.Contact{ID: 0, First: "Ann", Last: "Lee", Phone: "555", Email: "ann@x.com"}, resp.Contact)

	count, err := env.service.Contacts.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestCreateContact_FieldErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want map[string]string
	}{
		{"missing email", `{"first":"Ann"}`, map[string]string{"email": core.MsgEmailRequired}},
		{"bad email", `{"email":"not-an-email"}`, map[string]string{"email": core.MsgEmailNotValid}},
		{"duplicate email", `{"email":"taken@x.com"}`, map[string]string{"email": core.MsgEmailUnique}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, testConfig())
			env.create(t, "Owner", "taken@x.com")

			rec := env.do(t, jsonRequest(http.MethodPost, "/contacts", tt.body))

			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			resp := decode[FieldErrorResponse](t, rec)
			assert.Equal(t, tt.want, resp.Errors)

			count, err := env.service.Contacts.Count(context.Background())
			require.NoError(t, err)
			assert.EqualValues(t, 1, count)
		})
	}
}

func TestCreateContact_FormPostRedirects(t *testing.T) {
	env := newTestEnv(t, testConfig())

	form := url.Values{"first_name": {"Ann"}, "last_name": {"Lee"}, "email": {"ann@x.com"}}
	req := httptest.NewRequest(http.MethodPost, "/contacts/new", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := env.do(t, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/contacts", rec.Header().Get("Location"))

	c, ok, err := env.service.Contacts.Find(context.Background(), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Lee", c.Last)
}

func TestGetContact(t *testing.T) {
	env := newTestEnv(t, testConfig())
	created := env.create(t, "Ann", "ann@x.com")

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantErr  string
	}{
		{"found", "/contacts/0", http.StatusOK, ""},
		{"edit view", "/contacts/0/edit", http.StatusOK, ""},
		{"missing", "/contacts/42", http.StatusNotFound, "DB002"},
		{"bad id", "/contacts/abc", http.StatusBadRequest, "REQ003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, jsonRequest(http.MethodGet, tt.path, ""))

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decode[ErrorResponse](t, rec).Code)
				return
			}
			assert.Equal(t, created, decode[ContactResponse](t, rec).Contact)
		})
	}
}

func TestUpdateContact(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.create(t, "Ann", "ann@x.com")
	env.create(t, "Bob", "bob@x.com")

	t.Run("keeps own email", func(t *testing.T) {
		rec := env.do(t, jsonRequest(http.MethodPut, "/contacts/0", `{"first":"Annie","email":"ann@x.com"}`))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[ContactResponse](t, rec)
		assert.Equal(t, msgUpdated, resp.Message)
		assert.Equal(t, "Annie", resp.Contact.First)
	})

	t.Run("takes another's email", func(t *testing.T) {
		rec := env.do(t, jsonRequest(http.MethodPut, "/contacts/0", `{"first":"Ann","email":"bob@x.com"}`))

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, map[string]string{"email": core.MsgEmailUnique}, decode[FieldErrorResponse](t, rec).Errors)

		c, _, err := env.service.Contacts.Find(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, "ann@x.com", c.Email)
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := env.do(t, jsonRequest(http.MethodPut, "/contacts/99", `{"email":"new@x.com"}`))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("form edit redirects", func(t *testing.T) {
		form := url.Values{"first_name": {"Robert"}, "email": {"bob@x.com"}}
		req := httptest.NewRequest(http.MethodPost, "/contacts/1/edit", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		rec := env.do(t, req)

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/contacts/1", rec.Header().Get("Location"))
	})
}

func TestDeleteContact(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.create(t, "Ann", "ann@x.com")

	for range 2 {
		rec := env.do(t, jsonRequest(http.MethodDelete, "/contacts/0", ""))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"Deleted Contact!"}`, rec.Body.String())
	}

	_, ok, err := env.service.Contacts.Find(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListContacts(t *testing.T) {
	env := newTestEnv(t, testConfig())
	for i := range 12 {
		env.create(t, "Person", "p"+string(rune('a'+i))+"@x.com")
	}
	env.create(t, "Zed", "zed@y.org")

	t.Run("pages", func(t *testing.T) {
		rec := env.do(t, jsonRequest(http.MethodGet, "/contacts?page=2", ""))

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[ContactListResponse](t, rec)
		assert.Equal(t, 2, resp.Page)
		assert.Equal(t, core.PageSize, resp.PageSize)
		require.Len(t, resp.Contacts, 3)
		assert.Equal(t, core.ContactID(10), resp.Contacts[0].ID)
	})

	t.Run("bad page falls back to first", func(t *testing.T) {
		rec := env.do(t, jsonRequest(http.MethodGet, "/contacts?page=nope", ""))

		resp := decode[ContactListResponse](t, rec)
		assert.Equal(t, 1, resp.Page)
		assert.Len(t, resp.Contacts, core.PageSize)
	})

	t.Run("search", func(t *testing.T) {
		rec := env.do(t, jsonRequest(http.MethodGet, "/contacts?q=zed", ""))

		resp := decode[ContactListResponse](t, rec)
		require.Len(t, resp.Contacts, 1)
		assert.Equal(t, "zed@y.org", resp.Contacts[0].Email)
	})

	t.Run("htmx rows", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/contacts?q=zed", nil)
		req.Header.Set("HX-Request", "true")

		rec := env.do(t, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Equal(t, 1, strings.Count(rec.Body.String(), "<tr>"))
		assert.Contains(t, rec.Body.String(), "zed@y.org")
	})
}

func TestCountContacts(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.create(t, "Ann", "ann@x.com")
	env.create(t, "Bob", "bob@x.com")

	rec := env.do(t, jsonRequest(http.MethodGet, "/contacts/count", ""))
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/contacts/count", nil)
	req.Header.Set("HX-Request", "true")
	rec = env.do(t, req)
	assert.Equal(t, "(2 total Contacts)", rec.Body.String())
}

func TestValidateEmail(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.create(t, "Ann", "ann@x.com")

	tests := []struct {
		name  string
		query string
		want  EmailCheckResponse
	}{
		{"unused", "email=new@x.com", EmailCheckResponse{Valid: true}},
		{"taken", "email=ann@x.com", EmailCheckResponse{Message: core.MsgEmailUnique}},
		{"own email", "email=ann@x.com&id=0", EmailCheckResponse{Valid: true}},
		{"malformed", "email=nope", EmailCheckResponse{Message: core.MsgEmailNotValid}},
		{"empty", "email=", EmailCheckResponse{Message: core.MsgEmailRequired}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, jsonRequest(http.MethodGet, "/contacts/email?"+tt.query, ""))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, decode[EmailCheckResponse](t, rec))
		})
	}

	t.Run("htmx feedback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/contacts/email?email=ann@x.com", nil)
		req.Header.Set("HX-Request", "true")

		rec := env.do(t, req)

		assert.Equal(t, `<span class="error">Email Must Be Unique</span>`, rec.Body.String())
	})
}

func TestArchiveLifecycle(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.create(t, "Ann", "ann@x.com")
	env.create(t, "Bob", "bob@x.com")

	rec := env.do(t, jsonRequest(http.MethodGet, "/contacts/archive", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.StatusWaiting, decode[ArchiveResponse](t, rec).Status)

	rec = env.do(t, jsonRequest(http.MethodGet, "/contacts/archive/file", ""))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ARC002", decode[ErrorResponse](t, rec).Code)

	rec = env.do(t, jsonRequest(http.MethodPost, "/contacts/archive", ""))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.service.Archiver.Wait(ctx))

	rec = env.do(t, jsonRequest(http.MethodPost, "/contacts/archive", ""))
	assert.Equal(t, http.StatusOK, rec.Code, "start on a complete archive is a no-op")

	rec = env.do(t, jsonRequest(http.MethodGet, "/contacts/archive", ""))
	resp := decode[ArchiveResponse](t, rec)
	assert.Equal(t, core.StatusComplete, resp.Status)
	assert.Equal(t, 1.0, resp.Progress)
	require.NotNil(t, resp.Archive)
	assert.Equal(t, 2, resp.Archive.Count)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/contacts/archive/file", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="contacts.json"`, rec.Header().Get("Content-Disposition"))
	var archived []core.Contact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &archived))
	assert.Len(t, archived, 2)

	rec = env.do(t, jsonRequest(http.MethodDelete, "/contacts/archive", ""))
	resp = decode[ArchiveResponse](t, rec)
	assert.Equal(t, core.StatusWaiting, resp.Status)
	assert.Nil(t, resp.Archive)

	rec = env.do(t, jsonRequest(http.MethodGet, "/contacts/archive/file", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArchiveStatus_HTMX(t *testing.T) {
	env := newTestEnv(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/contacts/archive", nil)
	req.Header.Set("HX-Request", "true")
	rec := env.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `id="archive-ui"`)
	assert.Contains(t, rec.Body.String(), `hx-post="/contacts/archive"`)
}

func TestErrorResponses(t *testing.T) {
	env := newTestEnv(t, testConfig())

	t.Run("htmx alert", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/contacts/abc", nil)
		req.Header.Set("HX-Request", "true")

		rec := env.do(t, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), `role="alert"`)
		assert.Contains(t, rec.Body.String(), "Code: REQ003")
	})

	t.Run("plain text", func(t *testing.T) {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/contacts/abc", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "(REQ003)")
	})
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}
	env := newTestEnv(t, cfg)

	req := func() *httptest.ResponseRecorder {
		r := jsonRequest(http.MethodGet, "/healthz", "")
		r.RemoteAddr = "203.0.113.7:4000"
		return env.do(t, r)
	}

	assert.Equal(t, http.StatusOK, req().Code)

	rec := req()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "REQ004", decode[ErrorResponse](t, rec).Code)

	other := jsonRequest(http.MethodGet, "/healthz", "")
	other.RemoteAddr = "203.0.113.8:4000"
	assert.Equal(t, http.StatusOK, env.do(t, other).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.create(t, "Ann", "ann@x.com")

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "contacts_operations_total")
}
