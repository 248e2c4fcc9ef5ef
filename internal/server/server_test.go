package server

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"loan-decision/internal/common/config"
	"loan-decision/internal/common/logger"
	"loan-decision/internal/form"
	"loan-decision/internal/models"
	"loan-decision/internal/session"
	"loan-decision/internal/verdict"
	"loan-decision/internal/verdict/remote"
	"loan-decision/internal/verdict/rules"
	"loan-decision/pkg/catalog"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedRand struct{}

func (fixedRand) IntN(n int) int   { return 0 }
func (fixedRand) Float64() float64 { return 0 }

func newServer(t *testing.T, source verdict.Source, ready ReadyFunc) *Server {
	t.Helper()
	controller := form.NewController(form.Options{
		Store:   session.NewMemoryStore(time.Hour, time.Minute),
		Source:  source,
		Rand:    fixedRand{},
		Catalog: catalog.Default(),
		Logger:  logger.NewTestLogger(t),
	})
	s, err := New(Options{
		Config:     config.ServerConfig{BranchLabel: "Mumbai Central (0021)"},
		SessionTTL: time.Hour,
		Controller: controller,
		Ready:      ready,
		Logger:     logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	return s
}

func newRulesServer(t *testing.T) *Server {
	return newServer(t, rules.New(0, fixedRand{}, logger.NewTestLogger(t)), nil)
}

func completeForm() url.Values {
	values := url.Values{}
	for _, name := range catalog.Default().Names() {
		values.Set(name, "x")
	}
	values.Set("Applicant_ID", "APP-10023")
	values.Set("Credit_Score", "720")
	values.Set("Annual_Income", "1200000")
	values.Set("Loan_Amount_Requested", "2000000")
	values.Set("Default_Risk", "Low")
	values.Set("Loan_History", "Good")
	values.Set("Employment_Status", "Employed")
	return values
}

func completeApplication() models.Application {
	app := models.Application{}
	for name, v := range completeForm() {
		app[name] = v[0]
	}
	return app
}

// client carries the session cookie between requests.
type client struct {
	t       *testing.T
	handler http.Handler
	cookies []*http.Cookie
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	if set := w.Result().Cookies(); len(set) > 0 {
		c.cookies = set
	}
	return w
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) postForm(path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *client) postJSON(path string, body interface{}) *httptest.ResponseRecorder {
	data, err := json.Marshal(body)
	require.NoError(c.t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func TestRenderForm(t *testing.T) {
	s := newRulesServer(t)
	c := &client{t: t, handler: s.Handler()}

	w := c.get("/")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Personal Information")
	assert.Contains(t, body, "Banking &amp; Risk Profile")
	assert.Contains(t, body, "Evaluate Application")
	assert.Contains(t, body, "Mumbai Central (0021)")
	assert.NotContains(t, body, "Clear Form")
	assert.NotContains(t, body, `id="verdict"`)

	require.Len(t, c.cookies, 1)
	assert.Equal(t, "loan_session", c.cookies[0].Name)
	assert.True(t, c.cookies[0].HttpOnly)
}

func TestSessionCookieIsReused(t *testing.T) {
	s := newRulesServer(t)
	c := &client{t: t, handler: s.Handler()}

	c.get("/")
	first := c.cookies[0].Value
	c.get("/")
	assert.Equal(t, first, c.cookies[0].Value)

	c.cookies = []*http.Cookie{{Name: "loan_session", Value: "not-a-uuid"}}
	c.get("/")
	assert.NotEqual(t, "not-a-uuid", c.cookies[0].Value)
}

func TestSubmitForm_ShowsVerdict(t *testing.T) {
	s := newRulesServer(t)
	c := &client{t: t, handler: s.Handler()}

	w := c.postForm("/form/submit", completeForm())
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	body := c.get("/").Body.String()
	assert.Contains(t, body, `id="verdict"`)
	assert.Contains(t, body, "Approved")
	assert.Contains(t, body, "80%")
	assert.Contains(t, body, rules.ReasonStableEmployment)
	assert.Contains(t, body, "APP-10023")
	assert.Contains(t, body, `value="720"`)
	assert.Contains(t, body, `<option value="Good" selected>Good</option>`)
}

func TestSubmitForm_IncompleteShowsErrorOnce(t *testing.T) {
	s := newRulesServer(t)
	c := &client{t: t, handler: s.Handler()}

	values := completeForm()
	values.Del("Credit_Score")
	w := c.postForm("/form/submit", values)
	require.Equal(t, http.StatusSeeOther, w.Code)

	body := c.get("/").Body.String()
	assert.Contains(t, body, "Please complete every field before evaluating the application.")
	assert.NotContains(t, body, `id="verdict"`)

	body = c.get("/").Body.String()
	assert.NotContains(t, body, "Please complete every field")
}

func TestSubmitJSON(t *testing.T) {
	s := newRulesServer(t)

	t.Run("approved", func(t *testing.T) {
		c := &client{t: t, handler: s.Handler()}
		w := c.postJSON("/form/submit", completeApplication())
		require.Equal(t, http.StatusOK, w.Code)

		var v models.Verdict
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
		assert.Equal(t, models.StatusApproved, v.Status)
	})

	t.Run("incomplete", func(t *testing.T) {
		c := &client{t: t, handler: s.Handler()}
		app := completeApplication()
		delete(app, "Loan_Term")
		w := c.postJSON("/form/submit", app)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "APPLICATION_VALIDATION_FAILED", body["code"])
	})

	t.Run("unknown field", func(t *testing.T) {
		c := &client{t: t, handler: s.Handler()}
		app := completeApplication()
		app["Nickname"] = "Bob"
		w := c.postJSON("/form/submit", app)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestFormActions(t *testing.T) {
	s := newRulesServer(t)
	c := &client{t: t, handler: s.Handler()}

	w := c.postJSON("/form/field", map[string]interface{}{"name": "Credit_Score", "value": "640"})
	require.Equal(t, http.StatusOK, w.Code)
	var state models.FormState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, "640", state.Application["Credit_Score"])

	w = c.postJSON("/form/field", map[string]interface{}{"name": "Nickname", "value": "Bob"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.postForm("/form/demo", nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	body := c.get("/").Body.String()
	assert.Contains(t, body, "Clear Form")

	w = c.get("/api/state")
	require.Equal(t, http.StatusOK, w.Code)
	state = models.FormState{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.NotEmpty(t, state.Application["Credit_Score"])
	assert.NotEqual(t, "640", state.Application["Credit_Score"])

	w = c.postForm("/form/reset", nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	state = models.FormState{}
	require.NoError(t, json.Unmarshal(c.get("/api/state").Body.Bytes(), &state))
	assert.True(t, state.Application.IsEmpty())
	assert.Nil(t, state.Verdict)
}

func TestAPIEndpoints(t *testing.T) {
	s := newRulesServer(t)
	c := &client{t: t, handler: s.Handler()}

	w := c.get("/api")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Loan Approval API is running!")
	assert.Contains(t, w.Body.String(), `"source":"rules"`)

	w = c.get("/api/fields")
	require.Equal(t, http.StatusOK, w.Code)
	var cat catalog.Catalog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cat))
	assert.Len(t, cat.Sections, 5)

	w = c.get("/api/demo")
	require.Equal(t, http.StatusOK, w.Code)
	var app models.Application
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &app))
	assert.Contains(t, app, "Credit_Score")

	assert.Equal(t, http.StatusOK, c.get("/health").Code)
	assert.Equal(t, http.StatusOK, c.get("/ready").Code)
}

func TestReadinessFailure(t *testing.T) {
	s := newServer(t, rules.New(0, fixedRand{}, logger.NewTestLogger(t)), func(ctx context.Context) error {
		return stderrors.New("redis down")
	})
	c := &client{t: t, handler: s.Handler()}
	assert.Equal(t, http.StatusServiceUnavailable, c.get("/ready").Code)
}

func TestPredict(t *testing.T) {
	s := newRulesServer(t)
	c := &client{t: t, handler: s.Handler()}

	tests := []struct {
		name       string
		body       interface{}
		wantCode   int
		wantStatus string
	}{
		{"approved", completeApplication(), http.StatusOK, models.StatusApproved},
		{"low credit", func() models.Application {
			app := completeApplication()
			app["Credit_Score"] = "600"
			return app
		}(), http.StatusOK, models.StatusRejected},
		{"incomplete", models.Application{"Credit_Score": "700"}, http.StatusUnprocessableEntity, ""},
		{"not an object", []string{"a"}, http.StatusUnprocessableEntity, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := c.postJSON("/predict", tt.body)
			require.Equal(t, tt.wantCode, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.wantStatus != "" {
				assert.Equal(t, tt.wantStatus, body["status"])
			} else {
				assert.NotEmpty(t, body["detail"])
			}
		})
	}
}

func TestRemoteSourceAgainstPredictEndpoint(t *testing.T) {
	backend := httptest.NewServer(newRulesServer(t).Handler())
	defer backend.Close()

	src := remote.New(remote.Config{URL: backend.URL + "/predict"}, logger.NewTestLogger(t))
	s := newServer(t, src, nil)
	c := &client{t: t, handler: s.Handler()}

	w := c.postForm("/form/submit", completeForm())
	require.Equal(t, http.StatusSeeOther, w.Code)

	body := c.get("/").Body.String()
	assert.Contains(t, body, "Approved")
	assert.Contains(t, body, rules.ReasonStableEmployment)
	assert.Contains(t, body, "APP-10023")
}

func TestRemoteSourceUnreachable(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	backendURL := backend.URL + "/predict"
	backend.Close()

	src := remote.New(remote.Config{URL: backendURL}, logger.NewTestLogger(t))
	s := newServer(t, src, nil)
	c := &client{t: t, handler: s.Handler()}

	w := c.postJSON("/form/submit", completeApplication())
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to connect to the prediction service")

	state := models.FormState{}
	require.NoError(t, json.Unmarshal(c.get("/api/state").Body.Bytes(), &state))
	assert.Nil(t, state.Verdict)
	assert.False(t, state.Evaluating)
	assert.Contains(t, state.Error, "Failed to connect")
}
