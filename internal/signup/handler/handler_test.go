package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"onboard/internal/countries"
	"onboard/internal/email"
	"onboard/internal/email/disposable"
	"onboard/internal/phone"
	"onboard/internal/ratelimit"
	"onboard/internal/settings"
	settingsstore "onboard/internal/settings/store"
	"onboard/internal/signup/models"
	"onboard/internal/signup/service"
	"onboard/internal/signup/store/authaccount"
	"onboard/internal/signup/store/primary"
	"onboard/internal/signup/validation"
	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/platform/middleware/metadata"
	request "onboard/pkg/platform/middleware/request"
	"onboard/pkg/platform/secrets"
)

const adminToken = "secret-token"

type HandlerSuite struct {
	suite.Suite
	primaries *primary.InMemory
	router    http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := settings.NewProvider(settingsstore.NewInMemory(map[string]string{
		settings.KeyEmailMXVerification: "false",
	}))
	directory := countries.New()
	s.primaries = primary.NewInMemory()
	auths := authaccount.NewInMemory()
	emailValidator := email.New(nil, disposable.NewSelector(disposable.NewLibraryFromList("mailinator.com")), s.primaries)
	phoneValidator := phone.New(directory)
	svc := service.New(service.Deps{
		Policies:  provider,
		Pipeline:  validation.New(provider, emailValidator, phoneValidator),
		Email:     emailValidator,
		Phone:     phoneValidator,
		Countries: directory,
		Primaries: s.primaries,
		Auths:     auths,
		Tx:        service.NewInMemoryTx(s.primaries, auths),
		Hasher:    secrets.NewHasher(4),
	})
	s.router = newRouter(svc, logger)
}

func newRouter(svc Service, logger *slog.Logger) http.Handler {
	h := New(svc, logger)
	r := chi.NewRouter()
	r.Use(request.RequestID)
	h.Register(r)
	h.RegisterAdmin(r, adminToken)
	return r
}

func (s *HandlerSuite) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func signupBody(addr string) map[string]any {
	return map[string]any{
		"account_type":     "individual",
		"first_name":       "Sara",
		"last_name":        "Ali",
		"email":            addr,
		"phone":            "0512345678",
		"phone_country_id": "SA",
		"password":         "Abcdefg1",
		"confirm_password": "Abcdefg1",
	}
}

func (s *HandlerSuite) TestSubmit_Success() {
	rec := s.do(http.MethodPost, "/signup", signupBody("sara@mail.sa"))
	s.Require().Equal(http.StatusOK, rec.Code)
	out := decode[submitResponse](s.T(), rec)
	s.True(out.Success)
	s.Equal("/web", out.RedirectTarget)
	s.Empty(out.Errors)
}

func (s *HandlerSuite) TestSubmit_ValidationFailureIs422() {
	body := signupBody("sara@mail.sa")
	body["first_name"] = ""
	body["confirm_password"] = "different"
	rec := s.do(http.MethodPost, "/signup", body)
	s.Require().Equal(http.StatusUnprocessableEntity, rec.Code)
	out := decode[submitResponse](s.T(), rec)
	s.False(out.Success)
	s.Equal([]string{validation.MsgFirstNameRequired, validation.MsgPasswordMismatch}, out.Errors)
}

func (s *HandlerSuite) TestSubmit_DuplicateIs409() {
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/signup", signupBody("sara@mail.sa")).Code)
	rec := s.do(http.MethodPost, "/signup", signupBody("SARA@mail.sa"))
	s.Require().Equal(http.StatusConflict, rec.Code)
	out := decode[submitResponse](s.T(), rec)
	s.False(out.Success)
	s.Require().Len(out.Errors, 1)
	s.Contains(out.Errors[0], "already exists")
}

func (s *HandlerSuite) TestSubmit_MalformedBody() {
	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestSubmit_OversizedFieldRejected() {
	body := signupBody("sara@mail.sa")
	body["first_name"] = strings.Repeat("a", 200)
	rec := s.do(http.MethodPost, "/signup", body)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestSubmit_RateLimited() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := ratelimit.New(ratelimit.WithLimit(ratelimit.ClassSubmit, ratelimit.Limit{Requests: 1, Window: time.Minute}))
	h := New(failingService{err: dErrors.New(dErrors.CodeInternal, "boom")}, logger, WithRateLimiter(limiter))
	r := chi.NewRouter()
	r.Use(metadata.ClientMetadata)
	h.Register(r)

	codes := make([]int, 0, 2)
	for range 2 {
		raw, _ := json.Marshal(signupBody("a@b.co"))
		req := httptest.NewRequest(http.MethodPost, "/signup", bytes.NewReader(raw))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	s.Equal([]int{http.StatusInternalServerError, http.StatusTooManyRequests}, codes)

	// Field checks have their own window.
	raw, _ := json.Marshal(map[string]string{"password": "x"})
	req := httptest.NewRequest(http.MethodPost, "/signup/validate/password", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	s.NotEqual(http.StatusTooManyRequests, rec.Code)
}

func (s *HandlerSuite) TestValidateEmail() {
	rec := s.do(http.MethodPost, "/signup/validate/email", map[string]string{"email": "x@mailinator.com"})
	s.Require().Equal(http.StatusOK, rec.Code)
	out := decode[fieldValidationResponse](s.T(), rec)
	s.False(out.Valid)
	s.Equal([]string{email.MsgDisposable}, out.Messages)

	rec = s.do(http.MethodPost, "/signup/validate/email", map[string]string{"email": "sara@mail.sa"})
	out = decode[fieldValidationResponse](s.T(), rec)
	s.True(out.Valid)
	s.NotNil(out.Messages)
}

func (s *HandlerSuite) TestValidatePhone() {
	rec := s.do(http.MethodPost, "/signup/validate/phone", map[string]string{"phone": "0512345678", "country_id": "SA"})
	s.Require().Equal(http.StatusOK, rec.Code)
	out := decode[phoneValidationResponse](s.T(), rec)
	s.True(out.Valid)
	s.Equal("+966 51 234 5678", out.Formatted)
	s.Equal(string(id.PhoneTypeMobile), out.PhoneType)
}

func (s *HandlerSuite) TestValidatePhone_DefaultCountry() {
	rec := s.do(http.MethodPost, "/signup/validate/phone", map[string]string{"phone": "0512345678"})
	out := decode[phoneValidationResponse](s.T(), rec)
	s.True(out.Valid)
}

func (s *HandlerSuite) TestValidatePassword() {
	rec := s.do(http.MethodPost, "/signup/validate/password", map[string]string{"password": "abc"})
	s.Require().Equal(http.StatusOK, rec.Code)
	out := decode[passwordValidationResponse](s.T(), rec)
	s.False(out.Valid)
	s.NotEmpty(out.Messages)

	rec = s.do(http.MethodPost, "/signup/validate/password", map[string]string{"password": "Abcdefg1"})
	out = decode[passwordValidationResponse](s.T(), rec)
	s.True(out.Valid)
	s.Equal(100, out.Score)
}

func (s *HandlerSuite) TestRules() {
	rec := s.do(http.MethodGet, "/signup/rules", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	out := decode[models.Rules](s.T(), rec)
	s.NotEmpty(out.Countries)
	s.Equal(8, out.Password.MinLength)
}

func (s *HandlerSuite) TestAdmin_RequiresToken() {
	rec := s.do(http.MethodGet, "/admin/accounts/"+id.NewPrimaryAccountID().String(), nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestAdmin_GetUpdateAndEnsure() {
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/signup", signupBody("sara@mail.sa")).Code)
	account, err := s.primaries.FindByEmail(context.Background(), "sara@mail.sa")
	s.Require().NoError(err)
	path := "/admin/accounts/" + account.ID.String()

	rec := s.do(http.MethodGet, path, nil, "X-Admin-Token", adminToken)
	s.Require().Equal(http.StatusOK, rec.Code)
	view := decode[models.AccountView](s.T(), rec)
	s.True(view.Linked)
	s.Require().NotNil(view.AuthAccount)

	rec = s.do(http.MethodPatch, path, map[string]any{"first_name": "Sarah"}, "X-Admin-Token", adminToken)
	s.Require().Equal(http.StatusOK, rec.Code)
	updated := decode[models.PrimaryAccount](s.T(), rec)
	s.Equal("Sarah", updated.FirstName)

	rec = s.do(http.MethodPost, path+"/auth-account", nil, "X-Admin-Token", adminToken)
	s.Require().Equal(http.StatusOK, rec.Code)
	auth := decode[models.AuthAccount](s.T(), rec)
	s.Equal(view.AuthAccount.ID, auth.ID)
	s.Equal("Sarah Ali", auth.DisplayName)
}

func (s *HandlerSuite) TestAdmin_BadIDAndMissingAccount() {
	rec := s.do(http.MethodGet, "/admin/accounts/not-a-uuid", nil, "X-Admin-Token", adminToken)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/admin/accounts/"+id.NewPrimaryAccountID().String(), nil, "X-Admin-Token", adminToken)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestAdmin_UpdateRejectsUnknownKind() {
	rec := s.do(http.MethodPatch, "/admin/accounts/"+id.NewPrimaryAccountID().String(),
		map[string]any{"account_type": "partner"}, "X-Admin-Token", adminToken)
	s.Equal(http.StatusBadRequest, rec.Code)
}

// failingService forces the error branches the real service rarely takes.
type failingService struct {
	Service
	err error
}

func (f failingService) ValidateEmail(context.Context, string) (email.Result, error) {
	return email.Result{}, f.err
}

func (f failingService) ValidatePhone(context.Context, string, string) phone.Result {
	panic("phone library blew up")
}

func (f failingService) SubmitSignup(context.Context, *models.SignupRequest) (*models.SubmitResult, error) {
	return nil, f.err
}

func TestHandler_UnexpectedErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := newRouter(failingService{err: dErrors.Wrap(errors.New("db down"), dErrors.CodeInternal, "boom")}, logger)

	post := func(path string, body any) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := post("/signup/validate/email", map[string]string{"email": "a@b.co"})
	assert.Equal(t, http.StatusOK, rec.Code)
	emailOut := decode[fieldValidationResponse](t, rec)
	assert.False(t, emailOut.Valid)
	assert.Equal(t, []string{msgEmailUnavailable}, emailOut.Messages)

	rec = post("/signup/validate/phone", map[string]string{"phone": "0512345678"})
	assert.Equal(t, http.StatusOK, rec.Code)
	phoneOut := decode[phoneValidationResponse](t, rec)
	assert.Equal(t, []string{msgPhoneUnavailable}, phoneOut.Messages)

	rec = post("/signup", signupBody("a@b.co"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	submitOut := decode[submitResponse](t, rec)
	assert.Equal(t, []string{msgRegistrationFailed}, submitOut.Errors)
	assert.NotContains(t, rec.Body.String(), "db down")
}
