package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"actpath-backend/internal/catalog"
	"actpath-backend/internal/model"
	"actpath-backend/internal/repository"
	"actpath-backend/internal/service"
	"actpath-backend/internal/testutil"
	"actpath-backend/pkg/middleware"
	"actpath-backend/utilities"
)

type RoutesSuite struct {
	suite.Suite
	router    *gin.Engine
	issuer    *utilities.TokenIssuer
	client    *model.User
	therapist *model.User
	other     *model.User
}

func TestRoutesSuite(t *testing.T) {
	suite.Run(t, new(RoutesSuite))
}

func (s *RoutesSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	gdb := testutil.NewDB(s.T())

	c, err := catalog.Default()
	s.Require().NoError(err)
	templateRepo := repository.NewTemplateRepository(gdb)
	s.Require().NoError(c.Seed(context.Background(), templateRepo))

	s.issuer, err = utilities.NewTokenIssuer("access", "refresh", time.Hour, time.Hour)
	s.Require().NoError(err)

	userRepo := repository.NewUserRepository(gdb)
	services := Services{
		Auth: service.NewAuthService(userRepo, s.issuer, service.AuthOptions{
			ExposeMFACode: true,
			BcryptCost:    bcrypt.MinCost,
		}),
		Profile:  service.NewProfileService(userRepo),
		Progress: service.NewProgressService(repository.NewProgressRepository(gdb), templateRepo),
		Template: service.NewTemplateService(templateRepo),
	}

	sqlDB, err := gdb.DB()
	s.Require().NoError(err)

	s.router = gin.New()
	RegisterRoutes(s.router, "/api", services, s.issuer, middleware.NewIPRateLimiter(600, 100), sqlDB)

	s.client = testutil.CreateClient(s.T(), gdb, "client@example.com")
	s.other = testutil.CreateClient(s.T(), gdb, "other@example.com")
	s.therapist = testutil.CreateUser(s.T(), gdb, "therapist@example.com", model.RoleTherapist)
}

func (s *RoutesSuite) do(method, path string, body any, user *model.User) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		token, err := s.issuer.GenerateAccessToken(user)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *RoutesSuite) TestHealth() {
	w := s.do(http.MethodGet, "/api/health", nil, nil)
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"status":"ok"}`, w.Body.String())
}

func (s *RoutesSuite) TestCompleteSessionFlow() {
	body := map[string]any{
		"sessionNumber": 1,
		"sessionTitle":  "Creative Hopelessness",
		"status":        "COMPLETED",
		"moodBefore":    3,
		"moodAfter":     5,
		"reflections":   map[string]any{"coreCost": "Social Isolation"},
		"stepProgress":  []map[string]any{{"stepId": "mood", "status": "COMPLETED"}},
		"startTime":     "2025-03-14T09:00:00Z",
		"endTime":       "2025-03-14T09:02:05Z",
	}
	w := s.do(http.MethodPost, "/api/sessions/complete", body, s.client)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	res := decode[map[string]any](s.T(), w)
	s.Equal(2.0, res["duration"])
	s.Equal(2.0, res["nextSession"])

	w = s.do(http.MethodPost, "/api/sessions/complete", body, s.client)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(2.0, decode[map[string]any](s.T(), w)["nextSession"])

	w = s.do(http.MethodGet, "/api/sessions/history", nil, s.client)
	s.Require().Equal(http.StatusOK, w.Code)
	history := decode[[]map[string]any](s.T(), w)
	s.Require().Len(history, 1)
	s.Equal(1.0, history[0]["sessionNumber"])
	s.Equal(map[string]any{"coreCost": "Social Isolation"}, history[0]["reflections"])
}

func (s *RoutesSuite) TestCompleteSessionErrors() {
	w := s.do(http.MethodPost, "/api/sessions/complete", map[string]any{"sessionNumber": 1, "status": "COMPLETED"}, nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/sessions/complete", map[string]any{"sessionNumber": 1, "status": "FINISHED"}, s.client)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/sessions/complete", map[string]any{"sessionNumber": "one"}, s.client)
	s.Equal(http.StatusBadRequest, w.Code)

	ghost := &model.User{ID: 9999, Role: model.RoleClient}
	w = s.do(http.MethodPost, "/api/sessions/complete", map[string]any{"sessionNumber": 1, "status": "COMPLETED"}, ghost)
	s.Equal(http.StatusNotFound, w.Code)
	s.Contains(w.Body.String(), "user not found")
}

func (s *RoutesSuite) TestSubmitAssessment() {
	w := s.do(http.MethodGet, "/api/assessments/template/PCL5-V1", nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	tmpl := decode[model.AssessmentTemplate](s.T(), w)
	s.Len(tmpl.Questions, 20)

	body := map[string]any{
		"templateId": tmpl.ID,
		"testType":   "PCL5-V1",
		"totalScore": 42,
		"items": []map[string]any{
			{"questionId": "q1", "questionText": "Repeated memories?", "value": 3, "label": "Quite a bit"},
		},
	}
	w = s.do(http.MethodPost, "/api/assessments/submit", body, s.client)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	res := decode[map[string]any](s.T(), w)
	s.NotEmpty(res["historyRecordId"])
	snapshot := res["snapshot"].(map[string]any)
	s.Equal(42.0, snapshot["pcl5Total"])
	s.Nil(snapshot["dersTotal"])

	w = s.do(http.MethodGet, "/api/assessments/history", nil, s.client)
	s.Require().Equal(http.StatusOK, w.Code)
	history := decode[[]map[string]any](s.T(), w)
	s.Require().Len(history, 1)
	s.Equal(res["historyRecordId"], history[0]["id"])
	s.Equal(float64(tmpl.ID), history[0]["templateId"])
	s.Equal(map[string]any{"id": float64(tmpl.ID), "code": "PCL5-V1", "title": tmpl.Title}, history[0]["template"])
}

func (s *RoutesSuite) TestSubmitAssessmentErrors() {
	w := s.do(http.MethodPost, "/api/assessments/submit", map[string]any{"testType": "PCL5-V1"}, s.client)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/assessments/submit", map[string]any{"testType": "PCL5-V1", "totalScore": 1, "templateId": 999}, s.client)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/assessments/template/NOPE", nil, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RoutesSuite) TestClientHistoryAccess() {
	path := fmt.Sprintf("/api/assessments/history/%d", s.client.ID)

	s.Equal(http.StatusOK, s.do(http.MethodGet, path, nil, s.client).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, path, nil, s.therapist).Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, path, nil, s.other).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/api/assessments/history/abc", nil, s.therapist).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/assessments/history/9999", nil, s.therapist).Code)
}

func (s *RoutesSuite) TestTemplates() {
	w := s.do(http.MethodGet, "/api/templates", nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Len(decode[[]model.SessionTemplate](s.T(), w), 12)

	w = s.do(http.MethodGet, "/api/templates/2", nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("Acceptance", decode[model.SessionTemplate](s.T(), w).Title)

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/templates/13", nil, nil).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/api/templates/x", nil, nil).Code)
}

func (s *RoutesSuite) TestProfile() {
	w := s.do(http.MethodGet, "/api/user/profile", nil, s.client)
	s.Require().Equal(http.StatusOK, w.Code)
	s.NotContains(w.Body.String(), "password")
	s.NotContains(w.Body.String(), "not-a-real-hash")

	w = s.do(http.MethodPut, "/api/user/profile", map[string]any{"hasConsented": true, "name": "Updated"}, s.client)
	s.Require().Equal(http.StatusOK, w.Code)
	u := decode[map[string]any](s.T(), w)
	s.Equal("Updated", u["name"])
	s.Equal(true, u["hasConsented"])
	s.NotNil(u["consentTimestamp"])
}

func (s *RoutesSuite) TestAuthFlow() {
	w := s.do(http.MethodPost, "/api/auth/register", map[string]any{
		"name": "New Client", "email": "new@example.com", "password": "password123",
	}, nil)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/auth/register", map[string]any{
		"name": "New Client", "email": "new@example.com", "password": "password123",
	}, nil)
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", map[string]any{"email": "new@example.com", "password": "wrong-pass"}, nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", map[string]any{"email": "new@example.com", "password": "password123"}, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	challenge := decode[map[string]any](s.T(), w)
	s.Equal("MFA Required", challenge["message"])
	code, _ := challenge["tempCode"].(string)
	s.Require().Len(code, 6)

	w = s.do(http.MethodPost, "/api/auth/verify-mfa", map[string]any{"email": "new@example.com", "code": code}, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	tokens := decode[map[string]any](s.T(), w)
	s.Equal("CLIENT", tokens["role"])

	w = s.do(http.MethodPost, "/api/auth/refresh", map[string]any{"refreshToken": tokens["refreshToken"]}, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.NotEmpty(decode[map[string]any](s.T(), w)["token"])
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	gdb := testutil.NewDB(t)
	issuer, err := utilities.NewTokenIssuer("a", "b", 0, 0)
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(gdb)
	templateRepo := repository.NewTemplateRepository(gdb)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)

	r := gin.New()
	RegisterRoutes(r, "/api", Services{
		Auth:     service.NewAuthService(userRepo, issuer, service.AuthOptions{BcryptCost: bcrypt.MinCost}),
		Profile:  service.NewProfileService(userRepo),
		Progress: service.NewProgressService(repository.NewProgressRepository(gdb), templateRepo),
		Template: service.NewTemplateService(templateRepo),
	}, issuer, middleware.NewIPRateLimiter(1, 2), sqlDB)

	var codes []int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"email":"x@example.com","password":"whatever"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}
