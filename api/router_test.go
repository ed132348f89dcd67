package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"bitbucket.org/mmdatafocus/retail_backend/workflow"
	"github.com/gin-gonic/gin"
)

func TestErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		code workflow.ErrorCode
		want int
	}{
		{workflow.ErrorCodeInvalidInput, http.StatusBadRequest},
		{workflow.ErrorCodeInvalidStateTransition, http.StatusConflict},
		{workflow.ErrorCodeInsufficientStock, http.StatusConflict},
		{workflow.ErrorCodeOverReceipt, http.StatusBadRequest},
		{workflow.ErrorCodeConflict, http.StatusConflict},
		{workflow.ErrorCodeNotFound, http.StatusNotFound},
		{workflow.ErrorCodeForbiddenLocation, http.StatusForbidden},
	}
	for _, tc := range cases {
		recorder := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(recorder)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		respondError(c, &workflow.Error{Code: tc.code, Message: "test"})
		if recorder.Code != tc.want {
			t.Errorf("code %s mapped to %d, want %d", tc.code, recorder.Code, tc.want)
		}
	}
}

func TestHealthzIsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(nil)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("healthz = %d", recorder.Code)
	}
}

func TestApiRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(nil)

	for _, path := range []string{"/api/transfers", "/api/locations"} {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
		if recorder.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", path, recorder.Code)
		}
	}

	// A garbage token is rejected too.
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/transfers", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	router.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token = %d, want 401", recorder.Code)
	}
}

func TestValidTokenPassesAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(nil)

	token, err := utils.JwtGenerate(1, "biz-1", "staff@biz-1", 1, "staff")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	// No DB behind the handler in unit tests; reaching a non-401 response
	// proves the middleware accepted the token and populated the context.
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/transfers/abc", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(recorder, req)
	if recorder.Code == http.StatusUnauthorized {
		t.Fatalf("valid token rejected")
	}
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("invalid transfer id = %d, want 400", recorder.Code)
	}
}
