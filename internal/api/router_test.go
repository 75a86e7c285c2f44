package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/qs3c/subtrack_server/config"
	"github.com/qs3c/subtrack_server/internal/api/handler"
	"github.com/qs3c/subtrack_server/internal/pkg/ws"
	"github.com/qs3c/subtrack_server/internal/repository"
	"github.com/qs3c/subtrack_server/internal/service"
	"github.com/qs3c/subtrack_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRouter_Setup(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	cfg := &config.Config{
		JWT:      config.JWTConfig{Secret: "router-secret", ExpireHours: 1},
		Workflow: config.WorkflowConfig{TriggerToken: "trigger-secret"},
		CORS:     config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
	logger := zap.NewNop()

	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	workflowService := service.NewWorkflowService(
		repository.NewRunRepository(db),
		repository.NewStepRepository(db),
		subRepo,
		nil,
		logger,
	)
	subscriptionService := service.NewSubscriptionService(subRepo, userRepo, workflowService, cfg, logger)

	router := NewRouter(
		handler.NewAuthHandler(service.NewAuthService(userRepo, cfg)),
		handler.NewSubscriptionHandler(subscriptionService, logger),
		handler.NewWorkflowHandler(workflowService, subscriptionService.CallbackURL(), logger),
		handler.NewWebSocketHandler(ws.NewHub(logger), cfg.JWT.Secret, cfg.CORS.AllowedOrigins, logger),
		handler.NewHealthHandler(db, nil),
		cfg,
		logger,
	).Setup()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		header     [2]string
		wantStatus int
	}{
		{"health", "GET", "/healthz", "", [2]string{}, http.StatusOK},
		{"subscriptions need auth", "POST", "/api/v1/subscriptions", "{}", [2]string{}, http.StatusUnauthorized},
		{"user list needs auth", "GET", "/api/v1/users/1/subscriptions", "", [2]string{}, http.StatusUnauthorized},
		{"trigger needs token", "POST", "/api/v1/workflows/subscription/reminder", "{}", [2]string{}, http.StatusUnauthorized},
		{"trigger with token validates body", "POST", "/api/v1/workflows/subscription/reminder", "{}", [2]string{"X-Workflow-Token", "trigger-secret"}, http.StatusBadRequest},
		{"sign-in validates body", "POST", "/api/v1/auth/sign-in", "{}", [2]string{}, http.StatusBadRequest},
		{"unknown route", "GET", "/api/v1/nope", "", [2]string{}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.header[0] != "" {
				req.Header.Set(tt.header[0], tt.header[1])
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
