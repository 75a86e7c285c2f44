package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/subtrack_server/config"
	"github.com/qs3c/subtrack_server/internal/model"
	"github.com/qs3c/subtrack_server/internal/pkg/response"
	"github.com/qs3c/subtrack_server/internal/repository"
	"github.com/qs3c/subtrack_server/internal/service"
	"github.com/qs3c/subtrack_server/internal/testutil"
)

type stubTrigger struct {
	subscriptionIDs []int64
}

func (s *stubTrigger) Trigger(ctx context.Context, subscriptionID int64, callbackURL string) (string, error) {
	s.subscriptionIDs = append(s.subscriptionIDs, subscriptionID)
	return fmt.Sprintf("run-%d", subscriptionID), nil
}

func (s *stubTrigger) Supersede(ctx context.Context, subscriptionID int64) (int, error) {
	return 0, nil
}

func setupSubscriptionHandler(t *testing.T) (*SubscriptionHandler, *stubTrigger, *gorm.DB, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	trigger := &stubTrigger{}
	svc := service.NewSubscriptionService(
		repository.NewSubscriptionRepository(db),
		repository.NewUserRepository(db),
		trigger,
		&config.Config{Server: config.ServerConfig{PublicURL: "http://localhost:5500"}},
		zap.NewNop(),
	)

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}

	return NewSubscriptionHandler(svc, zap.NewNop()), trigger, db, cleanup
}

func subscriptionRouter(h *SubscriptionHandler, userID int64) *gin.Engine {
	router := gin.New()
	router.Use(withUser(userID))
	router.POST("/subscriptions", h.Create)
	router.GET("/subscriptions/:id", h.Get)
	router.PUT("/subscriptions/:id", h.Update)
	router.GET("/users/:id/subscriptions", h.ListByUser)
	return router
}

func createBody(start time.Time) map[string]interface{} {
	return map[string]interface{}{
		"name":           "Spotify",
		"price":          9.99,
		"currency":       "USD",
		"frequency":      "monthly",
		"category":       "standard",
		"payment_method": "Credit Card",
		"start_date":     start.Format(time.RFC3339),
	}
}

func TestSubscriptionHandler_Create(t *testing.T) {
	h, trigger, db, cleanup := setupSubscriptionHandler(t)
	defer cleanup()

	user := testutil.TestUser(t, db)
	router := subscriptionRouter(h, user.ID)

	w := performRequest(router, "POST", "/subscriptions", createBody(time.Now().UTC().AddDate(0, 0, -3)))
	resp := parseResponse(t, w)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data := resp.Data.(map[string]interface{})
	sub := data["subscription"].(map[string]interface{})
	assert.Equal(t, "active", sub["status"])
	assert.Equal(t, fmt.Sprintf("run-%d", int64(sub["id"].(float64))), data["workflow_run_id"])
	assert.Len(t, trigger.subscriptionIDs, 1)
}

func TestSubscriptionHandler_Create_Invalid(t *testing.T) {
	h, trigger, db, cleanup := setupSubscriptionHandler(t)
	defer cleanup()

	user := testutil.TestUser(t, db)
	router := subscriptionRouter(h, user.ID)

	t.Run("binding failure", func(t *testing.T) {
		body := createBody(time.Now().UTC())
		body["category"] = "platinum"
		w := performRequest(router, "POST", "/subscriptions", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("future start date", func(t *testing.T) {
		w := performRequest(router, "POST", "/subscriptions", createBody(time.Now().UTC().Add(48*time.Hour)))
		resp := parseResponse(t, w)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "start_date", resp.Data.(map[string]interface{})["field"])
	})

	t.Run("renewal before start", func(t *testing.T) {
		start := time.Now().UTC().AddDate(0, 0, -1)
		body := createBody(start)
		body["renewal_date"] = start.AddDate(0, 0, -1).Format(time.RFC3339)
		w := performRequest(router, "POST", "/subscriptions", body)
		resp := parseResponse(t, w)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "renewal_date", resp.Data.(map[string]interface{})["field"])
	})

	assert.Empty(t, trigger.subscriptionIDs)
}

func TestSubscriptionHandler_GetAndUpdate(t *testing.T) {
	h, _, db, cleanup := setupSubscriptionHandler(t)
	defer cleanup()

	owner := testutil.TestUser(t, db)
	other := testutil.TestUser(t, db)
	sub := testutil.TestSubscription(t, db, owner.ID)
	path := fmt.Sprintf("/subscriptions/%d", sub.ID)

	w := performRequest(subscriptionRouter(h, owner.ID), "GET", path, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(subscriptionRouter(h, other.ID), "GET", path, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = performRequest(subscriptionRouter(h, owner.ID), "GET", "/subscriptions/99999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(subscriptionRouter(h, owner.ID), "GET", "/subscriptions/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(subscriptionRouter(h, owner.ID), "PUT", path, map[string]interface{}{"status": model.SubscriptionStatusCanceled})
	resp := parseResponse(t, w)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := resp.Data.(map[string]interface{})["subscription"].(map[string]interface{})
	assert.Equal(t, model.SubscriptionStatusCanceled, updated["status"])

	w = performRequest(subscriptionRouter(h, other.ID), "PUT", path, map[string]interface{}{"name": "Mine now"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSubscriptionHandler_ListByUser(t *testing.T) {
	h, _, db, cleanup := setupSubscriptionHandler(t)
	defer cleanup()

	owner := testutil.TestUser(t, db)
	other := testutil.TestUser(t, db)
	testutil.TestSubscription(t, db, owner.ID)
	testutil.TestSubscription(t, db, owner.ID)

	path := fmt.Sprintf("/users/%d/subscriptions", owner.ID)

	w := performRequest(subscriptionRouter(h, owner.ID), "GET", path+"?page=1&page_size=10", nil)
	resp := parseResponse(t, w)
	require.Equal(t, http.StatusOK, w.Code)
	page := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), page["total"])
	assert.Equal(t, float64(10), page["page_size"])
	assert.Len(t, page["items"], 2)

	w = performRequest(subscriptionRouter(h, other.ID), "GET", path, nil)
	resp = parseResponse(t, w)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, response.CodePermissionDenied, resp.Code)
}
