package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vpnstore/pkg/config"
	"vpnstore/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, f *billingFixture) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(middleware.Error())

	cfg := &config.Config{}
	cfg.Admin.Token = "admin-token"
	RegisterRoutes(HandlerParams{Engine: engine, Config: cfg, Handler: NewHandler(f.svc)})
	return engine
}

func TestPostback_CreditsViaWebhook(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(t, f)
	user := f.newUser(t, 1)

	topup, err := f.svc.CreateTopUp(context.Background(), user.ID, 330)
	require.NoError(t, err)

	body := `{"order_id":"` + topup.OrderID + `","status":"PAID"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(body))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), string(OutcomeCredited))

	balance, err := f.accounts.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 330, balance)
}

func TestPostback_MalformedDropped(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(t, f)

	for _, body := range []string{"not json", `{"status":"PAID"}`, `{"order_id":"ORD-NOPE","status":"PAID"}`} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(body))
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "postback %q must be dropped with 200", body)
	}
}

func TestAdminApprove_RequiresToken(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(t, f)
	user := f.newUser(t, 1)

	topup, err := f.svc.CreateTopUp(context.Background(), user.ID, 100)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/topups/"+topup.ID+"/approve", nil)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/admin/topups/"+topup.ID+"/approve", nil)
	req.Header.Set("X-Admin-Token", "admin-token")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	balance, err := f.accounts.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 100, balance)
}
