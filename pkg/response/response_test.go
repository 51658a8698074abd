package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/elab-api/pkg/errors"
	"github.com/noah-isme/elab-api/pkg/middleware/requestid"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/team-kit/export", nil)
	return c, rec
}

func TestErrorCarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware())
	r.GET("/bookings/:id", func(c *gin.Context) {
		Error(c, appErrors.WithDetails(appErrors.ErrBookingConflict, map[string]interface{}{"slot_id": "slot-1"}))
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/bookings/b-1", nil)
	req.Header.Set("X-Request-ID", "req-42")
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Error *appErrors.Error       `json:"error"`
		Meta  map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, appErrors.ErrBookingConflict.Code, body.Error.Code)
	assert.Equal(t, "slot-1", body.Error.Details["slot_id"])
	assert.Equal(t, "req-42", body.Meta["request_id"])
}

func TestErrorWithoutRequestIDOmitsMeta(t *testing.T) {
	c, rec := newContext()
	Error(c, appErrors.ErrNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "meta")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestAttachment(t *testing.T) {
	c, rec := newContext()
	Attachment(c, "team_kit_history_20261016.csv", "text/csv", 2, []byte("a,b\n"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="team_kit_history_20261016.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "2", rec.Header().Get(HeaderExportRows))
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "a,b\n", rec.Body.String())
}
