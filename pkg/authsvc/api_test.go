package authsvc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamrelay/platform/pkg/api"
	"github.com/streamrelay/platform/pkg/httpauth"
)

type fakeMembershipFinder struct {
	memberships map[string]*Membership
}

func (f *fakeMembershipFinder) FindMembership(ctx context.Context, tenantID, userID string) (*Membership, error) {
	m, ok := f.memberships[tenantID+":"+userID]
	if !ok {
		return nil, api.ErrNotFound
	}
	return m, nil
}

func newTestServer(finder MembershipFinder) *echo.Echo {
	e := echo.New()
	api := NewAPI(finder, httpauth.NewSigner([]byte("test-secret")))
	api.Register(e.Group(""))
	return e
}

func TestMintToken_KnownMembershipSucceeds(t *testing.T) {
	finder := &fakeMembershipFinder{memberships: map[string]*Membership{
		"t1:u1": {TenantID: "t1", UserID: "u1", Role: "owner"},
	}}
	e := newTestServer(finder)

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"tenant_id":"t1","user_id":"u1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token"`)
}

func TestMintToken_UnknownMembershipRejected(t *testing.T) {
	finder := &fakeMembershipFinder{memberships: map[string]*Membership{}}
	e := newTestServer(finder)

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"tenant_id":"t1","user_id":"ghost"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMintToken_MissingFieldsRejected(t *testing.T) {
	e := newTestServer(&fakeMembershipFinder{memberships: map[string]*Membership{}})

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"tenant_id":"t1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
