package testutil

import (
	"net/http"
	"time"

	id "hemogrid/pkg/domain"
	"hemogrid/pkg/requestcontext"
)

// AsActor sets the caller identity the way RequireAuth would.
func AsActor(req *http.Request, userID id.UserID, role requestcontext.Role) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), userID, role))
}

// AsUser sets a regular, non-admin caller.
func AsUser(req *http.Request, userID id.UserID) *http.Request {
	return AsActor(req, userID, requestcontext.RoleUser)
}

// AtTime pins the request-scoped clock, as the requesttime middleware does.
func AtTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
