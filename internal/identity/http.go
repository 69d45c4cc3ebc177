// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

/*
HTTP delivery layer for account management.

It exposes enrollment, listing, profile updates, administrative controls, and
the unauthenticated verification probe used by the login screen.

# Security

Route guards are injected by the server during wiring rather than imported
here, which keeps this package free of a dependency on the middleware package
(the middleware itself loads [User] values into request contexts).
*/
package identity

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ethio-transit/bsms-api/internal/platform/apperr"
	requestutil "github.com/ethio-transit/bsms-api/internal/platform/request"
	"github.com/ethio-transit/bsms-api/internal/platform/respond"
	"github.com/ethio-transit/bsms-api/internal/platform/validate"
	"github.com/ethio-transit/bsms-api/pkg/pagination"
)

// Guard is a route-level middleware injected by the server.
type Guard func(http.Handler) http.Handler

// Handler implements the HTTP layer for account management.
type Handler struct {
	identityService *Service
}

// NewHandler constructs a new account [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{identityService: service}
}

/*
Routes returns a [chi.Router] configured with the account domain's endpoints.

Parameters:
  - requireAuth: Guard enforcing an authenticated session
  - requirePermission: Guard factory enforcing a named permission
  - loginQuota: Guard applying the per-IP daily quota to unauthenticated probes
*/
func (handler *Handler) Routes(requireAuth Guard, requirePermission func(permission string) Guard, loginQuota Guard) chi.Router {
	router := chi.NewRouter()

	// Unauthenticated probe, shares the login abuse quota.
	router.With(loginQuota).Post("/check", handler.checkUser)

	// Self-service
	router.With(requireAuth).Patch("/update-profile", handler.updateProfile)

	// Administration
	router.With(requireAuth, requirePermission(PermCreateUser)).Post("/create", handler.createUser)
	router.With(requireAuth, requirePermission(PermGetUsers)).Get("/all-users", handler.getUsers)
	router.With(requireAuth, requirePermission(PermUpdateUser)).Patch("/update-user/{userId}", handler.updateAnyUser)
	router.With(requireAuth, requirePermission(PermUpdateUser)).Patch("/change-status", handler.toggleAccountStatus)
	router.With(requireAuth, requirePermission(PermDeleteUser)).Patch("/soft-delete", handler.softDelete)

	return router
}

// # Enrollment Endpoints

// createUserRequest defines the expected JSON payload for operator enrollment.
type createUserRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

/*
POST /api/v1/users/create.

Description: Enrolls a new operator account bound to the permission group
matching the requested role.

Response:
  - 201: User: The created account
  - 400: Validation failures or unknown role
  - 409: Phone number already registered
*/
func (handler *Handler) createUser(writer http.ResponseWriter, request *http.Request) {
	var input createUserRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.identityService.CreateUser(request.Context(), CreateUserInput{
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		PhoneNumber: input.PhoneNumber,
		Password:    input.Password,
		Role:        input.Role,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.CreatedMessage(writer, "User created successfully", user)
}

// # Listing Endpoints

/*
GET /api/v1/users/all-users.

Description: Lists accounts with pagination. Free-text search covers names
(accent-folded) and phone numbers; role and status narrow the result set.

Query:
  - page, limit: Pagination controls
  - search: Free-text over names and phone numbers
  - role, status: Exact-match filters

Response:
  - 200: []User with pagination metadata
*/
func (handler *Handler) getUsers(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()

	filter := ListFilter{
		Search: strings.TrimSpace(query.Get("search")),
		Role:   strings.TrimSpace(query.Get("role")),
		Status: strings.TrimSpace(query.Get("status")),
		Page:   pagination.FromRequest(request),
	}

	users, meta, err := handler.identityService.GetUsers(request.Context(), filter)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, users, meta)
}

// # Profile Endpoints

// profileImmutableFields are rejected on the self-service path; they change
// only through the password lifecycle, OTP verification, or an administrator.
var profileImmutableFields = []string{FieldPhoneNumber, FieldPassword, FieldRole, FieldIsVerified}

/*
PATCH /api/v1/users/update-profile.

Description: Applies partial updates to the authenticated operator's own
profile. The payload is inspected field-by-field so privileged attributes
cannot ride along in an otherwise valid request.

Response:
  - 200: User: The updated profile
  - 400: Empty payload or privileged fields present
  - 401: Authentication required
*/
func (handler *Handler) updateProfile(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	fields, err := decodeFieldMap(request, profileImmutableFields)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	input := UpdateProfileInput{
		FirstName: stringField(fields, FieldFirstName),
		LastName:  stringField(fields, FieldLastName),
	}

	user, err := handler.identityService.UpdateProfile(request.Context(), userID, input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OKMessage(writer, "Profile updated successfully", user)
}

// # Administration Endpoints

// adminImmutableFields are rejected on the administrative update path.
var adminImmutableFields = []string{"id", "_id", FieldPhoneNumber, FieldPassword, FieldIsVerified}

/*
PATCH /api/v1/users/update-user/{userId}.

Description: Applies administrative changes to any account. Role changes
re-bind the target to the permission group named after the new role.

Response:
  - 200: User: The updated account
  - 400: Empty payload, privileged fields present, or unknown role
  - 403: Super admin role cannot be changed
  - 404: Target account not found
*/
func (handler *Handler) updateAnyUser(writer http.ResponseWriter, request *http.Request) {
	targetID := chi.URLParam(request, "userId")
	if targetID == "" {
		respond.Error(writer, request, apperr.BadRequest("User id is required"))
		return
	}

	fields, err := decodeFieldMap(request, adminImmutableFields)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	input := UpdateUserInput{
		FirstName: stringField(fields, FieldFirstName),
		LastName:  stringField(fields, FieldLastName),
		Role:      stringField(fields, FieldRole),
	}

	user, err := handler.identityService.UpdateAnyUser(request.Context(), targetID, input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OKMessage(writer, "User updated successfully", user)
}

// toggleStatusRequest carries the audit note accompanying a status flip.
type toggleStatusRequest struct {
	Reason string `json:"reason"`
}

/*
PATCH /api/v1/users/change-status?id={userId}.

Description: Flips the target account between ACTIVE and INACTIVE and records
the supplied reason. Re-activation clears the failed-attempt counter.

Response:
  - 200: User with a message naming the new status
  - 400: Missing id
  - 404: Target account not found
*/
func (handler *Handler) toggleAccountStatus(writer http.ResponseWriter, request *http.Request) {
	targetID := request.URL.Query().Get("id")
	if targetID == "" {
		respond.Error(writer, request, apperr.BadRequest("User id is required"))
		return
	}

	var input toggleStatusRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.identityService.ToggleAccountStatus(request.Context(), targetID, input.Reason)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OKMessage(writer, "Account status changed to "+strings.ToLower(string(user.Status)), user)
}

/*
PATCH /api/v1/users/soft-delete?id={userId}.

Description: Marks the target account as deleted. The row survives for audit
purposes; all read paths exclude it afterwards.

Response:
  - 200: Deletion confirmation
  - 400: Missing id
  - 403: Super admin accounts cannot be deleted
  - 404: Target account not found
*/
func (handler *Handler) softDelete(writer http.ResponseWriter, request *http.Request) {
	targetID := request.URL.Query().Get("id")
	if targetID == "" {
		respond.Error(writer, request, apperr.BadRequest("User id is required"))
		return
	}

	if err := handler.identityService.SoftDelete(request.Context(), targetID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OKMessage(writer, "User deleted successfully", nil)
}

// # Verification Probe

// checkUserRequest identifies the account to probe.
type checkUserRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

/*
POST /api/v1/users/check.

Description: Reports whether the account behind a phone number has completed
OTP verification. Unauthenticated; shares the per-IP login quota and collapses
all failure modes into a single response to prevent account enumeration.

Response:
  - 200: CheckResult: Verification flag
  - 401: Anything but an active account
  - 429: Daily probe quota exhausted
*/
func (handler *Handler) checkUser(writer http.ResponseWriter, request *http.Request) {
	var input checkUserRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	if err := v.Required(FieldPhoneNumber, input.PhoneNumber).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.identityService.CheckUser(request.Context(), input.PhoneNumber)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

// # Payload Inspection

/*
decodeFieldMap decodes a JSON object while rejecting privileged fields.

Description: Partial-update endpoints accept free-form objects, so a typed
request struct would silently drop privileged attributes instead of rejecting
them. Decoding into a map lets the handler fail loudly when a client tries to
smuggle a protected field through.

Parameters:
  - request: *http.Request
  - forbidden: Field names that must not appear

Returns:
  - map[string]json.RawMessage: The decoded payload
  - error: Invalid JSON, empty payload, or privileged fields present
*/
func decodeFieldMap(request *http.Request, forbidden []string) (map[string]json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if err := json.NewDecoder(request.Body).Decode(&fields); err != nil {
		return nil, validate.ErrInvalidJSON
	}
	if len(fields) == 0 {
		return nil, apperr.BadRequest("Update data is required")
	}

	for _, name := range forbidden {
		if _, present := fields[name]; present {
			return nil, apperr.BadRequest("Unauthorized fields")
		}
	}

	return fields, nil
}

// stringField extracts an optional string field from a decoded payload.
func stringField(fields map[string]json.RawMessage, name string) *string {
	raw, present := fields[name]
	if !present {
		return nil
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	return &value
}
