package internal

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/derWhity/medstock/internal/access"
	"github.com/derWhity/medstock/internal/ctxhelper"
	"github.com/derWhity/medstock/internal/log"
	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/routing"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const (
	apiBasePath = "/api"
	// SessionCookie is the name of the cookie carrying the session token for page requests
	SessionCookie = "session"
	// SessionHeader is the name of the header carrying the session token for API calls
	SessionHeader = "token"
	// Page shell of the browser UI
	uiIndexFile = "index.html"
)

// Defines an error that defines the HTTP status that should be returned
type httpStatuser interface {
	Status() int
}

// Defines an error that returns a machine-readable error code
type errorCoder interface {
	ErrorCode() string
}

// Defines an error that contains a data field with additional information
type dataBearer interface {
	Data() interface{}
}

type errorResponse struct {
	basicResponse
	// The error code
	Error   string      `json:"error"`
	Message string      `json:"errorMessage"`
	Details interface{} `json:"errorDetails,omitempty"`
}

// Services bundles the services the HTTP handler exposes
type Services struct {
	Session    SessionService
	Navigation NavigationService
	Record     RecordService
	Dashboard  DashboardService
	Profile    ProfileService
	Directory  DirectoryService
}

// MakeHTTPHandler creates the main HTTP handler for the MedStock service. Everything that is neither an API call nor
// a file of the UI directory is a page navigation resolved through the route table
func MakeHTTPHandler(
	svc Services,
	policy access.Policy,
	uiDir string,
	logger *logrus.Entry,
) http.Handler {
	r := mux.NewRouter()

	options := []httptransport.ServerOption{
		httptransport.ServerErrorEncoder(encodeError),
		httptransport.ServerBefore(makeContextInjector(logger)),
		httptransport.ServerBefore(makeSessionDecoder(svc.Session)),
	}
	api := r.PathPrefix(apiBasePath).Subrouter()

	// -- Session Service ------------------------------
	{
		sEp := MakeSessionEndpoints(svc.Session)

		// Login
		api.Methods(http.MethodPost).Path("/login").Handler(httptransport.NewServer(
			sEp.Login,
			decodeLoginRequest,
			encodeLoginResponse,
			options...,
		))

		// Logout
		api.Methods(http.MethodPost).Path("/logout").Handler(httptransport.NewServer(
			sEp.Logout,
			decodeToken,
			encodeLogoutResponse,
			options...,
		))

		// WhoAmI
		api.Methods(http.MethodGet).Path("/whoami").Handler(httptransport.NewServer(
			sEp.WhoAmI,
			decodeToken,
			encodeJSONResponse,
			options...,
		))
	}

	// -- Navigation Service ---------------------------
	nEp := MakeNavigationEndpoints(svc.Navigation, policy)
	{
		// Resolve
		api.Methods(http.MethodGet).Path("/navigation").Handler(httptransport.NewServer(
			nEp.Resolve,
			decodeNavigationRequest,
			encodeJSONResponse,
			options...,
		))

		// Menu
		api.Methods(http.MethodGet).Path("/menu").Handler(httptransport.NewServer(
			nEp.Menu,
			decodeNilRequest,
			encodeJSONResponse,
			options...,
		))

		// Routes
		api.Methods(http.MethodGet).Path("/routes").Handler(httptransport.NewServer(
			nEp.Routes,
			decodeNilRequest,
			encodeJSONResponse,
			options...,
		))
	}

	// -- Record Service -------------------------------
	{
		rEp := MakeRecordEndpoints(svc.Record)

		// Kinds
		api.Methods(http.MethodGet).Path("/records").Handler(httptransport.NewServer(
			rEp.Kinds,
			decodeNilRequest,
			encodeJSONResponse,
			options...,
		))

		// Schema
		api.Methods(http.MethodGet).Path("/records/{kind}/schema").Handler(httptransport.NewServer(
			rEp.Schema,
			decodeRecordKind,
			encodeJSONResponse,
			options...,
		))

		// Export
		api.Methods(http.MethodGet).Path("/records/{kind}/export").Handler(httptransport.NewServer(
			rEp.Export,
			decodeRecordKind,
			encodeFileResponse,
			options...,
		))

		// List
		api.Methods(http.MethodGet).Path("/records/{kind}").Handler(httptransport.NewServer(
			rEp.List,
			decodeRecordSearchRequest,
			encodeJSONResponse,
			options...,
		))

		// Create
		api.Methods(http.MethodPost).Path("/records/{kind}").Handler(httptransport.NewServer(
			rEp.Create,
			decodeRecordCreate,
			encodeJSONResponse,
			options...,
		))

		// Get
		api.Methods(http.MethodGet).Path("/records/{kind}/{id:[0-9]+}").Handler(httptransport.NewServer(
			rEp.Get,
			decodeRecordID,
			encodeJSONResponse,
			options...,
		))

		// Update
		api.Methods(http.MethodPut).Path("/records/{kind}/{id:[0-9]+}").Handler(httptransport.NewServer(
			rEp.Update,
			decodeRecordUpdate,
			encodeJSONResponse,
			options...,
		))

		// Delete
		api.Methods(http.MethodDelete).Path("/records/{kind}/{id:[0-9]+}").Handler(httptransport.NewServer(
			rEp.Delete,
			decodeRecordID,
			encodeJSONResponse,
			options...,
		))
	}

	// -- Dashboard Service ----------------------------
	{
		dEp := MakeDashboardEndpoints(svc.Dashboard, policy)

		api.Methods(http.MethodGet).Path("/dashboard").Handler(httptransport.NewServer(
			dEp.User,
			decodeNilRequest,
			encodeJSONResponse,
			options...,
		))

		api.Methods(http.MethodGet).Path("/dashboard/admin").Handler(httptransport.NewServer(
			dEp.Admin,
			decodeNilRequest,
			encodeJSONResponse,
			options...,
		))
	}

	// -- Profile Service ------------------------------
	{
		pEp := MakeProfileEndpoints(svc.Profile)

		api.Methods(http.MethodGet).Path("/profile").Handler(httptransport.NewServer(
			pEp.Get,
			decodeNilRequest,
			encodeJSONResponse,
			options...,
		))

		api.Methods(http.MethodPut).Path("/profile").Handler(httptransport.NewServer(
			pEp.Update,
			decodeProfileUpdate,
			encodeJSONResponse,
			options...,
		))

		api.Methods(http.MethodPut).Path("/profile/password").Handler(httptransport.NewServer(
			pEp.ChangePassword,
			decodePasswordChange,
			encodeJSONResponse,
			options...,
		))
	}

	// -- Directory Service ----------------------------
	{
		dirEp := MakeDirectoryEndpoints(svc.Directory, policy)

		// ListUsers
		api.Methods(http.MethodGet).Path("/users").Handler(httptransport.NewServer(
			dirEp.ListUsers,
			decodeSearchRequest,
			encodeJSONResponse,
			options...,
		))

		// CreateUser
		api.Methods(http.MethodPost).Path("/users").Handler(httptransport.NewServer(
			dirEp.CreateUser,
			decodeNewUser,
			encodeJSONResponse,
			options...,
		))

		// DeleteUser
		api.Methods(http.MethodDelete).Path("/users/{id:[0-9]+}").Handler(httptransport.NewServer(
			dirEp.DeleteUser,
			decodeIDFromPath,
			encodeJSONResponse,
			options...,
		))

		// ListRoles
		api.Methods(http.MethodGet).Path("/roles").Handler(httptransport.NewServer(
			dirEp.ListRoles,
			decodeNilRequest,
			encodeJSONResponse,
			options...,
		))

		// RolePermissions
		api.Methods(http.MethodGet).Path("/roles/{id:[0-9]+}/permissions").Handler(httptransport.NewServer(
			dirEp.RolePermissions,
			decodeIDFromPath,
			encodeJSONResponse,
			options...,
		))

		// AssignPermissions
		api.Methods(http.MethodPut).Path("/roles/{id:[0-9]+}/permissions").Handler(httptransport.NewServer(
			dirEp.AssignPermissions,
			decodeAssignPermissions,
			encodeJSONResponse,
			options...,
		))

		// ListPermissions
		api.Methods(http.MethodGet).Path("/permissions").Handler(httptransport.NewServer(
			dirEp.ListPermissions,
			decodeNilRequest,
			encodeJSONResponse,
			options...,
		))

		// CreatePermission
		api.Methods(http.MethodPost).Path("/permissions").Handler(httptransport.NewServer(
			dirEp.CreatePermission,
			decodeNewPermission,
			encodeJSONResponse,
			options...,
		))
	}

	// Unknown API calls never end up in the page navigation
	api.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encodeError(r.Context(), MakeError(http.StatusNotFound, ErrCodeUnknownFunction, "Unknown API function"), w)
	})

	// Simple alive answer for checking if HTTP can be reached
	r.Methods(http.MethodGet).Path("/alive").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		data := map[string]bool{"ok": true}
		json.NewEncoder(w).Encode(data)
	})

	// Pages and the files of the UI
	pages := httptransport.NewServer(
		nEp.Page,
		decodePagePath,
		makePageEncoder(uiDir),
		options...,
	)
	r.Methods(http.MethodGet, http.MethodHead).PathPrefix("/").Handler(makeUIHandler(uiDir, pages))

	return r
}

// makeUIHandler serves existing files of the UI directory as they are and hands everything else to the page handler
func makeUIHandler(uiDir string, pages http.Handler) http.Handler {
	files := http.FileServer(http.Dir(uiDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean("/" + r.URL.Path)
		if path.Ext(p) != "" {
			fi, err := os.Stat(filepath.Join(uiDir, filepath.FromSlash(p)))
			if err == nil && !fi.IsDir() {
				files.ServeHTTP(w, r)
				return
			}
		}
		pages.ServeHTTP(w, r)
	})
}

// decodeNilRequest just does nothing with the request. It is used for endpoints that don't need anything to be passed
func decodeNilRequest(_ context.Context, r *http.Request) (request interface{}, err error) {
	return nil, nil
}

// decodeJSONBody decodes the JSON body of the request into the target
func decodeJSONBody(r *http.Request, target interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return MakeError(
			http.StatusBadRequest,
			ErrCodeIllegalJSON,
			fmt.Sprintf("Failed to decode JSON body: %v", err),
		)
	}
	return nil
}

// decodeLoginRequest decodes a login request from the JSON body
func decodeLoginRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req loginRequest
	if err := decodeJSONBody(r, &req); err != nil {
		return nil, err
	}
	return req, nil
}

// decodeToken gets the session token from the call's context. Calls without a valid session get an empty token
func decodeToken(ctx context.Context, r *http.Request) (request interface{}, err error) {
	if session := ctxhelper.Session(ctx); session != nil {
		return session.ID, nil
	}
	return "", nil
}

// decodeNavigationRequest reads the path to resolve from the query variable "path"
func decodeNavigationRequest(_ context.Context, r *http.Request) (interface{}, error) {
	p := r.URL.Query().Get("path")
	if p == "" {
		p = "/"
	}
	return p, nil
}

// decodePagePath uses the requested path itself
func decodePagePath(_ context.Context, r *http.Request) (interface{}, error) {
	return r.URL.Path, nil
}

// decodePaginationRequest reads the pagination information from the request's query variables
func decodePaginationRequest(_ context.Context, r *http.Request) (request interface{}, err error) {
	val := r.URL.Query()
	pag := Pagination{
		Limit: 50,
	}
	if i, err := strconv.ParseUint(val.Get("offset"), 10, 64); err == nil {
		pag.Offset = uint(i)
	}
	if i, err := strconv.ParseUint(val.Get("limit"), 10, 64); err == nil {
		pag.Limit = uint(i)
	}
	return pag, nil
}

// decodeSearchRequest decodes the parameters of a search by checking the GET variables "search", "limit" and "offset"
func decodeSearchRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	val := r.URL.Query()
	pag, _ := decodePaginationRequest(ctx, r)
	search := Search{
		Search:     val.Get("search"),
		Pagination: pag.(Pagination),
	}
	return search, nil
}

// getUintFromPath is a helper function that gets a uint from the given path variable
func getUintFromPath(varname string, r *http.Request) (uint, error) {
	errmsg := fmt.Sprintf("Value for '%s' is no valid unsigned integer", varname)
	vars := mux.Vars(r)
	str, ok := vars[varname]
	if !ok {
		return 0, MakeError(http.StatusBadRequest, ErrCodeInvalidUint, errmsg)
	}
	id, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, MakeError(http.StatusBadRequest, ErrCodeInvalidUint, errmsg)
	}
	return uint(id), nil
}

// Decodes an ID from the "id" path variable provided by GoRilla
func decodeIDFromPath(ctx context.Context, r *http.Request) (interface{}, error) {
	return getUintFromPath("id", r)
}

// decodeRecordKind reads the record kind from the path
func decodeRecordKind(_ context.Context, r *http.Request) (interface{}, error) {
	return recordRequest{Kind: mux.Vars(r)["kind"]}, nil
}

// decodeRecordID reads the record kind and ID from the path
func decodeRecordID(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := getUintFromPath("id", r)
	if err != nil {
		return nil, err
	}
	return recordRequest{Kind: mux.Vars(r)["kind"], ID: id}, nil
}

// decodeRecordSearchRequest reads the record kind from the path and the search from the query
func decodeRecordSearchRequest(ctx context.Context, r *http.Request) (interface{}, error) {
	se, _ := decodeSearchRequest(ctx, r)
	return recordSearchRequest{Search: se.(Search), Kind: mux.Vars(r)["kind"]}, nil
}

// decodeRecordFields reads the flat JSON object of a record form. Numbers and booleans are accepted for convenience
func decodeRecordFields(r *http.Request) (map[string]string, error) {
	var rec models.Record
	if err := decodeJSONBody(r, &rec); err != nil {
		return nil, err
	}
	return rec.Fields, nil
}

// decodeRecordCreate reads the kind from the path and the fields from the body
func decodeRecordCreate(ctx context.Context, r *http.Request) (interface{}, error) {
	fields, err := decodeRecordFields(r)
	if err != nil {
		return nil, err
	}
	return recordRequest{Kind: mux.Vars(r)["kind"], Fields: fields}, nil
}

// decodeRecordUpdate reads kind and ID from the path and the fields from the body
func decodeRecordUpdate(ctx context.Context, r *http.Request) (interface{}, error) {
	req, err := decodeRecordID(ctx, r)
	if err != nil {
		return nil, err
	}
	fields, err := decodeRecordFields(r)
	if err != nil {
		return nil, err
	}
	ret := req.(recordRequest)
	ret.Fields = fields
	return ret, nil
}

func decodeProfileUpdate(_ context.Context, r *http.Request) (interface{}, error) {
	var upd ProfileUpdate
	if err := decodeJSONBody(r, &upd); err != nil {
		return nil, err
	}
	return upd, nil
}

func decodePasswordChange(_ context.Context, r *http.Request) (interface{}, error) {
	var change PasswordChange
	if err := decodeJSONBody(r, &change); err != nil {
		return nil, err
	}
	return change, nil
}

func decodeNewUser(_ context.Context, r *http.Request) (interface{}, error) {
	var nu NewUser
	if err := decodeJSONBody(r, &nu); err != nil {
		return nil, err
	}
	return nu, nil
}

func decodeNewPermission(_ context.Context, r *http.Request) (interface{}, error) {
	var np NewPermission
	if err := decodeJSONBody(r, &np); err != nil {
		return nil, err
	}
	return np, nil
}

// decodeAssignPermissions reads the role ID from the path and the permission IDs from the body
func decodeAssignPermissions(ctx context.Context, r *http.Request) (interface{}, error) {
	id, err := getUintFromPath("id", r)
	if err != nil {
		return nil, err
	}
	var req assignPermissionsRequest
	if err := decodeJSONBody(r, &req); err != nil {
		return nil, err
	}
	req.RoleID = id
	return req, nil
}

// Encodes a typical JSON response
func encodeJSONResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(response)
}

// encodeLoginResponse hands the session token to the browser as cookie, too
func encodeLoginResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if res, ok := response.(basicResponse); ok {
		if si, ok := res.Data.(*SessionInfo); ok && si != nil {
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    si.SessionID,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
	}
	return encodeJSONResponse(ctx, w, response)
}

// encodeLogoutResponse removes the session cookie
func encodeLogoutResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	if res, ok := response.(logoutResponse); ok {
		return encodeJSONResponse(ctx, w, res.basicResponse)
	}
	return encodeJSONResponse(ctx, w, response)
}

// encodeFileResponse sends an export file as download
func encodeFileResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	exp, ok := response.(*models.Export)
	if !ok || exp == nil {
		return fmt.Errorf("illegal export response")
	}
	contentType := exp.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": exp.Filename,
	}))
	w.Header().Set("Content-Length", strconv.Itoa(len(exp.Data)))
	_, err := w.Write(exp.Data)
	return err
}

// makePageEncoder creates the encoder answering page navigations with a redirect or the UI shell
func makePageEncoder(uiDir string) httptransport.EncodeResponseFunc {
	return func(ctx context.Context, w http.ResponseWriter, response interface{}) error {
		res, ok := response.(routing.Resolution)
		if !ok {
			return fmt.Errorf("illegal page resolution")
		}
		if res.IsRedirect() {
			w.Header().Set("Location", res.RedirectTo)
			w.WriteHeader(http.StatusFound)
			return nil
		}
		data, err := os.ReadFile(filepath.Join(uiDir, uiIndexFile))
		if err != nil {
			ctxhelper.Logger(ctx).WithError(err).WithField(log.FldPath, uiDir).Error("Failed to read the UI shell")
			return MakeError(http.StatusNotFound, ErrCodeNotAvailable, "The user interface is not installed")
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, err = w.Write(data)
		return err
	}
}

// Builds an error response based on the incoming error
func encodeError(_ context.Context, err error, w http.ResponseWriter) {
	if err == nil {
		panic("encodeError with nil error")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if st, ok := err.(httpStatuser); ok {
		w.WriteHeader(st.Status())
	} else {
		w.WriteHeader(http.StatusInternalServerError)
	}
	ret := errorResponse{
		basicResponse: basicResponse{false, nil},
		Message:       err.Error(),
		Error:         ErrCodeUnknown,
	}
	if cd, ok := err.(errorCoder); ok {
		ret.Error = cd.ErrorCode()
	}
	if db, ok := err.(dataBearer); ok {
		if data := db.Data(); data != nil {
			if err, ok := data.(error); ok {
				ret.Details = err.Error()
			} else {
				ret.Details = data
			}
		}
	}
	json.NewEncoder(w).Encode(&ret)
}

// sessionToken reads the session token from the header used by API clients or the cookie set for the browser
func sessionToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(SessionHeader)); token != "" {
		return token
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// makeSessionDecoder returns a function that is used in every HTTP call to decode the session used, if a session
// token is sent by the client. Each call extends the session's expiry
func makeSessionDecoder(s SessionService) httptransport.RequestFunc {
	return func(ctx context.Context, r *http.Request) context.Context {
		token := sessionToken(r)
		if token == "" {
			return ctx
		}
		logger := ctxhelper.Logger(ctx)
		sess, err := s.GetContents(ctx, token, true)
		if err != nil {
			logger.WithError(err).Error("Failed to retrieve session information")
			return ctx
		}
		if sess == nil {
			// Unknown or expired
			return ctx
		}
		ctx = ctxhelper.WithSession(ctx, *sess)
		return ctxhelper.WithLogger(ctx, logger.WithFields(logrus.Fields{
			log.FldSession: shortToken(sess.ID),
			log.FldUser:    sess.Identity.Name,
		}))
	}
}

// shortToken returns the beginning of a session token - enough to tell sessions apart in the logs
func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}

// makeContextInjector puts the logger into the call's context, tagged with a fresh request ID
func makeContextInjector(logger *logrus.Entry) httptransport.RequestFunc {
	return func(ctx context.Context, r *http.Request) context.Context {
		id := uuid.NewString()
		ctx = context.WithValue(ctx, ctxhelper.KeyRequestID, id)
		return ctxhelper.WithLogger(ctx, logger.WithFields(logrus.Fields{
			log.FldRequest: id,
			log.FldPath:    r.URL.Path,
		}))
	}
}
