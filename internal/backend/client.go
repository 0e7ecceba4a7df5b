// Package backend is the client of the remote inventory REST API. It authenticates users and serves as record and
// account store when MedStock runs in front of an existing API instead of its local database
package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/derWhity/medstock/internal/ctxhelper"
	"github.com/derWhity/medstock/internal/log"
	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/repos"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const (
	// Bytes of an error body read for the message
	maxErrorBody = 64 * 1024
	// Largest export file accepted from the API
	defaultMaxExportSize = 32 * 1024 * 1024
)

// Error is an error response of the remote API
type Error struct {
	// HTTP status of the response. Zero if there was no usable response
	Status int
	// The message the API sent along or a generic one
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// IsStatus checks if the error is an API error response with one of the given HTTP status codes
func IsStatus(err error, status ...int) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, s := range status {
		if apiErr.Status == s {
			return true
		}
	}
	return false
}

// Client talks to the remote REST API
type Client struct {
	base          *url.URL
	timeout       time.Duration
	exportTimeout time.Duration
	maxExportSize int64
	http          *http.Client
	logger        *logrus.Entry
}

// New creates a new API client for the given base URL
func New(conf models.BackendConfig, logger *logrus.Entry) (*Client, error) {
	base, err := url.Parse(conf.URL)
	if err != nil {
		return nil, errors.Wrap(err, "New: Illegal API URL")
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("New: API URL '%s' needs to use http or https", conf.URL)
	}
	return &Client{
		base:          base,
		timeout:       conf.RequestTimeout(),
		exportTimeout: conf.DownloadTimeout(),
		maxExportSize: defaultMaxExportSize,
		http:          &http.Client{},
		logger:        logger.WithField(log.FldTransport, "API"),
	}, nil
}

// -- Transport helpers ------------------------------------------------------------------------------------------------

// target builds the URL of an API path
func (c *Client) target(p string, query url.Values) *url.URL {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(p, "/")
	u.RawQuery = query.Encode()
	return &u
}

// setBearerToken adds the API token of the current session to outgoing requests
func setBearerToken(ctx context.Context, r *http.Request) context.Context {
	if sess := ctxhelper.Session(ctx); sess != nil && sess.BackendToken != "" {
		r.Header.Set("Authorization", "Bearer "+sess.BackendToken)
	}
	r.Header.Set("Accept", "application/json")
	return ctx
}

// encodeRequest sends the request as JSON body. Nil requests are sent without body
func encodeRequest(ctx context.Context, r *http.Request, request interface{}) error {
	if request == nil {
		return nil
	}
	return httptransport.EncodeJSONRequest(ctx, r, request)
}

// decodeError creates an error from a failed response, using the message the API sends along
func decodeError(resp *http.Response) error {
	var body struct {
		Mensaje string `json:"mensaje"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	json.Unmarshal(data, &body)
	msg := body.Mensaje
	if msg == "" {
		msg = body.Message
	}
	if msg == "" {
		msg = body.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("The inventory API answered with status %d", resp.StatusCode)
	}
	return &Error{Status: resp.StatusCode, Message: msg}
}

// makeJSONDecoder creates a response decoder that decodes successful responses into the given target
func makeJSONDecoder(target interface{}) httptransport.DecodeResponseFunc {
	return func(ctx context.Context, resp *http.Response) (interface{}, error) {
		if resp.StatusCode >= 400 {
			return nil, decodeError(resp)
		}
		if target == nil {
			return nil, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil && err != io.EOF {
			return nil, errors.Wrap(err, "Illegal response from inventory API")
		}
		return target, nil
	}
}

// call executes a single API request, decoding the answer into out (if not nil)
func (c *Client) call(
	ctx context.Context,
	method string,
	p string,
	query url.Values,
	body interface{},
	dec httptransport.DecodeResponseFunc,
	timeout time.Duration,
) (interface{}, error) {
	tgt := c.target(p, query)
	logger := c.logger.WithField(log.FldURL, tgt.String())
	if id := ctxhelper.RequestID(ctx); id != "" {
		logger = logger.WithField(log.FldRequest, id)
	}
	logger.Debugf("%s request", method)
	ep := httptransport.NewClient(
		method,
		tgt,
		encodeRequest,
		dec,
		httptransport.ClientBefore(setBearerToken),
		httptransport.SetClient(c.http),
	).Endpoint()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := ep(ctx, body)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) {
			logger.WithField(log.FldStatus, apiErr.Status).WithError(err).Info("Request failed")
			return nil, err
		}
		// No usable answer at all - the cause only goes to the log
		logger.WithError(err).Error("Request failed")
		return nil, &Error{Message: "The inventory API could not be reached or sent an illegal response"}
	}
	return resp, nil
}

func (c *Client) callJSON(ctx context.Context, method, p string, query url.Values, body, out interface{}) error {
	_, err := c.call(ctx, method, p, query, body, makeJSONDecoder(out), c.timeout)
	return err
}

// notFound turns 404 responses into the repository error for missing entities
func notFound(err error) error {
	if IsStatus(err, http.StatusNotFound) {
		return repos.ErrEntityNotExisting
	}
	return err
}

// -- Authentication ---------------------------------------------------------------------------------------------------

type loginRequest struct {
	User     string `json:"usuario"`
	Password string `json:"contrasena"`
}

type remoteUser struct {
	ID          uint     `json:"id"`
	Name        string   `json:"usuario"`
	FullName    string   `json:"nombre_completo"`
	Email       string   `json:"email"`
	Phone       string   `json:"telefono"`
	Role        string   `json:"rol"`
	Permissions []string `json:"permisos"`
}

type loginResponse struct {
	Token string     `json:"token"`
	User  remoteUser `json:"usuario"`
}

// tokenExpiry reads the expiry from the API token. The token is not verified - this is the job of the API
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// Authenticate checks the credentials against the API. A nil authentication without error is returned when the API
// rejects the credentials
func (c *Client) Authenticate(ctx context.Context, user, password string) (*models.Authentication, error) {
	var resp loginResponse
	err := c.callJSON(ctx, http.MethodPost, "auth/login", nil, loginRequest{user, password}, &resp)
	if err != nil {
		if IsStatus(err, http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("Authenticate: The inventory API did not issue a token")
	}
	name := resp.User.Name
	if name == "" {
		name = user
	}
	return &models.Authentication{
		Identity: models.Identity{
			UserID:      resp.User.ID,
			Name:        name,
			DisplayName: resp.User.FullName,
			Role:        resp.User.Role,
			Permissions: models.NewPermissionSet(resp.User.Permissions...),
		},
		Token:     resp.Token,
		ExpiresAt: tokenExpiry(resp.Token),
	}, nil
}

// -- Records ----------------------------------------------------------------------------------------------------------

func recordPath(kind string, id uint) string {
	return kind + "/" + strconv.FormatUint(uint64(id), 10)
}

// Create creates a new record
func (c *Client) Create(ctx context.Context, rec *models.Record) error {
	var created models.Record
	if err := c.callJSON(ctx, http.MethodPost, rec.Kind, nil, rec.Fields, &created); err != nil {
		return err
	}
	rec.ID = created.ID
	if !created.CreatedAt.IsZero() {
		rec.CreatedAt = created.CreatedAt
		rec.UpdatedAt = created.UpdatedAt
	}
	return nil
}

// Update updates the fields of an existing record
func (c *Client) Update(ctx context.Context, rec *models.Record) error {
	return notFound(c.callJSON(ctx, http.MethodPut, recordPath(rec.Kind, rec.ID), nil, rec.Fields, nil))
}

// Delete removes an existing record
func (c *Client) Delete(ctx context.Context, kind string, id uint) error {
	return notFound(c.callJSON(ctx, http.MethodDelete, recordPath(kind, id), nil, nil, nil))
}

// GetByID returns the record of the given kind with the given ID
func (c *Client) GetByID(ctx context.Context, kind string, id uint) (*models.Record, error) {
	var rec models.Record
	if err := c.callJSON(ctx, http.MethodGet, recordPath(kind, id), nil, nil, &rec); err != nil {
		return nil, notFound(err)
	}
	rec.Kind = kind
	return &rec, nil
}

// Find searches for records of a kind. The API returns the full list, so paging happens here
func (c *Client) Find(
	ctx context.Context,
	kind string,
	search string,
	offset uint,
	limit uint,
) ([]models.Record, uint, error) {
	query := url.Values{}
	if search != "" {
		query.Set("buscar", search)
	}
	var list []models.Record
	if err := c.callJSON(ctx, http.MethodGet, kind, query, nil, &list); err != nil {
		return nil, 0, err
	}
	total := uint(len(list))
	if offset >= total {
		return []models.Record{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	ret := list[offset:end]
	for i := range ret {
		ret[i].Kind = kind
	}
	return ret, total, nil
}

type totalResponse struct {
	Total uint `json:"total"`
}

// Count returns the number of records of a kind
func (c *Client) Count(ctx context.Context, kind string) (uint, error) {
	var resp totalResponse
	if err := c.callJSON(ctx, http.MethodGet, kind+"/total", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Total, nil
}

// CountByDay returns the number of records of a kind created per day since the given time
func (c *Client) CountByDay(ctx context.Context, kind string, since time.Time) ([]models.DayCount, error) {
	query := url.Values{}
	query.Set("desde", since.Format(models.DateLayout))
	ret := []models.DayCount{}
	if err := c.callJSON(ctx, http.MethodGet, kind+"/grafica", query, nil, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// Export downloads the export file the API generates for a kind
func (c *Client) Export(ctx context.Context, kind string) (*models.Export, error) {
	dec := func(ctx context.Context, resp *http.Response) (interface{}, error) {
		if resp.StatusCode >= 400 {
			return nil, decodeError(resp)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxExportSize+1))
		if err != nil {
			return nil, errors.Wrap(err, "Export: Failed to download file")
		}
		if int64(len(data)) > c.maxExportSize {
			return nil, &Error{
				Status:  http.StatusBadGateway,
				Message: fmt.Sprintf("The export file is larger than %d bytes", c.maxExportSize),
			}
		}
		export := &models.Export{
			Filename:    kind + ".xlsx",
			ContentType: resp.Header.Get("Content-Type"),
			Data:        data,
		}
		if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
			if name := params["filename"]; name != "" {
				export.Filename = name
			}
		}
		if export.ContentType == "" {
			export.ContentType = http.DetectContentType(data)
		}
		return export, nil
	}
	resp, err := c.call(ctx, http.MethodGet, kind+"/exportar", nil, nil, dec, c.exportTimeout)
	if err != nil {
		return nil, err
	}
	return resp.(*models.Export), nil
}

// -- Account ----------------------------------------------------------------------------------------------------------

// GetProfile returns the profile of the session's user. The user ID is implied by the API token
func (c *Client) GetProfile(ctx context.Context, userID uint) (*models.Profile, error) {
	var u remoteUser
	if err := c.callJSON(ctx, http.MethodGet, "perfil", nil, nil, &u); err != nil {
		return nil, notFound(err)
	}
	if u.ID == 0 {
		u.ID = userID
	}
	return &models.Profile{
		ID:       u.ID,
		Name:     u.Name,
		FullName: u.FullName,
		Email:    u.Email,
		Phone:    u.Phone,
		Role:     u.Role,
	}, nil
}

type profileUpdate struct {
	FullName string `json:"nombre_completo"`
	Email    string `json:"email"`
	Phone    string `json:"telefono"`
}

// UpdateProfile stores the changeable parts of the session user's profile
func (c *Client) UpdateProfile(ctx context.Context, p *models.Profile) error {
	return c.callJSON(ctx, http.MethodPut, "perfil", nil, profileUpdate{p.FullName, p.Email, p.Phone}, nil)
}

type passwordChange struct {
	Current string `json:"contrasena_actual"`
	Next    string `json:"contrasena_nueva"`
}

// ChangePassword sets a new password for the session's user
func (c *Client) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	err := c.callJSON(ctx, http.MethodPut, "perfil/contrasena", nil, passwordChange{current, next}, nil)
	if IsStatus(err, http.StatusUnauthorized, http.StatusForbidden) {
		return repos.ErrWrongPassword
	}
	return err
}

// Ping checks if the API is reachable. Any HTTP answer counts
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, http.MethodGet, "", nil, nil, func(context.Context, *http.Response) (interface{}, error) {
		return nil, nil
	}, c.timeout)
	return err
}
