package internal

import (
	"fmt"

	"github.com/derWhity/medstock/internal/access"
	"github.com/go-kit/kit/endpoint"
	"golang.org/x/net/context"
)

// SessionEndpoints is a collection of endpoints for working with the session service
type SessionEndpoints struct {
	Login  endpoint.Endpoint
	Logout endpoint.Endpoint
	WhoAmI endpoint.Endpoint
}

// NavigationEndpoints is a collection of endpoints for working with the navigation service
type NavigationEndpoints struct {
	// Page answers with the bare resolution - used for serving the UI
	Page    endpoint.Endpoint
	Resolve endpoint.Endpoint
	Menu    endpoint.Endpoint
	Routes  endpoint.Endpoint
}

// RecordEndpoints is a collection of endpoints for working with the record service
type RecordEndpoints struct {
	Kinds  endpoint.Endpoint
	Schema endpoint.Endpoint
	List   endpoint.Endpoint
	Get    endpoint.Endpoint
	Create endpoint.Endpoint
	Update endpoint.Endpoint
	Delete endpoint.Endpoint
	Export endpoint.Endpoint
}

// DashboardEndpoints is a collection of endpoints for the dashboard service
type DashboardEndpoints struct {
	User  endpoint.Endpoint
	Admin endpoint.Endpoint
}

// ProfileEndpoints is a collection of endpoints for the profile service
type ProfileEndpoints struct {
	Get            endpoint.Endpoint
	Update         endpoint.Endpoint
	ChangePassword endpoint.Endpoint
}

// DirectoryEndpoints is a collection of endpoints for managing users, roles and permissions
type DirectoryEndpoints struct {
	ListUsers         endpoint.Endpoint
	CreateUser        endpoint.Endpoint
	DeleteUser        endpoint.Endpoint
	ListRoles         endpoint.Endpoint
	RolePermissions   endpoint.Endpoint
	AssignPermissions endpoint.Endpoint
	ListPermissions   endpoint.Endpoint
	CreatePermission  endpoint.Endpoint
}

// The base for all responses which always contains an "ok" property to show if the call was successful and a
// data element containing the result of the request
type basicResponse struct {
	OK   bool        `json:"ok"`
	Data interface{} `json:"data,omitempty"`
}

type pagingResponse struct {
	Rows uint        `json:"rows"`
	List interface{} `json:"list"`
}

// A request made when logging in
type loginRequest struct {
	User string `json:"user"`
	Pass string `json:"password"`
}

// A request working on a record kind or a single record of it
type recordRequest struct {
	Kind   string
	ID     uint
	Fields map[string]string
}

// A search for records of a kind
type recordSearchRequest struct {
	Search
	Kind string
}

// A request replacing the permissions of a role
type assignPermissionsRequest struct {
	RoleID        uint
	PermissionIDs []uint `json:"permissions"`
}

// -- Session ----------------------------------------------------------------------------------------------------------

// MakeSessionEndpoints builds the endpoints needed to communicate with the Session Service
func MakeSessionEndpoints(s SessionService) SessionEndpoints {
	return SessionEndpoints{
		Login:  makeLoginEndpoint(s),
		Logout: makeLogoutEndpoint(s),
		WhoAmI: makeWhoAmIEndpoint(s),
	}
}

func makeLoginEndpoint(s SessionService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		se, ok := request.(loginRequest)
		if !ok {
			return nil, fmt.Errorf("illegal login request")
		}
		si, err := s.Login(ctx, se.User, se.Pass)
		if err != nil {
			return nil, err
		}
		return basicResponse{true, si}, nil
	}
}

// The logout response tells the encoder to drop the session cookie
type logoutResponse struct {
	basicResponse
}

func makeLogoutEndpoint(s SessionService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		id, ok := request.(string)
		if !ok {
			return nil, fmt.Errorf("illegal session token")
		}
		if err := s.Logout(ctx, id); err != nil {
			return nil, err
		}
		return logoutResponse{basicResponse{true, nil}}, nil
	}
}

func makeWhoAmIEndpoint(s SessionService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		id, ok := request.(string)
		if !ok {
			return nil, fmt.Errorf("illegal session token")
		}
		si, err := s.WhoAmI(ctx, id)
		if err != nil {
			return nil, err
		}
		if si == nil {
			return basicResponse{true, nil}, nil
		}
		return basicResponse{true, si}, nil
	}
}

// -- Navigation -------------------------------------------------------------------------------------------------------

// MakeNavigationEndpoints builds the endpoints of the navigation service. The full route table is only shown to
// administrators
func MakeNavigationEndpoints(s NavigationService, policy access.Policy) NavigationEndpoints {
	return NavigationEndpoints{
		Page:    makePageEndpoint(s),
		Resolve: makeResolveEndpoint(s),
		Menu:    makeMenuEndpoint(s),
		Routes:  EnsureAdmin(policy)(makeRoutesEndpoint(s)),
	}
}

func makePageEndpoint(s NavigationService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		p, ok := request.(string)
		if !ok {
			return nil, fmt.Errorf("illegal path parameter")
		}
		return s.Resolve(ctx, p), nil
	}
}

func makeResolveEndpoint(s NavigationService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		p, ok := request.(string)
		if !ok {
			return nil, fmt.Errorf("illegal path parameter")
		}
		return basicResponse{true, s.Resolve(ctx, p)}, nil
	}
}

func makeMenuEndpoint(s NavigationService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		return basicResponse{true, s.Menu(ctx)}, nil
	}
}

func makeRoutesEndpoint(s NavigationService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		return basicResponse{true, s.Routes(ctx)}, nil
	}
}

// -- Records ----------------------------------------------------------------------------------------------------------

// MakeRecordEndpoints builds the endpoints of the record service. The service checks the permissions of each kind
// itself
func MakeRecordEndpoints(s RecordService) RecordEndpoints {
	return RecordEndpoints{
		Kinds:  EnsureUserLoggedIn(makeKindsEndpoint(s)),
		Schema: EnsureUserLoggedIn(makeSchemaEndpoint(s)),
		List:   EnsureUserLoggedIn(makeListRecordsEndpoint(s)),
		Get:    EnsureUserLoggedIn(makeGetRecordEndpoint(s)),
		Create: EnsureUserLoggedIn(makeCreateRecordEndpoint(s)),
		Update: EnsureUserLoggedIn(makeUpdateRecordEndpoint(s)),
		Delete: EnsureUserLoggedIn(makeDeleteRecordEndpoint(s)),
		Export: EnsureUserLoggedIn(makeExportEndpoint(s)),
	}
}

func makeKindsEndpoint(s RecordService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		return basicResponse{true, s.Kinds(ctx)}, nil
	}
}

func makeSchemaEndpoint(s RecordService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req, ok := request.(recordRequest)
		if !ok {
			return nil, fmt.Errorf("illegal record request")
		}
		kind, err := s.Schema(ctx, req.Kind)
		if err != nil {
			return nil, err
		}
		return basicResponse{true, kind}, nil
	}
}

func makeListRecordsEndpoint(s RecordService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req, ok := request.(recordSearchRequest)
		if !ok {
			return nil, fmt.Errorf("illegal search parameter")
		}
		list, numRows, err := s.List(ctx, req.Kind, req.Search)
		if err != nil {
			return nil, err
		}
		return basicResponse{true, pagingResponse{numRows, list}}, nil
	}
}

func makeGetRecordEndpoint(s RecordService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req, ok := request.(recordRequest)
		if !ok {
			return nil, fmt.Errorf("illegal record request")
		}
		rec, err := s.Get(ctx, req.Kind, req.ID)
		if err != nil {
			return nil, err
		}
		return basicResponse{true, rec}, nil
	}
}

func makeCreateRecordEndpoint(s RecordService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req, ok := request.(recordRequest)
		if !ok {
			return nil, fmt.Errorf("illegal record request")
		}
		rec, err := s.Create(ctx, req.Kind, req.Fields)
		if err != nil {
			return nil, err
		}
		return basicResponse{true, rec}, nil
	}
}

func makeUpdateRecordEndpoint(s RecordService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req, ok := request.(recordRequest)
		if !ok {
			return nil, fmt.Errorf("illegal record request")
		}
		rec, err := s.Update(ctx, req.Kind, req.ID, req.Fields)
		if err != nil {
			return nil, err
		}
		return basicResponse{true, rec}, nil
	}
}

func makeDeleteRecordEndpoint(s RecordService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req, ok := request.(recordRequest)
		if !ok {
			return nil, fmt.Errorf("illegal record request")
		}
		if err := s.Delete(ctx, req.Kind, req.ID); err != nil {
			return nil, err
		}
		return basicResponse{true, nil}, nil
	}
}

// The export endpoint answers with the bare file - see encodeFileResponse
func makeExportEndpoint(s RecordService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req, ok := request.(recordRequest)
		if !ok {
			return nil, fmt.Errorf("illegal record request")
		}
		return s.Export(ctx, req.Kind)
	}
}

// -- Dashboards -------------------------------------------------------------------------------------------------------

// MakeDashboardEndpoints builds the endpoints of the dashboard service
func MakeDashboardEndpoints(s DashboardService, policy access.Policy) DashboardEndpoints {
	return DashboardEndpoints{
		User:  EnsureUserLoggedIn(makeUserDashboardEndpoint(s)),
		Admin: EnsureAdmin(policy)(makeAdminDashboardEndpoint(s)),
	}
}

func makeUserDashboardEndpoint(s DashboardService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		d, err := s.UserDashboard(ctx)
		if err != nil {
			return nil, err
		}
		return basicResponse{true, d}, nil
	}
}

func makeAdminDashboardEndpoint(s DashboardService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		d, err := s.AdminDashboard(ctx)
		if err != nil {
			return nil, err
		}
		return basicResponse{true, d}, nil
	}
}

// -- Profile ----------------------------------------------------------------------------------------------------------

// MakeProfileEndpoints builds the endpoints of the profile service
func MakeProfileEndpoints(s ProfileService) ProfileEndpoints {
	return ProfileEndpoints{
		Get:            EnsureUserLoggedIn(makeGetProfileEndpoint(s)),
		Update:         EnsureUserLoggedIn(makeUpdateProfileEndpoint(s)),
		ChangePassword: EnsureUserLoggedIn(makeChangePasswordEndpoint(s)),
	}
}

func makeGetProfileEndpoint(s ProfileService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		p, err := s.GetProfile(ctx)
		if err != nil {
			return nil, err
		}
		return basicResponse{true, p}, nil
	}
}

func makeUpdateProfileEndpoint(s ProfileService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		upd, ok := request.(ProfileUpdate)
		if !ok {
			return nil, fmt.Errorf("illegal profile update")
		}
		p, err := s.UpdateProfile(ctx, upd)
		if err != nil {
			return nil, err
		}
		return basicResponse{true, p}, nil
	}
}

func makeChangePasswordEndpoint(s ProfileService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		change, ok := request.(PasswordChange)
		if !ok {
			return nil, fmt.Errorf("illegal password change")
		}
		if err := s.ChangePassword(ctx, change); err != nil {
			return nil, err
		}
		return basicResponse{true, nil}, nil
	}
}

// -- Directory --------------------------------------------------------------------------------------------------------

// MakeDirectoryEndpoints builds the endpoints for managing the identity store. All of them are reserved to
// administrators
func MakeDirectoryEndpoints(s DirectoryService, policy access.Policy) DirectoryEndpoints {
	admin := EnsureAdmin(policy)
	return DirectoryEndpoints{
		ListUsers:         admin(makeListUsersEndpoint(s)),
		CreateUser:        admin(makeCreateUserEndpoint(s)),
		DeleteUser:        admin(makeDeleteUserEndpoint(s)),
		ListRoles:         admin(makeListRolesEndpoint(s)),
		RolePermissions:   admin(makeRolePermissionsEndpoint(s)),
		AssignPermissions: admin(makeAssignPermissionsEndpoint(s)),
		ListPermissions:   admin(makeListPermissionsEndpoint(s)),
		CreatePermission:  admin(makeCreatePermissionEndpoint(s)),
	}
}

func makeListUsersEndpoint(s DirectoryService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		se, ok := request.(Search)
		if !ok {
			return nil, fmt.Errorf("illegal search parameter")
		}
		list, numRows, err := s.ListUsers(ctx, se)
		if err != nil {
			return nil, err
		}
		return basicResponse{true, pagingResponse{numRows, list}}, nil
	}
}

func makeCreateUserEndpoint(s DirectoryService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		nu, ok := request.(NewUser)
		if !ok {
			return nil, fmt.Errorf("illegal user parameter")
		}
		u, err := s.CreateUser(ctx, nu)
		if err != nil {
			return nil, err
		}
		return basicResponse{true, u}, nil
	}
}

func makeDeleteUserEndpoint(s DirectoryService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		id, ok := request.(uint)
		if !ok {
			return nil, fmt.Errorf("illegal user ID")
		}
		if err := s.DeleteUser(ctx, id); err != nil {
			return nil, err
		}
		return basicResponse{true, nil}, nil
	}
}

func makeListRolesEndpoint(s DirectoryService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		roles, err := s.ListRoles(ctx)
		if err != nil {
			return nil, err
		}
		return basicResponse{true, roles}, nil
	}
}

func makeRolePermissionsEndpoint(s DirectoryService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		id, ok := request.(uint)
		if !ok {
			return nil, fmt.Errorf("illegal role ID")
		}
		perms, err := s.RolePermissions(ctx, id)
		if err != nil {
			return nil, err
		}
		return basicResponse{true, perms}, nil
	}
}

func makeAssignPermissionsEndpoint(s DirectoryService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req, ok := request.(assignPermissionsRequest)
		if !ok {
			return nil, fmt.Errorf("illegal permission assignment")
		}
		perms, err := s.AssignPermissions(ctx, req.RoleID, req.PermissionIDs)
		if err != nil {
			return nil, err
		}
		return basicResponse{true, perms}, nil
	}
}

func makeListPermissionsEndpoint(s DirectoryService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		perms, err := s.ListPermissions(ctx)
		if err != nil {
			return nil, err
		}
		return basicResponse{true, perms}, nil
	}
}

func makeCreatePermissionEndpoint(s DirectoryService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		np, ok := request.(NewPermission)
		if !ok {
			return nil, fmt.Errorf("illegal permission parameter")
		}
		p, err := s.CreatePermission(ctx, np)
		if err != nil {
			return nil, err
		}
		return basicResponse{true, p}, nil
	}
}
