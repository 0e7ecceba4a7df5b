// Package routing holds the static page route table of MedStock and resolves navigation requests against it
package routing

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/derWhity/medstock/internal/access"
	"github.com/derWhity/medstock/internal/models"
	"github.com/gorilla/mux"
)

// Page identifies the page component the UI renders for a route
type Page string

// The pages known to the UI
const (
	PageLogin            Page = "login"
	PageNotFound         Page = "not-found"
	PageNotAvailable     Page = "not-available"
	PageDashboard        Page = "dashboard"
	PageProfile          Page = "profile"
	PageAdminDashboard   Page = "admin-dashboard"
	PageUserList         Page = "user-list"
	PageUserForm         Page = "user-form"
	PageRoleList         Page = "role-list"
	PagePermissionForm   Page = "permission-form"
	PagePermissionAssign Page = "permission-assign"
	PageFormBuilder      Page = "form-builder"
	PageRecordForm       Page = "record-form"
	PageRecordList       Page = "record-list"
	PageRecordDetail     Page = "record-detail"
)

// Route is a single entry of the route table
type Route struct {
	// Unique route name
	Name string `json:"name"`
	// Path pattern. Segments like {id:[0-9]+} are allowed
	Path string `json:"path"`
	// The page rendered for this route
	Page Page `json:"page"`
	// The record kind record pages work on
	Kind string `json:"kind,omitempty"`
	// What a session needs to open the page
	Requirement access.Requirement `json:"requirement"`
	// Entry in the navigation menu. Nil if the route does not show up in the menu
	Menu *MenuEntry `json:"menu,omitempty"`
}

// MenuEntry places a route inside the navigation menu
type MenuEntry struct {
	Group string `json:"group"`
	Label string `json:"label"`
}

// MenuItem is a menu entry a session is allowed to open
type MenuItem struct {
	Group string `json:"group"`
	Label string `json:"label"`
	Path  string `json:"path"`
}

// Resolution is the outcome of resolving a path for a session. Either Page or RedirectTo is set
type Resolution struct {
	// The cleaned path that has been resolved
	Path string `json:"path"`
	// The name of the matched route - empty for unmatched paths
	Route string `json:"route,omitempty"`
	// The page to render
	Page Page `json:"page,omitempty"`
	// The record kind of record pages
	Kind string `json:"kind,omitempty"`
	// Path variables like the record ID of detail pages
	Vars map[string]string `json:"vars,omitempty"`
	// Where to go instead
	RedirectTo string `json:"redirectTo,omitempty"`
}

// IsRedirect checks if the resolution sends the user elsewhere
func (r Resolution) IsRedirect() bool {
	return r.RedirectTo != ""
}

// Table is the static route table
type Table struct {
	policy access.Policy
	routes []Route
	byName map[string]*Route
	// The matcher is only used for matching paths, it never serves anything
	matcher *mux.Router
	// Landing pages after login
	adminHome string
	userHome  string
}

// NewTable builds a route table from the given routes. Route names and paths must be unique and the table needs
// exactly one guest route at the login path of the policy
func NewTable(policy access.Policy, routes []Route) (*Table, error) {
	t := &Table{
		policy:    policy,
		byName:    make(map[string]*Route, len(routes)),
		matcher:   mux.NewRouter(),
		adminHome: PathAdminDashboard,
		userHome:  PathDashboard,
	}
	paths := make(map[string]bool, len(routes))
	for _, r := range routes {
		if r.Name == "" || !strings.HasPrefix(r.Path, "/") {
			return nil, fmt.Errorf("NewTable: route '%s' needs a name and an absolute path", r.Name)
		}
		if _, ok := t.byName[r.Name]; ok {
			return nil, fmt.Errorf("NewTable: duplicate route name '%s'", r.Name)
		}
		if paths[r.Path] {
			return nil, fmt.Errorf("NewTable: duplicate route path '%s'", r.Path)
		}
		paths[r.Path] = true
		t.routes = append(t.routes, r)
	}
	for i := range t.routes {
		r := &t.routes[i]
		t.byName[r.Name] = r
		t.matcher.Path(r.Path).Name(r.Name)
	}
	login := t.routeAt(policy.LoginPath)
	if login == nil || login.Requirement.Level != access.Guest {
		return nil, fmt.Errorf("NewTable: no guest route at login path '%s'", policy.LoginPath)
	}
	if t.routeAt(t.adminHome) == nil || t.routeAt(t.userHome) == nil {
		return nil, fmt.Errorf("NewTable: dashboard routes missing")
	}
	return t, nil
}

// MustNewTable is like NewTable but panics on errors. Used for the built-in table
func MustNewTable(policy access.Policy, routes []Route) *Table {
	t, err := NewTable(policy, routes)
	if err != nil {
		panic(err)
	}
	return t
}

// Routes returns a copy of all routes in declaration order
func (t *Table) Routes() []Route {
	ret := make([]Route, len(t.routes))
	copy(ret, t.routes)
	return ret
}

// Route returns the route with the given name
func (t *Table) Route(name string) (Route, bool) {
	if r, ok := t.byName[name]; ok {
		return *r, true
	}
	return Route{}, false
}

// Policy returns the access policy the table evaluates with
func (t *Table) Policy() access.Policy {
	return t.policy
}

// cleanPath normalizes a requested path: leading slash, no dot segments, no trailing slash
func cleanPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

// match finds the route serving the given cleaned path
func (t *Table) match(p string) (*Route, map[string]string) {
	req := &http.Request{Method: http.MethodGet, URL: &url.URL{Path: p}}
	var m mux.RouteMatch
	if !t.matcher.Match(req, &m) || m.Route == nil {
		return nil, nil
	}
	return t.byName[m.Route.GetName()], m.Vars
}

func (t *Table) routeAt(p string) *Route {
	r, _ := t.match(p)
	return r
}

// Resolve decides what the given session (nil if nobody is logged in) gets to see when navigating to the path
func (t *Table) Resolve(requested string, sess *models.Session) Resolution {
	p := cleanPath(requested)
	res := Resolution{Path: p}
	route, vars := t.match(p)
	if route == nil {
		// Unknown paths do not tell guests that they do not exist
		if sess != nil {
			res.RedirectTo = t.policy.NotFoundPath
		} else {
			res.RedirectTo = t.policy.LoginPath
		}
		return res
	}
	res.Route = route.Name
	if p == t.policy.LoginPath && sess != nil {
		// Logged-in users land on their dashboard
		if sess.IsAdmin() {
			res.RedirectTo = t.adminHome
		} else {
			res.RedirectTo = t.userHome
		}
		return res
	}
	decision := t.policy.Evaluate(sess, route.Requirement)
	if !decision.Allowed {
		res.RedirectTo = decision.RedirectTo
		return res
	}
	res.Page = route.Page
	res.Kind = route.Kind
	if len(vars) > 0 {
		res.Vars = vars
	}
	return res
}

// Menu returns the menu entries the session may open, in table order. Entries of pending features are listed as
// long as the session passes their guard
func (t *Table) Menu(sess *models.Session) []MenuItem {
	ret := []MenuItem{}
	for _, r := range t.routes {
		if r.Menu == nil {
			continue
		}
		d := t.policy.Evaluate(sess, r.Requirement)
		if d.Allowed || d.Reason == access.ReasonNotAvailable {
			ret = append(ret, MenuItem{Group: r.Menu.Group, Label: r.Menu.Label, Path: r.Path})
		}
	}
	return ret
}
