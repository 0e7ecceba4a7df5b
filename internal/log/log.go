package log

const (
	// FldFile is the name of the log field for storing file name information
	FldFile = "file"
	// FldPath is the name of the log field for storing path name information
	FldPath = "path"
	// FldTransport is the name of the log field for storing a transport name
	FldTransport = "transport"
	// FldSession is the name of the log field for storing the session ID
	FldSession = "session"
	// FldUser is the name of the log field for storing the ID of the currently active user
	FldUser = "user"
	// FldRole is the role of the currently active user
	FldRole = "role"
	// FldVersion is the version number of the application
	FldVersion = "ver"
	// FldRequest is the ID assigned to an incoming HTTP request
	FldRequest = "request"
	// FldID is the ID of an entity used in the log entry
	FldID = "id"
	// FldKind is the record kind an operation works on
	FldKind = "kind"
	// FldPermission is a permission token
	FldPermission = "permission"
	// FldRedirect is the target of a redirect
	FldRedirect = "redirect"
	// FldURL is the URL of an outgoing request
	FldURL = "url"
	// FldStatus is the HTTP status of a response
	FldStatus = "status"
	// FldSearch is a search term used in a serach
	FldSearch = "search"
	// FldOffset is the requested offset value in a search
	FldOffset = "offset"
	// FldLimit is the requested result limit in a search
	FldLimit = "limit"
	// FldVariable is the name of an environment variable
	FldVariable = "variable"
	// FldAddress is a network address
	FldAddress = "address"
)
