package server

import "shift_report/internal/catalog"

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// principal is the authenticated caller of a request.
type principal struct {
	UserID   int64  `json:"uid"`
	Username string `json:"usr"`
	Role     string `json:"rol"`
}

func (p principal) isAdmin() bool { return p.Role == "admin" }

type loginResponse struct {
	Token    string `json:"token"`
	Role     string `json:"role"`
	Username string `json:"username"`
}

type idResponse struct {
	ID int64 `json:"id"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// namedEntry is the request and response shape of the tramos and
// activities catalogs.
type namedEntry struct {
	ID     catalog.ID `json:"id"`
	Nombre string     `json:"nombre"`
}
