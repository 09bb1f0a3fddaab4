package models

// User is the signed-in account this client acts for
type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
}

// Authenticated reports whether a session user is known.
func (u User) Authenticated() bool {
	return !u.ID.IsZero()
}
