package domain

// User is the slice of the user record this subsystem needs: identity plus
// the denormalized display fields stamped into sessions and token claims.
// The user data store itself lives behind the session.UserDirectory
// interface.
type User struct {
	ID       string
	Username string
	Email    string
}
