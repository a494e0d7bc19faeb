package models

// Student is a registered session identity. The id doubles as the caller's
// session credential: it is generated server-side and not derivable from the
// name, so identity is sticky per registration, not per name.
type Student struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JoinedAt int64  `json:"joinedAt"`
	IsKicked bool   `json:"isKicked"`
}
