package sessions

// User is the cached profile snapshot carried inside a session record.
// It mirrors the user object returned by the auth endpoints and is treated
// as a cache, not a source of truth: the server copy may move on until the
// profile is re-fetched.
type User struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Age       int      `json:"age,omitempty"`
	Role      string   `json:"role,omitempty"`
	Active    bool     `json:"isActive"`
	City      string   `json:"city"`
	Interests []string `json:"interests"`
	CreatedAt string   `json:"createdAt,omitempty"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
}

// Record is the single persisted entity: the short-lived access token, the
// long-lived refresh token, and the profile snapshot. A record is stored
// whole or not at all; partial records must never reach the store.
type Record struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// Complete reports whether every mandatory field of the record is populated.
func (r *Record) Complete() bool {
	return r != nil && r.AccessToken != "" && r.RefreshToken != "" && r.User.ID != ""
}
