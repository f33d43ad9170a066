package auth

// LoginCredentials are the inputs to the login endpoint.
type LoginCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterCredentials are the inputs to the registration endpoint. The full
// schema (name, city, interests) is always sent; the server rejects partial
// registrations.
type RegisterCredentials struct {
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	City      string   `json:"city"`
	Interests []string `json:"interests"`
}
