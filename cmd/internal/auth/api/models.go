package authapi

import "flarehub/cmd/identity"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type authResponse struct {
	User     identity.Identity `json:"user"`
	Redirect string            `json:"redirect"`
}

type logoutResponse struct {
	Redirect   string `json:"redirect"`
	FullReload bool   `json:"full_reload"`
}

type meResponse struct {
	User  identity.Identity `json:"user"`
	State string            `json:"state"`
}
