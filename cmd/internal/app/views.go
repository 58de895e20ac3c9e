package app

import (
	"net/http"

	"flarehub/cmd/internal/auth/guard"
	"flarehub/cmd/internal/httpx"
)

type formField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type formView struct {
	Action string      `json:"action"`
	Method string      `json:"method"`
	Fields []formField `json:"fields"`
}

type loginView struct {
	View   string   `json:"view"`
	Form   formView `json:"form"`
	Signup string   `json:"signup"`
	Apply  string   `json:"apply"`
}

type landingView struct {
	View  string `json:"view"`
	Login string `json:"login"`
	Apply string `json:"apply"`
}

// handleLanding is the public entry point logout navigates to.
func (a *App) handleLanding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		httpx.MethodNotAllowed(w, http.MethodGet, http.MethodHead)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, landingView{
		View:  "landing",
		Login: guard.LoginPath,
		Apply: "/apply",
	})
}

// handleLoginView describes the form the guard sends anonymous visitors to.
// The password field is collected but never checked.
func (a *App) handleLoginView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		httpx.MethodNotAllowed(w, http.MethodGet, http.MethodHead)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginView{
		View: "login",
		Form: formView{
			Action: "/auth/login",
			Method: http.MethodPost,
			Fields: []formField{
				{Name: "email", Type: "email", Required: true},
				{Name: "password", Type: "password"},
			},
		},
		Signup: "/auth/signup",
		Apply:  "/apply",
	})
}
