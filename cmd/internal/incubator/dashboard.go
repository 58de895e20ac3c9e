package incubator

import (
	"net/http"

	"flarehub/cmd/identity"
	"flarehub/cmd/internal/auth/guard"
	"flarehub/cmd/internal/httpx"
)

const recentApplications = 5

type applicationCounts struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

type adminOverview struct {
	View         string            `json:"view"`
	Applications applicationCounts `json:"applications"`
	Recent       []Application     `json:"recentApplications"`
	Users        int               `json:"users"`
}

type startupOverview struct {
	View          string        `json:"view"`
	Applications  []Application `json:"applications"`
	Opportunities []Opportunity `json:"opportunities"`
}

type mentorOverview struct {
	View          string        `json:"view"`
	Opportunities []Opportunity `json:"opportunities"`
}

type pendingView struct {
	View             string `json:"view"`
	AwaitingApproval bool   `json:"awaitingApproval"`
	Title            string `json:"title"`
	Message          string `json:"message"`
}

// handleDashboard renders the overview for the caller's role. An applicant
// awaiting approval is sent to the pending view, so the dashboard never
// redirects to itself.
func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.MethodNotAllowed(w, http.MethodGet)
		return
	}
	me, ok := h.identity(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	switch role := me.Role.(type) {
	case identity.Admin:
		apps, err := h.svc.Applications(ctx)
		if err != nil {
			h.writeError(w, "incubator.dashboard", err)
			return
		}
		users, err := h.svc.Users(ctx)
		if err != nil {
			h.writeError(w, "incubator.dashboard", err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, adminOverview{
			View:         "admin",
			Applications: countApplications(apps),
			Recent:       lastN(apps, recentApplications),
			Users:        len(users),
		})

	case identity.Mentor:
		opps, err := h.svc.Opportunities(ctx)
		if err != nil {
			h.writeError(w, "incubator.dashboard", err)
			return
		}
		mine := make([]Opportunity, 0, len(opps))
		for _, o := range opps {
			if o.CreatedBy == me.ID {
				mine = append(mine, o)
			}
		}
		httpx.WriteJSON(w, http.StatusOK, mentorOverview{View: "mentor", Opportunities: mine})

	case identity.Startup:
		h.writeStartupOverview(w, r, me, "startup")

	case identity.Applicant:
		if !role.Approved {
			w.Header().Set("Location", guard.PendingPath)
			httpx.WriteJSON(w, http.StatusSeeOther, map[string]string{
				"redirect": guard.PendingPath,
				"reason":   guard.RedirectPending.String(),
			})
			return
		}
		h.writeStartupOverview(w, r, me, "applicant")

	default:
		h.log.Error("incubator.dashboard.role", "role", me.Role)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (h *Handler) writeStartupOverview(w http.ResponseWriter, r *http.Request, me identity.Identity, view string) {
	ctx := r.Context()

	apps, err := h.svc.Applications(ctx)
	if err != nil {
		h.writeError(w, "incubator.dashboard", err)
		return
	}
	mine := make([]Application, 0, 1)
	for _, a := range apps {
		if a.Email == me.Email {
			mine = append(mine, a)
		}
	}
	opps, err := h.svc.OpportunitiesFor(ctx, me.ID)
	if err != nil {
		h.writeError(w, "incubator.dashboard", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, startupOverview{View: view, Applications: mine, Opportunities: opps})
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.MethodNotAllowed(w, http.MethodGet)
		return
	}
	me, ok := h.identity(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pendingView{
		View:             "pending",
		AwaitingApproval: identity.AwaitingApproval(me.Role),
		Title:            "Application Under Review",
		Message:          "Thank you for applying to Flare Hub. Your application is currently under review by our team. This process typically takes 5-7 business days.",
	})
}

func countApplications(apps []Application) applicationCounts {
	c := applicationCounts{Total: len(apps)}
	for _, a := range apps {
		switch a.Status {
		case StatusApproved:
			c.Approved++
		case StatusRejected:
			c.Rejected++
		default:
			c.Pending++
		}
	}
	return c
}

func lastN[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
