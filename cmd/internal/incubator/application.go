package incubator

// Status is the review state of an application.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// Application is one startup application as persisted under
// flare_hub_applications.
type Application struct {
	ID            string `json:"id"`
	StartupName   string `json:"startupName"`
	Sector        string `json:"sector"`
	Status        Status `json:"status"`
	SubmittedDate string `json:"submittedDate"`
	Location      string `json:"location"`
	Description   string `json:"description"`
	FounderName   string `json:"founderName"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	TeamSize      string `json:"teamSize"`
	Stage         string `json:"stage"`
	// Comments is the reviewer note recorded on rejection.
	Comments string `json:"comments,omitempty"`
}

// Stages offered by the application form.
const (
	StageIdea         = "idea"
	StagePrototype    = "prototype"
	StageEarlyRevenue = "early-revenue"
	StageScaling      = "scaling"
)

// Sectors offered by the application form.
var sectors = []any{"technology", "healthcare", "education", "finance", "agriculture", "other"}

// greetingName is the salutation used in review emails.
func (a Application) greetingName() string {
	if a.FounderName == "" {
		return "Applicant"
	}
	return a.FounderName
}
