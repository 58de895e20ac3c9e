package incubator

import (
	"errors"
	"strings"

	"flarehub/cmd/identity"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const minPasswordLen = 6

var (
	stages           = []any{StageIdea, StagePrototype, StageEarlyRevenue, StageScaling}
	opportunityTypes = []any{"Event", "Funding", "Workshop", "Competition", "Networking", "Other"}
	userRoles        = []any{string(identity.RoleAdmin), string(identity.RoleStartup), string(identity.RoleMentor), string(identity.RoleApplicant)}
	userStatuses     = []any{"Active", "Inactive"}
)

func (in ApplyInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.StartupName, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Description, validation.Required, validation.Length(1, 5000)),
		validation.Field(&in.Sector, validation.Required, validation.In(sectors...)),
		validation.Field(&in.Stage, validation.In(stages...)),
		validation.Field(&in.TeamSize, validation.Length(0, 20)),
		validation.Field(&in.Location, validation.Length(0, 100)),
		validation.Field(&in.FounderName, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(minPasswordLen, 1024)),
		validation.Field(&in.ConfirmPassword, validation.Required, validation.By(equals(in.Password, "passwords do not match"))),
	)
}

func (in CreateUserInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.Role, validation.Required, validation.In(userRoles...)),
		validation.Field(&in.Password, validation.Length(0, 1024)),
		validation.Field(&in.Status, validation.In(userStatuses...)),
	)
}

func (in OpportunityInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Type, validation.Required, validation.In(opportunityTypes...)),
		validation.Field(&in.Description, validation.Required, validation.Length(1, 5000)),
		validation.Field(&in.Deadline, validation.Date("2006-01-02")),
		validation.Field(&in.Link, is.URL),
		validation.Field(&in.Startups, validation.By(noBlank)),
	)
}

type rejectRequest struct {
	Comments string `json:"comments"`
}

func (r rejectRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Comments, validation.Length(0, 2000)),
	)
}

func equals(want, msg string) validation.RuleFunc {
	return func(v any) error {
		s, _ := v.(string)
		if s != want {
			return errors.New(msg)
		}
		return nil
	}
}

func noBlank(v any) error {
	ids, _ := v.([]string)
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return errors.New("must not contain blank ids")
		}
	}
	return nil
}

func trimApply(in ApplyInput) ApplyInput {
	in.StartupName = strings.TrimSpace(in.StartupName)
	in.Sector = strings.ToLower(strings.TrimSpace(in.Sector))
	in.Stage = strings.TrimSpace(in.Stage)
	in.Location = strings.TrimSpace(in.Location)
	in.FounderName = strings.TrimSpace(in.FounderName)
	in.Email = strings.TrimSpace(in.Email)
	return in
}

func trimUser(in CreateUserInput) CreateUserInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	return in
}

func trimOpportunity(in OpportunityInput) OpportunityInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Type = strings.TrimSpace(in.Type)
	in.Deadline = strings.TrimSpace(in.Deadline)
	in.Link = strings.TrimSpace(in.Link)
	return in
}
