package incubator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"flarehub/cmd/identity"
	"flarehub/cmd/identity/ids"
	"flarehub/cmd/internal/auth/session"
	"flarehub/cmd/internal/notify"
	"flarehub/cmd/internal/storage"
)

const (
	applicationIDPrefix = "APP"
	opportunityIDPrefix = "OPP"
	submittedDateLayout = "2006-01-02"
)

// Service runs the incubator workflows.
type Service struct {
	log    *slog.Logger
	repo   identity.Repository
	apps   *Collection[Application]
	opps   *Collection[Opportunity]
	mailer notify.Mailer

	now   func() time.Time
	newID func(now time.Time) (string, error)
}

// ServiceOption configures Service.
type ServiceOption func(*Service)

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces the time source (tests).
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the id generator (tests).
func WithIDGenerator(fn func(now time.Time) (string, error)) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService constructs a Service. kv holds the application and opportunity
// collections; identities go through repo.
func NewService(kv storage.KV, repo identity.Repository, mailer notify.Mailer, opts ...ServiceOption) (*Service, error) {
	if kv == nil {
		return nil, errors.New("incubator: nil kv")
	}
	if repo == nil {
		return nil, errors.New("incubator: nil identity repository")
	}
	if mailer == nil {
		return nil, errors.New("incubator: nil mailer")
	}

	s := &Service{
		log:    slog.Default(),
		repo:   repo,
		mailer: mailer,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  ids.NewULID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.apps = NewCollection[Application](kv, storage.KeyApplications, s.log)
	s.opps = NewCollection[Opportunity](kv, storage.KeyOpportunities, s.log)
	return s, nil
}

// ApplyInput is the public application form.
type ApplyInput struct {
	StartupName     string `json:"startupName"`
	FoundingDate    string `json:"foundingDate"`
	Description     string `json:"description"`
	Sector          string `json:"sector"`
	Stage           string `json:"stage"`
	TeamSize        string `json:"teamSize"`
	Location        string `json:"location"`
	FounderName     string `json:"founderName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Apply signs the founder up on store, records a pending application and
// sends the confirmation email. A failed email is logged and does not undo
// the application.
func (s *Service) Apply(ctx context.Context, store *session.Store, in ApplyInput) (Application, identity.Identity, error) {
	const op = "incubator.Apply"

	if store == nil {
		return Application{}, identity.Identity{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing session"}
	}

	founder, err := store.Signup(ctx, in.Email, in.Password, in.FounderName)
	if err != nil {
		return Application{}, identity.Identity{}, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	id, err := s.newID(now)
	if err != nil {
		return Application{}, founder, fmt.Errorf("%s: %w", op, err)
	}
	stage := in.Stage
	if stage == "" {
		stage = StageIdea
	}
	app := Application{
		ID:            applicationIDPrefix + id,
		StartupName:   in.StartupName,
		Sector:        in.Sector,
		Status:        StatusPending,
		SubmittedDate: now.Format(submittedDateLayout),
		Location:      in.Location,
		Description:   in.Description,
		FounderName:   in.FounderName,
		Email:         in.Email,
		TeamSize:      in.TeamSize,
		Stage:         stage,
	}
	if err := s.apps.Append(ctx, app); err != nil {
		return Application{}, founder, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("incubator.application.submitted", "application_id", app.ID, "identity_id", founder.ID)

	s.send(ctx, notify.ApplicationSubmitted(in.FounderName).To(in.Email))
	return app, founder, nil
}

func (s *Service) Applications(ctx context.Context) ([]Application, error) {
	return s.apps.All(ctx)
}

// Application returns the application with id or an ErrNotFound OpError.
func (s *Service) Application(ctx context.Context, id string) (Application, error) {
	app, ok, err := s.apps.Find(ctx, func(a Application) bool { return a.ID == id })
	if err != nil {
		return Application{}, err
	}
	if !ok {
		return Application{}, OpError{Op: "incubator.Application", Kind: ErrNotFound}
	}
	return app, nil
}

// Approve marks a pending application approved, promotes every collection
// identity with the application's email to Startup and sends the approval email.
func (s *Service) Approve(ctx context.Context, id string) (Application, error) {
	const op = "incubator.Approve"

	app, err := s.decide(ctx, op, id, StatusApproved, "")
	if err != nil {
		return Application{}, err
	}

	if app.Email != "" {
		n, err := s.repo.UpdateByEmail(ctx, app.Email, func(i identity.Identity) identity.Identity {
			i.Role = identity.Startup{}
			return i
		})
		if err != nil {
			return app, fmt.Errorf("%s: %w", op, err)
		}
		s.log.Info("incubator.application.approved", "application_id", app.ID, "promoted", n)
		s.send(ctx, notify.ApplicationApproved(app.greetingName(), app.StartupName).To(app.Email))
	}
	return app, nil
}

// Reject marks a pending application rejected and sends the rejection email
// carrying comments when present.
func (s *Service) Reject(ctx context.Context, id, comments string) (Application, error) {
	const op = "incubator.Reject"

	comments = strings.TrimSpace(comments)
	app, err := s.decide(ctx, op, id, StatusRejected, comments)
	if err != nil {
		return Application{}, err
	}
	s.log.Info("incubator.application.rejected", "application_id", app.ID)

	if app.Email != "" {
		s.send(ctx, notify.ApplicationRejected(app.greetingName(), app.StartupName, comments).To(app.Email))
	}
	return app, nil
}

func (s *Service) decide(ctx context.Context, op, id string, to Status, comments string) (Application, error) {
	updated, err := s.apps.Update(ctx,
		func(a Application) bool { return a.ID == id },
		func(a Application) (Application, error) {
			if a.Status != StatusPending && a.Status != "" {
				return a, OpError{Op: op, Kind: ErrDecided, Msg: string(a.Status)}
			}
			a.Status = to
			a.Comments = comments
			return a, nil
		},
	)
	if err != nil {
		return Application{}, err
	}
	if len(updated) == 0 {
		return Application{}, OpError{Op: op, Kind: ErrNotFound}
	}
	return updated[0], nil
}

// Users returns the identity collection. Seed identities are not included.
func (s *Service) Users(ctx context.Context) ([]identity.Identity, error) {
	return s.repo.Collection(ctx)
}

// CreateUserInput is the administrative user form. Password and Status are
// validated with the form but never persisted: the identity record has no
// slot for either, and every created user is approved.
type CreateUserInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Password string `json:"password"`
	Status   string `json:"status"`
}

// CreateUser appends an approved identity with the requested role.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (identity.Identity, error) {
	const op = "incubator.CreateUser"

	role, err := identity.ParseRole(identity.RoleName(in.Role), true)
	if err != nil {
		return identity.Identity{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}
	id, err := s.newID(s.now())
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	user := identity.Identity{ID: id, Email: in.Email, Name: in.Name, Role: role}
	if err := s.repo.Append(ctx, user); err != nil {
		return identity.Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("incubator.user.created", "identity_id", user.ID, "role", string(role.Name()))
	return user, nil
}

func (s *Service) Opportunities(ctx context.Context) ([]Opportunity, error) {
	return s.opps.All(ctx)
}

// OpportunitiesFor returns the opportunities shared with startupID.
func (s *Service) OpportunitiesFor(ctx context.Context, startupID string) ([]Opportunity, error) {
	all, err := s.opps.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Opportunity, 0, len(all))
	for _, o := range all {
		if o.SharedWith.Includes(startupID) {
			out = append(out, o)
		}
	}
	return out, nil
}

// OpportunityInput is the mentor opportunity form.
type OpportunityInput struct {
	Title        string   `json:"title"`
	Type         string   `json:"type"`
	Description  string   `json:"description"`
	Deadline     string   `json:"deadline"`
	Link         string   `json:"link"`
	ShareWithAll bool     `json:"shareWithAll"`
	Startups     []string `json:"startups"`
}

func (s *Service) CreateOpportunity(ctx context.Context, author identity.Identity, in OpportunityInput) (Opportunity, error) {
	const op = "incubator.CreateOpportunity"

	now := s.now()
	id, err := s.newID(now)
	if err != nil {
		return Opportunity{}, fmt.Errorf("%s: %w", op, err)
	}
	aud := Audience{All: in.ShareWithAll}
	if !in.ShareWithAll {
		aud.Startups = append([]string{}, in.Startups...)
	}
	o := Opportunity{
		ID:          opportunityIDPrefix + id,
		Title:       in.Title,
		Type:        in.Type,
		Description: in.Description,
		Deadline:    in.Deadline,
		Link:        in.Link,
		Shared:      aud.Shared(),
		SharedWith:  aud,
		CreatedAt:   now,
		CreatedBy:   author.ID,
	}
	if err := s.opps.Append(ctx, o); err != nil {
		return Opportunity{}, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("incubator.opportunity.created", "opportunity_id", o.ID, "identity_id", author.ID, "shared", o.Shared)
	return o, nil
}

func (s *Service) send(ctx context.Context, e notify.Email) {
	if err := s.mailer.Send(ctx, e); err != nil {
		s.log.Warn("incubator.email.fail", "subject", e.Subject, "err", err)
	}
}
