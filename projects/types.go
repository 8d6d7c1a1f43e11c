package projects

import (
	"bytes"
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// ApplicationStatus is the review state of an application.
type ApplicationStatus string

const (
	StatusPending  ApplicationStatus = "pending"
	StatusAccepted ApplicationStatus = "accepted"
	StatusRejected ApplicationStatus = "rejected"
)

// Difficulty levels accepted by the backend.
var Difficulties = []string{"EASY", "MEDIUM", "HARD"}

type Owner struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
	Proficiency     string `json:"proficiency,omitempty"`
}

// Project is a recruiting team project.
type Project struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Description          string `json:"description"`
	Difficulty           string `json:"difficulty"`
	RecruitmentStartDate string `json:"recruitmentStartDate,omitempty"`
	RecruitmentEndDate   string `json:"recruitmentEndDate,omitempty"`
	ProjectStartDate     string `json:"projectStartDate,omitempty"`
	ProjectEndDate       string `json:"projectEndDate,omitempty"`
	GithubRepoURL        string `json:"githubRepoUrl,omitempty"`

	LimitBE     int `json:"limitBE"`
	LimitFE     int `json:"limitFE"`
	LimitPM     int `json:"limitPM"`
	LimitMobile int `json:"limitMobile"`
	LimitAI     int `json:"limitAI"`

	CurrentBE     int `json:"currentBE"`
	CurrentFE     int `json:"currentFE"`
	CurrentMobile int `json:"currentMobile"`
	CurrentAI     int `json:"currentAI"`

	Status           string   `json:"status"`
	Tags             []string `json:"tags"`
	OwnerID          string   `json:"ownerId"`
	Owner            *Owner   `json:"owner,omitempty"`
	MemberCount      int      `json:"memberCount"`
	ApplicationCount int      `json:"applicationCount"`
	CreatedAt        string   `json:"createdAt,omitempty"`
	UpdatedAt        string   `json:"updatedAt,omitempty"`
}

// OpenSlots is the number of unfilled seats across all positions.
func (p Project) OpenSlots() int {
	open := 0
	for _, pair := range [][2]int{
		{p.LimitBE, p.CurrentBE},
		{p.LimitFE, p.CurrentFE},
		{p.LimitMobile, p.CurrentMobile},
		{p.LimitAI, p.CurrentAI},
	} {
		if n := pair[0] - pair[1]; n > 0 {
			open += n
		}
	}
	return open
}

// Application is a user's request to join a project.
type Application struct {
	ID           string            `json:"id"`
	ProjectID    string            `json:"projectId"`
	UserID       string            `json:"userId"`
	UserName     string            `json:"userName"`
	UserEmail    string            `json:"userEmail"`
	UserAvatar   string            `json:"userAvatar,omitempty"`
	Position     string            `json:"position"`
	Introduction string            `json:"introduction"`
	Status       ApplicationStatus `json:"status"`
	AppliedAt    string            `json:"appliedAt,omitempty"`
}

// Positions is the head count wanted per role, as free text (e.g. "2").
type Positions struct {
	Frontend string `json:"frontend,omitempty"`
	Backend  string `json:"backend,omitempty"`
	AI       string `json:"ai,omitempty"`
	Mobile   string `json:"mobile,omitempty"`
}

func (p Positions) empty() bool {
	return p == Positions{}
}

type CreateProjectData struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartDate   string    `json:"startDate"`
	Deadline    string    `json:"deadline"`
	Duration    string    `json:"duration"`
	Difficulty  string    `json:"difficulty"`
	Positions   Positions `json:"positions"`
}

func (d CreateProjectData) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Title, validation.Required.Error("enter a project title"), validation.Length(1, 100)),
		validation.Field(&d.Description, validation.Required.Error("enter a description")),
		validation.Field(&d.StartDate, validation.Required.Error("enter a start date"), validation.Date("2006-01-02")),
		validation.Field(&d.Deadline, validation.Required.Error("enter a recruitment deadline"), validation.Date("2006-01-02")),
		validation.Field(&d.Difficulty, validation.Required.Error("select a difficulty"), validation.In(toAny(Difficulties)...)),
		validation.Field(&d.Positions, validation.By(func(any) error {
			if d.Positions.empty() {
				return validation.NewError("validation_positions", "select at least one position")
			}
			return nil
		})),
	)
}

// UpdateProjectData holds only the fields to change.
type UpdateProjectData struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	StartDate   *string    `json:"startDate,omitempty"`
	Deadline    *string    `json:"deadline,omitempty"`
	Duration    *string    `json:"duration,omitempty"`
	Difficulty  *string    `json:"difficulty,omitempty"`
	Positions   *Positions `json:"positions,omitempty"`
}

func (d UpdateProjectData) Validate() error {
	if d == (UpdateProjectData{}) {
		return validation.NewError("validation_empty_update", "nothing to update")
	}
	return validation.ValidateStruct(&d,
		validation.Field(&d.Title, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&d.StartDate, validation.NilOrNotEmpty, validation.Date("2006-01-02")),
		validation.Field(&d.Deadline, validation.NilOrNotEmpty, validation.Date("2006-01-02")),
		validation.Field(&d.Difficulty, validation.NilOrNotEmpty, validation.In(toAny(Difficulties)...)),
	)
}

// ApplyRequest is the body of an application.
type ApplyRequest struct {
	Position     string `json:"position"`
	Introduction string `json:"introduction"`
	Portfolio    string `json:"portfolio,omitempty"`
}

func (r ApplyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Position, validation.Required.Error("select a position")),
		validation.Field(&r.Introduction, validation.Required.Error("introduce yourself"), validation.Length(1, 1000)),
		validation.Field(&r.Portfolio, is.URL.Error("portfolio must be a valid URL")),
	)
}

// MyPage aggregates everything shown on the user's page.
type MyPage struct {
	Owned        []Project     `json:"owned"`
	Member       []Project     `json:"member"`
	Applications []Application `json:"applications"`
}

type messageReply struct {
	Message string `json:"message"`
}

// list accepts a bare JSON array or a {"data": [...]} envelope.
type list[T any] []T

func (l *list[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] == '[' {
		var items []T
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var env struct {
		Data []T `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	*l = env.Data
	return nil
}

// item accepts a bare object or a {"data": {...}} envelope.
type item[T any] struct {
	value T
}

func (i *item[T]) UnmarshalJSON(b []byte) error {
	var probe struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &probe); err == nil && len(probe.Data) > 0 && probe.Data[0] == '{' {
		b = probe.Data
	}
	return json.Unmarshal(b, &i.value)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
