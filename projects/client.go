// Package projects is the REST client for team projects and applications.
// Every call carries the application token through the BackendClient.
package projects

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	teamauth "github.com/teamup-ku/go-teamauth"
	"golang.org/x/sync/errgroup"
)

// Client calls the /project endpoints.
type Client struct {
	backend *teamauth.BackendClient
}

// New wraps backend. The backend should be configured with the session's
// TokenSource and WithRequireToken.
func New(backend *teamauth.BackendClient) *Client {
	return &Client{backend: backend}
}

// List returns every project.
func (c *Client) List(ctx context.Context) ([]Project, error) {
	var out list[Project]
	err := c.backend.Call(ctx, http.MethodGet, "/project", nil, &out, "failed to fetch projects")
	return out, err
}

// Owned returns projects owned by the current user.
func (c *Client) Owned(ctx context.Context) ([]Project, error) {
	var out list[Project]
	err := c.backend.Call(ctx, http.MethodGet, "/project/dashboard/owner", nil, &out, "failed to fetch owned projects")
	return out, err
}

// Member returns projects the current user has joined.
func (c *Client) Member(ctx context.Context) ([]Project, error) {
	var out list[Project]
	err := c.backend.Call(ctx, http.MethodGet, "/project/dashboard/member", nil, &out, "failed to fetch member projects")
	return out, err
}

// Get returns one project.
func (c *Client) Get(ctx context.Context, id string) (*Project, error) {
	endpoint, err := projectPath(id)
	if err != nil {
		return nil, err
	}
	var out item[Project]
	if err := c.backend.Call(ctx, http.MethodGet, endpoint, nil, &out, "failed to fetch project details"); err != nil {
		return nil, err
	}
	return &out.value, nil
}

// MyApplications returns the applications the current user submitted.
func (c *Client) MyApplications(ctx context.Context) ([]Application, error) {
	var out list[Application]
	err := c.backend.Call(ctx, http.MethodGet, "/project/applications/my", nil, &out, "failed to fetch your applications")
	return out, err
}

// Applications returns the applications for a project the user owns.
func (c *Client) Applications(ctx context.Context, projectID string) ([]Application, error) {
	endpoint, err := projectPath(projectID, "applications")
	if err != nil {
		return nil, err
	}
	var out list[Application]
	err = c.backend.Call(ctx, http.MethodGet, endpoint, nil, &out, "failed to fetch project applications")
	return out, err
}

// Create validates data and creates a project.
func (c *Client) Create(ctx context.Context, data CreateProjectData) (*Project, error) {
	if err := data.Validate(); err != nil {
		return nil, invalid(err)
	}
	var out item[Project]
	if err := c.backend.Call(ctx, http.MethodPost, "/project", data, &out, "failed to create project"); err != nil {
		return nil, err
	}
	return &out.value, nil
}

// Update changes the given fields of a project.
func (c *Client) Update(ctx context.Context, id string, data UpdateProjectData) (*Project, error) {
	endpoint, err := projectPath(id)
	if err != nil {
		return nil, err
	}
	if err := data.Validate(); err != nil {
		return nil, invalid(err)
	}
	var out item[Project]
	if err := c.backend.Call(ctx, http.MethodPut, endpoint, data, &out, "failed to update project"); err != nil {
		return nil, err
	}
	return &out.value, nil
}

// Delete removes a project and returns the server's confirmation message.
func (c *Client) Delete(ctx context.Context, id string) (string, error) {
	endpoint, err := projectPath(id)
	if err != nil {
		return "", err
	}
	return c.message(ctx, http.MethodDelete, endpoint, nil, "failed to delete project", "project deleted")
}

// Apply submits an application to a project.
func (c *Client) Apply(ctx context.Context, projectID string, req ApplyRequest) (*Application, error) {
	endpoint, err := projectPath(projectID, "apply")
	if err != nil {
		return nil, err
	}
	req.Position = strings.TrimSpace(req.Position)
	req.Introduction = strings.TrimSpace(req.Introduction)
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	var out item[Application]
	if err := c.backend.Call(ctx, http.MethodPost, endpoint, req, &out, "failed to submit application"); err != nil {
		return nil, err
	}
	return &out.value, nil
}

// Withdraw cancels the current user's application to a project.
func (c *Client) Withdraw(ctx context.Context, projectID string) (string, error) {
	endpoint, err := projectPath(projectID, "applications")
	if err != nil {
		return "", err
	}
	return c.message(ctx, http.MethodDelete, endpoint, nil, "failed to withdraw application", "application withdrawn")
}

// Decide accepts or rejects an applicant.
func (c *Client) Decide(ctx context.Context, projectID, userID string, status ApplicationStatus) (string, error) {
	endpoint, err := projectPath(projectID, "applications", userID)
	if err != nil {
		return "", err
	}
	if status != StatusAccepted && status != StatusRejected {
		return "", invalid(errors.New("status must be accepted or rejected"))
	}
	payload := map[string]any{"status": status}
	return c.message(ctx, http.MethodPut, endpoint, payload, "failed to update application status", "application status updated")
}

// MyPage fetches owned projects, joined projects and the user's
// applications concurrently. The first failure cancels the rest.
func (c *Client) MyPage(ctx context.Context) (*MyPage, error) {
	page := &MyPage{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		owned, err := c.Owned(ctx)
		page.Owned = owned
		return err
	})
	g.Go(func() error {
		member, err := c.Member(ctx)
		page.Member = member
		return err
	})
	g.Go(func() error {
		apps, err := c.MyApplications(ctx)
		page.Applications = apps
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return page, nil
}

func (c *Client) message(ctx context.Context, method, endpoint string, payload any, fallback, success string) (string, error) {
	var out messageReply
	if err := c.backend.Call(ctx, method, endpoint, payload, &out, fallback); err != nil {
		return "", err
	}
	if out.Message != "" {
		return out.Message, nil
	}
	return success, nil
}

func projectPath(id string, rest ...string) (string, error) {
	parts := append([]string{id}, rest...)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return "", invalid(errors.New("project and user IDs are required"))
		}
		parts[i] = url.PathEscape(p)
	}
	return "/project/" + strings.Join(parts, "/"), nil
}

func invalid(err error) error {
	rich := teamauth.ErrValidation.Clone()
	rich.Message = firstMessage(err)
	rich.Source = err
	return rich
}

// firstMessage picks one field message in a stable order so callers can
// show it directly.
func firstMessage(err error) string {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	for _, key := range []string{"title", "description", "startDate", "deadline", "difficulty", "positions", "position", "introduction", "portfolio"} {
		if fe, ok := verrs[key]; ok && fe != nil {
			return fe.Error()
		}
	}
	return verrs.Error()
}
