package projects_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	teamauth "github.com/teamup-ku/go-teamauth"
	"github.com/teamup-ku/go-teamauth/projects"
)

type recorded struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type backend struct {
	mu      sync.Mutex
	calls   []recorded
	replies map[string]string
	status  map[string]int
}

func (b *backend) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{Method: r.Method, Path: r.URL.EscapedPath(), Auth: r.Header.Get("Authorization")}
		if r.ContentLength > 0 {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&rec.Body))
		}
		b.mu.Lock()
		b.calls = append(b.calls, rec)
		b.mu.Unlock()

		key := r.Method + " " + rec.Path
		if status, ok := b.status[key]; ok {
			w.WriteHeader(status)
		}
		body, ok := b.replies[key]
		if !ok {
			body = `{}`
		}
		_, _ = w.Write([]byte(body))
	}
}

func (b *backend) last() recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[len(b.calls)-1]
}

func newClient(t *testing.T, b *backend, token string) *projects.Client {
	t.Helper()
	server := httptest.NewServer(b.handler(t))
	t.Cleanup(server.Close)

	tokens := teamauth.NewMemoryTokenStore()
	if token != "" {
		require.NoError(t, tokens.Set(context.Background(), token))
	}
	return projects.New(teamauth.NewBackendClient(server.URL,
		teamauth.WithTokenSource(teamauth.NewSessionContext(tokens)),
		teamauth.WithRequireToken(),
		teamauth.WithClientLogger(teamauth.NopLogger{}),
	))
}

func TestListAcceptsBareArrayAndEnvelope(t *testing.T) {
	b := &backend{replies: map[string]string{
		"GET /project":                  `[{"id":"p1","name":"TeamUp","limitBE":2,"currentBE":1}]`,
		"GET /project/dashboard/owner":  `{"success":true,"data":[{"id":"p2"}]}`,
		"GET /project/dashboard/member": `null`,
	}}
	client := newClient(t, b, "app-jwt")
	ctx := context.Background()

	all, err := client.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "TeamUp", all[0].Name)
	assert.Equal(t, 1, all[0].OpenSlots())
	assert.Equal(t, "Bearer app-jwt", b.last().Auth)

	owned, err := client.Owned(ctx)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "p2", owned[0].ID)

	member, err := client.Member(ctx)
	require.NoError(t, err)
	assert.Empty(t, member)
}

func TestRequiresSignedInUser(t *testing.T) {
	b := &backend{}
	client := newClient(t, b, "")

	_, err := client.List(context.Background())
	require.Error(t, err)
	assert.True(t, teamauth.IsTextCode(err, teamauth.TextCodeNotAuthenticated))
	assert.Empty(t, b.calls)
}

func TestGetEscapesID(t *testing.T) {
	b := &backend{replies: map[string]string{
		"GET /project/a%2Fb": `{"data":{"id":"a/b","name":"Escaped"}}`,
	}}
	client := newClient(t, b, "jwt")

	p, err := client.Get(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "Escaped", p.Name)

	_, err = client.Get(context.Background(), " ")
	assert.True(t, teamauth.IsTextCode(err, teamauth.TextCodeValidation))
}

func TestCreateValidatesLocally(t *testing.T) {
	b := &backend{replies: map[string]string{"POST /project": `{"id":"p9","name":"New"}`}}
	client := newClient(t, b, "jwt")
	ctx := context.Background()

	_, err := client.Create(ctx, projects.CreateProjectData{Title: "New"})
	require.Error(t, err)
	assert.Equal(t, "enter a description", teamauth.UserMessage(err))
	assert.Empty(t, b.calls)

	p, err := client.Create(ctx, projects.CreateProjectData{
		Title:       "New",
		Description: "a project",
		StartDate:   "2026-03-02",
		Deadline:    "2026-02-20",
		Duration:    "3 months",
		Difficulty:  "MEDIUM",
		Positions:   projects.Positions{Backend: "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "p9", p.ID)
	assert.Equal(t, "New", b.last().Body["title"])
	assert.Equal(t, map[string]any{"backend": "2"}, b.last().Body["positions"])
}

func TestUpdateSendsOnlyChangedFields(t *testing.T) {
	b := &backend{replies: map[string]string{"PUT /project/p1": `{"id":"p1","status":"CLOSED"}`}}
	client := newClient(t, b, "jwt")
	ctx := context.Background()

	_, err := client.Update(ctx, "p1", projects.UpdateProjectData{})
	assert.Equal(t, "nothing to update", teamauth.UserMessage(err))

	status := "CLOSED"
	p, err := client.Update(ctx, "p1", projects.UpdateProjectData{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "CLOSED", p.Status)
	assert.Equal(t, map[string]any{"status": "CLOSED"}, b.last().Body)
}

func TestApplyWithdrawDecide(t *testing.T) {
	b := &backend{replies: map[string]string{
		"POST /project/p1/apply":          `{"id":"a1","projectId":"p1","position":"BACKEND","status":"pending"}`,
		"DELETE /project/p1/applications": `{"message":"Application withdrawn"}`,
		"PUT /project/p1/applications/u2": ``,
	}}
	client := newClient(t, b, "jwt")
	ctx := context.Background()

	_, err := client.Apply(ctx, "p1", projects.ApplyRequest{Position: "BACKEND"})
	assert.Equal(t, "introduce yourself", teamauth.UserMessage(err))

	app, err := client.Apply(ctx, "p1", projects.ApplyRequest{Position: " BACKEND ", Introduction: "hi"})
	require.NoError(t, err)
	assert.Equal(t, projects.StatusPending, app.Status)
	assert.Equal(t, "BACKEND", b.last().Body["position"])

	msg, err := client.Withdraw(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Application withdrawn", msg)

	msg, err = client.Decide(ctx, "p1", "u2", projects.StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, "application status updated", msg)
	assert.Equal(t, map[string]any{"status": "accepted"}, b.last().Body)

	_, err = client.Decide(ctx, "p1", "u2", projects.StatusPending)
	assert.True(t, teamauth.IsTextCode(err, teamauth.TextCodeValidation))
}

func TestDeleteReportsBackendMessage(t *testing.T) {
	b := &backend{
		replies: map[string]string{
			"DELETE /project/p1": `{"message":"only the owner can delete this project"}`,
			"DELETE /project/p2": ``,
		},
		status: map[string]int{
			"DELETE /project/p1": http.StatusForbidden,
			"DELETE /project/p2": http.StatusInternalServerError,
		},
	}
	client := newClient(t, b, "jwt")

	_, err := client.Delete(context.Background(), "p1")
	require.Error(t, err)
	assert.True(t, teamauth.IsTextCode(err, teamauth.TextCodeBackend))
	assert.Equal(t, "only the owner can delete this project", teamauth.UserMessage(err))

	_, err = client.Delete(context.Background(), "p2")
	assert.Equal(t, "failed to delete project", teamauth.UserMessage(err))
}

func TestMyPageFetchesConcurrently(t *testing.T) {
	b := &backend{replies: map[string]string{
		"GET /project/dashboard/owner":  `[{"id":"o1"}]`,
		"GET /project/dashboard/member": `[{"id":"m1"},{"id":"m2"}]`,
		"GET /project/applications/my":  `[{"id":"a1","status":"accepted"}]`,
	}}
	client := newClient(t, b, "jwt")

	page, err := client.MyPage(context.Background())
	require.NoError(t, err)
	assert.Len(t, page.Owned, 1)
	assert.Len(t, page.Member, 2)
	require.Len(t, page.Applications, 1)
	assert.Equal(t, projects.StatusAccepted, page.Applications[0].Status)
	assert.Len(t, b.calls, 3)
}

func TestMyPageFailsWhenAnyPartFails(t *testing.T) {
	b := &backend{
		replies: map[string]string{"GET /project/dashboard/member": `{"message":"boom"}`},
		status:  map[string]int{"GET /project/dashboard/member": http.StatusInternalServerError},
	}
	client := newClient(t, b, "jwt")

	_, err := client.MyPage(context.Background())
	require.Error(t, err)
	assert.Equal(t, "boom", teamauth.UserMessage(err))
}
