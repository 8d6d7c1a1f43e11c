package teamauth

import "time"

// User is the application user record returned by the backend.
type User struct {
	ID              string      `json:"id"`
	IdentityUID     string      `json:"supabaseUid,omitempty"`
	AuthProvider    string      `json:"authProvider,omitempty"`
	Email           string      `json:"email,omitempty"`
	Name            string      `json:"name,omitempty"`
	Phone           string      `json:"phone,omitempty"`
	GithubID        string      `json:"githubId,omitempty"`
	ProfileImageURL string      `json:"profileImageUrl,omitempty"`
	TechStacks      []string    `json:"techStacks,omitempty"`
	Positions       []string    `json:"positions,omitempty"`
	Proficiency     Proficiency `json:"proficiency,omitempty"`
	Portfolio       *Portfolio  `json:"portfolio,omitempty"`
	CreatedAt       *time.Time  `json:"createdAt,omitempty"`
	UpdatedAt       *time.Time  `json:"updatedAt,omitempty"`
}

// DisplayName falls back to the mailbox part of the email.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	for i := 0; i < len(u.Email); i++ {
		if u.Email[i] == '@' {
			return u.Email[:i]
		}
	}
	return u.Email
}
