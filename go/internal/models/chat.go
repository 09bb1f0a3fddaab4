package models

// Role determines the badge shown next to a chat author
type Role string

const (
	RoleUser  Role = "user"
	RoleStaff Role = "staff"
	RoleAdmin Role = "admin"
)

// DefaultAvatar is used when a message carries no avatar url
const DefaultAvatar = "img/items/default-avatar.png"

// Badge returns the badge label for privileged roles and "" for everyone else.
func (r Role) Badge() string {
	switch r {
	case RoleAdmin:
		return "ADMIN"
	case RoleStaff:
		return "STAFF"
	default:
		return ""
	}
}

// ChatMessage is a single entry of the chat feed. IDs are strictly increasing
// in server order.
type ChatMessage struct {
	ID        int64     `json:"id"`
	UserID    ID        `json:"userId"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	Avatar    string    `json:"avatar,omitempty"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"createdAt"`
}

func (m ChatMessage) AvatarURL() string {
	if m.Avatar == "" {
		return DefaultAvatar
	}
	return m.Avatar
}

// TimeLabel renders the HH:MM label used by the feed, "--:--" without a timestamp.
func (m ChatMessage) TimeLabel() string {
	if m.CreatedAt.IsZero() {
		return "--:--"
	}
	return m.CreatedAt.Local().Format("15:04")
}
