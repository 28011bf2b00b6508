package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the profile record behind an authenticated identity. Credentials
// and session issuance live in the external auth service; this side only
// stores what the shop needs to reference and contact an owner.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
