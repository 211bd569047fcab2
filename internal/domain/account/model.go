package account

import (
	"time"

	"github.com/google/uuid"
)

// User is the persisted principal behind a session. Rows are created on the
// first successful login and never updated from credentials afterwards.
type User struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
