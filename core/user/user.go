package user

import "time"

// User mirrors a directory account. The ID is assigned by the Identity
// Directory and rows exist only because the directory announced them.
type User struct {
	ID        string    `json:"id" db:"user_id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	ImageURL  string    `json:"imageUrl" db:"image_url"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type UserUp struct {
	ID        string    `db:"user_id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	ImageURL  string    `db:"image_url"`
	UpdatedAt time.Time `db:"updated_at"`
}
