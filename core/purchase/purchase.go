package purchase

import "time"

type Status string

// A purchase leaves Pending at most once; Completed and Failed are terminal.
const (
	Pending   Status = "pending"
	Completed Status = "completed"
	Failed    Status = "failed"
)

type Purchase struct {
	ID         string    `json:"id" db:"purchase_id"`
	UserID     string    `json:"userId" db:"user_id"`
	CourseID   string    `json:"courseId" db:"course_id"`
	ProviderID string    `json:"-" db:"provider_id"`
	Amount     int       `json:"amount" db:"amount"`
	Status     Status    `json:"status" db:"status"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}

type PurchaseNew struct {
	CourseID string `json:"courseId" validate:"required"`
}

type StatusUp struct {
	ID        string    `db:"purchase_id"`
	Status    Status    `db:"status"`
	UpdatedAt time.Time `db:"updated_at"`
}
