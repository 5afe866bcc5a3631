package course

import "time"

type Course struct {
	ID           string    `json:"id" db:"course_id"`
	EducatorID   string    `json:"educatorId" db:"educator_id"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description" db:"description"`
	ThumbnailURL string    `json:"thumbnailUrl" db:"thumbnail_url"`
	Price        int       `json:"price" db:"price"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
	Version      int       `json:"-" db:"version"`
}

type CourseNew struct {
	Title        string `json:"title" validate:"required"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnailUrl" validate:"omitempty,url"`
	Price        int    `json:"price" validate:"gte=0,lte=100000"`
}

type CourseUp struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	ThumbnailURL *string `json:"thumbnailUrl" validate:"omitempty,url"`
	Price        *int    `json:"price" validate:"omitempty,gte=0,lte=100000"`
}

// Dashboard aggregates an educator's catalog for their home screen.
type Dashboard struct {
	TotalCourses  int              `json:"totalCourses"`
	TotalEarnings int              `json:"totalEarnings"`
	Enrollments   []StudentSummary `json:"enrolledStudents"`
}

// StudentSummary is one student's presence in one of the educator's courses.
type StudentSummary struct {
	CourseTitle  string `json:"courseTitle" db:"title"`
	StudentName  string `json:"studentName" db:"name"`
	StudentImage string `json:"studentImageUrl" db:"image_url"`
}

// EnrollmentRecord pairs a student with the purchase that enrolled them.
type EnrollmentRecord struct {
	StudentName  string    `json:"studentName" db:"name"`
	StudentImage string    `json:"studentImageUrl" db:"image_url"`
	CourseTitle  string    `json:"courseTitle" db:"title"`
	PurchaseDate time.Time `json:"purchaseDate" db:"purchase_date"`
}
