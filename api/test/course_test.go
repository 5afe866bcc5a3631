package test

import (
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/opencampus/backend/core/course"
)

type courseTest struct {
	*TestEnv
	educator string
}

func (ct *courseTest) createCourseOK(t *testing.T, title string, price int) course.Course {
	t.Helper()

	cn := course.CourseNew{
		Title:        title,
		Description:  "a course about " + title,
		ThumbnailURL: "https://img.example.com/" + title,
		Price:        price,
	}

	var crs course.Course
	code := ct.Do(t, http.MethodPost, "/courses", Token(ct.educator, "educator"), cn, &crs)
	if code != http.StatusCreated {
		t.Fatalf("creating course: status code %d", code)
	}

	return crs
}

func TestCourse(t *testing.T) {
	env, err := NewTestEnv(t, "course_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	env.CreateUser(t, "edu_1", "grace@example.com", "Grace", "Hopper")
	env.CreateUser(t, "edu_2", "alan@example.com", "Alan", "Turing")

	ct := &courseTest{TestEnv: env, educator: "edu_1"}

	c1 := ct.createCourseOK(t, "compilers", 50)
	c2 := ct.createCourseOK(t, "databases", 70)

	// The catalog is public.
	var listed []course.Course
	if code := env.Do(t, http.MethodGet, "/courses", "", nil, &listed); code != http.StatusOK {
		t.Fatalf("listing courses: status code %d", code)
	}

	ignore := cmpopts.IgnoreFields(course.Course{}, "CreatedAt", "UpdatedAt")
	if diff := cmp.Diff([]course.Course{c1, c2}, listed, ignore); diff != "" {
		t.Fatalf("unexpected catalog: %s", diff)
	}

	var shown course.Course
	if code := env.Do(t, http.MethodGet, "/courses/"+c1.ID, "", nil, &shown); code != http.StatusOK {
		t.Fatalf("showing course: status code %d", code)
	}
	if shown.ID != c1.ID || shown.Title != "compilers" {
		t.Fatalf("unexpected course: %+v", shown)
	}

	// Students cannot author.
	cn := course.CourseNew{Title: "forbidden", Price: 10}
	if code := env.Do(t, http.MethodPost, "/courses", Token("edu_1", "student"), cn, nil); code != http.StatusUnauthorized {
		t.Fatalf("student creating course: status code %d", code)
	}

	// Another educator cannot edit someone else's course.
	title := "stolen"
	cu := course.CourseUp{Title: &title}
	if code := env.Do(t, http.MethodPut, "/courses/"+c1.ID, Token("edu_2", "educator"), cu, nil); code != http.StatusUnauthorized {
		t.Fatalf("foreign educator updating course: status code %d", code)
	}

	title = "compilers II"
	price := 60
	cu = course.CourseUp{Title: &title, Price: &price}
	var up course.Course
	if code := env.Do(t, http.MethodPut, "/courses/"+c1.ID, Token("edu_1", "educator"), cu, &up); code != http.StatusOK {
		t.Fatalf("updating course: status code %d", code)
	}
	if up.Title != "compilers II" || up.Price != 60 {
		t.Fatalf("unexpected course after update: %+v", up)
	}

	var owned []course.Course
	if code := env.Do(t, http.MethodGet, "/educator/courses", Token("edu_1", "educator"), nil, &owned); code != http.StatusOK {
		t.Fatalf("listing owned courses: status code %d", code)
	}
	if len(owned) != 2 {
		t.Fatalf("expected 2 owned courses, got %d", len(owned))
	}

	// A fresh catalog has an empty dashboard.
	var dash course.Dashboard
	if code := env.Do(t, http.MethodGet, "/educator/dashboard", Token("edu_2", "educator"), nil, &dash); code != http.StatusOK {
		t.Fatalf("fetching dashboard: status code %d", code)
	}
	if dash.TotalCourses != 0 || dash.TotalEarnings != 0 || len(dash.Enrollments) != 0 {
		t.Fatalf("unexpected dashboard: %+v", dash)
	}
}
