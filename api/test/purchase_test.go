package test

import (
	"net/http"
	"testing"

	"github.com/plutov/paypal/v4"

	"github.com/opencampus/backend/core/course"
	"github.com/opencampus/backend/core/purchase"
	"github.com/opencampus/backend/validate"
)

func TestPurchaseCheckout(t *testing.T) {
	env, err := NewTestEnv(t, "purchase_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	env.CreateUser(t, "edu_1", "grace@example.com", "Grace", "Hopper")
	env.CreateUser(t, "stu_1", "ada@example.com", "Ada", "Lovelace")

	ct := &courseTest{TestEnv: env, educator: "edu_1"}
	c1 := ct.createCourseOK(t, "networks", 30)

	// Buying an unknown course fails before any money moves.
	pn := purchase.PurchaseNew{CourseID: validate.GenerateID()}
	if code := env.Do(t, http.MethodPost, "/purchases/stripe", Token("stu_1", "student"), pn, nil); code != http.StatusNotFound {
		t.Fatalf("checkout of unknown course: status code %d", code)
	}

	// PayPal flow: order, then capture fulfills through the same
	// idempotent path as the webhook.
	var ord paypal.Order
	pn = purchase.PurchaseNew{CourseID: c1.ID}
	if code := env.Do(t, http.MethodPost, "/purchases/paypal", Token("stu_1", "student"), pn, &ord); code != http.StatusOK {
		t.Fatalf("opening paypal checkout: status code %d", code)
	}

	r, err := http.NewRequest(http.MethodPost, env.URL+"/purchases/paypal/"+ord.ID+"/capture", nil)
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Authorization", "Bearer "+Token("stu_1", "student"))

	w, err := env.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusNoContent {
		t.Fatalf("capturing paypal order: status code %s", w.Status)
	}

	var enrolled []course.Course
	if code := env.Do(t, http.MethodGet, "/users/current/courses", Token("stu_1", "student"), nil, &enrolled); code != http.StatusOK {
		t.Fatalf("listing enrolled courses: status code %d", code)
	}
	if len(enrolled) != 1 || enrolled[0].ID != c1.ID {
		t.Fatalf("unexpected enrolled courses: %+v", enrolled)
	}

	// Buying a course twice is rejected at checkout.
	if code := env.Do(t, http.MethodPost, "/purchases/stripe", Token("stu_1", "student"), pn, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("checkout of enrolled course: status code %d", code)
	}

	// Purchases are visible to their owner and the course educator only.
	var purchaseID string
	const q = `SELECT purchase_id FROM purchases WHERE user_id = $1 AND course_id = $2`
	if err := env.DB.Get(&purchaseID, q, "stu_1", c1.ID); err != nil {
		t.Fatalf("finding purchase: %v", err)
	}

	var p purchase.Purchase
	if code := env.Do(t, http.MethodGet, "/purchases/"+purchaseID, Token("edu_1", "educator"), nil, &p); code != http.StatusOK {
		t.Fatalf("educator fetching purchase: status code %d", code)
	}
	if p.Status != purchase.Completed {
		t.Fatalf("expected completed purchase, got %s", p.Status)
	}

	if code := env.Do(t, http.MethodGet, "/purchases/"+purchaseID, Token("stu_2", "student"), nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("stranger fetching purchase: status code %d", code)
	}
}
