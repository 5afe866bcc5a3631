package test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/opencampus/backend/core/course"
	"github.com/opencampus/backend/core/purchase"
	"github.com/opencampus/backend/core/user"
	"github.com/opencampus/backend/validate"
)

type paymentTest struct {
	*TestEnv
}

// postPayment delivers a signed payment event referencing a payment intent.
func (pt *paymentTest) postPayment(t *testing.T, eventType string, paymentIntentID string, tamper bool) int {
	t.Helper()

	raw, err := json.Marshal(map[string]any{"id": paymentIntentID})
	if err != nil {
		t.Fatal(err)
	}

	evt := stripe.Event{
		APIVersion: "2022-11-15",
		Type:       eventType,
		Data: &stripe.EventData{
			Raw: json.RawMessage(raw),
		},
	}

	b, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   b,
		Secret:    pt.WebhookSecret,
		Timestamp: time.Now(),
	})

	if tamper {
		b = append(append([]byte(nil), b...), ' ')
	}

	r, err := http.NewRequest(http.MethodPost, pt.URL+"/webhooks/payments", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Stripe-Signature", signed.Header)

	w, err := pt.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	return w.StatusCode
}

// checkoutStripe opens a checkout for the student and returns the pending
// purchase id and the payment intent the mock ledger bound to it.
func (pt *paymentTest) checkoutStripe(t *testing.T, studentID string, courseID string) (string, string) {
	t.Helper()

	var url string
	pn := purchase.PurchaseNew{CourseID: courseID}
	if code := pt.Do(t, http.MethodPost, "/purchases/stripe", Token(studentID, "student"), pn, &url); code != http.StatusOK {
		t.Fatalf("opening stripe checkout: status code %d", code)
	}

	var purchaseID string
	const q = `SELECT purchase_id FROM purchases WHERE user_id = $1 AND course_id = $2`
	if err := pt.DB.Get(&purchaseID, q, studentID, courseID); err != nil {
		t.Fatalf("finding pending purchase: %v", err)
	}

	pi, ok := pt.Stripe.IntentFor(purchaseID)
	if !ok {
		t.Fatalf("mock ledger has no payment intent for purchase %s", purchaseID)
	}

	return purchaseID, pi
}

func (pt *paymentTest) fetchPurchase(t *testing.T, studentID string, id string) purchase.Purchase {
	t.Helper()

	var p purchase.Purchase
	if code := pt.Do(t, http.MethodGet, "/purchases/"+id, Token(studentID, "student"), nil, &p); code != http.StatusOK {
		t.Fatalf("fetching purchase: status code %d", code)
	}
	return p
}

func (pt *paymentTest) countEnrollments(t *testing.T) int {
	t.Helper()

	var n int
	if err := pt.DB.Get(&n, `SELECT COUNT(*) FROM enrollments`); err != nil {
		t.Fatalf("counting enrollments: %v", err)
	}
	return n
}

func TestPaymentWebhook(t *testing.T) {
	env, err := NewTestEnv(t, "payment_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	env.CreateUser(t, "edu_1", "grace@example.com", "Grace", "Hopper")
	env.CreateUser(t, "stu_1", "ada@example.com", "Ada", "Lovelace")

	ct := &courseTest{TestEnv: env, educator: "edu_1"}
	pt := &paymentTest{env}

	c1 := ct.createCourseOK(t, "compilers", 40)
	c2 := ct.createCourseOK(t, "databases", 70)

	purchaseID, pi := pt.checkoutStripe(t, "stu_1", c1.ID)

	// Success path: one delivery completes the purchase and enrolls.
	if code := pt.postPayment(t, "payment_intent.succeeded", pi, false); code != http.StatusOK {
		t.Fatalf("posting succeeded event: status code %d", code)
	}

	if p := pt.fetchPurchase(t, "stu_1", purchaseID); p.Status != purchase.Completed {
		t.Fatalf("expected completed purchase, got %s", p.Status)
	}

	var enrolled []course.Course
	if code := env.Do(t, http.MethodGet, "/users/current/courses", Token("stu_1", "student"), nil, &enrolled); code != http.StatusOK {
		t.Fatalf("listing enrolled courses: status code %d", code)
	}
	if len(enrolled) != 1 || enrolled[0].ID != c1.ID {
		t.Fatalf("unexpected enrolled courses: %+v", enrolled)
	}

	var students []user.User
	if code := env.Do(t, http.MethodGet, "/courses/"+c1.ID+"/students", Token("edu_1", "educator"), nil, &students); code != http.StatusOK {
		t.Fatalf("listing course students: status code %d", code)
	}
	if len(students) != 1 || students[0].ID != "stu_1" {
		t.Fatalf("unexpected course students: %+v", students)
	}

	// Redelivery converges to the same state with no duplicate memberships.
	if code := pt.postPayment(t, "payment_intent.succeeded", pi, false); code != http.StatusOK {
		t.Fatalf("redelivering succeeded event: status code %d", code)
	}
	if n := pt.countEnrollments(t); n != 1 {
		t.Fatalf("expected 1 enrollment after redelivery, got %d", n)
	}
	if p := pt.fetchPurchase(t, "stu_1", purchaseID); p.Status != purchase.Completed {
		t.Fatalf("expected completed purchase after redelivery, got %s", p.Status)
	}

	// A stale failure must not regress the terminal completed state.
	if code := pt.postPayment(t, "payment_intent.payment_failed", pi, false); code != http.StatusOK {
		t.Fatalf("posting stale failed event: status code %d", code)
	}
	if p := pt.fetchPurchase(t, "stu_1", purchaseID); p.Status != purchase.Completed {
		t.Fatalf("stale failure regressed status to %s", p.Status)
	}

	// An event whose correlation id matches no purchase mutates nothing.
	pt.Stripe.Bind("pi_unknown", validate.GenerateID())
	if code := pt.postPayment(t, "payment_intent.succeeded", "pi_unknown", false); code != http.StatusNotFound {
		t.Fatalf("posting unresolvable succeeded event: status code %d", code)
	}
	if n := pt.countEnrollments(t); n != 1 {
		t.Fatalf("unresolvable event mutated enrollments: %d", n)
	}

	// A failed event for an unknown purchase is acknowledged, not retried.
	if code := pt.postPayment(t, "payment_intent.payment_failed", "pi_unknown", false); code != http.StatusOK {
		t.Fatalf("posting unresolvable failed event: status code %d", code)
	}

	// Bad signature: rejected, nothing written.
	if code := pt.postPayment(t, "payment_intent.succeeded", pi, true); code != http.StatusBadRequest {
		t.Fatalf("posting tampered event: status code %d", code)
	}

	// Unhandled event kinds are acknowledged.
	if code := pt.postPayment(t, "charge.refunded", pi, false); code != http.StatusOK {
		t.Fatalf("posting unhandled event: status code %d", code)
	}

	// Failure path: a failed purchase stays failed even if a success
	// event arrives afterwards, and nobody gets enrolled.
	failedID, failedPI := pt.checkoutStripe(t, "stu_1", c2.ID)

	if code := pt.postPayment(t, "payment_intent.payment_failed", failedPI, false); code != http.StatusOK {
		t.Fatalf("posting failed event: status code %d", code)
	}
	if p := pt.fetchPurchase(t, "stu_1", failedID); p.Status != purchase.Failed {
		t.Fatalf("expected failed purchase, got %s", p.Status)
	}

	if code := pt.postPayment(t, "payment_intent.succeeded", failedPI, false); code != http.StatusOK {
		t.Fatalf("posting late succeeded event: status code %d", code)
	}
	if p := pt.fetchPurchase(t, "stu_1", failedID); p.Status != purchase.Failed {
		t.Fatalf("late success regressed status to %s", p.Status)
	}
	if n := pt.countEnrollments(t); n != 1 {
		t.Fatalf("late success enrolled a failed purchase: %d enrollments", n)
	}

	// The educator dashboard reflects exactly the completed purchase.
	var dash course.Dashboard
	if code := env.Do(t, http.MethodGet, "/educator/dashboard", Token("edu_1", "educator"), nil, &dash); code != http.StatusOK {
		t.Fatalf("fetching dashboard: status code %d", code)
	}
	if dash.TotalCourses != 2 || dash.TotalEarnings != 40 || len(dash.Enrollments) != 1 {
		t.Fatalf("unexpected dashboard: %+v", dash)
	}

	var recs []course.EnrollmentRecord
	if code := env.Do(t, http.MethodGet, "/educator/students", Token("edu_1", "educator"), nil, &recs); code != http.StatusOK {
		t.Fatalf("listing enrollment records: status code %d", code)
	}
	if len(recs) != 1 || recs[0].StudentName != "Ada Lovelace" || recs[0].CourseTitle != "compilers" {
		t.Fatalf("unexpected enrollment records: %+v", recs)
	}
}
