package validate

import "testing"

func TestCheck(t *testing.T) {
	type payload struct {
		Title string `json:"title" validate:"required"`
		Price int    `json:"price" validate:"gte=0"`
	}

	if err := Check(payload{Title: "compilers", Price: 10}); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	if err := Check(payload{Price: 10}); err == nil {
		t.Fatal("missing required field accepted")
	}

	if err := Check(payload{Title: "compilers", Price: -1}); err == nil {
		t.Fatal("negative price accepted")
	}
}

func TestCheckID(t *testing.T) {
	if err := CheckID(GenerateID()); err != nil {
		t.Fatalf("generated id rejected: %v", err)
	}

	if err := CheckID("not-an-id"); err == nil {
		t.Fatal("malformed id accepted")
	}
}
