package weberr

import (
	"errors"
	"net/http"
	"testing"
)

func TestResponseMapping(t *testing.T) {
	base := errors.New("missing row")

	err := NotFound(base)

	body, status, ok := Response(err)
	if !ok {
		t.Fatal("expected a response-carrying error")
	}
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if body.(*ErrorResponse).Error == "" {
		t.Fatal("expected a response body message")
	}

	if !errors.Is(err, base) {
		t.Fatal("wrapping lost the original error")
	}
}

func TestPlainErrorHasNoResponse(t *testing.T) {
	if _, _, ok := Response(errors.New("boom")); ok {
		t.Fatal("plain error should not carry a response")
	}
}
