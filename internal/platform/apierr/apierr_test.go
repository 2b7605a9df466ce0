package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOfUnwraps(t *testing.T) {
	base := BadRequest("invalid_mode", "unknown backend mode %q", "fax")
	wrapped := fmt.Errorf("bind: %w", base)
	if StatusOf(wrapped) != http.StatusBadRequest {
		t.Fatalf("status = %d", StatusOf(wrapped))
	}
	if StatusOf(errors.New("plain")) != http.StatusInternalServerError {
		t.Fatalf("plain errors should be 500")
	}
	if base.Error() != `unknown backend mode "fax"` {
		t.Fatalf("message = %q", base.Error())
	}
	if (&Error{Status: 404}).Error() != "api error (404)" || (&Error{Code: "x"}).Error() != "x" {
		t.Fatalf("fallback messages wrong")
	}
	if !Public(http.StatusTooManyRequests) || Public(http.StatusBadGateway) {
		t.Fatalf("public classification wrong")
	}
}
