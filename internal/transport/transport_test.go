package transport

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindSurvivesWrapping(t *testing.T) {
	base := errors.New("org.bluez.Error.NotPermitted")
	err := fmt.Errorf("engine: scan: %w", NewError("scan", KindPermissionDenied, base))

	if !IsTransportError(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindPermissionDenied {
		t.Fatalf("expected permission_denied, got %s ok=%v", kind, ok)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected underlying error to unwrap")
	}
	if IsTransportError(base) {
		t.Fatalf("expected plain error not to be classified")
	}
}
