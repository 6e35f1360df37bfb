package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindMatchingThroughWrapping(t *testing.T) {
	err := fmt.Errorf("ask: %w", VectorStoreUnavailable(errors.New("qdrant down")))
	if !errors.Is(err, ErrVectorStoreUnavailable) {
		t.Fatalf("expected vector store unavailable, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("vector store error must not match not found")
	}
	if KindOf(err) != KindVectorStoreUnavailable {
		t.Fatalf("kind: want=%s got=%s", KindVectorStoreUnavailable, KindOf(err))
	}
	if StatusOf(err) != http.StatusServiceUnavailable {
		t.Fatalf("status: want=503 got=%d", StatusOf(err))
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("plain errors are internal")
	}
	if KindOf(nil) != "" {
		t.Fatalf("nil error has no kind")
	}
	if StatusOf(errors.New("boom")) != http.StatusInternalServerError {
		t.Fatalf("plain errors map to 500")
	}
}

func TestNotFoundAndDisabled(t *testing.T) {
	nf := NotFound("content %s", "abc")
	if !errors.Is(nf, ErrNotFound) || StatusOf(nf) != http.StatusNotFound {
		t.Fatalf("not found mapping broken: %v", nf)
	}
	if nf.Error() != "not_found: content abc" {
		t.Fatalf("message: got=%q", nf.Error())
	}
	if !errors.Is(Disabled(), ErrPipelineDisabled) {
		t.Fatalf("disabled mapping broken")
	}
}
