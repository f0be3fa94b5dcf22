package mongox

import (
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"

	"layoo/cmd/internal/retry"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	if Classify(nil) != nil {
		t.Fatalf("nil should stay nil")
	}

	dup := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key"}}}
	if err := Classify(dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	labeled := mongo.CommandError{Code: 112, Labels: []string{"TransientTransactionError"}}
	if err := Classify(labeled); !retry.IsTransient(err) {
		t.Fatalf("expected transient, got %v", err)
	}

	plain := errors.New("boom")
	if err := Classify(plain); err != plain {
		t.Fatalf("plain error should pass through, got %v", err)
	}

	if !IsNotFound(fmt.Errorf("wrap: %w", mongo.ErrNoDocuments)) {
		t.Fatalf("IsNotFound should unwrap")
	}
}
