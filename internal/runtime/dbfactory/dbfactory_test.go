package dbfactory

import (
	"context"
	"testing"
)

func TestGetRejectsEmptyURL(t *testing.T) {
	pool := NewPool()
	if _, err := pool.Get(context.Background(), ""); err == nil {
		t.Fatal("expected an error for an empty connection string")
	}
}

func TestFactoryClosureDelegatesToPool(t *testing.T) {
	pool := NewPool()
	factory := pool.Factory("")

	if _, err := factory(context.Background()); err == nil {
		t.Fatal("expected the bound factory to surface the same empty-url error")
	}
}

func TestCloseAllOnEmptyPoolIsNoop(t *testing.T) {
	pool := NewPool()
	if err := pool.CloseAll(); err != nil {
		t.Fatalf("expected no error closing an empty pool, got %v", err)
	}
}
