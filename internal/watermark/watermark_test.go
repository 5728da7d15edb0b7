// Mercatus - Retail Orders ETL and Dimensional Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mercatus

package watermark

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryStore(t *testing.T) {
	t.Run("returns nil when nothing saved", func(t *testing.T) {
		store := NewInMemoryStore()
		ctx := context.Background()

		got, err := store.Get(ctx, "customers")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != nil {
			t.Errorf("Get() = %v, want nil", got)
		}
	})

	t.Run("saves and loads per entity", func(t *testing.T) {
		store := NewInMemoryStore()
		ctx := context.Background()

		mark := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
		if err := store.Set(ctx, "customers", mark); err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		got, err := store.Get(ctx, "customers")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got == nil || !got.Equal(mark) {
			t.Errorf("Get() = %v, want %v", got, mark)
		}

		// Other entities are untouched.
		other, err := store.Get(ctx, "products")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if other != nil {
			t.Errorf("Get(products) = %v, want nil", other)
		}
	})

	t.Run("rejects backwards movement", func(t *testing.T) {
		store := NewInMemoryStore()
		ctx := context.Background()

		mark := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
		if err := store.Set(ctx, "customers", mark); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := store.Set(ctx, "customers", mark.Add(-time.Hour)); err == nil {
			t.Fatal("Set() with earlier watermark should fail")
		}
		// Same value is a no-op, not a violation.
		if err := store.Set(ctx, "customers", mark); err != nil {
			t.Errorf("Set() with equal watermark error = %v", err)
		}
	})

	t.Run("clear forces full re-read", func(t *testing.T) {
		store := NewInMemoryStore()
		ctx := context.Background()

		mark := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
		if err := store.Set(ctx, "customers", mark); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := store.Clear(ctx, "customers"); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}

		got, err := store.Get(ctx, "customers")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != nil {
			t.Errorf("Get() after Clear() = %v, want nil", got)
		}

		// An earlier mark is allowed again after clearing.
		if err := store.Set(ctx, "customers", mark.Add(-time.Hour)); err != nil {
			t.Errorf("Set() after Clear() error = %v", err)
		}
	})
}

func TestBadgerStore(t *testing.T) {
	store, db, err := Open(t.TempDir(), false)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	got, err := store.Get(ctx, "customers")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %v, want nil", got)
	}

	mark := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	if err := store.Set(ctx, "customers", mark); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err = store.Get(ctx, "customers")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || !got.Equal(mark) {
		t.Errorf("Get() = %v, want %v", got, mark)
	}

	if err := store.Set(ctx, "customers", mark.Add(-time.Hour)); err == nil {
		t.Fatal("Set() with earlier watermark should fail")
	}

	if err := store.Clear(ctx, "customers"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	// Idempotent.
	if err := store.Clear(ctx, "customers"); err != nil {
		t.Fatalf("Clear() re-run error = %v", err)
	}

	got, err = store.Get(ctx, "customers")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() after Clear() = %v, want nil", got)
	}
}
