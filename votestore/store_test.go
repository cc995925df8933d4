// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package votestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// storeTests runs the Store contract against any implementation.
func storeTests(t *testing.T, store Store) {
	ctx := context.Background()
	key := DeriveKey("vote", "LUNCH1", "0xa11ce")

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := store.Get(ctx, key); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get err = %v, want ErrNotFound", err)
		}
	})

	t.Run("PutGet", func(t *testing.T) {
		if err := store.Put(ctx, key, []byte("candidate:2")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		value, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(value) != "candidate:2" {
			t.Errorf("value = %q", value)
		}
	})

	t.Run("PutReplaces", func(t *testing.T) {
		if err := store.Put(ctx, key, []byte("candidate:3")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		value, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(value) != "candidate:3" {
			t.Errorf("value = %q", value)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := store.Delete(ctx, key); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := store.Get(ctx, key); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get after delete err = %v, want ErrNotFound", err)
		}
		// Absent key deletes cleanly.
		if err := store.Delete(ctx, key); err != nil {
			t.Fatalf("second Delete: %v", err)
		}
	})

	t.Run("DeleteAll", func(t *testing.T) {
		keys := []Key{
			DeriveKey("vote", "A", "0x01"),
			DeriveKey("vote", "B", "0x02"),
		}
		for _, k := range keys {
			if err := store.Put(ctx, k, []byte("x")); err != nil {
				t.Fatalf("Put: %v", err)
			}
		}
		if err := store.DeleteAll(ctx); err != nil {
			t.Fatalf("DeleteAll: %v", err)
		}
		for _, k := range keys {
			if _, err := store.Get(ctx, k); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get after DeleteAll err = %v, want ErrNotFound", err)
			}
		}
	})
}

func TestMemory(t *testing.T) {
	storeTests(t, NewMemory())
}

func TestSQLite(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "votes.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer store.Close()
	storeTests(t, store)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "votes.db")
	key := DeriveKey("vote", "LUNCH1", "0xa11ce")

	store, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := store.Put(ctx, key, []byte("candidate:1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	value, err := reopened.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(value) != "candidate:1" {
		t.Errorf("value = %q", value)
	}
}

func TestDeriveKey(t *testing.T) {
	base := DeriveKey("vote", "LUNCH1", "0xa11ce")
	if base == DeriveKey("vote", "LUNCH1", "0xb0b") {
		t.Error("keys collide across wallets")
	}
	if base == DeriveKey("vote", "LUNCH2", "0xa11ce") {
		t.Error("keys collide across rooms")
	}
	if base == DeriveKey("pw", "LUNCH1", "0xa11ce") {
		t.Error("keys collide across namespaces")
	}
	if base != DeriveKey("vote", "LUNCH1", "0xa11ce") {
		t.Error("derivation is not deterministic")
	}
}
