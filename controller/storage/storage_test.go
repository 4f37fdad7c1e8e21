package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "garden-pi.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.CreateBucket("items"); err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	return s
}

func TestStoreCRUD(t *testing.T) {
	s := newTestStore(t)

	var created item
	if err := s.Create("items", func(id string) interface{} {
		created = item{ID: id, Name: "first"}
		return &created
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != "1" {
		t.Errorf("expected sequence id 1, got %q", created.ID)
	}

	var got item
	if err := s.Get("items", created.ID, &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "first" {
		t.Errorf("expected name 'first', got %q", got.Name)
	}

	got.Name = "renamed"
	if err := s.Update("items", got.ID, &got); err != nil {
		t.Fatalf("update: %v", err)
	}
	var again item
	if err := s.Get("items", got.ID, &again); err != nil {
		t.Fatal(err)
	}
	if again.Name != "renamed" {
		t.Errorf("update not persisted, got %q", again.Name)
	}

	count := 0
	if err := s.List("items", func(_ string, _ []byte) error {
		count++
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 record, got %d", count)
	}

	if err := s.Delete("items", got.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Get("items", got.ID, &again); !errors.Is(err, ErrDoesNotExist) {
		t.Errorf("expected ErrDoesNotExist after delete, got %v", err)
	}
}

func TestStoreNotFound(t *testing.T) {
	s := newTestStore(t)

	var i item
	if err := s.Get("items", "99", &i); !errors.Is(err, ErrDoesNotExist) {
		t.Errorf("get: expected ErrDoesNotExist, got %v", err)
	}
	if err := s.Update("items", "99", &i); !errors.Is(err, ErrDoesNotExist) {
		t.Errorf("update: expected ErrDoesNotExist, got %v", err)
	}
	if err := s.Delete("items", "99"); !errors.Is(err, ErrDoesNotExist) {
		t.Errorf("delete: expected ErrDoesNotExist, got %v", err)
	}
}

func TestStoreCreateWithID(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateWithID("items", "master", &item{ID: "master", Name: "m"}); err != nil {
		t.Fatal(err)
	}
	var got item
	if err := s.Get("items", "master", &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "m" {
		t.Errorf("unexpected payload: %+v", got)
	}
}
