package taskx

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestSQLStore_GetByID_NotFound(t *testing.T) {
	db, _ := sql.Open("sqlite", "file:taskx_nf?mode=memory&cache=shared")
	defer db.Close()
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	store := NewSQLStore(db)
	if rec, err := store.GetByID(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error, got rec=%#v err=nil", rec)
	}
}

func TestSQLStore_NilDB(t *testing.T) {
	store := NewSQLStore(nil)
	ctx := context.Background()
	if err := store.Migrate(ctx); err == nil {
		t.Fatalf("Migrate: expected error on nil db")
	}
	if err := store.MarkStarted(ctx, "x", time.Now()); err == nil {
		t.Fatalf("MarkStarted: expected error on nil db")
	}
	if _, err := store.GetByID(ctx, "x"); err == nil {
		t.Fatalf("GetByID: expected error on nil db")
	}
}

func TestSQLStore_MissingTable(t *testing.T) {
	db, _ := sql.Open("sqlite", "file:taskx_notable?mode=memory&cache=shared")
	defer db.Close()
	store := NewSQLStore(db)
	if err := store.InsertCreated(context.Background(), TaskRecord{ID: "a", Callable: "b", Queue: "c"}); err == nil {
		t.Fatalf("expected error without schema")
	}
}

func TestSQLStore_UpdateUnknownIDIsNoop(t *testing.T) {
	db, _ := sql.Open("sqlite", "file:taskx_noop?mode=memory&cache=shared")
	defer db.Close()
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	store := NewSQLStore(db)
	if err := store.MarkCompleted(context.Background(), "ghost", time.Now()); err != nil {
		t.Fatalf("MarkCompleted on unknown id: %v", err)
	}
}
