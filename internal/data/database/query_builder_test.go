package database

import (
	"reflect"
	"testing"
)

func TestBuildListQuery_BasicSelect(t *testing.T) {
	query, args := BuildListQuery(NewListQueryOptions("webhooks"))

	if want := `SELECT * FROM "webhooks"`; query != want {
		t.Errorf("Expected query %q, got %q", want, query)
	}
	if len(args) != 0 {
		t.Errorf("Expected 0 args, got %d", len(args))
	}
}

func TestBuildListQuery_ColumnsConditionsAndPaging(t *testing.T) {
	opts := NewListQueryOptions("analysis_jobs",
		WithColumns("id", "status"),
		WithCondition(WhereCond("organization_id", Equal, "org-1")),
		WithCondition(WhereCond("status", Any, []string{"pending", "processing"})),
		WithOrderBy("seq", "asc"),
		WithOrderBy("created_at", "sideways"),
		WithLimit(10),
		WithOffset(0),
	)
	query, args := BuildListQuery(opts)

	want := `SELECT "id", "status" FROM "analysis_jobs" WHERE "organization_id" = $1 AND "status" = ANY($2)` +
		` ORDER BY "seq" ASC, "created_at" LIMIT $3 OFFSET $4`
	if query != want {
		t.Errorf("query mismatch\n got: %s\nwant: %s", query, want)
	}
	wantArgs := []any{"org-1", []string{"pending", "processing"}, 10, 0}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Errorf("args = %#v, want %#v", args, wantArgs)
	}
}

func TestBuildListQuery_CountOnlyIgnoresPaging(t *testing.T) {
	opts := NewListQueryOptions("webhook_deliveries",
		WithCountOnly(),
		WithCondition(WhereCond("webhook_id", Equal, "w1")),
		WithOrderBy("created_at", "DESC"),
		WithLimit(5),
	)
	query, args := BuildListQuery(opts)

	if want := `SELECT COUNT(*) FROM "webhook_deliveries" WHERE "webhook_id" = $1`; query != want {
		t.Errorf("Expected query %q, got %q", want, query)
	}
	if len(args) != 1 {
		t.Errorf("Expected 1 arg, got %d", len(args))
	}
}

func TestBuildListQuery_SanitizesIdentifiers(t *testing.T) {
	opts := NewListQueryOptions(`jobs"; DROP TABLE x; --`,
		WithCondition(WhereCond(`a"b`, Equal, 1)),
	)
	query, _ := BuildListQuery(opts)

	want := `SELECT * FROM "jobs""; DROP TABLE x; --" WHERE "a""b" = $1`
	if query != want {
		t.Errorf("Expected query %q, got %q", want, query)
	}
}

func TestWithLimitRejectsNegative(t *testing.T) {
	query, args := BuildListQuery(NewListQueryOptions("t", WithLimit(-5), WithOffset(-1)))
	if query != `SELECT * FROM "t"` || len(args) != 0 {
		t.Errorf("negative paging should be ignored, got %q %v", query, args)
	}
}
