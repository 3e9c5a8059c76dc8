package target

import (
	"testing"

	"tabimport/internal/mapping"
)

func TestBuildInsertPlaceholderCount(t *testing.T) {
	r := &GenericRepository{config: &mapping.Config{
		TargetTable: "widgets",
		Columns: []mapping.ColumnMapping{
			{DBColumn: "name", Type: mapping.TypeString},
			{DBColumn: "qty", Type: mapping.TypeInt},
		},
	}}
	cols := r.columnOrder()
	query, args := r.buildInsert(cols, []Record{
		{"name": "widget-a", "qty": 3},
		{"name": "widget-b", "qty": 5},
	})
	if len(args) != 8 {
		t.Fatalf("args = %d, want 8 (2 rows x (id,job_id,name,qty))", len(args))
	}
	if want := "INSERT INTO widgets (id, job_id, name, qty) VALUES "; query[:len(want)] != want {
		t.Fatalf("query prefix = %q, want %q", query[:len(want)], want)
	}
}

func TestFKLookupColumnDefaultsToID(t *testing.T) {
	r := &GenericRepository{config: &mapping.Config{
		TargetTable: "widgets",
		Columns:     []mapping.ColumnMapping{{DBColumn: "name", Type: mapping.TypeString}},
	}}
	if got := r.fkLookupColumn("categories"); got != "id" {
		t.Fatalf("fkLookupColumn = %q, want id", got)
	}
}

func TestFKLookupColumnFromMapping(t *testing.T) {
	r := &GenericRepository{config: &mapping.Config{
		TargetTable: "widgets",
		Columns: []mapping.ColumnMapping{
			{DBColumn: "category_id", Type: mapping.TypeFK, FK: &mapping.FK{Table: "categories", LookupColumn: "slug"}},
		},
	}}
	if got := r.fkLookupColumn("categories"); got != "slug" {
		t.Fatalf("fkLookupColumn = %q, want slug", got)
	}
}
