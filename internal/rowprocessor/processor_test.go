package rowprocessor

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"tabimport/internal/mapping"
	"tabimport/internal/spreadsheet"
)

type fakeLookup struct {
	existing map[string]uuid.UUID
	created  []string
}

func (f *fakeLookup) Lookup(ctx context.Context, table, value string) (uuid.UUID, bool, error) {
	id, ok := f.existing[value]
	return id, ok, nil
}

func (f *fakeLookup) CreatePlaceholder(ctx context.Context, table, value string) (uuid.UUID, error) {
	f.created = append(f.created, value)
	return uuid.New(), nil
}

func vehicleRow(t *testing.T, modelo, placa, ano, valor string) spreadsheet.Row {
	t.Helper()
	header := &spreadsheet.Header{Columns: []string{"modelo", "placa", "ano", "valor_fipe"}}
	return spreadsheet.Row{Header: header, Values: []string{modelo, placa, ano, valor}}
}

func resolveUniqueCols(t *testing.T, cfg *mapping.Config) []mapping.ColumnMapping {
	t.Helper()
	return uniqueColumnMappings(cfg, cfg.UniqueColumns())
}

func TestProcessRowAcceptsValidVehicle(t *testing.T) {
	p := &Processor{}
	cfg := mapping.Vehicle()
	row := vehicleRow(t, "Civic", "ABC1D23", "2020", "85000.00")

	outcome := p.processRow(context.Background(), cfg, Target{}, row, 0, resolveUniqueCols(t, cfg), map[string]bool{}, map[string]bool{})

	if outcome.reason != "" {
		t.Fatalf("processRow rejected valid row: %s", outcome.reason)
	}
	if outcome.record["placa"] != "ABC1D23" {
		t.Fatalf("record[placa] = %v, want ABC1D23", outcome.record["placa"])
	}
	if outcome.record["ano"] != int64(2020) {
		t.Fatalf("record[ano] = %v, want 2020", outcome.record["ano"])
	}
}

func TestProcessRowRejectsInvalidPlaca(t *testing.T) {
	p := &Processor{}
	cfg := mapping.Vehicle()
	row := vehicleRow(t, "Civic", "XYZ9999", "2020", "85000.00")

	outcome := p.processRow(context.Background(), cfg, Target{}, row, 0, resolveUniqueCols(t, cfg), map[string]bool{}, map[string]bool{})

	if outcome.reason == "" {
		t.Fatal("processRow accepted invalid placa")
	}
}

func TestProcessRowRejectsOutOfRangeYear(t *testing.T) {
	p := &Processor{}
	cfg := mapping.Vehicle()
	row := vehicleRow(t, "Civic", "ABC1D23", "1899", "85000.00")

	outcome := p.processRow(context.Background(), cfg, Target{}, row, 0, resolveUniqueCols(t, cfg), map[string]bool{}, map[string]bool{})

	if outcome.reason == "" {
		t.Fatal("processRow accepted out-of-range ano")
	}
}

func TestProcessRowRejectsNonPositiveValue(t *testing.T) {
	p := &Processor{}
	cfg := mapping.Vehicle()
	row := vehicleRow(t, "Civic", "ABC1D23", "2020", "-5.00")

	outcome := p.processRow(context.Background(), cfg, Target{}, row, 0, resolveUniqueCols(t, cfg), map[string]bool{}, map[string]bool{})

	if outcome.reason == "" {
		t.Fatal("processRow accepted non-positive valor_fipe")
	}
}

// TestProcessRowRejectsCrossFileDuplicate exercises the actual probe
// round-trip: existing is keyed the way VehicleRepository.ExistingValues
// returns it (LOWER()-folded, the same fold NormalizeKey applies), not a
// key the test happens to hand-pick to already match.
func TestProcessRowRejectsCrossFileDuplicate(t *testing.T) {
	p := &Processor{}
	cfg := mapping.Vehicle()
	uniqueCols := resolveUniqueCols(t, cfg)
	row := vehicleRow(t, "Civic", "ABC1D23", "2020", "85000.00")

	existingKey := compositeKey(uniqueCols, row)
	existing := map[string]bool{existingKey: true}
	outcome := p.processRow(context.Background(), cfg, Target{}, row, 0, uniqueCols, existing, map[string]bool{})

	if outcome.reason == "" {
		t.Fatal("processRow accepted a placa already present in the target table")
	}
}

func TestProcessRowRejectsIntraChunkDuplicate(t *testing.T) {
	p := &Processor{}
	cfg := mapping.Vehicle()
	uniqueCols := resolveUniqueCols(t, cfg)
	row1 := vehicleRow(t, "Civic", "ABC1D23", "2020", "85000.00")
	row2 := vehicleRow(t, "Gol", "ABC1D23", "2019", "45000.00")

	existing := map[string]bool{}
	seen := map[string]bool{}

	first := p.processRow(context.Background(), cfg, Target{}, row1, 0, uniqueCols, existing, seen)
	if first.reason != "" {
		t.Fatalf("first row rejected unexpectedly: %s", first.reason)
	}
	second := p.processRow(context.Background(), cfg, Target{}, row2, 1, uniqueCols, existing, seen)
	if second.reason == "" {
		t.Fatal("second row with the same placa should be rejected as an intra-chunk duplicate")
	}
}

// TestProcessRowCompositeUniqueAllowsPartialOverlap covers spec's
// resolution that multiple unique columns form one joint key: a row
// sharing one unique value with a previously seen row, but not the
// whole tuple, must be accepted.
func TestProcessRowCompositeUniqueAllowsPartialOverlap(t *testing.T) {
	p := &Processor{}
	cfg := &mapping.Config{
		TargetTable: "widgets",
		Columns: []mapping.ColumnMapping{
			{SourceColumn: "sku", DBColumn: "sku", Type: mapping.TypeString, Required: true, Unique: true},
			{SourceColumn: "warehouse", DBColumn: "warehouse", Type: mapping.TypeString, Required: true, Unique: true},
		},
	}
	uniqueCols := resolveUniqueCols(t, cfg)
	header := &spreadsheet.Header{Columns: []string{"sku", "warehouse"}}
	row1 := spreadsheet.Row{Header: header, Values: []string{"SKU1", "A"}}
	row2 := spreadsheet.Row{Header: header, Values: []string{"SKU1", "B"}}

	existing := map[string]bool{}
	seen := map[string]bool{}

	first := p.processRow(context.Background(), cfg, Target{}, row1, 0, uniqueCols, existing, seen)
	if first.reason != "" {
		t.Fatalf("first row rejected unexpectedly: %s", first.reason)
	}
	second := p.processRow(context.Background(), cfg, Target{}, row2, 1, uniqueCols, existing, seen)
	if second.reason != "" {
		t.Fatalf("row sharing only one of two unique columns should be accepted, got: %s", second.reason)
	}
}

// TestProcessRowCompositeUniqueRejectsFullTupleRepeat is the other half
// of the composite key: a row repeating every unique column's value
// together must still be rejected.
func TestProcessRowCompositeUniqueRejectsFullTupleRepeat(t *testing.T) {
	p := &Processor{}
	cfg := &mapping.Config{
		TargetTable: "widgets",
		Columns: []mapping.ColumnMapping{
			{SourceColumn: "sku", DBColumn: "sku", Type: mapping.TypeString, Required: true, Unique: true},
			{SourceColumn: "warehouse", DBColumn: "warehouse", Type: mapping.TypeString, Required: true, Unique: true},
		},
	}
	uniqueCols := resolveUniqueCols(t, cfg)
	header := &spreadsheet.Header{Columns: []string{"sku", "warehouse"}}
	row1 := spreadsheet.Row{Header: header, Values: []string{"SKU1", "A"}}
	row2 := spreadsheet.Row{Header: header, Values: []string{"SKU1", "A"}}

	existing := map[string]bool{}
	seen := map[string]bool{}

	first := p.processRow(context.Background(), cfg, Target{}, row1, 0, uniqueCols, existing, seen)
	if first.reason != "" {
		t.Fatalf("first row rejected unexpectedly: %s", first.reason)
	}
	second := p.processRow(context.Background(), cfg, Target{}, row2, 1, uniqueCols, existing, seen)
	if second.reason == "" {
		t.Fatal("row repeating the full unique tuple should be rejected")
	}
}

// TestProcessRowRejectedRowDoesNotClaimUniqueKey covers the flip side:
// a row rejected for an unrelated validation error (here, an
// out-of-range ano) must not reserve its unique key, so a later,
// otherwise valid row carrying the same key is still accepted.
func TestProcessRowRejectedRowDoesNotClaimUniqueKey(t *testing.T) {
	p := &Processor{}
	cfg := mapping.Vehicle()
	uniqueCols := resolveUniqueCols(t, cfg)
	invalid := vehicleRow(t, "Civic", "ABC1D23", "1500", "85000.00")
	valid := vehicleRow(t, "Gol", "ABC1D23", "2020", "45000.00")

	existing := map[string]bool{}
	seen := map[string]bool{}

	first := p.processRow(context.Background(), cfg, Target{}, invalid, 0, uniqueCols, existing, seen)
	if first.reason == "" {
		t.Fatal("row with out-of-range ano should have been rejected")
	}
	second := p.processRow(context.Background(), cfg, Target{}, valid, 1, uniqueCols, existing, seen)
	if second.reason != "" {
		t.Fatalf("valid row sharing a key with a rejected row should be accepted, got: %s", second.reason)
	}
}

func TestProcessRowFKResolutionCreate(t *testing.T) {
	p := &Processor{}
	cfg := &mapping.Config{
		TargetTable: "widgets",
		Columns: []mapping.ColumnMapping{
			{SourceColumn: "category", DBColumn: "category_id", Type: mapping.TypeFK, Required: true,
				FK: &mapping.FK{Table: "categories", LookupColumn: "slug", OnMissing: mapping.OnMissingCreate}},
		},
	}
	header := &spreadsheet.Header{Columns: []string{"category"}}
	row := spreadsheet.Row{Header: header, Values: []string{"new-category"}}

	lookup := &fakeLookup{existing: map[string]uuid.UUID{}}
	outcome := p.processRow(context.Background(), cfg, Target{Lookup: lookup}, row, 0, nil, map[string]bool{}, map[string]bool{})

	if outcome.reason != "" {
		t.Fatalf("processRow rejected fk-create row: %s", outcome.reason)
	}
	if len(lookup.created) != 1 || lookup.created[0] != "new-category" {
		t.Fatalf("CreatePlaceholder calls = %v, want [new-category]", lookup.created)
	}
}

func TestProcessRowFKResolutionErrorOnMiss(t *testing.T) {
	p := &Processor{}
	cfg := &mapping.Config{
		TargetTable: "widgets",
		Columns: []mapping.ColumnMapping{
			{SourceColumn: "category", DBColumn: "category_id", Type: mapping.TypeFK, Required: true,
				FK: &mapping.FK{Table: "categories", LookupColumn: "slug", OnMissing: mapping.OnMissingError}},
		},
	}
	header := &spreadsheet.Header{Columns: []string{"category"}}
	row := spreadsheet.Row{Header: header, Values: []string{"missing-category"}}

	lookup := &fakeLookup{existing: map[string]uuid.UUID{}}
	outcome := p.processRow(context.Background(), cfg, Target{Lookup: lookup}, row, 0, nil, map[string]bool{}, map[string]bool{})

	if outcome.reason == "" {
		t.Fatal("processRow accepted a missing fk with on_missing=error")
	}
}

// TestProcessRowFKResolutionIgnoreOnMissYieldsNull covers on_missing=ignore:
// the field must come back as a true nil, not the zero UUID, so it lands
// in the insert as SQL NULL instead of a fabricated FK reference.
func TestProcessRowFKResolutionIgnoreOnMissYieldsNull(t *testing.T) {
	p := &Processor{}
	cfg := &mapping.Config{
		TargetTable: "widgets",
		Columns: []mapping.ColumnMapping{
			{SourceColumn: "category", DBColumn: "category_id", Type: mapping.TypeFK, Required: false,
				FK: &mapping.FK{Table: "categories", LookupColumn: "slug", OnMissing: mapping.OnMissingIgnore}},
		},
	}
	header := &spreadsheet.Header{Columns: []string{"category"}}
	row := spreadsheet.Row{Header: header, Values: []string{"missing-category"}}

	lookup := &fakeLookup{existing: map[string]uuid.UUID{}}
	outcome := p.processRow(context.Background(), cfg, Target{Lookup: lookup}, row, 0, nil, map[string]bool{}, map[string]bool{})

	if outcome.reason != "" {
		t.Fatalf("processRow rejected fk-ignore row: %s", outcome.reason)
	}
	if outcome.record["category_id"] != nil {
		t.Fatalf("record[category_id] = %v, want nil", outcome.record["category_id"])
	}
}

func TestHarvestCompositeKeysNormalizesCase(t *testing.T) {
	cfg := mapping.Vehicle()
	uniqueCols := resolveUniqueCols(t, cfg)
	rows := []spreadsheet.Row{
		vehicleRow(t, "Civic", "  abc1d23  ", "2020", "85000.00"),
	}
	keys := harvestCompositeKeys(uniqueCols, rows)
	if len(keys) != 1 || keys[0] != "abc1d23" {
		t.Fatalf("harvestCompositeKeys = %v, want [abc1d23]", keys)
	}
}
