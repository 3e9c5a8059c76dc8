package mapping

import "testing"

func TestVehiclePresetValidates(t *testing.T) {
	if err := Vehicle().Validate(); err != nil {
		t.Fatalf("Vehicle().Validate() = %v, want nil", err)
	}
}

func TestValidateTableNameRejectsInjection(t *testing.T) {
	cases := []string{"", "users; drop table x", "other_schema.users", "1table"}
	for _, name := range cases {
		if err := ValidateTableName(name); err == nil {
			t.Errorf("ValidateTableName(%q) = nil, want error", name)
		}
	}
}

func TestValidateTableNameAllowsSchemaQualified(t *testing.T) {
	if err := ValidateTableName("public.imported_vehicles"); err != nil {
		t.Fatalf("ValidateTableName(public.imported_vehicles) = %v, want nil", err)
	}
}

func TestValidateRejectsDuplicateDBColumn(t *testing.T) {
	cfg := &Config{
		TargetTable: "widgets",
		Columns: []ColumnMapping{
			{SourceColumn: "a", DBColumn: "x", Type: TypeString},
			{SourceColumn: "b", DBColumn: "x", Type: TypeString},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want duplicate column error")
	}
}

func TestValidateRejectsUnknownType(t *testing.T) {
	cfg := &Config{
		TargetTable: "widgets",
		Columns:     []ColumnMapping{{SourceColumn: "a", DBColumn: "a", Type: "unknown"}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want invalid type error")
	}
}

func TestValidateFKRequiresConfig(t *testing.T) {
	cfg := &Config{
		TargetTable: "widgets",
		Columns:     []ColumnMapping{{SourceColumn: "a", DBColumn: "a", Type: TypeFK}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want fk config required error")
	}
}

func TestUniqueColumns(t *testing.T) {
	cfg := Vehicle()
	got := cfg.UniqueColumns()
	if len(got) != 1 || got[0] != "placa" {
		t.Fatalf("UniqueColumns() = %v, want [placa]", got)
	}
}
