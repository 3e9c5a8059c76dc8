// Package mapping defines the Mapping Configuration shape the Row
// Processor interprets per row.
package mapping

import (
	"fmt"
	"regexp"
)

// ColumnType is the closed set of coercion/validation strategies a
// column mapping can select.
type ColumnType string

const (
	TypeString   ColumnType = "string"
	TypeInt      ColumnType = "int"
	TypeFloat    ColumnType = "float"
	TypeDecimal  ColumnType = "decimal"
	TypeDate     ColumnType = "date"
	TypeDatetime ColumnType = "datetime"
	TypeBoolean  ColumnType = "boolean"
	TypeFK       ColumnType = "fk"
)

var validTypes = map[ColumnType]bool{
	TypeString: true, TypeInt: true, TypeFloat: true, TypeDecimal: true,
	TypeDate: true, TypeDatetime: true, TypeBoolean: true, TypeFK: true,
}

// OnMissing is the FK resolution policy applied when a lookup misses.
type OnMissing string

const (
	OnMissingCreate OnMissing = "create"
	OnMissingIgnore OnMissing = "ignore"
	OnMissingError  OnMissing = "error"
)

// FK describes a foreign-key column mapping's resolution policy.
type FK struct {
	Table        string    `json:"table"`
	LookupColumn string    `json:"lookup_column"`
	OnMissing    OnMissing `json:"on_missing"`
}

// ColumnMapping describes how one source column becomes one target
// column. Unique marks it as part of the cross-file duplicate-key.
type ColumnMapping struct {
	SourceColumn string     `json:"source_column"`
	DBColumn     string     `json:"db_column"`
	Type         ColumnType `json:"type"`
	Required     bool       `json:"required"`
	Unique       bool       `json:"unique"`
	FK           *FK        `json:"fk,omitempty"`
}

// Config is the caller-supplied description the Row Processor
// consumes. It is opaque to the core except for the Row Processor.
type Config struct {
	TargetTable string          `json:"target_table"`
	CreateTable bool            `json:"create_table"`
	Columns     []ColumnMapping `json:"columns"`

	// Additive, optional fields from the persisted-template shape. The
	// core never reads these; they ride along for the UI layer.
	EntityDisplayName string `json:"entity_display_name,omitempty"`
	Description       string `json:"description,omitempty"`
	Icon              string `json:"icon,omitempty"`
}

var (
	identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	allowedSchemas     = map[string]bool{"public": true}
)

// ValidateTableName rejects anything that isn't a bare identifier or a
// schema.table pair against an allow-listed schema, preventing the
// target_table string from ever being used to inject arbitrary SQL.
func ValidateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("mapping: target_table is required")
	}
	table := name
	if idx := indexByte(name, '.'); idx >= 0 {
		schema := name[:idx]
		table = name[idx+1:]
		if !allowedSchemas[schema] {
			return fmt.Errorf("mapping: schema %q is not allowed", schema)
		}
	}
	if !identifierPattern.MatchString(table) {
		return fmt.Errorf("mapping: invalid table name %q", name)
	}
	return nil
}

// ValidateColumnName rejects anything that isn't a bare identifier.
func ValidateColumnName(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("mapping: invalid column name %q", name)
	}
	return nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// Validate checks a Config for parse-time validity: table/column name
// shape, type whitelist, and no duplicate db_column entries.
func (c *Config) Validate() error {
	if err := ValidateTableName(c.TargetTable); err != nil {
		return err
	}
	if len(c.Columns) == 0 {
		return fmt.Errorf("mapping: at least one column mapping is required")
	}
	seen := make(map[string]bool, len(c.Columns))
	for i, col := range c.Columns {
		if col.SourceColumn == "" {
			return fmt.Errorf("mapping: column %d: source_column is required", i)
		}
		if err := ValidateColumnName(col.DBColumn); err != nil {
			return fmt.Errorf("mapping: column %d: %w", i, err)
		}
		if seen[col.DBColumn] {
			return fmt.Errorf("mapping: column %d: duplicate db_column %q", i, col.DBColumn)
		}
		seen[col.DBColumn] = true
		if !validTypes[col.Type] {
			return fmt.Errorf("mapping: column %d: invalid type %q", i, col.Type)
		}
		if col.Type == TypeFK {
			if col.FK == nil {
				return fmt.Errorf("mapping: column %d: fk config is required for type fk", i)
			}
			if col.FK.OnMissing != OnMissingCreate && col.FK.OnMissing != OnMissingIgnore && col.FK.OnMissing != OnMissingError {
				return fmt.Errorf("mapping: column %d: invalid on_missing %q", i, col.FK.OnMissing)
			}
			if err := ValidateTableName(col.FK.Table); err != nil {
				return fmt.Errorf("mapping: column %d: fk table: %w", i, err)
			}
			if err := ValidateColumnName(col.FK.LookupColumn); err != nil {
				return fmt.Errorf("mapping: column %d: fk lookup_column: %w", i, err)
			}
		}
	}
	return nil
}

// UniqueColumns returns the db_column names marked unique, in mapping order.
func (c *Config) UniqueColumns() []string {
	var out []string
	for _, col := range c.Columns {
		if col.Unique {
			out = append(out, col.DBColumn)
		}
	}
	return out
}

// RequiredColumns returns every mapped source column, used to validate
// the source file's header.
func (c *Config) RequiredColumns() []string {
	var out []string
	for _, col := range c.Columns {
		if col.Required {
			out = append(out, col.SourceColumn)
		}
	}
	return out
}

// Vehicle is the built-in mapping for the fixed vehicle schema.
func Vehicle() *Config {
	return &Config{
		TargetTable: "imported_vehicles",
		CreateTable: false,
		Columns: []ColumnMapping{
			{SourceColumn: "modelo", DBColumn: "modelo", Type: TypeString, Required: true},
			{SourceColumn: "placa", DBColumn: "placa", Type: TypeString, Required: true, Unique: true},
			{SourceColumn: "ano", DBColumn: "ano", Type: TypeInt, Required: true},
			{SourceColumn: "valor_fipe", DBColumn: "valor_fipe", Type: TypeDecimal, Required: true},
		},
	}
}
