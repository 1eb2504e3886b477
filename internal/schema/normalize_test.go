package schema

import (
	"testing"

	"github.com/handsdb/hands/internal/model"
)

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		dbType string
		want   model.ColumnType
	}{
		{"integer", model.TypeInteger},
		{"BIGINT", model.TypeInteger},
		{"int unsigned", model.TypeInteger},
		{"character varying", model.TypeText},
		{"varchar(255)", model.TypeText},
		{"text[]", model.TypeText},
		{"numeric(10,2)", model.TypeNumeric},
		{"double precision", model.TypeReal},
		{"boolean", model.TypeBoolean},
		{"timestamp with time zone", model.TypeTimestamp},
		{"date", model.TypeDate},
		{"jsonb", model.TypeJSON},
		{"uuid", model.TypeUUID},
		{"bytea", model.TypeBlob},
		{"tsvector", model.TypeText},
		{"", model.TypeText},
	}

	for _, tt := range tests {
		t.Run(tt.dbType, func(t *testing.T) {
			if got := NormalizeType(tt.dbType); got != tt.want {
				t.Errorf("NormalizeType(%q) = %s, want %s", tt.dbType, got, tt.want)
			}
		})
	}
}

func TestParseColumnType(t *testing.T) {
	if got := ParseColumnType("integer"); got != model.TypeInteger {
		t.Errorf("integer -> %s", got)
	}
	if got := ParseColumnType("Json"); got != model.TypeJSON {
		t.Errorf("Json -> %s", got)
	}
	if got := ParseColumnType("int8"); got != model.TypeInteger {
		t.Errorf("int8 -> %s", got)
	}
	if got := ParseColumnType(""); got != model.TypeText {
		t.Errorf("empty -> %s", got)
	}
}

func TestFromColumnRows(t *testing.T) {
	def := "nextval('users_id_seq')"
	rows := []model.ColumnRow{
		{TableName: "users", ColumnName: "id", DataType: "integer", IsNullable: "NO", ColumnDefault: &def, IsPrimaryKey: true},
		{TableName: "users", ColumnName: "email", DataType: "text", IsNullable: "YES"},
		{TableName: "orders", ColumnName: "id", DataType: "bigint", IsNullable: "NO"},
		{TableName: "users", ColumnName: "email", DataType: "varchar", IsNullable: "NO"},
		{TableName: "users", ColumnName: "name", DataType: "text", IsNullable: "YES"},
	}

	db := FromColumnRows(rows)

	if len(db.Tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(db.Tables))
	}
	if db.Tables[0].Name != "users" || db.Tables[1].Name != "orders" {
		t.Errorf("tables not in first-seen order: %s, %s", db.Tables[0].Name, db.Tables[1].Name)
	}

	users := db.Tables[0]
	if len(users.Columns) != 3 {
		t.Fatalf("expected duplicate row collapsed, got %d columns", len(users.Columns))
	}
	id := users.Columns[0]
	if !id.IsPrimaryKey || id.Nullable || id.Type != model.TypeInteger || id.Default == nil {
		t.Errorf("unexpected id column: %+v", id)
	}
	email, ok := users.Column("email")
	if !ok {
		t.Fatal("email column missing")
	}
	if !email.Nullable || email.DBType != "text" || email.Position != 2 {
		t.Errorf("first email row should win: %+v", email)
	}
	if _, ok := db.Table("Users"); ok {
		t.Error("table lookup must be case-sensitive")
	}
}

func TestFromColumnRows_Empty(t *testing.T) {
	db := FromColumnRows(nil)
	if db.Tables == nil || len(db.Tables) != 0 {
		t.Errorf("expected empty non-nil tables, got %#v", db.Tables)
	}
}
