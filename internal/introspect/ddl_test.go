package introspect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dbsmedya/typeprobe/internal/schema"
)

const ordersDDL = `CREATE TABLE "orders" (
	"id" integer primary key autoincrement not null,
	"note" text,
	"code" varchar(8) not null,
	"status" varchar check ("status" in ('pending', 'done')) not null default 'pending',
	"is_paid" integer check (is_paid in (0, 1)) not null default 0,
	"qty" integer not null,
	"ratio" numeric,
	"label" char(3),
	CHECK ("qty" >= 1 AND "qty" <= 10),
	CONSTRAINT ratio_bounds CHECK (ratio BETWEEN 0 AND 1.5)
)`

func TestParseColumnDDL(t *testing.T) {
	tests := []struct {
		column string
		want   Enrichment
	}{
		{"id", Enrichment{}},
		{"note", Enrichment{}},
		{"code", Enrichment{MaxLength: 8}},
		{"status", Enrichment{EnumValues: []string{"pending", "done"}}},
		{"is_paid", Enrichment{Boolean: true}},
		{"qty", Enrichment{Range: &schema.Range{Min: 1, Max: 10}}},
		{"ratio", Enrichment{Range: &schema.Range{Min: 0, Max: 1.5}}},
		{"label", Enrichment{MaxLength: 3}},
		{"missing", Enrichment{}},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseColumnDDL(ordersDDL, tt.column))
		})
	}
}

func TestParseColumnDDL_MySQLShowCreate(t *testing.T) {
	ddl := "CREATE TABLE `items` (\n" +
		"  `id` bigint unsigned NOT NULL AUTO_INCREMENT,\n" +
		"  `qty` int NOT NULL,\n" +
		"  `kind` varchar(20) DEFAULT NULL,\n" +
		"  PRIMARY KEY (`id`),\n" +
		"  CONSTRAINT `items_chk_1` CHECK (((`qty` >= 1) and (`qty` <= 99))),\n" +
		"  CONSTRAINT `items_chk_2` CHECK ((`kind` in (_utf8mb4'a',_utf8mb4'b')))\n" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"

	assert.Equal(t, &schema.Range{Min: 1, Max: 99}, ParseColumnDDL(ddl, "qty").Range)
	kind := ParseColumnDDL(ddl, "kind")
	assert.Equal(t, 20, kind.MaxLength)
	assert.Equal(t, []string{"a", "b"}, kind.EnumValues)
	assert.Nil(t, ParseColumnDDL(ddl, "id").Range)
}

func TestParseColumnDDL_Malformed(t *testing.T) {
	assert.Equal(t, Enrichment{}, ParseColumnDDL("", "a"))
	assert.Equal(t, Enrichment{}, ParseColumnDDL("CREATE TABLE x", "a"))
	assert.Equal(t, Enrichment{}, ParseColumnDDL(`CREATE TABLE x ("a" text check (a > 5)`, "a"))
	// inverted range is ignored
	assert.Nil(t, ParseColumnDDL(`CREATE TABLE x ("a" integer, CHECK (a >= 9 AND a <= 1))`, "a").Range)
}

func TestParseColumnDDL_QuotedValues(t *testing.T) {
	ddl := `CREATE TABLE t ("mood" varchar check ("mood" in ('it''s ok', 'a,b')) not null)`
	assert.Equal(t, []string{"it's ok", "a,b"}, ParseColumnDDL(ddl, "mood").EnumValues)
}

func TestParseMySQLColumnType(t *testing.T) {
	assert.Equal(t, Enrichment{EnumValues: []string{"draft", "published"}}, ParseMySQLColumnType("enum('draft','published')"))
	assert.Equal(t, Enrichment{Boolean: true}, ParseMySQLColumnType("tinyint(1)"))
	assert.Equal(t, Enrichment{MaxLength: 191}, ParseMySQLColumnType("varchar(191)"))
	assert.Equal(t, Enrichment{}, ParseMySQLColumnType("int unsigned"))
}

func TestEnrich(t *testing.T) {
	text := schema.Column{Name: "status", Kind: schema.KindText}
	got := Enrich(text, Enrichment{EnumValues: []string{"a", "b"}})
	assert.Equal(t, schema.KindEnum, got.Kind)
	assert.Equal(t, []string{"a", "b"}, got.EnumValues)

	intCol := schema.Column{Name: "flag", Kind: schema.KindInteger}
	assert.Equal(t, schema.KindBoolean, Enrich(intCol, Enrichment{Boolean: true}).Kind)

	ranged := Enrich(intCol, Enrichment{Range: &schema.Range{Min: 1, Max: 2}})
	assert.Equal(t, &schema.Range{Min: 1, Max: 2}, ranged.Range)

	// range on a text column would break the numeric-range invariant
	assert.Nil(t, Enrich(text, Enrichment{Range: &schema.Range{Min: 1, Max: 2}}).Range)

	withLen := Enrich(schema.Column{Name: "c", Kind: schema.KindText}, Enrichment{MaxLength: 4})
	assert.Equal(t, 4, withLen.MaxLength)
}
