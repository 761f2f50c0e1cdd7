package reader

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	rows, err := DecodeRows("batch.json", []byte(`[["Iron Chest","M1",1.5],["Food Chest","M2",2]]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	want := []any{"Iron Chest", "M1", 1.5}
	if !reflect.DeepEqual(rows[0], want) {
		t.Fatalf("unexpected first row %#v", rows[0])
	}

	if _, err := DecodeRows("bad.json", []byte(`{"rows":1}`)); err == nil {
		t.Fatalf("expected error for non-array document")
	}
}

func TestDecodeScript(t *testing.T) {
	script := `// rows.add.items01.js
// Items 1-2

addRows([
  // 1) 5m Speed-up
  ["5m Speed-up","Black Market (Top Row - Regular)",0.0083],
  ["5m Speed-up","Summon // Supplies",0.0200], /* trailing */
]);

/* second call */
addRows([
  ["Valor Badge","Glittering Market (5$ Bundle)",0.0313],
]);
`
	rows, err := DecodeRows("rows.add.items01.js", []byte(script))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d: %#v", len(rows), rows)
	}
	second := rows[1].([]any)
	if second[1] != "Summon // Supplies" {
		t.Fatalf("comment stripping touched a string literal: %q", second[1])
	}
	last := rows[2].([]any)
	if last[0] != "Valor Badge" || last[2] != 0.0313 {
		t.Fatalf("unexpected last row %#v", last)
	}
}

func TestDecodeScriptWithoutCall(t *testing.T) {
	rows, err := DecodeRows("bare.js", []byte("[\n[\"A\",\"M\",1], // one\n]"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}

func TestDecodeScriptUnterminated(t *testing.T) {
	if _, err := DecodeRows("broken.js", []byte(`addRows([["A","M",1]`)); err == nil {
		t.Fatalf("expected error for unterminated call")
	}
}

func TestDecodeCSV(t *testing.T) {
	data := "name,market,price\nIron Chest,M1,1.25\n# skipped\nFood Chest,M2,oops\nShort\n"
	rows, err := DecodeRows("rows.CSV", []byte(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	first := rows[0].([]any)
	if first[2] != 1.25 {
		t.Fatalf("price not parsed: %#v", first)
	}
	second := rows[1].([]any)
	if second[2] != "oops" {
		t.Fatalf("unparseable price should stay raw: %#v", second)
	}
	if len(rows[2].([]any)) != 1 {
		t.Fatalf("short record should pass through untouched")
	}
}

func TestDecodeUnsupported(t *testing.T) {
	_, err := DecodeRows("rows.xml", []byte("<rows/>"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestSupported(t *testing.T) {
	cases := map[string]bool{
		"a.json":        true,
		"a.JS":          true,
		"a.csv":         true,
		"dir/a.parquet": true,
		"a.txt":         false,
		"noext":         false,
	}
	for name, want := range cases {
		if got := Supported(name); got != want {
			t.Errorf("Supported(%q) = %v, want %v", name, got, want)
		}
	}
}
