package parser

import "testing"

func TestParseRightmostColon(t *testing.T) {
	got, err := Parse([]byte("a.b.c.__tag1=v1.__tag2=v2:v2:42.000|ms"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got.Key) != "a.b.c.__tag1=v1.__tag2=v2:v2" {
		t.Fatalf("key = %q", got.Key)
	}
	if got.Value != 42.0 {
		t.Fatalf("value = %v", got.Value)
	}
	if got.Type != Timer {
		t.Fatalf("type = %v", got.Type)
	}
	if got.Presample != 1.0 {
		t.Fatalf("presample = %v", got.Presample)
	}
}

func TestParseWithRate(t *testing.T) {
	got, err := Parse([]byte("test.srv.req:2.5|ms|@0.2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Value != 2.5 || got.Type != Timer || got.Presample != 0.2 {
		t.Fatalf("got %+v", got)
	}
}

func TestParseAllTypes(t *testing.T) {
	cases := map[string]MetricType{
		"k:1|c":  Counter,
		"k:1|ms": Timer,
		"k:1|kv": KV,
		"k:1|g":  Gauge,
		"k:1|h":  Hist,
		"k:1|s":  Set,
	}
	for line, want := range cases {
		got, err := Parse([]byte(line))
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", line, err)
		}
		if got.Type != want {
			t.Fatalf("%q: type = %v, want %v", line, got.Type, want)
		}
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []string{
		"",
		"novalue",
		":1|c",
		"k:1",
		"k:notanumber|c",
		"k:1|zz",
		"k:1|c|@",
		"k:1|c|notarate",
		"k:1|c|@0",
		"k:1|c|@1.5",
		"k:1|c|x2",
		"k:NaN|c",
		"k:Inf|c",
		"k:1|c|@NaN",
	}
	for _, line := range cases {
		if _, err := Parse([]byte(line)); err == nil {
			t.Fatalf("%q: expected error, got none", line)
		}
	}
}

func TestParseDoesNotMutateInput(t *testing.T) {
	line := []byte("metric.name:17|c")
	cp := append([]byte(nil), line...)
	if _, err := Parse(line); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(line) != string(cp) {
		t.Fatalf("input mutated: %q vs %q", line, cp)
	}
}

func TestParseIsReproducible(t *testing.T) {
	line := []byte("a.b:3.14|ms|@0.5")
	first, err := Parse(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Parse(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(first.Key) != string(second.Key) || first.Value != second.Value ||
		first.Presample != second.Presample || first.Type != second.Type {
		t.Fatalf("reparse mismatch: %+v vs %+v", first, second)
	}
}
