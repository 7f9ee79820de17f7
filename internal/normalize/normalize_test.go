package normalize

import (
	"encoding/json"
	"testing"
	"testing/quick"
)

func TestNormalize(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"renames legacy keys": {
			in:   `{"destination_id":"abc","event_type":"routine"}`,
			want: `{"data_stream_id":"abc","data_stream_route":"routine"}`,
		},
		"keeps whitespace": {
			in:   "{\n  \"destination_id\" :  \"abc\"\n}",
			want: "{\n  \"data_stream_id\" :  \"abc\"\n}",
		},
		"values are untouched": {
			in:   `{"note":"destination_id","tags":{"k":"event_type"}}`,
			want: `{"note":"destination_id","tags":{"k":"event_type"}}`,
		},
		"nested keys are renamed": {
			in:   `{"content":{"event_type":"x"}}`,
			want: `{"content":{"data_stream_route":"x"}}`,
		},
		"escaped quotes inside values": {
			in:   `{"msg":"say \"destination_id\": now","destination_id":"d"}`,
			want: `{"msg":"say \"destination_id\": now","data_stream_id":"d"}`,
		},
		"substring keys are not renamed": {
			in:   `{"old_destination_id":"a","destination_ids":"b"}`,
			want: `{"old_destination_id":"a","destination_ids":"b"}`,
		},
		"not json":      {in: `{not json`, want: `{not json`},
		"unterminated":  {in: `{"destination_id`, want: `{"destination_id`},
		"empty":         {in: ``, want: ``},
		"current names": {in: `{"data_stream_id":"a"}`, want: `{"data_stream_id":"a"}`},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			got := Normalize(c.in)
			if got != c.want {
				t.Fatalf("Normalize(%q) = %q, want %q", c.in, got, c.want)
			}
			if again := Normalize(got); again != got {
				t.Fatalf("not idempotent: %q then %q", got, again)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	f := func(s string) bool {
		once := Normalize(s)
		return Normalize(once) == once
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 2000}); err != nil {
		t.Fatal(err)
	}

	// bias the generator toward inputs that actually contain legacy keys
	g := func(prefix, value string, spaces uint8) bool {
		pad := ""
		for i := 0; i < int(spaces%4); i++ {
			pad += " "
		}
		v, _ := json.Marshal(value)
		s := prefix + `{"destination_id"` + pad + `:` + string(v) + `,"event_type":` + string(v) + `}`
		once := Normalize(s)
		return Normalize(once) == once
	}
	if err := quick.Check(g, nil); err != nil {
		t.Fatal(err)
	}
}

func TestNormalizeKeepsValidJSONValid(t *testing.T) {
	in := `{"upload_id":"u1","destination_id":"ds1","event_type":"r1","content":{"destination_id":"inner"}}`
	var m map[string]any
	if err := json.Unmarshal([]byte(Normalize(in)), &m); err != nil {
		t.Fatalf("normalized output is not JSON: %v", err)
	}
	if m["data_stream_id"] != "ds1" || m["data_stream_route"] != "r1" {
		t.Fatalf("unexpected normalized document %v", m)
	}
	if _, ok := m["destination_id"]; ok {
		t.Fatalf("legacy key survived normalization")
	}
}
