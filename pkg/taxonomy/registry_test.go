package taxonomy

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testRegistry() *Registry {
	return New(map[string]EventSpec{
		"note_created": {
			Required: []string{"module_id", "source"},
			Optional: []string{"text_length_bucket"},
		},
		"search_performed": {
			Required: []string{"query_length_bucket"},
			Optional: []string{"results_bucket", "latency_bucket"},
		},
	})
}

func TestRegistry_Known(t *testing.T) {
	reg := testRegistry()

	if !reg.Known("note_created") {
		t.Error("note_created should be known")
	}
	if reg.Known("made_up_event") {
		t.Error("made_up_event should not be known")
	}
}

func TestRegistry_AllowedProps(t *testing.T) {
	reg := testRegistry()

	got := reg.AllowedProps("note_created")
	want := []string{"module_id", "source", "text_length_bucket"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AllowedProps = %v, want %v", got, want)
	}

	if props := reg.AllowedProps("made_up_event"); props != nil {
		t.Errorf("Expected nil for unknown event, got %v", props)
	}
}

func TestRegistry_IsAllowedProp(t *testing.T) {
	reg := testRegistry()

	tests := []struct {
		event string
		key   string
		want  bool
	}{
		{"note_created", "module_id", true},
		{"note_created", "text_length_bucket", true},
		{"note_created", "results_bucket", false},
		{"search_performed", "results_bucket", true},
		{"made_up_event", "module_id", false},
	}

	for _, tt := range tests {
		t.Run(tt.event+"/"+tt.key, func(t *testing.T) {
			if got := reg.IsAllowedProp(tt.event, tt.key); got != tt.want {
				t.Errorf("IsAllowedProp(%q, %q) = %v, want %v", tt.event, tt.key, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
events:
  note_created:
    required: [module_id, source]
    optional: [text_length_bucket]
`)

	reg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !reg.IsAllowedProp("note_created", "source") {
		t.Error("source should be allowed after parse")
	}
	if got := reg.RequiredProps("note_created"); !reflect.DeepEqual(got, []string{"module_id", "source"}) {
		t.Errorf("RequiredProps = %v", got)
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"no events", "events: {}"},
		{"bad yaml", ":::"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("Expected parse error")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.yaml")

	data := []byte("events:\n  app_opened:\n    optional: [install_age_bucket]\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	reg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if got := reg.Events(); !reflect.DeepEqual(got, []string{"app_opened"}) {
		t.Errorf("Events = %v", got)
	}
}

func TestWatcher_InitialLoadAndSwap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.yaml")
	if err := os.WriteFile(path, []byte("events:\n  app_opened: {}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	if !w.Current().Known("app_opened") {
		t.Error("initial registry should know app_opened")
	}

	// A bad on-disk state must not replace the working registry.
	if err := os.WriteFile(path, []byte(":::"), 0644); err != nil {
		t.Fatal(err)
	}
	w.reload()
	if !w.Current().Known("app_opened") {
		t.Error("failed reload should keep previous registry")
	}

	if err := os.WriteFile(path, []byte("events:\n  app_closed: {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	w.reload()
	if !w.Current().Known("app_closed") {
		t.Error("successful reload should swap registry")
	}
}
