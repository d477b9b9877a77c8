package mirror

import "testing"

func TestRegistry(t *testing.T) {
	all := All()
	if len(all) != 12 {
		t.Fatalf("expected 12 mirrors, got %d", len(all))
	}
	if all[0].ID != CanonicalID || all[0].BaseURL != CanonicalBaseURL {
		t.Errorf("first mirror = %+v, want canonical", all[0])
	}

	seen := make(map[string]bool)
	for _, m := range all {
		if seen[m.ID] {
			t.Errorf("duplicate mirror id %q", m.ID)
		}
		seen[m.ID] = true
		if m.ProbeURL() == "" {
			t.Errorf("mirror %q has no probe URL", m.ID)
		}
	}

	// All returns a copy.
	all[0].BaseURL = "https://changed.example"
	if m, _ := Lookup(CanonicalID); m.BaseURL != CanonicalBaseURL {
		t.Error("All() exposed the registry to mutation")
	}
}

func TestLookup(t *testing.T) {
	m, ok := Lookup("ghproxy.net")
	if !ok {
		t.Fatal("ghproxy.net not registered")
	}
	if m.Host() != "ghproxy.net" {
		t.Errorf("Host() = %q", m.Host())
	}
	if m.ProbeURL() != "https://ghproxy.net/" {
		t.Errorf("ProbeURL() = %q", m.ProbeURL())
	}

	if _, ok := Lookup("nope"); ok {
		t.Error("unexpected lookup hit")
	}

	raw, ok := LookupRaw("ghproxy.net")
	if !ok || raw.BaseURL != "https://ghproxy.net/https://raw.githubusercontent.com" {
		t.Errorf("LookupRaw = %+v, %v", raw, ok)
	}
	if _, ok := LookupRaw("kgithub"); ok {
		t.Error("kgithub has no raw-content mirror")
	}
}
