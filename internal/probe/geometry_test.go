package probe

import (
	"os"
	"path/filepath"
	"testing"
)

func testGeometry() *Geometry {
	g := &Geometry{}
	for i := 0; i < 8; i++ {
		g.Sites = append(g.Sites, ChannelSite{Channel: int64(i), Electrode: int64(i * 2)})
	}
	return g
}

func TestNeighborhood(t *testing.T) {
	g := testGeometry()

	got := g.Neighborhood(3, 4) // electrode 6, range [2, 10]
	want := []int{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("neighborhood = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("neighborhood = %v, want %v", got, want)
		}
	}
}

func TestNeighborhoodSymmetry(t *testing.T) {
	g := testGeometry()
	const radius = 3

	for a := 0; a < len(g.Sites); a++ {
		for _, b := range g.Neighborhood(a, radius) {
			found := false
			for _, c := range g.Neighborhood(b, radius) {
				if c == a {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("asymmetric neighborhood: %d in N(%d) but not vice versa", b, a)
			}
		}
	}
}

func TestNeighborhoodUnknownChannel(t *testing.T) {
	g := testGeometry()
	got := g.Neighborhood(42, 3)
	if len(got) != 1 || got[0] != 42 {
		t.Fatalf("unknown channel neighborhood = %v", got)
	}
}

func TestLoadGeometry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probe_geometry.json")
	body := `{"channels": [{"channel": 0, "electrode": 0, "depth": 0}, {"channel": 1, "electrode": 2, "depth": 20}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	g, err := LoadGeometry(path)
	if err != nil {
		t.Fatalf("LoadGeometry: %v", err)
	}
	if len(g.Sites) != 2 {
		t.Fatalf("sites = %d", len(g.Sites))
	}
	if e, ok := g.ElectrodeOf(1); !ok || e != 2 {
		t.Fatalf("ElectrodeOf(1) = %v %v", e, ok)
	}
	if _, ok := g.ElectrodeOf(9); ok {
		t.Fatalf("ElectrodeOf(9) should be false")
	}
}
