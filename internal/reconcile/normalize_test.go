package reconcile

import (
	"math"
	"testing"
)

func TestNormalizeStripsDecorations(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "ESPN HD [EN]", want: "espn"},
		{in: "  Fútbol   (backup) 1080p ", want: "futbol"},
		{in: "Movistar+ Full HD", want: "movistar"},
		{in: "DAZN LaLiga 2 {ES} MULTI AUDIO", want: "dazn laliga 2"},
		{in: "Eurosport-1 UHD H265", want: "eurosport 1"},
		{in: "ESPN2", want: "espn 2"},
		{in: "HD", want: ""},
	}
	for _, tc := range tests {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSimilarityProperties(t *testing.T) {
	if got := Similarity("ESPN HD [EN]", "ESPN"); got != 1 {
		t.Fatalf("expected identical normalized names to score 1, got %v", got)
	}
	if got := Similarity("Sports Sky", "Sky Sports"); got != 1 {
		t.Fatalf("expected token order to be ignored, got %v", got)
	}
	if got := Similarity("ESPN2", "ESPN 2"); got != 1 {
		t.Fatalf("expected digit split names to match, got %v", got)
	}
	if got := Similarity("abc", "xyz"); got != 0 {
		t.Fatalf("expected disjoint names to score 0, got %v", got)
	}
	if got := Similarity("", "ESPN"); got != 0 {
		t.Fatalf("expected empty name to score 0, got %v", got)
	}

	pairs := [][2]string{
		{"Canal Sur", "Canal Sur Andalucia"},
		{"Eurosport 1", "Eurosport 2"},
		{"BBC One", "bbc one london"},
		{"La 1", "TVE La 1"},
	}
	for _, p := range pairs {
		a, b := Similarity(p[0], p[1]), Similarity(p[1], p[0])
		if a != b {
			t.Fatalf("similarity not symmetric for %q/%q: %v vs %v", p[0], p[1], a, b)
		}
		if a < 0 || a > 1 || math.IsNaN(a) {
			t.Fatalf("similarity out of range for %q/%q: %v", p[0], p[1], a)
		}
	}
}

func TestFingerprintIsUnitVector(t *testing.T) {
	v := Fingerprint("Sky Sports F1 HD")
	if len(v) != FingerprintDims {
		t.Fatalf("unexpected dims: %d", len(v))
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Fatalf("expected unit norm, got %v", sum)
	}

	w := Fingerprint("sky sports f1")
	for i := range v {
		if v[i] != w[i] {
			t.Fatalf("expected decorations to be ignored, differ at %d", i)
		}
	}
	if Fingerprint("[EN] HD") != nil {
		t.Fatal("expected nil fingerprint for a name without tokens")
	}
}
