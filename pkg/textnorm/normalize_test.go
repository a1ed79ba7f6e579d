package textnorm

import (
	"testing"
	"unicode/utf8"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "lower-cases",
			input:    "Bonjour",
			expected: "bonjour",
		},
		{
			name:     "strips accents",
			input:    "Café élégant à Noël",
			expected: "cafe elegant a noel",
		},
		{
			name:     "collapses whitespace",
			input:    "  voici\t tes \n champignons  ",
			expected: "voici tes champignons",
		},
		{
			name:     "straightens curly apostrophes",
			input:    "l’auberge d‘Ys",
			expected: "l'auberge d'ys",
		},
		{
			name:     "removes zero-width characters",
			input:    "cham\u200bpi\u200dgnon\ufeff",
			expected: "champignon",
		},
		{
			name:     "non-breaking space counts as whitespace",
			input:    "forêt\u00a0noire",
			expected: "foret noire",
		},
		{
			name:     "punctuation is kept",
			input:    "Bonjour, voici tes champignons !",
			expected: "bonjour, voici tes champignons !",
		},
		{
			name:     "emoji pass through",
			input:    "Merci ✅",
			expected: "merci ✅",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Normalize(tt.input)
			if result != tt.expected {
				t.Errorf("Normalize(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalize_VariantsConverge(t *testing.T) {
	variants := []string{"Café", "cafe", "  CAFÉ ", "CAFÉ", "ca\u200bfé"}
	want := Normalize(variants[0])
	for _, v := range variants[1:] {
		if got := Normalize(v); got != want {
			t.Errorf("Normalize(%q) = %q, expected %q", v, got, want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"Café",
		"  Élodie   L’Herboriste  ",
		"ŒUVRE ﬁnale",
		"Straße",
		"İstanbul",
		"ǅemal",
		"\u200b\u200b",
		"Ⅻ chevaliers",
		"日本語のテキスト",
		"ÀÉÎÕÜ àéîõü",
		"ᏣᎳᎩ ꮳꮃꭹ",
		"ΟΔΥΣΣΕΥΣ",
	}

	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalize_IdempotentForEveryRune(t *testing.T) {
	for r := rune(0); r < 0x30000; r++ {
		if !utf8.ValidRune(r) {
			continue
		}
		once := Normalize(string(r))
		if twice := Normalize(once); once != twice {
			t.Errorf("Normalize not idempotent for U+%04X: %q then %q", r, once, twice)
		}
	}
}

func TestNormalize_CherokeeCaseVariantsConverge(t *testing.T) {
	pairs := [][2]string{
		{"Ꭰ", "ꭰ"},
		{"Ꮋ", "ꮋ"},
		{"Ᏽ", "ᏽ"},
		{"ᏣᎳᎩ", "ꮳꮃꭹ"},
	}
	for _, p := range pairs {
		if a, b := Normalize(p[0]), Normalize(p[1]); a != b {
			t.Errorf("Normalize(%q) = %q, Normalize(%q) = %q", p[0], a, p[1], b)
		}
	}
}

func FuzzNormalize(f *testing.F) {
	for _, seed := range []string{"", "Café", "ᏣᎳᎩ", "l’auberge", "ΑΣ Β", "İstanbul", "cham\u200bpignon"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, s string) {
		if !utf8.ValidString(s) {
			t.Skip()
		}
		once := Normalize(s)
		if twice := Normalize(once); once != twice {
			t.Errorf("Normalize not idempotent for %q: %q then %q", s, once, twice)
		}
		if !utf8.ValidString(once) {
			t.Errorf("Normalize(%q) produced invalid UTF-8 %q", s, once)
		}
	})
}

func TestContains(t *testing.T) {
	text := Normalize("Bonjour, voici tes champignons")

	if !Contains(text, "Champignon") {
		t.Error("expected keyword to match case-insensitively")
	}
	if !Contains(text, "  ") {
		t.Error("expected blank keyword to match")
	}
	if Contains(text, "épée") {
		t.Error("did not expect unrelated keyword to match")
	}
}
