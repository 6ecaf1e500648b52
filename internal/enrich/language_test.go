package enrich

import "testing"

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"das ist ein frischer Salat mit Tomaten und Gurken", "de"},
		{"the fresh salad with tomatoes and cucumbers is good", "en"},
		{"le fromage est très bon avec du pain", "fr"},
		{"der Preis für die Avocado ist zwei Euro", "de"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			lang, score := DetectLanguage(tt.text)
			if lang != tt.want {
				t.Errorf("DetectLanguage(%q) = %q (score %.2f), want %q", tt.text, lang, score, tt.want)
			}
			if score <= 0 {
				t.Errorf("score = %.2f, want > 0", score)
			}
		})
	}
}

func TestDetectLanguage_NoSignal(t *testing.T) {
	for _, text := range []string{"", "Avocado", "Burrata Parmesan"} {
		lang, score := DetectLanguage(text)
		if lang != "" || score != 0 {
			t.Errorf("DetectLanguage(%q) = %q/%.2f, want empty/0", text, lang, score)
		}
	}
}
