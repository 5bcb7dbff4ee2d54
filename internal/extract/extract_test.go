package extract

import "testing"

func newHebrew() *Heuristics { return New(Hebrew, "972") }

func TestNormalize_StripsPunctuationAndNiqqud(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  כֵּן!!  ", "כן"},
		{"Yes,   CORRECT.", "yes correct"},
		{"it's\tme", "its me"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDetectYesNo(t *testing.T) {
	h := newHebrew()
	cases := []struct {
		in   string
		want Answer
	}{
		{"כן", Yes},
		{"כן, בטח.", Yes},
		{"נכון מאוד", Yes},
		{"לא", No},
		{"לא תודה", No},
		{"ממש לא!", No},
		{"מה?", Unknown},
		{"", Unknown},
		{"כנרת", Unknown},
		// both lists match; affirmative is checked first
		{"כן, לא משנה", Yes},
		// a negated affirmative is a no
		{"לא נכון", No},
		{"לא, לא נכון", No},
		{"לא בטוח", No},
		{"no, not correct", No},
	}
	for _, tc := range cases {
		if got := h.DetectYesNo(tc.in); got != tc.want {
			t.Fatalf("DetectYesNo(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDetectRefusal(t *testing.T) {
	h := newHebrew()
	if !h.DetectRefusal("אני לא מעוניין, תודה") {
		t.Fatalf("expected refusal")
	}
	if !h.DetectRefusal("תורידו אותי מהרשימה") {
		t.Fatalf("expected refusal")
	}
	if h.DetectRefusal("לא") {
		t.Fatalf("a plain no is not a refusal")
	}
}

func TestParseName(t *testing.T) {
	h := newHebrew()
	cases := []struct {
		in     string
		want   Name
		wantOK bool
	}{
		{"דנה כהן", Name{"דנה", "כהן"}, true},
		{"שמי דנה כהן", Name{"דנה", "כהן"}, true},
		{"קוראים לי יוסי בן דוד", Name{"יוסי", "בן דוד"}, true},
		{"דנה", Name{"דנה", ""}, true},
		{"דנה 123 כהן.", Name{"דנה", "כהן"}, true},
		{"דנה כהן תודה", Name{"דנה", "כהן"}, true},
		{"שמי דנה כהן, סליחה", Name{"דנה", "כהן"}, true},
		{"שלום", Name{}, false},
		{"כן", Name{}, false},
		{"א", Name{}, false},
		{"1234", Name{}, false},
		{"", Name{}, false},
	}
	for _, tc := range cases {
		got, ok := h.ParseName(tc.in)
		if ok != tc.wantOK || got != tc.want {
			t.Fatalf("ParseName(%q) = %+v,%v want %+v,%v", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestExtractPhone_DirectDigits(t *testing.T) {
	h := newHebrew()
	cases := []struct{ in, want string }{
		{"052-123-4567", "0521234567"},
		{"המספר שלי 03 123 4567", "031234567"},
		{"+972 52 123 4567", "0521234567"},
		{"12345", ""},
	}
	for _, tc := range cases {
		if got := h.ExtractPhone(tc.in); got != tc.want {
			t.Fatalf("ExtractPhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractPhone_SpokenDigits(t *testing.T) {
	h := newHebrew()
	in := "אפס חמש שתיים אחת שתיים שלוש ארבע חמש שש שבע"
	if got := h.ExtractPhone(in); got != "0521234567" {
		t.Fatalf("got %q", got)
	}
	// conjunction prefix and hyphenated groups
	in = "אפס-חמש-ארבע, שמונה תשע שבע ושש חמש ארבע שלוש"
	if got := h.ExtractPhone(in); got != "0548976543" {
		t.Fatalf("got %q", got)
	}
	// nine digit landline
	in = "אפס שלוש אחת שתיים שלוש ארבע חמש שש שבע"
	if got := h.ExtractPhone(in); got != "031234567" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractPhone_RecoversEmbeddedRun(t *testing.T) {
	h := newHebrew()
	// 11 digits of noise around a valid leading-zero number
	if got := h.ExtractPhone("5 0521234567"); got != "0521234567" {
		t.Fatalf("got %q", got)
	}
	if got := h.ExtractPhone("05212345678"); got != "0521234567" {
		t.Fatalf("got %q", got)
	}
	in := "שתיים אפס חמש שתיים אחת שתיים שלוש ארבע חמש שש שבע"
	if got := h.ExtractPhone(in); got != "0521234567" {
		t.Fatalf("got %q", got)
	}
	// no leading zero anywhere in a long run
	if got := h.ExtractPhone("12345678912"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestExtractPhone_SpokenRunsWithLeadingZero(t *testing.T) {
	h := newHebrew()
	words := map[byte]string{'0': "אפס", '1': "אחת", '2': "שתיים", '3': "שלוש", '4': "ארבע",
		'5': "חמש", '6': "שש", '7': "שבע", '8': "שמונה", '9': "תשע"}
	for _, num := range []string{"0501234567", "0777777777", "089876543", "0000000000", "029999999"} {
		text := ""
		for i := 0; i < len(num); i++ {
			text += words[num[i]] + " "
		}
		if got := h.ExtractPhone(text); got != num {
			t.Fatalf("ExtractPhone(%q) = %q, want %q", text, got, num)
		}
	}
}

func TestLocalFromE164(t *testing.T) {
	cases := []struct{ in, want string }{
		{"+972521234567", "0521234567"},
		{"+97231234567", "031234567"},
		{"0521234567", "0521234567"},
		{"+15551234567", ""},
		{"anonymous", ""},
	}
	for _, tc := range cases {
		if got := LocalFromE164(tc.in, "972"); got != tc.want {
			t.Fatalf("LocalFromE164(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSpokenDigitsAndLast4(t *testing.T) {
	if got := SpokenDigits("0521234567"); got != "0 5 2, 1 2 3, 4 5 6 7" {
		t.Fatalf("got %q", got)
	}
	if got := SpokenDigits("031234567"); got != "0 3, 1 2 3, 4 5 6 7" {
		t.Fatalf("got %q", got)
	}
	if Last4("0521234567") != "4567" || Last4("12") != "12" {
		t.Fatalf("Last4 mismatch")
	}
}
