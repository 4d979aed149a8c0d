package validation

import "testing"

func TestPhoneValidate(t *testing.T) {
	cases := map[string]bool{
		"0501234567":     true,
		"050-123 4567":   true,
		"972501234567":   true,
		"+972501234567":  true,
		"123":            false,
		"":                false,
		"abc0501234567":  false,
	}
	for in, want := range cases {
		if got := PhoneValidate(in); got != want {
			t.Errorf("PhoneValidate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPhoneNormalizeIdempotent(t *testing.T) {
	inputs := []string{"0501234567", "972-50-123-4567", "+972501234567"}
	for _, in := range inputs {
		once, err := PhoneNormalize(in)
		if err != nil {
			t.Fatalf("normalize(%q): %v", in, err)
		}
		twice, err := PhoneNormalize(once)
		if err != nil {
			t.Fatalf("normalize(normalize(%q)): %v", in, err)
		}
		if once != twice {
			t.Errorf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
		if once != "+972501234567" {
			t.Errorf("normalize(%q) = %q, want +972501234567", in, once)
		}
	}
}

func TestPhoneMask(t *testing.T) {
	masked := PhoneMask("+972501234567")
	if masked != "+97250123****" {
		t.Errorf("PhoneMask = %q", masked)
	}
}

func TestPhonePlaceholder(t *testing.T) {
	short, err := PhonePlaceholder("42")
	if err != nil {
		t.Fatal(err)
	}
	if short != "tg:42" {
		t.Errorf("short placeholder = %q", short)
	}

	long, err := PhonePlaceholder("123456789012345678901234567890")
	if err != nil {
		t.Fatal(err)
	}
	if len(long) != len("tg:")+17 {
		t.Errorf("long placeholder wrong length: %q", long)
	}

	if _, err := PhonePlaceholder(""); err == nil {
		t.Error("expected error for empty chat id")
	}
}
