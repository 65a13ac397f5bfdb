package phone

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"+7 (902) 123-45-67": "+79021234567",
		"89021234567":        "+79021234567",
		"79021234567":        "+79021234567",
		"9021234567":         "+79021234567",
		"":                   "",
		"+44 20 7946 0958":   "+442079460958",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal("8 902 123 45 67", "+79021234567") {
		t.Fatalf("expected equal")
	}
	if Equal("", "") {
		t.Fatalf("empty numbers must not match")
	}
}

func TestFind(t *testing.T) {
	got := Find("Звонок от +7 902 123-45-67, длительность 0:42")
	if got != "+79021234567" {
		t.Fatalf("got %q", got)
	}
	if Find("no number here") != "" {
		t.Fatalf("expected empty")
	}
}
