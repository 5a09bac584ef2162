package phone

import "testing"

func TestValid(t *testing.T) {
	valid := []string{"+998901234567", "998901234567", "+998 (90) 123-45-67", " 901234567 "}
	for _, v := range valid {
		if !Valid(v) {
			t.Fatalf("expected %q to be valid", v)
		}
	}
	invalid := []string{"", "+", "12345678", "call me", "+99890abc4567", "-998901234567"}
	for _, v := range invalid {
		if Valid(v) {
			t.Fatalf("expected %q to be invalid", v)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"+998 (90) 123-45-67": "+998901234567",
		"998901234567":        "+998901234567",
		"12345":               "",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("normalize %q = %q, want %q", in, got, want)
		}
	}
}
