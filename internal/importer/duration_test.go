package importer

import "testing"

func TestValidDuration(t *testing.T) {
	valid := []string{"1d 2h 3m 4s", "2h 30m", "45s", "1d", "3m"}
	for _, value := range valid {
		if !validDuration(value) {
			t.Fatalf("expected %q to be valid", value)
		}
	}

	invalid := []string{"2h 1d", "4s 3m", "1w", "90 minutes"}
	for _, value := range invalid {
		if validDuration(value) {
			t.Fatalf("expected %q to be invalid", value)
		}
	}
}

func TestDurationToSeconds(t *testing.T) {
	cases := map[string]int64{
		"1d 2h 3m 4s": 93784,
		"2h 30m":      9000,
		"45s":         45,
		"1d":          86400,
	}
	for value, want := range cases {
		if got := durationToSeconds(value); got != want {
			t.Fatalf("%q: expected %d seconds, got %d", value, want, got)
		}
	}
}
