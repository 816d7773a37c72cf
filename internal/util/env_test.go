package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value        string
		defaultValue bool
		want         bool
	}{
		{"", true, true},
		{"", false, false},
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"No", true, false},
		{"off", true, false},
		{"banana", true, true},
		{"banana", false, false},
		{" true ", false, true},
	}
	for _, c := range cases {
		t.Setenv("PAWPULSE_TEST_BOOL", c.value)
		if got := ParseBoolEnv("PAWPULSE_TEST_BOOL", c.defaultValue); got != c.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", c.value, c.defaultValue, got, c.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	cases := []struct {
		value        string
		defaultValue int
		want         int
	}{
		{"", 19, 19},
		{"21", 19, 21},
		{"0", 19, 0},
		{"-3", 19, -3},
		{" 7 ", 19, 7},
		{"nineteen", 19, 19},
	}
	for _, c := range cases {
		t.Setenv("PAWPULSE_TEST_INT", c.value)
		if got := ParseIntEnv("PAWPULSE_TEST_INT", c.defaultValue); got != c.want {
			t.Errorf("ParseIntEnv(%q, %d) = %d, want %d", c.value, c.defaultValue, got, c.want)
		}
	}
}
