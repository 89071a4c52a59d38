package dbus

import "testing"

func TestParseSignatureRoundTrip(t *testing.T) {
	sigs := []string{
		"",
		"y", "b", "n", "q", "i", "u", "x", "t", "d", "s", "o", "g", "h", "v",
		"as",
		"a(nb)",
		"a{sv}",
		"(ybnqiuxtdsogav)",
		"aa{sv}",
		"(a{sv}a{sv})",
	}
	for _, sig := range sigs {
		t.Run(sig, func(t *testing.T) {
			parsed, err := ParseSignature(sig)
			if err != nil {
				t.Fatalf("ParseSignature(%q): %v", sig, err)
			}
			if got := parsed.String(); got != sig {
				t.Errorf("round trip mismatch: got %q, want %q", got, sig)
			}
		})
	}
}

func TestParseSignatureRejectsMalformed(t *testing.T) {
	bad := []string{
		"a",            // truncated array
		"(",            // unterminated struct
		"()",           // empty struct
		"{sv}",         // dict entry outside array
		"a{vs}",        // variant is not a valid dict key
		"z",            // unknown type code
		"a{s}",         // dict entry missing value type
	}
	for _, sig := range bad {
		t.Run(sig, func(t *testing.T) {
			if _, err := ParseSignature(sig); err == nil {
				t.Errorf("ParseSignature(%q): expected error, got nil", sig)
			}
		})
	}
}

func TestSignatureIsSingle(t *testing.T) {
	one := MustParseSignature("s")
	if !one.IsSingle() {
		t.Error("expected single-type signature to report IsSingle")
	}
	two := MustParseSignature("ss")
	if two.IsSingle() {
		t.Error("expected two-type signature to not report IsSingle")
	}
	zero := MustParseSignature("")
	if !zero.IsZero() {
		t.Error("expected empty signature to report IsZero")
	}
}

func TestObjectPathValidate(t *testing.T) {
	valid := []string{"/", "/org/freedesktop/DBus", "/a/b_c/D9"}
	for _, p := range valid {
		if err := ObjectPath(p).Validate(); err != nil {
			t.Errorf("ObjectPath(%q).Validate(): unexpected error %v", p, err)
		}
	}
	invalid := []string{"", "foo", "/foo/", "/foo//bar", "/foo.bar"}
	for _, p := range invalid {
		if err := ObjectPath(p).Validate(); err == nil {
			t.Errorf("ObjectPath(%q).Validate(): expected error, got nil", p)
		}
	}
}
