package fetcher

import "testing"

func TestVerify(t *testing.T) {
	cases := []struct {
		name     string
		expected Checksum
		computed Checksum
		want     bool
	}{
		{"no checksums asserted", Checksum{}, Checksum{SHA256: "abc", MD5: "def"}, true},
		{"sha256 matches", Checksum{SHA256: "abc"}, Checksum{SHA256: "abc", MD5: "xyz"}, true},
		{"sha256 mismatch", Checksum{SHA256: "abc"}, Checksum{SHA256: "zzz"}, false},
		{"md5 mismatch", Checksum{MD5: "abc"}, Checksum{MD5: "zzz"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Verify(tc.expected, tc.computed); got != tc.want {
				t.Fatalf("Verify(%+v, %+v) = %v, want %v", tc.expected, tc.computed, got, tc.want)
			}
		})
	}
}

func TestAnchorEntryName(t *testing.T) {
	cases := []struct {
		href     string
		wantName string
		wantDir  bool
		wantOK   bool
	}{
		{"../", "", false, false},
		{"?C=N;O=D", "", false, false},
		{"uniprot_sprot.dat.gz", "uniprot_sprot.dat.gz", false, true},
		{"previous_releases/", "previous_releases", true, true},
		{"https://example.com/other", "", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.href, func(t *testing.T) {
			name, isDir, ok := anchorEntryName(tc.href)
			if ok != tc.wantOK || name != tc.wantName || isDir != tc.wantDir {
				t.Fatalf("anchorEntryName(%q) = (%q, %v, %v), want (%q, %v, %v)",
					tc.href, name, isDir, ok, tc.wantName, tc.wantDir, tc.wantOK)
			}
		})
	}
}
