package urlcanon

import "testing"

func TestFixURL(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		referrer string
		want     string
		wantOk   bool
	}{
		{
			name:     "absolute path resolves against referrer host",
			raw:      "/page1",
			referrer: "example.com/a/b",
			want:     "example.com/page1",
			wantOk:   true,
		},
		{
			name:     "up-level relative resolves against referrer directory",
			raw:      "../x",
			referrer: "example.com/a/b/c",
			want:     "example.com/a/x",
			wantOk:   true,
		},
		{
			name:     "bare relative resolves against referrer directory",
			raw:      "x",
			referrer: "example.com/a/",
			want:     "example.com/a/x",
			wantOk:   true,
		},
		{
			name:   "bare absolute http URL defaults to root path",
			raw:    "http://example.com",
			want:   "example.com/",
			wantOk: true,
		},
		{
			name:   "https is rejected outright",
			raw:    "https://x",
			wantOk: false,
		},
		{
			name:   "file scheme is rejected",
			raw:    "file:///etc/passwd",
			wantOk: false,
		},
		{
			name:   "ftp scheme is rejected",
			raw:    "ftp://example.com/file",
			wantOk: false,
		},
		{
			name:   "absolute http URL strips query and fragment",
			raw:    "http://example.com/search?q=test#results",
			wantOk: true,
			want:   "example.com/search",
		},
		{
			name:   "absolute http URL with explicit path",
			raw:    "http://example.com/a/b",
			wantOk: true,
			want:   "example.com/a/b",
		},
		{
			name:     "relative with multiple up-levels",
			raw:      "../../y",
			referrer: "example.com/a/b/c/d",
			want:     "example.com/a/y",
			wantOk:   true,
		},
		{
			name:     "up-level clamps at root",
			raw:      "../../../../z",
			referrer: "example.com/a",
			want:     "example.com/z",
			wantOk:   true,
		},
		{
			name:     "fragment-only relative collapses to directory",
			raw:      "#section",
			referrer: "example.com/page",
			want:     "example.com/",
			wantOk:   true,
		},
		{
			name:   "relative without a referrer is rejected",
			raw:    "page2.html",
			wantOk: false,
		},
		{
			name:   "empty raw is rejected",
			raw:    "",
			wantOk: false,
		},
		{
			name:     "query-only relative preserves directory",
			raw:      "?x=1",
			referrer: "example.com/dir/page",
			want:     "example.com/dir/",
			wantOk:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FixURL(tt.raw, tt.referrer)
			if ok != tt.wantOk {
				t.Fatalf("FixURL(%q, %q) ok = %v, want %v (got %q)", tt.raw, tt.referrer, ok, tt.wantOk, got)
			}
			if ok && got != tt.want {
				t.Errorf("FixURL(%q, %q) = %q, want %q", tt.raw, tt.referrer, got, tt.want)
			}
		})
	}
}

func TestFixURLIdempotent(t *testing.T) {
	cases := []struct{ raw, referrer string }{
		{"/page1", "example.com/a/b"},
		{"../x", "example.com/a/b/c"},
		{"http://example.com/a/b", ""},
	}
	for _, c := range cases {
		once, ok := FixURL(c.raw, c.referrer)
		if !ok {
			t.Fatalf("FixURL(%q, %q) unexpectedly failed", c.raw, c.referrer)
		}
		twice, ok := FixURL(once, c.referrer)
		if !ok || twice != once {
			t.Errorf("FixURL not idempotent: FixURL(%q)=%q, FixURL(%q)=%q", c.raw, once, once, twice)
		}
	}
}

func TestParseHost(t *testing.T) {
	tests := []struct{ url, want string }{
		{"example.com/page", "example.com"},
		{"example.com/", "example.com"},
		{"example.com", "example.com"},
	}
	for _, tt := range tests {
		if got := ParseHost(tt.url); got != tt.want {
			t.Errorf("ParseHost(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestParsePath(t *testing.T) {
	tests := []struct{ url, want string }{
		{"example.com/page", "/page"},
		{"example.com/", "/"},
		{"example.com", "/"},
		{"example.com/a/b/c", "/a/b/c"},
	}
	for _, tt := range tests {
		if got := ParsePath(tt.url); got != tt.want {
			t.Errorf("ParsePath(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestParsePortAlwaysDefault(t *testing.T) {
	for _, url := range []string{"example.com/", "example.com:8080/page", ""} {
		if got := ParsePort(url); got != 80 {
			t.Errorf("ParsePort(%q) = %d, want 80", url, got)
		}
	}
}
