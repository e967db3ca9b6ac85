package version

import "testing"

func TestString(t *testing.T) {
	defer func(v, sha, bt string) { Version, GitSHA, BuildTime = v, sha, bt }(Version, GitSHA, BuildTime)

	Version, GitSHA, BuildTime = "1.2.0", "abc1234", "2026-10-19T09:00:00Z"
	if got, want := String(), "1.2.0 (abc1234, built 2026-10-19T09:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
