package version

import "testing"

func TestString(t *testing.T) {
	oldVersion, oldSHA, oldTime := Version, GitSHA, BuildTime
	t.Cleanup(func() { Version, GitSHA, BuildTime = oldVersion, oldSHA, oldTime })

	Version, GitSHA, BuildTime = "v0.3.0", "abc1234", "2026-03-01T09:00:00Z"
	want := "acquire v0.3.0 (abc1234, built 2026-03-01T09:00:00Z)"
	if got := String("acquire"); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
