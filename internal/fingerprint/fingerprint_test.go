package fingerprint

import (
	"testing"

	"curator/internal/types"
)

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint(types.SourceReddit, "abc123")
	b := Fingerprint(types.SourceReddit, "abc123")
	if a != b {
		t.Errorf("same input produced different keys: %s vs %s", a, b)
	}
	if len(a) != KeyLength {
		t.Errorf("key length = %d, want %d", len(a), KeyLength)
	}
}

func TestFingerprintDistinguishesSources(t *testing.T) {
	// The same native id on two platforms must not collide.
	reddit := Fingerprint(types.SourceReddit, "12345")
	github := Fingerprint(types.SourceGitHub, "12345")
	if reddit == github {
		t.Errorf("cross-source collision on native id 12345: %s", reddit)
	}
}

func TestFingerprintIgnoresTextContent(t *testing.T) {
	tip1 := &types.Tip{Source: types.SourceReddit, NativeID: "t3_xyz", RawText: "original"}
	tip2 := &types.Tip{Source: types.SourceReddit, NativeID: "t3_xyz", RawText: "edited upstream"}
	if TipKey(tip1) != TipKey(tip2) {
		t.Error("dedup key must depend only on source and native id, not text")
	}
}

func TestFingerprintTrimsNativeID(t *testing.T) {
	if Fingerprint(types.SourceGitHub, " path/file.md ") != Fingerprint(types.SourceGitHub, "path/file.md") {
		t.Error("surrounding whitespace in native id changed the key")
	}
}
