package checksum

import "testing"

func TestSum(t *testing.T) {
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != empty {
		t.Errorf("Sum(nil) = %s", got)
	}
	if Sum([]byte("a")) == Sum([]byte("b")) {
		t.Error("different inputs share a digest")
	}
}

func TestParts_LengthPrefixed(t *testing.T) {
	if Parts("ab", "c") == Parts("a", "bc") {
		t.Error("part boundaries must change the digest")
	}
	if Parts("x", "y") != Parts("x", "y") {
		t.Error("digest must be stable")
	}
}
