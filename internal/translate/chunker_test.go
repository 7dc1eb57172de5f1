package translate

import (
	"strings"
	"testing"
)

func items(texts ...string) []Item {
	out := make([]Item, len(texts))
	for i, t := range texts {
		out[i] = Item{Index: i, Text: t}
	}
	return out
}

func TestBuildChunks_RespectsCharLimit(t *testing.T) {
	t.Parallel()
	in := items("aaaa", "bbbb", "cccc") // 4 runes each
	chunks := BuildChunks(in, 8, 100)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len(chunks[0].Items) != 2 || len(chunks[1].Items) != 1 {
		t.Errorf("chunk sizes = %d,%d, want 2,1", len(chunks[0].Items), len(chunks[1].Items))
	}
}

func TestBuildChunks_RespectsSegLimit(t *testing.T) {
	t.Parallel()
	in := items("a", "b", "c", "d", "e")
	chunks := BuildChunks(in, 1000, 2)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks[:2] {
		if len(c.Items) != 2 {
			t.Errorf("chunk %d has %d items, want 2", i, len(c.Items))
		}
	}
}

func TestBuildChunks_OversizedSegmentOwnChunk(t *testing.T) {
	t.Parallel()
	huge := strings.Repeat("x", 50)
	in := items("aa", huge, "bb")
	chunks := BuildChunks(in, 10, 100)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if chunks[1].Items[0].Text != huge {
		t.Error("oversized segment should form its own chunk, unsplit")
	}
}

func TestBuildChunks_ConcatenationReproducesInput(t *testing.T) {
	t.Parallel()
	in := items("短い", "もう少し長いテキストです", "a", strings.Repeat("y", 30), "ok", "")
	chunks := BuildChunks(in, 12, 3)

	var flat []Item
	for _, c := range chunks {
		flat = append(flat, c.Items...)
	}
	if len(flat) != len(in) {
		t.Fatalf("flattened %d items, want %d", len(flat), len(in))
	}
	for i := range in {
		if flat[i] != in[i] {
			t.Errorf("item %d = %+v, want %+v", i, flat[i], in[i])
		}
	}
}

func TestBuildChunks_NoChunkExceedsBothBounds(t *testing.T) {
	t.Parallel()
	in := items("aaa", "bbbbbbb", "cc", "dddddddddddddd", "e", "ff", "ggggg")
	const charLimit, segLimit = 10, 3
	for _, c := range BuildChunks(in, charLimit, segLimit) {
		if len(c.Items) > segLimit {
			t.Errorf("chunk has %d items, limit %d", len(c.Items), segLimit)
		}
		if c.Chars() > charLimit && len(c.Items) > 1 {
			t.Errorf("multi-item chunk has %d chars, limit %d", c.Chars(), charLimit)
		}
	}
}

func TestBuildChunks_CharLimitCountsRunes(t *testing.T) {
	t.Parallel()
	// Three-rune Japanese strings; byte length would be 9.
	in := items("あいう", "えおか")
	chunks := BuildChunks(in, 6, 100)
	if len(chunks) != 1 {
		t.Errorf("got %d chunks, want 1 (limits are in runes, not bytes)", len(chunks))
	}
}

func TestBuildChunks_Empty(t *testing.T) {
	t.Parallel()
	if got := BuildChunks(nil, 100, 10); len(got) != 0 {
		t.Errorf("BuildChunks(nil) = %v, want empty", got)
	}
}
