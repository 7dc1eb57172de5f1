package translate

// Item is one translatable unit fed to the chunker: the segment's position
// in the job record plus its source text.
type Item struct {
	// Index is the segment's position in the job's segment list.
	Index int

	// Text is the source text to translate.
	Text string
}

// Chunk is a batch of items translated in a single LLM request.
type Chunk struct {
	Items []Item
}

// Chars returns the summed source-text length of the chunk in runes.
func (c Chunk) Chars() int {
	total := 0
	for _, it := range c.Items {
		total += len([]rune(it.Text))
	}
	return total
}

// Texts returns the chunk's source texts in order.
func (c Chunk) Texts() []string {
	out := make([]string, len(c.Items))
	for i, it := range c.Items {
		out[i] = it.Text
	}
	return out
}

// BuildChunks splits items into ordered prefix chunks such that every chunk
// holds at most segLimit items and at most charLimit summed runes. An item
// that alone exceeds charLimit still forms its own single-item chunk; items
// are never split. Concatenating the chunks reproduces the input.
func BuildChunks(items []Item, charLimit, segLimit int) []Chunk {
	var chunks []Chunk
	var cur Chunk
	curChars := 0

	flush := func() {
		if len(cur.Items) > 0 {
			chunks = append(chunks, cur)
			cur = Chunk{}
			curChars = 0
		}
	}

	for _, it := range items {
		n := len([]rune(it.Text))
		if len(cur.Items) > 0 && (curChars+n > charLimit || len(cur.Items)+1 > segLimit) {
			flush()
		}
		cur.Items = append(cur.Items, it)
		curChars += n
	}
	flush()
	return chunks
}
