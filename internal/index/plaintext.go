package index

import "strings"

// Plaintext strips markup from a card's rich-HTML content blob for indexing.
// The engine treats content as opaque; only the index needs readable text.
// Block-level closing tags become spaces so adjacent paragraphs do not fuse
// into one word.
func Plaintext(content string) string {
	var b strings.Builder
	b.Grow(len(content))

	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
			b.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}

	text := b.String()
	for entity, repl := range htmlEntities {
		text = strings.ReplaceAll(text, entity, repl)
	}
	return strings.Join(strings.Fields(text), " ")
}

var htmlEntities = map[string]string{
	"&nbsp;": " ",
	"&amp;":  "&",
	"&lt;":   "<",
	"&gt;":   ">",
	"&quot;": `"`,
	"&#39;":  "'",
}
