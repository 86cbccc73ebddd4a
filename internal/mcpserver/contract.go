package mcpserver

// CardFormatContract describes the canonical card content format that
// LLM consumers should follow when creating cards.
const CardFormatContract = `# Bowen Card Format Contract

Every card created in Bowen MUST follow this structure.

## Fields

- **title** (string, required in practice): short human-readable name shown in
  the card header and in search results. Defaults to ` + "`" + `Untitled card` + "`" + ` when
  omitted.
- **content** (string, optional): the card body as a rich-HTML fragment (see
  below). An empty body is valid.
- **color** (string, optional): accent color as a hex value, e.g. ` + "`" + `#f5d0a9` + "`" + `.

## Content format

The body is an HTML *fragment*, not a full document.

` + "```" + `html
<p>Plain paragraphs of text.</p>
<p>Inline marks: <strong>bold</strong>, <em>italic</em>, <u>underline</u>.</p>
<ul><li>Bullet lists</li><li>are supported</li></ul>
<img src="/attachments/diagram.png" alt="architecture diagram">
` + "```" + `

## Rules

1. **No <html>, <head>, or <body> tags.** The content is injected into the
   card's editor as-is.
2. **No <script> or <style> tags.** Structure and inline marks only.
3. **Allowed elements:** p, br, strong, em, u, s, h1-h3, ul, ol, li,
   blockquote, code, pre, a, img.
4. **Images** reference uploaded attachments by absolute path:
   ` + "`" + `<img src="/attachments/filename.png">` + "`" + `. Do not embed data URIs.
5. **Keep cards small.** A card is one idea; split long material across
   several cards and connect them instead of writing one giant card.
6. **Encoding** is UTF-8.

## Connections

Cards within one notebook can be linked with directed connections via the
` + "`" + `connect_cards` + "`" + ` tool. Connections carry no content; use them to express
"relates to" / "follows from" structure between cards. A card cannot be
connected to itself, and duplicate connections are collapsed.

## Example

Creating a card:

` + "```" + `json
{
  "notebook_id": "1737382912345-k3x9f2a",
  "title": "Retro action items",
  "content": "<p>From the sprint retro:</p><ul><li><strong>Alice</strong>: update the runbook</li><li><strong>Bob</strong>: split the deploy job</li></ul>",
  "color": "#aee1f9"
}
` + "```" + `
`
