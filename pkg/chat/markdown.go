package chat

import "strings"

// DefaultLatencyChars is the buffer size past which a newline-terminated
// paragraph is flushed early to keep the display moving.
const DefaultLatencyChars = 1200

// MarkdownBuffer is an incremental markdown block detector for streaming
// output. Outside fenced code it flushes at paragraph boundaries; a fence
// opened by ``` or ~~~ (three or more, variable length) is buffered whole
// until its closing line arrives, so partial code is never rendered.
type MarkdownBuffer struct {
	buf          string
	inFence      bool
	fenceMarker  string
	latencyChars int
}

// NewMarkdownBuffer creates a buffer with the given latency guard; zero
// or negative selects the default.
func NewMarkdownBuffer(latencyChars int) *MarkdownBuffer {
	if latencyChars <= 0 {
		latencyChars = DefaultLatencyChars
	}
	return &MarkdownBuffer{latencyChars: latencyChars}
}

// matchFence returns the exact fence marker at the start of the line
// (after optional indent), or "" if the line opens no fence.
func matchFence(line string) string {
	stripped := strings.TrimLeft(line, " \t")
	if stripped == "" {
		return ""
	}
	ch := stripped[0]
	if ch != '`' && ch != '~' {
		return ""
	}
	i := 0
	for i < len(stripped) && stripped[i] == ch {
		i++
	}
	if i >= 3 {
		return stripped[:i]
	}
	return ""
}

func ensureTrailingNewline(block string) string {
	if !strings.HasSuffix(block, "\n") {
		return block + "\n"
	}
	return block
}

// Push appends streamed text and returns any complete blocks ready to
// render, in order.
func (b *MarkdownBuffer) Push(chunk string) []string {
	var out []string
	b.buf += chunk

	for b.buf != "" {
		if !b.inFence {
			parIdx := strings.Index(b.buf, "\n\n")
			fenceIdx := b.findFenceLineStart()

			// A paragraph boundary before any fence flushes the paragraph.
			if parIdx != -1 && (fenceIdx == -1 || parIdx < fenceIdx) {
				out = append(out, ensureTrailingNewline(b.buf[:parIdx+2]))
				b.buf = b.buf[parIdx+2:]
				continue
			}

			if fenceIdx != -1 {
				if before := b.buf[:fenceIdx]; strings.TrimSpace(before) != "" {
					out = append(out, ensureTrailingNewline(before))
				}
				b.buf = b.buf[fenceIdx:]
				firstNL := strings.Index(b.buf, "\n")
				if firstNL == -1 {
					// Fence line not complete yet.
					break
				}
				if marker := matchFence(b.buf[:firstNL+1]); marker != "" {
					b.inFence = true
					b.fenceMarker = marker
				}
				continue
			}

			break
		}

		// Inside a fence: wait for a closing line of the same character,
		// at least as long as the opening, with only whitespace after.
		closeEnd := b.findFenceClose()
		if closeEnd == -1 {
			break
		}
		out = append(out, b.buf[:closeEnd])
		b.buf = b.buf[closeEnd:]
		b.inFence = false
		b.fenceMarker = ""
	}

	// Latency guard: flush the trailing paragraph of an oversized,
	// newline-terminated buffer.
	if !b.inFence && len(b.buf) >= b.latencyChars && strings.HasSuffix(b.buf, "\n") {
		if lastPar := strings.LastIndex(b.buf, "\n\n"); lastPar != -1 {
			out = append(out, ensureTrailingNewline(b.buf[:lastPar+2]))
			b.buf = b.buf[lastPar+2:]
		} else {
			out = append(out, ensureTrailingNewline(b.buf))
			b.buf = ""
		}
	}

	return out
}

// findFenceLineStart returns the offset of the first complete line that
// opens a fence, or -1.
func (b *MarkdownBuffer) findFenceLineStart() int {
	lineStart := 0
	for {
		nextNL := strings.Index(b.buf[lineStart:], "\n")
		if nextNL == -1 {
			return -1
		}
		line := b.buf[lineStart : lineStart+nextNL+1]
		if matchFence(line) != "" {
			return lineStart
		}
		lineStart += nextNL + 1
	}
}

// findFenceClose returns the end offset (exclusive) of the closing fence
// line within the buffer, or -1 if the fence is still open.
func (b *MarkdownBuffer) findFenceClose() int {
	fenceChar := b.fenceMarker[0]
	fenceLen := len(b.fenceMarker)

	pos := 0
	lineNo := 0
	for pos < len(b.buf) {
		nl := strings.Index(b.buf[pos:], "\n")
		if nl == -1 {
			return -1 // incomplete line
		}
		lineEnd := pos + nl + 1
		line := b.buf[pos:lineEnd]
		if lineNo > 0 {
			stripped := strings.TrimLeft(line, " \t")
			j := 0
			for j < len(stripped) && stripped[j] == fenceChar {
				j++
			}
			if j >= fenceLen && strings.TrimSpace(stripped[j:]) == "" {
				return lineEnd
			}
		}
		pos = lineEnd
		lineNo++
	}
	return -1
}

// Flush returns whatever remains, auto-closing an open fence so partial
// code still renders, and resets the buffer. Whitespace-only remainders
// return "".
func (b *MarkdownBuffer) Flush() string {
	if strings.TrimSpace(b.buf) == "" {
		b.buf = ""
		b.inFence = false
		b.fenceMarker = ""
		return ""
	}
	data := b.buf
	if b.inFence && b.fenceMarker != "" {
		if !strings.HasSuffix(data, "\n") {
			data += "\n"
		}
		data += b.fenceMarker + "\n"
	}
	b.buf = ""
	b.inFence = false
	b.fenceMarker = ""
	return data
}

// LineBuffer accumulates streamed text and releases whole lines, so a
// mid-line redraw cannot garble plain-text output.
type LineBuffer struct {
	buf strings.Builder
}

// Push appends text and returns complete lines including their newline.
func (b *LineBuffer) Push(chunk string) []string {
	b.buf.WriteString(chunk)
	s := b.buf.String()
	var out []string
	for {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			break
		}
		out = append(out, s[:idx+1])
		s = s[idx+1:]
	}
	b.buf.Reset()
	b.buf.WriteString(s)
	return out
}

// Flush returns any trailing partial line.
func (b *LineBuffer) Flush() string {
	s := b.buf.String()
	b.buf.Reset()
	return s
}
