package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/cli/go-gh/v2/pkg/markdown"
	"github.com/cli/go-gh/v2/pkg/term"
	"github.com/markis/convstream/internal/stream"
)

const paragraphBreak = "\n\n"

type TerminalRenderer struct {
	out       io.Writer
	markdown  *glamour.TermRenderer
	plainText bool
	buffer    strings.Builder
	written   bool
}

// NewTerminalRenderer returns a renderer writing to out. Markdown output
// falls back to plain text if glamour cannot be initialised.
func NewTerminalRenderer(out io.Writer, usePlainText bool, wrap int) *TerminalRenderer {
	var md *glamour.TermRenderer
	if !usePlainText {
		md, _ = glamour.NewTermRenderer(
			markdown.WithTheme(term.FromEnv().Theme()),
			markdown.WithWrap(wrap),
		)
	}

	return &TerminalRenderer{
		out:       out,
		markdown:  md,
		plainText: usePlainText || md == nil,
	}
}

// Render prints streamed text as it arrives. Complete paragraphs are
// printed as soon as their break arrives; an end signal flushes whatever
// is buffered. Repeated end signals are harmless.
func (t *TerminalRenderer) Render(chunks <-chan stream.Chunk) error {
	for chunk := range chunks {
		if chunk.Error != nil {
			return fmt.Errorf("stream error: %w", chunk.Error)
		}
		if chunk.Done {
			if err := t.flush(); err != nil {
				return err
			}
			continue
		}

		t.buffer.WriteString(chunk.Content)
		content := t.buffer.String()

		if idx := findParagraphBreak(content); idx > 0 {
			if err := t.renderContent(content[:idx]); err != nil {
				return err
			}
			// Reset buffer with remaining content
			remaining := content[idx:]
			t.buffer.Reset()
			t.buffer.WriteString(remaining)
		}
	}

	if err := t.flush(); err != nil {
		return err
	}
	if t.written {
		_, err := fmt.Fprintln(t.out)
		return err
	}
	return nil
}

func (t *TerminalRenderer) flush() error {
	remaining := t.buffer.String()
	t.buffer.Reset()
	if remaining == "" {
		return nil
	}
	return t.renderContent(remaining)
}

func (t *TerminalRenderer) renderContent(content string) error {
	t.written = true
	if t.plainText {
		_, err := fmt.Fprint(t.out, content)
		return err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if strings.HasPrefix(content, "#") {
		if _, err := fmt.Fprintln(t.out); err != nil {
			return err
		}
	}

	mdContent, err := t.markdown.Render(content)
	if err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}

	_, err = fmt.Fprintln(t.out, strings.TrimSpace(mdContent))
	return err
}

// findParagraphBreak returns the offset just past the last paragraph break,
// or -1 if there is none.
func findParagraphBreak(content string) int {
	idx := strings.LastIndex(content, paragraphBreak)
	if idx < 0 {
		return -1
	}
	return idx + len(paragraphBreak)
}
