package tgui

import (
	"html"
	"strings"
)

// H is HTML that is safe to send with ParseMode="HTML". Treat values as
// already escaped.
type H string

func (h H) String() string { return string(h) }

// Esc escapes plain text.
func Esc(s string) H { return H(html.EscapeString(s)) }

func tag(name, s string) H { return H("<" + name + ">" + html.EscapeString(s) + "</" + name + ">") }

func B(s string) H { return tag("b", s) }
func I(s string) H { return tag("i", s) }

// Link escapes both the label and the href attribute.
func Link(label, href string) H {
	return H(`<a href="` + html.EscapeString(href) + `">` + html.EscapeString(label) + `</a>`)
}

// Msg assembles a message from blocks separated by a blank line, with an
// optional footer on the line right after the last block.
type Msg struct {
	blocks []string
	footer string
}

// Block appends h unless it is blank.
func (m *Msg) Block(h H) *Msg {
	if strings.TrimSpace(h.String()) != "" {
		m.blocks = append(m.blocks, h.String())
	}
	return m
}

func (m *Msg) Footer(h H) *Msg {
	m.footer = h.String()
	return m
}

func (m *Msg) String() string {
	out := strings.Join(m.blocks, "\n\n")
	if strings.TrimSpace(m.footer) == "" {
		return out
	}
	if out == "" {
		return m.footer
	}
	return out + "\n" + m.footer
}
