package notify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xaenox/commission-scout/internal/models"
)

const (
	DefaultMessageLimit = 1900
	previewLength       = 200
)

// Thresholds split confidence into the bands shown next to each post.
type Thresholds struct {
	High   float64
	Medium float64
	Low    float64
}

func (t Thresholds) Band(confidence float64) string {
	switch {
	case confidence >= t.High:
		return "high"
	case confidence >= t.Medium:
		return "medium"
	case confidence >= t.Low:
		return "low"
	default:
		return "very low"
	}
}

// Style selects the markup dialect of formatted messages.
type Style int

const (
	StyleMarkdown Style = iota
	StyleTelegram
)

type Formatter struct {
	Thresholds Thresholds
	Limit      int
	Style      Style
}

// Sanitize neutralises mass mentions.
func Sanitize(text string) string {
	text = strings.ReplaceAll(text, "@everyone", "@\u200beveryone")
	return strings.ReplaceAll(text, "@here", "@\u200bhere")
}

// Empty is the notice sent for a cycle without new posts.
func (f Formatter) Empty() string {
	return "🎨 " + f.bold("Commission Scan Complete") + "\n\n" + f.escape("No new commission requests found in this cycle.")
}

// Batch renders every post into as few messages as fit under Limit
// characters each. Posts are never split across messages.
func (f Formatter) Batch(posts []models.StoredPost) []string {
	if len(posts) == 0 {
		return nil
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	header := "🎨 " + f.bold(fmt.Sprintf("Found %d New Commission Request(s)", len(posts))) + "\n\n"

	var messages []string
	current := header
	for i, p := range posts {
		block := f.block(i+1, p)
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(block) > limit && current != "" {
			messages = append(messages, current)
			current = ""
		}
		current += block
	}
	if current != "" {
		messages = append(messages, current)
	}
	return messages
}

func (f Formatter) block(n int, p models.StoredPost) string {
	var b strings.Builder
	b.WriteString(f.bold(fmt.Sprintf("#%d", n)))
	b.WriteString(f.escape(" — " + Sanitize(p.Author)))
	b.WriteString("\n🔗 ")
	b.WriteString(f.escape(p.Link()))
	b.WriteString("\n📊 ")
	b.WriteString(f.escape(fmt.Sprintf("Confidence: %.0f%% (%s)", p.AI.Confidence*100, f.Thresholds.Band(p.AI.Confidence))))
	b.WriteString("\n💬 ")
	b.WriteString(f.escape(Sanitize(preview(p.Text))))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 40))
	b.WriteString("\n\n")
	return b.String()
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= previewLength {
		return text
	}
	return string(r[:previewLength]) + "..."
}

func (f Formatter) bold(s string) string {
	if f.Style == StyleTelegram {
		return "*" + escapeMarkdown(s) + "*"
	}
	return "**" + s + "**"
}

func (f Formatter) escape(s string) string {
	if f.Style == StyleTelegram {
		return escapeMarkdown(s)
	}
	return s
}

func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}
