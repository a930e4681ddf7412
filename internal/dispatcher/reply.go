package dispatcher

import (
	"fmt"
	"strings"

	"github.com/xaenox/wa-bot/internal/models"
)

// Reason says why a reply could not be rendered.
type Reason string

const (
	// ReasonUnavailable: the reply carried no parts at all.
	ReasonUnavailable Reason = "unavailable"
	// ReasonMalformed: a part lacked a field its response type requires.
	ReasonMalformed Reason = "malformed"
)

// Outcome is the result of interpreting an assistant reply: Rendered or Degraded.
type Outcome interface {
	outcome()
}

// Rendered is a reply turned into chat text plus quick-reply labels.
type Rendered struct {
	Text   string
	Labels []string
	// Skipped lists response types that have no chat rendering.
	Skipped []models.PartKind
}

// Degraded replaces the reply with a fixed fallback text.
type Degraded struct {
	Reason Reason
	Cause  error
}

func (Rendered) outcome() {}
func (Degraded) outcome() {}

// Interpret walks the reply parts in order. Text parts are appended line by line;
// an option part replaces the accumulated text with its title and contributes its
// labels.
func Interpret(reply *models.AssistantReply) Outcome {
	if reply == nil || len(reply.Parts) == 0 {
		return Degraded{Reason: ReasonUnavailable, Cause: fmt.Errorf("reply has no parts")}
	}

	var (
		text    strings.Builder
		labels  []string
		skipped []models.PartKind
	)
	for i, part := range reply.Parts {
		switch part.Kind {
		case models.TextPart:
			if part.Text == nil {
				return Degraded{Reason: ReasonMalformed, Cause: fmt.Errorf("part %d: text part without text", i)}
			}
			text.WriteString(*part.Text)
			text.WriteString("\n")
		case models.OptionPart:
			if part.Title == nil {
				return Degraded{Reason: ReasonMalformed, Cause: fmt.Errorf("part %d: option part without title", i)}
			}
			if part.Options == nil {
				return Degraded{Reason: ReasonMalformed, Cause: fmt.Errorf("part %d: option part without options", i)}
			}
			text.Reset()
			text.WriteString(*part.Title)
			for _, option := range part.Options {
				labels = append(labels, option.Label)
			}
		default:
			skipped = append(skipped, part.Kind)
		}
	}

	if strings.TrimSpace(text.String()) == "" && len(labels) == 0 {
		return Degraded{Reason: ReasonUnavailable, Cause: fmt.Errorf("reply has no renderable parts (skipped %v)", skipped)}
	}

	return Rendered{Text: text.String(), Labels: labels, Skipped: skipped}
}

// Render turns an outcome into the outgoing chat message.
func Render(outcome Outcome) models.OutgoingMessage {
	switch o := outcome.(type) {
	case Rendered:
		if len(o.Labels) == 0 {
			return models.OutgoingMessage{Text: o.Text, RemoveKeyboard: true}
		}
		rows := make([][]string, 0, len(o.Labels))
		for _, label := range o.Labels {
			rows = append(rows, []string{label})
		}
		return models.OutgoingMessage{Text: o.Text, QuickReplies: rows}
	case Degraded:
		text := UnavailableText
		if o.Reason == ReasonMalformed {
			text = MalformedText
		}
		return models.OutgoingMessage{Text: text, RemoveKeyboard: true}
	default:
		return models.OutgoingMessage{Text: UnavailableText, RemoveKeyboard: true}
	}
}
