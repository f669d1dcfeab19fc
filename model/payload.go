package model

import (
	"fmt"
	"strings"
)

const (
	//message kinds
	TypeText        string = "text"
	TypeMedia              = "media"
	TypeInteractive        = "interactive"

	//media kinds
	MediaImage    string = "image"
	MediaVideo           = "video"
	MediaDocument        = "document"

	//interactive action kinds
	ActionQuickReply string = "quick-reply"
	ActionOpenUrl           = "open-url"
	ActionCall              = "call"
	ActionCopyCode          = "copy-code"
	ActionList              = "single-select-list"
)

//Payload is the tagged union carried by a message job. Exactly one of the
//variant pointers must be set, matching Type.
type Payload struct {
	Type        string              `json:"type"`
	Text        *TextContent        `json:"text,omitempty"`
	Media       *MediaContent       `json:"media,omitempty"`
	Interactive *InteractiveContent `json:"interactive,omitempty"`
}

type TextContent struct {
	Body string `json:"body"`
}

type MediaContent struct {
	Kind    string `json:"kind"`
	Url     string `json:"url,omitempty"`
	Base64  string `json:"base64,omitempty"`
	Caption string `json:"caption,omitempty"`
}

type InteractiveContent struct {
	Body    string   `json:"body"`
	Actions []Action `json:"actions"`
	Footer  string   `json:"footer,omitempty"`
}

//Action is one interactive button or list attachment.
type Action struct {
	Type     string        `json:"type"`
	Id       string        `json:"id,omitempty"`
	Title    string        `json:"title,omitempty"`
	Url      string        `json:"url,omitempty"`
	Phone    string        `json:"phone,omitempty"`
	Code     string        `json:"code,omitempty"`
	Sections []ListSection `json:"sections,omitempty"`
}

type ListSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []ListRow `json:"rows"`
}

type ListRow struct {
	Id          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

//Validate rejects a structurally invalid payload before it is ever queued.
func (p Payload) Validate() error {
	switch p.Type {
	case TypeText:
		if p.Text == nil || strings.TrimSpace(p.Text.Body) == "" {
			return fmt.Errorf("text message requires a non-empty body")
		}
	case TypeMedia:
		if p.Media == nil {
			return fmt.Errorf("media message requires media content")
		}
		return p.Media.validate()
	case TypeInteractive:
		if p.Interactive == nil {
			return fmt.Errorf("interactive message requires interactive content")
		}
		return p.Interactive.validate()
	default:
		return fmt.Errorf("unknown message type %q", p.Type)
	}
	return nil
}

func (m MediaContent) validate() error {
	switch m.Kind {
	case MediaImage, MediaVideo, MediaDocument:
	default:
		return fmt.Errorf("unknown media kind %q", m.Kind)
	}
	if m.Url == "" && m.Base64 == "" {
		return fmt.Errorf("media message requires a url or base64 content")
	}
	if m.Url != "" && m.Base64 != "" {
		return fmt.Errorf("media message accepts either url or base64 content, not both")
	}
	return nil
}

func (i InteractiveContent) validate() error {
	if strings.TrimSpace(i.Body) == "" {
		return fmt.Errorf("interactive message requires a non-empty body")
	}
	if len(i.Actions) == 0 {
		return fmt.Errorf("interactive message requires at least one action")
	}
	for n, a := range i.Actions {
		if err := a.validate(); err != nil {
			return fmt.Errorf("action %d: %w", n, err)
		}
	}
	return nil
}

func (a Action) validate() error {
	switch a.Type {
	case ActionQuickReply:
		if a.Id == "" || a.Title == "" {
			return fmt.Errorf("quick-reply requires an id and a title")
		}
	case ActionOpenUrl:
		if a.Url == "" || a.Title == "" {
			return fmt.Errorf("open-url requires a url and a title")
		}
	case ActionCall:
		if a.Phone == "" || a.Title == "" {
			return fmt.Errorf("call requires a phone and a title")
		}
	case ActionCopyCode:
		if a.Id == "" || a.Code == "" {
			return fmt.Errorf("copy-code requires an id and a code")
		}
	case ActionList:
		if len(a.Sections) == 0 {
			return fmt.Errorf("single-select-list requires at least one section")
		}
		for n, s := range a.Sections {
			if len(s.Rows) == 0 {
				return fmt.Errorf("list section %d requires at least one row", n)
			}
			for m, r := range s.Rows {
				if r.Id == "" || r.Title == "" {
					return fmt.Errorf("list section %d row %d requires an id and a title", n, m)
				}
			}
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}
