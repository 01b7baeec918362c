// pkg/actions/action.go
package actions

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	json "github.com/json-iterator/go"

	"github.com/webgym/webgym/pkg/browser"
)

// Type identifies one browser operation. The catalog is closed: payloads
// naming anything else decode to TypeUndefined.
type Type string

const (
	TypeClick                Type = "click"
	TypeDoubleClick          Type = "double_click"
	TypeType                 Type = "type"
	TypeNavigate             Type = "navigate"
	TypeScroll               Type = "scroll"
	TypeHover                Type = "hover"
	TypeSubmit               Type = "submit"
	TypeWait                 Type = "wait"
	TypeAssert               Type = "assert"
	TypeDragAndDrop          Type = "drag_and_drop"
	TypeScreenshot           Type = "screenshot"
	TypeSendKeys             Type = "send_keys"
	TypeSelect               Type = "select"
	TypeGetDropdownOptions   Type = "get_dropdown_options"
	TypeSelectDropdownOption Type = "select_dropdown_option"
	TypeIdle                 Type = "idle"
	TypeUndefined            Type = "undefined"
)

// wireNames maps incoming payload names (several spellings are in the wild)
// onto the closed catalog.
var wireNames = map[string]Type{
	"click": TypeClick, "clickaction": TypeClick,
	"double_click": TypeDoubleClick, "doubleclickaction": TypeDoubleClick,
	"type": TypeType, "typeaction": TypeType, "input_text": TypeType,
	"navigate": TypeNavigate, "navigateaction": TypeNavigate,
	"scroll": TypeScroll, "scrollaction": TypeScroll,
	"hover": TypeHover, "hoveraction": TypeHover,
	"submit": TypeSubmit, "submitaction": TypeSubmit,
	"wait": TypeWait, "waitaction": TypeWait,
	"assert": TypeAssert, "assertaction": TypeAssert,
	"drag_and_drop": TypeDragAndDrop, "draganddropaction": TypeDragAndDrop,
	"screenshot": TypeScreenshot, "screenshotaction": TypeScreenshot,
	"send_keys": TypeSendKeys, "sendkeysiwaaction": TypeSendKeys, "sendkeysaction": TypeSendKeys,
	"select": TypeSelect, "selectaction": TypeSelect,
	"get_dropdown_options":   TypeGetDropdownOptions,
	"getdropdownoptions":     TypeGetDropdownOptions,
	"select_dropdown_option": TypeSelectDropdownOption,
	"selectdropdownoption":   TypeSelectDropdownOption,
	"idle": TypeIdle, "idleaction": TypeIdle,
}

// eventNames are the canonical wire names reported in execution results.
var eventNames = map[Type]string{
	TypeClick:                "ClickAction",
	TypeDoubleClick:          "DoubleClickAction",
	TypeType:                 "TypeAction",
	TypeNavigate:             "NavigateAction",
	TypeScroll:               "ScrollAction",
	TypeHover:                "HoverAction",
	TypeSubmit:               "SubmitAction",
	TypeWait:                 "WaitAction",
	TypeAssert:               "AssertAction",
	TypeDragAndDrop:          "DragAndDropAction",
	TypeScreenshot:           "ScreenshotAction",
	TypeSendKeys:             "SendKeysAction",
	TypeSelect:               "SelectAction",
	TypeGetDropdownOptions:   "GetDropdownOptionsAction",
	TypeSelectDropdownOption: "SelectDropdownOptionAction",
	TypeIdle:                 "IdleAction",
	TypeUndefined:            "UndefinedAction",
}

// Action is one browser operation. An Action is constructed fresh per step
// and never outlives a single execution call.
type Action struct {
	Type Type `json:"type"`

	Selector *Selector `json:"selector,omitempty"`
	Text     string    `json:"text,omitempty"`
	Value    string    `json:"value,omitempty"`
	Keys     string    `json:"keys,omitempty"`

	// Navigate fields.
	URL       string `json:"url,omitempty"`
	GoBack    bool   `json:"go_back,omitempty"`
	GoForward bool   `json:"go_forward,omitempty"`

	// Scroll fields.
	Up    bool    `json:"up,omitempty"`
	Down  bool    `json:"down,omitempty"`
	X     float64 `json:"x,omitempty"`
	Y     float64 `json:"y,omitempty"`

	// Wait duration.
	TimeSeconds float64 `json:"time_seconds,omitempty"`

	// DragAndDrop target; Selector is the source.
	TargetSelector *Selector `json:"target_selector,omitempty"`
}

// EventName returns the canonical wire name of this action's variant.
func (a *Action) EventName() string {
	if name, ok := eventNames[a.Type]; ok {
		return name
	}
	return eventNames[TypeUndefined]
}

func (a *Action) String() string {
	return a.EventName()
}

// IsNavigation reports whether executing the action can change the page URL
// to a caller-supplied destination. Used by the navigation sandbox.
func (a *Action) IsNavigation() bool {
	return a.Type == TypeNavigate && !a.GoBack && !a.GoForward
}

func (a *Action) query() (string, error) {
	if a.Selector == nil {
		return "", fmt.Errorf("%s requires a selector", a.EventName())
	}
	return a.Selector.Query()
}

// Execute runs the action against a browser session. The switch over the
// catalog is exhaustive; Idle and Undefined are explicit no-ops so malformed
// agent output never crashes the execution loop.
func (a *Action) Execute(session browser.Session) error {
	switch a.Type {
	case TypeClick:
		sel, err := a.query()
		if err != nil {
			return err
		}
		return session.Click(sel)

	case TypeDoubleClick:
		sel, err := a.query()
		if err != nil {
			return err
		}
		return session.DoubleClick(sel)

	case TypeType:
		sel, err := a.query()
		if err != nil {
			return err
		}
		return session.Type(sel, a.Text)

	case TypeNavigate:
		if a.GoBack {
			return session.NavigateBack()
		}
		if a.GoForward {
			return session.NavigateForward()
		}
		if a.URL == "" {
			return fmt.Errorf("NavigateAction requires a url")
		}
		return session.Navigate(a.URL)

	case TypeScroll:
		if a.X != 0 || a.Y != 0 {
			return session.ScrollBy(a.X, a.Y)
		}
		direction := "down"
		if a.Up {
			direction = "up"
		}
		return session.ScrollPage(direction)

	case TypeHover:
		sel, err := a.query()
		if err != nil {
			return err
		}
		return session.Hover(sel)

	case TypeSubmit:
		sel, err := a.query()
		if err != nil {
			return err
		}
		return session.Submit(sel)

	case TypeWait:
		ms := int(a.TimeSeconds * 1000)
		if ms <= 0 {
			ms = 1000
		}
		return session.WaitForAsync(ms)

	case TypeAssert:
		html, err := session.HTML()
		if err != nil {
			return err
		}
		if !strings.Contains(html, a.Text) {
			return fmt.Errorf("assertion failed: page does not contain %q", a.Text)
		}
		return nil

	case TypeDragAndDrop:
		sel, err := a.query()
		if err != nil {
			return err
		}
		if a.TargetSelector == nil {
			return fmt.Errorf("DragAndDropAction requires a target_selector")
		}
		target, err := a.TargetSelector.Query()
		if err != nil {
			return err
		}
		return session.DragAndDrop(sel, target)

	case TypeScreenshot:
		_, err := session.Screenshot()
		return err

	case TypeSendKeys:
		sel := ""
		if a.Selector != nil {
			q, err := a.Selector.Query()
			if err != nil {
				return err
			}
			sel = q
		}
		return session.SendKeys(sel, a.Keys)

	case TypeSelect, TypeSelectDropdownOption:
		sel, err := a.query()
		if err != nil {
			return err
		}
		value := a.Value
		if value == "" {
			value = a.Text
		}
		return session.SelectOption(sel, value)

	case TypeGetDropdownOptions:
		sel, err := a.query()
		if err != nil {
			return err
		}
		_, err = session.DropdownOptions(sel)
		return err

	case TypeIdle, TypeUndefined:
		return nil
	}
	return nil
}

// actionEnvelope tolerates both "type" and the legacy "action" tag.
type actionEnvelope struct {
	Action
	LegacyType string `json:"action,omitempty"`
}

// Decode parses one action payload. Unknown or unparseable variants yield an
// Undefined action, never an error.
func Decode(raw []byte) Action {
	var env actionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Action{Type: TypeUndefined}
	}
	name := string(env.Action.Type)
	if name == "" {
		name = env.LegacyType
	}
	t, ok := wireNames[strings.ToLower(name)]
	if !ok {
		return Action{Type: TypeUndefined}
	}
	a := env.Action
	a.Type = t
	return a
}

// DecodeList parses a JSON array of action payloads.
func DecodeList(raw []byte) ([]Action, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode action list: %w", err)
	}
	out := make([]Action, len(items))
	for i, item := range items {
		out[i] = Decode(item)
	}
	return out, nil
}

// HashSequence computes a stable hash of a serialized action sequence.
// Solutions sharing a hash are behaviorally identical against an identically
// reset backend, which is what makes result cloning across grouped solutions
// sound.
func HashSequence(seq []Action) (string, error) {
	payload, err := json.Marshal(seq)
	if err != nil {
		return "", fmt.Errorf("failed to serialize action sequence: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Wait builds a wait action; handy for agents padding out async pages.
func Wait(d time.Duration) Action {
	return Action{Type: TypeWait, TimeSeconds: d.Seconds()}
}
