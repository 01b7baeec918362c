// pkg/actions/action_test.go
package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSession records the last call made against it.
type stubSession struct {
	lastMethod string
	lastArgs   []string
	html       string
	err        error
}

func (s *stubSession) call(method string, args ...string) error {
	s.lastMethod = method
	s.lastArgs = args
	return s.err
}

func (s *stubSession) ID() string                  { return "stub" }
func (s *stubSession) Navigate(url string) error   { return s.call("Navigate", url) }
func (s *stubSession) NavigateBack() error         { return s.call("NavigateBack") }
func (s *stubSession) NavigateForward() error      { return s.call("NavigateForward") }
func (s *stubSession) Click(sel string) error      { return s.call("Click", sel) }
func (s *stubSession) DoubleClick(sel string) error { return s.call("DoubleClick", sel) }
func (s *stubSession) Hover(sel string) error      { return s.call("Hover", sel) }
func (s *stubSession) Type(sel, text string) error { return s.call("Type", sel, text) }
func (s *stubSession) SendKeys(sel, keys string) error {
	return s.call("SendKeys", sel, keys)
}
func (s *stubSession) Submit(sel string) error { return s.call("Submit", sel) }
func (s *stubSession) SelectOption(sel, value string) error {
	return s.call("SelectOption", sel, value)
}
func (s *stubSession) DropdownOptions(sel string) ([]string, error) {
	return []string{"a", "b"}, s.call("DropdownOptions", sel)
}
func (s *stubSession) DragAndDrop(src, dst string) error {
	return s.call("DragAndDrop", src, dst)
}
func (s *stubSession) ScrollPage(direction string) error {
	return s.call("ScrollPage", direction)
}
func (s *stubSession) ScrollBy(x, y float64) error { return s.call("ScrollBy") }
func (s *stubSession) WaitLoad() error             { return s.call("WaitLoad") }
func (s *stubSession) WaitForAsync(ms int) error   { return s.call("WaitForAsync") }
func (s *stubSession) HTML() (string, error)       { return s.html, s.call("HTML") }
func (s *stubSession) CurrentURL() (string, error) { return "", s.call("CurrentURL") }
func (s *stubSession) Screenshot() ([]byte, error) { return nil, s.call("Screenshot") }
func (s *stubSession) Close(context.Context) error { return s.call("Close") }

func idSelector(value string) *Selector {
	s := NewAttributeValueSelector("id", value)
	return &s
}

func TestAction_Execute_Dispatch(t *testing.T) {
	tests := []struct {
		name       string
		action     Action
		wantMethod string
		wantArgs   []string
	}{
		{"click", Action{Type: TypeClick, Selector: idSelector("buy")}, "Click", []string{`[id="buy"]`}},
		{"double click", Action{Type: TypeDoubleClick, Selector: idSelector("x")}, "DoubleClick", []string{`[id="x"]`}},
		{"type", Action{Type: TypeType, Selector: idSelector("q"), Text: "golang"}, "Type", []string{`[id="q"]`, "golang"}},
		{"navigate", Action{Type: TypeNavigate, URL: "http://localhost:8000/"}, "Navigate", []string{"http://localhost:8000/"}},
		{"navigate back", Action{Type: TypeNavigate, GoBack: true}, "NavigateBack", nil},
		{"navigate forward", Action{Type: TypeNavigate, GoForward: true}, "NavigateForward", nil},
		{"scroll down", Action{Type: TypeScroll, Down: true}, "ScrollPage", []string{"down"}},
		{"scroll up", Action{Type: TypeScroll, Up: true}, "ScrollPage", []string{"up"}},
		{"scroll by offset", Action{Type: TypeScroll, Y: 400}, "ScrollBy", nil},
		{"hover", Action{Type: TypeHover, Selector: idSelector("menu")}, "Hover", []string{`[id="menu"]`}},
		{"submit", Action{Type: TypeSubmit, Selector: idSelector("form")}, "Submit", []string{`[id="form"]`}},
		{"wait", Action{Type: TypeWait, TimeSeconds: 0.5}, "WaitForAsync", nil},
		{"drag and drop", Action{Type: TypeDragAndDrop, Selector: idSelector("a"), TargetSelector: idSelector("b")}, "DragAndDrop", []string{`[id="a"]`, `[id="b"]`}},
		{"screenshot", Action{Type: TypeScreenshot}, "Screenshot", nil},
		{"send keys", Action{Type: TypeSendKeys, Selector: idSelector("q"), Keys: "Enter"}, "SendKeys", nil},
		{"select", Action{Type: TypeSelect, Selector: idSelector("country"), Value: "DE"}, "SelectOption", []string{`[id="country"]`, "DE"}},
		{"dropdown options", Action{Type: TypeGetDropdownOptions, Selector: idSelector("country")}, "DropdownOptions", []string{`[id="country"]`}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			session := &stubSession{}
			require.NoError(t, tc.action.Execute(session))
			assert.Equal(t, tc.wantMethod, session.lastMethod)
			if tc.wantArgs != nil {
				assert.Equal(t, tc.wantArgs, session.lastArgs)
			}
		})
	}
}

func TestAction_Execute_NoOps(t *testing.T) {
	session := &stubSession{}
	require.NoError(t, (&Action{Type: TypeIdle}).Execute(session))
	require.NoError(t, (&Action{Type: TypeUndefined}).Execute(session))
	assert.Empty(t, session.lastMethod)
}

func TestAction_Execute_Assert(t *testing.T) {
	session := &stubSession{html: "<body>Thank you for your purchase</body>"}

	ok := Action{Type: TypeAssert, Text: "Thank you"}
	require.NoError(t, ok.Execute(session))

	missing := Action{Type: TypeAssert, Text: "Sold out"}
	err := missing.Execute(session)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion failed")
}

func TestAction_Execute_MissingInputs(t *testing.T) {
	session := &stubSession{}

	assert.Error(t, (&Action{Type: TypeClick}).Execute(session), "click without selector")
	assert.Error(t, (&Action{Type: TypeNavigate}).Execute(session), "navigate without url")
	assert.Error(t, (&Action{Type: TypeDragAndDrop, Selector: idSelector("a")}).Execute(session), "drag without target")
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Type
	}{
		{"wire name", `{"type":"click","selector":"#x"}`, TypeClick},
		{"python class name", `{"type":"ClickAction","selector":"#x"}`, TypeClick},
		{"legacy action tag", `{"action":"NavigateAction","url":"http://localhost/"}`, TypeNavigate},
		{"case insensitive", `{"type":"DOUBLE_CLICK"}`, TypeDoubleClick},
		{"unknown type", `{"type":"teleport"}`, TypeUndefined},
		{"garbage", `17`, TypeUndefined},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decode([]byte(tc.raw)).Type)
		})
	}
}

func TestDecodeList(t *testing.T) {
	raw := []byte(`[
		{"type":"navigate","url":"http://localhost:8000/"},
		{"type":"click","selector":"#buy"},
		{"type":"not_a_thing"}
	]`)
	acts, err := DecodeList(raw)
	require.NoError(t, err)
	require.Len(t, acts, 3)
	assert.Equal(t, TypeNavigate, acts[0].Type)
	assert.Equal(t, TypeClick, acts[1].Type)
	assert.Equal(t, TypeUndefined, acts[2].Type)

	_, err = DecodeList([]byte(`{"not":"a list"}`))
	assert.Error(t, err)
}

func TestHashSequence(t *testing.T) {
	a := []Action{{Type: TypeClick, Selector: idSelector("buy")}}
	b := []Action{{Type: TypeClick, Selector: idSelector("buy")}}
	c := []Action{{Type: TypeClick, Selector: idSelector("cancel")}}

	ha, err := HashSequence(a)
	require.NoError(t, err)
	hb, err := HashSequence(b)
	require.NoError(t, err)
	hc, err := HashSequence(c)
	require.NoError(t, err)

	assert.Equal(t, ha, hb, "identical sequences hash identically")
	assert.NotEqual(t, ha, hc)
	assert.Len(t, ha, 64)
}

func TestIsNavigation(t *testing.T) {
	assert.True(t, (&Action{Type: TypeNavigate, URL: "x"}).IsNavigation())
	assert.False(t, (&Action{Type: TypeNavigate, GoBack: true}).IsNavigation())
	assert.False(t, (&Action{Type: TypeClick}).IsNavigation())
}
