package dom

import (
	"testing"

	"golang.org/x/net/html"
)

const page = `<!DOCTYPE html><html><head></head><body>
<div id="app" class="card main">
  <form id="f">
    <input id="name" name="name" value="ann">
    <input id="agree" name="agree" type="checkbox" checked>
    <select id="color" name="color"><option value="r">Red</option><option value="g" selected>Green</option></select>
    <textarea id="bio" name="bio">hello</textarea>
    <button id="go" type="submit">Go</button>
  </form>
  <p id="msg">Hi <b>there</b></p>
</div>
</body></html>`

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	d, err := ParseString(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestQuerySelector(t *testing.T) {
	d := mustParse(t, page)

	n, err := d.QuerySelector("#app > p")
	if err != nil {
		t.Fatal(err)
	}
	if ID(n) != "msg" {
		t.Fatalf("QuerySelector = %s", Describe(n))
	}

	all, err := d.QuerySelectorAll("input")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("QuerySelectorAll(input) = %d nodes", len(all))
	}

	if _, err := d.QuerySelector("##bad"); err == nil {
		t.Fatal("expected selector error")
	}

	if d.GetElementByID("bio") == nil || d.GetElementByID("missing") != nil {
		t.Fatal("GetElementByID mismatch")
	}
	if Describe(d.GetElementByID("app")) != "div#app.card.main" {
		t.Fatalf("Describe = %q", Describe(d.GetElementByID("app")))
	}
}

func TestTextContent(t *testing.T) {
	d := mustParse(t, page)
	msg := d.GetElementByID("msg")
	if got := TextContent(msg); got != "Hi there" {
		t.Fatalf("TextContent = %q", got)
	}
	SetTextContent(msg, "bye")
	if got := InnerHTML(msg); got != "bye" {
		t.Fatalf("InnerHTML = %q", got)
	}
	text := msg.FirstChild
	SetTextContent(msg, "again")
	if msg.FirstChild != text {
		t.Fatal("single text child should be reused")
	}
}

func TestClassAndStyle(t *testing.T) {
	d := mustParse(t, page)
	app := d.GetElementByID("app")

	if !ToggleClass(app, "active", true) || !HasClass(app, "active") {
		t.Fatal("add class failed")
	}
	if ToggleClass(app, "active", true) {
		t.Fatal("adding an existing class should report no change")
	}
	ToggleClass(app, "card", false)
	if HasClass(app, "card") {
		t.Fatal("remove class failed")
	}

	SetStyleProperty(app, "display", "none")
	SetStyleProperty(app, "color", "red")
	if v, _ := Attr(app, "style"); v != "color: red; display: none" {
		t.Fatalf("style = %q", v)
	}
	SetStyleProperty(app, "display", "")
	if StyleProperty(app, "display") != "" {
		t.Fatal("display should be removed")
	}
	SetStyleProperty(app, "color", "")
	if HasAttr(app, "style") {
		t.Fatal("empty style attribute should be removed")
	}
}

func TestFormValues(t *testing.T) {
	d := mustParse(t, page)
	form := d.GetElementByID("f")

	vals := d.FormValues(form)
	if vals.Get("name") != "ann" || vals.Get("agree") != "on" || vals.Get("color") != "g" || vals.Get("bio") != "hello" {
		t.Fatalf("FormValues = %v", vals)
	}

	d.Input(d.GetElementByID("name"), "bob")
	d.Check(d.GetElementByID("agree"), false)
	vals = d.FormValues(form)
	if vals.Get("name") != "bob" || vals.Has("agree") {
		t.Fatalf("FormValues after input = %v", vals)
	}
	if v, _ := Attr(d.GetElementByID("name"), "value"); v != "ann" {
		t.Fatal("typing must not rewrite the value attribute")
	}
}

func TestEventPhases(t *testing.T) {
	d := mustParse(t, page)
	app := d.GetElementByID("app")
	btn := d.GetElementByID("go")

	var order []string
	d.AddEventListener(nil, "click", func(*Event) { order = append(order, "window-bubble") }, ListenerOptions{})
	d.AddEventListener(nil, "click", func(*Event) { order = append(order, "window-capture") }, ListenerOptions{Capture: true})
	d.AddEventListener(app, "click", func(*Event) { order = append(order, "app-capture") }, ListenerOptions{Capture: true})
	d.AddEventListener(app, "click", func(*Event) { order = append(order, "app-bubble") }, ListenerOptions{})
	d.AddEventListener(btn, "click", func(e *Event) {
		order = append(order, "target")
		if e.Target != btn || e.CurrentTarget != btn {
			t.Error("target mismatch")
		}
	}, ListenerOptions{})

	d.Click(btn)
	want := []string{"window-capture", "app-capture", "target", "app-bubble", "window-bubble"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestEventStopOncePassive(t *testing.T) {
	d := mustParse(t, page)
	app := d.GetElementByID("app")
	btn := d.GetElementByID("go")

	calls := 0
	d.AddEventListener(btn, "click", func(e *Event) {
		calls++
		e.StopPropagation()
	}, ListenerOptions{Once: true})
	bubbled := 0
	d.AddEventListener(app, "click", func(*Event) { bubbled++ }, ListenerOptions{})

	d.Click(btn)
	d.Click(btn)
	if calls != 1 {
		t.Fatalf("once listener called %d times", calls)
	}
	if bubbled != 1 {
		t.Fatalf("bubbled = %d, want 1 (stopped the first time only)", bubbled)
	}

	d.AddEventListener(btn, "submit", func(e *Event) { e.PreventDefault() }, ListenerOptions{Passive: true})
	if !d.DispatchEvent(btn, NewEvent("submit")) {
		t.Fatal("passive listener must not prevent default")
	}

	remove := d.AddEventListener(btn, "submit", func(e *Event) { e.PreventDefault() }, ListenerOptions{})
	if d.DispatchEvent(btn, NewEvent("submit")) {
		t.Fatal("default should be prevented")
	}
	remove()
	if !d.DispatchEvent(btn, NewEvent("submit")) {
		t.Fatal("removed listener still active")
	}
}

func TestPropsAndForget(t *testing.T) {
	d := mustParse(t, page)
	app := d.GetElementByID("app")
	d.SetProp(app, "marker", 42)
	if v, ok := d.Prop(app, "marker"); !ok || v != 42 {
		t.Fatal("prop lost")
	}
	d.Focus(d.GetElementByID("name"))
	Detach(app)
	if d.Contains(app) {
		t.Fatal("detached node reported as connected")
	}
	if d.ActiveElement() != nil {
		t.Fatal("focus on a detached element should not be reported")
	}
	d.Forget(app)
	if _, ok := d.Prop(app, "marker"); ok {
		t.Fatal("Forget should drop props")
	}
}

func TestParseFragment(t *testing.T) {
	nodes, err := ParseFragment(`<li id="a">1</li><li id="b">2</li>`, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 || ID(nodes[1]) != "b" || nodes[0].Parent != nil {
		t.Fatalf("ParseFragment = %d nodes", len(nodes))
	}

	rows, err := ParseFragment(`<tr id="r"><td>x</td></tr>`, NewElement("tbody"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Type != html.ElementNode || rows[0].Data != "tr" {
		t.Fatalf("table fragment parsed as %v", rows)
	}
}
