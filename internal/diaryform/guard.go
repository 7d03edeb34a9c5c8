package diaryform

import "strings"

// Route identifies an in-page location as path + query + fragment. Two routes
// are the same location only when all three parts match.
type Route struct {
	Path     string
	Query    string
	Fragment string
}

// ParseRoute splits "path?query#fragment" into its parts.
func ParseRoute(raw string) Route {
	var r Route
	if i := strings.Index(raw, "#"); i >= 0 {
		r.Fragment = raw[i+1:]
		raw = raw[:i]
	}
	if i := strings.Index(raw, "?"); i >= 0 {
		r.Query = raw[i+1:]
		raw = raw[:i]
	}
	r.Path = raw
	return r
}

// String reassembles the route.
func (r Route) String() string {
	out := r.Path
	if r.Query != "" {
		out += "?" + r.Query
	}
	if r.Fragment != "" {
		out += "#" + r.Fragment
	}
	return out
}

// Guard intercepts navigation away from the diary page while the form holds
// unsaved editable changes. It is injected shared state scoped to the page
// lifecycle, not a process-wide flag; Teardown detaches it.
type Guard struct {
	form    *Form
	confirm ConfirmFunc
	current Route
	active  bool
}

// NewGuard attaches a guard to the form at the given route.
func NewGuard(form *Form, current Route, confirm ConfirmFunc) *Guard {
	return &Guard{form: form, confirm: confirm, current: current, active: true}
}

// AllowNavigation decides whether an in-page navigation to target may
// proceed. Same-route navigations are always exempt. While the form is dirty
// and editable, the confirm prompt must approve; declining blocks.
func (g *Guard) AllowNavigation(target Route) bool {
	if !g.guarding() {
		return true
	}
	if target == g.current {
		return true
	}
	if g.confirm == nil {
		return false
	}
	if !g.confirm(target.String()) {
		return false
	}
	g.current = target
	return true
}

// AllowUnload decides whether the page may unload without a browser-native
// prompt. Unlike in-page navigation there is no custom confirm step; the
// host surfaces the native dialog whenever this returns false.
func (g *Guard) AllowUnload() bool {
	return !g.guarding()
}

func (g *Guard) guarding() bool {
	return g.active && g.form != nil && g.form.Dirty() && g.form.Editable()
}

// SetRoute records a completed navigation (e.g. after a successful save).
func (g *Guard) SetRoute(r Route) {
	g.current = r
}

// Teardown detaches the guard; all further navigations pass.
func (g *Guard) Teardown() {
	g.active = false
}
