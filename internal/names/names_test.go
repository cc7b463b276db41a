package names

import "testing"

func TestParseQName(t *testing.T) {
	tests := []struct {
		in   string
		want QName
	}{
		{"Object", QName{Local: "Object"}},
		{"mx.core:UIComponent", QName{Namespace: "mx.core", Local: "UIComponent"}},
		{"mx.core.UIComponent", QName{Namespace: "mx.core", Local: "UIComponent"}},
		{"a.b:c.D", QName{Namespace: "a.b", Local: "c.D"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseQName(tt.in)
			if got != tt.want {
				t.Errorf("ParseQName(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestQNameString(t *testing.T) {
	if got := NewQName("", "Object").String(); got != "Object" {
		t.Errorf("String() = %q, want %q", got, "Object")
	}
	if got := NewQName("a.b", "C").String(); got != "a.b:C" {
		t.Errorf("String() = %q, want %q", got, "a.b:C")
	}
	if got := NewQName("a.b", "C").Dotted(); got != "a.b.C" {
		t.Errorf("Dotted() = %q, want %q", got, "a.b.C")
	}
}

func TestNewMultiNameDeduplicates(t *testing.T) {
	m := NewMultiName("Button", "mx.controls", "", "mx.controls")
	if len(m.Namespaces) != 2 {
		t.Fatalf("Expected 2 namespaces, got %d", len(m.Namespaces))
	}
	if m.Namespaces[0] != "mx.controls" || m.Namespaces[1] != "" {
		t.Errorf("Namespaces = %v, want [mx.controls \"\"]", m.Namespaces)
	}
	if !m.Matches(NewQName("", "Button")) {
		t.Error("Expected MultiName to match unnamed-namespace candidate")
	}
	if m.Matches(NewQName("other", "Button")) {
		t.Error("Expected MultiName not to match unknown namespace")
	}
}

func TestSetOrderAndReplace(t *testing.T) {
	s := NewSet()
	a := NewMultiName("A", "p")
	b := NewMultiName("B", "p")
	c := NewQName("p", "C")

	s.Add(a)
	s.Add(b)
	s.Add(c)
	if s.Add(a) {
		t.Error("Expected duplicate Add to return false")
	}
	if s.Len() != 3 {
		t.Fatalf("Expected 3 names, got %d", s.Len())
	}

	s.Replace(a, NewQName("p", "A"))
	all := s.All()
	if all[0].Key() != NewQName("p", "A").Key() {
		t.Errorf("Expected replaced name to keep position 0, got %s", all[0])
	}
	if len(s.MultiNames()) != 1 {
		t.Errorf("Expected 1 unresolved name, got %d", len(s.MultiNames()))
	}
	if len(s.QNames()) != 2 {
		t.Errorf("Expected 2 resolved names, got %d", len(s.QNames()))
	}

	// Replacing with an already-present name just removes the old entry.
	s.Replace(b, c)
	if s.Len() != 2 {
		t.Errorf("Expected 2 names after collapsing replace, got %d", s.Len())
	}

	s.Remove(c)
	if s.Contains(c) {
		t.Error("Expected C to be removed")
	}
}

func TestHistory(t *testing.T) {
	h := NewHistory()
	m := NewMultiName("Base", "a", "b")
	h.Put(m, NewQName("b", "Base"))
	h.Put(m, NewQName("a", "Base"))

	if h.Len() != 1 {
		t.Fatalf("Expected 1 entry, got %d", h.Len())
	}
	q, ok := h.Get(m)
	if !ok || q != NewQName("a", "Base") {
		t.Errorf("Get() = %v, %v; want a:Base, true", q, ok)
	}

	h.Clear()
	if h.Len() != 0 {
		t.Errorf("Expected empty history after Clear, got %d", h.Len())
	}
}
