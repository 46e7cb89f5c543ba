package registry

import (
	"errors"
	"strings"
	"testing"
)

func testRegistry(t *testing.T, deps map[string][]string, order []string) *Registry {
	t.Helper()
	r := New()
	for _, name := range order {
		if err := r.Register(&Descriptor{Name: name, Dependencies: deps[name]}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	return r
}

func indexOf(order []string, name string) int {
	for i, n := range order {
		if n == name {
			return i
		}
	}
	return -1
}

func TestResolveDependenciesOrder(t *testing.T) {
	r := testRegistry(t, map[string][]string{
		"entity_sentiment": {"ner", "sentiment"},
	}, []string{"stats", "sentiment", "ner", "entity_sentiment"})

	order, err := r.ResolveDependencies([]string{"entity_sentiment", "stats"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("expected 4 modules, got %v", order)
	}
	es := indexOf(order, "entity_sentiment")
	if indexOf(order, "ner") > es || indexOf(order, "sentiment") > es {
		t.Errorf("dependencies must precede entity_sentiment, got %v", order)
	}
}

func TestResolveDependenciesTransitiveClosure(t *testing.T) {
	r := testRegistry(t, map[string][]string{
		"c": {"b"},
		"b": {"a"},
	}, []string{"a", "b", "c"})

	order, err := r.ResolveDependencies([]string{"c"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestResolveDependenciesRegistrationOrderTieBreak(t *testing.T) {
	// No constraints between the three: registration order decides.
	r := testRegistry(t, nil, []string{"zeta", "alpha", "mid"})

	order, err := r.ResolveDependencies([]string{"mid", "alpha", "zeta"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"zeta", "alpha", "mid"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("expected registration order %v, got %v", want, order)
		}
	}
}

func TestResolveDependenciesUnknownModule(t *testing.T) {
	r := testRegistry(t, nil, []string{"stats"})

	_, err := r.ResolveDependencies([]string{"stats", "nope"})
	var unknown *UnknownModuleError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownModuleError, got %v", err)
	}
	if unknown.Name != "nope" {
		t.Errorf("expected unknown module name nope, got %q", unknown.Name)
	}
}

func TestResolveDependenciesUnknownDependency(t *testing.T) {
	r := testRegistry(t, map[string][]string{"a": {"ghost"}}, []string{"a"})

	_, err := r.ResolveDependencies([]string{"a"})
	var unknown *UnknownModuleError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownModuleError, got %v", err)
	}
}

func TestResolveDependenciesCycle(t *testing.T) {
	r := testRegistry(t, map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}, []string{"a", "b", "c"})

	_, err := r.ResolveDependencies([]string{"a"})
	var cyc *CyclicDependencyError
	if !errors.As(err, &cyc) {
		t.Fatalf("expected CyclicDependencyError, got %v", err)
	}
	for _, name := range []string{"a", "b", "c"} {
		if indexOf(cyc.Cycle, name) < 0 {
			t.Errorf("cycle %v should name %s", cyc.Cycle, name)
		}
	}
	if !strings.Contains(err.Error(), "->") {
		t.Errorf("cycle error should spell out the path, got %q", err.Error())
	}
}

func TestResolveDependenciesSelfCycle(t *testing.T) {
	r := testRegistry(t, map[string][]string{"a": {"a"}}, []string{"a"})

	_, err := r.ResolveDependencies([]string{"a"})
	var cyc *CyclicDependencyError
	if !errors.As(err, &cyc) {
		t.Fatalf("expected CyclicDependencyError, got %v", err)
	}
}

func TestResolveDependenciesDeduplicates(t *testing.T) {
	r := testRegistry(t, map[string][]string{"b": {"a"}}, []string{"a", "b"})

	order, err := r.ResolveDependencies([]string{"b", "a", "b"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("expected deduplicated order of 2, got %v", order)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := New()
	if err := r.Register(&Descriptor{Name: "stats"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(&Descriptor{Name: "stats"}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if err := r.Register(&Descriptor{}); err == nil {
		t.Fatal("expected empty name to fail")
	}
}
