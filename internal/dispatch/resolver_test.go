package dispatch

import (
	"reflect"
	"testing"

	"conveyor/internal/models"
)

func sampleRoute() models.Route {
	return models.Route{
		ID:              7,
		UserID:          1,
		Name:            "furnace feed",
		SourceID:        11,
		DestID:          12,
		SourceName:      "minecraft:chest_0",
		DestName:        "minecraft:furnace_2",
		SourceMachineID: 3,
		DestMachineID:   3,
		Filter:          models.AllItems(),
		Enabled:         true,
	}
}

func TestResolveEnabledRoute(t *testing.T) {
	directive, ok := Resolve(sampleRoute(), 3)
	if !ok {
		t.Fatal("expected a directive for an enabled bus-local route")
	}
	if directive.RouteID != 7 || directive.Action != ActionTransfer {
		t.Fatalf("unexpected directive header: %+v", directive)
	}
	if directive.Source != "minecraft:chest_0" || directive.Dest != "minecraft:furnace_2" {
		t.Fatalf("unexpected endpoints: %+v", directive)
	}
	if directive.FilterKind != models.FilterAll {
		t.Fatalf("expected accept-all filter, got %s", directive.FilterKind)
	}
}

func TestResolveDisabledRouteSkips(t *testing.T) {
	route := sampleRoute()
	route.Enabled = false
	route.Filter = models.SubstringFilter("iron")
	if _, ok := Resolve(route, 3); ok {
		t.Fatal("disabled route must be skipped regardless of filter contents")
	}
}

func TestResolveCrossMachineRouteSkips(t *testing.T) {
	route := sampleRoute()
	route.DestMachineID = 4
	if _, ok := Resolve(route, 3); ok {
		t.Fatal("cross-machine peripheral pair must be skipped")
	}
	if _, ok := Resolve(sampleRoute(), 99); ok {
		t.Fatal("route addressed to another machine must be skipped")
	}
}

func TestResolveDanglingPeripheralSkips(t *testing.T) {
	route := sampleRoute()
	route.SourceName = ""
	if _, ok := Resolve(route, 3); ok {
		t.Fatal("dangling source reference must be skipped, not errored")
	}
}

func TestResolveNameListFilter(t *testing.T) {
	route := sampleRoute()
	route.Filter = models.NamesFilter([]string{"iron_ingot", "gold_ingot"})

	directive, ok := Resolve(route, 3)
	if !ok {
		t.Fatal("expected directive")
	}
	for _, item := range []string{"iron_ingot", "gold_ingot"} {
		if !directive.Accepts(item) {
			t.Errorf("name list should accept %q", item)
		}
	}
	for _, item := range []string{"iron_block", "iron", "gold_ingots", ""} {
		if directive.Accepts(item) {
			t.Errorf("name list should reject %q", item)
		}
	}
}

func TestResolveSubstringFilter(t *testing.T) {
	route := sampleRoute()
	route.Filter = models.SubstringFilter("iron")

	directive, ok := Resolve(route, 3)
	if !ok {
		t.Fatal("expected directive")
	}
	for _, item := range []string{"iron_block", "raw_iron", "iron"} {
		if !directive.Accepts(item) {
			t.Errorf("substring filter should accept %q", item)
		}
	}
	if directive.Accepts("gold_ingot") {
		t.Error("substring filter should reject gold_ingot")
	}
	// Raw, case-sensitive substring semantics match the remote executor.
	if directive.Accepts("IRON_BLOCK") {
		t.Error("substring filter must stay case-sensitive")
	}
}

// A stored row that carries both a substring and a name list violates the
// write-time invariant; the substring wins. This is a documented defensive
// tie-break, not behavior callers may rely on.
func TestFilterMutualExclusivityTieBreak(t *testing.T) {
	filter := models.NewFilter("iron", []string{"gold_ingot"})
	if filter.Kind() != models.FilterSubstring {
		t.Fatalf("expected substring precedence, got %s", filter.Kind())
	}
	if filter.Matches("gold_ingot") {
		t.Fatal("name list must be ignored when substring is present")
	}
	if !filter.Matches("raw_iron") {
		t.Fatal("substring must stay effective")
	}
}

func TestResolveIdempotent(t *testing.T) {
	route := sampleRoute()
	route.Filter = models.NamesFilter([]string{"iron_ingot"})

	first, ok1 := Resolve(route, 3)
	second, ok2 := Resolve(route, 3)
	if !ok1 || !ok2 {
		t.Fatal("expected directives from both calls")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("directives differ across identical calls: %+v vs %+v", first, second)
	}
	for _, item := range []string{"iron_ingot", "gold_ingot", "stone"} {
		if first.Accepts(item) != second.Accepts(item) {
			t.Fatalf("predicates disagree on %q", item)
		}
	}
}

func TestResolveAllDropsSkips(t *testing.T) {
	enabled := sampleRoute()
	disabled := sampleRoute()
	disabled.ID = 8
	disabled.Enabled = false
	foreign := sampleRoute()
	foreign.ID = 9
	foreign.SourceMachineID = 5
	foreign.DestMachineID = 5

	directives := ResolveAll([]models.Route{disabled, enabled, foreign}, 3)
	if len(directives) != 1 || directives[0].RouteID != 7 {
		t.Fatalf("expected only route 7 resolved, got %+v", directives)
	}
}
