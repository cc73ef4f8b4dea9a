package store

import (
	"reflect"
	"testing"
)

func TestOrderByActivity(t *testing.T) {
	catalog := []RoomInfo{
		{ID: "general"},
		{ID: "gaming"},
		{ID: "music"},
	}

	ids := func(rooms []RoomInfo) []string {
		out := make([]string, len(rooms))
		for i, r := range rooms {
			out[i] = r.ID
		}
		return out
	}

	got := ids(OrderByActivity(catalog, []string{"music", "gaming"}))
	if want := []string{"music", "gaming", "general"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}

	// No activity keeps catalog order.
	got = ids(OrderByActivity(catalog, nil))
	if want := []string{"general", "gaming", "music"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}

	// Active ids outside the catalog are ignored.
	got = ids(OrderByActivity(catalog, []string{"secret", "general"}))
	if want := []string{"general", "gaming", "music"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}

	// Input is not mutated.
	if catalog[0].ID != "general" || catalog[2].ID != "music" {
		t.Fatalf("catalog mutated: %v", catalog)
	}
}
