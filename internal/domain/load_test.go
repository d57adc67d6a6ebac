package domain

import "testing"

func TestParseLoadStatus(t *testing.T) {
	t.Parallel()

	if s, ok := ParseLoadStatus("IN_PROGRESS"); !ok || s != LoadStatusInProgress {
		t.Fatalf("ParseLoadStatus=%q,%v want=IN_PROGRESS,true", s, ok)
	}
	if s, ok := ParseLoadStatus("in_progress"); ok || s != "" {
		t.Fatalf("ParseLoadStatus(lower)=%q,%v want=\"\",false", s, ok)
	}
}

func TestLoadStatus_Open(t *testing.T) {
	t.Parallel()

	want := map[LoadStatus]bool{
		LoadStatusAwaitingDriver: false,
		LoadStatusReserved:       true,
		LoadStatusInProgress:     true,
		LoadStatusCompleted:      false,
	}
	for s, w := range want {
		if got := s.Open(); got != w {
			t.Fatalf("%s.Open()=%v want=%v", s, got, w)
		}
	}
}

func TestLoad_Rejectable(t *testing.T) {
	t.Parallel()

	if !(Load{Status: LoadStatusReserved}).Rejectable() {
		t.Fatalf("reserved load should be rejectable")
	}
	if (Load{Status: LoadStatusInProgress}).Rejectable() {
		t.Fatalf("in-progress load should not be rejectable")
	}
}

func TestLoad_CloneIsDeep(t *testing.T) {
	t.Parallel()

	orig := &Load{
		ID:             "l1",
		Status:         LoadStatusReserved,
		CurrentStop:    StopPickup,
		Pickup:         &Coordinate{Lat: 1, Lng: 2},
		Dropoff:        &Coordinate{Lat: 3, Lng: 4},
		AssignedDriver: &AssignedDriver{ID: "d1", Name: "Ana"},
	}
	c := CloneLoad(orig)
	c.Pickup.Lat = 9
	c.Dropoff.Lng = 9
	c.AssignedDriver.Name = "Bo"

	if orig.Pickup.Lat != 1 || orig.Dropoff.Lng != 4 || orig.AssignedDriver.Name != "Ana" {
		t.Fatalf("clone shares pointers with original: %+v", orig)
	}
	if CloneLoad(nil) != nil {
		t.Fatalf("CloneLoad(nil) should be nil")
	}
}

func TestNormalizeHumanName(t *testing.T) {
	t.Parallel()

	if got := NormalizeHumanName("  Ana \t  Maria "); got != "Ana Maria" {
		t.Fatalf("NormalizeHumanName=%q want=%q", got, "Ana Maria")
	}
}
