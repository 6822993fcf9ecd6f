package models

import "testing"

func TestVehicleClassValid(t *testing.T) {
	for _, c := range []VehicleClass{ClassClimatiser, ClassEconomique, ClassVIP, ClassMoto} {
		if !c.Valid() {
			t.Fatalf("%s should be valid", c)
		}
	}
	if VehicleClass("berline").Valid() {
		t.Fatal("unknown class must be invalid")
	}
	if VehicleClass("").Valid() {
		t.Fatal("empty class must be invalid")
	}
}

func TestPresenceGroupNaming(t *testing.T) {
	if got := PresenceGroup(ClassEconomique); got != "chauffeurs_economique" {
		t.Fatalf("bad group name %q", got)
	}
	if got := PresenceGroup(ClassVIP); got != "chauffeurs_vip" {
		t.Fatalf("bad group name %q", got)
	}
}

func TestCourseStatusTerminal(t *testing.T) {
	terminal := map[CourseStatus]bool{
		CourseRequested:  false,
		CourseAccepted:   false,
		CourseInProgress: false,
		CourseCompleted:  true,
		CourseCancelled:  true,
	}
	for s, want := range terminal {
		if s.Terminal() != want {
			t.Fatalf("%s: expected terminal=%v", s, want)
		}
	}
}

func TestPaymentMethodValid(t *testing.T) {
	for _, m := range []PaymentMethod{PayEspeces, PayMobileMoney, PayCarte} {
		if !m.Valid() {
			t.Fatalf("%s should be valid", m)
		}
	}
	if PaymentMethod("cheque").Valid() {
		t.Fatal("unknown method must be invalid")
	}
}
