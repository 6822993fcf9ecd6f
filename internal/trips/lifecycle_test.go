package trips

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cisse-224/clappybackend/internal/fleet"
	"github.com/cisse-224/clappybackend/internal/models"
)

func newFixture(t *testing.T) (*Lifecycle, *MemoryStore, *fleet.Registry) {
	t.Helper()
	store := NewMemoryStore()
	reg := fleet.NewRegistry()
	return NewLifecycle(store, reg, nil), store, reg
}

func addDriver(t *testing.T, reg *fleet.Registry, id string, class models.VehicleClass) {
	t.Helper()
	d := models.Driver{ID: id, Nom: "Chauffeur " + id, Telephone: "+22460" + id, NumeroPermis: "P" + id, Approved: true}
	v := models.Vehicle{Marque: "Toyota", Modele: "Yaris", Plate: "RC-" + id, Class: class, Places: 4}
	if err := reg.Register(d, v); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	if err := reg.SetStatus(id, models.DriverAvailable); err != nil {
		t.Fatalf("set available %s: %v", id, err)
	}
}

func createCourse(t *testing.T, lc *Lifecycle, class models.VehicleClass, tarif float64) *models.Course {
	t.Helper()
	c, err := lc.Create(context.Background(), models.CourseRequest{
		ClientID:    "client-1",
		Class:       class,
		Depart:      "Kaloum",
		Destination: "Ratoma",
		Method:      models.PayEspeces,
	}, tarif)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return c
}

func TestFullLifecycleSequence(t *testing.T) {
	lc, store, reg := newFixture(t)
	addDriver(t, reg, "d1", models.ClassEconomique)
	ctx := context.Background()

	c := createCourse(t, lc, models.ClassEconomique, 25000)
	if c.Status != models.CourseRequested {
		t.Fatalf("expected requested, got %s", c.Status)
	}

	c, err := lc.Accept(ctx, c.ID, "d1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if c.Status != models.CourseAccepted || c.ChauffeurID != "d1" || c.AcceptedAt == nil {
		t.Fatalf("bad accepted course: %+v", c)
	}
	d, _ := reg.Get("d1")
	if d.Status != models.DriverOnTrip {
		t.Fatalf("driver should be on_trip, got %s", d.Status)
	}

	c, err = lc.Start(ctx, c.ID, "d1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if c.Status != models.CourseInProgress || c.StartedAt == nil {
		t.Fatalf("bad in_progress course: %+v", c)
	}

	c, pay, err := lc.Complete(ctx, c.ID, "d1", 30000)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if c.Status != models.CourseCompleted || c.TarifFinal != 30000 || c.EndedAt == nil {
		t.Fatalf("bad completed course: %+v", c)
	}
	if pay.Montant != 30000 || pay.Status != models.PaymentPending {
		t.Fatalf("bad paiement: %+v", pay)
	}
	d, _ = reg.Get("d1")
	if d.Status != models.DriverAvailable {
		t.Fatalf("driver should be released, got %s", d.Status)
	}
	if _, err := store.PaiementForCourse(ctx, c.ID); err != nil {
		t.Fatalf("paiement lookup: %v", err)
	}
}

func TestNoStateSkipping(t *testing.T) {
	lc, _, reg := newFixture(t)
	addDriver(t, reg, "d1", models.ClassEconomique)
	ctx := context.Background()
	c := createCourse(t, lc, models.ClassEconomique, 20000)

	// start before accept
	if _, err := lc.Start(ctx, c.ID, "d1"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	// complete before start
	if _, _, err := lc.Complete(ctx, c.ID, "d1", 0); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := lc.Accept(ctx, c.ID, "d1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	// complete before start, after accept
	if _, _, err := lc.Complete(ctx, c.ID, "d1", 0); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	cur, _ := lc.Get(ctx, c.ID)
	if cur.Status != models.CourseAccepted {
		t.Fatalf("failed transitions must not mutate, got %s", cur.Status)
	}
}

func TestClaimRaceExactlyOneWinner(t *testing.T) {
	lc, _, reg := newFixture(t)
	ctx := context.Background()
	const n = 16
	for i := 0; i < n; i++ {
		addDriver(t, reg, fmt.Sprintf("d%02d", i), models.ClassVIP)
	}
	c := createCourse(t, lc, models.ClassVIP, 50000)

	var wg sync.WaitGroup
	type result struct {
		driver string
		err    error
	}
	results := make(chan result, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("d%02d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := lc.Accept(ctx, c.ID, id)
			results <- result{driver: id, err: err}
		}()
	}
	wg.Wait()
	close(results)

	var winner string
	lost := 0
	for r := range results {
		if r.err == nil {
			if winner != "" {
				t.Fatalf("two winners: %s and %s", winner, r.driver)
			}
			winner = r.driver
		} else if errors.Is(r.err, models.ErrAlreadyClaimed) {
			lost++
		} else {
			t.Fatalf("unexpected error for %s: %v", r.driver, r.err)
		}
	}
	if winner == "" || lost != n-1 {
		t.Fatalf("expected 1 winner and %d losers, got winner=%q lost=%d", n-1, winner, lost)
	}

	cur, _ := lc.Get(ctx, c.ID)
	if cur.ChauffeurID != winner {
		t.Fatalf("assigned driver %s is not the winner %s", cur.ChauffeurID, winner)
	}
	// winner is on_trip, everyone else still available
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("d%02d", i)
		d, _ := reg.Get(id)
		want := models.DriverAvailable
		if id == winner {
			want = models.DriverOnTrip
		}
		if d.Status != want {
			t.Fatalf("driver %s: expected %s, got %s", id, want, d.Status)
		}
	}
}

func TestSecondClaimGetsAlreadyClaimed(t *testing.T) {
	lc, _, reg := newFixture(t)
	addDriver(t, reg, "dX", models.ClassEconomique)
	addDriver(t, reg, "dY", models.ClassEconomique)
	ctx := context.Background()
	c := createCourse(t, lc, models.ClassEconomique, 20000)

	if _, err := lc.Accept(ctx, c.ID, "dX"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := lc.Accept(ctx, c.ID, "dY"); !errors.Is(err, models.ErrAlreadyClaimed) {
		t.Fatalf("expected AlreadyClaimed, got %v", err)
	}
	cur, _ := lc.Get(ctx, c.ID)
	if cur.ChauffeurID != "dX" {
		t.Fatalf("expected dX, got %s", cur.ChauffeurID)
	}
}

func TestClaimClassMismatchRejected(t *testing.T) {
	lc, _, reg := newFixture(t)
	addDriver(t, reg, "moto1", models.ClassMoto)
	ctx := context.Background()
	c := createCourse(t, lc, models.ClassEconomique, 20000)

	if _, err := lc.Accept(ctx, c.ID, "moto1"); !errors.Is(err, models.ErrDriverUnavailable) {
		t.Fatalf("expected DriverUnavailable, got %v", err)
	}
	cur, _ := lc.Get(ctx, c.ID)
	if cur.Status != models.CourseRequested {
		t.Fatalf("course must stay requested, got %s", cur.Status)
	}
	d, _ := reg.Get("moto1")
	if d.Status != models.DriverAvailable {
		t.Fatalf("driver must stay available, got %s", d.Status)
	}
}

func TestClaimBusyDriverRejected(t *testing.T) {
	lc, _, reg := newFixture(t)
	addDriver(t, reg, "d1", models.ClassEconomique)
	ctx := context.Background()
	c1 := createCourse(t, lc, models.ClassEconomique, 20000)
	c2 := createCourse(t, lc, models.ClassEconomique, 20000)

	if _, err := lc.Accept(ctx, c1.ID, "d1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := lc.Accept(ctx, c2.ID, "d1"); !errors.Is(err, models.ErrDriverUnavailable) {
		t.Fatalf("expected DriverUnavailable, got %v", err)
	}
	cur, _ := lc.Get(ctx, c2.ID)
	if cur.Status != models.CourseRequested {
		t.Fatalf("second course must stay requested, got %s", cur.Status)
	}
}

func TestCompleteTwiceSinglePaiement(t *testing.T) {
	lc, store, reg := newFixture(t)
	addDriver(t, reg, "d1", models.ClassEconomique)
	ctx := context.Background()
	c := createCourse(t, lc, models.ClassEconomique, 20000)
	if _, err := lc.Accept(ctx, c.ID, "d1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := lc.Start(ctx, c.ID, "d1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, pay1, err := lc.Complete(ctx, c.ID, "d1", 0)
	if err != nil {
		t.Fatalf("first complete: %v", err)
	}
	_, pay2, err := lc.Complete(ctx, c.ID, "d1", 0)
	if err != nil {
		t.Fatalf("second complete should be idempotent: %v", err)
	}
	if pay1.ID != pay2.ID {
		t.Fatalf("expected the same paiement, got %s and %s", pay1.ID, pay2.ID)
	}
	if _, err := store.PaiementForCourse(ctx, c.ID); err != nil {
		t.Fatalf("paiement lookup: %v", err)
	}
}

// flakyStore fails CompleteCourse a set number of times before delegating.
type flakyStore struct {
	*MemoryStore
	failCompletes int
}

func (f *flakyStore) CompleteCourse(ctx context.Context, c *models.Course, expect models.CourseStatus, pay *models.Paiement) error {
	if f.failCompletes > 0 {
		f.failCompletes--
		return errors.New("write timeout")
	}
	return f.MemoryStore.CompleteCourse(ctx, c, expect, pay)
}

func TestCompleteFailureLeavesNoPartialState(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), failCompletes: 1}
	reg := fleet.NewRegistry()
	lc := NewLifecycle(store, reg, nil)
	addDriver(t, reg, "d1", models.ClassEconomique)
	ctx := context.Background()

	c := createCourse(t, lc, models.ClassEconomique, 20000)
	if _, err := lc.Accept(ctx, c.ID, "d1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := lc.Start(ctx, c.ID, "d1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, _, err := lc.Complete(ctx, c.ID, "d1", 25000); err == nil {
		t.Fatal("expected store failure to surface")
	}
	// nothing committed: course still in_progress, driver still held,
	// no paiement exists
	cur, _ := lc.Get(ctx, c.ID)
	if cur.Status != models.CourseInProgress {
		t.Fatalf("failed completion must not mutate, got %s", cur.Status)
	}
	d, _ := reg.Get("d1")
	if d.Status != models.DriverOnTrip {
		t.Fatalf("driver must stay held for retry, got %s", d.Status)
	}
	if _, err := store.PaiementForCourse(ctx, c.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("no paiement expected, got %v", err)
	}

	// the retry lands atomically
	done, pay, err := lc.Complete(ctx, c.ID, "d1", 25000)
	if err != nil {
		t.Fatalf("retry complete: %v", err)
	}
	if done.Status != models.CourseCompleted || pay.Montant != 25000 {
		t.Fatalf("bad retry result: %+v %+v", done, pay)
	}
	d, _ = reg.Get("d1")
	if d.Status != models.DriverAvailable {
		t.Fatalf("driver should be released after retry, got %s", d.Status)
	}
}

func TestCompleteRepairsMissingPaiement(t *testing.T) {
	lc, store, reg := newFixture(t)
	addDriver(t, reg, "d1", models.ClassEconomique)
	ctx := context.Background()

	c := createCourse(t, lc, models.ClassEconomique, 30000)
	if _, err := lc.Accept(ctx, c.ID, "d1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := lc.Start(ctx, c.ID, "d1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	// simulate a legacy partial write: course completed without a paiement
	cur, _ := store.GetCourse(ctx, c.ID)
	cur.Status = models.CourseCompleted
	cur.TarifFinal = 30000
	if err := store.UpdateCourseIf(ctx, cur, models.CourseInProgress); err != nil {
		t.Fatalf("force complete: %v", err)
	}

	done, pay, err := lc.Complete(ctx, c.ID, "d1", 0)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != models.CourseCompleted || pay == nil || pay.Montant != 30000 {
		t.Fatalf("expected repaired paiement of 30000, got %+v", pay)
	}
	if _, err := store.PaiementForCourse(ctx, c.ID); err != nil {
		t.Fatalf("paiement not persisted: %v", err)
	}
	d, _ := reg.Get("d1")
	if d.Status != models.DriverAvailable {
		t.Fatalf("driver should be released by the repair, got %s", d.Status)
	}
}

func TestCompleteDefaultsToTarifEstime(t *testing.T) {
	lc, _, reg := newFixture(t)
	addDriver(t, reg, "d1", models.ClassEconomique)
	ctx := context.Background()
	c := createCourse(t, lc, models.ClassEconomique, 42000)
	if _, err := lc.Accept(ctx, c.ID, "d1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := lc.Start(ctx, c.ID, "d1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, pay, err := lc.Complete(ctx, c.ID, "d1", 0)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if pay.Montant != 42000 {
		t.Fatalf("expected montant of 42000, got %f", pay.Montant)
	}
}

func TestCancelReleasesDriver(t *testing.T) {
	lc, _, reg := newFixture(t)
	addDriver(t, reg, "d1", models.ClassEconomique)
	ctx := context.Background()
	c := createCourse(t, lc, models.ClassEconomique, 20000)
	if _, err := lc.Accept(ctx, c.ID, "d1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	cancelled, err := lc.Cancel(ctx, c.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.CourseCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	d, _ := reg.Get("d1")
	if d.Status != models.DriverAvailable {
		t.Fatalf("driver should be released, got %s", d.Status)
	}
	// cancel again is idempotent
	if _, err := lc.Cancel(ctx, c.ID); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
}

func TestCancelInProgressRejected(t *testing.T) {
	lc, _, reg := newFixture(t)
	addDriver(t, reg, "d1", models.ClassEconomique)
	ctx := context.Background()
	c := createCourse(t, lc, models.ClassEconomique, 20000)
	_, _ = lc.Accept(ctx, c.ID, "d1")
	_, _ = lc.Start(ctx, c.ID, "d1")
	if _, err := lc.Cancel(ctx, c.ID); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestStartByWrongDriverRejected(t *testing.T) {
	lc, _, reg := newFixture(t)
	addDriver(t, reg, "d1", models.ClassEconomique)
	addDriver(t, reg, "d2", models.ClassEconomique)
	ctx := context.Background()
	c := createCourse(t, lc, models.ClassEconomique, 20000)
	if _, err := lc.Accept(ctx, c.ID, "d1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := lc.Start(ctx, c.ID, "d2"); !errors.Is(err, models.ErrDriverUnavailable) {
		t.Fatalf("expected DriverUnavailable, got %v", err)
	}
}

func TestEvaluateCompletedCourse(t *testing.T) {
	lc, _, reg := newFixture(t)
	addDriver(t, reg, "d1", models.ClassEconomique)
	ctx := context.Background()
	c := createCourse(t, lc, models.ClassEconomique, 20000)
	_, _ = lc.Accept(ctx, c.ID, "d1")
	_, _ = lc.Start(ctx, c.ID, "d1")
	_, _, _ = lc.Complete(ctx, c.ID, "d1", 0)

	e, err := lc.Evaluate(ctx, c.ID, "client-1", 4, 5, "tres bien")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if e.ChauffeurID != "d1" {
		t.Fatalf("expected d1, got %s", e.ChauffeurID)
	}
	// second evaluation for the same course is rejected
	if _, err := lc.Evaluate(ctx, c.ID, "client-1", 5, 5, ""); err == nil {
		t.Fatal("expected duplicate evaluation rejection")
	}
	d, _ := reg.Get("d1")
	if d.Rating != 4.5 {
		t.Fatalf("expected rating 4.5, got %f", d.Rating)
	}
}

func TestEvaluateBeforeCompletionRejected(t *testing.T) {
	lc, _, reg := newFixture(t)
	addDriver(t, reg, "d1", models.ClassEconomique)
	ctx := context.Background()
	c := createCourse(t, lc, models.ClassEconomique, 20000)
	if _, err := lc.Evaluate(ctx, c.ID, "client-1", 5, 5, ""); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}
