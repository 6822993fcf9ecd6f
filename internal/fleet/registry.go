package fleet

import (
	"fmt"
	"sync"
	"time"

	"github.com/cisse-224/clappybackend/internal/models"
)

// Registry tracks drivers and their vehicles. Lookup is guarded by the
// registry lock; status transitions are guarded per driver so contention
// stays scoped to a single driver id.
type Registry struct {
	mu       sync.RWMutex
	drivers  map[string]*driverEntry
	vehicles map[string]models.Vehicle
	plates   map[string]string
	permis   map[string]string
}

type driverEntry struct {
	mu sync.Mutex
	d  models.Driver
	// ratingCount backs the incremental average in ApplyRating.
	ratingCount int
}

func NewRegistry() *Registry {
	return &Registry{
		drivers:  make(map[string]*driverEntry),
		vehicles: make(map[string]models.Vehicle),
		plates:   make(map[string]string),
		permis:   make(map[string]string),
	}
}

// Register adds a driver together with their vehicle. Plate and license
// numbers are unique system-wide.
func (r *Registry) Register(d models.Driver, v models.Vehicle) error {
	if !v.Class.Valid() {
		return fmt.Errorf("unknown vehicle class %q", v.Class)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.drivers[d.ID]; ok {
		return fmt.Errorf("driver %s already registered", d.ID)
	}
	if owner, ok := r.plates[v.Plate]; ok {
		return fmt.Errorf("plate %s already registered to driver %s", v.Plate, owner)
	}
	if owner, ok := r.permis[d.NumeroPermis]; ok && d.NumeroPermis != "" {
		return fmt.Errorf("license %s already registered to driver %s", d.NumeroPermis, owner)
	}
	if d.Status == "" {
		d.Status = models.DriverOffline
	}
	if d.Rating == 0 {
		d.Rating = 5.0
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	v.DriverID = d.ID
	// the starting note counts as one observation so early evaluations
	// don't swing the average to their exact value
	r.drivers[d.ID] = &driverEntry{d: d, ratingCount: 1}
	r.vehicles[d.ID] = v
	r.plates[v.Plate] = d.ID
	if d.NumeroPermis != "" {
		r.permis[d.NumeroPermis] = d.ID
	}
	return nil
}

func (r *Registry) entry(id string) (*driverEntry, bool) {
	r.mu.RLock()
	e, ok := r.drivers[id]
	r.mu.RUnlock()
	return e, ok
}

// Get returns a copy of the driver record.
func (r *Registry) Get(id string) (models.Driver, error) {
	e, ok := r.entry(id)
	if !ok {
		return models.Driver{}, models.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.d, nil
}

// VehicleOf returns the vehicle assigned to the driver, if any.
func (r *Registry) VehicleOf(id string) (models.Vehicle, bool) {
	r.mu.RLock()
	v, ok := r.vehicles[id]
	r.mu.RUnlock()
	return v, ok
}

// legal status edges; anything may drop to offline on disconnect.
var edges = map[models.DriverStatus][]models.DriverStatus{
	models.DriverOffline:   {models.DriverAvailable},
	models.DriverAvailable: {models.DriverOnTrip, models.DriverPaused, models.DriverOffline},
	models.DriverOnTrip:    {models.DriverAvailable, models.DriverOffline},
	models.DriverPaused:    {models.DriverAvailable, models.DriverOffline},
}

func legalEdge(from, to models.DriverStatus) bool {
	for _, t := range edges[from] {
		if t == to {
			return true
		}
	}
	return false
}

// SetStatus moves a driver along a legal status edge. Setting the status the
// driver already has is a no-op.
func (r *Registry) SetStatus(id string, to models.DriverStatus) error {
	e, ok := r.entry(id)
	if !ok {
		return models.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.d.Status == to {
		return nil
	}
	if !legalEdge(e.d.Status, to) {
		return fmt.Errorf("driver %s: %s -> %s: %w", id, e.d.Status, to, models.ErrInvalidTransition)
	}
	e.d.Status = to
	return nil
}

// TryAcquire atomically moves an available driver to on_trip. It is the
// driver-side half of the claim race: at most one concurrent caller can
// succeed for a given driver.
func (r *Registry) TryAcquire(id string) error {
	e, ok := r.entry(id)
	if !ok {
		return models.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.d.Status != models.DriverAvailable {
		return models.ErrDriverUnavailable
	}
	e.d.Status = models.DriverOnTrip
	return nil
}

// Release returns a driver from on_trip to available. Releasing a driver who
// is not on a trip is a no-op: completion and cancellation may both attempt
// it after a disconnect already dropped the driver offline.
func (r *Registry) Release(id string) {
	e, ok := r.entry(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.d.Status == models.DriverOnTrip {
		e.d.Status = models.DriverAvailable
	}
}

// MarkOnline is called when a presence session opens: an offline driver
// becomes available; any other state is preserved.
func (r *Registry) MarkOnline(id string) error {
	e, ok := r.entry(id)
	if !ok {
		return models.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.d.Status == models.DriverOffline {
		e.d.Status = models.DriverAvailable
	}
	return nil
}

// MarkOffline is the sole mechanism taking a driver offline; it fires on
// presence disconnect, voluntary or not.
func (r *Registry) MarkOffline(id string) {
	e, ok := r.entry(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.d.Status = models.DriverOffline
}

// ApplyRating folds one evaluation note into the driver's running average.
func (r *Registry) ApplyRating(id string, note int) error {
	e, ok := r.entry(id)
	if !ok {
		return models.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := float64(e.ratingCount)
	e.d.Rating = (e.d.Rating*n + float64(note)) / (n + 1)
	e.ratingCount++
	return nil
}

// Directory is the minimal client-side counterpart of the registry: enough
// identity to notify the rider who requested a course.
type Directory struct {
	mu      sync.RWMutex
	clients map[string]models.Client
}

func NewDirectory() *Directory {
	return &Directory{clients: make(map[string]models.Client)}
}

func (d *Directory) Register(c models.Client) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.clients[c.ID]; ok {
		return fmt.Errorf("client %s already registered", c.ID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	d.clients[c.ID] = c
	return nil
}

func (d *Directory) Get(id string) (models.Client, error) {
	d.mu.RLock()
	c, ok := d.clients[id]
	d.mu.RUnlock()
	if !ok {
		return models.Client{}, models.ErrNotFound
	}
	return c, nil
}

// PhoneOf returns the client's phone number for SMS delivery.
func (d *Directory) PhoneOf(id string) (string, bool) {
	d.mu.RLock()
	c, ok := d.clients[id]
	d.mu.RUnlock()
	if !ok {
		return "", false
	}
	return c.Telephone, true
}
