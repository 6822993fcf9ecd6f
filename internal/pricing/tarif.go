package pricing

import (
	"fmt"
	"math"
	"sync"

	"github.com/cisse-224/clappybackend/internal/models"
)

// Table holds the active tariff per vehicle class. Fare = prix_base +
// distance_km * prix_par_km, rounded to the nearest 100 GNF.
type Table struct {
	mu     sync.RWMutex
	tarifs map[models.VehicleClass]models.Tarif
	// defaultKm is assumed when a request carries no coordinates.
	defaultKm float64
}

func NewTable(defaultKm float64) *Table {
	if defaultKm <= 0 {
		defaultKm = 5
	}
	return &Table{tarifs: make(map[models.VehicleClass]models.Tarif), defaultKm: defaultKm}
}

// DefaultTable seeds plausible GNF tariffs for every class.
func DefaultTable(defaultKm float64) *Table {
	t := NewTable(defaultKm)
	t.Set(models.Tarif{Class: models.ClassEconomique, PrixBase: 10000, PrixParKm: 2500, Active: true})
	t.Set(models.Tarif{Class: models.ClassClimatiser, PrixBase: 15000, PrixParKm: 3500, Active: true})
	t.Set(models.Tarif{Class: models.ClassVIP, PrixBase: 25000, PrixParKm: 5000, Active: true})
	t.Set(models.Tarif{Class: models.ClassMoto, PrixBase: 5000, PrixParKm: 1500, Active: true})
	return t
}

func (t *Table) Set(tarif models.Tarif) {
	t.mu.Lock()
	t.tarifs[tarif.Class] = tarif
	t.mu.Unlock()
}

func (t *Table) Get(class models.VehicleClass) (models.Tarif, bool) {
	t.mu.RLock()
	tarif, ok := t.tarifs[class]
	t.mu.RUnlock()
	return tarif, ok && tarif.Active
}

// Estimate computes the fare for a trip of the given class. Missing
// coordinates fall back to the table's default distance.
func (t *Table) Estimate(class models.VehicleClass, from, to *models.Coord) (float64, error) {
	tarif, ok := t.Get(class)
	if !ok {
		return 0, fmt.Errorf("no active tarif for class %q", class)
	}
	km := t.defaultKm
	if from != nil && to != nil {
		km = Haversine(from.Lat, from.Lon, to.Lat, to.Lon) / 1000.0
	}
	fare := tarif.PrixBase + km*tarif.PrixParKm
	return math.Round(fare/100) * 100, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
