package models

import "time"

// VehicleClass is the category a vehicle belongs to. Classes keep the wire
// values clients already send; they also determine the presence group a
// driver joins and which course alerts reach them.
type VehicleClass string

const (
	ClassClimatiser VehicleClass = "climatiser"
	ClassEconomique VehicleClass = "economique"
	ClassVIP        VehicleClass = "vip"
	ClassMoto       VehicleClass = "moto"
)

func (c VehicleClass) Valid() bool {
	switch c {
	case ClassClimatiser, ClassEconomique, ClassVIP, ClassMoto:
		return true
	}
	return false
}

// PresenceGroup names the broadcast group for a vehicle class.
func PresenceGroup(c VehicleClass) string { return "chauffeurs_" + string(c) }

type DriverStatus string

const (
	DriverOffline   DriverStatus = "offline"
	DriverAvailable DriverStatus = "available"
	DriverOnTrip    DriverStatus = "on_trip"
	DriverPaused    DriverStatus = "paused"
)

type CourseStatus string

const (
	CourseRequested  CourseStatus = "requested"
	CourseAccepted   CourseStatus = "accepted"
	CourseInProgress CourseStatus = "in_progress"
	CourseCompleted  CourseStatus = "completed"
	CourseCancelled  CourseStatus = "cancelled"
)

// Terminal reports whether no further lifecycle transition is possible.
func (s CourseStatus) Terminal() bool {
	return s == CourseCompleted || s == CourseCancelled
}

type CourseType string

const (
	CourseImmediate   CourseType = "immediate"
	CourseReservation CourseType = "reservation"
)

type PaymentMethod string

const (
	PayEspeces     PaymentMethod = "especes"
	PayMobileMoney PaymentMethod = "mobile_money"
	PayCarte       PaymentMethod = "carte_bancaire"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PayEspeces, PayMobileMoney, PayCarte:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Client struct {
	ID        string    `json:"id"`
	Nom       string    `json:"nom"`
	Telephone string    `json:"telephone"`
	CreatedAt time.Time `json:"created_at"`
}

type Driver struct {
	ID           string       `json:"id"`
	Nom          string       `json:"nom"`
	Telephone    string       `json:"telephone"`
	NumeroPermis string       `json:"numero_permis"`
	Status       DriverStatus `json:"statut"`
	Approved     bool         `json:"est_approuve"`
	Rating       float64      `json:"note_moyenne"`
	CreatedAt    time.Time    `json:"created_at"`
}

type Vehicle struct {
	DriverID string       `json:"chauffeur_id"`
	Marque   string       `json:"marque"`
	Modele   string       `json:"modele"`
	Annee    int          `json:"annee"`
	Plate    string       `json:"immatriculation"`
	Couleur  string       `json:"couleur"`
	Class    VehicleClass `json:"type_vehicule"`
	Places   int          `json:"nombre_places"`
}

// Course is a single ride from request to completion or cancellation.
// ChauffeurID stays empty until a driver wins the claim race.
type Course struct {
	ID            string        `json:"id"`
	ClientID      string        `json:"client_id"`
	ChauffeurID   string        `json:"chauffeur_id,omitempty"`
	Class         VehicleClass  `json:"type_vehicule_demande"`
	Depart        string        `json:"adresse_depart"`
	Destination   string        `json:"adresse_destination"`
	DepartCoord   *Coord        `json:"coord_depart,omitempty"`
	DestCoord     *Coord        `json:"coord_destination,omitempty"`
	Type          CourseType    `json:"type_course"`
	Status        CourseStatus  `json:"statut"`
	RequestedAt   time.Time     `json:"date_demande"`
	AcceptedAt    *time.Time    `json:"date_acceptation,omitempty"`
	StartedAt     *time.Time    `json:"date_debut,omitempty"`
	EndedAt       *time.Time    `json:"date_fin,omitempty"`
	ReservationAt *time.Time    `json:"date_reservation,omitempty"`
	TarifEstime   float64       `json:"tarif_estime"`
	TarifFinal    float64       `json:"tarif_final,omitempty"`
	Method        PaymentMethod `json:"methode_paiement"`
	NotesClient   string        `json:"notes_client,omitempty"`
}

type Paiement struct {
	ID            string        `json:"id"`
	CourseID      string        `json:"course_id"`
	Montant       float64       `json:"montant"`
	Status        PaymentStatus `json:"statut_paiement"`
	Method        PaymentMethod `json:"methode_paiement"`
	TransactionID string        `json:"identifiant_transaction,omitempty"`
	OperateurMM   string        `json:"operateur_mobile_money,omitempty"`
	NumeroMM      string        `json:"numero_mobile_money,omitempty"`
	CreatedAt     time.Time     `json:"date_paiement"`
	ConfirmedAt   *time.Time    `json:"date_confirmation,omitempty"`
}

type Evaluation struct {
	ID            string    `json:"id"`
	CourseID      string    `json:"course_id"`
	ChauffeurID   string    `json:"chauffeur_id"`
	ClientID      string    `json:"client_id"`
	NoteChauffeur int       `json:"note_chauffeur"`
	NoteVehicule  int       `json:"note_vehicule"`
	Commentaire   string    `json:"commentaire,omitempty"`
	CreatedAt     time.Time `json:"date_evaluation"`
}

type Tarif struct {
	Class     VehicleClass `json:"type_vehicule"`
	PrixBase  float64      `json:"prix_base"`
	PrixParKm float64      `json:"prix_par_km"`
	Active    bool         `json:"est_actif"`
}

// Position is one GPS sample for a driver, flowing through the Kafka
// ingest pipeline into the Redis geo index.
type Position struct {
	DriverID string    `json:"chauffeur_id"`
	Lat      float64   `json:"latitude"`
	Lon      float64   `json:"longitude"`
	At       time.Time `json:"date_position"`
}

// CourseRequest is the rider-facing creation payload.
type CourseRequest struct {
	ClientID    string        `json:"client_id"`
	Class       VehicleClass  `json:"type_vehicule_demande"`
	Depart      string        `json:"adresse_depart"`
	Destination string        `json:"adresse_destination"`
	DepartCoord *Coord        `json:"coord_depart,omitempty"`
	DestCoord   *Coord        `json:"coord_destination,omitempty"`
	Type        CourseType    `json:"type_course,omitempty"`
	TarifEstime float64       `json:"tarif_estime,omitempty"`
	Method      PaymentMethod `json:"methode_paiement"`
	NotesClient string        `json:"notes_client,omitempty"`
}
