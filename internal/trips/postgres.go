package trips

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"

	"github.com/cisse-224/clappybackend/internal/models"
)

// PostgresStore persists courses behind the CourseStore interface. The
// conditional status update is a single UPDATE ... WHERE statut=$expect so
// the claim CAS rides on the database's row-level atomicity.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing handle; used by tests.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const courseColumns = `id, client_id, chauffeur_id, type_vehicule_demande, adresse_depart, adresse_destination,
	lat_depart, lon_depart, lat_destination, lon_destination, type_course, statut,
	date_demande, date_acceptation, date_debut, date_fin, tarif_estime, tarif_final, methode_paiement, notes_client`

func (p *PostgresStore) CreateCourse(ctx context.Context, c *models.Course) error {
	var dLat, dLon, aLat, aLon sql.NullFloat64
	if c.DepartCoord != nil {
		dLat = sql.NullFloat64{Float64: c.DepartCoord.Lat, Valid: true}
		dLon = sql.NullFloat64{Float64: c.DepartCoord.Lon, Valid: true}
	}
	if c.DestCoord != nil {
		aLat = sql.NullFloat64{Float64: c.DestCoord.Lat, Valid: true}
		aLon = sql.NullFloat64{Float64: c.DestCoord.Lon, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO courses(`+courseColumns+`)
		VALUES($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		c.ID, c.ClientID, c.ChauffeurID, c.Class, c.Depart, c.Destination,
		dLat, dLon, aLat, aLon, c.Type, c.Status,
		c.RequestedAt, c.AcceptedAt, c.StartedAt, c.EndedAt, c.TarifEstime, nullFloat(c.TarifFinal), c.Method, c.NotesClient)
	return err
}

func (p *PostgresStore) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE id=$1`, id)
	return scanCourse(row)
}

func (p *PostgresStore) UpdateCourseIf(ctx context.Context, c *models.Course, expect models.CourseStatus) error {
	res, err := p.db.ExecContext(ctx, `UPDATE courses
		SET chauffeur_id=NULLIF($1,''), statut=$2, date_acceptation=$3, date_debut=$4, date_fin=$5, tarif_final=$6
		WHERE id=$7 AND statut=$8`,
		c.ChauffeurID, c.Status, c.AcceptedAt, c.StartedAt, c.EndedAt, nullFloat(c.TarifFinal), c.ID, expect)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// row missing or precondition failed; disambiguate for the caller
		var one int
		if err := p.db.QueryRowContext(ctx, `SELECT 1 FROM courses WHERE id=$1`, c.ID).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrNotFound
			}
			return err
		}
		return ErrStatusConflict
	}
	return nil
}

// CompleteCourse runs the conditional status update and the paiement insert
// inside one transaction so a failed insert rolls the completion back.
func (p *PostgresStore) CompleteCourse(ctx context.Context, c *models.Course, expect models.CourseStatus, pay *models.Paiement) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE courses
		SET chauffeur_id=NULLIF($1,''), statut=$2, date_acceptation=$3, date_debut=$4, date_fin=$5, tarif_final=$6
		WHERE id=$7 AND statut=$8`,
		c.ChauffeurID, c.Status, c.AcceptedAt, c.StartedAt, c.EndedAt, nullFloat(c.TarifFinal), c.ID, expect)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n == 0 {
		_ = tx.Rollback()
		var one int
		if err := p.db.QueryRowContext(ctx, `SELECT 1 FROM courses WHERE id=$1`, c.ID).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrNotFound
			}
			return err
		}
		return ErrStatusConflict
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO paiements(id, course_id, montant, statut_paiement, methode_paiement,
		identifiant_transaction, operateur_mobile_money, numero_mobile_money, date_paiement, date_confirmation)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		pay.ID, pay.CourseID, pay.Montant, pay.Status, pay.Method,
		pay.TransactionID, pay.OperateurMM, pay.NumeroMM, pay.CreatedAt, pay.ConfirmedAt); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) CoursesByClient(ctx context.Context, clientID string) ([]*models.Course, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE client_id=$1 ORDER BY date_demande DESC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCourses(rows)
}

func (p *PostgresStore) CoursesByChauffeur(ctx context.Context, chauffeurID string) ([]*models.Course, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE chauffeur_id=$1 ORDER BY date_demande DESC`, chauffeurID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCourses(rows)
}

func (p *PostgresStore) SavePaiement(ctx context.Context, pay *models.Paiement) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO paiements(id, course_id, montant, statut_paiement, methode_paiement,
		identifiant_transaction, operateur_mobile_money, numero_mobile_money, date_paiement, date_confirmation)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		pay.ID, pay.CourseID, pay.Montant, pay.Status, pay.Method,
		pay.TransactionID, pay.OperateurMM, pay.NumeroMM, pay.CreatedAt, pay.ConfirmedAt)
	return err
}

const paiementColumns = `id, course_id, montant, statut_paiement, methode_paiement,
	identifiant_transaction, operateur_mobile_money, numero_mobile_money, date_paiement, date_confirmation`

func (p *PostgresStore) GetPaiement(ctx context.Context, id string) (*models.Paiement, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+paiementColumns+` FROM paiements WHERE id=$1`, id)
	return scanPaiement(row)
}

func (p *PostgresStore) PaiementForCourse(ctx context.Context, courseID string) (*models.Paiement, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+paiementColumns+` FROM paiements WHERE course_id=$1`, courseID)
	return scanPaiement(row)
}

func (p *PostgresStore) UpdatePaiement(ctx context.Context, pay *models.Paiement) error {
	res, err := p.db.ExecContext(ctx, `UPDATE paiements SET statut_paiement=$1, identifiant_transaction=$2, date_confirmation=$3 WHERE id=$4`,
		pay.Status, pay.TransactionID, pay.ConfirmedAt, pay.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) SaveEvaluation(ctx context.Context, e *models.Evaluation) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO evaluations(id, course_id, chauffeur_id, client_id, note_chauffeur, note_vehicule, commentaire, date_evaluation)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.CourseID, e.ChauffeurID, e.ClientID, e.NoteChauffeur, e.NoteVehicule, e.Commentaire, e.CreatedAt)
	return err
}

func (p *PostgresStore) EvaluationForCourse(ctx context.Context, courseID string) (*models.Evaluation, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id, course_id, chauffeur_id, client_id, note_chauffeur, note_vehicule, commentaire, date_evaluation
		FROM evaluations WHERE course_id=$1`, courseID)
	var e models.Evaluation
	err := row.Scan(&e.ID, &e.CourseID, &e.ChauffeurID, &e.ClientID, &e.NoteChauffeur, &e.NoteVehicule, &e.Commentaire, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(row rowScanner) (*models.Course, error) {
	var c models.Course
	var chauffeur sql.NullString
	var dLat, dLon, aLat, aLon, final sql.NullFloat64
	err := row.Scan(&c.ID, &c.ClientID, &chauffeur, &c.Class, &c.Depart, &c.Destination,
		&dLat, &dLon, &aLat, &aLon, &c.Type, &c.Status,
		&c.RequestedAt, &c.AcceptedAt, &c.StartedAt, &c.EndedAt, &c.TarifEstime, &final, &c.Method, &c.NotesClient)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.ChauffeurID = chauffeur.String
	if dLat.Valid && dLon.Valid {
		c.DepartCoord = &models.Coord{Lat: dLat.Float64, Lon: dLon.Float64}
	}
	if aLat.Valid && aLon.Valid {
		c.DestCoord = &models.Coord{Lat: aLat.Float64, Lon: aLon.Float64}
	}
	if final.Valid {
		c.TarifFinal = final.Float64
	}
	return &c, nil
}

func scanCourses(rows *sql.Rows) ([]*models.Course, error) {
	var out []*models.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanPaiement(row rowScanner) (*models.Paiement, error) {
	var pay models.Paiement
	err := row.Scan(&pay.ID, &pay.CourseID, &pay.Montant, &pay.Status, &pay.Method,
		&pay.TransactionID, &pay.OperateurMM, &pay.NumeroMM, &pay.CreatedAt, &pay.ConfirmedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pay, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if v == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
