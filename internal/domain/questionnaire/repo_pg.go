package questionnaire

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/intake/internal/platform/db"
	"github.com/ehr/intake/internal/platform/fhir"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// =========== Questionnaire Repository ===========

type questionnaireRepoPG struct{ pool *pgxpool.Pool }

func NewQuestionnaireRepoPG(pool *pgxpool.Pool) QuestionnaireRepository {
	return &questionnaireRepoPG{pool: pool}
}

func (r *questionnaireRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const questCols = `id, slug, version, title, description, status, subject_type, questions,
	version_id, created_at, updated_at`

func (r *questionnaireRepoPG) scanQuestionnaire(row pgx.Row) (*Questionnaire, error) {
	var q Questionnaire
	var slug *string
	var questions []byte
	err := row.Scan(&q.ID, &slug, &q.Version, &q.Title, &q.Description, &q.Status, &q.SubjectType,
		&questions, &q.VersionID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if slug != nil {
		q.Slug = *slug
	}
	if err := json.Unmarshal(questions, &q.Questions); err != nil {
		return nil, fmt.Errorf("decode questions of %s: %w", q.ID, err)
	}
	return &q, nil
}

func nullableSlug(slug string) *string {
	if slug == "" {
		return nil
	}
	return &slug
}

func (r *questionnaireRepoPG) Create(ctx context.Context, q *Questionnaire) error {
	q.ID = uuid.New()
	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO questionnaire (id, slug, version, title, description, status, subject_type, questions, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,1)
		RETURNING created_at, updated_at`,
		q.ID, nullableSlug(q.Slug), q.Version, q.Title, q.Description, q.Status, q.SubjectType, questions,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
}

func (r *questionnaireRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Questionnaire, error) {
	return r.scanQuestionnaire(r.conn(ctx).QueryRow(ctx, `SELECT `+questCols+` FROM questionnaire WHERE id = $1`, id))
}

func (r *questionnaireRepoPG) Update(ctx context.Context, q *Questionnaire) error {
	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	err = r.conn(ctx).QueryRow(ctx, `
		UPDATE questionnaire SET slug=$2, version=$3, title=$4, description=$5, status=$6,
			subject_type=$7, questions=$8, version_id=version_id+1, updated_at=NOW()
		WHERE id = $1
		RETURNING version_id, created_at, updated_at`,
		q.ID, nullableSlug(q.Slug), q.Version, q.Title, q.Description, q.Status, q.SubjectType, questions,
	).Scan(&q.VersionID, &q.CreatedAt, &q.UpdatedAt)
	return notFound(err)
}

func (r *questionnaireRepoPG) List(ctx context.Context, limit, offset int) ([]*Questionnaire, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM questionnaire`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+questCols+` FROM questionnaire ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Questionnaire
	for rows.Next() {
		q, err := r.scanQuestionnaire(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, q)
	}
	return items, total, rows.Err()
}

// =========== Response Store ===========

type responseStorePG struct{ pool *pgxpool.Pool }

func NewResponseStorePG(pool *pgxpool.Pool) ResponseStore {
	return &responseStorePG{pool: pool}
}

func (r *responseStorePG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const respCols = `id, questionnaire_id, subject_id, patient_id, encounter_id, responses, created_by, created_at`

func (r *responseStorePG) scanResponse(row pgx.Row) (*QuestionnaireResponse, error) {
	var qr QuestionnaireResponse
	var responses []byte
	err := row.Scan(&qr.ID, &qr.QuestionnaireID, &qr.SubjectID, &qr.PatientID, &qr.EncounterID,
		&responses, &qr.CreatedBy, &qr.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(responses, &qr.Responses); err != nil {
		return nil, fmt.Errorf("decode responses of %s: %w", qr.ID, err)
	}
	return &qr, nil
}

// Persist writes the response and its observations in one transaction.
func (r *responseStorePG) Persist(ctx context.Context, qr *QuestionnaireResponse, observations []ObservationDraft) error {
	responses, err := json.Marshal(qr.Responses)
	if err != nil {
		return fmt.Errorf("encode responses: %w", err)
	}

	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		c := r.conn(ctx)
		_, err := c.Exec(ctx, `
			INSERT INTO questionnaire_response (id, questionnaire_id, subject_id, patient_id, encounter_id,
				responses, created_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			qr.ID, qr.QuestionnaireID, qr.SubjectID, qr.PatientID, qr.EncounterID,
			responses, qr.CreatedBy, qr.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert questionnaire_response: %w", err)
		}

		for i := range observations {
			if err := insertObservation(ctx, c, qr, &observations[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertObservation(ctx context.Context, c queryable, qr *QuestionnaireResponse, o *ObservationDraft) error {
	value, err := json.Marshal(o.Value)
	if err != nil {
		return fmt.Errorf("encode observation value: %w", err)
	}
	var components []byte
	if len(o.Component) > 0 {
		if components, err = json.Marshal(o.Component); err != nil {
			return fmt.Errorf("encode observation components: %w", err)
		}
	}
	category, err := marshalCoding(o.Category)
	if err != nil {
		return err
	}
	mainCode, err := marshalCoding(o.MainCode)
	if err != nil {
		return err
	}

	_, err = c.Exec(ctx, `
		INSERT INTO observation (id, questionnaire_response_id, subject_id, patient_id, encounter_id,
			status, value_type, category, main_code, value, effective_datetime, note, parent_id,
			component, data_entered_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		o.ID, qr.ID, qr.SubjectID, qr.PatientID, qr.EncounterID,
		o.Status, string(o.ValueType), category, mainCode, value, o.EffectiveDateTime, o.Note, o.Parent,
		components, qr.CreatedBy, qr.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert observation %s: %w", o.ID, err)
	}
	return nil
}

func marshalCoding(c *fhir.Coding) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode observation coding: %w", err)
	}
	return b, nil
}

func (r *responseStorePG) GetByID(ctx context.Context, id uuid.UUID) (*QuestionnaireResponse, error) {
	return r.scanResponse(r.conn(ctx).QueryRow(ctx, `SELECT `+respCols+` FROM questionnaire_response WHERE id = $1`, id))
}

func (r *responseStorePG) ListByPatient(ctx context.Context, patientID uuid.UUID, f ResponseFilter, limit, offset int) ([]*QuestionnaireResponse, int, error) {
	where, args := responseFilterClause(patientID, f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM questionnaire_response WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + respCols + ` FROM questionnaire_response WHERE ` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*QuestionnaireResponse
	for rows.Next() {
		qr, err := r.scanResponse(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, qr)
	}
	return items, total, rows.Err()
}

func responseFilterClause(patientID uuid.UUID, f ResponseFilter) (string, []interface{}) {
	where := `patient_id = $1`
	args := []interface{}{patientID}
	idx := 2

	if f.QuestionnaireID != nil {
		where += fmt.Sprintf(` AND questionnaire_id = $%d`, idx)
		args = append(args, *f.QuestionnaireID)
		idx++
	}
	if len(f.QuestionnaireSlugs) > 0 {
		where += fmt.Sprintf(` AND questionnaire_id IN (SELECT id FROM questionnaire WHERE slug = ANY($%d))`, idx)
		args = append(args, f.QuestionnaireSlugs)
		idx++
	}
	if f.EncounterID != nil {
		where += fmt.Sprintf(` AND encounter_id = $%d`, idx)
		args = append(args, *f.EncounterID)
	}
	return where, args
}

// =========== Subject Resolver ===========

type subjectResolverPG struct{ pool *pgxpool.Pool }

func NewSubjectResolverPG(pool *pgxpool.Pool) SubjectResolver {
	return &subjectResolverPG{pool: pool}
}

func (r *subjectResolverPG) resolve(ctx context.Context, table string, externalID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := connFor(ctx, r.pool).QueryRow(ctx, `SELECT id FROM `+table+` WHERE external_id = $1`, externalID).Scan(&id)
	if err != nil {
		return uuid.Nil, notFound(err)
	}
	return id, nil
}

func (r *subjectResolverPG) ResolvePatient(ctx context.Context, externalID uuid.UUID) (uuid.UUID, error) {
	return r.resolve(ctx, "patient", externalID)
}

func (r *subjectResolverPG) ResolveEncounter(ctx context.Context, externalID uuid.UUID) (uuid.UUID, error) {
	return r.resolve(ctx, "encounter", externalID)
}
