package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository"
)

const reportColumns = `r.id, r.patient_id, r.report_date, r.title, r.autoimmune, r.cardiology, r.rft,
	r.lft, r.disease_history, r.imaging, r.hematology, r.created_by, r.created_at, r.updated_at`

// payloadText concatenates every domain payload for free-text matching.
const payloadText = `concat_ws(' ', r.autoimmune::text, r.cardiology::text, r.rft::text, r.lft::text,
	r.disease_history::text, r.imaging::text, r.hematology::text)`

type reportRepository struct {
	BaseRepository
}

func NewReportRepository(base BaseRepository) repository.ReportRepository {
	return &reportRepository{base}
}

// domainColumn returns the JSONB column of a domain. Domain names double as
// column names; anything else is rejected before it reaches SQL.
func domainColumn(d model.Domain) (string, error) {
	if _, ok := model.ParseDomain(string(d)); !ok {
		return "", fmt.Errorf("unknown domain %q", d)
	}
	return "r." + string(d), nil
}

func (r *reportRepository) Create(ctx context.Context, report *model.TestReport, events ...*model.OutboxEvent) error {
	query := `
		INSERT INTO test_reports (
			id, patient_id, report_date, title, autoimmune, cardiology, rft, lft,
			disease_history, imaging, hematology, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`

	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	report.CreatedAt = r.now()
	report.UpdatedAt = report.CreatedAt

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			report.ID,
			report.PatientID,
			report.ReportDate,
			report.Title,
			report.Autoimmune,
			report.Cardiology,
			report.RFT,
			report.LFT,
			report.DiseaseHistory,
			report.Imaging,
			report.Hematology,
			report.CreatedBy,
			report.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create report: %w", translateError(err))
		}
		return r.insertOutboxEvents(ctx, tx, events)
	})
}

func (r *reportRepository) Get(ctx context.Context, id uuid.UUID) (*model.TestReport, error) {
	query := `SELECT ` + reportColumns + ` FROM test_reports r WHERE r.id = $1 AND r.deleted_at IS NULL`

	var report model.TestReport
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		return nil, fmt.Errorf("failed to get report: %w", translateError(err))
	}
	return &report, nil
}

func (r *reportRepository) Update(ctx context.Context, report *model.TestReport, events ...*model.OutboxEvent) error {
	query := `
		UPDATE test_reports SET
			report_date = $1, title = $2, autoimmune = $3, cardiology = $4, rft = $5, lft = $6,
			disease_history = $7, imaging = $8, hematology = $9, updated_at = $10
		WHERE id = $11 AND deleted_at IS NULL
	`
	report.UpdatedAt = r.now()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			report.ReportDate,
			report.Title,
			report.Autoimmune,
			report.Cardiology,
			report.RFT,
			report.LFT,
			report.DiseaseHistory,
			report.Imaging,
			report.Hematology,
			report.UpdatedAt,
			report.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update report: %w", err)
		}
		if err := expectOne(res); err != nil {
			return err
		}
		return r.insertOutboxEvents(ctx, tx, events)
	})
}

func (r *reportRepository) Delete(ctx context.Context, id uuid.UUID, events ...*model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE test_reports SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`,
			r.now(), id)
		if err != nil {
			return fmt.Errorf("failed to delete report: %w", err)
		}
		if err := expectOne(res); err != nil {
			return err
		}
		return r.insertOutboxEvents(ctx, tx, events)
	})
}

func (r *reportRepository) Search(ctx context.Context, filter *model.ReportFilter) ([]*model.ReportSummary, int, error) {
	where := " WHERE r.deleted_at IS NULL AND p.deleted_at IS NULL"
	var args []interface{}

	if filter.Patient != nil {
		args = append(args, *filter.Patient)
		where += fmt.Sprintf(" AND r.patient_id = $%d", len(args))
	}
	if filter.Domain != "" {
		column, err := domainColumn(model.Domain(filter.Domain))
		if err != nil {
			return nil, 0, err
		}
		where += " AND " + column + " IS NOT NULL"
	}
	if filter.FromDate != nil {
		args = append(args, *filter.FromDate)
		where += fmt.Sprintf(" AND r.report_date >= $%d", len(args))
	}
	if filter.ToDate != nil {
		args = append(args, *filter.ToDate)
		where += fmt.Sprintf(" AND r.report_date <= $%d", len(args))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		where += fmt.Sprintf(" AND (r.title ILIKE $%d OR %s ILIKE $%d)", n, payloadText, n)
	}

	from := ` FROM test_reports r JOIN patients p ON p.id = r.patient_id`

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*)`+from+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	query := `SELECT ` + reportColumns + `, p.clinic_number, p.name AS patient_name` + from + where +
		fmt.Sprintf(" ORDER BY r.report_date DESC, r.created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.PageSize, filter.Offset())

	reports := []*model.ReportSummary{}
	if err := r.db.SelectContext(ctx, &reports, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to search reports: %w", err)
	}
	return reports, total, nil
}

func (r *reportRepository) fieldQuery(domain model.Domain, order string) (string, error) {
	column, err := domainColumn(domain)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`
		SELECT r.id AS report_id, r.report_date, %[1]s -> $2::text AS value
		FROM test_reports r
		WHERE r.patient_id = $1 AND r.deleted_at IS NULL AND %[1]s -> $2::text IS NOT NULL
		ORDER BY r.report_date %[2]s, r.created_at %[2]s`, column, order), nil
}

func (r *reportRepository) FieldHistory(ctx context.Context, patientID uuid.UUID, domain model.Domain, field string) ([]*model.FieldPoint, error) {
	query, err := r.fieldQuery(domain, "ASC")
	if err != nil {
		return nil, err
	}

	points := []*model.FieldPoint{}
	if err := r.db.SelectContext(ctx, &points, query, patientID, field); err != nil {
		return nil, fmt.Errorf("failed to load field history: %w", err)
	}
	return points, nil
}

func (r *reportRepository) LatestFieldValue(ctx context.Context, patientID uuid.UUID, domain model.Domain, field string) (*model.FieldPoint, error) {
	query, err := r.fieldQuery(domain, "DESC")
	if err != nil {
		return nil, err
	}

	var point model.FieldPoint
	if err := r.db.GetContext(ctx, &point, query+" LIMIT 1", patientID, field); err != nil {
		return nil, fmt.Errorf("failed to load latest field value: %w", translateError(err))
	}
	return &point, nil
}
