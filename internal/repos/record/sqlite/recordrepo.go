// Package sqlite contains a repository for inventory records that stores its data inside a SQLite database.
// The form fields of a record are kept as JSON object in a single column, so all record kinds share one table
package sqlite

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/derWhity/medstock/internal/log"
	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/repos"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const (
	recordFields = `kind, data, createdBy, createdAt, updatedAt`
	recordSelect = `SELECT id, ` + recordFields + ` FROM Records`
	// Layout SQLite's datetime() function uses
	sqliteTime = "2006-01-02 15:04:05"
)

// recordRow is a record as it is stored in the database
type recordRow struct {
	ID        uint      `db:"id"`
	Kind      string    `db:"kind"`
	Data      string    `db:"data"`
	CreatedBy uint      `db:"createdBy"`
	CreatedAt time.Time `db:"createdAt"`
	UpdatedAt time.Time `db:"updatedAt"`
}

func (row *recordRow) toRecord() (*models.Record, error) {
	fields := map[string]string{}
	if err := json.Unmarshal([]byte(row.Data), &fields); err != nil {
		return nil, errors.Wrapf(err, "record %d has broken data", row.ID)
	}
	return &models.Record{
		ID:        row.ID,
		Kind:      row.Kind,
		Fields:    fields,
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func encodeFields(fields map[string]string) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// Values are searched as stored
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// searchCondition builds the condition matching records with a field value containing the search string
func searchCondition(kind, search string) (string, []interface{}) {
	if search == "" {
		return "kind = ?", []interface{}{kind}
	}
	cond := `kind = ? AND EXISTS (
				SELECT 1 FROM json_each(Records.data) WHERE json_each.value LIKE ? ESCAPE '\'
			)`
	return cond, []interface{}{kind, "%" + likeEscaper.Replace(search) + "%"}
}

// RecordRepo is a record repository that stores its data inside a SQLite database
type RecordRepo struct {
	db     *sqlx.DB
	logger *logrus.Entry
}

// New creates a new RecordRepo instance with the given DB and logger instances
func New(db *sqlx.DB, logger *logrus.Entry) *RecordRepo {
	return &RecordRepo{db, logger}
}

// -- Methods ----------------------------------------------------------------------------------------------------------

// Create creates a new record. The creation time is taken from the record if set
func (r *RecordRepo) Create(ctx context.Context, rec *models.Record) error {
	r.logger.WithField(log.FldKind, rec.Kind).Debug("Adding new record")
	data, err := encodeFields(rec.Fields)
	if err != nil {
		return errors.Wrap(err, "Create: Failed to encode record fields")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.UpdatedAt = rec.CreatedAt
	created := rec.CreatedAt.UTC().Format(sqliteTime)
	query := "INSERT INTO Records(" + recordFields + ") VALUES(?, ?, ?, ?, ?)"
	res, err := r.db.ExecContext(ctx, query, rec.Kind, data, rec.CreatedBy, created, created)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err == nil {
		rec.ID = uint(id)
	}
	return err
}

// Update updates the fields of an existing record
func (r *RecordRepo) Update(ctx context.Context, rec *models.Record) error {
	r.logger.WithFields(logrus.Fields{log.FldKind: rec.Kind, log.FldID: rec.ID}).Debug("Updating record")
	data, err := encodeFields(rec.Fields)
	if err != nil {
		return errors.Wrap(err, "Update: Failed to encode record fields")
	}
	query := "UPDATE Records SET data = ?, updatedAt = datetime('now') WHERE kind = ? AND id = ?"
	res, err := r.db.ExecContext(ctx, query, data, rec.Kind, rec.ID)
	if err != nil {
		return err
	}
	if num, _ := res.RowsAffected(); num == 0 {
		return repos.ErrEntityNotExisting
	}
	rec.UpdatedAt = time.Now()
	return nil
}

// Delete removes an existing record
func (r *RecordRepo) Delete(ctx context.Context, kind string, id uint) error {
	r.logger.WithFields(logrus.Fields{log.FldKind: kind, log.FldID: id}).Debug("Deleting record")
	res, err := r.db.ExecContext(ctx, "DELETE FROM Records WHERE kind = ? AND id = ?", kind, id)
	if err != nil {
		return err
	}
	if num, _ := res.RowsAffected(); num == 0 {
		return repos.ErrEntityNotExisting
	}
	return nil
}

// GetByID returns the record of the given kind with the given ID
func (r *RecordRepo) GetByID(ctx context.Context, kind string, id uint) (*models.Record, error) {
	var row recordRow
	if err := r.db.GetContext(ctx, &row, recordSelect+" WHERE kind = ? AND id = ?", kind, id); err != nil {
		if err == sql.ErrNoRows {
			// Nothing found
			return nil, repos.ErrEntityNotExisting
		}
		return nil, err
	}
	return row.toRecord()
}

// Find searches for records of a kind matching the search string, newest first - supports pagination
func (r *RecordRepo) Find(
	ctx context.Context,
	kind string,
	search string,
	offset uint,
	limit uint,
) ([]models.Record, uint, error) {
	if limit == 0 {
		limit = 50
	}
	r.logger.WithFields(logrus.Fields{
		log.FldKind:   kind,
		log.FldSearch: search,
		log.FldOffset: offset,
		log.FldLimit:  limit,
	}).Debug("Searching for records")
	cond, args := searchCondition(kind, search)
	var rows []recordRow
	query := recordSelect + " WHERE " + cond + " ORDER BY id DESC LIMIT ? OFFSET ?"
	if err := r.db.SelectContext(ctx, &rows, query, append(args, limit, offset)...); err != nil {
		r.logger.WithError(err).Error("Failed to query records")
		return nil, 0, err
	}
	ret := make([]models.Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toRecord()
		if err != nil {
			return nil, 0, err
		}
		ret = append(ret, *rec)
	}
	var numRows uint
	if err := r.db.GetContext(ctx, &numRows, "SELECT COUNT(*) FROM Records WHERE "+cond, args...); err != nil {
		return nil, 0, err
	}
	return ret, numRows, nil
}

// Count returns the number of records of a kind
func (r *RecordRepo) Count(ctx context.Context, kind string) (uint, error) {
	var num uint
	err := r.db.GetContext(ctx, &num, "SELECT COUNT(*) FROM Records WHERE kind = ?", kind)
	return num, err
}

// CountByDay returns the number of records of a kind created per day (UTC) since the given time. Days without
// records are left out
func (r *RecordRepo) CountByDay(ctx context.Context, kind string, since time.Time) ([]models.DayCount, error) {
	query := `SELECT
				date(createdAt) AS day,
				COUNT(*) AS total
			FROM
				Records
			WHERE
				kind = ? AND createdAt >= ?
			GROUP BY date(createdAt)
			ORDER BY day`
	ret := []models.DayCount{}
	if err := r.db.SelectContext(ctx, &ret, query, kind, since.UTC().Format(sqliteTime)); err != nil {
		return nil, err
	}
	return ret, nil
}
