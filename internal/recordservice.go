package internal

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/derWhity/medstock/internal/access"
	"github.com/derWhity/medstock/internal/ctxhelper"
	"github.com/derWhity/medstock/internal/log"
	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/repos"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const (
	// Records fetched per query when exporting
	exportPageSize = 500
	// Largest page a list request may ask for
	maxListLimit = 500
)

// RecordService provides access to the inventory records of all kinds
type RecordService interface {
	// Kinds returns the record kinds the session of the current call may view
	Kinds(ctx context.Context) []models.RecordKind
	// Schema returns the description of a record kind
	Schema(ctx context.Context, kind string) (*models.RecordKind, error)
	// List searches for records of a kind - supports pagination
	List(ctx context.Context, kind string, search Search) ([]models.Record, uint, error)
	// Get returns a single record
	Get(ctx context.Context, kind string, id uint) (*models.Record, error)
	// Create validates and stores a new record
	Create(ctx context.Context, kind string, fields map[string]string) (*models.Record, error)
	// Update validates and replaces the fields of an existing record
	Update(ctx context.Context, kind string, id uint, fields map[string]string) (*models.Record, error)
	// Delete removes a record
	Delete(ctx context.Context, kind string, id uint) error
	// Export creates a file containing all records of a kind
	Export(ctx context.Context, kind string) (*models.Export, error)
}

// -- Record service implementation ------------------------------------------------------------------------------------

type recordService struct {
	repo   repos.RecordRepo
	policy access.Policy
	logger *logrus.Entry
}

// NewRecordService creates a new record service instance using the given repository
func NewRecordService(repo repos.RecordRepo, policy access.Policy, logger *logrus.Entry) RecordService {
	return &recordService{repo, policy, logger}
}

var errUnknownKind = MakeError(http.StatusNotFound, ErrCodeUnknownKind, "Unknown record kind")

func errRecordNotFound(kind string, id uint) error {
	return MakeError(http.StatusNotFound, ErrCodeRecordNotFound, fmt.Sprintf("There is no record %d in '%s'", id, kind))
}

// authorize looks up the kind and checks if the session of the current call may view (or change) its records
func (s *recordService) authorize(
	ctx context.Context,
	name string,
	change bool,
) (*models.RecordKind, *models.Session, error) {
	k, ok := models.LookupKind(name)
	if !ok {
		return nil, nil, errUnknownKind
	}
	kind := &k
	perm := kind.ViewPermission
	if change {
		perm = kind.CreatePermission
	}
	sess := ctxhelper.Session(ctx)
	decision := s.policy.Evaluate(sess, access.Permission(perm))
	switch {
	case decision.Allowed:
		return kind, sess, nil
	case decision.Reason == access.ReasonNotLoggedIn:
		return nil, nil, ErrNotLoggedIn
	}
	s.logger.WithFields(logrus.Fields{
		log.FldKind:       name,
		log.FldPermission: perm,
		log.FldUser:       sess.Identity.Name,
	}).Info("Record access denied")
	return nil, nil, ErrNotPermitted
}

func (s *recordService) loadError(err error, kind string, id uint) error {
	if isNotExisting(err) {
		return errRecordNotFound(kind, id)
	}
	return storeError(s.logger, err, "Failed to load record")
}

// Kinds returns the record kinds the session of the current call may view
func (s *recordService) Kinds(ctx context.Context) []models.RecordKind {
	sess := ctxhelper.Session(ctx)
	ret := []models.RecordKind{}
	for _, k := range models.RecordKinds() {
		if s.policy.Evaluate(sess, access.Permission(k.ViewPermission)).Allowed {
			ret = append(ret, k)
		}
	}
	return ret
}

// Schema returns the description of a record kind
func (s *recordService) Schema(ctx context.Context, kind string) (*models.RecordKind, error) {
	k, _, err := s.authorize(ctx, kind, false)
	return k, err
}

// List searches for records of a kind - supports pagination
func (s *recordService) List(ctx context.Context, kind string, search Search) ([]models.Record, uint, error) {
	if _, _, err := s.authorize(ctx, kind, false); err != nil {
		return nil, 0, err
	}
	if search.Limit > maxListLimit {
		search.Limit = maxListLimit
	}
	recs, total, err := s.repo.Find(ctx, kind, search.Search, search.Offset, search.Limit)
	if err != nil {
		return nil, 0, storeError(s.logger, err, "Failed to search for records")
	}
	return recs, total, nil
}

// Get returns a single record
func (s *recordService) Get(ctx context.Context, kind string, id uint) (*models.Record, error) {
	if _, _, err := s.authorize(ctx, kind, false); err != nil {
		return nil, err
	}
	rec, err := s.repo.GetByID(ctx, kind, id)
	if err != nil {
		return nil, s.loadError(err, kind, id)
	}
	return rec, nil
}

// Create validates and stores a new record
func (s *recordService) Create(ctx context.Context, kind string, fields map[string]string) (*models.Record, error) {
	k, sess, err := s.authorize(ctx, kind, true)
	if err != nil {
		return nil, err
	}
	clean, err := cleanFields(k, fields)
	if err != nil {
		return nil, err
	}
	rec := &models.Record{
		Kind:      kind,
		Fields:    clean,
		CreatedBy: sess.Identity.UserID,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, storeError(s.logger, err, "Failed to store record")
	}
	s.logger.WithFields(logrus.Fields{
		log.FldKind: kind,
		log.FldID:   rec.ID,
		log.FldUser: sess.Identity.Name,
	}).Info("Record created")
	return rec, nil
}

// Update validates and replaces the fields of an existing record
func (s *recordService) Update(
	ctx context.Context,
	kind string,
	id uint,
	fields map[string]string,
) (*models.Record, error) {
	k, _, err := s.authorize(ctx, kind, true)
	if err != nil {
		return nil, err
	}
	clean, err := cleanFields(k, fields)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.GetByID(ctx, kind, id)
	if err != nil {
		return nil, s.loadError(err, kind, id)
	}
	rec.Fields = clean
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, s.loadError(err, kind, id)
	}
	return rec, nil
}

// Delete removes a record
func (s *recordService) Delete(ctx context.Context, kind string, id uint) error {
	if _, _, err := s.authorize(ctx, kind, true); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, kind, id); err != nil {
		return s.loadError(err, kind, id)
	}
	return nil
}

// Export creates a file containing all records of a kind. Stores that generate their own files are asked to do so
func (s *recordService) Export(ctx context.Context, kind string) (*models.Export, error) {
	k, _, err := s.authorize(ctx, kind, false)
	if err != nil {
		return nil, err
	}
	if exp, ok := s.repo.(repos.RecordExporter); ok {
		export, err := exp.Export(ctx, kind)
		if err != nil {
			return nil, storeError(s.logger, err, "Failed to export records")
		}
		return export, nil
	}
	data, err := s.exportCSV(ctx, k)
	if err != nil {
		return nil, storeError(s.logger, err, "Failed to export records")
	}
	return &models.Export{
		Filename:    fmt.Sprintf("%s_%s.csv", kind, time.Now().Format(models.DateLayout)),
		ContentType: "text/csv; charset=utf-8",
		Data:        data,
	}, nil
}

// exportCSV writes all records of the kind as CSV with one column per field
func (s *recordService) exportCSV(ctx context.Context, kind *models.RecordKind) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	fields := kind.FieldNames()
	header := append([]string{"id"}, fields...)
	if err := w.Write(append(header, "creado_por", "created_at")); err != nil {
		return nil, err
	}
	var offset uint
	for {
		recs, total, err := s.repo.Find(ctx, kind.Name, "", offset, exportPageSize)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			row := make([]string, 0, len(fields)+3)
			row = append(row, strconv.FormatUint(uint64(rec.ID), 10))
			for _, f := range fields {
				row = append(row, rec.Fields[f])
			}
			row = append(row, strconv.FormatUint(uint64(rec.CreatedBy), 10), rec.CreatedAt.Format(time.RFC3339))
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
		offset += uint(len(recs))
		if len(recs) == 0 || offset >= total {
			break
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
