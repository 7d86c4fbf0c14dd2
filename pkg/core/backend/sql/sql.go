//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package sql is a PostgreSQL [backend.Service] built on gorm.
//
// The schema is migrated on startup.  Integrity rules that must hold for
// every writer live in the database as well as in the engine: a removal
// request can never carry its requester as reviewer, a review only applies
// to a pending request, and a grant only ever gains a revocation time.
package sql

import (
	"context"
	"sort"
	"time"

	"github.com/caseaccess/accessengine/internal/logging"
	"github.com/caseaccess/accessengine/pkg/common"
	"github.com/caseaccess/accessengine/pkg/core/backend"
	"github.com/caseaccess/accessengine/pkg/core/backend/local"
	"github.com/caseaccess/accessengine/pkg/core/config"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var logger = logging.GetLogger("accessengine.backend.sql")

// Factory opens the database.
type Factory struct {
	dsn       string
	directory *local.Directory
}

// NewFactory creates a Factory for dsn.  When directory is not nil its
// contents are imported on startup.
func NewFactory(dsn string, directory *local.Directory) *Factory {
	return &Factory{dsn: dsn, directory: directory}
}

// NewFactoryFromConfig reads store.dsn and, when set, directory.path.
func NewFactoryFromConfig() (*Factory, error) {
	dsn := config.VConfig.GetString(config.StoreDSN)
	if dsn == "" {
		return nil, common.NewError(common.CodeConfiguration, "%s is required for the postgres store", config.StoreDSN)
	}

	var directory *local.Directory
	if path := config.VConfig.GetString(config.DirectoryPath); path != "" {
		d, err := local.Load(path)
		if err != nil {
			return nil, err
		}
		directory = d
	}
	return NewFactory(dsn, directory), nil
}

// NewBackend connects, migrates and imports the directory.
func (f *Factory) NewBackend() (backend.Service, error) {
	db, err := gorm.Open(postgres.Open(f.dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
		PrepareStmt:                              true,
		AllowGlobalUpdate:                        false,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "connecting to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	if f.directory != nil {
		if err := s.ImportDirectory(context.Background(), f.directory); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Store implements [backend.Service].
type Store struct {
	db *gorm.DB
}

var _ backend.Service = (*Store)(nil)

// New wraps an open connection.  Call Migrate before use on a fresh
// database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema in one transaction.
func (s *Store) Migrate() error {
	logger.SysInfo("running migrations")
	return s.db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(allTables()...)
	})
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ImportDirectory upserts units, assignments and entity membership.
func (s *Store) ImportDirectory(ctx context.Context, d *local.Directory) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range d.Units {
			row := unitRow{ID: u.ID, CrossUnitSharingEnabled: u.CrossUnitSharing}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
				return err
			}
		}
		for _, u := range d.Users {
			for _, a := range u.Assignments {
				role, err := model.ParseRole(a.Role)
				if err != nil {
					return err
				}
				row := assignmentRow{UserID: u.ID, Role: role.String(), UnitID: a.Unit}
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
					return err
				}
			}
		}
		for _, e := range d.Entities {
			for i, unit := range e.Units {
				row := entityUnitRow{EntityID: e.ID, UnitID: unit, Position: i}
				if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.NewError(common.CodeNotFound, format, args...)
	}
	return err
}

// Assignments implements [backend.Directory].
func (s *Store) Assignments(ctx context.Context, userID string) ([]model.Assignment, error) {
	var rows []assignmentRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Assignment, 0, len(rows))
	for _, r := range rows {
		role, err := model.ParseRole(r.Role)
		if err != nil {
			logger.Warnf(userID, "Assignments", "ignoring assignment with %v", err)
			continue
		}
		out = append(out, model.Assignment{Role: role, Unit: model.UnitID(r.UnitID)})
	}
	return out, nil
}

// EntityUnits implements [backend.Directory].
func (s *Store) EntityUnits(ctx context.Context, entityID string) ([]model.UnitID, error) {
	var rows []entityUnitRow
	if err := s.db.WithContext(ctx).Where("entity_id = ?", entityID).Order("position").Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, common.NewError(common.CodeNotFound, "unknown entity %q", entityID)
	}
	out := make([]model.UnitID, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.UnitID(r.UnitID))
	}
	return out, nil
}

// ConsentScope implements [backend.Directory].
func (s *Store) ConsentScope(ctx context.Context, unit model.UnitID) (model.ConsentScope, error) {
	var row unitRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", string(unit)).Error; err != nil {
		return model.ConsentScope{}, notFound(err, "unknown unit %q", unit)
	}
	return model.ConsentScope{Unit: unit, CrossUnitSharingEnabled: row.CrossUnitSharingEnabled}, nil
}

// InsertGrant implements [backend.GrantStore].
func (s *Store) InsertGrant(ctx context.Context, g *model.Grant) error {
	return s.db.WithContext(ctx).Create(toGrantRow(g)).Error
}

// GetGrant implements [backend.GrantStore].
func (s *Store) GetGrant(ctx context.Context, id string) (*model.Grant, error) {
	var row grantRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "unknown grant %s", id)
	}
	return row.grant(), nil
}

// ListGrants implements [backend.GrantStore].
func (s *Store) ListGrants(ctx context.Context, filter backend.GrantFilter) ([]*model.Grant, error) {
	q := s.db.WithContext(ctx).Model(&grantRow{})
	if filter.RequesterID != "" {
		q = q.Where("requester_id = ?", filter.RequesterID)
	}
	if filter.ScopeKind != "" {
		q = q.Where("scope_kind = ?", string(filter.ScopeKind))
	}
	if filter.ScopeID != "" {
		q = q.Where("scope_id = ?", filter.ScopeID)
	}

	var rows []grantRow
	if err := q.Order("granted_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Grant, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].grant())
	}
	return out, nil
}

// RevokeGrant implements [backend.GrantStore].
func (s *Store) RevokeGrant(ctx context.Context, id string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&grantRow{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	if _, err := s.GetGrant(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// GetFlag implements [backend.FlagStore].
func (s *Store) GetFlag(ctx context.Context, entityID string) (model.SafetyFlag, error) {
	var rows []flagRow
	if err := s.db.WithContext(ctx).Where("entity_id = ?", entityID).Limit(1).Find(&rows).Error; err != nil {
		return model.SafetyFlag{}, err
	}
	if len(rows) == 0 {
		return model.SafetyFlag{EntityID: entityID}, nil
	}
	r := rows[0]
	return model.SafetyFlag{ID: r.FlagID, EntityID: r.EntityID, Active: r.Active, SetBy: r.SetBy, SetAt: r.SetAt.UTC()}, nil
}

// PutFlag implements [backend.FlagStore].
func (s *Store) PutFlag(ctx context.Context, flag model.SafetyFlag) error {
	row := flagRow{EntityID: flag.EntityID, FlagID: flag.ID, Active: flag.Active, SetBy: flag.SetBy, SetAt: flag.SetAt}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// InsertRemoval implements [backend.FlagStore].  The partial unique index on
// pending requests rejects a second request for the same flag.
func (s *Store) InsertRemoval(ctx context.Context, r *model.RemovalRequest) error {
	err := s.db.WithContext(ctx).Create(toRemovalRow(r)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return common.NewError(common.CodeInvalidRequest, "a removal request is already pending for this flag")
	}
	return err
}

// GetRemoval implements [backend.FlagStore].
func (s *Store) GetRemoval(ctx context.Context, id string) (*model.RemovalRequest, error) {
	var row removalRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "unknown removal request %s", id)
	}
	return row.request(), nil
}

// PendingRemovals implements [backend.FlagStore].
func (s *Store) PendingRemovals(ctx context.Context) ([]*model.RemovalRequest, error) {
	var rows []removalRow
	if err := s.db.WithContext(ctx).Where("status = ?", string(model.RemovalPending)).Order("requested_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.RemovalRequest, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].request())
	}
	return out, nil
}

// unresolved explains why a guarded review update matched no row.
func unresolved(stored *model.RemovalRequest, reviewerID string) error {
	if stored.RequesterID == reviewerID {
		return common.NewError(common.CodeSelfReview, "requester cannot review their own request")
	}
	return common.NewError(common.CodeAlreadyResolved, "request %s is %s", stored.ID, stored.Status)
}

// ResolveRemoval implements [backend.FlagStore].  The status change is a
// guarded update, so of two concurrent reviews only one matches a pending
// row.  Clearing the flag commits together with the approval and matches
// only the flag instance the request names.
func (s *Store) ResolveRemoval(ctx context.Context, r *model.RemovalRequest) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&removalRow{}).
			Where("id = ? AND status = ? AND requester_id <> ?", r.ID, string(model.RemovalPending), r.ReviewerID).
			Updates(map[string]interface{}{
				"status":      string(r.Status),
				"reviewer_id": r.ReviewerID,
				"review_note": r.ReviewNote,
				"reviewed_at": r.ReviewedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var row removalRow
			if err := tx.First(&row, "id = ?", r.ID).Error; err != nil {
				return notFound(err, "unknown removal request %s", r.ID)
			}
			return unresolved(row.request(), r.ReviewerID)
		}

		if r.Status != model.RemovalApproved {
			return nil
		}
		var row removalRow
		if err := tx.First(&row, "id = ?", r.ID).Error; err != nil {
			return err
		}

		// returning an error rolls the approval back
		cleared := tx.Model(&flagRow{}).
			Where("entity_id = ? AND flag_id = ? AND active", row.EntityID, row.FlagID).
			Update("active", false)
		if cleared.Error != nil {
			return cleared.Error
		}
		if cleared.RowsAffected == 0 {
			return common.NewError(common.CodeAlreadyResolved, "the flag request %s was filed against is no longer set", r.ID)
		}

		return tx.Model(&removalRow{}).
			Where("entity_id = ? AND status = ?", row.EntityID, string(model.RemovalPending)).
			Updates(map[string]interface{}{
				"status":      string(model.RemovalSuperseded),
				"review_note": "superseded by " + r.ID,
				"reviewed_at": r.ReviewedAt,
			}).Error
	})
}

// FieldConfig implements [backend.FieldConfigStore].
func (s *Store) FieldConfig(ctx context.Context) (model.FieldConfig, error) {
	var rows []fieldAccessRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	cfg := make(model.FieldConfig, len(rows))
	for _, r := range rows {
		role, err := model.ParseRole(r.Role)
		if err != nil {
			continue
		}
		access, err := model.ParseFieldAccess(r.Access)
		if err != nil {
			// unreadable cells read as the strictest value
			access = model.Hidden
		}
		cfg[model.FieldKey{Field: r.Field, Role: role}] = access
	}
	return cfg, nil
}

// SetFieldAccess implements [backend.FieldConfigStore].
func (s *Store) SetFieldAccess(ctx context.Context, key model.FieldKey, access model.FieldAccess) error {
	row := fieldAccessRow{Field: key.Field, Role: key.Role.String(), Access: access.String()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// ReplaceFieldConfig implements [backend.FieldConfigStore].
func (s *Store) ReplaceFieldConfig(ctx context.Context, cfg model.FieldConfig) error {
	rows := make([]fieldAccessRow, 0, len(cfg))
	for k, v := range cfg {
		rows = append(rows, fieldAccessRow{Field: k.Field, Role: k.Role.String(), Access: v.String()})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Field != rows[j].Field {
			return rows[i].Field < rows[j].Field
		}
		return rows[i].Role < rows[j].Role
	})

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&fieldAccessRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// Settings implements [backend.SettingsStore].
func (s *Store) Settings(ctx context.Context) (model.OrgSettings, error) {
	var row settingsRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", 1).Error; err != nil {
		return model.OrgSettings{}, notFound(err, "no organisation settings stored")
	}
	return row.settings()
}

// SaveSettings implements [backend.SettingsStore].
func (s *Store) SaveSettings(ctx context.Context, settings model.OrgSettings) error {
	row, err := toSettingsRow(settings)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}
