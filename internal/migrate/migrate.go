// Package migrate handles SQL database migration for the internal MedStock database
package migrate

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var migrations []dbMigration

type dbMigration struct {
	Version uint
	Queries []string
}

// Execute runs the current DB migration on the given database
func (mig *dbMigration) Execute(db *sqlx.DB, logger *logrus.Entry) error {
	// Check if the migration has already run
	query := `SELECT success FROM Migrations WHERE version = $1`
	var success = false
	err := db.QueryRow(query, mig.Version).Scan(&success)
	if err != nil && err != sql.ErrNoRows {
		logger.WithError(err).Error("Failed to fetch version information")
		return err
	}
	if success {
		return nil
	}
	// We need to execute this migration - all queries or none of them
	logger.Infof("Executing DB migration #%d", mig.Version)
	tx, err := db.Beginx()
	if err != nil {
		return errors.Wrap(err, "Execute: Failed to start transaction")
	}
	for i, query := range mig.Queries {
		logger.Debugf("Query %d of %d...", (i + 1), len(mig.Queries))
		if _, err := tx.Exec(query); err != nil {
			logger.WithError(err).Errorf("Query #%d failed", (i + 1))
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.WithError(rbErr).Error("Rollback failed")
			}
			db.Exec(`REPLACE INTO Migrations(version, success) VALUES($1, 0)`, mig.Version)
			return err
		}
	}
	// Queries executed successfully - save our status
	if _, err := tx.Exec(`REPLACE INTO Migrations(version, success) VALUES($1, 1)`, mig.Version); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "Execute: Failed to store migration status")
	}
	return errors.Wrap(tx.Commit(), "Execute: Failed to commit migration")
}

// ExecuteMigrationsOnDb executes the database migrations on the given database instance
func ExecuteMigrationsOnDb(db *sqlx.DB, logger *logrus.Entry) error {
	// Create the migrations table if it does not exist, yet
	query := `CREATE TABLE IF NOT EXISTS Migrations (
                version   INTEGER NOT NULL,
                success   INTEGER NOT NULL DEFAULT 0,
                PRIMARY KEY(version)
            )`
	if _, err := db.Exec(query); err != nil {
		logger.WithError(err).Error("Failed to create migrations table")
		return err
	}
	for _, mig := range migrations {
		if err := mig.Execute(db, logger); err != nil {
			logger.WithError(err).Errorf("Failed to execute migration #%d", mig.Version)
			return err
		}
	}
	return nil
}

// For now, the migrations are part of the package...
func init() {
	migrations = []dbMigration{
		{
			Version: 1,
			Queries: []string{
				`CREATE TABLE "Roles" (
                    id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
                    name VARCHAR(64) NOT NULL UNIQUE,
                    description VARCHAR(255) NOT NULL DEFAULT ''
                );`,
				`CREATE TABLE "Permissions" (
                    id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
                    name VARCHAR(64) NOT NULL UNIQUE,
                    description VARCHAR(255) NOT NULL DEFAULT ''
                );`,
				`CREATE TABLE "RolePermissions" (
                    roleId INTEGER NOT NULL,
                    permissionId INTEGER NOT NULL,
                    PRIMARY KEY(roleId, permissionId)
                );`,
				`CREATE TABLE "Users" (
                    id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
                    name VARCHAR(64) NOT NULL UNIQUE,
                    passwordHash VARCHAR(128) NOT NULL DEFAULT '',
                    fullName VARCHAR(128) NOT NULL DEFAULT '',
                    email VARCHAR(128) NOT NULL DEFAULT '',
                    phone VARCHAR(32) NOT NULL DEFAULT '',
                    roleId INTEGER NOT NULL DEFAULT 0,
                    active INTEGER NOT NULL DEFAULT 1,
                    createdAt DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                    updatedAt DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
                );`,
				`CREATE TABLE "Records" (
                    id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
                    kind VARCHAR(32) NOT NULL,
                    data TEXT NOT NULL DEFAULT '{}',
                    createdBy INTEGER NOT NULL DEFAULT 0,
                    createdAt DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                    updatedAt DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
                );`,
				`CREATE INDEX idx_record_kind ON Records (kind ASC, createdAt ASC);`,
				`CREATE INDEX idx_rolepermission_role ON RolePermissions (roleId ASC);`,
			},
		},
		{
			Version: 2,
			Queries: []string{
				`INSERT INTO Roles(name, description) VALUES
                    ('administrador', 'Administración del sistema'),
                    ('usuario', 'Registro y consulta de inventario');`,
				`INSERT INTO Permissions(name, description) VALUES
                    ('ver_inventario', 'Ver registros de inventario'),
                    ('crear_inventario', 'Registrar y actualizar inventario'),
                    ('ver_mantenimiento', 'Ver registros de mantenimiento'),
                    ('crear_mantenimiento', 'Registrar y actualizar mantenimientos');`,
				// Administrators get every permission known at this point
				`INSERT INTO RolePermissions(roleId, permissionId)
                    SELECT r.id, p.id FROM Roles r, Permissions p WHERE r.name = 'administrador';`,
			},
		},
	}
}
