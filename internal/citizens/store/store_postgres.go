package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"census/internal/citizens/models"
	id "census/pkg/domain"
	"census/pkg/platform/sentinel"
	txctx "census/pkg/platform/tx"
)

// sqlDateLayout is how dates travel as query parameters.
const sqlDateLayout = "2006-01-02"

// PostgresStore persists imports, citizens and relative edges in PostgreSQL.
// It works with either the pgx stdlib driver or lib/pq.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a store that issues statements on db, or on the
// transaction carried by the request context when there is one.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a store bound to an open transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

func (s *PostgresStore) conn(ctx context.Context) txctx.Querier {
	if s.tx != nil {
		return s.tx
	}
	return txctx.Conn(ctx, s.db)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateImport(ctx context.Context) (*models.Dataset, error) {
	var dataset models.Dataset
	err := s.conn(ctx).QueryRowContext(ctx,
		`INSERT INTO imports DEFAULT VALUES RETURNING id, created_at, updated_at`,
	).Scan(&dataset.ID, &dataset.CreatedAt, &dataset.UpdatedAt)
	if err != nil {
		return nil, classify("create import", err)
	}
	return &dataset, nil
}

// InsertCitizens bulk inserts citizens with one statement and returns their
// storage ids keyed by citizen id.
func (s *PostgresStore) InsertCitizens(ctx context.Context, importID id.ImportID, citizens []models.Citizen) (map[id.CitizenID]int64, error) {
	n := len(citizens)
	var (
		citizenIDs = make([]int64, n)
		towns      = make([]string, n)
		streets    = make([]string, n)
		buildings  = make([]string, n)
		apartments = make([]int64, n)
		names      = make([]string, n)
		births     = make([]string, n)
		genders    = make([]string, n)
	)
	for i, c := range citizens {
		citizenIDs[i] = int64(c.CitizenID)
		towns[i] = c.Town
		streets[i] = c.Street
		buildings[i] = c.Building
		apartments[i] = c.Apartment
		names[i] = c.Name
		births[i] = c.BirthDate.Format(sqlDateLayout)
		genders[i] = string(c.Gender)
	}

	query := `
		INSERT INTO citizens (import_id, citizen_id, town, street, building, apartment, name, birth_date, gender)
		SELECT $1, * FROM unnest(
			$2::bigint[], $3::text[], $4::text[], $5::text[], $6::bigint[], $7::text[], $8::date[], $9::text[]
		)
		RETURNING id, citizen_id
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, importID,
		pq.Array(citizenIDs), pq.Array(towns), pq.Array(streets), pq.Array(buildings),
		pq.Array(apartments), pq.Array(names), pq.Array(births), pq.Array(genders),
	)
	if err != nil {
		return nil, classify("insert citizens", err)
	}
	defer rows.Close()

	storageIDs := make(map[id.CitizenID]int64, n)
	for rows.Next() {
		var (
			storageID int64
			cid       id.CitizenID
		)
		if err := rows.Scan(&storageID, &cid); err != nil {
			return nil, fmt.Errorf("scan citizen id: %w", err)
		}
		storageIDs[cid] = storageID
	}
	if err := rows.Err(); err != nil {
		return nil, classify("insert citizens", err)
	}
	return storageIDs, nil
}

func (s *PostgresStore) InsertEdges(ctx context.Context, edges []models.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	from := make([]int64, len(edges))
	to := make([]int64, len(edges))
	for i, e := range edges {
		from[i] = e.From
		to[i] = e.To
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO citizen_relatives (citizen_id, relative_id)
		SELECT * FROM unnest($1::bigint[], $2::bigint[])
	`, pq.Array(from), pq.Array(to))
	if err != nil {
		return classify("insert edges", err)
	}
	return nil
}

// LockImport takes a row lock on the import, serializing concurrent updates
// of its citizens until the transaction ends.
func (s *PostgresStore) LockImport(ctx context.Context, importID id.ImportID) error {
	var locked int64
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT id FROM imports WHERE id = $1 FOR UPDATE`, importID,
	).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("lock import: %w", err)
	}
	return nil
}

const citizenColumns = `id, import_id, citizen_id, town, street, building, apartment, name, birth_date, gender, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCitizen(row rowScanner) (models.Citizen, error) {
	var (
		c      models.Citizen
		gender string
	)
	err := row.Scan(&c.ID, &c.ImportID, &c.CitizenID, &c.Town, &c.Street, &c.Building,
		&c.Apartment, &c.Name, &c.BirthDate, &gender, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return models.Citizen{}, err
	}
	c.Gender = models.Gender(gender)
	c.BirthDate = dateOnly(c.BirthDate)
	return c, nil
}

// dateOnly drops any zone the driver attached to a DATE value.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *PostgresStore) FindCitizen(ctx context.Context, importID id.ImportID, citizenID id.CitizenID) (*models.Citizen, error) {
	conn := s.conn(ctx)
	c, err := scanCitizen(conn.QueryRowContext(ctx,
		`SELECT `+citizenColumns+` FROM citizens WHERE import_id = $1 AND citizen_id = $2`,
		importID, citizenID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find citizen: %w", err)
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT r.citizen_id
		FROM citizen_relatives e
		JOIN citizens r ON r.id = e.relative_id
		WHERE e.citizen_id = $1
		ORDER BY r.citizen_id
	`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("find relatives: %w", err)
	}
	defer rows.Close()

	c.Relatives = []id.CitizenID{}
	for rows.Next() {
		var rid id.CitizenID
		if err := rows.Scan(&rid); err != nil {
			return nil, fmt.Errorf("scan relative: %w", err)
		}
		c.Relatives = append(c.Relatives, rid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find relatives: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ResolveCitizens(ctx context.Context, importID id.ImportID, citizenIDs []id.CitizenID) (map[id.CitizenID]int64, error) {
	resolved := make(map[id.CitizenID]int64, len(citizenIDs))
	if len(citizenIDs) == 0 {
		return resolved, nil
	}
	ids := make([]int64, len(citizenIDs))
	for i, cid := range citizenIDs {
		ids[i] = int64(cid)
	}
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT citizen_id, id FROM citizens WHERE import_id = $1 AND citizen_id = ANY($2::bigint[])`,
		importID, pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("resolve citizens: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid       id.CitizenID
			storageID int64
		)
		if err := rows.Scan(&cid, &storageID); err != nil {
			return nil, fmt.Errorf("scan resolved citizen: %w", err)
		}
		resolved[cid] = storageID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resolve citizens: %w", err)
	}
	return resolved, nil
}

// UpdateCitizenFields writes the patch's non-relative fields in one statement.
func (s *PostgresStore) UpdateCitizenFields(ctx context.Context, storageID int64, patch *models.CitizenPatch) error {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Town != nil {
		set("town", *patch.Town)
	}
	if patch.Street != nil {
		set("street", *patch.Street)
	}
	if patch.Building != nil {
		set("building", *patch.Building)
	}
	if patch.Apartment != nil {
		set("apartment", *patch.Apartment)
	}
	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.BirthDate != nil {
		args = append(args, patch.BirthDate.Format(sqlDateLayout))
		sets = append(sets, fmt.Sprintf("birth_date = $%d::date", len(args)))
	}
	if patch.Gender != nil {
		set("gender", string(*patch.Gender))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, storageID)

	query := fmt.Sprintf(`UPDATE citizens SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	result, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return classify("update citizen", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update citizen rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteEdges(ctx context.Context, storageID int64) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		`DELETE FROM citizen_relatives WHERE citizen_id = $1 OR relative_id = $1`, storageID)
	if err != nil {
		return fmt.Errorf("delete edges: %w", err)
	}
	return nil
}

// ListCitizens returns the import's citizens ordered by citizen id with their
// relatives. Outside a transaction the statements run in a read-only
// repeatable-read transaction so citizens and edges come from one snapshot.
func (s *PostgresStore) ListCitizens(ctx context.Context, importID id.ImportID) ([]models.Citizen, error) {
	if s.tx != nil {
		return listCitizens(ctx, s.tx, importID)
	}
	if tx, ok := txctx.From(ctx); ok {
		return listCitizens(ctx, tx, importID)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	citizens, err := listCitizens(ctx, tx, importID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit read: %w", err)
	}
	return citizens, nil
}

func listCitizens(ctx context.Context, q txctx.Querier, importID id.ImportID) ([]models.Citizen, error) {
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM imports WHERE id = $1)`, importID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check import: %w", err)
	}
	if !exists {
		return nil, sentinel.ErrNotFound
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+citizenColumns+` FROM citizens WHERE import_id = $1 ORDER BY citizen_id`, importID)
	if err != nil {
		return nil, fmt.Errorf("list citizens: %w", err)
	}
	defer rows.Close()

	var citizens []models.Citizen
	index := make(map[int64]int)
	for rows.Next() {
		c, err := scanCitizen(rows)
		if err != nil {
			return nil, fmt.Errorf("scan citizen: %w", err)
		}
		c.Relatives = []id.CitizenID{}
		index[c.ID] = len(citizens)
		citizens = append(citizens, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list citizens: %w", err)
	}

	edgeRows, err := q.QueryContext(ctx, `
		SELECT e.citizen_id, r.citizen_id
		FROM citizen_relatives e
		JOIN citizens c ON c.id = e.citizen_id
		JOIN citizens r ON r.id = e.relative_id
		WHERE c.import_id = $1
		ORDER BY e.citizen_id, r.citizen_id
	`, importID)
	if err != nil {
		return nil, fmt.Errorf("list relatives: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var (
			from int64
			rid  id.CitizenID
		)
		if err := edgeRows.Scan(&from, &rid); err != nil {
			return nil, fmt.Errorf("scan relative: %w", err)
		}
		if i, ok := index[from]; ok {
			citizens[i].Relatives = append(citizens[i].Relatives, rid)
		}
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("list relatives: %w", err)
	}
	return citizens, nil
}

// ListEdges returns the import's edges ordered by source then target.
func (s *PostgresStore) ListEdges(ctx context.Context, importID id.ImportID) ([]models.Edge, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT e.citizen_id, e.relative_id
		FROM citizen_relatives e
		JOIN citizens c ON c.id = e.citizen_id
		WHERE c.import_id = $1
		ORDER BY e.citizen_id, e.relative_id
	`, importID)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var edges []models.Edge
	for rows.Next() {
		var e models.Edge
		if err := rows.Scan(&e.From, &e.To); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	return edges, nil
}
