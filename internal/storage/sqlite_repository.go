package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteTimeLayout = time.RFC3339Nano
	sqliteDateLayout = "2006-01-02"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo, err := NewSQLiteRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) DB() *sql.DB {
	return r.db
}

func (r *SQLiteRepository) CreateAggregate(ctx context.Context, in Aggregate) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO aggregates (kind, name, description, owner, template_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.Kind, in.Name, in.Description, in.Owner, nullID(in.TemplateID),
		mustTime(in.CreatedAt), mustTime(in.UpdatedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const aggregateColumns = `id, kind, name, description, owner, template_id, created_at, updated_at`

func (r *SQLiteRepository) GetAggregate(ctx context.Context, kind string, id int64) (Aggregate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+aggregateColumns+` FROM aggregates WHERE kind = ? AND id = ?`, kind, id)
	return scanAggregateRow(row)
}

func (r *SQLiteRepository) GetOwnedAggregate(ctx context.Context, kind string, id int64, owner string) (Aggregate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+aggregateColumns+` FROM aggregates WHERE kind = ? AND id = ? AND owner = ?`,
		kind, id, owner)
	return scanAggregateRow(row)
}

func (r *SQLiteRepository) UpdateAggregate(ctx context.Context, in Aggregate) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE aggregates SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		in.Name, in.Description, mustTime(in.UpdatedAt), in.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) DeleteAggregate(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM aggregates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListAggregates(ctx context.Context, filter AggregateListFilter) ([]Aggregate, error) {
	query := `
		SELECT a.id, a.kind, a.name, a.description, a.owner, a.template_id,
		       a.created_at, a.updated_at,
		       (SELECT COUNT(*) FROM items i WHERE i.aggregate_id = a.id) AS items_count
		FROM aggregates a WHERE a.kind = ?`
	args := []any{filter.Kind}
	if filter.Owner != "" {
		query += ` AND a.owner = ?`
		args = append(args, filter.Owner)
	}
	if filter.Search != "" {
		query += ` AND a.name LIKE ?`
		args = append(args, "%"+filter.Search+"%")
	}
	query += ` ORDER BY ` + orderingSQL(filter.Ordering)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Aggregate, 0)
	for rows.Next() {
		var (
			agg        Aggregate
			templateID sql.NullInt64
			created    string
			updated    string
		)
		if err := rows.Scan(&agg.ID, &agg.Kind, &agg.Name, &agg.Description, &agg.Owner,
			&templateID, &created, &updated, &agg.ItemsCount); err != nil {
			return nil, err
		}
		if err := fillAggregateTimes(&agg, templateID, created, updated); err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateItem(ctx context.Context, in Item) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO items (aggregate_id, name, description, status, planned_date)
		VALUES (?, ?, ?, ?, ?)`,
		in.AggregateID, in.Name, in.Description, in.Status, nullDate(in.PlannedDate),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) GetItem(ctx context.Context, aggregateID, id int64) (Item, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, aggregate_id, name, description, status, planned_date
		FROM items WHERE aggregate_id = ? AND id = ?`, aggregateID, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (r *SQLiteRepository) UpdateItem(ctx context.Context, in Item) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE items SET name = ?, description = ?, status = ?, planned_date = ?
		WHERE aggregate_id = ? AND id = ?`,
		in.Name, in.Description, in.Status, nullDate(in.PlannedDate), in.AggregateID, in.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) DeleteItem(ctx context.Context, aggregateID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE aggregate_id = ? AND id = ?`, aggregateID, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListItems(ctx context.Context, filter ItemListFilter) ([]Item, error) {
	where, args := itemFilterSQL(filter)
	query := `SELECT id, aggregate_id, name, description, status, planned_date FROM items` + where
	query += ` ORDER BY id ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Item, 0)
	for rows.Next() {
		item, scanErr := scanItem(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListItemIDs(ctx context.Context, aggregateID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM items WHERE aggregate_id = ?`, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListItemStatuses(ctx context.Context, aggregateID int64) ([]ItemStatus, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, status FROM items WHERE aggregate_id = ?`, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ItemStatus, 0)
	for rows.Next() {
		var pair ItemStatus
		if err := rows.Scan(&pair.ID, &pair.Status); err != nil {
			return nil, err
		}
		out = append(out, pair)
	}
	return out, rows.Err()
}

// CountItems counts the items matching the filter's date bucket; limit and
// offset are ignored.
func (r *SQLiteRepository) CountItems(ctx context.Context, filter ItemListFilter) (int, error) {
	where, args := itemFilterSQL(filter)
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`+where, args...).Scan(&count)
	return count, err
}

func itemFilterSQL(filter ItemListFilter) (string, []any) {
	where := ` WHERE aggregate_id = ?`
	args := []any{filter.AggregateID}

	anchor := filter.Today
	if anchor.IsZero() {
		anchor = time.Now()
	}
	switch filter.Date {
	case DatePlanned:
		where += ` AND planned_date > ?`
		args = append(args, anchor.AddDate(0, 0, 1).Format(sqliteDateLayout))
	case DateToday:
		where += ` AND planned_date = ?`
		args = append(args, anchor.Format(sqliteDateLayout))
	case DateNotSorted:
		where += ` AND planned_date IS NULL`
	}
	return where, args
}

func (r *SQLiteRepository) DeleteItems(ctx context.Context, aggregateID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE aggregate_id = ?`, aggregateID)
	return err
}

func (r *SQLiteRepository) BulkUpdateItemStatus(ctx context.Context, aggregateID int64, groups []StatusGroup) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk status tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, group := range groups {
		if len(group.IDs) == 0 {
			continue
		}
		query := `UPDATE items SET status = ? WHERE aggregate_id = ? AND id IN (` + placeholders(len(group.IDs)) + `)`
		args := make([]any, 0, len(group.IDs)+2)
		args = append(args, group.Status, aggregateID)
		for _, id := range group.IDs {
			args = append(args, id)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("bulk status update to %q: %w", group.Status, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) GetOrCreateTag(ctx context.Context, in Tag) (Tag, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tags (name, owner, created_at) VALUES (?, ?, ?)
		ON CONFLICT (name, owner) DO NOTHING`,
		in.Name, in.Owner, mustTime(in.CreatedAt),
	)
	if err != nil {
		return Tag{}, err
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, owner, created_at FROM tags WHERE name = ? AND owner = ?`,
		in.Name, in.Owner)
	var (
		tag     Tag
		created string
	)
	if err := row.Scan(&tag.ID, &tag.Name, &tag.Owner, &created); err != nil {
		return Tag{}, err
	}
	createdAt, err := time.Parse(sqliteTimeLayout, created)
	if err != nil {
		return Tag{}, fmt.Errorf("parse tag created_at: %w", err)
	}
	tag.CreatedAt = createdAt
	return tag, nil
}

func (r *SQLiteRepository) ListTags(ctx context.Context, filter TagListFilter) ([]Tag, error) {
	query := `SELECT id, name, owner, created_at FROM tags`
	args := make([]any, 0, 3)
	if filter.Owner != "" {
		query += ` WHERE owner = ?`
		args = append(args, filter.Owner)
	}
	query += ` ORDER BY name ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Tag, 0)
	for rows.Next() {
		var (
			tag     Tag
			created string
		)
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Owner, &created); err != nil {
			return nil, err
		}
		createdAt, parseErr := time.Parse(sqliteTimeLayout, created)
		if parseErr != nil {
			return nil, fmt.Errorf("parse tag created_at: %w", parseErr)
		}
		tag.CreatedAt = createdAt
		out = append(out, tag)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SetItemTags(ctx context.Context, itemID int64, tagIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set tags tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM item_tags WHERE item_id = ?`, itemID); err != nil {
		return err
	}
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO item_tags (item_id, tag_id) VALUES (?, ?)`, itemID, tagID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) ItemTagNames(ctx context.Context, itemID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.name FROM item_tags it
		JOIN tags t ON t.id = it.tag_id
		WHERE it.item_id = ?
		ORDER BY t.name ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) TagNamesForItems(ctx context.Context, itemIDs []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	query := `
		SELECT it.item_id, t.name FROM item_tags it
		JOIN tags t ON t.id = it.tag_id
		WHERE it.item_id IN (` + placeholders(len(itemIDs)) + `)
		ORDER BY t.name ASC`
	args := make([]any, 0, len(itemIDs))
	for _, id := range itemIDs {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			itemID int64
			name   string
		)
		if err := rows.Scan(&itemID, &name); err != nil {
			return nil, err
		}
		out[itemID] = append(out[itemID], name)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAggregateRow(row rowScanner) (Aggregate, error) {
	var (
		agg        Aggregate
		templateID sql.NullInt64
		created    string
		updated    string
	)
	err := row.Scan(&agg.ID, &agg.Kind, &agg.Name, &agg.Description, &agg.Owner,
		&templateID, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Aggregate{}, ErrNotFound
		}
		return Aggregate{}, err
	}
	if err := fillAggregateTimes(&agg, templateID, created, updated); err != nil {
		return Aggregate{}, err
	}
	return agg, nil
}

func fillAggregateTimes(agg *Aggregate, templateID sql.NullInt64, created, updated string) error {
	if templateID.Valid {
		id := templateID.Int64
		agg.TemplateID = &id
	}
	createdAt, err := time.Parse(sqliteTimeLayout, created)
	if err != nil {
		return fmt.Errorf("parse aggregate created_at: %w", err)
	}
	updatedAt, err := time.Parse(sqliteTimeLayout, updated)
	if err != nil {
		return fmt.Errorf("parse aggregate updated_at: %w", err)
	}
	agg.CreatedAt = createdAt
	agg.UpdatedAt = updatedAt
	return nil
}

func scanItem(row rowScanner) (Item, error) {
	var (
		item    Item
		planned sql.NullString
	)
	if err := row.Scan(&item.ID, &item.AggregateID, &item.Name, &item.Description,
		&item.Status, &planned); err != nil {
		return Item{}, err
	}
	if planned.Valid {
		date, err := time.Parse(sqliteDateLayout, planned.String)
		if err != nil {
			return Item{}, fmt.Errorf("parse item planned_date: %w", err)
		}
		item.PlannedDate = &date
	}
	return item, nil
}

func orderingSQL(ordering string) string {
	switch ordering {
	case "name":
		return "a.name ASC, a.id ASC"
	case "-name":
		return "a.name DESC, a.id ASC"
	case "id":
		return "a.id ASC"
	case "-id":
		return "a.id DESC"
	case "updated_at":
		return "a.updated_at ASC"
	case "-updated_at":
		return "a.updated_at DESC"
	default:
		return "a.id ASC"
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func applyPagination(args *[]any, limit, offset int) string {
	clause := ""
	if limit > 0 {
		clause += ` LIMIT ?`
		*args = append(*args, limit)
	}
	if offset > 0 {
		if limit <= 0 {
			clause += ` LIMIT -1`
		}
		clause += ` OFFSET ?`
		*args = append(*args, offset)
	}
	return clause
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func mustTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(sqliteDateLayout)
}

func nullID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
