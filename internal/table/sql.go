package table

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sqlItem struct {
	PK   string `gorm:"primaryKey;column:pk;size:191"`
	SK   string `gorm:"primaryKey;column:sk;size:191"`
	Data string `gorm:"column:data;type:text;not null"`
}

func (sqlItem) TableName() string { return "board_items" }

type sqlIndexEntry struct {
	IndexName  string `gorm:"primaryKey;column:index_name;size:64;index:idx_board_index_lookup,priority:1"`
	PK         string `gorm:"primaryKey;column:pk;size:191"`
	SK         string `gorm:"primaryKey;column:sk;size:191"`
	HashValue  string `gorm:"column:hash_value;size:191;index:idx_board_index_lookup,priority:2"`
	RangeValue string `gorm:"column:range_value;size:191"`
}

func (sqlIndexEntry) TableName() string { return "board_index_entries" }

// SQLBackend keeps items as JSON documents in one table and materialises
// index entries into a second table, both written in one transaction.
type SQLBackend struct {
	db      *gorm.DB
	indexes map[string]Index
}

// NewSQLBackend migrates the schema on db and returns a backend over it.
func NewSQLBackend(db *gorm.DB, indexes ...Index) (*SQLBackend, error) {
	if err := db.AutoMigrate(&sqlItem{}, &sqlIndexEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate table schema: %w", err)
	}
	return &SQLBackend{db: db, indexes: indexByName(indexes)}, nil
}

func encodeRow(it Item) (sqlItem, error) {
	data, err := json.Marshal(map[string]string(it))
	if err != nil {
		return sqlItem{}, err
	}
	key := it.Key()
	return sqlItem{PK: key.PK, SK: key.SK, Data: string(data)}, nil
}

func decodeRow(row sqlItem) (Item, error) {
	var it Item
	if err := json.Unmarshal([]byte(row.Data), &it); err != nil {
		return nil, fmt.Errorf("corrupt row %s/%s: %w", row.PK, row.SK, err)
	}
	if it == nil {
		it = Item{}
	}
	it[AttrPK] = row.PK
	it[AttrSK] = row.SK
	return it, nil
}

func (s *SQLBackend) load(tx *gorm.DB, key Key) (Item, error) {
	var row sqlItem
	err := tx.Where("pk = ? AND sk = ?", key.PK, key.SK).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRow(row)
}

// store replaces the row at key and its index entries; a nil item deletes.
func (s *SQLBackend) store(tx *gorm.DB, key Key, it Item) error {
	if err := tx.Where("pk = ? AND sk = ?", key.PK, key.SK).Delete(&sqlIndexEntry{}).Error; err != nil {
		return err
	}
	if it == nil {
		return tx.Where("pk = ? AND sk = ?", key.PK, key.SK).Delete(&sqlItem{}).Error
	}

	row, err := encodeRow(it)
	if err != nil {
		return err
	}
	if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return err
	}

	var entries []sqlIndexEntry
	for _, ix := range s.indexes {
		if hash, rng, ok := ix.entry(it); ok {
			entries = append(entries, sqlIndexEntry{
				IndexName:  ix.Name,
				PK:         key.PK,
				SK:         key.SK,
				HashValue:  hash,
				RangeValue: rng,
			})
		}
	}
	if len(entries) == 0 {
		return nil
	}
	return tx.Create(&entries).Error
}

func (s *SQLBackend) Get(ctx context.Context, key Key) (Item, error) {
	it, err := s.load(s.db.WithContext(ctx), key)
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if it == nil {
		return nil, ErrItemNotFound
	}
	return it, nil
}

func (s *SQLBackend) Put(ctx context.Context, item Item, cond Condition) error {
	if !item.valid() {
		return ErrInvalidItem
	}
	key := item.Key()
	return s.write(ctx, key, func(old Item) (Item, error) {
		if err := cond.check(old != nil); err != nil {
			return nil, err
		}
		return item.Clone(), nil
	})
}

func (s *SQLBackend) Update(ctx context.Context, key Key, set Item, remove []string) (Item, error) {
	var out Item
	err := s.write(ctx, key, func(old Item) (Item, error) {
		if old == nil {
			return nil, ErrItemNotFound
		}
		out = mergeItem(old, set, remove)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

func (s *SQLBackend) Delete(ctx context.Context, key Key) (bool, error) {
	existed := false
	err := s.write(ctx, key, func(old Item) (Item, error) {
		existed = old != nil
		return nil, nil
	})
	return existed, err
}

func (s *SQLBackend) write(ctx context.Context, key Key, fn func(old Item) (Item, error)) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		old, err := s.load(tx, key)
		if err != nil {
			return err
		}
		next, err := fn(old)
		if err != nil {
			return err
		}
		if old == nil && next == nil {
			return nil
		}
		return s.store(tx, key, next)
	})
	if err == nil || errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrConditionFailed) {
		return err
	}
	return fmt.Errorf("failed to write item %s: %w", key.PK, err)
}

func (s *SQLBackend) Query(ctx context.Context, index string, hashValue string, opts QueryOptions) ([]Item, error) {
	if _, ok := s.indexes[index]; !ok {
		return nil, ErrUnknownIndex
	}

	dir := "ASC"
	if opts.Descending {
		dir = "DESC"
	}
	q := s.db.WithContext(ctx).
		Table("board_items AS i").
		Select("i.pk, i.sk, i.data").
		Joins("JOIN board_index_entries AS e ON e.pk = i.pk AND e.sk = i.sk").
		Where("e.index_name = ? AND e.hash_value = ?", index, hashValue).
		Order(fmt.Sprintf("e.range_value %s, e.pk %s, e.sk %s", dir, dir, dir))
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}

	var rows []sqlItem
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query index %s: %w", index, err)
	}
	return decodeRows(rows)
}

func (s *SQLBackend) Scan(ctx context.Context) ([]Item, error) {
	var rows []sqlItem
	if err := s.db.WithContext(ctx).Order("pk ASC, sk ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to scan table: %w", err)
	}
	return decodeRows(rows)
}

func decodeRows(rows []sqlItem) ([]Item, error) {
	out := make([]Item, 0, len(rows))
	for _, row := range rows {
		it, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (s *SQLBackend) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close is a no-op; the pool that owns the connection closes it.
func (s *SQLBackend) Close() error {
	return nil
}
