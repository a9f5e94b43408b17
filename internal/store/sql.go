package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// documentRow is one document of any collection. Seq keeps insertion order
// and survives upserts of the same (collection, doc_id).
type documentRow struct {
	Seq        int64  `gorm:"primaryKey;autoIncrement"`
	Collection string `gorm:"type:varchar(64);not null;uniqueIndex:ux_documents_collection_doc,priority:1"`
	DocID      string `gorm:"column:doc_id;type:varchar(64);not null;uniqueIndex:ux_documents_collection_doc,priority:2"`
	Body       string `gorm:"type:text;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (documentRow) TableName() string { return "documents" }

// SQLStore keeps documents in one gorm table (sqlite or postgres).
type SQLStore struct {
	db       *gorm.DB
	viewOpts []*sql.TxOptions
}

// NewSQLStore migrates the documents table and returns the store.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate documents table: %w", err)
	}
	return &SQLStore{db: db, viewOpts: viewTxOptions(db.Dialector.Name())}, nil
}

// viewTxOptions postgres 默认 READ COMMITTED 每条语句各自一个快照，
// View 需要 REPEATABLE READ 才能让多次读落在同一快照上。sqlite 事务本身可串行化。
func viewTxOptions(dialect string) []*sql.TxOptions {
	if dialect == "postgres" {
		return []*sql.TxOptions{{Isolation: sql.LevelRepeatableRead, ReadOnly: true}}
	}
	return nil
}

type sqlTx struct{ db *gorm.DB }

func (t sqlTx) Get(ctx context.Context, collection, id string) ([]byte, error) {
	var row documentRow
	err := t.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(row.Body), nil
}

func (t sqlTx) List(ctx context.Context, collection string) ([]Document, error) {
	var rows []documentRow
	if err := t.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Document, len(rows))
	for i, r := range rows {
		out[i] = Document{ID: r.DocID, Body: []byte(r.Body)}
	}
	return out, nil
}

func (t sqlTx) Put(ctx context.Context, collection, id string, body []byte) error {
	if body == nil {
		return ErrNilBody
	}
	row := &documentRow{Collection: collection, DocID: id, Body: string(body)}
	return t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(row).Error
}

func (t sqlTx) Delete(ctx context.Context, collection, id string) error {
	res := t.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Delete(&documentRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	return sqlTx{s.db}.Get(ctx, collection, id)
}

func (s *SQLStore) List(ctx context.Context, collection string) ([]Document, error) {
	return sqlTx{s.db}.List(ctx, collection)
}

// View runs fn inside a read-only snapshot transaction so multi-collection
// reads see a single commit.
func (s *SQLStore) View(ctx context.Context, fn func(r Reader) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(sqlTx{tx})
	}, s.viewOpts...)
}

func (s *SQLStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(sqlTx{tx})
	})
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
