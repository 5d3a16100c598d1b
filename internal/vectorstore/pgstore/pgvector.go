package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ragpipe/internal/domain"
)

// chunkRecord is one embedded chunk. Rows of different builds share the
// table and are told apart by BuildID.
type chunkRecord struct {
	ID        uint   `gorm:"primaryKey"`
	BuildID   string `gorm:"type:varchar(64);not null;index"`
	Filename  string `gorm:"not null"`
	ChunkID   int    `gorm:"not null"`
	Text      string `gorm:"type:text"`
	Strategy  string
	Size      int
	Overlap   int
	Level     int
	ParentID  string
	Embedding pgvector.Vector `gorm:"type:vector"`
}

type scoredRecord struct {
	chunkRecord
	Score float64
}

// Storage keeps vectors in Postgres using the pgvector extension.
type Storage struct {
	db      *gorm.DB
	table   string
	buildID string
}

// Open connects to Postgres. The connection is shared by every Storage
// created with NewStorage from it.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("pgvector: empty DSN")
	}
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

func NewStorage(db *gorm.DB, table, buildID string) *Storage {
	if table == "" {
		table = "rag_chunks"
	}
	return &Storage{db: db, table: table, buildID: buildID}
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	db := s.db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("pgvector: enable extension: %w", err)
	}
	if err := db.Table(s.table).AutoMigrate(&chunkRecord{}); err != nil {
		return fmt.Errorf("pgvector: migrate %s: %w", s.table, err)
	}
	return db.Table(s.table).Where("build_id = ?", s.buildID).Delete(&chunkRecord{}).Error
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	if len(chunks) == 0 {
		return nil
	}
	records := make([]chunkRecord, len(chunks))
	for i, ch := range chunks {
		records[i] = toRecord(s.buildID, ch, vectors[i])
	}
	return s.db.WithContext(ctx).Table(s.table).CreateInBatches(records, 200).Error
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	q := pgvector.NewVector(vector)
	var rows []scoredRecord
	// <=> is cosine distance, so similarity is 1 - distance.
	err := s.db.WithContext(ctx).
		Table(s.table).
		Select("*, 1 - (embedding <=> ?) AS score", q).
		Where("build_id = ?", s.buildID).
		Order(gorm.Expr("embedding <=> ?", q)).
		Limit(topK).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, len(rows))
	for i, r := range rows {
		results[i] = domain.SearchResult{Chunk: fromRecord(r.chunkRecord), Score: r.Score}
	}
	return results, nil
}

// Clear deletes this build's rows.
func (s *Storage) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Table(s.table).Where("build_id = ?", s.buildID).Delete(&chunkRecord{}).Error
}

func toRecord(buildID string, ch domain.Chunk, vec []float32) chunkRecord {
	return chunkRecord{
		BuildID:   buildID,
		Filename:  ch.Filename,
		ChunkID:   ch.ChunkID,
		Text:      ch.Text,
		Strategy:  ch.Strategy,
		Size:      ch.Size,
		Overlap:   ch.Overlap,
		Level:     ch.Level,
		ParentID:  ch.ParentID,
		Embedding: pgvector.NewVector(vec),
	}
}

func fromRecord(r chunkRecord) domain.Chunk {
	return domain.Chunk{
		Text:     r.Text,
		Filename: r.Filename,
		ChunkID:  r.ChunkID,
		Strategy: r.Strategy,
		Size:     r.Size,
		Overlap:  r.Overlap,
		Level:    r.Level,
		ParentID: r.ParentID,
	}
}
