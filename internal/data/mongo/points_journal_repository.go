package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dispatch-ledger/internal/domain/points"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// PointsJournalCollectionName is the name of the points journal collection in MongoDB
	PointsJournalCollectionName = "points_journal"
)

// PointsJournalRepository implements points.JournalRepository for MongoDB.
// The journal is a read model fed by the outbox poller; balances stay authoritative in Postgres.
type PointsJournalRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

var _ points.JournalRepository = (*PointsJournalRepository)(nil)

// NewPointsJournalRepository creates a new MongoDB points journal repository
func NewPointsJournalRepository(logger *slog.Logger, db *mongo.Database) *PointsJournalRepository {
	return &PointsJournalRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the unique (event_id, office_id) index that makes
// re-delivered events collapse into one entry, plus the per-office listing index.
func (r *PointsJournalRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(PointsJournalCollectionName)

	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "office_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_event_office"),
		},
		{
			Keys:    bson.D{{Key: "office_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("office_created_at"),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, models); err != nil {
		r.logger.Error("Failed to create points journal indexes", "error", err)
		return fmt.Errorf("failed to create points journal indexes: %w", err)
	}
	return nil
}

// Append stores one journal line. Returns ErrDuplicateJournalEntry if the
// event was already journaled for the same office.
func (r *PointsJournalRepository) Append(ctx context.Context, entry *points.JournalEntry) error {
	collection := r.db.Collection(PointsJournalCollectionName)

	if _, err := collection.InsertOne(ctx, entry); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return points.ErrDuplicateJournalEntry{EventID: entry.EventID, OfficeID: entry.OfficeID}
		}
		r.logger.Error("Failed to append points journal entry",
			"event_id", entry.EventID,
			"office_id", entry.OfficeID,
			"error", err)
		return fmt.Errorf("failed to append points journal entry: %w", err)
	}

	return nil
}

// GetByOfficeID retrieves paginated journal entries for an office, newest first
func (r *PointsJournalRepository) GetByOfficeID(ctx context.Context, officeID string, limit, offset int) ([]*points.JournalEntry, error) {
	filter := bson.M{"office_id": officeID}
	entries, err := r.find(ctx, filter, limit, offset)
	if err != nil {
		r.logger.Error("Failed to get points journal entries", "office_id", officeID, "error", err)
		return nil, fmt.Errorf("failed to get points journal entries: %w", err)
	}
	return entries, nil
}

func (r *PointsJournalRepository) CountByOfficeID(ctx context.Context, officeID string) (int64, error) {
	collection := r.db.Collection(PointsJournalCollectionName)

	count, err := collection.CountDocuments(ctx, bson.M{"office_id": officeID})
	if err != nil {
		r.logger.Error("Failed to count points journal entries", "office_id", officeID, "error", err)
		return 0, fmt.Errorf("failed to count points journal entries: %w", err)
	}

	return count, nil
}

func (r *PointsJournalRepository) find(ctx context.Context, filter bson.M, limit, offset int) ([]*points.JournalEntry, error) {
	collection := r.db.Collection(PointsJournalCollectionName)

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	entries := make([]*points.JournalEntry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
