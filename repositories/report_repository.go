package repositories

import (
	"accidentwatch/database"
	"accidentwatch/models"
	"accidentwatch/utils"
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const maxListLimit = 500

type ReportRepository struct {
	collection *mongo.Collection
}

func NewReportRepository(db *mongo.Database) *ReportRepository {
	return &ReportRepository{
		collection: db.Collection(database.ReportsCollection),
	}
}

// Create assigns the report identity and timestamps, then inserts it.
func (rr *ReportRepository) Create(ctx context.Context, report *models.AccidentReport) error {
	now := time.Now()
	report.ID = primitive.NewObjectID()
	report.CreatedAt = now
	report.UpdatedAt = now
	if report.Timestamp.IsZero() {
		report.Timestamp = now
	}

	if _, err := rr.collection.InsertOne(ctx, report); err != nil {
		logrus.Errorf("Failed to create report: %v", err)
		report.ID = primitive.NilObjectID
		return utils.NewDatabaseError("create report", err)
	}
	return nil
}

// ListRecent returns up to limit reports, newest first.
func (rr *ReportRepository) ListRecent(ctx context.Context, limit int) ([]models.AccidentReport, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := rr.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, utils.NewDatabaseError("list reports", err)
	}
	defer cursor.Close(ctx)

	reports := make([]models.AccidentReport, 0, limit)
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, utils.NewDatabaseError("decode reports", err)
	}
	return reports, nil
}

func (rr *ReportRepository) GetByID(ctx context.Context, id string) (*models.AccidentReport, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, utils.NewBadRequestError("invalid report ID")
	}

	var report models.AccidentReport
	err = rr.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&report)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.NewReportNotFoundError()
		}
		return nil, utils.NewDatabaseError("get report", err)
	}
	return &report, nil
}

// MarkVerified records an administrator's verification and returns the updated report.
func (rr *ReportRepository) MarkVerified(ctx context.Context, id, verifiedBy string, at time.Time) (*models.AccidentReport, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, utils.NewBadRequestError("invalid report ID")
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$set": bson.M{
		"verifiedAt": at,
		"verifiedBy": verifiedBy,
		"updatedAt":  time.Now(),
	}}

	var report models.AccidentReport
	err = rr.collection.FindOneAndUpdate(ctx, bson.M{"_id": objectID}, update, opts).Decode(&report)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.NewReportNotFoundError()
		}
		return nil, utils.NewDatabaseError("verify report", err)
	}
	return &report, nil
}
