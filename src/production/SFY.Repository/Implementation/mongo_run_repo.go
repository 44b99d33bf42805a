package implementation

import (
	"context"
	"fmt"
	"time"

	sfymodels "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Models"
	interfaces "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Repository/Interfaces"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoRunRepository struct {
	coll *mongo.Collection
}

func NewMongoRunRepository(coll *mongo.Collection) *MongoRunRepository {
	return &MongoRunRepository{coll: coll}
}

func (r *MongoRunRepository) SaveRun(ctx context.Context, rec sfymodels.RunRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"_id": rec.RunID}, rec, opts); err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.RunID, err)
	}
	return nil
}

func (r *MongoRunRepository) ListRuns(ctx context.Context, limit int) ([]sfymodels.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(interfaces.NormalizeLimit(limit)))

	cursor, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}

	runs := make([]sfymodels.RunRecord, 0)
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, fmt.Errorf("failed to decode runs: %w", err)
	}
	return runs, nil
}

func (r *MongoRunRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}
