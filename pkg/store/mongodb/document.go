package mongodb

import (
	"github.com/Sternrassler/subgraph-sync/pkg/entity"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// document converts a row to a BSON document in column order.
func document(ent *entity.Entity, row entity.Row) bson.D {
	doc := make(bson.D, 0, len(ent.Columns))
	for i, col := range ent.Columns {
		doc = append(doc, bson.E{Key: col.Name, Value: bsonValue(col.Type, row[i])})
	}
	return doc
}

// bsonValue maps a row value to its BSON form. Numerics become Decimal128;
// values beyond its 34 significant digits are kept as strings.
func bsonValue(t entity.ColumnType, v any) any {
	if v == nil {
		return nil
	}

	switch t {
	case entity.Numeric:
		s, ok := v.(string)
		if !ok {
			return v
		}
		d, err := primitive.ParseDecimal128(s)
		if err != nil {
			return s
		}
		return d
	case entity.Bytes:
		if b, ok := v.([]byte); ok {
			return primitive.Binary{Subtype: 0x00, Data: b}
		}
	}
	return v
}

// writeModels builds one upserting UpdateOne per row, filtered on the natural key.
func writeModels(ent *entity.Entity, rows []entity.Row) []mongo.WriteModel {
	keyIdx := ent.KeyIndex()
	models := make([]mongo.WriteModel, 0, len(rows))
	for _, row := range rows {
		filter := bson.D{{Key: ent.Key, Value: row[keyIdx]}}
		update := bson.D{{Key: "$set", Value: document(ent, row)}}
		models = append(models, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true))
	}
	return models
}
