package binding

import (
	"context"
	"os"

	ycsb "github.com/meticulous-dft/YCSB"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// locationField is the synthetic geo-placement field injected on write and
// filtered on read. The mongodb.location property holds its value.
const locationField = "location"

// MongoDB is the binding for a MongoDB (or compatible) document store.
//
// One instance exists per client routine; the connection pool, resolved
// configuration and encryption context are shared process-wide through a
// reference-counted pool. The insert batch buffer is worker-local and never
// synchronized.
type MongoDB struct {
	*ycsb.DBBase
	pool *sharedPool
	cfg  *mongoConfig

	insertList  []interface{}
	insertCount int
	batchTable  string
}

func NewMongoDB() *MongoDB {
	return &MongoDB{
		DBBase: ycsb.NewDBBase(),
	}
}

// Init acquires the shared connection pool, building it (connections,
// durability and locality settings, encryption context) if this worker is the
// first in the process. Configuration and connection failures are not
// recoverable: every worker shares the same settings, so fail the process.
func (self *MongoDB) Init() error {
	p, err := acquirePool(self.GetProperties())
	if err != nil {
		ycsb.EPrintf("Could not initialize MongoDB connection pool: %s", err)
		os.Exit(1)
	}
	self.pool = p
	self.cfg = p.cfg
	return nil
}

// Cleanup flushes any partially filled batch and drops this worker's pool
// reference. The connections close when the last worker leaves.
func (self *MongoDB) Cleanup() error {
	if self.insertCount > 0 {
		ctx := context.Background()
		collection := self.pool.nextDatabase().Collection(self.batchTable)
		if _, err := collection.InsertMany(ctx, self.insertList); err != nil {
			ycsb.EPrintf("Exception while flushing %d buffered inserts: %s", self.insertCount, err)
		}
		self.insertCount = 0
		self.insertList = nil
	}
	releasePool(self.pool)
	return nil
}

// buildKeyQuery returns the filter for a single record: the key, plus
// equality constraints on the shard key and location fields when configured.
func (self *MongoDB) buildKeyQuery(key string) bson.D {
	q := bson.D{{Key: "_id", Value: key}}
	if self.cfg.shardKey != "" {
		// shard key is the same as _id
		q = append(q, bson.E{Key: self.cfg.shardKey, Value: key})
	}
	if self.cfg.location != "" {
		q = append(q, bson.E{Key: locationField, Value: self.cfg.location})
	}
	return q
}

// transformValue applies the discrete override and the compressibility
// transform, then encodes per the configured datatype.
func (self *MongoDB) transformValue(field string, value []byte) interface{} {
	data := self.cfg.overrideDataIfDiscrete(field, value)
	data = applyCompressibility(data, self.cfg.compressibility)
	if self.cfg.datatype == "string" {
		return string(data)
	}
	return data
}

// Read a single record by key. A missing document is an error, not merely
// "not found": the workload only reads keys it inserted.
func (self *MongoDB) Read(table string, key string, fields []string) (ycsb.KVMap, ycsb.StatusType) {
	ctx := context.Background()
	collection := self.pool.nextDatabase().Collection(table)
	q := self.buildKeyQuery(key)

	findOpts := options.FindOne()
	if fields != nil {
		projected := make([]string, 0, len(fields)+2)
		projected = append(projected, fields...)
		if self.cfg.shardKey != "" {
			projected = appendFieldOnce(projected, self.cfg.shardKey)
		}
		if self.cfg.location != "" {
			projected = appendFieldOnce(projected, locationField)
		}
		projection := bson.D{}
		for _, field := range projected {
			projection = append(projection, bson.E{Key: field, Value: 1})
		}
		findOpts.SetProjection(projection)
	}

	var doc bson.Raw
	err := collection.FindOne(ctx, q, findOpts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		ycsb.EPrintf("No results returned for key %s", key)
		return nil, ycsb.StatusError
	}
	if err != nil {
		ycsb.EPrintf("%s", err)
		return nil, ycsb.StatusError
	}

	elements, err := doc.Elements()
	if err != nil {
		ycsb.EPrintf("%s", err)
		return nil, ycsb.StatusError
	}
	result := make(ycsb.KVMap, len(elements))
	for _, element := range elements {
		value := element.Value()
		switch value.Type {
		case bsontype.Binary:
			_, data := value.Binary()
			result[element.Key()] = ycsb.Binary(data)
		case bsontype.String:
			// shard key and location come back as strings; hand them to the
			// caller in the same representation as every other field.
			result[element.Key()] = ycsb.Binary(value.StringValue())
		}
	}
	return result, ycsb.StatusOK
}

// Scan performs an ascending range read of recordCount records starting at
// startKey, narrowed by the location constraint when one is configured.
func (self *MongoDB) Scan(table string, startKey string, recordCount int64, fields []string) ([]ycsb.KVMap, ycsb.StatusType) {
	ctx := context.Background()
	collection := self.pool.nextDatabase().Collection(table)

	q := bson.D{{Key: "_id", Value: bson.D{{Key: "$gte", Value: startKey}}}}
	if self.cfg.location != "" {
		q = append(q, bson.E{Key: locationField, Value: self.cfg.location})
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(recordCount)
	if fields != nil {
		projection := bson.D{}
		for _, field := range fields {
			projection = append(projection, bson.E{Key: field, Value: 1})
		}
		findOpts.SetProjection(projection)
	}

	cursor, err := collection.Find(ctx, q, findOpts)
	if err != nil {
		ycsb.EPrintf("%s", err)
		return nil, ycsb.StatusError
	}
	defer cursor.Close(ctx)

	results := make([]ycsb.KVMap, 0, int(recordCount))
	for cursor.Next(ctx) {
		results = append(results, fillMap(cursor.Current))
	}
	if err := cursor.Err(); err != nil {
		ycsb.EPrintf("%s", err)
		return nil, ycsb.StatusError
	}
	if len(results) == 0 {
		ycsb.EPrintf("Nothing found in scan for key %s", startKey)
		return nil, ycsb.StatusError
	}
	return results, ycsb.StatusOK
}

// Update applies an in-place field set. The shard key and location fields are
// immutable after insert and are never written. Every update also stamps a
// fresh updateID marker. Zero matched and zero modified documents are both
// failures: an update that changed nothing is indistinguishable from one that
// went nowhere.
func (self *MongoDB) Update(table string, key string, values ycsb.KVMap) ycsb.StatusType {
	ctx := context.Background()
	collection := self.pool.nextDatabase().Collection(table)
	q := self.buildKeyQuery(key)

	fieldsToSet := bson.D{{Key: "updateID", Value: primitive.NewObjectID().Hex()}}
	for k, v := range values {
		if k == locationField || k == self.cfg.shardKey {
			continue
		}
		fieldsToSet = append(fieldsToSet, bson.E{Key: k, Value: self.transformValue(k, v)})
	}

	res, err := collection.UpdateOne(ctx, q, bson.D{{Key: "$set", Value: fieldsToSet}})
	if err != nil {
		ycsb.EPrintf("%s", err)
		return ycsb.StatusError
	}
	if res.MatchedCount == 0 {
		ycsb.EPrintf("Can not find key %s", key)
		return ycsb.StatusError
	}
	if res.ModifiedCount == 0 {
		ycsb.EPrintf("Nothing updated for key %s", key)
		return ycsb.StatusError
	}
	return ycsb.StatusOK
}

// Insert writes one record, or buffers it when batching is configured. A
// buffered insert reports success; the buffer is flushed as one bulk write
// when it reaches the batch size.
func (self *MongoDB) Insert(table string, key string, values ycsb.KVMap) ycsb.StatusType {
	ctx := context.Background()

	doc := bson.D{{Key: "_id", Value: key}}
	for k, v := range values {
		doc = append(doc, bson.E{Key: k, Value: self.transformValue(k, v)})
	}

	if self.cfg.batchSize == 1 {
		collection := self.pool.nextDatabase().Collection(table)
		if _, err := collection.InsertOne(ctx, doc); err != nil {
			ycsb.EPrintf("Couldn't insert key %s: %s", key, err)
			return ycsb.StatusError
		}
		return ycsb.StatusOK
	}

	if self.insertCount == 0 {
		self.insertList = make([]interface{}, 0, self.cfg.batchSize)
		self.batchTable = table
	}
	self.insertCount++
	self.insertList = append(self.insertList, doc)
	if self.insertCount < self.cfg.batchSize {
		// merely buffered; no store call happens until the buffer fills
		return ycsb.StatusOK
	}
	collection := self.pool.nextDatabase().Collection(table)
	if _, err := collection.InsertMany(ctx, self.insertList); err != nil {
		ycsb.EPrintf("Exception while trying bulk insert with %d: %s", self.insertCount, err)
		return ycsb.StatusError
	}
	self.insertCount = 0
	return ycsb.StatusOK
}

// Delete removes all documents matching the key query; key uniqueness means
// at most one in practice.
func (self *MongoDB) Delete(table string, key string) ycsb.StatusType {
	ctx := context.Background()
	collection := self.pool.nextDatabase().Collection(table)
	if _, err := collection.DeleteMany(ctx, self.buildKeyQuery(key)); err != nil {
		ycsb.EPrintf("%s", err)
		return ycsb.StatusError
	}
	return ycsb.StatusOK
}

// VerifyRow checks a returned row against the configured geo placement: the
// shard key must mirror the record key and the location field must carry the
// configured value. A well-formed row with wrong values is UNEXPECTED_STATE,
// distinct from ERROR, so callers can tell "failed" from "succeeded with
// wrong data". An empty row is never valid.
func (self *MongoDB) VerifyRow(key string, cells ycsb.KVMap) ycsb.StatusType {
	if len(cells) == 0 {
		return ycsb.StatusError
	}
	status := ycsb.StatusOK
	if self.cfg.location != "" {
		if got := string(cells[locationField]); got != self.cfg.location {
			ycsb.EPrintf("Error verifying location: expect %s get %s", self.cfg.location, got)
			status = ycsb.StatusUnexpectedState
		}
	}
	if self.cfg.shardKey != "" {
		if got := string(cells[self.cfg.shardKey]); got != key {
			ycsb.EPrintf("Error verifying shard key: expect %s get %s", key, got)
			status = ycsb.StatusUnexpectedState
		}
	}
	return status
}

// fillMap copies only byte-array-typed fields; other field types are
// silently dropped.
func fillMap(doc bson.Raw) ycsb.KVMap {
	result := make(ycsb.KVMap)
	elements, err := doc.Elements()
	if err != nil {
		return result
	}
	for _, element := range elements {
		if element.Value().Type == bsontype.Binary {
			_, data := element.Value().Binary()
			result[element.Key()] = ycsb.Binary(data)
		}
	}
	return result
}

func appendFieldOnce(fields []string, field string) []string {
	for _, f := range fields {
		if f == field {
			return fields
		}
	}
	return append(fields, field)
}
