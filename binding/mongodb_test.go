package binding

import (
	"testing"

	"github.com/hhkbp2/testify/require"
	ycsb "github.com/meticulous-dft/YCSB"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func newTestMongoDB(cfg *mongoConfig) *MongoDB {
	if cfg.datatype == "" {
		cfg.datatype = "binData"
	}
	if cfg.compressibility == 0 {
		cfg.compressibility = 1.0
	}
	return &MongoDB{
		DBBase: ycsb.NewDBBase(),
		cfg:    cfg,
		pool:   &sharedPool{cfg: cfg, dbs: make([]*mongo.Database, 1)},
	}
}

func TestBuildKeyQueryPlain(t *testing.T) {
	db := newTestMongoDB(&mongoConfig{})
	q := db.buildKeyQuery("user1")
	require.Equal(t, bson.D{{Key: "_id", Value: "user1"}}, q)
}

func TestBuildKeyQueryGeoSharded(t *testing.T) {
	db := newTestMongoDB(&mongoConfig{shardKey: "user_id", location: "US"})
	q := db.buildKeyQuery("user1")
	require.Equal(t, bson.D{
		{Key: "_id", Value: "user1"},
		{Key: "user_id", Value: "user1"},
		{Key: "location", Value: "US"},
	}, q)
}

func TestTransformValueEncoding(t *testing.T) {
	db := newTestMongoDB(&mongoConfig{datatype: "string"})
	v := db.transformValue("field0", []byte("hello"))
	require.Equal(t, "hello", v)

	db = newTestMongoDB(&mongoConfig{})
	v = db.transformValue("field0", []byte("hello"))
	require.Equal(t, []byte("hello"), v)
}

func TestTransformValuePreservesRequestedLength(t *testing.T) {
	discreteFields, err := createDiscreteFieldsMap("4")
	require.Nil(t, err)
	db := newTestMongoDB(&mongoConfig{
		compressibility: 2.0,
		discreteFields:  discreteFields,
	})

	for _, length := range []int{6, 20, 100} {
		v := db.transformValue("field0", make([]byte, length))
		require.Equal(t, length, len(v.([]byte)))
	}
}

func TestInsertBuffersUntilBatchSize(t *testing.T) {
	db := newTestMongoDB(&mongoConfig{batchSize: 3})

	// calls 1..B-1 are buffered and report success without any store call;
	// the pool here has no live connection, so a store call would blow up
	status := db.Insert("usertable", "user1", ycsb.KVMap{"field0": []byte("a")})
	require.Equal(t, ycsb.StatusOK, status)
	status = db.Insert("usertable", "user2", ycsb.KVMap{"field0": []byte("b")})
	require.Equal(t, ycsb.StatusOK, status)
	require.Equal(t, 2, db.insertCount)
	require.Equal(t, 2, len(db.insertList))
	require.Equal(t, "usertable", db.batchTable)
}

func TestVerifyRow(t *testing.T) {
	db := newTestMongoDB(&mongoConfig{shardKey: "user_id", location: "US"})

	cells := ycsb.KVMap{
		"field0":   ycsb.Binary("hello"),
		"user_id":  ycsb.Binary("user1"),
		"location": ycsb.Binary("US"),
	}
	require.Equal(t, ycsb.StatusOK, db.VerifyRow("user1", cells))

	// wrong placement data is a distinct outcome from a failed operation
	cells["location"] = ycsb.Binary("EU")
	require.Equal(t, ycsb.StatusUnexpectedState, db.VerifyRow("user1", cells))

	cells["location"] = ycsb.Binary("US")
	cells["user_id"] = ycsb.Binary("user9")
	require.Equal(t, ycsb.StatusUnexpectedState, db.VerifyRow("user1", cells))

	require.Equal(t, ycsb.StatusError, db.VerifyRow("user1", ycsb.KVMap{}))
}

func TestFillMapCopiesOnlyBinaryFields(t *testing.T) {
	raw, err := bson.Marshal(bson.D{
		{Key: "_id", Value: "user1"},
		{Key: "field0", Value: []byte{1, 2, 3}},
		{Key: "location", Value: "US"},
		{Key: "updateID", Value: "abc"},
		{Key: "n", Value: int32(5)},
	})
	require.Nil(t, err)

	m := fillMap(bson.Raw(raw))
	require.Equal(t, 1, len(m))
	require.Equal(t, ycsb.Binary{1, 2, 3}, m["field0"])
}

func TestAppendFieldOnce(t *testing.T) {
	fields := []string{"field0", "field1"}
	fields = appendFieldOnce(fields, "user_id")
	require.Equal(t, []string{"field0", "field1", "user_id"}, fields)
	fields = appendFieldOnce(fields, "user_id")
	require.Equal(t, 3, len(fields))
}

func TestMongoDBImplementsDB(t *testing.T) {
	var db ycsb.DB = NewMongoDB()
	require.NotNil(t, db)

	AddBindings()
	made, err := ycsb.NewDB("mongodb", nil)
	require.Nil(t, err)
	require.NotNil(t, made)
}
