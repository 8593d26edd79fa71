package binding

import (
	"fmt"
	"testing"

	"github.com/hhkbp2/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func testDataKey() primitive.Binary {
	return primitive.Binary{
		Subtype: 0x04,
		Data:    []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
	}
}

func TestGenerateSchema(t *testing.T) {
	key := testDataKey()
	numFields := 4
	schema := generateSchema(key, numFields, "binData")

	require.Equal(t, "object", schema["bsonType"])
	fieldProperties := schema["properties"].(bson.M)
	require.Equal(t, numFields, len(fieldProperties))

	for i := 0; i < numFields; i++ {
		field := fieldProperties[fmt.Sprintf("field%d", i)].(bson.M)
		encrypt := field["encrypt"].(bson.M)
		require.Equal(t, "binData", encrypt["bsonType"])
		require.Equal(t, encryptionAlgorithm, encrypt["algorithm"])
		keyIDs := encrypt["keyId"].(bson.A)
		require.Equal(t, 1, len(keyIDs))
		require.Equal(t, key, keyIDs[0])
	}
}

func TestGenerateRemoteSchema(t *testing.T) {
	schema := generateRemoteSchema(testDataKey(), 2, "string")
	inner := schema["$jsonSchema"].(bson.M)
	require.Equal(t, "object", inner["bsonType"])
	require.Equal(t, 2, len(inner["properties"].(bson.M)))
}

func TestGenerateEncryptedFields(t *testing.T) {
	cfg := &mongoConfig{
		datatype:          "binData",
		numFleFields:      3,
		contentionFactors: []int64{8, -1},
	}
	key := testDataKey()
	doc := cfg.generateEncryptedFields(key)

	fields := doc["fields"].(bson.A)
	require.Equal(t, 3, len(fields))

	for i, raw := range fields {
		field := raw.(bson.M)
		require.Equal(t, fmt.Sprintf("field%d", i), field["path"])
		require.Equal(t, key, field["keyId"])
		require.Equal(t, "binData", field["bsonType"])

		queries := field["queries"].(bson.A)
		require.Equal(t, 1, len(queries))
		query := queries[0].(bson.M)
		require.Equal(t, "equality", query["queryType"])

		// only field0 has a usable contention factor: field1 is the parser
		// default -1 and field2 has none configured
		contention, hasContention := query["contention"]
		if i == 0 {
			require.True(t, hasContention)
			require.Equal(t, int64(8), contention)
		} else {
			require.False(t, hasContention)
		}
	}
}

func TestKeyVaultNamespace(t *testing.T) {
	cfg := &mongoConfig{database: "ycsb", collection: "usertable"}
	require.Equal(t, "ycsb.datakeys", cfg.keyVaultNamespace())
	require.Equal(t, "ycsb.usertable", cfg.collectionNamespace())
}

func TestLocalMasterKeyLength(t *testing.T) {
	// the local KMS provider requires a 96-byte master key
	require.Equal(t, 96, len(localMasterKey))
	providers := kmsProviders()
	require.NotNil(t, providers["local"]["key"])
}
