package binding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	ycsb "github.com/meticulous-dft/YCSB"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	encryptionAlgorithm = "AEAD_AES_256_CBC_HMAC_SHA_512-Random"

	// The key vault lives in the working database; using admin is slow.
	keyVaultCollection = "datakeys"
)

// Hard coded local KMS master key since it needs to be shared between the
// load and run phases.
var localMasterKey = []byte{
	0x77, 0x1f, 0x2d, 0x7d, 0x76, 0x74, 0x39, 0x08, 0x50, 0x0b, 0x61, 0x14,
	0x3a, 0x07, 0x24, 0x7c, 0x37, 0x7b, 0x60, 0x0f, 0x09, 0x11, 0x23, 0x65,
	0x35, 0x01, 0x3a, 0x76, 0x5f, 0x3e, 0x4b, 0x6a, 0x65, 0x77, 0x21, 0x6d,
	0x34, 0x13, 0x24, 0x1b, 0x47, 0x73, 0x21, 0x5d, 0x56, 0x6a, 0x38, 0x30,
	0x6d, 0x5e, 0x79, 0x1b, 0x25, 0x4d, 0x2a, 0x00, 0x7c, 0x0b, 0x65, 0x1d,
	0x70, 0x22, 0x22, 0x61, 0x2e, 0x6a, 0x52, 0x46, 0x6a, 0x43, 0x43, 0x23,
	0x58, 0x21, 0x78, 0x59, 0x64, 0x35, 0x5c, 0x23, 0x00, 0x27, 0x43, 0x7d,
	0x50, 0x13, 0x65, 0x3c, 0x54, 0x1e, 0x74, 0x3c, 0x3b, 0x57, 0x21, 0x1a,
}

// dataKeyMutex serializes lookup-or-create of the data encryption key.
// Concurrent initializers must never create two distinct keys for the same
// dataset.
var dataKeyMutex sync.Mutex

func kmsProviders() map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		"local": {"key": localMasterKey},
	}
}

func fieldName(i int) string {
	return fmt.Sprintf("field%d", i)
}

func normalizeURL(url string) string {
	if !strings.HasPrefix(url, "mongodb") {
		return "mongodb://" + url
	}
	return url
}

func (cfg *mongoConfig) keyVaultNamespace() string {
	return cfg.database + "." + keyVaultCollection
}

func (cfg *mongoConfig) collectionNamespace() string {
	return cfg.database + "." + cfg.collection
}

// generateSchema builds the automatic-encryption schema mapping each of
// field0..fieldN-1 to an encrypt directive referencing the data key.
func generateSchema(keyID primitive.Binary, numFields int, datatype string) bson.M {
	properties := bson.M{}
	for i := 0; i < numFields; i++ {
		properties[fieldName(i)] = bson.M{
			"encrypt": bson.M{
				"keyId":     bson.A{keyID},
				"bsonType":  datatype,
				"algorithm": encryptionAlgorithm,
			},
		}
	}
	return bson.M{
		"bsonType":   "object",
		"properties": properties,
	}
}

func generateRemoteSchema(keyID primitive.Binary, numFields int, datatype string) bson.M {
	return bson.M{"$jsonSchema": generateSchema(keyID, numFields, datatype)}
}

// generateEncryptedFields builds the queryable-encryption descriptor: one
// entry per field, each supporting equality queries, with the configured
// contention factor when one is set for that field index.
func (cfg *mongoConfig) generateEncryptedFields(keyID primitive.Binary) bson.M {
	fields := bson.A{}
	for i := 0; i < cfg.numFleFields; i++ {
		queries := bson.M{"queryType": "equality"}
		if i < len(cfg.contentionFactors) && cfg.contentionFactors[i] > -1 {
			queries["contention"] = cfg.contentionFactors[i]
		}
		fields = append(fields, bson.M{
			"path":     fieldName(i),
			"keyId":    keyID,
			"bsonType": cfg.datatype,
			"queries":  bson.A{queries},
		})
	}
	return bson.M{"fields": fields}
}

// getDataKeyOrCreate returns the dataset's data encryption key, creating it
// through the key management API only when the key vault holds none.
func getDataKeyOrCreate(ctx context.Context, keyCollection *mongo.Collection, clientEncryption *mongo.ClientEncryption) (primitive.Binary, error) {
	dataKeyMutex.Lock()
	defer dataKeyMutex.Unlock()

	var keyDoc bson.Raw
	err := keyCollection.FindOne(ctx, bson.D{}).Decode(&keyDoc)
	if err == nil {
		subtype, data, ok := keyDoc.Lookup("_id").BinaryOK()
		if !ok {
			return primitive.Binary{}, fmt.Errorf("key vault document in %s has a non-binary _id", keyCollection.Name())
		}
		key := primitive.Binary{Subtype: subtype, Data: data}
		if id, err := uuid.FromBytes(key.Data); err == nil {
			ycsb.Debugf("reusing data key %s", id)
		}
		return key, nil
	}
	if err != mongo.ErrNoDocuments {
		return primitive.Binary{}, err
	}

	key, err := clientEncryption.CreateDataKey(ctx, "local", options.DataKey())
	if err != nil {
		return primitive.Binary{}, err
	}
	if id, err := uuid.FromBytes(key.Data); err == nil {
		ycsb.Debugf("created data key %s", id)
	}
	return key, nil
}

func isCollectionCreated(ctx context.Context, client *mongo.Client, dbName, collName string) (bool, error) {
	names, err := client.Database(dbName).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if name == collName {
			return true, nil
		}
	}
	return false, nil
}

// generateEncryptionSettings provisions the data key and builds the
// auto-encryption options for the first pooled connection. In queryable mode
// it also creates the backing collection (with its auxiliary structures and
// __safeContent__ index) and optionally shards it. The returned client is the
// key vault connection; the pool owns and closes it.
func generateEncryptionSettings(ctx context.Context, url string, cfg *mongoConfig) (*options.AutoEncryptionOptions, *mongo.Client, error) {
	keyVaultURL := normalizeURL(url)
	kms := kmsProviders()

	vaultOpts := options.Client().
		ApplyURI(keyVaultURL).
		SetWriteConcern(cfg.writeConcern).
		SetReadPreference(cfg.readPreference)
	vaultClient, err := mongo.Connect(ctx, vaultOpts)
	if err != nil {
		return nil, nil, err
	}

	ceOpts := options.ClientEncryption().
		SetKeyVaultNamespace(cfg.keyVaultNamespace()).
		SetKmsProviders(kms)
	clientEncryption, err := mongo.NewClientEncryption(vaultClient, ceOpts)
	if err != nil {
		return nil, vaultClient, err
	}

	keyCollection := vaultClient.Database(cfg.database).Collection(keyVaultCollection)
	dataKey, err := getDataKeyOrCreate(ctx, keyCollection, clientEncryption)
	if err != nil {
		return nil, vaultClient, err
	}

	extraOptions := map[string]interface{}{
		"mongocryptdBypassSpawn": true,
	}
	if cfg.useCryptSharedLib {
		extraOptions["cryptSharedLibRequired"] = true
		extraOptions["cryptSharedLibPath"] = cfg.cryptSharedLibPath
	}

	autoEncryption := options.AutoEncryption().
		SetKeyVaultNamespace(cfg.keyVaultNamespace()).
		SetKmsProviders(kms).
		SetExtraOptions(extraOptions)

	collNamespace := cfg.collectionNamespace()

	switch cfg.encryption {
	case encryptionFLE:
		autoEncryption.SetSchemaMap(map[string]interface{}{
			collNamespace: generateSchema(dataKey, cfg.numFleFields, cfg.datatype),
		})

	case encryptionQueryable:
		created, err := isCollectionCreated(ctx, vaultClient, cfg.database, cfg.collection)
		if err != nil {
			return nil, vaultClient, err
		}
		if !created {
			encryptedFields := cfg.generateEncryptedFields(dataKey)
			autoEncryption.SetEncryptedFieldsMap(map[string]interface{}{
				collNamespace: encryptedFields,
			})

			// This creates the encrypted data collection and its auxiliary
			// collections, as well as the index on the __safeContent__ field.
			createOpts := options.CreateCollection().SetEncryptedFields(encryptedFields)
			err = vaultClient.Database(cfg.database).CreateCollection(ctx, cfg.collection, createOpts)
			if err != nil {
				return nil, vaultClient, err
			}

			if cfg.sharded {
				admin := vaultClient.Database("admin")
				enableSharding := bson.D{{Key: "enableSharding", Value: cfg.database}}
				if err := admin.RunCommand(ctx, enableSharding).Err(); err != nil {
					return nil, vaultClient, err
				}
				shardCollection := bson.D{
					{Key: "shardCollection", Value: collNamespace},
					{Key: "key", Value: bson.D{{Key: "_id", Value: "hashed"}}},
				}
				if err := admin.RunCommand(ctx, shardCollection).Err(); err != nil {
					return nil, vaultClient, err
				}
			}
		}
		return autoEncryption, vaultClient, nil
	}

	if cfg.remoteSchema {
		validator := generateRemoteSchema(dataKey, cfg.numFleFields, cfg.datatype)
		createOpts := options.CreateCollection().SetValidator(validator)
		err := vaultClient.Database(cfg.database).CreateCollection(ctx, cfg.collection, createOpts)
		if err != nil {
			// During the load phase this must fail hard; during a later run
			// against a populated collection it is expected to fail and is
			// ignored. A non-zero document count tells the two apart.
			count, countErr := vaultClient.Database(cfg.database).Collection(cfg.collection).EstimatedDocumentCount(ctx)
			if countErr != nil || count <= 0 {
				return nil, vaultClient, fmt.Errorf("failed to create collection %s with error %s", cfg.collection, err)
			}
		}
	}

	return autoEncryption, vaultClient, nil
}
