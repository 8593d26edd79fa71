package binding

import (
	"fmt"
	"strconv"
	"strings"

	ycsb "github.com/meticulous-dft/YCSB"
	"github.com/meticulous-dft/YCSB/generator"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	PropertyMongoURL                   = "mongodb.url"
	PropertyMongoURLDefault            = "mongodb://localhost:27017"
	PropertyMongoDatabase              = "mongodb.database"
	PropertyMongoDatabaseDefault       = "ycsb"
	PropertyMongoCollection            = "mongodb.collection"
	PropertyMongoCollectionDefault     = "usertable"
	PropertyMongoShardKey              = "mongodb.shardKey"
	PropertyMongoShardKeyDefault       = ""
	PropertyMongoLocation              = "mongodb.location"
	PropertyMongoLocationDefault       = ""
	PropertyMongoUsername              = "mongodb.username"
	PropertyMongoUsernameDefault       = ""
	PropertyMongoPassword              = "mongodb.password"
	PropertyMongoPasswordDefault       = ""
	PropertyMongoWriteConcern          = "mongodb.writeConcern"
	PropertyMongoWriteConcernDefault   = "acknowledged"
	PropertyMongoReadPreference        = "mongodb.readPreference"
	PropertyMongoReadPreferenceDefault = "primary"
	PropertyMongoSharded               = "mongodb.sharded"
	PropertyMongoShardedDefault        = false
	PropertyMongoFLE                   = "mongodb.fle"
	PropertyMongoFLEDefault            = false
	PropertyMongoQE                    = "mongodb.qe"
	PropertyMongoQEDefault             = false
	PropertyMongoRemoteSchema          = "mongodb.remote_schema"
	PropertyMongoRemoteSchemaDefault   = false
	PropertyMongoNumFleFields          = "mongodb.numFleFields"
	PropertyMongoNumFleFieldsDefault   = 10
	PropertyMongoContentionFactors     = "mongodb.contentionFactors"
	PropertyMongoCryptSharedLib        = "mongodb.useCryptSharedLib"
	PropertyMongoCryptSharedLibDefault = false
	PropertyMongoCryptSharedLibPath    = "mongodb.cryptSharedLibPath"
	PropertyMongoCardinalities         = "mongodb.cardinalities"
	PropertyBatchSize                  = "batchsize"
	PropertyBatchSizeDefault           = 1
	PropertyDataType                   = "datatype"
	PropertyDataTypeDefault            = "binData"
	PropertyCompressibility            = "compressibility"
	PropertyCompressibilityDefault     = 1.0
	PropertyThreadCount                = "threadcount"
	PropertyThreadCountDefault         = 100
)

type encryptionMode int

const (
	encryptionNone encryptionMode = iota
	encryptionFLE
	encryptionQueryable
)

// mongoConfig holds the typed settings shared by every worker in the process.
// It is resolved once, by the first worker to acquire the shared pool, and is
// read-only afterwards.
type mongoConfig struct {
	urls       string
	database   string
	collection string
	shardKey   string
	location   string
	username   string
	password   string

	batchSize       int
	datatype        string
	compressibility float64
	maxPoolSize     int

	writeConcern   *writeconcern.WriteConcern
	readPreference *readpref.ReadPref

	sharded            bool
	encryption         encryptionMode
	remoteSchema       bool
	numFleFields       int
	useCryptSharedLib  bool
	cryptSharedLibPath string
	contentionFactors  []int64

	discreteFields map[string]*generator.DiscreteGenerator
}

func (cfg *mongoConfig) useEncryption() bool {
	return cfg.encryption != encryptionNone
}

func resolveConfig(props ycsb.Properties) (*mongoConfig, error) {
	cfg := &mongoConfig{
		urls:       props.GetString(PropertyMongoURL, PropertyMongoURLDefault),
		database:   props.GetString(PropertyMongoDatabase, PropertyMongoDatabaseDefault),
		collection: props.GetString(PropertyMongoCollection, PropertyMongoCollectionDefault),
		shardKey:   props.GetString(PropertyMongoShardKey, PropertyMongoShardKeyDefault),
		location:   props.GetString(PropertyMongoLocation, PropertyMongoLocationDefault),
		username:   props.GetString(PropertyMongoUsername, PropertyMongoUsernameDefault),
		password:   props.GetString(PropertyMongoPassword, PropertyMongoPasswordDefault),
	}

	// Credentials may also be embedded in the URL. If both are present and
	// differ, the URL wins.
	if uriUsername, uriPassword, ok := parseURICredentials(cfg.urls); ok {
		_, hasUser := props.Get(PropertyMongoUsername)
		_, hasPassword := props.Get(PropertyMongoPassword)
		if hasUser && hasPassword {
			if uriUsername != cfg.username || uriPassword != cfg.password {
				ycsb.Warnf("WARNING: Username/Password provided in the properties does not match what is present in the URI, defaulting to the URI")
			}
		}
		cfg.username = uriUsername
		cfg.password = uriPassword
	}

	cfg.batchSize = props.GetInt(PropertyBatchSize, PropertyBatchSizeDefault)

	cfg.datatype = props.GetString(PropertyDataType, PropertyDataTypeDefault)
	switch cfg.datatype {
	case "binData", "string":
	default:
		return nil, fmt.Errorf("invalid datatype: '%s'. Must be [ binData | string ]", cfg.datatype)
	}

	cfg.compressibility = props.GetFloat64(PropertyCompressibility, PropertyCompressibilityDefault)

	// Size the connection pool to the ycsb thread pool.
	cfg.maxPoolSize = props.GetInt(PropertyThreadCount, PropertyThreadCountDefault)

	writeConcernType := strings.ToLower(props.GetString(PropertyMongoWriteConcern, PropertyMongoWriteConcernDefault))
	switch writeConcernType {
	case "unacknowledged":
		cfg.writeConcern = writeconcern.Unacknowledged()
	case "acknowledged":
		cfg.writeConcern = writeconcern.W1()
	case "journaled":
		cfg.writeConcern = writeconcern.Journaled()
	case "replica_acknowledged":
		cfg.writeConcern = &writeconcern.WriteConcern{W: 2}
	case "majority":
		cfg.writeConcern = writeconcern.Majority()
	default:
		return nil, fmt.Errorf("invalid writeConcern: '%s'. Must be [ unacknowledged | acknowledged | journaled | replica_acknowledged | majority ]", writeConcernType)
	}

	readPreferenceType := strings.ToLower(props.GetString(PropertyMongoReadPreference, PropertyMongoReadPreferenceDefault))
	switch readPreferenceType {
	case "primary":
		cfg.readPreference = readpref.Primary()
	case "primary_preferred":
		cfg.readPreference = readpref.PrimaryPreferred()
	case "secondary":
		cfg.readPreference = readpref.Secondary()
	case "secondary_preferred":
		cfg.readPreference = readpref.SecondaryPreferred()
	case "nearest":
		cfg.readPreference = readpref.Nearest()
	default:
		return nil, fmt.Errorf("invalid readPreference: '%s'. Must be [ primary | primary_preferred | secondary | secondary_preferred | nearest ]", readPreferenceType)
	}

	cfg.sharded = props.GetBool(PropertyMongoSharded, PropertyMongoShardedDefault)

	useFLE := props.GetBool(PropertyMongoFLE, PropertyMongoFLEDefault)
	useQE := props.GetBool(PropertyMongoQE, PropertyMongoQEDefault)
	if useFLE && useQE {
		return nil, fmt.Errorf("%s and %s cannot both be true", PropertyMongoFLE, PropertyMongoQE)
	}
	if useFLE {
		cfg.encryption = encryptionFLE
	}
	if useQE {
		cfg.encryption = encryptionQueryable
	}

	cfg.remoteSchema = props.GetBool(PropertyMongoRemoteSchema, PropertyMongoRemoteSchemaDefault)
	cfg.numFleFields = props.GetInt(PropertyMongoNumFleFields, PropertyMongoNumFleFieldsDefault)

	cfg.useCryptSharedLib = props.GetBool(PropertyMongoCryptSharedLib, PropertyMongoCryptSharedLibDefault)
	if cfg.useCryptSharedLib {
		cfg.cryptSharedLibPath = props.GetString(PropertyMongoCryptSharedLibPath, "")
		if cfg.cryptSharedLibPath == "" {
			return nil, fmt.Errorf("%s must be non-empty if %s is true", PropertyMongoCryptSharedLibPath, PropertyMongoCryptSharedLib)
		}
	}

	var err error
	cfg.contentionFactors, err = parseCommaSeparatedInt64s(props.GetString(PropertyMongoContentionFactors, ""), -1)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %s", PropertyMongoContentionFactors, err)
	}
	cfg.discreteFields, err = createDiscreteFieldsMap(props.GetString(PropertyMongoCardinalities, ""))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %s", PropertyMongoCardinalities, err)
	}

	return cfg, nil
}

// parseURICredentials extracts "user:password" between the "//" and "@" of a
// connection string. ok is false when the URL carries no credentials.
func parseURICredentials(urls string) (username, password string, ok bool) {
	at := strings.Index(urls, "@")
	if at < 0 {
		return "", "", false
	}
	start := strings.Index(urls, "//")
	if start < 0 || start+2 > at {
		return "", "", false
	}
	credentials := urls[start+2 : at]
	parts := strings.SplitN(credentials, ":", 2)
	username = parts[0]
	if len(parts) > 1 {
		password = parts[1]
	}
	return username, password, true
}

// parseCommaSeparatedInt64s parses a list like "4,,16"; empty entries take
// defaultValue. Trailing empty entries are kept.
func parseCommaSeparatedInt64s(toParse string, defaultValue int64) ([]int64, error) {
	if strings.TrimSpace(toParse) == "" {
		return nil, nil
	}
	values := strings.Split(toParse, ",")
	parsed := make([]int64, len(values))
	for i, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			parsed[i] = defaultValue
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, err
		}
		parsed[i] = n
	}
	return parsed, nil
}

// createDiscreteFieldsMap builds one uniformly weighted generator per field
// with a positive cardinality. A field with cardinality c draws from
// value0..value(c-1).
func createDiscreteFieldsMap(cardinalities string) (map[string]*generator.DiscreteGenerator, error) {
	parsed, err := parseCommaSeparatedInt64s(cardinalities, 0)
	if err != nil {
		return nil, err
	}
	outputMap := make(map[string]*generator.DiscreteGenerator)
	for i, value := range parsed {
		if value <= 0 {
			continue
		}
		gen := generator.NewDiscreteGenerator()
		for j := int64(0); j < value; j++ {
			gen.AddValue(1, fmt.Sprintf("value%d", j))
		}
		outputMap[fmt.Sprintf("field%d", i)] = gen
	}
	return outputMap, nil
}
