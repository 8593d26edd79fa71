package binding

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	ycsb "github.com/meticulous-dft/YCSB"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// endpointSeparator splits a multi-endpoint URL property; operations
// round-robin across the resulting connections.
const endpointSeparator = "|"

// sharedPool is the process-wide connection state shared by every worker.
// The first worker to call acquirePool builds it; later workers only bump the
// reference count. The last releasePool tears it down.
type sharedPool struct {
	cfg         *mongoConfig
	clients     []*mongo.Client
	dbs         []*mongo.Database
	vaultClient *mongo.Client

	// counter distributes operations across endpoints. Incremented
	// atomically on every operation by every worker; the index is always
	// taken modulo len(dbs).
	counter uint64

	refs int
}

var (
	poolMutex sync.Mutex
	pool      *sharedPool
)

// acquirePool returns the shared pool, building it on first call. The caller
// owns one reference and must pair this with releasePool.
func acquirePool(props ycsb.Properties) (*sharedPool, error) {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if pool != nil {
		pool.refs++
		return pool, nil
	}

	cfg, err := resolveConfig(props)
	if err != nil {
		return nil, err
	}
	p, err := buildPool(cfg)
	if err != nil {
		return nil, err
	}
	p.refs = 1
	pool = p
	return pool, nil
}

// releasePool drops one reference; the connections are closed only when no
// worker holds a reference anymore. Close failures are swallowed.
func releasePool(p *sharedPool) {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	p.refs--
	if p.refs > 0 {
		return
	}
	ctx := context.Background()
	for _, client := range p.clients {
		_ = client.Disconnect(ctx)
	}
	if p.vaultClient != nil {
		_ = p.vaultClient.Disconnect(ctx)
	}
	if pool == p {
		pool = nil
	}
}

func buildPool(cfg *mongoConfig) (*sharedPool, error) {
	ctx := context.Background()

	// The auto-encryption machinery talks to mongocryptd / the key vault on
	// extra connections, so scale the pool up when encryption is on.
	maxPoolSize := uint64(cfg.maxPoolSize)
	if cfg.useEncryption() {
		maxPoolSize *= 3
	}

	userPassword := credentialPrefix(cfg.username, cfg.password)

	servers := strings.Split(cfg.urls, endpointSeparator)
	p := &sharedPool{
		cfg:     cfg,
		clients: make([]*mongo.Client, len(servers)),
		dbs:     make([]*mongo.Database, len(servers)),
	}

	for i, server := range servers {
		url := embedCredentials(server, userPassword)

		clientOpts := options.Client().
			SetMaxPoolSize(maxPoolSize).
			SetWriteConcern(cfg.writeConcern).
			SetReadPreference(cfg.readPreference)

		// Only the first endpoint carries the encryption context.
		if i == 0 && cfg.useEncryption() {
			autoEncryption, vaultClient, err := generateEncryptionSettings(ctx, url, cfg)
			p.vaultClient = vaultClient
			if err != nil {
				p.close()
				return nil, err
			}
			clientOpts.SetAutoEncryptionOptions(autoEncryption)
		}

		clientOpts.ApplyURI(normalizeURL(url))
		client, err := mongo.Connect(ctx, clientOpts)
		if err != nil {
			p.close()
			return nil, err
		}
		p.clients[i] = client
		p.dbs[i] = client.Database(cfg.database)
		ycsb.Infof("mongo connection created to %s", maskCredentials(url, userPassword, cfg.username))
	}
	return p, nil
}

func (p *sharedPool) close() {
	ctx := context.Background()
	for _, client := range p.clients {
		if client != nil {
			_ = client.Disconnect(ctx)
		}
	}
	if p.vaultClient != nil {
		_ = p.vaultClient.Disconnect(ctx)
	}
}

// nextIndex picks the endpoint for the next operation. Distribution only
// needs to be approximately even; the modulo keeps the index in range.
func (p *sharedPool) nextIndex() int {
	n := atomic.AddUint64(&p.counter, 1)
	return int(n % uint64(len(p.dbs)))
}

func (p *sharedPool) nextDatabase() *mongo.Database {
	return p.dbs[p.nextIndex()]
}

// credentialPrefix renders "user:password@" for URL embedding; empty when no
// username is configured.
func credentialPrefix(username, password string) string {
	if username == "" {
		return ""
	}
	if password == "" {
		return username + "@"
	}
	return username + ":" + password + "@"
}

// embedCredentials splices resolved credentials into an endpoint URL that
// does not already carry its own.
func embedCredentials(url, userPassword string) string {
	if userPassword == "" || strings.Contains(url, "@") {
		return url
	}
	if strings.Contains(url, "://") {
		return strings.Replace(url, "://", "://"+userPassword, 1)
	}
	return userPassword + url
}

func maskCredentials(url, userPassword, username string) string {
	if userPassword == "" {
		return url
	}
	return strings.Replace(url, userPassword, username+":XXXXXX@", 1)
}
