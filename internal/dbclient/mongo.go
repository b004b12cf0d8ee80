package dbclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"nirsvault/internal/apperr"
	"nirsvault/internal/domain"
	"nirsvault/internal/etl"
)

// mongoConnector implements Connector for MongoDB: one collection per
// vault table, one document per row.
type mongoConnector struct {
	client *mongo.Client
	dbName string
	source string
	log    *zap.Logger
	now    func() time.Time

	mu         sync.Mutex
	cursor     *mongo.Cursor
	lastAccess time.Time
	fetched    int
}

// mongoQuery is the JSON structure read queries are written in.
type mongoQuery struct {
	Collection string         `json:"collection"`
	Operation  string         `json:"operation,omitempty"` // find (default), aggregate
	Filter     map[string]any `json:"filter,omitempty"`
	Projection map[string]any `json:"projection,omitempty"`
	Sort       map[string]any `json:"sort,omitempty"`
	Pipeline   []any          `json:"pipeline,omitempty"` // for aggregate
}

// buildMongoURI returns the connection URI and database name.
func buildMongoURI(w *domain.Warehouse, password string) (string, string) {
	var uri string

	// If host is already a full connection string (Atlas mongodb+srv:// or standard mongodb://),
	// use it directly. Otherwise, build the URI from host:port.
	if strings.HasPrefix(w.Host, "mongodb+srv://") || strings.HasPrefix(w.Host, "mongodb://") {
		uri = w.Host
		if password != "" {
			uri = strings.ReplaceAll(uri, "<password>", password)
			uri = strings.ReplaceAll(uri, "<db_password>", password)
		}
	} else {
		port := w.Port
		if port == 0 {
			port = 27017
		}
		if w.Username != "" {
			uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", w.Username, password, w.Host, port)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%d", w.Host, port)
		}

		// authSource, replicaSet, etc.
		if len(w.Extra) > 0 {
			keys := make([]string, 0, len(w.Extra))
			for k := range w.Extra {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			params := make([]string, len(keys))
			for i, k := range keys {
				params[i] = k + "=" + w.Extra[k]
			}
			uri += "?" + strings.Join(params, "&")
		}
	}

	dbName := w.Database
	if dbName == "" {
		dbName = "nirsvault"
	}
	return uri, dbName
}

func newMongoConnector(w *domain.Warehouse, password, source string, opts Options) (*mongoConnector, error) {
	uri, dbName := buildMongoURI(w, password)

	logURI := uri
	if password != "" {
		logURI = strings.ReplaceAll(logURI, password, "***")
	}
	opts.Logger.Info("connecting", zap.String("uri", logURI), zap.String("database", dbName))

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &mongoConnector{
		client: client,
		dbName: dbName,
		source: source,
		log:    opts.Logger,
		now:    opts.Now,
	}, nil
}

// unmarshalEJSON re-encodes a map[string]any field and uses bson.UnmarshalExtJSON
// to convert MongoDB Extended JSON types ($oid, $date, $numberLong, etc.) to BSON.
func unmarshalEJSON(field map[string]any) map[string]any {
	if field == nil {
		return nil
	}
	raw, err := json.Marshal(field)
	if err != nil {
		return field
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return field
	}
	result := make(map[string]any, len(doc))
	for _, elem := range doc {
		result[elem.Key] = elem.Value
	}
	return result
}

func (m *mongoConnector) Dialect() domain.WarehouseDriver { return domain.WarehouseDriverMongoDB }

func (m *mongoConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

// EnsureSchema creates missing collections with an index on sequence.
func (m *mongoConnector) EnsureSchema(ctx context.Context, tables []etl.Table) error {
	db := m.client.Database(m.dbName)
	existing, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}
	for _, t := range tables {
		if have[t.Name] {
			continue
		}
		if err := db.CreateCollection(ctx, t.Name); err != nil {
			return fmt.Errorf("create %s: %w", t.Name, err)
		}
		idx := mongo.IndexModel{Keys: bson.D{{Key: "sequence", Value: 1}}}
		if _, err := db.Collection(t.Name).Indexes().CreateOne(ctx, idx); err != nil {
			return fmt.Errorf("index %s: %w", t.Name, err)
		}
	}
	return nil
}

func (m *mongoConnector) inTransaction(ctx context.Context, fn func(context.Context) (any, error)) error {
	sess, err := m.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, fn)
	return err
}

// isTransactionUnsupported reports the IllegalOperation error a standalone
// server returns for transactions.
func isTransactionUnsupported(err error) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorCode(20)
}

// mongoDocument builds one row's document, fields in storedColumns order.
func mongoDocument(s etl.Schema, rec etl.Record, now time.Time, source string) (bson.D, error) {
	vals, err := storedRow(s, rec, now, source)
	if err != nil {
		return nil, err
	}
	cols := storedColumns(s)
	doc := make(bson.D, len(cols))
	for i, c := range cols {
		doc[i] = bson.E{Key: c.Name, Value: vals[i]}
	}
	return doc, nil
}

// Write inserts the table's documents in one transaction. A standalone
// server has no transactions; there the insert is one ordered InsertMany.
func (m *mongoConnector) Write(ctx context.Context, t etl.Table) (int, error) {
	if len(t.Records) == 0 {
		return 0, nil
	}
	now := m.now()
	docs := make([]any, len(t.Records))
	for i, rec := range t.Records {
		doc, err := mongoDocument(t.Schema, rec, now, m.source)
		if err != nil {
			return 0, apperr.SinkWriteFailure(t.Name, fmt.Errorf("row %d: %w", i, err))
		}
		docs[i] = doc
	}

	coll := m.client.Database(m.dbName).Collection(t.Name)
	insert := func(ctx context.Context) (any, error) {
		return coll.InsertMany(ctx, docs)
	}

	err := m.inTransaction(ctx, insert)
	if isTransactionUnsupported(err) {
		m.log.Debug("transactions unsupported, inserting without one", zap.String("table", t.Name))
		_, err = insert(ctx)
	}
	if err != nil {
		m.log.Error("write failed", zap.String("table", t.Name), zap.Error(err))
		return 0, apperr.SinkWriteFailure(t.Name, err)
	}
	m.log.Debug("table written", zap.String("table", t.Name), zap.Int("rows", len(docs)))
	return len(docs), nil
}

func (m *mongoConnector) Scan(ctx context.Context, t etl.Table, fn func(etl.Record) error) error {
	cursor, err := m.client.Database(m.dbName).Collection(t.Name).Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("scan %s: %w", t.Name, err)
	}
	defer cursor.Close(ctx)

	cols := storedColumns(t.Schema)
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("scan %s: %w", t.Name, err)
		}
		rec := etl.Record{Data: make(map[string]any, len(cols))}
		for _, c := range cols {
			v, err := decodeBSON(c.Type, doc[c.Name])
			if err != nil {
				return fmt.Errorf("scan %s.%s: %w", t.Name, c.Name, err)
			}
			rec.Data[c.Name] = v
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return cursor.Err()
}

// decodeBSON converts a decoded document value back to the field type's
// Go type.
func decodeBSON(typ string, v any) (any, error) {
	switch typ {
	case etl.TypeMatrix:
		rows, _ := v.(bson.A)
		m := make([][]float64, len(rows))
		for i, r := range rows {
			cells, _ := r.(bson.A)
			m[i] = make([]float64, len(cells))
			for j, c := range cells {
				f, ok := c.(float64)
				if !ok {
					return nil, fmt.Errorf("matrix cell is %T", c)
				}
				m[i][j] = f
			}
		}
		return m, nil
	case etl.TypeTimestamps:
		items, _ := v.(bson.A)
		ts := make([]time.Time, len(items))
		for i, it := range items {
			dt, ok := it.(bson.DateTime)
			if !ok {
				return nil, fmt.Errorf("timestamp is %T", it)
			}
			ts[i] = dt.Time().UTC()
		}
		return ts, nil
	case typeTimestamp:
		if dt, ok := v.(bson.DateTime); ok {
			return dt.Time().UTC(), nil
		}
	case etl.TypeBinary:
		if b, ok := v.(bson.Binary); ok {
			return b.Data, nil
		}
	}
	return decodeScalar(typ, v)
}

// Execute runs a JSON-encoded find or aggregate. args are not used.
func (m *mongoConnector) Execute(ctx context.Context, query string, args []any, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeCursorLocked(ctx)

	if fetchSize <= 0 {
		fetchSize = 50
	}

	var mq mongoQuery
	if err := json.Unmarshal([]byte(query), &mq); err != nil {
		return nil, fmt.Errorf("invalid query JSON: %w", err)
	}
	mq.Filter = unmarshalEJSON(mq.Filter)
	mq.Projection = unmarshalEJSON(mq.Projection)
	mq.Sort = unmarshalEJSON(mq.Sort)

	if mq.Collection == "" {
		return nil, fmt.Errorf("query must specify 'collection'")
	}

	coll := m.client.Database(m.dbName).Collection(mq.Collection)

	var (
		cursor *mongo.Cursor
		err    error
	)
	switch mq.Operation {
	case "", "find":
		opts := options.Find().SetBatchSize(int32(fetchSize))
		if mq.Projection != nil {
			opts.SetProjection(mq.Projection)
		}
		if mq.Sort != nil {
			opts.SetSort(mq.Sort)
		}
		filter := mq.Filter
		if filter == nil {
			filter = map[string]any{}
		}
		cursor, err = coll.Find(ctx, filter, opts)
	case "aggregate":
		pipeline := mq.Pipeline
		if pipeline == nil {
			pipeline = []any{}
		}
		cursor, err = coll.Aggregate(ctx, pipeline)
	default:
		return nil, fmt.Errorf("unsupported operation: %s", mq.Operation)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", mq.Operation, err)
	}

	m.cursor = cursor
	m.fetched = 0
	m.lastAccess = time.Now()
	return m.fetchMongoBatchLocked(ctx, fetchSize)
}

func (m *mongoConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor == nil {
		return nil, apperr.NotFound("open cursor")
	}
	if fetchSize <= 0 {
		fetchSize = 50
	}
	m.lastAccess = time.Now()
	return m.fetchMongoBatchLocked(ctx, fetchSize)
}

func (m *mongoConnector) fetchMongoBatchLocked(ctx context.Context, fetchSize int) (*QueryPage, error) {
	var docs []bson.D
	for i := 0; i < fetchSize; i++ {
		if !m.cursor.Next(ctx) {
			break
		}
		var doc bson.D
		if err := m.cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := m.cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	m.fetched += len(docs)

	// Columns from all docs, _id first, then alphabetical
	colSet := map[string]bool{}
	var columns []string
	for _, doc := range docs {
		for _, elem := range doc {
			if !colSet[elem.Key] {
				colSet[elem.Key] = true
				columns = append(columns, elem.Key)
			}
		}
	}
	sort.SliceStable(columns, func(i, j int) bool {
		if columns[i] == "_id" {
			return true
		}
		if columns[j] == "_id" {
			return false
		}
		return columns[i] < columns[j]
	})

	var rows [][]any
	for _, doc := range docs {
		row := make([]any, len(columns))
		docMap := make(map[string]any, len(doc))
		for _, elem := range doc {
			docMap[elem.Key] = elem.Value
		}
		for j, col := range columns {
			if v, ok := docMap[col]; ok {
				row[j] = fmt.Sprintf("%v", v)
			}
		}
		rows = append(rows, row)
	}

	hasMore := len(docs) == fetchSize
	if !hasMore {
		m.closeCursorLocked(ctx)
	}

	return &QueryPage{
		Columns:      columns,
		Rows:         rows,
		TotalFetched: m.fetched,
		HasMore:      hasMore,
	}, nil
}

func (m *mongoConnector) Introspect(ctx context.Context) (*SchemaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	db := m.client.Database(m.dbName)
	collections, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(collections)

	schema := &SchemaInfo{}
	for _, collName := range collections {
		// Sample one document to extract field names
		cursor, err := db.Collection(collName).Find(ctx, bson.M{}, options.Find().SetLimit(1))
		if err != nil {
			schema.Tables = append(schema.Tables, TableInfo{Name: collName})
			continue
		}

		var cols []ColumnInfo
		if cursor.Next(ctx) {
			var doc bson.D
			if cursor.Decode(&doc) == nil {
				for _, e := range doc {
					cols = append(cols, ColumnInfo{Name: e.Key, Type: fmt.Sprintf("%T", e.Value)})
				}
			}
		}
		cursor.Close(ctx)

		schema.Tables = append(schema.Tables, TableInfo{Name: collName, Columns: cols})
	}
	return schema, nil
}

func (m *mongoConnector) Close() error {
	m.mu.Lock()
	m.closeCursorLocked(context.Background())
	m.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *mongoConnector) closeCursorLocked(ctx context.Context) {
	if m.cursor != nil {
		m.cursor.Close(ctx)
		m.cursor = nil
	}
}
