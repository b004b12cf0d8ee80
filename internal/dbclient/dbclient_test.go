package dbclient

import (
	"context"
	"database/sql/driver"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"nirsvault/internal/apperr"
	"nirsvault/internal/domain"
	"nirsvault/internal/etl"
	"nirsvault/internal/vault"
)

var fixedNow = time.Date(2023, 3, 4, 5, 6, 7, 0, time.UTC)

func newSQLite(t *testing.T) Connector {
	t.Helper()
	w := &domain.Warehouse{
		Driver: domain.WarehouseDriverSQLite,
		Host:   filepath.Join(t.TempDir(), "vault.db"),
		Source: "tester",
	}
	c, err := NewConnector(w, "", Options{Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func tableOf(t *testing.T, name string, rows ...vault.Row) etl.Table {
	t.Helper()
	f := vault.NewFragments("g1")
	f.Add(rows...)
	for _, tbl := range f.Tables() {
		if tbl.Name == name {
			return tbl
		}
	}
	t.Fatalf("no table %s", name)
	return etl.Table{}
}

func TestHash(t *testing.T) {
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", Hash("abc"))
	assert.Len(t, Hash("2020-02-01 10:00:00_VM0001_Moto_HBA_Probe1_Deoxy"), 32)
}

func TestStoredRow_HashesSequences(t *testing.T) {
	tbl := tableOf(t, vault.TableHubFactor,
		vault.HubFactor{Sequence: "s_Visual Stimulus", Experiment: "s", IsCofactor: false})

	vals, err := storedRow(tbl.Schema, tbl.Records[0], fixedNow, "tester")
	require.NoError(t, err)
	assert.Equal(t, []any{Hash("s_Visual Stimulus"), Hash("s"), false, fixedNow, "tester"}, vals)

	_, err = storedRow(tbl.Schema, etl.Record{Data: map[string]any{"sequence": "x"}}, fixedNow, "tester")
	assert.Error(t, err)
}

func TestSQLite_WriteAndScan(t *testing.T) {
	ctx := context.Background()
	c := newSQLite(t)
	require.NoError(t, c.TestConnection(ctx))
	require.NoError(t, c.EnsureSchema(ctx, vault.Tables()))
	// Idempotent.
	require.NoError(t, c.EnsureSchema(ctx, vault.Tables()))

	base := time.Date(2020, 2, 1, 10, 0, 0, 0, time.UTC)
	obs := vault.SatObservationValue{
		Sequence:   "obs1",
		Value:      [][]float64{{1.5, 2}, {3, 4.25}},
		Timestamps: []time.Time{base, base.Add(100 * time.Millisecond)},
	}
	n, err := c.Write(ctx, tableOf(t, vault.TableSatObservationValue, obs))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var got []etl.Record
	def, _ := vault.Lookup(vault.TableSatObservationValue)
	require.NoError(t, c.Scan(ctx, def.Table(), func(r etl.Record) error {
		got = append(got, r)
		return nil
	}))
	require.Len(t, got, 1)
	want := map[string]any{
		"sequence":      Hash("obs1"),
		"value":         obs.Value,
		"timestamps":    obs.Timestamps,
		ColumnTimestamp: fixedNow,
		ColumnSource:    "tester",
	}
	if diff := cmp.Diff(want, got[0].Data); diff != "" {
		t.Errorf("stored row mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLite_ScalarsRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newSQLite(t)
	require.NoError(t, c.EnsureSchema(ctx, vault.Tables()))

	_, err := c.Write(ctx, tableOf(t, vault.TableSatSubjectAge, vault.SatSubjectAge{Sequence: "s", Age: 34}))
	require.NoError(t, err)
	_, err = c.Write(ctx, tableOf(t, vault.TableHubFactor, vault.HubFactor{Sequence: "f", Experiment: "s", IsCofactor: true}))
	require.NoError(t, err)
	_, err = c.Write(ctx, tableOf(t, vault.TableSatMetaDataKeyValuePair,
		vault.SatMetaDataKeyValuePair{Sequence: "s", Key: "ID", Value: []byte{0x01, 0x02}}))
	require.NoError(t, err)

	scanOne := func(name string) map[string]any {
		def, _ := vault.Lookup(name)
		var out map[string]any
		require.NoError(t, c.Scan(ctx, def.Table(), func(r etl.Record) error {
			out = r.Data
			return nil
		}))
		return out
	}
	assert.Equal(t, 34, scanOne(vault.TableSatSubjectAge)["age"])
	factor := scanOne(vault.TableHubFactor)
	assert.Equal(t, true, factor["isCofactor"])
	assert.Equal(t, Hash("s"), factor["experiment"])
	assert.Equal(t, []byte{0x01, 0x02}, scanOne(vault.TableSatMetaDataKeyValuePair)["value"])
}

func TestSQLite_WriteFailureNamesTable(t *testing.T) {
	c := newSQLite(t)
	// No schema: the insert fails.
	_, err := c.Write(context.Background(), tableOf(t, vault.TableHubSession, vault.HubSession{Sequence: "s"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrSinkWriteFailure))

	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, vault.TableHubSession, ae.Context["table"])
}

func TestSQLite_WriteIsAtomicPerTable(t *testing.T) {
	ctx := context.Background()
	c := newSQLite(t)
	require.NoError(t, c.EnsureSchema(ctx, vault.Tables()))

	tbl := tableOf(t, vault.TableHubSession, vault.HubSession{Sequence: "a"}, vault.HubSession{Sequence: "b"})
	tbl.Records = append(tbl.Records, etl.Record{Data: map[string]any{}})
	_, err := c.Write(ctx, tbl)
	require.Error(t, err)

	page, err := c.Execute(ctx, `SELECT COUNT(*) FROM "HubSession"`, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Rows[0][0])
}

func TestSQLite_ExecuteAndFetchMore(t *testing.T) {
	ctx := context.Background()
	c := newSQLite(t)
	require.NoError(t, c.EnsureSchema(ctx, vault.Tables()))
	_, err := c.Write(ctx, tableOf(t, vault.TableHubSession,
		vault.HubSession{Sequence: "a"}, vault.HubSession{Sequence: "b"}, vault.HubSession{Sequence: "c"}))
	require.NoError(t, err)

	page, err := c.Execute(ctx, `SELECT sequence FROM "HubSession" WHERE source = ?`, []any{"tester"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"sequence"}, page.Columns)
	assert.Len(t, page.Rows, 2)
	assert.True(t, page.HasMore)

	page, err = c.FetchMore(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, page.Rows, 1)
	assert.False(t, page.HasMore)
	assert.Equal(t, 3, page.TotalFetched)

	_, err = c.FetchMore(ctx, 2)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	info, err := c.Introspect(ctx)
	require.NoError(t, err)
	assert.Len(t, info.Tables, len(vault.Catalog()))
}

func TestDialectSQL(t *testing.T) {
	def, _ := vault.Lookup(vault.TableSatSubjectAge)
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "SatSubjectAge" ("sequence" VARCHAR(32), "age" INTEGER, "timestamp" TIMESTAMP, "source" TEXT)`,
		postgresDialect.createTable(def.Table()))
	assert.Equal(t,
		`INSERT INTO "SatSubjectAge" ("sequence", "age", "timestamp", "source") VALUES ($1, $2, $3, $4)`,
		postgresDialect.insert(def.Table()))
	assert.Equal(t,
		"INSERT INTO `SatSubjectAge` (`sequence`, `age`, `timestamp`, `source`) VALUES (?, ?, ?, ?)",
		mysqlDialect.insert(def.Table()))
}

func TestPostgresArrays(t *testing.T) {
	m := [][]float64{{1, 2}, {3, 4}}
	enc, err := encodePostgres(etl.TypeMatrix, m)
	require.NoError(t, err)
	v, err := enc.(pq.GenericArray).Value()
	require.NoError(t, err)
	assert.Equal(t, "{{1,2},{3,4}}", v)

	dec, err := decodePostgres(etl.TypeMatrix, []byte("{{1,2},{3,4.5}}"))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4.5}}, dec)

	dec, err = decodePostgres(etl.TypeMatrix, "{{1,NULL},{-2.5e-3,NaN}}")
	require.NoError(t, err)
	cells := dec.([][]float64)
	assert.Equal(t, []float64{1, 0}, cells[0])
	assert.Equal(t, -0.0025, cells[1][0])
	assert.True(t, math.IsNaN(cells[1][1]))

	dec, err = decodePostgres(etl.TypeMatrix, []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{}, dec)

	for _, bad := range []string{"1,2", "{1,2}", "{{1,2}", "{{1,x}}", "{{1},}", "{{{1}}}"} {
		_, err := decodePostgres(etl.TypeMatrix, bad)
		assert.Error(t, err, bad)
	}

	ts, err := decodePostgres(etl.TypeTimestamps, []byte(`{"2020-02-01 10:00:00","2020-02-01 10:00:00.1"}`))
	require.NoError(t, err)
	base := time.Date(2020, 2, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, []time.Time{base, base.Add(100 * time.Millisecond)}, ts)
}

func TestArrayColumnsRoundTrip(t *testing.T) {
	base := time.Date(2020, 2, 1, 10, 0, 0, 0, time.UTC)
	row := vault.SatObservationValue{
		Sequence:   "2020-02-01 10:00:00_VM0001_Moto_HBA_Probe1_Deoxy_Observation",
		Value:      [][]float64{{0.25, -1.5}, {3, 1e-7}},
		Timestamps: []time.Time{base, base.Add(100 * time.Millisecond)},
	}
	tbl := tableOf(t, vault.TableSatObservationValue, row)

	cases := []struct {
		name    string
		dialect sqlDialect
		literal map[string]string
	}{
		{"postgres", postgresDialect, map[string]string{
			etl.TypeMatrix:     "{{0.25,-1.5},{3,0.0000001}}",
			etl.TypeTimestamps: "{2020-02-01 10:00:00Z,2020-02-01 10:00:00.1Z}",
		}},
		{"mysql", mysqlDialect, nil},
		{"sqlite", sqliteDialect, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vals, err := storedRow(tbl.Schema, tbl.Records[0], fixedNow, "tester")
			require.NoError(t, err)
			for i, f := range tbl.Schema.Fields {
				if f.Type != etl.TypeMatrix && f.Type != etl.TypeTimestamps {
					continue
				}
				enc, err := tc.dialect.encode(f.Type, vals[i])
				require.NoError(t, err)
				if valuer, ok := enc.(driver.Valuer); ok {
					enc, err = valuer.Value()
					require.NoError(t, err)
				}
				if want, ok := tc.literal[f.Type]; ok {
					assert.Equal(t, want, enc)
				}
				dec, err := tc.dialect.decode(f.Type, enc)
				require.NoError(t, err, f.Name)
				assert.Equal(t, vals[i], dec, f.Name)
			}
		})
	}
}

func TestDSNs(t *testing.T) {
	w := &domain.Warehouse{Host: "db", Username: "smd", Database: "vault"}
	assert.Equal(t, "host=db port=5432 user=smd password=pw dbname=vault sslmode=disable", buildPostgresDSN(w, "pw"))
	assert.Equal(t, "smd:pw@tcp(db:3306)/vault?parseTime=true&charset=utf8mb4", buildMySQLDSN(w, "pw"))

	w.Extra = map[string]string{"replicaSet": "rs0", "authSource": "admin"}
	uri, dbName := buildMongoURI(w, "pw")
	assert.Equal(t, "mongodb://smd:pw@db:27017?authSource=admin&replicaSet=rs0", uri)
	assert.Equal(t, "vault", dbName)

	uri, _ = buildMongoURI(&domain.Warehouse{Host: "mongodb+srv://u:<password>@x.net"}, "pw")
	assert.Equal(t, "mongodb+srv://u:pw@x.net", uri)
}

func TestMongoDocumentAndDecode(t *testing.T) {
	tbl := tableOf(t, vault.TableSatSubjectAge, vault.SatSubjectAge{Sequence: "s", Age: 7})
	doc, err := mongoDocument(tbl.Schema, tbl.Records[0], fixedNow, "tester")
	require.NoError(t, err)
	assert.Equal(t, bson.D{
		{Key: "sequence", Value: Hash("s")},
		{Key: "age", Value: 7},
		{Key: ColumnTimestamp, Value: fixedNow},
		{Key: ColumnSource, Value: "tester"},
	}, doc)

	m, err := decodeBSON(etl.TypeMatrix, bson.A{bson.A{1.0, 2.0}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}}, m)

	ts, err := decodeBSON(etl.TypeTimestamps, bson.A{bson.NewDateTimeFromTime(fixedNow)})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{fixedNow}, ts)

	age, err := decodeBSON(etl.TypeInteger, int32(7))
	require.NoError(t, err)
	assert.Equal(t, 7, age)
}
