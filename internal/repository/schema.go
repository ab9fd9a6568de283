package repository

import "fmt"

const (
	TicksTable   = "ticks"
	CandlesTable = "candles"
)

// Schema returns the idempotent DDL for the ClickHouse backend. Ticks are
// deduplicated on event_id by ReplacingMergeTree; candles keep the latest
// version of each (symbol, tf, bucket).
func Schema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    ts        DateTime64(3, 'UTC'),
    symbol    LowCardinality(String),
    price     Float64,
    volume    Float64,
    oi        Nullable(Float64),
    seq       Int64,
    event_id  String,
    source    LowCardinality(String),
    ingested  DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(ingested)
PARTITION BY toYYYYMMDD(ts)
ORDER BY (symbol, ts, event_id)`, database, TicksTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    bucket   DateTime('UTC'),
    symbol   LowCardinality(String),
    tf       LowCardinality(String),
    open     Float64,
    high     Float64,
    low      Float64,
    close    Float64,
    volume   Float64,
    vwap     Float64,
    trades   UInt32,
    version  DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(version)
PARTITION BY toYYYYMM(bucket)
ORDER BY (symbol, tf, bucket)`, database, CandlesTable),
	}
}
