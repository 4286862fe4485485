package chaindb

// Cache schema: one table per cached object kind. Headers key on height
// (the scanner reads by number); receipts and bodies key on block hash.
// The data columns hold the JSON encoding of the go-ethereum types, which
// round-trips every field the engine reads.
var migrations = []string{`
-- +migrate Down
DROP TABLE IF EXISTS headers;
DROP TABLE IF EXISTS receipts;
DROP TABLE IF EXISTS bodies;

-- +migrate Up
CREATE TABLE headers (
	number INTEGER PRIMARY KEY,
	hash VARCHAR NOT NULL,
	data BLOB NOT NULL
);
CREATE INDEX idx_headers_hash ON headers(hash);

CREATE TABLE receipts (
	block_hash VARCHAR PRIMARY KEY,
	block_number INTEGER NOT NULL,
	data BLOB NOT NULL
);
CREATE INDEX idx_receipts_number ON receipts(block_number);

CREATE TABLE bodies (
	block_hash VARCHAR PRIMARY KEY,
	block_number INTEGER NOT NULL,
	data BLOB NOT NULL
);
CREATE INDEX idx_bodies_number ON bodies(block_number);
`}
