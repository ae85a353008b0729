package store

const schema = `
CREATE TABLE IF NOT EXISTS records (
    id               TEXT PRIMARY KEY,
    stored_at        DATETIME NOT NULL,
    external_id      TEXT NOT NULL DEFAULT '',
    source           TEXT NOT NULL DEFAULT '',
    title            TEXT NOT NULL,
    content          TEXT NOT NULL,
    author           TEXT NOT NULL DEFAULT '',
    url              TEXT NOT NULL DEFAULT '',
    adult            BOOLEAN NOT NULL DEFAULT 0,
    ups              INTEGER NOT NULL DEFAULT 0,
    downs            INTEGER NOT NULL DEFAULT 0,
    created_at       DATETIME NOT NULL,
    content_type     TEXT NOT NULL DEFAULT '',
    charset          TEXT NOT NULL DEFAULT '',
    content_encoding TEXT NOT NULL DEFAULT '',
    last_modified    TEXT NOT NULL DEFAULT '',
    downloaded_at    DATETIME NOT NULL,
    title_hash       TEXT NOT NULL,
    content_hash     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_title_hash ON records(title_hash);
CREATE INDEX IF NOT EXISTS idx_records_content_hash ON records(content_hash);
CREATE INDEX IF NOT EXISTS idx_records_title_author ON records(title, author);
CREATE INDEX IF NOT EXISTS idx_records_source ON records(source);
CREATE INDEX IF NOT EXISTS idx_records_stored_at ON records(stored_at);

CREATE TABLE IF NOT EXISTS websites (
    name        TEXT PRIMARY KEY,
    last_access DATETIME NOT NULL
);
`
