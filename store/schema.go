package store

// schemaSQL is the DDL for all tables.
const schemaSQL = `
-- One row per conversion run; the finished files are kept inline
CREATE TABLE IF NOT EXISTS conversions (
    id TEXT PRIMARY KEY,
    filename TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    model TEXT,
    slide_count INTEGER DEFAULT 0,
    image_count INTEGER DEFAULT 0,
    table_count INTEGER DEFAULT 0,
    total_tokens INTEGER DEFAULT 0,
    warnings JSON,
    error TEXT,
    output_filename TEXT,
    document BLOB,
    tables BLOB,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Per-slide outcome of a conversion
CREATE TABLE IF NOT EXISTS conversion_slides (
    conversion_id TEXT NOT NULL REFERENCES conversions(id) ON DELETE CASCADE,
    page_number INTEGER NOT NULL,
    title TEXT,
    explanation TEXT,
    available INTEGER NOT NULL DEFAULT 1,
    cached INTEGER NOT NULL DEFAULT 0,
    total_tokens INTEGER DEFAULT 0,
    PRIMARY KEY (conversion_id, page_number)
);

-- Explanations keyed by a hash of model and prompt
CREATE TABLE IF NOT EXISTS explanation_cache (
    key TEXT PRIMARY KEY,
    model TEXT,
    text TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_conversions_created ON conversions(created_at);
CREATE INDEX IF NOT EXISTS idx_conversions_hash ON conversions(content_hash);
CREATE INDEX IF NOT EXISTS idx_conversions_status ON conversions(status);
`
