package store

// Schema contains the complete DDL for the named-locator registry.
const Schema = `
-- Named locators: a locator definition (JSON) saved under a stable name
CREATE TABLE IF NOT EXISTS locators (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL UNIQUE,
    page_id         TEXT NOT NULL DEFAULT '',
    definition      TEXT NOT NULL,
    hash            TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    success_rate    REAL NOT NULL DEFAULT 1.0,
    total_uses      INTEGER NOT NULL DEFAULT 0,
    total_failures  INTEGER NOT NULL DEFAULT 0,
    last_outcome    TEXT NOT NULL DEFAULT '',
    last_used_at    INTEGER NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_locators_hash ON locators(hash);
CREATE INDEX IF NOT EXISTS idx_locators_success ON locators(success_rate DESC);

-- Resolutions: one outcome report per resolution of a named locator
CREATE TABLE IF NOT EXISTS resolutions (
    id              TEXT PRIMARY KEY,
    locator_id      TEXT NOT NULL REFERENCES locators(id) ON DELETE CASCADE,
    page_id         TEXT NOT NULL DEFAULT '',
    version         INTEGER NOT NULL DEFAULT 0,
    outcome         TEXT NOT NULL,
    node_id         INTEGER NOT NULL DEFAULT 0,
    xpath           TEXT NOT NULL DEFAULT '',
    confidence      REAL NOT NULL DEFAULT 0.0,
    candidates      INTEGER NOT NULL DEFAULT 0,
    error           TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_resolutions_locator ON resolutions(locator_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_resolutions_outcome ON resolutions(outcome);
`
