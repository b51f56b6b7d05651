package export

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    config TEXT
);

CREATE TABLE IF NOT EXISTS records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL REFERENCES sessions (id),
    source_x REAL NOT NULL,
    source_y REAL NOT NULL,
    source_z REAL NOT NULL,
    source_azimuth_deg REAL NOT NULL,
    source_elevation_deg REAL NOT NULL,
    estimated_x REAL,
    estimated_y REAL,
    estimated_z REAL,
    position_error_cm REAL,
    estimated_azimuth_deg REAL,
    estimated_elevation_deg REAL,
    angular_error_deg REAL
);

CREATE INDEX IF NOT EXISTS idx_records_session ON records (session_id);
`

const insertSessionSQL = `
INSERT INTO sessions (started_at, config)
VALUES (CURRENT_TIMESTAMP, ?)`

const insertRecordSQL = `
INSERT INTO records (session_id,
                     source_x,
                     source_y,
                     source_z,
                     source_azimuth_deg,
                     source_elevation_deg,
                     estimated_x,
                     estimated_y,
                     estimated_z,
                     position_error_cm,
                     estimated_azimuth_deg,
                     estimated_elevation_deg,
                     angular_error_deg)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectRecordsSQL = `
SELECT
    source_x,
    source_y,
    source_z,
    source_azimuth_deg,
    source_elevation_deg,
    estimated_x,
    estimated_y,
    estimated_z,
    position_error_cm,
    estimated_azimuth_deg,
    estimated_elevation_deg,
    angular_error_deg
FROM records
WHERE
    session_id = ?
ORDER BY id`
