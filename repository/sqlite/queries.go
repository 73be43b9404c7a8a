package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    filename TEXT NOT NULL,
    source_path TEXT NOT NULL,
    audio_path TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    transcription TEXT,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS clips (
    job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    idx INTEGER NOT NULL,
    start_time REAL NOT NULL,
    end_time REAL NOT NULL,
    text TEXT NOT NULL,
    filename TEXT NOT NULL,
    url TEXT NOT NULL,
    remote_url TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (job_id, idx)
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_updated_at ON jobs(updated_at);
`

const (
	insertJobQuery = `
        INSERT INTO jobs (
            id, filename, source_path, audio_path, status,
            error, transcription, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	getJobQuery = `
        SELECT id, filename, source_path, audio_path, status,
               error, transcription, created_at, updated_at
        FROM jobs WHERE id = ?
    `

	updateJobQuery = `
        UPDATE jobs SET
            audio_path = ?,
            status = ?,
            error = ?,
            transcription = ?,
            updated_at = ?
        WHERE id = ?
    `

	insertClipQuery = `
        INSERT INTO clips (
            job_id, idx, start_time, end_time, text,
            filename, url, remote_url
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(job_id, idx) DO UPDATE SET
            filename = excluded.filename,
            url = excluded.url,
            remote_url = excluded.remote_url
    `

	listClipsQuery = `
        SELECT idx, start_time, end_time, text, filename, url, remote_url
        FROM clips WHERE job_id = ?
        ORDER BY idx
    `
)
