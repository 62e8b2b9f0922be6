package database

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id                 UUID PRIMARY KEY,
		source             TEXT NOT NULL,
		platform           TEXT NOT NULL,
		external_id        TEXT NOT NULL DEFAULT '',
		sender_name        TEXT NOT NULL,
		sender_profile_url TEXT NOT NULL DEFAULT '',
		message_content    TEXT NOT NULL,
		fingerprint        TEXT NOT NULL UNIQUE,
		received_at        TIMESTAMPTZ NOT NULL,
		analyzed_at        TIMESTAMPTZ NOT NULL,
		risk_score         INTEGER NOT NULL,
		risk_level         TEXT NOT NULL,
		severity           TEXT NOT NULL DEFAULT 'LOW',
		keywords_found     TEXT[] NOT NULL DEFAULT '{}',
		analysis_notes     TEXT[] NOT NULL DEFAULT '{}',
		mitre_techniques   TEXT[] NOT NULL DEFAULT '{}',
		threat_type        TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_received_at ON messages (received_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_risk_score ON messages (risk_score DESC)`,
	`CREATE TABLE IF NOT EXISTS threat_actors (
		sender_profile_url TEXT PRIMARY KEY,
		sender_name        TEXT NOT NULL,
		platform           TEXT NOT NULL,
		first_detected     TIMESTAMPTZ NOT NULL,
		last_detected      TIMESTAMPTZ NOT NULL,
		total_messages     INTEGER NOT NULL DEFAULT 1,
		max_risk_score     INTEGER NOT NULL,
		mitre_techniques   TEXT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS security_alerts (
		id                 UUID PRIMARY KEY,
		alert_id           TEXT NOT NULL UNIQUE,
		created_at         TIMESTAMPTZ NOT NULL,
		severity           TEXT NOT NULL,
		status             TEXT NOT NULL DEFAULT 'OPEN',
		source_platform    TEXT NOT NULL,
		sender_name        TEXT NOT NULL,
		sender_profile     TEXT NOT NULL DEFAULT '',
		message_id         UUID REFERENCES messages (id) ON DELETE SET NULL,
		message_content    TEXT NOT NULL,
		risk_score         INTEGER NOT NULL,
		threat_type        TEXT NOT NULL,
		indicators         TEXT NOT NULL DEFAULT '',
		mitre_techniques   TEXT[] NOT NULL DEFAULT '{}',
		recommended_action TEXT NOT NULL,
		analyst_notes      TEXT NOT NULL DEFAULT '',
		ml_confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
		resolved_at        TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON security_alerts (created_at DESC)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id                 TEXT PRIMARY KEY,
		source             TEXT NOT NULL,
		platform           TEXT NOT NULL,
		external_id        TEXT NOT NULL DEFAULT '',
		sender_name        TEXT NOT NULL,
		sender_profile_url TEXT NOT NULL DEFAULT '',
		message_content    TEXT NOT NULL,
		fingerprint        TEXT NOT NULL UNIQUE,
		received_at        TIMESTAMP NOT NULL,
		analyzed_at        TIMESTAMP NOT NULL,
		risk_score         INTEGER NOT NULL,
		risk_level         TEXT NOT NULL,
		severity           TEXT NOT NULL DEFAULT 'LOW',
		keywords_found     TEXT NOT NULL DEFAULT '[]',
		analysis_notes     TEXT NOT NULL DEFAULT '[]',
		mitre_techniques   TEXT NOT NULL DEFAULT '[]',
		threat_type        TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_received_at ON messages (received_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_risk_score ON messages (risk_score DESC)`,
	`CREATE TABLE IF NOT EXISTS threat_actors (
		sender_profile_url TEXT PRIMARY KEY,
		sender_name        TEXT NOT NULL,
		platform           TEXT NOT NULL,
		first_detected     TIMESTAMP NOT NULL,
		last_detected      TIMESTAMP NOT NULL,
		total_messages     INTEGER NOT NULL DEFAULT 1,
		max_risk_score     INTEGER NOT NULL,
		mitre_techniques   TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS security_alerts (
		id                 TEXT PRIMARY KEY,
		alert_id           TEXT NOT NULL UNIQUE,
		created_at         TIMESTAMP NOT NULL,
		severity           TEXT NOT NULL,
		status             TEXT NOT NULL DEFAULT 'OPEN',
		source_platform    TEXT NOT NULL,
		sender_name        TEXT NOT NULL,
		sender_profile     TEXT NOT NULL DEFAULT '',
		message_id         TEXT REFERENCES messages (id) ON DELETE SET NULL,
		message_content    TEXT NOT NULL,
		risk_score         INTEGER NOT NULL,
		threat_type        TEXT NOT NULL,
		indicators         TEXT NOT NULL DEFAULT '',
		mitre_techniques   TEXT NOT NULL DEFAULT '[]',
		recommended_action TEXT NOT NULL,
		analyst_notes      TEXT NOT NULL DEFAULT '',
		ml_confidence      REAL NOT NULL DEFAULT 0,
		resolved_at        TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON security_alerts (created_at DESC)`,
}
