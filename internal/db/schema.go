package db

// Schema is the DDL for the learning tables, the single source of truth
// for column names referenced by the stores. Applied at boot when
// database.apply_schema is set; production deployments run migrations
// externally instead.
const Schema = `
CREATE TABLE IF NOT EXISTS archetype_stats (
    archetype           TEXT PRIMARY KEY,
    count               BIGINT NOT NULL DEFAULT 0,
    success_rate        DOUBLE PRECISION NOT NULL,
    avg_duration_ms     DOUBLE PRECISION NOT NULL,
    consecutive_failures INT NOT NULL DEFAULT 0,
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS decision_thresholds (
    id               INT PRIMARY KEY DEFAULT 1,
    skill_confidence DOUBLE PRECISION NOT NULL,
    tool_necessity   DOUBLE PRECISION NOT NULL,
    guidance_risk    DOUBLE PRECISION NOT NULL,
    hybrid_balance   DOUBLE PRECISION NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT decision_thresholds_singleton CHECK (id = 1)
);

CREATE TABLE IF NOT EXISTS skill_performance_metrics (
    id                       UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    skill_name               TEXT NOT NULL,
    domain                   TEXT,
    success_count            BIGINT NOT NULL DEFAULT 0,
    total_count              BIGINT NOT NULL DEFAULT 0,
    avg_duration_ms          DOUBLE PRECISION NOT NULL DEFAULT 0,
    confidence_score         INT NOT NULL DEFAULT 50,
    is_quarantined           BOOLEAN NOT NULL DEFAULT FALSE,
    quarantine_since         TIMESTAMPTZ,
    last_global_success_rate DOUBLE PRECISION,
    last_used_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE NULLS NOT DISTINCT (skill_name, domain)
);

CREATE TABLE IF NOT EXISTS global_confidence_matrix (
    skill_id       TEXT PRIMARY KEY,
    confidence     DOUBLE PRECISION NOT NULL,
    avg_latency_ms INT NOT NULL DEFAULT 0,
    matrix_version BIGINT NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS automation_solutions (
    id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    error_signature   TEXT NOT NULL,
    solution_type     TEXT NOT NULL,
    solution          JSONB NOT NULL,
    context_tags      JSONB,
    confidence_score  INT NOT NULL DEFAULT 80,
    success_count     BIGINT NOT NULL DEFAULT 0,
    total_count       BIGINT NOT NULL DEFAULT 0,
    created_by_guru_id TEXT,
    last_used_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_automation_solutions_signature
    ON automation_solutions (error_signature, confidence_score DESC);

CREATE TABLE IF NOT EXISTS healing_events (
    id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    mission_run_id     TEXT NOT NULL,
    error_signature    TEXT NOT NULL,
    attempted_fix      JSONB,
    fix_type           TEXT NOT NULL,
    outcome            TEXT NOT NULL,
    processing_time_ms BIGINT NOT NULL DEFAULT 0,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_healing_events_signature
    ON healing_events (error_signature, created_at);
`
