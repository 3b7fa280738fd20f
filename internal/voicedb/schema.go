package voicedb

// Schema is the DDL for the voices/voice_mappings tables (§6 of the
// coordination design). PostgresGateway.Migrate applies it, and
// bootstrap.NewDependencies calls Migrate at startup; every statement is
// IF NOT EXISTS, so applying it again is harmless.
const Schema = `
CREATE TABLE IF NOT EXISTS voice_mappings (
    id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    voice_id   TEXT UNIQUE NOT NULL,
    voice_name TEXT NOT NULL,
    voice_file TEXT NOT NULL,
    is_default BOOLEAN NOT NULL DEFAULT false
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_voice_mappings_single_default
    ON voice_mappings (is_default) WHERE is_default;

CREATE TABLE IF NOT EXISTS voices (
    id                      UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    video_id                UUID NOT NULL,
    voice_mapping_id        UUID NULL REFERENCES voice_mappings(id),
    character_name          TEXT NOT NULL,
    text_content            TEXT NOT NULL,
    status                  TEXT NOT NULL DEFAULT 'pending'
                                CHECK (status IN ('pending','processing','completed','failed')),
    output_audio_path       TEXT NULL,
    is_local_storage        BOOLEAN NOT NULL DEFAULT true,
    remote_storage_path     TEXT NULL,
    error_message           TEXT NULL,
    created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
    processing_started_at   TIMESTAMPTZ NULL,
    processing_completed_at TIMESTAMPTZ NULL,
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_voices_video_id ON voices (video_id);
CREATE INDEX IF NOT EXISTS idx_voices_status ON voices (status, created_at);
`
