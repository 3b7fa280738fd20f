package voicedb

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ragnarcb/chatclip/internal/pipelineerr"
	"github.com/ragnarcb/chatclip/internal/voicejob"
)

// DB is the subset of *pgxpool.Pool (or *pgx.Conn) PostgresGateway needs.
// Satisfied by both, which keeps tests free to swap in a pgxmock or a real
// pool without changing the gateway's code.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresGateway is the real Gateway implementation, backed by pgx.
type PostgresGateway struct {
	db DB
}

var _ Gateway = (*PostgresGateway)(nil)

// NewPostgresGateway wraps an existing pool or connection.
func NewPostgresGateway(db DB) *PostgresGateway {
	return &PostgresGateway{db: db}
}

// Migrate applies Schema. Safe to call repeatedly.
func (g *PostgresGateway) Migrate(ctx context.Context) error {
	if _, err := g.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("voicedb: migrate: %w", err)
	}
	return nil
}

func (g *PostgresGateway) CreateVoice(ctx context.Context, videoID, characterName, textContent string, voiceMappingID *string) (string, error) {
	const query = `
		INSERT INTO voices (video_id, voice_mapping_id, character_name, text_content, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id`

	var id string
	if err := g.db.QueryRow(ctx, query, videoID, voiceMappingID, characterName, textContent).Scan(&id); err != nil {
		return "", pipelineerr.Transport("postgres", fmt.Errorf("create_voice: %w", err))
	}
	return id, nil
}

func (g *PostgresGateway) ClaimVoice(ctx context.Context, voiceID string) (bool, error) {
	const query = `
		UPDATE voices
		SET status = 'processing', processing_started_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'pending'`

	tag, err := g.db.Exec(ctx, query, voiceID)
	if err != nil {
		return false, pipelineerr.Transport("postgres", fmt.Errorf("claim_voice: %w", err))
	}
	return tag.RowsAffected() > 0, nil
}

func (g *PostgresGateway) CompleteVoice(ctx context.Context, voiceID, audioPath string, isLocal bool, remotePath *string) error {
	const query = `
		UPDATE voices
		SET status = 'completed',
		    output_audio_path = $2,
		    is_local_storage = $3,
		    remote_storage_path = $4,
		    processing_completed_at = now(),
		    updated_at = now()
		WHERE id = $1 AND status <> 'completed'`

	if _, err := g.db.Exec(ctx, query, voiceID, audioPath, isLocal, remotePath); err != nil {
		return pipelineerr.Transport("postgres", fmt.Errorf("complete_voice: %w", err))
	}
	return nil
}

func (g *PostgresGateway) FailVoice(ctx context.Context, voiceID, errMessage string) error {
	const query = `
		UPDATE voices
		SET status = 'failed', error_message = $2, updated_at = now()
		WHERE id = $1`

	if _, err := g.db.Exec(ctx, query, voiceID, errMessage); err != nil {
		return pipelineerr.Transport("postgres", fmt.Errorf("fail_voice: %w", err))
	}
	return nil
}

func (g *PostgresGateway) StatusForVideo(ctx context.Context, videoID string) (voicejob.VideoStatus, error) {
	const query = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status IN ('pending', 'processing'))
		FROM voices
		WHERE video_id = $1`

	var s voicejob.VideoStatus
	err := g.db.QueryRow(ctx, query, videoID).Scan(&s.Total, &s.Completed, &s.Failed, &s.Pending)
	if err != nil {
		return voicejob.VideoStatus{}, pipelineerr.Transport("postgres", fmt.Errorf("status_for_video: %w", err))
	}
	return s, nil
}

func (g *PostgresGateway) PendingVoices(ctx context.Context) ([]voicejob.VoiceRow, error) {
	const query = `
		SELECT v.id, v.video_id, v.voice_mapping_id, v.character_name, v.text_content,
		       v.status, v.output_audio_path, v.is_local_storage, v.remote_storage_path,
		       v.error_message, v.created_at, v.processing_started_at,
		       v.processing_completed_at, v.updated_at
		FROM voices v
		WHERE v.status = 'pending'
		ORDER BY v.created_at ASC`

	rows, err := g.db.Query(ctx, query)
	if err != nil {
		return nil, pipelineerr.Transport("postgres", fmt.Errorf("pending_voices: %w", err))
	}
	defer rows.Close()

	var out []voicejob.VoiceRow
	for rows.Next() {
		var r voicejob.VoiceRow
		var status string
		if err := rows.Scan(
			&r.ID, &r.VideoID, &r.VoiceMappingID, &r.CharacterName, &r.TextContent,
			&status, &r.OutputAudioPath, &r.IsLocalStorage, &r.RemoteStoragePath,
			&r.ErrorMessage, &r.CreatedAt, &r.ProcessingStartedAt,
			&r.ProcessingCompletedAt, &r.UpdatedAt,
		); err != nil {
			return nil, pipelineerr.Transport("postgres", fmt.Errorf("pending_voices scan: %w", err))
		}
		r.Status = voicejob.Status(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, pipelineerr.Transport("postgres", fmt.Errorf("pending_voices: %w", err))
	}
	return out, nil
}

func (g *PostgresGateway) VoicesForVideo(ctx context.Context, videoID string) ([]voicejob.VoiceRow, error) {
	const query = `
		SELECT v.id, v.video_id, v.voice_mapping_id, v.character_name, v.text_content,
		       v.status, v.output_audio_path, v.is_local_storage, v.remote_storage_path,
		       v.error_message, v.created_at, v.processing_started_at,
		       v.processing_completed_at, v.updated_at
		FROM voices v
		WHERE v.video_id = $1
		ORDER BY v.created_at ASC`

	rows, err := g.db.Query(ctx, query, videoID)
	if err != nil {
		return nil, pipelineerr.Transport("postgres", fmt.Errorf("voices_for_video: %w", err))
	}
	defer rows.Close()

	var out []voicejob.VoiceRow
	for rows.Next() {
		var r voicejob.VoiceRow
		var status string
		if err := rows.Scan(
			&r.ID, &r.VideoID, &r.VoiceMappingID, &r.CharacterName, &r.TextContent,
			&status, &r.OutputAudioPath, &r.IsLocalStorage, &r.RemoteStoragePath,
			&r.ErrorMessage, &r.CreatedAt, &r.ProcessingStartedAt,
			&r.ProcessingCompletedAt, &r.UpdatedAt,
		); err != nil {
			return nil, pipelineerr.Transport("postgres", fmt.Errorf("voices_for_video scan: %w", err))
		}
		r.Status = voicejob.Status(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, pipelineerr.Transport("postgres", fmt.Errorf("voices_for_video: %w", err))
	}
	return out, nil
}

func (g *PostgresGateway) GetMapping(ctx context.Context, voiceID string) (*voicejob.VoiceMapping, error) {
	const query = `SELECT id, voice_id, voice_name, voice_file, is_default FROM voice_mappings WHERE voice_id = $1`
	return g.scanMapping(ctx, query, voiceID)
}

func (g *PostgresGateway) GetMappingByID(ctx context.Context, id string) (*voicejob.VoiceMapping, error) {
	const query = `SELECT id, voice_id, voice_name, voice_file, is_default FROM voice_mappings WHERE id = $1`
	return g.scanMapping(ctx, query, id)
}

func (g *PostgresGateway) DefaultMapping(ctx context.Context) (*voicejob.VoiceMapping, error) {
	const query = `SELECT id, voice_id, voice_name, voice_file, is_default FROM voice_mappings WHERE is_default = TRUE LIMIT 1`
	return g.scanMapping(ctx, query)
}

func (g *PostgresGateway) scanMapping(ctx context.Context, query string, args ...any) (*voicejob.VoiceMapping, error) {
	var m voicejob.VoiceMapping
	err := g.db.QueryRow(ctx, query, args...).Scan(&m.ID, &m.VoiceID, &m.VoiceName, &m.VoiceFile, &m.IsDefault)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, pipelineerr.Transport("postgres", fmt.Errorf("get_mapping: %w", err))
	}
	return &m, nil
}
