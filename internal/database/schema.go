// internal/database/schema.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS lobbies (
	id                   TEXT PRIMARY KEY,
	host_name            TEXT NOT NULL,
	game_name            TEXT NOT NULL,
	password_hash        TEXT NOT NULL DEFAULT '',
	total_teams          INTEGER NOT NULL,
	players_per_team     INTEGER NOT NULL,
	points_per_team      INTEGER NOT NULL,
	min_players_per_team INTEGER NOT NULL,
	max_players_per_team INTEGER NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	is_active            BOOLEAN NOT NULL DEFAULT TRUE,
	is_paused            BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS teams (
	id               BIGSERIAL PRIMARY KEY,
	lobby_id         TEXT NOT NULL REFERENCES lobbies(id) ON DELETE CASCADE,
	name             TEXT NOT NULL,
	owner_name       TEXT NOT NULL,
	captain_name     TEXT NOT NULL DEFAULT '',
	remaining_points INTEGER NOT NULL CHECK (remaining_points >= 0),
	player_count     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS teams_lobby_idx ON teams(lobby_id);

CREATE TABLE IF NOT EXISTS players (
	id              BIGSERIAL PRIMARY KEY,
	lobby_id        TEXT NOT NULL REFERENCES lobbies(id) ON DELETE CASCADE,
	name            TEXT NOT NULL,
	position        TEXT NOT NULL DEFAULT '',
	is_auctioned    BOOLEAN NOT NULL DEFAULT FALSE,
	sold_to_team_id BIGINT REFERENCES teams(id),
	sold_price      INTEGER,
	display_order   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS players_lobby_idx ON players(lobby_id, display_order);

CREATE TABLE IF NOT EXISTS auction_states (
	lobby_id                       TEXT PRIMARY KEY REFERENCES lobbies(id) ON DELETE CASCADE,
	current_player_id              BIGINT REFERENCES players(id),
	current_highest_bid            INTEGER,
	current_highest_bidder_team_id BIGINT REFERENCES teams(id),
	auction_start_time             TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS bids (
	id         BIGSERIAL PRIMARY KEY,
	lobby_id   TEXT NOT NULL REFERENCES lobbies(id) ON DELETE CASCADE,
	player_id  BIGINT NOT NULL REFERENCES players(id),
	team_id    BIGINT NOT NULL REFERENCES teams(id),
	amount     INTEGER NOT NULL,
	placed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS bids_player_idx ON bids(player_id, amount DESC);

CREATE TABLE IF NOT EXISTS auction_actions (
	lobby_id       TEXT NOT NULL,
	seq            BIGINT NOT NULL,
	action_type    TEXT NOT NULL,
	action_payload JSONB NOT NULL,
	recorded_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (lobby_id, seq)
);
`

// Migrate creates every table the auction service needs. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	err := pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
