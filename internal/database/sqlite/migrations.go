package sqlite

import "database/sql"

// schema mirrors the PostgreSQL tables. Timestamps are epoch milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS lobbies (
    id TEXT PRIMARY KEY,
    host_name TEXT NOT NULL,
    game_name TEXT NOT NULL,
    password_hash TEXT NOT NULL DEFAULT '',
    total_teams INTEGER NOT NULL,
    players_per_team INTEGER NOT NULL,
    points_per_team INTEGER NOT NULL,
    min_players_per_team INTEGER NOT NULL,
    max_players_per_team INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    is_paused INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS teams (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    lobby_id TEXT NOT NULL,
    name TEXT NOT NULL,
    owner_name TEXT NOT NULL,
    captain_name TEXT NOT NULL DEFAULT '',
    remaining_points INTEGER NOT NULL CHECK (remaining_points >= 0),
    player_count INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (lobby_id) REFERENCES lobbies(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS players (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    lobby_id TEXT NOT NULL,
    name TEXT NOT NULL,
    position TEXT NOT NULL DEFAULT '',
    is_auctioned INTEGER NOT NULL DEFAULT 0,
    sold_to_team_id INTEGER,
    sold_price INTEGER,
    display_order INTEGER NOT NULL,
    FOREIGN KEY (lobby_id) REFERENCES lobbies(id) ON DELETE CASCADE,
    FOREIGN KEY (sold_to_team_id) REFERENCES teams(id)
);

CREATE TABLE IF NOT EXISTS auction_states (
    lobby_id TEXT PRIMARY KEY,
    current_player_id INTEGER,
    current_highest_bid INTEGER,
    current_highest_bidder_team_id INTEGER,
    auction_start_time INTEGER,
    FOREIGN KEY (lobby_id) REFERENCES lobbies(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS bids (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    lobby_id TEXT NOT NULL,
    player_id INTEGER NOT NULL,
    team_id INTEGER NOT NULL,
    amount INTEGER NOT NULL,
    placed_at INTEGER NOT NULL,
    FOREIGN KEY (lobby_id) REFERENCES lobbies(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_teams_lobby ON teams(lobby_id);
CREATE INDEX IF NOT EXISTS idx_players_lobby ON players(lobby_id, display_order);
CREATE INDEX IF NOT EXISTS idx_players_team ON players(sold_to_team_id);
CREATE INDEX IF NOT EXISTS idx_bids_player ON bids(player_id, amount DESC);
`

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
