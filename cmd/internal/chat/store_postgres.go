package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"layoo/cmd/internal/retry"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Concurrency model:
// - Transactions take a transactional advisory lock on the message id, so concurrent sends of
//   the same id serialize and the loser sees the winner's row instead of a unique violation.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "layoo").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chat: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("chat: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "layoo",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("chat: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Migrate creates the schema and tables when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	conversations := pgIdent(s.schema, "conversations")
	messages := pgIdent(s.schema, "messages")

	ddl := fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;

CREATE TABLE IF NOT EXISTS %s (
  id              TEXT PRIMARY KEY,
  participants    TEXT[] NOT NULL,
  pair_key        TEXT NOT NULL,
  is_friend       JSONB NOT NULL DEFAULT '[]'::jsonb,
  last_message    TEXT NOT NULL DEFAULT '',
  last_message_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT uq_conversations_pair_key UNIQUE (pair_key)
);

CREATE TABLE IF NOT EXISTS %s (
  id              TEXT PRIMARY KEY,
  conversation_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  sender_id       TEXT NOT NULL,
  type            TEXT NOT NULL,
  content         TEXT NOT NULL,
  payload         JSONB,
  created_at      TIMESTAMPTZ NOT NULL,
  seen_by         TEXT[] NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON %s (conversation_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_conversations_participants ON %s USING GIN (participants);
`,
		pgx.Identifier{s.schema}.Sanitize(),
		conversations,
		messages, conversations,
		messages,
		conversations,
	)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("chat: migrate: %w", mapPGError(err))
	}
	return nil
}

type pgTx struct {
	tx            pgx.Tx
	conversations string
	messages      string
}

func (t pgTx) MessageExists(ctx context.Context, id string) (bool, error) {
	// Serialize writers of the same id until this transaction ends.
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, id); err != nil {
		return false, fmt.Errorf("advisory lock: %w", mapPGError(err))
	}
	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+t.messages+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, mapPGError(err)
	}
	return exists, nil
}

func (t pgTx) InsertMessage(ctx context.Context, m Message) error {
	seen := m.SeenBy
	if seen == nil {
		seen = []string{}
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO `+t.messages+` (id, conversation_id, sender_id, type, content, payload, created_at, seen_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.ConversationID, m.SenderID, string(m.Type), m.Content, m.Payload, m.CreatedAt, seen,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", mapPGError(err))
	}
	return nil
}

func (t pgTx) UpdateConversationSummary(ctx context.Context, conversationID, lastMessage string, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE `+t.conversations+`
		    SET last_message = $2, last_message_at = $3, updated_at = $3
		  WHERE id = $1`,
		conversationID, lastMessage, at,
	)
	if err != nil {
		return fmt.Errorf("update conversation: %w", mapPGError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *PostgresStore) RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return mapPGError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, pgTx{
		tx:            tx,
		conversations: pgIdent(s.schema, "conversations"),
		messages:      pgIdent(s.schema, "messages"),
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPGError(err)
	}
	return nil
}

func (s *PostgresStore) MessageExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+pgIdent(s.schema, "messages")+` WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, mapPGError(err)
	}
	return exists, nil
}

const messageColumns = `id, conversation_id, sender_id, type, content, payload, created_at, seen_by`

func scanMessage(row pgx.Row) (Message, error) {
	var (
		m   Message
		typ string
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &typ, &m.Content, &m.Payload, &m.CreatedAt, &m.SeenBy); err != nil {
		return Message{}, err
	}
	m.Type = MessageType(typ)
	return m, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM `+pgIdent(s.schema, "messages")+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrMessageNotFound
	}
	if err != nil {
		return Message{}, mapPGError(err)
	}
	return m, nil
}

const conversationColumns = `id, participants, pair_key, is_friend, last_message, last_message_at, created_at, updated_at`

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.Participants, &c.PairKey, &c.IsFriend, &c.LastMessage, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, mapPGError(err)
	}
	return c, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	return scanConversation(s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM `+pgIdent(s.schema, "conversations")+` WHERE id = $1`, id))
}

func (s *PostgresStore) FindConversationByPair(ctx context.Context, pairKey string) (Conversation, error) {
	return scanConversation(s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM `+pgIdent(s.schema, "conversations")+` WHERE pair_key = $1`, pairKey))
}

func (s *PostgresStore) InsertConversation(ctx context.Context, c Conversation) error {
	flags := c.IsFriend
	if flags == nil {
		flags = []FriendFlag{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, "conversations")+` (`+conversationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Participants, c.PairKey, flags, c.LastMessage, c.LastMessageAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return mapPGError(err)
	}
	return nil
}

func (s *PostgresStore) SetFriend(ctx context.Context, conversationID, userID string, value bool, now time.Time) (Conversation, error) {
	table := pgIdent(s.schema, "conversations")

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return Conversation{}, mapPGError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := scanConversation(tx.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM `+table+` WHERE id = $1 FOR UPDATE`, conversationID))
	if err != nil {
		return Conversation{}, err
	}

	found := false
	for i := range c.IsFriend {
		if c.IsFriend[i].UserID == userID {
			c.IsFriend[i].Value = value
			found = true
		}
	}
	if !found {
		c.IsFriend = append(c.IsFriend, FriendFlag{UserID: userID, Value: value})
	}
	c.UpdatedAt = now

	if _, err := tx.Exec(ctx,
		`UPDATE `+table+` SET is_friend = $2, updated_at = $3 WHERE id = $1`,
		conversationID, c.IsFriend, now,
	); err != nil {
		return Conversation{}, mapPGError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Conversation{}, mapPGError(err)
	}
	return c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationColumns+` FROM `+pgIdent(s.schema, "conversations")+`
		  WHERE $1 = ANY(participants)
		  ORDER BY last_message_at DESC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, mapPGError(err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPGError(err)
	}
	return out, nil
}

func (s *PostgresStore) ListUnread(ctx context.Context, userID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.conversation_id, m.sender_id, m.type, m.content, m.payload, m.created_at, m.seen_by
		   FROM `+pgIdent(s.schema, "messages")+` m
		   JOIN `+pgIdent(s.schema, "conversations")+` c ON c.id = m.conversation_id
		  WHERE $1 = ANY(c.participants)
		    AND m.sender_id <> $1
		    AND NOT ($1 = ANY(m.seen_by))
		  ORDER BY m.created_at DESC, m.id ASC`,
		userID,
	)
	if err != nil {
		return nil, mapPGError(err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, mapPGError(err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPGError(err)
	}
	return out, nil
}

func (s *PostgresStore) MarkSeen(ctx context.Context, conversationID, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "messages")+`
		    SET seen_by = array_append(seen_by, $2)
		  WHERE conversation_id = $1 AND NOT ($2 = ANY(seen_by))`,
		conversationID, userID,
	)
	if err != nil {
		return 0, mapPGError(err)
	}
	return tag.RowsAffected(), nil
}

// mapPGError converts unique violations into domain errors and marks retryable failures.
func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if strings.Contains(pgErr.ConstraintName, "conversations") {
				return fmt.Errorf("%w: %w", ErrDuplicateConversation, err)
			}
			return fmt.Errorf("%w: %w", ErrDuplicateMessage, err)
		case "40001", "40P01":
			return retry.Transient(err)
		}
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return retry.Transient(err)
	}
	return err
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
