package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"private-messenger/internal/storage/zapadapter"
)

var (
	ErrUserExists      = errors.New("user already exists")
	ErrUserNotExist    = errors.New("user does not exist")
	ErrChatNotExist    = errors.New("chat does not exist")
	ErrSameParticipant = errors.New("chat requires two distinct participants")
)

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

// New sets provided zap.Logger via zapadapter to pgxpool.Pool and returns instance of Store struct
func New(logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.New(logger.Desugar())

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	return &Store{
		logger: logger,
		db:     pool,
	}, nil
}

// Close releases the underlying connection pool
func (s *Store) Close() {
	s.db.Close()
}

// CreateUser creates user and returns its id.
func (s *Store) CreateUser(ctx context.Context, name, email string) (int64, error) {
	s.logger.Debugf("Creating user (%s)", name)

	var id int64
	sql := "insert into users (name, email, created_at) values ($1, $2, $3) returning id"
	err := s.db.QueryRow(ctx, sql, name, email, time.Now()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.UniqueViolation {
				return 0, ErrUserExists
			}
		}
		return 0, err
	}

	s.logger.Debugf("Created user (%s) with id %d", name, id)

	return id, nil
}

// UserByID returns the user with provided id
func (s *Store) UserByID(ctx context.Context, id int64) (User, error) {
	var u User
	sql := "select id, trim(name), trim(email), created_at from users where id = $1"
	err := s.db.QueryRow(ctx, sql, id).Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotExist
		}
		return User{}, err
	}

	return u, nil
}

// UsersExcept returns all users other than the provided one, ordered by id.
// Feeds the contact list a client picks a conversation partner from.
func (s *Store) UsersExcept(ctx context.Context, user int64) ([]User, error) {
	sql := "select id, trim(name), trim(email), created_at from users where id <> $1 order by id"
	rows, err := s.db.Query(ctx, sql, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return users, nil
}

// AccessChat returns the chat between two users, creating it on first contact.
// The pair is normalized to ascending order before touching the table, so the
// same chat is returned no matter which side asks.
func (s *Store) AccessChat(ctx context.Context, a, b int64) (Chat, error) {
	if a == b {
		return Chat{}, ErrSameParticipant
	}

	lo, hi := orderPair(a, b)

	s.logger.Debugf("Accessing chat between users %d and %d", lo, hi)

	var c Chat
	sql := `select id, user_lo, user_hi, trim(last_message), created_at, updated_at
			  from chats
			 where user_lo = $1 and user_hi = $2`
	err := s.db.QueryRow(ctx, sql, lo, hi).Scan(
		&c.ID, &c.Participants[0], &c.Participants[1], &c.LastMessage, &c.CreatedAt, &c.UpdatedAt)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Chat{}, err
	}

	now := time.Now()
	sql = "insert into chats (user_lo, user_hi, last_message, created_at, updated_at) values ($1, $2, '', $3, $3) returning id"
	err = s.db.QueryRow(ctx, sql, lo, hi, now).Scan(&c.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.ForeignKeyViolation:
				return Chat{}, ErrUserNotExist
			case pgerrcode.UniqueViolation:
				// lost a create race, the winner's row serves both sides
				return s.AccessChat(ctx, a, b)
			}
		}
		return Chat{}, err
	}

	c.Participants = [2]int64{lo, hi}
	c.CreatedAt = now
	c.UpdatedAt = now

	s.logger.Debugf("Created chat %d for users %d and %d", c.ID, lo, hi)

	return c, nil
}

// ChatByID returns the chat with provided id
func (s *Store) ChatByID(ctx context.Context, chat int64) (Chat, error) {
	var c Chat
	sql := "select id, user_lo, user_hi, trim(last_message), created_at, updated_at from chats where id = $1"
	err := s.db.QueryRow(ctx, sql, chat).Scan(
		&c.ID, &c.Participants[0], &c.Participants[1], &c.LastMessage, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Chat{}, ErrChatNotExist
		}
		return Chat{}, err
	}

	return c, nil
}

// ChatsByUserID returns all chats the user participates in, ordered by last
// activity (from latest to oldest)
func (s *Store) ChatsByUserID(ctx context.Context, user int64) ([]Chat, error) {
	s.logger.Debugf("Retrieving chats for user (id: %d)", user)

	sql := `select id, user_lo, user_hi, trim(last_message), created_at, updated_at
			  from chats
			 where user_lo = $1 or user_hi = $1
			 order by updated_at desc`

	rows, err := s.db.Query(ctx, sql, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := make([]Chat, 0)
	for rows.Next() {
		var c Chat
		err = rows.Scan(&c.ID, &c.Participants[0], &c.Participants[1], &c.LastMessage, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d chats", len(chats))

	return chats, nil
}

// CreateMessage persists a new message and bumps the denormalized last-message
// summary on its chat within a single transaction. Returns the full record
// including the assigned id and creation time.
func (s *Store) CreateMessage(ctx context.Context, chat, sender int64, text string) (Message, error) {
	s.logger.Debugf("Creating message from user (id: %d) in chat (id: %d)", sender, chat)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Message{}, err
	}
	// error handling can be omitted for rollback according docs
	// see https://pkg.go.dev/github.com/jackc/pgx/v4?tab=doc#hdr-Transactions or any source comment on Rollback
	defer tx.Rollback(context.Background())

	m := Message{
		ChatID:    chat,
		Sender:    sender,
		Text:      text,
		CreatedAt: time.Now(),
	}

	sql := "insert into messages (chat_id, sender_id, text, created_at) values ($1, $2, $3, $4) returning id"
	err = tx.QueryRow(ctx, sql, chat, sender, text, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.ForeignKeyViolation {
				switch pgErr.ConstraintName {
				case "messages_chat_id_fkey":
					return Message{}, ErrChatNotExist
				case "messages_sender_id_fkey":
					return Message{}, ErrUserNotExist
				}
			}
		}
		return Message{}, err
	}

	sql = "update chats set last_message = $1, updated_at = $2 where id = $3"
	if _, err = tx.Exec(ctx, sql, text, m.CreatedAt, chat); err != nil {
		return Message{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return Message{}, err
	}

	return m, nil
}

// MessagesByChatID returns list of all chat messages with all fields, sorted by message creation time
// (from earliest to latest). A chat with no rows, including a deleted one, yields an empty list.
func (s *Store) MessagesByChatID(ctx context.Context, chat int64) ([]Message, error) {
	s.logger.Debugf("Retrieving messages for chat (id: %d)", chat)

	sql := `select id, chat_id, sender_id, text, created_at
			  from messages
			 where chat_id = $1
			 order by created_at asc`

	rows, err := s.db.Query(ctx, sql, chat)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var m Message
		err = rows.Scan(&m.ID, &m.ChatID, &m.Sender, &m.Text, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d messages", len(messages))

	return messages, nil
}

// DeleteChatCascade removes all messages of the chat and then the chat record
// itself within a single transaction. Participant authorization is the
// caller's responsibility.
func (s *Store) DeleteChatCascade(ctx context.Context, chat int64) error {
	s.logger.Debugf("Deleting chat (id: %d) with its messages", chat)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(context.Background())

	if _, err = tx.Exec(ctx, "delete from messages where chat_id = $1", chat); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, "delete from chats where id = $1", chat)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrChatNotExist
	}

	return tx.Commit(ctx)
}

func orderPair(a, b int64) (lo, hi int64) {
	if a < b {
		return a, b
	}
	return b, a
}
