package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/internal/chain"
)

type accountRow struct {
	ID           int64     `db:"id"`
	ChatIdentity string    `db:"chat_identity"`
	DisplayName  string    `db:"display_name"`
	CreatedAt    time.Time `db:"created_at"`
}

type bindingRow struct {
	AccountID      int64  `db:"account_id"`
	Chain          string `db:"chain"`
	Address        string `db:"address"`
	KeyShareHandle string `db:"key_share_handle"`
}

// Postgres implements the durable account store on top of sqlx.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// FindByIdentity loads the account bound to a chat identity, including all of
// its chain bindings. Returns ErrNotFound if the identity is unknown.
func (p *Postgres) FindByIdentity(ctx context.Context, chatIdentity string) (*Account, error) {
	var row accountRow
	err := p.db.GetContext(ctx, &row,
		`SELECT id, chat_identity, display_name, created_at
		   FROM accounts WHERE chat_identity = $1`, chatIdentity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}

	var bindings []bindingRow
	if err := p.db.SelectContext(ctx, &bindings,
		`SELECT account_id, chain, address, key_share_handle
		   FROM account_chains WHERE account_id = $1`, row.ID); err != nil {
		return nil, fmt.Errorf("find account chains: %w", err)
	}

	acct := &Account{
		ID:           row.ID,
		ChatIdentity: row.ChatIdentity,
		DisplayName:  row.DisplayName,
		Chains:       make(map[chain.Tag]ChainBinding, len(bindings)),
		CreatedAt:    row.CreatedAt,
	}
	for _, b := range bindings {
		acct.Chains[chain.Tag(b.Chain)] = ChainBinding{
			Address:        b.Address,
			KeyShareHandle: b.KeyShareHandle,
		}
	}
	return acct, nil
}

// InsertIfAbsent persists a new account with all of its chain bindings in one
// transaction. The uniqueness constraint on chat_identity decides races: when
// another provisioning attempt got there first, no rows are written and
// inserted is false.
func (p *Postgres) InsertIfAbsent(ctx context.Context, acct *Account) (inserted bool, err error) {
	start := time.Now()
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin insert account: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id int64
	err = tx.GetContext(ctx, &id,
		`INSERT INTO accounts (chat_identity, display_name)
		 VALUES ($1, $2)
		 ON CONFLICT (chat_identity) DO NOTHING
		 RETURNING id`, acct.ChatIdentity, acct.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		// Conflict: already provisioned.
		err = tx.Rollback()
		return false, err
	}
	if err != nil {
		return false, fmt.Errorf("insert account: %w", err)
	}

	for tag, binding := range acct.Chains {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO account_chains (account_id, chain, address, key_share_handle)
			 VALUES ($1, $2, $3, $4)`,
			id, string(tag), binding.Address, binding.KeyShareHandle); err != nil {
			return false, fmt.Errorf("insert account chain %s: %w", tag, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit insert account: %w", err)
	}
	acct.ID = id

	logger.DB.Info("account inserted",
		slog.String("event", "account.insert"),
		slog.String("rid", logger.RIDFrom(ctx)),
		slog.String("chat_identity", acct.ChatIdentity),
		slog.Int("chains", len(acct.Chains)),
		slog.Duration("duration", logger.Took(start)),
	)
	return true, nil
}
