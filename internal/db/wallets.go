package db

import (
	"context"
	"time"
)

// WalletRepo provides typed access to council wallets. The council
// never stores a back-pointer; the wallet is found by council id via
// the unique index on wallets.council_id.
type WalletRepo struct {
	q Querier
}

// NewWalletRepo creates a wallet repository over the given session.
func NewWalletRepo(q Querier) *WalletRepo {
	return &WalletRepo{q: q}
}

// Create inserts a wallet. A second wallet for the same council
// surfaces ErrUniqueViolation.
func (r *WalletRepo) Create(ctx context.Context, w *Wallet) error {
	query := `
		INSERT INTO wallets (council_id, exchange, api_key, secret_key, contract_address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id`

	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}

	err := r.q.QueryRow(ctx, query,
		w.CouncilID, w.Exchange, w.APIKey, w.SecretKey, w.ContractAddress, w.CreatedAt,
	).Scan(&w.ID)
	if err != nil {
		return wrapError("create wallet", err)
	}
	return nil
}

// GetByCouncil returns the wallet for a council, or ErrNotFound.
func (r *WalletRepo) GetByCouncil(ctx context.Context, councilID int64) (*Wallet, error) {
	query := `
		SELECT id, council_id, exchange, api_key, secret_key, contract_address, created_at
		FROM wallets
		WHERE council_id = $1`

	var w Wallet
	err := r.q.QueryRow(ctx, query, councilID).Scan(
		&w.ID, &w.CouncilID, &w.Exchange, &w.APIKey, &w.SecretKey,
		&w.ContractAddress, &w.CreatedAt,
	)
	if err != nil {
		return nil, wrapError("get wallet", err)
	}
	return &w, nil
}

// Delete removes a council's wallet. Credential rotation waits for the
// council's current cycle to complete before calling this.
func (r *WalletRepo) Delete(ctx context.Context, councilID int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM wallets WHERE council_id = $1`, councilID)
	if err != nil {
		return wrapError("delete wallet", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapError("delete wallet", ErrNotFound)
	}
	return nil
}
