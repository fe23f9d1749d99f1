package state

import (
	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/wallet"
)

// CreateWallet generates a new named wallet with a starting balance.
func (s *State) CreateWallet(name string, balance database.Amount) (wallet.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if balance < 0 {
		return wallet.Wallet{}, database.NewValidationError("balance", database.ErrInvalidAmount)
	}

	w, err := s.wallets.Create(name, balance)
	if err != nil {
		return wallet.Wallet{}, err
	}

	s.evHandler("state: CreateWallet: name[%s] address[%s]", w.Name, w.Address)

	return w, nil
}

// ImportWallet adds a wallet for an existing private key.
func (s *State) ImportWallet(name string, privateKey string, balance database.Amount) (wallet.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if balance < 0 {
		return wallet.Wallet{}, database.NewValidationError("balance", database.ErrInvalidAmount)
	}

	return s.wallets.Import(name, privateKey, balance)
}

// Wallets returns every wallet in creation order.
func (s *State) Wallets() []wallet.Wallet {
	return s.wallets.All()
}

// Wallet returns the wallet by name or address.
func (s *State) Wallet(nameOrAddress string) (wallet.Wallet, error) {
	if database.IsAddress(nameOrAddress) {
		return s.wallets.ByAddress(nameOrAddress)
	}
	return s.wallets.ByName(nameOrAddress)
}

// WalletName returns the wallet name owning the address or the address.
func (s *State) WalletName(address string) string {
	return s.wallets.Lookup(address)
}

// PendingOutgoing returns what the wallet owes to pending transactions.
func (s *State) PendingOutgoing(address string) database.Amount {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pendingOutgoing(address, "")
}
