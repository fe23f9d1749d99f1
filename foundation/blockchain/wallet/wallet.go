// Package wallet maintains the named identities that sign transactions and
// the balances that confirmed transactions move between them.
package wallet

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/signature"
)

// Set of error variables for wallet operations.
var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrWalletExists      = errors.New("wallet already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Wallet represents a named key pair and its confirmed balance. The keys
// never change for the lifetime of the wallet.
type Wallet struct {
	Name       string          `json:"name"`
	Address    string          `json:"address"`
	PublicKey  string          `json:"publicKey"`
	PrivateKey string          `json:"privateKey"`
	Balance    database.Amount `json:"balance"`
}

// New constructs a wallet with a freshly generated key pair.
func New(name string, balance database.Amount) (Wallet, error) {
	kp, err := signature.GenerateKeyPair()
	if err != nil {
		return Wallet{}, err
	}

	return fromKeyPair(name, kp, balance)
}

// FromPrivateKey constructs a wallet around an existing private key.
func FromPrivateKey(name string, privateKey string, balance database.Amount) (Wallet, error) {
	pk, err := signature.ToECDSA(privateKey)
	if err != nil {
		return Wallet{}, fmt.Errorf("parsing private key: %w", err)
	}

	return fromKeyPair(name, signature.FromECDSA(pk), balance)
}

// Sign signs the transaction with the wallet's private key.
func (w Wallet) Sign(tx database.Tx) (database.Tx, error) {
	return tx.Sign(w.PrivateKey)
}

func fromKeyPair(name string, kp signature.KeyPair, balance database.Amount) (Wallet, error) {
	if name == "" {
		return Wallet{}, errors.New("wallet name is required")
	}

	addr, err := signature.DeriveAddress(kp.PublicKey)
	if err != nil {
		return Wallet{}, err
	}

	w := Wallet{
		Name:       name,
		Address:    addr,
		PublicKey:  kp.PublicKey,
		PrivateKey: kp.PrivateKey,
		Balance:    balance,
	}

	return w, nil
}

// =============================================================================

// Manager holds the set of wallets by name and address.
type Manager struct {
	mu        sync.RWMutex
	wallets   map[string]Wallet
	byAddress map[string]string
	order     []string
}

// NewManager constructs an empty manager.
func NewManager() *Manager {
	return &Manager{
		wallets:   make(map[string]Wallet),
		byAddress: make(map[string]string),
	}
}

// Create generates a new wallet and adds it to the manager.
func (m *Manager) Create(name string, balance database.Amount) (Wallet, error) {
	w, err := New(name, balance)
	if err != nil {
		return Wallet{}, err
	}

	if err := m.Add(w); err != nil {
		return Wallet{}, err
	}

	return w, nil
}

// Import adds a wallet for an existing private key.
func (m *Manager) Import(name string, privateKey string, balance database.Amount) (Wallet, error) {
	w, err := FromPrivateKey(name, privateKey, balance)
	if err != nil {
		return Wallet{}, err
	}

	if err := m.Add(w); err != nil {
		return Wallet{}, err
	}

	return w, nil
}

// Add registers a constructed wallet. Names and addresses must be unique.
func (m *Manager) Add(w Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.wallets[w.Name]; exists {
		return fmt.Errorf("%w: %s", ErrWalletExists, w.Name)
	}

	if _, exists := m.byAddress[w.Address]; exists {
		return fmt.Errorf("%w: %s", ErrWalletExists, w.Address)
	}

	m.wallets[w.Name] = w
	m.byAddress[w.Address] = w.Name
	m.order = append(m.order, w.Name)

	return nil
}

// Remove deletes the named wallet.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, exists := m.wallets[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrWalletNotFound, name)
	}

	delete(m.wallets, name)
	delete(m.byAddress, w.Address)

	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	return nil
}

// ByName returns the named wallet.
func (m *Manager) ByName(name string) (Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, exists := m.wallets[name]
	if !exists {
		return Wallet{}, fmt.Errorf("%w: %s", ErrWalletNotFound, name)
	}

	return w, nil
}

// ByAddress returns the wallet that owns the address.
func (m *Manager) ByAddress(address string) (Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name, exists := m.byAddress[address]
	if !exists {
		return Wallet{}, fmt.Errorf("%w: %s", ErrWalletNotFound, address)
	}

	return m.wallets[name], nil
}

// Lookup returns the wallet name for the address or the address itself.
func (m *Manager) Lookup(address string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name, exists := m.byAddress[address]
	if !exists {
		return address
	}
	return name
}

// All returns a copy of the wallets in the order they were added.
func (m *Manager) All() []Wallet {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Wallet, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.wallets[name])
	}

	return out
}

// Len returns the number of wallets.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.order)
}

// Apply moves the balances for a confirmed transaction. The sender pays
// amount plus fee and the recipient receives the amount. Addresses that no
// wallet owns are ignored. Nothing changes when the sender cannot pay.
func (m *Manager) Apply(tx database.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fromName, fromKnown := m.byAddress[tx.From]
	toName, toKnown := m.byAddress[tx.To]

	if fromKnown {
		from := m.wallets[fromName]
		if from.Balance < tx.Cost() {
			return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.Name, from.Balance, tx.Cost())
		}

		from.Balance -= tx.Cost()
		m.wallets[fromName] = from
	}

	if toKnown {
		to := m.wallets[toName]
		to.Balance += tx.Amount
		m.wallets[toName] = to
	}

	return nil
}

// Revert undoes a previously applied transaction after a reorg dropped the
// block that carried it. The amount is taken back from the recipient as far
// as its balance allows and the sender is refunded the fee plus what was
// taken back, so no funds are created. The part the recipient already spent
// is returned as the shortfall.
func (m *Manager) Revert(tx database.Tx) (shortfall database.Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recovered := tx.Amount

	if name, known := m.byAddress[tx.To]; known {
		to := m.wallets[name]
		recovered = min(to.Balance, tx.Amount)
		to.Balance -= recovered
		m.wallets[name] = to
	}

	if name, known := m.byAddress[tx.From]; known {
		from := m.wallets[name]
		from.Balance += tx.Fee + recovered
		m.wallets[name] = from
	}

	return tx.Amount - recovered
}

// SetBalance overrides the balance of the named wallet.
func (m *Manager) SetBalance(name string, balance database.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, exists := m.wallets[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrWalletNotFound, name)
	}

	w.Balance = balance
	m.wallets[name] = w

	return nil
}

// Restore replaces the wallets with a saved set. A wallet is skipped and
// counted when its key does not produce its address or when it repeats a
// name or address.
func (m *Manager) Restore(wallets []Wallet) int {
	fresh := NewManager()

	var skipped int
	for _, w := range wallets {
		rebuilt, err := FromPrivateKey(w.Name, w.PrivateKey, w.Balance)
		if err != nil || (w.Address != "" && rebuilt.Address != w.Address) || w.Balance < 0 {
			skipped++
			continue
		}

		if err := fresh.Add(rebuilt); err != nil {
			skipped++
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.wallets = fresh.wallets
	m.byAddress = fresh.byAddress
	m.order = fresh.order

	return skipped
}
