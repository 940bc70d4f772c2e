package exchange

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema:
//
//	tok:{token}               registration record
//	sys:commission            system commission singleton
//	bal:{token}:{owner}       custody cell
//	ord:{token}:{side}:{id}   resting order
//
// Order ids are xids, which sort by creation time, so iterating an
// "ord:" prefix yields each book's orders oldest first and a reload
// reproduces the books' insertion order exactly.
const (
	prefixToken   = "tok:"
	prefixBalance = "bal:"
	prefixOrder   = "ord:"
	keyCommission = "sys:commission"
)

func tokenKey(token common.Address) []byte {
	return []byte(prefixToken + token.Hex())
}

func balanceCellKey(token, owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, token.Hex(), owner.Hex()))
}

func orderEntryKey(token common.Address, side Side, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixOrder, token.Hex(), side, id))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// Store persists the full exchange state in Pebble. Every engine
// operation commits its mutations as one batch, so a crash can never
// leave the ledger and the books disagreeing on disk.
type Store struct {
	db *pebble.DB
}

// NewStore opens (or creates) the Pebble database at path.
func NewStore(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(64 << 20),
		MemTableSize: 32 << 20,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Batch stages the writes of one engine operation.
type Batch struct {
	batch *pebble.Batch
}

func (s *Store) NewBatch() *Batch {
	return &Batch{batch: s.db.NewBatch()}
}

func (b *Batch) PutToken(token common.Address, rec TokenRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.batch.Set(tokenKey(token), data, nil)
}

func (b *Batch) PutCommission(sc SystemCommission) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	return b.batch.Set([]byte(keyCommission), data, nil)
}

func (b *Batch) PutBalance(token, owner common.Address, bal Balance) error {
	data, err := json.Marshal(bal)
	if err != nil {
		return err
	}
	return b.batch.Set(balanceCellKey(token, owner), data, nil)
}

func (b *Batch) PutOrder(o *Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return b.batch.Set(orderEntryKey(o.Token, o.Side, o.ID), data, nil)
}

func (b *Batch) DeleteOrder(token common.Address, side Side, id string) error {
	return b.batch.Delete(orderEntryKey(token, side, id), nil)
}

// Commit writes the batch atomically and fsyncs.
func (b *Batch) Commit() error {
	return b.batch.Commit(pebble.Sync)
}

func (b *Batch) Close() error {
	return b.batch.Close()
}

// State is everything needed to rebuild an engine after restart.
type State struct {
	Tokens        map[common.Address]TokenRecord
	Commission    SystemCommission
	HasCommission bool
	Balances      map[common.Address]map[common.Address]Balance // token -> owner -> cell
	Orders        []*Order                                      // creation order
}

// Load reads the complete persisted state.
func (s *Store) Load() (*State, error) {
	st := &State{
		Tokens:   make(map[common.Address]TokenRecord),
		Balances: make(map[common.Address]map[common.Address]Balance),
	}

	if data, closer, err := s.db.Get([]byte(keyCommission)); err == nil {
		err = json.Unmarshal(data, &st.Commission)
		closer.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode system commission: %w", err)
		}
		st.HasCommission = true
	} else if err != pebble.ErrNotFound {
		return nil, fmt.Errorf("failed to read system commission: %w", err)
	}

	if err := s.scan(prefixToken, func(key string, value []byte) error {
		if !common.IsHexAddress(key) {
			return fmt.Errorf("bad token key %q", key)
		}
		var rec TokenRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		st.Tokens[common.HexToAddress(key)] = rec
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}

	if err := s.scan(prefixBalance, func(key string, value []byte) error {
		// key is "{token}:{owner}", both 0x-prefixed 40-hex addresses
		if len(key) != 85 || key[42] != ':' {
			return fmt.Errorf("bad balance key %q", key)
		}
		tokenHex, ownerHex := key[:42], key[43:]
		if !common.IsHexAddress(tokenHex) || !common.IsHexAddress(ownerHex) {
			return fmt.Errorf("bad balance key %q", key)
		}
		var bal Balance
		if err := json.Unmarshal(value, &bal); err != nil {
			return err
		}
		tok := common.HexToAddress(tokenHex)
		if st.Balances[tok] == nil {
			st.Balances[tok] = make(map[common.Address]Balance)
		}
		st.Balances[tok][common.HexToAddress(ownerHex)] = bal
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}

	if err := s.scan(prefixOrder, func(key string, value []byte) error {
		var o Order
		if err := json.Unmarshal(value, &o); err != nil {
			return err
		}
		st.Orders = append(st.Orders, &o)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}

	return st, nil
}

// scan iterates all keys under prefix, passing the key with the
// prefix stripped.
func (s *Store) scan(prefix string, fn func(key string, value []byte) error) error {
	p := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: p,
		UpperBound: keyUpperBound(p),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key())[len(prefix):]
		if err := fn(key, iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
