package utxo

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/eggcore/internal/storage"
	"github.com/Klingon-tech/eggcore/pkg/crypto"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

var testAddr = types.Address{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
	0x11, 0x12, 0x13, 0x14}

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.NewMemory())
}

func makeOutpoint(data string, index uint32) types.Outpoint {
	return types.Outpoint{
		TxID:  crypto.Hash([]byte(data)),
		Index: index,
	}
}

func makeUTXO(data string, index uint32, value uint64) *UTXO {
	return &UTXO{
		Outpoint: makeOutpoint(data, index),
		Value:    value,
		Address:  testAddr,
		Height:   1,
	}
}

func TestStore_PutAndGet(t *testing.T) {
	s := testStore(t)
	u := makeUTXO("tx1", 0, 5000)
	u.Coinbase = true

	if err := s.Put(u); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := s.Get(u.Outpoint)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if *got != *u {
		t.Errorf("Get() = %+v, want %+v", got, u)
	}
}

func TestStore_GetNonexistent(t *testing.T) {
	s := testStore(t)
	if _, err := s.Get(makeOutpoint("missing", 0)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() for nonexistent UTXO = %v, want ErrNotFound", err)
	}
}

func TestStore_HasAndDelete(t *testing.T) {
	s := testStore(t)
	u := makeUTXO("tx1", 0, 1000)

	if ok, _ := s.Has(u.Outpoint); ok {
		t.Error("Has() should be false before Put()")
	}
	s.Put(u)
	if ok, _ := s.Has(u.Outpoint); !ok {
		t.Error("Has() should be true after Put()")
	}

	if err := s.Delete(u.Outpoint); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if ok, _ := s.Has(u.Outpoint); ok {
		t.Error("Has() should be false after Delete()")
	}
	byAddr, _ := s.GetByAddress(testAddr)
	if len(byAddr) != 0 {
		t.Error("address index should be cleaned on Delete()")
	}
}

func TestStore_GetByAddress(t *testing.T) {
	s := testStore(t)
	other := types.Address{0xff}

	s.Put(makeUTXO("tx1", 0, 100))
	s.Put(makeUTXO("tx1", 1, 200))
	s.Put(&UTXO{Outpoint: makeOutpoint("tx2", 0), Value: 300, Address: other})

	mine, err := s.GetByAddress(testAddr)
	if err != nil {
		t.Fatalf("GetByAddress: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("got %d utxos, want 2", len(mine))
	}
	theirs, _ := s.GetByAddress(other)
	if len(theirs) != 1 || theirs[0].Value != 300 {
		t.Errorf("other address: %+v", theirs)
	}
}

func TestStore_Stats(t *testing.T) {
	s := testStore(t)
	s.Put(makeUTXO("a", 0, 10))
	s.Put(makeUTXO("b", 0, 32))

	n, total, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if n != 2 || total != 42 {
		t.Errorf("Stats() = %d, %d; want 2, 42", n, total)
	}
}

func TestStore_ApplyView(t *testing.T) {
	db := storage.NewMemory()
	s := NewStore(db)
	spent := makeUTXO("old", 0, 50)
	s.Put(spent)

	v := NewView(s)
	v.Delete(spent.Outpoint)
	created := makeUTXO("new", 0, 40)
	v.Put(created)

	// The store is untouched until the batch commits.
	if ok, _ := s.Has(created.Outpoint); ok {
		t.Fatal("view leaked into the store")
	}

	batch := db.NewBatch()
	if err := s.Apply(batch, v); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if ok, _ := s.Has(spent.Outpoint); !ok {
		t.Fatal("Apply wrote before Commit")
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if ok, _ := s.Has(spent.Outpoint); ok {
		t.Error("spent utxo still present")
	}
	got, err := s.Get(created.Outpoint)
	if err != nil || got.Value != 40 {
		t.Errorf("created utxo: %+v, %v", got, err)
	}
	byAddr, _ := s.GetByAddress(testAddr)
	if len(byAddr) != 1 || byAddr[0].Outpoint != created.Outpoint {
		t.Errorf("address index after Apply: %+v", byAddr)
	}
}

func TestStore_ImplementsSet(t *testing.T) {
	var _ Set = (*Store)(nil)
	var _ Set = (*View)(nil)
}
