package storage

import (
	"os"
	"path/filepath"
	"testing"

	"tickcapture/internal/wire"
)

func sealedRecord(seq uint64, symbolID uint32) wire.Record {
	r := wire.Record{SequenceNumber: seq, SymbolID: symbolID, Type: wire.Trade}
	r.SetTrade(wire.TradeBody{Price: 100.5, Size: 10, Flags: 0})
	wire.Seal(&r)
	return r
}

func TestStoreCreatesPerSymbolFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := sealedRecord(1, 42)
	if err := s.Store(&r); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "42.tick")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
	if info.Size() != wire.Size {
		t.Errorf("file size = %d, want %d", info.Size(), wire.Size)
	}
}

func TestStoreAppendsAcrossReopens(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint64(1); i <= 3; i++ {
		r := sealedRecord(i, 7)
		if err := s.Store(&r); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := sealedRecord(4, 7)
	if err := s2.Store(&r); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(dir, "7.tick"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != wire.Size*4 {
		t.Errorf("file size after reopen = %d, want %d (append, not truncate)", info.Size(), wire.Size*4)
	}
}

func TestStoreRejectsSymbolIDOutOfRange(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := sealedRecord(1, 0)
	if err := s.Store(&r); err == nil {
		t.Fatal("expected fatal error for symbol_id 0")
	}
	r2 := sealedRecord(1, wire.MaxSymbolID+1)
	if err := s.Store(&r2); err == nil {
		t.Fatal("expected fatal error for symbol_id above max")
	}
}

func TestStatsAccumulateAcrossSymbols(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, sym := range []uint32{1, 2, 1} {
		r := sealedRecord(1, sym)
		if err := s.Store(&r); err != nil {
			t.Fatal(err)
		}
	}
	stats := s.Stats()
	if stats.MessagesWritten != 3 {
		t.Errorf("MessagesWritten = %d, want 3", stats.MessagesWritten)
	}
	if stats.OpenFiles != 2 {
		t.Errorf("OpenFiles = %d, want 2", stats.OpenFiles)
	}
	if stats.BytesWritten != 3*wire.Size {
		t.Errorf("BytesWritten = %d, want %d", stats.BytesWritten, 3*wire.Size)
	}

	msgs, bytes, ok := s.PerSymbolStats(1)
	if !ok || msgs != 2 || bytes != 2*wire.Size {
		t.Errorf("PerSymbolStats(1) = (%d, %d, %v), want (2, %d, true)", msgs, bytes, ok, 2*wire.Size)
	}
}

type fakeCatalog struct {
	calls int
}

func (f *fakeCatalog) RecordSymbolWrite(symbolID uint32, seq uint64, bytesWritten int) {
	f.calls++
}

func TestStoreNotifiesCatalogSink(t *testing.T) {
	dir := t.TempDir()
	cat := &fakeCatalog{}
	s, err := New(dir, cat)
	if err != nil {
		t.Fatal(err)
	}
	r := sealedRecord(1, 5)
	if err := s.Store(&r); err != nil {
		t.Fatal(err)
	}
	if cat.calls != 1 {
		t.Errorf("catalog notified %d times, want 1", cat.calls)
	}
}
