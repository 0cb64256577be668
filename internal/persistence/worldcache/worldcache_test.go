package worldcache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"voxelzone.app/internal/protocol"
	"voxelzone.app/internal/zone"
)

const sample = `{
  "blocks": {"cells": [[[0,0,0], 1], [[2,0,1], 3]]},
  "echoes": [{"userId":"4","name":"ann","position":[1,0,1],"text":"was here"}]
}`

func TestLoad_PlainJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	st := zone.New()
	if err := Load(path, st); err != nil {
		t.Fatalf("load: %v", err)
	}
	if v, ok := st.Grid.Get(zone.Coord{2, 0, 1}); !ok || v != 3 {
		t.Fatalf("block (2,0,1)=%d,%v want 3", v, ok)
	}
	if !st.Occupied(zone.Coord{0, 0, 0}) {
		t.Fatalf("origin should be occupied")
	}
	e, ok := st.EchoAt(zone.Coord{1, 0, 1})
	if !ok || e.Text != "was here" || e.Name != "ann" {
		t.Fatalf("echo=%+v ok=%v", e, ok)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if err := Load(filepath.Join(dir, "missing.json"), zone.New()); err == nil {
		t.Fatalf("expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.json")
	_ = os.WriteFile(bad, []byte(`{"blocks":{"cells":[[[0,0,0]]]}}`), 0o644)
	if err := Load(bad, zone.New()); err == nil {
		t.Fatalf("expected error for malformed cell")
	}
}

func TestSaveLoad_RoundTripCompressed(t *testing.T) {
	st := zone.New()
	st.SetBlocks([]protocol.BlockCell{
		{Coords: protocol.Position{3, 0, 0}, Value: 2},
		{Coords: protocol.Position{-1, 1, 4}, Value: 5},
	})
	st.AddEchoes([]protocol.UserEcho{{UserID: "1", Name: "bob", Position: protocol.Position{0, 0, 2}, Text: "hi"}})

	path := filepath.Join(t.TempDir(), "cache", "world.json.zst")
	if err := Save(path, st); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if bytes.HasPrefix(raw, []byte("{")) {
		t.Fatalf("expected compressed output")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}

	got := zone.New()
	if err := Load(path, got); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Grid) != 2 || len(got.Echoes) != 1 {
		t.Fatalf("grid=%d echoes=%d", len(got.Grid), len(got.Echoes))
	}
	if v, _ := got.Grid.Get(zone.Coord{-1, 1, 4}); v != 5 {
		t.Fatalf("block=%d want 5", v)
	}
}

func TestSnapshot_Deterministic(t *testing.T) {
	st := zone.New()
	for _, c := range []zone.Coord{{5, 0, 0}, {1, 0, 0}, {3, 0, 0}} {
		st.SetBlock(c, 1)
	}
	st.AddEchoes([]protocol.UserEcho{
		{Position: protocol.Position{9, 0, 0}, Text: "b"},
		{Position: protocol.Position{2, 0, 0}, Text: "a"},
	})
	wf := Snapshot(st)
	if wf.Blocks.Cells[0].Coords != (protocol.Position{1, 0, 0}) || wf.Blocks.Cells[2].Coords != (protocol.Position{5, 0, 0}) {
		t.Fatalf("cells not ordered: %+v", wf.Blocks.Cells)
	}
	if wf.Echoes[0].Text != "a" {
		t.Fatalf("echoes not ordered: %+v", wf.Echoes)
	}

	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json")
	if err := Save(a, st); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := Save(b, st); err != nil {
		t.Fatalf("save b: %v", err)
	}
	ra, _ := os.ReadFile(a)
	rb, _ := os.ReadFile(b)
	if !bytes.Equal(ra, rb) {
		t.Fatalf("saves differ")
	}
}
