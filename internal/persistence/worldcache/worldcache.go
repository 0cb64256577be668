// Package worldcache reads and writes the bootstrap world file: the block
// grid and echoes a client can show before the server has sent anything.
// Paths ending in .zst are zstd-compressed.
package worldcache

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"voxelzone.app/internal/protocol"
	"voxelzone.app/internal/zone"
)

type File struct {
	Blocks protocol.BlocksMsg  `json:"blocks"`
	Echoes []protocol.UserEcho `json:"echoes"`
}

func compressed(path string) bool { return strings.HasSuffix(path, ".zst") }

func Read(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer f.Close()

	var r io.Reader = f
	if compressed(path) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return File{}, err
		}
		defer dec.Close()
		r = dec
	}
	var out File
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return File{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// Load reads path into st, on top of whatever st already holds.
func Load(path string, st *zone.State) error {
	wf, err := Read(path)
	if err != nil {
		return err
	}
	Apply(wf, st)
	return nil
}

func Apply(wf File, st *zone.State) {
	st.SetBlocks(wf.Blocks.Cells)
	st.AddEchoes(wf.Echoes)
}

// Snapshot captures st in file form. Cells and echoes come out in coordinate
// order so saves of the same state are byte-identical.
func Snapshot(st *zone.State) File {
	var wf File
	wf.Blocks.Cells = make([]protocol.BlockCell, 0, len(st.Grid))
	for _, c := range st.Grid.Coords() {
		v, _ := st.Grid.Get(c)
		wf.Blocks.Cells = append(wf.Blocks.Cells, protocol.BlockCell{Coords: c.Position(), Value: v})
	}
	coords := make([]zone.Coord, 0, len(st.Echoes))
	for c := range st.Echoes {
		coords = append(coords, c)
	}
	zone.SortCoords(coords)
	wf.Echoes = make([]protocol.UserEcho, 0, len(coords))
	for _, c := range coords {
		e := st.Echoes[c]
		wf.Echoes = append(wf.Echoes, protocol.UserEcho{
			UserID:   e.UserID,
			Name:     e.Name,
			Tags:     e.Tags,
			Emotes:   e.Emotes,
			Avatar:   e.Avatar,
			Position: e.Position.Position(),
			Text:     e.Text,
		})
	}
	return wf
}

// Save writes st to path through a temp file and rename.
func Save(path string, st *zone.State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f, compressed(path), Snapshot(st)); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func write(w io.Writer, zst bool, wf File) error {
	if !zst {
		return json.NewEncoder(w).Encode(wf)
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := json.NewEncoder(enc).Encode(wf); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}
