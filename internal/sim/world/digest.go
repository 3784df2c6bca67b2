package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// stateDigest hashes the round number, roster powers and relations in roster
// order. Two runs with identical oracle decisions produce identical digests.
func (w *World) stateDigest(round int) string {
	h := sha256.New()
	var tmp [8]byte
	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		h.Write(tmp[:])
	}

	writeU64(uint64(round))
	for _, alias := range w.order {
		a := w.agents[alias]
		h.Write([]byte(alias))
		h.Write([]byte{0})
		writeU64(math.Float64bits(a.MilitaryPower))
		writeU64(math.Float64bits(a.EconomicPower))
	}
	for _, row := range w.relations.ToMatrix(w.order) {
		for _, v := range row {
			writeU64(uint64(int64(v)))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
