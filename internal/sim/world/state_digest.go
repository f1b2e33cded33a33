package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math"
)

// stateDigest hashes everything a replay must reproduce: agent poses and
// targets, then every prop with its engaged-set and own state.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	w.digestAgents(h, &tmp)
	w.digestProps(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func (w *World) digestAgents(h hashWriter, tmp *[8]byte) {
	ids := w.sortedAgentIDs()
	digestWriteU64(h, tmp, uint64(len(ids)))
	for _, id := range ids {
		a := w.agents[id].agent
		digestWriteString(h, tmp, id)
		digestWriteVec(h, tmp, a.Position().ToArray())
		digestWriteF64(h, tmp, a.Yaw())
		targetID, _, _ := describeTarget(a.CurrentTarget())
		digestWriteString(h, tmp, targetID)
	}
}

func (w *World) digestProps(h hashWriter, tmp *[8]byte) {
	ids := w.sortedPropIDs()
	digestWriteU64(h, tmp, uint64(len(ids)))
	for _, id := range ids {
		p := w.props[id]
		core := p.Core()
		digestWriteString(h, tmp, id)
		digestWriteString(h, tmp, p.Kind())
		digestWriteVec(h, tmp, core.Position().ToArray())
		digestWriteF64(h, tmp, core.Range())
		h.Write([]byte{boolByte(core.Interactable())})
		digestWriteString(h, tmp, core.InteractionPrompt())

		engaged := core.Engaged()
		digestWriteU64(h, tmp, uint64(len(engaged)))
		for _, i := range engaged {
			digestWriteString(h, tmp, agentIDOf(i))
		}
		// encoding/json sorts map keys.
		state, _ := json.Marshal(p.State())
		digestWriteU64(h, tmp, uint64(len(state)))
		h.Write(state)
	}
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestWriteVec(h hashWriter, tmp *[8]byte, v [3]float64) {
	for _, c := range v {
		digestWriteF64(h, tmp, c)
	}
}

func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
