package hostfunc

import (
	"crypto/rand"
	"fmt"

	"github.com/zeebo/blake3"
)

// VRFSize is the length of VRF output.
const VRFSize = 32

// VRF produces per-caller pseudorandom output under a host secret. The
// output for (caller, salt) is stable on one host and unpredictable to
// anyone without the key.
type VRF struct {
	key [32]byte
}

// NewVRF returns a VRF keyed with key. An empty key draws a random one,
// which makes outputs unstable across restarts.
func NewVRF(key []byte) (*VRF, error) {
	v := &VRF{}
	switch len(key) {
	case 0:
		if _, err := rand.Read(v.key[:]); err != nil {
			return nil, fmt.Errorf("generate vrf key: %w", err)
		}
	case len(v.key):
		copy(v.key[:], key)
	default:
		return nil, fmt.Errorf("vrf key must be %d bytes, got %d", len(v.key), len(key))
	}
	return v, nil
}

// Evaluate returns the salt as given and the output for caller and salt.
func (v *VRF) Evaluate(caller, salt []byte) ([]byte, []byte) {
	hasher, err := blake3.NewKeyed(v.key[:])
	if err != nil {
		// Only fails for a key of the wrong length.
		panic("hostfunc: vrf key: " + err.Error())
	}
	hasher.Write([]byte{byte(len(caller))})
	hasher.Write(caller)
	hasher.Write(salt)
	return append([]byte(nil), salt...), hasher.Sum(nil)[:VRFSize]
}
