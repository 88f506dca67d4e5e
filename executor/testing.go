package executor

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/caffeineduck/hostbridge/hostfunc"
)

// NewLocal returns a Host on a default capability host: in-memory cache,
// random VRF key, outbound HTTP disabled and logs discarded. Tests and
// tooling use it when they don't need to configure the bridge.
func NewLocal(opts ...Option) (*Host, error) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	bridge, err := hostfunc.NewHost(hostfunc.Config{Logger: logger})
	if err != nil {
		return nil, err
	}
	return New(bridge, opts...), nil
}
