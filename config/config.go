// Package config loads and validates node configuration. Every capacity here is a
// configuration constant: nothing the core allocates is resized at runtime, so
// sizing decisions all happen in this package before a node is constructed.
package config

import (
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/busrt/busrt/session"
)

// Duration wraps time.Duration with YAML support for plain duration strings
// ("500ms", "2s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return errors.Wrap(err, "durations must be strings like \"500ms\"")
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "%q is not a valid duration", raw)
	}

	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// NodeConfig holds every construction constant for one node. Zero fields are
// filled from Default by Load; hand-built configs should start from Default too.
type NodeConfig struct {
	// NodeID is this node's identity on the bus.
	NodeID uint8 `yaml:"node_id"`

	// BlockSize is the pool's block size in bytes: the maximum of all consumer
	// payload sizes, rounded up to an alignment boundary at pool construction.
	BlockSize int `yaml:"block_size"`
	// PoolCapacity is the total number of blocks in the node's pool.
	PoolCapacity int `yaml:"pool_capacity"`

	// ReceiverCapacity bounds simultaneously reassembling transfers.
	ReceiverCapacity int `yaml:"receiver_capacity"`
	// TransferIDCapacity bounds tracked (port, source) sequencing keys.
	TransferIDCapacity int `yaml:"transfer_id_capacity"`
	// TimerCapacity bounds concurrently scheduled timers.
	TimerCapacity int `yaml:"timer_capacity"`

	// ReassemblyTimeout purges transfers whose last frame is older than this.
	ReassemblyTimeout Duration `yaml:"reassembly_timeout"`
	// TxTTL drops outbound frames that could not be transmitted within this.
	TxTTL Duration `yaml:"tx_ttl"`

	// OverflowPolicy is "reject-new" or "evict-oldest".
	OverflowPolicy string `yaml:"overflow_policy"`
}

const (
	policyRejectNew   = "reject-new"
	policyEvictOldest = "evict-oldest"
)

// Default returns the configuration a node runs with when the deployment
// specifies nothing.
func Default() NodeConfig {
	return NodeConfig{
		BlockSize:          512,
		PoolCapacity:       64,
		ReceiverCapacity:   16,
		TransferIDCapacity: 32,
		TimerCapacity:      16,
		ReassemblyTimeout:  Duration(2 * time.Second),
		TxTTL:              Duration(time.Second),
		OverflowPolicy:     policyRejectNew,
	}
}

// Load reads a YAML document into a NodeConfig, starting from Default so omitted
// fields keep their defaults. Unknown fields are rejected.
func Load(r io.Reader) (NodeConfig, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil {
		return NodeConfig{}, errors.Wrap(err, "failed to parse node configuration")
	}

	if err := cfg.Validate(); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

// Validate checks every field against the constraints the core assumes.
func (c NodeConfig) Validate() error {
	if c.BlockSize <= 0 {
		return errors.Newf("block_size must be positive, but was %d", c.BlockSize)
	}
	if c.PoolCapacity <= 0 {
		return errors.Newf("pool_capacity must be positive, but was %d", c.PoolCapacity)
	}
	if c.ReceiverCapacity <= 0 {
		return errors.Newf("receiver_capacity must be positive, but was %d", c.ReceiverCapacity)
	}
	if c.TransferIDCapacity <= 0 {
		return errors.Newf("transfer_id_capacity must be positive, but was %d", c.TransferIDCapacity)
	}
	if c.TimerCapacity <= 0 {
		return errors.Newf("timer_capacity must be positive, but was %d", c.TimerCapacity)
	}
	if c.ReassemblyTimeout.Std() <= 0 {
		return errors.New("reassembly_timeout must be positive")
	}
	if c.TxTTL.Std() <= 0 {
		return errors.New("tx_ttl must be positive")
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	return nil
}

// Policy maps the configured overflow policy name onto the session package's
// enumeration.
func (c NodeConfig) Policy() (session.OverflowPolicy, error) {
	switch c.OverflowPolicy {
	case policyRejectNew, "":
		return session.RejectNew, nil
	case policyEvictOldest:
		return session.EvictOldest, nil
	default:
		return 0, errors.Newf("overflow_policy must be %q or %q, but was %q", policyRejectNew, policyEvictOldest, c.OverflowPolicy)
	}
}
