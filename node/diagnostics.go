package node

import "github.com/launchdarkly/go-jsonstream/v3/jwriter"

// Diagnostics is the node's monotonic event counters. Counters only ever
// increase; rates are obtained by differencing two snapshots.
type Diagnostics struct {
	FramesReceived     uint64
	FramesSent         uint64
	FramesIgnored      uint64
	InvalidFrames      uint64
	TransfersPublished uint64
	TransfersDelivered uint64
	Duplicates         uint64
	PoolExhausted      uint64
	TableFull          uint64
	BadChecksums       uint64
	OutOfSequence      uint64
	ReassemblyTimeouts uint64
	TTLExpired         uint64
	TimersFired        uint64
}

// Diagnostics returns a snapshot of the node's counters.
func (n *Node) Diagnostics() Diagnostics {
	return n.diag
}

// NodeJsonData populates a json object with this node's counters and the pool's
// block accounting.
func (n *Node) NodeJsonData(json jwriter.ObjectState) {
	json.Name("NodeID").Int(int(n.id))

	poolJson := json.Name("Pool").Object()
	n.pool.PoolJsonData(poolJson)
	poolJson.End()

	framesJson := json.Name("Frames").Object()
	framesJson.Name("Received").Int(int(n.diag.FramesReceived))
	framesJson.Name("Sent").Int(int(n.diag.FramesSent))
	framesJson.Name("Ignored").Int(int(n.diag.FramesIgnored))
	framesJson.Name("Invalid").Int(int(n.diag.InvalidFrames))
	framesJson.End()

	transfersJson := json.Name("Transfers").Object()
	transfersJson.Name("Published").Int(int(n.diag.TransfersPublished))
	transfersJson.Name("Delivered").Int(int(n.diag.TransfersDelivered))
	transfersJson.Name("Duplicates").Int(int(n.diag.Duplicates))
	transfersJson.End()

	faultsJson := json.Name("Faults").Object()
	faultsJson.Name("PoolExhausted").Int(int(n.diag.PoolExhausted))
	faultsJson.Name("TableFull").Int(int(n.diag.TableFull))
	faultsJson.Name("BadChecksums").Int(int(n.diag.BadChecksums))
	faultsJson.Name("OutOfSequence").Int(int(n.diag.OutOfSequence))
	faultsJson.Name("ReassemblyTimeouts").Int(int(n.diag.ReassemblyTimeouts))
	faultsJson.Name("TTLExpired").Int(int(n.diag.TTLExpired))
	faultsJson.End()

	json.Name("TimersFired").Int(int(n.diag.TimersFired))
}

// BuildStatsString dumps the node's diagnostics and pool accounting as a JSON
// document, suitable for logging or an operator console.
func (n *Node) BuildStatsString() string {
	writer := jwriter.NewWriter()
	rootJson := writer.Object()
	n.NodeJsonData(rootJson)
	rootJson.End()

	return string(writer.Bytes())
}
